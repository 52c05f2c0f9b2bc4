// Package errors provides structured error types for the native-image
// pipeline.
//
// Every error carries a Phase (where in the pipeline it happened) and a Kind
// (what went wrong), plus optional symbol name, shard index, location path
// and cause. Errors compare with errors.Is on Phase and Kind, so callers can
// match categories without string inspection:
//
//	if errors.Is(err, &errors.Error{Phase: errors.PhaseEmit, Kind: errors.KindUnsupportedOutput}) {
//	    // skip this output kind, continue with the rest
//	}
//
// Use the convenience constructors for common cases, or the Builder for
// anything richer:
//
//	err := errors.New(errors.PhaseMaterialize, errors.KindInternalInvariant).
//	    Shard(3).
//	    Symbol("kyra_f_120").
//	    Detail("alias target stripped before swap").
//	    Build()
package errors
