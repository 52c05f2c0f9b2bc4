package backend

import (
	"context"

	"github.com/kyra-lang/nativeimage/unit"
)

// Module is the shard view a compiler consumes: either the original
// unmodified unit (single-shard bypass) or one worker's materialized
// shard. Implementations are *unit.Unit and *unit.LazyUnit.
type Module interface {
	Platform() unit.Target
	Symbols() []*unit.Symbol
	Suffix() string
}

// Request selects which output kinds a compilation should produce.
type Request struct {
	Unopt bool // pre-optimization intermediate form
	Opt   bool // optimized intermediate form
	Obj   bool // object code
	Asm   bool // assembly listing
}

// Any reports whether at least one output kind is requested.
func (r Request) Any() bool {
	return r.Unopt || r.Opt || r.Obj || r.Asm
}

// Outputs holds the byte buffers produced for one shard. A nil buffer for
// a requested kind means the compiler could not produce it for this
// target; the pipeline reports that and continues with the rest.
type Outputs struct {
	Unopt []byte
	Opt   []byte
	Obj   []byte
	Asm   []byte
}

// Missing lists the requested output kinds absent from out. Used for the
// degraded-but-continuing diagnostic path.
func Missing(req Request, out Outputs) []string {
	var missing []string
	if req.Unopt && out.Unopt == nil {
		missing = append(missing, "unopt")
	}
	if req.Opt && out.Opt == nil {
		missing = append(missing, "opt")
	}
	if req.Obj && out.Obj == nil {
		missing = append(missing, "obj")
	}
	if req.Asm && out.Asm == nil {
		missing = append(missing, "asm")
	}
	return missing
}

// Compiler optimizes one shard and emits its output buffers. The
// pipeline treats it as opaque; implementations must be safe for
// concurrent calls, one per shard worker.
type Compiler interface {
	Compile(ctx context.Context, mod Module, req Request) (Outputs, error)
}
