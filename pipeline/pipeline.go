package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kyra-lang/nativeimage/backend"
	"github.com/kyra-lang/nativeimage/errors"
	"github.com/kyra-lang/nativeimage/partition"
	"github.com/kyra-lang/nativeimage/shard"
	"github.com/kyra-lang/nativeimage/unit"
)

// WorkerState is one stage of a shard worker's strictly forward state
// machine. There are no retries: a failure at any stage is fatal for the
// whole pipeline, since a partial shard set cannot be linked.
type WorkerState int

const (
	StateIdle WorkerState = iota
	StateDeserializing
	StateMaterializing
	StateConstructingTables
	StateOptimizing
	StateEmitting
	StateDone
)

func (s WorkerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDeserializing:
		return "deserializing"
	case StateMaterializing:
		return "materializing"
	case StateConstructingTables:
		return "constructing tables"
	case StateOptimizing:
		return "optimizing"
	case StateEmitting:
		return "emitting"
	case StateDone:
		return "done"
	}
	return "unknown"
}

// Event reports a worker state transition to the progress callback.
type Event struct {
	Shard int
	State WorkerState
}

// Config collects the externally supplied knobs for one pipeline run.
type Config struct {
	// Emit selects the output kinds every shard produces.
	Emit backend.Request

	// ThreadOverride forces the shard count when set. Malformed values
	// warn and fall back to the computed default.
	ThreadOverride string

	// FallbackOverride caps the computed shard count when no explicit
	// override is given. Only ever lowers it.
	FallbackOverride string

	// Hardware overrides detected hardware parallelism; 0 means detect.
	Hardware int

	// ReportTimings logs per-shard phase timings after the run.
	ReportTimings bool

	// Debug enables the partitioning verifier. Release builds leave it
	// off under the assumption the input unit is well-formed.
	Debug bool

	// SkipMetadata suppresses the metadata unit.
	SkipMetadata bool

	// PreambleData, when non-nil, is bundled as a whole-program data
	// unit compiled alongside the shards.
	PreambleData []byte

	// Progress, when non-nil, receives worker state transitions. Called
	// from worker goroutines; must be safe for concurrent use.
	Progress func(Event)
}

func (c Config) progress(shardIdx int, state WorkerState) {
	if c.Progress != nil {
		c.Progress(Event{Shard: shardIdx, State: state})
	}
}

// Result aggregates everything one pipeline run produced, in shard-index
// order.
type Result struct {
	Shards     []backend.Outputs
	Metadata   *backend.Outputs
	Preamble   *backend.Outputs
	Partitions []partition.Partition
	Timers     []ShardTimers
	Threads    int
	NFVars     int
	NGVars     int
}

// Run compiles a unit into per-shard outputs. The unit is consumed: on
// the multi-shard path its memory is released right after serialization,
// before the workers fan out.
//
// With one shard the unmodified unit goes straight to the compiler; no
// partitioning or serialization happens at all. With T shards, workers
// share exactly one immutable serialized buffer and each writes only its
// own output slot, so aggregation needs no locking. The first worker
// failure aborts the whole run.
func Run(ctx context.Context, u *unit.Unit, compiler backend.Compiler, cfg Config) (*Result, error) {
	log := Logger()
	if !cfg.Emit.Any() {
		return nil, errors.New(errors.PhaseConfig, errors.KindInvalidConfig).
			Detail("no output kinds requested").
			Build()
	}

	stats := unit.ComputeStats(u)
	threads := ComputeThreadCount(stats, u.Target, cfg)
	log.Debug("unit statistics",
		zap.Uint64("globals", stats.Globals),
		zap.Uint64("functions", stats.Funcs),
		zap.Uint64("blocks", stats.Blocks),
		zap.Uint64("instructions", stats.Insts),
		zap.Uint64("weight", stats.Weight),
		zap.Int("threads", threads),
	)

	// Table sizes are needed for the metadata header on both paths.
	nfvars, ngvars := tableSizes(u)

	res := &Result{
		Threads: threads,
		NFVars:  nfvars,
		NGVars:  ngvars,
		Timers:  make([]ShardTimers, threads),
	}

	if cfg.PreambleData != nil {
		pre, err := BuildPreambleUnit(u.Target, cfg.PreambleData)
		if err != nil {
			return nil, err
		}
		out, err := compileOne(ctx, compiler, pre, cfg, -1)
		if err != nil {
			return nil, err
		}
		res.Preamble = &out
	}

	if threads == 1 {
		cfg.progress(0, StateOptimizing)
		out, err := compileOne(ctx, compiler, u, cfg, 0)
		if err != nil {
			return nil, err
		}
		u.Release()
		res.Shards = []backend.Outputs{out}
		cfg.progress(0, StateDone)
	} else {
		if err := runSharded(ctx, u, compiler, cfg, threads, res); err != nil {
			return nil, err
		}
	}

	if !cfg.SkipMetadata {
		md, err := BuildMetadataUnit(u.Target, threads, nfvars, ngvars)
		if err != nil {
			return nil, err
		}
		out, err := compileOne(ctx, compiler, md, cfg, -1)
		if err != nil {
			return nil, err
		}
		res.Metadata = &out
	}

	if cfg.ReportTimings {
		reportTimings(res.Timers, res.Partitions)
	}
	return res, nil
}

func runSharded(ctx context.Context, u *unit.Unit, compiler backend.Compiler, cfg Config, threads int, res *Result) error {
	// Partitioning is keyed by name, so anonymous definitions get
	// reserved synthetic names first.
	unit.AssignSyntheticNames(u)

	fvars, gvars, err := unit.ExtractIndexTables(u)
	if err != nil {
		return err
	}
	partitions, err := partition.PartitionUnit(u, fvars, gvars, threads)
	if err != nil {
		return err
	}
	if cfg.Debug {
		if err := partition.Verify(u, partitions, len(fvars), len(gvars)); err != nil {
			return err
		}
	}
	res.Partitions = partitions

	serialized := unit.Encode(u)
	// Workers only read the serialized buffer from here on; dropping the
	// original bounds peak memory before the fan-out.
	u.Release()

	res.Shards = make([]backend.Outputs, threads)
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < threads; i++ {
		i := i
		g.Go(func() error {
			timers := &res.Timers[i]

			cfg.progress(i, StateDeserializing)
			var lu *unit.LazyUnit
			if err := timed(&timers.Deserialize, func() error {
				var err error
				lu, err = unit.Decode(serialized)
				return err
			}); err != nil {
				return shardErr(i, err)
			}

			cfg.progress(i, StateMaterializing)
			if err := timed(&timers.Materialize, func() error {
				return shard.MaterializePreserved(lu, &partitions[i])
			}); err != nil {
				return shardErr(i, err)
			}

			cfg.progress(i, StateConstructingTables)
			if err := timed(&timers.Construct, func() error {
				shard.StampSuffix(lu, i)
				return shard.BuildVarTables(lu, &partitions[i])
			}); err != nil {
				return shardErr(i, err)
			}

			cfg.progress(i, StateOptimizing)
			var out backend.Outputs
			if err := timed(&timers.Compile, func() error {
				var err error
				out, err = compiler.Compile(ctx, lu, cfg.Emit)
				return err
			}); err != nil {
				if degraded(err, cfg.Emit, out, i) {
					res.Shards[i] = out
					cfg.progress(i, StateDone)
					return nil
				}
				return shardErr(i, err)
			}
			warnMissing(cfg.Emit, out, i)

			cfg.progress(i, StateEmitting)
			res.Shards[i] = out
			cfg.progress(i, StateDone)
			return nil
		})
	}
	return g.Wait()
}

// compileOne runs the compiler over a whole unit without shard
// machinery: the single-shard bypass, the metadata unit, the preamble.
func compileOne(ctx context.Context, compiler backend.Compiler, u *unit.Unit, cfg Config, shardIdx int) (backend.Outputs, error) {
	out, err := compiler.Compile(ctx, u, cfg.Emit)
	if err != nil {
		if degraded(err, cfg.Emit, out, shardIdx) {
			return out, nil
		}
		return out, err
	}
	warnMissing(cfg.Emit, out, shardIdx)
	return out, nil
}

// degraded reports whether err is the compiler declining an output kind,
// which the pipeline logs and survives.
func degraded(err error, req backend.Request, out backend.Outputs, shardIdx int) bool {
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseEmit, Kind: errors.KindUnsupportedOutput}) {
		return false
	}
	Logger().Warn("compiler skipped unsupported output kinds",
		zap.Int("shard", shardIdx),
		zap.Strings("missing", backend.Missing(req, out)),
		zap.Error(err),
	)
	return true
}

func warnMissing(req backend.Request, out backend.Outputs, shardIdx int) {
	if missing := backend.Missing(req, out); len(missing) > 0 {
		Logger().Warn("requested output kinds not produced",
			zap.Int("shard", shardIdx),
			zap.Strings("missing", missing),
		)
	}
}

func shardErr(i int, err error) error {
	return fmt.Errorf("shard %d: %w", i, err)
}

func tableSizes(u *unit.Unit) (nfvars, ngvars int) {
	if s := u.Lookup(unit.FVarsTableName); s != nil {
		nfvars = len(s.Refs)
	}
	if s := u.Lookup(unit.GVarsTableName); s != nil {
		ngvars = len(s.Refs)
	}
	return nfvars, ngvars
}
