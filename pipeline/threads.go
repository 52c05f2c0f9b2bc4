package pipeline

import (
	"runtime"
	"strconv"

	"go.uber.org/zap"

	"github.com/kyra-lang/nativeimage/unit"
)

const (
	// minParallelWeight is the total unit weight below which the
	// partition/serialize overhead is not worth paying. Empty and tiny
	// units hit this and take the single-shard bypass.
	minParallelWeight = 1000

	// symbolsPerShard caps the shard count so shards do not shrink
	// below a useful size.
	symbolsPerShard = 100
)

// ComputeThreadCount decides how many shards to compile in parallel.
// Pure: all inputs arrive via arguments, so the heuristic is testable in
// isolation. Malformed overrides warn and fall back to the computed
// default rather than failing the build.
func ComputeThreadCount(stats unit.Stats, target unit.Target, cfg Config) int {
	log := Logger()

	// Object formats with an external-symbol ceiling cannot absorb the
	// extra externs sharding introduces on large units.
	if ceiling := target.SymbolCeiling(); ceiling > 0 && stats.Globals > uint64(ceiling) {
		log.Debug("symbol ceiling restricts image to a single shard",
			zap.Uint64("globals", stats.Globals), zap.Int("ceiling", ceiling))
		return 1
	}

	if stats.Weight < minParallelWeight {
		log.Debug("small unit, using a single shard", zap.Uint64("weight", stats.Weight))
		return 1
	}

	hardware := cfg.Hardware
	if hardware <= 0 {
		hardware = runtime.NumCPU()
	}
	threads := hardware / 2
	if threads < 1 {
		threads = 1
	}

	if max := int(stats.Globals / symbolsPerShard); max < threads {
		log.Debug("low symbol count limiting shards",
			zap.Int("max", max), zap.Uint64("globals", stats.Globals))
		threads = max
	}

	overridden := false
	if cfg.ThreadOverride != "" {
		if requested, err := parseOverride(cfg.ThreadOverride); err != nil {
			log.Warn("ignoring invalid thread override",
				zap.String("value", cfg.ThreadOverride), zap.Error(err))
		} else {
			log.Debug("thread override in effect", zap.Int("threads", requested))
			threads = requested
			overridden = true
		}
	}

	// The fallback cap only applies when nothing explicit was given and
	// only ever lowers the count.
	if !overridden && threads > 1 && cfg.FallbackOverride != "" {
		if requested, err := parseOverride(cfg.FallbackOverride); err != nil {
			log.Warn("ignoring invalid fallback thread override",
				zap.String("value", cfg.FallbackOverride), zap.Error(err))
		} else if requested < threads {
			log.Debug("fallback override lowering shards", zap.Int("threads", requested))
			threads = requested
		}
	}

	if threads < 1 {
		threads = 1
	}
	return threads
}

func parseOverride(value string) (int, error) {
	requested, err := strconv.ParseUint(value, 10, 16)
	if err != nil {
		return 0, err
	}
	if requested == 0 {
		return 0, strconv.ErrRange
	}
	return int(requested), nil
}
