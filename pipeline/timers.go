package pipeline

import (
	"time"

	"go.uber.org/zap"

	"github.com/kyra-lang/nativeimage/partition"
)

// ShardTimers records how long each phase of one shard's compilation
// took. Collected unconditionally (the cost is a few clock reads),
// reported only when Config.ReportTimings is set.
type ShardTimers struct {
	Deserialize time.Duration
	Materialize time.Duration
	Construct   time.Duration
	Compile     time.Duration
}

// Total returns the sum of all phase durations.
func (t ShardTimers) Total() time.Duration {
	return t.Deserialize + t.Materialize + t.Construct + t.Compile
}

func timed(d *time.Duration, f func() error) error {
	start := time.Now()
	err := f()
	*d = time.Since(start)
	return err
}

func reportTimings(timers []ShardTimers, partitions []partition.Partition) {
	log := Logger()
	for i, t := range timers {
		log.Info("shard timings",
			zap.Int("shard", i),
			zap.Duration("deserialize", t.Deserialize),
			zap.Duration("materialize", t.Materialize),
			zap.Duration("construct", t.Construct),
			zap.Duration("compile", t.Compile),
			zap.Duration("total", t.Total()),
		)
	}
	if len(partitions) > 0 {
		weights := make([]uint64, len(partitions))
		for i := range partitions {
			weights[i] = partitions[i].Weight
		}
		log.Info("partition weights", zap.Uint64s("weights", weights))
	}
}
