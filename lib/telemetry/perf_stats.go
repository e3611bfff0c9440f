package telemetry

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// InstrumentPerfStats records memory, cpu and goroutine gauges of the
// current process every interval until ctx is done.
func InstrumentPerfStats(ctx context.Context, interval time.Duration) {
	meter := Meter("workday-sync.perf_stats")
	cpuGauge, _ := meter.Float64Gauge("cpu_percent")
	memoryGauge, _ := meter.Int64Gauge("allocated_mb")
	rssGauge, _ := meter.Int64Gauge("rss_mb")
	goroutineGauge, _ := meter.Int64Gauge("goroutine_count")

	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		slog.Warn("perf stats: failed to inspect own process", "err", err)
		proc = nil
	}

	go func() {
		var memStats runtime.MemStats
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				runtime.ReadMemStats(&memStats)
				memoryGauge.Record(ctx, int64(memStats.Alloc/1_000_000))
				goroutineGauge.Record(ctx, int64(runtime.NumGoroutine()))

				if proc == nil {
					continue
				}
				cpu, err := proc.CPUPercentWithContext(ctx)
				if err == nil {
					cpuGauge.Record(ctx, cpu)
				}
				mem, err := proc.MemoryInfoWithContext(ctx)
				if err == nil {
					rssGauge.Record(ctx, int64(mem.RSS/1_000_000))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}
