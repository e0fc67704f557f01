package monitoring

import (
	"context"
	"runtime"
	"sync"
	"time"
)

// RuntimeSampler periodically copies Go runtime memory statistics into
// Metrics so /metrics reports heap and GC figures.
type RuntimeSampler struct {
	metrics  *Metrics
	logger   *Logger
	interval time.Duration

	// heapWarnBytes logs a performance warning when exceeded. Zero disables.
	heapWarnBytes uint64

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewRuntimeSampler creates a sampler. An interval <= 0 defaults to 30s.
func NewRuntimeSampler(metrics *Metrics, logger *Logger, interval time.Duration, heapWarnBytes uint64) *RuntimeSampler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &RuntimeSampler{
		metrics:       metrics,
		logger:        logger,
		interval:      interval,
		heapWarnBytes: heapWarnBytes,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Start samples once immediately, then on every tick until ctx is done or
// Stop is called.
func (s *RuntimeSampler) Start(ctx context.Context) {
	s.Sample()
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sample()
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop halts sampling and waits for the loop to exit.
func (s *RuntimeSampler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

// Sample reads runtime.MemStats once and records it.
func (s *RuntimeSampler) Sample() runtime.MemStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	s.metrics.RecordGCMetrics(int64(ms.NumGC), int64(ms.PauseTotalNs), int64(ms.HeapAlloc), int64(ms.HeapSys))

	if s.heapWarnBytes > 0 && ms.HeapAlloc > s.heapWarnBytes && s.logger != nil {
		s.logger.PerformanceLogger("heap_alloc_mb", float64(ms.HeapAlloc)/(1024*1024), "MB")
	}
	return ms
}
