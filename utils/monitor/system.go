package monitor

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/llamalend/utils"
)

// Snapshot is one reading of the process runtime
type Snapshot struct {
	Goroutines  int     `json:"goroutines"`
	HeapObjects uint64  `json:"heapObjects"`
	HeapAlloc   uint64  `json:"heapAlloc"`
	GCPauseMs   float64 `json:"gcPauseMs"`
	NumGC       uint32  `json:"numGC"`
}

// RuntimeMonitor exports runtime gauges while a long-running command is
// serving metrics
type RuntimeMonitor struct {
	logger  *zap.Logger
	metrics struct {
		goroutines  prometheus.Gauge
		heapObjects prometheus.Gauge
		heapAlloc   prometheus.Gauge
		gcPause     prometheus.Gauge
	}

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRuntimeMonitor creates a monitor whose gauges are registered on reg.
// A nil reg leaves them unregistered.
func NewRuntimeMonitor(namespace string, reg prometheus.Registerer, logger *zap.Logger) *RuntimeMonitor {
	factory := promauto.With(reg)
	m := &RuntimeMonitor{logger: utils.OrNop(logger).Named("monitor")}

	m.metrics.goroutines = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "runtime_goroutines",
		Help:      "Current number of goroutines",
	})
	m.metrics.heapObjects = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "runtime_heap_objects",
		Help:      "Current number of heap objects",
	})
	m.metrics.heapAlloc = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "runtime_heap_alloc_bytes",
		Help:      "Current heap allocation in bytes",
	})
	m.metrics.gcPause = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "runtime_gc_pause_seconds",
		Help:      "Duration of the most recent GC pause",
	})
	return m
}

// Start collects every interval until ctx is done or Stop is called.
// Calling Start on a running monitor does nothing.
func (m *RuntimeMonitor) Start(ctx context.Context, interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)

	m.collect()
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.collect()
			}
		}
	}()
	m.logger.Debug("Runtime monitor started", zap.Duration("interval", interval))
}

// Stop halts collection and waits for the collector to exit
func (m *RuntimeMonitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	m.wg.Wait()
}

func (m *RuntimeMonitor) collect() Snapshot {
	s := Read()
	m.metrics.goroutines.Set(float64(s.Goroutines))
	m.metrics.heapObjects.Set(float64(s.HeapObjects))
	m.metrics.heapAlloc.Set(float64(s.HeapAlloc))
	m.metrics.gcPause.Set(s.GCPauseMs / 1000)
	return s
}

// Read takes a runtime snapshot
func Read() Snapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return Snapshot{
		Goroutines:  runtime.NumGoroutine(),
		HeapObjects: memStats.HeapObjects,
		HeapAlloc:   memStats.HeapAlloc,
		GCPauseMs:   float64(memStats.PauseNs[(memStats.NumGC+255)%256]) / float64(time.Millisecond),
		NumGC:       memStats.NumGC,
	}
}
