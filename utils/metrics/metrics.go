package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/zap"
)

const Namespace = "llamalend"

var (
	registry = prometheus.NewRegistry()
	logger   = zap.NewNop()
)

type MetricsConfig struct {
	Enabled bool
	Addr    string
}

// Initialize makes the package registry the default registerer
func Initialize(cfg *MetricsConfig, log *zap.Logger) {
	if log != nil {
		logger = log
	}
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	if cfg != nil && cfg.Enabled {
		logger.Info("Metrics enabled", zap.String("addr", cfg.Addr))
	}
}

// Registry returns the package registry
func Registry() *prometheus.Registry {
	return registry
}

// Serve exposes the registry on addr until ctx is cancelled
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// CounterValue reads the current value of a counter
func CounterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil || m.Counter == nil {
		return 0
	}
	return m.Counter.GetValue()
}

// PoolMetrics track bounded batch execution. A nil registerer yields
// unregistered collectors.
type PoolMetrics struct {
	Tasks         *prometheus.CounterVec
	BatchDuration *prometheus.HistogramVec
	InFlight      *prometheus.GaugeVec
}

func NewPoolMetrics(namespace string, reg prometheus.Registerer) *PoolMetrics {
	factory := promauto.With(reg)
	return &PoolMetrics{
		Tasks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pool_tasks_total",
			Help:      "Total number of batch tasks by outcome",
		}, []string{"batch", "outcome"}),
		BatchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pool_batch_duration_seconds",
			Help:      "Time taken to complete a batch",
			Buckets:   prometheus.DefBuckets,
		}, []string{"batch"}),
		InFlight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_tasks_in_flight",
			Help:      "Number of batch tasks currently running",
		}, []string{"batch"}),
	}
}

type QuoteMetrics struct {
	Requests *prometheus.CounterVec
	Latency  *prometheus.HistogramVec
}

func NewQuoteMetrics(namespace string, reg prometheus.Registerer) *QuoteMetrics {
	factory := promauto.With(reg)
	return &QuoteMetrics{
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_requests_total",
			Help:      "Total number of quote requests by family, kind and outcome",
		}, []string{"family", "kind", "outcome"}),
		Latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "quote_latency_seconds",
			Help:      "Quote computation latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"family", "kind"}),
	}
}

type TxMetrics struct {
	Steps    *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

func NewTxMetrics(namespace string, reg prometheus.Registerer) *TxMetrics {
	factory := promauto.With(reg)
	return &TxMetrics{
		Steps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tx_steps_total",
			Help:      "Total number of transaction steps by action, step and outcome",
		}, []string{"action", "step", "outcome"}),
		Duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tx_duration_seconds",
			Help:      "Time from first step to final confirmation",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"action"}),
	}
}
