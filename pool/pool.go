// Package pool runs independent operations over a list of items with a
// bounded number in flight and per-item failure isolation.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/michaelpento.lv/llamalend/utils/metrics"
)

// DefaultConcurrency is the in-flight bound used when none is configured
const DefaultConcurrency = 5

// Pool bounds concurrent work. It holds no per-batch state and may be
// shared by any number of concurrent batches.
type Pool struct {
	limit   int
	limiter *rate.Limiter
	logger  *zap.Logger
	metrics *metrics.PoolMetrics
}

type Option func(*Pool)

// WithRateLimit caps the rate at which tasks start
func WithRateLimit(requestsPerSecond float64, burst int) Option {
	return func(p *Pool) {
		if requestsPerSecond > 0 {
			p.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithMetrics(m *metrics.PoolMetrics) Option {
	return func(p *Pool) {
		if m != nil {
			p.metrics = m
		}
	}
}

// New creates a pool running at most limit tasks at once
func New(limit int, opts ...Option) *Pool {
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	p := &Pool{
		limit:   limit,
		logger:  zap.NewNop(),
		metrics: metrics.NewPoolMetrics(metrics.Namespace, nil),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Limit returns the in-flight bound
func (p *Pool) Limit() int {
	return p.limit
}

// Batch is one named execution over a list of items
type Batch[T any] struct {
	pool    *Pool
	name    string
	items   []T
	onError func(error, T)
}

// For starts building a batch over items
func For[T any](p *Pool, name string, items []T) *Batch[T] {
	return &Batch[T]{pool: p, name: name, items: items}
}

// HandleError installs a per-item failure handler. Calls to the handler are
// serialized.
func (b *Batch[T]) HandleError(fn func(err error, item T)) *Batch[T] {
	b.onError = fn
	return b
}

// Process runs fn over every item. A failing item never cancels its
// siblings and the batch itself never fails. Failures go to the error
// handler when one is installed; otherwise they are returned.
func (b *Batch[T]) Process(ctx context.Context, fn func(ctx context.Context, item T) error) []error {
	p := b.pool
	start := time.Now()
	defer func() {
		p.metrics.BatchDuration.WithLabelValues(b.name).Observe(time.Since(start).Seconds())
	}()

	var (
		g         errgroup.Group
		mu        sync.Mutex
		unhandled []error
	)
	g.SetLimit(p.limit)

	for _, item := range b.items {
		item := item
		g.Go(func() error {
			err := b.run(ctx, fn, item)
			if err == nil {
				p.metrics.Tasks.WithLabelValues(b.name, "success").Inc()
				return nil
			}

			p.metrics.Tasks.WithLabelValues(b.name, "failure").Inc()
			mu.Lock()
			defer mu.Unlock()
			if b.onError != nil {
				b.onError(err, item)
			} else {
				unhandled = append(unhandled, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(unhandled) > 0 {
		p.logger.Debug("Batch completed with unhandled failures",
			zap.String("batch", b.name),
			zap.Int("items", len(b.items)),
			zap.Int("failures", len(unhandled)))
	}
	return unhandled
}

func (b *Batch[T]) run(ctx context.Context, fn func(context.Context, T) error, item T) (err error) {
	p := b.pool
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	inFlight := p.metrics.InFlight.WithLabelValues(b.name)
	inFlight.Inc()
	defer inFlight.Dec()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return fn(ctx, item)
}
