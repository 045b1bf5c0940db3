package source

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// ErrStopped is returned when a stopped query is started again.
var ErrStopped = errors.New("query stopped")

// Fetcher loads the current value from the backend.
type Fetcher[T any] func(ctx context.Context) (*T, error)

// QueryConfig holds polling configuration.
type QueryConfig struct {
	Name     string
	Interval time.Duration
	// RefetchLimit throttles manual refetches. Zero means unlimited.
	RefetchLimit rate.Limit
	RefetchBurst int
	Logger       *zap.Logger
}

// Query is a polling cache around a Fetcher.
type Query[T any] struct {
	*broadcaster[T]

	fetch   Fetcher[T]
	cfg     QueryConfig
	logger  *zap.Logger
	group   singleflight.Group
	limiter *rate.Limiter

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped bool
}

// NewQuery creates a query. It reports loading until the first fetch completes.
func NewQuery[T any](fetch Fetcher[T], cfg QueryConfig) *Query[T] {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	limit := cfg.RefetchLimit
	if limit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RefetchBurst
	if burst <= 0 {
		burst = 1
	}

	return &Query[T]{
		broadcaster: newBroadcaster(Snapshot[T]{IsLoading: true}),
		fetch:       fetch,
		cfg:         cfg,
		logger:      logger.With(zap.String("source", cfg.Name)),
		limiter:     rate.NewLimiter(limit, burst),
	}
}

// Start fetches once and then polls until Stop or ctx is cancelled.
func (q *Query[T]) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return ErrStopped
	}
	if q.cancel != nil {
		return nil
	}

	ctx, q.cancel = context.WithCancel(ctx)
	q.wg.Add(1)
	go q.loop(ctx)
	return nil
}

// Stop cancels polling and waits for the loop to exit.
func (q *Query[T]) Stop() {
	q.mu.Lock()
	q.stopped = true
	cancel := q.cancel
	q.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	q.wg.Wait()
}

// Refetch triggers an immediate fetch. Concurrent triggers share one fetch.
func (q *Query[T]) Refetch(ctx context.Context) {
	if !q.limiter.Allow() {
		q.logger.Debug("refetch throttled")
		return
	}
	q.run(ctx)
}

func (q *Query[T]) loop(ctx context.Context) {
	defer q.wg.Done()

	q.run(ctx)
	if q.cfg.Interval <= 0 {
		return
	}

	ticker := time.NewTicker(q.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.run(ctx)
		}
	}
}

func (q *Query[T]) run(ctx context.Context) {
	q.group.Do(q.cfg.Name, func() (any, error) {
		data, err := q.fetch(ctx)
		if ctx.Err() != nil {
			return nil, nil
		}
		q.mu.Lock()
		stopped := q.stopped
		q.mu.Unlock()
		if stopped {
			return nil, nil
		}
		q.apply(data, err)
		return nil, nil
	})
}

func (q *Query[T]) apply(data *T, err error) {
	now := time.Now()
	if err != nil {
		se := AsError(err)
		if se.IsNotFound() {
			q.logger.Debug("resource not found", zap.String("message", se.Message))
		} else {
			q.logger.Warn("fetch failed", zap.Error(err))
		}
		q.update(func(cur *Snapshot[T]) {
			cur.IsLoading = false
			cur.IsError = true
			cur.Err = se
			cur.UpdatedAt = now
		})
		return
	}

	q.update(func(cur *Snapshot[T]) {
		*cur = Snapshot[T]{Data: data, UpdatedAt: now}
	})
}
