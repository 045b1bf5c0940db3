// Package proximity decides when the device has moved far enough to refresh
// nearby payment suggestions.
package proximity

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"walletgate/internal/metrics"
	"walletgate/internal/models"
)

// DefaultThresholdMeters is the distance that counts as a significant move.
const DefaultThresholdMeters = 50.0

const defaultBuffer = 16

// ErrStopped is returned when a stopped detector is started again.
var ErrStopped = errors.New("detector stopped")

// Watcher delivers location samples.
type Watcher interface {
	Watch(fn func(models.Sample)) (unsubscribe func())
}

// Lookup finds payment suggestions near a position.
type Lookup interface {
	Lookup(ctx context.Context, lat, lon float64) ([]models.Suggestion, error)
}

// LookupFunc adapts a function to Lookup.
type LookupFunc func(ctx context.Context, lat, lon float64) ([]models.Suggestion, error)

func (f LookupFunc) Lookup(ctx context.Context, lat, lon float64) ([]models.Suggestion, error) {
	return f(ctx, lat, lon)
}

// Move is a significant move.
type Move struct {
	models.Coordinate
	// DistanceMeters from the previous move; zero for the first one.
	DistanceMeters float64
	SampledAt      time.Time
}

// Config holds detector configuration.
type Config struct {
	Watcher         Watcher
	Lookup          Lookup
	ThresholdMeters float64
	// Buffer is the capacity of the Moves channel.
	Buffer int
	// OnSuggestions is called after every successful lookup.
	OnSuggestions func(Move, []models.Suggestion)
	Logger        *zap.Logger
	Metrics       *metrics.Metrics
}

// Detector turns location samples into significant moves.
//
// At most one lookup runs at a time. Samples that arrive while a lookup is in
// flight share a single pending slot, the latest replacing any earlier one,
// and the slot is processed when the lookup returns.
type Detector struct {
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	moves   chan Move

	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	started     bool
	stopped     bool
	lastEmitted *models.Coordinate
	inFlight    bool
	pending     *models.Sample
	latest      []models.Suggestion
	unsubscribe func()
	wg          sync.WaitGroup
}

// New creates a detector.
func New(cfg Config) *Detector {
	if cfg.ThresholdMeters <= 0 {
		cfg.ThresholdMeters = DefaultThresholdMeters
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = defaultBuffer
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{
		cfg:     cfg,
		logger:  logger,
		metrics: cfg.Metrics,
		moves:   make(chan Move, cfg.Buffer),
	}
}

// Moves returns the sequence of significant moves. The channel is closed by Stop.
func (d *Detector) Moves() <-chan Move {
	return d.moves
}

// Start subscribes to the watcher. A detector cannot be restarted after Stop.
func (d *Detector) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return ErrStopped
	}
	if d.started {
		d.mu.Unlock()
		return nil
	}
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.started = true
	d.mu.Unlock()

	unsubscribe := d.cfg.Watcher.Watch(d.ingest)

	d.mu.Lock()
	d.unsubscribe = unsubscribe
	stopped := d.stopped
	d.mu.Unlock()
	if stopped {
		unsubscribe()
	}
	return nil
}

// Stop unsubscribes, waits for the in-flight lookup and closes Moves.
func (d *Detector) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.pending = nil
	unsubscribe := d.unsubscribe
	cancel := d.cancel
	d.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if cancel != nil {
		cancel()
	}
	d.wg.Wait()

	d.mu.Lock()
	close(d.moves)
	d.mu.Unlock()
}

// Latest returns the suggestions from the last successful lookup.
func (d *Detector) Latest() []models.Suggestion {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]models.Suggestion, len(d.latest))
	copy(out, d.latest)
	return out
}

func (d *Detector) ingest(s models.Sample) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started || d.stopped {
		return
	}
	if d.inFlight {
		if d.pending != nil {
			d.metrics.SampleCoalesced()
		}
		d.pending = &s
		return
	}
	d.process(s)
}

// process must be called with d.mu held.
func (d *Detector) process(s models.Sample) {
	if d.stopped {
		return
	}

	var dist float64
	if d.lastEmitted != nil {
		dist = Distance(*d.lastEmitted, s.Coordinate)
		if dist <= d.cfg.ThresholdMeters {
			return
		}
	}

	c := s.Coordinate
	move := Move{Coordinate: c, DistanceMeters: dist, SampledAt: s.Timestamp}

	// An undelivered move leaves lastEmitted alone so the next sample is
	// measured from the last move the consumer actually received.
	select {
	case d.moves <- move:
	default:
		d.logger.Warn("moves buffer full, deferring move", zap.Float64("distance_m", dist))
		return
	}
	d.lastEmitted = &c
	d.metrics.Move()

	if d.cfg.Lookup == nil {
		return
	}
	d.inFlight = true
	d.wg.Add(1)
	go d.lookup(d.ctx, move)
}

func (d *Detector) lookup(ctx context.Context, move Move) {
	defer d.wg.Done()

	d.metrics.Lookup()
	suggestions, err := d.cfg.Lookup.Lookup(ctx, move.Latitude, move.Longitude)
	if err != nil {
		d.metrics.LookupFailure()
		d.logger.Warn("suggestion lookup failed",
			zap.Float64("latitude", move.Latitude),
			zap.Float64("longitude", move.Longitude),
			zap.Error(err),
		)
	} else {
		d.mu.Lock()
		d.latest = suggestions
		d.mu.Unlock()
		if d.cfg.OnSuggestions != nil {
			d.cfg.OnSuggestions(move, suggestions)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.inFlight = false
	if d.pending != nil {
		next := *d.pending
		d.pending = nil
		d.process(next)
	}
}

// Feed is a Watcher for samples pushed by the caller, such as samples posted
// by the mobile client.
type Feed struct {
	mu     sync.Mutex
	subs   map[uint64]func(models.Sample)
	nextID uint64
}

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{subs: make(map[uint64]func(models.Sample))}
}

func (f *Feed) Watch(fn func(models.Sample)) func() {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = fn
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

// Push delivers s to every watcher.
func (f *Feed) Push(s models.Sample) {
	f.mu.Lock()
	subs := make([]func(models.Sample), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()

	for _, fn := range subs {
		fn(s)
	}
}
