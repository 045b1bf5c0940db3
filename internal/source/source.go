// Package source provides the asynchronous status caches the readiness
// orchestrator reads from. Every source reports the same shape: the last known
// value, a loading flag and an error.
package source

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Error is a failed fetch as reported to consumers.
type Error struct {
	Message    string
	StatusCode int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
}

// IsNotFound returns true if the backend reported the resource as absent.
func (e *Error) IsNotFound() bool {
	return e != nil && e.StatusCode == http.StatusNotFound
}

// NotFound returns an error that consumers interpret as a missing resource.
func NotFound(message string) *Error {
	return &Error{Message: message, StatusCode: http.StatusNotFound}
}

// AsError converts any fetch error into an *Error. Errors that do not carry a
// status code are treated as server errors.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return &Error{Message: err.Error(), StatusCode: http.StatusInternalServerError}
}

// Snapshot is the state of a source at one point in time.
type Snapshot[T any] struct {
	Data      *T
	IsLoading bool
	IsError   bool
	Err       *Error
	UpdatedAt time.Time
}

// HasData returns true if a last known value is available.
func (s Snapshot[T]) HasData() bool {
	return s.Data != nil
}

// Source is a subscribable status source.
type Source[T any] interface {
	// Current returns the latest snapshot.
	Current() Snapshot[T]
	// Subscribe registers fn for every future snapshot. The returned function
	// unsubscribes; it is safe to call more than once.
	Subscribe(fn func(Snapshot[T])) (unsubscribe func())
}

// broadcaster holds the latest snapshot and fans it out to subscribers.
type broadcaster[T any] struct {
	mu      sync.RWMutex
	current Snapshot[T]
	subs    map[uint64]func(Snapshot[T])
	nextID  uint64
}

func newBroadcaster[T any](initial Snapshot[T]) *broadcaster[T] {
	return &broadcaster[T]{
		current: initial,
		subs:    make(map[uint64]func(Snapshot[T])),
	}
}

func (b *broadcaster[T]) Current() Snapshot[T] {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.current
}

func (b *broadcaster[T]) Subscribe(fn func(Snapshot[T])) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// update applies fn to the current snapshot under the lock and notifies
// subscribers with the result outside of it.
func (b *broadcaster[T]) update(fn func(*Snapshot[T])) Snapshot[T] {
	b.mu.Lock()
	fn(&b.current)
	snap := b.current
	subs := make([]func(Snapshot[T]), 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s(snap)
	}
	return snap
}

// Static is a source whose snapshots are set by the caller.
type Static[T any] struct {
	*broadcaster[T]
}

// NewStatic creates a source that starts in the loading state.
func NewStatic[T any]() *Static[T] {
	return &Static[T]{broadcaster: newBroadcaster(Snapshot[T]{IsLoading: true})}
}

// Set replaces the current snapshot.
func (s *Static[T]) Set(snap Snapshot[T]) {
	s.update(func(cur *Snapshot[T]) { *cur = snap })
}

// SetData publishes a successful value.
func (s *Static[T]) SetData(v T) {
	s.update(func(cur *Snapshot[T]) {
		*cur = Snapshot[T]{Data: &v, UpdatedAt: time.Now()}
	})
}

// SetError publishes a failure and keeps the last known value.
func (s *Static[T]) SetError(err error) {
	s.update(func(cur *Snapshot[T]) {
		cur.IsLoading = false
		cur.IsError = true
		cur.Err = AsError(err)
		cur.UpdatedAt = time.Now()
	})
}

// SetLoading marks the source as loading.
func (s *Static[T]) SetLoading() {
	s.update(func(cur *Snapshot[T]) { cur.IsLoading = true })
}
