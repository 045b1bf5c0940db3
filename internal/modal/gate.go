// Package modal turns readiness decisions into at most one visible dialog.
package modal

import (
	"sync"

	"go.uber.org/zap"

	"walletgate/internal/models"
)

// Presenter renders dialogs.
type Presenter interface {
	Present(kind models.ModalKind)
	Dismiss(kind models.ModalKind)
}

// Notifier is told about every hide. userInitiated is true only for an
// explicit user dismissal.
type Notifier interface {
	OnModalClosed(kind models.ModalKind, userInitiated bool)
}

// Gate shows the dialog requested by the latest decision. Showing a kind that
// is already visible is a no-op, so repeated decisions never re-present it.
type Gate struct {
	presenter Presenter
	notifier  Notifier
	logger    *zap.Logger

	mu       sync.Mutex
	visible  models.ModalKind
	revision uint64
	shows    map[models.ModalKind]int
}

// NewGate creates a gate. notifier may be nil.
func NewGate(presenter Presenter, notifier Notifier, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		presenter: presenter,
		notifier:  notifier,
		logger:    logger,
		visible:   models.ModalNone,
		shows:     make(map[models.ModalKind]int),
	}
}

// Apply renders a decision. Decisions older than the last applied one are ignored.
func (g *Gate) Apply(state models.State) {
	g.mu.Lock()
	if state.Revision != 0 && state.Revision <= g.revision {
		g.mu.Unlock()
		return
	}
	if state.Revision != 0 {
		g.revision = state.Revision
	}

	want := state.ActiveModal
	if want == "" {
		want = models.ModalNone
	}
	if want == g.visible {
		g.mu.Unlock()
		return
	}

	hidden := g.visible
	g.visible = want
	if !want.IsNone() {
		g.shows[want]++
	}
	g.mu.Unlock()

	if !hidden.IsNone() {
		g.presenter.Dismiss(hidden)
		g.notify(hidden, false)
	}
	if !want.IsNone() {
		g.logger.Debug("presenting modal", zap.String("modal", string(want)))
		g.presenter.Present(want)
	}
}

// Close is the user dismissing the visible dialog.
func (g *Gate) Close() {
	g.mu.Lock()
	hidden := g.visible
	g.visible = models.ModalNone
	g.mu.Unlock()

	if hidden.IsNone() {
		return
	}
	g.presenter.Dismiss(hidden)
	g.notify(hidden, true)
}

// Reset hides any dialog without notifying and forgets the applied revision.
// It is used when the session ends.
func (g *Gate) Reset() {
	g.mu.Lock()
	hidden := g.visible
	g.visible = models.ModalNone
	g.revision = 0
	g.mu.Unlock()

	if !hidden.IsNone() {
		g.presenter.Dismiss(hidden)
	}
}

// Visible returns the dialog currently shown.
func (g *Gate) Visible() models.ModalKind {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.visible
}

// ShowCount returns how many times kind was presented.
func (g *Gate) ShowCount(kind models.ModalKind) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.shows[kind]
}

func (g *Gate) notify(kind models.ModalKind, userInitiated bool) {
	if g.notifier != nil {
		g.notifier.OnModalClosed(kind, userInitiated)
	}
}

// Recorder is a Presenter that remembers the visible dialog. Renderers that
// poll for state, such as the HTTP API, read it back.
type Recorder struct {
	mu      sync.Mutex
	visible models.ModalKind
}

// NewRecorder creates a recorder with nothing visible.
func NewRecorder() *Recorder {
	return &Recorder{visible: models.ModalNone}
}

func (r *Recorder) Present(kind models.ModalKind) {
	r.mu.Lock()
	r.visible = kind
	r.mu.Unlock()
}

func (r *Recorder) Dismiss(kind models.ModalKind) {
	r.mu.Lock()
	if r.visible == kind {
		r.visible = models.ModalNone
	}
	r.mu.Unlock()
}

// Visible returns the dialog on screen.
func (r *Recorder) Visible() models.ModalKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.visible
}
