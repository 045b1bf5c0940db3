// Package session owns the readiness machinery of every logged-in user.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"walletgate/internal/flagstore"
	"walletgate/internal/metrics"
	"walletgate/internal/modal"
	"walletgate/internal/models"
	"walletgate/internal/proximity"
	"walletgate/internal/readiness"
	"walletgate/internal/status"
)

// ErrSessionNotFound is returned for users without an active session.
var ErrSessionNotFound = errors.New("session not found")

// Config holds manager dependencies.
type Config struct {
	Store     flagstore.Store
	Status    status.Deps
	Poll      status.PollConfig
	Readiness readiness.Options
	Proximity ProximityConfig
	Now       func() time.Time
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

// ProximityConfig configures each session's detector.
type ProximityConfig struct {
	ThresholdMeters float64
	Buffer          int
	// Lookup finds suggestions; sessions without it emit moves only.
	Lookup proximity.Lookup
}

// Session is one user's readiness machinery.
type Session struct {
	UserID       uuid.UUID
	Orchestrator *readiness.Orchestrator
	Gate         *modal.Gate
	Presenter    *modal.Recorder
	Detector     *proximity.Detector
	Feed         *proximity.Feed
	Sources      *status.Sources

	logger   *zap.Logger
	lastMove *proximity.Move
	mu       sync.Mutex
	done     chan struct{}
}

// LastMove returns the latest significant move, if any.
func (s *Session) LastMove() (proximity.Move, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastMove == nil {
		return proximity.Move{}, false
	}
	return *s.lastMove, true
}

func (s *Session) drainMoves() {
	defer close(s.done)
	for m := range s.Detector.Moves() {
		s.logger.Debug("significant move",
			zap.Float64("latitude", m.Latitude),
			zap.Float64("longitude", m.Longitude),
			zap.Float64("distance_m", m.DistanceMeters),
		)
		m := m
		s.mu.Lock()
		s.lastMove = &m
		s.mu.Unlock()
	}
}

// Manager tracks sessions by user ID.
type Manager struct {
	cfg    Config
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}

// NewManager creates a manager.
func NewManager(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[uuid.UUID]*Session),
	}
}

// Login starts (or returns) the session of userID.
func (m *Manager) Login(ctx context.Context, userID uuid.UUID, hasCredential bool) (*Session, error) {
	m.mu.Lock()
	if s, ok := m.sessions[userID]; ok {
		m.mu.Unlock()
		return s, nil
	}

	logger := m.logger.With(zap.String("user_id", userID.String()))
	sources := status.NewSources(m.cfg.Status, userID, m.cfg.Poll)

	orch := readiness.New(readiness.Config{
		UserID:       userID,
		Store:        m.cfg.Store,
		Verification: sources.Verification,
		Wallet:       sources.Wallet,
		Pin:          sources.Pin,
		Options:      m.cfg.Readiness,
		Now:          m.cfg.Now,
		Logger:       m.logger,
		Metrics:      m.cfg.Metrics,
	})

	presenter := modal.NewRecorder()
	gate := modal.NewGate(presenter, orch, logger)
	orch.Subscribe(gate.Apply)

	feed := proximity.NewFeed()
	detector := proximity.New(proximity.Config{
		Watcher:         feed,
		Lookup:          m.cfg.Proximity.Lookup,
		ThresholdMeters: m.cfg.Proximity.ThresholdMeters,
		Buffer:          m.cfg.Proximity.Buffer,
		Logger:          logger,
		Metrics:         m.cfg.Metrics,
	})

	s := &Session{
		UserID:       userID,
		Orchestrator: orch,
		Gate:         gate,
		Presenter:    presenter,
		Detector:     detector,
		Feed:         feed,
		Sources:      sources,
		logger:       logger,
		done:         make(chan struct{}),
	}
	m.sessions[userID] = s
	m.mu.Unlock()
	go s.drainMoves()

	// Polling outlives the login request.
	bg := context.WithoutCancel(ctx)

	orch.OnLogin(ctx, readiness.Credentials{HasCredential: hasCredential})
	if err := sources.Start(bg); err != nil {
		m.abort(ctx, s)
		return nil, fmt.Errorf("start sources: %w", err)
	}
	if err := detector.Start(bg); err != nil {
		m.abort(ctx, s)
		return nil, fmt.Errorf("start detector: %w", err)
	}

	m.cfg.Metrics.SessionStarted()
	logger.Info("session started")
	return s, nil
}

func (m *Manager) abort(ctx context.Context, s *Session) {
	m.mu.Lock()
	delete(m.sessions, s.UserID)
	m.mu.Unlock()
	m.teardown(ctx, s)
	<-s.done
}

// Get returns the active session of userID.
func (m *Manager) Get(userID uuid.UUID) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Logout ends the session of userID.
func (m *Manager) Logout(ctx context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	m.teardown(ctx, s)
	<-s.done
	m.cfg.Metrics.SessionEnded()
	s.logger.Info("session ended")
	return nil
}

// Close ends every session.
func (m *Manager) Close(ctx context.Context) {
	m.mu.Lock()
	ids := make([]uuid.UUID, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		_ = m.Logout(ctx, id)
	}
}

// Len returns the number of active sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// teardown order: the orchestrator unsubscribes from the sources first so no
// evaluation runs while polling stops.
func (m *Manager) teardown(ctx context.Context, s *Session) {
	s.Orchestrator.OnLogout(ctx)
	s.Sources.Stop()
	s.Detector.Stop()
	s.Gate.Reset()
}

// Snapshot is what a renderer polls: the decision and the dialog on screen.
type Snapshot struct {
	State   models.State     `json:"state"`
	Visible models.ModalKind `json:"visible_modal"`
}

// Snapshot returns the session's current decision.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		State:   s.Orchestrator.State(),
		Visible: s.Presenter.Visible(),
	}
}
