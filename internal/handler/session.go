package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"walletgate/internal/models"
	"walletgate/internal/session"
)

// Provisioner completes the wallet and PIN stages.
type Provisioner interface {
	ActivateWallet(ctx context.Context, userID uuid.UUID, currency string) (*models.WalletDetails, error)
	SetPin(ctx context.Context, userID uuid.UUID, pin string) error
}

// SessionHandler handles readiness session endpoints.
type SessionHandler struct {
	sessions    *session.Manager
	provisioner Provisioner
	logger      *zap.Logger
}

// NewSessionHandler creates a new session handler. provisioner may be nil.
func NewSessionHandler(sessions *session.Manager, provisioner Provisioner, logger *zap.Logger) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandler{
		sessions:    sessions,
		provisioner: provisioner,
		logger:      logger,
	}
}

// LoginRequest represents a session start request.
type LoginRequest struct {
	UserID        uuid.UUID `json:"user_id"`
	HasCredential bool      `json:"has_credential"`
}

// Login starts a readiness session.
// POST /api/v1/sessions
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.UserID == uuid.Nil {
		BadRequest(w, "user_id is required")
		return
	}

	sess, err := h.sessions.Login(r.Context(), req.UserID, req.HasCredential)
	if err != nil {
		h.logger.Error("session login failed", zap.String("user_id", req.UserID.String()), zap.Error(err))
		InternalError(w, "failed to start session")
		return
	}

	JSON(w, http.StatusCreated, sess.Snapshot())
}

// Logout ends a readiness session.
// DELETE /api/v1/sessions/{userID}
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	if err := h.sessions.Logout(r.Context(), userID); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			NotFound(w, "session not found")
			return
		}
		InternalError(w, "failed to end session")
		return
	}

	NoContent(w)
}

// Readiness returns the current readiness decision.
// GET /api/v1/sessions/{userID}/readiness
func (h *SessionHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, sess.Snapshot())
}

// DismissGate suppresses automatic modals for the rest of the session.
// POST /api/v1/sessions/{userID}/gate/dismiss
func (h *SessionHandler) DismissGate(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	sess.Orchestrator.OnUserDismissedGate(r.Context())
	JSON(w, http.StatusOK, sess.Snapshot())
}

// EnterSubFlow marks the user as inside the verification flow.
// POST /api/v1/sessions/{userID}/subflow/enter
func (h *SessionHandler) EnterSubFlow(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	sess.Orchestrator.OnSubFlowEntered(r.Context())
	JSON(w, http.StatusOK, sess.Snapshot())
}

// ExitSubFlow marks the user as back from the verification flow.
// POST /api/v1/sessions/{userID}/subflow/exit
func (h *SessionHandler) ExitSubFlow(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	sess.Orchestrator.OnSubFlowExited(r.Context())
	JSON(w, http.StatusOK, sess.Snapshot())
}

// CloseModal is the user dismissing the visible modal.
// POST /api/v1/sessions/{userID}/modal/close
func (h *SessionHandler) CloseModal(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	sess.Gate.Close()
	JSON(w, http.StatusOK, sess.Snapshot())
}

// RetriggerRequest names the modal the user asks for again.
type RetriggerRequest struct {
	Modal string `json:"modal"`
}

// RetriggerModal re-arms a dismissed modal.
// POST /api/v1/sessions/{userID}/modal/retrigger
func (h *SessionHandler) RetriggerModal(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req RetriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	kind, valid := models.ParseModalKind(req.Modal)
	if !valid || kind.IsNone() {
		BadRequest(w, "unknown modal")
		return
	}

	sess.Orchestrator.Retrigger(kind)
	JSON(w, http.StatusOK, sess.Snapshot())
}

// LocationRequest is a location sample from the device.
type LocationRequest struct {
	Latitude  float64    `json:"latitude"`
	Longitude float64    `json:"longitude"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// LocationResponse reports the latest significant move.
type LocationResponse struct {
	Move *MoveResponse `json:"last_move,omitempty"`
}

// MoveResponse is a significant move.
type MoveResponse struct {
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	DistanceMeters float64   `json:"distance_meters"`
	SampledAt      time.Time `json:"sampled_at"`
}

// PushLocation feeds a location sample to the proximity detector.
// POST /api/v1/sessions/{userID}/location
func (h *SessionHandler) PushLocation(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req LocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.Latitude < -90 || req.Latitude > 90 || req.Longitude < -180 || req.Longitude > 180 {
		BadRequest(w, "coordinates out of range")
		return
	}

	ts := time.Now().UTC()
	if req.Timestamp != nil {
		ts = *req.Timestamp
	}
	sess.Feed.Push(models.Sample{
		Coordinate: models.Coordinate{Latitude: req.Latitude, Longitude: req.Longitude},
		Timestamp:  ts,
	})

	var resp LocationResponse
	if m, ok := sess.LastMove(); ok {
		resp.Move = &MoveResponse{
			Latitude:       m.Latitude,
			Longitude:      m.Longitude,
			DistanceMeters: m.DistanceMeters,
			SampledAt:      m.SampledAt,
		}
	}
	JSON(w, http.StatusAccepted, resp)
}

// Suggestions returns the payment suggestions near the last significant move.
// GET /api/v1/sessions/{userID}/suggestions
func (h *SessionHandler) Suggestions(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, sess.Detector.Latest())
}

func (h *SessionHandler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return nil, false
	}
	sess, err := h.sessions.Get(userID)
	if err != nil {
		NotFound(w, "session not found")
		return nil, false
	}
	return sess, true
}

func userIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		BadRequest(w, "invalid user ID")
		return uuid.Nil, false
	}
	return id, true
}
