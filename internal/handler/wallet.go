package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"walletgate/internal/provisioning"
)

// WalletBalanceResponse represents wallet balance.
type WalletBalanceResponse struct {
	WalletID      uuid.UUID `json:"wallet_id"`
	AccountNumber string    `json:"account_number"`
	Currency      string    `json:"currency"`
	HasPin        bool      `json:"has_pin"`
	Available     string    `json:"available,omitempty"`
	Pending       string    `json:"pending,omitempty"`
	Total         string    `json:"total,omitempty"`
}

// Wallet returns the wallet as last seen by the session's wallet source.
// GET /api/v1/sessions/{userID}/wallet
func (h *SessionHandler) Wallet(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	snap := sess.Sources.Wallet.Current()
	if !snap.HasData() {
		switch {
		case snap.IsError && snap.Err.IsNotFound():
			NotFound(w, "wallet not found")
		case snap.IsError:
			UpstreamError(w, "wallet status unavailable")
		default:
			Unavailable(w, "LOADING", "wallet status is loading")
		}
		return
	}

	wallet := snap.Data.Details
	resp := WalletBalanceResponse{
		WalletID:      wallet.ID,
		AccountNumber: wallet.AccountNumber,
		Currency:      wallet.Currency,
		HasPin:        wallet.HasPin,
	}
	if b := snap.Data.Balance; b != nil {
		resp.Available = b.Available.StringFixed(2)
		resp.Pending = b.Pending.StringFixed(2)
		resp.Total = b.Total.StringFixed(2)
	}

	JSON(w, http.StatusOK, resp)
}

// ActivateWalletRequest represents a wallet activation request.
type ActivateWalletRequest struct {
	Currency string `json:"currency"`
}

// ActivateWallet provisions the user's wallet.
// POST /api/v1/sessions/{userID}/wallet/activate
func (h *SessionHandler) ActivateWallet(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if h.provisioner == nil {
		Unavailable(w, "UNAVAILABLE", "wallet provisioning is not configured")
		return
	}

	var req ActivateWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if len(req.Currency) != 3 {
		BadRequest(w, "currency must be a 3-letter ISO code")
		return
	}

	wallet, err := h.provisioner.ActivateWallet(r.Context(), sess.UserID, req.Currency)
	if err != nil {
		if errors.Is(err, provisioning.ErrUnsupportedCurrency) {
			BadRequest(w, "unsupported currency")
			return
		}
		h.logger.Error("wallet activation failed", zap.String("user_id", sess.UserID.String()), zap.Error(err))
		InternalError(w, "failed to activate wallet")
		return
	}

	sess.Sources.RefetchWallet(r.Context())
	JSON(w, http.StatusCreated, WalletBalanceResponse{
		WalletID:      wallet.ID,
		AccountNumber: wallet.AccountNumber,
		Currency:      wallet.Currency,
		HasPin:        wallet.HasPin,
	})
}

// SetPinRequest represents a PIN creation request.
type SetPinRequest struct {
	Pin string `json:"pin"`
}

// SetPin stores the user's transaction PIN.
// POST /api/v1/sessions/{userID}/pin
func (h *SessionHandler) SetPin(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if h.provisioner == nil {
		Unavailable(w, "UNAVAILABLE", "wallet provisioning is not configured")
		return
	}

	var req SetPinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if err := h.provisioner.SetPin(r.Context(), sess.UserID, req.Pin); err != nil {
		switch {
		case errors.Is(err, provisioning.ErrInvalidPin):
			BadRequest(w, err.Error())
		case errors.Is(err, provisioning.ErrWalletNotFound):
			Conflict(w, "wallet is not activated")
		default:
			h.logger.Error("set pin failed", zap.String("user_id", sess.UserID.String()), zap.Error(err))
			InternalError(w, "failed to set pin")
		}
		return
	}

	sess.Sources.RefetchWallet(r.Context())
	NoContent(w)
}
