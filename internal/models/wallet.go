package models

import (
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WalletDetails represents a user's provisioned wallet linked to TigerBeetle.
type WalletDetails struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	Currency        string
	AccountNumber   string
	Status          string
	LedgerAccountID *big.Int // 128-bit TigerBeetle account ID
	HasPin          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsActive returns true if the wallet is active.
func (w *WalletDetails) IsActive() bool {
	return w.Status == "active"
}

// Balance represents a wallet's balance state.
type Balance struct {
	Currency  string
	Available decimal.Decimal
	Pending   decimal.Decimal
	Total     decimal.Decimal
}

// WalletStatus is the wallet source payload: details plus the ledger balance.
type WalletStatus struct {
	Details WalletDetails
	Balance *Balance
}

// PinStatus is the PIN source payload.
type PinStatus struct {
	WalletExists bool
	HasPinSet    bool
}

// VerificationRecord is the verification source payload.
type VerificationRecord struct {
	UserID            uuid.UUID
	Status            VerificationStatus
	IdentityVerified  bool
	BiometricVerified bool
	UpdatedAt         time.Time
}

// OverallVerified returns true if the user passed every verification step.
func (r *VerificationRecord) OverallVerified() bool {
	if r.Status.IsVerified() {
		return true
	}
	return r.IdentityVerified && r.BiometricVerified && r.Status != VerificationStatusRejected
}

// CreateWalletParams contains parameters for provisioning a wallet.
type CreateWalletParams struct {
	UserID          uuid.UUID
	Currency        string
	AccountNumber   string
	LedgerAccountID *big.Int
}
