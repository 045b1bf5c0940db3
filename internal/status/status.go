// Package status binds the readiness status sources to the backend stores.
package status

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"walletgate/internal/ledger"
	"walletgate/internal/models"
	"walletgate/internal/source"
)

// VerificationReader reads verification records. A nil record means none exists.
type VerificationReader interface {
	GetByUser(ctx context.Context, userID uuid.UUID) (*models.VerificationRecord, error)
}

// WalletReader reads wallets. A nil wallet means none is provisioned.
type WalletReader interface {
	GetByUser(ctx context.Context, userID uuid.UUID) (*models.WalletDetails, error)
	PinStatus(ctx context.Context, userID uuid.UUID) (*models.PinStatus, error)
}

// BalanceReader reads ledger balances.
type BalanceReader interface {
	GetBalance(id ledger.AccountID) (ledger.Balance, error)
}

// Deps are the backends shared by every user's sources.
type Deps struct {
	Verifications VerificationReader
	Wallets       WalletReader
	// Ledger is optional; without it wallets carry no balance.
	Ledger BalanceReader
	Logger *zap.Logger
}

// VerificationFetcher loads a user's verification record. Users without a
// record have not started verification.
func VerificationFetcher(r VerificationReader, userID uuid.UUID) source.Fetcher[models.VerificationRecord] {
	return func(ctx context.Context) (*models.VerificationRecord, error) {
		rec, err := r.GetByUser(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("fetch verification: %w", err)
		}
		if rec == nil {
			rec = &models.VerificationRecord{UserID: userID, Status: models.VerificationStatusPending}
		}
		return rec, nil
	}
}

// WalletFetcher loads a user's wallet and its ledger balance. A missing wallet
// is reported as not found. A failed balance lookup leaves the balance empty
// without failing the fetch.
func WalletFetcher(r WalletReader, balances BalanceReader, userID uuid.UUID, logger *zap.Logger) source.Fetcher[models.WalletStatus] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context) (*models.WalletStatus, error) {
		w, err := r.GetByUser(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("fetch wallet: %w", err)
		}
		if w == nil {
			return nil, source.NotFound("wallet not found")
		}

		ws := &models.WalletStatus{Details: *w}
		if balances == nil || w.LedgerAccountID == nil {
			return ws, nil
		}

		b, err := balances.GetBalance(ledger.FromBigInt(w.LedgerAccountID))
		if err != nil {
			logger.Warn("balance lookup failed",
				zap.String("wallet_id", w.ID.String()),
				zap.Error(err),
			)
			return ws, nil
		}
		ws.Balance = &models.Balance{
			Currency:  w.Currency,
			Available: ledger.Major(b.Available()),
			Pending:   ledger.Major(int64(b.Pending)),
			Total:     ledger.Major(b.Total()),
		}
		return ws, nil
	}
}

// PinFetcher loads a user's PIN status.
func PinFetcher(r WalletReader, userID uuid.UUID) source.Fetcher[models.PinStatus] {
	return func(ctx context.Context) (*models.PinStatus, error) {
		ps, err := r.PinStatus(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("fetch pin status: %w", err)
		}
		return ps, nil
	}
}

// PollConfig configures the polling of every source.
type PollConfig = source.QueryConfig

// Sources are one user's three status sources.
type Sources struct {
	Verification *source.Query[models.VerificationRecord]
	Wallet       *source.Query[models.WalletStatus]
	Pin          *source.Query[models.PinStatus]
}

// NewSources creates the sources of one user. They do not poll until Start.
func NewSources(deps Deps, userID uuid.UUID, cfg PollConfig) *Sources {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("user_id", userID.String()))

	named := func(name string) source.QueryConfig {
		c := cfg
		c.Name = name
		c.Logger = logger
		return c
	}

	return &Sources{
		Verification: source.NewQuery(VerificationFetcher(deps.Verifications, userID), named("verification")),
		Wallet:       source.NewQuery(WalletFetcher(deps.Wallets, deps.Ledger, userID, logger), named("wallet")),
		Pin:          source.NewQuery(PinFetcher(deps.Wallets, userID), named("pin")),
	}
}

// Start starts polling all sources.
func (s *Sources) Start(ctx context.Context) error {
	if err := s.Verification.Start(ctx); err != nil {
		return fmt.Errorf("start verification source: %w", err)
	}
	if err := s.Wallet.Start(ctx); err != nil {
		return fmt.Errorf("start wallet source: %w", err)
	}
	if err := s.Pin.Start(ctx); err != nil {
		return fmt.Errorf("start pin source: %w", err)
	}
	return nil
}

// Stop stops polling all sources.
func (s *Sources) Stop() {
	s.Verification.Stop()
	s.Wallet.Stop()
	s.Pin.Stop()
}

// RefetchWallet refreshes the wallet and PIN sources after a provisioning change.
func (s *Sources) RefetchWallet(ctx context.Context) {
	s.Wallet.Refetch(ctx)
	s.Pin.Refetch(ctx)
}

// Limit converts a per-second rate into a limiter limit. Zero means unlimited.
func Limit(perSecond float64) rate.Limit {
	if perSecond <= 0 {
		return rate.Inf
	}
	return rate.Limit(perSecond)
}
