// Package provisioning performs the user actions that complete readiness
// stages: activating a wallet and setting its transaction PIN.
package provisioning

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"walletgate/internal/db"
	"walletgate/internal/ledger"
	"walletgate/internal/models"
)

var (
	ErrUnsupportedCurrency = errors.New("unsupported currency")
	ErrInvalidPin          = errors.New("pin must be 4 to 6 digits")
	ErrWalletNotFound      = errors.New("wallet not found")
)

// Wallets is the wallet storage used by the service.
type Wallets interface {
	GetByUser(ctx context.Context, userID uuid.UUID) (*models.WalletDetails, error)
	Create(ctx context.Context, params models.CreateWalletParams) (*models.WalletDetails, error)
	SetPinHash(ctx context.Context, walletID uuid.UUID, hash string) error
	LockUser(ctx context.Context, userID uuid.UUID) error
}

// Accounts creates ledger accounts.
type Accounts interface {
	CreateWalletAccount(id ledger.AccountID) error
}

// Config holds service dependencies.
type Config struct {
	DB      db.TxRunner
	Wallets Wallets
	// WalletsTx binds the wallet storage to a transaction.
	WalletsTx func(tx pgx.Tx) Wallets
	// Ledger is optional; without it wallets are created without a ledger account.
	Ledger  Accounts
	PinCost int
	Logger  *zap.Logger
}

// Service provisions wallets and PINs.
type Service struct {
	cfg    Config
	logger *zap.Logger
}

// New creates a provisioning service.
func New(cfg Config) *Service {
	if cfg.PinCost == 0 {
		cfg.PinCost = bcrypt.DefaultCost
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{cfg: cfg, logger: logger}
}

// ActivateWallet provisions the user's wallet. Concurrent activations for the
// same user are serialized and all return the same wallet.
func (s *Service) ActivateWallet(ctx context.Context, userID uuid.UUID, currency string) (*models.WalletDetails, error) {
	cur := ledger.CurrencyFromString(currency)
	if cur == 0 {
		return nil, ErrUnsupportedCurrency
	}

	wallet, err := db.WithTxResult(ctx, s.cfg.DB, func(tx pgx.Tx) (*models.WalletDetails, error) {
		wallets := s.cfg.WalletsTx(tx)
		if err := wallets.LockUser(ctx, userID); err != nil {
			return nil, err
		}

		existing, err := wallets.GetByUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}

		params := models.CreateWalletParams{
			UserID:        userID,
			Currency:      currency,
			AccountNumber: accountNumber(uuid.New()),
		}
		if s.cfg.Ledger != nil {
			accountID := ledger.NewAccountIDFromUUID(userID, ledger.AccountTypeUserWallet, cur)
			if err := s.cfg.Ledger.CreateWalletAccount(accountID); err != nil {
				return nil, fmt.Errorf("create ledger account: %w", err)
			}
			params.LedgerAccountID = accountID.ToBigInt()
		}
		return wallets.Create(ctx, params)
	})
	if err != nil {
		return nil, fmt.Errorf("activate wallet: %w", err)
	}

	s.logger.Info("wallet activated",
		zap.String("user_id", userID.String()),
		zap.String("wallet_id", wallet.ID.String()),
		zap.String("currency", wallet.Currency),
	)
	return wallet, nil
}

// SetPin stores a hash of the user's transaction PIN.
func (s *Service) SetPin(ctx context.Context, userID uuid.UUID, pin string) error {
	if !validPin(pin) {
		return ErrInvalidPin
	}

	wallet, err := s.cfg.Wallets.GetByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("set pin: %w", err)
	}
	if wallet == nil {
		return ErrWalletNotFound
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pin), s.cfg.PinCost)
	if err != nil {
		return fmt.Errorf("hash pin: %w", err)
	}
	if err := s.cfg.Wallets.SetPinHash(ctx, wallet.ID, string(hash)); err != nil {
		return fmt.Errorf("set pin: %w", err)
	}

	s.logger.Info("transaction pin set", zap.String("user_id", userID.String()))
	return nil
}

func validPin(pin string) bool {
	if len(pin) < 4 || len(pin) > 6 {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// accountNumber derives a 10-digit account number from a random UUID.
func accountNumber(id uuid.UUID) string {
	n := binary.BigEndian.Uint64(id[8:16]) % 10_000_000_000
	return fmt.Sprintf("%010d", n)
}
