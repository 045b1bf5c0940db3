package repository

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"walletgate/internal/db"
	"walletgate/internal/models"
)

const walletColumns = `id, user_id, currency, account_number, tb_account_id, status, pin_hash IS NOT NULL, created_at, updated_at`

// WalletRepository handles wallet data access.
type WalletRepository struct {
	q db.Querier
}

// NewWalletRepository creates a new wallet repository.
func NewWalletRepository(q db.Querier) *WalletRepository {
	return &WalletRepository{q: q}
}

// WithTx returns a repository bound to tx.
func (r *WalletRepository) WithTx(tx pgx.Tx) *WalletRepository {
	return &WalletRepository{q: tx}
}

// Create creates a new wallet.
func (r *WalletRepository) Create(ctx context.Context, params models.CreateWalletParams) (*models.WalletDetails, error) {
	query := `
		INSERT INTO wallets (user_id, currency, account_number, tb_account_id)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + walletColumns

	// Convert big.Int to pgtype.Numeric
	tbAccountID := pgtype.Numeric{}
	if params.LedgerAccountID != nil {
		if err := tbAccountID.Scan(params.LedgerAccountID.String()); err != nil {
			return nil, fmt.Errorf("encode ledger account id: %w", err)
		}
	}

	row := r.q.QueryRow(ctx, query,
		params.UserID,
		params.Currency,
		params.AccountNumber,
		tbAccountID,
	)

	w, err := r.scan(row)
	if err != nil {
		return nil, fmt.Errorf("insert wallet: %w", err)
	}
	return w, nil
}

// GetByUser retrieves the user's primary (oldest) wallet.
func (r *WalletRepository) GetByUser(ctx context.Context, userID uuid.UUID) (*models.WalletDetails, error) {
	query := `
		SELECT ` + walletColumns + `
		FROM wallets
		WHERE user_id = $1
		ORDER BY created_at
		LIMIT 1`

	wallet, err := r.scan(r.q.QueryRow(ctx, query, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return wallet, nil
}

// PinStatus reports whether the user has a wallet and whether its PIN is set.
func (r *WalletRepository) PinStatus(ctx context.Context, userID uuid.UUID) (*models.PinStatus, error) {
	w, err := r.GetByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return &models.PinStatus{}, nil
	}
	return &models.PinStatus{WalletExists: true, HasPinSet: w.HasPin}, nil
}

// SetPinHash stores the transaction PIN hash for a wallet.
func (r *WalletRepository) SetPinHash(ctx context.Context, walletID uuid.UUID, hash string) error {
	query := `
		UPDATE wallets
		SET pin_hash = $2, updated_at = NOW()
		WHERE id = $1`

	tag, err := r.q.Exec(ctx, query, walletID, hash)
	if err != nil {
		return fmt.Errorf("set pin: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// LockUser takes a transaction-scoped advisory lock on the user's wallets.
// It must run inside a transaction.
func (r *WalletRepository) LockUser(ctx context.Context, userID uuid.UUID) error {
	if _, err := r.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1::text))`, userID); err != nil {
		return fmt.Errorf("lock user wallets: %w", err)
	}
	return nil
}

func (r *WalletRepository) scan(s scanner) (*models.WalletDetails, error) {
	var w models.WalletDetails
	var tbAccountID pgtype.Numeric

	err := s.Scan(
		&w.ID,
		&w.UserID,
		&w.Currency,
		&w.AccountNumber,
		&tbAccountID,
		&w.Status,
		&w.HasPin,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	// Convert pgtype.Numeric to big.Int
	if tbAccountID.Valid && tbAccountID.Int != nil {
		w.LedgerAccountID = new(big.Int).Set(tbAccountID.Int)
	}

	return &w, nil
}
