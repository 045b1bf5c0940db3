package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"walletgate/internal/db"
	"walletgate/internal/models"
)

// VerificationRepository reads identity verification results written by the KYC provider integration.
type VerificationRepository struct {
	q db.Querier
}

// NewVerificationRepository creates a new verification repository.
func NewVerificationRepository(q db.Querier) *VerificationRepository {
	return &VerificationRepository{q: q}
}

// GetByUser retrieves the verification record of a user.
func (r *VerificationRepository) GetByUser(ctx context.Context, userID uuid.UUID) (*models.VerificationRecord, error) {
	query := `
		SELECT user_id, status, identity_verified, biometric_verified, updated_at
		FROM kyc_verifications
		WHERE user_id = $1`

	var rec models.VerificationRecord
	var status string
	err := r.q.QueryRow(ctx, query, userID).Scan(
		&rec.UserID,
		&status,
		&rec.IdentityVerified,
		&rec.BiometricVerified,
		&rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get verification: %w", err)
	}

	rec.Status = models.VerificationStatus(status)
	if !rec.Status.IsValid() {
		return nil, fmt.Errorf("unknown verification status %q", status)
	}
	return &rec, nil
}
