package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"walletgate/internal/config"
	"walletgate/internal/db"
	"walletgate/internal/flagstore"
	"walletgate/internal/handler"
	"walletgate/internal/metrics"
	"walletgate/internal/models"
	"walletgate/internal/provisioning"
	"walletgate/internal/proximity"
	"walletgate/internal/readiness"
	"walletgate/internal/repository"
	"walletgate/internal/server"
	"walletgate/internal/session"
	"walletgate/internal/status"
)

// testContext holds test dependencies
type testContext struct {
	database *db.DB
	flags    *flagstore.SQLiteStore
	sessions *session.Manager
	handler  http.Handler
	logger   *zap.Logger
}

func setupTestContext(t *testing.T) *testContext {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	database, err := db.New(ctx, config.DatabaseConfig{URL: dbURL, MaxConns: 5})
	require.NoError(t, err, "failed to connect to database")

	migration, err := os.ReadFile(filepath.Join("..", "migrations", "001_readiness.sql"))
	require.NoError(t, err)
	_, err = database.Pool().Exec(ctx, string(migration))
	require.NoError(t, err, "failed to apply migration")

	flags, err := flagstore.OpenSQLite(filepath.Join(t.TempDir(), "flags.db"))
	require.NoError(t, err)

	logger := zaptest.NewLogger(t)
	walletRepo := repository.NewWalletRepository(database.Pool())
	merchantRepo := repository.NewMerchantRepository(database.Pool())

	provisioner := provisioning.New(provisioning.Config{
		DB:      database,
		Wallets: walletRepo,
		WalletsTx: func(tx pgx.Tx) provisioning.Wallets {
			return walletRepo.WithTx(tx)
		},
		PinCost: bcrypt.MinCost,
		Logger:  logger,
	})

	registry := prometheus.NewRegistry()
	sessions := session.NewManager(session.Config{
		Store: flags,
		Status: status.Deps{
			Verifications: repository.NewVerificationRepository(database.Pool()),
			Wallets:       walletRepo,
			Logger:        logger,
		},
		Poll:      status.PollConfig{Interval: 50 * time.Millisecond},
		Readiness: readiness.DefaultOptions(),
		Proximity: session.ProximityConfig{
			Lookup: proximity.LookupFunc(func(ctx context.Context, lat, lon float64) ([]models.Suggestion, error) {
				return merchantRepo.Nearby(ctx, models.Coordinate{Latitude: lat, Longitude: lon}, 500, 5)
			}),
		},
		Logger:  logger,
		Metrics: metrics.New(registry),
	})

	srv := server.New(server.Config{
		Database:    database,
		FlagStore:   flags,
		Sessions:    sessions,
		Provisioner: provisioner,
		Gatherer:    registry,
		Logger:      logger,
	})

	tc := &testContext{
		database: database,
		flags:    flags,
		sessions: sessions,
		handler:  srv.Handler(),
		logger:   logger,
	}
	t.Cleanup(tc.cleanup)
	return tc
}

func (tc *testContext) cleanup() {
	tc.sessions.Close(context.Background())
	tc.flags.Close()
	tc.database.Close()
}

func (tc *testContext) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, "/api/v1"+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	tc.handler.ServeHTTP(w, req)
	return w
}

func (tc *testContext) snapshot(t *testing.T, userID uuid.UUID) session.Snapshot {
	t.Helper()
	w := tc.do(t, http.MethodGet, "/sessions/"+userID.String()+"/readiness", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Data session.Snapshot `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Data
}

func (tc *testContext) waitForModal(t *testing.T, userID uuid.UUID, kind models.ModalKind) session.Snapshot {
	t.Helper()
	var snap session.Snapshot
	require.Eventually(t, func() bool {
		snap = tc.snapshot(t, userID)
		return snap.Visible == kind
	}, 5*time.Second, 25*time.Millisecond, "waiting for %s", kind)
	return snap
}

func (tc *testContext) setVerification(t *testing.T, userID uuid.UUID, st models.VerificationStatus) {
	t.Helper()
	_, err := tc.database.Pool().Exec(context.Background(), `
		INSERT INTO kyc_verifications (user_id, status, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET status = EXCLUDED.status, updated_at = NOW()
	`, userID, string(st))
	require.NoError(t, err)
}

func TestReadinessFlow(t *testing.T) {
	tc := setupTestContext(t)
	userID := uuid.New()
	base := "/sessions/" + userID.String()

	t.Cleanup(func() {
		ctx := context.Background()
		tc.database.Pool().Exec(ctx, `DELETE FROM wallets WHERE user_id = $1`, userID)
		tc.database.Pool().Exec(ctx, `DELETE FROM kyc_verifications WHERE user_id = $1`, userID)
	})

	t.Run("1_LoginWithoutVerification", func(t *testing.T) {
		w := tc.do(t, http.MethodPost, "/sessions", handler.LoginRequest{UserID: userID, HasCredential: true})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		snap := tc.waitForModal(t, userID, models.ModalNeedsVerification)
		assert.False(t, snap.State.FunctionalityEnabled)
		assert.Equal(t, models.PhaseVerification, snap.State.Phase)
	})

	t.Run("2_UnderReview", func(t *testing.T) {
		tc.setVerification(t, userID, models.VerificationStatusUnderReview)
		snap := tc.waitForModal(t, userID, models.ModalPendingReview)
		assert.False(t, snap.State.FunctionalityEnabled)
	})

	t.Run("3_VerifiedNeedsWallet", func(t *testing.T) {
		tc.setVerification(t, userID, models.VerificationStatusVerified)
		snap := tc.waitForModal(t, userID, models.ModalWalletActivation)
		assert.True(t, snap.State.FunctionalityEnabled)
		assert.Equal(t, models.PhaseWallet, snap.State.Phase)
	})

	t.Run("4_ActivateWallet", func(t *testing.T) {
		w := tc.do(t, http.MethodPost, base+"/wallet/activate", handler.ActivateWalletRequest{Currency: "EUR"})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		snap := tc.waitForModal(t, userID, models.ModalSetPin)
		assert.Equal(t, models.PhasePin, snap.State.Phase)

		w = tc.do(t, http.MethodGet, base+"/wallet", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"currency":"EUR"`)
	})

	t.Run("5_SetPin", func(t *testing.T) {
		w := tc.do(t, http.MethodPost, base+"/pin", handler.SetPinRequest{Pin: "abcd"})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = tc.do(t, http.MethodPost, base+"/pin", handler.SetPinRequest{Pin: "482913"})
		require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

		require.Eventually(t, func() bool {
			return tc.snapshot(t, userID).State.Phase == models.PhaseComplete
		}, 5*time.Second, 25*time.Millisecond)
		snap := tc.snapshot(t, userID)
		assert.Equal(t, models.ModalNone, snap.Visible)
		assert.True(t, snap.State.FunctionalityEnabled)
	})

	t.Run("6_PhaseHoldsAfterStatusRegresses", func(t *testing.T) {
		tc.setVerification(t, userID, models.VerificationStatusPending)
		time.Sleep(200 * time.Millisecond)
		snap := tc.snapshot(t, userID)
		assert.Equal(t, models.PhaseComplete, snap.State.Phase)
	})

	t.Run("7_Logout", func(t *testing.T) {
		w := tc.do(t, http.MethodDelete, base+"/", nil)
		assert.Equal(t, http.StatusNoContent, w.Code)

		w = tc.do(t, http.MethodGet, base+"/readiness", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestProximitySuggestions(t *testing.T) {
	tc := setupTestContext(t)
	userID := uuid.New()
	base := "/sessions/" + userID.String()
	ctx := context.Background()

	var merchantID uuid.UUID
	err := tc.database.Pool().QueryRow(ctx, `
		INSERT INTO merchants (name, category, latitude, longitude)
		VALUES ('Warung Sate Senayan', 'food', -6.2251, 106.8012)
		RETURNING id
	`).Scan(&merchantID)
	require.NoError(t, err)
	t.Cleanup(func() {
		tc.database.Pool().Exec(context.Background(), `DELETE FROM merchants WHERE id = $1`, merchantID)
	})

	w := tc.do(t, http.MethodPost, "/sessions", handler.LoginRequest{UserID: userID, HasCredential: true})
	require.Equal(t, http.StatusCreated, w.Code)

	w = tc.do(t, http.MethodPost, base+"/location", handler.LocationRequest{Latitude: -6.2253, Longitude: 106.8010})
	require.Equal(t, http.StatusAccepted, w.Code)

	require.Eventually(t, func() bool {
		w := tc.do(t, http.MethodGet, base+"/suggestions", nil)
		return w.Code == http.StatusOK && bytes.Contains(w.Body.Bytes(), []byte("Warung Sate Senayan"))
	}, 5*time.Second, 25*time.Millisecond)
}
