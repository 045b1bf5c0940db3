package readiness

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"walletgate/internal/flagstore"
	"walletgate/internal/modal"
	"walletgate/internal/models"
	"walletgate/internal/source"
)

type harness struct {
	userID       uuid.UUID
	store        *flagstore.MemoryStore
	verification *source.Static[models.VerificationRecord]
	wallet       *source.Static[models.WalletStatus]
	pin          *source.Static[models.PinStatus]
	orch         *Orchestrator
	gate         *modal.Gate
	presenter    *modal.Recorder

	mu     sync.Mutex
	now    time.Time
	states []models.State
}

func newHarness(t *testing.T, store flagstore.Store) *harness {
	t.Helper()

	h := &harness{
		userID:       uuid.New(),
		verification: source.NewStatic[models.VerificationRecord](),
		wallet:       source.NewStatic[models.WalletStatus](),
		pin:          source.NewStatic[models.PinStatus](),
		now:          t0,
	}
	if store == nil {
		h.store = flagstore.NewMemoryStore()
		store = h.store
	}

	h.orch = New(Config{
		UserID:       h.userID,
		Store:        store,
		Verification: h.verification,
		Wallet:       h.wallet,
		Pin:          h.pin,
		Options:      DefaultOptions(),
		Now:          h.clock,
		Logger:       zaptest.NewLogger(t),
	})
	h.presenter = modal.NewRecorder()
	h.gate = modal.NewGate(h.presenter, h.orch, zaptest.NewLogger(t))
	h.orch.Subscribe(h.gate.Apply)
	h.orch.Subscribe(func(st models.State) {
		h.mu.Lock()
		h.states = append(h.states, st)
		h.mu.Unlock()
	})
	return h
}

func (h *harness) clock() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.now
}

func (h *harness) advance(d time.Duration) {
	h.mu.Lock()
	h.now = h.now.Add(d)
	h.mu.Unlock()
}

func (h *harness) emitted() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.states)
}

func (h *harness) flag(t *testing.T, flag flagstore.Flag) bool {
	t.Helper()
	v, ok, err := h.store.Get(context.Background(), flagstore.Key(h.userID, flag))
	require.NoError(t, err)
	return ok && v == "true"
}

func (h *harness) setFlag(t *testing.T, flag flagstore.Flag) {
	t.Helper()
	require.NoError(t, h.store.Set(context.Background(), flagstore.Key(h.userID, flag), "true"))
}

func (h *harness) verify() {
	h.verification.SetData(models.VerificationRecord{UserID: h.userID, Status: models.VerificationStatusVerified})
}

func (h *harness) provisionWallet() {
	h.wallet.SetData(models.WalletStatus{Details: models.WalletDetails{ID: uuid.New(), UserID: h.userID, Currency: "EUR"}})
}

func TestIdleBeforeLogin(t *testing.T) {
	h := newHarness(t, nil)
	assert.Equal(t, models.IdleState(), h.orch.State())

	h.verify()
	assert.Equal(t, 0, h.emitted(), "sources are ignored before login")
}

func TestLoginWalksThroughStages(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.orch.OnLogin(ctx, Credentials{HasCredential: true})
	st := h.orch.State()
	assert.True(t, st.LoadingIndicatorVisible)
	assert.False(t, st.FunctionalityEnabled)

	h.verify()
	st = h.orch.State()
	assert.Equal(t, models.PhaseWallet, st.Phase)
	assert.True(t, st.LoadingIndicatorVisible)

	h.wallet.SetError(source.NotFound("wallet not found"))
	assert.Equal(t, models.ModalWalletActivation, h.orch.State().ActiveModal)
	assert.Equal(t, models.ModalWalletActivation, h.presenter.Visible())

	h.provisionWallet()
	h.pin.SetData(models.PinStatus{WalletExists: true})
	st = h.orch.State()
	assert.Equal(t, models.ModalSetPin, st.ActiveModal)
	assert.Equal(t, models.ModalSetPin, h.presenter.Visible())

	h.pin.SetData(models.PinStatus{WalletExists: true, HasPinSet: true})
	st = h.orch.State()
	assert.Equal(t, models.PhaseComplete, st.Phase)
	assert.True(t, st.FunctionalityEnabled)
	assert.Equal(t, models.ModalNone, h.presenter.Visible())
}

func TestNoCredentialStaysIdle(t *testing.T) {
	h := newHarness(t, nil)
	h.orch.OnLogin(context.Background(), Credentials{})
	h.verify()

	st := h.orch.State()
	assert.False(t, st.FunctionalityEnabled)
	assert.Equal(t, models.ModalNone, st.ActiveModal)
}

func TestSetPinShownOnceAcrossDuplicateEmissions(t *testing.T) {
	h := newHarness(t, nil)
	h.verify()
	h.provisionWallet()
	h.pin.SetData(models.PinStatus{WalletExists: true})

	h.orch.OnLogin(context.Background(), Credentials{HasCredential: true})
	require.Equal(t, models.ModalSetPin, h.orch.State().ActiveModal)

	h.advance(time.Second)
	h.pin.SetData(models.PinStatus{WalletExists: true})
	h.wallet.SetData(models.WalletStatus{Details: models.WalletDetails{ID: uuid.New(), Currency: "EUR"}})

	assert.Equal(t, 1, h.gate.ShowCount(models.ModalSetPin))
}

func TestRevisionsIncrease(t *testing.T) {
	h := newHarness(t, nil)
	h.orch.OnLogin(context.Background(), Credentials{HasCredential: true})
	h.verify()
	h.provisionWallet()

	h.mu.Lock()
	defer h.mu.Unlock()
	require.NotEmpty(t, h.states)
	for i := 1; i < len(h.states); i++ {
		assert.Greater(t, h.states[i].Revision, h.states[i-1].Revision)
	}
}

func TestFreshRegistrationFromStore(t *testing.T) {
	h := newHarness(t, nil)
	h.setFlag(t, flagstore.FlagFreshRegistration)
	h.verify()

	h.orch.OnLogin(context.Background(), Credentials{HasCredential: true})
	st := h.orch.State()
	assert.Equal(t, models.ModalNeedsVerification, st.ActiveModal)
	assert.True(t, st.FunctionalityEnabled)
}

func TestSubFlow(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.setFlag(t, flagstore.FlagFreshRegistration)
	h.verification.SetData(models.VerificationRecord{Status: models.VerificationStatusPending})
	h.orch.OnLogin(ctx, Credentials{HasCredential: true})

	h.orch.OnSubFlowEntered(ctx)
	st := h.orch.State()
	assert.True(t, st.FunctionalityEnabled)
	assert.Equal(t, models.ModalNone, st.ActiveModal)
	assert.True(t, h.flag(t, flagstore.FlagInSubVerificationFlow))

	h.orch.OnSubFlowExited(ctx)
	assert.False(t, h.flag(t, flagstore.FlagInSubVerificationFlow))
	assert.False(t, h.flag(t, flagstore.FlagFreshRegistration))

	st = h.orch.State()
	assert.Equal(t, models.ModalNone, st.ActiveModal, "already shown this session")
	assert.True(t, st.ModalAlreadyShownThisSession)
	assert.False(t, st.FunctionalityEnabled)
	assert.Equal(t, 1, h.gate.ShowCount(models.ModalNeedsVerification))
}

func TestDismissedGateSuppressesEverything(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.verification.SetData(models.VerificationRecord{Status: models.VerificationStatusRejected})
	h.orch.OnLogin(ctx, Credentials{HasCredential: true})
	require.Equal(t, models.ModalContactSupport, h.orch.State().ActiveModal)

	h.orch.OnUserDismissedGate(ctx)
	assert.True(t, h.flag(t, flagstore.FlagUserDismissedGate))
	assert.Equal(t, models.ModalNone, h.presenter.Visible())

	h.verify()
	h.wallet.SetError(source.NotFound("no wallet"))
	h.provisionWallet()
	h.pin.SetData(models.PinStatus{WalletExists: true})

	h.mu.Lock()
	last := h.states[len(h.states)-1]
	h.mu.Unlock()
	assert.Equal(t, models.ModalNone, last.ActiveModal)
	assert.True(t, last.FunctionalityEnabled)
}

func TestSupportRequiredPersistsAndClears(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.verification.SetData(models.VerificationRecord{Status: models.VerificationStatusRejected})
	h.orch.OnLogin(ctx, Credentials{HasCredential: true})

	assert.Equal(t, models.ModalContactSupport, h.orch.State().ActiveModal)
	assert.True(t, h.flag(t, flagstore.FlagSupportRequired))

	h.verify()
	assert.Equal(t, models.PhaseWallet, h.orch.State().Phase)
	assert.False(t, h.flag(t, flagstore.FlagSupportRequired))
}

func TestUserCloseBlocksUntilRetrigger(t *testing.T) {
	h := newHarness(t, nil)
	h.verify()
	h.wallet.SetError(source.NotFound("no wallet"))
	h.orch.OnLogin(context.Background(), Credentials{HasCredential: true})
	require.Equal(t, models.ModalWalletActivation, h.presenter.Visible())

	h.gate.Close()
	assert.Equal(t, models.ModalNone, h.orch.State().ActiveModal)

	h.wallet.SetError(source.NotFound("still no wallet"))
	assert.Equal(t, models.ModalNone, h.presenter.Visible())
	assert.Equal(t, 1, h.gate.ShowCount(models.ModalWalletActivation))

	h.orch.Retrigger(models.ModalWalletActivation)
	assert.Equal(t, models.ModalWalletActivation, h.presenter.Visible())
	assert.Equal(t, 2, h.gate.ShowCount(models.ModalWalletActivation))
}

func TestStatusFlapShowsEachModalOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.verification.SetData(models.VerificationRecord{Status: models.VerificationStatusUnderReview})
	h.orch.OnLogin(context.Background(), Credentials{HasCredential: true})
	require.Equal(t, models.ModalPendingReview, h.presenter.Visible())

	h.verification.SetData(models.VerificationRecord{Status: models.VerificationStatusPending})
	assert.Equal(t, models.ModalNeedsVerification, h.presenter.Visible())

	h.advance(5 * time.Second)
	h.verification.SetData(models.VerificationRecord{Status: models.VerificationStatusUnderReview})
	assert.Equal(t, models.ModalNone, h.presenter.Visible())
	assert.False(t, h.orch.State().FunctionalityEnabled)

	h.advance(5 * time.Second)
	h.verification.SetData(models.VerificationRecord{Status: models.VerificationStatusPending})
	assert.Equal(t, models.ModalNone, h.presenter.Visible())

	assert.Equal(t, 1, h.gate.ShowCount(models.ModalPendingReview))
	assert.Equal(t, 1, h.gate.ShowCount(models.ModalNeedsVerification))

	h.orch.Retrigger(models.ModalNeedsVerification)
	assert.Equal(t, models.ModalNeedsVerification, h.presenter.Visible())
	assert.Equal(t, 2, h.gate.ShowCount(models.ModalNeedsVerification))
}

func TestSubFlowRoundTripDoesNotReshow(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.verification.SetData(models.VerificationRecord{Status: models.VerificationStatusPending})
	h.orch.OnLogin(ctx, Credentials{HasCredential: true})
	require.Equal(t, models.ModalNeedsVerification, h.presenter.Visible())

	h.orch.OnSubFlowEntered(ctx)
	assert.Equal(t, models.ModalNone, h.presenter.Visible())
	h.orch.OnSubFlowExited(ctx)

	assert.Equal(t, models.ModalNone, h.presenter.Visible())
	assert.Equal(t, 1, h.gate.ShowCount(models.ModalNeedsVerification))
}

// emitOnSubscribe publishes data just before a subscriber registers, so the
// subscriber never sees that emission.
type emitOnSubscribe struct {
	*source.Static[models.VerificationRecord]
	rec models.VerificationRecord
}

func (s emitOnSubscribe) Subscribe(fn func(source.Snapshot[models.VerificationRecord])) func() {
	s.Static.SetData(s.rec)
	return s.Static.Subscribe(fn)
}

func TestLoginSeesEmissionDuringSubscribe(t *testing.T) {
	verification := emitOnSubscribe{
		Static: source.NewStatic[models.VerificationRecord](),
		rec:    models.VerificationRecord{Status: models.VerificationStatusVerified},
	}
	orch := New(Config{
		UserID:       uuid.New(),
		Store:        flagstore.NewMemoryStore(),
		Verification: verification,
		Options:      DefaultOptions(),
		Now:          func() time.Time { return t0 },
		Logger:       zaptest.NewLogger(t),
	})

	orch.OnLogin(context.Background(), Credentials{HasCredential: true})
	assert.Equal(t, models.PhaseWallet, orch.State().Phase)
}

func TestLogout(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.setFlag(t, flagstore.FlagSupportRequired)
	h.orch.OnLogin(ctx, Credentials{HasCredential: true})
	h.orch.OnUserDismissedGate(ctx)
	h.orch.OnSubFlowEntered(ctx)

	h.orch.OnLogout(ctx)
	st := h.orch.State()
	assert.True(t, st.Equal(models.IdleState()))
	assert.False(t, h.flag(t, flagstore.FlagUserDismissedGate))
	assert.False(t, h.flag(t, flagstore.FlagInSubVerificationFlow))
	assert.True(t, h.flag(t, flagstore.FlagSupportRequired), "support_required outlives the session")

	n := h.emitted()
	h.verify()
	h.provisionWallet()
	h.orch.OnUserDismissedGate(ctx)
	assert.Equal(t, n, h.emitted(), "no evaluation after logout")
	assert.False(t, h.flag(t, flagstore.FlagUserDismissedGate))
}

func TestLoginAgainAfterLogout(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.verification.SetData(models.VerificationRecord{Status: models.VerificationStatusPending})

	h.orch.OnLogin(ctx, Credentials{HasCredential: true})
	h.gate.Close()
	require.Equal(t, models.ModalNone, h.orch.State().ActiveModal)

	h.orch.OnLogout(ctx)
	h.orch.OnLogin(ctx, Credentials{HasCredential: true})
	assert.Equal(t, models.ModalNeedsVerification, h.orch.State().ActiveModal, "dismissals are per session")
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("connection refused")
}
func (failingStore) Set(context.Context, string, string) error { return errors.New("connection refused") }
func (failingStore) Delete(context.Context, string) error      { return errors.New("connection refused") }

func TestFlagStoreFailureDoesNotBlock(t *testing.T) {
	h := newHarness(t, failingStore{})
	ctx := context.Background()
	h.verify()
	h.provisionWallet()
	h.pin.SetData(models.PinStatus{WalletExists: true, HasPinSet: true})

	h.orch.OnLogin(ctx, Credentials{HasCredential: true})
	h.orch.OnUserDismissedGate(ctx)

	st := h.orch.State()
	assert.True(t, st.FunctionalityEnabled)
	assert.Equal(t, models.ModalNone, st.ActiveModal)

	h.orch.OnLogout(ctx)
}

func TestConcurrentSourceUpdates(t *testing.T) {
	h := newHarness(t, nil)
	h.orch.OnLogin(context.Background(), Credentials{HasCredential: true})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func() { defer wg.Done(); h.verify() }()
		go func() { defer wg.Done(); h.provisionWallet() }()
		go func() { defer wg.Done(); h.pin.SetData(models.PinStatus{WalletExists: true}) }()
	}
	wg.Wait()

	h.pin.SetData(models.PinStatus{WalletExists: true})
	assert.Equal(t, models.ModalSetPin, h.orch.State().ActiveModal)
	assert.Equal(t, models.ModalSetPin, h.presenter.Visible())
	assert.Equal(t, 1, h.gate.ShowCount(models.ModalSetPin))
}
