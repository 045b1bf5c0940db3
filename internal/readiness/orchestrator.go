package readiness

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"walletgate/internal/flagstore"
	"walletgate/internal/metrics"
	"walletgate/internal/models"
	"walletgate/internal/source"
)

const flagWriteTimeout = 5 * time.Second

// Credentials describe the authenticated user at login.
type Credentials struct {
	HasCredential bool
}

// Config holds orchestrator dependencies.
type Config struct {
	UserID       uuid.UUID
	Store        flagstore.Store
	Verification source.Source[models.VerificationRecord]
	Wallet       source.Source[models.WalletStatus]
	Pin          source.Source[models.PinStatus]
	Options      Options
	Now          func() time.Time
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
}

// Orchestrator feeds the latest value of every input into Reduce and
// publishes the resulting State. Evaluations are serialized; flag store I/O
// and subscriber callbacks run outside the critical section.
type Orchestrator struct {
	cfg     Config
	flags   *flagstore.Flags
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	lifecycle sync.Mutex

	mu          sync.Mutex
	active      bool
	inputs      models.Inputs
	mem         Memory
	state       models.State
	revision    uint64
	unsubscribe []func()
	listeners   map[uint64]func(models.State)
	nextID      uint64
}

// New creates an orchestrator in the idle state.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("user_id", cfg.UserID.String()))

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Orchestrator{
		cfg:       cfg,
		flags:     flagstore.NewFlags(cfg.Store, cfg.UserID, logger, cfg.Metrics),
		logger:    logger,
		metrics:   cfg.Metrics,
		now:       now,
		state:     models.IdleState(),
		listeners: make(map[uint64]func(models.State)),
	}
}

// State returns the latest decision.
func (o *Orchestrator) State() models.State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Subscribe registers fn for every published decision.
func (o *Orchestrator) Subscribe(fn func(models.State)) (unsubscribe func()) {
	o.mu.Lock()
	id := o.nextID
	o.nextID++
	o.listeners[id] = fn
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.listeners, id)
		o.mu.Unlock()
	}
}

// OnLogin starts a session: persisted flags are loaded, the status sources are
// subscribed and the first decision is published. Sources are read after
// subscribing; emissions that arrive before the session is active are already
// reflected in Current.
func (o *Orchestrator) OnLogin(ctx context.Context, creds Credentials) {
	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()

	o.mu.Lock()
	active := o.active
	o.mu.Unlock()
	if active {
		return
	}

	flags := o.flags.Load(ctx)

	var unsubs []func()
	if o.cfg.Verification != nil {
		unsubs = append(unsubs, o.cfg.Verification.Subscribe(func(s source.Snapshot[models.VerificationRecord]) {
			o.update(func(in *models.Inputs) { in.Verification = VerificationInput(s) })
		}))
	}
	if o.cfg.Wallet != nil {
		unsubs = append(unsubs, o.cfg.Wallet.Subscribe(func(s source.Snapshot[models.WalletStatus]) {
			o.update(func(in *models.Inputs) { in.Wallet = WalletInput(s) })
		}))
	}
	if o.cfg.Pin != nil {
		unsubs = append(unsubs, o.cfg.Pin.Subscribe(func(s source.Snapshot[models.PinStatus]) {
			o.update(func(in *models.Inputs) { in.Pin = PinInput(s) })
		}))
	}

	o.mu.Lock()
	o.unsubscribe = unsubs
	o.mem = Memory{}
	o.inputs = models.Inputs{
		Authenticated: true,
		HasCredential: creds.HasCredential,
		Flags:         flags,
	}
	if o.cfg.Verification != nil {
		o.inputs.Verification = VerificationInput(o.cfg.Verification.Current())
	}
	if o.cfg.Wallet != nil {
		o.inputs.Wallet = WalletInput(o.cfg.Wallet.Current())
	}
	if o.cfg.Pin != nil {
		o.inputs.Pin = PinInput(o.cfg.Pin.Current())
	}
	o.active = true
	o.mu.Unlock()

	o.logger.Info("readiness session started",
		zap.Bool("has_credential", creds.HasCredential),
		zap.Bool("fresh_registration", flags.FreshRegistration),
		zap.Bool("user_dismissed_gate", flags.UserDismissedGate),
	)
	o.update(func(*models.Inputs) {})
}

// OnLogout unsubscribes every source, clears the session flags and resets to
// idle. No evaluation runs after OnLogout returns.
func (o *Orchestrator) OnLogout(ctx context.Context) {
	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()

	o.mu.Lock()
	if !o.active {
		o.mu.Unlock()
		return
	}
	o.active = false
	unsubs := o.unsubscribe
	o.unsubscribe = nil
	o.inputs = models.Inputs{}
	o.mem = Memory{}
	o.revision++
	o.state = models.IdleState()
	o.state.Revision = o.revision
	st := o.state
	listeners := o.snapshotListeners()
	o.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	for _, fn := range listeners {
		fn(st)
	}

	o.flags.Clear(ctx, flagstore.SessionFlags...)
	o.logger.Info("readiness session ended")
}

// OnUserDismissedGate suppresses every automatic modal for the rest of the session.
func (o *Orchestrator) OnUserDismissedGate(ctx context.Context) {
	if !o.update(func(in *models.Inputs) { in.Flags.UserDismissedGate = true }) {
		return
	}
	o.flags.Set(ctx, flagstore.FlagUserDismissedGate, true)
}

// OnSubFlowEntered pauses evaluation while the user is in the verification flow.
func (o *Orchestrator) OnSubFlowEntered(ctx context.Context) {
	if !o.update(func(in *models.Inputs) { in.Flags.InSubVerificationFlow = true }) {
		return
	}
	o.flags.Set(ctx, flagstore.FlagInSubVerificationFlow, true)
}

// OnSubFlowExited resumes evaluation. The registration is no longer fresh once
// the user has been through the verification flow.
func (o *Orchestrator) OnSubFlowExited(ctx context.Context) {
	if !o.update(func(in *models.Inputs) {
		in.Flags.InSubVerificationFlow = false
		in.Flags.FreshRegistration = false
	}) {
		return
	}
	o.flags.Clear(ctx, flagstore.FlagInSubVerificationFlow, flagstore.FlagFreshRegistration)
}

// OnModalClosed records that kind was hidden. Only a user-initiated close
// stops the kind from being shown automatically again.
func (o *Orchestrator) OnModalClosed(kind models.ModalKind, userInitiated bool) {
	if !userInitiated {
		o.mu.Lock()
		o.mem = o.mem.Close(kind)
		o.mu.Unlock()
		return
	}
	o.logger.Debug("modal dismissed by user", zap.String("modal", string(kind)))
	o.evaluateWith(func(in *models.Inputs, mem *Memory) {
		*mem = mem.Dismiss(kind)
	})
}

// Retrigger lets the user ask again for a modal already shown or dismissed.
func (o *Orchestrator) Retrigger(kind models.ModalKind) {
	o.evaluateWith(func(in *models.Inputs, mem *Memory) {
		*mem = mem.Retrigger(kind)
	})
}

// update applies fn to the inputs and re-evaluates. It returns false if the
// session is not active.
func (o *Orchestrator) update(fn func(*models.Inputs)) bool {
	return o.evaluateWith(func(in *models.Inputs, _ *Memory) { fn(in) })
}

func (o *Orchestrator) evaluateWith(fn func(*models.Inputs, *Memory)) bool {
	o.mu.Lock()
	if !o.active {
		o.mu.Unlock()
		return false
	}

	fn(&o.inputs, &o.mem)

	prevOpen := o.mem.Open
	prev := o.state
	st, mem := Reduce(o.mem, o.inputs, o.now(), o.cfg.Options)
	o.mem = mem
	o.revision++
	st.Revision = o.revision
	o.state = st

	persistSupport := st.ActiveModal == models.ModalContactSupport && !o.inputs.Flags.SupportRequired
	if persistSupport {
		o.inputs.Flags.SupportRequired = true
	}
	clearSupport := o.inputs.Flags.SupportRequired && st.Phase != models.PhaseVerification
	if clearSupport {
		o.inputs.Flags.SupportRequired = false
	}

	listeners := o.snapshotListeners()
	o.mu.Unlock()

	o.metrics.Evaluation(st.Phase)
	if !st.ActiveModal.IsNone() && st.ActiveModal != prevOpen {
		o.metrics.ModalShown(st.ActiveModal)
	}
	if !st.Equal(prev) {
		o.logger.Debug("readiness changed",
			zap.String("phase", string(st.Phase)),
			zap.String("modal", string(st.ActiveModal)),
			zap.Bool("functionality_enabled", st.FunctionalityEnabled),
			zap.Bool("loading", st.LoadingIndicatorVisible),
			zap.Bool("provisional", st.Provisional),
			zap.Uint64("revision", st.Revision),
		)
	}

	for _, l := range listeners {
		l(st)
	}

	if persistSupport || clearSupport {
		ctx, cancel := context.WithTimeout(context.Background(), flagWriteTimeout)
		o.flags.Set(ctx, flagstore.FlagSupportRequired, persistSupport)
		cancel()
	}
	return true
}

func (o *Orchestrator) snapshotListeners() []func(models.State) {
	out := make([]func(models.State), 0, len(o.listeners))
	for _, l := range o.listeners {
		out = append(out, l)
	}
	return out
}
