// Package readiness decides whether a user may use the capture/payment feature.
//
// The decision is made by Reduce, a pure function of the session Memory, the
// latest Inputs and the current time. Orchestrator adapts Reduce to the three
// asynchronous status sources and the persistent flag store.
package readiness

import (
	"time"

	"walletgate/internal/models"
)

// DefaultSetPinDebounce is how long a SET_PIN re-show is suppressed after it was opened.
const DefaultSetPinDebounce = 2 * time.Second

// Options tune the reducer.
type Options struct {
	// Enabled is the feature flag. When false the gate never blocks.
	Enabled bool
	// SoftFailVerification grants provisional access when the verification
	// source fails before reporting any status, as the wallet rule does.
	SoftFailVerification bool
	// SetPinDebounce absorbs PIN source flapping.
	SetPinDebounce time.Duration
}

// DefaultOptions returns the production options.
func DefaultOptions() Options {
	return Options{
		Enabled:              true,
		SoftFailVerification: true,
		SetPinDebounce:       DefaultSetPinDebounce,
	}
}

// Reduce evaluates the gating rules against in and returns the decision and
// the memory to carry into the next evaluation. It performs no I/O and never
// reads the clock; now is supplied by the caller.
//
// Rules are evaluated top to bottom and the first match wins:
//
//  1. unauthenticated or no credential: idle, nothing usable
//  2. feature disabled or user inside the verification sub-flow: paused
//  3. user dismissed the gate: usable, no modal for the rest of the session
//  4. verification still loading: spinner
//  5. fresh registration: NEEDS_VERIFICATION once, feature usable
//  6. verification: advance to WALLET or ask for verification
//  7. wallet: advance to PIN, ask for activation, or soft-fail
//  8. pin: complete, or ask for a PIN
//  9. complete
func Reduce(mem Memory, in models.Inputs, now time.Time, opts Options) (models.State, Memory) {
	mem.Phase = mem.Phase.Max(models.PhaseVerification)
	if mem.Open == "" {
		mem.Open = models.ModalNone
	}

	r := &reducer{mem: mem, now: now, opts: opts}
	state := r.evaluate(in)
	return state, r.mem
}

type reducer struct {
	mem  Memory
	now  time.Time
	opts Options
}

func (r *reducer) evaluate(in models.Inputs) models.State {
	if !in.Authenticated || !in.HasCredential {
		return r.settle(false, false)
	}

	if !r.opts.Enabled || in.Flags.InSubVerificationFlow {
		return r.settle(true, false)
	}

	if in.Flags.UserDismissedGate {
		return r.settle(true, false)
	}

	if in.Verification.Loading && r.mem.Phase == models.PhaseVerification {
		return r.settle(false, true)
	}

	if in.Flags.FreshRegistration {
		return r.present(models.ModalNeedsVerification, true)
	}

	if r.mem.Phase == models.PhaseVerification {
		if st, done := r.verification(in); done {
			return st
		}
	}

	if r.mem.Phase == models.PhaseWallet {
		if st, done := r.wallet(in.Wallet); done {
			return st
		}
	}

	if r.mem.Phase == models.PhasePin {
		if st, done := r.pin(in.Pin); done {
			return st
		}
	}

	return r.settle(true, false)
}

func (r *reducer) verification(in models.Inputs) (models.State, bool) {
	v := in.Verification
	if v.OverallVerified {
		r.advance(models.PhaseWallet)
		return models.State{}, false
	}

	if v.Error && !v.HasData() && r.opts.SoftFailVerification {
		return r.provisional(), true
	}

	kind := models.ModalNeedsVerification
	switch {
	case v.Status.IsTerminal() || in.Flags.SupportRequired:
		kind = models.ModalContactSupport
	case v.Status == models.VerificationStatusUnderReview:
		kind = models.ModalPendingReview
	}
	return r.present(kind, false), true
}

func (r *reducer) wallet(w models.WalletInput) (models.State, bool) {
	switch {
	case w.Details != nil:
		r.advance(models.PhasePin)
		return models.State{}, false
	case w.Error != nil && w.Error.IsNotFound:
		return r.present(models.ModalWalletActivation, true), true
	case w.Error != nil:
		// Transfers re-surface the error at the point of use.
		return r.provisional(), true
	default:
		return r.settle(false, true), true
	}
}

func (r *reducer) pin(p models.PinInput) (models.State, bool) {
	switch {
	case p.HasPinSet:
		r.advance(models.PhaseComplete)
		return models.State{}, false
	case p.Loading:
		return r.settle(true, true), true
	case p.WalletExists:
		return r.present(models.ModalSetPin, true), true
	default:
		return r.settle(true, false), true
	}
}

func (r *reducer) advance(p models.Phase) {
	r.mem.Phase = r.mem.Phase.Max(p)
}

// settle emits a decision without a modal; any open modal is closed programmatically.
func (r *reducer) settle(enabled, loading bool) models.State {
	r.mem.Open = models.ModalNone
	return models.State{
		Phase:                   r.mem.Phase,
		FunctionalityEnabled:    enabled,
		LoadingIndicatorVisible: loading,
		ActiveModal:             models.ModalNone,
	}
}

func (r *reducer) provisional() models.State {
	st := r.settle(true, false)
	st.Provisional = true
	return st
}

// present resolves a candidate modal against what this session already showed.
func (r *reducer) present(kind models.ModalKind, enabled bool) models.State {
	st := models.State{
		Phase:                        r.mem.Phase,
		FunctionalityEnabled:         enabled,
		ActiveModal:                  models.ModalNone,
		ModalAlreadyShownThisSession: true,
	}

	switch {
	case r.mem.Open == kind:
		st.ActiveModal = kind
	case r.mem.dismissed.has(kind), r.mem.shown.has(kind):
		r.mem.Open = models.ModalNone
	case kind == models.ModalSetPin && r.setPinDebounced():
		r.mem.Open = models.ModalNone
	default:
		r.mem.Open = kind
		r.mem.shown = r.mem.shown.with(kind)
		if kind == models.ModalSetPin {
			r.mem.SetPinShownAt = r.now
		}
		st.ActiveModal = kind
	}
	return st
}

func (r *reducer) setPinDebounced() bool {
	if r.mem.SetPinShownAt.IsZero() || r.opts.SetPinDebounce <= 0 {
		return false
	}
	return r.now.Sub(r.mem.SetPinShownAt) < r.opts.SetPinDebounce
}
