package models

// VerificationStatus represents the identity verification (KYC) state reported by the backend.
type VerificationStatus string

const (
	VerificationStatusPending     VerificationStatus = "PENDING"
	VerificationStatusInProgress  VerificationStatus = "IN_PROGRESS"
	VerificationStatusUnderReview VerificationStatus = "UNDER_REVIEW"
	VerificationStatusVerified    VerificationStatus = "VERIFIED"
	VerificationStatusApproved    VerificationStatus = "APPROVED"
	VerificationStatusRejected    VerificationStatus = "REJECTED"
)

// IsVerified returns true if the status counts as a completed verification.
func (s VerificationStatus) IsVerified() bool {
	return s == VerificationStatusVerified || s == VerificationStatusApproved
}

// IsTerminal returns true if the status cannot be resolved inside the app.
func (s VerificationStatus) IsTerminal() bool {
	return s == VerificationStatusRejected
}

// IsValid returns true if s is a known status.
func (s VerificationStatus) IsValid() bool {
	switch s {
	case VerificationStatusPending, VerificationStatusInProgress, VerificationStatusUnderReview,
		VerificationStatusVerified, VerificationStatusApproved, VerificationStatusRejected:
		return true
	default:
		return false
	}
}

// Phase represents the readiness stage a session has reached.
// Phases are ordered; a session never moves backwards until logout.
type Phase string

const (
	PhaseVerification Phase = "VERIFICATION"
	PhaseWallet       Phase = "WALLET"
	PhasePin          Phase = "PIN"
	PhaseComplete     Phase = "COMPLETE"
)

// Rank returns the position of the phase in the readiness sequence.
func (p Phase) Rank() int {
	switch p {
	case PhaseWallet:
		return 1
	case PhasePin:
		return 2
	case PhaseComplete:
		return 3
	default:
		return 0
	}
}

// Max returns the later of two phases.
func (p Phase) Max(other Phase) Phase {
	if other.Rank() > p.Rank() {
		return other
	}
	if p == "" {
		return PhaseVerification
	}
	return p
}

// ModalKind identifies a gating dialog.
type ModalKind string

const (
	ModalNone              ModalKind = "NONE"
	ModalNeedsVerification ModalKind = "NEEDS_VERIFICATION"
	ModalPendingReview     ModalKind = "PENDING_REVIEW"
	ModalWalletActivation  ModalKind = "WALLET_ACTIVATION"
	ModalSetPin            ModalKind = "SET_PIN"
	ModalContactSupport    ModalKind = "CONTACT_SUPPORT"
)

// AllowsFunctionality returns true for the dialogs that may be visible while the
// core feature stays usable (degraded-but-usable states).
func (k ModalKind) AllowsFunctionality() bool {
	return k == ModalWalletActivation || k == ModalSetPin
}

// IsNone returns true if no dialog is requested.
func (k ModalKind) IsNone() bool {
	return k == "" || k == ModalNone
}

// ParseModalKind converts a string to a ModalKind.
func ParseModalKind(s string) (ModalKind, bool) {
	switch k := ModalKind(s); k {
	case ModalNone, ModalNeedsVerification, ModalPendingReview,
		ModalWalletActivation, ModalSetPin, ModalContactSupport:
		return k, true
	default:
		return "", false
	}
}
