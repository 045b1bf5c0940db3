package models

// Inputs is everything the readiness reducer evaluates. It is rebuilt whenever
// any status source or flag changes.
type Inputs struct {
	Authenticated bool
	HasCredential bool
	Verification  VerificationInput
	Wallet        WalletInput
	Pin           PinInput
	Flags         Flags
}

// VerificationInput is the latest identity verification snapshot.
type VerificationInput struct {
	Status            VerificationStatus
	IdentityVerified  bool
	BiometricVerified bool
	OverallVerified   bool
	Loading           bool
	Error             bool
}

// HasData returns true if a last-known status is available.
func (v VerificationInput) HasData() bool {
	return v.Status != ""
}

// WalletInput is the latest wallet provisioning snapshot.
type WalletInput struct {
	Details *WalletDetails
	Balance *Balance
	Loading bool
	Error   *WalletError
}

// WalletError describes a failed wallet fetch.
type WalletError struct {
	Code       int
	IsNotFound bool
}

// PinInput is the latest transaction-PIN snapshot.
type PinInput struct {
	WalletExists bool
	HasPinSet    bool
	Loading      bool
}

// Flags are the persisted booleans that survive process restarts.
type Flags struct {
	FreshRegistration     bool
	InSubVerificationFlow bool
	UserDismissedGate     bool
	SupportRequired       bool
}

// State is the gating decision. It is the only thing renderers read.
type State struct {
	Phase                        Phase     `json:"phase"`
	FunctionalityEnabled         bool      `json:"functionality_enabled"`
	LoadingIndicatorVisible      bool      `json:"loading_indicator_visible"`
	ActiveModal                  ModalKind `json:"active_modal"`
	ModalAlreadyShownThisSession bool      `json:"modal_already_shown_this_session"`
	Provisional                  bool      `json:"provisional"`
	Revision                     uint64    `json:"revision"`
}

// IdleState is the decision emitted before login and after logout.
func IdleState() State {
	return State{
		Phase:       PhaseVerification,
		ActiveModal: ModalNone,
	}
}

// Equal compares two states ignoring the revision counter.
func (s State) Equal(other State) bool {
	s.Revision, other.Revision = 0, 0
	return s == other
}
