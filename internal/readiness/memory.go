package readiness

import (
	"time"

	"walletgate/internal/models"
)

// kindSet is a small bitset of modal kinds. It keeps Memory a comparable value
// so Reduce never shares mutable state with its caller.
type kindSet uint8

func kindBit(k models.ModalKind) kindSet {
	switch k {
	case models.ModalNeedsVerification:
		return 1 << 0
	case models.ModalPendingReview:
		return 1 << 1
	case models.ModalWalletActivation:
		return 1 << 2
	case models.ModalSetPin:
		return 1 << 3
	case models.ModalContactSupport:
		return 1 << 4
	default:
		return 0
	}
}

func (s kindSet) has(k models.ModalKind) bool {
	b := kindBit(k)
	return b != 0 && s&b == b
}

func (s kindSet) with(k models.ModalKind) kindSet    { return s | kindBit(k) }
func (s kindSet) without(k models.ModalKind) kindSet { return s &^ kindBit(k) }

// Memory holds the per-session facts the reducer carries between evaluations.
// The zero value is the state of a fresh session.
type Memory struct {
	// Phase is the furthest phase reached; it never regresses within a session.
	Phase models.Phase
	// Open is the modal the last evaluation asked to be visible.
	Open models.ModalKind
	// SetPinShownAt is when SET_PIN was last opened.
	SetPinShownAt time.Time

	shown     kindSet
	dismissed kindSet
}

// Shown returns true if kind was opened automatically this session and has
// not been retriggered since.
func (m Memory) Shown(kind models.ModalKind) bool {
	return m.shown.has(kind)
}

// Dismissed returns true if the user explicitly closed kind this session.
func (m Memory) Dismissed(kind models.ModalKind) bool {
	return m.dismissed.has(kind)
}

// Dismiss records an explicit user dismissal of kind. The kind is not shown
// automatically again until Retrigger.
func (m Memory) Dismiss(kind models.ModalKind) Memory {
	m.dismissed = m.dismissed.with(kind)
	if m.Open == kind {
		m.Open = models.ModalNone
	}
	return m
}

// Close records a programmatic hide. It does not mark kind as dismissed, but
// kind stays shown and is not opened automatically again.
func (m Memory) Close(kind models.ModalKind) Memory {
	if m.Open == kind {
		m.Open = models.ModalNone
	}
	return m
}

// Retrigger re-arms kind so the next evaluation may show it again. A
// retriggered SET_PIN still waits out the debounce of its previous show.
func (m Memory) Retrigger(kind models.ModalKind) Memory {
	m.dismissed = m.dismissed.without(kind)
	m.shown = m.shown.without(kind)
	return m
}
