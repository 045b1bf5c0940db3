// Package flagstore persists the readiness flags that must survive restarts.
//
// Reads and writes are single-key and last-writer-wins. Callers go through
// Flags, whose Load, Get, Set and Clear absorb store failures: a flag that
// cannot be read is absent, a flag that cannot be written is logged and kept
// only in memory.
package flagstore

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"walletgate/internal/models"
)

// Store is a durable string key/value store.
type Store interface {
	// Get returns the value for key. ok is false if the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set stores value under key.
	Set(ctx context.Context, key, value string) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// Pinger is implemented by stores backed by a remote service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Flag names a persisted readiness flag.
type Flag string

const (
	FlagFreshRegistration     Flag = "fresh_registration"
	FlagInSubVerificationFlow Flag = "in_sub_verification_flow"
	FlagUserDismissedGate     Flag = "user_dismissed_gate"
	FlagSupportRequired       Flag = "support_required"
)

// SessionFlags are cleared on logout.
var SessionFlags = []Flag{FlagUserDismissedGate, FlagInSubVerificationFlow}

// Key returns the store key of a user's flag.
func Key(userID uuid.UUID, flag Flag) string {
	return fmt.Sprintf("readiness:%s:%s", userID, flag)
}

// FailureObserver is notified of absorbed store failures.
type FailureObserver interface {
	FlagStoreFailure(op string)
}

// Flags reads and writes a user's flags with failure degradation.
type Flags struct {
	store    Store
	userID   uuid.UUID
	logger   *zap.Logger
	observer FailureObserver
}

// NewFlags creates a flag accessor for one user. observer may be nil.
func NewFlags(store Store, userID uuid.UUID, logger *zap.Logger, observer FailureObserver) *Flags {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Flags{
		store:    store,
		userID:   userID,
		logger:   logger,
		observer: observer,
	}
}

// Load reads all flags. Read failures degrade to "flag absent".
func (f *Flags) Load(ctx context.Context) models.Flags {
	return models.Flags{
		FreshRegistration:     f.Get(ctx, FlagFreshRegistration),
		InSubVerificationFlow: f.Get(ctx, FlagInSubVerificationFlow),
		UserDismissedGate:     f.Get(ctx, FlagUserDismissedGate),
		SupportRequired:       f.Get(ctx, FlagSupportRequired),
	}
}

// Get reads a single flag. Missing, unparsable and unreadable flags are false.
func (f *Flags) Get(ctx context.Context, flag Flag) bool {
	if f.store == nil {
		return false
	}

	value, ok, err := f.store.Get(ctx, Key(f.userID, flag))
	if err != nil {
		f.fail("get", flag, err)
		return false
	}
	if !ok {
		return false
	}

	b, err := strconv.ParseBool(value)
	if err != nil {
		f.logger.Warn("ignoring malformed flag",
			zap.String("flag", string(flag)),
			zap.String("value", value),
		)
		return false
	}
	return b
}

// Set writes a flag. A false value deletes the key.
func (f *Flags) Set(ctx context.Context, flag Flag, value bool) {
	if f.store == nil {
		return
	}

	key := Key(f.userID, flag)
	var err error
	if value {
		err = f.store.Set(ctx, key, strconv.FormatBool(true))
	} else {
		err = f.store.Delete(ctx, key)
	}
	if err != nil {
		f.fail("set", flag, err)
	}
}

// Clear deletes the given flags.
func (f *Flags) Clear(ctx context.Context, flags ...Flag) {
	for _, flag := range flags {
		f.Set(ctx, flag, false)
	}
}

func (f *Flags) fail(op string, flag Flag, err error) {
	f.logger.Warn("flag store failure",
		zap.String("op", op),
		zap.String("flag", string(flag)),
		zap.String("user_id", f.userID.String()),
		zap.Error(err),
	)
	if f.observer != nil {
		f.observer.FlagStoreFailure(op)
	}
}
