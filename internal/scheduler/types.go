package scheduler

import (
	"context"
	"errors"
	"time"

	"nudgebot/internal/storage"
)

var (
	// ErrInvalidObligation rejects malformed start requests synchronously;
	// nothing is persisted or armed.
	ErrInvalidObligation = errors.New("invalid obligation")
	// ErrNotPending is returned by ManualFire for a key with no live obligation.
	ErrNotPending = errors.New("no pending obligation")
)

// FireFunc delivers the reminder for an obligation. manual marks an
// operator-triggered fire, which must be distinguishable in the outgoing
// notification. Failures are non-fatal to scheduler state.
type FireFunc func(ctx context.Context, o storage.Obligation, manual bool) error

// ResolveFunc optionally vets a stored obligation during Reconcile, e.g.
// checking that its thread still resolves through the chat platform.
// A non-nil error skips the row (it stays in the store for the next pass).
type ResolveFunc func(ctx context.Context, o storage.Obligation) error

type key struct {
	userID   string
	threadID string
}

// handle is one armed countdown. Fire and cancel are made mutually
// exclusive by an identity check against the registry under the service
// mutex: whoever removes the handle from the registry owns the transition.
type handle struct {
	ob    storage.Obligation
	due   time.Time
	timer *time.Timer
}

// PendingObligation is a read-only snapshot row for the admin surface.
type PendingObligation struct {
	storage.Obligation
	Due       time.Time
	Remaining time.Duration
}
