package telegram

import (
	"context"
	"time"

	"nudgebot/internal/scheduler"
)

// Config controls the Telegram adapter.
type Config struct {
	Token string

	// MonitoredChatID is the forum supergroup whose topics are watched for
	// user activity.
	MonitoredChatID int64
	// AdminChatID receives reminder confirmations, digests and command output.
	AdminChatID int64

	AdminUserIDs  []int64
	ExemptUserIDs []int64

	PollTimeout time.Duration
}

// ActivityEvent is the transport-agnostic activity signal: a monitored user
// posted in a thread. The scheduler core only ever sees these values, never
// Telegram message objects.
type ActivityEvent struct {
	UserID       string
	ThreadID     string
	ActivityTime time.Time
	IsPrivileged bool
}

// Admin is the scheduler surface the operator commands drive. The
// capability check (who may invoke them) happens here in the transport;
// the core never inspects platform permissions.
type Admin interface {
	Pending() []scheduler.PendingObligation
	ResetAll(ctx context.Context) error
	ManualFire(ctx context.Context, userID, threadID string) error
}
