package notify

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
)

// Config controls the async notification pipeline.
type Config struct {
	Enabled       bool
	Workers       int
	QueueSize     int
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	DedupWindow   time.Duration
}

// Notification is one reminder delivery: a DM to the user plus an optional
// mirror line for the admin report channel.
type Notification struct {
	UserID    string
	ThreadID  string
	Text      string
	AdminText string // empty disables the admin mirror
	Manual    bool
}

// Sender is the chat-platform capability the pipeline consumes.
// Both calls must be safe for concurrent use.
type Sender interface {
	SendDM(ctx context.Context, userID, text string) error
	SendAdmin(ctx context.Context, text string) error
}

type HistoryItem struct {
	At     time.Time
	UserID string
	Text   string
	Error  string
}
