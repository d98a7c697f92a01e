package storage

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnavailable wraps backend I/O failures so callers can distinguish
	// "the store is unreachable" from programming errors.
	ErrUnavailable = errors.New("storage unavailable")
)

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (snapshot + jsonl journal)
//   - "sqlite": SQLite database file (optional build tag)
//
// An empty Driver defaults to "file"; obligations must be durable, so
// there is no disabled mode.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Obligation is a pending expectation that a user will respond in a thread
// before the due-time derived from ActivityTime + RequestedHours working
// hours. At most one obligation exists per (UserID, ThreadID).
type Obligation struct {
	UserID         string    `json:"user_id"`
	ThreadID       string    `json:"thread_id"`
	ActivityTime   time.Time `json:"activity_time"`
	RequestedHours int       `json:"requested_hours"`
}

// Key is the map/journal key for the (user, thread) pair.
func (o Obligation) Key() string { return obligationKey(o.UserID, o.ThreadID) }

func obligationKey(userID, threadID string) string { return userID + "\x00" + threadID }

// AuditEntry records one obligation lifecycle event.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At       time.Time `json:"at"`
	Event    string    `json:"event"`
	UserID   string    `json:"user_id,omitempty"`
	ThreadID string    `json:"thread_id,omitempty"`
	Manual   bool      `json:"manual,omitempty"`
	Error    string    `json:"error,omitempty"`
}

func unavailable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
