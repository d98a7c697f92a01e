package storage

import (
	"context"
	"errors"
	"strings"

	logx "nudgebot/pkg/logx"
)

// Store is the persistence API used by the reminder scheduler and the
// audit recorder. All obligation operations are atomic with respect to
// concurrent callers.
type Store interface {
	// UpsertObligation replaces any existing row for the same
	// (UserID, ThreadID) pair.
	UpsertObligation(ctx context.Context, o Obligation) error
	// DeleteObligation is idempotent; deleting a missing row is not an error.
	DeleteObligation(ctx context.Context, userID, threadID string) error
	GetObligation(ctx context.Context, userID, threadID string) (Obligation, bool, error)
	// ListObligations returns all pending rows; order is unspecified.
	ListObligations(ctx context.Context) ([]Obligation, error)
	// DeleteAllObligations clears every row and reports how many were removed.
	DeleteAllObligations(ctx context.Context) (int, error)

	AppendAudit(ctx context.Context, e AuditEntry) error
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
