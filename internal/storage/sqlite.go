//go:build sqlite
// +build sqlite

package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "nudgebot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, unavailable(err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, unavailable(err)
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, unavailable(err)
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) UpsertObligation(ctx context.Context, o Obligation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO obligations(user_id, thread_id, activity_time, requested_hours)
		 VALUES(?,?,?,?)
		 ON CONFLICT(user_id, thread_id) DO UPDATE SET
		   activity_time=excluded.activity_time,
		   requested_hours=excluded.requested_hours`,
		o.UserID, o.ThreadID, o.ActivityTime.Format(time.RFC3339Nano), o.RequestedHours,
	)
	return unavailable(err)
}

func (s *sqliteStore) DeleteObligation(ctx context.Context, userID, threadID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM obligations WHERE user_id = ? AND thread_id = ?`,
		userID, threadID,
	)
	return unavailable(err)
}

func (s *sqliteStore) GetObligation(ctx context.Context, userID, threadID string) (Obligation, bool, error) {
	var o Obligation
	var at string
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, thread_id, activity_time, requested_hours
		 FROM obligations WHERE user_id = ? AND thread_id = ?`,
		userID, threadID,
	).Scan(&o.UserID, &o.ThreadID, &at, &o.RequestedHours)
	if errors.Is(err, sql.ErrNoRows) {
		return Obligation{}, false, nil
	}
	if err != nil {
		return Obligation{}, false, unavailable(err)
	}
	t, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return Obligation{}, false, fmt.Errorf("corrupt activity_time %q: %w", at, err)
	}
	o.ActivityTime = t
	return o, true, nil
}

func (s *sqliteStore) ListObligations(ctx context.Context) ([]Obligation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, thread_id, activity_time, requested_hours FROM obligations`,
	)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var out []Obligation
	for rows.Next() {
		var o Obligation
		var at string
		if err := rows.Scan(&o.UserID, &o.ThreadID, &at, &o.RequestedHours); err != nil {
			return nil, unavailable(err)
		}
		t, err := time.Parse(time.RFC3339Nano, at)
		if err != nil {
			// Corrupt row: skip it rather than failing the whole startup scan.
			s.log.Warn("skipping obligation with corrupt activity_time",
				logx.String("user", o.UserID), logx.String("thread", o.ThreadID), logx.Err(err))
			continue
		}
		o.ActivityTime = t
		out = append(out, o)
	}
	return out, unavailable(rows.Err())
}

func (s *sqliteStore) DeleteAllObligations(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM obligations`)
	if err != nil {
		return 0, unavailable(err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(at, event, user_id, thread_id, manual, err)
		 VALUES(?,?,?,?,?,?)`,
		e.At.Format(time.RFC3339Nano), e.Event, nullStr(e.UserID), nullStr(e.ThreadID), e.Manual, nullStr(e.Error),
	)
	return unavailable(err)
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
