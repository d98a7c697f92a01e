package app

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"nudgebot/internal/config"
	"nudgebot/internal/eventbus"
	"nudgebot/internal/scheduler"
	"nudgebot/internal/storage"
	"nudgebot/internal/transport/telegram"
	"nudgebot/internal/workhours"
	logx "nudgebot/pkg/logx"
)

// memStore is the minimal in-memory Store the wiring tests need.
type memStore struct {
	mu   sync.Mutex
	rows map[string]storage.Obligation
}

func newMemStore() *memStore { return &memStore{rows: map[string]storage.Obligation{}} }

func (m *memStore) UpsertObligation(ctx context.Context, o storage.Obligation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[o.Key()] = o
	return nil
}

func (m *memStore) DeleteObligation(ctx context.Context, userID, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, storage.Obligation{UserID: userID, ThreadID: threadID}.Key())
	return nil
}

func (m *memStore) GetObligation(ctx context.Context, userID, threadID string) (storage.Obligation, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.rows[storage.Obligation{UserID: userID, ThreadID: threadID}.Key()]
	return o, ok, nil
}

func (m *memStore) ListObligations(ctx context.Context) ([]storage.Obligation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]storage.Obligation, 0, len(m.rows))
	for _, o := range m.rows {
		out = append(out, o)
	}
	return out, nil
}

func (m *memStore) DeleteAllObligations(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.rows)
	m.rows = map[string]storage.Obligation{}
	return n, nil
}

func (m *memStore) AppendAudit(ctx context.Context, e storage.AuditEntry) error { return nil }
func (m *memStore) Close() error                                               { return nil }

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func newTestApp(t *testing.T, store storage.Store) *App {
	t.Helper()
	clock, err := workhours.New(workhours.Config{})
	if err != nil {
		t.Fatalf("clock: %v", err)
	}
	a := &App{
		log:          logx.Nop(),
		loc:          time.UTC,
		defaultHours: 2,
		clock:        clock,
		store:        store,
		bus:          eventbus.New(),
	}
	a.sched = scheduler.New(clock, store,
		func(ctx context.Context, ob storage.Obligation, manual bool) error { return nil },
		a.bus, logx.Nop())
	return a
}

func TestHandleActivityArmsObligation(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	a := newTestApp(t, store)
	defer a.sched.Stop()

	// Activity now means the obligation is due working hours from now,
	// so the timer stays armed for the duration of the test.
	a.handleActivity(context.Background(), telegram.ActivityEvent{
		UserID:       "100",
		ThreadID:     "7",
		ActivityTime: time.Now().UTC(),
	})

	if store.count() != 1 {
		t.Fatalf("stored rows = %d, want 1", store.count())
	}
	if got := len(a.sched.Pending()); got != 1 {
		t.Fatalf("pending = %d, want 1", got)
	}
}

func TestHandleActivityPrivilegedCancels(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	a := newTestApp(t, store)
	defer a.sched.Stop()

	ctx := context.Background()
	at := time.Now().UTC()
	a.handleActivity(ctx, telegram.ActivityEvent{UserID: "100", ThreadID: "7", ActivityTime: at})

	// The same user later posts while privileged (promoted, on-call, ...):
	// that must clear the outstanding obligation, not reset it.
	a.handleActivity(ctx, telegram.ActivityEvent{
		UserID: "100", ThreadID: "7", ActivityTime: at.Add(time.Minute), IsPrivileged: true,
	})

	if store.count() != 0 {
		t.Fatalf("stored rows = %d, want 0 after privileged activity", store.count())
	}
	if got := len(a.sched.Pending()); got != 0 {
		t.Fatalf("pending = %d, want 0", got)
	}
}

func TestFormatDigest(t *testing.T) {
	t.Parallel()
	clock, err := workhours.New(workhours.Config{})
	if err != nil {
		t.Fatalf("clock: %v", err)
	}
	// Monday 14:00; activity was Monday 10:00, so 4 working hours have
	// elapsed (11..14).
	now := time.Date(2024, time.January, 1, 14, 0, 0, 0, time.UTC)
	activity := time.Date(2024, time.January, 1, 10, 0, 0, 0, time.UTC)

	if got := formatDigest(nil, clock, now); !strings.Contains(got, "No pending reminders") {
		t.Fatalf("empty digest = %q", got)
	}

	pend := []scheduler.PendingObligation{
		{
			Obligation: storage.Obligation{UserID: "1<2", ThreadID: "9", ActivityTime: activity},
			Due:        now.Add(3 * time.Hour),
		},
	}
	got := formatDigest(pend, clock, now)
	if !strings.Contains(got, "1 pending reminder") {
		t.Fatalf("digest missing count: %q", got)
	}
	if !strings.Contains(got, "waiting 4h of working time") {
		t.Fatalf("digest missing elapsed working hours: %q", got)
	}
	if !strings.Contains(got, "1&lt;2") {
		t.Fatalf("digest must escape HTML in user IDs: %q", got)
	}
	if strings.Contains(got, "1<2") {
		t.Fatalf("raw user ID leaked into HTML: %q", got)
	}
}

func TestNotifierConfig(t *testing.T) {
	t.Parallel()

	cfg, err := notifierConfig(nil)
	if err != nil {
		t.Fatalf("nil section: %v", err)
	}
	if !cfg.Enabled {
		t.Fatal("omitted notifier section must default to enabled")
	}

	off := false
	cfg, err = notifierConfig(&config.NotifierConfig{
		Enabled:   &off,
		Workers:   3,
		RetryBase: "250ms",
	})
	if err != nil {
		t.Fatalf("explicit section: %v", err)
	}
	if cfg.Enabled || cfg.Workers != 3 || cfg.RetryBase != 250*time.Millisecond {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	if _, err := notifierConfig(&config.NotifierConfig{RetryBase: "soon"}); err == nil {
		t.Fatal("bad duration must be rejected")
	}
}
