package telegram

import (
	"strings"
	"testing"
	"time"

	"nudgebot/internal/scheduler"
	"nudgebot/internal/storage"
)

func TestFormatPendingEmpty(t *testing.T) {
	t.Parallel()
	if got := formatPending(nil, time.Now()); got != "no pending reminders" {
		t.Fatalf("formatPending(nil) = %q", got)
	}
}

func TestFormatPendingRendersRemaining(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	pend := []scheduler.PendingObligation{
		{
			Obligation: storage.Obligation{UserID: "42", ThreadID: "7"},
			Due:        now.Add(90 * time.Minute),
		},
		{
			Obligation: storage.Obligation{UserID: "43", ThreadID: "<evil>"},
			Due:        now.Add(-time.Minute),
		},
	}
	got := formatPending(pend, now)
	if !strings.Contains(got, "2 pending reminder(s)") {
		t.Fatalf("missing header: %q", got)
	}
	if !strings.Contains(got, "in 1h30m") {
		t.Fatalf("missing remaining time: %q", got)
	}
	if !strings.Contains(got, "in now") && !strings.Contains(got, "(in now)") {
		t.Fatalf("overdue row not rendered as now: %q", got)
	}
	if strings.Contains(got, "<evil>") {
		t.Fatalf("thread id not HTML-escaped: %q", got)
	}
}

func TestAdapterAllowlists(t *testing.T) {
	t.Parallel()
	a := &Adapter{cfg: Config{
		AdminUserIDs:  []int64{1, 2},
		ExemptUserIDs: []int64{9},
	}}
	if !a.isAdmin(1) || a.isAdmin(9) {
		t.Fatal("isAdmin allowlist broken")
	}
	if !a.isPrivileged(1) || !a.isPrivileged(9) || a.isPrivileged(5) {
		t.Fatal("isPrivileged allowlist broken")
	}
}

func TestFormatRemaining(t *testing.T) {
	t.Parallel()
	tests := []struct {
		d    time.Duration
		want string
	}{
		{-time.Minute, "now"},
		{30 * time.Minute, "30m"},
		{26*time.Hour + 5*time.Minute, "26h05m"},
	}
	for _, tt := range tests {
		if got := formatRemaining(tt.d); got != tt.want {
			t.Fatalf("formatRemaining(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
