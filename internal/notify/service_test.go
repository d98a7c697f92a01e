package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	logx "nudgebot/pkg/logx"
)

type fakeSender struct {
	mu     sync.Mutex
	dms    []string
	admins []string
	fail   int // fail this many DM attempts before succeeding
}

func (f *fakeSender) SendDM(ctx context.Context, userID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail > 0 {
		f.fail--
		return errors.New("flood limit")
	}
	f.dms = append(f.dms, userID+":"+text)
	return nil
}

func (f *fakeSender) SendAdmin(ctx context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.admins = append(f.admins, text)
	return nil
}

func (f *fakeSender) dmCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.dms)
}

func (f *fakeSender) adminCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.admins)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func startService(t *testing.T, cfg Config, snd Sender) *Service {
	t.Helper()
	cfg.Enabled = true
	if cfg.RatePerSec == 0 {
		cfg.RatePerSec = 1000
	}
	s := New(cfg, snd, logx.Nop())
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s
}

func TestNotifyDeliversDMAndAdminMirror(t *testing.T) {
	t.Parallel()
	snd := &fakeSender{}
	s := startService(t, Config{}, snd)

	err := s.Notify(context.Background(), Notification{
		UserID:    "u1",
		ThreadID:  "t1",
		Text:      "please respond",
		AdminText: "reminder sent to u1",
	})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return snd.dmCount() == 1 && snd.adminCount() == 1 })
}

func TestNotifyRetriesTransientFailures(t *testing.T) {
	t.Parallel()
	snd := &fakeSender{fail: 2}
	s := startService(t, Config{RetryMax: 3, RetryBase: time.Millisecond, RetryMaxDelay: 5 * time.Millisecond}, snd)

	if err := s.Notify(context.Background(), Notification{UserID: "u1", Text: "hi"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return snd.dmCount() == 1 })
}

func TestNotifyDedupWindow(t *testing.T) {
	t.Parallel()
	snd := &fakeSender{}
	s := startService(t, Config{DedupWindow: time.Minute}, snd)
	ctx := context.Background()

	n := Notification{UserID: "u1", ThreadID: "t1", Text: "same text"}
	if err := s.Notify(ctx, n); err != nil {
		t.Fatalf("Notify #1: %v", err)
	}
	if err := s.Notify(ctx, n); err != nil {
		t.Fatalf("Notify #2 (suppressed): %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return snd.dmCount() == 1 })
	time.Sleep(50 * time.Millisecond)
	if snd.dmCount() != 1 {
		t.Fatalf("dm count = %d, want 1 (dedup)", snd.dmCount())
	}
}

func TestNotifyManualNotDedupedAgainstAutomatic(t *testing.T) {
	t.Parallel()
	snd := &fakeSender{}
	s := startService(t, Config{DedupWindow: time.Minute}, snd)
	ctx := context.Background()

	// An operator-triggered delivery followed by the automatic one with
	// identical text: both must reach the user.
	manual := Notification{UserID: "u1", ThreadID: "t1", Text: "same text", Manual: true}
	auto := Notification{UserID: "u1", ThreadID: "t1", Text: "same text"}
	if err := s.Notify(ctx, manual); err != nil {
		t.Fatalf("Notify manual: %v", err)
	}
	if err := s.Notify(ctx, auto); err != nil {
		t.Fatalf("Notify automatic: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return snd.dmCount() == 2 })
}

func TestNotifyDisabledAndStopped(t *testing.T) {
	t.Parallel()
	snd := &fakeSender{}
	s := New(Config{Enabled: false}, snd, logx.Nop())
	if err := s.Notify(context.Background(), Notification{UserID: "u", Text: "x"}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("err = %v, want ErrDisabled", err)
	}

	s2 := startService(t, Config{}, snd)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s2.Stop(ctx)
	if err := s2.Notify(context.Background(), Notification{UserID: "u", Text: "x"}); !errors.Is(err, ErrStopped) {
		t.Fatalf("err = %v, want ErrStopped", err)
	}
}

func TestNotifyHistoryRecordsDrops(t *testing.T) {
	t.Parallel()
	snd := &fakeSender{fail: 100}
	s := startService(t, Config{RetryMax: 1, RetryBase: time.Millisecond, RetryMaxDelay: 2 * time.Millisecond}, snd)

	if err := s.Notify(context.Background(), Notification{UserID: "u1", Text: "hi"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		for _, it := range s.Snapshot() {
			if it.Error != "" {
				return true
			}
		}
		return false
	})
}
