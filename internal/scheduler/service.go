package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"nudgebot/internal/eventbus"
	"nudgebot/internal/storage"
	"nudgebot/internal/workhours"
	logx "nudgebot/pkg/logx"
)

const fireTimeout = 30 * time.Second

type Service struct {
	log   logx.Logger
	clock workhours.Clock
	store storage.Store
	bus   eventbus.Bus
	fire  FireFunc

	// now is swappable for tests.
	now func() time.Time

	// resolve is optional; set before Reconcile.
	resolve ResolveFunc

	// mu guards the registry and makes cancel-then-arm a single critical
	// section, which is what gives per-key causal ordering.
	mu      sync.Mutex
	pending map[key]*handle
	stopped bool
}

func New(clock workhours.Clock, store storage.Store, fire FireFunc, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:     log,
		clock:   clock,
		store:   store,
		bus:     bus,
		fire:    fire,
		now:     time.Now,
		pending: map[key]*handle{},
	}
}

// SetResolver installs the reconcile-time row vetting hook.
func (s *Service) SetResolver(fn ResolveFunc) { s.resolve = fn }

// StartOrReset creates the obligation for (userID, threadID), superseding
// any pending one for the same key without firing it. The store row is
// written before the timer is armed; on store failure nothing changes.
func (s *Service) StartOrReset(ctx context.Context, userID, threadID string, activityTime time.Time, hours int) error {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(threadID) == "" {
		return fmt.Errorf("%w: empty user or thread id", ErrInvalidObligation)
	}
	if hours <= 0 {
		return fmt.Errorf("%w: requested hours %d must be > 0", ErrInvalidObligation, hours)
	}

	ob := storage.Obligation{
		UserID:         userID,
		ThreadID:       threadID,
		ActivityTime:   activityTime,
		RequestedHours: hours,
	}
	due, err := s.clock.ProjectForward(activityTime, hours)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidObligation, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return fmt.Errorf("scheduler stopped")
	}

	// Persist first. If the store is unreachable the previous pending
	// obligation (if any) stays intact, so registry and store never diverge.
	if err := s.store.UpsertObligation(ctx, ob); err != nil {
		return err
	}

	k := key{userID: userID, threadID: threadID}
	event := eventbus.ObligationStarted
	if old, ok := s.pending[k]; ok {
		old.timer.Stop()
		delete(s.pending, k)
		event = eventbus.ObligationSuperseded
	}
	s.armLocked(k, ob, due)

	s.publish(eventbus.Event{Type: event, UserID: userID, ThreadID: threadID})
	s.log.Debug("obligation armed",
		logx.String("user", userID), logx.String("thread", threadID),
		logx.Time("due", due), logx.Int("hours", hours))
	return nil
}

// armLocked arms the countdown. Callers hold s.mu.
func (s *Service) armLocked(k key, ob storage.Obligation, due time.Time) {
	h := &handle{ob: ob, due: due}
	delay := due.Sub(s.now())
	if delay < 0 {
		delay = 0
	}
	h.timer = time.AfterFunc(delay, func() { s.onFire(k, h) })
	s.pending[k] = h
}

// onFire runs on timer expiry. It claims the obligation under the mutex;
// a handle that lost the registry slot to a concurrent Cancel or
// StartOrReset does nothing.
func (s *Service) onFire(k key, h *handle) {
	s.mu.Lock()
	cur, ok := s.pending[k]
	if !ok || cur != h {
		s.mu.Unlock()
		return
	}
	delete(s.pending, k)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), fireTimeout)
	defer cancel()

	ferr := s.fire(ctx, h.ob, false)
	if ferr != nil {
		// Best-effort delivery: the obligation still completes. A dropped
		// notification beats an infinite retry loop holding the row forever.
		s.log.Error("reminder notification failed",
			logx.String("user", k.userID), logx.String("thread", k.threadID), logx.Err(ferr))
		s.publish(eventbus.Event{Type: eventbus.ObligationFireFailed, UserID: k.userID, ThreadID: k.threadID, Err: ferr.Error()})
	} else {
		s.publish(eventbus.Event{Type: eventbus.ObligationFired, UserID: k.userID, ThreadID: k.threadID})
	}

	if err := s.store.DeleteObligation(ctx, k.userID, k.threadID); err != nil {
		// The row outlives the fired obligation until the next restart,
		// when Reconcile re-fires it (at-least-once).
		s.log.Error("failed deleting fired obligation",
			logx.String("user", k.userID), logx.String("thread", k.threadID), logx.Err(err))
	}
}

// Cancel stops the countdown and purges the row without firing. Cancelling
// an absent key is a no-op. Once Cancel returns, the handle will not fire.
func (s *Service) Cancel(ctx context.Context, userID, threadID string) error {
	k := key{userID: userID, threadID: threadID}

	s.mu.Lock()
	h, ok := s.pending[k]
	if ok {
		h.timer.Stop()
		delete(s.pending, k)
	}
	s.mu.Unlock()

	// Delete the row even when no handle was armed: an orphan row (e.g.
	// after a crashed fire) is drift this call may as well heal.
	if err := s.store.DeleteObligation(ctx, userID, threadID); err != nil {
		return err
	}
	if ok {
		s.publish(eventbus.Event{Type: eventbus.ObligationCancelled, UserID: userID, ThreadID: threadID})
	}
	return nil
}

// ManualFire sends the reminder immediately, marked as manually triggered.
// It does not touch the timer or the store row; the automatic countdown
// continues unaffected.
func (s *Service) ManualFire(ctx context.Context, userID, threadID string) error {
	k := key{userID: userID, threadID: threadID}

	s.mu.Lock()
	h, ok := s.pending[k]
	var ob storage.Obligation
	if ok {
		ob = h.ob
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w for user %s in thread %s", ErrNotPending, userID, threadID)
	}

	if err := s.fire(ctx, ob, true); err != nil {
		return err
	}
	s.publish(eventbus.Event{Type: eventbus.ObligationFired, UserID: userID, ThreadID: threadID, Manual: true})
	return nil
}

// Reconcile rebuilds timers from the durable store. Rows are considered
// most-recently-active first so fresh obligations are not starved behind a
// long backfill; each row's own due-time still governs when it fires. Rows
// that fail to re-arm are logged and skipped, never aborting the pass.
//
// Must complete before the activity source starts delivering events.
func (s *Service) Reconcile(ctx context.Context) error {
	rows, err := s.store.ListObligations(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].ActivityTime.After(rows[j].ActivityTime)
	})

	restored, skipped := 0, 0
	for _, ob := range rows {
		if s.resolve != nil {
			if rerr := s.resolve(ctx, ob); rerr != nil {
				skipped++
				s.log.Warn("skipping unresolvable obligation",
					logx.String("user", ob.UserID), logx.String("thread", ob.ThreadID), logx.Err(rerr))
				continue
			}
		}
		due, perr := s.clock.ProjectForward(ob.ActivityTime, ob.RequestedHours)
		if perr != nil {
			skipped++
			s.log.Warn("skipping obligation with invalid stored hours",
				logx.String("user", ob.UserID), logx.String("thread", ob.ThreadID),
				logx.Int("hours", ob.RequestedHours), logx.Err(perr))
			continue
		}

		k := key{userID: ob.UserID, threadID: ob.ThreadID}
		s.mu.Lock()
		if _, dup := s.pending[k]; dup {
			s.mu.Unlock()
			continue
		}
		s.armLocked(k, ob, due)
		s.mu.Unlock()
		restored++
	}

	s.log.Info("obligations reconciled", logx.Int("restored", restored), logx.Int("skipped", skipped))
	return nil
}

// ResetAll cancels every pending countdown and clears the store.
func (s *Service) ResetAll(ctx context.Context) error {
	s.mu.Lock()
	keys := make([]key, 0, len(s.pending))
	for k, h := range s.pending {
		h.timer.Stop()
		keys = append(keys, k)
	}
	s.pending = map[key]*handle{}
	s.mu.Unlock()

	for _, k := range keys {
		s.publish(eventbus.Event{Type: eventbus.ObligationCancelled, UserID: k.userID, ThreadID: k.threadID})
	}

	n, err := s.store.DeleteAllObligations(ctx)
	if err != nil {
		return err
	}
	s.log.Info("all obligations reset", logx.Int("cancelled", len(keys)), logx.Int("rows", n))
	return nil
}

// Stop halts all timers without touching the store; pending obligations
// stay durable and are re-armed by the next Reconcile.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.pending {
		h.timer.Stop()
	}
	s.pending = map[key]*handle{}
	s.stopped = true
}

func (s *Service) publish(e eventbus.Event) {
	if s.bus != nil {
		s.bus.Publish(e)
	}
}
