package app

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"nudgebot/internal/config"
	"nudgebot/internal/scheduler"
	"nudgebot/internal/workhours"
	logx "nudgebot/pkg/logx"
)

// registerJobs installs the recurring jobs: the optional daily digest and
// an hourly consistency sweep between the timer registry and the store.
func (a *App) registerJobs() error {
	cfg := a.cfgMgr.Get()

	if cfg.Digest != nil && cfg.Digest.Enabled {
		hour, minute, err := config.ParseHHMM(cfg.Digest.At)
		if err != nil {
			return fmt.Errorf("digest.at: %w", err)
		}
		spec := fmt.Sprintf("%d %d * * *", minute, hour)
		if _, err := a.cron.AddFunc(spec, a.runDigest); err != nil {
			return fmt.Errorf("schedule digest: %w", err)
		}
		a.log.Info("daily digest scheduled",
			logx.String("at", fmt.Sprintf("%02d:%02d", hour, minute)))
	}

	if _, err := a.cron.AddFunc("@every 1h", a.runSweep); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	return nil
}

func (a *App) runDigest() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pend := a.sched.Pending()
	if err := a.adapter.SendAdmin(ctx, formatDigest(pend, a.clock, time.Now().In(a.loc))); err != nil {
		a.log.Warn("digest delivery failed", logx.Err(err))
		return
	}
	a.log.Debug("digest sent", logx.Int("pending", len(pend)))
}

func formatDigest(pend []scheduler.PendingObligation, clock workhours.Clock, now time.Time) string {
	if len(pend) == 0 {
		return "<b>Daily digest</b>\nNo pending reminders. All threads answered."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "<b>Daily digest</b>\n%d pending reminder(s):\n", len(pend))
	for _, p := range pend {
		waited := clock.CountWorkingHours(p.ActivityTime, now)
		fmt.Fprintf(&b, "• <code>%s</code> in thread <code>%s</code>, waiting %dh of working time, due %s\n",
			html.EscapeString(p.UserID), html.EscapeString(p.ThreadID),
			waited, p.Due.Format("Mon 15:04"))
	}
	return strings.TrimRight(b.String(), "\n")
}

// runSweep cross-checks the in-memory timer registry against the store.
// Drift here means a fire or delete was lost, usually after a storage
// outage, and is worth surfacing even though Reconcile heals it on restart.
func (a *App) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rows, err := a.store.ListObligations(ctx)
	if err != nil {
		a.log.Warn("sweep: list obligations failed", logx.Err(err))
		return
	}
	armed := len(a.sched.Pending())
	if len(rows) != armed {
		a.log.Warn("sweep: store and timer registry disagree",
			logx.Int("stored", len(rows)), logx.Int("armed", armed))
		return
	}
	a.log.Debug("sweep clean", logx.Int("pending", armed))
}
