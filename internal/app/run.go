package app

import (
	"context"
	"errors"
	"time"

	"nudgebot/internal/scheduler"
	"nudgebot/internal/storage"
	"nudgebot/internal/transport/telegram"
	logx "nudgebot/pkg/logx"
)

// Start brings the bot up. Persisted obligations are reconciled before the
// adapter starts feeding activity events, so a restart cannot interleave
// fresh activity with backfill.
func (a *App) Start(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	a.runCancel = cancel

	a.notifier.Start(runCtx)
	a.startAuditRecorder(runCtx)

	a.sched.SetResolver(func(ctx context.Context, ob storage.Obligation) error {
		return a.adapter.Resolve(ctx, ob.UserID, ob.ThreadID)
	})
	if err := a.sched.Reconcile(runCtx); err != nil {
		cancel()
		return err
	}

	if err := a.registerJobs(); err != nil {
		cancel()
		return err
	}
	a.cron.Start()

	if err := a.adapter.Start(runCtx, a.events); err != nil {
		cancel()
		return err
	}

	a.runWG.Add(2)
	go a.eventLoop(runCtx)
	go a.watchConfig(runCtx)

	a.log.Info("bot started",
		logx.Int("pending", len(a.sched.Pending())),
		logx.Int("default_hours", a.defaultHours))
	return nil
}

func (a *App) eventLoop(ctx context.Context) {
	defer a.runWG.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-a.events:
			a.handleActivity(ctx, ev)
		}
	}
}

// handleActivity applies one activity signal: privileged users have any
// outstanding obligation cancelled, everyone else gets theirs reset.
func (a *App) handleActivity(ctx context.Context, ev telegram.ActivityEvent) {
	if ev.IsPrivileged {
		if err := a.sched.Cancel(ctx, ev.UserID, ev.ThreadID); err != nil {
			a.log.Warn("cancel for privileged user failed",
				logx.String("user_id", ev.UserID),
				logx.String("thread_id", ev.ThreadID),
				logx.Err(err))
		}
		return
	}

	err := a.sched.StartOrReset(ctx, ev.UserID, ev.ThreadID, ev.ActivityTime.In(a.loc), a.defaultHours)
	switch {
	case err == nil:
	case errors.Is(err, scheduler.ErrInvalidObligation):
		a.log.Warn("dropping invalid activity event",
			logx.String("user_id", ev.UserID),
			logx.String("thread_id", ev.ThreadID),
			logx.Err(err))
	default:
		a.log.Error("start obligation failed",
			logx.String("user_id", ev.UserID),
			logx.String("thread_id", ev.ThreadID),
			logx.Err(err))
	}
}

// watchConfig follows the config file and applies the reloadable parts:
// log level/output and the notifier tuning. Everything else needs a restart.
func (a *App) watchConfig(ctx context.Context) {
	defer a.runWG.Done()

	updates := a.cfgMgr.Subscribe(4)
	defer a.cfgMgr.Unsubscribe(updates)

	go func() {
		if err := a.cfgMgr.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case cfg := <-updates:
			a.logSvc.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
			})
			if ncfg, err := notifierConfig(cfg.Notifier); err == nil {
				a.notifier.Apply(ncfg)
			} else {
				a.log.Warn("reloaded notifier config rejected", logx.Err(err))
			}
			a.log.Info("config reloaded")
		}
	}
}

// startAuditRecorder mirrors every obligation lifecycle event into the
// audit trail. Best effort: a failed append is logged, never fatal.
func (a *App) startAuditRecorder(ctx context.Context) {
	ch, unsub := a.bus.Subscribe(64)
	a.auditUnsub = unsub

	a.runWG.Add(1)
	go func() {
		defer a.runWG.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-ch:
				if !ok {
					return
				}
				err := a.store.AppendAudit(ctx, storage.AuditEntry{
					At:       e.Time,
					Event:    e.Type,
					UserID:   e.UserID,
					ThreadID: e.ThreadID,
					Manual:   e.Manual,
					Error:    e.Err,
				})
				if err != nil {
					a.log.Warn("audit append failed",
						logx.String("event", e.Type), logx.Err(err))
				}
			}
		}
	}()
}

// Stop tears the bot down in dependency order: stop the event sources
// first, then the scheduler, then the delivery pipeline, then storage.
func (a *App) Stop(ctx context.Context) {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	if err := a.adapter.Stop(ctx); err != nil {
		a.log.Warn("adapter stop", logx.Err(err))
	}
	cronCtx := a.cron.Stop()
	select {
	case <-cronCtx.Done():
	case <-time.After(5 * time.Second):
		a.log.Warn("cron jobs still running at shutdown")
	}

	a.sched.Stop()
	a.notifier.Stop(ctx)

	if a.runCancel != nil {
		a.runCancel()
	}
	a.runWG.Wait()
	if a.auditUnsub != nil {
		a.auditUnsub()
	}

	if err := a.store.Close(); err != nil {
		a.log.Warn("storage close", logx.Err(err))
	}
	a.log.Info("bot stopped")
	a.logSvc.Close()
}
