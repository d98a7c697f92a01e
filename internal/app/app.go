// Package app wires the bot together: config, logging, storage, the
// reminder scheduler, the notification pipeline and the Telegram adapter.
package app

import (
	"context"
	"fmt"
	"html"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"nudgebot/internal/config"
	"nudgebot/internal/eventbus"
	"nudgebot/internal/notify"
	"nudgebot/internal/scheduler"
	"nudgebot/internal/storage"
	"nudgebot/internal/transport/telegram"
	"nudgebot/internal/workhours"
	logx "nudgebot/pkg/logx"
)

const defaultReminderHours = 24

type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	store    storage.Store
	bus      eventbus.Bus
	clock    workhours.Clock
	loc      *time.Location
	sched    *scheduler.Service
	notifier *notify.Service
	adapter  *telegram.Adapter
	cron     *cron.Cron

	defaultHours int

	events chan telegram.ActivityEvent

	runMu      sync.Mutex
	runCancel  context.CancelFunc
	runWG      sync.WaitGroup
	auditUnsub func()
}

func New(cfgPath string) (*App, error) {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	})
	mgr.SetLogger(log)
	mgr.SetValidator(func(ctx context.Context, c *config.Config) error { return c.Validate() })

	a := &App{
		cfgMgr:       mgr,
		logSvc:       logSvc,
		log:          log,
		bus:          eventbus.New(),
		defaultHours: cfg.Reminder.DefaultHoursOr(defaultReminderHours),
		events:       make(chan telegram.ActivityEvent, 256),
	}

	if a.loc, err = loadLocation(cfg.Reminder.Timezone); err != nil {
		return nil, err
	}
	if a.clock, err = buildClock(cfg.Reminder); err != nil {
		return nil, err
	}

	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	a.store, err = storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("component", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	// The fire callback reaches the notifier through the App so the
	// scheduler, adapter and notifier can be constructed in order.
	a.sched = scheduler.New(a.clock, a.store, a.fireObligation, a.bus,
		log.With(logx.String("component", "scheduler")))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	a.adapter, err = telegram.New(telegram.Config{
		Token:           cfg.Telegram.Token,
		MonitoredChatID: cfg.Telegram.MonitoredChatID,
		AdminChatID:     cfg.Telegram.AdminChatID,
		AdminUserIDs:    cfg.Telegram.AdminUserIDs,
		ExemptUserIDs:   cfg.Telegram.ExemptUserIDs,
		PollTimeout:     pollTimeout,
	}, a.sched, log.With(logx.String("component", "telegram")))
	if err != nil {
		_ = a.store.Close()
		return nil, fmt.Errorf("telegram adapter: %w", err)
	}

	ncfg, err := notifierConfig(cfg.Notifier)
	if err != nil {
		_ = a.store.Close()
		return nil, err
	}
	a.notifier = notify.New(ncfg, a.adapter, log.With(logx.String("component", "notify")))

	a.cron = cron.New(cron.WithLocation(a.loc))
	return a, nil
}

func loadLocation(tz string) (*time.Location, error) {
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("reminder.timezone: %w", err)
	}
	return loc, nil
}

func buildClock(r config.ReminderConfig) (workhours.Clock, error) {
	excluded, err := config.ParseWeekdays(r.ExcludedWeekdays)
	if err != nil {
		return workhours.Clock{}, err
	}
	return workhours.New(workhours.Config{
		WorkStart:        r.WorkStart,
		WorkEnd:          r.WorkEnd,
		ExcludedWeekdays: excluded,
	})
}

func notifierConfig(n *config.NotifierConfig) (notify.Config, error) {
	cfg := notify.Config{Enabled: true}
	if n == nil {
		return cfg, nil
	}
	if n.Enabled != nil {
		cfg.Enabled = *n.Enabled
	}
	cfg.Workers = n.Workers
	cfg.QueueSize = n.QueueSize
	cfg.RatePerSec = n.RatePerSec
	cfg.RetryMax = n.RetryMax

	var err error
	if cfg.RetryBase, err = config.ParseDurationField("notifier.retry_base", n.RetryBase); err != nil {
		return cfg, err
	}
	if cfg.RetryMaxDelay, err = config.ParseDurationField("notifier.retry_max_delay", n.RetryMaxDelay); err != nil {
		return cfg, err
	}
	if cfg.DedupWindow, err = config.ParseDurationField("notifier.dedup_window", n.DedupWindow); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// fireObligation is the scheduler's notification side effect: DM the user,
// mirror to the admin channel, marked when manually triggered.
func (a *App) fireObligation(ctx context.Context, ob storage.Obligation, manual bool) error {
	suffix := ""
	if manual {
		suffix = " (manually triggered)"
	}
	return a.notifier.Notify(ctx, notify.Notification{
		UserID:   ob.UserID,
		ThreadID: ob.ThreadID,
		Manual:   manual,
		Text: fmt.Sprintf(
			"Hey, it looks like you haven't responded in thread <code>%s</code> yet. "+
				"The other participants are still waiting for your reply.",
			html.EscapeString(ob.ThreadID)),
		AdminText: fmt.Sprintf("Reminder sent to <code>%s</code> for thread <code>%s</code>.%s",
			html.EscapeString(ob.UserID), html.EscapeString(ob.ThreadID), suffix),
	})
}
