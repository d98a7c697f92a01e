// Package telegram adapts the chat platform: it turns forum-topic messages
// into ActivityEvents, delivers reminder DMs, and exposes the operator
// command surface.
package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	logx "nudgebot/pkg/logx"
)

type Adapter struct {
	cfg Config
	log logx.Logger

	bot   *tele.Bot
	admin Admin

	out       chan<- ActivityEvent
	runCancel context.CancelFunc
	runWG     sync.WaitGroup
	runMu     sync.Mutex
	running   bool
	stopOnce  sync.Once

	// droppedEvents counts activity events dropped because the consumer was
	// slower than the Telegram poll loop. Logged periodically to avoid
	// per-update log spam.
	droppedEvents uint64
}

func New(cfg Config, admin Admin, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{cfg: cfg, log: log, bot: b, admin: admin}, nil
}

// Start begins long polling and feeds activity events into out. The caller
// must have finished reconciliation before calling Start so fresh events
// cannot race the startup re-arm pass.
func (a *Adapter) Start(ctx context.Context, out chan<- ActivityEvent) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out = out
	rctx, cancel := context.WithCancel(ctx)
	a.runCancel = cancel
	a.runWG.Add(2)
	a.runMu.Unlock()

	// Periodic summary for dropped events (avoid noisy per-update logs).
	go func() {
		defer a.runWG.Done()
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-rctx.Done():
				if n := atomic.SwapUint64(&a.droppedEvents, 0); n > 0 {
					a.log.Warn("activity events dropped (channel full)", logx.Uint64("count", n))
				}
				return
			case <-ticker.C:
				if n := atomic.SwapUint64(&a.droppedEvents, 0); n > 0 {
					a.log.Warn("activity events dropped (channel full)", logx.Uint64("count", n))
				}
			}
		}
	}()

	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		a.handleMessage(c.Message())
		return nil
	})
	a.registerCommands(rctx)

	go func() {
		defer a.runWG.Done()
		// Ensure we stop telebot when context is cancelled.
		go func() {
			<-rctx.Done()
			a.stopBot()
		}()
		a.log.Info("polling started", logx.Int64("monitored_chat", a.cfg.MonitoredChatID))
		a.bot.Start() // blocks until Stop() called
	}()

	return nil
}

// handleMessage converts a monitored-topic message into an ActivityEvent.
func (a *Adapter) handleMessage(m *tele.Message) {
	if m == nil || m.Sender == nil || m.Chat == nil {
		return
	}
	if m.Chat.ID != a.cfg.MonitoredChatID {
		return
	}
	if m.Sender.IsBot {
		return
	}
	// Only forum-topic messages carry a thread; the general chat stream is
	// not a monitored conversation.
	if m.ThreadID == 0 {
		return
	}
	if strings.HasPrefix(strings.TrimSpace(m.Text), "/") {
		return
	}

	ev := ActivityEvent{
		UserID:       strconv.FormatInt(m.Sender.ID, 10),
		ThreadID:     strconv.Itoa(m.ThreadID),
		ActivityTime: m.Time(),
		IsPrivileged: a.isPrivileged(m.Sender.ID),
	}
	select {
	case a.out <- ev:
	default:
		atomic.AddUint64(&a.droppedEvents, 1)
	}
}

func (a *Adapter) isPrivileged(userID int64) bool {
	for _, id := range a.cfg.AdminUserIDs {
		if id == userID {
			return true
		}
	}
	for _, id := range a.cfg.ExemptUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (a *Adapter) isAdmin(userID int64) bool {
	for _, id := range a.cfg.AdminUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// stopBot stops telebot at most once. Both the context watcher and Stop
// race to call it; telebot's stop handshake blocks on a channel send, so a
// second call would leak its goroutine.
func (a *Adapter) stopBot() {
	a.stopOnce.Do(func() {
		if a.bot != nil {
			a.bot.Stop()
		}
	})
}

func (a *Adapter) Stop(ctx context.Context) error {
	// Best-effort graceful stop. Never block shutdown for too long on the
	// Telegram long-poll.
	a.runMu.Lock()
	cancel := a.runCancel
	a.runCancel = nil
	wasRunning := a.running
	a.running = false
	a.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	if cancel != nil {
		cancel()
	}
	go a.stopBot()

	done := make(chan struct{})
	go func() {
		a.runWG.Wait()
		close(done)
	}()

	// Grace window: keep shutdown snappy even if getUpdates is still waiting.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	t := time.NewTimer(grace)
	defer t.Stop()

	select {
	case <-done:
		a.log.Info("polling stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		a.log.Warn("telegram stop grace elapsed; continuing shutdown")
		return nil
	}
}
