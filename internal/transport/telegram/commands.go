package telegram

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"nudgebot/internal/scheduler"
	logx "nudgebot/pkg/logx"
)

const commandTimeout = 15 * time.Second

// registerCommands wires the operator surface. All three commands are
// admin-only; the allowlist check lives here, not in the scheduler.
func (a *Adapter) registerCommands(ctx context.Context) {
	a.bot.Handle("/pending", a.adminOnly(ctx, a.cmdPending))
	a.bot.Handle("/resetall", a.adminOnly(ctx, a.cmdResetAll))
	a.bot.Handle("/fire", a.adminOnly(ctx, a.cmdFire))
}

func (a *Adapter) adminOnly(ctx context.Context, h func(ctx context.Context, c tele.Context) error) tele.HandlerFunc {
	return func(c tele.Context) error {
		sender := c.Sender()
		if sender == nil || !a.isAdmin(sender.ID) {
			// Silent for non-admins; monitored users never see internals.
			return nil
		}
		cctx, cancel := context.WithTimeout(ctx, commandTimeout)
		defer cancel()
		if err := h(cctx, c); err != nil {
			a.log.Error("admin command failed",
				logx.String("command", c.Text()), logx.Int64("from", sender.ID), logx.Err(err))
			return c.Send("command failed: "+html.EscapeString(err.Error()), tele.ModeHTML)
		}
		return nil
	}
}

func (a *Adapter) cmdPending(ctx context.Context, c tele.Context) error {
	_ = ctx
	return c.Send(formatPending(a.admin.Pending(), time.Now()), tele.ModeHTML)
}

func (a *Adapter) cmdResetAll(ctx context.Context, c tele.Context) error {
	if err := a.admin.ResetAll(ctx); err != nil {
		return err
	}
	return c.Send("all pending reminders cancelled")
}

func (a *Adapter) cmdFire(ctx context.Context, c tele.Context) error {
	args := c.Args()
	if len(args) != 2 {
		return c.Send("usage: /fire &lt;user_id&gt; &lt;thread_id&gt;", tele.ModeHTML)
	}
	if err := a.admin.ManualFire(ctx, args[0], args[1]); err != nil {
		return err
	}
	return c.Send("reminder fired manually (obligation unchanged)")
}

// formatPending renders the obligation list for the admin, soonest first,
// with remaining time relative to now.
func formatPending(pend []scheduler.PendingObligation, now time.Time) string {
	if len(pend) == 0 {
		return "no pending reminders"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%d pending reminder(s)</b>\n", len(pend))
	for _, p := range pend {
		remaining := p.Due.Sub(now).Round(time.Minute)
		fmt.Fprintf(&b, "• user <code>%s</code> thread <code>%s</code> due %s (in %s)\n",
			html.EscapeString(p.UserID), html.EscapeString(p.ThreadID),
			p.Due.Format("Mon 15:04"), formatRemaining(remaining))
	}
	return b.String()
}

func formatRemaining(d time.Duration) string {
	if d <= 0 {
		return "now"
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
}
