package telegram

import (
	"context"
	"fmt"
	"strconv"

	tele "gopkg.in/telebot.v4"
)

// SendDM delivers a reminder directly to a user. userID is the opaque id
// the scheduler carries; for Telegram it is the numeric user id.
func (a *Adapter) SendDM(ctx context.Context, userID, text string) error {
	id, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram user id %q: %w", userID, err)
	}
	_ = ctx // telebot manages its own request timeouts
	_, err = a.bot.Send(&tele.User{ID: id}, text, tele.ModeHTML)
	return err
}

// SendAdmin posts to the admin report channel. A zero AdminChatID disables
// admin reporting.
func (a *Adapter) SendAdmin(ctx context.Context, text string) error {
	if a.cfg.AdminChatID == 0 {
		return nil
	}
	_ = ctx
	_, err := a.bot.Send(tele.ChatID(a.cfg.AdminChatID), text, tele.ModeHTML)
	return err
}

// Resolve vets a stored obligation during startup reconciliation: ids that
// cannot belong to this platform (e.g. rows written by a different chat
// backend) are rejected so the scheduler skips them.
func (a *Adapter) Resolve(ctx context.Context, userID, threadID string) error {
	if _, err := strconv.ParseInt(userID, 10, 64); err != nil {
		return fmt.Errorf("unresolvable user id %q: %w", userID, err)
	}
	if _, err := strconv.Atoi(threadID); err != nil {
		return fmt.Errorf("unresolvable thread id %q: %w", threadID, err)
	}
	return nil
}
