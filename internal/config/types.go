package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`

	// Reminder controls the business-hours window and the default wait.
	Reminder ReminderConfig `json:"reminder"`

	// Notifier controls the async DM pipeline. If the whole section is
	// omitted, the notifier defaults to enabled.
	Notifier *NotifierConfig `json:"notifier,omitempty"`

	// Digest controls the daily pending-obligations summary posted to the
	// admin channel.
	Digest *DigestConfig `json:"digest,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// MonitoredChatID is the forum supergroup whose topics are watched.
	MonitoredChatID int64 `json:"monitored_chat_id"`
	// AdminChatID receives reminder confirmations and the daily digest.
	AdminChatID int64 `json:"admin_chat_id"`

	// AdminUserIDs may run /pending, /resetall and /fire. Admins are also
	// exempt from reminder obligations.
	AdminUserIDs []int64 `json:"admin_user_ids"`
	// ExemptUserIDs never accrue obligations (e.g. on-call staff accounts).
	ExemptUserIDs []int64 `json:"exempt_user_ids,omitempty"`

	// PollTimeout is a Go duration string for long polling (default "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level"`
	Console bool          `json:"console"`
	File    FileLogConfig `json:"file"`
}

type FileLogConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./nudgebot_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// ReminderConfig controls due-time computation.
//
// Defaults (when fields are omitted/zero):
//   - default_hours: 24
//   - work_start / work_end: 9 / 17
//   - excluded_weekdays: ["saturday", "sunday"]
//   - timezone: process local time
type ReminderConfig struct {
	DefaultHours     int      `json:"default_hours,omitempty"`
	WorkStart        int      `json:"work_start,omitempty"`
	WorkEnd          int      `json:"work_end,omitempty"`
	ExcludedWeekdays []string `json:"excluded_weekdays,omitempty"`
	Timezone         string   `json:"timezone,omitempty"` // IANA TZ, e.g. "Europe/Berlin"
}

func (r ReminderConfig) DefaultHoursOr(def int) int {
	if r.DefaultHours > 0 {
		return r.DefaultHours
	}
	return def
}

// NotifierConfig controls the async DM pipeline.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
//
// Enabled is a pointer so we can distinguish "omitted" (default true)
// from an explicit false.
type NotifierConfig struct {
	Enabled       *bool  `json:"enabled,omitempty"`
	Workers       int    `json:"workers,omitempty"`
	QueueSize     int    `json:"queue_size,omitempty"`
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
	DedupWindow   string `json:"dedup_window,omitempty"`
}

// DigestConfig controls the daily admin summary.
type DigestConfig struct {
	Enabled bool   `json:"enabled"`
	At      string `json:"at,omitempty"` // HH:MM in reminder.timezone, default "09:00"
}

// Validate rejects configs that cannot possibly run. Called on load and by
// the watch loop before publishing a reload.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if c.Telegram.MonitoredChatID == 0 {
		return fmt.Errorf("telegram.monitored_chat_id is required")
	}
	if c.Reminder.DefaultHours < 0 {
		return fmt.Errorf("reminder.default_hours must be > 0")
	}
	seen := map[time.Weekday]bool{}
	for _, name := range c.Reminder.ExcludedWeekdays {
		wd, err := ParseWeekday(name)
		if err != nil {
			return err
		}
		seen[wd] = true
	}
	if len(seen) == 7 {
		return fmt.Errorf("reminder.excluded_weekdays: all weekdays excluded, no working time exists")
	}
	if tz := strings.TrimSpace(c.Reminder.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("reminder.timezone: %w", err)
		}
	}
	if c.Digest != nil && c.Digest.Enabled {
		if _, _, err := ParseHHMM(c.Digest.At); err != nil {
			return fmt.Errorf("digest.at: %w", err)
		}
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}
	if n := c.Notifier; n != nil {
		for _, f := range []struct{ path, raw string }{
			{"notifier.retry_base", n.RetryBase},
			{"notifier.retry_max_delay", n.RetryMaxDelay},
			{"notifier.dedup_window", n.DedupWindow},
		} {
			if _, err := ParseDurationField(f.path, f.raw); err != nil {
				return err
			}
		}
	}
	return nil
}
