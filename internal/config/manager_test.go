package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

const validJSON = `{
  "telegram": {"token": "x:y", "monitored_chat_id": -100123, "admin_chat_id": -100456, "admin_user_ids": [1]},
  "logging": {"level": "info", "console": true, "file": {"enabled": false}},
  "storage": {"driver": "file", "path": "./store"},
  "reminder": {"default_hours": 24, "work_start": 9, "work_end": 17, "excluded_weekdays": ["saturday", "sunday"]}
}`

func TestLoadValidJSON(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.json", validJSON))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.MonitoredChatID != -100123 {
		t.Fatalf("monitored_chat_id = %d", cfg.Telegram.MonitoredChatID)
	}
	if cfg.Reminder.DefaultHoursOr(24) != 24 {
		t.Fatalf("default_hours = %d", cfg.Reminder.DefaultHours)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get should return the committed config")
	}
}

func TestLoadValidYAML(t *testing.T) {
	t.Parallel()
	body := `
telegram:
  token: "x:y"
  monitored_chat_id: -100123
  admin_chat_id: -100456
  admin_user_ids: [1, 2]
logging:
  level: debug
  console: true
  file:
    enabled: true
    path: ./nudgebot.log
storage:
  driver: sqlite
  path: ./nudgebot.sqlite
  busy_timeout: 2s
reminder:
  default_hours: 8
  work_start: 8
  work_end: 18
  excluded_weekdays: [sat, sun]
  timezone: UTC
digest:
  enabled: true
  at: "09:30"
`
	m := NewManager(writeConfig(t, "config.yaml", body))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Reminder.DefaultHours != 8 || cfg.Storage.Driver != "sqlite" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	wds, err := ParseWeekdays(cfg.Reminder.ExcludedWeekdays)
	if err != nil {
		t.Fatalf("ParseWeekdays: %v", err)
	}
	if len(wds) != 2 || wds[0] != time.Saturday || wds[1] != time.Sunday {
		t.Fatalf("weekdays = %v", wds)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.json", `{"telegram": {"token": "x"}, "surprise": 1}`))
	if _, err := m.Load(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestValidateRejections(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body string
	}{
		{"missing token", `{"telegram": {"monitored_chat_id": 1}}`},
		{"missing chat", `{"telegram": {"token": "x"}}`},
		{"bad weekday", `{"telegram": {"token": "x", "monitored_chat_id": 1}, "reminder": {"excluded_weekdays": ["caturday"]}}`},
		{"all weekdays excluded", `{"telegram": {"token": "x", "monitored_chat_id": 1}, "reminder": {"excluded_weekdays": ["sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"]}}`},
		{"bad digest time", `{"telegram": {"token": "x", "monitored_chat_id": 1}, "digest": {"enabled": true, "at": "25:00"}}`},
		{"bad duration", `{"telegram": {"token": "x", "monitored_chat_id": 1, "poll_timeout": "soon"}}`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(writeConfig(t, "config.json", tt.body))
			if _, err := m.Load(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestParseHHMM(t *testing.T) {
	t.Parallel()
	h, m, err := ParseHHMM("23:15")
	if err != nil {
		t.Fatalf("ParseHHMM error: %v", err)
	}
	if h != 23 || m != 15 {
		t.Fatalf("unexpected result: %d:%d", h, m)
	}
	if h, m, err = ParseHHMM(""); err != nil || h != 9 || m != 0 {
		t.Fatalf("empty input: %d:%d, %v", h, m, err)
	}
	if _, _, err := ParseHHMM("24:00"); err == nil {
		t.Fatal("expected error for invalid hour")
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationOrDefault("x", "", 10*time.Second)
	if err != nil || d != 10*time.Second {
		t.Fatalf("default: %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "-5s"); err == nil {
		t.Fatal("expected error for negative duration")
	}
}
