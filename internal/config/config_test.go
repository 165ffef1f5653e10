package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultProfile != "main" {
		t.Errorf("DefaultProfile = %q, want main", cfg.DefaultProfile)
	}
	if cfg.Gateway.MaxReconnectAttempts != 5 {
		t.Errorf("MaxReconnectAttempts = %d, want 5", cfg.Gateway.MaxReconnectAttempts)
	}
	if cfg.Chat.MessagePageSize != 50 {
		t.Errorf("MessagePageSize = %d, want 50", cfg.Chat.MessagePageSize)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := Default()
	cfg.DefaultProfile = "work"
	cfg.UserID = "u-123"
	cfg.Gateway.URL = "wss://example.test/realtime"
	cfg.Gateway.AckTimeout = duration(7 * time.Second)

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.DefaultProfile != "work" {
		t.Errorf("DefaultProfile = %q, want work", got.DefaultProfile)
	}
	if got.UserID != "u-123" {
		t.Errorf("UserID = %q, want u-123", got.UserID)
	}
	if got.Gateway.URL != "wss://example.test/realtime" {
		t.Errorf("Gateway.URL = %q", got.Gateway.URL)
	}
	if got.Gateway.AckTimeout.Std() != 7*time.Second {
		t.Errorf("AckTimeout = %v, want 7s", got.Gateway.AckTimeout.Std())
	}
}

func TestLoadSparseFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `default_profile = "alt"

[gateway]
url = "wss://staging.zawaj.app/realtime"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultProfile != "alt" {
		t.Errorf("DefaultProfile = %q, want alt", cfg.DefaultProfile)
	}
	if cfg.Gateway.URL != "wss://staging.zawaj.app/realtime" {
		t.Errorf("Gateway.URL = %q", cfg.Gateway.URL)
	}
	// Untouched sections stay at defaults.
	if cfg.API.Timeout.Std() != 15*time.Second {
		t.Errorf("API.Timeout = %v, want 15s", cfg.API.Timeout.Std())
	}
	if cfg.Chat.NotificationCap != 50 {
		t.Errorf("NotificationCap = %d, want 50", cfg.Chat.NotificationCap)
	}
}

func TestLoadClampsZeroedValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `[gateway]
max_reconnect_attempts = 0
reconnect_delay = "0s"

[chat]
conversation_page_size = -5
typing_auto_stop = "0s"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gateway.MaxReconnectAttempts != 5 {
		t.Errorf("MaxReconnectAttempts = %d, want clamped to 5", cfg.Gateway.MaxReconnectAttempts)
	}
	if cfg.Gateway.ReconnectDelay.Std() != time.Second {
		t.Errorf("ReconnectDelay = %v, want clamped to 1s", cfg.Gateway.ReconnectDelay.Std())
	}
	if cfg.Chat.ConversationPageSize != 20 {
		t.Errorf("ConversationPageSize = %d, want clamped to 20", cfg.Chat.ConversationPageSize)
	}
	if cfg.Chat.TypingAutoStop.Std() != 3*time.Second {
		t.Errorf("TypingAutoStop = %v, want clamped to 3s", cfg.Chat.TypingAutoStop.Std())
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `[gateway]
ack_timeout = "not-a-duration"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Load should fail on an unparseable duration")
	}
}
