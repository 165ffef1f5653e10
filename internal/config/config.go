package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.zawaj/config.toml.
type Config struct {
	DefaultProfile string  `toml:"default_profile"`
	UserID         string  `toml:"user_id"`
	Gateway        Gateway `toml:"gateway"`
	API            API     `toml:"api"`
	Chat           Chat    `toml:"chat"`
}

// Gateway holds realtime channel settings.
type Gateway struct {
	URL                  string   `toml:"url"`
	Token                string   `toml:"token"`
	MaxReconnectAttempts int      `toml:"max_reconnect_attempts"`
	ReconnectDelay       duration `toml:"reconnect_delay"`
	MaxReconnectDelay    duration `toml:"max_reconnect_delay"`
	AckTimeout           duration `toml:"ack_timeout"`
}

// API holds REST collaborator settings.
type API struct {
	BaseURL string   `toml:"base_url"`
	Timeout duration `toml:"timeout"`
}

// Chat holds store and typing policy knobs.
type Chat struct {
	ConversationPageSize int      `toml:"conversation_page_size"`
	MessagePageSize      int      `toml:"message_page_size"`
	TypingAutoStop       duration `toml:"typing_auto_stop"`
	TypingRemoteExpiry   duration `toml:"typing_remote_expiry"`
	NotificationCap      int      `toml:"notification_cap"`
}

// duration lets TOML carry Go duration strings ("3s", "500ms").
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(v)
	return nil
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d duration) Std() time.Duration { return time.Duration(d) }

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DefaultProfile: "main",
		Gateway: Gateway{
			URL:                  "wss://api.zawaj.app/realtime",
			MaxReconnectAttempts: 5,
			ReconnectDelay:       duration(time.Second),
			MaxReconnectDelay:    duration(30 * time.Second),
			AckTimeout:           duration(10 * time.Second),
		},
		API: API{
			BaseURL: "https://api.zawaj.app/chat",
			Timeout: duration(15 * time.Second),
		},
		Chat: Chat{
			ConversationPageSize: 20,
			MessagePageSize:      50,
			TypingAutoStop:       duration(3 * time.Second),
			TypingRemoteExpiry:   duration(5 * time.Second),
			NotificationCap:      50,
		},
	}
}

// Load reads config from the given path, layered over defaults.
// A missing file returns the defaults without error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyFloors()
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// applyFloors clamps nonsensical values back to defaults so a sparse
// or hand-edited file cannot zero out required policies.
func (c *Config) applyFloors() {
	def := Default()
	if c.Gateway.MaxReconnectAttempts <= 0 {
		c.Gateway.MaxReconnectAttempts = def.Gateway.MaxReconnectAttempts
	}
	if c.Gateway.ReconnectDelay <= 0 {
		c.Gateway.ReconnectDelay = def.Gateway.ReconnectDelay
	}
	if c.Gateway.MaxReconnectDelay < c.Gateway.ReconnectDelay {
		c.Gateway.MaxReconnectDelay = def.Gateway.MaxReconnectDelay
	}
	if c.Gateway.AckTimeout <= 0 {
		c.Gateway.AckTimeout = def.Gateway.AckTimeout
	}
	if c.API.Timeout <= 0 {
		c.API.Timeout = def.API.Timeout
	}
	if c.Chat.ConversationPageSize <= 0 {
		c.Chat.ConversationPageSize = def.Chat.ConversationPageSize
	}
	if c.Chat.MessagePageSize <= 0 {
		c.Chat.MessagePageSize = def.Chat.MessagePageSize
	}
	if c.Chat.TypingAutoStop <= 0 {
		c.Chat.TypingAutoStop = def.Chat.TypingAutoStop
	}
	if c.Chat.TypingRemoteExpiry <= 0 {
		c.Chat.TypingRemoteExpiry = def.Chat.TypingRemoteExpiry
	}
	if c.Chat.NotificationCap <= 0 {
		c.Chat.NotificationCap = def.Chat.NotificationCap
	}
}
