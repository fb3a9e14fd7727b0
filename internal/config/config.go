package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath    = "config.toml"
	DefaultHTTPAddr      = ":8080"
	DefaultJWTExpiresIn  = "24h"
	DefaultChatTokenTTL  = "24h"
	DefaultPGHost        = "127.0.0.1"
	DefaultPGPort        = 5432
	DefaultPGUser        = "postgres"
	DefaultPGDatabase    = "chatrelay"
	DefaultPGSSLMode     = "disable"
	DefaultTelegramMode  = "polling"
	DefaultRetentionDays  = 25
	DefaultThreadIdleDays = 7
)

type Config struct {
	Log       LogConfig       `toml:"log"`
	Server    ServerConfig    `toml:"server"`
	Admin     AdminConfig     `toml:"admin"`
	Auth      AuthConfig      `toml:"auth"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Telegram  TelegramConfig  `toml:"telegram"`
	Retention RetentionConfig `toml:"retention"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr           string   `toml:"addr"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

type AdminConfig struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
	Email    string `toml:"email"`
}

type AuthConfig struct {
	JWTSecret    string `toml:"jwt_secret"`
	JWTExpiresIn string `toml:"jwt_expires_in"`
	ChatTokenTTL string `toml:"chat_token_ttl"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// TelegramConfig configures the agent-facing bot channel. Mode selects how
// updates arrive: "polling" runs a long-poll loop, "webhook" registers
// WebhookURL with the platform and receives pushes on the webhook route.
type TelegramConfig struct {
	BotToken   string `toml:"bot_token"`
	Mode       string `toml:"mode"`
	WebhookURL string `toml:"webhook_url"`
}

type RetentionConfig struct {
	Enabled        bool   `toml:"enabled"`
	MessageDays    int    `toml:"message_days"`
	ThreadIdleDays int    `toml:"thread_idle_days"`
	Schedule       string `toml:"schedule"`
}

func (c TelegramConfig) WebhookMode() bool {
	return strings.EqualFold(strings.TrimSpace(c.Mode), "webhook")
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Admin: AdminConfig{
			Username: "admin",
			Password: "change-your-password-here",
			Email:    "you@example.com",
		},
		Auth: AuthConfig{
			JWTExpiresIn: DefaultJWTExpiresIn,
			ChatTokenTTL: DefaultChatTokenTTL,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Telegram: TelegramConfig{
			Mode: DefaultTelegramMode,
		},
		Retention: RetentionConfig{
			Enabled:        false,
			MessageDays:    DefaultRetentionDays,
			ThreadIdleDays: DefaultThreadIdleDays,
			Schedule:       "0 3 * * *",
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	if cfg.Telegram.WebhookMode() && strings.TrimSpace(cfg.Telegram.WebhookURL) == "" {
		return cfg, fmt.Errorf("telegram webhook mode requires webhook_url")
	}

	return cfg, nil
}
