// Package config manages application configuration from config.yaml,
// BOT_-prefixed environment variables, and defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config defines the application configuration. Values can be set via
// environment variables prefixed with BOT_ (e.g. BOT_TELEGRAM_TOKEN) or
// through config.yaml.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Summary   SummaryConfig   `mapstructure:"summary"`
	Messages  MessagesConfig  `mapstructure:"messages"`
}

// LoggerConfig controls log output.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// DatabaseConfig locates the embedded SQLite store.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// TelegramConfig carries transport credentials and runtime bot identity.
type TelegramConfig struct {
	Token       string `mapstructure:"token" validate:"required"`
	AdminUserID int64  `mapstructure:"admin_user_id" validate:"required,gt=0"`

	// BotInfo is filled at startup from GetMe, not from configuration.
	BotInfo BotInfo `mapstructure:"-"`
}

// BotInfo identifies the bot account at runtime.
type BotInfo struct {
	ID        int64
	Username  string
	FirstName string
}

// GeminiConfig configures the LLM summarizer client.
type GeminiConfig struct {
	APIKey            string        `mapstructure:"api_key" validate:"required"`
	ModelName         string        `mapstructure:"model_name" validate:"required"`
	Temperature       float32       `mapstructure:"temperature" validate:"min=0,max=2"`
	Timeout           time.Duration `mapstructure:"timeout" validate:"min=1s,max=10m"`
	MaxRetries        int           `mapstructure:"max_retries" validate:"min=0,max=10"`
	RetryDelaySeconds int           `mapstructure:"retry_delay_seconds" validate:"min=1,max=60"`
}

// RateLimitConfig tunes the per-user admission thresholds.
type RateLimitConfig struct {
	CooldownSeconds int `mapstructure:"cooldown_seconds" validate:"min=1,max=3600"`
	MaxPerMinute    int `mapstructure:"max_per_minute" validate:"min=1,max=60"`
}

// Cooldown returns the cooldown as a duration.
func (c RateLimitConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

// SummaryConfig tunes the summarization pipeline and its schedule.
type SummaryConfig struct {
	MaxHours       int `mapstructure:"max_hours" validate:"min=1,max=168"`
	ScheduleHour   int `mapstructure:"schedule_hour" validate:"min=0,max=23"`
	ScheduleMinute int `mapstructure:"schedule_minute" validate:"min=0,max=59"`
	RetentionHours int `mapstructure:"retention_hours" validate:"min=24"`
	ChunkMaxLength int `mapstructure:"chunk_max_length" validate:"min=100,max=4000"`
}

// MessagesConfig holds every user-facing message string. Internal error
// detail never reaches the chat surface; these are the only phrasings the
// bot sends for failures.
type MessagesConfig struct {
	Welcome        string `mapstructure:"welcome" validate:"required"`
	Help           string `mapstructure:"help" validate:"required"`
	NotAuthorized  string `mapstructure:"not_authorized" validate:"required"`
	InvalidHours   string `mapstructure:"invalid_hours" validate:"required"`
	RateLimited    string `mapstructure:"rate_limited" validate:"required"`
	NoMessages     string `mapstructure:"no_messages" validate:"required"`
	SummaryFailed  string `mapstructure:"summary_failed" validate:"required"`
	SummaryWorking string `mapstructure:"summary_working" validate:"required"`
	GeneralError   string `mapstructure:"general_error" validate:"required"`
}

// Load reads configuration from defaults, an optional config.yaml, and
// BOT_* environment variables, then validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys without defaults are invisible to Unmarshal unless bound
	// explicitly; these are the credential keys an env-only deployment sets.
	for _, key := range []string{"telegram.token", "telegram.admin_user_id", "gemini.api_key"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; env and defaults still apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !isNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func isNotExist(err error) bool {
	return strings.Contains(err.Error(), "no such file")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.json", false)

	v.SetDefault("database.path", "chatrecap.db")

	v.SetDefault("gemini.model_name", "gemini-2.0-flash")
	v.SetDefault("gemini.temperature", 0.7)
	v.SetDefault("gemini.timeout", 2*time.Minute)
	v.SetDefault("gemini.max_retries", 2)
	v.SetDefault("gemini.retry_delay_seconds", 5)

	v.SetDefault("ratelimit.cooldown_seconds", 10)
	v.SetDefault("ratelimit.max_per_minute", 6)

	v.SetDefault("summary.max_hours", 168)
	v.SetDefault("summary.schedule_hour", 8)
	v.SetDefault("summary.schedule_minute", 0)
	v.SetDefault("summary.retention_hours", 720)
	v.SetDefault("summary.chunk_max_length", 1900)

	v.SetDefault("messages.welcome", "Hi! I summarize this chat's conversations. Use /recap [hours] for an on-demand digest.")
	v.SetDefault("messages.help", "Commands:\n/recap [hours] - summarize the last N hours (default 24, max 168)\n/channels - list active channels (admin)\n/help - this message")
	v.SetDefault("messages.not_authorized", "You are not authorized to use this command.")
	v.SetDefault("messages.invalid_hours", "Please provide a whole number of hours between 1 and %d.")
	v.SetDefault("messages.rate_limited", "You're doing that too often. Try again in %.0f seconds.")
	v.SetDefault("messages.no_messages", "No messages found in the last %d hours, nothing to summarize.")
	v.SetDefault("messages.summary_failed", "An error occurred while generating the summary. Please try again later.")
	v.SetDefault("messages.summary_working", "Summarizing the last %d hours...")
	v.SetDefault("messages.general_error", "An error occurred. Please try again later.")
}
