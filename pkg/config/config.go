// Package config provides configuration loading and validation utilities.
package config

import (
	"fmt"
	"time"

	"github.com/Proton-105/horoscope-bot/pkg/redis"
)

// Config holds runtime configuration for the horoscope bot.
type Config struct {
	AppEnv        string              `mapstructure:"app_env"`
	Logger        LoggerConfig        `mapstructure:"logger"`
	Sentry        SentryConfig        `mapstructure:"sentry"`
	Bot           BotConfig           `mapstructure:"bot" validate:"required"`
	Database      DatabaseConfig      `mapstructure:"database" validate:"required"`
	Redis         redis.Config        `mapstructure:"redis" validate:"required"`
	Session       SessionConfig       `mapstructure:"session"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
	Generation    GenerationConfig    `mapstructure:"generation" validate:"required"`
	Delivery      DeliveryConfig      `mapstructure:"delivery" validate:"required"`
	Transcription TranscriptionConfig `mapstructure:"transcription"`
	Server        ServerConfig        `mapstructure:"server"`
}

type LoggerConfig struct {
	Level  string           `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string           `mapstructure:"format" validate:"omitempty,oneof=json text"`
	File   LoggerFileConfig `mapstructure:"file"`
}

// LoggerFileConfig enables a rotating log file next to stdout.
type LoggerFileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type SentryConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	DSN              string  `mapstructure:"dsn" validate:"required_if=Enabled true"`
	TracesSampleRate float64 `mapstructure:"traces_sample_rate"`
}

type BotConfig struct {
	Token           string        `mapstructure:"token" validate:"required"`
	Mode            string        `mapstructure:"mode" validate:"oneof=polling webhook"`
	Timeout         time.Duration `mapstructure:"timeout"`
	WebhookURL      string        `mapstructure:"webhook_url" validate:"required_if=Mode webhook"`
	WebhookListen   string        `mapstructure:"webhook_listen"`
	AdminIDs        []int64       `mapstructure:"admin_ids"`
	DefaultLanguage string        `mapstructure:"default_language" validate:"omitempty,oneof=LT EN RU LV"`
	Locales         string        `mapstructure:"locales"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" validate:"oneof=postgres sqlite"`
	DSN             string        `mapstructure:"dsn" validate:"required"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type SessionConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	MaxAge          time.Duration `mapstructure:"max_age"`
	LockTTL         time.Duration `mapstructure:"lock_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// RateLimitConfig guards inbound updates before they reach any handler.
type RateLimitConfig struct {
	Enabled   bool                     `mapstructure:"enabled"`
	Whitelist []int64                  `mapstructure:"whitelist"`
	Global    RateLimitRule            `mapstructure:"global"`
	PerUser   RateLimitRule            `mapstructure:"per_user"`
	Commands  map[string]RateLimitRule `mapstructure:"commands"`
}

type RateLimitRule struct {
	Limit  int    `mapstructure:"limit"`
	Window string `mapstructure:"window"`
}

type GenerationConfig struct {
	MinInterval      time.Duration  `mapstructure:"min_interval"`
	MaxAttempts      int            `mapstructure:"max_attempts" validate:"gte=1"`
	BaseDelay        time.Duration  `mapstructure:"base_delay"`
	MaxDelay         time.Duration  `mapstructure:"max_delay"`
	Backoff          string         `mapstructure:"backoff" validate:"omitempty,oneof=exponential linear"`
	Timeout          time.Duration  `mapstructure:"timeout"`
	BreakerThreshold int            `mapstructure:"breaker_threshold"`
	BreakerCooldown  time.Duration  `mapstructure:"breaker_cooldown"`
	Primary          ProviderConfig `mapstructure:"primary" validate:"required"`
	Secondary        ProviderConfig `mapstructure:"secondary"`
}

// ProviderConfig describes one generation target.
type ProviderConfig struct {
	Provider    string  `mapstructure:"provider" validate:"omitempty,oneof=openai gemini"`
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float32 `mapstructure:"temperature"`
}

// Enabled reports whether the target is configured.
func (p ProviderConfig) Enabled() bool {
	return p.Provider != "" && p.Model != ""
}

type DeliveryConfig struct {
	Time           string  `mapstructure:"time" validate:"required"`
	Timezone       string  `mapstructure:"timezone" validate:"required"`
	Concurrency    int     `mapstructure:"concurrency"`
	SendRate       float64 `mapstructure:"send_rate"`
	OnDemandPolicy string  `mapstructure:"on_demand_policy" validate:"omitempty,oneof=always once_per_window"`
	Scheduler      string  `mapstructure:"scheduler" validate:"omitempty,oneof=inprocess asynq"`
}

// Location loads the delivery time zone.
func (d DeliveryConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(d.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", d.Timezone, err)
	}
	return loc, nil
}

// FireAt parses the HH:MM delivery time.
func (d DeliveryConfig) FireAt() (hour, minute int, err error) {
	t, err := time.Parse("15:04", d.Time)
	if err != nil {
		return 0, 0, fmt.Errorf("parse delivery time %q: %w", d.Time, err)
	}
	return t.Hour(), t.Minute(), nil
}

type TranscriptionConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	CredentialsFile string `mapstructure:"credentials_file"`
	SampleRate      int32  `mapstructure:"sample_rate"`
	MaxVoiceSeconds int    `mapstructure:"max_voice_seconds"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AdminToken      string        `mapstructure:"admin_token"`
}
