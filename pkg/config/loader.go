package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var secretEnv = map[string]string{
	"bot.token":                      "BOT_TOKEN",
	"database.dsn":                   "DATABASE_DSN",
	"redis.password":                 "REDIS_PASSWORD",
	"sentry.dsn":                     "SENTRY_DSN",
	"server.admin_token":             "ADMIN_TOKEN",
	"generation.primary.api_key":     "PRIMARY_API_KEY",
	"generation.secondary.api_key":   "SECONDARY_API_KEY",
	"transcription.credentials_file": "GOOGLE_APPLICATION_CREDENTIALS",
}

// Load reads configuration from YAML files and environment variables, validates it, and returns the resulting Config.
func Load() (*Config, *viper.Viper, error) {
	for _, file := range []string{".env.local", ".env"} {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("load %s: %w", file, err)
		}
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath(env))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, envName := range secretEnv {
		if err := v.BindEnv(key, envName); err != nil {
			return nil, nil, fmt.Errorf("bind env %s: %w", envName, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, nil, err
	}
	cfg.AppEnv = env

	return cfg, v, nil
}

// Watch re-decodes the configuration on file changes and hands valid
// results to onChange. Invalid edits are logged and ignored.
func Watch(v *viper.Viper, log *slog.Logger, onChange func(*Config)) {
	v.OnConfigChange(func(event fsnotify.Event) {
		cfg, err := decode(v)
		if err != nil {
			log.Warn("ignoring invalid config change", slog.String("file", event.Name), slog.Any("error", err))
			return
		}
		log.Info("config reloaded", slog.String("file", event.Name))
		onChange(cfg)
	})
	v.WatchConfig()
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func configPath(env string) string {
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		return path
	}
	return fmt.Sprintf("./configs/%s.yaml", env)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.file.max_size_mb", 50)
	v.SetDefault("logger.file.max_backups", 5)
	v.SetDefault("logger.file.max_age_days", 14)

	v.SetDefault("bot.mode", "polling")
	v.SetDefault("bot.timeout", 10*time.Second)
	v.SetDefault("bot.default_language", "LT")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("session.ttl", time.Hour)
	v.SetDefault("session.max_age", 24*time.Hour)
	v.SetDefault("session.lock_ttl", 5*time.Second)
	v.SetDefault("session.cleanup_interval", 10*time.Minute)

	v.SetDefault("generation.min_interval", 2*time.Second)
	v.SetDefault("generation.max_attempts", 3)
	v.SetDefault("generation.base_delay", time.Second)
	v.SetDefault("generation.max_delay", 10*time.Second)
	v.SetDefault("generation.backoff", "exponential")
	v.SetDefault("generation.timeout", 30*time.Second)
	v.SetDefault("generation.breaker_threshold", 5)
	v.SetDefault("generation.breaker_cooldown", time.Minute)
	v.SetDefault("generation.primary.max_tokens", 1000)
	v.SetDefault("generation.primary.temperature", 0.7)
	v.SetDefault("generation.secondary.max_tokens", 1000)
	v.SetDefault("generation.secondary.temperature", 0.7)

	v.SetDefault("delivery.time", "07:30")
	v.SetDefault("delivery.timezone", "Europe/Vilnius")
	v.SetDefault("delivery.concurrency", 4)
	v.SetDefault("delivery.send_rate", 1.0)
	v.SetDefault("delivery.on_demand_policy", "always")
	v.SetDefault("delivery.scheduler", "inprocess")

	v.SetDefault("transcription.sample_rate", 48000)
	v.SetDefault("transcription.max_voice_seconds", 60)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
}
