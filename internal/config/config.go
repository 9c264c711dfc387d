package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"contesthub/internal/domain"
)

// Queue backends.
const (
	QueueBadger = "badger"
	QueueRedis  = "redis"
)

// Config holds all configuration for the application.
// Values are read by viper from a config file or environment variables.
type Config struct {
	LogLevel     string `mapstructure:"LOG_LEVEL"`
	BadgerDBPath string `mapstructure:"BADGERDB_PATH"`
	HTTPAddr     string `mapstructure:"HTTP_ADDR"`

	ScrapeInterval        time.Duration `mapstructure:"SCRAPE_INTERVAL"`
	PageTimeout           time.Duration `mapstructure:"PAGE_TIMEOUT"`
	BrowserBin            string        `mapstructure:"BROWSER_BIN"`
	BrowserUserAgent      string        `mapstructure:"BROWSER_USER_AGENT"`
	BrowserAcceptLanguage string        `mapstructure:"BROWSER_ACCEPT_LANGUAGE"`
	RollElapsedWeekday    bool          `mapstructure:"ROLL_ELAPSED_WEEKDAY"`
	CodeforcesAPIURL      string        `mapstructure:"CODEFORCES_API_URL"`
	APIRatePerSecond      float64       `mapstructure:"API_RATE_PER_SECOND"`

	YouTubeAPIKey         string `mapstructure:"YOUTUBE_API_KEY"`
	YouTubeAPIURL         string `mapstructure:"YOUTUBE_API_URL"`
	PCDWindow             int    `mapstructure:"PCD_WINDOW"`
	PCDPlaylistLeetcode   string `mapstructure:"PCD_PLAYLIST_LEETCODE"`
	PCDPlaylistCodechef   string `mapstructure:"PCD_PLAYLIST_CODECHEF"`
	PCDPlaylistCodeforces string `mapstructure:"PCD_PLAYLIST_CODEFORCES"`

	TelegramBotToken string `mapstructure:"TELEGRAM_BOT_TOKEN"`

	QueueBackend        string        `mapstructure:"QUEUE_BACKEND"`
	RedisAddr           string        `mapstructure:"REDIS_ADDR"`
	RedisPassword       string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB             int           `mapstructure:"REDIS_DB"`
	RedisConnectTimeout time.Duration `mapstructure:"REDIS_CONNECT_TIMEOUT"`

	ReminderLead        time.Duration `mapstructure:"REMINDER_LEAD"`
	ReminderMaxAttempts int           `mapstructure:"REMINDER_MAX_ATTEMPTS"`
	ReminderBackoff     time.Duration `mapstructure:"REMINDER_BACKOFF"`
	WorkerConcurrency   int           `mapstructure:"WORKER_CONCURRENCY"`
	WorkerPollInterval  time.Duration `mapstructure:"WORKER_POLL_INTERVAL"`
}

var defaults = map[string]any{
	"LOG_LEVEL":     "info",
	"BADGERDB_PATH": "./badger_data",
	"HTTP_ADDR":     ":8080",

	"SCRAPE_INTERVAL":         12 * time.Hour,
	"PAGE_TIMEOUT":            50 * time.Second,
	"BROWSER_BIN":             "",
	"BROWSER_USER_AGENT":      "",
	"BROWSER_ACCEPT_LANGUAGE": "",
	"ROLL_ELAPSED_WEEKDAY":    true,
	"CODEFORCES_API_URL":      "https://codeforces.com/api/contest.list",
	"API_RATE_PER_SECOND":     1.0,

	"YOUTUBE_API_KEY":         "",
	"YOUTUBE_API_URL":         "https://www.googleapis.com/youtube/v3",
	"PCD_WINDOW":              5,
	"PCD_PLAYLIST_LEETCODE":   "",
	"PCD_PLAYLIST_CODECHEF":   "",
	"PCD_PLAYLIST_CODEFORCES": "",

	"TELEGRAM_BOT_TOKEN": "",

	"QUEUE_BACKEND":         QueueBadger,
	"REDIS_ADDR":            "localhost:6379",
	"REDIS_PASSWORD":        "",
	"REDIS_DB":              0,
	"REDIS_CONNECT_TIMEOUT": 30 * time.Second,

	"REMINDER_LEAD":         15 * time.Minute,
	"REMINDER_MAX_ATTEMPTS": 3,
	"REMINDER_BACKOFF":      30 * time.Second,
	"WORKER_CONCURRENCY":    2,
	"WORKER_POLL_INTERVAL":  time.Second,
}

// LoadConfig reads configuration from file or environment variables.
// A missing config file is not an error.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Every key needs a default so Unmarshal sees env-only values.
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unable to decode into struct: %w", err)
	}
	cfg.QueueBackend = strings.ToLower(strings.TrimSpace(cfg.QueueBackend))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the services cannot run with.
func (c Config) Validate() error {
	switch c.QueueBackend {
	case QueueBadger, QueueRedis:
	default:
		return fmt.Errorf("QUEUE_BACKEND must be %q or %q, got %q", QueueBadger, QueueRedis, c.QueueBackend)
	}
	if c.QueueBackend == QueueRedis && c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required for the redis queue backend")
	}
	if c.BadgerDBPath == "" {
		return fmt.Errorf("BADGERDB_PATH is not set")
	}
	for name, d := range map[string]time.Duration{
		"SCRAPE_INTERVAL":      c.ScrapeInterval,
		"PAGE_TIMEOUT":         c.PageTimeout,
		"REMINDER_LEAD":        c.ReminderLead,
		"WORKER_POLL_INTERVAL": c.WorkerPollInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.ReminderMaxAttempts < 1 {
		return fmt.Errorf("REMINDER_MAX_ATTEMPTS must be at least 1, got %d", c.ReminderMaxAttempts)
	}
	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1, got %d", c.WorkerConcurrency)
	}
	if c.PCDWindow < 1 {
		return fmt.Errorf("PCD_WINDOW must be at least 1, got %d", c.PCDWindow)
	}
	return nil
}

// Playlists maps each platform to its discussion playlist id. Empty ids
// are kept; the backfill skips them.
func (c Config) Playlists() map[domain.Platform]string {
	return map[domain.Platform]string{
		domain.PlatformLeetcode:   c.PCDPlaylistLeetcode,
		domain.PlatformCodechef:   c.PCDPlaylistCodechef,
		domain.PlatformCodeforces: c.PCDPlaylistCodeforces,
	}
}
