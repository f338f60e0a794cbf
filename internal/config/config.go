// Package config loads the jobrelay YAML configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable consulted when no --config flag is given.
const EnvVar = "JOBRELAY_CONFIG"

const defaultPath = "config.yaml"

// Config is the root configuration for jobrelay.
type Config struct {
	Store      StoreConfig
	Classifier ClassifierConfig
	Dispatch   DispatchConfig
	Filters    FilterConfig
	Fetch      FetchConfig
	Telegram   TelegramConfig
	Email      EmailConfig
	Source     SourceConfig
	Lock       LockConfig
	Retention  RetentionConfig
	API        APIConfig
	Log        LogConfig
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

// ClassifierConfig picks the text classifier. The keyword classifier works
// offline; the OpenAI one needs an API key.
type ClassifierConfig struct {
	Type     string // "keyword" or "openai"
	Keywords []string
	OpenAI   OpenAIConfig
}

type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// DispatchConfig controls outreach and operator notification.
type DispatchConfig struct {
	Threshold       float64
	Cooldown        time.Duration
	Operators       []string // Telegram chat ids
	AttachmentPath  string
	Greeting        string
	Caption         string
	FallbackText    string
	EmailSubject    string
	SendTimeout     time.Duration // per contact
	MaxAttempts     int
	MaxBackoff      time.Duration // longest rate-limit wait honoured before giving up
	Concurrency     int
	MinSendInterval time.Duration // between any two outreach sends
}

type FilterConfig struct {
	BlockedHandles      []string
	BlockedEmailDomains []string
}

type FetchConfig struct {
	Enabled  bool
	Timeout  time.Duration
	MaxLinks int
}

type TelegramConfig struct {
	BotToken string
	Channels []string // monitored chats; empty means every chat the bot is in
}

// EmailConfig selects the outbound email transport.
type EmailConfig struct {
	Provider string     `yaml:"provider"` // "smtp", "ses" or "none"
	From     string     `yaml:"from"`
	SMTP     SMTPConfig `yaml:"smtp"`
	SES      SESConfig  `yaml:"ses"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type SESConfig struct {
	Region string `yaml:"region"`
}

// SourceConfig selects where inbound messages come from.
type SourceConfig struct {
	Type      string // "telegram" or "kafka"
	Kafka     KafkaConfig
	Workers   int
	QueueSize int
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

// LockConfig selects the keyed lock backend.
type LockConfig struct {
	Backend string // "memory" or "redis"
	Redis   RedisConfig
	TTL     time.Duration
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// RetentionConfig sets how long records are kept. A zero age keeps a table forever.
type RetentionConfig struct {
	Interval      time.Duration
	Notifications time.Duration
	Deliveries    time.Duration
	Opportunities time.Duration
}

type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LogConfig adds a rotating log file next to stdout when File is set.
type LogConfig struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// Defaults that are not zero values.
var (
	DefaultBlockedHandles      = []string{"@teletype", "@telegram", "@gmail", "@quinton_nietfeld", "@kovesh"}
	DefaultBlockedEmailDomains = []string{"teletype.in", "telegram.org", "noreply"}
)

// rawConfig is used for YAML unmarshaling (snake_case fields and durations as strings).
type rawConfig struct {
	Store      StoreConfig         `yaml:"store"`
	Classifier rawClassifierConfig `yaml:"classifier"`
	Dispatch   rawDispatchConfig   `yaml:"dispatch"`
	Filters    rawFilterConfig     `yaml:"filters"`
	Fetch      rawFetchConfig      `yaml:"fetch"`
	Telegram   rawTelegramConfig   `yaml:"telegram"`
	Email      EmailConfig         `yaml:"email"`
	Source     rawSourceConfig     `yaml:"source"`
	Lock       rawLockConfig       `yaml:"lock"`
	Retention  rawRetentionConfig  `yaml:"retention"`
	API        APIConfig           `yaml:"api"`
	Log        rawLogConfig        `yaml:"log"`
}

type rawClassifierConfig struct {
	Type     string          `yaml:"type"`
	Keywords []string        `yaml:"keywords"`
	OpenAI   rawOpenAIConfig `yaml:"openai"`
}

type rawOpenAIConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	Timeout string `yaml:"timeout"`
}

type rawDispatchConfig struct {
	Threshold       *float64 `yaml:"threshold"`
	Cooldown        string   `yaml:"cooldown"`
	Operators       []string `yaml:"operators"`
	AttachmentPath  string   `yaml:"attachment_path"`
	Greeting        string   `yaml:"greeting"`
	Caption         string   `yaml:"caption"`
	FallbackText    string   `yaml:"fallback_text"`
	EmailSubject    string   `yaml:"email_subject"`
	SendTimeout     string   `yaml:"send_timeout"`
	MaxAttempts     int      `yaml:"max_attempts"`
	MaxBackoff      string   `yaml:"max_backoff"`
	Concurrency     int      `yaml:"concurrency"`
	MinSendInterval string   `yaml:"min_send_interval"`
}

type rawFilterConfig struct {
	BlockedHandles      []string `yaml:"blocked_handles"`
	BlockedEmailDomains []string `yaml:"blocked_email_domains"`
}

type rawFetchConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Timeout  string `yaml:"timeout"`
	MaxLinks int    `yaml:"max_links"`
}

type rawTelegramConfig struct {
	BotToken string   `yaml:"bot_token"`
	Channels []string `yaml:"channels"`
}

type rawSourceConfig struct {
	Type      string      `yaml:"type"`
	Kafka     KafkaConfig `yaml:"kafka"`
	Workers   int         `yaml:"workers"`
	QueueSize int         `yaml:"queue_size"`
}

type rawLockConfig struct {
	Backend string      `yaml:"backend"`
	Redis   RedisConfig `yaml:"redis"`
	TTL     string      `yaml:"ttl"`
}

type rawRetentionConfig struct {
	Interval      string `yaml:"interval"`
	Notifications string `yaml:"notifications"`
	Deliveries    string `yaml:"deliveries"`
	Opportunities string `yaml:"opportunities"`
}

type rawLogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// ResolvePath picks the config file: the flag value, then $JOBRELAY_CONFIG,
// then ./config.yaml.
func ResolvePath(flag string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv(EnvVar); env != "" {
		return env
	}
	return defaultPath
}

// Load reads and parses the YAML config file at path, validates it, and
// returns Config. A .env file next to the config is loaded first so its
// variables can be referenced as ${VAR}; variables already set win.
func Load(path string) (*Config, error) {
	envFile := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg, err := build(raw)
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// durations collects parse errors so build can report the first one.
type durations struct {
	err error
}

func (d *durations) parse(field, raw string, def time.Duration) time.Duration {
	if d.err != nil || strings.TrimSpace(raw) == "" {
		return def
	}
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		d.err = fmt.Errorf("parse %s %q: %w", field, raw, err)
		return def
	}
	return v
}

func build(raw rawConfig) (*Config, error) {
	var d durations

	threshold := 0.60
	if raw.Dispatch.Threshold != nil {
		threshold = *raw.Dispatch.Threshold
	}

	cfg := &Config{
		Store: StoreConfig{Path: orDefault(raw.Store.Path, "jobrelay.db")},
		Classifier: ClassifierConfig{
			Type:     strings.ToLower(orDefault(raw.Classifier.Type, "keyword")),
			Keywords: raw.Classifier.Keywords,
			OpenAI: OpenAIConfig{
				BaseURL: orDefault(raw.Classifier.OpenAI.BaseURL, defaultOpenAIBaseURL),
				APIKey:  raw.Classifier.OpenAI.APIKey,
				Model:   orDefault(raw.Classifier.OpenAI.Model, "gpt-4o-mini"),
				Timeout: d.parse("classifier.openai.timeout", raw.Classifier.OpenAI.Timeout, 30*time.Second),
			},
		},
		Dispatch: DispatchConfig{
			Threshold:       threshold,
			Cooldown:        d.parse("dispatch.cooldown", raw.Dispatch.Cooldown, 24*time.Hour),
			Operators:       raw.Dispatch.Operators,
			AttachmentPath:  orDefault(raw.Dispatch.AttachmentPath, "data/resume.pdf"),
			Greeting:        orDefault(raw.Dispatch.Greeting, "Hello! Here is my resume."),
			Caption:         orDefault(raw.Dispatch.Caption, "Resume (PDF)"),
			FallbackText:    orDefault(raw.Dispatch.FallbackText, "PDF temporarily unavailable. Reply and I will send a link."),
			EmailSubject:    orDefault(raw.Dispatch.EmailSubject, "Resume for your vacancy"),
			SendTimeout:     d.parse("dispatch.send_timeout", raw.Dispatch.SendTimeout, 60*time.Second),
			MaxAttempts:     orDefaultInt(raw.Dispatch.MaxAttempts, 3),
			MaxBackoff:      d.parse("dispatch.max_backoff", raw.Dispatch.MaxBackoff, 5*time.Minute),
			Concurrency:     orDefaultInt(raw.Dispatch.Concurrency, 4),
			MinSendInterval: d.parse("dispatch.min_send_interval", raw.Dispatch.MinSendInterval, time.Second),
		},
		Filters: FilterConfig{
			BlockedHandles:      raw.Filters.BlockedHandles,
			BlockedEmailDomains: raw.Filters.BlockedEmailDomains,
		},
		Fetch: FetchConfig{
			Enabled:  raw.Fetch.Enabled,
			Timeout:  d.parse("fetch.timeout", raw.Fetch.Timeout, 5*time.Second),
			MaxLinks: orDefaultInt(raw.Fetch.MaxLinks, 3),
		},
		Telegram: TelegramConfig{
			BotToken: raw.Telegram.BotToken,
			Channels: raw.Telegram.Channels,
		},
		Email: raw.Email,
		Source: SourceConfig{
			Type:      strings.ToLower(orDefault(raw.Source.Type, "telegram")),
			Kafka:     raw.Source.Kafka,
			Workers:   orDefaultInt(raw.Source.Workers, 2),
			QueueSize: orDefaultInt(raw.Source.QueueSize, 100),
		},
		Lock: LockConfig{
			Backend: strings.ToLower(orDefault(raw.Lock.Backend, "memory")),
			Redis:   raw.Lock.Redis,
			TTL:     d.parse("lock.ttl", raw.Lock.TTL, 2*time.Minute),
		},
		Retention: RetentionConfig{
			Interval:      d.parse("retention.interval", raw.Retention.Interval, 24*time.Hour),
			Notifications: d.parse("retention.notifications", raw.Retention.Notifications, 30*24*time.Hour),
			Deliveries:    d.parse("retention.deliveries", raw.Retention.Deliveries, 30*24*time.Hour),
			Opportunities: d.parse("retention.opportunities", raw.Retention.Opportunities, 60*24*time.Hour),
		},
		API: APIConfig{
			Enabled: raw.API.Enabled,
			Addr:    orDefault(raw.API.Addr, ":8080"),
		},
		Log: LogConfig{
			File:       raw.Log.File,
			MaxSizeMB:  orDefaultInt(raw.Log.MaxSizeMB, 50),
			MaxBackups: orDefaultInt(raw.Log.MaxBackups, 5),
			MaxAgeDays: orDefaultInt(raw.Log.MaxAgeDays, 30),
		},
	}
	if d.err != nil {
		return nil, d.err
	}

	// nil means "not configured"; an explicit empty list disables the blocklist.
	if cfg.Filters.BlockedHandles == nil {
		cfg.Filters.BlockedHandles = DefaultBlockedHandles
	}
	if cfg.Filters.BlockedEmailDomains == nil {
		cfg.Filters.BlockedEmailDomains = DefaultBlockedEmailDomains
	}
	cfg.Email.Provider = strings.ToLower(orDefault(cfg.Email.Provider, "none"))
	if cfg.Email.SMTP.Port == 0 {
		cfg.Email.SMTP.Port = 587
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Dispatch.Threshold < 0 || cfg.Dispatch.Threshold > 1 {
		return fmt.Errorf("dispatch.threshold must be between 0 and 1, got %v", cfg.Dispatch.Threshold)
	}
	if cfg.Dispatch.Cooldown < 0 {
		return fmt.Errorf("dispatch.cooldown must not be negative, got %v", cfg.Dispatch.Cooldown)
	}

	switch cfg.Classifier.Type {
	case "keyword":
	case "openai":
		if cfg.Classifier.OpenAI.APIKey == "" {
			return fmt.Errorf("classifier.openai.api_key is required when classifier.type is \"openai\"")
		}
	default:
		return fmt.Errorf("classifier.type must be \"keyword\" or \"openai\", got %q", cfg.Classifier.Type)
	}

	switch cfg.Email.Provider {
	case "none":
	case "smtp":
		if cfg.Email.SMTP.Host == "" {
			return fmt.Errorf("email.smtp.host is required when email.provider is \"smtp\"")
		}
		if cfg.Email.From == "" {
			return fmt.Errorf("email.from is required when email.provider is \"smtp\"")
		}
	case "ses":
		if cfg.Email.From == "" {
			return fmt.Errorf("email.from is required when email.provider is \"ses\"")
		}
	default:
		return fmt.Errorf("email.provider must be \"smtp\", \"ses\" or \"none\", got %q", cfg.Email.Provider)
	}

	switch cfg.Source.Type {
	case "telegram":
	case "kafka":
		if len(cfg.Source.Kafka.Brokers) == 0 || cfg.Source.Kafka.Topic == "" {
			return fmt.Errorf("source.kafka.brokers and source.kafka.topic are required when source.type is \"kafka\"")
		}
	default:
		return fmt.Errorf("source.type must be \"telegram\" or \"kafka\", got %q", cfg.Source.Type)
	}

	switch cfg.Lock.Backend {
	case "memory":
	case "redis":
		if cfg.Lock.Redis.Addr == "" {
			return fmt.Errorf("lock.redis.addr is required when lock.backend is \"redis\"")
		}
	default:
		return fmt.Errorf("lock.backend must be \"memory\" or \"redis\", got %q", cfg.Lock.Backend)
	}

	return nil
}

// RequireTelegram checks the settings needed to talk to the Bot API.
func (c *Config) RequireTelegram() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required")
	}
	return nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func orDefaultInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
