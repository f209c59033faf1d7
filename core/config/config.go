package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TwilioConfig holds the Messaging API credentials and the sending number.
type TwilioConfig struct {
	AccountSID string `yaml:"account_sid" envconfig:"ACCOUNT_SID"`
	AuthToken  string `yaml:"auth_token" envconfig:"AUTH_TOKEN"`
	FromNumber string `yaml:"from_number" envconfig:"TWILIO_NUMBER"`
	// TimeoutSeconds bounds a single Messages API call; 0 -> default
	TimeoutSeconds int `yaml:"timeout_seconds" envconfig:"TWILIO_TIMEOUT_SECONDS"`
}

// BotConfig describes the scripted conversation assets.
type BotConfig struct {
	Name          string `yaml:"name" envconfig:"BOT_NAME"`
	QuestionsFile string `yaml:"questions_file" envconfig:"QUESTIONS_FILE"`
	AudioURL      string `yaml:"audio_url" envconfig:"AUDIO_URL"`
	// FollowUpDelayMS is the pause before each follow-up message.
	FollowUpDelayMS int `yaml:"follow_up_delay_ms" envconfig:"FOLLOW_UP_DELAY_MS"`
}

// HTTPConfig specifies the webhook listener.
type HTTPConfig struct {
	Listen string `yaml:"listen" envconfig:"HTTP_LISTEN"`
	Port   int    `yaml:"port" envconfig:"PORT"`
	// PublicURL is the externally visible base URL, required for signature validation.
	PublicURL         string `yaml:"public_url" envconfig:"PUBLIC_URL"`
	ValidateSignature bool   `yaml:"validate_signature" envconfig:"VALIDATE_SIGNATURE"`
	DebugToken        string `yaml:"debug_token" envconfig:"DEBUG_TOKEN"`
}

// StoreConfig selects the conversation store backend.
type StoreConfig struct {
	Backend string `yaml:"backend" envconfig:"STORE_BACKEND"`
}

// DispatchConfig tunes the follow-up worker pool.
type DispatchConfig struct {
	Workers   int `yaml:"workers" envconfig:"DISPATCH_WORKERS"`
	QueueSize int `yaml:"queue_size" envconfig:"DISPATCH_QUEUE_SIZE"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	File        string `yaml:"file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

// RateLimitConfig holds settings for per-sender rate limiting. Zero disables it.
type RateLimitConfig struct {
	IntervalMS int `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
}

// DatabaseConfig holds Postgres connection settings used by the postgres store backend.
type DatabaseConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
	MigrationsDir  string `yaml:"migrations_dir" envconfig:"DB_MIGRATIONS_DIR"`
}

const (
	// StoreMemory keeps conversations in process memory.
	StoreMemory = "memory"
	// StorePostgres keeps conversations in a Postgres table.
	StorePostgres = "postgres"
)

const (
	defaultQuestionsFile   = "perguntas.json"
	defaultBotName         = "Evelyn-Mon"
	defaultListen          = "0.0.0.0"
	defaultPort            = 5000
	defaultFollowUpDelayMS = 1000
	defaultTimeoutSeconds  = 15
	defaultMigrationsDir   = "migrations"
)

// Config aggregates the service configuration.
type Config struct {
	Twilio    TwilioConfig    `yaml:"twilio"`
	Bot       BotConfig       `yaml:"bot"`
	HTTP      HTTPConfig      `yaml:"http"`
	Store     StoreConfig     `yaml:"store"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Database  DatabaseConfig  `yaml:"database"`
}

// Load reads configuration from an optional YAML file and environment variables.
// An empty path or a missing file leaves the environment as the only source.
func Load(path string) (*Config, error) {
	var cfg Config

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse YAML config: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if strings.TrimSpace(cfg.Twilio.AccountSID) == "" {
		return fmt.Errorf("twilio.account_sid (ACCOUNT_SID) is required")
	}
	if strings.TrimSpace(cfg.Twilio.AuthToken) == "" {
		return fmt.Errorf("twilio.auth_token (AUTH_TOKEN) is required")
	}
	if strings.TrimSpace(cfg.Twilio.FromNumber) == "" {
		return fmt.Errorf("twilio.from_number (TWILIO_NUMBER) is required")
	}
	if cfg.Twilio.TimeoutSeconds < 0 {
		return fmt.Errorf("twilio.timeout_seconds must be >= 0")
	}
	if cfg.Twilio.TimeoutSeconds == 0 {
		cfg.Twilio.TimeoutSeconds = defaultTimeoutSeconds
	}

	if strings.TrimSpace(cfg.Bot.AudioURL) == "" {
		return fmt.Errorf("bot.audio_url (AUDIO_URL) is required")
	}
	if u, err := url.Parse(cfg.Bot.AudioURL); err != nil || u.Scheme != "https" {
		return fmt.Errorf("bot.audio_url must be an https URL, got %q", cfg.Bot.AudioURL)
	}
	if strings.TrimSpace(cfg.Bot.QuestionsFile) == "" {
		cfg.Bot.QuestionsFile = defaultQuestionsFile
	}
	if strings.TrimSpace(cfg.Bot.Name) == "" {
		cfg.Bot.Name = defaultBotName
	}
	if cfg.Bot.FollowUpDelayMS < 0 {
		return fmt.Errorf("bot.follow_up_delay_ms must be >= 0")
	}
	if cfg.Bot.FollowUpDelayMS == 0 {
		cfg.Bot.FollowUpDelayMS = defaultFollowUpDelayMS
	}

	if strings.TrimSpace(cfg.HTTP.Listen) == "" {
		cfg.HTTP.Listen = defaultListen
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = defaultPort
	}
	if cfg.HTTP.Port < 0 || cfg.HTTP.Port > 65535 {
		return fmt.Errorf("http.port out of range: %d", cfg.HTTP.Port)
	}
	if cfg.HTTP.ValidateSignature && strings.TrimSpace(cfg.HTTP.PublicURL) == "" {
		return fmt.Errorf("http.public_url is required when http.validate_signature is enabled")
	}
	cfg.HTTP.PublicURL = strings.TrimRight(strings.TrimSpace(cfg.HTTP.PublicURL), "/")

	backend := strings.ToLower(strings.TrimSpace(cfg.Store.Backend))
	if backend == "" {
		backend = StoreMemory
	}
	if backend == "pg" || backend == "postgresql" { // accept alias
		backend = StorePostgres
	}
	switch backend {
	case StoreMemory:
	case StorePostgres:
		if strings.TrimSpace(cfg.Database.Host) == "" || strings.TrimSpace(cfg.Database.Name) == "" {
			return fmt.Errorf("database.host and database.name are required when store.backend is 'postgres'")
		}
		if cfg.Database.Port == "" {
			cfg.Database.Port = "5432"
		}
		if cfg.Database.SSLMode == "" {
			cfg.Database.SSLMode = "disable"
		}
		if cfg.Database.MaxConnections <= 0 {
			cfg.Database.MaxConnections = 5
		}
		if cfg.Database.MigrationsDir == "" {
			cfg.Database.MigrationsDir = defaultMigrationsDir
		}
	default:
		return fmt.Errorf("invalid store.backend %q; allowed: memory, postgres", cfg.Store.Backend)
	}
	cfg.Store.Backend = backend

	if cfg.Dispatch.Workers < 0 || cfg.Dispatch.QueueSize < 0 {
		return fmt.Errorf("dispatch.workers and dispatch.queue_size must be >= 0")
	}
	if cfg.RateLimit.IntervalMS < 0 {
		return fmt.Errorf("rate_limit.interval_ms must be >= 0")
	}
	return nil
}

// FollowUpDelay returns the configured pause between follow-up sends.
func (c *Config) FollowUpDelay() time.Duration {
	return time.Duration(c.Bot.FollowUpDelayMS) * time.Millisecond
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Listen, c.HTTP.Port)
}
