// Package config loads and validates augmentweb configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/augmentweb/internal/dataset"
)

// Provider names accepted by the storage, db and pubsub sections.
const (
	ProviderMemory   = "memory"
	ProviderLocal    = "local"
	ProviderGCS      = "gcs"
	ProviderPostgres = "postgres"
	ProviderPubSub   = "pubsub"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Intake  IntakeConfig  `mapstructure:"intake"`
	Storage StorageConfig `mapstructure:"storage"`
	DB      DBConfig      `mapstructure:"db"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Client  ClientConfig  `mapstructure:"client"`
	Browser BrowserConfig `mapstructure:"browser"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	MaxUploadMB           int `mapstructure:"max_upload_mb"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// IntakeConfig governs how /user_input submissions are judged and announced.
type IntakeConfig struct {
	Policy         string  `mapstructure:"policy"`
	ValidateLayout bool    `mapstructure:"validate_layout"`
	Topic          string  `mapstructure:"topic"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// StorageConfig selects where uploaded archives are written.
type StorageConfig struct {
	Provider string             `mapstructure:"provider"`
	Prefix   string             `mapstructure:"prefix"`
	Local    LocalStorageConfig `mapstructure:"local"`
	GCS      GCSStorageConfig   `mapstructure:"gcs"`
}

// LocalStorageConfig configures filesystem blob storage.
type LocalStorageConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// GCSStorageConfig configures Google Cloud Storage.
type GCSStorageConfig struct {
	Bucket string `mapstructure:"bucket"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
}

// ClientConfig configures the submission client used by the CLI.
type ClientConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
	Policy         string `mapstructure:"policy"`
}

// BrowserConfig configures the headless Chrome driver.
type BrowserConfig struct {
	NavTimeoutSeconds int `mapstructure:"nav_timeout_seconds"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AUGMENTWEB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_upload_mb", 512)
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("logging.development", true)
	v.SetDefault("intake.policy", string(dataset.PolicyExactlyOne))
	v.SetDefault("intake.validate_layout", true)
	v.SetDefault("intake.topic", "training-requests")
	v.SetDefault("intake.rate_limit_rps", 0)
	v.SetDefault("intake.rate_limit_burst", 5)
	v.SetDefault("storage.provider", ProviderMemory)
	v.SetDefault("storage.prefix", "datasets")
	v.SetDefault("storage.local.base_dir", "data/uploads")
	v.SetDefault("storage.gcs.bucket", "")
	v.SetDefault("db.provider", ProviderMemory)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "submissions")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("pubsub.provider", ProviderMemory)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("client.base_url", "http://localhost:8080")
	v.SetDefault("client.timeout_seconds", 30)
	v.SetDefault("client.user_agent", "augmentweb-client/0.1")
	v.SetDefault("client.policy", string(dataset.PolicyExactlyOne))
	v.SetDefault("browser.nav_timeout_seconds", 30)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("server.max_upload_mb must be > 0")
	}
	if c.Server.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("server.request_timeout_seconds must be > 0")
	}
	if _, err := dataset.ParsePolicy(c.Intake.Policy); err != nil {
		return fmt.Errorf("intake.policy: %w", err)
	}
	if _, err := dataset.ParsePolicy(c.Client.Policy); err != nil {
		return fmt.Errorf("client.policy: %w", err)
	}
	if strings.TrimSpace(c.Intake.Topic) == "" {
		return fmt.Errorf("intake.topic must be set")
	}
	if c.Intake.RateLimitRPS < 0 {
		return fmt.Errorf("intake.rate_limit_rps must be >= 0")
	}
	if c.Intake.RateLimitRPS > 0 && c.Intake.RateLimitBurst <= 0 {
		return fmt.Errorf("intake.rate_limit_burst must be > 0 when rate limiting is enabled")
	}

	switch c.Storage.Provider {
	case ProviderMemory:
	case ProviderLocal:
		if c.Storage.Local.BaseDir == "" {
			return fmt.Errorf("storage.local.base_dir must be set when storage.provider is local")
		}
	case ProviderGCS:
		if c.Storage.GCS.Bucket == "" {
			return fmt.Errorf("storage.gcs.bucket must be set when storage.provider is gcs")
		}
	default:
		return fmt.Errorf("storage.provider %q is not supported", c.Storage.Provider)
	}

	switch c.DB.Provider {
	case ProviderMemory:
	case ProviderPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when db.provider is postgres")
		}
	default:
		return fmt.Errorf("db.provider %q is not supported", c.DB.Provider)
	}

	switch c.PubSub.Provider {
	case ProviderMemory:
	case ProviderPubSub:
		if c.PubSub.ProjectID == "" {
			return fmt.Errorf("pubsub.project_id must be set when pubsub.provider is pubsub")
		}
	default:
		return fmt.Errorf("pubsub.provider %q is not supported", c.PubSub.Provider)
	}

	if c.Client.TimeoutSeconds <= 0 {
		return fmt.Errorf("client.timeout_seconds must be > 0")
	}
	if c.Browser.NavTimeoutSeconds <= 0 {
		return fmt.Errorf("browser.nav_timeout_seconds must be > 0")
	}
	return nil
}

// MaxUploadBytes returns the request body limit for /user_input.
func (c Config) MaxUploadBytes() int64 {
	return int64(c.Server.MaxUploadMB) << 20
}

// RequestTimeout converts the server request timeout into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// ClientTimeout converts the client timeout into a duration.
func (c Config) ClientTimeout() time.Duration {
	return time.Duration(c.Client.TimeoutSeconds) * time.Second
}

// NavTimeout converts the browser navigation timeout into a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Browser.NavTimeoutSeconds) * time.Second
}
