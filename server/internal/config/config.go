package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sensorcal/sensorcal/pkg/pipeline"
)

// AlertsConfig holds alerting rules and their delivery targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
	Kafka    KafkaConfig     `yaml:"kafka"`
}

// AlertRule defines one condition evaluated against the latest reading of a run.
type AlertRule struct {
	// Name is the human-readable alert identifier, used as the deduplication key.
	Name string `yaml:"name"`

	// Condition is a simple expression: "health < 50", "drift > 1.5",
	// "alert == CRITICAL", "anomaly != Normal".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration after an alert fires.
	// Defaults to 15 minutes if zero.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// KafkaConfig publishes alert transitions to a topic. Disabled when Brokers
// is empty.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Enabled reports whether a Kafka sink should be started.
func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

// Default values.
const (
	DefaultHTTPPort       = 8080
	DefaultUploadMaxBytes = 10 << 20
	DefaultStorageBackend = "sqlite"
	DefaultStoragePath    = "data/calibration.db"
	DefaultReportDir      = "data/reports"
	DefaultReportPrefix   = "latest_report"
	DefaultKafkaTopic     = "sensorcal.alerts"
	DefaultStreamInterval = 5 * time.Second
	DefaultLogLevel       = "info"
	DefaultLogMaxSizeMB   = 50
	DefaultLogMaxBackups  = 3
)

// Config is the full sensorcal configuration parsed from config.yaml.
type Config struct {
	Server    ServerConfig        `yaml:"server"`
	Pipeline  pipeline.Thresholds `yaml:"pipeline"`
	Storage   StorageConfig       `yaml:"storage"`
	Reports   ReportsConfig       `yaml:"reports"`
	Alerts    AlertsConfig        `yaml:"alerts"`
	Artifacts ArtifactsConfig     `yaml:"artifacts"`
	Stream    StreamConfig        `yaml:"stream"`
	Logging   LoggingConfig       `yaml:"logging"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	// HTTPPort is the port the REST API and WebSocket hub listen on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// UploadMaxBytes caps the size of an uploaded CSV (default 10 MiB).
	UploadMaxBytes int64 `yaml:"upload_max_bytes"`

	// Auth configures how the server authenticates REST clients.
	Auth AuthConfig `yaml:"auth"`
}

// AuthConfig controls client authentication on the /api routes.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	// Used when Mode == "apikey".
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header name to read the key from.
	// Defaults to "x-api-key" if empty.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// StorageConfig selects the history backend.
type StorageConfig struct {
	// Backend is one of: sqlite | postgres | memory.
	Backend string `yaml:"backend"`

	// Path is the sqlite database file. ":memory:" keeps it in process.
	Path string `yaml:"path"`

	// DSNEnv names the environment variable holding the postgres DSN.
	DSNEnv string `yaml:"dsn_env"`

	// Retention prunes rows older than this. Zero keeps everything.
	Retention time.Duration `yaml:"retention"`
}

// DSN returns the postgres DSN resolved from the environment.
func (s StorageConfig) DSN() string {
	if s.DSNEnv == "" {
		return ""
	}
	return os.Getenv(s.DSNEnv)
}

// ReportsConfig controls where generated report artifacts are written.
type ReportsConfig struct {
	Dir    string `yaml:"dir"`
	Prefix string `yaml:"prefix"`
}

// ArtifactsConfig uploads generated reports to an S3-compatible bucket.
// Disabled when Endpoint is empty.
type ArtifactsConfig struct {
	Endpoint     string `yaml:"endpoint"`
	Bucket       string `yaml:"bucket"`
	AccessKeyEnv string `yaml:"access_key_env"`
	SecretKeyEnv string `yaml:"secret_key_env"`
	UseSSL       bool   `yaml:"use_ssl"`
}

// Enabled reports whether artifact upload is configured.
func (a ArtifactsConfig) Enabled() bool { return a.Endpoint != "" }

// Credentials returns the access and secret keys resolved from the environment.
func (a ArtifactsConfig) Credentials() (accessKey, secretKey string) {
	return os.Getenv(a.AccessKeyEnv), os.Getenv(a.SecretKeyEnv)
}

// StreamConfig controls the websocket status push.
type StreamConfig struct {
	// Interval between periodic status pushes (default 5s).
	Interval time.Duration `yaml:"interval"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	// Level is one of: debug | info | warn | error.
	Level string `yaml:"level"`

	// File, when set, also writes logs to a rotating file.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// Load reads and parses the config file at path.
// Missing fields are filled with sensible defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config pre-populated with default values. It is also the
// configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:       DefaultHTTPPort,
			UploadMaxBytes: DefaultUploadMaxBytes,
		},
		Pipeline: pipeline.DefaultThresholds(),
		Storage: StorageConfig{
			Backend: DefaultStorageBackend,
			Path:    DefaultStoragePath,
		},
		Reports: ReportsConfig{
			Dir:    DefaultReportDir,
			Prefix: DefaultReportPrefix,
		},
		Alerts: AlertsConfig{
			Kafka: KafkaConfig{Topic: DefaultKafkaTopic},
		},
		Stream: StreamConfig{Interval: DefaultStreamInterval},
		Logging: LoggingConfig{
			Level:      DefaultLogLevel,
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", cfg.Server.HTTPPort)
	}
	if cfg.Server.UploadMaxBytes <= 0 {
		return fmt.Errorf("server.upload_max_bytes must be positive")
	}
	switch cfg.Server.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", cfg.Server.Auth.Mode)
	}

	if err := cfg.Pipeline.Validate(); err != nil {
		return err
	}

	switch cfg.Storage.Backend {
	case "sqlite":
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the sqlite backend")
		}
	case "postgres":
		if cfg.Storage.DSNEnv == "" {
			return fmt.Errorf("storage.dsn_env is required for the postgres backend")
		}
	case "memory":
	default:
		return fmt.Errorf("storage.backend %q unknown: want sqlite|postgres|memory", cfg.Storage.Backend)
	}
	if cfg.Storage.Retention < 0 {
		return fmt.Errorf("storage.retention must not be negative")
	}

	if cfg.Reports.Dir == "" {
		return fmt.Errorf("reports.dir must not be empty")
	}
	if cfg.Reports.Prefix == "" || strings.ContainsAny(cfg.Reports.Prefix, `/\`) {
		return fmt.Errorf("reports.prefix %q must be a plain file name", cfg.Reports.Prefix)
	}

	for i, r := range cfg.Alerts.Rules {
		if r.Name == "" {
			return fmt.Errorf("alerts.rules[%d].name is required", i)
		}
		if r.Condition == "" {
			return fmt.Errorf("alerts.rules[%d].condition is required", i)
		}
		if r.Cooldown < 0 {
			return fmt.Errorf("alerts.rules[%d].cooldown must not be negative", i)
		}
	}
	for i, w := range cfg.Alerts.Webhooks {
		switch w.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("alerts.webhooks[%d].type %q unknown: want slack|teams|http", i, w.Type)
		}
	}
	if cfg.Alerts.Kafka.Enabled() && cfg.Alerts.Kafka.Topic == "" {
		return fmt.Errorf("alerts.kafka.topic is required when brokers are set")
	}

	if cfg.Artifacts.Enabled() && cfg.Artifacts.Bucket == "" {
		return fmt.Errorf("artifacts.bucket is required when an endpoint is set")
	}

	if cfg.Stream.Interval <= 0 {
		return fmt.Errorf("stream.interval must be positive")
	}

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q unknown: want debug|info|warn|error", cfg.Logging.Level)
	}
	return nil
}
