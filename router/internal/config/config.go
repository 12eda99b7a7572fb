package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/txnroute/txnroute/router/internal/classifier"
)

// Default values for the router configuration.
const (
	DefaultGRPCPort          = 50051
	DefaultHTTPPort          = 8080
	DefaultWindowTTL         = 5 * time.Minute
	DefaultMaxPerChannel     = 500
	DefaultDispatchBuffer    = 1000
	DefaultBroadcastInterval = 5 * time.Second
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "json"
	DefaultPostgresTable     = "routed_transactions"
)

// Config holds the router configuration parsed from the `router:` section of
// config.yaml. The `feeder:` key in the same file is ignored.
type Config struct {
	Router RouterConfig `yaml:"router"`
}

// RouterConfig holds all router-side settings.
type RouterConfig struct {
	// GRPCPort is the port the gRPC RecordService listens on (default 50051).
	GRPCPort int `yaml:"grpc_port"`

	// HTTPPort is the port the REST API, metrics and WebSocket hub listen on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// Auth configures how the router authenticates gRPC and REST clients.
	Auth AuthConfig `yaml:"auth"`

	// Processor holds the transaction processor properties.
	Processor ProcessorConfig `yaml:"processor"`

	// Window controls the in-memory window of recently routed records.
	Window WindowConfig `yaml:"window"`

	// Dispatch controls the sink delivery buffer.
	Dispatch DispatchConfig `yaml:"dispatch"`

	// BroadcastInterval is how often the WebSocket hub pushes stats.
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`

	// Logging selects the slog level and handler format.
	Logging LoggingConfig `yaml:"logging"`

	// Sinks receive every routed record of the channels they subscribe to.
	Sinks []SinkConfig `yaml:"sinks"`
}

// AuthConfig controls client authentication.
type AuthConfig struct {
	// Mode is one of: apikey | jwt | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable holding the expected
	// API key. Used when Mode == "apikey".
	KeyEnv string `yaml:"key_env"`

	// Header is the gRPC metadata key (and HTTP header name) carrying the key.
	// Defaults to "x-api-key" if empty.
	Header string `yaml:"header"`

	// SecretEnv is the name of the environment variable holding the HMAC
	// secret for bearer tokens. Used when Mode == "jwt".
	SecretEnv string `yaml:"secret_env"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// Secret returns the JWT signing secret resolved from the environment.
func (a AuthConfig) Secret() string {
	if a.SecretEnv == "" {
		return ""
	}
	return os.Getenv(a.SecretEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// ProcessorConfig holds the Transaction Threshold property.
type ProcessorConfig struct {
	// Threshold is the Transaction Threshold; amounts strictly above it are
	// routed to the fraud channel. Default 1000, must be non-negative.
	Threshold int64 `yaml:"threshold"`
}

// WindowConfig controls retention of recently routed records.
type WindowConfig struct {
	// TTL is how long a routed record stays visible after it was routed.
	TTL time.Duration `yaml:"ttl"`

	// MaxPerChannel caps the records kept per channel; the oldest go first.
	MaxPerChannel int `yaml:"max_per_channel"`
}

// DispatchConfig controls the sink delivery buffer.
type DispatchConfig struct {
	// BufferSize is the number of routed records waiting for delivery before
	// the oldest is dropped.
	BufferSize int `yaml:"buffer_size"`
}

// LoggingConfig selects the slog level and format.
type LoggingConfig struct {
	// Level is one of: debug | info | warn | error.
	Level string `yaml:"level"`

	// Format is one of: json | text.
	Format string `yaml:"format"`
}

// SinkConfig defines one delivery target for routed records.
type SinkConfig struct {
	// Name identifies the sink in logs and metrics.
	Name string `yaml:"name"`

	// Type is one of: webhook | postgres | file.
	Type string `yaml:"type"`

	// Channels limits the sink to these channels. Empty means both.
	Channels []string `yaml:"channels"`

	Webhook  WebhookConfig  `yaml:"webhook"`
	Postgres PostgresConfig `yaml:"postgres"`
	File     FileConfig     `yaml:"file"`
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

// PostgresConfig defines a PostgreSQL table sink.
type PostgresConfig struct {
	// DSNEnv is the name of the environment variable holding the connection URL.
	DSNEnv string `yaml:"dsn_env"`

	// Table is the destination table, created on startup if missing.
	Table string `yaml:"table"`
}

// DSN returns the connection URL resolved from the environment.
func (p PostgresConfig) DSN() string {
	if p.DSNEnv == "" {
		return ""
	}
	return os.Getenv(p.DSNEnv)
}

// FileConfig defines a JSON-lines file sink.
type FileConfig struct {
	Path string `yaml:"path"`
}

// Load reads and parses the config file at path, returning the router configuration.
// Missing fields are filled with sensible defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("router config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("router config: parse yaml: %w", err)
	}
	applySinkDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("router config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Router: RouterConfig{
			GRPCPort: DefaultGRPCPort,
			HTTPPort: DefaultHTTPPort,
			Processor: ProcessorConfig{
				Threshold: classifier.DefaultThreshold,
			},
			Window: WindowConfig{
				TTL:           DefaultWindowTTL,
				MaxPerChannel: DefaultMaxPerChannel,
			},
			Dispatch: DispatchConfig{
				BufferSize: DefaultDispatchBuffer,
			},
			BroadcastInterval: DefaultBroadcastInterval,
			Logging: LoggingConfig{
				Level:  DefaultLogLevel,
				Format: DefaultLogFormat,
			},
		},
	}
}

// applySinkDefaults fills per-sink defaults that cannot be pre-populated
// because the slice length is only known after unmarshalling.
func applySinkDefaults(cfg *Config) {
	for i := range cfg.Router.Sinks {
		s := &cfg.Router.Sinks[i]
		if len(s.Channels) == 0 {
			s.Channels = []string{string(classifier.ChannelFraud), string(classifier.ChannelNonFraud)}
		}
		if s.Type == "postgres" && s.Postgres.Table == "" {
			s.Postgres.Table = DefaultPostgresTable
		}
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	r := cfg.Router
	if r.GRPCPort <= 0 || r.GRPCPort > 65535 {
		return fmt.Errorf("router.grpc_port %d is out of range [1, 65535]", r.GRPCPort)
	}
	if r.HTTPPort <= 0 || r.HTTPPort > 65535 {
		return fmt.Errorf("router.http_port %d is out of range [1, 65535]", r.HTTPPort)
	}
	switch r.Auth.Mode {
	case "apikey", "jwt", "none", "":
	default:
		return fmt.Errorf("router.auth.mode %q unknown: want apikey|jwt|none", r.Auth.Mode)
	}
	if err := classifier.CheckThreshold(r.Processor.Threshold); err != nil {
		return fmt.Errorf("router.processor.threshold: %w", err)
	}
	if r.Window.TTL <= 0 {
		return fmt.Errorf("router.window.ttl must be positive")
	}
	if r.Window.MaxPerChannel <= 0 {
		return fmt.Errorf("router.window.max_per_channel must be positive")
	}
	if r.Dispatch.BufferSize <= 0 {
		return fmt.Errorf("router.dispatch.buffer_size must be positive")
	}
	if r.BroadcastInterval <= 0 {
		return fmt.Errorf("router.broadcast_interval must be positive")
	}
	switch r.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("router.logging.level %q unknown: want debug|info|warn|error", r.Logging.Level)
	}
	switch r.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("router.logging.format %q unknown: want json|text", r.Logging.Format)
	}

	seen := make(map[string]bool, len(r.Sinks))
	for i, s := range r.Sinks {
		if s.Name == "" {
			return fmt.Errorf("sinks[%d]: name is required", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("sinks[%d]: duplicate name %q", i, s.Name)
		}
		seen[s.Name] = true

		for _, ch := range s.Channels {
			if ch != string(classifier.ChannelFraud) && ch != string(classifier.ChannelNonFraud) {
				return fmt.Errorf("sinks[%d] %q: unknown channel %q", i, s.Name, ch)
			}
		}
		switch s.Type {
		case "webhook":
			switch s.Webhook.Type {
			case "slack", "teams", "http":
			default:
				return fmt.Errorf("sinks[%d] %q: unknown webhook type %q", i, s.Name, s.Webhook.Type)
			}
			if s.Webhook.URLEnv == "" {
				return fmt.Errorf("sinks[%d] %q: webhook.url_env is required", i, s.Name)
			}
		case "postgres":
			if s.Postgres.DSNEnv == "" {
				return fmt.Errorf("sinks[%d] %q: postgres.dsn_env is required", i, s.Name)
			}
		case "file":
			if s.File.Path == "" {
				return fmt.Errorf("sinks[%d] %q: file.path is required", i, s.Name)
			}
		default:
			return fmt.Errorf("sinks[%d] %q: unknown type %q", i, s.Name, s.Type)
		}
	}
	return nil
}
