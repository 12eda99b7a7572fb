package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultPollInterval  = 10 * time.Second
	DefaultBufferSize    = 1000
	DefaultBatchSize     = 100
	DefaultProbeInterval = 30 * time.Second
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "json"
)

// Config holds the feeder configuration parsed from the `feeder:` section.
type Config struct {
	Feeder FeederConfig `yaml:"feeder"`
}

// FeederConfig holds all feeder-side settings.
type FeederConfig struct {
	// RouterEndpoint is the gRPC address of the router (host:port).
	RouterEndpoint string `yaml:"router_endpoint"`

	// PollInterval controls how often each source is read.
	PollInterval time.Duration `yaml:"poll_interval"`

	// BufferSize is the maximum number of records held in memory while the
	// router is unreachable. The oldest record is dropped first.
	BufferSize int `yaml:"buffer_size"`

	// BatchSize caps the records sent in one Submit call.
	BatchSize int `yaml:"batch_size"`

	// RouterAuth configures how the feeder authenticates to the router.
	// Supports: mtls | apikey | bearer | none.
	RouterAuth AuthConfig `yaml:"router_auth"`

	// RouterMetricsURL is the router's /metrics URL. When set, the feeder
	// periodically logs routed/dropped rates read from it.
	RouterMetricsURL string `yaml:"router_metrics_url"`

	// ProbeInterval controls how often RouterMetricsURL is read.
	ProbeInterval time.Duration `yaml:"probe_interval"`

	// Logging selects the slog level and handler format.
	Logging LoggingConfig `yaml:"logging"`

	// Sources produce the transaction records to submit.
	Sources []Source `yaml:"sources"`
}

// LoggingConfig selects the slog level and format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Source describes one producer of transaction records.
type Source struct {
	// ID is a unique, human-readable identifier for this source.
	ID string `yaml:"id"`

	// Type is one of: file | http.
	Type string `yaml:"type"`

	// Path is the JSON-lines file to tail. Used when Type == "file".
	Path string `yaml:"path"`

	// Endpoint is the URL returning a JSON array of records. Used when
	// Type == "http".
	Endpoint string `yaml:"endpoint"`

	// Auth configures how the feeder authenticates to this source.
	Auth AuthConfig `yaml:"auth"`

	// TLS holds optional TLS dial options.
	TLS TLSConfig `yaml:"tls"`
}

// AuthConfig specifies an authentication mode and its credentials.
type AuthConfig struct {
	// Mode is one of: mtls | apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	// mTLS fields, used when Mode == "mtls".
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`

	// Header is the header (or gRPC metadata key) carrying the API key.
	Header string `yaml:"header"`
	// KeyEnv names the environment variable holding the API key.
	KeyEnv string `yaml:"key_env"`

	// TokenEnv names the environment variable holding a bearer token.
	TokenEnv string `yaml:"token_env"`

	// Username is the literal basic-auth username.
	Username string `yaml:"username"`
	// PasswordEnv names the environment variable holding the password.
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key resolved from the environment.
func (a AuthConfig) Key() string { return env(a.KeyEnv) }

// Token returns the bearer token resolved from the environment.
func (a AuthConfig) Token() string { return env(a.TokenEnv) }

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string { return env(a.PasswordEnv) }

// EffectiveHeader returns Header, or "x-api-key" when unset.
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

func env(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}

// TLSConfig holds per-source TLS dial options.
type TLSConfig struct {
	// InsecureSkipVerify disables certificate verification. Development only.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// Load reads and parses the YAML config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("feeder config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("feeder config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("feeder config: %w", err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Feeder: FeederConfig{
			PollInterval:  DefaultPollInterval,
			BufferSize:    DefaultBufferSize,
			BatchSize:     DefaultBatchSize,
			ProbeInterval: DefaultProbeInterval,
			Logging: LoggingConfig{
				Level:  DefaultLogLevel,
				Format: DefaultLogFormat,
			},
		},
	}
}

func validate(cfg *Config) error {
	f := cfg.Feeder
	if f.RouterEndpoint == "" {
		return fmt.Errorf("feeder.router_endpoint is required")
	}
	if f.PollInterval <= 0 {
		return fmt.Errorf("feeder.poll_interval must be positive")
	}
	if f.BufferSize <= 0 {
		return fmt.Errorf("feeder.buffer_size must be positive")
	}
	if f.BatchSize <= 0 {
		return fmt.Errorf("feeder.batch_size must be positive")
	}
	if f.BatchSize > f.BufferSize {
		return fmt.Errorf("feeder.batch_size %d exceeds buffer_size %d", f.BatchSize, f.BufferSize)
	}
	switch f.RouterAuth.Mode {
	case "mtls", "apikey", "bearer", "none", "":
	default:
		return fmt.Errorf("feeder.router_auth: unknown mode %q", f.RouterAuth.Mode)
	}
	if f.RouterAuth.Mode == "mtls" && (f.RouterAuth.CertFile == "" || f.RouterAuth.KeyFile == "") {
		return fmt.Errorf("feeder.router_auth: mtls requires cert_file and key_file")
	}
	if f.RouterMetricsURL != "" {
		if _, err := url.ParseRequestURI(f.RouterMetricsURL); err != nil {
			return fmt.Errorf("feeder.router_metrics_url: %w", err)
		}
		if f.ProbeInterval <= 0 {
			return fmt.Errorf("feeder.probe_interval must be positive")
		}
	}

	seen := make(map[string]bool, len(f.Sources))
	for i, src := range f.Sources {
		if src.ID == "" {
			return fmt.Errorf("sources[%d]: id is required", i)
		}
		if seen[src.ID] {
			return fmt.Errorf("sources[%d]: duplicate id %q", i, src.ID)
		}
		seen[src.ID] = true

		switch src.Type {
		case "file":
			if src.Path == "" {
				return fmt.Errorf("sources[%d] %q: path is required", i, src.ID)
			}
		case "http":
			if src.Endpoint == "" {
				return fmt.Errorf("sources[%d] %q: endpoint is required", i, src.ID)
			}
		default:
			return fmt.Errorf("sources[%d] %q: unknown type %q", i, src.ID, src.Type)
		}
		switch src.Auth.Mode {
		case "mtls", "apikey", "bearer", "basic", "none", "":
		default:
			return fmt.Errorf("sources[%d] %q: unknown auth mode %q", i, src.ID, src.Auth.Mode)
		}
	}
	return nil
}
