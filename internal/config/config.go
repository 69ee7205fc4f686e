package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

const (
	// EnvPrefix prefixes every environment variable, e.g. VIDSYNC_SERVER_PORT
	EnvPrefix = "VIDSYNC"

	// ConfigFileEnv names the variable holding the YAML file path
	ConfigFileEnv = "VIDSYNC_CONFIG"

	// DefaultConfigFile is read when ConfigFileEnv is unset
	DefaultConfigFile = "vidsync.yaml"
)

// Config represents the complete application configuration. Environment
// keys are derived from field names, e.g. VIDSYNC_REALTIME_POLL_URL.
type Config struct {
	Server    ServerConfig    `yaml:"server" split_words:"true"`
	Logging   LoggingConfig   `yaml:"logging" split_words:"true"`
	Realtime  RealtimeConfig  `yaml:"realtime" split_words:"true"`
	Widgets   WidgetsConfig   `yaml:"widgets" split_words:"true"`
	Telemetry TelemetryConfig `yaml:"telemetry" split_words:"true"`
	RateLimit RateLimitConfig `yaml:"rate_limit" split_words:"true"`
}

// ServerConfig contains the local status API server configuration
type ServerConfig struct {
	Host            string        `yaml:"host" split_words:"true" default:"127.0.0.1"`
	Port            int           `yaml:"port" split_words:"true" default:"8090" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" split_words:"true" default:"15s" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" split_words:"true" default:"15s" validate:"gt=0"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" split_words:"true" default:"60s" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" split_words:"true" default:"10s" validate:"gt=0"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" split_words:"true" default:"info" validate:"oneof=debug info warn warning error"`
	Output   string `yaml:"output" split_words:"true" default:"console" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" split_words:"true" default:"logs/vidsync.log" validate:"required_unless=Output console"`
}

// RealtimeConfig contains the status server connection settings
type RealtimeConfig struct {
	URL               string            `yaml:"url" split_words:"true" default:"ws://localhost:8080/ws" validate:"required,url,startswith=ws"`
	PollURL           string            `yaml:"poll_url" split_words:"true" validate:"omitempty,url,startswith=http"`
	Endpoints         map[string]string `yaml:"endpoints" split_words:"true" default:"dashboard:/analytics/dashboard,workers:/workers/status,preview:/preview/status" validate:"dive,keys,required,endkeys,startswith=/"`
	AuthToken         string            `yaml:"auth_token" split_words:"true"`
	HeartbeatInterval time.Duration     `yaml:"heartbeat_interval" split_words:"true" default:"30s" validate:"gt=0"`
	PollingInterval   time.Duration     `yaml:"polling_interval" split_words:"true" default:"5s" validate:"gt=0"`
	DuplexGrace       time.Duration     `yaml:"duplex_grace" split_words:"true" default:"3s" validate:"gt=0"`
	BaseBackoff       time.Duration     `yaml:"base_backoff" split_words:"true" default:"1s" validate:"gt=0"`
	MaxBackoff        time.Duration     `yaml:"max_backoff" split_words:"true" default:"30s" validate:"gtefield=BaseBackoff"`
	HandshakeTimeout  time.Duration     `yaml:"handshake_timeout" split_words:"true" default:"10s" validate:"gt=0"`
}

// WidgetsConfig selects which widgets run and what they subscribe to
type WidgetsConfig struct {
	Dashboard     bool   `yaml:"dashboard" split_words:"true" default:"true"`
	DashboardDays int    `yaml:"dashboard_days" split_words:"true" default:"30" validate:"min=1,max=365"`
	Workers       bool   `yaml:"workers" split_words:"true" default:"true"`
	Preview       bool   `yaml:"preview" split_words:"true" default:"true"`
	PreviewJobID  string `yaml:"preview_job_id" split_words:"true"`
}

// TelemetryConfig contains OpenTelemetry configuration
type TelemetryConfig struct {
	ServiceName    string  `yaml:"service_name" split_words:"true" default:"vidsync" validate:"required"`
	ServiceVersion string  `yaml:"service_version" split_words:"true" default:"dev"`
	Environment    string  `yaml:"environment" split_words:"true" default:"development"`
	TraceExporter  string  `yaml:"trace_exporter" split_words:"true" default:"none" validate:"oneof=stdout none"`
	MetricExporter string  `yaml:"metric_exporter" split_words:"true" default:"prometheus" validate:"oneof=prometheus none"`
	SampleRatio    float64 `yaml:"sample_ratio" split_words:"true" default:"1.0" validate:"gte=0,lte=1"`
}

// RateLimitConfig contains status API rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" split_words:"true" default:"true"`
	RPS     float64 `yaml:"rps" split_words:"true" default:"20" validate:"gt=0"`
	Burst   int     `yaml:"burst" split_words:"true" default:"40" validate:"min=1"`
}

var validate = validator.New()

// Load loads configuration from environment variables and the optional
// YAML file. Explicitly set environment variables win over the file, the
// file wins over defaults.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	configFile := getConfigFilePath()
	if _, err := os.Stat(configFile); err == nil {
		fileConfig, flags, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = mergeConfigs(*fileConfig, flags, cfg)
	} else if os.Getenv(ConfigFileEnv) != "" {
		return nil, fmt.Errorf("config file %s: %w", configFile, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks the configuration against its struct tags
func (c *Config) Validate() error {
	return validate.Struct(c)
}

// Address returns the status API listen address
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func getConfigFilePath() string {
	if path := os.Getenv(ConfigFileEnv); path != "" {
		return path
	}
	return DefaultConfigFile
}

// fileFlags records which boolean switches a config file sets, since a
// false value cannot be told apart from an absent one in Config
type fileFlags struct {
	Widgets struct {
		Dashboard *bool `yaml:"dashboard"`
		Workers   *bool `yaml:"workers"`
		Preview   *bool `yaml:"preview"`
	} `yaml:"widgets"`
	RateLimit struct {
		Enabled *bool `yaml:"enabled"`
	} `yaml:"rate_limit"`
}

// loadFromFile loads configuration from YAML file
func loadFromFile(filePath string) (*Config, fileFlags, error) {
	var flags fileFlags

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, flags, err
	}

	var cfg Config
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return nil, flags, err
	}
	if err := yaml.Unmarshal(data, &flags); err != nil {
		return nil, flags, err
	}

	return &cfg, flags, nil
}

// mergeConfigs applies file values wherever the environment did not set
// the field explicitly
func mergeConfigs(fileConfig Config, flags fileFlags, envConfig Config) Config {
	c := envConfig

	c.Server.Host = pick("SERVER_HOST", fileConfig.Server.Host, c.Server.Host)
	c.Server.Port = pick("SERVER_PORT", fileConfig.Server.Port, c.Server.Port)
	c.Server.ReadTimeout = pick("SERVER_READ_TIMEOUT", fileConfig.Server.ReadTimeout, c.Server.ReadTimeout)
	c.Server.WriteTimeout = pick("SERVER_WRITE_TIMEOUT", fileConfig.Server.WriteTimeout, c.Server.WriteTimeout)
	c.Server.IdleTimeout = pick("SERVER_IDLE_TIMEOUT", fileConfig.Server.IdleTimeout, c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = pick("SERVER_SHUTDOWN_TIMEOUT", fileConfig.Server.ShutdownTimeout, c.Server.ShutdownTimeout)

	c.Logging.Level = pick("LOGGING_LEVEL", fileConfig.Logging.Level, c.Logging.Level)
	c.Logging.Output = pick("LOGGING_OUTPUT", fileConfig.Logging.Output, c.Logging.Output)
	c.Logging.FilePath = pick("LOGGING_FILE_PATH", fileConfig.Logging.FilePath, c.Logging.FilePath)

	c.Realtime.URL = pick("REALTIME_URL", fileConfig.Realtime.URL, c.Realtime.URL)
	c.Realtime.PollURL = pick("REALTIME_POLL_URL", fileConfig.Realtime.PollURL, c.Realtime.PollURL)
	if _, set := lookupEnv("REALTIME_ENDPOINTS"); !set && len(fileConfig.Realtime.Endpoints) > 0 {
		c.Realtime.Endpoints = fileConfig.Realtime.Endpoints
	}
	c.Realtime.AuthToken = pick("REALTIME_AUTH_TOKEN", fileConfig.Realtime.AuthToken, c.Realtime.AuthToken)
	c.Realtime.HeartbeatInterval = pick("REALTIME_HEARTBEAT_INTERVAL", fileConfig.Realtime.HeartbeatInterval, c.Realtime.HeartbeatInterval)
	c.Realtime.PollingInterval = pick("REALTIME_POLLING_INTERVAL", fileConfig.Realtime.PollingInterval, c.Realtime.PollingInterval)
	c.Realtime.DuplexGrace = pick("REALTIME_DUPLEX_GRACE", fileConfig.Realtime.DuplexGrace, c.Realtime.DuplexGrace)
	c.Realtime.BaseBackoff = pick("REALTIME_BASE_BACKOFF", fileConfig.Realtime.BaseBackoff, c.Realtime.BaseBackoff)
	c.Realtime.MaxBackoff = pick("REALTIME_MAX_BACKOFF", fileConfig.Realtime.MaxBackoff, c.Realtime.MaxBackoff)
	c.Realtime.HandshakeTimeout = pick("REALTIME_HANDSHAKE_TIMEOUT", fileConfig.Realtime.HandshakeTimeout, c.Realtime.HandshakeTimeout)

	c.Widgets.Dashboard = pickFlag("WIDGETS_DASHBOARD", flags.Widgets.Dashboard, c.Widgets.Dashboard)
	c.Widgets.DashboardDays = pick("WIDGETS_DASHBOARD_DAYS", fileConfig.Widgets.DashboardDays, c.Widgets.DashboardDays)
	c.Widgets.Workers = pickFlag("WIDGETS_WORKERS", flags.Widgets.Workers, c.Widgets.Workers)
	c.Widgets.Preview = pickFlag("WIDGETS_PREVIEW", flags.Widgets.Preview, c.Widgets.Preview)
	c.Widgets.PreviewJobID = pick("WIDGETS_PREVIEW_JOB_ID", fileConfig.Widgets.PreviewJobID, c.Widgets.PreviewJobID)

	c.Telemetry.ServiceName = pick("TELEMETRY_SERVICE_NAME", fileConfig.Telemetry.ServiceName, c.Telemetry.ServiceName)
	c.Telemetry.ServiceVersion = pick("TELEMETRY_SERVICE_VERSION", fileConfig.Telemetry.ServiceVersion, c.Telemetry.ServiceVersion)
	c.Telemetry.Environment = pick("TELEMETRY_ENVIRONMENT", fileConfig.Telemetry.Environment, c.Telemetry.Environment)
	c.Telemetry.TraceExporter = pick("TELEMETRY_TRACE_EXPORTER", fileConfig.Telemetry.TraceExporter, c.Telemetry.TraceExporter)
	c.Telemetry.MetricExporter = pick("TELEMETRY_METRIC_EXPORTER", fileConfig.Telemetry.MetricExporter, c.Telemetry.MetricExporter)
	c.Telemetry.SampleRatio = pick("TELEMETRY_SAMPLE_RATIO", fileConfig.Telemetry.SampleRatio, c.Telemetry.SampleRatio)

	c.RateLimit.Enabled = pickFlag("RATE_LIMIT_ENABLED", flags.RateLimit.Enabled, c.RateLimit.Enabled)
	c.RateLimit.RPS = pick("RATE_LIMIT_RPS", fileConfig.RateLimit.RPS, c.RateLimit.RPS)
	c.RateLimit.Burst = pick("RATE_LIMIT_BURST", fileConfig.RateLimit.Burst, c.RateLimit.Burst)

	return c
}

// pick returns the env value when its variable is set or the file value is zero
func pick[T comparable](key string, fileVal, envVal T) T {
	var zero T
	if _, set := lookupEnv(key); set || fileVal == zero {
		return envVal
	}
	return fileVal
}

// pickFlag returns the file value when the file sets the flag and the
// environment does not
func pickFlag(key string, fileVal *bool, envVal bool) bool {
	if _, set := lookupEnv(key); set || fileVal == nil {
		return envVal
	}
	return *fileVal
}

func lookupEnv(key string) (string, bool) {
	return os.LookupEnv(EnvPrefix + "_" + key)
}
