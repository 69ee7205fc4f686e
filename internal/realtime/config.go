package realtime

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Default timings of the connection lifecycle
const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultPollingInterval   = 5 * time.Second
	DefaultDuplexGrace       = 3 * time.Second
	DefaultBaseBackoff       = 1 * time.Second
	DefaultMaxBackoff        = 30 * time.Second
	DefaultHandshakeTimeout  = 10 * time.Second
)

// Config holds the connection manager settings
type Config struct {
	// URL is the duplex endpoint (ws:// or wss://)
	URL string `validate:"required,url,startswith=ws"`

	// PollURL is the base of the polling endpoints. Derived from URL when empty.
	PollURL string `validate:"omitempty,url,startswith=http"`

	// Endpoints maps a topic name to its polling path. Topics without an
	// entry are polled at "/<topic>".
	Endpoints map[string]string `validate:"dive,keys,required,endkeys,startswith=/"`

	// Header is sent with the duplex handshake and every poll request
	Header http.Header

	HeartbeatInterval time.Duration `validate:"gt=0"`
	PollingInterval   time.Duration `validate:"gt=0"`
	DuplexGrace       time.Duration `validate:"gt=0"`
	BaseBackoff       time.Duration `validate:"gt=0"`
	MaxBackoff        time.Duration `validate:"gtefield=BaseBackoff"`
	HandshakeTimeout  time.Duration `validate:"gt=0"`
}

// DefaultConfig returns a configuration for url with every timing at its default
func DefaultConfig(url string) Config {
	return Config{
		URL:               url,
		HeartbeatInterval: DefaultHeartbeatInterval,
		PollingInterval:   DefaultPollingInterval,
		DuplexGrace:       DefaultDuplexGrace,
		BaseBackoff:       DefaultBaseBackoff,
		MaxBackoff:        DefaultMaxBackoff,
		HandshakeTimeout:  DefaultHandshakeTimeout,
	}
}

// withDefaults fills unset timings
func (c Config) withDefaults() Config {
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.PollingInterval == 0 {
		c.PollingInterval = DefaultPollingInterval
	}
	if c.DuplexGrace == 0 {
		c.DuplexGrace = DefaultDuplexGrace
	}
	if c.BaseBackoff == 0 {
		c.BaseBackoff = DefaultBaseBackoff
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	return c
}

var validate = validator.New()

// Validate checks the configuration. Failures are configuration errors.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return configurationError("validate config", err)
	}
	return nil
}

// pollBase returns the base URL for polling requests
func (c Config) pollBase() string {
	if c.PollURL != "" {
		return strings.TrimRight(c.PollURL, "/")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "wss":
		u.Scheme = "https"
	default:
		u.Scheme = "http"
	}
	u.Path = strings.TrimSuffix(strings.TrimRight(u.Path, "/"), "/ws")
	u.RawQuery = ""
	u.Fragment = ""
	return strings.TrimRight(u.String(), "/")
}

// endpoint returns the polling path for a topic
func (c Config) endpoint(topic string) string {
	if path, ok := c.Endpoints[topic]; ok {
		return path
	}
	return "/" + topic
}
