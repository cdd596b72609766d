package config_loader

import (
	"fmt"
	"strings"
	"time"
)

// ConnectionConfig is the controller connection of one task invocation
type ConnectionConfig struct {
	Host     string `mapstructure:"host" yaml:"host" validate:"required"`
	Port     int    `mapstructure:"port" yaml:"port" validate:"min=1,max=65535"`
	Username string `mapstructure:"username" yaml:"username,omitempty" validate:"required_without=Token"`
	Password string `mapstructure:"password" yaml:"-" validate:"required_with=Username"`
	// Token is a pre-obtained session token; it replaces username/password
	Token  string `mapstructure:"token" yaml:"-"`
	Verify bool   `mapstructure:"verify" yaml:"verify"`
	CAFile string `mapstructure:"cafile" yaml:"caFile,omitempty"`
	// Version is the controller version hint used to pick endpoint variants
	Version string `mapstructure:"version" yaml:"version" validate:"required"`
	Debug   bool   `mapstructure:"debug" yaml:"debug"`

	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"min=0"`
	RetryAttempts     int           `mapstructure:"retryattempts" yaml:"retryAttempts" validate:"min=1"`
	RetryInitialDelay time.Duration `mapstructure:"retryinitialdelay" yaml:"retryInitialDelay" validate:"min=0"`
	RetryMaxDelay     time.Duration `mapstructure:"retrymaxdelay" yaml:"retryMaxDelay" validate:"gtefield=RetryInitialDelay"`
	// RateLimit bounds requests per second; zero disables limiting
	RateLimit         float64 `mapstructure:"ratelimit" yaml:"rateLimit,omitempty" validate:"min=0"`
	IdempotencyHeader string  `mapstructure:"idempotencyheader" yaml:"idempotencyHeader"`
}

// BaseURL returns the controller URL. A host given with a scheme is used as is.
func (c *ConnectionConfig) BaseURL() string {
	host := strings.TrimRight(c.Host, "/")
	if strings.Contains(host, "://") {
		return host
	}
	if c.Port == 0 || c.Port == DefaultPort {
		return "https://" + host
	}
	return fmt.Sprintf("https://%s:%d", host, c.Port)
}

// RuntimeOptions are the per-task runtime fields of a task mapping
type RuntimeOptions struct {
	State     string
	CheckMode bool
	Diff      bool
	// Zero poll values select the tracker defaults
	PollInitialDelay time.Duration
	PollMaxDelay     time.Duration
	PollTimeout      time.Duration
}
