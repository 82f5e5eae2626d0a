package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/searchktools/h1server/core/http"
)

// EnvPrefix selects the environment variables overlaid on the defaults,
// e.g. H1_READ_TIMEOUT sets read.timeout
const EnvPrefix = "H1"

var ErrInvalid = errors.New("invalid configuration")

// Config holds all application configuration.
type Config struct {
	Port         int           `config:"port"`
	ReadTimeout  time.Duration `config:"read.timeout"`
	WriteTimeout time.Duration `config:"write.timeout"`

	MaxBodySize    int64 `config:"max.body.size"`
	MaxRequestLine int   `config:"max.request.line"`
	MaxHeaderLine  int   `config:"max.header.line"`
	MaxHeaders     int   `config:"max.headers"`

	Env         string `config:"env"`
	LogLevel    string `config:"log.level"`
	MetricsPort int    `config:"metrics.port"`
	FileRoot    string `config:"file.root"`

	// File is an optional JSON file read before the environment
	File string `config:"-"`
}

// Default returns the built-in configuration
func Default() *Config {
	lim := http.DefaultLimits()
	return &Config{
		Port:           8080,
		ReadTimeout:    60 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxBodySize:    lim.Body,
		MaxRequestLine: lim.RequestLine,
		MaxHeaderLine:  lim.HeaderLine,
		MaxHeaders:     lim.Headers,
		Env:            "development",
		LogLevel:       "info",
		MetricsPort:    9090,
	}
}

// New loads configuration from the command line, falling back to the
// defaults on error. Use Parse to handle errors.
func New() *Config {
	cfg, err := Parse(os.Args[1:])
	if err != nil {
		return Default()
	}
	return cfg
}

// Parse builds the configuration in increasing precedence: defaults, the
// JSON file named by -config, H1_* environment variables, then flags.
func Parse(args []string) (*Config, error) {
	cfg := Default()

	// First pass only discovers -config
	if err := cfg.flagSet().Parse(args); err != nil {
		return nil, err
	}

	m := NewManager()
	if cfg.File != "" {
		if err := m.LoadFromJSON(cfg.File); err != nil {
			return nil, err
		}
	}
	m.LoadFromEnv(EnvPrefix)
	if err := m.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	// Explicit flags win over file and environment
	if err := cfg.flagSet().Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// flagSet binds flags to c, using the current values as defaults
func (c *Config) flagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("h1server", flag.ContinueOnError)

	fs.IntVar(&c.Port, "port", c.Port, "HTTP server port")
	fs.DurationVar(&c.ReadTimeout, "read-timeout", c.ReadTimeout, "Idle and request read timeout")
	fs.DurationVar(&c.WriteTimeout, "write-timeout", c.WriteTimeout, "Response write timeout")
	fs.Int64Var(&c.MaxBodySize, "max-body-size", c.MaxBodySize, "Largest accepted request body in bytes")
	fs.IntVar(&c.MaxRequestLine, "max-request-line", c.MaxRequestLine, "Longest accepted request line in bytes")
	fs.IntVar(&c.MaxHeaderLine, "max-header-line", c.MaxHeaderLine, "Longest accepted header line in bytes")
	fs.IntVar(&c.MaxHeaders, "max-headers", c.MaxHeaders, "Most header fields per request")
	fs.StringVar(&c.Env, "env", c.Env, "Environment (development/production)")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level (debug/info/warn/error)")
	fs.IntVar(&c.MetricsPort, "metrics-port", c.MetricsPort, "Prometheus metrics port, 0 disables")
	fs.StringVar(&c.FileRoot, "file-root", c.FileRoot, "Directory served below /files/, empty disables")
	fs.StringVar(&c.File, "config", c.File, "JSON configuration file")

	return fs
}

// Validate checks ranges
func (c *Config) Validate() error {
	switch {
	case c.Port < 0 || c.Port > 65535:
		return fmt.Errorf("%w: port %d", ErrInvalid, c.Port)
	case c.MetricsPort < 0 || c.MetricsPort > 65535:
		return fmt.Errorf("%w: metrics port %d", ErrInvalid, c.MetricsPort)
	case c.ReadTimeout < 0 || c.WriteTimeout < 0:
		return fmt.Errorf("%w: negative timeout", ErrInvalid)
	case c.MaxBodySize < 0:
		return fmt.Errorf("%w: max body size %d", ErrInvalid, c.MaxBodySize)
	case c.MaxRequestLine <= 0 || c.MaxHeaderLine <= 0 || c.MaxHeaders <= 0:
		return fmt.Errorf("%w: parser limits must be positive", ErrInvalid)
	}
	return nil
}

// Limits returns the parser and body limits
func (c *Config) Limits() http.Limits {
	return http.Limits{
		RequestLine: c.MaxRequestLine,
		HeaderLine:  c.MaxHeaderLine,
		Headers:     c.MaxHeaders,
		Body:        c.MaxBodySize,
	}
}
