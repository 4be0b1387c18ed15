// Package config loads tolk's runtime configuration from the environment.
//
// Values come from process environment variables, optionally seeded from a
// .env file. Command-line flags in cmd/tolk override whatever is loaded here.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/dasmlab/tolk/pkg/language"
	"github.com/dasmlab/tolk/pkg/translate"
)

var (
	// ErrParsingConfig wraps failures to parse environment variables.
	ErrParsingConfig = errors.New("failed to parse config")
	// ErrInvalidConfig is returned when parsed values are inconsistent.
	ErrInvalidConfig = errors.New("invalid config")
)

// State backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config is the full runtime configuration.
type Config struct {
	BotLanguage string `env:"BOT_LANGUAGE" envDefault:"en"`

	Engine string `env:"MT_ENGINE" envDefault:"libretranslate"`
	MTURL  string `env:"MT_URL"`
	APIKey string `env:"MT_API_KEY"`
	Region string `env:"MT_REGION"`
	Model  string `env:"OPENAI_MODEL"`

	// MicrosoftKey is the key name used by Azure samples. It backs APIKey
	// when MT_API_KEY is unset.
	MicrosoftKey string `env:"MICROSOFT_TRANSLATOR_KEY"`

	LUISAppID    string `env:"LUIS_APP_ID"`
	LUISAppKey   string `env:"LUIS_APP_KEY"`
	LUISEndpoint string `env:"LUIS_ENDPOINT" envDefault:"https://westus.api.cognitive.microsoft.com"`

	StateBackend string        `env:"STATE_BACKEND" envDefault:"memory"`
	RedisURL     string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	SessionTTL   time.Duration `env:"SESSION_TTL" envDefault:"24h"`

	OutboundConcurrency int `env:"OUTBOUND_CONCURRENCY" envDefault:"4"`

	BreakerMaxFailures uint32        `env:"BREAKER_MAX_FAILURES" envDefault:"5"`
	BreakerOpenTimeout time.Duration `env:"BREAKER_OPEN_TIMEOUT" envDefault:"30s"`

	MetricsPort int    `env:"METRICS_PORT" envDefault:"8080"`
	GRPCPort    int    `env:"GRPC_PORT" envDefault:"50051"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads the optional .env files, then the process environment, and
// validates the result. A missing .env file is not an error.
func Load(envFiles ...string) (*Config, error) {
	cfg, err := Parse(envFiles...)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse is Load without validation, for callers that override values
// before calling Validate themselves.
func Parse(envFiles ...string) (*Config, error) {
	_ = godotenv.Load(envFiles...)

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, errors.Join(ErrParsingConfig, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// FromMap parses and validates configuration from an explicit environment,
// ignoring the process environment.
func FromMap(environ map[string]string) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return nil, errors.Join(ErrParsingConfig, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.APIKey == "" {
		c.APIKey = c.MicrosoftKey
	}
}

// Overrides holds command-line values that take precedence over the
// environment. Zero values leave the loaded setting alone.
type Overrides struct {
	Engine      string
	MTURL       string
	BotLanguage string
	LogLevel    string
	GRPCPort    int
	MetricsPort int
}

// Apply copies every non-zero override into c.
func (c *Config) Apply(o Overrides) {
	if o.Engine != "" {
		c.Engine = o.Engine
	}
	if o.MTURL != "" {
		c.MTURL = o.MTURL
	}
	if o.BotLanguage != "" {
		c.BotLanguage = o.BotLanguage
	}
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
	if o.GRPCPort != 0 {
		c.GRPCPort = o.GRPCPort
	}
	if o.MetricsPort != 0 {
		c.MetricsPort = o.MetricsPort
	}
}

// Validate checks values that env tags cannot express.
func (c *Config) Validate() error {
	if _, err := translate.ParseEngineType(c.Engine); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if !language.Default.IsSupportedCode(language.Code(c.BotLanguage)) {
		return fmt.Errorf("%w: unsupported bot language %q", ErrInvalidConfig, c.BotLanguage)
	}
	switch c.StateBackend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("%w: unknown state backend %q", ErrInvalidConfig, c.StateBackend)
	}
	if c.OutboundConcurrency < 0 {
		return fmt.Errorf("%w: outbound concurrency must not be negative", ErrInvalidConfig)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// LUISEnabled reports whether LUIS credentials are configured.
func (c *Config) LUISEnabled() bool {
	return c.LUISAppID != "" && c.LUISAppKey != ""
}

// EngineType returns the parsed translation engine. Validate guarantees it parses.
func (c *Config) EngineType() translate.EngineType {
	engine, _ := translate.ParseEngineType(c.Engine)
	return engine
}

// Level returns the parsed log level, falling back to info.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}
