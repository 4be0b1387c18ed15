package translate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// ErrUnsupportedEngine is returned for an engine name that is not known.
var ErrUnsupportedEngine = errors.New("unsupported translation engine")

// EngineType represents the type of translation engine to use.
type EngineType string

const (
	// EngineLibreTranslate uses LibreTranslate as the backend.
	EngineLibreTranslate EngineType = "libretranslate"
	// EngineArgos uses Argos Translate as the backend.
	EngineArgos EngineType = "argos"
	// EngineMicrosoft uses Microsoft Translator Text v3.
	EngineMicrosoft EngineType = "microsoft"
	// EngineOpenAI uses OpenAI chat completions.
	EngineOpenAI EngineType = "openai"
)

// Config holds configuration for creating a Translator instance.
type Config struct {
	// Engine specifies which translation engine to use.
	Engine EngineType
	// BaseURL is the engine API base URL. Each engine has its own default.
	BaseURL string
	// APIKey authenticates against engines that need it.
	APIKey string
	// Region is the Microsoft Translator resource region, if regional.
	Region string
	// Model is the OpenAI model name.
	Model string
	// Logger is the logger instance to use. If nil, a default logger is created.
	Logger *logrus.Logger
}

// NewTranslator creates a new Translator instance based on the configuration.
func NewTranslator(cfg Config) (Translator, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	cfg.Logger.WithFields(logrus.Fields{
		"engine":   cfg.Engine,
		"base_url": cfg.BaseURL,
	}).Info("Creating translator instance")

	switch cfg.Engine {
	case EngineLibreTranslate:
		return NewLibreTranslateClient(cfg.BaseURL, cfg.APIKey, cfg.Logger), nil
	case EngineArgos:
		return NewArgosClient(cfg.BaseURL, cfg.Logger), nil
	case EngineMicrosoft:
		c, err := NewMicrosoftClient(cfg.BaseURL, cfg.APIKey, cfg.Region, cfg.Logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	case EngineOpenAI:
		c, err := NewOpenAIClient(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		cfg.Logger.WithFields(logrus.Fields{
			"engine": cfg.Engine,
		}).Error("Unknown translation engine")
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEngine, cfg.Engine)
	}
}

// ParseEngineType parses a case-insensitive engine name.
func ParseEngineType(s string) (EngineType, error) {
	switch EngineType(strings.ToLower(strings.TrimSpace(s))) {
	case EngineLibreTranslate:
		return EngineLibreTranslate, nil
	case EngineArgos:
		return EngineArgos, nil
	case EngineMicrosoft:
		return EngineMicrosoft, nil
	case EngineOpenAI:
		return EngineOpenAI, nil
	default:
		return "", fmt.Errorf("%w: %s (supported: libretranslate, argos, microsoft, openai)", ErrUnsupportedEngine, s)
	}
}
