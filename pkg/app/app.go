// Package app assembles the translation pipeline from configuration.
// Both binaries build their bot through it so they wire components identically.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/dasmlab/tolk/pkg/bot"
	"github.com/dasmlab/tolk/pkg/config"
	"github.com/dasmlab/tolk/pkg/intent"
	"github.com/dasmlab/tolk/pkg/language"
	"github.com/dasmlab/tolk/pkg/middleware"
	"github.com/dasmlab/tolk/pkg/state"
	"github.com/dasmlab/tolk/pkg/translate"
)

// App holds the wired components of the pipeline.
type App struct {
	Config *config.Config
	Logger *logrus.Logger

	// Translator is the engine wrapped in a circuit breaker and metrics.
	Translator translate.Translator
	Breaker    *translate.BreakerTranslator
	Recognizer intent.Recognizer
	Storage    state.Storage
	Middleware *middleware.Translation

	memory *state.MemoryStorage
	redis  *redis.Client
}

// New builds every component described by cfg. Redis is dialed and pinged
// when it is the configured state backend.
func New(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*App, error) {
	if logger == nil {
		logger = logrus.New()
	}
	a := &App{Config: cfg, Logger: logger}

	engine := cfg.EngineType()
	raw, err := translate.NewTranslator(translate.Config{
		Engine:  engine,
		BaseURL: cfg.MTURL,
		APIKey:  cfg.APIKey,
		Region:  cfg.Region,
		Model:   cfg.Model,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create translator: %w", err)
	}
	a.Breaker = translate.WithBreaker(raw, engine, translate.BreakerConfig{
		MaxFailures: cfg.BreakerMaxFailures,
		OpenTimeout: cfg.BreakerOpenTimeout,
	}, logger)
	a.Translator = translate.Instrument(a.Breaker, engine)

	recognizers := []intent.Recognizer{intent.NewCommandRecognizer("")}
	if cfg.LUISEnabled() {
		luis, err := intent.NewLUISClient(cfg.LUISEndpoint, cfg.LUISAppID, cfg.LUISAppKey, logger)
		if err != nil {
			return nil, fmt.Errorf("create luis client: %w", err)
		}
		recognizers = append(recognizers, luis)
	} else {
		logger.Info("LUIS not configured, only /language commands change the user language")
	}
	a.Recognizer = intent.NewChain(logger, recognizers...)

	switch cfg.StateBackend {
	case config.BackendRedis:
		rdb, err := state.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("connect state backend: %w", err)
		}
		a.redis = rdb
		a.Storage = state.NewRedisStorage(rdb, cfg.SessionTTL)
	default:
		a.memory = state.NewMemoryStorage(cfg.SessionTTL)
		a.Storage = a.memory
	}

	a.Middleware = middleware.NewTranslation(a.Translator, a.Recognizer, state.NewUserLanguage(a.Storage), middleware.Config{
		BotLanguage:         language.Code(cfg.BotLanguage),
		Languages:           language.Default,
		OutboundConcurrency: cfg.OutboundConcurrency,
		Logger:              logger,
	})

	logger.WithFields(logrus.Fields{
		"engine":        engine,
		"bot_language":  cfg.BotLanguage,
		"state_backend": cfg.StateBackend,
		"luis":          cfg.LUISEnabled(),
	}).Info("Translation pipeline ready")

	return a, nil
}

// Bot returns a bot that delivers through sender and runs handler behind
// the translation middleware.
func (a *App) Bot(sender bot.Sender, handler bot.Handler) *bot.Bot {
	return bot.New(sender, handler, a.Logger).Use(a.Middleware)
}

// RunJanitor evicts expired in-memory sessions every interval until ctx is
// done. Redis expires keys on its own, so it returns immediately there.
func (a *App) RunJanitor(ctx context.Context, interval time.Duration) {
	if a.memory == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := a.memory.Cleanup(); n > 0 {
				a.Logger.WithFields(logrus.Fields{
					"evicted":   n,
					"remaining": a.memory.Len(),
				}).Debug("Evicted expired sessions")
			}
		case <-ctx.Done():
			return
		}
	}
}

// Close releases the state backend connection.
func (a *App) Close() error {
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}
