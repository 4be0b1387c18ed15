package translate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned while the breaker rejects calls to a failing engine.
var ErrCircuitOpen = errors.New("translation circuit open")

// BreakerConfig tunes the circuit breaker around an engine.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the circuit.
	MaxFailures uint32
	// OpenTimeout is how long the circuit stays open before a trial call.
	OpenTimeout time.Duration
}

// BreakerTranslator fails fast while the wrapped engine keeps failing.
// It never retries a call.
type BreakerTranslator struct {
	next Translator
	cb   *gobreaker.CircuitBreaker
}

// WithBreaker wraps next in a circuit breaker named after engine.
func WithBreaker(next Translator, engine EngineType, cfg BreakerConfig, logger *logrus.Logger) *BreakerTranslator {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &BreakerTranslator{
		next: next,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        string(engine),
			MaxRequests: 1,
			Timeout:     cfg.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.MaxFailures
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.WithFields(logrus.Fields{
					"engine": name,
					"from":   from.String(),
					"to":     to.String(),
				}).Warn("Translation circuit breaker changed state")
			},
		}),
	}
}

// Translate implements Translator.
func (b *BreakerTranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Translate(ctx, text, sourceLang, targetLang)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		return "", err
	}
	return out.(string), nil
}

// CheckHealth implements Translator. Health checks bypass the breaker so a
// recovered engine is noticed even while the circuit is open.
func (b *BreakerTranslator) CheckHealth(ctx context.Context) error {
	return b.next.CheckHealth(ctx)
}

// SupportedLanguages implements Translator.
func (b *BreakerTranslator) SupportedLanguages(ctx context.Context) ([]string, error) {
	return b.next.SupportedLanguages(ctx)
}

// State returns the current breaker state, e.g. "closed" or "open".
func (b *BreakerTranslator) State() string {
	return b.cb.State().String()
}
