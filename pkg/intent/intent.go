// Package intent recognizes commands in user text. The bot only cares about
// one intent, changeLanguage, whose toLanguage entity names the target language.
package intent

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

const (
	// ChangeLanguage is the intent a user expresses when asking to switch language.
	ChangeLanguage = "changeLanguage"
	// EntityToLanguage is the entity type carrying the requested language name.
	EntityToLanguage = "language::toLanguage"
)

// ErrMissingCredentials is returned when a recognizer lacks its app id or key.
var ErrMissingCredentials = errors.New("recognizer credentials are missing")

// Entity is a typed parameter extracted from the text.
type Entity struct {
	Type  string  `json:"type"`
	Value string  `json:"value"`
	Score float64 `json:"score,omitempty"`
}

// Intent is the recognized command with its entities in extraction order.
type Intent struct {
	Name     string   `json:"name"`
	Score    float64  `json:"score,omitempty"`
	Entities []Entity `json:"entities,omitempty"`
}

// Entity returns the first entity of the intent when it has type typ.
// Later entities are never consulted: a leading entity of another type means
// the parameter is missing.
func (i *Intent) Entity(typ string) (Entity, bool) {
	if i == nil || len(i.Entities) == 0 || i.Entities[0].Type != typ {
		return Entity{}, false
	}
	return i.Entities[0], true
}

// Recognizer extracts an intent from free text. A nil intent with a nil error
// means nothing was recognized.
type Recognizer interface {
	Recognize(ctx context.Context, text string) (*Intent, error)
}

// Chain asks each recognizer in turn and returns the first intent found.
// A failing recognizer is logged and skipped; the last error is returned only
// when no recognizer produced an intent.
type Chain struct {
	recognizers []Recognizer
	logger      *logrus.Logger
}

// NewChain creates a Chain over recognizers.
func NewChain(logger *logrus.Logger, recognizers ...Recognizer) *Chain {
	if logger == nil {
		logger = logrus.New()
	}
	return &Chain{recognizers: recognizers, logger: logger}
}

// Recognize implements Recognizer.
func (c *Chain) Recognize(ctx context.Context, text string) (*Intent, error) {
	var lastErr error
	for _, r := range c.recognizers {
		in, err := r.Recognize(ctx, text)
		if err != nil {
			c.logger.WithError(err).Debug("Recognizer failed, trying next")
			lastErr = err
			continue
		}
		if in != nil {
			return in, nil
		}
	}
	return nil, lastErr
}
