// Package bot is the minimal host framework the translation middleware plugs
// into: activities, turns, an ordered middleware chain and channel adapters.
package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// ErrNilActivity is returned when a nil activity is processed.
var ErrNilActivity = errors.New("activity is nil")

// NextFunc continues the inbound chain. Not calling it ends the turn.
type NextFunc func(ctx context.Context) error

// SendNextFunc continues the outbound chain and returns delivery results.
type SendNextFunc func(ctx context.Context) ([]ResourceResponse, error)

// Middleware intercepts inbound activities and outbound replies.
type Middleware interface {
	// OnReceive runs before the handler. It may mutate turn.Activity and must
	// call next to let the turn reach the handler.
	OnReceive(ctx context.Context, turn *Turn, next NextFunc) error

	// OnSend runs before outbound activities are delivered. It may mutate
	// activities in place and must call next to deliver them.
	OnSend(ctx context.Context, turn *Turn, activities []*Activity, next SendNextFunc) ([]ResourceResponse, error)
}

// Handler is the bot logic that runs after all middleware.
type Handler func(ctx context.Context, turn *Turn) error

// Sender delivers outbound activities to a channel.
type Sender interface {
	Send(ctx context.Context, activities []*Activity) ([]ResourceResponse, error)
}

// Bot runs activities through its middleware chain and handler.
type Bot struct {
	sender     Sender
	middleware []Middleware
	handler    Handler
	logger     *logrus.Logger
}

// New creates a Bot that delivers replies through sender.
func New(sender Sender, handler Handler, logger *logrus.Logger) *Bot {
	if logger == nil {
		logger = logrus.New()
	}
	return &Bot{
		sender:  sender,
		handler: handler,
		logger:  logger,
	}
}

// Use appends middleware to the chain. Middleware runs in registration order.
func (b *Bot) Use(mw ...Middleware) *Bot {
	b.middleware = append(b.middleware, mw...)
	return b
}

// ProcessActivity runs one turn for an inbound activity.
func (b *Bot) ProcessActivity(ctx context.Context, activity *Activity) error {
	if activity == nil {
		return ErrNilActivity
	}

	turn := &Turn{
		Activity:     activity,
		Conversation: activity.Conversation(),
		bot:          b,
	}

	b.logger.WithFields(logrus.Fields{
		"activity_id":     activity.ID,
		"activity_type":   activity.Type,
		"conversation_id": activity.ConversationID,
	}).Debug("Processing activity")

	if err := b.receive(ctx, turn, 0); err != nil {
		return fmt.Errorf("process activity %s: %w", activity.ID, err)
	}
	return nil
}

func (b *Bot) receive(ctx context.Context, turn *Turn, i int) error {
	if i == len(b.middleware) {
		if b.handler == nil {
			return nil
		}
		return b.handler(ctx, turn)
	}
	return b.middleware[i].OnReceive(ctx, turn, func(ctx context.Context) error {
		return b.receive(ctx, turn, i+1)
	})
}

func (b *Bot) send(ctx context.Context, turn *Turn, activities []*Activity, i int) ([]ResourceResponse, error) {
	if i == len(b.middleware) {
		return b.sender.Send(ctx, activities)
	}
	return b.middleware[i].OnSend(ctx, turn, activities, func(ctx context.Context) ([]ResourceResponse, error) {
		return b.send(ctx, turn, activities, i+1)
	})
}
