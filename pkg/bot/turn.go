package bot

import (
	"context"
	"fmt"
)

// Turn is the context of processing one inbound activity.
type Turn struct {
	// Activity is the inbound activity. Middleware may rewrite its Text.
	Activity *Activity
	// Conversation addresses the session the activity belongs to.
	Conversation Conversation

	bot       *Bot
	responded bool
}

// NewTurn creates a turn outside a Bot, for hosts and tests that drive
// middleware directly. Replies on such a turn are delivered through sender.
func NewTurn(activity *Activity, sender Sender) *Turn {
	return &Turn{
		Activity:     activity,
		Conversation: activity.Conversation(),
		bot:          New(sender, nil, nil),
	}
}

// Reply sends a text message back to the user through the outbound chain.
func (t *Turn) Reply(ctx context.Context, text string) error {
	_, err := t.SendActivities(ctx, t.Activity.Reply(text))
	return err
}

// SendActivities runs activities through every middleware's OnSend and
// delivers them.
func (t *Turn) SendActivities(ctx context.Context, activities ...*Activity) ([]ResourceResponse, error) {
	if len(activities) == 0 {
		return nil, nil
	}
	responses, err := t.bot.send(ctx, t, activities, 0)
	if err != nil {
		return nil, fmt.Errorf("send activities: %w", err)
	}
	t.responded = true
	return responses, nil
}

// Responded reports whether anything was sent during this turn.
func (t *Turn) Responded() bool {
	return t.responded
}
