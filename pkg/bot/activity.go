package bot

import (
	"time"

	"github.com/google/uuid"
)

// ActivityType identifies what kind of activity a turn carries.
type ActivityType string

const (
	// TypeMessage is a text message from a user or the bot.
	TypeMessage ActivityType = "message"
	// TypeConversationUpdate signals members joining or leaving a conversation.
	TypeConversationUpdate ActivityType = "conversationUpdate"
	// TypeTyping is a typing indicator.
	TypeTyping ActivityType = "typing"
	// TypeEvent is a channel-specific event.
	TypeEvent ActivityType = "event"
)

// Account identifies a participant of a conversation.
type Account struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Conversation addresses the per-user session a turn belongs to.
type Conversation struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
}

// StateKey returns the key under which per-user state is stored.
// Falls back to the conversation ID when the channel does not identify the user.
func (c Conversation) StateKey() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.ID
}

// Activity is a single message or event exchanged with a channel.
// Inbound activities are mutated in place by middleware before the handler sees them.
type Activity struct {
	ID             string       `json:"id"`
	Type           ActivityType `json:"type"`
	Text           string       `json:"text,omitempty"`
	Locale         string       `json:"locale,omitempty"`
	ConversationID string       `json:"conversation_id"`
	ChannelID      string       `json:"channel_id,omitempty"`
	From           Account      `json:"from"`
	Recipient      Account      `json:"recipient"`
	ReplyToID      string       `json:"reply_to_id,omitempty"`
	Timestamp      time.Time    `json:"timestamp"`
}

// NewMessage returns a message activity with a fresh ID.
func NewMessage(text string) *Activity {
	return &Activity{
		ID:        uuid.NewString(),
		Type:      TypeMessage,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}
}

// Conversation returns the conversation reference of the activity.
func (a *Activity) Conversation() Conversation {
	return Conversation{
		ID:        a.ConversationID,
		ChannelID: a.ChannelID,
		UserID:    a.From.ID,
	}
}

// Reply returns a message activity addressed back to the sender of a.
func (a *Activity) Reply(text string) *Activity {
	reply := NewMessage(text)
	reply.ConversationID = a.ConversationID
	reply.ChannelID = a.ChannelID
	reply.From = a.Recipient
	reply.Recipient = a.From
	reply.ReplyToID = a.ID
	reply.Locale = a.Locale
	return reply
}

// ResourceResponse acknowledges delivery of one outbound activity.
type ResourceResponse struct {
	ID string `json:"id"`
}
