package bot

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const consoleChannel = "console"

// ConsoleAdapter connects a Bot to a line-oriented reader and writer.
// Each input line becomes one message activity in a single conversation.
type ConsoleAdapter struct {
	in     io.Reader
	out    io.Writer
	mu     sync.Mutex
	user   Account
	botAcc Account
	convID string
	logger *logrus.Logger
}

// NewConsoleAdapter creates an adapter reading from in and writing replies to out.
func NewConsoleAdapter(in io.Reader, out io.Writer, logger *logrus.Logger) *ConsoleAdapter {
	if logger == nil {
		logger = logrus.New()
	}
	return &ConsoleAdapter{
		in:     in,
		out:    out,
		user:   Account{ID: "user-" + uuid.NewString(), Name: "User"},
		botAcc: Account{ID: "bot", Name: "Bot"},
		convID: uuid.NewString(),
		logger: logger,
	}
}

// Send writes each outbound message to the output, one line per activity.
func (a *ConsoleAdapter) Send(ctx context.Context, activities []*Activity) ([]ResourceResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	responses := make([]ResourceResponse, 0, len(activities))
	for _, activity := range activities {
		if err := ctx.Err(); err != nil {
			return responses, err
		}
		if activity.Type == TypeMessage {
			if _, err := fmt.Fprintln(a.out, activity.Text); err != nil {
				return responses, fmt.Errorf("write activity: %w", err)
			}
		}
		if activity.ID == "" {
			activity.ID = uuid.NewString()
		}
		responses = append(responses, ResourceResponse{ID: activity.ID})
	}
	return responses, nil
}

// Listen feeds input lines to b until the input ends or ctx is cancelled.
// A conversationUpdate activity is processed first, the way channels announce
// a new conversation.
func (a *ConsoleAdapter) Listen(ctx context.Context, b *Bot) error {
	// Stops the reader goroutine when Listen returns early on an error.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.process(ctx, b, TypeConversationUpdate, ""); err != nil {
		return err
	}

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(a.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("read input: %w", err)
					}
				default:
				}
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if err := a.process(ctx, b, TypeMessage, line); err != nil {
				return err
			}
		}
	}
}

func (a *ConsoleAdapter) process(ctx context.Context, b *Bot, typ ActivityType, text string) error {
	activity := &Activity{
		ID:             uuid.NewString(),
		Type:           typ,
		Text:           text,
		ConversationID: a.convID,
		ChannelID:      consoleChannel,
		From:           a.user,
		Recipient:      a.botAcc,
		Timestamp:      time.Now().UTC(),
	}
	if err := b.ProcessActivity(ctx, activity); err != nil {
		a.logger.WithError(err).WithFields(logrus.Fields{
			"activity_id": activity.ID,
		}).Error("Failed to process console activity")
		return err
	}
	return nil
}

// EchoHandler repeats every message back to the user.
func EchoHandler(ctx context.Context, turn *Turn) error {
	if turn.Activity.Type != TypeMessage {
		return nil
	}
	_, err := turn.SendActivities(ctx,
		turn.Activity.Reply("You just said:"),
		turn.Activity.Reply(fmt.Sprintf(`"%s"`, turn.Activity.Text)),
	)
	return err
}
