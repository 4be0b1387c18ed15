package intent

import (
	"context"
	"strings"
)

// DefaultCommandPrefix is the slash command that switches language.
const DefaultCommandPrefix = "/language"

// CommandRecognizer turns "/language <name>" into a changeLanguage intent.
// It only parses this fixed syntax; anything else is not recognized.
type CommandRecognizer struct {
	prefix string
}

// NewCommandRecognizer creates a CommandRecognizer for prefix, or
// DefaultCommandPrefix when prefix is empty.
func NewCommandRecognizer(prefix string) *CommandRecognizer {
	if prefix == "" {
		prefix = DefaultCommandPrefix
	}
	return &CommandRecognizer{prefix: prefix}
}

// Recognize implements Recognizer.
func (r *CommandRecognizer) Recognize(ctx context.Context, text string) (*Intent, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.EqualFold(fields[0], r.prefix) {
		return nil, nil
	}

	in := &Intent{Name: ChangeLanguage, Score: 1}
	if len(fields) > 1 {
		in.Entities = append(in.Entities, Entity{
			Type:  EntityToLanguage,
			Value: strings.Join(fields[1:], " "),
			Score: 1,
		})
	}
	return in, nil
}
