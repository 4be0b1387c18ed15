// Package state stores per-user session values for the bot, most notably the
// language a user wants to talk in.
package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/dasmlab/tolk/pkg/bot"
	"github.com/dasmlab/tolk/pkg/language"
)

// FieldTranslateTo is the session field holding the user's language code.
const FieldTranslateTo = "translateTo"

// ErrEmptyKey is returned when a storage operation has no key to address.
var ErrEmptyKey = errors.New("state key is empty")

// Storage is host-owned session storage addressed by key and field.
// Entries expire when the host's session lifetime elapses.
type Storage interface {
	// Get returns the field value and whether it was set.
	Get(ctx context.Context, key, field string) (string, bool, error)
	// Set overwrites the field value.
	Set(ctx context.Context, key, field, value string) error
}

// Preference reads and updates a user's preferred language.
type Preference interface {
	// Language returns the stored language, or ok=false if none was set yet.
	Language(ctx context.Context, conv bot.Conversation) (code language.Code, ok bool, err error)
	// SetLanguage overwrites the stored language. It does not validate code.
	SetLanguage(ctx context.Context, conv bot.Conversation, code language.Code) error
}

// UserLanguage keeps the preferred language in Storage under FieldTranslateTo.
type UserLanguage struct {
	storage Storage
}

// NewUserLanguage creates a Preference backed by storage.
func NewUserLanguage(storage Storage) *UserLanguage {
	return &UserLanguage{storage: storage}
}

// Language implements Preference.
func (u *UserLanguage) Language(ctx context.Context, conv bot.Conversation) (language.Code, bool, error) {
	value, ok, err := u.storage.Get(ctx, conv.StateKey(), FieldTranslateTo)
	if err != nil {
		return "", false, fmt.Errorf("read user language: %w", err)
	}
	if !ok || value == "" {
		return "", false, nil
	}
	return language.Code(value), true, nil
}

// SetLanguage implements Preference.
func (u *UserLanguage) SetLanguage(ctx context.Context, conv bot.Conversation, code language.Code) error {
	if err := u.storage.Set(ctx, conv.StateKey(), FieldTranslateTo, string(code)); err != nil {
		return fmt.Errorf("write user language: %w", err)
	}
	return nil
}
