package translate

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/text/language"
)

var (
	// ErrUnexpectedStatus is wrapped by engine errors for non-OK HTTP responses.
	ErrUnexpectedStatus = errors.New("unexpected status")
	// ErrEmptyTranslation is returned when an engine answers without any text.
	ErrEmptyTranslation = errors.New("empty translation")
	// ErrMissingAPIKey is returned when an engine that needs a key has none.
	ErrMissingAPIKey = errors.New("translation api key is missing")
)

// Translator defines the interface for machine translation backends.
// This abstraction lets the bot switch between engines (LibreTranslate,
// Argos, Microsoft Translator, OpenAI) without touching the middleware.
type Translator interface {
	// Translate translates text from source language to target language.
	// sourceLang and targetLang should be in ISO 639-1 format (e.g., "en", "fr").
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)

	// CheckHealth verifies that the translation backend is ready and operational.
	CheckHealth(ctx context.Context) error

	// SupportedLanguages returns a list of language codes supported by this backend.
	SupportedLanguages(ctx context.Context) ([]string, error)
}

// LanguageMapper handles conversion between language code formats.
// Channels and users send tags like "EN" and "fr-CA" (BCP 47), while
// backends expect ISO 639-1 codes like "en" and "fr".
type LanguageMapper struct{}

// NewLanguageMapper creates a new language mapper instance.
func NewLanguageMapper() *LanguageMapper {
	return &LanguageMapper{}
}

// ToBackendCode converts a language tag to backend format.
// Examples:
//   - "EN" -> "en"
//   - "fr-CA" -> "fr"
//   - "pt_BR" -> "pt"
func (lm *LanguageMapper) ToBackendCode(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return ""
	}
	if t, err := language.Parse(strings.ReplaceAll(tag, "_", "-")); err == nil {
		if base, conf := t.Base(); conf != language.No {
			return base.String()
		}
	}

	// Not a well-formed tag; keep the lowercase prefix.
	lang := strings.ToLower(tag)
	if idx := strings.IndexAny(lang, "-_"); idx >= 0 {
		lang = lang[:idx]
	}
	return lang
}

// Same reports whether two tags name the same backend language.
func (lm *LanguageMapper) Same(a, b string) bool {
	return lm.ToBackendCode(a) == lm.ToBackendCode(b)
}
