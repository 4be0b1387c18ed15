// Package middleware contains the bot middleware that lets users talk to the
// bot in their own language.
//
// Inbound messages are translated from the user's language into the bot's
// language before the bot logic sees them, and a changeLanguage intent
// switches the user's language. Outbound replies are translated back.
package middleware

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dasmlab/tolk/pkg/bot"
	"github.com/dasmlab/tolk/pkg/intent"
	"github.com/dasmlab/tolk/pkg/language"
	"github.com/dasmlab/tolk/pkg/state"
	"github.com/dasmlab/tolk/pkg/translate"
)

// Replies sent when a changeLanguage intent is handled.
const (
	MsgMissingLanguage     = "You have to tell me what language to translate to!"
	MsgChangingLanguage    = "Changing your language to %s"
	MsgUnsupportedLanguage = "%s is not a supported language."
	MsgChangeFailed        = "Sorry, I could not change your language to %s."
)

// Config configures the Translation middleware.
type Config struct {
	// BotLanguage is the language the bot logic operates in. Defaults to "en".
	BotLanguage language.Code
	// Languages is the table of languages users may switch to. Defaults to language.Default.
	Languages *language.Map
	// OutboundConcurrency bounds concurrent outbound translations per batch.
	// Zero means one request per activity, all at once.
	OutboundConcurrency int
	// Logger is the logger instance to use. If nil, a default logger is created.
	Logger *logrus.Logger
}

// Translation translates inbound and outbound activities between the user's
// language and the bot's language.
type Translation struct {
	translator  translate.Translator
	recognizer  intent.Recognizer
	preference  state.Preference
	botLanguage language.Code
	languages   *language.Map
	concurrency int
	logger      *logrus.Logger
}

var _ bot.Middleware = (*Translation)(nil)

// NewTranslation creates the middleware. recognizer may be nil, in which case
// language-change commands are never detected.
func NewTranslation(translator translate.Translator, recognizer intent.Recognizer, preference state.Preference, cfg Config) *Translation {
	if cfg.BotLanguage == "" {
		cfg.BotLanguage = "en"
	}
	if cfg.Languages == nil {
		cfg.Languages = language.Default
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	return &Translation{
		translator:  translator,
		recognizer:  recognizer,
		preference:  preference,
		botLanguage: cfg.BotLanguage,
		languages:   cfg.Languages,
		concurrency: cfg.OutboundConcurrency,
		logger:      cfg.Logger,
	}
}

// BotLanguage returns the language the bot logic operates in.
func (t *Translation) BotLanguage() language.Code {
	return t.botLanguage
}

// OnReceive implements bot.Middleware.
func (t *Translation) OnReceive(ctx context.Context, turn *bot.Turn, next bot.NextFunc) error {
	activity := turn.Activity
	if activity.Type != bot.TypeMessage && activity.Type != bot.TypeConversationUpdate {
		return next(ctx)
	}
	if activity.Text == "" {
		return next(ctx)
	}

	log := t.logger.WithFields(logrus.Fields{
		"activity_id":     activity.ID,
		"conversation_id": turn.Conversation.ID,
	})

	lang := t.activeLanguage(ctx, turn)
	translated, err := t.Translate(ctx, activity.Text, lang, t.botLanguage)
	if err != nil {
		log.WithError(err).WithFields(logrus.Fields{
			"source_lang": lang,
			"target_lang": t.botLanguage,
		}).Warn("Inbound translation failed, passing message through")
		recordInbound(outcomeTranslationFailed)
		return next(ctx)
	}
	activity.Text = translated

	return t.updateLanguageThenNext(ctx, turn, next)
}

// updateLanguageThenNext runs language-change detection and continues the
// turn only when the message was not a language command.
func (t *Translation) updateLanguageThenNext(ctx context.Context, turn *bot.Turn, next bot.NextFunc) error {
	handled, err := t.DetectLanguageChange(ctx, turn)
	if err != nil {
		return err
	}
	if handled {
		recordInbound(outcomeIntercepted)
		return nil
	}
	recordInbound(outcomeForwarded)
	return next(ctx)
}

// DetectLanguageChange looks for a changeLanguage intent in the turn's text.
// It returns true when the message was a language command and has been
// answered; the turn should then end without reaching the bot logic.
// The returned error is only ever a failure to deliver the reply.
func (t *Translation) DetectLanguageChange(ctx context.Context, turn *bot.Turn) (bool, error) {
	if t.recognizer == nil {
		return false, nil
	}

	in, err := t.recognizer.Recognize(ctx, turn.Activity.Text)
	if err != nil {
		t.logger.WithError(err).WithFields(logrus.Fields{
			"activity_id": turn.Activity.ID,
		}).Warn("Intent recognition failed, treating message as no intent")
		return false, nil
	}
	if in == nil || in.Name != intent.ChangeLanguage {
		return false, nil
	}

	entity, ok := in.Entity(intent.EntityToLanguage)
	if !ok {
		languageChangesTotal.WithLabelValues(changeMissingEntity).Inc()
		return true, t.reply(ctx, turn, MsgMissingLanguage)
	}

	if !t.languages.IsSupported(entity.Value) {
		languageChangesTotal.WithLabelValues(changeUnsupported).Inc()
		return true, t.reply(ctx, turn, fmt.Sprintf(MsgUnsupportedLanguage, entity.Value))
	}

	code := t.languages.CodeOf(entity.Value)
	if err := t.preference.SetLanguage(ctx, turn.Conversation, code); err != nil {
		t.logger.WithError(err).WithFields(logrus.Fields{
			"conversation_id": turn.Conversation.ID,
			"language":        code,
		}).Error("Failed to store user language")
		languageChangesTotal.WithLabelValues(changeFailed).Inc()
		return true, t.reply(ctx, turn, fmt.Sprintf(MsgChangeFailed, entity.Value))
	}

	t.logger.WithFields(logrus.Fields{
		"conversation_id": turn.Conversation.ID,
		"language":        code,
	}).Info("User language changed")
	languageChangesTotal.WithLabelValues(changeApplied).Inc()
	return true, t.reply(ctx, turn, fmt.Sprintf(MsgChangingLanguage, entity.Value))
}

func (t *Translation) reply(ctx context.Context, turn *bot.Turn, text string) error {
	if err := turn.Reply(ctx, text); err != nil {
		return fmt.Errorf("reply to language command: %w", err)
	}
	return nil
}

// OnSend implements bot.Middleware.
func (t *Translation) OnSend(ctx context.Context, turn *bot.Turn, activities []*bot.Activity, next bot.SendNextFunc) ([]bot.ResourceResponse, error) {
	lang, ok := t.userLanguage(ctx, turn)
	if !ok {
		return next(ctx)
	}

	t.TranslateBatch(ctx, activities, t.botLanguage, lang)
	return next(ctx)
}

// TranslateBatch translates the text of every activity in place, from source
// to target. Translations run concurrently; result i always lands in
// activities[i]. An activity whose translation fails keeps its text.
// It returns the number of failed translations.
func (t *Translation) TranslateBatch(ctx context.Context, activities []*bot.Activity, source, target language.Code) int {
	results := make([]string, len(activities))
	errs := make([]error, len(activities))

	var g errgroup.Group
	if t.concurrency > 0 {
		g.SetLimit(t.concurrency)
	}
	for i, activity := range activities {
		if activity == nil || activity.Text == "" {
			continue
		}
		text := activity.Text
		g.Go(func() error {
			results[i], errs[i] = t.Translate(ctx, text, source, target)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for i, activity := range activities {
		if activity == nil || activity.Text == "" {
			continue
		}
		if errs[i] != nil {
			failed++
			t.logger.WithError(errs[i]).WithFields(logrus.Fields{
				"activity_id": activity.ID,
				"position":    i,
				"source_lang": source,
				"target_lang": target,
			}).Warn("Outbound translation failed, sending untranslated")
			recordOutbound(false)
			continue
		}
		activity.Text = results[i]
		recordOutbound(true)
	}
	return failed
}

// Translate translates text between two languages. Equal languages never
// reach the translator and return text unchanged.
func (t *Translation) Translate(ctx context.Context, text string, from, to language.Code) (string, error) {
	if from == to {
		return text, nil
	}
	out, err := t.translator.Translate(ctx, text, string(from), string(to))
	if err != nil {
		return "", fmt.Errorf("translate %s to %s: %w", from, to, err)
	}
	return out, nil
}

// activeLanguage returns the user's language, or the bot's when none is set.
func (t *Translation) activeLanguage(ctx context.Context, turn *bot.Turn) language.Code {
	if lang, ok := t.userLanguage(ctx, turn); ok {
		return lang
	}
	return t.botLanguage
}

func (t *Translation) userLanguage(ctx context.Context, turn *bot.Turn) (language.Code, bool) {
	lang, ok, err := t.preference.Language(ctx, turn.Conversation)
	if err != nil {
		t.logger.WithError(err).WithFields(logrus.Fields{
			"conversation_id": turn.Conversation.ID,
		}).Warn("Failed to read user language, using bot language")
		return "", false
	}
	return lang, ok
}
