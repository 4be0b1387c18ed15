package middleware

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dasmlab/tolk/pkg/bot"
	"github.com/dasmlab/tolk/pkg/intent"
	"github.com/dasmlab/tolk/pkg/language"
	"github.com/dasmlab/tolk/pkg/state"
)

type mockTranslator struct {
	mock.Mock
}

func (m *mockTranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	args := m.Called(text, sourceLang, targetLang)
	return args.String(0), args.Error(1)
}

func (m *mockTranslator) CheckHealth(ctx context.Context) error {
	return m.Called().Error(0)
}

func (m *mockTranslator) SupportedLanguages(ctx context.Context) ([]string, error) {
	args := m.Called()
	return args.Get(0).([]string), args.Error(1)
}

type fakeRecognizer struct {
	mu     sync.Mutex
	intent *intent.Intent
	err    error
	texts  []string
}

func (f *fakeRecognizer) Recognize(ctx context.Context, text string) (*intent.Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return f.intent, f.err
}

type recordingSender struct {
	mu   sync.Mutex
	sent []string
}

func (s *recordingSender) Send(ctx context.Context, activities []*bot.Activity) ([]bot.ResourceResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	responses := make([]bot.ResourceResponse, len(activities))
	for i, a := range activities {
		s.sent = append(s.sent, a.Text)
		responses[i] = bot.ResourceResponse{ID: a.ID}
	}
	return responses, nil
}

type harness struct {
	translator *mockTranslator
	recognizer *fakeRecognizer
	storage    *state.MemoryStorage
	preference *state.UserLanguage
	sender     *recordingSender
	mw         *Translation
	bot        *bot.Bot
	handled    []string
}

func nullLogger() *logrus.Logger {
	logger, _ := test.NewNullLogger()
	return logger
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		translator: &mockTranslator{},
		recognizer: &fakeRecognizer{},
		storage:    state.NewMemoryStorage(time.Hour),
		sender:     &recordingSender{},
	}
	h.preference = state.NewUserLanguage(h.storage)
	h.mw = NewTranslation(h.translator, h.recognizer, h.preference, Config{
		BotLanguage: "en",
		Logger:      nullLogger(),
	})
	h.bot = bot.New(h.sender, func(ctx context.Context, turn *bot.Turn) error {
		h.handled = append(h.handled, turn.Activity.Text)
		return nil
	}, nullLogger()).Use(h.mw)
	t.Cleanup(func() { h.translator.AssertExpectations(t) })
	return h
}

var testConv = bot.Conversation{ID: "conv-1", UserID: "user-1"}

func message(text string) *bot.Activity {
	a := bot.NewMessage(text)
	a.ConversationID = testConv.ID
	a.From = bot.Account{ID: testConv.UserID}
	a.Recipient = bot.Account{ID: "bot"}
	return a
}

func (h *harness) setLanguage(t *testing.T, code language.Code) {
	t.Helper()
	require.NoError(t, h.preference.SetLanguage(context.Background(), testConv, code))
}

func (h *harness) language(t *testing.T) (language.Code, bool) {
	t.Helper()
	code, ok, err := h.preference.Language(context.Background(), testConv)
	require.NoError(t, err)
	return code, ok
}

func changeLanguage(entities ...intent.Entity) *intent.Intent {
	return &intent.Intent{Name: intent.ChangeLanguage, Score: 0.9, Entities: entities}
}

func TestOnReceiveWithoutUserLanguageSkipsTranslation(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.bot.ProcessActivity(context.Background(), message("Bonjour")))

	h.translator.AssertNotCalled(t, "Translate", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, []string{"Bonjour"}, h.recognizer.texts)
	assert.Equal(t, []string{"Bonjour"}, h.handled)
}

func TestOnReceiveTranslatesIntoBotLanguage(t *testing.T) {
	h := newHarness(t)
	h.setLanguage(t, "fr")
	h.translator.On("Translate", "Bonjour", "fr", "en").Return("Hello", nil).Once()

	in := message("Bonjour")
	require.NoError(t, h.bot.ProcessActivity(context.Background(), in))

	assert.Equal(t, "Hello", in.Text)
	assert.Equal(t, []string{"Hello"}, h.recognizer.texts)
	assert.Equal(t, []string{"Hello"}, h.handled)
}

func TestRepliesAreTranslatedIntoUserLanguage(t *testing.T) {
	h := newHarness(t)
	h.setLanguage(t, "fr")
	h.translator.On("Translate", "Bonjour", "fr", "en").Return("Hello", nil).Once()
	h.translator.On("Translate", "You said Hello", "en", "fr").Return("Vous avez dit Bonjour", nil).Once()

	h.bot = bot.New(h.sender, func(ctx context.Context, turn *bot.Turn) error {
		return turn.Reply(ctx, "You said "+turn.Activity.Text)
	}, nullLogger()).Use(h.mw)

	require.NoError(t, h.bot.ProcessActivity(context.Background(), message("Bonjour")))
	assert.Equal(t, []string{"Vous avez dit Bonjour"}, h.sender.sent)
}

func TestChangeLanguageToSupportedLanguage(t *testing.T) {
	h := newHarness(t)
	h.recognizer.intent = changeLanguage(intent.Entity{Type: intent.EntityToLanguage, Value: "French"})
	h.translator.On("Translate", "Changing your language to French", "en", "fr").
		Return("Je change votre langue en français", nil).Once()

	require.NoError(t, h.bot.ProcessActivity(context.Background(), message("switch to french")))

	code, ok := h.language(t)
	assert.True(t, ok)
	assert.Equal(t, language.Code("fr"), code)
	assert.Empty(t, h.handled, "language commands must not reach the bot logic")
	assert.Equal(t, []string{"Je change votre langue en français"}, h.sender.sent)
}

func TestChangeLanguageToUnsupportedLanguage(t *testing.T) {
	h := newHarness(t)
	h.recognizer.intent = changeLanguage(intent.Entity{Type: intent.EntityToLanguage, Value: "klingon"})

	require.NoError(t, h.bot.ProcessActivity(context.Background(), message("speak klingon")))

	_, ok := h.language(t)
	assert.False(t, ok)
	assert.Empty(t, h.handled)
	assert.Equal(t, []string{"klingon is not a supported language."}, h.sender.sent)
}

func TestChangeLanguageUnsupportedKeepsPreviousLanguage(t *testing.T) {
	h := newHarness(t)
	h.setLanguage(t, "de")
	h.recognizer.intent = changeLanguage(intent.Entity{Type: intent.EntityToLanguage, Value: "klingon"})
	h.translator.On("Translate", "sprich klingonisch", "de", "en").Return("speak klingon", nil).Once()
	h.translator.On("Translate", "klingon is not a supported language.", "en", "de").
		Return("klingon ist keine unterstützte Sprache.", nil).Once()

	require.NoError(t, h.bot.ProcessActivity(context.Background(), message("sprich klingonisch")))

	code, _ := h.language(t)
	assert.Equal(t, language.Code("de"), code)
	assert.Empty(t, h.handled)
}

func TestChangeLanguageWithoutEntity(t *testing.T) {
	h := newHarness(t)
	h.recognizer.intent = changeLanguage(intent.Entity{Type: "something::else", Value: "french"})

	require.NoError(t, h.bot.ProcessActivity(context.Background(), message("change language")))

	_, ok := h.language(t)
	assert.False(t, ok)
	assert.Empty(t, h.handled)
	assert.Equal(t, []string{MsgMissingLanguage}, h.sender.sent)
}

func TestChangeLanguageIgnoresLanguageEntityAfterOtherEntity(t *testing.T) {
	h := newHarness(t)
	h.setLanguage(t, "fr")
	h.recognizer.intent = changeLanguage(
		intent.Entity{Type: "builtin.number", Value: "2"},
		intent.Entity{Type: intent.EntityToLanguage, Value: "english"},
	)
	h.translator.On("Translate", "deux langues", "fr", "en").Return("two languages", nil).Once()
	h.translator.On("Translate", MsgMissingLanguage, "en", "fr").
		Return("Vous devez me dire dans quelle langue traduire !", nil).Once()

	require.NoError(t, h.bot.ProcessActivity(context.Background(), message("deux langues")))

	code, ok := h.language(t)
	assert.True(t, ok)
	assert.Equal(t, language.Code("fr"), code)
	assert.Empty(t, h.handled)
	assert.Equal(t, []string{"Vous devez me dire dans quelle langue traduire !"}, h.sender.sent)
}

func TestOtherIntentsReachBotLogicOnce(t *testing.T) {
	for name, in := range map[string]*intent.Intent{
		"no intent":    nil,
		"other intent": {Name: "greeting", Entities: []intent.Entity{{Type: intent.EntityToLanguage, Value: "french"}}},
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			h.setLanguage(t, "es")
			h.recognizer.intent = in
			h.translator.On("Translate", "Hola", "es", "en").Return("Hello", nil).Once()

			require.NoError(t, h.bot.ProcessActivity(context.Background(), message("Hola")))

			assert.Equal(t, []string{"Hello"}, h.handled)
			code, _ := h.language(t)
			assert.Equal(t, language.Code("es"), code)
		})
	}
}

func TestInboundTranslationFailurePassesThrough(t *testing.T) {
	h := newHarness(t)
	h.setLanguage(t, "fr")
	h.recognizer.intent = changeLanguage(intent.Entity{Type: intent.EntityToLanguage, Value: "german"})
	h.translator.On("Translate", "Bonjour", "fr", "en").Return("", errors.New("quota exceeded")).Once()

	require.NoError(t, h.bot.ProcessActivity(context.Background(), message("Bonjour")))

	assert.Empty(t, h.recognizer.texts, "no language detection after a failed translation")
	assert.Equal(t, []string{"Bonjour"}, h.handled)
	code, _ := h.language(t)
	assert.Equal(t, language.Code("fr"), code)
}

func TestRecognizerFailureCountsAsNoIntent(t *testing.T) {
	h := newHarness(t)
	h.recognizer.err = errors.New("luis unreachable")

	require.NoError(t, h.bot.ProcessActivity(context.Background(), message("hello")))
	assert.Equal(t, []string{"hello"}, h.handled)
}

func TestNilRecognizerNeverIntercepts(t *testing.T) {
	h := newHarness(t)
	h.mw = NewTranslation(h.translator, nil, h.preference, Config{Logger: nullLogger()})
	h.bot = bot.New(h.sender, func(ctx context.Context, turn *bot.Turn) error {
		h.handled = append(h.handled, turn.Activity.Text)
		return nil
	}, nullLogger()).Use(h.mw)

	require.NoError(t, h.bot.ProcessActivity(context.Background(), message("/language french")))
	assert.Equal(t, []string{"/language french"}, h.handled)
	assert.Equal(t, language.Code("en"), h.mw.BotLanguage())
}

func TestOnReceiveIgnoresOtherActivityTypes(t *testing.T) {
	h := newHarness(t)
	h.setLanguage(t, "fr")

	typing := message("ignored")
	typing.Type = bot.TypeTyping
	require.NoError(t, h.bot.ProcessActivity(context.Background(), typing))

	assert.Equal(t, "ignored", typing.Text)
	assert.Empty(t, h.recognizer.texts)
	assert.Equal(t, []string{"ignored"}, h.handled)
}

func TestOnReceiveHandlesConversationUpdate(t *testing.T) {
	h := newHarness(t)
	h.setLanguage(t, "fr")
	h.translator.On("Translate", "Bienvenue", "fr", "en").Return("Welcome", nil).Once()

	update := message("Bienvenue")
	update.Type = bot.TypeConversationUpdate
	require.NoError(t, h.bot.ProcessActivity(context.Background(), update))
	assert.Equal(t, []string{"Welcome"}, h.handled)

	empty := message("")
	empty.Type = bot.TypeConversationUpdate
	require.NoError(t, h.bot.ProcessActivity(context.Background(), empty))
	assert.Equal(t, []string{"Welcome", ""}, h.handled)
}

type failingStorage struct {
	getErr error
	setErr error
}

func (f failingStorage) Get(ctx context.Context, key, field string) (string, bool, error) {
	if f.getErr != nil {
		return "", false, f.getErr
	}
	return "", false, nil
}

func (f failingStorage) Set(ctx context.Context, key, field, value string) error {
	return f.setErr
}

func TestPreferenceReadFailureUsesBotLanguage(t *testing.T) {
	h := newHarness(t)
	h.mw = NewTranslation(h.translator, h.recognizer, state.NewUserLanguage(failingStorage{getErr: errors.New("redis down")}), Config{Logger: nullLogger()})
	h.bot = bot.New(h.sender, func(ctx context.Context, turn *bot.Turn) error {
		h.handled = append(h.handled, turn.Activity.Text)
		return turn.Reply(ctx, "ok")
	}, nullLogger()).Use(h.mw)

	require.NoError(t, h.bot.ProcessActivity(context.Background(), message("Bonjour")))
	assert.Equal(t, []string{"Bonjour"}, h.handled)
	assert.Equal(t, []string{"ok"}, h.sender.sent)
}

func TestPreferenceWriteFailureRepliesWithApology(t *testing.T) {
	h := newHarness(t)
	h.recognizer.intent = changeLanguage(intent.Entity{Type: intent.EntityToLanguage, Value: "italian"})
	h.mw = NewTranslation(h.translator, h.recognizer, state.NewUserLanguage(failingStorage{setErr: errors.New("redis down")}), Config{Logger: nullLogger()})
	h.bot = bot.New(h.sender, func(ctx context.Context, turn *bot.Turn) error {
		h.handled = append(h.handled, turn.Activity.Text)
		return nil
	}, nullLogger()).Use(h.mw)

	require.NoError(t, h.bot.ProcessActivity(context.Background(), message("italian please")))
	assert.Empty(t, h.handled)
	assert.Equal(t, []string{"Sorry, I could not change your language to italian."}, h.sender.sent)
}

func TestTranslateIdentityNeverCallsTranslator(t *testing.T) {
	h := newHarness(t)
	for _, code := range []language.Code{"en", "fr", "ja"} {
		out, err := h.mw.Translate(context.Background(), "unchanged", code, code)
		require.NoError(t, err)
		assert.Equal(t, "unchanged", out)
	}
	h.translator.AssertNotCalled(t, "Translate", mock.Anything, mock.Anything, mock.Anything)
}

func TestOnSendWithoutUserLanguageDeliversUnchanged(t *testing.T) {
	h := newHarness(t)
	turn := bot.NewTurn(message("hi"), h.sender)
	activities := []*bot.Activity{message("one"), message("two")}

	called := false
	_, err := h.mw.OnSend(context.Background(), turn, activities, func(ctx context.Context) ([]bot.ResourceResponse, error) {
		called = true
		return nil, nil
	})
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, "one", activities[0].Text)
	assert.Equal(t, "two", activities[1].Text)
}

// orderedTranslator completes "z" first, then "y", then "x".
type orderedTranslator struct {
	zDone, yDone chan struct{}
	mu           sync.Mutex
	completed    []string
}

func (o *orderedTranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	switch text {
	case "y":
		<-o.zDone
		defer close(o.yDone)
	case "x":
		<-o.yDone
	case "z":
		defer close(o.zDone)
	}
	o.mu.Lock()
	o.completed = append(o.completed, text)
	o.mu.Unlock()
	return strings.ToUpper(text) + "-" + targetLang, nil
}

func (o *orderedTranslator) CheckHealth(ctx context.Context) error { return nil }

func (o *orderedTranslator) SupportedLanguages(ctx context.Context) ([]string, error) {
	return nil, nil
}

func TestOnSendPreservesPositionsWhenCompletingOutOfOrder(t *testing.T) {
	tr := &orderedTranslator{zDone: make(chan struct{}), yDone: make(chan struct{})}
	storage := state.NewMemoryStorage(time.Hour)
	pref := state.NewUserLanguage(storage)
	require.NoError(t, pref.SetLanguage(context.Background(), testConv, "fr"))
	mw := NewTranslation(tr, nil, pref, Config{Logger: nullLogger()})

	activities := []*bot.Activity{message("x"), message("y"), message("z")}
	var delivered []string
	_, err := mw.OnSend(context.Background(), bot.NewTurn(message("hi"), &recordingSender{}), activities,
		func(ctx context.Context) ([]bot.ResourceResponse, error) {
			for _, a := range activities {
				delivered = append(delivered, a.Text)
			}
			return nil, nil
		})
	require.NoError(t, err)

	assert.Equal(t, []string{"z", "y", "x"}, tr.completed)
	assert.Equal(t, []string{"X-fr", "Y-fr", "Z-fr"}, delivered)
}

func TestOnSendIsolatesFailures(t *testing.T) {
	h := newHarness(t)
	h.setLanguage(t, "de")
	h.translator.On("Translate", "first", "en", "de").Return("erste", nil).Once()
	h.translator.On("Translate", "second", "en", "de").Return("", errors.New("timeout")).Once()
	h.translator.On("Translate", "third", "en", "de").Return("dritte", nil).Once()

	activities := []*bot.Activity{message("first"), message("second"), message(""), message("third")}
	failed := h.mw.TranslateBatch(context.Background(), activities, "en", "de")

	assert.Equal(t, 1, failed)
	assert.Equal(t, "erste", activities[0].Text)
	assert.Equal(t, "second", activities[1].Text)
	assert.Equal(t, "", activities[2].Text)
	assert.Equal(t, "dritte", activities[3].Text)
}

func TestOnSendDeliversEvenWhenAllTranslationsFail(t *testing.T) {
	h := newHarness(t)
	h.setLanguage(t, "fr")
	h.translator.On("Translate", mock.Anything, "en", "fr").Return("", errors.New("engine down"))

	turn := bot.NewTurn(message("hi"), h.sender)
	activities := []*bot.Activity{message("a"), message("b")}
	resp, err := h.mw.OnSend(context.Background(), turn, activities, func(ctx context.Context) ([]bot.ResourceResponse, error) {
		return h.sender.Send(ctx, activities)
	})
	require.NoError(t, err)
	assert.Len(t, resp, 2)
	assert.Equal(t, []string{"a", "b"}, h.sender.sent)
}

type countingTranslator struct {
	active, peak atomic.Int32
}

func (c *countingTranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	n := c.active.Add(1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	c.active.Add(-1)
	return text, nil
}

func (c *countingTranslator) CheckHealth(ctx context.Context) error { return nil }

func (c *countingTranslator) SupportedLanguages(ctx context.Context) ([]string, error) {
	return nil, nil
}

func TestTranslateBatchRespectsConcurrencyLimit(t *testing.T) {
	tr := &countingTranslator{}
	mw := NewTranslation(tr, nil, state.NewUserLanguage(state.NewMemoryStorage(0)), Config{
		OutboundConcurrency: 2,
		Logger:              nullLogger(),
	})

	activities := make([]*bot.Activity, 8)
	for i := range activities {
		activities[i] = message("text")
	}
	assert.Equal(t, 0, mw.TranslateBatch(context.Background(), activities, "en", "fr"))
	assert.LessOrEqual(t, tr.peak.Load(), int32(2))
}

func TestTurnOutcomesAreCounted(t *testing.T) {
	forwarded := testutil.ToFloat64(inboundTurnsTotal.WithLabelValues(outcomeForwarded))
	intercepted := testutil.ToFloat64(inboundTurnsTotal.WithLabelValues(outcomeIntercepted))
	applied := testutil.ToFloat64(languageChangesTotal.WithLabelValues(changeApplied))

	h := newHarness(t)
	require.NoError(t, h.bot.ProcessActivity(context.Background(), message("hello")))

	h.recognizer.intent = changeLanguage(intent.Entity{Type: intent.EntityToLanguage, Value: "english"})
	require.NoError(t, h.bot.ProcessActivity(context.Background(), message("english please")))

	assert.Equal(t, forwarded+1, testutil.ToFloat64(inboundTurnsTotal.WithLabelValues(outcomeForwarded)))
	assert.Equal(t, intercepted+1, testutil.ToFloat64(inboundTurnsTotal.WithLabelValues(outcomeIntercepted)))
	assert.Equal(t, applied+1, testutil.ToFloat64(languageChangesTotal.WithLabelValues(changeApplied)))
}
