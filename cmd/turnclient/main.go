package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dasmlab/tolk/pkg/app"
	"github.com/dasmlab/tolk/pkg/bot"
	"github.com/dasmlab/tolk/pkg/config"
	"github.com/dasmlab/tolk/pkg/language"
	"github.com/dasmlab/tolk/pkg/state"
	"github.com/sirupsen/logrus"
)

var (
	envFile  = flag.String("env-file", ".env", "Optional .env file to load before reading the environment")
	userLang = flag.String("lang", "", "Language already chosen by the user (e.g., French); empty for none")
	textFile = flag.String("file", "", "Path to a text file holding the message")
	text     = flag.String("text", "", "Message text (if file not provided)")
	timeout  = flag.Duration("timeout", 30*time.Second, "Timeout for the whole turn")
)

// stdoutSender prints every outbound message on its own line.
type stdoutSender struct {
	logger *logrus.Logger
}

func (s stdoutSender) Send(ctx context.Context, activities []*bot.Activity) ([]bot.ResourceResponse, error) {
	responses := make([]bot.ResourceResponse, 0, len(activities))
	for _, activity := range activities {
		s.logger.WithFields(logrus.Fields{
			"activity_id": activity.ID,
			"reply_to":    activity.ReplyToID,
		}).Debug("Outbound activity")
		fmt.Println(activity.Text)
		responses = append(responses, bot.ResourceResponse{ID: activity.ID})
	}
	return responses, nil
}

func main() {
	flag.Parse()

	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	// Read the message
	var message string
	if *textFile != "" {
		data, err := os.ReadFile(*textFile)
		if err != nil {
			logger.WithError(err).Fatalf("Failed to read file: %s", *textFile)
		}
		message = string(data)
	} else if *text != "" {
		message = *text
	} else {
		logger.Fatal("Either -file or -text must be provided")
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	// One-shot runs never outlive the process, so keep state local.
	cfg.StateBackend = config.BackendMemory
	logger.SetLevel(cfg.Level())

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to build translation pipeline")
	}
	defer a.Close()

	activity := bot.NewMessage(strings.TrimSpace(message))
	activity.ConversationID = "turnclient"
	activity.ChannelID = "cli"
	activity.From = bot.Account{ID: "cli-user", Name: "User"}
	activity.Recipient = bot.Account{ID: "bot", Name: "Bot"}

	if *userLang != "" {
		if !language.Default.IsSupported(*userLang) {
			logger.Fatalf("%s is not a supported language", *userLang)
		}
		pref := state.NewUserLanguage(a.Storage)
		if err := pref.SetLanguage(ctx, activity.Conversation(), language.Default.CodeOf(*userLang)); err != nil {
			logger.WithError(err).Fatal("Failed to preset user language")
		}
	}

	logger.WithFields(logrus.Fields{
		"text_length": len(activity.Text),
		"user_lang":   *userLang,
		"engine":      cfg.Engine,
	}).Info("Processing turn")

	start := time.Now()
	b := a.Bot(stdoutSender{logger: logger}, func(ctx context.Context, turn *bot.Turn) error {
		logger.WithFields(logrus.Fields{
			"text": turn.Activity.Text,
		}).Info("Bot logic received message")
		return bot.EchoHandler(ctx, turn)
	})
	if err := b.ProcessActivity(ctx, activity); err != nil {
		logger.WithError(err).Fatal("Turn failed")
	}

	logger.WithFields(logrus.Fields{
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Turn completed")
}
