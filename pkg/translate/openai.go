package translate

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"github.com/dasmlab/tolk/pkg/language"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = openai.GPT4oMini

// OpenAIClient implements the Translator interface with chat completions.
type OpenAIClient struct {
	client *openai.Client
	model  string
	mapper *LanguageMapper
	logger *logrus.Logger
}

// NewOpenAIClient creates a translator backed by the OpenAI chat API.
// baseURL is optional and allows OpenAI-compatible gateways.
func NewOpenAIClient(apiKey, baseURL, model string, logger *logrus.Logger) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	if logger == nil {
		logger = logrus.New()
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		mapper: NewLanguageMapper(),
		logger: logger,
	}, nil
}

// Translate translates text from source language to target language.
func (c *OpenAIClient) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	source := language.DisplayName(language.Code(c.mapper.ToBackendCode(sourceLang)))
	target := language.DisplayName(language.Code(c.mapper.ToBackendCode(targetLang)))

	c.logger.WithFields(logrus.Fields{
		"source_lang": source,
		"target_lang": target,
		"model":       c.model,
		"text_length": len(text),
	}).Debug("Translating text with OpenAI")

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: fmt.Sprintf("You translate chat messages from %s to %s. "+
					"Respond with only the translation, nothing else.", source, target),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: text,
			},
		},
		Temperature: 0.2,
	})
	if err != nil {
		c.logger.WithError(err).Error("Translation request failed")
		return "", fmt.Errorf("openai chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyTranslation
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// CheckHealth verifies the API key by listing models.
func (c *OpenAIClient) CheckHealth(ctx context.Context) error {
	if _, err := c.client.ListModels(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// SupportedLanguages returns the bot's language table; chat models handle all of them.
func (c *OpenAIClient) SupportedLanguages(ctx context.Context) ([]string, error) {
	codes := language.Default.Codes()
	out := make([]string, len(codes))
	for i, code := range codes {
		out[i] = code.String()
	}
	return out, nil
}
