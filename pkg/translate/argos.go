package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultArgosURL is the default base URL for an Argos Translate HTTP wrapper.
	DefaultArgosURL = "http://127.0.0.1:5000"
	// DefaultArgosTimeout is the default timeout for HTTP requests.
	DefaultArgosTimeout = 15 * time.Second
)

// argosLanguages is what common Argos Translate installs ship with.
// Argos has no languages endpoint, so the list is fixed.
var argosLanguages = []string{
	"en", "es", "fr", "de", "it", "pt", "ru", "zh", "ja", "ko",
	"ar", "hi", "tr", "pl", "nl", "sv", "da", "fi", "no", "cs",
	"ro", "hu", "bg", "hr", "sk", "sl", "et", "lv", "lt", "el",
}

// ArgosClient implements the Translator interface using Argos Translate
// running behind a small HTTP service.
type ArgosClient struct {
	baseURL    string
	httpClient *http.Client
	mapper     *LanguageMapper
	logger     *logrus.Logger
}

// NewArgosClient creates a new Argos Translate client.
func NewArgosClient(baseURL string, logger *logrus.Logger) *ArgosClient {
	if baseURL == "" {
		baseURL = DefaultArgosURL
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &ArgosClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultArgosTimeout,
		},
		mapper: NewLanguageMapper(),
		logger: logger,
	}
}

type argosTranslateRequest struct {
	Text       string `json:"text"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
}

type argosTranslateResponse struct {
	TranslatedText string `json:"translated_text"`
}

// Translate translates text from source language to target language.
func (c *ArgosClient) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	source := c.mapper.ToBackendCode(sourceLang)
	target := c.mapper.ToBackendCode(targetLang)

	c.logger.WithFields(logrus.Fields{
		"source_lang": source,
		"target_lang": target,
		"text_length": len(text),
	}).Debug("Translating text with Argos")

	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(&argosTranslateRequest{
		Text:       text,
		SourceLang: source,
		TargetLang: target,
	}); err != nil {
		c.logger.WithError(err).Error("Failed to encode translation request")
		return "", fmt.Errorf("encode request: %w", err)
	}

	url := c.baseURL + "/translate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, buf)
	if err != nil {
		c.logger.WithError(err).Error("Failed to create translation request")
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"url": url,
		}).Error("Translation request failed")
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		c.logger.WithFields(logrus.Fields{
			"status_code": resp.StatusCode,
			"response":    string(bodyBytes),
		}).Error("Translation request returned non-OK status")
		return "", fmt.Errorf("%w %d: %s", ErrUnexpectedStatus, resp.StatusCode, string(bodyBytes))
	}

	var argosResp argosTranslateResponse
	if err := json.NewDecoder(resp.Body).Decode(&argosResp); err != nil {
		c.logger.WithError(err).Error("Failed to decode translation response")
		return "", fmt.Errorf("decode response: %w", err)
	}

	return argosResp.TranslatedText, nil
}

// CheckHealth verifies that the Argos service answers on /health.
func (c *ArgosClient) CheckHealth(ctx context.Context) error {
	url := c.baseURL + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"url": url,
		}).Warn("Health check request failed")
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: %w %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	return nil
}

// SupportedLanguages returns the fixed list of Argos language codes.
func (c *ArgosClient) SupportedLanguages(ctx context.Context) ([]string, error) {
	out := make([]string, len(argosLanguages))
	copy(out, argosLanguages)
	return out, nil
}
