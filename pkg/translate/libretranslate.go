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
	// DefaultLibreTranslateURL is the default base URL for LibreTranslate API.
	DefaultLibreTranslateURL = "http://localhost:5000"
	// DefaultLibreTranslateTimeout is the default timeout for HTTP requests.
	// Chat messages are short; a slow engine should not hold a turn for long.
	DefaultLibreTranslateTimeout = 15 * time.Second
)

// LibreTranslateClient implements the Translator interface using LibreTranslate.
// LibreTranslate is a self-hosted, open-source machine translation API.
type LibreTranslateClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	mapper     *LanguageMapper
	logger     *logrus.Logger
}

// NewLibreTranslateClient creates a new LibreTranslate client.
// apiKey is optional and only needed for instances that require one.
func NewLibreTranslateClient(baseURL, apiKey string, logger *logrus.Logger) *LibreTranslateClient {
	if baseURL == "" {
		baseURL = DefaultLibreTranslateURL
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &LibreTranslateClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultLibreTranslateTimeout,
		},
		mapper: NewLanguageMapper(),
		logger: logger,
	}
}

type libreTranslateRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
	APIKey string `json:"api_key,omitempty"`
}

type libreTranslateResponse struct {
	TranslatedText string `json:"translatedText"`
}

type libreLanguage struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Translate translates text from source language to target language.
func (c *LibreTranslateClient) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	source := c.mapper.ToBackendCode(sourceLang)
	target := c.mapper.ToBackendCode(targetLang)

	c.logger.WithFields(logrus.Fields{
		"source_lang": source,
		"target_lang": target,
		"text_length": len(text),
	}).Debug("Translating text with LibreTranslate")

	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(&libreTranslateRequest{
		Q:      text,
		Source: source,
		Target: target,
		Format: "text",
		APIKey: c.apiKey,
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

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"url": url,
		}).Error("Translation request failed")
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(startTime)
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		c.logger.WithFields(logrus.Fields{
			"status_code": resp.StatusCode,
			"response":    string(bodyBytes),
		}).Error("Translation request returned non-OK status")
		return "", fmt.Errorf("%w %d: %s", ErrUnexpectedStatus, resp.StatusCode, string(bodyBytes))
	}

	var ltResp libreTranslateResponse
	if err := json.NewDecoder(resp.Body).Decode(&ltResp); err != nil {
		c.logger.WithError(err).Error("Failed to decode translation response")
		return "", fmt.Errorf("decode response: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"source_lang": source,
		"target_lang": target,
		"duration_ms": duration.Milliseconds(),
	}).Debug("Translation completed successfully")

	return ltResp.TranslatedText, nil
}

// CheckHealth verifies that LibreTranslate is ready and operational.
// The /languages endpoint doubles as a health check.
func (c *LibreTranslateClient) CheckHealth(ctx context.Context) error {
	_, err := c.SupportedLanguages(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// SupportedLanguages returns a list of language codes supported by LibreTranslate.
func (c *LibreTranslateClient) SupportedLanguages(ctx context.Context) ([]string, error) {
	url := c.baseURL + "/languages"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create languages request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"url": url,
		}).Warn("Failed to fetch supported languages")
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.WithFields(logrus.Fields{
			"status_code": resp.StatusCode,
		}).Warn("Languages request returned non-OK status")
		return nil, fmt.Errorf("%w %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	var languages []libreLanguage
	if err := json.NewDecoder(resp.Body).Decode(&languages); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	codes := make([]string, 0, len(languages))
	for _, lang := range languages {
		codes = append(codes, lang.Code)
	}
	return codes, nil
}
