package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultMicrosoftURL is the global Microsoft Translator Text v3 endpoint.
	DefaultMicrosoftURL = "https://api.cognitive.microsofttranslator.com"
	// DefaultMicrosoftTimeout is the default timeout for HTTP requests.
	DefaultMicrosoftTimeout = 15 * time.Second

	microsoftAPIVersion = "3.0"
)

// MicrosoftClient implements the Translator interface using Microsoft
// Translator Text v3.
type MicrosoftClient struct {
	baseURL    string
	apiKey     string
	region     string
	httpClient *http.Client
	mapper     *LanguageMapper
	logger     *logrus.Logger
}

// NewMicrosoftClient creates a new Microsoft Translator client. region is only
// required for regional (non-global) resources.
func NewMicrosoftClient(baseURL, apiKey, region string, logger *logrus.Logger) (*MicrosoftClient, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if baseURL == "" {
		baseURL = DefaultMicrosoftURL
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &MicrosoftClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		region:  region,
		httpClient: &http.Client{
			Timeout: DefaultMicrosoftTimeout,
		},
		mapper: NewLanguageMapper(),
		logger: logger,
	}, nil
}

type microsoftText struct {
	Text string `json:"Text"`
}

type microsoftTranslation struct {
	Translations []struct {
		Text string `json:"text"`
		To   string `json:"to"`
	} `json:"translations"`
}

type microsoftLanguages struct {
	Translation map[string]struct {
		Name string `json:"name"`
	} `json:"translation"`
}

// Translate translates text from source language to target language.
func (c *MicrosoftClient) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	source := c.mapper.ToBackendCode(sourceLang)
	target := c.mapper.ToBackendCode(targetLang)

	c.logger.WithFields(logrus.Fields{
		"source_lang": source,
		"target_lang": target,
		"text_length": len(text),
	}).Debug("Translating text with Microsoft Translator")

	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode([]microsoftText{{Text: text}}); err != nil {
		c.logger.WithError(err).Error("Failed to encode translation request")
		return "", fmt.Errorf("encode request: %w", err)
	}

	q := url.Values{}
	q.Set("api-version", microsoftAPIVersion)
	q.Set("from", source)
	q.Set("to", target)
	q.Set("textType", "plain")
	reqURL := c.baseURL + "/translate?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, buf)
	if err != nil {
		c.logger.WithError(err).Error("Failed to create translation request")
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"url": c.baseURL,
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

	var results []microsoftTranslation
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		c.logger.WithError(err).Error("Failed to decode translation response")
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(results) == 0 || len(results[0].Translations) == 0 {
		return "", ErrEmptyTranslation
	}

	c.logger.WithFields(logrus.Fields{
		"source_lang": source,
		"target_lang": target,
		"duration_ms": time.Since(startTime).Milliseconds(),
	}).Debug("Translation completed successfully")

	return results[0].Translations[0].Text, nil
}

func (c *MicrosoftClient) authorize(req *http.Request) {
	req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)
	if c.region != "" {
		req.Header.Set("Ocp-Apim-Subscription-Region", c.region)
	}
}

// CheckHealth runs an authenticated language detection on a short probe text,
// so a rejected subscription key reports unhealthy. The languages endpoint
// is anonymous and would not notice a bad key.
func (c *MicrosoftClient) CheckHealth(ctx context.Context) error {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode([]microsoftText{{Text: "ok"}}); err != nil {
		return fmt.Errorf("encode health request: %w", err)
	}

	reqURL := c.baseURL + "/detect?api-version=" + microsoftAPIVersion
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, buf)
	if err != nil {
		return fmt.Errorf("create health request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		c.logger.WithFields(logrus.Fields{
			"status_code": resp.StatusCode,
			"response":    string(bodyBytes),
		}).Warn("Microsoft Translator health check returned non-OK status")
		return fmt.Errorf("health check failed: %w %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	return nil
}

// SupportedLanguages returns the translation language codes, sorted.
func (c *MicrosoftClient) SupportedLanguages(ctx context.Context) ([]string, error) {
	reqURL := c.baseURL + "/languages?api-version=" + microsoftAPIVersion + "&scope=translation"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create languages request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	var langs microsoftLanguages
	if err := json.NewDecoder(resp.Body).Decode(&langs); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	codes := make([]string, 0, len(langs.Translation))
	for code := range langs.Translation {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes, nil
}
