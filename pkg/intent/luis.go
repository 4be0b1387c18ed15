package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultLUISEndpoint is the regional LUIS endpoint used when none is configured.
	DefaultLUISEndpoint = "https://westus.api.cognitive.microsoft.com"
	// DefaultLUISTimeout bounds a single recognition request.
	DefaultLUISTimeout = 10 * time.Second
)

// LUISClient recognizes intents with the LUIS v2 prediction API.
type LUISClient struct {
	endpoint   string
	appID      string
	appKey     string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewLUISClient creates a client for the LUIS app appID authenticated by appKey.
func NewLUISClient(endpoint, appID, appKey string, logger *logrus.Logger) (*LUISClient, error) {
	if appID == "" || appKey == "" {
		return nil, ErrMissingCredentials
	}
	if endpoint == "" {
		endpoint = DefaultLUISEndpoint
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &LUISClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		appID:    appID,
		appKey:   appKey,
		httpClient: &http.Client{
			Timeout: DefaultLUISTimeout,
		},
		logger: logger,
	}, nil
}

// luisResponse is the subset of the LUIS v2 prediction payload we read.
type luisResponse struct {
	Query            string `json:"query"`
	TopScoringIntent *struct {
		Intent string  `json:"intent"`
		Score  float64 `json:"score"`
	} `json:"topScoringIntent"`
	Entities []struct {
		Entity string  `json:"entity"`
		Type   string  `json:"type"`
		Score  float64 `json:"score"`
	} `json:"entities"`
}

// Recognize implements Recognizer.
func (c *LUISClient) Recognize(ctx context.Context, text string) (*Intent, error) {
	c.logger.WithFields(logrus.Fields{
		"app_id":      c.appID,
		"text_length": len(text),
	}).Debug("Recognizing intent with LUIS")

	q := url.Values{}
	q.Set("subscription-key", c.appKey)
	q.Set("q", text)
	q.Set("verbose", "false")
	reqURL := fmt.Sprintf("%s/luis/v2.0/apps/%s?%s", c.endpoint, url.PathEscape(c.appID), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		c.logger.WithError(err).Error("Failed to create recognition request")
		return nil, fmt.Errorf("create request: %w", err)
	}

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"endpoint": c.endpoint,
		}).Warn("Recognition request failed")
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		c.logger.WithFields(logrus.Fields{
			"status_code": resp.StatusCode,
			"response":    string(bodyBytes),
		}).Warn("Recognition request returned non-OK status")
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var lr luisResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		c.logger.WithError(err).Error("Failed to decode recognition response")
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if lr.TopScoringIntent == nil || lr.TopScoringIntent.Intent == "" {
		return nil, nil
	}

	in := &Intent{
		Name:  lr.TopScoringIntent.Intent,
		Score: lr.TopScoringIntent.Score,
	}
	for _, e := range lr.Entities {
		in.Entities = append(in.Entities, Entity{Type: e.Type, Value: e.Entity, Score: e.Score})
	}

	c.logger.WithFields(logrus.Fields{
		"intent":      in.Name,
		"score":       in.Score,
		"entities":    len(in.Entities),
		"duration_ms": time.Since(startTime).Milliseconds(),
	}).Debug("Intent recognized")

	return in, nil
}
