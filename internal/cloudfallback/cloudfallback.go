// Package cloudfallback is the ordered multi-provider vision client used
// when local inference is unhealthy, slow, or insufficiently confident
// (SPEC_FULL.md component: Cloud Fallback).
package cloudfallback

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"lighthouse/internal/domain"
	"lighthouse/internal/inference"
	"lighthouse/pkg/clients"
	"lighthouse/pkg/logging"
)

// Deadline bounds one Analyze call across all of its providers; each
// provider request also carries an HTTP timeout of the same length
// (spec.md §5).
const Deadline = 30 * time.Second

// errUnparseable marks a provider that answered but whose body was not
// valid JSON.
var errUnparseable = errors.New("unparseable provider response")

// Provider is one configured cloud vision endpoint, tried in order.
type Provider struct {
	Name    string
	BaseURL string
	APIKey  string
}

// Client rotates through Providers, returning the first parseable result.
type Client struct {
	providers  []Provider
	httpClient *http.Client
	logger     logging.Logger
}

// New builds a fallback client. providers is tried in the given order
// (default: best-quality → cheapest, per spec.md §4.3).
func New(providers []Provider, logger logging.Logger) *Client {
	return &Client{
		providers:  providers,
		httpClient: &http.Client{Timeout: Deadline},
		logger:     logger,
	}
}

// Result is the outcome of a successful fallback call.
type Result struct {
	Concern        domain.Concern
	Confidence     float64
	Text           string
	DetectedIssues []string
	ModelName      string
}

type providerPayload struct {
	Concern        string   `json:"concern"`
	Confidence     float64  `json:"confidence"`
	Description    string   `json:"description"`
	DetectedIssues []string `json:"detected_issues"`
}

// Analyze tries each provider in order until one returns a parseable JSON
// body. Unparseable bodies count as failures and move to the next
// provider. If no provider returns a parseable body but at least one
// answered with an unparseable one, the first such answer degrades per
// spec.md §4.3's parser-failure rule (concern=low, "parse error"); if
// every provider fails outright, it returns an error.
func (c *Client) Analyze(ctx context.Context, prompt string, image []byte) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, Deadline)
	defer cancel()

	var lastErr error
	var degraded *Result
	for _, p := range c.providers {
		result, err := c.tryProvider(ctx, p, prompt, image)
		if err != nil {
			c.logger.WithFields(logging.Fields{"provider": p.Name, "error": err.Error()}).
				Warn("cloud fallback provider failed, trying next")
			lastErr = err
			if errors.Is(err, errUnparseable) && degraded == nil {
				degraded = result
			}
			continue
		}
		return result, nil
	}
	if degraded != nil {
		return degraded, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("cloudfallback: no providers configured")
	}
	return nil, fmt.Errorf("all cloud providers failed: %w", lastErr)
}

func (c *Client) tryProvider(ctx context.Context, p Provider, prompt string, image []byte) (*Result, error) {
	body, err := json.Marshal(map[string]interface{}{
		"prompt": prompt,
		"image":  image,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	executor := clients.NewHTTPExecutor(clients.HTTPExecutorConfig{
		MaxRetries: 1,
		BaseDelay:  200 * time.Millisecond,
		MaxDelay:   1 * time.Second,
	})

	resp, err := clients.ExecuteHTTP(ctx, executor, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/v1/analyze", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+p.APIKey)
		return c.httpClient.Do(req)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", p.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: status %d", p.Name, resp.StatusCode)
	}

	var payload providerPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		// parse-error path: concern=low, description="parse error" (spec.md §4.3)
		return &Result{
			Concern:    domain.ConcernLow,
			Confidence: 0,
			Text:       "parse error",
			ModelName:  p.Name,
		}, fmt.Errorf("%s: %w", p.Name, errUnparseable)
	}

	concern := domain.Concern(payload.Concern)
	if !isValidConcern(concern) {
		concern = inference.ParseConcern(payload.Description)
	}

	return &Result{
		Concern:        concern,
		Confidence:     payload.Confidence,
		Text:           payload.Description,
		DetectedIssues: payload.DetectedIssues,
		ModelName:      p.Name,
	}, nil
}

func isValidConcern(c domain.Concern) bool {
	switch c {
	case domain.ConcernNone, domain.ConcernLow, domain.ConcernMedium, domain.ConcernHigh, domain.ConcernCritical:
		return true
	default:
		return false
	}
}
