package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

// ErrModelUnavailable is returned once retries against the inference
// service are exhausted. Callers decide whether to re-request.
var ErrModelUnavailable = errors.New("model service unavailable")

const (
	maxAttempts      = 3
	defaultBaseDelay = 1 * time.Second
	maxDelay         = 8 * time.Second
)

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Client talks to the Ollama HTTP API. It is stateless per call; no
// conversation memory is kept between requests.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	timeout    time.Duration
	baseDelay  time.Duration
}

func NewClient(baseURL, model string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		timeout:   timeout,
		baseDelay: defaultBaseDelay,
	}
}

func (c *Client) Model() string {
	return c.model
}

// Generate sends the prompt to the configured model and returns the raw
// generated text. Transient failures (timeout, connection errors, 429,
// 5xx) are retried with exponential backoff; anything else fails
// immediately.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		text, retryable, err := c.generateOnce(ctx, payload)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if !retryable {
			return "", err
		}

		if attempt == maxAttempts {
			break
		}

		delay := c.baseDelay << uint(attempt-1)
		if delay > maxDelay {
			delay = maxDelay
		}

		slog.Warn("Model request failed, retrying",
			"model", c.model, "attempt", attempt, "delay", delay.String(), "error", err)

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("generation cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}
	}

	return "", fmt.Errorf("%w: %d attempts failed, last error: %v", ErrModelUnavailable, maxAttempts, lastErr)
}

func (c *Client) generateOnce(ctx context.Context, payload []byte) (string, bool, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodPost,
		c.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", isTransient(err), fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("HTTP error: %d %s: %s", resp.StatusCode, resp.Status, strings.TrimSpace(string(body)))

		// 5xx and throttling are worth another attempt; a 404 for an
		// unknown model never is.
		retryable := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return "", retryable, err
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", false, fmt.Errorf("failed to decode response: %w", err)
	}

	return result.Response, false, nil
}

// ListModels returns the names of the models the inference service has
// available.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	var result tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	names := make([]string, 0, len(result.Models))
	for _, model := range result.Models {
		names = append(names, model.Name)
	}

	return names, nil
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// Timeouts, connection refused/reset and DNS failures all surface
	// as a net.Error somewhere in the chain.
	var netErr net.Error
	return errors.As(err, &netErr)
}
