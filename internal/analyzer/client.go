package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/thomasjjj/Track-UA-Air-Attacks/internal/config"
	"github.com/thomasjjj/Track-UA-Air-Attacks/internal/domain"
	"github.com/thomasjjj/Track-UA-Air-Attacks/internal/ports"
)

// RetryPolicy bounds the backoff loop around one classify call.
type RetryPolicy struct {
	MaxAttempts    int
	MaxElapsed     time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryPolicy mirrors the production rate-limit settings.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		MaxElapsed:     60 * time.Second,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
	}
}

// Client extracts structured attack data from message text via an
// OpenAI-compatible chat-completions endpoint.
type Client struct {
	endpoint    string
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	retry       RetryPolicy
	httpClient  *http.Client
	logger      *slog.Logger
}

var _ ports.Analyzer = (*Client)(nil)

// NewClient builds a client from configuration.
func NewClient(cfg config.OpenAIConfig, apiKey string, retry RetryPolicy, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetryPolicy()
	}
	return &Client{
		endpoint:    cfg.Endpoint,
		apiKey:      apiKey,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		retry:       retry,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		logger:      logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	MaxTokens      int            `json:"max_tokens"`
	ResponseFormat responseFormat `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Classify sends the message text through the extraction prompt.
//
// It returns (nil, nil) when the model reports insufficient data or when the
// response cannot be recovered into the expected shape, and an error only
// when the transport keeps failing past the retry bounds.
func (c *Client) Classify(ctx context.Context, text string, messageID int64) (*domain.Analysis, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("message %d: empty text", messageID)
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(text)},
		},
		Temperature:    c.temperature,
		MaxTokens:      c.maxTokens,
		ResponseFormat: responseFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	content, ok, err := c.callWithRetry(ctx, body, messageID)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Non-success status outside the retry set; already logged.
		return nil, nil
	}

	content = strings.TrimSpace(content)
	if content == nullSentinel {
		c.logger.Info("analyzer returned NULL (insufficient data)", "message_id", messageID)
		return nil, nil
	}

	analysis, err := parseAnalysis(content)
	if err != nil {
		c.logger.Error("cannot recover analysis from response",
			"message_id", messageID,
			"error", err,
			"raw", truncate(content, 200))
		return nil, nil
	}

	c.logger.Info("message analyzed", "message_id", messageID, "counts", len(analysis.Counts))
	return analysis, nil
}

// callWithRetry performs the POST with bounded exponential backoff on
// transient failures. ok=false with nil error means a terminal non-success
// status that degrades to the insufficient-data sentinel upstream.
func (c *Client) callWithRetry(ctx context.Context, body []byte, messageID int64) (content string, ok bool, err error) {
	var lastErr error
	backoff := c.retry.InitialBackoff
	deadline := time.Now().Add(c.retry.MaxElapsed)

	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		content, ok, retriable, err := c.callOnce(ctx, body, messageID)
		if err == nil {
			return content, ok, nil
		}
		lastErr = err

		if !retriable {
			return "", false, err
		}
		if attempt == c.retry.MaxAttempts {
			break
		}
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		if time.Now().Add(backoff).After(deadline) {
			c.logger.Warn("retry budget exhausted", "message_id", messageID, "error", lastErr)
			break
		}

		c.logger.Warn("analyzer call failed, retrying",
			"message_id", messageID,
			"attempt", attempt,
			"max_attempts", c.retry.MaxAttempts,
			"backoff", backoff,
			"error", err)

		select {
		case <-time.After(backoff):
			backoff *= 2
			if backoff > c.retry.MaxBackoff {
				backoff = c.retry.MaxBackoff
			}
		case <-ctx.Done():
			return "", false, ctx.Err()
		}
	}

	return "", false, fmt.Errorf("message %d: analyzer call failed after %d attempts: %w",
		messageID, c.retry.MaxAttempts, lastErr)
}

func (c *Client) callOnce(ctx context.Context, body []byte, messageID int64) (content string, ok, retriable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", false, false, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Connection errors and timeouts are all transient from our side.
		return "", false, true, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var parsed chatResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return "", false, true, fmt.Errorf("decode response: %w", err)
		}
		if len(parsed.Choices) == 0 {
			c.logger.Error("response carries no choices", "message_id", messageID)
			return "", false, false, nil
		}
		return parsed.Choices[0].Message.Content, true, false, nil

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", false, true, fmt.Errorf("analyzer returned %s: %s", resp.Status, strings.TrimSpace(string(payload)))

	default:
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Error("analyzer returned non-retriable status",
			"message_id", messageID,
			"status", resp.Status,
			"body", strings.TrimSpace(string(payload)))
		return "", false, false, nil
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
