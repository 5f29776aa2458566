package analyzer

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thomasjjj/Track-UA-Air-Attacks/internal/config"
)

func testRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		MaxElapsed:     time.Second,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
}

func testClient(endpoint string) *Client {
	cfg := config.OpenAIConfig{
		Endpoint:    endpoint,
		Model:       "gpt-4o-mini",
		MaxTokens:   2000,
		Temperature: 0,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(cfg, "test-key", testRetryPolicy(), logger)
}

func chatReply(content string) []byte {
	raw, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	})
	return raw
}

func TestClassifySuccess(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write(chatReply("```json\n" + validPayload + "\n```"))
	}))
	defer server.Close()

	c := testClient(server.URL)
	analysis, err := c.Classify(context.Background(), "У ніч на 1 червня 10 Shahed", 42)
	require.NoError(t, err)
	require.NotNil(t, analysis)
	assert.Equal(t, "2025-06-01", analysis.Date)

	assert.Equal(t, "gpt-4o-mini", gotBody["model"])
	assert.Equal(t, float64(0), gotBody["temperature"])
	rf, ok := gotBody["response_format"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "json_object", rf["type"])
	msgs, ok := gotBody["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	user := msgs[1].(map[string]any)
	assert.Contains(t, user["content"], "У ніч на 1 червня 10 Shahed")
}

func TestClassifyNullSentinel(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(chatReply("NULL"))
	}))
	defer server.Close()

	c := testClient(server.URL)
	analysis, err := c.Classify(context.Background(), "some text", 1)
	require.NoError(t, err)
	assert.Nil(t, analysis)
}

func TestClassifyUnparsableResponse(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(chatReply("I could not produce structured data for this update."))
	}))
	defer server.Close()

	c := testClient(server.URL)
	analysis, err := c.Classify(context.Background(), "some text", 1)
	require.NoError(t, err)
	assert.Nil(t, analysis, "unrecoverable output must degrade to the sentinel, not an error")
}

func TestClassifyRetriesRateLimit(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write(chatReply(validPayload))
	}))
	defer server.Close()

	c := testClient(server.URL)
	analysis, err := c.Classify(context.Background(), "some text", 1)
	require.NoError(t, err)
	require.NotNil(t, analysis)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClassifyRetryExhaustion(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := testClient(server.URL)
	analysis, err := c.Classify(context.Background(), "some text", 1)
	require.Error(t, err, "transport exhaustion must surface, not degrade to the sentinel")
	assert.Nil(t, analysis)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClassifyNonRetriableStatus(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	c := testClient(server.URL)
	analysis, err := c.Classify(context.Background(), "some text", 1)
	require.NoError(t, err)
	assert.Nil(t, analysis)
	assert.Equal(t, int32(1), calls.Load(), "client errors must not be retried")
}

func TestClassifyRejectsEmptyText(t *testing.T) {
	t.Parallel()

	c := testClient("http://127.0.0.1:0")
	_, err := c.Classify(context.Background(), "   ", 1)
	assert.Error(t, err)
}
