package llm

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient_Complete_ReturnsTextAndTokens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4", req.Model)
		assert.Len(t, req.Messages, 2)

		resp := chatCompletionResponse{}
		resp.Choices = []struct {
			Message chatMessage `json:"message"`
		}{{Message: chatMessage{Role: "assistant", Content: "SELECT 1"}}}
		resp.Usage.TotalTokens = 42

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	client := NewHTTPClient(Config{BaseURL: server.URL, APIKey: "test-key", Model: "gpt-4"}, nil)

	resp, err := client.Complete(t.Context(), CompletionRequest{
		SystemPrompt: "generate sql",
		UserMessage:  "how many customers are there",
	})

	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", resp.Text)
	assert.Equal(t, 42, resp.TokensUsed)
}

func TestHTTPClient_Complete_ErrorStatusReturnsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error": "overloaded"}`))
	}))
	defer server.Close()

	client := NewHTTPClient(Config{BaseURL: server.URL, Model: "gpt-4"}, nil)

	_, err := client.Complete(t.Context(), CompletionRequest{SystemPrompt: "x", UserMessage: "y"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestHTTPClient_Score_ParsesJSONPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := chatCompletionResponse{}
		resp.Choices = []struct {
			Message chatMessage `json:"message"`
		}{{Message: chatMessage{Role: "assistant", Content: `{"confidence": 85, "reasoning": "matches row count"}`}}}

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	client := NewHTTPClient(Config{BaseURL: server.URL, Model: "gpt-4"}, nil)

	score, err := client.Score(t.Context(), ScoreRequest{Question: "how many?", SQL: "SELECT 1", ResultJSON: "[]"})

	require.NoError(t, err)
	assert.Equal(t, 85, score.Confidence)
	assert.Equal(t, "matches row count", score.Reasoning)
}

func TestFakeClient_Complete_MatchesRule(t *testing.T) {
	fake := NewFakeClient("SELECT 1", FakeRule{Contains: "customers", SQL: "SELECT * FROM customers"})

	resp, err := fake.Complete(t.Context(), CompletionRequest{UserMessage: "how many Customers do we have"})

	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM customers", resp.Text)
}

func TestFakeClient_Complete_FallsBackToDefault(t *testing.T) {
	fake := NewFakeClient("SELECT 1")

	resp, err := fake.Complete(t.Context(), CompletionRequest{UserMessage: "anything"})

	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", resp.Text)
}

func TestFakeClient_Score_ReturnsConfiguredConfidence(t *testing.T) {
	fake := NewFakeClient("SELECT 1")
	fake.Confidence = 70

	score, err := fake.Score(t.Context(), ScoreRequest{Question: "q"})

	require.NoError(t, err)
	assert.Equal(t, 70, score.Confidence)
}
