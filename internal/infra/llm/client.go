// Package llm provides a client for the language model that turns natural
// language questions into SQL, and optionally scores query results for
// plausibility. The wire format is an OpenAI-compatible chat completions
// endpoint, reached over plain net/http since no third-party SDK in this
// codebase's dependency set targets that API.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/iruldev/golang-api-hexagonal/internal/infra/wrapper"
)

// CompletionRequest is one generation call: a system prompt carrying schema
// context and policy, and the user's question.
type CompletionRequest struct {
	SystemPrompt string
	UserMessage  string
	MaxTokens    int
}

// CompletionResponse carries the model's raw text output plus token usage
// for metrics and budget accounting.
type CompletionResponse struct {
	Text       string
	TokensUsed int
}

// ScoreRequest asks the model to judge whether a query result plausibly
// answers the original question.
type ScoreRequest struct {
	Question   string
	SQL        string
	ResultJSON string
}

// ScoreResponse is the model's confidence that ResultJSON answers Question,
// from 0 (no) to 100 (certain).
type ScoreResponse struct {
	Confidence int
	Reasoning  string
}

// Client generates SQL from natural language and, optionally, scores
// results. Score is a distinct method (not folded into Complete) so a
// deployment can run with RESULT_VALIDATION_ENABLED=false and never pay for the
// extra round trip.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	Score(ctx context.Context, req ScoreRequest) (*ScoreResponse, error)
}

// Config configures the HTTP client.
type Config struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
}

type httpClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewHTTPClient builds a Client backed by an OpenAI-compatible chat
// completions endpoint at cfg.BaseURL.
func NewHTTPClient(cfg Config, hc *http.Client) Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &httpClient{cfg: cfg, httpClient: hc}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

func (c *httpClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.cfg.MaxTokens
	}

	body := chatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserMessage},
		},
		MaxTokens: maxTokens,
	}

	var parsed chatCompletionResponse
	if err := c.postJSON(ctx, "/v1/chat/completions", body, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("llm: completion response contained no choices")
	}

	return &CompletionResponse{
		Text:       parsed.Choices[0].Message.Content,
		TokensUsed: parsed.Usage.TotalTokens,
	}, nil
}

func (c *httpClient) Score(ctx context.Context, req ScoreRequest) (*ScoreResponse, error) {
	systemPrompt := "You judge whether a SQL query result plausibly answers the user's question. " +
		`Respond with strict JSON: {"confidence": <0-100>, "reasoning": "<one sentence>"}.`
	userMessage := fmt.Sprintf("Question: %s\nSQL: %s\nResult: %s", req.Question, req.SQL, req.ResultJSON)

	completion, err := c.Complete(ctx, CompletionRequest{
		SystemPrompt: systemPrompt,
		UserMessage:  userMessage,
		MaxTokens:    c.cfg.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	var scored struct {
		Confidence int    `json:"confidence"`
		Reasoning  string `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(completion.Text), &scored); err != nil {
		return nil, fmt.Errorf("llm: scoring response was not valid JSON: %w", err)
	}

	return &ScoreResponse{Confidence: scored.Confidence, Reasoning: scored.Reasoning}, nil
}

func (c *httpClient) postJSON(ctx context.Context, path string, body any, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("llm: encoding request: %w", err)
	}

	httpReq, err := http.NewRequest(http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("llm: building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := wrapper.DoRequestWithClient(ctx, c.httpClient, httpReq)
	if err != nil {
		return fmt.Errorf("llm: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("llm: reading response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return fmt.Errorf("llm: provider returned status %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("llm: decoding response: %w", err)
	}
	return nil
}
