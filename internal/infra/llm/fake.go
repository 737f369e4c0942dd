package llm

import (
	"context"
	"fmt"
	"strings"
)

// FakeRule maps a substring of the user's question to a canned SQL
// completion, for exercising the orchestrator without a live provider.
type FakeRule struct {
	Contains string
	SQL      string
	Tokens   int
}

// FakeClient is an in-process Client driven by substring-matched rules, for
// tests that need deterministic generation without a network call.
type FakeClient struct {
	Rules       []FakeRule
	DefaultSQL  string
	Confidence  int
	ScoreErr    error
	CompleteErr error
}

// NewFakeClient builds a FakeClient with the given rules and a fallback SQL
// statement used when no rule matches.
func NewFakeClient(defaultSQL string, rules ...FakeRule) *FakeClient {
	return &FakeClient{Rules: rules, DefaultSQL: defaultSQL, Confidence: 90}
}

func (f *FakeClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if f.CompleteErr != nil {
		return nil, f.CompleteErr
	}
	for _, rule := range f.Rules {
		if strings.Contains(strings.ToLower(req.UserMessage), strings.ToLower(rule.Contains)) {
			return &CompletionResponse{Text: rule.SQL, TokensUsed: rule.Tokens}, nil
		}
	}
	return &CompletionResponse{Text: f.DefaultSQL, TokensUsed: 10}, nil
}

func (f *FakeClient) Score(ctx context.Context, req ScoreRequest) (*ScoreResponse, error) {
	if f.ScoreErr != nil {
		return nil, f.ScoreErr
	}
	return &ScoreResponse{
		Confidence: f.Confidence,
		Reasoning:  fmt.Sprintf("fake score for question %q", req.Question),
	}, nil
}
