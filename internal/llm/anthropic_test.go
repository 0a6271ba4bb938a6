package llm_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/RichardoC/pad-chat/internal/llm"
	"github.com/RichardoC/pad-chat/internal/models"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type fakeTransport struct {
	status int
	body   []byte
	sent   []byte
}

func (f *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	b, _ := io.ReadAll(req.Body)
	_ = req.Body.Close()
	f.sent = b

	resp := &http.Response{
		StatusCode: f.status,
		Body:       io.NopCloser(bytes.NewReader(f.body)),
		Header:     make(http.Header),
		Request:    req,
	}
	resp.Header.Set("Content-Type", "application/json")
	return resp, nil
}

func newAnthropic(rt http.RoundTripper, opts ...llm.Option) *llm.AnthropicClient {
	client := llm.NewAnthropicClient("test-key",
		option.WithHTTPClient(&http.Client{Transport: rt}),
		option.WithMaxRetries(0),
	)
	return llm.NewAnthropic(client, "claude-3-7-sonnet-latest", opts...)
}

type sentRequest struct {
	System []struct {
		Text string `json:"text"`
	} `json:"system"`
	Messages []struct {
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"messages"`
	MaxTokens int `json:"max_tokens"`
}

const okBody = `{
  "id": "msg_01",
  "type": "message",
  "role": "assistant",
  "model": "claude-3-7-sonnet-latest",
  "content": [{"type": "text", "text": "It learns "}, {"type": "text", "text": "from data."}],
  "stop_reason": "end_turn",
  "usage": {"input_tokens": 10, "output_tokens": 5}
}`

func TestAnthropic_Generate(t *testing.T) {
	rt := &fakeTransport{status: 200, body: []byte(okBody)}
	c := newAnthropic(rt, llm.WithSystemPrompt("be brief"))

	history := []models.Message{
		models.UserMessage("Tell me about AI."),
		models.AssistantMessage("AI is a field of study."),
	}
	got, err := c.Generate(context.Background(), history, "How does it work?")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got != "It learns from data." {
		t.Fatalf("unexpected reply %q", got)
	}

	var req sentRequest
	if err := json.Unmarshal(rt.sent, &req); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	if len(req.System) != 1 || req.System[0].Text != "be brief" {
		t.Fatalf("system prompt not sent: %+v", req.System)
	}
	if req.MaxTokens != 1024 {
		t.Fatalf("expected default max_tokens, got %d", req.MaxTokens)
	}
	wantRoles := []string{"user", "assistant", "user"}
	if len(req.Messages) != len(wantRoles) {
		t.Fatalf("expected %d messages, got %d", len(wantRoles), len(req.Messages))
	}
	for i, role := range wantRoles {
		if req.Messages[i].Role != role {
			t.Fatalf("message %d: role %q, want %q", i, req.Messages[i].Role, role)
		}
	}
	if req.Messages[2].Content[0].Text != "How does it work?" {
		t.Fatalf("input not last: %+v", req.Messages[2])
	}
}

func TestAnthropic_ProviderError(t *testing.T) {
	rt := &fakeTransport{
		status: 500,
		body:   []byte(`{"type":"error","error":{"type":"api_error","message":"overloaded"}}`),
	}
	if _, err := newAnthropic(rt).Generate(context.Background(), nil, "hi"); err == nil {
		t.Fatal("expected error from provider")
	}
}

func TestAnthropic_NoText(t *testing.T) {
	rt := &fakeTransport{status: 200, body: []byte(`{
  "id": "msg_02", "type": "message", "role": "assistant", "model": "m",
  "content": [], "stop_reason": "end_turn", "usage": {"input_tokens": 1, "output_tokens": 0}
}`)}
	if _, err := newAnthropic(rt).Generate(context.Background(), nil, "hi"); err == nil {
		t.Fatal("expected error for empty content")
	}
}
