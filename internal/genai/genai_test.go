package genai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// mockChatService implements chatService for testing.
type mockChatService struct {
	resp       *openai.ChatCompletion
	err        error
	lastParams openai.ChatCompletionNewParams
	calls      int
}

func (m *mockChatService) New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	m.calls++
	m.lastParams = params
	return m.resp, m.err
}

func okResponse(content string) *openai.ChatCompletion {
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
	}
}

func TestGenerateWithParts_Success(t *testing.T) {
	mock := &mockChatService{resp: okResponse("Hola Mundo")}
	client := &Client{chat: mock, model: DefaultModel}
	out, err := client.GenerateWithParts(context.Background(), "system prompt", "user prompt", nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out != "Hola Mundo" {
		t.Errorf("expected 'Hola Mundo', got '%s'", out)
	}
	if len(mock.lastParams.Messages) != 2 {
		t.Errorf("expected system + user messages, got %d", len(mock.lastParams.Messages))
	}
}

func TestGenerateWithParts_ServiceError(t *testing.T) {
	client := &Client{chat: &mockChatService{err: errors.New("service failure")}, model: DefaultModel}
	_, err := client.GenerateWithParts(context.Background(), "sys", "usr", nil)
	if err == nil || !strings.Contains(err.Error(), "service failure") {
		t.Errorf("expected service failure error, got %v", err)
	}
}

func TestGenerateWithParts_NoChoices(t *testing.T) {
	client := &Client{chat: &mockChatService{resp: &openai.ChatCompletion{}}, model: DefaultModel}
	_, err := client.GenerateWithParts(context.Background(), "", "hola", nil)
	if !errors.Is(err, ErrNoChoicesReturned) {
		t.Errorf("expected ErrNoChoicesReturned, got %v", err)
	}
}

func TestGenerateWithParts_AttachmentsProduceSingleUserMessage(t *testing.T) {
	mock := &mockChatService{resp: okResponse("descripción")}
	client := &Client{chat: mock, model: DefaultModel}

	out, err := client.GenerateWithParts(context.Background(), "sistema", "texto",
		[]Attachment{{Data: []byte{1, 2, 3}, MIME: "image/png"}})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out != "descripción" {
		t.Errorf("unexpected output %q", out)
	}
	// system message + one multi-part user message
	if len(mock.lastParams.Messages) != 2 {
		t.Errorf("expected 2 messages, got %d", len(mock.lastParams.Messages))
	}
}

func TestGenerateWithParts_NoSystemPrompt(t *testing.T) {
	mock := &mockChatService{resp: okResponse("ok")}
	client := &Client{chat: mock, model: DefaultModel}

	if _, err := client.GenerateWithParts(context.Background(), "", "texto", nil); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(mock.lastParams.Messages) != 1 {
		t.Errorf("expected only the user message, got %d", len(mock.lastParams.Messages))
	}
}

func TestNewClient_NoKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := NewClient(); err == nil {
		t.Error("expected error when API key not provided, got nil")
	}
}

func TestNewClient_WithKey(t *testing.T) {
	cli, err := NewClient(WithAPIKey("test-key"), WithModel("gpt-4o"))
	if err != nil {
		t.Fatalf("expected no error with API key, got %v", err)
	}
	if cli == nil {
		t.Fatal("expected client instance, got nil")
	}
	if cli.model != "gpt-4o" {
		t.Errorf("expected configured model, got %q", cli.model)
	}
}
