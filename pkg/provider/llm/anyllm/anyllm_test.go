package anyllm

import (
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/sparkie/pkg/provider/llm"
)

// ── convertMessage ────────────────────────────────────────────────────────────

func TestConvertMessage(t *testing.T) {
	tests := []struct {
		role    string
		content string
	}{
		{llm.RoleSystem, "You are an interviewer."},
		{llm.RoleUser, "Hello!"},
		{llm.RoleAssistant, "Tell me about yourself."},
	}
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			got := convertMessage(llm.Message{Role: tt.role, Content: tt.content})
			if got.Role != tt.role {
				t.Errorf("role = %q, want %q", got.Role, tt.role)
			}
			if got.ContentString() != tt.content {
				t.Errorf("content = %q, want %q", got.ContentString(), tt.content)
			}
		})
	}
}

// ── buildParams ───────────────────────────────────────────────────────────────

func TestBuildParams_SystemPromptFirst(t *testing.T) {
	p := &Provider{model: "gpt-4o"}
	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "Be brief.",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
		Temperature:  0.3,
		MaxTokens:    128,
	})
	if params.Model != "gpt-4o" {
		t.Errorf("model = %q", params.Model)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(params.Messages))
	}
	if params.Messages[0].Role != anyllmlib.RoleSystem || params.Messages[0].ContentString() != "Be brief." {
		t.Errorf("first message = %+v, want system prompt", params.Messages[0])
	}
	if params.Temperature == nil || *params.Temperature != 0.3 {
		t.Errorf("temperature = %v, want 0.3", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 128 {
		t.Errorf("max tokens = %v, want 128", params.MaxTokens)
	}
}

func TestBuildParams_ZeroValuesOmitted(t *testing.T) {
	p := &Provider{model: "llama3"}
	params := p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	if len(params.Messages) != 1 {
		t.Errorf("messages = %d, want 1 without a system prompt", len(params.Messages))
	}
	if params.Temperature != nil || params.MaxTokens != nil {
		t.Error("zero temperature and max tokens should be left to the backend")
	}
}

// ── modelCapabilities ─────────────────────────────────────────────────────────

func TestModelCapabilities(t *testing.T) {
	tests := []struct {
		model      string
		wantWindow int
		wantOutput int
	}{
		{"gpt-4o-mini", 128_000, 16_384},
		{"gpt-4o", 128_000, 16_384},
		{"gpt-4-turbo", 128_000, 4_096},
		{"gpt-4", 8_192, 4_096},
		{"gpt-3.5-turbo", 16_385, 4_096},
		{"o1-mini", 128_000, 65_536},
		{"o1", 200_000, 100_000},
		{"o3-mini", 200_000, 100_000},
		{"claude-3-5-sonnet-latest", 200_000, 8_192},
		{"claude-3-haiku-20240307", 200_000, 8_192},
		{"claude-3-opus-20240229", 200_000, 4_096},
		{"claude-future-model", 200_000, 8_192},
		{"gemini-2.0-flash", 1_048_576, 8_192},
		{"gemini-1.5-pro", 2_097_152, 8_192},
		{"gemini-1.5-flash", 1_048_576, 8_192},
		{"gemini-pro", 128_000, 8_192},
		{"my-custom-model", 128_000, 4_096},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			caps := modelCapabilities(tt.model)
			if caps.ContextWindow != tt.wantWindow {
				t.Errorf("ContextWindow = %d, want %d", caps.ContextWindow, tt.wantWindow)
			}
			if caps.MaxOutputTokens != tt.wantOutput {
				t.Errorf("MaxOutputTokens = %d, want %d", caps.MaxOutputTokens, tt.wantOutput)
			}
			if !caps.SupportsStreaming {
				t.Error("SupportsStreaming = false")
			}
			if caps.SupportsJSONMode {
				t.Error("SupportsJSONMode = true, want prompt-only JSON")
			}
		})
	}
}

// TestModelCapabilities_CaseInsensitive checks that model name matching is case-insensitive.
func TestModelCapabilities_CaseInsensitive(t *testing.T) {
	lower := modelCapabilities("gpt-4o")
	upper := modelCapabilities("GPT-4O")
	if lower != upper {
		t.Errorf("case should not matter: got %+v vs %+v", lower, upper)
	}
}

// ── Constructor ───────────────────────────────────────────────────────────────

func TestNew_Validation(t *testing.T) {
	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("expected error for empty providerName")
	}
	if _, err := New("openai", ""); err == nil {
		t.Error("expected error for empty model")
	}
	if _, err := New("fakecloud", "some-model", anyllmlib.WithAPIKey("dummy")); err == nil {
		t.Error("expected error for unsupported provider")
	}
}

// TestNew_OpenAI_MissingAPIKey relies on OPENAI_API_KEY being cleared.
func TestNew_OpenAI_MissingAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := New("openai", "gpt-4o"); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

// TestConvenienceConstructors checks the convenience constructors delegate correctly.
func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		name string
		fn   func() (*Provider, error)
	}{
		{"NewOpenAI", func() (*Provider, error) { return NewOpenAI("gpt-4o", anyllmlib.WithAPIKey("sk-test")) }},
		{"NewAnthropic", func() (*Provider, error) {
			return NewAnthropic("claude-3-5-sonnet-latest", anyllmlib.WithAPIKey("sk-ant-test"))
		}},
		{"NewOllama", func() (*Provider, error) { return NewOllama("llama3") }},
		{"NewLlamaCpp", func() (*Provider, error) { return NewLlamaCpp("llama3") }},
		{"NewLlamaFile", func() (*Provider, error) { return NewLlamaFile("llama3") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := tt.fn()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p == nil {
				t.Fatal("expected non-nil provider")
			}
		})
	}
}

// ── CountTokens ───────────────────────────────────────────────────────────────

func TestCountTokens(t *testing.T) {
	p := &Provider{model: "gpt-4o"}
	if n, err := p.CountTokens(nil); err != nil || n != 0 {
		t.Errorf("CountTokens(nil) = %d, %v; want 0, nil", n, err)
	}
	msgs := []llm.Message{
		{Role: llm.RoleUser, Content: "Hello"},
		{Role: llm.RoleAssistant, Content: "Hi there, how can I help?"},
	}
	one, _ := p.CountTokens(msgs[:1])
	two, _ := p.CountTokens(msgs)
	if two <= one {
		t.Errorf("expected more tokens for two messages than one: %d <= %d", two, one)
	}
}
