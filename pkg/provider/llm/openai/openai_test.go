package openai

import (
	"testing"

	"github.com/MrWong99/sparkie/pkg/provider/llm"
)

// TestConvertMessage_Roles checks that every supported role maps to the
// matching SDK union member.
func TestConvertMessage_Roles(t *testing.T) {
	tests := []struct {
		role  string
		check func(t *testing.T, m llm.Message)
	}{
		{llm.RoleSystem, func(t *testing.T, m llm.Message) {
			p, err := convertMessage(m)
			if err != nil || p.OfSystem == nil {
				t.Fatalf("OfSystem not set (err=%v)", err)
			}
		}},
		{llm.RoleUser, func(t *testing.T, m llm.Message) {
			p, err := convertMessage(m)
			if err != nil || p.OfUser == nil {
				t.Fatalf("OfUser not set (err=%v)", err)
			}
		}},
		{llm.RoleAssistant, func(t *testing.T, m llm.Message) {
			p, err := convertMessage(m)
			if err != nil || p.OfAssistant == nil {
				t.Fatalf("OfAssistant not set (err=%v)", err)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			tt.check(t, llm.Message{Role: tt.role, Content: "hello"})
		})
	}
}

// TestConvertMessage_UnknownRole checks that unknown roles return an error.
func TestConvertMessage_UnknownRole(t *testing.T) {
	if _, err := convertMessage(llm.Message{Role: "tool", Content: "x"}); err == nil {
		t.Fatal("expected error for unknown role, got nil")
	}
}

// TestBuildParams_JSONMode checks that JSON mode sets the response format.
func TestBuildParams_JSONMode(t *testing.T) {
	p, err := New("sk-test", "gpt-4o")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	params, err := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "You are an interviewer.",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
		JSONMode:     true,
		MaxTokens:    256,
	})
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if params.ResponseFormat.OfJSONObject == nil {
		t.Error("expected JSON object response format")
	}
	if len(params.Messages) != 2 {
		t.Errorf("messages = %d, want 2 (system + user)", len(params.Messages))
	}
	if params.Messages[0].OfSystem == nil {
		t.Error("first message should be the system prompt")
	}
}

// TestBuildParams_PlainText checks that JSON mode is off by default.
func TestBuildParams_PlainText(t *testing.T) {
	p, _ := New("sk-test", "gpt-4o")
	params, err := p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if params.ResponseFormat.OfJSONObject != nil {
		t.Error("JSON mode should be off by default")
	}
}

// TestModelCapabilities checks known model families.
func TestModelCapabilities(t *testing.T) {
	tests := []struct {
		model       string
		wantWindow  int
		wantJSON    bool
		minMaxOuput int
	}{
		{"gpt-4o", 128_000, true, 16_384},
		{"gpt-4o-mini", 128_000, true, 16_384},
		{"gpt-4", 8_192, false, 4_096},
		{"gpt-3.5-turbo", 16_385, true, 4_096},
		{"o3-mini", 200_000, true, 100_000},
		{"something-else", 128_000, true, 4_096},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			caps := modelCapabilities(tt.model)
			if caps.ContextWindow != tt.wantWindow {
				t.Errorf("ContextWindow = %d, want %d", caps.ContextWindow, tt.wantWindow)
			}
			if caps.SupportsJSONMode != tt.wantJSON {
				t.Errorf("SupportsJSONMode = %v, want %v", caps.SupportsJSONMode, tt.wantJSON)
			}
			if caps.MaxOutputTokens < tt.minMaxOuput {
				t.Errorf("MaxOutputTokens = %d, want ≥ %d", caps.MaxOutputTokens, tt.minMaxOuput)
			}
			if !caps.SupportsStreaming {
				t.Error("SupportsStreaming = false")
			}
		})
	}
}

// TestNew_Validation checks constructor argument validation.
func TestNew_Validation(t *testing.T) {
	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("expected error for empty apiKey")
	}
	if _, err := New("sk-test", ""); err == nil {
		t.Error("expected error for empty model")
	}
}

// TestCountTokens checks the character-based approximation.
func TestCountTokens(t *testing.T) {
	p, _ := New("sk-test", "gpt-4o")
	n, err := p.CountTokens([]llm.Message{{Role: llm.RoleUser, Content: "12345678"}})
	if err != nil {
		t.Fatalf("CountTokens: %v", err)
	}
	if n != 6 {
		t.Errorf("CountTokens = %d, want 6", n)
	}
}
