// Package session provides per-conversation state helpers: a context window
// manager for the interview history ([ContextManager]), history compression
// ([Summariser], [LLMSummariser]) and non-fatal transcript persistence
// ([MemoryGuard]).
//
// All exported types are safe for concurrent use.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/sparkie/pkg/provider/llm"
)

// summarisationPrompt is the system prompt sent to the LLM when compressing
// older interview turns.
const summarisationPrompt = `Summarise the following part of an interview between Spark (the interviewer) and the user.
Preserve: facts the user shared about themselves, names, numbers, dates, opinions,
open threads Spark wanted to return to, and the overall tone.
Be concise but keep every detail a writer would need to tell the user's story.`

// Summariser produces a concise summary of a conversation segment.
type Summariser interface {
	// Summarise takes a slice of messages and returns a condensed summary string.
	Summarise(ctx context.Context, messages []llm.Message) (string, error)
}

// LLMSummariser uses an LLM provider to summarise conversations.
type LLMSummariser struct {
	llm llm.Provider
}

// NewLLMSummariser creates a new [LLMSummariser] backed by the given provider.
func NewLLMSummariser(provider llm.Provider) *LLMSummariser {
	return &LLMSummariser{llm: provider}
}

// Summarise sends messages to the LLM with a summarisation prompt and returns
// the summary text. Assistant turns are labelled "spark", everything else by
// its role.
func (s *LLMSummariser) Summarise(ctx context.Context, messages []llm.Message) (string, error) {
	if len(messages) == 0 {
		return "", nil
	}

	var sb strings.Builder
	for _, m := range messages {
		speaker := m.Role
		if speaker == llm.RoleAssistant {
			speaker = "spark"
		}
		fmt.Fprintf(&sb, "[%s]: %s\n", speaker, m.Content)
	}

	resp, err := s.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: summarisationPrompt,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: sb.String()},
		},
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("summarise: %w", err)
	}
	if resp == nil {
		return "", errors.New("summarise: empty response")
	}
	return strings.TrimSpace(resp.Content), nil
}
