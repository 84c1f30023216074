package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/sparkie/internal/observe"
	"github.com/MrWong99/sparkie/pkg/provider/llm"
)

// ErrEmptyTranscriptText is returned by [Writer.Summarise] for a blank
// transcript.
var ErrEmptyTranscriptText = errors.New("conversation: transcript is required")

// Writer turns a finished interview transcript into post drafts.
type Writer struct {
	llm     llm.Provider
	prompt  string
	metrics *observe.Metrics
}

// WriterOption configures a [Writer].
type WriterOption func(*Writer)

// WithWriterPrompt replaces [DefaultWriterPrompt].
func WithWriterPrompt(prompt string) WriterOption {
	return func(w *Writer) {
		if prompt != "" {
			w.prompt = prompt
		}
	}
}

// WithWriterMetrics records provider metrics on m.
func WithWriterMetrics(m *observe.Metrics) WriterOption {
	return func(w *Writer) { w.metrics = m }
}

// NewWriter creates a Writer backed by p.
func NewWriter(p llm.Provider, opts ...WriterOption) *Writer {
	w := &Writer{llm: p, prompt: DefaultWriterPrompt}
	for _, o := range opts {
		o(w)
	}
	if w.metrics == nil {
		w.metrics = observe.DefaultMetrics()
	}
	return w
}

// Summarise runs the writer prompt over transcript, as rendered by
// [Conversation.Transcript], and returns the drafts.
func (w *Writer) Summarise(ctx context.Context, transcript string) (string, error) {
	if strings.TrimSpace(transcript) == "" {
		return "", ErrEmptyTranscriptText
	}
	ctx, span := observe.StartSpan(ctx, "conversation.writer")
	defer span.End()

	start := time.Now()
	resp, err := w.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: w.prompt,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "Spark session: " + transcript},
		},
	})
	w.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		w.metrics.RecordProviderError(ctx, "llm", "writer")
		span.RecordError(err)
		return "", fmt.Errorf("conversation: writer: %w", err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		w.metrics.RecordProviderError(ctx, "llm", "writer")
		return "", fmt.Errorf("conversation: writer: %w", ErrEmptyReply)
	}
	w.metrics.RecordProviderRequest(ctx, "llm", "writer", "ok")
	return strings.TrimSpace(resp.Content), nil
}
