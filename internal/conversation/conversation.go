// Package conversation runs the interview turns that follow the audio
// front-end.
//
// Each finished utterance becomes one turn:
//
//  1. The samples are encoded as a 16-bit PCM WAV and transcribed.
//  2. An answer closed with the stop word is wrapped in the stop directive.
//  3. The interviewer model answers with a JSON object
//     {"response": "...", "end_of_conversation": bool}.
//  4. The response is synthesised and returned as a WAV.
//  5. Both sides are appended to the history and persisted.
//
// A [Conversation] serialises its turns. Once the model ends the interview
// every further submission fails with [ErrConversationEnded].
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/sparkie/internal/observe"
	"github.com/MrWong99/sparkie/internal/session"
	"github.com/MrWong99/sparkie/pkg/audio"
	"github.com/MrWong99/sparkie/pkg/memory"
	"github.com/MrWong99/sparkie/pkg/provider/llm"
	"github.com/MrWong99/sparkie/pkg/provider/stt"
	"github.com/MrWong99/sparkie/pkg/provider/tts"
)

var (
	// ErrEmptyTranscript is returned when the utterance held no recognisable
	// speech. The conversation state is unchanged.
	ErrEmptyTranscript = errors.New("conversation: invalid audio, empty transcript")

	// ErrEmptyInput is returned for an empty utterance or blank text input.
	ErrEmptyInput = errors.New("conversation: empty input")

	// ErrEmptyReply is returned when the model answered with an empty response.
	ErrEmptyReply = errors.New("conversation: empty reply")

	// ErrConversationEnded is returned by submissions after the model ended
	// the interview.
	ErrConversationEnded = errors.New("conversation: already ended")
)

// Utterance is one finished stretch of user speech.
type Utterance struct {
	// Audio holds mono samples in [-1, 1].
	Audio []float32

	// SampleRate of Audio in Hz.
	SampleRate int

	// StopWord is true when the user closed the answer with the stop keyword.
	StopWord bool

	// Cause is the wire name of what ended the utterance, stored with the
	// transcript entry.
	Cause string
}

// Duration returns the length of the utterance audio.
func (u Utterance) Duration() time.Duration {
	if u.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(u.Audio)) * time.Second / time.Duration(u.SampleRate)
}

// Turn is the outcome of one successful submission.
type Turn struct {
	// Transcript is the user's text as recognised (or typed), without any
	// directive.
	Transcript string

	// Response is the interviewer's reply text.
	Response string

	// EndOfConversation reports whether the model ended the interview.
	EndOfConversation bool

	// Audio is the synthesised reply as a RIFF/WAV file.
	Audio []byte

	// Latency is the wall-clock time from submission to reply audio.
	Latency time.Duration

	// Per-stage latencies. STT is zero for text input.
	STTLatency time.Duration
	LLMLatency time.Duration
	TTSLatency time.Duration
}

// Config holds the per-conversation prompt and synthesis settings.
type Config struct {
	// SystemPrompt is the interviewer persona. Defaults to [DefaultSystemPrompt].
	SystemPrompt string

	// StopDirective prefixes answers closed with the stop word. Defaults to
	// [DefaultStopDirective].
	StopDirective string

	// Voice is passed to the TTS provider.
	Voice tts.VoiceProfile

	// Language is the transcription language hint. Empty auto-detects.
	Language string

	// TranscriptionPrompt biases recognition towards expected vocabulary.
	TranscriptionPrompt string

	// Temperature and MaxTokens are forwarded to the LLM. Zero leaves the
	// provider default.
	Temperature float64
	MaxTokens   int
}

func (c *Config) applyDefaults() {
	if c.SystemPrompt == "" {
		c.SystemPrompt = DefaultSystemPrompt
	}
	if c.StopDirective == "" {
		c.StopDirective = DefaultStopDirective
	}
}

// Option is a functional option for [New].
type Option func(*Conversation)

// WithStore persists every turn to store under sessionID. Wrap the store in
// a [session.MemoryGuard] to keep storage failures out of the turn path.
func WithStore(store memory.SessionStore, sessionID string) Option {
	return func(c *Conversation) {
		c.store = store
		c.sessionID = sessionID
	}
}

// WithMetrics records turn and provider metrics on m instead of
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Conversation) { c.metrics = m }
}

// WithContextWindow overrides the token budget of the LLM history. Zero
// disables history summarisation. Defaults to the model's context window.
func WithContextWindow(tokens int) Option {
	return func(c *Conversation) { c.contextWindow = &tokens }
}

// WithSummariser replaces the summariser that compresses old history.
// Defaults to an [session.LLMSummariser] on the conversation's LLM.
func WithSummariser(s session.Summariser) Option {
	return func(c *Conversation) { c.summariser = s }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Conversation) { c.now = now }
}

// Conversation is one interview. It is safe for concurrent use; turns are
// processed one at a time in submission order.
type Conversation struct {
	cfg     Config
	stt     stt.Provider
	llm     llm.Provider
	tts     tts.Provider
	metrics *observe.Metrics

	store     memory.SessionStore
	sessionID string

	contextWindow *int
	summariser    session.Summariser
	now           func() time.Time

	// turnMu serialises whole turns; mu guards the fields below and is
	// never held across provider calls.
	turnMu  sync.Mutex
	mu      sync.Mutex
	history *session.ContextManager
	lines   []memory.TranscriptEntry
	ended   bool
}

// New creates a Conversation. sttP may be nil when only text input is used.
func New(cfg Config, sttP stt.Provider, llmP llm.Provider, ttsP tts.Provider, opts ...Option) (*Conversation, error) {
	if llmP == nil {
		return nil, errors.New("conversation: llm provider is required")
	}
	if ttsP == nil {
		return nil, errors.New("conversation: tts provider is required")
	}
	cfg.applyDefaults()

	c := &Conversation{
		cfg: cfg,
		stt: sttP,
		llm: llmP,
		tts: ttsP,
		now: time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	if c.summariser == nil {
		c.summariser = session.NewLLMSummariser(llmP)
	}
	window := llmP.Capabilities().ContextWindow
	if c.contextWindow != nil {
		window = *c.contextWindow
	}
	c.history = session.NewContextManager(session.ContextManagerConfig{
		MaxTokens:  window,
		Summariser: c.summariser,
	})
	return c, nil
}

// Submit runs one turn for a spoken utterance.
func (c *Conversation) Submit(ctx context.Context, u Utterance) (*Turn, error) {
	if c.stt == nil {
		return nil, errors.New("conversation: no stt provider configured")
	}
	if len(u.Audio) == 0 || u.SampleRate <= 0 {
		return nil, ErrEmptyInput
	}

	c.turnMu.Lock()
	defer c.turnMu.Unlock()
	if c.Ended() {
		return nil, ErrConversationEnded
	}

	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "conversation.turn")
	defer span.End()
	span.SetAttributes(
		attribute.String("input", "audio"),
		attribute.String("cause", u.Cause),
		attribute.Bool("stop_word", u.StopWord),
	)

	text, sttLatency, err := c.transcribe(ctx, u)
	if err != nil {
		c.failTurn(ctx, span, "stt_error", err)
		return nil, err
	}
	if text == "" {
		c.metrics.RecordTurn(ctx, "empty_transcript")
		span.SetStatus(codes.Error, "empty transcript")
		return nil, ErrEmptyTranscript
	}

	turn, err := c.respond(ctx, text, u.StopWord, memory.TranscriptEntry{
		Role:     memory.RoleUser,
		Text:     text,
		EndCause: u.Cause,
		Duration: u.Duration(),
	})
	if err != nil {
		c.failTurn(ctx, span, "error", err)
		return nil, err
	}
	turn.STTLatency = sttLatency
	turn.Latency = time.Since(start)
	c.finishTurn(ctx, turn)
	return turn, nil
}

// SubmitText runs one turn for typed input, skipping transcription.
func (c *Conversation) SubmitText(ctx context.Context, text string, stopWord bool) (*Turn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyInput
	}

	c.turnMu.Lock()
	defer c.turnMu.Unlock()
	if c.Ended() {
		return nil, ErrConversationEnded
	}

	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "conversation.turn")
	defer span.End()
	span.SetAttributes(attribute.String("input", "text"), attribute.Bool("stop_word", stopWord))

	turn, err := c.respond(ctx, text, stopWord, memory.TranscriptEntry{
		Role: memory.RoleUser,
		Text: text,
	})
	if err != nil {
		c.failTurn(ctx, span, "error", err)
		return nil, err
	}
	turn.Latency = time.Since(start)
	c.finishTurn(ctx, turn)
	return turn, nil
}

// Transcript renders the full history as "spark: …" / "user: …" lines.
func (c *Conversation) Transcript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return FormatTranscript(c.lines)
}

// FormatTranscript renders entries one per line as "<role>: <text>", the
// format [Writer.Summarise] expects.
func FormatTranscript(entries []memory.TranscriptEntry) string {
	var sb strings.Builder
	for i, e := range entries {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(e.Role)
		sb.WriteString(": ")
		sb.WriteString(e.Text)
	}
	return sb.String()
}

// Turns returns the number of completed turns.
func (c *Conversation) Turns() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines) / 2
}

// Ended reports whether the model has ended the interview.
func (c *Conversation) Ended() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ended
}

// SampleRate returns the sample rate of reply audio.
func (c *Conversation) SampleRate() int {
	return c.tts.SampleRate()
}

// transcribe encodes the utterance and runs STT.
func (c *Conversation) transcribe(ctx context.Context, u Utterance) (string, time.Duration, error) {
	ctx, span := observe.StartSpan(ctx, "conversation.stt")
	defer span.End()

	wav := audio.EncodeWAVPCM16(u.Audio, u.SampleRate)
	start := time.Now()
	tr, err := c.stt.Transcribe(ctx, stt.Request{
		Audio:    wav,
		Language: c.cfg.Language,
		Prompt:   c.cfg.TranscriptionPrompt,
	})
	elapsed := time.Since(start)
	c.metrics.STTDuration.Record(ctx, elapsed.Seconds())
	if err != nil {
		c.metrics.RecordProviderError(ctx, "stt", "transcribe")
		span.RecordError(err)
		return "", elapsed, fmt.Errorf("conversation: transcribe: %w", err)
	}
	c.metrics.RecordProviderRequest(ctx, "stt", "transcribe", "ok")
	return strings.TrimSpace(tr.Text), elapsed, nil
}

// respond runs the LLM and TTS stages and commits the turn.
func (c *Conversation) respond(ctx context.Context, text string, stopWord bool, userEntry memory.TranscriptEntry) (*Turn, error) {
	content := text
	if stopWord {
		content = c.cfg.StopDirective + " " + text + " </system>"
	}

	reply, llmLatency, err := c.complete(ctx, content)
	if err != nil {
		return nil, err
	}

	pcm, ttsLatency, err := c.synthesize(ctx, reply.Response)
	if err != nil {
		return nil, err
	}

	c.commit(ctx, text, reply, userEntry)

	return &Turn{
		Transcript:        text,
		Response:          reply.Response,
		EndOfConversation: reply.EndOfConversation,
		Audio:             audio.WrapPCM16(pcm, c.tts.SampleRate(), 1),
		LLMLatency:        llmLatency,
		TTSLatency:        ttsLatency,
	}, nil
}

// complete asks the interviewer model for its JSON reply.
func (c *Conversation) complete(ctx context.Context, content string) (Reply, time.Duration, error) {
	ctx, span := observe.StartSpan(ctx, "conversation.llm")
	defer span.End()

	msgs := append(c.history.Messages(), llm.Message{Role: llm.RoleUser, Content: content})
	start := time.Now()
	resp, err := c.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: c.cfg.SystemPrompt,
		Messages:     msgs,
		Temperature:  c.cfg.Temperature,
		MaxTokens:    c.cfg.MaxTokens,
		JSONMode:     true,
	})
	elapsed := time.Since(start)
	c.metrics.LLMDuration.Record(ctx, elapsed.Seconds())
	if err != nil {
		c.metrics.RecordProviderError(ctx, "llm", "complete")
		span.RecordError(err)
		return Reply{}, elapsed, fmt.Errorf("conversation: complete: %w", err)
	}
	if resp == nil {
		c.metrics.RecordProviderError(ctx, "llm", "complete")
		return Reply{}, elapsed, fmt.Errorf("conversation: complete: %w", ErrEmptyReply)
	}
	c.metrics.RecordProviderRequest(ctx, "llm", "complete", "ok")

	reply, err := parseReply(resp.Content)
	if err != nil {
		observe.Logger(ctx).Warn("conversation: unparsable model reply", "content", resp.Content, "error", err)
		return Reply{}, elapsed, fmt.Errorf("conversation: parse reply: %w", err)
	}
	if reply.Response == "" {
		return Reply{}, elapsed, ErrEmptyReply
	}
	return reply, elapsed, nil
}

// synthesize renders the reply text as PCM16.
func (c *Conversation) synthesize(ctx context.Context, text string) ([]byte, time.Duration, error) {
	ctx, span := observe.StartSpan(ctx, "conversation.tts")
	defer span.End()

	start := time.Now()
	pcm, err := tts.Collect(ctx, c.tts, text, c.cfg.Voice)
	elapsed := time.Since(start)
	c.metrics.TTSDuration.Record(ctx, elapsed.Seconds())
	if err != nil {
		c.metrics.RecordProviderError(ctx, "tts", "synthesize")
		span.RecordError(err)
		return nil, elapsed, fmt.Errorf("conversation: voice synthesis failed: %w", err)
	}
	c.metrics.RecordProviderRequest(ctx, "tts", "synthesize", "ok")
	return pcm, elapsed, nil
}

// commit appends the turn to the history and persists it.
func (c *Conversation) commit(ctx context.Context, text string, reply Reply, userEntry memory.TranscriptEntry) {
	now := c.now()

	c.mu.Lock()
	c.lines = append(c.lines,
		memory.TranscriptEntry{Role: memory.RoleUser, Text: text, Timestamp: now},
		memory.TranscriptEntry{Role: memory.RoleSpark, Text: reply.Response, Timestamp: now},
	)
	if reply.EndOfConversation {
		c.ended = true
	}
	c.mu.Unlock()

	err := c.history.AddMessages(ctx,
		llm.Message{Role: llm.RoleUser, Content: text},
		llm.Message{Role: llm.RoleAssistant, Content: reply.Response},
	)
	if err != nil {
		observe.Logger(ctx).Warn("conversation: history summarisation failed", "error", err)
	}

	if c.store == nil {
		return
	}
	userEntry.Timestamp = now
	entries := []memory.TranscriptEntry{
		userEntry,
		{Role: memory.RoleSpark, Text: reply.Response, Timestamp: now},
	}
	for _, e := range entries {
		if err := c.store.WriteEntry(ctx, c.sessionID, e); err != nil {
			observe.Logger(ctx).Warn("conversation: persist transcript entry",
				"session_id", c.sessionID,
				"role", e.Role,
				"error", err,
			)
		}
	}
}

func (c *Conversation) finishTurn(ctx context.Context, turn *Turn) {
	c.metrics.TurnDuration.Record(ctx, turn.Latency.Seconds())
	status := "ok"
	if turn.EndOfConversation {
		status = "ended"
	}
	c.metrics.RecordTurn(ctx, status)
	observe.Logger(ctx).Info("conversation: turn complete",
		"session_id", c.sessionID,
		"latency_ms", turn.Latency.Milliseconds(),
		"end_of_conversation", turn.EndOfConversation,
	)
}

func (c *Conversation) failTurn(ctx context.Context, span trace.Span, status string, err error) {
	c.metrics.RecordTurn(ctx, status)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	observe.Logger(ctx).Error("conversation: turn failed", "session_id", c.sessionID, "error", err)
}
