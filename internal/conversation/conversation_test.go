package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/sparkie/internal/observe"
	"github.com/MrWong99/sparkie/internal/session"
	"github.com/MrWong99/sparkie/pkg/memory"
	memorymock "github.com/MrWong99/sparkie/pkg/memory/mock"
	"github.com/MrWong99/sparkie/pkg/provider/llm"
	llmmock "github.com/MrWong99/sparkie/pkg/provider/llm/mock"
	"github.com/MrWong99/sparkie/pkg/provider/stt"
	sttmock "github.com/MrWong99/sparkie/pkg/provider/stt/mock"
	"github.com/MrWong99/sparkie/pkg/provider/tts"
	ttsmock "github.com/MrWong99/sparkie/pkg/provider/tts/mock"
)

// ── helpers ───────────────────────────────────────────────────────────────────

type fixture struct {
	stt    *sttmock.Provider
	llm    *llmmock.Provider
	tts    *ttsmock.Provider
	store  *memorymock.SessionStore
	reader *sdkmetric.ManualReader
	conv   *Conversation
}

func newFixture(t *testing.T, cfg Config, opts ...Option) *fixture {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	f := &fixture{
		stt: &sttmock.Provider{Result: stt.Transcript{Text: "I build data pipelines."}},
		llm: &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{
			Content: `{"response": "Pipelines, nice. Who do you want to reach?", "end_of_conversation": false}`,
		}},
		tts:    &ttsmock.Provider{SynthesizeChunks: [][]byte{{1, 0, 2, 0}, {3, 0}}},
		store:  &memorymock.SessionStore{},
		reader: reader,
	}
	opts = append([]Option{WithMetrics(metrics), WithStore(f.store, "sess-1")}, opts...)
	f.conv, err = New(cfg, f.stt, f.llm, f.tts, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f
}

func speech(n int) Utterance {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = 0.25
	}
	return Utterance{Audio: samples, SampleRate: 16000, Cause: "vad"}
}

func turnCount(t *testing.T, reader *sdkmetric.ManualReader, status string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "sparkie.conversation.turns" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("turns data type = %T", m.Data)
			}
			for _, dp := range sum.DataPoints {
				if v, ok := dp.Attributes.Value("status"); ok && v.AsString() == status {
					return dp.Value
				}
			}
		}
	}
	return 0
}

// ── New ───────────────────────────────────────────────────────────────────────

func TestNew_RequiresProviders(t *testing.T) {
	if _, err := New(Config{}, nil, nil, &ttsmock.Provider{}); err == nil {
		t.Error("expected error without llm provider")
	}
	if _, err := New(Config{}, nil, &llmmock.Provider{}, nil); err == nil {
		t.Error("expected error without tts provider")
	}
	c, err := New(Config{}, nil, &llmmock.Provider{}, &ttsmock.Provider{})
	if err != nil {
		t.Fatalf("text-only conversation: %v", err)
	}
	if c.cfg.SystemPrompt != DefaultSystemPrompt || c.cfg.StopDirective != DefaultStopDirective {
		t.Error("defaults not applied")
	}
}

// ── Submit ────────────────────────────────────────────────────────────────────

func TestSubmit_FullTurn(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	f := newFixture(t, Config{Language: "en", TranscriptionPrompt: "career"}, WithClock(func() time.Time { return fixed }))

	turn, err := f.conv.Submit(context.Background(), speech(8000))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if turn.Transcript != "I build data pipelines." {
		t.Errorf("Transcript = %q", turn.Transcript)
	}
	if turn.Response != "Pipelines, nice. Who do you want to reach?" || turn.EndOfConversation {
		t.Errorf("unexpected reply: %+v", turn)
	}
	if string(turn.Audio[:4]) != "RIFF" || len(turn.Audio) != 44+6 {
		t.Errorf("reply audio is not a 6-byte PCM WAV: len=%d", len(turn.Audio))
	}
	if turn.Latency <= 0 {
		t.Error("latency not recorded")
	}

	// STT received a WAV of the utterance.
	req := f.stt.TranscribeCalls[0].Req
	if string(req.Audio[:4]) != "RIFF" || len(req.Audio) != 44+2*8000 {
		t.Errorf("stt audio: len=%d", len(req.Audio))
	}
	if req.Language != "en" || req.Prompt != "career" {
		t.Errorf("stt hints = %q/%q", req.Language, req.Prompt)
	}

	// LLM got the persona, JSON mode and the raw transcript.
	comp := f.llm.Completions()[0]
	if !comp.JSONMode || comp.SystemPrompt != DefaultSystemPrompt {
		t.Errorf("llm request: JSONMode=%v prompt default=%v", comp.JSONMode, comp.SystemPrompt == DefaultSystemPrompt)
	}
	if len(comp.Messages) != 1 || comp.Messages[0].Content != "I build data pipelines." {
		t.Errorf("llm messages = %+v", comp.Messages)
	}

	// TTS got the response text.
	if texts := f.tts.SynthesizeStreamCalls[0].Texts; len(texts) != 1 || texts[0] != turn.Response {
		t.Errorf("tts texts = %v", texts)
	}

	// Both sides were persisted.
	entries, _ := f.store.Entries(context.Background(), "sess-1")
	if len(entries) != 2 {
		t.Fatalf("stored %d entries, want 2", len(entries))
	}
	if entries[0].Role != memory.RoleUser || entries[0].EndCause != "vad" || entries[0].Duration != 500*time.Millisecond {
		t.Errorf("user entry = %+v", entries[0])
	}
	if entries[1].Role != memory.RoleSpark || entries[1].Text != turn.Response || !entries[1].Timestamp.Equal(fixed) {
		t.Errorf("spark entry = %+v", entries[1])
	}

	want := "user: I build data pipelines.\nspark: Pipelines, nice. Who do you want to reach?"
	if got := f.conv.Transcript(); got != want {
		t.Errorf("Transcript() = %q, want %q", got, want)
	}
	if f.conv.Turns() != 1 {
		t.Errorf("Turns() = %d", f.conv.Turns())
	}
	if n := turnCount(t, f.reader, "ok"); n != 1 {
		t.Errorf("ok turns = %d, want 1", n)
	}
}

func TestSubmit_StopWordWrapsDirective(t *testing.T) {
	f := newFixture(t, Config{})
	u := speech(1600)
	u.StopWord, u.Cause = true, "keyword"

	if _, err := f.conv.Submit(context.Background(), u); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	got := f.llm.Completions()[0].Messages[0].Content
	want := "<system - rate this answer 5 and move to the next question> I build data pipelines. </system>"
	if got != want {
		t.Errorf("user content = %q, want %q", got, want)
	}
	// History keeps the raw transcript.
	if !strings.HasPrefix(f.conv.Transcript(), "user: I build data pipelines.\n") {
		t.Errorf("transcript should hold the raw answer: %q", f.conv.Transcript())
	}
}

func TestSubmit_CustomStopDirective(t *testing.T) {
	f := newFixture(t, Config{StopDirective: "<system - skip>"})
	if _, err := f.conv.SubmitText(context.Background(), "done", true); err != nil {
		t.Fatalf("SubmitText: %v", err)
	}
	if got := f.llm.Completions()[0].Messages[0].Content; got != "<system - skip> done </system>" {
		t.Errorf("user content = %q", got)
	}
}

func TestSubmit_EmptyTranscript(t *testing.T) {
	f := newFixture(t, Config{})
	f.stt.Result = stt.Transcript{Text: "   "}

	_, err := f.conv.Submit(context.Background(), speech(1600))
	if !errors.Is(err, ErrEmptyTranscript) {
		t.Fatalf("err = %v, want ErrEmptyTranscript", err)
	}
	if len(f.llm.Completions()) != 0 {
		t.Error("LLM must not be called for an empty transcript")
	}
	if f.conv.Turns() != 0 || f.store.CallCount("WriteEntry") != 0 {
		t.Error("state changed after empty transcript")
	}
	if n := turnCount(t, f.reader, "empty_transcript"); n != 1 {
		t.Errorf("empty_transcript turns = %d, want 1", n)
	}
}

func TestSubmit_EmptyUtterance(t *testing.T) {
	f := newFixture(t, Config{})
	if _, err := f.conv.Submit(context.Background(), Utterance{SampleRate: 16000}); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("err = %v, want ErrEmptyInput", err)
	}
	if f.stt.Calls() != 0 {
		t.Error("STT called for empty utterance")
	}
}

func TestSubmit_NoSTTProvider(t *testing.T) {
	c, err := New(Config{}, nil, &llmmock.Provider{}, &ttsmock.Provider{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Submit(context.Background(), speech(10)); err == nil {
		t.Fatal("expected error without STT provider")
	}
}

func TestSubmit_ProviderFailuresLeaveStateUnchanged(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture)
	}{
		{"stt error", func(f *fixture) { f.stt.TranscribeErr = errors.New("stt down") }},
		{"llm error", func(f *fixture) { f.llm.CompleteErr = errors.New("rate limited") }},
		{"llm nil response", func(f *fixture) { f.llm.CompleteResponse = nil }},
		{"unparsable reply", func(f *fixture) {
			f.llm.CompleteResponse = &llm.CompletionResponse{Content: "Sorry, no JSON today."}
		}},
		{"empty response", func(f *fixture) {
			f.llm.CompleteResponse = &llm.CompletionResponse{Content: `{"response": "", "end_of_conversation": false}`}
		}},
		{"tts error", func(f *fixture) { f.tts.SynthesizeErr = errors.New("quota") }},
		{"tts no audio", func(f *fixture) { f.tts.SynthesizeChunks = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Config{})
			tt.setup(f)
			if _, err := f.conv.Submit(context.Background(), speech(1600)); err == nil {
				t.Fatal("expected error")
			}
			if f.conv.Turns() != 0 || f.conv.Transcript() != "" {
				t.Error("history changed after failed turn")
			}
			if f.store.CallCount("WriteEntry") != 0 {
				t.Error("failed turn was persisted")
			}
			if n := turnCount(t, f.reader, "ok"); n != 0 {
				t.Errorf("ok turns = %d, want 0", n)
			}
		})
	}
}

func TestSubmit_EndOfConversation(t *testing.T) {
	f := newFixture(t, Config{})
	f.llm.CompleteResponse = &llm.CompletionResponse{
		Content: "```json\n{\"response\": \"Thank you! We talked for 20 minutes.\", \"end_of_conversation\": true}\n```",
	}

	turn, err := f.conv.Submit(context.Background(), speech(1600))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !turn.EndOfConversation || !f.conv.Ended() {
		t.Fatal("conversation should have ended")
	}
	if n := turnCount(t, f.reader, "ended"); n != 1 {
		t.Errorf("ended turns = %d, want 1", n)
	}

	if _, err := f.conv.Submit(context.Background(), speech(1600)); !errors.Is(err, ErrConversationEnded) {
		t.Errorf("Submit after end: err = %v", err)
	}
	if _, err := f.conv.SubmitText(context.Background(), "one more", false); !errors.Is(err, ErrConversationEnded) {
		t.Errorf("SubmitText after end: err = %v", err)
	}
	if f.stt.Calls() != 1 {
		t.Errorf("stt calls = %d, want 1", f.stt.Calls())
	}
}

func TestSubmit_HistoryIsSentOnLaterTurns(t *testing.T) {
	f := newFixture(t, Config{})
	f.stt.Func = func(n int, _ stt.Request) (stt.Transcript, error) {
		return stt.Transcript{Text: []string{"first answer", "second answer"}[n]}, nil
	}
	f.llm.CompleteFunc = func(n int, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return &llm.CompletionResponse{Content: `{"response": "reply ` + string(rune('A'+n)) + `", "end_of_conversation": false}`}, nil
	}

	for range 2 {
		if _, err := f.conv.Submit(context.Background(), speech(1600)); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	second := f.llm.Completions()[1].Messages
	want := []llm.Message{
		{Role: llm.RoleUser, Content: "first answer"},
		{Role: llm.RoleAssistant, Content: "reply A"},
		{Role: llm.RoleUser, Content: "second answer"},
	}
	if len(second) != len(want) {
		t.Fatalf("second request has %d messages, want %d", len(second), len(want))
	}
	for i := range want {
		if second[i] != want[i] {
			t.Errorf("message %d = %+v, want %+v", i, second[i], want[i])
		}
	}
	if got := f.conv.Transcript(); got != "user: first answer\nspark: reply A\nuser: second answer\nspark: reply B" {
		t.Errorf("Transcript() = %q", got)
	}
}

func TestSubmit_StoreFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, Config{})
	f.store.WriteEntryErr = errors.New("db down")
	guard := session.NewMemoryGuard(f.store)
	WithStore(guard, "sess-1")(f.conv)

	if _, err := f.conv.Submit(context.Background(), speech(1600)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !guard.IsDegraded() {
		t.Error("guard should report degradation")
	}
	if f.conv.Turns() != 1 {
		t.Error("turn should be kept in history")
	}
}

func TestSubmit_SummarisesLongHistory(t *testing.T) {
	s := &recordingSummariser{summary: "They build pipelines."}
	f := newFixture(t, Config{}, WithContextWindow(20), WithSummariser(s))
	f.stt.Result = stt.Transcript{Text: strings.Repeat("words ", 20)}

	if _, err := f.conv.Submit(context.Background(), speech(1600)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := f.conv.SubmitText(context.Background(), "next", false); err != nil {
		t.Fatalf("SubmitText: %v", err)
	}
	if s.calls() == 0 {
		t.Fatal("expected history summarisation")
	}
	msgs := f.llm.Completions()[1].Messages
	if msgs[0].Role != llm.RoleSystem || !strings.Contains(msgs[0].Content, "They build pipelines.") {
		t.Errorf("first message should carry the summary: %+v", msgs[0])
	}
	// The rendered transcript is never summarised.
	if !strings.HasPrefix(f.conv.Transcript(), "user: words words") {
		t.Errorf("Transcript() lost early turns: %q", f.conv.Transcript())
	}
}

// ── SubmitText ────────────────────────────────────────────────────────────────

func TestSubmitText(t *testing.T) {
	f := newFixture(t, Config{Voice: tts.VoiceProfile{ID: "aura-asteria-en"}})

	turn, err := f.conv.SubmitText(context.Background(), "  I am a product manager.  ", false)
	if err != nil {
		t.Fatalf("SubmitText: %v", err)
	}
	if f.stt.Calls() != 0 {
		t.Error("text input must not be transcribed")
	}
	if turn.Transcript != "I am a product manager." || turn.STTLatency != 0 {
		t.Errorf("turn = %+v", turn)
	}
	if f.tts.SynthesizeStreamCalls[0].Voice.ID != "aura-asteria-en" {
		t.Error("voice not forwarded")
	}
	entries, _ := f.store.Entries(context.Background(), "sess-1")
	if len(entries) != 2 || entries[0].EndCause != "" || entries[0].Duration != 0 {
		t.Errorf("entries = %+v", entries)
	}

	if _, err := f.conv.SubmitText(context.Background(), " \n ", false); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("blank text: err = %v", err)
	}
}

func TestSubmit_ConcurrentTurnsAreSerialised(t *testing.T) {
	f := newFixture(t, Config{})
	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			if _, err := f.conv.SubmitText(context.Background(), "answer", false); err != nil {
				t.Errorf("SubmitText: %v", err)
			}
		})
	}
	wg.Wait()

	if f.conv.Turns() != 8 {
		t.Errorf("Turns() = %d, want 8", f.conv.Turns())
	}
	// Each request sees every earlier turn.
	for i, req := range f.llm.Completions() {
		if len(req.Messages) != 2*i+1 {
			t.Errorf("request %d has %d messages, want %d", i, len(req.Messages), 2*i+1)
		}
	}
}

func TestUtteranceDuration(t *testing.T) {
	if d := (Utterance{Audio: make([]float32, 24000), SampleRate: 16000}).Duration(); d != 1500*time.Millisecond {
		t.Errorf("Duration = %v", d)
	}
	if d := (Utterance{Audio: make([]float32, 10)}).Duration(); d != 0 {
		t.Errorf("Duration without rate = %v", d)
	}
}

func TestFormatTranscript(t *testing.T) {
	got := FormatTranscript([]memory.TranscriptEntry{
		{Role: memory.RoleUser, Text: "I teach chemistry."},
		{Role: memory.RoleSpark, Text: "Who are your students?"},
	})
	if want := "user: I teach chemistry.\nspark: Who are your students?"; got != want {
		t.Errorf("FormatTranscript = %q, want %q", got, want)
	}
	if got := FormatTranscript(nil); got != "" {
		t.Errorf("FormatTranscript(nil) = %q, want empty", got)
	}
}

type recordingSummariser struct {
	mu      sync.Mutex
	summary string
	n       int
}

func (r *recordingSummariser) Summarise(_ context.Context, _ []llm.Message) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.n++
	return r.summary, nil
}

func (r *recordingSummariser) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}
