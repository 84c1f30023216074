package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/sparkie/pkg/provider/stt"
	sttmock "github.com/MrWong99/sparkie/pkg/provider/stt/mock"
)

func TestSTTFallback_Transcribe_PrimarySuccess(t *testing.T) {
	primary := &sttmock.Provider{Result: stt.Transcript{Text: "hello from primary"}}
	secondary := &sttmock.Provider{Result: stt.Transcript{Text: "hello from secondary"}}

	fb := NewSTTFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	tr, err := fb.Transcribe(context.Background(), stt.Request{Audio: []byte("RIFF"), Language: "en"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Text != "hello from primary" {
		t.Fatalf("text = %q, want 'hello from primary'", tr.Text)
	}
	if primary.Calls() != 1 {
		t.Fatalf("primary called %d times, want 1", primary.Calls())
	}
	if secondary.Calls() != 0 {
		t.Fatalf("secondary called %d times, want 0", secondary.Calls())
	}
}

func TestSTTFallback_Transcribe_Failover(t *testing.T) {
	primary := &sttmock.Provider{TranscribeErr: errors.New("primary down")}
	secondary := &sttmock.Provider{Result: stt.Transcript{Text: "hello from secondary"}}

	fb := NewSTTFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	req := stt.Request{Audio: []byte("RIFF-audio"), Prompt: "interview"}
	tr, err := fb.Transcribe(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Text != "hello from secondary" {
		t.Fatalf("text = %q, want 'hello from secondary'", tr.Text)
	}
	if got := string(secondary.TranscribeCalls[0].Req.Audio); got != "RIFF-audio" {
		t.Fatalf("secondary audio = %q, want the same utterance", got)
	}
	if got := secondary.TranscribeCalls[0].Req.Prompt; got != "interview" {
		t.Fatalf("secondary prompt = %q, want interview", got)
	}
}

func TestSTTFallback_Transcribe_AllFail(t *testing.T) {
	primary := &sttmock.Provider{TranscribeErr: errors.New("primary down")}
	secondary := &sttmock.Provider{TranscribeErr: errors.New("secondary down")}

	var failed []string
	fb := NewSTTFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
		OnFailure: func(provider string, _ error) {
			failed = append(failed, provider)
		},
	})
	fb.AddFallback("secondary", secondary)

	_, err := fb.Transcribe(context.Background(), stt.Request{})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if len(failed) != 2 || failed[0] != "primary" || failed[1] != "secondary" {
		t.Fatalf("OnFailure providers = %v, want [primary secondary]", failed)
	}
}

func TestSTTFallback_Transcribe_CancelledStops(t *testing.T) {
	primary := &sttmock.Provider{TranscribeErr: context.Canceled}
	secondary := &sttmock.Provider{Result: stt.Transcript{Text: "unused"}}

	fb := NewSTTFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1},
	})
	fb.AddFallback("secondary", secondary)

	_, err := fb.Transcribe(context.Background(), stt.Request{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if errors.Is(err, ErrAllFailed) {
		t.Fatal("cancellation should not be reported as ErrAllFailed")
	}
	if secondary.Calls() != 0 {
		t.Fatalf("secondary called %d times after cancellation, want 0", secondary.Calls())
	}
	if !fb.Healthy() {
		t.Fatal("cancellation should not open the primary breaker")
	}
}
