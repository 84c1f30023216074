package resilience

import (
	"context"
	"fmt"

	"github.com/MrWong99/sparkie/pkg/provider/tts"
)

// TTSFallback implements [tts.Provider] with automatic failover across multiple
// TTS backends. Each backend has its own circuit breaker.
//
// All backends must produce PCM at the same sample rate.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

// Compile-time interface assertions.
var (
	_ tts.Provider  = (*TTSFallback)(nil)
	_ tts.Collector = (*TTSFallback)(nil)
)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional TTS provider as a fallback. It fails
// when the provider's sample rate differs from the primary's.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) error {
	if got, want := provider.SampleRate(), f.SampleRate(); got != want {
		return fmt.Errorf("resilience: tts fallback %q: sample rate %d Hz, primary uses %d Hz", name, got, want)
	}
	f.group.AddFallback(name, provider)
	return nil
}

// SynthesizeStream consumes text fragments and returns a channel of audio bytes,
// trying the first healthy provider. Only the initial stream setup is covered by
// failover; mid-stream errors are the caller's responsibility.
func (f *TTSFallback) SynthesizeStream(ctx context.Context, text <-chan string, voice tts.VoiceProfile) (<-chan []byte, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) (<-chan []byte, error) {
		return p.SynthesizeStream(ctx, text, voice)
	})
}

// Collect synthesises a whole reply. Unlike SynthesizeStream the text is known
// up front, so a backend that produces no audio is failed over as well.
func (f *TTSFallback) Collect(ctx context.Context, text string, voice tts.VoiceProfile) ([]byte, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) ([]byte, error) {
		return tts.Collect(ctx, p, text, voice)
	})
}

// ListVoices returns available voices from the first healthy provider.
func (f *TTSFallback) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) ([]tts.VoiceProfile, error) {
		return p.ListVoices(ctx)
	})
}

// SampleRate is the primary's output rate, shared by every backend.
func (f *TTSFallback) SampleRate() int {
	return f.group.Primary().SampleRate()
}

// Healthy reports whether any backend can currently take requests.
func (f *TTSFallback) Healthy() bool {
	return f.group.Healthy()
}
