package tts

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoAudio is returned by [Collect] when the provider closed the stream
// without producing any audio.
var ErrNoAudio = errors.New("tts: no audio produced")

// Collector is implemented by providers that synthesise a whole text
// themselves, e.g. with failover across backends. [Collect] prefers it.
type Collector interface {
	Collect(ctx context.Context, text string, voice VoiceProfile) ([]byte, error)
}

// Collect synthesises text in one go and returns the concatenated PCM.
// It is the non-streaming path used when a whole reply is known up front.
func Collect(ctx context.Context, p Provider, text string, voice VoiceProfile) ([]byte, error) {
	if c, ok := p.(Collector); ok {
		return c.Collect(ctx, text, voice)
	}
	return collectStream(ctx, p, text, voice)
}

func collectStream(ctx context.Context, p Provider, text string, voice VoiceProfile) ([]byte, error) {
	textCh := make(chan string, 1)
	textCh <- text
	close(textCh)

	audioCh, err := p.SynthesizeStream(ctx, textCh, voice)
	if err != nil {
		return nil, fmt.Errorf("tts: start synthesis: %w", err)
	}
	var pcm []byte
	for chunk := range audioCh {
		pcm = append(pcm, chunk...)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(pcm) == 0 {
		return nil, ErrNoAudio
	}
	return pcm, nil
}
