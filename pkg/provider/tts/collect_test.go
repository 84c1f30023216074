package tts_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/sparkie/pkg/provider/tts"
	"github.com/MrWong99/sparkie/pkg/provider/tts/mock"
)

func TestCollect_Concatenates(t *testing.T) {
	p := &mock.Provider{SynthesizeChunks: [][]byte{{1, 2}, {3}, {4, 5, 6}}}
	pcm, err := tts.Collect(context.Background(), p, "hello", tts.VoiceProfile{ID: "v1"})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if string(pcm) != string([]byte{1, 2, 3, 4, 5, 6}) {
		t.Errorf("pcm = %v", pcm)
	}
	calls := p.Calls()
	if len(calls) != 1 || calls[0].Voice.ID != "v1" || calls[0].Texts[0] != "hello" {
		t.Errorf("calls = %+v", calls)
	}
}

func TestCollect_NoAudio(t *testing.T) {
	p := &mock.Provider{}
	if _, err := tts.Collect(context.Background(), p, "hello", tts.VoiceProfile{}); !errors.Is(err, tts.ErrNoAudio) {
		t.Errorf("err = %v, want ErrNoAudio", err)
	}
}

func TestCollect_StartError(t *testing.T) {
	want := errors.New("quota exceeded")
	p := &mock.Provider{SynthesizeErr: want}
	if _, err := tts.Collect(context.Background(), p, "hello", tts.VoiceProfile{}); !errors.Is(err, want) {
		t.Errorf("err = %v, want wrapped %v", err, want)
	}
}

func TestCollect_Cancelled(t *testing.T) {
	p := &mock.Provider{SynthesizeChunks: [][]byte{{1}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := tts.Collect(ctx, p, "hello", tts.VoiceProfile{}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
