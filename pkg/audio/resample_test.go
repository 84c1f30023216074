package audio_test

import (
	"math"
	"slices"
	"testing"

	"github.com/MrWong99/sparkie/pkg/audio"
)

func ramp(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(math.Sin(float64(i) * 0.013))
	}
	return out
}

func collect(r *audio.Resampler, block []float32) [][]float32 {
	var frames [][]float32
	for f := range r.Process(block) {
		frames = append(frames, f)
	}
	return frames
}

func TestNewResampler_InvalidArgs(t *testing.T) {
	tests := []struct {
		name                 string
		native, target, size int
	}{
		{"zero native", 0, 16000, 1536},
		{"negative target", 48000, -1, 1536},
		{"zero frame", 48000, 16000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := audio.NewResampler(tt.native, tt.target, tt.size); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestResampler_SameRateIsChunking(t *testing.T) {
	r, err := audio.NewResampler(16000, 16000, 4)
	if err != nil {
		t.Fatalf("NewResampler: %v", err)
	}
	in := []float32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	frames := collect(r, in)
	if len(frames) != 2 {
		t.Fatalf("frames: got %d, want 2", len(frames))
	}
	if !slices.Equal(frames[0], in[0:4]) || !slices.Equal(frames[1], in[4:8]) {
		t.Errorf("frames not exact copies: %v", frames)
	}
	if r.Pending() != 2 {
		t.Errorf("Pending: got %d, want 2", r.Pending())
	}
}

func TestResampler_DownsampleScenario(t *testing.T) {
	r, err := audio.NewResampler(48000, 16000, 1536)
	if err != nil {
		t.Fatalf("NewResampler: %v", err)
	}
	block := ramp(4800)
	frames := collect(r, block)
	if len(frames) != 1 {
		t.Fatalf("frames: got %d, want 1", len(frames))
	}
	if len(frames[0]) != 1536 {
		t.Fatalf("frame length: got %d, want 1536", len(frames[0]))
	}
	if r.Pending() != 192 {
		t.Errorf("leftover: got %d, want 192", r.Pending())
	}
	// Integer ratio: output sample i is input sample 3i.
	for i := range frames[0] {
		if frames[0][i] != block[3*i] {
			t.Fatalf("sample %d: got %f, want %f", i, frames[0][i], block[3*i])
		}
	}

	frames = collect(r, ramp(4800))
	if len(frames) != 1 {
		t.Fatalf("second call frames: got %d, want 1", len(frames))
	}
	if r.Pending() != 384 {
		t.Errorf("leftover after second call: got %d, want 384", r.Pending())
	}
}

func TestResampler_Upsample(t *testing.T) {
	r, err := audio.NewResampler(8000, 16000, 6)
	if err != nil {
		t.Fatalf("NewResampler: %v", err)
	}
	frames := collect(r, []float32{0, 1, 2, 3})
	if len(frames) != 1 {
		t.Fatalf("frames: got %d, want 1", len(frames))
	}
	want := []float32{0, 0.5, 1, 1.5, 2, 2.5}
	if !slices.Equal(frames[0], want) {
		t.Errorf("got %v, want %v", frames[0], want)
	}
}

func TestResampler_ChunkingTransparent(t *testing.T) {
	rates := []struct{ native, target int }{
		{48000, 16000},
		{44100, 16000},
		{22050, 16000},
		{16000, 16000},
		{8000, 16000},
	}
	splits := [][]int{
		{1},
		{128},
		{4800},
		{1000, 37, 4096, 3, 1},
	}

	input := ramp(30000)
	for _, rate := range rates {
		ref, _ := audio.NewResampler(rate.native, rate.target, 1536)
		want := collect(ref, input)

		for _, split := range splits {
			r, _ := audio.NewResampler(rate.native, rate.target, 1536)
			var got [][]float32
			pos, k := 0, 0
			for pos < len(input) {
				n := min(split[k%len(split)], len(input)-pos)
				got = append(got, collect(r, input[pos:pos+n])...)
				pos += n
				k++
			}
			if len(got) != len(want) {
				t.Fatalf("%d→%d split %v: frames got %d, want %d", rate.native, rate.target, split, len(got), len(want))
			}
			for i := range want {
				if !slices.Equal(got[i], want[i]) {
					t.Fatalf("%d→%d split %v: frame %d differs", rate.native, rate.target, split, i)
				}
			}
		}
	}
}

func TestResampler_EarlyStopKeepsFrames(t *testing.T) {
	r, _ := audio.NewResampler(16000, 16000, 2)
	for range r.Process([]float32{1, 2, 3, 4, 5, 6}) {
		break
	}
	frames := collect(r, nil)
	if len(frames) != 2 {
		t.Fatalf("frames after early stop: got %d, want 2", len(frames))
	}
	if !slices.Equal(frames[0], []float32{3, 4}) {
		t.Errorf("first remaining frame: got %v, want [3 4]", frames[0])
	}
}

func TestResampler_Reset(t *testing.T) {
	r, _ := audio.NewResampler(48000, 16000, 1536)
	collect(r, ramp(1000))
	if r.Pending() != 1000 {
		t.Fatalf("Pending: got %d, want 1000", r.Pending())
	}
	r.Reset()
	if r.Pending() != 0 {
		t.Errorf("Pending after Reset: got %d, want 0", r.Pending())
	}
}
