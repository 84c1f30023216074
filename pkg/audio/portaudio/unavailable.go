//go:build !portaudio

// Package portaudio captures the default input device through PortAudio and
// exposes it as an [audio.Source].
//
// Building the real capture requires cgo, the PortAudio headers and the
// "portaudio" build tag. This build does not include it.
package portaudio

import (
	"context"

	"github.com/MrWong99/sparkie/pkg/audio"
)

// Capture is unavailable in this build.
type Capture struct{}

// Open always returns [ErrUnavailable] in builds without the portaudio tag.
func Open(_ context.Context, _, _ int) (*Capture, error) {
	return nil, ErrUnavailable
}

// Blocks implements [audio.Source].
func (*Capture) Blocks() <-chan audio.Block { return nil }

// SampleRate implements [audio.Source].
func (*Capture) SampleRate() int { return 0 }

// Close implements [audio.Source].
func (*Capture) Close() error { return nil }

var _ audio.Source = (*Capture)(nil)
