// Package audio holds the sample-level building blocks of the voice front-end:
// a streaming resampler that turns arbitrary microphone blocks into
// fixed-size frames, WAV encoding, and PCM conversion helpers.
//
// The [Source] abstraction decouples where microphone audio comes from (a
// local PortAudio device, a WebSocket client, a test fixture) from the
// front-end that consumes it.
package audio

import "time"

// Block is one chunk of mono microphone audio at its native sample rate.
// Samples are normalised to [-1, 1].
type Block struct {
	Samples []float32

	// SampleRate in Hz of Samples (e.g., 48000 for most desktop devices).
	SampleRate int

	// Timestamp marks when this block was captured, relative to stream start.
	Timestamp time.Duration
}

// Source delivers microphone blocks.
//
// Implementations must be safe for concurrent use.
type Source interface {
	// Blocks returns the channel that delivers captured audio. The channel is
	// closed when the source ends, either because the underlying device or
	// connection stopped or because [Source.Close] was called.
	Blocks() <-chan Block

	// SampleRate reports the native rate of every block delivered by Blocks.
	SampleRate() int

	// Close stops capture and releases the device. It is safe to call Close
	// more than once; subsequent calls are no-ops and return nil.
	Close() error
}
