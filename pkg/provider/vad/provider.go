// Package vad defines the Engine interface for Voice Activity Detection backends.
//
// A VAD engine wraps a frame-level speech model (e.g., Silero VAD or an
// energy detector) and surfaces it as a stateful, per-stream session that
// turns one fixed-size frame into one speech probability. Turning that
// probability sequence into speech-start / speech-end decisions is the job of
// the caller's state machine, not of the engine.
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle should not be shared across goroutines unless the
// implementation explicitly documents thread safety for that type.
package vad

import "context"

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the
	// frames passed to Probability. Typical: 16000.
	SampleRate int

	// FrameSamples is the number of samples in each frame. Probability returns
	// an error if the supplied frame does not match this size.
	FrameSamples int
}

// SessionHandle represents an active VAD session for a single audio stream. It is
// an interface so that test code can supply mock implementations without a live
// engine. Each session maintains its own model state; Reset clears this state
// without closing the session.
type SessionHandle interface {
	// Probability returns the likelihood in [0, 1] that frame contains speech.
	// frame holds FrameSamples mono samples normalised to [-1, 1].
	//
	// This method is called synchronously once per frame and should return
	// quickly; ctx bounds remote or accelerator-backed inference.
	Probability(ctx context.Context, frame []float32) (float64, error)

	// Reset clears recurrent model state without closing the session.
	Reset()

	// Close releases all resources associated with the session. Calling Close
	// more than once is safe and returns nil.
	Close() error
}

// Engine is the factory for VAD sessions. It is the top-level interface
// implemented by each VAD backend.
//
// Implementations must be safe for concurrent use: multiple goroutines may call
// NewSession simultaneously to create independent sessions.
type Engine interface {
	// NewSession creates a new VAD session with the given configuration.
	// Returns an error if the configuration is invalid or the engine cannot
	// allocate resources for the session.
	NewSession(cfg Config) (SessionHandle, error)
}
