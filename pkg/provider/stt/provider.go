// Package stt defines the Provider interface for Speech-to-Text backends.
//
// The front-end hands over complete utterances, so transcription is batch:
// one WAV file in, one Transcript out. Implementations wrap a remote
// service (an OpenAI-compatible transcription endpoint, a local whisper.cpp
// server) behind this single call.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"time"
)

// Request is a single transcription job.
type Request struct {
	// Audio is a complete RIFF/WAV file. Mono 16-bit PCM at 16 kHz is what
	// every bundled provider expects.
	Audio []byte

	// Language is the BCP-47 language hint (e.g., "en"). Empty lets the
	// provider auto-detect.
	Language string

	// Prompt is optional context that biases recognition towards expected
	// vocabulary. Providers that cannot use it ignore it.
	Prompt string
}

// Transcript is the recognition result for one Request.
type Transcript struct {
	// Text is the recognised text with leading and trailing whitespace removed.
	Text string

	// Language is the detected or requested language, when the provider
	// reports it.
	Language string

	// Duration is the wall-clock time the provider took to answer.
	Duration time.Duration
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe recognises the speech in req.Audio. An utterance without
	// recognisable speech returns a Transcript with empty Text and a nil
	// error; the caller decides whether that is a failure.
	Transcribe(ctx context.Context, req Request) (Transcript, error)
}
