package frontend

import (
	"sync/atomic"
	"time"
)

// EventType classifies front-end events.
type EventType int

const (
	// SpeechStart is emitted when an utterance is confirmed.
	SpeechStart EventType = iota

	// SpeechEnd is emitted exactly once per utterance and carries its audio.
	SpeechEnd

	// Misfire is emitted when a speech candidate was too short and its audio
	// was discarded.
	Misfire
)

// String returns the wire name of the event type.
func (t EventType) String() string {
	switch t {
	case SpeechStart:
		return "speech_start"
	case SpeechEnd:
		return "speech_end"
	case Misfire:
		return "misfire"
	default:
		return "unknown"
	}
}

// EndCause tells what ended an utterance.
type EndCause int

const (
	// EndVAD means the redemption window elapsed naturally.
	EndVAD EndCause = iota

	// EndKeyword means a confirmed stop word forced the end.
	EndKeyword

	// EndManual means the caller forced the end.
	EndManual

	// EndPause means the session was paused with SubmitOnPause set.
	EndPause
)

// String returns the wire name of the cause.
func (c EndCause) String() string {
	switch c {
	case EndVAD:
		return "vad"
	case EndKeyword:
		return "keyword"
	case EndManual:
		return "manual"
	case EndPause:
		return "pause"
	default:
		return "unknown"
	}
}

// Event is one front-end notification.
type Event struct {
	Type EventType

	// UtteranceID identifies the utterance within its session, starting at 1.
	UtteranceID uint64

	// Audio holds the utterance samples for SpeechEnd events. Ownership
	// passes to the receiver.
	Audio []float32

	// SampleRate of Audio.
	SampleRate int

	// Cause is set for SpeechEnd events.
	Cause EndCause

	// Timestamp is the stream position of the frame that produced the event.
	Timestamp time.Duration
}

// ManuallyTriggered reports whether the utterance was ended by anything
// other than the VAD's own redemption window.
func (e Event) ManuallyTriggered() bool {
	return e.Type == SpeechEnd && e.Cause != EndVAD
}

// Duration returns the length of Audio.
func (e Event) Duration() time.Duration {
	if e.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(e.Audio)) * time.Second / time.Duration(e.SampleRate)
}

// utterance is the bookkeeping for one open utterance. done is the
// single-fire completion latch shared by every path that can end it.
type utterance struct {
	id      uint64
	capture bool
	done    atomic.Bool
}

// complete fires the latch. Only the first caller gets true.
func (u *utterance) complete() bool {
	return u.done.CompareAndSwap(false, true)
}
