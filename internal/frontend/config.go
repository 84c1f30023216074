// Package frontend segments a live microphone stream into utterances.
//
// Audio flows through a fixed chain per session:
//
//	block ─► Resampler ─► frame ─┬─► VAD model ─► VADMachine ─► Accumulator ─► Event
//	                             └─► FrameWindow ─► STFT ─► Spotter ─► StopDebounce ─┘
//
// The VAD machine ends an utterance after a run of silent frames. The keyword
// branch lets the speaker end it early by saying a stop word and then staying
// quiet. Exactly one [Event] of type [SpeechEnd] is emitted per utterance,
// whichever path fires first.
//
// [Pipeline] is the synchronous core and owns every piece of per-session
// state. [Session] wraps it with a bounded queue and a processing goroutine
// so that capture callbacks never block on inference.
package frontend

import (
	"errors"
	"fmt"
	"time"
)

// Config holds every tunable of the front-end. The zero value is not usable;
// start from [DefaultConfig].
type Config struct {
	// TargetSampleRate is the rate frames are resampled to. Default: 16000.
	TargetSampleRate int

	// FrameSamples is the number of samples per frame. Default: 1536.
	FrameSamples int

	// PositiveSpeechThreshold is the VAD probability at or above which a
	// frame counts as speech. Default: 0.6.
	PositiveSpeechThreshold float64

	// MinSpeechFrames is the number of consecutive speech frames needed to
	// confirm speech-start. Default: 4.
	MinSpeechFrames int

	// RedemptionFrames is the number of consecutive non-speech frames that
	// end an utterance. Default: 52.
	RedemptionFrames int

	// UserSpeakingThreshold is the probability strictly above which the
	// most recent frame counts as "user is speaking" for the stop-word
	// debounce. Default: 0.6.
	UserSpeakingThreshold float64

	// WindowFrames is the number of frames concatenated for one keyword
	// classification. Default: 12.
	WindowFrames int

	// KeywordLabel is the classifier label that ends an utterance early.
	// Default: "stop".
	KeywordLabel string

	// KeywordThreshold is the score strictly above which the keyword is
	// considered observed. Default: 0.5.
	KeywordThreshold float64

	// STFT parameters. Defaults: 1024, 256, 1024.
	STFTFrameLength int
	STFTFrameStep   int
	FFTLength       int

	// SpectrogramFrames and SpectrogramBins fix the classifier input shape
	// after padding or truncation. Defaults: 43 and 232.
	SpectrogramFrames int
	SpectrogramBins   int

	// MaxPostStopSpeechFrames is the number of speaking frames after a
	// keyword hit that mark it as a false trigger. Default: 10.
	MaxPostStopSpeechFrames int

	// MinPostStopSilenceFrames is the number of silent frames after a
	// keyword hit that confirm it. Default: 10.
	MinPostStopSilenceFrames int

	// MaxPendingFrames bounds how long a keyword hit may stay unconfirmed,
	// counted from the first hit. Default: 52. Zero disables the bound.
	MaxPendingFrames int

	// QueueSize is the capacity of the frame queue between the capture side
	// and the processing goroutine. Default: 8.
	QueueSize int

	// InferenceTimeout bounds each VAD or classifier call. Default: 500ms.
	InferenceTimeout time.Duration

	// SubmitOnPause delivers the open utterance when the session is paused
	// instead of discarding it.
	SubmitOnPause bool
}

// DefaultConfig returns the reference tuning for 16 kHz speech.
func DefaultConfig() Config {
	return Config{
		TargetSampleRate:         16000,
		FrameSamples:             1536,
		PositiveSpeechThreshold:  0.6,
		MinSpeechFrames:          4,
		RedemptionFrames:         52,
		UserSpeakingThreshold:    0.6,
		WindowFrames:             12,
		KeywordLabel:             "stop",
		KeywordThreshold:         0.5,
		STFTFrameLength:          1024,
		STFTFrameStep:            256,
		FFTLength:                1024,
		SpectrogramFrames:        43,
		SpectrogramBins:          232,
		MaxPostStopSpeechFrames:  10,
		MinPostStopSilenceFrames: 10,
		MaxPendingFrames:         52,
		QueueSize:                8,
		InferenceTimeout:         500 * time.Millisecond,
	}
}

// Validate checks the configuration for values the front-end cannot run
// with. All problems are reported at once.
func (c Config) Validate() error {
	var errs []error
	positive := func(name string, v int) {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("frontend: %s must be positive, got %d", name, v))
		}
	}
	unit := func(name string, v float64) {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("frontend: %s must be in [0, 1], got %g", name, v))
		}
	}

	positive("target_sample_rate", c.TargetSampleRate)
	positive("frame_samples", c.FrameSamples)
	positive("min_speech_frames", c.MinSpeechFrames)
	positive("redemption_frames", c.RedemptionFrames)
	positive("window_frames", c.WindowFrames)
	positive("stft_frame_length", c.STFTFrameLength)
	positive("stft_frame_step", c.STFTFrameStep)
	positive("fft_length", c.FFTLength)
	positive("spectrogram_frames", c.SpectrogramFrames)
	positive("spectrogram_bins", c.SpectrogramBins)
	positive("max_post_stop_speech_frames", c.MaxPostStopSpeechFrames)
	positive("min_post_stop_silence_frames", c.MinPostStopSilenceFrames)
	positive("queue_size", c.QueueSize)
	unit("positive_speech_threshold", c.PositiveSpeechThreshold)
	unit("user_speaking_threshold", c.UserSpeakingThreshold)
	unit("keyword_threshold", c.KeywordThreshold)

	if c.MaxPendingFrames < 0 {
		errs = append(errs, fmt.Errorf("frontend: max_pending_frames must not be negative, got %d", c.MaxPendingFrames))
	}
	if c.InferenceTimeout < 0 {
		errs = append(errs, fmt.Errorf("frontend: inference_timeout must not be negative, got %s", c.InferenceTimeout))
	}
	if c.FFTLength > 0 && c.STFTFrameLength > c.FFTLength {
		errs = append(errs, fmt.Errorf("frontend: stft_frame_length %d exceeds fft_length %d", c.STFTFrameLength, c.FFTLength))
	}
	if c.FFTLength > 0 && c.SpectrogramBins > c.FFTLength/2+1 {
		errs = append(errs, fmt.Errorf("frontend: spectrogram_bins %d exceeds the %d bins of fft_length %d",
			c.SpectrogramBins, c.FFTLength/2+1, c.FFTLength))
	}
	if c.KeywordLabel == "" {
		errs = append(errs, errors.New("frontend: keyword_label must not be empty"))
	}
	return errors.Join(errs...)
}

// FrameDuration returns the wall-clock length of one frame.
func (c Config) FrameDuration() time.Duration {
	if c.TargetSampleRate <= 0 {
		return 0
	}
	return time.Duration(c.FrameSamples) * time.Second / time.Duration(c.TargetSampleRate)
}
