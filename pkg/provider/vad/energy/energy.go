// Package energy provides a model-free VAD engine that maps the RMS level of
// each frame onto a speech probability.
//
// The level is converted to dBFS and pushed through a logistic curve centred
// on a configurable midpoint, so loud frames approach 1 and quiet frames
// approach 0. It is a cheap stand-in for a neural VAD and works well with a
// close microphone and little background noise.
package energy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/MrWong99/sparkie/pkg/audio"
	"github.com/MrWong99/sparkie/pkg/provider/vad"
)

const (
	defaultMidpointDB = -40.0
	defaultSlopeDB    = 3.0

	// floorDB is the level reported for digital silence.
	floorDB = -120.0
)

var errClosed = errors.New("energy: session closed")

// Option configures an [Engine].
type Option func(*Engine)

// WithMidpoint sets the level in dBFS at which the probability is 0.5.
func WithMidpoint(db float64) Option {
	return func(e *Engine) { e.midpointDB = db }
}

// WithSlope sets how many dB above the midpoint move the probability from
// 0.5 to ~0.73. Smaller values make the curve steeper.
func WithSlope(db float64) Option {
	return func(e *Engine) {
		if db > 0 {
			e.slopeDB = db
		}
	}
}

// Engine implements [vad.Engine] using frame energy.
type Engine struct {
	midpointDB float64
	slopeDB    float64
}

// New creates an energy Engine.
func New(opts ...Option) *Engine {
	e := &Engine{midpointDB: defaultMidpointDB, slopeDB: defaultSlopeDB}
	for _, o := range opts {
		o(e)
	}
	return e
}

// NewSession implements [vad.Engine].
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("energy: sample rate must be positive, got %d", cfg.SampleRate)
	}
	if cfg.FrameSamples <= 0 {
		return nil, fmt.Errorf("energy: frame size must be positive, got %d", cfg.FrameSamples)
	}
	return &session{engine: e, frameSamples: cfg.FrameSamples}, nil
}

type session struct {
	engine       *Engine
	frameSamples int

	mu     sync.Mutex
	closed bool
}

// Probability implements [vad.SessionHandle].
func (s *session) Probability(_ context.Context, frame []float32) (float64, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return 0, errClosed
	}
	if len(frame) != s.frameSamples {
		return 0, fmt.Errorf("energy: frame has %d samples, want %d", len(frame), s.frameSamples)
	}
	return s.engine.probability(LevelDB(frame)), nil
}

// Reset implements [vad.SessionHandle]. The energy model is stateless.
func (s *session) Reset() {}

// Close implements [vad.SessionHandle].
func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (e *Engine) probability(levelDB float64) float64 {
	return 1 / (1 + math.Exp(-(levelDB-e.midpointDB)/e.slopeDB))
}

// LevelDB returns the RMS level of frame in dBFS.
func LevelDB(frame []float32) float64 {
	rms := audio.RMS(frame)
	if rms <= 0 {
		return floorDB
	}
	return max(20*math.Log10(rms), floorDB)
}

var (
	_ vad.Engine        = (*Engine)(nil)
	_ vad.SessionHandle = (*session)(nil)
)
