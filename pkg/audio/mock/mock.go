// Package mock provides an in-memory implementation of [audio.Source] for use
// in unit tests.
//
// The mock is safe for concurrent use. Push blocks with [Source.Push] and end
// the stream with [Source.Close]; inspect CloseCalls afterwards.
//
// Typical usage:
//
//	src := mock.NewSource(48000, 4)
//	src.Push(make([]float32, 4800))
//	src.Close()
//	err := session.Consume(ctx, src)
package mock

import (
	"sync"
	"time"

	"github.com/MrWong99/sparkie/pkg/audio"
)

// Source is a mock implementation of [audio.Source].
type Source struct {
	mu     sync.Mutex
	rate   int
	ch     chan audio.Block
	closed bool
	sent   time.Duration

	// CloseCalls counts invocations of [Source.Close].
	CloseCalls int
}

// NewSource returns a Source delivering blocks at rate Hz through a channel
// with the given buffer capacity.
func NewSource(rate, buffer int) *Source {
	return &Source{rate: rate, ch: make(chan audio.Block, buffer)}
}

// Push enqueues samples as one block. It blocks while the buffer is full and
// is a no-op once the source is closed.
func (s *Source) Push(samples []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.ch <- audio.Block{Samples: samples, SampleRate: s.rate, Timestamp: s.sent}
	s.sent += time.Duration(len(samples)) * time.Second / time.Duration(s.rate)
}

// Blocks implements [audio.Source].
func (s *Source) Blocks() <-chan audio.Block { return s.ch }

// SampleRate implements [audio.Source].
func (s *Source) SampleRate() int { return s.rate }

// Close implements [audio.Source].
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCalls++
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return nil
}

var _ audio.Source = (*Source)(nil)
