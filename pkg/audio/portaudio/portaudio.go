//go:build portaudio

// Package portaudio captures the default input device through PortAudio and
// exposes it as an [audio.Source].
//
// Building this package requires cgo, the PortAudio headers and the
// "portaudio" build tag. Without the tag, [Open] returns [ErrUnavailable].
package portaudio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pa "github.com/gordonklaus/portaudio"

	"github.com/MrWong99/sparkie/pkg/audio"
)

const maxReadFailures = 10

// Capture reads mono float32 blocks from the default input device.
type Capture struct {
	rate   int
	stream *pa.Stream
	buf    []float32
	out    chan audio.Block

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Open initialises PortAudio, opens the default input device at sampleRate
// with blockSamples samples per read, and starts capturing. Capture stops
// when ctx is cancelled or Close is called.
func Open(ctx context.Context, sampleRate, blockSamples int) (*Capture, error) {
	if sampleRate <= 0 || blockSamples <= 0 {
		return nil, fmt.Errorf("portaudio: sample rate and block size must be positive")
	}
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}

	buf := make([]float32, blockSamples)
	stream, err := pa.OpenDefaultStream(1, 0, float64(sampleRate), len(buf), buf)
	if err != nil {
		_ = pa.Terminate()
		return nil, fmt.Errorf("portaudio: open default stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = pa.Terminate()
		return nil, fmt.Errorf("portaudio: start stream: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	c := &Capture{
		rate:   sampleRate,
		stream: stream,
		buf:    buf,
		out:    make(chan audio.Block, 16),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go c.readLoop(ctx)
	return c, nil
}

func (c *Capture) readLoop(ctx context.Context) {
	defer close(c.done)
	defer close(c.out)

	start := time.Now()
	failures := 0
	for ctx.Err() == nil {
		if err := c.stream.Read(); err != nil {
			// Overflows are transient; a device that keeps failing is gone.
			failures++
			if failures >= maxReadFailures {
				slog.Warn("portaudio: giving up after repeated read failures", "err", err)
				return
			}
			slog.Debug("portaudio: read failed", "err", err)
			continue
		}
		failures = 0
		block := audio.Block{
			Samples:    append([]float32(nil), c.buf...),
			SampleRate: c.rate,
			Timestamp:  time.Since(start),
		}
		select {
		case c.out <- block:
		case <-ctx.Done():
			return
		}
	}
}

// Blocks implements [audio.Source].
func (c *Capture) Blocks() <-chan audio.Block { return c.out }

// SampleRate implements [audio.Source].
func (c *Capture) SampleRate() int { return c.rate }

// Close stops the stream and terminates PortAudio. Safe to call more than once.
func (c *Capture) Close() error {
	var err error
	c.once.Do(func() {
		c.cancel()
		<-c.done
		if stopErr := c.stream.Stop(); stopErr != nil {
			err = fmt.Errorf("portaudio: stop stream: %w", stopErr)
		}
		_ = c.stream.Close()
		_ = pa.Terminate()
	})
	return err
}

var _ audio.Source = (*Capture)(nil)
