package frontend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/MrWong99/sparkie/internal/observe"
	"github.com/MrWong99/sparkie/pkg/audio"
	"github.com/MrWong99/sparkie/pkg/provider/keyword"
	"github.com/MrWong99/sparkie/pkg/provider/vad"
)

// ErrClosed is returned by [Session] methods after [Session.Close].
var ErrClosed = errors.New("frontend: session closed")

// eventBuffer is the capacity of the Events channel.
const eventBuffer = 16

type opKind int

const (
	opFrame opKind = iota
	opForceEnd
	opCapture
	opPause
)

// item is one entry of the processing queue. Frames and control operations
// share the queue so they are applied in submission order.
type item struct {
	kind   opKind
	frame  []float32
	result chan bool
}

// Session is one live front-end: a resampler on the caller's side, a
// bounded queue, and a goroutine that drives a [Pipeline] frame by frame.
//
// Write, ForceEnd, BeginCapture, Pause, Resume and Close are safe for
// concurrent use. Callers must keep draining [Session.Events] until it is
// closed: a SpeechEnd is delivered even after the session context is
// cancelled, while other events are dropped at that point.
type Session struct {
	cfg      Config
	pipeline *Pipeline
	vad      vad.SessionHandle
	metrics  *observe.Metrics
	log      *slog.Logger

	// writeMu serialises Write against Pause and Resume; paused only
	// changes while it is held.
	writeMu   sync.Mutex
	resampler *audio.Resampler
	paused    atomic.Bool

	// sendMu is held for reading while enqueueing and for writing while the
	// queue is being closed.
	sendMu   sync.RWMutex
	closed   bool
	stopping chan struct{}

	items  chan item
	events chan Event
	done   chan struct{}
	once   sync.Once
}

// Start opens a VAD session from engine, builds the pipeline and starts the
// processing goroutine. nativeRate is the sample rate of the blocks that will
// be passed to Write. The goroutine exits when ctx is cancelled or Close is
// called.
func Start(ctx context.Context, cfg Config, nativeRate int, engine vad.Engine, classifier keyword.Classifier, opts ...PipelineOption) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	resampler, err := audio.NewResampler(nativeRate, cfg.TargetSampleRate, cfg.FrameSamples)
	if err != nil {
		return nil, fmt.Errorf("frontend: %w", err)
	}
	vadSession, err := engine.NewSession(vad.Config{SampleRate: cfg.TargetSampleRate, FrameSamples: cfg.FrameSamples})
	if err != nil {
		return nil, fmt.Errorf("frontend: open VAD session: %w", err)
	}

	s := &Session{
		cfg:       cfg,
		vad:       vadSession,
		resampler: resampler,
		stopping:  make(chan struct{}),
		items:     make(chan item, cfg.QueueSize),
		events:    make(chan Event, eventBuffer),
		done:      make(chan struct{}),
	}
	p, err := NewPipeline(cfg, vadSession, classifier, func(ev Event) { s.emit(ctx, ev) }, opts...)
	if err != nil {
		_ = vadSession.Close()
		return nil, err
	}
	s.pipeline = p
	s.metrics = p.metrics
	s.log = p.log

	go s.loop(ctx)
	return s, nil
}

// Events returns the channel of front-end events. It is closed after the
// processing goroutine exits.
func (s *Session) Events() <-chan Event { return s.events }

// Done is closed once the processing goroutine has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// NativeRate returns the sample rate expected by Write.
func (s *Session) NativeRate() int { return s.resampler.NativeRate() }

// Write resamples block and queues every resulting frame. It blocks while
// the queue is full, honouring ctx. Input written while paused is dropped.
func (s *Session) Write(ctx context.Context, block []float32) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.paused.Load() {
		s.metrics.RecordFrameDropped(ctx, "paused")
		return nil
	}
	for frame := range s.resampler.Process(block) {
		if err := s.enqueue(ctx, item{kind: opFrame, frame: frame}); err != nil {
			return err
		}
	}
	return nil
}

// Consume writes every block from src until src ends or ctx is cancelled.
// It returns nil when src ends normally.
func (s *Session) Consume(ctx context.Context, src audio.Source) error {
	if src.SampleRate() != s.NativeRate() {
		return fmt.Errorf("frontend: source rate %d does not match session rate %d", src.SampleRate(), s.NativeRate())
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case block, ok := <-src.Blocks():
			if !ok {
				return nil
			}
			if err := s.Write(ctx, block.Samples); err != nil {
				return err
			}
		}
	}
}

// ForceEnd ends the open utterance after every frame already queued has
// been processed. It returns false when there was nothing to end.
func (s *Session) ForceEnd(ctx context.Context) (bool, error) {
	return s.control(ctx, opForceEnd)
}

// BeginCapture opens a capture utterance; see [Pipeline.BeginCapture].
func (s *Session) BeginCapture(ctx context.Context) error {
	_, err := s.control(ctx, opCapture)
	return err
}

// Pause stops accepting audio and resets the pipeline once queued frames
// have been processed; see [Pipeline.Pause]. No frame is queued behind the
// pause.
func (s *Session) Pause(ctx context.Context) error {
	s.writeMu.Lock()
	s.paused.Store(true)
	res, err := s.submit(ctx, opPause)
	s.writeMu.Unlock()
	if err != nil {
		return err
	}
	_, err = s.await(ctx, res)
	return err
}

// Resume accepts audio again. Input buffered in the resampler before the
// pause is discarded.
func (s *Session) Resume() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.resampler.Reset()
	s.paused.Store(false)
}

// Toggle pauses a running session or resumes a paused one. It reports
// whether the session is paused afterwards.
func (s *Session) Toggle(ctx context.Context) (bool, error) {
	if s.paused.Load() {
		s.Resume()
		return false, nil
	}
	return true, s.Pause(ctx)
}

// Paused reports whether input is currently dropped.
func (s *Session) Paused() bool { return s.paused.Load() }

// Close stops accepting input, lets already queued frames finish, and waits
// for the processing goroutine to exit. It is safe to call more than once.
func (s *Session) Close() error {
	s.once.Do(func() {
		close(s.stopping)
		s.sendMu.Lock()
		s.closed = true
		close(s.items)
		s.sendMu.Unlock()
	})
	<-s.done
	return nil
}

func (s *Session) control(ctx context.Context, kind opKind) (bool, error) {
	res, err := s.submit(ctx, kind)
	if err != nil {
		return false, err
	}
	return s.await(ctx, res)
}

// submit queues a control operation and returns the channel its result is
// delivered on.
func (s *Session) submit(ctx context.Context, kind opKind) (<-chan bool, error) {
	res := make(chan bool, 1)
	if err := s.enqueue(ctx, item{kind: kind, result: res}); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Session) await(ctx context.Context, res <-chan bool) (bool, error) {
	select {
	case ok := <-res:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	case <-s.done:
		return false, ErrClosed
	}
}

func (s *Session) enqueue(ctx context.Context, it item) error {
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	select {
	case s.items <- it:
		if it.kind == opFrame {
			s.metrics.QueuedFrames.Add(ctx, 1)
		}
		return nil
	case <-s.stopping:
		return ErrClosed
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) loop(ctx context.Context) {
	defer close(s.done)
	defer close(s.events)
	defer func() {
		if err := s.vad.Close(); err != nil {
			s.log.Warn("frontend: close VAD session", "err", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			s.log.Debug("frontend: session context done", "err", ctx.Err())
			return
		case it, ok := <-s.items:
			if !ok {
				return
			}
			s.apply(ctx, it)
		}
	}
}

func (s *Session) apply(ctx context.Context, it item) {
	switch it.kind {
	case opFrame:
		s.metrics.QueuedFrames.Add(ctx, -1)
		s.pipeline.Process(ctx, it.frame)
	case opForceEnd:
		it.result <- s.pipeline.ForceEnd(ctx)
	case opCapture:
		s.pipeline.BeginCapture(ctx)
		it.result <- true
	case opPause:
		s.pipeline.Pause(ctx)
		it.result <- true
	}
}

// emit delivers ev on the events channel. SpeechEnd carries the utterance
// audio and is never dropped; the consumer is required to drain Events.
func (s *Session) emit(ctx context.Context, ev Event) {
	if ev.Type == SpeechEnd {
		s.events <- ev
		return
	}
	select {
	case s.events <- ev:
	case <-ctx.Done():
		s.log.Warn("frontend: dropping event, session context done", "type", ev.Type.String(), "utterance", ev.UtteranceID)
	}
}
