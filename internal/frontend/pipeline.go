package frontend

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/MrWong99/sparkie/internal/observe"
	"github.com/MrWong99/sparkie/pkg/provider/keyword"
	"github.com/MrWong99/sparkie/pkg/provider/vad"
)

// State is every piece of mutable per-session front-end state. A [Pipeline]
// owns exactly one and passes it through each processing step; nothing is
// shared between sessions.
type State struct {
	VAD       *VADMachine
	Spotter   *Spotter
	Debounce  *StopDebounce
	Utterance *Accumulator

	// current is the open utterance, or nil. After a forced end it stays set
	// (with its latch fired) until the VAD returns to silence, so the rest of
	// that speech excursion is not mistaken for a new utterance.
	current *utterance
	lastID  uint64
	frames  int64
}

// Phase returns the VAD phase.
func (s *State) Phase() Phase { return s.VAD.Phase() }

// Frames returns the number of frames processed so far.
func (s *State) Frames() int64 { return s.frames }

// Open reports whether an utterance is collecting audio.
func (s *State) Open() bool { return s.current != nil && !s.current.done.Load() }

// PipelineOption configures a [Pipeline].
type PipelineOption func(*Pipeline)

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) PipelineOption {
	return func(p *Pipeline) { p.metrics = m }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) PipelineOption {
	return func(p *Pipeline) { p.log = l }
}

// Pipeline runs the synchronous per-frame front-end: VAD model and state
// machine, utterance accumulation, keyword spotting and stop-word debounce.
// Events are delivered through the emit callback in the order they happen.
//
// Pipeline is not safe for concurrent use; [Session] drives it from a single
// goroutine.
type Pipeline struct {
	cfg     Config
	vad     vad.SessionHandle
	state   State
	emit    func(Event)
	metrics *observe.Metrics
	log     *slog.Logger
}

// NewPipeline builds a Pipeline around an open VAD session and a keyword
// classifier. emit is called synchronously for every event and must not call
// back into the Pipeline.
func NewPipeline(cfg Config, vadSession vad.SessionHandle, classifier keyword.Classifier, emit func(Event), opts ...PipelineOption) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if vadSession == nil {
		return nil, fmt.Errorf("frontend: VAD session must not be nil")
	}
	if classifier == nil {
		return nil, fmt.Errorf("frontend: keyword classifier must not be nil")
	}
	if emit == nil {
		return nil, fmt.Errorf("frontend: emit callback must not be nil")
	}
	spotter, err := NewSpotter(cfg, classifier)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		cfg: cfg,
		vad: vadSession,
		state: State{
			VAD:       NewVADMachine(cfg),
			Spotter:   spotter,
			Debounce:  NewStopDebounce(cfg),
			Utterance: NewAccumulator(cfg.FrameSamples),
		},
		emit: emit,
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	if p.log == nil {
		p.log = slog.Default()
	}
	return p, nil
}

// State exposes the session state for inspection. Callers must not mutate
// it.
func (p *Pipeline) State() *State { return &p.state }

// Process runs one frame through the pipeline. Frames whose length is not
// FrameSamples are dropped without advancing any counter.
func (p *Pipeline) Process(ctx context.Context, frame []float32) {
	if len(frame) != p.cfg.FrameSamples {
		p.log.Warn("frontend: dropping malformed frame", "samples", len(frame), "want", p.cfg.FrameSamples)
		p.metrics.RecordFrameDropped(ctx, "malformed")
		return
	}
	st := &p.state
	st.frames++
	p.metrics.FramesProcessed.Add(ctx, 1)

	// ── VAD branch ──

	prob := p.probability(ctx, frame)
	before := st.VAD.Phase()
	tr := st.VAD.Step(prob)
	after := st.VAD.Phase()

	if st.current == nil && before == PhaseSilent && after != PhaseSilent {
		st.lastID++
		st.current = &utterance{id: st.lastID}
	}
	if u := st.current; u != nil && !u.done.Load() && (u.capture || before != PhaseSilent || after != PhaseSilent) {
		st.Utterance.Append(frame)
	}
	p.handleTransition(ctx, tr)

	// ── Keyword branch ──

	observed := p.spot(ctx, frame)
	switch outcome := st.Debounce.Step(observed, st.VAD.UserSpeaking()); outcome {
	case OutcomeNone:
	case OutcomeConfirmed:
		p.metrics.RecordKeywordOutcome(ctx, outcome.String())
		p.log.Debug("frontend: stop word confirmed")
		p.terminate(ctx, EndKeyword)
	default:
		p.metrics.RecordKeywordOutcome(ctx, outcome.String())
		p.log.Debug("frontend: stop word debounce", "outcome", outcome.String())
	}
}

func (p *Pipeline) handleTransition(ctx context.Context, tr Transition) {
	st := &p.state
	u := st.current
	if u == nil || u.capture {
		return
	}

	switch tr {
	case TransitionSpeechStart:
		if !u.done.Load() {
			p.send(ctx, Event{Type: SpeechStart, UtteranceID: u.id})
		}

	case TransitionMisfire:
		if u.complete() {
			st.Utterance.Discard()
			p.send(ctx, Event{Type: Misfire, UtteranceID: u.id})
		}
		st.current = nil

	case TransitionSpeechEnd:
		if u.complete() {
			p.deliver(ctx, u, EndVAD)
		} else {
			p.log.Debug("frontend: speech end suppressed, utterance already ended", "utterance", u.id)
			p.metrics.SuppressedTerminations.Add(ctx, 1)
		}
		st.current = nil
	}
}

// terminate ends the open utterance with cause. It is a no-op when nothing
// is buffered or the utterance already ended.
func (p *Pipeline) terminate(ctx context.Context, cause EndCause) bool {
	st := &p.state
	u := st.current
	if u == nil || st.Utterance.Len() == 0 {
		p.log.Debug("frontend: nothing to end", "cause", cause.String())
		return false
	}
	if !u.complete() {
		p.log.Debug("frontend: end suppressed, utterance already ended", "utterance", u.id, "cause", cause.String())
		p.metrics.SuppressedTerminations.Add(ctx, 1)
		return false
	}
	p.deliver(ctx, u, cause)
	if u.capture || st.VAD.Phase() == PhaseSilent {
		st.current = nil
	}
	return true
}

func (p *Pipeline) deliver(ctx context.Context, u *utterance, cause EndCause) {
	audio := p.state.Utterance.Flush()
	p.metrics.RecordUtterance(ctx, cause.String())
	p.send(ctx, Event{
		Type:        SpeechEnd,
		UtteranceID: u.id,
		Audio:       audio,
		SampleRate:  p.cfg.TargetSampleRate,
		Cause:       cause,
	})
}

func (p *Pipeline) send(ctx context.Context, ev Event) {
	ev.Timestamp = time.Duration(p.state.frames) * p.cfg.FrameDuration()
	p.metrics.RecordVADEvent(ctx, ev.Type.String())
	p.emit(ev)
}

// probability asks the VAD model about frame. Failures count as silence.
func (p *Pipeline) probability(ctx context.Context, frame []float32) float64 {
	ctx, cancel := p.inferenceContext(ctx)
	defer cancel()

	start := time.Now()
	prob, err := p.vad.Probability(ctx, frame)
	p.metrics.RecordInference(ctx, "vad", time.Since(start).Seconds(), err != nil)
	if err != nil {
		p.log.Warn("frontend: VAD inference failed, treating frame as silence", "err", err)
		return 0
	}
	switch {
	case math.IsNaN(prob):
		return 0
	case prob < 0:
		return 0
	case prob > 1:
		return 1
	}
	return prob
}

// spot runs the keyword spotter. Failures count as "not observed".
func (p *Pipeline) spot(ctx context.Context, frame []float32) bool {
	ctx, cancel := p.inferenceContext(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.state.Spotter.Observe(ctx, frame)
	if !res.Classified && err == nil {
		return false
	}
	p.metrics.RecordInference(ctx, "keyword", time.Since(start).Seconds(), err != nil)
	if err != nil {
		p.log.Warn("frontend: keyword classification failed", "err", err)
		return false
	}
	return res.Observed
}

func (p *Pipeline) inferenceContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.cfg.InferenceTimeout > 0 {
		return context.WithTimeout(ctx, p.cfg.InferenceTimeout)
	}
	return context.WithCancel(ctx)
}

// ForceEnd ends the open utterance immediately with [EndManual]. It returns
// false when nothing was buffered or the utterance had already ended.
func (p *Pipeline) ForceEnd(ctx context.Context) bool {
	return p.terminate(ctx, EndManual)
}

// BeginCapture opens a capture utterance that keeps every frame regardless
// of VAD phase until it is ended by [Pipeline.ForceEnd], a confirmed stop
// word or a pause. An utterance that is already collecting audio is
// converted in place.
func (p *Pipeline) BeginCapture(ctx context.Context) {
	st := &p.state
	if st.Open() {
		st.current.capture = true
		return
	}
	st.lastID++
	st.current = &utterance{id: st.lastID, capture: true}
	st.Utterance.Discard()
	p.send(ctx, Event{Type: SpeechStart, UtteranceID: st.current.id})
}

// Pause ends or discards the open utterance and resets every state machine.
// With SubmitOnPause the buffered audio is delivered with [EndPause];
// otherwise an open utterance is reported as a misfire.
func (p *Pipeline) Pause(ctx context.Context) {
	st := &p.state
	if st.Open() {
		if p.cfg.SubmitOnPause && st.Utterance.Len() > 0 {
			p.terminate(ctx, EndPause)
		} else if u := st.current; u.complete() {
			p.send(ctx, Event{Type: Misfire, UtteranceID: u.id})
		}
	}
	p.Reset()
}

// Reset discards all buffered audio and returns every state machine to its
// initial state without emitting events.
func (p *Pipeline) Reset() {
	st := &p.state
	st.VAD.Reset()
	st.Spotter.Reset()
	st.Debounce.Reset()
	st.Utterance.Discard()
	st.current = nil
	p.vad.Reset()
}
