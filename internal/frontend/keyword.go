package frontend

import (
	"context"
	"fmt"
	"slices"

	"github.com/MrWong99/sparkie/pkg/provider/keyword"
)

// SpotResult describes what a [Spotter] did with one frame.
type SpotResult struct {
	// Classified is true when the window was full and a classification ran.
	Classified bool

	// Score is the keyword's score from that classification.
	Score float64

	// Observed is true when Score is strictly above the threshold.
	Observed bool
}

// Spotter slides a [FrameWindow] over the frame stream and asks a keyword
// classifier about every full window.
//
// Spotter is not safe for concurrent use.
type Spotter struct {
	classifier keyword.Classifier
	label      string
	labelIdx   int
	threshold  float64

	window  *FrameWindow
	stft    *STFT
	shape   []int
	scratch []float32
}

// NewSpotter builds a Spotter for cfg.KeywordLabel. It fails when the
// classifier does not know the label.
func NewSpotter(cfg Config, classifier keyword.Classifier) (*Spotter, error) {
	idx := slices.Index(classifier.Labels(), cfg.KeywordLabel)
	if idx < 0 {
		return nil, fmt.Errorf("frontend: classifier has no label %q (labels: %v)", cfg.KeywordLabel, classifier.Labels())
	}
	stft := NewSTFT(cfg)
	return &Spotter{
		classifier: classifier,
		label:      cfg.KeywordLabel,
		labelIdx:   idx,
		threshold:  cfg.KeywordThreshold,
		window:     NewFrameWindow(cfg.WindowFrames),
		stft:       stft,
		shape:      stft.Shape(),
		scratch:    make([]float32, 0, cfg.WindowFrames*cfg.FrameSamples),
	}, nil
}

// Observe pushes frame into the window and, once the window is full,
// classifies it. A classifier failure is returned with a zero result; the
// caller decides how to account for it.
func (s *Spotter) Observe(ctx context.Context, frame []float32) (SpotResult, error) {
	s.window.Push(frame)
	if !s.window.Full() {
		return SpotResult{}, nil
	}

	s.scratch = s.window.Concat(s.scratch[:0])
	input := keyword.Tensor{Shape: s.shape, Data: s.stft.Spectrogram(s.scratch)}

	scores, err := s.classifier.Classify(ctx, input)
	if err != nil {
		return SpotResult{}, fmt.Errorf("frontend: classify: %w", err)
	}
	if s.labelIdx >= len(scores) {
		return SpotResult{}, fmt.Errorf("frontend: classifier returned %d scores, %q is index %d", len(scores), s.label, s.labelIdx)
	}
	score := scores[s.labelIdx]
	return SpotResult{Classified: true, Score: score, Observed: score > s.threshold}, nil
}

// Reset empties the window.
func (s *Spotter) Reset() { s.window.Reset() }
