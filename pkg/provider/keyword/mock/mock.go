// Package mock provides a test double for [keyword.Classifier].
//
// Example:
//
//	c := &mock.Classifier{LabelsResult: []string{"noise", "stop"}, Scores: []float64{0.1, 0.9}}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/sparkie/pkg/provider/keyword"
)

// Classifier is a mock implementation of keyword.Classifier.
type Classifier struct {
	mu sync.Mutex

	// LabelsResult is returned by Labels.
	LabelsResult []string

	// Scores is returned by every Classify call unless Func is set.
	Scores []float64

	// Func, if set, computes the scores for each call. n is the zero-based
	// call index.
	Func func(n int, input keyword.Tensor) ([]float64, error)

	// ClassifyErr, if non-nil, is returned by every Classify call.
	ClassifyErr error

	// Inputs records every tensor passed to Classify.
	Inputs []keyword.Tensor
}

// Classify records the call and returns Scores or the result of Func.
func (c *Classifier) Classify(_ context.Context, input keyword.Tensor) ([]float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.Inputs)
	c.Inputs = append(c.Inputs, input)
	if c.ClassifyErr != nil {
		return nil, c.ClassifyErr
	}
	if c.Func != nil {
		return c.Func(n, input)
	}
	return append([]float64(nil), c.Scores...), nil
}

// Labels returns LabelsResult.
func (c *Classifier) Labels() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.LabelsResult
}

// Calls returns the number of Classify calls so far. Thread-safe.
func (c *Classifier) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Inputs)
}

var _ keyword.Classifier = (*Classifier)(nil)
