// Package keyword defines the Classifier interface for keyword-spotting
// models.
//
// A classifier receives one fixed-shape feature tensor (typically a magnitude
// spectrogram of the last second of audio) and returns one score per class.
// Interpreting the scores, picking the class of interest and debouncing the
// result is the caller's job.
//
// Implementations must be safe for concurrent use.
package keyword

import (
	"context"
	"fmt"
)

// Tensor is a dense float32 tensor in row-major order.
type Tensor struct {
	// Shape lists the dimension sizes, outermost first (e.g., [1, 43, 232, 1]).
	Shape []int

	// Data holds the product of Shape values.
	Data []float32
}

// Validate reports whether Data matches Shape.
func (t Tensor) Validate() error {
	if len(t.Shape) == 0 {
		return fmt.Errorf("keyword: tensor has no shape")
	}
	n := 1
	for _, d := range t.Shape {
		if d <= 0 {
			return fmt.Errorf("keyword: tensor shape %v has non-positive dimension", t.Shape)
		}
		n *= d
	}
	if n != len(t.Data) {
		return fmt.Errorf("keyword: tensor shape %v needs %d values, got %d", t.Shape, n, len(t.Data))
	}
	return nil
}

// Classifier scores feature tensors.
type Classifier interface {
	// Classify returns one score per entry of Labels for the given tensor.
	Classify(ctx context.Context, input Tensor) ([]float64, error)

	// Labels returns the class names in score order.
	Labels() []string
}
