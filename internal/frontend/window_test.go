package frontend

import (
	"slices"
	"testing"
)

func TestFrameWindow(t *testing.T) {
	w := NewFrameWindow(3)
	w.Push([]float32{1})
	w.Push([]float32{2})
	if w.Full() {
		t.Fatal("window full after 2 of 3 frames")
	}
	if got := w.Concat(nil); !slices.Equal(got, []float32{1, 2}) {
		t.Errorf("Concat = %v, want [1 2]", got)
	}

	w.Push([]float32{3})
	w.Push([]float32{4})
	if !w.Full() || w.Len() != 3 {
		t.Fatalf("Full = %v, Len = %d", w.Full(), w.Len())
	}
	if got := w.Concat(nil); !slices.Equal(got, []float32{2, 3, 4}) {
		t.Errorf("Concat = %v, want [2 3 4] (oldest first)", got)
	}

	w.Reset()
	if w.Len() != 0 || w.Full() {
		t.Errorf("after Reset: Len = %d, Full = %v", w.Len(), w.Full())
	}
}

func TestAccumulator(t *testing.T) {
	a := NewAccumulator(2)
	a.Append([]float32{1, 2})
	a.Append([]float32{3, 4})
	if a.Len() != 4 || a.Frames() != 2 {
		t.Fatalf("Len = %d, Frames = %d", a.Len(), a.Frames())
	}

	out := a.Flush()
	if !slices.Equal(out, []float32{1, 2, 3, 4}) {
		t.Errorf("Flush = %v", out)
	}
	if a.Len() != 0 {
		t.Errorf("Len after Flush = %d, want 0", a.Len())
	}

	// The handed-off slice must not be overwritten by later appends.
	a.Append([]float32{9, 9})
	if !slices.Equal(out, []float32{1, 2, 3, 4}) {
		t.Errorf("flushed buffer mutated: %v", out)
	}

	a.Discard()
	if a.Len() != 0 {
		t.Errorf("Len after Discard = %d, want 0", a.Len())
	}
}
