package frontend

// Accumulator collects the samples of the utterance in progress.
//
// Accumulator is not safe for concurrent use.
type Accumulator struct {
	frameSamples int
	buf          []float32
}

// NewAccumulator returns an empty accumulator for frames of frameSamples.
func NewAccumulator(frameSamples int) *Accumulator {
	return &Accumulator{frameSamples: frameSamples}
}

// Append adds a copy of frame to the buffer.
func (a *Accumulator) Append(frame []float32) {
	a.buf = append(a.buf, frame...)
}

// Len returns the number of buffered samples.
func (a *Accumulator) Len() int { return len(a.buf) }

// Frames returns the number of buffered frames.
func (a *Accumulator) Frames() int {
	if a.frameSamples <= 0 {
		return 0
	}
	return len(a.buf) / a.frameSamples
}

// Flush hands the buffered samples to the caller and starts a fresh buffer.
// The returned slice is never touched by the accumulator again.
func (a *Accumulator) Flush() []float32 {
	out := a.buf
	a.buf = nil
	return out
}

// Discard drops the buffered samples.
func (a *Accumulator) Discard() {
	a.buf = a.buf[:0]
}
