package audio

import (
	"fmt"
	"iter"
)

// Resampler converts a continuous mono stream from a native sample rate to a
// target rate and cuts the result into frames of exactly frameSamples
// samples.
//
// Output sample i sits at input position i·native/target and is the linear
// interpolation of the two nearest input samples. Read positions are tracked
// as exact rationals (numerator over the target rate), so splitting the same
// input into differently sized blocks always yields bit-identical frames.
//
// A Resampler is not safe for concurrent use. Create one per audio session.
type Resampler struct {
	nativeRate   int64
	targetRate   int64
	frameSamples int

	// buf holds input samples not yet fully consumed.
	buf []float32

	// posNum is the read cursor in units of 1/targetRate input samples,
	// relative to buf[0]. It may point past the end of buf when the last
	// frame stepped over samples that have not arrived yet.
	posNum int64
}

// NewResampler returns a Resampler converting nativeRate to targetRate and
// emitting frames of frameSamples samples. All arguments must be positive.
func NewResampler(nativeRate, targetRate, frameSamples int) (*Resampler, error) {
	if nativeRate <= 0 {
		return nil, fmt.Errorf("audio: native sample rate must be positive, got %d", nativeRate)
	}
	if targetRate <= 0 {
		return nil, fmt.Errorf("audio: target sample rate must be positive, got %d", targetRate)
	}
	if frameSamples <= 0 {
		return nil, fmt.Errorf("audio: frame size must be positive, got %d", frameSamples)
	}
	return &Resampler{
		nativeRate:   int64(nativeRate),
		targetRate:   int64(targetRate),
		frameSamples: frameSamples,
	}, nil
}

// NativeRate returns the input sample rate.
func (r *Resampler) NativeRate() int { return int(r.nativeRate) }

// TargetRate returns the output sample rate.
func (r *Resampler) TargetRate() int { return int(r.targetRate) }

// FrameSamples returns the length of every emitted frame.
func (r *Resampler) FrameSamples() int { return r.frameSamples }

// Process appends block to the internal buffer and returns an iterator over
// every complete frame that can now be produced. Each yielded frame is a
// freshly allocated slice owned by the caller.
//
// The block is buffered immediately, even if the iterator is never ranged
// over. Frames that are not consumed (because the caller stopped early)
// remain producible on the next call.
func (r *Resampler) Process(block []float32) iter.Seq[[]float32] {
	r.buf = append(r.buf, block...)
	return func(yield func([]float32) bool) {
		for r.ready() {
			if !yield(r.next()) {
				return
			}
		}
	}
}

// Pending returns the number of buffered input samples.
func (r *Resampler) Pending() int { return len(r.buf) }

// Reset discards buffered input and rewinds the read cursor.
func (r *Resampler) Reset() {
	r.buf = r.buf[:0]
	r.posNum = 0
}

// ready reports whether every input sample needed by the next frame is
// buffered.
func (r *Resampler) ready() bool {
	last := r.posNum + int64(r.frameSamples-1)*r.nativeRate
	idx := last / r.targetRate
	if idx >= int64(len(r.buf)) {
		return false
	}
	return last%r.targetRate == 0 || idx+1 < int64(len(r.buf))
}

// next produces one frame and advances the cursor. Callers must check ready.
func (r *Resampler) next() []float32 {
	frame := make([]float32, r.frameSamples)
	num := r.posNum
	for i := range frame {
		idx := num / r.targetRate
		rem := num % r.targetRate
		if rem == 0 {
			frame[i] = r.buf[idx]
		} else {
			frac := float32(float64(rem) / float64(r.targetRate))
			frame[i] = r.buf[idx]*(1-frac) + r.buf[idx+1]*frac
		}
		num += r.nativeRate
	}

	// Drop whole samples that lie behind the cursor.
	drop := min(num/r.targetRate, int64(len(r.buf)))
	r.buf = append(r.buf[:0], r.buf[drop:]...)
	r.posNum = num - drop*r.targetRate
	return frame
}
