package frontend

// FrameWindow keeps the most recent frames in a fixed-capacity ring.
//
// FrameWindow is not safe for concurrent use.
type FrameWindow struct {
	frames [][]float32
	next   int
	count  int
}

// NewFrameWindow returns an empty window holding up to size frames.
func NewFrameWindow(size int) *FrameWindow {
	return &FrameWindow{frames: make([][]float32, size)}
}

// Push adds frame as the newest entry, evicting the oldest when full. The
// window keeps a reference to frame; callers must not modify it afterwards.
func (w *FrameWindow) Push(frame []float32) {
	w.frames[w.next] = frame
	w.next = (w.next + 1) % len(w.frames)
	if w.count < len(w.frames) {
		w.count++
	}
}

// Full reports whether the window holds its full capacity of frames.
func (w *FrameWindow) Full() bool { return w.count == len(w.frames) }

// Len returns the number of frames currently held.
func (w *FrameWindow) Len() int { return w.count }

// Concat appends all held frames, oldest first, to dst and returns the
// result.
func (w *FrameWindow) Concat(dst []float32) []float32 {
	start := (w.next - w.count + len(w.frames)) % len(w.frames)
	for i := range w.count {
		dst = append(dst, w.frames[(start+i)%len(w.frames)]...)
	}
	return dst
}

// Reset empties the window.
func (w *FrameWindow) Reset() {
	clear(w.frames)
	w.next = 0
	w.count = 0
}
