package pipeline

// windowSize is the depth of every lookback the pipeline keeps.
const windowSize = 3

// window is a fixed-capacity ring of the most recent values, newest first.
// Zero value is an empty window.
type window struct {
	buf  [windowSize]float64
	head int // index of the newest value
	n    int
}

func (w *window) push(v float64) {
	w.head = (w.head + 1) % windowSize
	w.buf[w.head] = v
	if w.n < windowSize {
		w.n++
	}
}

// at returns the value pushed k steps ago; at(0) is the newest.
// Callers must ensure k < len().
func (w *window) at(k int) float64 {
	return w.buf[(w.head-k+windowSize)%windowSize]
}

func (w *window) len() int { return w.n }

// mean returns the arithmetic mean of the held values, 0 when empty.
func (w *window) mean() float64 {
	if w.n == 0 {
		return 0
	}
	var sum float64
	for k := 0; k < w.n; k++ {
		sum += w.at(k)
	}
	return sum / float64(w.n)
}

func (w *window) reset() { *w = window{} }
