package videoplay

import (
	"math"
	"sync"
	"time"
)

// fpsWindowSize bounds the number of decode timestamps kept for rate
// measurement (~2s of 60fps video).
const fpsWindowSize = 120

// fpsWindow is a ring of recent decode timestamps recorded by the sample
// callback and measured from the host thread.
type fpsWindow struct {
	mu    sync.Mutex
	times [fpsWindowSize]time.Time
	next  int
	count int
}

// record appends a decode timestamp, evicting the oldest when full.
func (w *fpsWindow) record(t time.Time) {
	w.mu.Lock()
	w.times[w.next] = t
	w.next = (w.next + 1) % fpsWindowSize
	if w.count < fpsWindowSize {
		w.count++
	}
	w.mu.Unlock()
}

// snapshot returns the recorded timestamps in arrival order.
func (w *fpsWindow) snapshot() []time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]time.Time, 0, w.count)
	start := w.next - w.count
	if start < 0 {
		start += fpsWindowSize
	}
	for i := 0; i < w.count; i++ {
		out = append(out, w.times[(start+i)%fpsWindowSize])
	}
	return out
}

// measure computes frame-rate statistics over the current window.
func (w *fpsWindow) measure() (mean, stddev, min, max float64) {
	return calculateFPS(w.snapshot())
}

// calculateFPS derives mean, standard deviation, min and max of the
// instantaneous frame rate from a series of decode timestamps. Fewer than
// two timestamps (or no positive intervals) yield all zeros.
func calculateFPS(times []time.Time) (mean, stddev, min, max float64) {
	if len(times) < 2 {
		return 0, 0, 0, 0
	}

	instantaneous := make([]float64, 0, len(times)-1)
	for i := 1; i < len(times); i++ {
		interval := times[i].Sub(times[i-1]).Seconds()
		if interval > 0 {
			instantaneous = append(instantaneous, 1.0/interval)
		}
	}
	if len(instantaneous) == 0 {
		return 0, 0, 0, 0
	}

	total := times[len(times)-1].Sub(times[0]).Seconds()
	if total > 0 {
		mean = float64(len(times)-1) / total
	} else {
		mean = instantaneous[0]
	}

	min = instantaneous[0]
	max = instantaneous[0]
	var sumSquares float64
	for _, fps := range instantaneous {
		if fps < min {
			min = fps
		}
		if fps > max {
			max = fps
		}
		diff := fps - mean
		sumSquares += diff * diff
	}
	stddev = math.Sqrt(sumSquares / float64(len(instantaneous)))

	return mean, stddev, min, max
}
