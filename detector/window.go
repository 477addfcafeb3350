package detector

import (
	"math"
	"time"

	"github.com/c360/sensorstream/types"
)

// window holds the per-sensor sliding statistics. Values live in a fixed
// ring; sum and sum of squares are maintained incrementally so each push is
// O(1) regardless of stream length.
type window struct {
	values []float64
	next   int
	filled bool

	sum   float64
	sumSq float64

	hasPrev   bool
	prevValue float64
	prevTime  time.Time
}

func newWindow(size int) *window {
	return &window{values: make([]float64, size)}
}

func (w *window) push(r types.Reading) {
	if w.filled {
		old := w.values[w.next]
		w.sum -= old
		w.sumSq -= old * old
	}
	w.values[w.next] = r.Value
	w.sum += r.Value
	w.sumSq += r.Value * r.Value

	w.next = (w.next + 1) % len(w.values)
	if w.next == 0 {
		w.filled = true
	}

	w.hasPrev = true
	w.prevValue = r.Value
	w.prevTime = r.Timestamp
}

func (w *window) count() int {
	if w.filled {
		return len(w.values)
	}
	return w.next
}

// meanStddev computes the window mean and population standard deviation
// from the running sums. Floating point cancellation can drive the
// variance fractionally below zero; clamp it.
func (w *window) meanStddev() (mean, stddev float64) {
	n := float64(w.count())
	if n == 0 {
		return 0, 0
	}
	mean = w.sum / n
	variance := w.sumSq/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	return mean, math.Sqrt(variance)
}

// WindowStats is a read-only snapshot of a sensor's sliding window,
// surfaced for dashboards.
type WindowStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

func (w *window) stats() WindowStats {
	n := w.count()
	mean, stddev := w.meanStddev()

	s := WindowStats{Count: n, Mean: mean, StdDev: stddev}
	if n == 0 {
		return s
	}

	s.Min = math.Inf(1)
	s.Max = math.Inf(-1)
	start := 0
	if w.filled {
		start = w.next
	}
	for i := 0; i < n; i++ {
		v := w.values[(start+i)%len(w.values)]
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
	}
	return s
}
