package hrv

import "time"

type IBIEntry struct {
	Timestamp  time.Time
	IntervalMs float64
}

// Window is a time-bounded buffer of inter-beat intervals for one user.
// Eviction keeps a head index and compacts lazily so steady-state appends
// stay cheap.
type Window struct {
	duration time.Duration
	entries  []IBIEntry
	head     int
}

func NewWindow(duration time.Duration) *Window {
	return &Window{
		duration: duration,
		entries:  make([]IBIEntry, 0, 128),
	}
}

func (w *Window) Add(e IBIEntry) {
	w.entries = append(w.entries, e)
}

func (w *Window) Evict(cutoff time.Time) {
	for w.head < len(w.entries) {
		if !w.entries[w.head].Timestamp.Before(cutoff) {
			break
		}
		w.head++
	}
	if w.head > 0 && w.head*2 >= len(w.entries) {
		w.entries = append([]IBIEntry{}, w.entries[w.head:]...)
		w.head = 0
	}
}

func (w *Window) Len() int {
	return len(w.entries) - w.head
}

// Intervals returns the buffered intervals in arrival order.
func (w *Window) Intervals() []float64 {
	out := make([]float64, 0, w.Len())
	for i := w.head; i < len(w.entries); i++ {
		out = append(out, w.entries[i].IntervalMs)
	}
	return out
}

func (w *Window) Clear() {
	w.entries = w.entries[:0]
	w.head = 0
}
