package admission

import (
	"sync"
	"time"
)

const windowSweepEvery = 256

// admittedWindow 进程内每用户滑动窗口，记录最近一个窗口内已放行的请求
// Requests are counted from the moment they are admitted, so in-flight,
// cached and not-yet-persisted requests all consume the rate budget.
type admittedWindow struct {
	mu      sync.Mutex
	span    time.Duration
	entries map[string][]time.Time
	ops     int
}

func newAdmittedWindow(span time.Duration) *admittedWindow {
	return &admittedWindow{span: span, entries: make(map[string][]time.Time)}
}

func (w *admittedWindow) count(userID string, now time.Time) int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return int64(len(w.pruneLocked(userID, now)))
}

// reserve 在 limit 内为用户占用一个名额
// persisted is what the usage store already saw for the same window; the larger
// of the two counts is compared with the limit. The check and the reservation
// share one critical section.
func (w *admittedWindow) reserve(userID string, now time.Time, persisted int64, limit int) (int64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ts := w.pruneLocked(userID, now)
	n := max(persisted, int64(len(ts)))
	if n >= int64(limit) {
		return n, false
	}
	w.entries[userID] = append(ts, now)

	w.ops++
	if w.ops%windowSweepEvery == 0 {
		for id := range w.entries {
			w.pruneLocked(id, now)
		}
	}
	return n, true
}

func (w *admittedWindow) pruneLocked(userID string, now time.Time) []time.Time {
	ts := w.entries[userID]
	start := now.Add(-w.span)
	i := 0
	for i < len(ts) && ts[i].Before(start) {
		i++
	}
	if i == len(ts) {
		delete(w.entries, userID)
		return nil
	}
	if i > 0 {
		ts = append(ts[:0], ts[i:]...)
		w.entries[userID] = ts
	}
	return ts
}
