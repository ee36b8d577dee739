package admission

import (
	"sync"
	"time"
)

// record holds the admission state of a single identity. Each record has its
// own lock so identities never contend with each other.
type record struct {
	mu             sync.Mutex
	window         []time.Time
	failedAttempts int
	unbanAt        time.Time
}

// banned reports whether a ban is in effect. A ban ends at unbanAt exactly.
func (r *record) banned(now time.Time) bool {
	return now.Before(r.unbanAt)
}

// prune drops the timestamps that have slid out of the window.
func (r *record) prune(now time.Time, window time.Duration) {
	keep := 0
	for _, ts := range r.window {
		if now.Sub(ts) < window {
			r.window[keep] = ts
			keep++
		}
	}
	r.window = r.window[:keep]
}

// allow records the submission if the window has room for it.
func (r *record) allow(now time.Time, window time.Duration, limit int) bool {
	r.prune(now, window)

	if len(r.window) >= limit {
		return false
	}

	r.window = append(r.window, now)
	return true
}
