package ratelimit

import (
	"sync"
	"time"
)

// Window admits actions against a rolling-window ceiling. Admission checks
// and recording happen under one lock so two concurrent callers can never
// both take the last slot. State is in-memory and process-scoped.
type Window struct {
	mu      sync.Mutex
	window  time.Duration
	ceiling int
	// Optional per-kind ceilings layered under the global one
	perKind map[string]int

	global map[string][]time.Time // "" key holds the global record

	now func() time.Time
}

// New builds a window limiter. ceiling <= 0 disables the global limit.
func New(window time.Duration, ceiling int, perKind map[string]int) *Window {
	if window <= 0 {
		window = time.Hour
	}
	return &Window{
		window:  window,
		ceiling: ceiling,
		perKind: perKind,
		global:  make(map[string][]time.Time),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Admit reports whether an action of the given kind may proceed now, and
// records it if so. Denied actions are not recorded.
func (w *Window) Admit(kind string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	w.evict("", now)
	w.evict(kind, now)
	if w.ceiling > 0 && len(w.global[""]) >= w.ceiling {
		return false
	}
	if c, ok := w.perKind[kind]; ok && c > 0 && len(w.global[kind]) >= c {
		return false
	}
	w.global[""] = append(w.global[""], now)
	w.global[kind] = append(w.global[kind], now)
	return true
}

// Pending returns how many actions of kind are inside the current window.
// kind "" reports the global count.
func (w *Window) Pending(kind string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evict(kind, w.now())
	return len(w.global[kind])
}

func (w *Window) evict(kind string, now time.Time) {
	ts := w.global[kind]
	cut := now.Add(-w.window)
	i := 0
	for i < len(ts) && !ts[i].After(cut) {
		i++
	}
	if i > 0 {
		w.global[kind] = append(ts[:0:0], ts[i:]...)
	}
}
