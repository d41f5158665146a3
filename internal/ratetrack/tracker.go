// Package ratetrack detects message bursts per (guild, author) and debounces
// repeated alerts.
package ratetrack

import (
	"log/slog"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

type key struct {
	guildID  string
	authorID string
}

type window struct {
	timestamps  []time.Time
	lastAlertAt time.Time
	// interval is the one last used for this window. Guild overrides may set
	// it above maxIdle, so eviction has to honour it.
	interval time.Duration
}

// retention is how long the window stays meaningful after its newest entry:
// entries are read for one interval and the alert debounce for two.
func (w *window) retention(maxIdle time.Duration) time.Duration {
	return max(maxIdle, 2*w.interval)
}

// Tracker owns every rate window. All reads and writes of one window happen
// inside xsync's per-key Compute, so two messages from the same author are
// serialised while different authors proceed in parallel.
type Tracker struct {
	windows *xsync.MapOf[key, *window]

	cleanupEvery time.Duration
	maxIdle      time.Duration
	now          func() time.Time

	mu      sync.Mutex
	stop    chan struct{}
	stopped chan struct{}
}

type Option func(*Tracker)

// WithClock replaces time.Now for the background cleanup loop.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

func New(cleanupEvery, maxIdle time.Duration, opts ...Option) *Tracker {
	if cleanupEvery <= 0 {
		cleanupEvery = time.Minute
	}
	if maxIdle <= 0 {
		maxIdle = 5 * time.Minute
	}
	t := &Tracker{
		windows:      xsync.NewMapOf[key, *window](),
		cleanupEvery: cleanupEvery,
		maxIdle:      maxIdle,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RecordAndCheck appends now to the author's window, drops entries at least
// interval old, and reports a burst when threshold or more remain. A burst
// within 2*interval of the previous alert is suppressed.
func (t *Tracker) RecordAndCheck(guildID, authorID string, now time.Time, threshold int, interval time.Duration) bool {
	if threshold <= 0 || interval <= 0 {
		return false
	}

	alert := false
	t.windows.Compute(key{guildID, authorID}, func(w *window, loaded bool) (*window, bool) {
		if !loaded || w == nil {
			w = &window{}
		}
		w.interval = interval
		w.timestamps = append(w.timestamps, now)
		w.timestamps = prune(w.timestamps, now, interval)

		if len(w.timestamps) < threshold {
			return w, false
		}
		if !w.lastAlertAt.IsZero() && now.Sub(w.lastAlertAt) < 2*interval {
			return w, false
		}
		w.lastAlertAt = now
		alert = true
		return w, false
	})
	return alert
}

func prune(ts []time.Time, now time.Time, interval time.Duration) []time.Time {
	i := 0
	for i < len(ts) && now.Sub(ts[i]) >= interval {
		i++
	}
	if i == 0 {
		return ts
	}
	return append(ts[:0], ts[i:]...)
}

// Cleanup evicts windows that are empty or whose newest entry is older than
// maxIdle, or twice the window's interval when that is longer. It returns the
// number of evicted windows.
func (t *Tracker) Cleanup(now time.Time, maxIdle time.Duration) int {
	var idle []key
	t.windows.Range(func(k key, _ *window) bool {
		idle = append(idle, k)
		return true
	})

	evicted := 0
	for _, k := range idle {
		t.windows.Compute(k, func(w *window, loaded bool) (*window, bool) {
			if !loaded {
				return w, true
			}
			// Re-checked under the key's lock: a message may have landed since Range.
			if w == nil || len(w.timestamps) == 0 || now.Sub(w.timestamps[len(w.timestamps)-1]) > w.retention(maxIdle) {
				evicted++
				return w, true
			}
			return w, false
		})
	}
	return evicted
}

// Len returns the number of live windows.
func (t *Tracker) Len() int {
	return t.windows.Size()
}

// Guilds returns the number of guilds with at least one live window.
func (t *Tracker) Guilds() int {
	seen := make(map[string]struct{})
	t.windows.Range(func(k key, _ *window) bool {
		seen[k.guildID] = struct{}{}
		return true
	})
	return len(seen)
}

// Start launches the periodic cleanup loop. Calling Start twice is a no-op.
func (t *Tracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		return
	}
	t.stop = make(chan struct{})
	t.stopped = make(chan struct{})
	go t.loop(t.stop, t.stopped)
}

// Stop halts the cleanup loop and waits for it to exit.
func (t *Tracker) Stop() {
	t.mu.Lock()
	stop, stopped := t.stop, t.stopped
	t.stop, t.stopped = nil, nil
	t.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-stopped
}

func (t *Tracker) loop(stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	ticker := time.NewTicker(t.cleanupEvery)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if n := t.Cleanup(t.now(), t.maxIdle); n > 0 {
				slog.Debug("Evicted idle rate windows", "evicted", n, "remaining", t.Len())
			}
		}
	}
}
