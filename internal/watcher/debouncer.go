package watcher

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultCooldownEntries bounds the debouncer's per-path state. Least
// recently seen paths are evicted first; entries also expire on their own
// once the cooldown window passes.
const DefaultCooldownEntries = 4096

// Debouncer suppresses bursts of create/modify events for the same path.
// An event is admitted when the path has not been forwarded within the
// cooldown window; the window timestamp advances only on admission, so a
// steady stream of writes yields one event per window rather than one
// event after the stream ends. Deletes always pass: a deletion must never
// be suppressed by an earlier write to the same path.
type Debouncer struct {
	window time.Duration

	mu   sync.Mutex
	seen *expirable.LRU[string, time.Time]
	now  func() time.Time
}

// NewDebouncer creates a debouncer with the given cooldown window and
// per-path state bound.
func NewDebouncer(window time.Duration, maxEntries int) *Debouncer {
	if maxEntries <= 0 {
		maxEntries = DefaultCooldownEntries
	}
	return &Debouncer{
		window: window,
		seen:   expirable.NewLRU[string, time.Time](maxEntries, nil, window),
		now:    time.Now,
	}
}

// Admit reports whether ev should be forwarded. Safe for concurrent use.
func (d *Debouncer) Admit(ev Event) bool {
	if ev.Action == ActionDelete {
		return true
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	if last, ok := d.seen.Get(ev.Path); ok && now.Sub(last) < d.window {
		return false
	}
	d.seen.Add(ev.Path, now)
	return true
}

// Len returns the number of paths currently in cooldown state.
func (d *Debouncer) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seen.Len()
}
