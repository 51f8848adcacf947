package tabsync

import (
	"sync"
	"time"

	"timetracker/internal/models"
)

// Applier is the single consumer behind both transports. Events of the same
// type landing within the debounce window collapse into one refresh, so
// several tabs echoing the same change do not trigger a refresh storm.
// Deduplication is by type, not sequence: sequence numbers are per-connection
// and the relay has none.
type Applier struct {
	window time.Duration
	apply  func(eventType string)

	mu      sync.Mutex
	pending map[string]*time.Timer
}

func NewApplier(window time.Duration, apply func(eventType string)) *Applier {
	return &Applier{
		window:  window,
		apply:   apply,
		pending: make(map[string]*time.Timer),
	}
}

func (a *Applier) OnSyncEvent(ev models.SyncEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.pending[ev.Type]; ok {
		return
	}
	t := ev.Type
	a.pending[t] = time.AfterFunc(a.window, func() {
		a.mu.Lock()
		delete(a.pending, t)
		a.mu.Unlock()
		a.apply(t)
	})
}

// Stop cancels any pending refreshes.
func (a *Applier) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for t, timer := range a.pending {
		timer.Stop()
		delete(a.pending, t)
	}
}
