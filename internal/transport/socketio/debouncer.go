package socketio

import (
	"sync"
	"time"
)

// BroadcastDebouncer collapses rapid playback state changes into batched
// broadcasts. A playing track reports its position many times per second;
// multiple state notifications within the debounce window result in a
// single broadcast carrying the latest snapshot.
type BroadcastDebouncer struct {
	window    time.Duration
	broadcast func()

	mu      sync.Mutex
	pending bool
	timer   *time.Timer
	stopped bool
}

// NewBroadcastDebouncer creates a debouncer with the given window
// duration. broadcast is called once per window with at least one
// trigger.
func NewBroadcastDebouncer(window time.Duration, broadcast func()) *BroadcastDebouncer {
	return &BroadcastDebouncer{
		window:    window,
		broadcast: broadcast,
	}
}

// Trigger records that the playback state has changed. The broadcast is
// deferred until the debounce window elapses without further triggers.
func (d *BroadcastDebouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	d.pending = true

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// flush fires the broadcast if a trigger is pending and resets it.
func (d *BroadcastDebouncer) flush() {
	d.mu.Lock()
	doBroadcast := d.pending
	d.pending = false
	d.mu.Unlock()

	if doBroadcast && d.broadcast != nil {
		d.broadcast()
	}
}

// Stop prevents any further broadcasts from firing.
func (d *BroadcastDebouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = false
}
