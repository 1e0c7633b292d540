package player

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/lbraun/chorale/internal/domain/catalog"
)

// restartThreshold is how far into a track "previous" restarts it
// instead of doing nothing when there is no earlier queue entry.
const restartThreshold = 3.0 // seconds

// StreamURLResolver resolves a fresh streaming URL for a track. Both
// streaming clients satisfy it. Stream URLs are signed and short-lived,
// so the controller resolves one per playback attempt and never reuses
// them.
type StreamURLResolver interface {
	GetStreamingURL(ctx context.Context, trackID string) (string, error)
}

// Listener receives playback state snapshots.
type Listener func(State)

// ErrorListener receives playback errors.
type ErrorListener func(*Error)

// ListenerHandle identifies a registered listener for removal.
type ListenerHandle int

type listenerEntry struct {
	handle ListenerHandle
	fn     Listener
}

type errorListenerEntry struct {
	handle ListenerHandle
	fn     ErrorListener
}

// Controller owns the play queue and drives a single audio sink.
// Transport commands mutate state synchronously before any suspension;
// overlapping track-change commands on the same controller are not
// guarded and must not be issued concurrently.
type Controller struct {
	resolver StreamURLResolver
	sink     Sink
	state    *state

	mu             sync.Mutex
	nextHandle     ListenerHandle
	listeners      []listenerEntry
	errorListeners []errorListenerEntry
	destroyed      bool
}

// NewController creates a controller driving sink, resolving stream
// URLs through resolver.
func NewController(resolver StreamURLResolver, sink Sink) *Controller {
	c := &Controller{
		resolver: resolver,
		sink:     sink,
		state:    newState(),
	}
	if sink != nil {
		sink.SetEventHandler(c.handleSinkEvent)
	}
	return c
}

// Play resolves a fresh stream URL for track, loads it into the sink,
// and starts playback. The current index is looked up by track ID
// within the queue; a track outside the queue plays with index -1.
// URL resolution failure emits a retryable stream-URL error and is
// returned to the caller with the sink untouched.
func (c *Controller) Play(ctx context.Context, track catalog.Track) error {
	log.Info().Str("trackId", track.ID).Str("title", track.Title).Msg("Play")

	url, err := c.resolver.GetStreamingURL(ctx, track.ID)
	if err != nil {
		playerErr := &Error{Code: CodeStreamURL, Message: err.Error(), Retryable: true}
		c.notifyError(playerErr)
		return playerErr
	}

	if err := c.sink.Load(url); err != nil {
		playerErr := &Error{Code: CodePlayback, Message: err.Error(), Retryable: true}
		c.notifyError(playerErr)
		return playerErr
	}

	c.state.setCurrent(track.ID, c.state.indexOf(track.ID))
	c.notify()

	if err := c.sink.Play(); err != nil {
		playerErr := &Error{Code: CodePlayback, Message: err.Error(), Retryable: true}
		c.notifyError(playerErr)
		return playerErr
	}
	return nil
}

// PlayQueue replaces the queue and starts playback at startIndex. An
// empty queue or an out-of-bounds index is rejected before any state
// is touched.
func (c *Controller) PlayQueue(ctx context.Context, tracks []catalog.Track, startIndex int) error {
	if len(tracks) == 0 {
		return ErrEmptyQueue
	}
	if startIndex < 0 || startIndex >= len(tracks) {
		return ErrInvalidStartIndex
	}

	queue := make([]catalog.Track, len(tracks))
	copy(queue, tracks)
	c.state.setQueue(queue, startIndex)

	return c.Play(ctx, queue[startIndex])
}

// Pause suspends playback.
func (c *Controller) Pause() {
	log.Info().Msg("Pause")
	if c.sink != nil {
		c.sink.Pause()
	}
}

// Resume restarts playback after a pause. It is a no-op while already
// playing; a resume failure is reported to error listeners without
// propagating.
func (c *Controller) Resume() {
	if c.sink == nil || c.state.playing() {
		return
	}
	log.Info().Msg("Resume")
	if err := c.sink.Play(); err != nil {
		c.notifyError(&Error{Code: CodeResume, Message: err.Error(), Retryable: true})
	}
}

// TogglePlayPause pauses when playing and resumes otherwise.
func (c *Controller) TogglePlayPause() {
	if c.state.playing() {
		c.Pause()
	} else {
		c.Resume()
	}
}

// Next advances to the following queue entry, or stops when the queue
// is exhausted.
func (c *Controller) Next(ctx context.Context) error {
	log.Info().Msg("Next")
	next := c.state.index() + 1
	if track, ok := c.state.trackAt(next); ok {
		return c.Play(ctx, track)
	}
	c.Stop()
	return nil
}

// Previous steps back to the preceding queue entry. At the head of the
// queue it restarts the current track instead, but only when more than
// three seconds have elapsed; an early "previous" with no earlier track
// is a no-op.
func (c *Controller) Previous(ctx context.Context) error {
	log.Info().Msg("Previous")
	prev := c.state.index() - 1
	if track, ok := c.state.trackAt(prev); ok && prev >= 0 {
		return c.Play(ctx, track)
	}
	if c.sink != nil && c.sink.Position() > restartThreshold {
		c.Seek(0)
	}
	return nil
}

// Seek moves to the given position in seconds, clamped to the loaded
// stream's duration.
func (c *Controller) Seek(seconds float64) {
	if c.sink == nil {
		return
	}
	if seconds < 0 {
		seconds = 0
	}
	if d := c.sink.Duration(); seconds > d {
		seconds = d
	}
	c.sink.Seek(seconds)
	c.state.setProgress(seconds)
}

// SetVolume sets the sink volume, clamped to [0, 1].
func (c *Controller) SetVolume(volume float64) {
	if c.sink == nil {
		return
	}
	if volume < 0 {
		volume = 0
	} else if volume > 1 {
		volume = 1
	}
	c.sink.SetVolume(volume)
}

// Volume returns the sink volume, or 1 when no sink is attached.
func (c *Controller) Volume() float64 {
	if c.sink == nil {
		return 1
	}
	return c.sink.Volume()
}

// Stop halts playback, rewinds, and resets the current track and index
// to the idle sentinel.
func (c *Controller) Stop() {
	log.Info().Msg("Stop")
	if c.sink != nil {
		c.sink.Stop()
	}
	c.state.setPlaying(false)
	c.state.clearCurrent()
	c.notify()
}

// State returns a snapshot of the playback state.
func (c *Controller) State() State {
	return c.state.Snapshot()
}

// AddListener registers a state listener and returns its handle.
func (c *Controller) AddListener(fn Listener) ListenerHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextHandle++
	c.listeners = append(c.listeners, listenerEntry{handle: c.nextHandle, fn: fn})
	return c.nextHandle
}

// RemoveListener removes the state listener with the given handle.
// Removing an unknown handle is a no-op.
func (c *Controller) RemoveListener(h ListenerHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, entry := range c.listeners {
		if entry.handle == h {
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			return
		}
	}
}

// AddErrorListener registers an error listener and returns its handle.
func (c *Controller) AddErrorListener(fn ErrorListener) ListenerHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextHandle++
	c.errorListeners = append(c.errorListeners, errorListenerEntry{handle: c.nextHandle, fn: fn})
	return c.nextHandle
}

// RemoveErrorListener removes the error listener with the given handle.
func (c *Controller) RemoveErrorListener(h ListenerHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, entry := range c.errorListeners {
		if entry.handle == h {
			c.errorListeners = append(c.errorListeners[:i], c.errorListeners[i+1:]...)
			return
		}
	}
}

// Destroy releases the sink and drops all listeners. The controller is
// inert afterwards; further notifications are suppressed. Safe to call
// from component teardown more than once.
func (c *Controller) Destroy() {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.destroyed = true
	c.listeners = nil
	c.errorListeners = nil
	c.mu.Unlock()

	if c.sink != nil {
		c.sink.SetEventHandler(nil)
		if err := c.sink.Close(); err != nil {
			log.Warn().Err(err).Msg("Sink close failed")
		}
	}
}

// handleSinkEvent mirrors sink activity into the playback state, so
// externally triggered transport changes stay visible without polling.
func (c *Controller) handleSinkEvent(ev Event) {
	switch ev.Type {
	case EventPlay:
		c.state.setPlaying(true)
		c.notify()
	case EventPause:
		c.state.setPlaying(false)
		c.notify()
	case EventTime:
		c.state.setProgress(ev.Position)
		c.notify()
	case EventMetadata:
		c.state.setDuration(ev.Duration)
		c.notify()
	case EventEnded:
		if err := c.Next(context.Background()); err != nil {
			log.Warn().Err(err).Msg("Auto-advance failed")
		}
	case EventError:
		msg := "failed to play audio"
		if ev.Err != nil {
			msg = ev.Err.Error()
		}
		c.notifyError(&Error{Code: CodePlayback, Message: msg, Retryable: true})
	}
}

// notify delivers a state snapshot to every listener, synchronously and
// in registration order.
func (c *Controller) notify() {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	entries := make([]listenerEntry, len(c.listeners))
	copy(entries, c.listeners)
	c.mu.Unlock()

	snapshot := c.state.Snapshot()
	for _, entry := range entries {
		entry.fn(snapshot)
	}
}

func (c *Controller) notifyError(playerErr *Error) {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	entries := make([]errorListenerEntry, len(c.errorListeners))
	copy(entries, c.errorListeners)
	c.mu.Unlock()

	log.Warn().Str("code", playerErr.Code).Str("message", playerErr.Message).Msg("Playback error")
	for _, entry := range entries {
		entry.fn(playerErr)
	}
}
