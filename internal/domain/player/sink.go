package player

// EventType identifies a sink event.
type EventType string

// Sink event types. They mirror the transport events of a native audio
// element so that external activity (OS-level controls, stream end) is
// reflected in the controller state without polling.
const (
	EventPlay     EventType = "play"
	EventPause    EventType = "pause"
	EventTime     EventType = "timeupdate"
	EventMetadata EventType = "loadedmetadata"
	EventEnded    EventType = "ended"
	EventError    EventType = "error"
)

// Event is a sink notification. Position and Duration are in seconds
// and populated where the event type implies them.
type Event struct {
	Type     EventType
	Position float64
	Duration float64
	Err      error
}

// EventHandler receives sink events. Handlers are invoked from the
// sink's delivery goroutine and must not block.
type EventHandler func(Event)

// Sink is the native audio output the controller drives.
type Sink interface {
	// Load points the sink at a new stream URL without starting it.
	Load(url string) error

	// Play starts or resumes playback of the loaded stream.
	Play() error

	// Pause suspends playback, keeping position.
	Pause()

	// Stop halts playback and rewinds to the start.
	Stop()

	// Seek moves to the given position in seconds. Out-of-range values
	// are clamped by the caller.
	Seek(seconds float64)

	// Position returns the current playback position in seconds.
	Position() float64

	// Duration returns the loaded stream's duration in seconds, or 0
	// when unknown.
	Duration() float64

	// SetVolume sets the output volume in [0, 1].
	SetVolume(volume float64)

	// Volume returns the output volume in [0, 1].
	Volume() float64

	// SetEventHandler registers the handler for sink events. Passing
	// nil detaches the previous handler.
	SetEventHandler(h EventHandler)

	// Close releases the sink. No events are delivered afterwards.
	Close() error
}
