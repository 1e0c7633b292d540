package player

import "errors"

// Error codes surfaced to error listeners.
const (
	CodeStreamURL = "STREAM_URL_ERROR"
	CodePlayback  = "PLAYBACK_ERROR"
	CodeResume    = "RESUME_ERROR"
)

// Error is a playback failure delivered to error listeners. Retryable
// distinguishes user-recoverable conditions (try the track again) from
// structural ones. Errors are transient values and never persisted.
type Error struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// Queue validation errors.
var (
	ErrEmptyQueue        = errors.New("queue is empty")
	ErrInvalidStartIndex = errors.New("invalid start index")
)
