// Package player provides the playback controller: an ordered play
// queue driven through an audio sink, with state-change and error
// fan-out to subscribers.
package player

import (
	"sync"

	"github.com/lbraun/chorale/internal/domain/catalog"
)

// NoTrack is the queue index sentinel when nothing is loaded.
const NoTrack = -1

// State is the playback state snapshot handed to listeners. Progress
// and Duration are in seconds.
type State struct {
	IsPlaying      bool            `json:"isPlaying"`
	CurrentTrackID string          `json:"currentTrackId"`
	Progress       float64         `json:"progress"`
	Duration       float64         `json:"duration"`
	Queue          []catalog.Track `json:"queue"`
	CurrentIndex   int             `json:"currentIndex"`
}

// state is the mutable playback state owned by a Controller.
// It is safe for concurrent access.
type state struct {
	mu sync.RWMutex

	isPlaying      bool
	currentTrackID string
	progress       float64
	duration       float64
	queue          []catalog.Track
	currentIndex   int
}

func newState() *state {
	return &state{currentIndex: NoTrack}
}

// Snapshot returns a read-only copy. The queue slice is duplicated so
// listeners cannot alias the controller's queue.
func (s *state) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	queue := make([]catalog.Track, len(s.queue))
	copy(queue, s.queue)

	return State{
		IsPlaying:      s.isPlaying,
		CurrentTrackID: s.currentTrackID,
		Progress:       s.progress,
		Duration:       s.duration,
		Queue:          queue,
		CurrentIndex:   s.currentIndex,
	}
}

func (s *state) setPlaying(playing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isPlaying = playing
}

func (s *state) setProgress(seconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = seconds
}

func (s *state) setDuration(seconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.duration = seconds
}

func (s *state) setCurrent(trackID string, index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentTrackID = trackID
	s.currentIndex = index
}

func (s *state) setQueue(queue []catalog.Track, index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = queue
	s.currentIndex = index
}

func (s *state) clearCurrent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentTrackID = ""
	s.currentIndex = NoTrack
	s.progress = 0
}

// trackAt returns the queue entry at index, if it exists.
func (s *state) trackAt(index int) (catalog.Track, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.queue) {
		return catalog.Track{}, false
	}
	return s.queue[index], true
}

// indexOf returns the queue position of trackID, or NoTrack.
func (s *state) indexOf(trackID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i, t := range s.queue {
		if t.ID == trackID {
			return i
		}
	}
	return NoTrack
}

func (s *state) index() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentIndex
}

func (s *state) queueLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.queue)
}

func (s *state) playing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isPlaying
}
