// Package mpd provides an MPD-backed audio sink. Playback drives a
// local MPD instance over its wire protocol; the queue there holds at
// most the one stream URL currently loaded, and MPD subsystem events
// are translated into sink events.
package mpd

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/fhs/gompd/v2/mpd"
	"github.com/rs/zerolog/log"

	"github.com/lbraun/chorale/internal/domain/player"
)

// Sink plays stream URLs through MPD. It reconnects transparently when
// the control connection drops. Safe for concurrent use.
type Sink struct {
	mu       sync.Mutex
	client   *mpd.Client
	watcher  *mpd.Watcher
	host     string
	port     int
	password string

	handlerMu sync.RWMutex
	handler   player.EventHandler

	stateMu       sync.RWMutex
	last          status
	stopRequested bool
	closed        bool
}

// status is the slice of MPD status the sink tracks between events.
type status struct {
	state    string // "play", "pause" or "stop"
	elapsed  float64
	duration float64
	volume   float64 // 0..1
}

// NewSink creates a sink for the MPD instance at host:port. The
// connection is established lazily on first use.
func NewSink(host string, port int, password string) *Sink {
	return &Sink{
		host:     host,
		port:     port,
		password: password,
		last:     status{state: "stop", volume: 1},
	}
}

// Start opens the control connection and the subsystem watcher. Events
// flow to the registered handler until Close.
func (s *Sink) Start() error {
	if err := s.ensureConnected(); err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	watcher, err := mpd.NewWatcher("tcp", addr, s.password, "player", "mixer")
	if err != nil {
		return fmt.Errorf("failed to create MPD watcher: %w", err)
	}

	s.mu.Lock()
	s.watcher = watcher
	s.mu.Unlock()

	go s.watch(watcher)
	return nil
}

func (s *Sink) connectLocked() error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	log.Info().Str("addr", addr).Msg("Connecting to MPD")

	client, err := mpd.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to MPD: %w", err)
	}

	if s.password != "" {
		if err := client.Command("password %s", s.password).OK(); err != nil {
			client.Close()
			return fmt.Errorf("MPD authentication failed: %w", err)
		}
	}

	s.client = client
	log.Info().Msg("Connected to MPD")
	return nil
}

// ensureConnected checks the connection and reconnects if needed.
func (s *Sink) ensureConnected() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return s.connectLocked()
	}

	if err := s.client.Ping(); err != nil {
		log.Warn().Err(err).Msg("MPD connection lost, reconnecting...")
		s.client.Close()
		s.client = nil
		return s.connectLocked()
	}

	return nil
}

// Load replaces the MPD queue with the given stream URL. Playback does
// not start until Play.
func (s *Sink) Load(url string) error {
	if err := s.ensureConnected(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.client.Clear(); err != nil {
		return fmt.Errorf("failed to clear MPD queue: %w", err)
	}
	if err := s.client.Add(url); err != nil {
		return fmt.Errorf("failed to add stream to MPD queue: %w", err)
	}

	s.stateMu.Lock()
	s.last.elapsed = 0
	s.last.duration = 0
	s.stopRequested = false
	s.stateMu.Unlock()

	return nil
}

// Play starts or resumes playback of the loaded stream.
func (s *Sink) Play() error {
	if err := s.ensureConnected(); err != nil {
		return err
	}

	s.stateMu.Lock()
	s.stopRequested = false
	s.stateMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client.Play(-1)
}

// Pause suspends playback, keeping position.
func (s *Sink) Pause() {
	if err := s.ensureConnected(); err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.client.Pause(true); err != nil {
		log.Warn().Err(err).Msg("MPD pause failed")
	}
}

// Stop halts playback and rewinds. The resulting MPD stop event is not
// reported as a natural end of stream.
func (s *Sink) Stop() {
	if err := s.ensureConnected(); err != nil {
		return
	}

	s.stateMu.Lock()
	s.stopRequested = true
	s.stateMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.client.Stop(); err != nil {
		log.Warn().Err(err).Msg("MPD stop failed")
	}
}

// Seek moves to the given position in seconds within the loaded stream.
func (s *Sink) Seek(seconds float64) {
	if err := s.ensureConnected(); err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	attrs, err := s.client.Status()
	if err != nil {
		log.Warn().Err(err).Msg("MPD status failed")
		return
	}
	songPos, err := strconv.Atoi(attrs["song"])
	if err != nil {
		return // nothing loaded
	}
	if err := s.client.Seek(songPos, int(seconds)); err != nil {
		log.Warn().Err(err).Msg("MPD seek failed")
	}
}

// Position returns the current playback position in seconds.
func (s *Sink) Position() float64 {
	if st, err := s.refreshStatus(); err == nil {
		return st.elapsed
	}
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.last.elapsed
}

// Duration returns the loaded stream's duration in seconds, or 0 when
// MPD has not announced one.
func (s *Sink) Duration() float64 {
	if st, err := s.refreshStatus(); err == nil {
		return st.duration
	}
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.last.duration
}

// SetVolume sets the output volume in [0, 1].
func (s *Sink) SetVolume(volume float64) {
	if err := s.ensureConnected(); err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.client.SetVolume(toMPDVolume(volume)); err != nil {
		log.Warn().Err(err).Msg("MPD set volume failed")
	}
}

// Volume returns the output volume in [0, 1].
func (s *Sink) Volume() float64 {
	if st, err := s.refreshStatus(); err == nil {
		return st.volume
	}
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.last.volume
}

// SetEventHandler registers the handler for sink events. Passing nil
// detaches the previous handler.
func (s *Sink) SetEventHandler(h player.EventHandler) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.handler = h
}

// Close closes the watcher and the control connection. No events are
// delivered afterwards.
func (s *Sink) Close() error {
	s.stateMu.Lock()
	s.closed = true
	s.stateMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
	if s.client != nil {
		err := s.client.Close()
		s.client = nil
		return err
	}
	return nil
}

// refreshStatus queries MPD and remembers the parsed snapshot.
func (s *Sink) refreshStatus() (status, error) {
	if err := s.ensureConnected(); err != nil {
		return status{}, err
	}

	s.mu.Lock()
	attrs, err := s.client.Status()
	s.mu.Unlock()
	if err != nil {
		return status{}, err
	}

	st := parseStatus(attrs)
	s.stateMu.Lock()
	s.last = st
	s.stateMu.Unlock()
	return st, nil
}

// watch translates MPD subsystem changes into sink events.
func (s *Sink) watch(watcher *mpd.Watcher) {
	for {
		select {
		case _, ok := <-watcher.Event:
			if !ok {
				return
			}
			s.onSubsystemChange()
		case err, ok := <-watcher.Error:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("MPD watcher error")
			time.Sleep(time.Second)
		}
	}
}

func (s *Sink) onSubsystemChange() {
	if err := s.ensureConnected(); err != nil {
		return
	}

	s.mu.Lock()
	attrs, err := s.client.Status()
	s.mu.Unlock()
	if err != nil {
		log.Warn().Err(err).Msg("MPD status failed")
		return
	}

	cur := parseStatus(attrs)

	s.stateMu.Lock()
	prev := s.last
	stopRequested := s.stopRequested
	s.last = cur
	closed := s.closed
	s.stateMu.Unlock()

	if closed {
		return
	}
	for _, ev := range deriveEvents(prev, cur, stopRequested) {
		s.emit(ev)
	}
}

func (s *Sink) emit(ev player.Event) {
	s.handlerMu.RLock()
	handler := s.handler
	s.handlerMu.RUnlock()
	if handler != nil {
		handler(ev)
	}
}

// parseStatus extracts the tracked fields from an MPD status response.
// A missing or disabled mixer ("volume: -1") keeps full volume.
func parseStatus(attrs mpd.Attrs) status {
	st := status{state: attrs["state"], volume: 1}
	if st.state == "" {
		st.state = "stop"
	}
	if v, err := strconv.ParseFloat(attrs["elapsed"], 64); err == nil {
		st.elapsed = v
	}
	if v, err := strconv.ParseFloat(attrs["duration"], 64); err == nil {
		st.duration = v
	}
	if v, err := strconv.Atoi(attrs["volume"]); err == nil && v >= 0 {
		st.volume = fromMPDVolume(v)
	}
	return st
}

// deriveEvents diffs two status snapshots into sink events. A
// transition to "stop" that was not requested through Stop means MPD
// ran out of queue, which is the end of the loaded stream.
func deriveEvents(prev, cur status, stopRequested bool) []player.Event {
	var events []player.Event

	if cur.duration > 0 && cur.duration != prev.duration {
		events = append(events, player.Event{Type: player.EventMetadata, Duration: cur.duration})
	}

	switch {
	case cur.state == "play" && prev.state != "play":
		events = append(events, player.Event{Type: player.EventPlay})
	case cur.state == "pause" && prev.state == "play":
		events = append(events, player.Event{Type: player.EventPause})
	case cur.state == "stop" && prev.state == "play":
		if stopRequested {
			events = append(events, player.Event{Type: player.EventPause})
		} else {
			events = append(events, player.Event{Type: player.EventEnded})
		}
	}

	if cur.state == "play" && cur.elapsed != prev.elapsed {
		events = append(events, player.Event{Type: player.EventTime, Position: cur.elapsed})
	}

	return events
}

// toMPDVolume maps [0, 1] onto MPD's 0..100 scale.
func toMPDVolume(volume float64) int {
	if volume < 0 {
		volume = 0
	} else if volume > 1 {
		volume = 1
	}
	return int(volume*100 + 0.5)
}

// fromMPDVolume maps MPD's 0..100 scale onto [0, 1].
func fromMPDVolume(volume int) float64 {
	if volume < 0 {
		return 1
	}
	if volume > 100 {
		volume = 100
	}
	return float64(volume) / 100
}
