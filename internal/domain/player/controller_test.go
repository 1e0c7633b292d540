package player

import (
	"context"
	"errors"
	"testing"

	"github.com/lbraun/chorale/internal/domain/catalog"
)

type fakeResolver struct {
	urls  map[string]string
	err   error
	calls []string
}

func (r *fakeResolver) GetStreamingURL(_ context.Context, trackID string) (string, error) {
	r.calls = append(r.calls, trackID)
	if r.err != nil {
		return "", r.err
	}
	if url, ok := r.urls[trackID]; ok {
		return url, nil
	}
	return "https://cdn.example.com/" + trackID, nil
}

type fakeSink struct {
	loaded   []string
	loadErr  error
	playErr  error
	position float64
	duration float64
	volume   float64
	stopped  bool
	closed   bool
	handler  EventHandler
}

func newFakeSink() *fakeSink {
	return &fakeSink{volume: 1}
}

func (s *fakeSink) Load(url string) error {
	if s.loadErr != nil {
		return s.loadErr
	}
	s.loaded = append(s.loaded, url)
	return nil
}

func (s *fakeSink) Play() error {
	if s.playErr != nil {
		return s.playErr
	}
	s.emit(Event{Type: EventPlay})
	return nil
}

func (s *fakeSink) Pause() {
	s.emit(Event{Type: EventPause})
}

func (s *fakeSink) Stop() {
	s.stopped = true
	s.position = 0
}

func (s *fakeSink) Seek(seconds float64) { s.position = seconds }

func (s *fakeSink) Position() float64 { return s.position }

func (s *fakeSink) Duration() float64 { return s.duration }

func (s *fakeSink) SetVolume(v float64) { s.volume = v }

func (s *fakeSink) Volume() float64 { return s.volume }

func (s *fakeSink) SetEventHandler(h EventHandler) { s.handler = h }
func (s *fakeSink) Close() error {
	s.closed = true
	return nil
}

func (s *fakeSink) emit(ev Event) {
	if s.handler != nil {
		s.handler(ev)
	}
}

func queue(ids ...string) []catalog.Track {
	tracks := make([]catalog.Track, len(ids))
	for i, id := range ids {
		tracks[i] = catalog.Track{ID: id, Title: "Track " + id}
	}
	return tracks
}

func TestPlayResolvesFreshURLAndStartsSink(t *testing.T) {
	resolver := &fakeResolver{urls: map[string]string{"t1": "https://cdn.example.com/signed/t1"}}
	sink := newFakeSink()
	c := NewController(resolver, sink)

	if err := c.Play(context.Background(), catalog.Track{ID: "t1"}); err != nil {
		t.Fatalf("Play: %v", err)
	}

	if len(sink.loaded) != 1 || sink.loaded[0] != "https://cdn.example.com/signed/t1" {
		t.Errorf("loaded = %v, want the resolved URL", sink.loaded)
	}
	st := c.State()
	if st.CurrentTrackID != "t1" {
		t.Errorf("CurrentTrackID = %q, want %q", st.CurrentTrackID, "t1")
	}
	if !st.IsPlaying {
		t.Error("expected playing after sink play event")
	}
}

func TestPlayTrackOutsideQueueUsesSentinelIndex(t *testing.T) {
	resolver := &fakeResolver{}
	sink := newFakeSink()
	c := NewController(resolver, sink)

	if err := c.PlayQueue(context.Background(), queue("a", "b"), 0); err != nil {
		t.Fatalf("PlayQueue: %v", err)
	}
	if err := c.Play(context.Background(), catalog.Track{ID: "external"}); err != nil {
		t.Fatalf("Play: %v", err)
	}

	st := c.State()
	if st.CurrentIndex != NoTrack {
		t.Errorf("CurrentIndex = %d, want %d", st.CurrentIndex, NoTrack)
	}
	if len(st.Queue) != 2 {
		t.Errorf("queue should survive an out-of-queue play, got len %d", len(st.Queue))
	}
}

func TestPlayResolveFailureLeavesSinkUntouched(t *testing.T) {
	resolver := &fakeResolver{err: errors.New("catalog unavailable")}
	sink := newFakeSink()
	c := NewController(resolver, sink)

	var reported *Error
	c.AddErrorListener(func(e *Error) { reported = e })

	err := c.Play(context.Background(), catalog.Track{ID: "t1"})
	if err == nil {
		t.Fatal("expected an error")
	}

	var playerErr *Error
	if !errors.As(err, &playerErr) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if playerErr.Code != CodeStreamURL || !playerErr.Retryable {
		t.Errorf("got code=%q retryable=%v, want %q retryable", playerErr.Code, playerErr.Retryable, CodeStreamURL)
	}
	if reported == nil || reported.Code != CodeStreamURL {
		t.Error("error listener should have received the stream URL error")
	}
	if len(sink.loaded) != 0 {
		t.Errorf("sink should not be touched on resolve failure, loaded %v", sink.loaded)
	}
}

func TestPlayQueueRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name       string
		tracks     []catalog.Track
		startIndex int
		wantErr    error
	}{
		{"empty queue", nil, 0, ErrEmptyQueue},
		{"negative index", queue("a"), -1, ErrInvalidStartIndex},
		{"index past end", queue("a", "b"), 2, ErrInvalidStartIndex},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := &fakeResolver{}
			sink := newFakeSink()
			c := NewController(resolver, sink)

			err := c.PlayQueue(context.Background(), tt.tracks, tt.startIndex)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}

			st := c.State()
			if len(st.Queue) != 0 || st.CurrentIndex != NoTrack {
				t.Errorf("state mutated on rejected input: queue len %d, index %d",
					len(st.Queue), st.CurrentIndex)
			}
			if len(resolver.calls) != 0 {
				t.Errorf("resolver called %d times on rejected input", len(resolver.calls))
			}
		})
	}
}

func TestPlayQueueStartsAtIndex(t *testing.T) {
	resolver := &fakeResolver{}
	sink := newFakeSink()
	c := NewController(resolver, sink)

	if err := c.PlayQueue(context.Background(), queue("a", "b", "c"), 1); err != nil {
		t.Fatalf("PlayQueue: %v", err)
	}

	st := c.State()
	if st.CurrentTrackID != "b" || st.CurrentIndex != 1 {
		t.Errorf("got trackID=%q index=%d, want b/1", st.CurrentTrackID, st.CurrentIndex)
	}
}

func TestNextAdvancesThenStopsAtEnd(t *testing.T) {
	resolver := &fakeResolver{}
	sink := newFakeSink()
	c := NewController(resolver, sink)

	if err := c.PlayQueue(context.Background(), queue("a", "b"), 0); err != nil {
		t.Fatalf("PlayQueue: %v", err)
	}

	if err := c.Next(context.Background()); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if st := c.State(); st.CurrentTrackID != "b" || st.CurrentIndex != 1 {
		t.Fatalf("after next: trackID=%q index=%d, want b/1", st.CurrentTrackID, st.CurrentIndex)
	}

	if err := c.Next(context.Background()); err != nil {
		t.Fatalf("Next at end: %v", err)
	}
	st := c.State()
	if !sink.stopped {
		t.Error("sink should be stopped past the end of the queue")
	}
	if st.CurrentIndex != NoTrack || st.IsPlaying {
		t.Errorf("after next at end: index=%d playing=%v, want sentinel/stopped", st.CurrentIndex, st.IsPlaying)
	}
}

func TestPreviousStepsBack(t *testing.T) {
	resolver := &fakeResolver{}
	sink := newFakeSink()
	c := NewController(resolver, sink)

	if err := c.PlayQueue(context.Background(), queue("a", "b"), 1); err != nil {
		t.Fatalf("PlayQueue: %v", err)
	}
	if err := c.Previous(context.Background()); err != nil {
		t.Fatalf("Previous: %v", err)
	}
	if st := c.State(); st.CurrentTrackID != "a" || st.CurrentIndex != 0 {
		t.Errorf("got trackID=%q index=%d, want a/0", st.CurrentTrackID, st.CurrentIndex)
	}
}

func TestPreviousAtHeadRestartsOnlyAfterThreeSeconds(t *testing.T) {
	tests := []struct {
		name        string
		position    float64
		wantRestart bool
	}{
		{"early in the track", 2.5, false},
		{"past the threshold", 5, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := &fakeResolver{}
			sink := newFakeSink()
			sink.duration = 180
			c := NewController(resolver, sink)

			if err := c.PlayQueue(context.Background(), queue("a", "b"), 0); err != nil {
				t.Fatalf("PlayQueue: %v", err)
			}
			sink.position = tt.position
			resolver.calls = nil

			if err := c.Previous(context.Background()); err != nil {
				t.Fatalf("Previous: %v", err)
			}

			if len(resolver.calls) != 0 {
				t.Errorf("previous at the queue head should never resolve a new URL, calls %v", resolver.calls)
			}
			if tt.wantRestart && sink.position != 0 {
				t.Errorf("position = %v, want rewind to 0", sink.position)
			}
			if !tt.wantRestart && sink.position != tt.position {
				t.Errorf("position = %v, want untouched %v", sink.position, tt.position)
			}
		})
	}
}

func TestSeekClampsToDuration(t *testing.T) {
	tests := []struct {
		name    string
		seconds float64
		want    float64
	}{
		{"negative", -5, 0},
		{"in range", 30, 30},
		{"past the end", 500, 180},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := newFakeSink()
			sink.duration = 180
			c := NewController(&fakeResolver{}, sink)

			c.Seek(tt.seconds)
			if sink.position != tt.want {
				t.Errorf("position = %v, want %v", sink.position, tt.want)
			}
		})
	}
}

func TestSetVolumeClamps(t *testing.T) {
	tests := []struct {
		volume float64
		want   float64
	}{
		{-0.5, 0},
		{0.7, 0.7},
		{1.5, 1},
	}
	for _, tt := range tests {
		sink := newFakeSink()
		c := NewController(&fakeResolver{}, sink)

		c.SetVolume(tt.volume)
		if sink.volume != tt.want {
			t.Errorf("SetVolume(%v): volume = %v, want %v", tt.volume, sink.volume, tt.want)
		}
	}
}

func TestVolumeDefaultsToFullWithoutSink(t *testing.T) {
	c := NewController(&fakeResolver{}, nil)
	if got := c.Volume(); got != 1 {
		t.Errorf("Volume = %v, want 1", got)
	}
}

func TestResumeFailureIsReportedNotPropagated(t *testing.T) {
	sink := newFakeSink()
	sink.playErr = errors.New("device busy")
	c := NewController(&fakeResolver{}, sink)

	var reported *Error
	c.AddErrorListener(func(e *Error) { reported = e })

	c.Resume()

	if reported == nil || reported.Code != CodeResume {
		t.Fatalf("reported = %+v, want a resume error", reported)
	}
	if !reported.Retryable {
		t.Error("resume errors should be retryable")
	}
}

func TestEndedEventAdvancesQueue(t *testing.T) {
	resolver := &fakeResolver{}
	sink := newFakeSink()
	c := NewController(resolver, sink)

	if err := c.PlayQueue(context.Background(), queue("a", "b"), 0); err != nil {
		t.Fatalf("PlayQueue: %v", err)
	}

	sink.emit(Event{Type: EventEnded})

	if st := c.State(); st.CurrentTrackID != "b" {
		t.Errorf("CurrentTrackID = %q, want auto-advance to b", st.CurrentTrackID)
	}
}

func TestSinkErrorEventFansOut(t *testing.T) {
	sink := newFakeSink()
	c := NewController(&fakeResolver{}, sink)

	var reported *Error
	c.AddErrorListener(func(e *Error) { reported = e })

	sink.emit(Event{Type: EventError, Err: errors.New("stream stalled")})

	if reported == nil || reported.Code != CodePlayback || !reported.Retryable {
		t.Fatalf("reported = %+v, want a retryable playback error", reported)
	}
}

func TestListenerRemovalByHandle(t *testing.T) {
	sink := newFakeSink()
	c := NewController(&fakeResolver{}, sink)

	var first, second int
	h1 := c.AddListener(func(State) { first++ })
	c.AddListener(func(State) { second++ })

	sink.emit(Event{Type: EventPlay})
	c.RemoveListener(h1)
	c.RemoveListener(h1) // second removal is a no-op
	sink.emit(Event{Type: EventPause})

	if first != 1 {
		t.Errorf("removed listener fired %d times, want 1", first)
	}
	if second != 2 {
		t.Errorf("remaining listener fired %d times, want 2", second)
	}
}

func TestDestroyMakesControllerInert(t *testing.T) {
	sink := newFakeSink()
	c := NewController(&fakeResolver{}, sink)

	fired := 0
	c.AddListener(func(State) { fired++ })

	c.Destroy()
	c.Destroy() // idempotent

	if !sink.closed {
		t.Error("sink should be closed on destroy")
	}
	if sink.handler != nil {
		t.Error("sink handler should be detached on destroy")
	}

	c.Stop()
	if fired != 0 {
		t.Errorf("listener fired %d times after destroy, want 0", fired)
	}
}
