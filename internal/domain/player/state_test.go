package player

import (
	"testing"

	"github.com/lbraun/chorale/internal/domain/catalog"
)

func TestStateSnapshotCopiesQueue(t *testing.T) {
	s := newState()
	s.setQueue([]catalog.Track{{ID: "a"}, {ID: "b"}}, 0)

	snap := s.Snapshot()
	snap.Queue[0].ID = "mutated"

	if got := s.Snapshot().Queue[0].ID; got != "a" {
		t.Errorf("queue entry = %q, want %q", got, "a")
	}
}

func TestStateStartsIdle(t *testing.T) {
	s := newState()
	snap := s.Snapshot()

	if snap.CurrentIndex != NoTrack {
		t.Errorf("CurrentIndex = %d, want %d", snap.CurrentIndex, NoTrack)
	}
	if snap.IsPlaying {
		t.Error("expected idle state to not be playing")
	}
	if snap.CurrentTrackID != "" {
		t.Errorf("CurrentTrackID = %q, want empty", snap.CurrentTrackID)
	}
}

func TestStateIndexOf(t *testing.T) {
	s := newState()
	s.setQueue([]catalog.Track{{ID: "a"}, {ID: "b"}, {ID: "c"}}, 0)

	tests := []struct {
		trackID string
		want    int
	}{
		{"a", 0},
		{"c", 2},
		{"missing", NoTrack},
	}
	for _, tt := range tests {
		if got := s.indexOf(tt.trackID); got != tt.want {
			t.Errorf("indexOf(%q) = %d, want %d", tt.trackID, got, tt.want)
		}
	}
}

func TestStateClearCurrent(t *testing.T) {
	s := newState()
	s.setQueue([]catalog.Track{{ID: "a"}}, 0)
	s.setCurrent("a", 0)
	s.setProgress(42)

	s.clearCurrent()

	snap := s.Snapshot()
	if snap.CurrentTrackID != "" || snap.CurrentIndex != NoTrack || snap.Progress != 0 {
		t.Errorf("after clearCurrent: trackID=%q index=%d progress=%v",
			snap.CurrentTrackID, snap.CurrentIndex, snap.Progress)
	}
	if len(snap.Queue) != 1 {
		t.Errorf("clearCurrent should keep the queue, got len %d", len(snap.Queue))
	}
}
