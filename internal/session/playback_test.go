package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fzalvarez/vetscribe/pkg/audio"
	"github.com/fzalvarez/vetscribe/pkg/types"
)

// seedPlayback loads a three-segment fixture at 2s, 5s, and 9s into the
// recording.
func seedPlayback(t *testing.T, f *fixture) time.Time {
	t.Helper()
	start := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	segs := []types.Segment{
		{Speaker: types.SpeakerVet, Text: "first", CapturedAt: start.Add(2 * time.Second)},
		{Speaker: types.SpeakerOwner, Text: "second", CapturedAt: start.Add(5 * time.Second)},
		{Speaker: types.SpeakerVet, Text: "third", CapturedAt: start.Add(9 * time.Second)},
	}
	clip := audio.Clip{Bytes: []byte("RIFFplayme"), MimeType: audio.MimeTypeWAV, Duration: 12 * time.Second}
	if _, err := f.orch.LoadFixture(context.Background(), segs, clip, start); err != nil {
		t.Fatalf("load fixture: %v", err)
	}
	return start
}

func TestLoadPlayback(t *testing.T) {
	f := newFixture(t, nil)
	seedPlayback(t, f)

	if err := f.orch.LoadPlayback(); err != nil {
		t.Fatalf("load playback: %v", err)
	}
	if len(f.player.LoadCalls) != 1 || string(f.player.LoadCalls[0].Clip.Bytes) != "RIFFplayme" {
		t.Errorf("load calls = %+v", f.player.LoadCalls)
	}
}

func TestLoadPlayback_NoClip(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.orch.LoadPlayback(); !errors.Is(err, ErrNoClip) {
		t.Errorf("err = %v, want ErrNoClip", err)
	}
}

func TestLoadPlayback_NoPlayer(t *testing.T) {
	f := newFixture(t, func(cfg *Config) { cfg.Player = nil })
	seedPlayback(t, f)
	if err := f.orch.LoadPlayback(); !errors.Is(err, ErrNoPlayer) {
		t.Errorf("err = %v, want ErrNoPlayer", err)
	}
}

func TestOffsetSegments(t *testing.T) {
	f := newFixture(t, nil)
	seedPlayback(t, f)

	segs := f.orch.OffsetSegments()
	if len(segs) != 3 {
		t.Fatalf("segments = %d", len(segs))
	}
	want := []float64{2, 5, 9}
	for i, w := range want {
		if segs[i].OffsetSeconds == nil || *segs[i].OffsetSeconds != w {
			t.Errorf("segment %d offset = %v, want %v", i, segs[i].OffsetSeconds, w)
		}
	}
}

func TestActiveSegmentIndex_FollowsPosition(t *testing.T) {
	f := newFixture(t, nil)
	seedPlayback(t, f)

	cases := []struct {
		pos  time.Duration
		want int
	}{
		{0, -1},
		{2 * time.Second, 0},
		{4500 * time.Millisecond, 0},
		{5 * time.Second, 1},
		{20 * time.Second, 2},
	}
	for _, c := range cases {
		f.player.Pos = c.pos
		if got := f.orch.ActiveSegmentIndex(); got != c.want {
			t.Errorf("position %s: active = %d, want %d", c.pos, got, c.want)
		}
	}
}

func TestSeekToSegment(t *testing.T) {
	f := newFixture(t, nil)
	seedPlayback(t, f)

	if err := f.orch.SeekToSegment(1); err != nil {
		t.Fatalf("seek: %v", err)
	}
	if len(f.player.SeekCalls) != 1 || f.player.SeekCalls[0].Offset != 5*time.Second {
		t.Errorf("seek calls = %+v", f.player.SeekCalls)
	}
	// The seek is one-shot: position now drives highlighting.
	if got := f.orch.ActiveSegmentIndex(); got != 1 {
		t.Errorf("active after seek = %d", got)
	}
}

func TestSeekToSegment_BadIndex(t *testing.T) {
	f := newFixture(t, nil)
	seedPlayback(t, f)

	if err := f.orch.SeekToSegment(7); err == nil {
		t.Error("expected error for out-of-range index")
	}
	if len(f.player.SeekCalls) != 0 {
		t.Error("player seeked despite bad index")
	}
}
