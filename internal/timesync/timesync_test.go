package timesync

import (
	"testing"
	"time"

	"github.com/fzalvarez/vetscribe/pkg/types"
)

var start = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func segmentsAt(offsets ...time.Duration) []types.Segment {
	segs := make([]types.Segment, len(offsets))
	for i, off := range offsets {
		segs[i] = types.Segment{
			Speaker:    types.SpeakerVet,
			Text:       "segment",
			CapturedAt: start.Add(off),
		}
	}
	return segs
}

func TestComputeOffsets(t *testing.T) {
	segs := segmentsAt(0, 2500*time.Millisecond, 10*time.Second)

	out := ComputeOffsets(segs, start)

	want := []float64{0, 2.5, 10}
	for i, w := range want {
		if out[i].OffsetSeconds == nil {
			t.Fatalf("segment %d: offset not set", i)
		}
		if got := *out[i].OffsetSeconds; got != w {
			t.Errorf("segment %d: offset = %v, want %v", i, got, w)
		}
	}

	// Input slice untouched.
	if segs[0].OffsetSeconds != nil {
		t.Error("ComputeOffsets must not mutate its input")
	}
}

func TestComputeOffsets_ZeroStart(t *testing.T) {
	out := ComputeOffsets(segmentsAt(0, time.Second), time.Time{})
	for i, s := range out {
		if s.OffsetSeconds != nil {
			t.Errorf("segment %d: expected nil offset without a recording start", i)
		}
	}
}

func TestComputeOffsets_PreRecordingSegment(t *testing.T) {
	segs := []types.Segment{{CapturedAt: start.Add(-500 * time.Millisecond)}}
	out := ComputeOffsets(segs, start)
	if out[0].OffsetSeconds == nil || *out[0].OffsetSeconds != -0.5 {
		t.Errorf("expected -0.5 offset for pre-recording segment, got %v", out[0].OffsetSeconds)
	}
}

func TestActiveSegment(t *testing.T) {
	segs := ComputeOffsets(segmentsAt(0, 3*time.Second, 8*time.Second), start)

	cases := []struct {
		playback float64
		want     int
	}{
		{-1, -1},
		{0, 0},
		{2.9, 0},
		{3, 1},
		{7.99, 1},
		{8, 2},
		{600, 2},
	}
	for _, c := range cases {
		if got := ActiveSegment(segs, c.playback); got != c.want {
			t.Errorf("ActiveSegment(%v) = %d, want %d", c.playback, got, c.want)
		}
	}
}

func TestActiveSegment_MonotonicOverPlayback(t *testing.T) {
	segs := ComputeOffsets(segmentsAt(time.Second, 4*time.Second, 9*time.Second), start)

	prev := -1
	for p := 0.0; p <= 12.0; p += 0.25 {
		got := ActiveSegment(segs, p)
		if got < prev {
			t.Fatalf("ActiveSegment regressed from %d to %d at playback %v", prev, got, p)
		}
		prev = got
	}
}

func TestActiveSegment_NoOffsets(t *testing.T) {
	if got := ActiveSegment(segmentsAt(0, time.Second), 5); got != -1 {
		t.Errorf("expected -1 without offsets, got %d", got)
	}
	if got := ActiveSegment(nil, 5); got != -1 {
		t.Errorf("expected -1 for empty list, got %d", got)
	}
}

func TestSeekOffset(t *testing.T) {
	segs := ComputeOffsets(segmentsAt(0, 6*time.Second), start)

	off, err := SeekOffset(segs, 1)
	if err != nil {
		t.Fatalf("SeekOffset: %v", err)
	}
	if off != 6 {
		t.Errorf("seek offset = %v, want 6", off)
	}
}

func TestSeekOffset_Errors(t *testing.T) {
	segs := ComputeOffsets(segmentsAt(0), start)

	if _, err := SeekOffset(segs, -1); err == nil {
		t.Error("expected error for negative index")
	}
	if _, err := SeekOffset(segs, 1); err == nil {
		t.Error("expected error for out-of-range index")
	}
	if _, err := SeekOffset(segmentsAt(0), 0); err == nil {
		t.Error("expected error when offsets are absent")
	}
}

func TestSeekOffset_ClampsNegative(t *testing.T) {
	segs := ComputeOffsets([]types.Segment{{CapturedAt: start.Add(-2 * time.Second)}}, start)
	off, err := SeekOffset(segs, 0)
	if err != nil {
		t.Fatalf("SeekOffset: %v", err)
	}
	if off != 0 {
		t.Errorf("pre-recording seek = %v, want clamp to 0", off)
	}
}
