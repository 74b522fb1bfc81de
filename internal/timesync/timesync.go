// Package timesync maps transcript segments onto positions in the recorded
// audio track, and back.
//
// Everything here is a pure function over a segment slice. Offsets are cheap
// to recompute, so callers rerun ComputeOffsets whenever the segment list or
// the recording start changes instead of maintaining incremental state.
package timesync

import (
	"fmt"
	"time"

	"github.com/fzalvarez/vetscribe/pkg/types"
)

// ComputeOffsets returns a copy of segments with OffsetSeconds filled in
// relative to recordingStart. Segments captured before recordingStart get a
// negative offset (possible when the recognition stream warms up faster than
// the recorder); callers treat those as position zero when seeking.
//
// A zero recordingStart means no recording exists yet: the copy is returned
// with all offsets nil.
func ComputeOffsets(segments []types.Segment, recordingStart time.Time) []types.Segment {
	out := make([]types.Segment, len(segments))
	copy(out, segments)

	if recordingStart.IsZero() {
		for i := range out {
			out[i].OffsetSeconds = nil
		}
		return out
	}

	for i := range out {
		secs := out[i].CapturedAt.Sub(recordingStart).Seconds()
		out[i].OffsetSeconds = &secs
	}
	return out
}

// ActiveSegment returns the index of the segment the playback position
// currently falls in: the greatest index whose offset is ≤ playbackSeconds.
// Returns -1 when no segment qualifies — before the first segment, or when
// offsets have not been computed.
//
// The scan runs from the end of the list; segment counts are tens per
// session, so this is not worth an index.
func ActiveSegment(segments []types.Segment, playbackSeconds float64) int {
	for i := len(segments) - 1; i >= 0; i-- {
		if segments[i].OffsetSeconds == nil {
			continue
		}
		if *segments[i].OffsetSeconds <= playbackSeconds {
			return i
		}
	}
	return -1
}

// SeekOffset returns the playback position for jumping to the segment at
// index. The result is clamped at zero so pre-recording segments seek to the
// start of the track. This is a one-shot request: after the jump, segment
// highlighting is driven by ActiveSegment over the real playback position
// again, not by the seek target.
func SeekOffset(segments []types.Segment, index int) (float64, error) {
	if index < 0 || index >= len(segments) {
		return 0, fmt.Errorf("timesync: segment index %d out of range [0,%d)", index, len(segments))
	}
	if segments[index].OffsetSeconds == nil {
		return 0, fmt.Errorf("timesync: segment %d has no offset; recording start unknown", index)
	}
	offset := *segments[index].OffsetSeconds
	if offset < 0 {
		offset = 0
	}
	return offset, nil
}
