package session

import (
	"errors"
	"time"

	"github.com/fzalvarez/vetscribe/internal/timesync"
	"github.com/fzalvarez/vetscribe/pkg/types"
)

// ErrNoPlayer is returned by playback methods when no player was configured.
var ErrNoPlayer = errors.New("session: no player configured")

// ErrNoClip is returned when playback is requested before any audio exists.
var ErrNoClip = errors.New("session: no captured audio")

// LoadPlayback hands the captured clip to the player for review.
func (o *Orchestrator) LoadPlayback() error {
	if o.player == nil {
		return ErrNoPlayer
	}
	o.mu.Lock()
	clip := o.clip
	o.mu.Unlock()
	if len(clip.Bytes) == 0 {
		return ErrNoClip
	}
	return o.player.Load(clip)
}

// offsetSegments returns the transcript with playback offsets computed
// against the recording start.
func (o *Orchestrator) offsetSegments() []types.Segment {
	o.mu.Lock()
	start := o.recordingStart
	o.mu.Unlock()
	return timesync.ComputeOffsets(o.diar.Segments(), start)
}

// OffsetSegments returns the transcript annotated with playback offsets, for
// rendering a seekable transcript view.
func (o *Orchestrator) OffsetSegments() []types.Segment {
	return o.offsetSegments()
}

// ActiveSegmentIndex returns the index of the segment under the player's
// current position, or -1 when playback is before the first segment or no
// player is configured.
func (o *Orchestrator) ActiveSegmentIndex() int {
	if o.player == nil {
		return -1
	}
	pos := o.player.Position()
	return timesync.ActiveSegment(o.offsetSegments(), pos.Seconds())
}

// SeekToSegment jumps playback to the start of the transcript segment at
// index. One tap, one seek; the player's position then drives highlighting
// through [Orchestrator.ActiveSegmentIndex].
func (o *Orchestrator) SeekToSegment(index int) error {
	if o.player == nil {
		return ErrNoPlayer
	}
	offset, err := timesync.SeekOffset(o.offsetSegments(), index)
	if err != nil {
		return err
	}
	return o.player.Seek(time.Duration(offset * float64(time.Second)))
}
