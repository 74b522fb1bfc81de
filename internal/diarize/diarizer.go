// Package diarize turns an ordered stream of recognition results into
// speaker-attributed transcript segments.
//
// Attribution is purely timing-based: a silence gap longer than the
// configured threshold between two final results is read as a turn change
// and flips the active speaker. Consecutive finals from the same speaker
// inside the threshold are merged into one segment. There is no audio-based
// voice identification and no N-party clustering — the model is exactly two
// parties, vet and owner.
//
// The Diarizer owns no I/O and holds no reference to the recognition
// transport. That is deliberate: the transport may be bounced by the
// platform mid-session, and attribution state (active speaker, last final
// instant) must survive the restart without the consumer noticing.
//
// All methods are safe for concurrent use.
package diarize

import (
	"sync"
	"time"

	"github.com/fzalvarez/vetscribe/pkg/recognition"
	"github.com/fzalvarez/vetscribe/pkg/types"
)

// DefaultSpeakerFlipGap is the silence threshold between two final results
// beyond which the active speaker is assumed to have changed.
const DefaultSpeakerFlipGap = 1500 * time.Millisecond

// Option is a functional option for a [Diarizer].
type Option func(*Diarizer)

// WithFlipGap overrides the speaker-flip silence threshold.
// Non-positive values are ignored.
func WithFlipGap(gap time.Duration) Option {
	return func(d *Diarizer) {
		if gap > 0 {
			d.flipGap = gap
		}
	}
}

// WithInitialSpeaker sets the speaker attributed to the first utterance.
// Defaults to [types.SpeakerVet] — the vet usually opens the consultation.
func WithInitialSpeaker(s types.Speaker) Option {
	return func(d *Diarizer) {
		if s.IsValid() {
			d.initial = s
			d.current = s
		}
	}
}

// Diarizer accumulates speaker-labelled segments from recognition results.
type Diarizer struct {
	mu sync.Mutex

	flipGap time.Duration
	initial types.Speaker

	segments  []types.Segment
	current   types.Speaker
	lastFinal time.Time
	interim   string
}

// New returns a Diarizer with the default flip gap and initial speaker.
func New(opts ...Option) *Diarizer {
	d := &Diarizer{
		flipGap: DefaultSpeakerFlipGap,
		initial: types.SpeakerVet,
		current: types.SpeakerVet,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Handle processes one recognition result. Results must be delivered in
// arrival order; the caller (the orchestrator's consume loop) guarantees
// this by reading them from a single channel.
func (d *Diarizer) Handle(res recognition.Result) {
	if res.Text == "" {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !res.IsFinal {
		d.interim = res.Text
		return
	}
	d.commit(res.Text, res.ArrivedAt)
}

// commit applies one final result. Must be called with d.mu held.
func (d *Diarizer) commit(text string, arrivedAt time.Time) {
	flipped := false
	if !d.lastFinal.IsZero() && arrivedAt.Sub(d.lastFinal) > d.flipGap {
		d.current = d.current.Other()
		flipped = true
	}

	n := len(d.segments)
	if n > 0 && d.segments[n-1].Speaker == d.current && !flipped {
		d.segments[n-1].Text += " " + text
	} else {
		d.segments = append(d.segments, types.Segment{
			Speaker:    d.current,
			Text:       text,
			CapturedAt: arrivedAt,
		})
	}

	d.lastFinal = arrivedAt
	d.interim = ""
}

// SwitchSpeaker force-flips the active speaker, e.g. from a user-pressed
// "switch speaker" control. It does not create a segment; it only changes
// the attribution of the next final result. The flip also resets the gap
// clock so the next final is not double-flipped by the timing heuristic.
func (d *Diarizer) SwitchSpeaker() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.current = d.current.Other()
	d.lastFinal = time.Time{}
}

// Flush commits any buffered interim text as a last segment, stamped at the
// given instant. Call it when the recognition stream is torn down
// mid-utterance so no spoken words are lost.
func (d *Diarizer) Flush(at time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.interim == "" {
		return
	}
	d.commit(d.interim, at)
}

// Segments returns a copy of the committed segment list in capture order.
func (d *Diarizer) Segments() []types.Segment {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]types.Segment, len(d.segments))
	copy(out, d.segments)
	return out
}

// Interim returns the in-progress utterance preview attributed to the
// current speaker. Text is empty when no utterance is open.
func (d *Diarizer) Interim() types.Interim {
	d.mu.Lock()
	defer d.mu.Unlock()
	return types.Interim{Speaker: d.current, Text: d.interim}
}

// CurrentSpeaker returns the party the next final result will be
// attributed to, absent a gap-induced flip.
func (d *Diarizer) CurrentSpeaker() types.Speaker {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// Restore seeds the Diarizer with previously committed segments, e.g. a
// transcript loaded from the crash-recovery store. The active speaker is set
// to the last restored segment's speaker and the gap clock is cleared, so the
// next final result continues that segment rather than triggering a
// gap-induced flip across the downtime.
func (d *Diarizer) Restore(segments []types.Segment) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.segments = make([]types.Segment, len(segments))
	copy(d.segments, segments)
	d.lastFinal = time.Time{}
	d.interim = ""
	if len(segments) > 0 && segments[len(segments)-1].Speaker.IsValid() {
		d.current = segments[len(segments)-1].Speaker
	} else {
		d.current = d.initial
	}
}

// Reset discards all segments and attribution state, returning the
// Diarizer to its initial-speaker configuration.
func (d *Diarizer) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.segments = nil
	d.lastFinal = time.Time{}
	d.interim = ""
	d.current = d.initial
}
