// Package types defines the shared types used across all VetScribe packages.
//
// These types form the lingua franca between the recognition stream, the
// diarizer, the time-sync layer, and the session orchestrator. They are
// intentionally minimal — each package defines its own domain types, but
// cross-cutting data structures live here to avoid circular imports.
package types

import "time"

// Speaker identifies one of the two parties in a consultation.
// The diarizer attributes every transcript segment to exactly one speaker.
type Speaker string

const (
	// SpeakerVet is the veterinarian conducting the consultation.
	SpeakerVet Speaker = "vet"

	// SpeakerOwner is the pet owner.
	SpeakerOwner Speaker = "owner"
)

// IsValid reports whether s is a recognised speaker label.
func (s Speaker) IsValid() bool {
	return s == SpeakerVet || s == SpeakerOwner
}

// Other returns the opposite party. Calling Other on an invalid speaker
// returns SpeakerVet.
func (s Speaker) Other() Speaker {
	if s == SpeakerVet {
		return SpeakerOwner
	}
	return SpeakerVet
}

// String returns the human-readable speaker label.
func (s Speaker) String() string { return string(s) }

// Segment is one attributed, time-stamped span of transcript text.
//
// Segments are immutable once committed, with one exception: when two final
// recognition results from the same speaker arrive close together, the later
// text is merged into the existing segment (space-joined) rather than
// starting a new one.
type Segment struct {
	// Speaker is the party this segment is attributed to.
	Speaker Speaker `json:"speaker"`

	// Text is the transcript text. May grow through same-speaker merges.
	Text string `json:"text"`

	// CapturedAt is the absolute arrival time of the first final result
	// committed into this segment.
	CapturedAt time.Time `json:"captured_at"`

	// OffsetSeconds is the segment's position within the recorded audio
	// track, derived from CapturedAt once a recording-start instant is
	// known. Nil while no recording start has been established.
	OffsetSeconds *float64 `json:"offset_seconds,omitempty"`
}

// Interim is the transient preview of the utterance currently being spoken.
// It is never committed to the segment list; a fresh final result replaces it.
type Interim struct {
	// Speaker is the party the in-progress utterance is attributed to.
	Speaker Speaker `json:"speaker"`

	// Text is the provisional recognition text.
	Text string `json:"text"`
}
