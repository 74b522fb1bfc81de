// Package audio defines the capture and playback collaborator contracts used
// by the VetScribe session orchestrator.
//
// The two primary abstractions are:
//
//   - [Recorder] — starts a capture and returns a live [Recording] handle.
//   - [Player] — accepts a finished [Clip] and exposes the playback position
//     the time-sync layer maps transcript segments against.
//
// Implementations are platform adapters (microphone backends, embedded UI
// players). The interfaces are intentionally narrow to keep the orchestrator
// decoupled from platform details.
//
// This package lives under pkg/ because external code (alternative capture
// backends) is expected to implement [Recorder] and [Player].
package audio

import (
	"context"
	"errors"
	"time"
)

// ErrPermissionDenied is returned by Recorder.Start when the platform
// refuses microphone access. It is fatal to the current recording attempt
// but recoverable: the user can grant access and start again.
var ErrPermissionDenied = errors.New("audio: capture permission denied")

// MimeTypeWAV is the container format produced by [EncodeWAV].
const MimeTypeWAV = "audio/wav"

// Frame is a single chunk of captured PCM audio.
type Frame struct {
	// Data is 16-bit little-endian PCM.
	Data []byte

	// Timestamp marks when this frame was captured, relative to the start
	// of the recording.
	Timestamp time.Duration
}

// Clip is a finished capture: the full audio track plus the metadata the
// playback collaborator needs to load it.
type Clip struct {
	// Bytes is the encoded audio (typically a WAV container around the
	// captured PCM).
	Bytes []byte

	// MimeType identifies the container format (e.g., "audio/wav").
	MimeType string

	// Duration is the total length of the capture.
	Duration time.Duration
}

// Recording is a live capture handle returned by [Recorder.Start].
//
// Implementations must be safe for concurrent use.
type Recording interface {
	// Frames returns the live stream of captured PCM frames. The channel is
	// closed after Stop. Consumers that feed a recognition stream read from
	// here; consumers that only need the finished clip may ignore it.
	Frames() <-chan Frame

	// Stop ends the capture and returns the finished clip. Calling Stop
	// more than once returns the same clip.
	Stop() (Clip, error)
}

// Recorder is the audio-capture collaborator contract.
//
// Implementations must be safe for concurrent use.
type Recorder interface {
	// Start begins a new capture. Returns [ErrPermissionDenied] (possibly
	// wrapped) when microphone access is refused; any other error indicates
	// the device could not be opened.
	Start(ctx context.Context) (Recording, error)
}

// Player is the audio-playback collaborator contract. The time-sync layer's
// consumer drives segment highlighting from Position and jumps via Seek;
// time-sync itself never touches the player.
//
// Implementations must be safe for concurrent use.
type Player interface {
	// Load replaces the player's current clip.
	Load(clip Clip) error

	// Position returns the current playback position within the loaded clip.
	Position() time.Duration

	// Seek moves playback to the given offset. One-shot: after the jump,
	// Position reflects real playback progress again.
	Seek(offset time.Duration) error
}
