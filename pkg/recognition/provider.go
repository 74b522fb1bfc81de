// Package recognition defines the Provider interface for streaming
// speech-recognition backends.
//
// A recognition provider wraps a real-time transcription service (e.g.,
// Deepgram) and exposes a uniform streaming interface. The central
// abstraction is Stream: once opened, a stream accepts raw PCM audio chunks
// and emits a single ordered sequence of Result values — low-latency interim
// guesses interleaved with authoritative finals. A single channel is used
// deliberately: the diarizer depends on strict arrival order across interim
// and final results, and one queue makes that ordering a structural
// guarantee rather than an emergent property.
//
// Implementations must be safe for concurrent use.
package recognition

import (
	"context"
	"time"
)

// Result is one recognition event delivered by a Stream.
type Result struct {
	// Text is the recognised speech content.
	Text string

	// IsFinal indicates whether this is a final (authoritative) result or
	// an interim guess that later results may revise.
	IsFinal bool

	// Confidence is the provider's confidence score (0.0–1.0). May be zero
	// if the provider does not report confidence.
	Confidence float64

	// ArrivedAt is the local wall-clock instant the result was received.
	// The diarizer's speaker-attribution heuristic is driven by gaps
	// between these instants.
	ArrivedAt time.Time
}

// StreamConfig describes the audio format for a new recognition stream.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz (e.g., 16000).
	SampleRate int

	// Channels is the number of audio channels. 1 = mono, which is what
	// most recognition providers require.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	// An empty string lets the provider auto-detect, if supported.
	Language string
}

// Stream represents an open recognition session.
//
// Callers must call Close when the stream is no longer needed; failing to do
// so may leak goroutines and network connections inside the provider.
// Implementations may transparently re-establish a dropped transport
// connection mid-stream — consumers must not assume a Results gap implies
// the stream ended. All methods must be safe for concurrent use.
type Stream interface {
	// SendAudio delivers a chunk of raw PCM audio bytes for transcription.
	// The chunk must match the SampleRate and Channels agreed in
	// StreamConfig. Calling SendAudio after Close returns an error.
	SendAudio(chunk []byte) error

	// Results returns the ordered event channel. Interim and final results
	// arrive interleaved, in recognition order. The channel is closed when
	// the stream ends.
	Results() <-chan Result

	// Close terminates the stream, flushes pending audio, and releases all
	// associated resources. After Close returns the Results channel will be
	// closed. Calling Close more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any streaming recognition backend.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// StartStream opens a new streaming transcription session. The returned
	// Stream is ready to accept audio immediately. The caller owns the
	// Stream and must call Close when done.
	StartStream(ctx context.Context, cfg StreamConfig) (Stream, error)
}
