// Package mock provides test doubles for the recognition package interfaces.
//
// Use Provider to verify that the caller starts streams with the expected
// StreamConfig. Use Stream to feed controlled Result values and inspect
// which audio chunks were delivered.
//
// Example:
//
//	st := mock.NewStream()
//	p := &mock.Provider{Stream: st}
//	handle, _ := p.StartStream(ctx, cfg)
//	st.Emit(recognition.Result{Text: "hello", IsFinal: true})
package mock

import (
	"context"
	"sync"

	"github.com/fzalvarez/vetscribe/pkg/recognition"
)

// StartStreamCall records a single invocation of Provider.StartStream.
type StartStreamCall struct {
	// Ctx is the context passed to StartStream.
	Ctx context.Context
	// Cfg is the StreamConfig passed to StartStream.
	Cfg recognition.StreamConfig
}

// Provider is a mock implementation of recognition.Provider.
type Provider struct {
	mu sync.Mutex

	// Stream is returned by StartStream. If nil, StartStream returns a new
	// default Stream with a buffered results channel.
	Stream recognition.Stream

	// StartStreamErr, if non-nil, is returned as the error from StartStream.
	StartStreamErr error

	// StartStreamCalls records every call to StartStream.
	StartStreamCalls []StartStreamCall
}

// StartStream records the call and returns Stream, StartStreamErr.
func (p *Provider) StartStream(ctx context.Context, cfg recognition.StreamConfig) (recognition.Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = append(p.StartStreamCalls, StartStreamCall{Ctx: ctx, Cfg: cfg})
	if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	if p.Stream != nil {
		return p.Stream, nil
	}
	return NewStream(), nil
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = nil
}

// Ensure Provider implements recognition.Provider at compile time.
var _ recognition.Provider = (*Provider)(nil)

// SendAudioCall records a single invocation of Stream.SendAudio.
type SendAudioCall struct {
	// Chunk is a copy of the audio bytes that were passed to SendAudio.
	Chunk []byte
}

// Stream is a mock implementation of recognition.Stream. Tests push Result
// values through Emit and close the stream with Close when done.
type Stream struct {
	mu sync.Mutex

	results chan recognition.Result
	closed  bool

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// CloseErr, if non-nil, is returned by the first Close call.
	CloseErr error

	// SendAudioCalls records every call to SendAudio in order.
	SendAudioCalls []SendAudioCall

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// NewStream returns a Stream with a buffered results channel.
func NewStream() *Stream {
	return &Stream{results: make(chan recognition.Result, 64)}
}

// Emit delivers a Result to the stream consumer. Emit after Close panics,
// matching the real provider invariant that no results follow Close.
func (s *Stream) Emit(res recognition.Result) {
	s.results <- res
}

// SendAudio records the call and returns SendAudioErr.
func (s *Stream) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.SendAudioCalls = append(s.SendAudioCalls, SendAudioCall{Chunk: cp})
	return s.SendAudioErr
}

// Results returns the mock's results channel.
func (s *Stream) Results() <-chan recognition.Result { return s.results }

// Close closes the results channel. Safe to call multiple times.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.results)
	return s.CloseErr
}

// Ensure Stream implements recognition.Stream at compile time.
var _ recognition.Stream = (*Stream)(nil)
