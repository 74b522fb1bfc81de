// Package mock provides test doubles for the audio package interfaces.
//
// Recorder hands out scripted Recording handles; Player records loads and
// seeks and lets tests control the reported playback position.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/fzalvarez/vetscribe/pkg/audio"
)

// Recorder is a mock implementation of audio.Recorder.
type Recorder struct {
	mu sync.Mutex

	// StartErr, if non-nil, is returned by Start. Use
	// audio.ErrPermissionDenied to simulate a refused microphone.
	StartErr error

	// Clip is the clip returned when a recording started by this recorder
	// is stopped.
	Clip audio.Clip

	// StartCallCount is the number of times Start was called.
	StartCallCount int

	// recordings tracks handles issued by Start.
	recordings []*Recording
}

// Start records the call and returns a new Recording, or StartErr.
func (r *Recorder) Start(_ context.Context) (audio.Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.StartCallCount++
	if r.StartErr != nil {
		return nil, r.StartErr
	}
	rec := &Recording{
		clip:   r.Clip,
		frames: make(chan audio.Frame, 64),
	}
	r.recordings = append(r.recordings, rec)
	return rec, nil
}

// Last returns the most recently issued Recording, or nil.
func (r *Recorder) Last() *Recording {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.recordings) == 0 {
		return nil
	}
	return r.recordings[len(r.recordings)-1]
}

var _ audio.Recorder = (*Recorder)(nil)

// Recording is a mock implementation of audio.Recording.
type Recording struct {
	mu sync.Mutex

	clip    audio.Clip
	frames  chan audio.Frame
	stopped bool

	// StopErr, if non-nil, is returned by the first Stop call.
	StopErr error

	// StopCallCount is the number of times Stop was called.
	StopCallCount int
}

// Push delivers a frame to the recording consumer.
func (r *Recording) Push(f audio.Frame) {
	r.frames <- f
}

// Frames returns the mock's frame channel.
func (r *Recording) Frames() <-chan audio.Frame { return r.frames }

// Stop closes the frame channel and returns the scripted clip.
func (r *Recording) Stop() (audio.Clip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.StopCallCount++
	if r.stopped {
		return r.clip, nil
	}
	r.stopped = true
	close(r.frames)
	return r.clip, r.StopErr
}

var _ audio.Recording = (*Recording)(nil)

// LoadCall records a single invocation of Player.Load.
type LoadCall struct {
	Clip audio.Clip
}

// SeekCall records a single invocation of Player.Seek.
type SeekCall struct {
	Offset time.Duration
}

// Player is a mock implementation of audio.Player.
type Player struct {
	mu sync.Mutex

	// Pos is the position returned by Position. Tests set it directly.
	Pos time.Duration

	// LoadErr, if non-nil, is returned by Load.
	LoadErr error

	// SeekErr, if non-nil, is returned by Seek.
	SeekErr error

	// LoadCalls records every call to Load in order.
	LoadCalls []LoadCall

	// SeekCalls records every call to Seek in order.
	SeekCalls []SeekCall
}

// Load records the call and returns LoadErr.
func (p *Player) Load(clip audio.Clip) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.LoadCalls = append(p.LoadCalls, LoadCall{Clip: clip})
	return p.LoadErr
}

// Position returns the scripted position.
func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Pos
}

// Seek records the call, moves the scripted position, and returns SeekErr.
func (p *Player) Seek(offset time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SeekCalls = append(p.SeekCalls, SeekCall{Offset: offset})
	if p.SeekErr == nil {
		p.Pos = offset
	}
	return p.SeekErr
}

var _ audio.Player = (*Player)(nil)
