// Package file provides file-backed implementations of the audio capture and
// playback contracts. The recorder streams PCM out of a WAV file paced to
// real time, which stands in for a microphone during development and in
// fixture-driven sessions; the player tracks position against a wall clock.
package file

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fzalvarez/vetscribe/pkg/audio"
)

var (
	_ audio.Recorder  = (*Recorder)(nil)
	_ audio.Recording = (*recording)(nil)
	_ audio.Player    = (*Player)(nil)
)

const defaultFrameDuration = 100 * time.Millisecond

// Option configures a [Recorder].
type Option func(*Recorder)

// WithFrameDuration sets the size of each emitted frame. Default 100ms.
func WithFrameDuration(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.frameDur = d
		}
	}
}

// WithoutPacing emits frames as fast as the consumer accepts them instead of
// at real-time speed. Useful in tests and batch reprocessing.
func WithoutPacing() Option {
	return func(r *Recorder) {
		r.paced = false
	}
}

// Recorder replays a WAV file as if it were live microphone input. Each call
// to Start rereads the file, so one Recorder can serve many captures.
type Recorder struct {
	path     string
	frameDur time.Duration
	paced    bool
}

// NewRecorder creates a Recorder that captures from the WAV file at path.
// The file is not opened until Start.
func NewRecorder(path string, opts ...Option) *Recorder {
	r := &Recorder{
		path:     path,
		frameDur: defaultFrameDuration,
		paced:    true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start opens the source file and begins streaming frames. A file the
// process cannot read maps to [audio.ErrPermissionDenied] so callers treat
// it like a refused microphone.
func (r *Recorder) Start(ctx context.Context) (audio.Recording, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsPermission(err) {
			return nil, fmt.Errorf("file: open %s: %w", r.path, audio.ErrPermissionDenied)
		}
		return nil, fmt.Errorf("file: open capture source: %w", err)
	}

	pcm, sampleRate, channels, err := audio.DecodeWAV(data)
	if err != nil {
		return nil, fmt.Errorf("file: decode capture source: %w", err)
	}

	rec := &recording{
		pcm:        pcm,
		sampleRate: sampleRate,
		channels:   channels,
		frames:     make(chan audio.Frame),
		stopCh:     make(chan struct{}),
		emitDone:   make(chan struct{}),
	}
	go rec.emit(ctx, r.frameDur, r.paced)
	return rec, nil
}

type recording struct {
	pcm        []byte
	sampleRate int
	channels   int

	frames   chan audio.Frame
	stopCh   chan struct{}
	emitDone chan struct{}

	mu       sync.Mutex
	consumed int // bytes emitted so far

	stopOnce sync.Once
	clip     audio.Clip
	stopErr  error
}

// emit chunks the PCM into frames. When the source is exhausted the channel
// stays open so the capture behaves like a silent microphone until Stop.
func (rec *recording) emit(ctx context.Context, frameDur time.Duration, paced bool) {
	defer close(rec.emitDone)

	bytesPerFrame := int(float64(rec.sampleRate*rec.channels*2) * frameDur.Seconds())
	if bytesPerFrame < 2 {
		bytesPerFrame = 2
	}
	bytesPerFrame -= bytesPerFrame % 2

	var ticker *time.Ticker
	if paced {
		ticker = time.NewTicker(frameDur)
		defer ticker.Stop()
	}

	elapsed := time.Duration(0)
	for off := 0; off < len(rec.pcm); off += bytesPerFrame {
		if paced {
			select {
			case <-ticker.C:
			case <-rec.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}

		end := off + bytesPerFrame
		if end > len(rec.pcm) {
			end = len(rec.pcm)
		}
		frame := audio.Frame{Data: rec.pcm[off:end], Timestamp: elapsed}

		select {
		case rec.frames <- frame:
			rec.mu.Lock()
			rec.consumed = end
			rec.mu.Unlock()
		case <-rec.stopCh:
			return
		case <-ctx.Done():
			return
		}
		elapsed += frameDur
	}

	select {
	case <-rec.stopCh:
	case <-ctx.Done():
	}
}

func (rec *recording) Frames() <-chan audio.Frame { return rec.frames }

// Stop ends the capture and wraps the emitted PCM in a WAV container.
// Repeated calls return the same clip.
func (rec *recording) Stop() (audio.Clip, error) {
	rec.stopOnce.Do(func() {
		close(rec.stopCh)
		<-rec.emitDone
		close(rec.frames)

		rec.mu.Lock()
		captured := rec.pcm[:rec.consumed]
		rec.mu.Unlock()

		encoded, err := audio.EncodeWAV(captured, rec.sampleRate, rec.channels)
		if err != nil {
			rec.stopErr = fmt.Errorf("file: encode clip: %w", err)
			return
		}
		rec.clip = audio.Clip{
			Bytes:    encoded,
			MimeType: audio.MimeTypeWAV,
			Duration: audio.PCMDuration(len(captured), rec.sampleRate, rec.channels),
		}
	})
	return rec.clip, rec.stopErr
}

// Player is a clock-driven playback position tracker. It renders no sound;
// it exists so the transcript-sync layer has a real position source when no
// platform player is attached. Playback starts on Load and the position
// clamps at the clip's duration.
type Player struct {
	mu       sync.Mutex
	duration time.Duration
	base     time.Duration
	started  time.Time
	loaded   bool
}

// NewPlayer creates an empty Player. Position is zero until a clip is loaded.
func NewPlayer() *Player {
	return &Player{}
}

// Load replaces the current clip and restarts the position clock from zero.
func (p *Player) Load(clip audio.Clip) error {
	if len(clip.Bytes) == 0 {
		return fmt.Errorf("file: load empty clip")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.duration = clip.Duration
	p.base = 0
	p.started = time.Now()
	p.loaded = true
	return nil
}

// Position returns the elapsed playback position, clamped to the clip length.
func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.loaded {
		return 0
	}
	pos := p.base + time.Since(p.started)
	if pos > p.duration {
		pos = p.duration
	}
	return pos
}

// Seek jumps the position clock to offset.
func (p *Player) Seek(offset time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.loaded {
		return fmt.Errorf("file: seek with no clip loaded")
	}
	if offset < 0 || offset > p.duration {
		return fmt.Errorf("file: seek offset %v outside clip of %v", offset, p.duration)
	}
	p.base = offset
	p.started = time.Now()
	return nil
}
