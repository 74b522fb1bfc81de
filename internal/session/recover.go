package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fzalvarez/vetscribe/internal/report"
	"github.com/fzalvarez/vetscribe/internal/store"
	"github.com/fzalvarez/vetscribe/pkg/audio"
	"github.com/fzalvarez/vetscribe/pkg/types"
)

// Recover restores the orchestrator from the persisted slot after a crash.
// A session with a report lands in Complete, edits and all; a session that
// died mid-visit lands in Idle with the transcript retained, ready for the
// recording to continue via [Orchestrator.Resume] or the analysis to be
// (re)run. An empty slot is not an error. Valid only from Idle before any
// recording has started.
func (o *Orchestrator) Recover(ctx context.Context) error {
	o.mu.Lock()
	if o.phase != PhaseIdle {
		o.mu.Unlock()
		return fmt.Errorf("%w: phase %s", ErrNotIdle, o.phase)
	}
	o.mu.Unlock()

	if o.store == nil {
		return nil
	}
	sess, err := o.store.Load(ctx)
	if errors.Is(err, store.ErrNoSession) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("session: recover: %w", err)
	}

	o.diar.Restore(sess.Segments)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.recordingStart = sess.RecordingStart
	if len(sess.AudioBytes) > 0 {
		o.clip = audio.Clip{Bytes: sess.AudioBytes, MimeType: sess.AudioMimeType}
	}

	if sess.Report == nil {
		o.log.Info("recovered unfinished session",
			"segments", len(sess.Segments),
			"saved_at", sess.SavedAt)
		return nil
	}

	edited := *sess.Report
	if sess.EditedReport != nil {
		edited = *sess.EditedReport
	}
	overlay, err := report.Restore(*sess.Report, edited, sess.EditedPaths)
	if err != nil {
		return fmt.Errorf("session: recover: %w", err)
	}
	o.overlay = overlay
	o.phase = PhaseComplete
	o.log.Info("recovered completed session",
		"segments", len(sess.Segments),
		"edited_fields", len(sess.EditedPaths),
		"saved_at", sess.SavedAt)
	return nil
}

// LoadFixture seeds the orchestrator with a prepared transcript and clip,
// bypassing capture, then runs the same analysis leg a stopped recording
// would. Meant for development and demos: the seeded session behaves
// exactly like one whose recording just stopped, playback included. Valid
// only from Idle.
func (o *Orchestrator) LoadFixture(ctx context.Context, segments []types.Segment, clip audio.Clip, recordingStart time.Time) (*report.Report, error) {
	o.mu.Lock()
	if o.phase != PhaseIdle {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: phase %s", ErrNotIdle, o.phase)
	}
	o.mu.Unlock()

	if len(segments) == 0 {
		return nil, ErrNoTranscript
	}

	o.diar.Restore(segments)
	o.mu.Lock()
	o.recordingStart = recordingStart
	o.clip = clip
	o.mu.Unlock()

	if o.store != nil {
		u := store.Update{
			Segments:      &segments,
			AudioBytes:    &clip.Bytes,
			AudioMimeType: &clip.MimeType,
		}
		if !recordingStart.IsZero() {
			u.RecordingStart = &recordingStart
		}
		if err := o.store.Save(ctx, u); err != nil {
			return nil, fmt.Errorf("session: load fixture: %w", err)
		}
	}
	o.log.Info("fixture loaded", "segments", len(segments))

	o.mu.Lock()
	o.phase = PhaseProcessing
	o.mu.Unlock()
	return o.finishAnalysis(ctx)
}

// Discard throws away the current session: transcript, audio, report, and
// the persisted slot. The orchestrator returns to a fresh Idle. Valid from
// Idle and Complete; a running recording must be stopped first.
func (o *Orchestrator) Discard(ctx context.Context) error {
	o.mu.Lock()
	if o.phase == PhaseRecording || o.phase == PhaseProcessing {
		o.mu.Unlock()
		return fmt.Errorf("session: discard: phase %s", o.phase)
	}
	o.phase = PhaseIdle
	o.mu.Unlock()

	if err := o.wipe(ctx); err != nil {
		return fmt.Errorf("session: discard: %w", err)
	}
	o.log.Info("session discarded")
	return nil
}
