package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fzalvarez/vetscribe/internal/report"
	"github.com/fzalvarez/vetscribe/internal/store"
	"github.com/fzalvarez/vetscribe/pkg/audio"
	"github.com/fzalvarez/vetscribe/pkg/types"
)

func TestRecover_EmptySlot(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.orch.Recover(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if f.orch.Phase() != PhaseIdle {
		t.Errorf("phase = %s", f.orch.Phase())
	}
}

func TestRecover_MidVisitRetainsTranscript(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	// Simulate the previous process dying mid-visit: the slot holds segments
	// and the recording start, nothing else.
	start := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	segs := []types.Segment{
		{Speaker: types.SpeakerVet, Text: "let's have a look", CapturedAt: start.Add(2 * time.Second)},
		{Speaker: types.SpeakerOwner, Text: "she's been limping", CapturedAt: start.Add(6 * time.Second)},
	}
	if err := f.store.Save(ctx, store.Update{Segments: &segs, RecordingStart: &start}); err != nil {
		t.Fatalf("seed slot: %v", err)
	}

	if err := f.orch.Recover(ctx); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if f.orch.Phase() != PhaseIdle {
		t.Fatalf("phase = %s, want idle", f.orch.Phase())
	}
	if got := f.orch.Segments(); len(got) != 2 || got[1].Text != "she's been limping" {
		t.Errorf("segments = %+v", got)
	}
	if !f.orch.RecordingStart().Equal(start) {
		t.Errorf("recording start = %s", f.orch.RecordingStart())
	}
	if f.orch.CurrentSpeaker() != types.SpeakerOwner {
		t.Errorf("current speaker = %s, want the last persisted speaker", f.orch.CurrentSpeaker())
	}

	// The visit can resume where it left off; a plain start would wipe it.
	if err := f.orch.Resume(ctx); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if len(f.orch.Segments()) != 2 {
		t.Error("resume discarded the recovered transcript")
	}
}

func TestRecover_CompletedSessionWithEdits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	base := report.Report{Diagnosis: report.Field{Value: "otitis externa", Confidence: 0.8}}
	edited := base
	edited.Diagnosis.Value = "otitis media"
	segs := []types.Segment{{Speaker: types.SpeakerVet, Text: "done"}}
	paths := []string{"diagnosis"}
	err := f.store.Save(ctx, store.Update{
		Segments:     &segs,
		Report:       &base,
		EditedReport: &edited,
		EditedPaths:  &paths,
	})
	if err != nil {
		t.Fatalf("seed slot: %v", err)
	}

	if err := f.orch.Recover(ctx); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if f.orch.Phase() != PhaseComplete {
		t.Fatalf("phase = %s, want complete", f.orch.Phase())
	}
	if got := f.orch.Report().Diagnosis.Value; got != "otitis media" {
		t.Errorf("edited diagnosis = %q", got)
	}
	if got := f.orch.OriginalReport().Diagnosis.Value; got != "otitis externa" {
		t.Errorf("original diagnosis = %q", got)
	}
}

func TestRecover_RestoresClip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	audioBytes := []byte("RIFFolddata")
	mime := audio.MimeTypeWAV
	segs := []types.Segment{{Speaker: types.SpeakerVet, Text: "hello"}}
	err := f.store.Save(ctx, store.Update{
		Segments:      &segs,
		AudioBytes:    &audioBytes,
		AudioMimeType: &mime,
	})
	if err != nil {
		t.Fatalf("seed slot: %v", err)
	}

	if err := f.orch.Recover(ctx); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if got := f.orch.Clip(); string(got.Bytes) != "RIFFolddata" || got.MimeType != audio.MimeTypeWAV {
		t.Errorf("clip = %+v", got)
	}
}

func TestLoadFixture_RunsAnalysis(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	start := time.Now().Add(-time.Minute)
	segs := []types.Segment{
		{Speaker: types.SpeakerOwner, Text: "Bella keeps scratching", CapturedAt: start.Add(time.Second)},
	}
	clip := audio.Clip{Bytes: []byte("RIFFdemo"), MimeType: audio.MimeTypeWAV}

	// Loading a fixture runs the same analysis leg a stopped recording would.
	rep, err := f.orch.LoadFixture(ctx, segs, clip, start)
	if err != nil {
		t.Fatalf("load fixture: %v", err)
	}
	if rep.PatientName.Value != "Bella" || f.orch.Phase() != PhaseComplete {
		t.Errorf("report = %+v, phase = %s", rep, f.orch.Phase())
	}
	if f.llm.CallCount() != 1 {
		t.Errorf("provider calls = %d, want 1", f.llm.CallCount())
	}
}

func TestLoadFixture_AnalysisFailureRetained(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.llm.Err = errors.New("upstream 500")

	segs := []types.Segment{{Speaker: types.SpeakerVet, Text: "some words"}}
	if _, err := f.orch.LoadFixture(ctx, segs, audio.Clip{}, time.Time{}); err == nil {
		t.Fatal("expected analysis error")
	}
	if f.orch.Phase() != PhaseComplete {
		t.Errorf("phase = %s, want complete", f.orch.Phase())
	}
	if f.orch.LastError() == nil {
		t.Error("failure not retained")
	}
}

func TestLoadFixture_RejectsEmptyTranscript(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.orch.LoadFixture(context.Background(), nil, audio.Clip{}, time.Time{})
	if !errors.Is(err, ErrNoTranscript) {
		t.Errorf("err = %v, want ErrNoTranscript", err)
	}
}

func TestDiscard_ClearsEverything(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	if err := f.orch.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.stream.Emit(final("some words", time.Now()))
	settle(t, "segment committed", func() bool { return len(f.orch.Segments()) == 1 })
	if _, err := f.orch.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	if err := f.orch.Discard(ctx); err != nil {
		t.Fatalf("discard: %v", err)
	}
	if f.orch.Phase() != PhaseIdle {
		t.Errorf("phase = %s", f.orch.Phase())
	}
	if len(f.orch.Segments()) != 0 || f.orch.Report() != nil {
		t.Error("discard left session state behind")
	}
	if _, err := f.store.Load(ctx); !errors.Is(err, store.ErrNoSession) {
		t.Errorf("slot err = %v, want ErrNoSession", err)
	}
}

func TestDiscard_RefusedWhileRecording(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	if err := f.orch.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := f.orch.Discard(ctx); err == nil {
		t.Error("expected error while recording")
	}
}
