package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/fzalvarez/vetscribe/internal/report"
	"github.com/fzalvarez/vetscribe/pkg/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "session.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLoadEmptySlot(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Load(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Fatalf("err = %v, want ErrNoSession", err)
	}
}

func TestSaveThenLoad(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	start := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	segments := []types.Segment{
		{Speaker: types.SpeakerVet, Text: "hello", CapturedAt: start.Add(time.Second)},
	}
	if err := s.Save(ctx, Update{Segments: &segments, RecordingStart: &start}); err != nil {
		t.Fatalf("save: %v", err)
	}

	sess, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(sess.Segments) != 1 || sess.Segments[0].Text != "hello" {
		t.Errorf("segments = %+v", sess.Segments)
	}
	if !sess.RecordingStart.Equal(start) {
		t.Errorf("recording start = %s", sess.RecordingStart)
	}
	if sess.SavedAt.IsZero() {
		t.Error("SavedAt not stamped")
	}
}

func TestSaveMergesPartialUpdates(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	segments := []types.Segment{{Speaker: types.SpeakerOwner, Text: "scratching"}}
	if err := s.Save(ctx, Update{Segments: &segments}); err != nil {
		t.Fatalf("save segments: %v", err)
	}

	audio := []byte("RIFFdata")
	mime := "audio/wav"
	if err := s.Save(ctx, Update{AudioBytes: &audio, AudioMimeType: &mime}); err != nil {
		t.Fatalf("save audio: %v", err)
	}

	rep := &report.Report{Diagnosis: report.Field{Value: "otitis", Confidence: 0.8}}
	if err := s.Save(ctx, Update{Report: rep}); err != nil {
		t.Fatalf("save report: %v", err)
	}

	sess, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(sess.Segments) != 1 {
		t.Error("segments lost across partial saves")
	}
	if string(sess.AudioBytes) != "RIFFdata" || sess.AudioMimeType != "audio/wav" {
		t.Errorf("audio = %q mime = %q", sess.AudioBytes, sess.AudioMimeType)
	}
	if sess.Report == nil || sess.Report.Diagnosis.Value != "otitis" {
		t.Errorf("report = %+v", sess.Report)
	}
	if sess.EditedReport != nil {
		t.Error("edited report appeared unbidden")
	}
}

func TestSaveReplacesNamedFields(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	first := []types.Segment{{Speaker: types.SpeakerVet, Text: "one"}}
	if err := s.Save(ctx, Update{Segments: &first}); err != nil {
		t.Fatalf("save: %v", err)
	}
	second := []types.Segment{
		{Speaker: types.SpeakerVet, Text: "one"},
		{Speaker: types.SpeakerOwner, Text: "two"},
	}
	if err := s.Save(ctx, Update{Segments: &second}); err != nil {
		t.Fatalf("save: %v", err)
	}

	sess, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(sess.Segments) != 2 {
		t.Errorf("segments = %+v, want replacement not append", sess.Segments)
	}
}

func TestEditedReportRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	base := &report.Report{Diagnosis: report.Field{Value: "a", Confidence: 0.7}}
	edited := &report.Report{Diagnosis: report.Field{Value: "b", Confidence: 0.7}}
	paths := []string{"diagnosis"}
	err := s.Save(ctx, Update{Report: base, EditedReport: edited, EditedPaths: &paths})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	sess, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	o, err := report.Restore(*sess.Report, *sess.EditedReport, sess.EditedPaths)
	if err != nil {
		t.Fatalf("restore overlay: %v", err)
	}
	if !o.IsEdited("diagnosis") || o.Edited().Diagnosis.Value != "b" {
		t.Error("overlay did not survive the round trip")
	}
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	segments := []types.Segment{{Speaker: types.SpeakerVet, Text: "x"}}
	if err := s.Save(ctx, Update{Segments: &segments}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := s.Load(ctx); !errors.Is(err, ErrNoSession) {
		t.Fatalf("err = %v, want ErrNoSession", err)
	}
	// Clearing twice is fine.
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("second clear: %v", err)
	}
}

func TestReopenSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	segments := []types.Segment{{Speaker: types.SpeakerOwner, Text: "persisted"}}
	if err := s.Save(ctx, Update{Segments: &segments}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	sess, err := s2.Load(ctx)
	if err != nil {
		t.Fatalf("load after reopen: %v", err)
	}
	if len(sess.Segments) != 1 || sess.Segments[0].Text != "persisted" {
		t.Errorf("segments = %+v", sess.Segments)
	}
}
