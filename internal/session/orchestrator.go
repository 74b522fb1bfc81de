// Package session coordinates one visit end to end: microphone capture,
// streaming recognition, speaker attribution, crash-recovery persistence,
// and the analysis calls that turn the finished transcript into a report.
//
// The orchestrator is a small state machine:
//
//	Idle → Recording → Processing → Complete
//
// Recording leaves only through Processing (a stop always attempts
// analysis), and Processing always exits into Complete in bounded time:
// with a report when analysis succeeded, with the failure retained and the
// transcript intact when it did not. Starting over from Complete discards
// the previous visit first. All methods are safe for concurrent use.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fzalvarez/vetscribe/internal/analyze"
	"github.com/fzalvarez/vetscribe/internal/diarize"
	"github.com/fzalvarez/vetscribe/internal/observe"
	"github.com/fzalvarez/vetscribe/internal/rategate"
	"github.com/fzalvarez/vetscribe/internal/report"
	"github.com/fzalvarez/vetscribe/internal/store"
	"github.com/fzalvarez/vetscribe/pkg/audio"
	"github.com/fzalvarez/vetscribe/pkg/recognition"
	"github.com/fzalvarez/vetscribe/pkg/types"
)

// Phase is the lifecycle state of the orchestrator.
type Phase string

// Lifecycle phases.
const (
	PhaseIdle       Phase = "idle"
	PhaseRecording  Phase = "recording"
	PhaseProcessing Phase = "processing"
	PhaseComplete   Phase = "complete"
)

// Default tuning values.
const (
	defaultPulseInterval     = 45 * time.Second
	defaultProcessingTimeout = 90 * time.Second
	persistTimeout           = 5 * time.Second
)

// Corrector rewrites recognised text and reports how many words changed.
// The lexicon package provides the terminology-correcting implementation.
type Corrector interface {
	Correct(text string) (corrected string, changed int)
}

// Sentinel errors for lifecycle misuse.
var (
	ErrNotIdle      = errors.New("session: not idle")
	ErrNotRecording = errors.New("session: not recording")
	ErrAnalysisBusy = errors.New("session: analysis already running")
	ErrNoTranscript = errors.New("session: no transcript to analyse")
	ErrNoReport     = errors.New("session: no report")
)

// Config configures an [Orchestrator]. Recorder, Recognizer, and Analyzer
// are required; everything else has a sensible default or is optional.
type Config struct {
	// Recorder captures microphone audio.
	Recorder audio.Recorder

	// Recognizer streams audio to the transcription backend.
	Recognizer recognition.Provider

	// Analyzer produces reports and live assessments.
	Analyzer *analyze.Analyzer

	// Gate paces analysis calls. Defaults to a new gate with standard
	// spacing when nil.
	Gate *rategate.Gate

	// Store persists session state for crash recovery. Nil disables
	// persistence.
	Store *store.Store

	// Player renders the captured clip during review. Nil disables playback.
	Player audio.Player

	// Corrector rewrites final recognised text before it joins the
	// transcript. Nil disables correction.
	Corrector Corrector

	// Metrics receives instrumentation. Defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Logger routes logging. Defaults to slog.Default.
	Logger *slog.Logger

	// StreamConfig is passed to the recognizer. Zero fields get the
	// recognizer's defaults.
	StreamConfig recognition.StreamConfig

	// FlipGap overrides the diarizer's speaker-flip threshold. Zero keeps
	// the default.
	FlipGap time.Duration

	// InitialSpeaker is the party attributed to the first utterance.
	// Empty keeps the diarizer's default.
	InitialSpeaker types.Speaker

	// PulseInterval is the cadence of live-assessment calls during
	// recording. Zero means the default; negative disables the pulse.
	PulseInterval time.Duration

	// ProcessingTimeout bounds the post-stop analysis. Zero means the
	// default.
	ProcessingTimeout time.Duration
}

// Orchestrator drives one visit through its lifecycle.
type Orchestrator struct {
	recorder          audio.Recorder
	recognizer        recognition.Provider
	analyzer          *analyze.Analyzer
	gate              *rategate.Gate
	store             *store.Store
	player            audio.Player
	corrector         Corrector
	metrics           *observe.Metrics
	log               *slog.Logger
	streamCfg         recognition.StreamConfig
	pulseInterval     time.Duration
	processingTimeout time.Duration

	diar *diarize.Diarizer

	mu             sync.Mutex
	phase          Phase
	recording      audio.Recording
	stream         recognition.Stream
	captureDone    chan struct{}
	pulseCancel    context.CancelFunc
	pulseDone      chan struct{}
	analysisBusy   bool
	recordingStart time.Time
	clip           audio.Clip
	overlay        *report.Overlay
	assessment     string
	lastErr        error
}

// New creates an Orchestrator in the Idle phase.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Recorder == nil {
		return nil, errors.New("session: config requires a Recorder")
	}
	if cfg.Recognizer == nil {
		return nil, errors.New("session: config requires a Recognizer")
	}
	if cfg.Analyzer == nil {
		return nil, errors.New("session: config requires an Analyzer")
	}

	o := &Orchestrator{
		recorder:          cfg.Recorder,
		recognizer:        cfg.Recognizer,
		analyzer:          cfg.Analyzer,
		gate:              cfg.Gate,
		store:             cfg.Store,
		player:            cfg.Player,
		corrector:         cfg.Corrector,
		metrics:           cfg.Metrics,
		log:               cfg.Logger,
		streamCfg:         cfg.StreamConfig,
		pulseInterval:     cfg.PulseInterval,
		processingTimeout: cfg.ProcessingTimeout,
		phase:             PhaseIdle,
	}
	if o.gate == nil {
		o.gate = rategate.New()
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	if o.pulseInterval == 0 {
		o.pulseInterval = defaultPulseInterval
	}
	if o.processingTimeout <= 0 {
		o.processingTimeout = defaultProcessingTimeout
	}

	var diarOpts []diarize.Option
	if cfg.FlipGap > 0 {
		diarOpts = append(diarOpts, diarize.WithFlipGap(cfg.FlipGap))
	}
	if cfg.InitialSpeaker.IsValid() {
		diarOpts = append(diarOpts, diarize.WithInitialSpeaker(cfg.InitialSpeaker))
	}
	o.diar = diarize.New(diarOpts...)

	return o, nil
}

// Start begins capture and transcription of a new visit. Valid from Idle and
// Complete; any previous report, transcript, and audio are discarded first,
// slot included. A transcript recovered from a crash survives only through
// [Resume].
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.phase != PhaseIdle && o.phase != PhaseComplete {
		o.mu.Unlock()
		return fmt.Errorf("%w: phase %s", ErrNotIdle, o.phase)
	}
	o.mu.Unlock()

	if err := o.wipe(ctx); err != nil {
		return fmt.Errorf("session: discard previous visit: %w", err)
	}
	return o.beginCapture(ctx)
}

// Resume restarts capture over a transcript recovered from a crash: new
// utterances append to the held segments instead of replacing them. Valid
// only from Idle.
func (o *Orchestrator) Resume(ctx context.Context) error {
	o.mu.Lock()
	if o.phase != PhaseIdle {
		o.mu.Unlock()
		return fmt.Errorf("%w: phase %s", ErrNotIdle, o.phase)
	}
	o.mu.Unlock()

	return o.beginCapture(ctx)
}

// beginCapture spins up the recorder, the recognition stream, and the
// capture loops, entering the Recording phase.
func (o *Orchestrator) beginCapture(ctx context.Context) error {
	rec, err := o.recorder.Start(ctx)
	if err != nil {
		return fmt.Errorf("session: start capture: %w", err)
	}

	stream, err := o.recognizer.StartStream(ctx, o.streamCfg)
	if err != nil {
		if _, stopErr := rec.Stop(); stopErr != nil {
			o.log.Warn("discarding recording after stream failure", "error", stopErr)
		}
		return fmt.Errorf("session: start recognition: %w", err)
	}

	o.mu.Lock()
	o.recording = rec
	o.stream = stream
	if o.recordingStart.IsZero() {
		o.recordingStart = time.Now()
	}
	o.captureDone = make(chan struct{})
	o.phase = PhaseRecording

	// Capture outlives the Start call, so the loops get their own context.
	if o.pulseInterval > 0 {
		pulseCtx, cancel := context.WithCancel(context.Background())
		o.pulseCancel = cancel
		o.pulseDone = make(chan struct{})
		go o.pulseLoop(pulseCtx, o.pulseDone)
	}
	done := o.captureDone
	o.mu.Unlock()

	go func() {
		defer close(done)
		var g errgroup.Group
		g.Go(func() error { return o.pumpAudio(rec, stream) })
		g.Go(func() error { o.consumeResults(stream); return nil })
		if err := g.Wait(); err != nil {
			o.log.Warn("capture loop ended with error", "error", err)
		}
	}()

	o.metrics.RecordingStarted(ctx)
	o.log.Info("recording started", "recording_start", o.recordingStart)
	return nil
}

// wipe clears the previous visit from memory and from the persisted slot.
func (o *Orchestrator) wipe(ctx context.Context) error {
	o.mu.Lock()
	o.recordingStart = time.Time{}
	o.clip = audio.Clip{}
	o.overlay = nil
	o.assessment = ""
	o.lastErr = nil
	o.mu.Unlock()

	o.diar.Reset()

	if o.store != nil {
		if err := o.store.Clear(ctx); err != nil {
			return err
		}
	}
	return nil
}

// pumpAudio forwards captured frames to the recognition stream until the
// recording's frame channel closes.
func (o *Orchestrator) pumpAudio(rec audio.Recording, stream recognition.Stream) error {
	var lastErr error
	for frame := range rec.Frames() {
		if err := stream.SendAudio(frame.Data); err != nil {
			// The transport may be mid-redial; drop the frame and keep
			// pumping rather than killing the capture.
			if lastErr == nil || err.Error() != lastErr.Error() {
				o.log.Warn("audio frame dropped", "error", err)
			}
			lastErr = err
		}
	}
	return nil
}

// consumeResults feeds recognition results to the diarizer until the stream's
// result channel closes, persisting the transcript after every commit. Final
// text passes through the terminology corrector first; interims stay raw so
// the live view tracks the recogniser exactly.
func (o *Orchestrator) consumeResults(stream recognition.Stream) {
	for res := range stream.Results() {
		if res.IsFinal && o.corrector != nil {
			if corrected, changed := o.corrector.Correct(res.Text); changed > 0 {
				o.log.Debug("terminology corrected", "changed", changed, "text", corrected)
				res.Text = corrected
			}
		}
		before := len(o.diar.Segments())
		o.diar.Handle(res)
		if !res.IsFinal {
			continue
		}
		if grown := len(o.diar.Segments()) - before; grown > 0 {
			o.metrics.AddSegments(context.Background(), int64(grown))
		}
		o.persistTranscript()
	}
}

// persistTranscript saves the committed segments. Persistence failures are
// logged, not propagated: losing a checkpoint must not interrupt capture.
func (o *Orchestrator) persistTranscript() {
	if o.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	segs := o.diar.Segments()
	o.mu.Lock()
	start := o.recordingStart
	o.mu.Unlock()

	u := store.Update{Segments: &segs}
	if !start.IsZero() {
		u.RecordingStart = &start
	}
	if err := o.store.Save(ctx, u); err != nil {
		o.log.Error("transcript checkpoint failed", "error", err)
	}
}

// SwitchSpeaker manually flips the party the next utterance is attributed
// to.
func (o *Orchestrator) SwitchSpeaker() {
	o.diar.SwitchSpeaker()
}

// Stop tears down capture, flushes any in-progress utterance into the
// transcript, persists the audio, and runs analysis. Either way the phase
// lands in Complete: with the returned report on success, or with the error
// retained (see [Orchestrator.LastError]) and the transcript intact so
// [Orchestrator.Analyze] can retry.
func (o *Orchestrator) Stop(ctx context.Context) (*report.Report, error) {
	o.mu.Lock()
	if o.phase != PhaseRecording {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: phase %s", ErrNotRecording, o.phase)
	}
	o.phase = PhaseProcessing
	rec := o.recording
	stream := o.stream
	captureDone := o.captureDone
	pulseCancel := o.pulseCancel
	pulseDone := o.pulseDone
	o.recording = nil
	o.stream = nil
	o.pulseCancel = nil
	o.pulseDone = nil
	o.mu.Unlock()

	// The pulse must not hold the gate while the final analysis waits on it.
	if pulseCancel != nil {
		pulseCancel()
		<-pulseDone
	}

	clip, err := rec.Stop()
	if err != nil {
		o.log.Warn("recorder stop", "error", err)
	}
	if cerr := stream.Close(); cerr != nil {
		o.log.Warn("recognition stream close", "error", cerr)
	}
	<-captureDone

	// Anything still buffered as interim is spoken words; commit it stamped
	// at teardown.
	o.diar.Flush(time.Now())

	o.mu.Lock()
	o.clip = clip
	o.mu.Unlock()
	o.persistStopState(clip)
	o.metrics.RecordingStopped(ctx)
	o.log.Info("recording stopped",
		"segments", len(o.diar.Segments()),
		"audio_bytes", len(clip.Bytes))

	return o.finishAnalysis(ctx)
}

// persistStopState checkpoints the transcript plus the finished clip.
func (o *Orchestrator) persistStopState(clip audio.Clip) {
	if o.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	segs := o.diar.Segments()
	o.mu.Lock()
	start := o.recordingStart
	o.mu.Unlock()

	u := store.Update{
		Segments:      &segs,
		AudioBytes:    &clip.Bytes,
		AudioMimeType: &clip.MimeType,
	}
	if !start.IsZero() {
		u.RecordingStart = &start
	}
	if err := o.store.Save(ctx, u); err != nil {
		o.log.Error("stop checkpoint failed", "error", err)
	}
}

// Analyze runs (or retries) report generation over the held transcript.
// Valid from Idle (a recovered unfinished session) and Complete (retrying
// after a failed run).
func (o *Orchestrator) Analyze(ctx context.Context) (*report.Report, error) {
	if len(o.diar.Segments()) == 0 {
		return nil, ErrNoTranscript
	}

	o.mu.Lock()
	if o.phase != PhaseIdle && o.phase != PhaseComplete {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: phase %s", ErrNotIdle, o.phase)
	}
	o.phase = PhaseProcessing
	o.mu.Unlock()

	return o.finishAnalysis(ctx)
}

// finishAnalysis runs the analysis from the Processing phase and performs
// the bounded exit into Complete: with a report, or with the failure
// retained for the status surfaces and a later retry.
func (o *Orchestrator) finishAnalysis(ctx context.Context) (*report.Report, error) {
	ctx, cancel := context.WithTimeout(ctx, o.processingTimeout)
	defer cancel()

	rep, err := o.runAnalysis(ctx)

	o.mu.Lock()
	o.lastErr = err
	if err == nil {
		o.overlay = report.NewOverlay(*rep)
	}
	o.phase = PhaseComplete
	o.mu.Unlock()

	if err != nil {
		o.log.Warn("analysis failed", "error", err)
		return nil, err
	}
	o.persistReport(rep, nil, nil)
	o.log.Info("report ready")
	return rep, nil
}

// runAnalysis performs one report-generation call through the gate. Only one
// analysis may run at a time regardless of which entry point asked for it.
func (o *Orchestrator) runAnalysis(ctx context.Context) (*report.Report, error) {
	o.mu.Lock()
	if o.analysisBusy {
		o.mu.Unlock()
		return nil, ErrAnalysisBusy
	}
	o.analysisBusy = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.analysisBusy = false
		o.mu.Unlock()
	}()

	segs := o.diar.Segments()
	if len(segs) == 0 {
		return nil, ErrNoTranscript
	}

	release, err := o.gate.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("session: acquire analysis slot: %w", err)
	}
	defer release()

	start := time.Now()
	rep, err := o.analyzer.GenerateReport(ctx, segs)
	if err != nil {
		var te *analyze.ThrottledError
		if errors.As(err, &te) {
			o.gate.ReportThrottled(te.RetryAfter)
			o.metrics.RecordThrottle(ctx)
			o.metrics.RecordAnalysis(ctx, time.Since(start), "throttled")
		} else {
			o.metrics.RecordAnalysis(ctx, time.Since(start), "error")
		}
		return nil, err
	}
	o.metrics.RecordAnalysis(ctx, time.Since(start), "ok")
	return &rep, nil
}

// pulseLoop periodically produces a live assessment of the transcript so
// far. It shares the gate with report generation, so a pulse never crowds
// out the final analysis and endpoint cooldowns silence it too.
func (o *Orchestrator) pulseLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(o.pulseInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		segs := o.diar.Segments()
		if len(segs) == 0 {
			continue
		}

		release, err := o.gate.Acquire(ctx)
		if err != nil {
			return
		}
		start := time.Now()
		assessment, err := o.analyzer.LiveAssessment(ctx, segs)
		release()
		if err != nil {
			var te *analyze.ThrottledError
			if errors.As(err, &te) {
				o.gate.ReportThrottled(te.RetryAfter)
				o.metrics.RecordThrottle(ctx)
			} else if !errors.Is(err, context.Canceled) {
				o.log.Warn("live assessment failed", "error", err)
			}
			continue
		}
		o.metrics.RecordAssessment(ctx, time.Since(start))

		o.mu.Lock()
		o.assessment = assessment
		o.mu.Unlock()
		o.log.Debug("live assessment updated", "length", len(assessment))
	}
}

// persistReport checkpoints the generated report, and optionally the edited
// view with its edited paths.
func (o *Orchestrator) persistReport(rep, edited *report.Report, paths []string) {
	if o.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	u := store.Update{Report: rep}
	if edited != nil {
		u.EditedReport = edited
		u.EditedPaths = &paths
	}
	if err := o.store.Save(ctx, u); err != nil {
		o.log.Error("report checkpoint failed", "error", err)
	}
}

// Phase returns the current lifecycle phase.
func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

// LastError returns the failure from the most recent analysis run, nil after
// a success or before any run.
func (o *Orchestrator) LastError() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

// CooldownRemaining returns how much of an endpoint throttle cooldown is
// left before another analysis call may start, zero when calls may proceed.
func (o *Orchestrator) CooldownRemaining() time.Duration {
	return o.gate.CooldownRemaining()
}

// Segments returns the committed transcript so far.
func (o *Orchestrator) Segments() []types.Segment {
	return o.diar.Segments()
}

// Interim returns the in-progress utterance preview.
func (o *Orchestrator) Interim() types.Interim {
	return o.diar.Interim()
}

// CurrentSpeaker returns the party the next utterance will be attributed to.
func (o *Orchestrator) CurrentSpeaker() types.Speaker {
	return o.diar.CurrentSpeaker()
}

// Assessment returns the most recent live assessment, empty when none has
// been produced.
func (o *Orchestrator) Assessment() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.assessment
}

// Report returns the report with human edits applied, or nil when no report
// exists yet.
func (o *Orchestrator) Report() *report.Report {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.overlay == nil {
		return nil
	}
	rep := o.overlay.Edited()
	return &rep
}

// OriginalReport returns the untouched model report, or nil.
func (o *Orchestrator) OriginalReport() *report.Report {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.overlay == nil {
		return nil
	}
	rep := o.overlay.Original()
	return &rep
}

// EditedPaths returns the field paths the human has edited.
func (o *Orchestrator) EditedPaths() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.overlay == nil {
		return nil
	}
	return o.overlay.EditedPaths()
}

// EditReportField applies a human edit to the report and checkpoints the
// edited view.
func (o *Orchestrator) EditReportField(path, value string) error {
	o.mu.Lock()
	overlay := o.overlay
	o.mu.Unlock()
	if overlay == nil {
		return ErrNoReport
	}
	if err := overlay.Edit(path, value); err != nil {
		return err
	}
	orig := overlay.Original()
	edited := overlay.Edited()
	o.persistReport(&orig, &edited, overlay.EditedPaths())
	return nil
}

// ResetReportEdits discards all human edits.
func (o *Orchestrator) ResetReportEdits() error {
	o.mu.Lock()
	overlay := o.overlay
	o.mu.Unlock()
	if overlay == nil {
		return ErrNoReport
	}
	overlay.ResetEdits()
	orig := overlay.Original()
	edited := overlay.Edited()
	o.persistReport(&orig, &edited, overlay.EditedPaths())
	return nil
}

// RecordingStart returns when capture first began, zero before any
// recording.
func (o *Orchestrator) RecordingStart() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.recordingStart
}

// Clip returns the captured audio, zero-valued until a recording has
// stopped.
func (o *Orchestrator) Clip() audio.Clip {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.clip
}
