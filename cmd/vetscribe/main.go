// Command vetscribe runs the visit recording client: it captures a
// consultation, builds the speaker-labelled transcript, and produces the
// structured visit report. Control is interactive over stdin; a small HTTP
// surface exposes health, session status, and Prometheus metrics.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fzalvarez/vetscribe/internal/analyze"
	"github.com/fzalvarez/vetscribe/internal/config"
	"github.com/fzalvarez/vetscribe/internal/health"
	"github.com/fzalvarez/vetscribe/internal/lexicon"
	"github.com/fzalvarez/vetscribe/internal/observe"
	"github.com/fzalvarez/vetscribe/internal/rategate"
	"github.com/fzalvarez/vetscribe/internal/report"
	"github.com/fzalvarez/vetscribe/internal/resilience"
	"github.com/fzalvarez/vetscribe/internal/session"
	"github.com/fzalvarez/vetscribe/internal/store"
	audiofile "github.com/fzalvarez/vetscribe/pkg/audio/file"
	"github.com/fzalvarez/vetscribe/pkg/provider/llm"
	"github.com/fzalvarez/vetscribe/pkg/provider/llm/anyllm"
	"github.com/fzalvarez/vetscribe/pkg/provider/llm/openai"
	"github.com/fzalvarez/vetscribe/pkg/recognition"
	"github.com/fzalvarez/vetscribe/pkg/recognition/deepgram"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	audioPath := flag.String("audio", "visit.wav", "WAV file used as the capture source")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "vetscribe: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "vetscribe: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// The level lives in a LevelVar so config reloads can adjust verbosity
	// without restarting.
	levelVar := new(slog.LevelVar)
	levelVar.Set(cfg.Server.LogLevel.SlogLevel())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar}))
	slog.SetDefault(logger)

	slog.Info("vetscribe starting",
		"config", *configPath,
		"audio_source", *audioPath,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "vetscribe",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	recognizer, analysisLLM, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Persistence ───────────────────────────────────────────────────────────
	storePath := cfg.Store.Path
	if storePath == "" {
		storePath = "vetscribe.db"
	}
	st, err := store.Open(storePath)
	if err != nil {
		slog.Error("failed to open session store", "path", storePath, "err", err)
		return 1
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Warn("store close error", "err", err)
		}
	}()

	// ── Terminology correction ────────────────────────────────────────────────
	var corrector session.Corrector
	if cfg.Lexicon.Path != "" {
		lex, err := lexicon.LoadFile(cfg.Lexicon.Path)
		if err != nil {
			slog.Error("failed to load lexicon", "path", cfg.Lexicon.Path, "err", err)
			return 1
		}
		var lexOpts []lexicon.Option
		if cfg.Lexicon.PhoneticThreshold > 0 {
			lexOpts = append(lexOpts, lexicon.WithPhoneticThreshold(cfg.Lexicon.PhoneticThreshold))
		}
		if cfg.Lexicon.FuzzyThreshold > 0 {
			lexOpts = append(lexOpts, lexicon.WithFuzzyThreshold(cfg.Lexicon.FuzzyThreshold))
		}
		corrector = lexicon.NewCorrector(lex, lexOpts...)
		slog.Info("lexicon loaded", "path", cfg.Lexicon.Path, "terms", len(lex.All()))
	}

	// ── Session orchestrator ──────────────────────────────────────────────────
	var gateOpts []rategate.Option
	if d := cfg.RateGate.MinInterval.Std(); d > 0 {
		gateOpts = append(gateOpts, rategate.WithMinInterval(d))
	}
	if d := cfg.RateGate.Cooldown.Std(); d > 0 {
		gateOpts = append(gateOpts, rategate.WithDefaultCooldown(d))
	}

	orch, err := session.New(session.Config{
		Recorder:   audiofile.NewRecorder(*audioPath),
		Recognizer: recognizer,
		Analyzer:   analyze.New(analysisLLM, analyze.WithLogger(logger)),
		Gate:       rategate.New(gateOpts...),
		Store:      st,
		Player:     audiofile.NewPlayer(),
		Corrector:  corrector,
		Metrics:    metrics,
		Logger:     logger,
		StreamConfig: recognition.StreamConfig{
			SampleRate: cfg.Session.SampleRate,
			Channels:   cfg.Session.Channels,
			Language:   cfg.Providers.Recognition.Language,
		},
		FlipGap:           cfg.Session.FlipGap.Std(),
		InitialSpeaker:    cfg.Session.InitialSpeaker,
		PulseInterval:     cfg.Session.PulseInterval.Std(),
		ProcessingTimeout: cfg.Session.ProcessingTimeout.Std(),
	})
	if err != nil {
		slog.Error("failed to initialise session", "err", err)
		return 1
	}

	// Pick up whatever the previous run left behind before accepting commands.
	if err := orch.Recover(ctx); err != nil {
		slog.Error("session recovery failed", "err", err)
		return 1
	}
	if orch.Phase() != session.PhaseIdle || len(orch.Segments()) > 0 {
		slog.Info("recovered previous session",
			"phase", orch.Phase(),
			"segments", len(orch.Segments()),
		)
	}

	// ── HTTP surface (health, status, metrics) ────────────────────────────────
	var srv *http.Server
	if cfg.Server.ListenAddr != "" {
		srv = newHTTPServer(cfg.Server.ListenAddr, orch, st, metrics)
		go func() {
			slog.Info("http surface listening", "addr", cfg.Server.ListenAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("http server error", "err", err)
			}
		}()
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			levelVar.Set(d.NewLogLevel.SlogLevel())
			slog.Info("log level updated", "level", d.NewLogLevel)
		}
		if d.PulseIntervalChanged || d.RateGateChanged {
			slog.Info("session tuning changed in config; takes effect on restart")
		}
	})
	if err != nil {
		slog.Warn("config watcher unavailable", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── Interactive console ───────────────────────────────────────────────────
	go console(ctx, stop, orch)

	fmt.Println("vetscribe ready — type 'help' for commands, Ctrl+C to exit")
	<-ctx.Done()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// An in-flight recording is stopped so the transcript and clip land in
	// the store; the report can be generated on the next run.
	if orch.Phase() == session.PhaseRecording {
		if _, err := orch.Stop(shutdownCtx); err != nil {
			slog.Warn("recording not fully finalised", "err", err)
		}
	}

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http shutdown error", "err", err)
		}
	}
	slog.Info("goodbye")
	return 0
}

// version is stamped by the release build; "dev" otherwise.
var version = "dev"

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the provider factories that ship with
// vetscribe into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Recognition ───────────────────────────────────────────────────────────

	reg.RegisterRecognition("deepgram", func(entry config.ProviderEntry) (recognition.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.Language != "" {
			opts = append(opts, deepgram.WithLanguage(entry.Language))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// ── Analysis ──────────────────────────────────────────────────────────────
	// openai goes through the native SDK adapter; the remaining hosted
	// backends share the any-llm pattern of optional APIKey + BaseURL.

	reg.RegisterAnalysis("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	for _, providerName := range []string{"anthropic", "gemini", "deepseek", "mistral", "groq"} {
		reg.RegisterAnalysis(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterAnalysis("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})
}

// buildProviders instantiates the two remote collaborators named in cfg.
// Both are required: without recognition there is no transcript and without
// analysis there is no report.
func buildProviders(cfg *config.Config, reg *config.Registry) (recognition.Provider, llm.Provider, error) {
	recName := cfg.Providers.Recognition.Name
	if recName == "" {
		return nil, nil, errors.New("no recognition provider configured")
	}
	recognizer, err := reg.CreateRecognition(cfg.Providers.Recognition)
	if err != nil {
		return nil, nil, fmt.Errorf("create recognition provider %q: %w", recName, err)
	}
	slog.Info("provider created", "kind", "recognition", "name", recName)

	// With fallbacks configured, a refused stream dial moves to the next
	// backend instead of failing the recording start.
	if len(cfg.Providers.RecognitionFallbacks) > 0 {
		chain := resilience.NewRecognitionFallback(resilience.GroupConfig{})
		chain.Add(recName, recognizer)
		for _, entry := range cfg.Providers.RecognitionFallbacks {
			p, err := reg.CreateRecognition(entry)
			if err != nil {
				return nil, nil, fmt.Errorf("create recognition fallback %q: %w", entry.Name, err)
			}
			chain.Add(entry.Name, p)
			slog.Info("provider created", "kind", "recognition-fallback", "name", entry.Name)
		}
		recognizer = chain
	}

	anName := cfg.Providers.Analysis.Name
	if anName == "" {
		return nil, nil, errors.New("no analysis provider configured")
	}
	analysisLLM, err := reg.CreateAnalysis(cfg.Providers.Analysis)
	if err != nil {
		return nil, nil, fmt.Errorf("create analysis provider %q: %w", anName, err)
	}
	slog.Info("provider created", "kind", "analysis", "name", anName, "model", cfg.Providers.Analysis.Model)

	// With fallbacks configured, the analyzer talks to a failover chain
	// instead of the primary directly.
	if len(cfg.Providers.AnalysisFallbacks) > 0 {
		chain := resilience.NewAnalysisFallback(resilience.GroupConfig{})
		chain.Add(anName, analysisLLM)
		for _, entry := range cfg.Providers.AnalysisFallbacks {
			p, err := reg.CreateAnalysis(entry)
			if err != nil {
				return nil, nil, fmt.Errorf("create analysis fallback %q: %w", entry.Name, err)
			}
			chain.Add(entry.Name, p)
			slog.Info("provider created", "kind", "analysis-fallback", "name", entry.Name, "model", entry.Model)
		}
		analysisLLM = chain
	}

	return recognizer, analysisLLM, nil
}

// ── HTTP surface ──────────────────────────────────────────────────────────────

func newHTTPServer(addr string, orch *session.Orchestrator, st *store.Store, metrics *observe.Metrics) *http.Server {
	statusFn := func() health.Status {
		st := health.Status{
			Phase:             string(orch.Phase()),
			Segments:          len(orch.Segments()),
			HasReport:         orch.Report() != nil,
			RetryAfterSeconds: orch.CooldownRemaining().Seconds(),
		}
		if err := orch.LastError(); err != nil {
			st.AnalysisError = err.Error()
		}
		return st
	}
	storeCheck := health.Checker{
		Name: "store",
		Check: func(ctx context.Context) error {
			_, err := st.Load(ctx)
			if errors.Is(err, store.ErrNoSession) {
				return nil
			}
			return err
		},
	}

	mux := http.NewServeMux()
	health.New(statusFn, storeCheck).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	return &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// ── Interactive console ───────────────────────────────────────────────────────

const consoleHelp = `commands:
  start            begin recording a new visit (discards the previous one)
  resume           continue a visit recovered from a crash
  switch           flip the attributed speaker
  stop             end recording and generate the report
  analyze          retry report generation after a failure
  transcript       print the committed transcript
  assessment       print the latest live assessment
  report           print the visit report with confidence levels
  edit PATH VALUE  override a report field (e.g. edit diagnosis "otitis externa")
  reset            drop all report edits
  play             load the captured clip for playback
  seek N           jump playback to transcript segment N
  pos              show playback position and the active segment
  discard          delete the session and start fresh
  status           show the session phase
  quit             exit`

// console reads commands from stdin until the context ends or the user quits.
func console(ctx context.Context, quit context.CancelFunc, orch *session.Orchestrator) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		cmd, rest, _ := strings.Cut(line, " ")

		switch cmd {
		case "help":
			fmt.Println(consoleHelp)

		case "start":
			if err := orch.Start(ctx); err != nil {
				fmt.Printf("start: %v\n", err)
				continue
			}
			fmt.Printf("recording (speaker: %s)\n", orch.CurrentSpeaker())

		case "resume":
			if err := orch.Resume(ctx); err != nil {
				fmt.Printf("resume: %v\n", err)
				continue
			}
			fmt.Printf("recording resumed at segment %d (speaker: %s)\n",
				len(orch.Segments()), orch.CurrentSpeaker())

		case "switch":
			orch.SwitchSpeaker()
			fmt.Printf("speaker: %s\n", orch.CurrentSpeaker())

		case "stop":
			fmt.Println("processing…")
			rep, err := orch.Stop(ctx)
			if err != nil {
				fmt.Printf("stop: %v (transcript kept — 'analyze' to retry)\n", err)
				printRetryAfter(orch)
				continue
			}
			printReport(*rep, orch)

		case "analyze":
			rep, err := orch.Analyze(ctx)
			if err != nil {
				fmt.Printf("analyze: %v\n", err)
				printRetryAfter(orch)
				continue
			}
			printReport(*rep, orch)

		case "transcript":
			segs := orch.Segments()
			if len(segs) == 0 {
				fmt.Println("(empty)")
			}
			for i, seg := range segs {
				fmt.Printf("%3d  %-5s  %s\n", i, seg.Speaker, seg.Text)
			}
			if interim := orch.Interim(); interim.Text != "" {
				fmt.Printf("   … %-5s %s\n", interim.Speaker, interim.Text)
			}

		case "assessment":
			if a := orch.Assessment(); a != "" {
				fmt.Println(a)
			} else {
				fmt.Println("(no assessment yet)")
			}

		case "report":
			rep := orch.Report()
			if rep == nil {
				fmt.Println("(no report)")
				continue
			}
			printReport(*rep, orch)

		case "edit":
			path, value, ok := strings.Cut(rest, " ")
			if !ok {
				fmt.Println("usage: edit PATH VALUE")
				continue
			}
			if err := orch.EditReportField(path, strings.Trim(value, `"`)); err != nil {
				fmt.Printf("edit: %v\n", err)
				continue
			}
			fmt.Printf("%s updated\n", path)

		case "reset":
			if err := orch.ResetReportEdits(); err != nil {
				fmt.Printf("reset: %v\n", err)
				continue
			}
			fmt.Println("edits dropped")

		case "play":
			if err := orch.LoadPlayback(); err != nil {
				fmt.Printf("play: %v\n", err)
				continue
			}
			fmt.Println("playing")

		case "seek":
			index, err := strconv.Atoi(strings.TrimSpace(rest))
			if err != nil {
				fmt.Println("usage: seek N")
				continue
			}
			if err := orch.SeekToSegment(index); err != nil {
				fmt.Printf("seek: %v\n", err)
				continue
			}
			fmt.Printf("jumped to segment %d\n", index)

		case "pos":
			index := orch.ActiveSegmentIndex()
			if index < 0 {
				fmt.Println("(before the first segment)")
				continue
			}
			segs := orch.OffsetSegments()
			if index < len(segs) && segs[index].OffsetSeconds != nil {
				fmt.Printf("segment %d (from %.1fs): %s\n", index, *segs[index].OffsetSeconds, segs[index].Text)
			}

		case "discard":
			if err := orch.Discard(ctx); err != nil {
				fmt.Printf("discard: %v\n", err)
				continue
			}
			fmt.Println("session discarded")

		case "status":
			fmt.Printf("phase=%s segments=%d speaker=%s\n",
				orch.Phase(), len(orch.Segments()), orch.CurrentSpeaker())
			if err := orch.LastError(); err != nil {
				fmt.Printf("last analysis error: %v\n", err)
			}
			printRetryAfter(orch)

		case "quit", "exit":
			quit()
			return

		default:
			fmt.Printf("unknown command %q — try 'help'\n", cmd)
		}
	}
}

// printRetryAfter shows the remaining throttle cooldown, if any.
func printRetryAfter(orch *session.Orchestrator) {
	if cd := orch.CooldownRemaining(); cd > 0 {
		fmt.Printf("analysis throttled — retry in %s\n", cd.Round(time.Second))
	}
}

// printReport renders the report fields with their confidence levels, marking
// fields the vet has overridden.
func printReport(rep report.Report, orch *session.Orchestrator) {
	edited := make(map[string]bool)
	for _, p := range orch.EditedPaths() {
		edited[p] = true
	}

	for _, path := range report.Paths() {
		field, ok := rep.FieldAt(path)
		if !ok {
			continue
		}
		marker := " "
		if edited[path] {
			marker = "*"
		}
		fmt.Printf("%s %-16s [%-6s] %s\n", marker, path, field.Level(), field.Value)
	}
	if rep.Note != "" {
		fmt.Printf("  note: %s\n", rep.Note)
	}
}
