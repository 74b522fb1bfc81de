// Package analyze turns a speaker-labeled transcript into a structured visit
// report by calling a language model provider. It owns the prompting and
// response parsing; pacing of calls is the caller's concern.
package analyze

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fzalvarez/vetscribe/internal/report"
	"github.com/fzalvarez/vetscribe/pkg/provider/llm"
	"github.com/fzalvarez/vetscribe/pkg/types"
)

// DefaultTimeout bounds a single analysis call.
const DefaultTimeout = 60 * time.Second

const reportSystemPrompt = `You are a veterinary scribe. You are given the transcript of a consultation between a veterinarian ("vet") and a pet owner ("owner").

Extract a structured visit report. Respond with ONLY a JSON object, no markdown fences and no commentary, with exactly these keys:

{
  "patient_name": {"value": "...", "confidence": 0.0},
  "species": {"value": "...", "confidence": 0.0},
  "chief_complaint": {"value": "...", "confidence": 0.0},
  "history": {"value": "...", "confidence": 0.0},
  "examination": {"value": "...", "confidence": 0.0},
  "diagnosis": {"value": "...", "confidence": 0.0},
  "treatment": {"value": "...", "confidence": 0.0},
  "medications": {"value": "...", "confidence": 0.0},
  "follow_up": {"value": "...", "confidence": 0.0},
  "note": "..."
}

Each confidence is your own certainty (0.0 to 1.0) that the value is correct given the transcript. Use an empty value with low confidence when the transcript does not cover a field. "note" is optional free text for anything important that fits no field.`

const assessmentSystemPrompt = `You are a veterinary scribe listening to an ongoing consultation between a veterinarian ("vet") and a pet owner ("owner"). Given the transcript so far, reply with a 1-3 sentence plain-text assessment of what the visit appears to be about and anything notable. No markdown, no preamble.`

// ThrottledError reports that the analysis endpoint rejected the call for
// rate limiting. RetryAfter is zero when the endpoint gave no hint.
type ThrottledError struct {
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("analyze: throttled by endpoint, retry after %s", e.RetryAfter)
	}
	return "analyze: throttled by endpoint"
}

// Analyzer runs report and live-assessment calls against one provider.
type Analyzer struct {
	provider llm.Provider
	timeout  time.Duration
	log      *slog.Logger
}

// Option customizes an Analyzer.
type Option func(*Analyzer)

// WithTimeout bounds each provider call. Defaults to DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(a *Analyzer) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithLogger routes logging. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(a *Analyzer) {
		if log != nil {
			a.log = log
		}
	}
}

// New creates an Analyzer over the given provider.
func New(provider llm.Provider, opts ...Option) *Analyzer {
	a := &Analyzer{
		provider: provider,
		timeout:  DefaultTimeout,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// GenerateReport asks the provider for a structured report of the full
// transcript. Rate-limit rejections surface as *ThrottledError so the caller
// can back off; malformed model output surfaces as a parse error rather than
// a partial report.
func (a *Analyzer) GenerateReport(ctx context.Context, segments []types.Segment) (report.Report, error) {
	if len(segments) == 0 {
		return report.Report{}, errors.New("analyze: empty transcript")
	}

	resp, err := a.complete(ctx, reportSystemPrompt, renderTranscript(segments))
	if err != nil {
		return report.Report{}, err
	}

	rep, err := parseReport(resp.Content)
	if err != nil {
		a.log.Error("report response unparseable", "error", err)
		return report.Report{}, err
	}
	a.log.Info("report generated",
		"segments", len(segments),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)
	return rep, nil
}

// LiveAssessment asks the provider for a short running summary of the
// transcript so far.
func (a *Analyzer) LiveAssessment(ctx context.Context, segments []types.Segment) (string, error) {
	if len(segments) == 0 {
		return "", errors.New("analyze: empty transcript")
	}
	resp, err := a.complete(ctx, assessmentSystemPrompt, renderTranscript(segments))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

func (a *Analyzer) complete(ctx context.Context, system, user string) (*llm.CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resp, err := a.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: system,
		Messages: []llm.Message{
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		var rle *llm.RateLimitError
		if errors.As(err, &rle) {
			return nil, &ThrottledError{RetryAfter: rle.RetryAfter}
		}
		return nil, fmt.Errorf("analyze: completion: %w", err)
	}
	return resp, nil
}

// renderTranscript flattens segments into the "speaker: text" lines the
// prompts describe.
func renderTranscript(segments []types.Segment) string {
	var b strings.Builder
	for _, seg := range segments {
		b.WriteString(string(seg.Speaker))
		b.WriteString(": ")
		b.WriteString(seg.Text)
		b.WriteString("\n")
	}
	return b.String()
}

// parseReport decodes the model's JSON, tolerating markdown fences some
// models insist on despite instructions.
func parseReport(content string) (report.Report, error) {
	raw := strings.TrimSpace(content)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var rep report.Report
	dec := json.NewDecoder(strings.NewReader(raw))
	if err := dec.Decode(&rep); err != nil {
		return report.Report{}, fmt.Errorf("analyze: parse report: %w", err)
	}
	return rep, nil
}
