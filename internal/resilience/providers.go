package resilience

import (
	"context"
	"errors"

	"github.com/fzalvarez/vetscribe/pkg/provider/llm"
	"github.com/fzalvarez/vetscribe/pkg/recognition"
)

var (
	_ llm.Provider         = (*AnalysisFallback)(nil)
	_ recognition.Provider = (*RecognitionFallback)(nil)
)

// AnalysisFallback is an [llm.Provider] that fails over across several
// analysis backends. Rate-limit rejections are permanent: a throttled
// endpoint is healthy, and retrying the same prompt against a second vendor
// would defeat the caller's pacing.
type AnalysisFallback struct {
	group *Group[llm.Provider]
}

// NewAnalysisFallback creates an empty fallback chain; register backends
// with Add before use.
func NewAnalysisFallback(cfg GroupConfig) *AnalysisFallback {
	if cfg.Permanent == nil {
		cfg.Permanent = func(err error) bool {
			var rl *llm.RateLimitError
			return errors.As(err, &rl)
		}
	}
	return &AnalysisFallback{group: NewGroup[llm.Provider](cfg)}
}

// Add registers a backend. The first added is the preferred one.
func (f *AnalysisFallback) Add(name string, p llm.Provider) {
	f.group.Add(name, p)
}

// Len returns the number of registered backends.
func (f *AnalysisFallback) Len() int { return f.group.Len() }

// Complete sends the request to the first healthy backend.
func (f *AnalysisFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return Do(ctx, f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// RecognitionFallback is a [recognition.Provider] that fails over across
// transcription backends. Only the stream dial is covered; once a stream is
// open, mid-stream errors belong to the caller.
type RecognitionFallback struct {
	group *Group[recognition.Provider]
}

// NewRecognitionFallback creates an empty fallback chain; register backends
// with Add before use.
func NewRecognitionFallback(cfg GroupConfig) *RecognitionFallback {
	return &RecognitionFallback{group: NewGroup[recognition.Provider](cfg)}
}

// Add registers a backend. The first added is the preferred one.
func (f *RecognitionFallback) Add(name string, p recognition.Provider) {
	f.group.Add(name, p)
}

// Len returns the number of registered backends.
func (f *RecognitionFallback) Len() int { return f.group.Len() }

// StartStream opens a stream on the first healthy backend.
func (f *RecognitionFallback) StartStream(ctx context.Context, cfg recognition.StreamConfig) (recognition.Stream, error) {
	return Do(ctx, f.group, func(p recognition.Provider) (recognition.Stream, error) {
		return p.StartStream(ctx, cfg)
	})
}
