package report

import (
	"fmt"
	"sort"
	"sync"
)

// Overlay layers human edits over a model-produced report. The original
// report is kept untouched so edits can always be compared against what the
// model actually said; the edited copy starts structurally identical and only
// diverges leaf by leaf as edits come in.
//
// Overlay is safe for concurrent use.
type Overlay struct {
	mu     sync.Mutex
	base   Report
	edited Report
	paths  map[string]struct{}
}

// NewOverlay starts an overlay with no edits: the edited view is a copy of
// base.
func NewOverlay(base Report) *Overlay {
	return &Overlay{
		base:   base,
		edited: base,
		paths:  make(map[string]struct{}),
	}
}

// Restore rebuilds an overlay from persisted state, typically after a crash.
// Paths that do not address a report leaf are rejected rather than silently
// dropped, since that indicates corrupted state.
func Restore(base, edited Report, paths []string) (*Overlay, error) {
	o := &Overlay{
		base:   base,
		edited: edited,
		paths:  make(map[string]struct{}, len(paths)),
	}
	for _, p := range paths {
		if fieldByPath(&o.edited, p) == nil {
			return nil, fmt.Errorf("report: restore: unknown field path %q", p)
		}
		o.paths[p] = struct{}{}
	}
	return o, nil
}

// Edit replaces the value at path in the edited view and records the path as
// human-edited. The confidence score of the leaf is preserved: it still
// describes the model's original extraction, not the human text.
func (o *Overlay) Edit(path, value string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	f := fieldByPath(&o.edited, path)
	if f == nil {
		return fmt.Errorf("report: edit: unknown field path %q", path)
	}
	f.Value = value
	o.paths[path] = struct{}{}
	return nil
}

// IsEdited reports whether the leaf at path has been human-edited.
func (o *Overlay) IsEdited(path string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.paths[path]
	return ok
}

// EditedPaths returns the sorted set of human-edited field paths.
func (o *Overlay) EditedPaths() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0, len(o.paths))
	for p := range o.paths {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Original returns the untouched model report.
func (o *Overlay) Original() Report {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.base
}

// Edited returns the report with human edits applied.
func (o *Overlay) Edited() Report {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.edited
}

// ResetEdits discards all human edits, restoring the edited view to the
// original report.
func (o *Overlay) ResetEdits() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.edited = o.base
	o.paths = make(map[string]struct{})
}
