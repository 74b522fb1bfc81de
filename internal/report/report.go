// Package report defines the structured visit report produced by the
// analysis endpoint, and the human-edit overlay layered on top of it.
//
// Every leaf of the report is a tagged value carrying the extraction
// confidence alongside the text, so the presentation layer can colour
// fields by how sure the model was. Human edits never touch the original
// report: they are applied to a full copy and tracked by field path, which
// makes "was this edited" an O(1) lookup with no deep comparison at render
// time.
package report

// ConfidenceLevel buckets a leaf confidence score for display.
type ConfidenceLevel string

const (
	// LevelHigh marks scores ≥ 0.8.
	LevelHigh ConfidenceLevel = "high"

	// LevelMedium marks scores ≥ 0.5 and < 0.8.
	LevelMedium ConfidenceLevel = "medium"

	// LevelLow marks scores < 0.5.
	LevelLow ConfidenceLevel = "low"
)

// Field is one confidence-tagged leaf of the report.
type Field struct {
	// Value is the extracted text.
	Value string `json:"value"`

	// Confidence is the model's reported confidence (0.0–1.0).
	Confidence float64 `json:"confidence"`
}

// Level derives the display bucket from the confidence score.
func (f Field) Level() ConfidenceLevel {
	switch {
	case f.Confidence >= 0.8:
		return LevelHigh
	case f.Confidence >= 0.5:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Report is the structured record extracted from a consultation transcript.
// The JSON shape doubles as the wire contract with the analysis endpoint.
type Report struct {
	PatientName    Field `json:"patient_name"`
	Species        Field `json:"species"`
	ChiefComplaint Field `json:"chief_complaint"`
	History        Field `json:"history"`
	Examination    Field `json:"examination"`
	Diagnosis      Field `json:"diagnosis"`
	Treatment      Field `json:"treatment"`
	Medications    Field `json:"medications"`
	FollowUp       Field `json:"follow_up"`

	// Note is an optional free-text remark from the model that fits no
	// structured field.
	Note string `json:"note,omitempty"`
}

// Paths lists every leaf field path, in presentation order. Path strings
// match the JSON tags.
func Paths() []string {
	return []string{
		"patient_name",
		"species",
		"chief_complaint",
		"history",
		"examination",
		"diagnosis",
		"treatment",
		"medications",
		"follow_up",
	}
}

// fieldByPath resolves a leaf path to the addressed Field within r.
// Returns nil for unknown paths.
func fieldByPath(r *Report, path string) *Field {
	switch path {
	case "patient_name":
		return &r.PatientName
	case "species":
		return &r.Species
	case "chief_complaint":
		return &r.ChiefComplaint
	case "history":
		return &r.History
	case "examination":
		return &r.Examination
	case "diagnosis":
		return &r.Diagnosis
	case "treatment":
		return &r.Treatment
	case "medications":
		return &r.Medications
	case "follow_up":
		return &r.FollowUp
	default:
		return nil
	}
}

// FieldAt returns the leaf at path, and whether the path is valid.
func (r Report) FieldAt(path string) (Field, bool) {
	f := fieldByPath(&r, path)
	if f == nil {
		return Field{}, false
	}
	return *f, true
}
