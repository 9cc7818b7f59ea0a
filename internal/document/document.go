package document

import (
	"fmt"
	"strings"
	"time"
)

// Type is the medical imaging modality of a scanned document
type Type string

const (
	TypeXRay       Type = "xray"
	TypeMRI        Type = "mri"
	TypeCT         Type = "ct"
	TypeECG        Type = "ecg"
	TypeUltrasound Type = "ultrasound"
	TypeTextReport Type = "text_report"
	TypeUnknown    Type = "unknown"
)

// Source identifies which side produced an analysis
type Source string

const (
	SourceLocal Source = "local"
	SourceAPI   Source = "api"
)

var displayNames = map[Type]string{
	TypeXRay:       "X-ray",
	TypeMRI:        "MRI",
	TypeCT:         "CT scan",
	TypeECG:        "ECG",
	TypeUltrasound: "ultrasound",
	TypeTextReport: "medical report",
	TypeUnknown:    "unknown document",
}

// AllTypes lists every known modality including unknown
func AllTypes() []Type {
	return []Type{TypeXRay, TypeMRI, TypeCT, TypeECG, TypeUltrasound, TypeTextReport, TypeUnknown}
}

// ParseType converts a config or API string into a Type
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := displayNames[t]; !ok {
		return "", fmt.Errorf("unknown document type: %q", s)
	}
	return t, nil
}

// DisplayName returns a human readable modality name used in spoken output
func (t Type) DisplayName() string {
	if name, ok := displayNames[t]; ok {
		return name
	}
	return string(t)
}

// Document is a scanned document ready for analysis
type Document struct {
	Path  string
	Image []byte // normalized PNG
	Text  string // OCR output
	// TextConfidence is the OCR engine's mean word confidence (0..1), zero if unknown
	TextConfidence float64
	Type           Type
	Language       string
}

// Finding is a single condition reported by an analyzer
type Finding struct {
	Condition  string  `json:"condition"`
	Confidence float64 `json:"confidence"`
	Details    string  `json:"details,omitempty"`
}

// Analysis is what an analyzer returns for one document
type Analysis struct {
	Findings   []Finding `json:"findings"`
	Summary    string    `json:"summary"`
	Confidence float64   `json:"confidence"`
}

// TopConfidence returns the explicit confidence or, when absent, the highest finding confidence
func (a *Analysis) TopConfidence() float64 {
	if a.Confidence > 0 {
		return a.Confidence
	}
	top := 0.0
	for _, f := range a.Findings {
		if f.Confidence > top {
			top = f.Confidence
		}
	}
	return top
}

// Result is the record persisted for every scan
type Result struct {
	ID             string    `json:"id"`
	DocumentType   Type      `json:"document_type"`
	Source         Source    `json:"source"`
	Analyzer       string    `json:"analyzer"`
	Findings       []Finding `json:"findings"`
	Summary        string    `json:"summary"`
	Confidence     float64   `json:"confidence"`
	RequiresReview bool      `json:"requires_review"`
	Language       string    `json:"language"`
	ScanPath       string    `json:"scan_path"`
	ResultFile     string    `json:"result_file,omitempty"`
	TextExcerpt    string    `json:"text_excerpt,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// SpokenSummary renders the result as the English sentence that is translated and read aloud
func (r *Result) SpokenSummary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Document type: %s.", r.DocumentType.DisplayName())

	if len(r.Findings) == 0 {
		b.WriteString(" No significant findings were detected.")
	} else {
		b.WriteString(" Findings:")
		for i, f := range r.Findings {
			if i > 0 {
				b.WriteString(";")
			}
			fmt.Fprintf(&b, " %s, %d percent confidence", f.Condition, percent(f.Confidence))
		}
		b.WriteString(".")
	}

	if r.Summary != "" {
		b.WriteString(" ")
		b.WriteString(strings.TrimSpace(r.Summary))
		if !strings.HasSuffix(b.String(), ".") {
			b.WriteString(".")
		}
	}

	if r.RequiresReview {
		b.WriteString(" The confidence of this result is low. Please consult a doctor to review it.")
	} else {
		b.WriteString(" This is not a diagnosis. Please consult a doctor.")
	}
	return b.String()
}

// Headline returns a short two-line summary for a 16 character display
func (r *Result) Headline() (string, string) {
	line2 := "No findings"
	if len(r.Findings) > 0 {
		line2 = fmt.Sprintf("%s %d%%", r.Findings[0].Condition, percent(r.Findings[0].Confidence))
	}
	return r.DocumentType.DisplayName(), line2
}

func percent(confidence float64) int {
	if confidence <= 1 {
		confidence *= 100
	}
	return int(confidence + 0.5)
}
