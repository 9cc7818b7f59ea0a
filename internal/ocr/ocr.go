// Package ocr defines the text recognition boundary of the pipeline.
// Recognition itself is delegated to an external engine (see ocr/tesseract).
package ocr

import (
	"context"

	"github.com/jo-hoe/medscan/internal/language"
)

// Input is a single image submitted for recognition
type Input struct {
	Image     []byte
	Languages []string // tesseract language codes, e.g. "eng", "tam"
	DPI       int
}

// Result is the recognized text of one input
type Result struct {
	Text       string
	Confidence float64 // 0..1, zero when the engine does not report it
}

// Engine recognizes text in an image
type Engine interface {
	Name() string
	Recognize(ctx context.Context, in Input) (Result, error)
}

// LanguageCodes maps a configured language name to tesseract codes. English is
// always included because report headers are printed in English even on
// Tamil or Malayalam documents.
func LanguageCodes(name string) []string {
	codes := []string{"eng"}
	if code := language.TesseractCode(name); code != "eng" {
		codes = append(codes, code)
	}
	return codes
}

// NoopEngine returns no text; every document is then classified as unknown
// and goes to the remote API, which does its own reading.
type NoopEngine struct{}

func (NoopEngine) Name() string { return "none" }

func (NoopEngine) Recognize(context.Context, Input) (Result, error) {
	return Result{}, nil
}
