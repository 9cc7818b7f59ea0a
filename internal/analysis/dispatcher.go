package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jo-hoe/medscan/internal/document"
)

// ErrNoAnalyzer is returned when neither a local analyzer nor the remote API
// can handle a document
var ErrNoAnalyzer = errors.New("no analyzer available for document")

type DispatcherOptions struct {
	UseLocalModels      bool
	UseAPIFallback      bool
	ConfidenceThreshold float64
}

// Outcome is a finished analysis plus where it came from
type Outcome struct {
	Analysis       *document.Analysis
	Source         document.Source
	Analyzer       string
	FellBack       bool
	RequiresReview bool
}

// Dispatcher routes documents to the local analyzer for their type and falls
// back to the remote API
type Dispatcher struct {
	local   map[document.Type]Analyzer
	remote  Analyzer
	options DispatcherOptions
}

// NewDispatcher accepts a nil remote analyzer when no api endpoint is configured
func NewDispatcher(local map[document.Type]Analyzer, remote Analyzer, options DispatcherOptions) *Dispatcher {
	if local == nil {
		local = map[document.Type]Analyzer{}
	}
	return &Dispatcher{
		local:   local,
		remote:  remote,
		options: options,
	}
}

// HasLocal reports whether a local analyzer is bound to the type
func (d *Dispatcher) HasLocal(docType document.Type) bool {
	_, ok := d.local[docType]
	return ok && d.options.UseLocalModels
}

func (d *Dispatcher) HasRemote() bool {
	return d.remote != nil
}

func (d *Dispatcher) Dispatch(ctx context.Context, doc *document.Document) (*Outcome, error) {
	var localErr error

	if local, ok := d.local[doc.Type]; ok && d.options.UseLocalModels {
		analysis, err := d.run(ctx, local, doc)
		if err == nil {
			return d.outcome(analysis, document.SourceLocal, local.Name(), false), nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		if !d.options.UseAPIFallback {
			return nil, fmt.Errorf("local analyzer %s failed and api fallback is disabled: %w", local.Name(), err)
		}
		slog.Warn("local analysis failed, falling back to api",
			"analyzer", local.Name(),
			"document_type", doc.Type,
			"error", err)
		localErr = err
	}

	if d.remote == nil {
		if localErr != nil {
			return nil, fmt.Errorf("local analysis failed and no api endpoint is configured: %w", localErr)
		}
		return nil, fmt.Errorf("%w: %s", ErrNoAnalyzer, doc.Type)
	}

	analysis, err := d.run(ctx, d.remote, doc)
	if err != nil {
		return nil, fmt.Errorf("remote analysis failed: %w", err)
	}
	return d.outcome(analysis, document.SourceAPI, d.remote.Name(), localErr != nil), nil
}

func (d *Dispatcher) run(ctx context.Context, analyzer Analyzer, doc *document.Document) (*document.Analysis, error) {
	start := time.Now()
	analysis, err := analyzer.Analyze(ctx, doc)
	if err != nil {
		return nil, err
	}
	if analysis == nil {
		return nil, fmt.Errorf("analyzer %s returned no result", analyzer.Name())
	}
	normalize(analysis)

	slog.Info("document analyzed",
		"analyzer", analyzer.Name(),
		"document_type", doc.Type,
		"finding_count", len(analysis.Findings),
		"confidence", analysis.TopConfidence(),
		"duration_ms", time.Since(start).Milliseconds())
	return analysis, nil
}

func (d *Dispatcher) outcome(analysis *document.Analysis, source document.Source, analyzer string, fellBack bool) *Outcome {
	return &Outcome{
		Analysis:       analysis,
		Source:         source,
		Analyzer:       analyzer,
		FellBack:       fellBack,
		RequiresReview: analysis.TopConfidence() < d.options.ConfidenceThreshold,
	}
}

// normalize maps percentage confidences onto 0..1
func normalize(analysis *document.Analysis) {
	analysis.Confidence = unitConfidence(analysis.Confidence)
	for i := range analysis.Findings {
		analysis.Findings[i].Confidence = unitConfidence(analysis.Findings[i].Confidence)
	}
}

func unitConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		if c > 100 {
			return 1
		}
		return c / 100
	}
	return c
}
