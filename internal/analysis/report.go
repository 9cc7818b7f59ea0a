package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/jo-hoe/medscan/internal/common"
	"github.com/jo-hoe/medscan/internal/document"
)

const ReportAnalyzerName = "report"

const reportSystemPrompt = "You explain written medical reports to patients. " + analysisJSONInstruction

func init() {
	mustRegister(ReportAnalyzerName, NewReportAnalyzer)
}

// ReportAnalyzer handles typed or printed medical reports. Glossary terms
// found in the OCR text become findings; when a text model is configured it
// writes the summary.
type ReportAnalyzer struct {
	glossary *Glossary
	client   *api.Client
	model    string
}

func NewReportAnalyzer(params map[string]any) (Analyzer, error) {
	analyzer := &ReportAnalyzer{}

	if path := common.GetStringParam(params, "glossaryPath", ""); path != "" {
		glossary, err := LoadGlossary(path)
		if err != nil {
			return nil, err
		}
		analyzer.glossary = glossary
	}

	if model := common.GetStringParam(params, "model", ""); model != "" {
		timeout := time.Duration(common.GetIntParam(params, "timeoutSeconds", defaultTimeoutSeconds)) * time.Second
		client, err := newOllamaClient(common.GetStringParam(params, "endpoint", defaultOllamaEndpoint), timeout)
		if err != nil {
			return nil, err
		}
		analyzer.client = client
		analyzer.model = model
	}

	if analyzer.glossary == nil && analyzer.client == nil {
		return nil, fmt.Errorf("report analyzer needs a glossaryPath or a model")
	}
	return analyzer, nil
}

func (a *ReportAnalyzer) Name() string {
	return ReportAnalyzerName
}

func (a *ReportAnalyzer) Analyze(ctx context.Context, doc *document.Document) (*document.Analysis, error) {
	text := strings.TrimSpace(doc.Text)
	if text == "" {
		return nil, fmt.Errorf("report contains no readable text")
	}

	terms := a.glossary.Match(text)
	if a.client != nil {
		return a.summarize(ctx, text, terms)
	}
	return glossaryAnalysis(terms, doc.TextConfidence), nil
}

func (a *ReportAnalyzer) summarize(ctx context.Context, text string, terms []Term) (*document.Analysis, error) {
	var prompt strings.Builder
	prompt.WriteString("Medical report:\n")
	prompt.WriteString(excerpt(text, 4000))
	if len(terms) > 0 {
		prompt.WriteString("\n\nGlossary of terms used in this report:\n")
		for _, t := range terms {
			fmt.Fprintf(&prompt, "- %s: %s\n", t.Term, t.Explanation)
		}
	}

	content, err := chatJSON(ctx, a.client, a.model, reportSystemPrompt, prompt.String())
	if err != nil {
		return nil, fmt.Errorf("text model %s failed: %w", a.model, err)
	}
	return parseAnalysis(content)
}

// glossaryAnalysis reports what the document itself states, so findings carry
// full confidence and the overall confidence is the OCR confidence.
func glossaryAnalysis(terms []Term, textConfidence float64) *document.Analysis {
	analysis := &document.Analysis{Confidence: textConfidence}
	if analysis.Confidence <= 0 {
		analysis.Confidence = 1
	}

	if len(terms) == 0 {
		analysis.Summary = "The report mentions no terms from the medical glossary."
		return analysis
	}

	names := make([]string, 0, len(terms))
	for _, t := range terms {
		analysis.Findings = append(analysis.Findings, document.Finding{
			Condition:  t.Term,
			Confidence: 1,
			Details:    t.Explanation,
		})
		names = append(names, t.Term)
	}
	analysis.Summary = "The report mentions " + strings.Join(names, ", ") + "."
	return analysis
}
