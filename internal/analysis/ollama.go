package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/jo-hoe/medscan/internal/common"
	"github.com/jo-hoe/medscan/internal/document"
)

const (
	OllamaVisionAnalyzerName = "ollama-vision"

	defaultOllamaEndpoint = "http://localhost:11434"
	defaultTimeoutSeconds = 120
)

const analysisJSONInstruction = `Respond only with JSON of the form ` +
	`{"findings":[{"condition":"...","confidence":0.0,"details":"..."}],"summary":"...","confidence":0.0}. ` +
	`Confidences are between 0 and 1. Use plain language a patient understands. ` +
	`If nothing abnormal is visible, return an empty findings list.`

var modalityFocus = map[document.Type]string{
	document.TypeXRay: "This is a chest or skeletal X-ray. Look for fractures, pneumonia, effusion, " +
		"cardiomegaly, nodules and foreign objects.",
	document.TypeMRI: "This is an MRI slice. Look for tumors, lesions, edema, haemorrhage and " +
		"ligament or disc abnormalities.",
	document.TypeCT: "This is a CT scan. Look for masses, bleeding, fractures, organ enlargement " +
		"and abnormal densities.",
	document.TypeECG: "This is an ECG printout. Read the rhythm, estimate the heart rate and look for " +
		"arrhythmia, ST changes, conduction blocks and signs of infarction.",
	document.TypeUltrasound: "This is an ultrasound image. Describe visible structures and anything abnormal.",
}

func init() {
	mustRegister(OllamaVisionAnalyzerName, NewOllamaVisionAnalyzer)
}

func newOllamaClient(endpoint string, timeout time.Duration) (*api.Client, error) {
	base, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama endpoint %q: %w", endpoint, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid ollama endpoint %q: scheme and host required", endpoint)
	}
	return api.NewClient(base, &http.Client{Timeout: timeout}), nil
}

// chatJSON sends a single non-streaming chat turn that must answer in JSON
func chatJSON(ctx context.Context, client *api.Client, model, system, prompt string, images ...[]byte) (string, error) {
	stream := false
	user := api.Message{Role: "user", Content: prompt}
	for _, img := range images {
		user.Images = append(user.Images, api.ImageData(img))
	}

	req := &api.ChatRequest{
		Model:    model,
		Messages: []api.Message{{Role: "system", Content: system}, user},
		Stream:   &stream,
		Format:   json.RawMessage(`"json"`),
	}

	var content strings.Builder
	err := client.Chat(ctx, req, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", err
	}
	return content.String(), nil
}

// parseAnalysis decodes a model answer, tolerating markdown fences around the JSON
func parseAnalysis(content string) (*document.Analysis, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("model response contains no JSON object")
	}

	var analysis document.Analysis
	if err := json.Unmarshal([]byte(content[start:end+1]), &analysis); err != nil {
		return nil, fmt.Errorf("failed to decode model response: %w", err)
	}
	if analysis.Summary == "" && len(analysis.Findings) == 0 {
		return nil, fmt.Errorf("model response has neither findings nor summary")
	}
	return &analysis, nil
}

// OllamaVisionAnalyzer sends the scan to a vision model hosted by Ollama
type OllamaVisionAnalyzer struct {
	client *api.Client
	model  string
	prompt string
}

func NewOllamaVisionAnalyzer(params map[string]any) (Analyzer, error) {
	if err := common.ValidateRequiredParams(params, []string{"model"}); err != nil {
		return nil, err
	}
	model := common.GetStringParam(params, "model", "")
	if model == "" {
		return nil, fmt.Errorf("model must not be empty")
	}
	timeout := time.Duration(common.GetIntParam(params, "timeoutSeconds", defaultTimeoutSeconds)) * time.Second
	client, err := newOllamaClient(common.GetStringParam(params, "endpoint", defaultOllamaEndpoint), timeout)
	if err != nil {
		return nil, err
	}
	return &OllamaVisionAnalyzer{
		client: client,
		model:  model,
		prompt: common.GetStringParam(params, "prompt", ""),
	}, nil
}

func (a *OllamaVisionAnalyzer) Name() string {
	return OllamaVisionAnalyzerName
}

func (a *OllamaVisionAnalyzer) Analyze(ctx context.Context, doc *document.Document) (*document.Analysis, error) {
	if len(doc.Image) == 0 {
		return nil, fmt.Errorf("document has no image data")
	}

	start := time.Now()
	content, err := chatJSON(ctx, a.client, a.model, analysisJSONInstruction, a.promptFor(doc), doc.Image)
	if err != nil {
		return nil, fmt.Errorf("vision model %s failed: %w", a.model, err)
	}
	slog.Debug("vision model answered",
		"model", a.model,
		"document_type", doc.Type,
		"duration_ms", time.Since(start).Milliseconds(),
		"response_size_bytes", len(content))

	return parseAnalysis(content)
}

func (a *OllamaVisionAnalyzer) promptFor(doc *document.Document) string {
	if a.prompt != "" {
		return a.prompt
	}
	focus, ok := modalityFocus[doc.Type]
	if !ok {
		focus = "Describe this medical document and anything abnormal in it."
	}
	var b strings.Builder
	b.WriteString(focus)
	if text := strings.TrimSpace(doc.Text); text != "" {
		b.WriteString("\nText printed on the document:\n")
		b.WriteString(excerpt(text, 1500))
	}
	return b.String()
}

func excerpt(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}
