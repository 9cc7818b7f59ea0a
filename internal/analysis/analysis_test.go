package analysis

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jo-hoe/medscan/internal/document"
)

type fakeAnalyzer struct {
	name     string
	analysis *document.Analysis
	err      error
	calls    int
}

func (f *fakeAnalyzer) Name() string { return f.name }

func (f *fakeAnalyzer) Analyze(context.Context, *document.Document) (*document.Analysis, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	copied := *f.analysis
	copied.Findings = append([]document.Finding(nil), f.analysis.Findings...)
	return &copied, nil
}

func okAnalyzer(name string, confidence float64) *fakeAnalyzer {
	return &fakeAnalyzer{name: name, analysis: &document.Analysis{
		Findings:   []document.Finding{{Condition: "normal", Confidence: confidence}},
		Summary:    "ok",
		Confidence: confidence,
	}}
}

// ollamaServer answers /api/chat with content and records the last request
func ollamaServer(t *testing.T, content string, lastRequest *map[string]any) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		if lastRequest != nil {
			_ = json.NewDecoder(r.Body).Decode(lastRequest)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":   "test",
			"message": map[string]any{"role": "assistant", "content": content},
			"done":    true,
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestAnalyzerRegistry(t *testing.T) {
	for _, name := range []string{OllamaVisionAnalyzerName, ReportAnalyzerName, RemoteAnalyzerName} {
		if !DefaultRegistry.IsRegistered(name) {
			t.Errorf("expected %s to be registered", name)
		}
	}

	registry := NewAnalyzerRegistry()
	factory := func(map[string]any) (Analyzer, error) { return okAnalyzer("x", 1), nil }
	if err := registry.Register("x", factory); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := registry.Register("x", factory); err == nil {
		t.Error("expected error for duplicate registration")
	}
	if _, err := registry.Create("missing", nil); err == nil {
		t.Error("expected error for unknown analyzer")
	}
}

func TestBuildAnalyzers(t *testing.T) {
	registry := NewAnalyzerRegistry()
	_ = registry.Register("fake", func(map[string]any) (Analyzer, error) { return okAnalyzer("fake", 1), nil })

	analyzers, err := BuildAnalyzers(registry, []AnalyzerConfig{
		{DocumentType: "xray", Name: "fake"},
		{DocumentType: "MRI", Name: "fake"},
	})
	if err != nil {
		t.Fatalf("BuildAnalyzers failed: %v", err)
	}
	if len(analyzers) != 2 || analyzers[document.TypeMRI] == nil {
		t.Errorf("unexpected analyzer table: %v", analyzers)
	}

	if _, err := BuildAnalyzers(registry, []AnalyzerConfig{{DocumentType: "xray", Name: "fake"}, {DocumentType: "xray", Name: "fake"}}); err == nil {
		t.Error("expected error for duplicate document type")
	}
	if _, err := BuildAnalyzers(registry, []AnalyzerConfig{{DocumentType: "pet", Name: "fake"}}); err == nil {
		t.Error("expected error for unknown document type")
	}
}

func TestParseAnalysis(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"plain", `{"findings":[{"condition":"fracture","confidence":0.8}],"summary":"s","confidence":0.8}`, false},
		{"fenced", "```json\n{\"summary\":\"fine\",\"findings\":[]}\n```", false},
		{"empty object", `{}`, true},
		{"no json", `I cannot help with that`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseAnalysis(tt.content)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseAnalysis() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestOllamaVisionAnalyzer(t *testing.T) {
	var request map[string]any
	server := ollamaServer(t, `{"findings":[{"condition":"pneumonia","confidence":0.72,"details":"left lower lobe"}],"summary":"possible pneumonia","confidence":0.72}`, &request)

	analyzer, err := NewOllamaVisionAnalyzer(map[string]any{"endpoint": server.URL, "model": "llava-med"})
	if err != nil {
		t.Fatalf("failed to create analyzer: %v", err)
	}

	analysis, err := analyzer.Analyze(context.Background(), &document.Document{
		Image: []byte{0x89, 'P', 'N', 'G'},
		Type:  document.TypeXRay,
		Text:  "CHEST X-RAY PA VIEW",
	})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if len(analysis.Findings) != 1 || analysis.Findings[0].Condition != "pneumonia" {
		t.Errorf("unexpected findings: %+v", analysis.Findings)
	}

	if request["model"] != "llava-med" {
		t.Errorf("expected model llava-med, got %v", request["model"])
	}
	messages, _ := request["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("expected system and user message, got %d", len(messages))
	}
	user, _ := messages[1].(map[string]any)
	if images, _ := user["images"].([]any); len(images) != 1 {
		t.Errorf("expected one image in user message, got %v", user["images"])
	}
	if content, _ := user["content"].(string); !strings.Contains(content, "fractures") {
		t.Errorf("expected X-ray focus in prompt, got %q", content)
	}
}

func TestOllamaVisionAnalyzer_Config(t *testing.T) {
	if _, err := NewOllamaVisionAnalyzer(map[string]any{}); err == nil {
		t.Error("expected error for missing model")
	}
	if _, err := NewOllamaVisionAnalyzer(map[string]any{"model": "m", "endpoint": "localhost"}); err == nil {
		t.Error("expected error for endpoint without scheme")
	}

	analyzer, _ := NewOllamaVisionAnalyzer(map[string]any{"model": "m"})
	if _, err := analyzer.Analyze(context.Background(), &document.Document{}); err == nil {
		t.Error("expected error for document without image")
	}
}

func TestGlossary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "medical_terminology.json")
	data := `{"Cardiomegaly": "an enlarged heart", "effusion": "fluid build-up", "ct": "computed tomography"}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("failed to write glossary: %v", err)
	}

	glossary, err := LoadGlossary(path)
	if err != nil {
		t.Fatalf("LoadGlossary failed: %v", err)
	}
	if glossary.Len() != 3 {
		t.Errorf("expected 3 terms, got %d", glossary.Len())
	}

	terms := glossary.Match("Impression: mild CARDIOMEGALY. No pleural effusion. Doctor signature.")
	if len(terms) != 2 || terms[0].Term != "cardiomegaly" || terms[1].Term != "effusion" {
		t.Errorf("unexpected matches: %+v", terms)
	}
	if terms := glossary.Match("the doctor"); len(terms) != 0 {
		t.Errorf("partial words must not match, got %+v", terms)
	}

	if _, err := LoadGlossary(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing glossary")
	}
}

func TestReportAnalyzer_GlossaryOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glossary.json")
	_ = os.WriteFile(path, []byte(`{"anaemia": "low red blood cell count"}`), 0o644)

	analyzer, err := NewReportAnalyzer(map[string]any{"glossaryPath": path})
	if err != nil {
		t.Fatalf("failed to create analyzer: %v", err)
	}

	analysis, err := analyzer.Analyze(context.Background(), &document.Document{
		Text:           "Patient report. Findings consistent with anaemia.",
		TextConfidence: 0.64,
	})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if len(analysis.Findings) != 1 || analysis.Findings[0].Details != "low red blood cell count" {
		t.Errorf("unexpected findings: %+v", analysis.Findings)
	}
	if analysis.Confidence != 0.64 {
		t.Errorf("expected OCR confidence to carry over, got %v", analysis.Confidence)
	}

	if _, err := analyzer.Analyze(context.Background(), &document.Document{Text: "   "}); err == nil {
		t.Error("expected error for empty report text")
	}
	if _, err := NewReportAnalyzer(map[string]any{}); err == nil {
		t.Error("expected error without glossary and model")
	}
}

func TestReportAnalyzer_WithModel(t *testing.T) {
	var request map[string]any
	server := ollamaServer(t, `{"findings":[],"summary":"Your blood count is normal.","confidence":0.9}`, &request)

	analyzer, err := NewReportAnalyzer(map[string]any{"endpoint": server.URL, "model": "meditron"})
	if err != nil {
		t.Fatalf("failed to create analyzer: %v", err)
	}
	analysis, err := analyzer.Analyze(context.Background(), &document.Document{Text: "Haemoglobin 14 g/dL"})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if analysis.Summary != "Your blood count is normal." {
		t.Errorf("unexpected summary %q", analysis.Summary)
	}
	if request["model"] != "meditron" {
		t.Errorf("expected model meditron, got %v", request["model"])
	}
}

func TestRemoteAnalyzer(t *testing.T) {
	var received remoteRequest
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"document_type":"ultrasound","findings":[{"condition":"gallstones","confidence":81}],"summary":"gallstones seen","confidence":81}`))
	}))
	defer server.Close()

	analyzer, err := NewRemoteAnalyzer(server.URL, "secret", 0)
	if err != nil {
		t.Fatalf("failed to create analyzer: %v", err)
	}

	doc := &document.Document{Image: []byte("png"), Type: document.TypeUnknown, Text: "abdomen", Language: "tamil"}
	analysis, err := analyzer.Analyze(context.Background(), doc)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if auth != "Bearer secret" {
		t.Errorf("expected bearer token, got %q", auth)
	}
	if received.Image != base64.StdEncoding.EncodeToString([]byte("png")) || received.DocumentType != "unknown" || received.Language != "tamil" {
		t.Errorf("unexpected request body: %+v", received)
	}
	if doc.Type != document.TypeUltrasound {
		t.Errorf("expected api classification to update unknown type, got %s", doc.Type)
	}
	if analysis.Summary != "gallstones seen" {
		t.Errorf("unexpected summary %q", analysis.Summary)
	}
}

func TestRemoteAnalyzer_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	analyzer, _ := NewRemoteAnalyzer(server.URL, "", 0)
	_, err := analyzer.Analyze(context.Background(), &document.Document{Type: document.TypeXRay})
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("expected status error, got %v", err)
	}

	if _, err := NewRemoteAnalyzer("", "", 0); err == nil {
		t.Error("expected error for empty endpoint")
	}
}

func TestDispatcher(t *testing.T) {
	localErr := errors.New("model offline")

	tests := []struct {
		name         string
		docType      document.Type
		local        *fakeAnalyzer
		remote       *fakeAnalyzer
		options      DispatcherOptions
		wantSource   document.Source
		wantFellBack bool
		wantErr      bool
		wantLocal    int
		wantRemote   int
	}{
		{
			name: "local success", docType: document.TypeXRay,
			local: okAnalyzer("local", 0.9), remote: okAnalyzer("remote", 0.9),
			options:    DispatcherOptions{UseLocalModels: true, UseAPIFallback: true},
			wantSource: document.SourceLocal, wantLocal: 1,
		},
		{
			name: "local disabled", docType: document.TypeXRay,
			local: okAnalyzer("local", 0.9), remote: okAnalyzer("remote", 0.9),
			options:    DispatcherOptions{UseLocalModels: false},
			wantSource: document.SourceAPI, wantRemote: 1,
		},
		{
			name: "no local analyzer for type", docType: document.TypeUltrasound,
			local: okAnalyzer("local", 0.9), remote: okAnalyzer("remote", 0.9),
			options:    DispatcherOptions{UseLocalModels: true},
			wantSource: document.SourceAPI, wantRemote: 1,
		},
		{
			name: "fallback after local failure", docType: document.TypeXRay,
			local: &fakeAnalyzer{name: "local", err: localErr}, remote: okAnalyzer("remote", 0.9),
			options:    DispatcherOptions{UseLocalModels: true, UseAPIFallback: true},
			wantSource: document.SourceAPI, wantFellBack: true, wantLocal: 1, wantRemote: 1,
		},
		{
			name: "fallback disabled", docType: document.TypeXRay,
			local: &fakeAnalyzer{name: "local", err: localErr}, remote: okAnalyzer("remote", 0.9),
			options: DispatcherOptions{UseLocalModels: true, UseAPIFallback: false},
			wantErr: true, wantLocal: 1,
		},
		{
			name: "remote failure", docType: document.TypeUnknown,
			local: okAnalyzer("local", 0.9), remote: &fakeAnalyzer{name: "remote", err: errors.New("503")},
			options: DispatcherOptions{UseLocalModels: true, UseAPIFallback: true},
			wantErr: true, wantRemote: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDispatcher(map[document.Type]Analyzer{document.TypeXRay: tt.local}, tt.remote, tt.options)
			outcome, err := d.Dispatch(context.Background(), &document.Document{Type: tt.docType})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Dispatch() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.local.calls != tt.wantLocal || tt.remote.calls != tt.wantRemote {
				t.Errorf("calls local=%d remote=%d, want %d/%d", tt.local.calls, tt.remote.calls, tt.wantLocal, tt.wantRemote)
			}
			if err != nil {
				return
			}
			if outcome.Source != tt.wantSource {
				t.Errorf("source = %s, want %s", outcome.Source, tt.wantSource)
			}
			if outcome.FellBack != tt.wantFellBack {
				t.Errorf("fellBack = %v, want %v", outcome.FellBack, tt.wantFellBack)
			}
		})
	}
}

func TestDispatcher_NoAnalyzer(t *testing.T) {
	d := NewDispatcher(nil, nil, DispatcherOptions{UseLocalModels: true})
	_, err := d.Dispatch(context.Background(), &document.Document{Type: document.TypeUnknown})
	if !errors.Is(err, ErrNoAnalyzer) {
		t.Errorf("expected ErrNoAnalyzer, got %v", err)
	}
}

func TestDispatcher_ReviewThresholdAndNormalization(t *testing.T) {
	remote := &fakeAnalyzer{name: "remote", analysis: &document.Analysis{
		Findings:   []document.Finding{{Condition: "nodule", Confidence: 45}},
		Confidence: 45,
	}}
	d := NewDispatcher(nil, remote, DispatcherOptions{ConfidenceThreshold: 0.7})

	outcome, err := d.Dispatch(context.Background(), &document.Document{Type: document.TypeCT})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if outcome.Analysis.Confidence != 0.45 || outcome.Analysis.Findings[0].Confidence != 0.45 {
		t.Errorf("expected percentages normalized to 0.45, got %+v", outcome.Analysis)
	}
	if !outcome.RequiresReview {
		t.Error("expected requires_review below threshold")
	}
}

func TestUnitConfidence(t *testing.T) {
	tests := map[float64]float64{-1: 0, 0.3: 0.3, 1: 1, 85: 0.85, 250: 1}
	for in, want := range tests {
		if got := unitConfidence(in); got != want {
			t.Errorf("unitConfidence(%v) = %v, want %v", in, got, want)
		}
	}
}
