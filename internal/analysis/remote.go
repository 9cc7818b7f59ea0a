package analysis

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jo-hoe/medscan/internal/common"
	"github.com/jo-hoe/medscan/internal/document"
)

const RemoteAnalyzerName = "remote"

func init() {
	mustRegister(RemoteAnalyzerName, NewRemoteAnalyzerFromParams)
}

type remoteRequest struct {
	Image        string `json:"image"`
	DocumentType string `json:"document_type"`
	Text         string `json:"text,omitempty"`
	Language     string `json:"language,omitempty"`
}

type remoteResponse struct {
	DocumentType string             `json:"document_type"`
	Findings     []document.Finding `json:"findings"`
	Summary      string             `json:"summary"`
	Confidence   float64            `json:"confidence"`
}

// RemoteAnalyzer calls the hosted disease-analysis API
type RemoteAnalyzer struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewRemoteAnalyzer(endpoint, apiKey string, timeout time.Duration) (*RemoteAnalyzer, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("api endpoint must not be empty")
	}
	if timeout <= 0 {
		timeout = defaultTimeoutSeconds * time.Second
	}
	return &RemoteAnalyzer{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

func NewRemoteAnalyzerFromParams(params map[string]any) (Analyzer, error) {
	return NewRemoteAnalyzer(
		common.GetStringParam(params, "endpoint", ""),
		common.GetStringParam(params, "apiKey", ""),
		time.Duration(common.GetIntParam(params, "timeoutSeconds", defaultTimeoutSeconds))*time.Second,
	)
}

func (a *RemoteAnalyzer) Name() string {
	return RemoteAnalyzerName
}

func (a *RemoteAnalyzer) Analyze(ctx context.Context, doc *document.Document) (*document.Analysis, error) {
	body, err := json.Marshal(remoteRequest{
		Image:        base64.StdEncoding.EncodeToString(doc.Image),
		DocumentType: string(doc.Type),
		Text:         excerpt(doc.Text, 4000),
		Language:     doc.Language,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to analysis api failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("analysis api returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode analysis api response: %w", err)
	}

	// the API may classify documents the keyword search could not
	if docType, err := document.ParseType(decoded.DocumentType); err == nil && doc.Type == document.TypeUnknown {
		doc.Type = docType
	}

	return &document.Analysis{
		Findings:   decoded.Findings,
		Summary:    decoded.Summary,
		Confidence: decoded.Confidence,
	}, nil
}
