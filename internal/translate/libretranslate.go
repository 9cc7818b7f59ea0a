package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jo-hoe/medscan/internal/language"
)

type libreRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
	APIKey string `json:"api_key,omitempty"`
}

type libreResponse struct {
	TranslatedText string `json:"translatedText"`
	Error          string `json:"error"`
}

// LibreTranslate calls a LibreTranslate server's /translate endpoint
type LibreTranslate struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewLibreTranslate(endpoint, apiKey string, timeout time.Duration) (*LibreTranslate, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("libretranslate endpoint must not be empty")
	}
	return &LibreTranslate{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

func (l *LibreTranslate) Name() string { return "libretranslate" }

func (l *LibreTranslate) Translate(ctx context.Context, text, targetLanguage string) (string, error) {
	body, err := json.Marshal(libreRequest{
		Q:      text,
		Source: "en",
		Target: language.ISOCode(targetLanguage),
		Format: "text",
		APIKey: l.apiKey,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.endpoint+"/translate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	var decoded libreResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		return "", fmt.Errorf("status %d, undecodable response: %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, decoded.Error)
	}
	if decoded.TranslatedText == "" {
		return "", fmt.Errorf("empty translation")
	}
	return decoded.TranslatedText, nil
}
