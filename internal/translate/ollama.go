package translate

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/jo-hoe/medscan/internal/language"
)

// OllamaTranslator prompts a locally hosted multilingual model
type OllamaTranslator struct {
	client *api.Client
	model  string
}

func NewOllamaTranslator(endpoint, model string, timeout time.Duration) (*OllamaTranslator, error) {
	if model == "" {
		return nil, fmt.Errorf("ollama translation needs a model")
	}
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	base, err := url.Parse(endpoint)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid ollama endpoint %q", endpoint)
	}
	return &OllamaTranslator{
		client: api.NewClient(base, &http.Client{Timeout: timeout}),
		model:  model,
	}, nil
}

func (o *OllamaTranslator) Name() string { return "ollama" }

func (o *OllamaTranslator) Translate(ctx context.Context, text, targetLanguage string) (string, error) {
	stream := false
	req := &api.ChatRequest{
		Model: o.model,
		Messages: []api.Message{
			{
				Role: "system",
				Content: fmt.Sprintf("Translate the user's English text into %s. Keep medical terms accurate "+
					"and reply with the translation only.", language.DisplayName(targetLanguage)),
			},
			{Role: "user", Content: text},
		},
		Stream: &stream,
	}

	var out strings.Builder
	err := o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		out.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", err
	}
	translated := strings.TrimSpace(out.String())
	if translated == "" {
		return "", fmt.Errorf("empty translation")
	}
	return translated, nil
}
