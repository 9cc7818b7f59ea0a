// Package translate turns English result text into the listener's language
// using a hosted translation service.
package translate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jo-hoe/medscan/internal/language"
)

// Translator translates English text into the target language
type Translator interface {
	Name() string
	Translate(ctx context.Context, text, targetLanguage string) (string, error)
}

// Config selects and configures the translation provider
type Config struct {
	Provider       string `yaml:"provider" validate:"omitempty,oneof=libretranslate ollama none"`
	Endpoint       string `yaml:"endpoint"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds" validate:"gte=0"`
}

// New creates the configured translator wrapped so that English text is
// never sent to the provider
func New(cfg Config) (Translator, error) {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var inner Translator
	var err error
	switch cfg.Provider {
	case "", "none":
		inner = Passthrough{}
	case "libretranslate":
		inner, err = NewLibreTranslate(cfg.Endpoint, cfg.APIKey, timeout)
	case "ollama":
		inner, err = NewOllamaTranslator(cfg.Endpoint, cfg.Model, timeout)
	default:
		return nil, fmt.Errorf("unsupported translation provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return &englishPassthrough{inner: inner}, nil
}

// Passthrough returns the input unchanged, used when no provider is configured
type Passthrough struct{}

func (Passthrough) Name() string { return "none" }

func (Passthrough) Translate(_ context.Context, text, _ string) (string, error) {
	return text, nil
}

type englishPassthrough struct {
	inner Translator
}

func (e *englishPassthrough) Name() string { return e.inner.Name() }

func (e *englishPassthrough) Translate(ctx context.Context, text, targetLanguage string) (string, error) {
	if strings.TrimSpace(text) == "" || language.ISOCode(targetLanguage) == "en" {
		return text, nil
	}

	start := time.Now()
	translated, err := e.inner.Translate(ctx, text, targetLanguage)
	if err != nil {
		return "", fmt.Errorf("%s translation to %s failed: %w", e.inner.Name(), targetLanguage, err)
	}
	slog.Debug("text translated",
		"provider", e.inner.Name(),
		"language", targetLanguage,
		"duration_ms", time.Since(start).Milliseconds(),
		"input_chars", len(text))
	return translated, nil
}
