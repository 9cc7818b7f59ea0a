package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jo-hoe/medscan/internal/language"
	"github.com/jo-hoe/medscan/internal/translate"
)

// System message keys
const (
	MessageWelcome   = "welcome"
	MessageScanning  = "scanning"
	MessageAnalyzing = "analyzing"
	MessageError     = "error"
	MessageComplete  = "complete"
)

var systemMessages = map[string]string{
	MessageWelcome:   "Welcome to the Medical Imaging Analysis System. Please place your document on the scanner and press the button.",
	MessageScanning:  "Scanning your document. Please wait.",
	MessageAnalyzing: "Document scanned. Now analyzing the results.",
	MessageError:     "An error occurred. Please try again.",
	MessageComplete:  "Analysis complete. I will now read the results.",
}

// MessageKeys returns the system message keys in playback order of a scan
func MessageKeys() []string {
	return []string{MessageWelcome, MessageScanning, MessageAnalyzing, MessageComplete, MessageError}
}

// Speaker owns the audio output. System messages are synthesized once per
// language at startup; result text is synthesized on demand.
type Speaker struct {
	synthesizer Synthesizer
	translator  translate.Translator
	player      Player
	dir         string
	languages   []string

	// playback is serialized, the device has one speaker
	playMu sync.Mutex

	mu       sync.RWMutex
	messages map[string]map[string]string // language -> key -> file
}

func NewSpeaker(synthesizer Synthesizer, translator translate.Translator, player Player, dir string, languages []string) *Speaker {
	if translator == nil {
		translator = translate.Passthrough{}
	}
	return &Speaker{
		synthesizer: synthesizer,
		translator:  translator,
		player:      player,
		dir:         dir,
		languages:   languages,
		messages:    make(map[string]map[string]string),
	}
}

// Prepare synthesizes every system message for every supported language.
// Languages that fail are reported in the returned error; messages for them
// fall back to English at playback time.
func (s *Speaker) Prepare(ctx context.Context) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create audio directory: %w", err)
	}

	start := time.Now()
	var errs []error
	for _, lang := range s.languages {
		for _, key := range MessageKeys() {
			path, err := s.prepareMessage(ctx, lang, key)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s/%s: %w", lang, key, err))
				continue
			}
			s.mu.Lock()
			if s.messages[lang] == nil {
				s.messages[lang] = make(map[string]string)
			}
			s.messages[lang][key] = path
			s.mu.Unlock()
		}
	}

	slog.Info("system audio prepared",
		"language_count", len(s.languages),
		"failed_count", len(errs),
		"duration_ms", time.Since(start).Milliseconds())
	return errors.Join(errs...)
}

func (s *Speaker) prepareMessage(ctx context.Context, lang, key string) (string, error) {
	text, err := s.translator.Translate(ctx, systemMessages[key], lang)
	if err != nil {
		return "", err
	}
	audio, err := s.synthesizer.Synthesize(ctx, text, lang)
	if err != nil {
		return "", err
	}
	if len(audio) == 0 {
		return "", nil
	}
	path := filepath.Join(s.dir, fmt.Sprintf("system_%s_%s.mp3", lang, key))
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (s *Speaker) messagePath(lang, key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if path := s.messages[lang][key]; path != "" {
		return path
	}
	return s.messages[language.English][key]
}

// PlayMessage plays a pre-generated system message
func (s *Speaker) PlayMessage(ctx context.Context, key, lang string) error {
	if _, ok := systemMessages[key]; !ok {
		return fmt.Errorf("unknown system message: %s", key)
	}
	path := s.messagePath(lang, key)
	if path == "" {
		slog.Info("system message without audio", "message", key, "language", lang, "text", systemMessages[key])
		return nil
	}
	return s.play(ctx, path)
}

// Speak translates English text into lang and reads it aloud
func (s *Speaker) Speak(ctx context.Context, text, lang string) error {
	translated, err := s.translator.Translate(ctx, text, lang)
	if err != nil {
		return err
	}
	audio, err := s.synthesizer.Synthesize(ctx, translated, lang)
	if err != nil {
		return fmt.Errorf("speech synthesis failed: %w", err)
	}
	if len(audio) == 0 {
		slog.Info("speech output without audio", "language", lang, "text", translated)
		return nil
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	file, err := os.CreateTemp(s.dir, "speech_*.mp3")
	if err != nil {
		return err
	}
	path := file.Name()
	defer func() {
		_ = os.Remove(path)
	}()
	if _, err := file.Write(audio); err != nil {
		_ = file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	return s.play(ctx, path)
}

func (s *Speaker) play(ctx context.Context, path string) error {
	s.playMu.Lock()
	defer s.playMu.Unlock()
	if err := s.player.Play(ctx, path); err != nil {
		return fmt.Errorf("audio playback failed: %w", err)
	}
	return nil
}
