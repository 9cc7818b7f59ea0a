package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jo-hoe/medscan/internal/analysis"
	"github.com/jo-hoe/medscan/internal/backend/database"
	"github.com/jo-hoe/medscan/internal/document"
	"github.com/jo-hoe/medscan/internal/hardware"
	"github.com/jo-hoe/medscan/internal/imageprocessing"
	"github.com/jo-hoe/medscan/internal/language"
	"github.com/jo-hoe/medscan/internal/metrics"
	"github.com/jo-hoe/medscan/internal/ocr"
	"github.com/jo-hoe/medscan/internal/scanner"
	"github.com/jo-hoe/medscan/internal/speech"
)

// ErrBusy is returned when a scan is requested while another one runs
var ErrBusy = errors.New("a scan is already in progress")

// ErrUnsupportedLanguage is returned for languages outside supported_languages
var ErrUnsupportedLanguage = errors.New("language is not supported")

// Scan triggers
const (
	TriggerButton = "button"
	TriggerAPI    = "api"
	TriggerUpload = "upload"
)

// Language sources reported by Status
const (
	LanguageFromSwitch  = "switch"
	LanguageFromAPI     = "api"
	LanguageFromDefault = "default"
)

const defaultErrorHold = 3 * time.Second

// Announcer plays system messages and reads results aloud
type Announcer interface {
	PlayMessage(ctx context.Context, key, lang string) error
	Speak(ctx context.Context, text, lang string) error
}

// Dependencies are the collaborators of the pipeline, built by the caller
type Dependencies struct {
	Scanner      scanner.Scanner
	OCR          ocr.Engine
	Preprocessor *imageprocessing.CommandInvoker
	Dispatcher   *analysis.Dispatcher
	Announcer    Announcer
	Panel        hardware.Panel
	Database     database.DatabaseService
	Metrics      *metrics.Metrics
}

// Status is a snapshot of the device state
type Status struct {
	Language           string    `json:"language"`
	LanguageSource     string    `json:"language_source"`
	SupportedLanguages []string  `json:"supported_languages"`
	Busy               bool      `json:"busy"`
	HardwareAvailable  bool      `json:"hardware_available"`
	Scanner            string    `json:"scanner"`
	OCREngine          string    `json:"ocr_engine"`
	LastScanAt         time.Time `json:"last_scan_at,omitzero"`
	LastResultID       string    `json:"last_result_id,omitempty"`
	LastError          string    `json:"last_error,omitempty"`
}

type CoreService struct {
	config *ServiceConfig

	scanner      scanner.Scanner
	ocr          ocr.Engine
	preprocessor *imageprocessing.CommandInvoker
	normalizer   imageprocessing.Command
	dispatcher   *analysis.Dispatcher
	announcer    Announcer
	panel        hardware.Panel
	database     database.DatabaseService
	metrics      *metrics.Metrics

	busy      atomic.Bool
	scans     sync.WaitGroup
	errorHold time.Duration
	now       func() time.Time

	mu          sync.RWMutex
	apiLanguage string
	lastScanAt  time.Time
	lastResult  string
	lastError   string
}

func NewCoreService(config *ServiceConfig, deps Dependencies) (*CoreService, error) {
	if deps.Scanner == nil || deps.Dispatcher == nil || deps.Announcer == nil || deps.Database == nil {
		return nil, fmt.Errorf("scanner, dispatcher, announcer and database are required")
	}
	if deps.OCR == nil {
		deps.OCR = ocr.NoopEngine{}
	}
	if deps.Preprocessor == nil {
		deps.Preprocessor = imageprocessing.NewCommandInvoker(nil)
	}
	if deps.Panel == nil {
		deps.Panel = hardware.Noop{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	normalizer, err := imageprocessing.NewPngConverterCommand(nil)
	if err != nil {
		return nil, err
	}

	for _, dir := range []string{config.TempPath, config.OutputPath} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return &CoreService{
		config:       config,
		scanner:      deps.Scanner,
		ocr:          deps.OCR,
		preprocessor: deps.Preprocessor,
		normalizer:   normalizer,
		dispatcher:   deps.Dispatcher,
		announcer:    deps.Announcer,
		panel:        deps.Panel,
		database:     deps.Database,
		metrics:      deps.Metrics,
		errorHold:    defaultErrorHold,
		now:          time.Now,
	}, nil
}

// Startup runs the LED self test, shows the ready state and plays the welcome message
func (s *CoreService) Startup(ctx context.Context) {
	if s.panel.Available() {
		hardware.SelfTest(ctx, s.panel, time.Duration(s.config.Hardware.SelfTestMillis)*time.Millisecond)
	}
	s.showReady()
	lang, _ := s.currentLanguage()
	if err := s.announcer.PlayMessage(ctx, speech.MessageWelcome, lang); err != nil {
		slog.Warn("failed to play welcome message", "error", err)
	}
	slog.Info("device ready",
		"language", lang,
		"scanner", s.scanner.DeviceInfo(),
		"hardware", s.panel.Available())
}

// WatchButton starts a scan for every button press until ctx is done. Presses
// during a running scan are dropped. It returns once running scans finished.
func (s *CoreService) WatchButton(ctx context.Context) {
	defer s.scans.Wait()
	for range s.panel.Presses(ctx) {
		s.scans.Add(1)
		go func() {
			defer s.scans.Done()
			if _, err := s.RunScan(ctx, TriggerButton); errors.Is(err, ErrBusy) {
				slog.Info("button press ignored, scan in progress")
			}
		}()
	}
}

// Busy reports whether a scan is running
func (s *CoreService) Busy() bool {
	return s.busy.Load()
}

// Language returns the language results are spoken in
func (s *CoreService) Language() string {
	lang, _ := s.currentLanguage()
	return lang
}

func (s *CoreService) currentLanguage() (string, string) {
	if s.panel.Available() {
		if lang, ok := s.panel.Language(); ok && s.config.IsSupportedLanguage(lang) {
			return lang, LanguageFromSwitch
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.apiLanguage != "" {
		return s.apiLanguage, LanguageFromAPI
	}
	return s.config.DefaultLanguage, LanguageFromDefault
}

// SetLanguage selects the language used when the panel switch does not decide
func (s *CoreService) SetLanguage(lang string) error {
	normalized, err := language.Normalize(lang)
	if err != nil || !s.config.IsSupportedLanguage(normalized) {
		return fmt.Errorf("%w: %s", ErrUnsupportedLanguage, lang)
	}
	s.mu.Lock()
	s.apiLanguage = normalized
	s.mu.Unlock()
	slog.Info("language changed", "language", normalized)
	if !s.Busy() {
		s.showReady()
	}
	return nil
}

func (s *CoreService) Status() Status {
	lang, source := s.currentLanguage()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		Language:           lang,
		LanguageSource:     source,
		SupportedLanguages: s.config.SupportedLanguages,
		Busy:               s.Busy(),
		HardwareAvailable:  s.panel.Available(),
		Scanner:            s.scanner.DeviceInfo(),
		OCREngine:          s.ocr.Name(),
		LastScanAt:         s.lastScanAt,
		LastResultID:       s.lastResult,
		LastError:          s.lastError,
	}
}

func (s *CoreService) ListResults(ctx context.Context, limit int) ([]*document.Result, error) {
	return s.database.ListResults(ctx, limit)
}

func (s *CoreService) GetResult(ctx context.Context, id string) (*document.Result, error) {
	return s.database.GetResult(ctx, id)
}

// DeleteResult removes the result from the index and its result file
func (s *CoreService) DeleteResult(ctx context.Context, id string) error {
	result, err := s.database.GetResult(ctx, id)
	if err != nil {
		return err
	}
	if err := s.database.DeleteResult(ctx, id); err != nil {
		return err
	}
	if result.ResultFile != "" {
		if err := os.Remove(result.ResultFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("failed to remove result file", "result_id", id, "path", result.ResultFile, "error", err)
		}
	}
	slog.Info("result deleted", "result_id", id)
	return nil
}

// Metrics returns the collectors the pipeline reports to
func (s *CoreService) Metrics() *metrics.Metrics {
	return s.metrics
}

func (s *CoreService) Close() error {
	return errors.Join(s.database.Close(), s.panel.Close())
}

func (s *CoreService) recordOutcome(result *document.Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastScanAt = s.now()
	if err != nil {
		s.lastError = err.Error()
		return
	}
	s.lastError = ""
	s.lastResult = result.ID
}

func (s *CoreService) setLED(led hardware.LED, on bool) {
	if err := s.panel.SetLED(led, on); err != nil {
		slog.Warn("failed to set led", "led", led, "on", on, "error", err)
	}
}

func (s *CoreService) display(line1, line2 string) {
	if err := s.panel.Display(line1, line2); err != nil {
		slog.Debug("display update failed", "error", err)
	}
}

func (s *CoreService) showReady() {
	s.setLED(hardware.LEDReady, true)
	s.setLED(hardware.LEDButtonLight, true)
	s.display("Ready", language.DisplayName(s.Language()))
}
