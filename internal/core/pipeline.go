package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jo-hoe/medscan/internal/document"
	"github.com/jo-hoe/medscan/internal/hardware"
	"github.com/jo-hoe/medscan/internal/imageprocessing"
	"github.com/jo-hoe/medscan/internal/ocr"
	"github.com/jo-hoe/medscan/internal/speech"
)

const textExcerptLength = 500

// maxNameAttempts bounds the numeric suffixes tried for one timestamp
const maxNameAttempts = 1000

var uploadExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".tif": true, ".tiff": true,
	".bmp": true, ".webp": true, ".gif": true, ".svg": true, ".pdf": true,
}

// stageError tags a pipeline failure with the step that failed
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.stage + ": " + e.err.Error() }

func (e *stageError) Unwrap() error { return e.err }

func inStage(stage string, err error) error {
	if err == nil {
		return nil
	}
	var se *stageError
	if errors.As(err, &se) {
		return err
	}
	return &stageError{stage: stage, err: err}
}

func stageOf(err error) string {
	var se *stageError
	if errors.As(err, &se) {
		return se.stage
	}
	return "unknown"
}

// RunScan scans one document, analyzes it and reads the result aloud. Only
// one scan runs at a time; concurrent calls return ErrBusy.
func (s *CoreService) RunScan(ctx context.Context, trigger string) (*document.Result, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer s.busy.Store(false)

	start := s.now()
	lang := s.Language()
	slog.Info("scan started", "trigger", trigger, "language", lang)

	s.setLED(hardware.LEDReady, false)
	s.setLED(hardware.LEDButtonLight, false)
	s.setLED(hardware.LEDProcessing, true)

	result, err := s.scanAndAnalyze(ctx, lang)
	s.setLED(hardware.LEDProcessing, false)
	s.recordOutcome(result, err)

	if err != nil {
		stage := stageOf(err)
		slog.Error("scan failed",
			"trigger", trigger,
			"stage", stage,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err)
		s.metrics.Scans.WithLabelValues(trigger, "failure").Inc()
		s.metrics.Failures.WithLabelValues(stage).Inc()
		s.signalError(ctx, lang)
		s.showReady()
		return nil, err
	}

	s.metrics.Scans.WithLabelValues(trigger, "success").Inc()
	s.metrics.PipelineDuration.Observe(time.Since(start).Seconds())
	slog.Info("scan completed",
		"trigger", trigger,
		"result_id", result.ID,
		"document_type", result.DocumentType,
		"duration_ms", time.Since(start).Milliseconds())
	s.showReady()
	return result, nil
}

func (s *CoreService) scanAndAnalyze(ctx context.Context, lang string) (*document.Result, error) {
	s.display("Scanning...", "")
	s.announce(ctx, speech.MessageScanning, lang)

	path, err := s.claimScanPath("png")
	if err != nil {
		return nil, inStage("scan", err)
	}
	if err := s.scanner.Scan(ctx, path); err != nil {
		_ = os.Remove(path)
		return nil, inStage("scan", err)
	}
	if path, err = s.matchScanExtension(path); err != nil {
		return nil, inStage("scan", err)
	}
	slog.Info("document scanned", "path", path)

	s.display("Analyzing...", "")
	s.announce(ctx, speech.MessageAnalyzing, lang)

	result, err := s.analyze(ctx, path, lang)
	if err != nil {
		return nil, err
	}

	s.announce(ctx, speech.MessageComplete, lang)
	line1, line2 := result.Headline()
	s.display(line1, line2)

	if err := s.announcer.Speak(ctx, result.SpokenSummary(), lang); err != nil {
		return nil, inStage("speech", err)
	}
	return result, nil
}

// signalError lights the error LED, plays the error message and clears the
// LED after the hold time
func (s *CoreService) signalError(ctx context.Context, lang string) {
	s.setLED(hardware.LEDError, true)
	s.display("Error", "Please try again")
	s.announce(ctx, speech.MessageError, lang)
	select {
	case <-time.After(s.errorHold):
	case <-ctx.Done():
	}
	s.setLED(hardware.LEDError, false)
}

func (s *CoreService) announce(ctx context.Context, key, lang string) {
	if err := s.announcer.PlayMessage(ctx, key, lang); err != nil {
		slog.Warn("failed to play system message", "message", key, "language", lang, "error", err)
	}
}

// AnalyzeDocument analyzes an existing scan file in the current language
func (s *CoreService) AnalyzeDocument(ctx context.Context, path string) (*document.Result, error) {
	return s.analyze(ctx, path, s.Language())
}

// AnalyzeUpload stores uploaded bytes as a scan file and analyzes it
func (s *CoreService) AnalyzeUpload(ctx context.Context, name string, data []byte) (*document.Result, error) {
	start := s.now()
	if len(data) == 0 {
		return nil, fmt.Errorf("uploaded document %s is empty", name)
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if !uploadExtensions["."+ext] {
		ext = "png"
	}

	file, err := createExclusive(s.config.TempPath, "scan", s.now().Unix(), ext)
	if err != nil {
		return nil, err
	}
	path := file.Name()
	_, err = file.Write(data)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}
	slog.Info("document uploaded", "name", name, "path", path, "size_bytes", len(data))

	result, err := s.AnalyzeDocument(ctx, path)
	s.recordOutcome(result, err)
	if err != nil {
		s.metrics.Scans.WithLabelValues(TriggerUpload, "failure").Inc()
		s.metrics.Failures.WithLabelValues(stageOf(err)).Inc()
		return nil, err
	}
	s.metrics.Scans.WithLabelValues(TriggerUpload, "success").Inc()
	s.metrics.PipelineDuration.Observe(time.Since(start).Seconds())
	return result, nil
}

func (s *CoreService) analyze(ctx context.Context, path, lang string) (*document.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, inStage("read", fmt.Errorf("failed to read scan %s: %w", path, err))
	}

	doc, err := s.prepareDocument(ctx, path, data, lang)
	if err != nil {
		return nil, err
	}
	doc.Type = document.DetectType(doc.Text)
	slog.Info("document type detected", "document_type", doc.Type, "text_length", len(doc.Text))

	outcome, err := s.dispatcher.Dispatch(ctx, doc)
	if err != nil {
		return nil, inStage("analysis", err)
	}
	if outcome.FellBack {
		s.metrics.Fallbacks.Inc()
	}

	result := &document.Result{
		DocumentType:   doc.Type,
		Source:         outcome.Source,
		Analyzer:       outcome.Analyzer,
		Findings:       outcome.Analysis.Findings,
		Summary:        outcome.Analysis.Summary,
		Confidence:     outcome.Analysis.TopConfidence(),
		RequiresReview: outcome.RequiresReview,
		Language:       lang,
		ScanPath:       path,
		TextExcerpt:    textExcerpt(doc.Text),
		CreatedAt:      s.now().UTC(),
	}
	if result.Findings == nil {
		result.Findings = []document.Finding{}
	}

	if err := s.storeResult(ctx, result); err != nil {
		return nil, inStage("store", err)
	}

	s.metrics.Analyses.WithLabelValues(string(result.DocumentType), string(result.Source)).Inc()
	if result.RequiresReview {
		s.metrics.ReviewRequired.Inc()
	}
	return result, nil
}

// prepareDocument extracts text and the normalized image. PDFs with a text
// layer skip OCR; images are preprocessed, normalized to PNG and recognized.
func (s *CoreService) prepareDocument(ctx context.Context, path string, data []byte, lang string) (*document.Document, error) {
	doc := &document.Document{Path: path, Language: lang}

	if ocr.IsPDF(data) {
		text, err := ocr.ExtractPDFText(data)
		if err != nil {
			return nil, inStage("ocr", err)
		}
		doc.Text = text
		if strings.TrimSpace(text) != "" {
			doc.TextConfidence = 1
		}
		return doc, nil
	}

	image := data
	if !imageprocessing.IsPNG(image) {
		var err error
		if image, err = s.normalizer.Execute(image); err != nil {
			return nil, inStage("preprocess", err)
		}
	}
	image, err := s.preprocessor.Execute(image)
	if err != nil {
		return nil, inStage("preprocess", err)
	}
	doc.Image = image

	recognized, err := s.ocr.Recognize(ctx, ocr.Input{
		Image:     image,
		Languages: ocr.LanguageCodes(lang),
		DPI:       s.config.ScanResolution,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, inStage("ocr", err)
		}
		// unreadable text leaves the type unknown and the remote API decides
		slog.Warn("text recognition failed", "engine", s.ocr.Name(), "path", path, "error", err)
		s.metrics.Failures.WithLabelValues("ocr").Inc()
		return doc, nil
	}
	doc.Text = recognized.Text
	doc.TextConfidence = recognized.Confidence
	return doc, nil
}

// storeResult writes the result file and indexes the result. The file name is
// claimed exclusively so two results never share a file.
func (s *CoreService) storeResult(ctx context.Context, result *document.Result) error {
	file, err := createExclusive(s.config.OutputPath, "result", result.CreatedAt.Unix(), "json")
	if err != nil {
		return err
	}
	result.ResultFile = file.Name()

	if _, err := s.database.SaveResult(ctx, result); err != nil {
		slog.Error("failed to index result", "path", result.ResultFile, "error", err)
		s.metrics.Failures.WithLabelValues("index").Inc()
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		_ = file.Close()
		_ = os.Remove(result.ResultFile)
		return fmt.Errorf("failed to write result file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close result file: %w", err)
	}
	slog.Info("result saved",
		"result_id", result.ID,
		"path", result.ResultFile,
		"document_type", result.DocumentType,
		"source", result.Source,
		"confidence", result.Confidence,
		"requires_review", result.RequiresReview)
	return nil
}

// claimScanPath creates an empty scan file for the current second and returns
// its path. Uploads arriving during a scan get their own name.
func (s *CoreService) claimScanPath(ext string) (string, error) {
	file, err := createExclusive(s.config.TempPath, "scan", s.now().Unix(), ext)
	if err != nil {
		return "", err
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", file.Name(), err)
	}
	return file.Name(), nil
}

// matchScanExtension renames a scan whose content does not match its
// extension, e.g. a PDF dropped into the inbox
func (s *CoreService) matchScanExtension(path string) (string, error) {
	head, err := readHead(path, 4096)
	if err != nil {
		return "", fmt.Errorf("failed to read scan %s: %w", path, err)
	}
	ext := imageprocessing.ImageExtension(head)
	if ocr.IsPDF(head) {
		ext = "pdf"
	}
	if ext == "" || ext == strings.TrimPrefix(filepath.Ext(path), ".") {
		return path, nil
	}

	target, err := s.claimScanPath(ext)
	if err != nil {
		return "", err
	}
	if err := os.Rename(path, target); err != nil {
		_ = os.Remove(target)
		return "", fmt.Errorf("failed to rename scan %s: %w", path, err)
	}
	slog.Debug("scan renamed to match its content", "from", path, "to", target)
	return target, nil
}

func readHead(path string, n int) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	head := make([]byte, n)
	read, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return head[:read], nil
}

// createExclusive creates <prefix>_<unix>.<ext>, adding _1, _2 ... on collision
func createExclusive(dir, prefix string, unix int64, ext string) (*os.File, error) {
	for i := 0; i < maxNameAttempts; i++ {
		path := filepath.Join(dir, fileName(prefix, unix, i, ext))
		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return file, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("failed to create %s: %w", path, err)
		}
	}
	return nil, fmt.Errorf("no free %s file name for timestamp %d", prefix, unix)
}

func fileName(prefix string, unix int64, suffix int, ext string) string {
	if suffix == 0 {
		return fmt.Sprintf("%s_%d.%s", prefix, unix, ext)
	}
	return fmt.Sprintf("%s_%d_%d.%s", prefix, unix, suffix, ext)
}

func textExcerpt(text string) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= textExcerptLength {
		return text
	}
	return string(runes[:textExcerptLength])
}
