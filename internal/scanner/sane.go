package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jo-hoe/medscan/internal/common"
)

const millimetersPerInch = 25.4

var saneColorModes = map[string]string{
	"color":   "Color",
	"gray":    "Gray",
	"lineart": "Lineart",
}

// SaneScanner drives a flatbed scanner through the scanimage frontend
type SaneScanner struct {
	cfg Config
	run common.CommandRunner
}

func NewSaneScanner(cfg Config, run common.CommandRunner) *SaneScanner {
	if cfg.Resolution <= 0 {
		cfg.Resolution = 300
	}
	if cfg.ColorMode == "" {
		cfg.ColorMode = "color"
	}
	if run == nil {
		run = common.RunCommand
	}
	return &SaneScanner{cfg: cfg, run: run}
}

func (s *SaneScanner) DeviceInfo() string {
	if s.cfg.Device == "" {
		return "sane:default"
	}
	return "sane:" + s.cfg.Device
}

func (s *SaneScanner) Scan(ctx context.Context, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("failed to create scan directory: %w", err)
	}

	start := time.Now()
	if _, err := s.run(ctx, "scanimage", s.args(outputPath)...); err != nil {
		_ = os.Remove(outputPath)
		return fmt.Errorf("scanner failed to complete scan operation: %w", err)
	}

	info, err := os.Stat(outputPath)
	if err != nil || info.Size() == 0 {
		return fmt.Errorf("scanner produced no image at %s", outputPath)
	}

	slog.Info("document scanned",
		"device", s.DeviceInfo(),
		"path", outputPath,
		"size_bytes", info.Size(),
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (s *SaneScanner) args(outputPath string) []string {
	args := []string{
		"--format=png",
		"--resolution", strconv.Itoa(s.cfg.Resolution),
		"--mode", saneMode(s.cfg.ColorMode),
		"--output-file", outputPath,
	}
	if s.cfg.Device != "" {
		args = append([]string{"--device-name", s.cfg.Device}, args...)
	}
	if s.cfg.MaxWidth > 0 {
		args = append(args, "-x", formatMillimeters(s.cfg.MaxWidth))
	}
	if s.cfg.MaxHeight > 0 {
		args = append(args, "-y", formatMillimeters(s.cfg.MaxHeight))
	}
	return args
}

// saneMode maps a configured color mode onto the scanimage spelling. Unknown
// modes are passed through for backends with their own mode names.
func saneMode(mode string) string {
	if m, ok := saneColorModes[strings.ToLower(mode)]; ok {
		return m
	}
	return mode
}

func formatMillimeters(inches float64) string {
	return strconv.FormatFloat(inches*millimetersPerInch, 'f', 1, 64)
}
