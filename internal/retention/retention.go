// Package retention removes old scans and results from disk and the result index.
package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jo-hoe/medscan/internal/backend/database"
)

const day = 24 * time.Hour

type Config struct {
	ScanImagesDays      int    `yaml:"scan_images_days" validate:"gte=0"`
	AnalysisResultsDays int    `yaml:"analysis_results_days" validate:"gte=0"`
	Interval            string `yaml:"interval"`
}

// Report counts what a single prune removed
type Report struct {
	ScanFiles   int
	ResultFiles int
	ResultRows  int
}

type Pruner struct {
	scanDir      string
	resultDir    string
	db           database.DatabaseService
	scanMaxAge   time.Duration
	resultMaxAge time.Duration
	now          func() time.Time
}

// NewPruner prunes scan_* files in scanDir and result_*.json files plus
// database rows for resultDir. db may be nil.
func NewPruner(cfg Config, scanDir, resultDir string, db database.DatabaseService) *Pruner {
	return &Pruner{
		scanDir:      scanDir,
		resultDir:    resultDir,
		db:           db,
		scanMaxAge:   time.Duration(cfg.ScanImagesDays) * day,
		resultMaxAge: time.Duration(cfg.AnalysisResultsDays) * day,
		now:          time.Now,
	}
}

// Enabled reports whether at least one rule is active
func (p *Pruner) Enabled() bool {
	return p.scanMaxAge > 0 || p.resultMaxAge > 0
}

func (p *Pruner) Prune(ctx context.Context) (Report, error) {
	var report Report
	var errs []error
	now := p.now()

	if p.scanMaxAge > 0 {
		n, err := removeOlder(p.scanDir, now.Add(-p.scanMaxAge), func(name string) bool {
			return strings.HasPrefix(name, "scan_")
		})
		report.ScanFiles = n
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to prune scans: %w", err))
		}
	}

	if p.resultMaxAge > 0 {
		cutoff := now.Add(-p.resultMaxAge)
		n, err := removeOlder(p.resultDir, cutoff, func(name string) bool {
			return strings.HasPrefix(name, "result_") && strings.HasSuffix(name, ".json")
		})
		report.ResultFiles = n
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to prune result files: %w", err))
		}
		if p.db != nil {
			rows, err := p.db.DeleteResultsBefore(ctx, cutoff)
			report.ResultRows = rows
			if err != nil {
				errs = append(errs, fmt.Errorf("failed to prune result index: %w", err))
			}
		}
	}

	return report, errors.Join(errs...)
}

// Run prunes once immediately and then on every interval tick until ctx is done.
// onPrune, when set, receives every report.
func (p *Pruner) Run(ctx context.Context, interval time.Duration, onPrune func(Report)) {
	if !p.Enabled() {
		slog.Info("retention disabled")
		return
	}
	prune := func() {
		start := time.Now()
		report, err := p.Prune(ctx)
		if err != nil {
			slog.Error("retention run failed", "error", err)
		}
		slog.Info("retention run completed",
			"scan_files", report.ScanFiles,
			"result_files", report.ResultFiles,
			"result_rows", report.ResultRows,
			"duration_ms", time.Since(start).Milliseconds())
		if onPrune != nil {
			onPrune(report)
		}
	}

	prune()
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}

func removeOlder(dir string, cutoff time.Time, match func(name string) bool) (int, error) {
	if dir == "" {
		return 0, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}

	removed := 0
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !match(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
