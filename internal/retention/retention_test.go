package retention

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jo-hoe/medscan/internal/backend/database"
	"github.com/jo-hoe/medscan/internal/document"
)

func writeAged(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	modTime := time.Now().Add(-age)
	if err := os.Chtimes(path, modTime, modTime); err != nil {
		t.Fatalf("chtimes %s: %v", name, err)
	}
	return path
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestPruner_Prune(t *testing.T) {
	ctx := context.Background()
	scanDir := t.TempDir()
	resultDir := t.TempDir()

	db, err := database.NewDatabase(ctx, "sqlite", ":memory:")
	if err != nil {
		t.Fatalf("NewDatabase error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	oldScan := writeAged(t, scanDir, "scan_1.png", 10*day)
	newScan := writeAged(t, scanDir, "scan_2.png", time.Hour)
	unrelated := writeAged(t, scanDir, "notes.txt", 100*day)
	oldResult := writeAged(t, resultDir, "result_1.json", 40*day)
	newResult := writeAged(t, resultDir, "result_2.json", 2*day)

	for _, age := range []time.Duration{40 * day, 2 * day} {
		r := &document.Result{DocumentType: document.TypeXRay, CreatedAt: time.Now().Add(-age)}
		if _, err := db.SaveResult(ctx, r); err != nil {
			t.Fatalf("SaveResult error: %v", err)
		}
	}

	p := NewPruner(Config{ScanImagesDays: 7, AnalysisResultsDays: 30}, scanDir, resultDir, db)
	report, err := p.Prune(ctx)
	if err != nil {
		t.Fatalf("Prune error: %v", err)
	}

	if report.ScanFiles != 1 || report.ResultFiles != 1 || report.ResultRows != 1 {
		t.Errorf("unexpected report %+v", report)
	}
	if exists(oldScan) || exists(oldResult) {
		t.Error("old files should be removed")
	}
	if !exists(newScan) || !exists(newResult) || !exists(unrelated) {
		t.Error("recent and unrelated files must be kept")
	}

	remaining, err := db.ListResults(ctx, 0)
	if err != nil {
		t.Fatalf("ListResults error: %v", err)
	}
	if len(remaining) != 1 {
		t.Errorf("expected 1 remaining row, got %d", len(remaining))
	}
}

func TestPruner_ZeroDisablesRule(t *testing.T) {
	scanDir := t.TempDir()
	oldScan := writeAged(t, scanDir, "scan_1.png", 365*day)

	p := NewPruner(Config{ScanImagesDays: 0, AnalysisResultsDays: 0}, scanDir, "", nil)
	if p.Enabled() {
		t.Error("pruner with no rules should be disabled")
	}
	if _, err := p.Prune(context.Background()); err != nil {
		t.Fatalf("Prune error: %v", err)
	}
	if !exists(oldScan) {
		t.Error("scan must be kept when the rule is disabled")
	}
}

func TestPruner_MissingDirectory(t *testing.T) {
	p := NewPruner(Config{ScanImagesDays: 1}, filepath.Join(t.TempDir(), "missing"), "", nil)
	if _, err := p.Prune(context.Background()); err != nil {
		t.Errorf("missing directory should not be an error: %v", err)
	}
}

func TestPruner_Run(t *testing.T) {
	scanDir := t.TempDir()
	writeAged(t, scanDir, "scan_1.png", 3*day)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reports := make(chan Report, 4)
	p := NewPruner(Config{ScanImagesDays: 1}, scanDir, "", nil)
	done := make(chan struct{})
	go func() {
		p.Run(ctx, time.Hour, func(r Report) { reports <- r })
		close(done)
	}()

	select {
	case r := <-reports:
		if r.ScanFiles != 1 {
			t.Errorf("startup run should prune 1 scan, got %d", r.ScanFiles)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected a prune at startup")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run should return after cancel")
	}
}
