package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/jo-hoe/medscan/internal/document"
)

func newTestDB(t *testing.T) DatabaseService {
	t.Helper()

	ds, err := NewDatabase(context.Background(), "sqlite", ":memory:")
	if err != nil {
		t.Fatalf("NewDatabase error: %v", err)
	}
	t.Cleanup(func() { _ = ds.Close() })
	return ds
}

func newTestRedisDB(t *testing.T) DatabaseService {
	t.Helper()

	server := miniredis.RunT(t)
	ds, err := NewDatabase(context.Background(), "redis", server.Addr())
	if err != nil {
		t.Fatalf("NewDatabase error: %v", err)
	}
	t.Cleanup(func() { _ = ds.Close() })
	return ds
}

func testResult(createdAt time.Time, docType document.Type) *document.Result {
	return &document.Result{
		DocumentType: docType,
		Source:       document.SourceLocal,
		Analyzer:     "test",
		Findings:     []document.Finding{{Condition: "normal", Confidence: 0.9}},
		Summary:      "nothing unusual",
		Confidence:   0.9,
		Language:     "english",
		CreatedAt:    createdAt,
	}
}

func TestNewDatabase_Unsupported(t *testing.T) {
	if _, err := NewDatabase(context.Background(), "mongodb", ""); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestSQLite_DoesDatabaseExist(t *testing.T) {
	ds := newTestDB(t)
	if !ds.DoesDatabaseExist(context.Background()) {
		t.Fatalf("expected DoesDatabaseExist to return true")
	}
}

func TestDatabases(t *testing.T) {
	backends := map[string]func(*testing.T) DatabaseService{
		"sqlite": newTestDB,
		"redis":  newTestRedisDB,
	}
	for name, factory := range backends {
		t.Run(name+"/SaveAndGet", func(t *testing.T) { testSaveAndGet(t, factory(t)) })
		t.Run(name+"/ListOrder", func(t *testing.T) { testListOrder(t, factory(t)) })
		t.Run(name+"/Delete", func(t *testing.T) { testDelete(t, factory(t)) })
		t.Run(name+"/DeleteBefore", func(t *testing.T) { testDeleteBefore(t, factory(t)) })
	}
}

func testSaveAndGet(t *testing.T, ds DatabaseService) {
	ctx := context.Background()
	created := time.Unix(1700000000, 0).UTC()

	in := testResult(created, document.TypeXRay)
	id, err := ds.SaveResult(ctx, in)
	if err != nil {
		t.Fatalf("SaveResult error: %v", err)
	}
	if id == "" || in.ID != id {
		t.Fatalf("expected generated id to be set on result, got %q / %q", id, in.ID)
	}

	got, err := ds.GetResult(ctx, id)
	if err != nil {
		t.Fatalf("GetResult error: %v", err)
	}
	if got.DocumentType != document.TypeXRay || got.Summary != in.Summary || !got.CreatedAt.Equal(created) {
		t.Errorf("unexpected result: %+v", got)
	}
	if len(got.Findings) != 1 || got.Findings[0].Condition != "normal" {
		t.Errorf("findings not preserved: %+v", got.Findings)
	}

	if _, err := ds.GetResult(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func testListOrder(t *testing.T, ds DatabaseService) {
	ctx := context.Background()
	base := time.Unix(1700000000, 0).UTC()

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := ds.SaveResult(ctx, testResult(base.Add(time.Duration(i)*time.Minute), document.TypeMRI))
		if err != nil {
			t.Fatalf("SaveResult #%d error: %v", i, err)
		}
		ids = append(ids, id)
	}

	all, err := ds.ListResults(ctx, 0)
	if err != nil {
		t.Fatalf("ListResults error: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 results, got %d", len(all))
	}
	if all[0].ID != ids[2] || all[2].ID != ids[0] {
		t.Errorf("expected newest first, got %s, %s, %s", all[0].ID, all[1].ID, all[2].ID)
	}

	limited, err := ds.ListResults(ctx, 2)
	if err != nil {
		t.Fatalf("ListResults(2) error: %v", err)
	}
	if len(limited) != 2 || limited[0].ID != ids[2] {
		t.Errorf("unexpected limited list: %d entries", len(limited))
	}
}

func testDelete(t *testing.T, ds DatabaseService) {
	ctx := context.Background()
	id, err := ds.SaveResult(ctx, testResult(time.Now(), document.TypeECG))
	if err != nil {
		t.Fatalf("SaveResult error: %v", err)
	}

	if err := ds.DeleteResult(ctx, id); err != nil {
		t.Fatalf("DeleteResult error: %v", err)
	}
	if _, err := ds.GetResult(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := ds.DeleteResult(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func testDeleteBefore(t *testing.T, ds DatabaseService) {
	ctx := context.Background()
	cutoff := time.Unix(1700000000, 0).UTC()

	oldID, _ := ds.SaveResult(ctx, testResult(cutoff.Add(-time.Hour), document.TypeCT))
	newID, _ := ds.SaveResult(ctx, testResult(cutoff.Add(time.Hour), document.TypeCT))

	removed, err := ds.DeleteResultsBefore(ctx, cutoff)
	if err != nil {
		t.Fatalf("DeleteResultsBefore error: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed result, got %d", removed)
	}
	if _, err := ds.GetResult(ctx, oldID); !errors.Is(err, ErrNotFound) {
		t.Errorf("old result should be gone, got %v", err)
	}
	if _, err := ds.GetResult(ctx, newID); err != nil {
		t.Errorf("new result should remain, got %v", err)
	}
}
