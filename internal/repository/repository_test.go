package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/docling/docling-agent/internal/config"
	"github.com/docling/docling-agent/internal/domain"
	"gorm.io/gorm"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := InitDB(&config.DatabaseConfig{
		Path: filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("InitDB() error = %v", err)
	}
	return db
}

func TestOfflineQueueRoundTrip(t *testing.T) {
	repo := NewOfflineQueueRepository(testDB(t))
	ctx := context.Background()

	file := domain.NewFile("facture.jpg", []byte{0xFF, 0xD8, 0x01, 0x02}, "image/jpeg")
	id, err := repo.Enqueue(ctx, file, "gemini-3-flash-preview", domain.SourceMobile)
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if id == 0 {
		t.Error("Enqueue() returned zero id")
	}

	recs, err := repo.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}

	rec := recs[0]
	if rec.FileName != "facture.jpg" || rec.Model != "gemini-3-flash-preview" || rec.Source != "mobile" {
		t.Errorf("record = %+v", rec)
	}

	got := rec.AsFile()
	if got.Name != file.Name || got.MIME != file.MIME || got.Size != file.Size {
		t.Errorf("AsFile() = %+v, want original metadata back", got)
	}
	if string(got.Data) != string(file.Data) {
		t.Error("AsFile() data differs from the stored bytes")
	}
}

func TestOfflineQueueOrderAndRemoval(t *testing.T) {
	repo := NewOfflineQueueRepository(testDB(t))
	ctx := context.Background()

	var ids []uint
	for _, name := range []string{"a.pdf", "b.pdf", "c.pdf"} {
		id, err := repo.Enqueue(ctx, domain.NewFile(name, []byte("x"), "application/pdf"), "m", domain.SourcePC)
		if err != nil {
			t.Fatalf("Enqueue(%s) error = %v", name, err)
		}
		ids = append(ids, id)
	}

	recs, err := repo.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	for i, want := range []string{"a.pdf", "b.pdf", "c.pdf"} {
		if recs[i].FileName != want {
			t.Errorf("recs[%d] = %q, want %q (insertion order)", i, recs[i].FileName, want)
		}
	}

	if err := repo.Remove(ctx, ids[1]); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	n, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}

	// Removing an unknown id is not an error.
	if err := repo.Remove(ctx, 9999); err != nil {
		t.Errorf("Remove(unknown) error = %v", err)
	}
}

func TestPreferences(t *testing.T) {
	repo := NewPreferenceRepository(testDB(t))
	ctx := context.Background()

	// Unknown key reads as empty, not as an error.
	got, err := repo.Get(ctx, PrefSelectedModel)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != "" {
		t.Errorf("Get(unset) = %q, want empty", got)
	}

	if err := repo.Set(ctx, PrefSelectedModel, "gpt-5-mini"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if got, _ = repo.Get(ctx, PrefSelectedModel); got != "gpt-5-mini" {
		t.Errorf("Get() = %q, want gpt-5-mini", got)
	}

	// Second write upserts.
	if err := repo.Set(ctx, PrefSelectedModel, "claude-sonnet"); err != nil {
		t.Fatalf("Set() upsert error = %v", err)
	}
	if got, _ = repo.Get(ctx, PrefSelectedModel); got != "claude-sonnet" {
		t.Errorf("Get() after upsert = %q, want claude-sonnet", got)
	}

	// Keys are independent.
	if err := repo.Set(ctx, PrefDevisCounter, "2026-7"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if got, _ = repo.Get(ctx, PrefSelectedModel); got != "claude-sonnet" {
		t.Errorf("model key clobbered by counter write: %q", got)
	}
}
