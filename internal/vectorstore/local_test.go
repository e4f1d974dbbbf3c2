package vectorstore

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func buildLocal(t *testing.T, dir string, docs ...Document) {
	t.Helper()

	ctx := context.Background()
	store := NewLocal(dir)
	if err := store.Reset(ctx, "embed-v1", 2); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := store.Upsert(ctx, docs); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := store.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func TestLocalRoundTripAndSearch(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "index")
	buildLocal(t, dir,
		Document{ID: "east", Text: "east text", Vector: []float32{1, 0}},
		Document{ID: "north", Text: "north text", Vector: []float32{0, 1}},
		Document{ID: "northeast", Text: "northeast text", Vector: []float32{1, 1}},
	)

	for _, name := range []string{VectorsFile, TextsFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("expected %s to be written: %v", name, err)
		}
	}

	store, err := OpenLocal(dir, "embed-v1")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if store.Len() != 3 || store.Model() != "embed-v1" {
		t.Fatalf("unexpected store state: len=%d model=%q", store.Len(), store.Model())
	}

	hits, err := store.Search(context.Background(), []float32{1, 0.1}, 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].ID != "east" || hits[1].ID != "northeast" {
		t.Fatalf("unexpected hit order: %+v", hits)
	}
	if hits[0].Text != "east text" {
		t.Fatalf("expected text to be resolved, got %q", hits[0].Text)
	}
}

func TestLocalUpsertReplacesSameID(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	buildLocal(t, dir,
		Document{ID: DocumentID("same"), Text: "same", Vector: []float32{1, 0}},
		Document{ID: DocumentID("same"), Text: "same", Vector: []float32{0, 1}},
	)

	store, err := OpenLocal(dir, "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("expected duplicate ids to collapse, got %d documents", store.Len())
	}
}

func TestLocalSearchEdgeCases(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	buildLocal(t, dir, Document{ID: "a", Text: "a", Vector: []float32{1, 0}})

	store, err := OpenLocal(dir, "embed-v1")
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	hits, err := store.Search(context.Background(), []float32{1, 0}, 0)
	if err != nil || hits != nil {
		t.Fatalf("expected no hits for k=0, got %v, %v", hits, err)
	}

	hits, err = store.Search(context.Background(), []float32{1, 0}, 10)
	if err != nil || len(hits) != 1 {
		t.Fatalf("expected k larger than index to return everything, got %v, %v", hits, err)
	}

	_, err = store.Search(context.Background(), []float32{1, 0, 0}, 1)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
}

func TestOpenLocalErrors(t *testing.T) {
	t.Parallel()

	var loadErr *LoadError

	_, err := OpenLocal(filepath.Join(t.TempDir(), "missing"), "embed-v1")
	if !errors.As(err, &loadErr) || !errors.Is(err, ErrIndexMissing) {
		t.Fatalf("expected missing index LoadError, got %v", err)
	}

	dir := t.TempDir()
	buildLocal(t, dir, Document{ID: "a", Text: "a", Vector: []float32{1, 0}})

	_, err = OpenLocal(dir, "other-model")
	if !errors.As(err, &loadErr) || !errors.Is(err, ErrModelMismatch) {
		t.Fatalf("expected model mismatch LoadError, got %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, TextsFile), []byte("{broken"), 0o600); err != nil {
		t.Fatalf("corrupt texts: %v", err)
	}
	_, err = OpenLocal(dir, "embed-v1")
	if !errors.As(err, &loadErr) {
		t.Fatalf("expected LoadError for corrupt artifact, got %v", err)
	}
}

func TestLocalUpsertRejectsWrongDimensions(t *testing.T) {
	t.Parallel()

	store := NewLocal(t.TempDir())
	if err := store.Reset(context.Background(), "m", 3); err != nil {
		t.Fatalf("reset: %v", err)
	}

	err := store.Upsert(context.Background(), []Document{{ID: "a", Vector: []float32{1}}})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
}

func TestDocumentIDIsStable(t *testing.T) {
	t.Parallel()

	if DocumentID("abc") != DocumentID("abc") {
		t.Fatal("expected identical text to share an id")
	}
	if DocumentID("abc") == DocumentID("abd") {
		t.Fatal("expected different text to get different ids")
	}
	if len(DocumentID("")) != 64 {
		t.Fatalf("expected hex sha256, got %q", DocumentID(""))
	}
}

func assertOnlyIndexDir(t *testing.T, dir string) {
	t.Helper()

	entries, err := os.ReadDir(filepath.Dir(dir))
	if err != nil {
		t.Fatalf("read parent: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != filepath.Base(dir) {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("expected only %s next to the index, got %v", filepath.Base(dir), names)
	}
}

func assertServes(t *testing.T, dir, id string) {
	t.Helper()

	store, err := OpenLocal(dir, "embed-v1")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	hits, err := store.Search(context.Background(), []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != id {
		t.Fatalf("expected index to serve %s, got %+v", id, hits)
	}
}

func TestLocalRebuildReplacesPreviousIndex(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "index")
	buildLocal(t, dir, Document{ID: "old", Text: "old", Vector: []float32{1, 0}})
	buildLocal(t, dir, Document{ID: "new", Text: "new", Vector: []float32{1, 0}})

	assertServes(t, dir, "new")
	assertOnlyIndexDir(t, dir)
}

func TestLocalFailedFlushKeepsPreviousIndex(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "index")
	buildLocal(t, dir, Document{ID: "kept", Text: "kept", Vector: []float32{1, 0}})

	ctx := context.Background()
	store := NewLocal(dir)
	if err := store.Reset(ctx, "embed-v1", 2); err != nil {
		t.Fatalf("reset: %v", err)
	}
	// texts.json encodes fine, vectors.json cannot.
	if err := store.Upsert(ctx, []Document{{ID: "lost", Text: "lost", Vector: []float32{float32(math.NaN()), 0}}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := store.Flush(ctx); err == nil {
		t.Fatal("expected flush to fail")
	}

	assertServes(t, dir, "kept")
	assertOnlyIndexDir(t, dir)
}

func TestLocalFailedInstallRestoresPreviousIndex(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "index")
	buildLocal(t, dir, Document{ID: "kept", Text: "kept", Vector: []float32{1, 0}})

	original := rename
	t.Cleanup(func() { rename = original })
	rename = func(from, to string) error {
		if strings.Contains(filepath.Base(from), ".build-") {
			return errors.New("disk full")
		}
		return original(from, to)
	}

	ctx := context.Background()
	store := NewLocal(dir)
	if err := store.Reset(ctx, "embed-v1", 2); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := store.Upsert(ctx, []Document{{ID: "lost", Text: "lost", Vector: []float32{1, 0}}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := store.Flush(ctx); err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected install error, got %v", err)
	}

	assertServes(t, dir, "kept")
	assertOnlyIndexDir(t, dir)
}
