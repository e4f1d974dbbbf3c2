package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/spigell/operator-finder/internal/resume"
	"github.com/spigell/operator-finder/internal/vectorstore"
)

type fakeEmbedder struct {
	batches [][]string
	err     error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.batches = append(f.batches, texts)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text)), 1}
	}
	return out, nil
}

func (f *fakeEmbedder) Model() string { return "fake-embed" }

func writeRecord(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestBuildIndexesAllRecords(t *testing.T) {
	dataDir := t.TempDir()
	writeRecord(t, dataDir, "a.json", `{"name": {"first": "Ann", "last": "Lee"}}`)
	writeRecord(t, dataDir, "b.yaml", "name:\n  first: Bob\n")
	writeRecord(t, dataDir, "c.json", `{"name": {"first": "Cy"}}`)
	writeRecord(t, dataDir, "d.json", `{"name": {"first": "Ann", "last": "Lee"}}`)

	indexDir := filepath.Join(t.TempDir(), "index")
	embedder := &fakeEmbedder{}

	builder, err := New(embedder, vectorstore.NewLocal(indexDir), zap.NewNop(), Config{BatchSize: 2})
	if err != nil {
		t.Fatalf("new builder: %v", err)
	}

	report, err := builder.Build(context.Background(), dataDir)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if report.Files != 4 || report.Documents != 3 || report.Duplicates != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.Dimensions != 2 || report.Model != "fake-embed" {
		t.Fatalf("unexpected report metadata %+v", report)
	}
	if len(embedder.batches) != 2 || len(embedder.batches[0]) != 2 || len(embedder.batches[1]) != 1 {
		t.Fatalf("expected batches of 2 and 1, got %v", embedder.batches)
	}
	if !strings.HasPrefix(embedder.batches[0][0], "Candidate Name: Ann Lee\n") {
		t.Fatalf("expected flattened text to be embedded, got %q", embedder.batches[0][0])
	}

	store, err := vectorstore.OpenLocal(indexDir, "fake-embed")
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	if store.Len() != 3 {
		t.Fatalf("expected 3 documents in index, got %d", store.Len())
	}
}

func TestBuildMalformedRecordLeavesIndexUntouched(t *testing.T) {
	dataDir := t.TempDir()
	writeRecord(t, dataDir, "a.json", `{"name": {"first": "Ann"}}`)

	indexDir := t.TempDir()
	builder, err := New(&fakeEmbedder{}, vectorstore.NewLocal(indexDir), nil, Config{})
	if err != nil {
		t.Fatalf("new builder: %v", err)
	}
	if _, err := builder.Build(context.Background(), dataDir); err != nil {
		t.Fatalf("initial build: %v", err)
	}

	before, err := os.ReadFile(filepath.Join(indexDir, vectorstore.VectorsFile))
	if err != nil {
		t.Fatalf("read index: %v", err)
	}

	writeRecord(t, dataDir, "b.json", `{"name": `)

	_, err = builder.Build(context.Background(), dataDir)
	var loadErr *resume.LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("expected resume.LoadError, got %v", err)
	}

	after, err := os.ReadFile(filepath.Join(indexDir, vectorstore.VectorsFile))
	if err != nil {
		t.Fatalf("read index: %v", err)
	}
	if string(before) != string(after) {
		t.Fatal("expected failed build to leave the previous index in place")
	}
}

func TestBuildEmbeddingFailure(t *testing.T) {
	dataDir := t.TempDir()
	writeRecord(t, dataDir, "a.json", `{"name": {"first": "Ann"}}`)

	indexDir := filepath.Join(t.TempDir(), "index")
	embedErr := errors.New("quota exceeded")
	builder, err := New(&fakeEmbedder{err: embedErr}, vectorstore.NewLocal(indexDir), nil, Config{})
	if err != nil {
		t.Fatalf("new builder: %v", err)
	}

	if _, err := builder.Build(context.Background(), dataDir); !errors.Is(err, embedErr) {
		t.Fatalf("expected embedding error, got %v", err)
	}
	if _, err := os.Stat(indexDir); !os.IsNotExist(err) {
		t.Fatalf("expected no index to be written, stat err=%v", err)
	}
}

func TestBuildEmptyDirectory(t *testing.T) {
	builder, err := New(&fakeEmbedder{}, vectorstore.NewLocal(t.TempDir()), nil, Config{})
	if err != nil {
		t.Fatalf("new builder: %v", err)
	}

	if _, err := builder.Build(context.Background(), t.TempDir()); !errors.Is(err, resume.ErrNoRecords) {
		t.Fatalf("expected ErrNoRecords, got %v", err)
	}
}
