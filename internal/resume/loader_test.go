package resume

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadDirReadsJSONAndYAML(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "b.yaml", "name:\n  first: Bob\n  last: Smith\nwork_experience:\n  - job_title: CFO\n    organization: Beta\n")
	writeFile(t, dir, "a.json", `{"name": {"first": "Ann", "last": "Lee"}}`)
	writeFile(t, dir, "notes.txt", "ignored")
	if err := os.Mkdir(filepath.Join(dir, "nested"), 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	sources, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(sources) != 2 {
		t.Fatalf("expected 2 records, got %d", len(sources))
	}

	if filepath.Base(sources[0].Path) != "a.json" || filepath.Base(sources[1].Path) != "b.yaml" {
		t.Fatalf("expected records ordered by file name, got %s, %s", sources[0].Path, sources[1].Path)
	}

	flattened := Flatten(sources[1].Record)
	if !containsLine(strings.Split(flattened, "\n"), "Current Title: CFO") {
		t.Fatalf("expected yaml record to flatten, got:\n%s", flattened)
	}
}

func TestLoadDirMalformedAbortsLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "a.json", `{"name": {"first": "Ann"}}`)
	bad := writeFile(t, dir, "b.json", `{"name": `)

	_, err := LoadDir(dir)
	if err == nil {
		t.Fatal("expected error for malformed record")
	}

	var loadErr *LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("expected LoadError, got %T: %v", err, err)
	}
	if loadErr.Path != bad {
		t.Fatalf("expected failing path %q, got %q", bad, loadErr.Path)
	}
}

func TestLoadFileRejectsNonObject(t *testing.T) {
	t.Parallel()

	path := writeFile(t, t.TempDir(), "list.json", `[1, 2, 3]`)

	var loadErr *LoadError
	if _, err := LoadFile(path); !errors.As(err, &loadErr) {
		t.Fatalf("expected LoadError, got %v", err)
	}
}

func TestLoadDirEmpty(t *testing.T) {
	t.Parallel()

	_, err := LoadDir(t.TempDir())
	if !errors.Is(err, ErrNoRecords) {
		t.Fatalf("expected ErrNoRecords, got %v", err)
	}
}
