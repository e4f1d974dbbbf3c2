package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const (
	VectorsFile = "vectors.json"
	TextsFile   = "texts.json"
)

var rename = os.Rename

type vectorsArtifact struct {
	Model      string      `json:"model"`
	Dimensions int         `json:"dimensions"`
	IDs        []string    `json:"ids"`
	Vectors    [][]float32 `json:"vectors"`
}

// Local is a file-backed index: vectors.json holds the embeddings and
// texts.json maps document ids back to their flattened text. Search is an
// exact cosine scan.
type Local struct {
	dir string

	mu      sync.RWMutex
	model   string
	dims    int
	ids     []string
	vectors [][]float32
	norms   []float64
	texts   map[string]string
	index   map[string]int
}

// NewLocal returns an empty store that persists into dir on Flush.
func NewLocal(dir string) *Local {
	return &Local{dir: dir, texts: map[string]string{}, index: map[string]int{}}
}

// OpenLocal loads a persisted index for querying with the given embedding model.
func OpenLocal(dir, model string) (*Local, error) {
	var vectors vectorsArtifact
	if err := readJSON(filepath.Join(dir, VectorsFile), &vectors); err != nil {
		return nil, &LoadError{Location: dir, Err: err}
	}

	texts := map[string]string{}
	if err := readJSON(filepath.Join(dir, TextsFile), &texts); err != nil {
		return nil, &LoadError{Location: dir, Err: err}
	}

	if err := checkModel(dir, vectors.Model, model); err != nil {
		return nil, err
	}

	if len(vectors.IDs) != len(vectors.Vectors) {
		return nil, &LoadError{Location: dir, Err: fmt.Errorf("%d ids for %d vectors", len(vectors.IDs), len(vectors.Vectors))}
	}

	s := NewLocal(dir)
	s.model = vectors.Model
	s.dims = vectors.Dimensions

	for i, id := range vectors.IDs {
		text, ok := texts[id]
		if !ok {
			return nil, &LoadError{Location: dir, Err: fmt.Errorf("text for document %s is missing", id)}
		}
		if len(vectors.Vectors[i]) != s.dims {
			return nil, &LoadError{Location: dir, Err: fmt.Errorf("%w: document %s", ErrDimensionMismatch, id)}
		}
		s.add(Document{ID: id, Text: text, Vector: vectors.Vectors[i]})
	}

	return s, nil
}

func (s *Local) Reset(_ context.Context, model string, dims int) error {
	if dims <= 0 {
		return fmt.Errorf("invalid vector dimensions %d", dims)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.model = model
	s.dims = dims
	s.ids = nil
	s.vectors = nil
	s.norms = nil
	s.texts = map[string]string{}
	s.index = map[string]int{}
	return nil
}

func (s *Local) Upsert(_ context.Context, docs []Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, doc := range docs {
		if len(doc.Vector) != s.dims {
			return fmt.Errorf("%w: document %s has %d, index has %d", ErrDimensionMismatch, doc.ID, len(doc.Vector), s.dims)
		}
		s.add(doc)
	}
	return nil
}

func (s *Local) add(doc Document) {
	norm := vectorNorm(doc.Vector)
	if pos, ok := s.index[doc.ID]; ok {
		s.vectors[pos] = doc.Vector
		s.norms[pos] = norm
		s.texts[doc.ID] = doc.Text
		return
	}

	s.index[doc.ID] = len(s.ids)
	s.ids = append(s.ids, doc.ID)
	s.vectors = append(s.vectors, doc.Vector)
	s.norms = append(s.norms, norm)
	s.texts[doc.ID] = doc.Text
}

// Flush writes both artifacts into a staging directory next to dir and then
// swaps it in, so readers see either the previous pair or the new one. The
// index directory is owned by the store.
func (s *Local) Flush(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	parent := filepath.Dir(s.dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}

	staging, err := os.MkdirTemp(parent, filepath.Base(s.dir)+".build-*")
	if err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	if err := os.Chmod(staging, 0o755); err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}

	ids := s.ids
	if ids == nil {
		ids = []string{}
	}
	vectors := s.vectors
	if vectors == nil {
		vectors = [][]float32{}
	}

	if err := writeJSON(filepath.Join(staging, TextsFile), s.texts); err != nil {
		return err
	}
	err = writeJSON(filepath.Join(staging, VectorsFile), vectorsArtifact{
		Model:      s.model,
		Dimensions: s.dims,
		IDs:        ids,
		Vectors:    vectors,
	})
	if err != nil {
		return err
	}

	return replaceDir(staging, s.dir)
}

// replaceDir moves staging into place of dir. The previous directory is
// restored when the final rename fails.
func replaceDir(staging, dir string) error {
	old := ""
	if _, err := os.Stat(dir); err == nil {
		old = fmt.Sprintf("%s.old-%d", dir, time.Now().UnixNano())
		if err := rename(dir, old); err != nil {
			return fmt.Errorf("move previous index aside: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat index directory: %w", err)
	}

	if err := rename(staging, dir); err != nil {
		if old != "" {
			_ = rename(old, dir)
		}
		return fmt.Errorf("install index: %w", err)
	}

	if old != "" {
		_ = os.RemoveAll(old)
	}
	return nil
}

func (s *Local) Search(_ context.Context, vector []float32, k int) ([]Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if k <= 0 || len(s.ids) == 0 {
		return nil, nil
	}
	if len(vector) != s.dims {
		return nil, &LoadError{
			Location: s.dir,
			Err:      fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(vector), s.dims),
		}
	}

	queryNorm := vectorNorm(vector)
	hits := make([]Hit, len(s.ids))
	for i, id := range s.ids {
		hits[i] = Hit{ID: id, Text: s.texts[id], Score: cosine(vector, queryNorm, s.vectors[i], s.norms[i])}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Len returns the number of indexed documents.
func (s *Local) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

func (s *Local) Model() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model
}

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(a []float32, normA float64, b []float32, normB float64) float64 {
	if normA == 0 || normB == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (normA * normB)
}

func readJSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrIndexMissing, filepath.Base(path))
		}
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
