// Package vectorstore persists embedded resumes and answers nearest-neighbour queries.
package vectorstore

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
)

var (
	ErrModelMismatch     = errors.New("embedding model does not match index")
	ErrDimensionMismatch = errors.New("vector dimensions do not match index")
	ErrIndexMissing      = errors.New("index not found")
)

// Document is one embedded resume.
type Document struct {
	ID     string
	Text   string
	Vector []float32
}

// Hit is a search result, most similar first.
type Hit struct {
	ID    string
	Text  string
	Score float64
}

// LoadError reports a persisted index that cannot be used for queries.
type LoadError struct {
	Location string
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load index %s: %v", e.Location, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Writer rebuilds an index from scratch. The previous index keeps serving
// until Flush succeeds and stays in place when any step fails.
type Writer interface {
	// Reset starts a new index for the embedding model and vector size.
	Reset(ctx context.Context, model string, dims int) error
	Upsert(ctx context.Context, docs []Document) error
	// Flush publishes the new index in place of the previous one.
	Flush(ctx context.Context) error
}

// Searcher returns the k nearest documents to a query vector.
type Searcher interface {
	Search(ctx context.Context, vector []float32, k int) ([]Hit, error)
}

// DocumentID derives the content address of a flattened resume.
func DocumentID(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%x", sum[:])
}

func checkModel(location, indexModel, queryModel string) error {
	if indexModel != "" && queryModel != "" && indexModel != queryModel {
		return &LoadError{
			Location: location,
			Err:      fmt.Errorf("%w: index built with %q, querying with %q", ErrModelMismatch, indexModel, queryModel),
		}
	}
	return nil
}
