package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/spigell/operator-finder/internal/ai"
	"github.com/spigell/operator-finder/internal/vectorstore"
)

// Retriever returns up to k flattened resumes relevant to the query,
// most similar first.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]string, error)
}

// VectorRetriever embeds the query and searches a vector store.
type VectorRetriever struct {
	embedder ai.Embedder
	searcher vectorstore.Searcher
}

func NewVectorRetriever(embedder ai.Embedder, searcher vectorstore.Searcher) (*VectorRetriever, error) {
	if embedder == nil || searcher == nil {
		return nil, errors.New("embedder and searcher are required")
	}
	return &VectorRetriever{embedder: embedder, searcher: searcher}, nil
}

func (r *VectorRetriever) Retrieve(ctx context.Context, query string, k int) ([]string, error) {
	if k <= 0 {
		return nil, nil
	}

	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vectors))
	}

	hits, err := r.searcher.Search(ctx, vectors[0], k)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	texts := make([]string, 0, len(hits))
	for _, hit := range hits {
		texts = append(texts, hit.Text)
	}
	return texts, nil
}
