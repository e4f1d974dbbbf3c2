// Package indexer turns a directory of resume records into a vector index.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/operator-finder/internal/ai"
	"github.com/spigell/operator-finder/internal/resume"
	"github.com/spigell/operator-finder/internal/vectorstore"
)

const DefaultBatchSize = 32

type Config struct {
	BatchSize int
}

// Report summarises a finished build.
type Report struct {
	Files      int
	Documents  int
	Duplicates int
	Model      string
	Dimensions int
	Elapsed    time.Duration
}

// Builder performs full rebuilds of a vector index.
type Builder struct {
	embedder  ai.Embedder
	store     vectorstore.Writer
	logger    *zap.Logger
	batchSize int
}

func New(embedder ai.Embedder, store vectorstore.Writer, logger *zap.Logger, cfg Config) (*Builder, error) {
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if store == nil {
		return nil, errors.New("vector store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}

	return &Builder{embedder: embedder, store: store, logger: logger, batchSize: batch}, nil
}

// Build loads and embeds every record under dataDir and replaces the index
// with the result. The store is only touched once every record has been
// loaded and embedded, so a failed build leaves the previous index intact.
func (b *Builder) Build(ctx context.Context, dataDir string) (*Report, error) {
	started := time.Now()

	sources, err := resume.LoadDir(dataDir)
	if err != nil {
		return nil, err
	}

	b.logger.Info("loaded resume records", zap.Int("files", len(sources)), zap.String("data_dir", dataDir))

	docs := make([]vectorstore.Document, 0, len(sources))
	seen := make(map[string]string, len(sources))
	report := &Report{Files: len(sources), Model: b.embedder.Model()}

	for _, src := range sources {
		text := resume.Flatten(src.Record)
		id := vectorstore.DocumentID(text)
		if first, ok := seen[id]; ok {
			report.Duplicates++
			b.logger.Debug("skipping duplicate resume",
				zap.String("path", src.Path),
				zap.String("duplicate_of", first),
			)
			continue
		}
		seen[id] = src.Path
		docs = append(docs, vectorstore.Document{ID: id, Text: text})
	}

	if err := b.embed(ctx, docs); err != nil {
		return nil, err
	}

	report.Dimensions = len(docs[0].Vector)
	for _, doc := range docs {
		if len(doc.Vector) != report.Dimensions {
			return nil, fmt.Errorf("%w: embedder returned %d and %d", vectorstore.ErrDimensionMismatch, report.Dimensions, len(doc.Vector))
		}
	}

	if err := b.store.Reset(ctx, report.Model, report.Dimensions); err != nil {
		return nil, fmt.Errorf("reset index: %w", err)
	}
	for start := 0; start < len(docs); start += b.batchSize {
		end := min(start+b.batchSize, len(docs))
		if err := b.store.Upsert(ctx, docs[start:end]); err != nil {
			return nil, fmt.Errorf("insert documents: %w", err)
		}
	}
	if err := b.store.Flush(ctx); err != nil {
		return nil, fmt.Errorf("persist index: %w", err)
	}

	report.Documents = len(docs)
	report.Elapsed = time.Since(started)

	b.logger.Info("index built",
		zap.Int("documents", report.Documents),
		zap.Int("duplicates", report.Duplicates),
		zap.Int("dimensions", report.Dimensions),
		zap.String("embedding_model", report.Model),
		zap.Duration("elapsed", report.Elapsed),
	)

	return report, nil
}

func (b *Builder) embed(ctx context.Context, docs []vectorstore.Document) error {
	for start := 0; start < len(docs); start += b.batchSize {
		end := min(start+b.batchSize, len(docs))

		texts := make([]string, 0, end-start)
		for _, doc := range docs[start:end] {
			texts = append(texts, doc.Text)
		}

		vectors, err := b.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		if len(vectors) != len(texts) {
			return fmt.Errorf("embed batch %d-%d: got %d vectors for %d texts", start, end, len(vectors), len(texts))
		}

		for i, vector := range vectors {
			docs[start+i].Vector = vector
		}

		b.logger.Debug("embedded batch", zap.Int("from", start), zap.Int("to", end))
	}
	return nil
}
