package cmd

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/operator-finder/internal/ai"
	"github.com/spigell/operator-finder/internal/ai/gemini"
	"github.com/spigell/operator-finder/internal/ai/openai"
	"github.com/spigell/operator-finder/internal/logger"
	"github.com/spigell/operator-finder/internal/pipeline"
	"github.com/spigell/operator-finder/internal/scoring"
	"github.com/spigell/operator-finder/internal/secrets"
	"github.com/spigell/operator-finder/internal/vectorstore"
)

const (
	providerGemini = "gemini"
	providerOpenAI = "openai"

	backendLocal         = "local"
	backendElasticsearch = "elasticsearch"
)

// models groups the provider clients built from one API key.
type models struct {
	provider  string
	generator ai.Generator
	embedder  ai.Embedder
}

func newModels(ctx context.Context, cfg *AIConfig) (*models, error) {
	if cfg == nil {
		return nil, fmt.Errorf("ai configuration is required")
	}

	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider == "" {
		provider = providerGemini
	}

	switch provider {
	case providerGemini:
		apiKey, err := secrets.Load(secrets.Source{
			Name:  "gemini api key",
			Value: cfg.APIKey,
			File:  cfg.APIKeyFile,
			Env:   "GEMINI_API_KEY",
		})
		if err != nil {
			return nil, err
		}

		client, err := gemini.NewClient(ctx, apiKey)
		if err != nil {
			return nil, err
		}

		gcfg := cfg.Gemini
		if gcfg == nil {
			gcfg = &GeminiConfig{}
		}

		generator, err := gemini.NewGenerator(client, gcfg.Model, cfg.Temperature)
		if err != nil {
			return nil, err
		}
		embedder, err := gemini.NewEmbedder(client, gcfg.EmbeddingModel)
		if err != nil {
			return nil, err
		}

		return &models{provider: provider, generator: generator, embedder: embedder}, nil

	case providerOpenAI:
		apiKey, err := secrets.Load(secrets.Source{
			Name:  "openai api key",
			Value: cfg.APIKey,
			File:  cfg.APIKeyFile,
			Env:   "OPENAI_API_KEY",
		})
		if err != nil {
			return nil, err
		}

		ocfg := cfg.OpenAI
		if ocfg == nil {
			ocfg = &OpenAIConfig{}
		}

		clientCfg := openai.Config{
			BaseURL:        ocfg.BaseURL,
			APIKey:         apiKey,
			Model:          ocfg.Model,
			EmbeddingModel: ocfg.EmbeddingModel,
			Temperature:    cfg.Temperature,
		}

		generator, err := openai.NewGenerator(clientCfg)
		if err != nil {
			return nil, err
		}
		embedder, err := openai.NewEmbedder(clientCfg)
		if err != nil {
			return nil, err
		}

		return &models{provider: provider, generator: generator, embedder: embedder}, nil

	default:
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}
}

// hardenedGenerator wraps the provider generator with rate limiting, the
// circuit breaker and retries, innermost first.
func hardenedGenerator(m *models, cfg *AIConfig, log *zap.Logger) ai.Generator {
	gen := m.generator

	if rl := cfg.RateLimit; rl != nil {
		gen = ai.WithRateLimit(gen, rl.RequestsPerSecond, rl.Burst)
	}

	if cb := cfg.CircuitBreaker; cb != nil {
		gen = ai.WithCircuitBreaker(gen, ai.BreakerConfig{
			Enabled:          cb.Enabled,
			MaxRequests:      cb.MaxRequests,
			Interval:         cb.Interval,
			Timeout:          cb.Timeout,
			MinRequests:      cb.MinRequests,
			FailureThreshold: cb.FailureThreshold,
		}, log)
	}

	return ai.WithRetry(gen, cfg.MaxRetries, log)
}

func indexLocation(cfg *IndexConfig) string {
	if backend(cfg) == backendElasticsearch && cfg.Elasticsearch != nil {
		return cfg.Elasticsearch.IndexName
	}
	return cfg.Path
}

func indexFields(cfg *IndexConfig) []zap.Field {
	return logger.IndexFields(backend(cfg), indexLocation(cfg))
}

func backend(cfg *IndexConfig) string {
	b := strings.TrimSpace(strings.ToLower(cfg.Backend))
	if b == "" {
		return backendLocal
	}
	return b
}

func elasticConfig(cfg *IndexConfig) vectorstore.ElasticConfig {
	es := cfg.Elasticsearch
	if es == nil {
		es = &ElasticsearchConfig{}
	}
	return vectorstore.ElasticConfig{
		Addresses: es.Addresses,
		Username:  es.Username,
		Password:  es.Password,
		IndexName: es.IndexName,
	}
}

func newIndexWriter(cfg *IndexConfig) (vectorstore.Writer, error) {
	switch backend(cfg) {
	case backendLocal:
		return vectorstore.NewLocal(cfg.Path), nil
	case backendElasticsearch:
		return vectorstore.NewElastic(elasticConfig(cfg))
	default:
		return nil, fmt.Errorf("unsupported index backend: %s", cfg.Backend)
	}
}

func openIndex(ctx context.Context, cfg *IndexConfig, embeddingModel string) (vectorstore.Searcher, error) {
	switch backend(cfg) {
	case backendLocal:
		return vectorstore.OpenLocal(cfg.Path, embeddingModel)
	case backendElasticsearch:
		return vectorstore.OpenElastic(ctx, elasticConfig(cfg), embeddingModel)
	default:
		return nil, fmt.Errorf("unsupported index backend: %s", cfg.Backend)
	}
}

// newCoordinator wires retrieval and scoring for the query commands.
func newCoordinator(ctx context.Context, config *Config, log *zap.Logger) (*pipeline.Coordinator, error) {
	m, err := newModels(ctx, config.AI)
	if err != nil {
		return nil, fmt.Errorf("building ai clients: %w", err)
	}

	aiLog := logger.WithFields(log, logger.AIFields(m.provider, m.generator.Model(), m.embedder.Model())...)

	searcher, err := openIndex(ctx, config.Index, m.embedder.Model())
	if err != nil {
		return nil, err
	}

	retriever, err := pipeline.NewVectorRetriever(m.embedder, searcher)
	if err != nil {
		return nil, err
	}

	scorer, err := scoring.New(hardenedGenerator(m, config.AI, aiLog), aiLog, scoring.Config{
		ScoreScale:   config.AI.ScoreScale,
		MaxLogLength: config.AI.MaxLogLength,
	})
	if err != nil {
		return nil, err
	}

	p := config.Pipeline
	return pipeline.NewCoordinator(retriever, scorer, aiLog, pipeline.Config{
		RetrieveK: p.RetrieveK,
		TopN:      p.TopN,
		Workers:   p.Workers,
		Timeout:   p.Timeout,
	})
}
