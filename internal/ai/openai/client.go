// Package openai talks to OpenAI-compatible chat completion and embedding endpoints.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/spigell/operator-finder/internal/ai"
)

const (
	DefaultBaseURL        = "https://api.openai.com/v1"
	defaultModel          = "gpt-4o-mini"
	defaultEmbeddingModel = "text-embedding-3-small"
	defaultTimeout        = 120 * time.Second
	providerName          = "openai"
	maxErrorBody          = 512
)

// Config describes an OpenAI-compatible endpoint.
type Config struct {
	BaseURL        string
	APIKey         string
	Model          string
	EmbeddingModel string
	Temperature    float32
	HTTPClient     *http.Client
}

type transport struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// Generator sends single-turn chat completions.
type Generator struct {
	transport
	model       string
	temperature float32
}

// Embedder calls the embeddings endpoint.
type Embedder struct {
	transport
	model string
}

func newTransport(cfg Config) (transport, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return transport{}, errors.New("openai api key is required")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}

	return transport{baseURL: baseURL, apiKey: apiKey, client: client}, nil
}

// NewGenerator builds a chat completion Generator.
func NewGenerator(cfg Config) (*Generator, error) {
	t, err := newTransport(cfg)
	if err != nil {
		return nil, err
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}

	return &Generator{transport: t, model: model, temperature: cfg.Temperature}, nil
}

// NewEmbedder builds an embeddings client.
func NewEmbedder(cfg Config) (*Embedder, error) {
	t, err := newTransport(cfg)
	if err != nil {
		return nil, err
	}

	model := strings.TrimSpace(cfg.EmbeddingModel)
	if model == "" {
		model = defaultEmbeddingModel
	}

	return &Embedder{transport: t, model: model}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// GenerateContent sends the prompt as a single user message.
func (g *Generator) GenerateContent(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("prompt must not be empty")
	}

	req := chatRequest{
		Model:       g.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: g.temperature,
	}

	var resp chatResponse
	if err := g.post(ctx, "/chat/completions", req, &resp); err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("openai api returned no choices")
	}

	output := strings.TrimSpace(resp.Choices[0].Message.Content)
	if output == "" {
		return "", errors.New("openai api returned empty response")
	}

	return output, nil
}

func (g *Generator) Model() string { return g.model }

// Embed returns one vector per text, ordered by the response index.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var resp embeddingResponse
	if err := e.post(ctx, "/embeddings", embeddingRequest{Model: e.model, Input: texts}, &resp); err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai api returned %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	sort.SliceStable(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })

	vectors := make([][]float32, len(resp.Data))
	for i, item := range resp.Data {
		if len(item.Embedding) == 0 {
			return nil, fmt.Errorf("openai api returned empty embedding at position %d", i)
		}
		vectors[i] = item.Embedding
	}

	return vectors, nil
}

func (e *Embedder) Model() string { return e.model }

func (t transport) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &ai.StatusError{
			Provider: providerName,
			Code:     resp.StatusCode,
			Err:      errors.New(strings.TrimSpace(string(snippet))),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
