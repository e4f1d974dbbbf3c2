package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/spigell/operator-finder/internal/ai"
)

const (
	defaultModel          = "gemini-2.5-flash"
	defaultEmbeddingModel = "text-embedding-004"
	providerName          = "gemini"
)

// modelsAPI is the subset of *genai.Models used here.
type modelsAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// Generator wraps the Google GenAI client to provide simple prompt-based interactions.
type Generator struct {
	models      modelsAPI
	modelName   string
	temperature float32
}

// Embedder produces Gemini text embeddings.
type Embedder struct {
	models    modelsAPI
	modelName string
}

// NewClient creates a genai client configured for the Gemini API backend.
func NewClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return client, nil
}

// NewGenerator returns a Generator sampling at the given temperature.
func NewGenerator(client *genai.Client, model string, temperature float32) (*Generator, error) {
	if client == nil {
		return nil, errors.New("genai client is required")
	}
	if model = strings.TrimSpace(model); model == "" {
		model = defaultModel
	}

	return &Generator{models: client.Models, modelName: model, temperature: temperature}, nil
}

// NewEmbedder returns an Embedder for the given embedding model.
func NewEmbedder(client *genai.Client, model string) (*Embedder, error) {
	if client == nil {
		return nil, errors.New("genai client is required")
	}
	if model = strings.TrimSpace(model); model == "" {
		model = defaultEmbeddingModel
	}

	return &Embedder{models: client.Models, modelName: model}, nil
}

// GenerateContent sends the prompt to Gemini and returns the textual response.
func (g *Generator) GenerateContent(ctx context.Context, prompt string) (string, error) {
	if g == nil || g.models == nil {
		return "", errors.New("gemini generator is not initialized")
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("prompt must not be empty")
	}

	cfg := &genai.GenerateContentConfig{Temperature: genai.Ptr(g.temperature)}

	resp, err := g.models.GenerateContent(ctx, g.modelName, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", statusError(err))
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	output := strings.TrimSpace(builder.String())
	if output == "" {
		return "", errors.New("gemini api returned empty response")
	}

	return output, nil
}

func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.modelName
}

// Embed returns one vector per text, in input order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if e == nil || e.models == nil {
		return nil, errors.New("gemini embedder is not initialized")
	}
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, 0, len(texts))
	for _, text := range texts {
		contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
	}

	resp, err := e.models.EmbedContent(ctx, e.modelName, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", statusError(err))
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini api returned %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("gemini api returned empty embedding at position %d", i)
		}
		vectors[i] = emb.Values
	}

	return vectors, nil
}

func (e *Embedder) Model() string {
	if e == nil {
		return ""
	}
	return e.modelName
}

// statusError converts genai API errors into ai.StatusError so the retry
// middleware can classify them.
func statusError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &ai.StatusError{Provider: providerName, Code: apiErr.Code, Err: err}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &ai.StatusError{Provider: providerName, Code: apiErrPtr.Code, Err: err}
	}
	return err
}
