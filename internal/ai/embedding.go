package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"

	openai "github.com/sashabaranov/go-openai"

	"chatpdf/internal/embedding"
)

// EmbeddingConfig holds API settings for text-embedding (OpenAI-compatible).
type EmbeddingConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// OpenAIEmbedder is an embedding.Provider backed by the /embeddings endpoint.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
}

func NewOpenAIEmbedder(cfg EmbeddingConfig) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		client: newClient(cfg.BaseURL, cfg.APIKey),
		model:  cfg.Model,
	}
}

// CreateEmbeddings returns one vector per input, in input order.
func (e *OpenAIEmbedder) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: no texts", embedding.ErrInvalidInput)
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, classifyError(ctx, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: embedding response has %d items for %d inputs", embedding.ErrTransient, len(resp.Data), len(texts))
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	out := make([][]float32, len(data))
	for i, d := range data {
		if d.Index != i {
			return nil, fmt.Errorf("%w: embedding response index %d out of range", embedding.ErrTransient, d.Index)
		}
		out[i] = d.Embedding
	}
	return out, nil
}

// classifyError maps go-openai failures onto the embedding error taxonomy.
func classifyError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return err
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	default:
		// No HTTP status means the request never completed.
		return fmt.Errorf("%w: %v", embedding.ErrTransient, err)
	}

	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %v", embedding.ErrRateLimited, err)
	case status == http.StatusRequestTimeout || status >= 500:
		return fmt.Errorf("%w: %v", embedding.ErrTransient, err)
	case status >= 400:
		return fmt.Errorf("%w: %v", embedding.ErrInvalidInput, err)
	default:
		return fmt.Errorf("embedding request failed: %w", err)
	}
}

func newClient(baseURL, apiKey string) *openai.Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(config)
}
