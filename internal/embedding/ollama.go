package embedding

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
)

const (
	// DefaultOllamaModel produces 384-dimensional vectors.
	DefaultOllamaModel     = "all-minilm:l6-v2"
	DefaultOllamaDimension = 384

	// DefaultOllamaBatch bounds the inputs sent in one /api/embed request.
	DefaultOllamaBatch = 64
)

// OllamaClient embeds chunk texts with an Ollama server.
type OllamaClient struct {
	api       *api.Client
	model     string
	dimension int
	batch     int
}

var _ Embedder = (*OllamaClient)(nil)

// OllamaOption configures an OllamaClient.
type OllamaOption func(*OllamaClient)

// WithBatchSize sets how many texts go into one request.
func WithBatchSize(n int) OllamaOption {
	return func(c *OllamaClient) {
		if n > 0 {
			c.batch = n
		}
	}
}

// NewOllamaClient creates an Ollama embedding client. An empty host falls
// back to OLLAMA_HOST; empty model and zero dimension use the defaults.
func NewOllamaClient(host, model string, dimension int, opts ...OllamaOption) (*OllamaClient, error) {
	c := &OllamaClient{
		model:     model,
		dimension: dimension,
		batch:     DefaultOllamaBatch,
	}
	if c.model == "" {
		c.model = DefaultOllamaModel
	}
	if c.dimension == 0 {
		c.dimension = DefaultOllamaDimension
	}
	for _, opt := range opts {
		opt(c)
	}

	var err error
	if c.api, err = ollamaAPI(host); err != nil {
		return nil, err
	}
	return c, nil
}

func ollamaAPI(host string) (*api.Client, error) {
	if host == "" {
		client, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("create ollama client: %w", err)
		}
		return client, nil
	}
	base, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("parse ollama host: %w", err)
	}
	return api.NewClient(base, http.DefaultClient), nil
}

func (c *OllamaClient) Model() string  { return c.model }
func (c *OllamaClient) Dimension() int { return c.dimension }

func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in order, splitting them into requests of at most
// the configured batch size. Any failed request fails the whole batch.
func (c *OllamaClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batch {
		part := texts[start:min(start+c.batch, len(texts))]

		resp, err := c.api.Embed(ctx, &api.EmbedRequest{Model: c.model, Input: part})
		if err != nil {
			return nil, fmt.Errorf("embed texts %d-%d: %w", start, start+len(part)-1, err)
		}
		if err := checkBatch(resp.Embeddings, len(part), c.dimension); err != nil {
			return nil, fmt.Errorf("%w (model: %s)", err, c.model)
		}
		out = append(out, resp.Embeddings...)
	}
	return out, nil
}
