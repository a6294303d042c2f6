package ollama

import (
	"context"
	"fmt"
)

// EmbedClient produces embeddings through /api/embeddings.
type EmbedClient struct {
	base
	model string
	dims  int
}

// NewEmbedClient creates an Ollama embedding client. dims may be 0 when the
// model's output size is unknown; call Probe before using Dimensions.
func NewEmbedClient(baseURL, model string, dims int, opts ...Option) *EmbedClient {
	return &EmbedClient{base: newBase(baseURL, opts), model: model, dims: dims}
}

type embedReq struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResp struct {
	Embedding []float64 `json:"embedding"`
}

// Dimensions returns the configured or probed vector size.
func (c *EmbedClient) Dimensions() int { return c.dims }

// Probe embeds a short text to learn the model's vector size and records it.
func (c *EmbedClient) Probe(ctx context.Context) (int, error) {
	v, err := c.Embed(ctx, "dimension probe")
	if err != nil {
		return 0, err
	}
	c.dims = len(v)
	return c.dims, nil
}

// Embed returns the embedding for a single text.
func (c *EmbedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	var result embedResp
	if err := c.post(ctx, "/api/embeddings", embedReq{Model: c.model, Prompt: text}, &result); err != nil {
		return nil, err
	}
	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("%w: /api/embeddings: empty embedding", ErrBadResponse)
	}
	if c.dims > 0 && len(result.Embedding) != c.dims {
		return nil, fmt.Errorf("%w: /api/embeddings: got %d dims, want %d", ErrBadResponse, len(result.Embedding), c.dims)
	}

	out := make([]float32, len(result.Embedding))
	for i, v := range result.Embedding {
		out[i] = float32(v)
	}
	return out, nil
}

// EmbedBatch embeds texts one request at a time, in order.
func (c *EmbedClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vals, err := c.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("ollama: embed batch [%d]: %w", i, err)
		}
		out[i] = vals
	}
	return out, nil
}
