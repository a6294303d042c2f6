package ollama

import (
	"context"
	"strings"
)

// Options are the sampling parameters sent with a generate request.
type Options struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
	TopK        int     `json:"top_k,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
}

// GenerateClient produces completions through /api/generate.
type GenerateClient struct {
	base
	model string
}

// NewGenerateClient creates an Ollama text-generation client.
func NewGenerateClient(baseURL, model string, opts ...Option) *GenerateClient {
	return &GenerateClient{base: newBase(baseURL, opts), model: model}
}

type generateReq struct {
	Model   string  `json:"model"`
	Prompt  string  `json:"prompt"`
	Stream  bool    `json:"stream"`
	Options Options `json:"options"`
}

type generateResp struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate returns the model's completion for prompt. Leading and trailing
// whitespace is removed.
func (c *GenerateClient) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	var result generateResp
	req := generateReq{Model: c.model, Prompt: prompt, Options: opts}
	if err := c.post(ctx, "/api/generate", req, &result); err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Response), nil
}
