package docsearch

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/cityair/conductor/internal/log"
)

// VectorDimension is the embedding width used throughout the chunk index.
// gemini-embedding-001 outputs 3072 dimensions by default but supports
// truncation to 768 via OutputDimensionality; the document_chunks schema
// uses 768.
const VectorDimension int32 = 768

// GeminiEmbedder embeds text with the Gemini embedding API.
type GeminiEmbedder struct {
	client *genai.Client
	model  string
	logger log.Logger
}

// NewGeminiEmbedder creates an embedder. The API key is read from the
// GEMINI_API_KEY environment variable by the underlying client.
func NewGeminiEmbedder(ctx context.Context, model string, logger log.Logger) (*GeminiEmbedder, error) {
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &GeminiEmbedder{client: client, model: model, logger: logger}, nil
}

// Embed returns a VectorDimension-wide embedding for text.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	dim := VectorDimension
	resp, err := e.client.Models.EmbedContent(ctx, e.model,
		genai.Text(text),
		&genai.EmbedContentConfig{OutputDimensionality: &dim},
	)
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("empty embedding response")
	}
	return resp.Embeddings[0].Values, nil
}
