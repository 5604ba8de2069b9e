package adapter

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

// GeminiEmbedder embeds text through the Gemini API.
type GeminiEmbedder struct {
	client         *genai.Client
	embeddingModel string
	dimensionality int32
}

type GeminiOption func(*GeminiEmbedder)

func WithEmbeddingModel(model string) GeminiOption {
	return func(g *GeminiEmbedder) {
		g.embeddingModel = model
	}
}

// WithDimensionality truncates returned vectors to the given size. 0 keeps
// the model default.
func WithDimensionality(dim int32) GeminiOption {
	return func(g *GeminiEmbedder) {
		g.dimensionality = dim
	}
}

func NewGemini(ctx context.Context, projectID, location string, opts ...GeminiOption) (*GeminiEmbedder, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  projectID,
		Location: location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client")
	}

	g := &GeminiEmbedder{
		client:         client,
		embeddingModel: "gemini-embedding-001",
	}
	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

func (g *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, int, error) {
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	config := &genai.EmbedContentConfig{}
	if g.dimensionality > 0 {
		config.OutputDimensionality = genai.Ptr(g.dimensionality)
	}

	resp, err := g.client.Models.EmbedContent(ctx, g.embeddingModel, contents, config)
	if err != nil {
		return nil, 0, goerr.Wrap(err, "failed to embed content", goerr.V("model", g.embeddingModel))
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, 0, goerr.New("embedding count does not match input count",
			goerr.V("expected", len(texts)), goerr.V("actual", len(resp.Embeddings)))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	tokens := 0
	for i, emb := range resp.Embeddings {
		vectors[i] = emb.Values
		if emb.Statistics != nil {
			tokens += int(emb.Statistics.TokenCount)
		}
	}
	return vectors, tokens, nil
}
