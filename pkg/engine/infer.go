package engine

import (
	"context"
	"encoding/json"

	"github.com/m-mizutani/engram/pkg/adapter"
	"github.com/m-mizutani/engram/pkg/rpc"
	"github.com/m-mizutani/goerr/v2"
)

// InferEngine serves batch embedding as a prompt-style method: the response
// content carries a JSON data block with one vector per input text, plus
// token usage accounting.
type InferEngine struct {
	registry *adapter.Registry
}

func NewInferEngine(registry *adapter.Registry) *InferEngine {
	return &InferEngine{registry: registry}
}

func (e *InferEngine) Bind(srv *rpc.Server) {
	srv.Register("prompt", e.handlePrompt)
}

type promptParams struct {
	Model string   `json:"model,omitempty"`
	Texts []string `json:"texts"`
}

type contentBlock struct {
	Type     string `json:"type"`
	MimeType string `json:"mimeType"`
	Data     any    `json:"data"`
}

type usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

type promptResult struct {
	Content []contentBlock `json:"content"`
	Usage   usage          `json:"usage"`
}

func (e *InferEngine) handlePrompt(ctx context.Context, params json.RawMessage) (any, error) {
	var p promptParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	if len(p.Texts) == 0 {
		return nil, goerr.Wrap(rpc.ErrInvalidParams, "texts must not be empty")
	}

	embedder, err := e.registry.Get(p.Model)
	if err != nil {
		return nil, err
	}

	vectors, tokens, err := embedder.Embed(ctx, p.Texts)
	if err != nil {
		return nil, err
	}

	return &promptResult{
		Content: []contentBlock{{
			Type:     "data",
			MimeType: "application/json",
			Data:     map[string]any{"embeddings": vectors},
		}},
		Usage: usage{PromptTokens: tokens},
	}, nil
}
