package adapter

import (
	"context"

	"github.com/m-mizutani/engram/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// Embedder turns texts into embedding vectors. Implementations must return
// one vector per input text, all with the same dimensionality. The second
// return value is the number of tokens consumed, 0 when the backend does not
// report it.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, int, error)
}

// Registry resolves embedding model IDs to loaded embedders. Lookups for
// models that were never registered fail with a model (not store) error, so
// callers can reject a request before touching the store.
type Registry struct {
	embedders map[string]Embedder
	fallback  string
}

func NewRegistry() *Registry {
	return &Registry{
		embedders: make(map[string]Embedder),
	}
}

// Register binds a model ID to an embedder. The first registration becomes
// the fallback used when a request does not name a model.
func (r *Registry) Register(modelID string, embedder Embedder) {
	if len(r.embedders) == 0 {
		r.fallback = modelID
	}
	r.embedders[modelID] = embedder
}

// Get resolves a model ID, or the fallback when modelID is empty.
func (r *Registry) Get(modelID string) (Embedder, error) {
	if modelID == "" {
		modelID = r.fallback
	}

	embedder, ok := r.embedders[modelID]
	if !ok {
		return nil, goerr.Wrap(model.ErrModelNotLoaded, "no embedder for model",
			goerr.V("model", modelID))
	}
	return embedder, nil
}
