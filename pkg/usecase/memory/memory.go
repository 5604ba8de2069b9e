package memory

import (
	"context"
	"io"
	"os"

	"github.com/m-mizutani/engram/pkg/adapter"
	"github.com/m-mizutani/engram/pkg/store"
)

// UseCase provides text-level memory operations: callers hand over text, the
// usecase resolves the embedder and drives the store.
type UseCase struct {
	store    store.Store
	registry *adapter.Registry
	output   io.Writer
}

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithOutput sets the output writer
func WithOutput(w io.Writer) Option {
	return func(uc *UseCase) {
		uc.output = w
	}
}

// New creates a new memory UseCase instance
func New(s store.Store, registry *adapter.Registry, opts ...Option) *UseCase {
	uc := &UseCase{
		store:    s,
		registry: registry,
		output:   os.Stdout,
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}

// embed resolves the embedder first, so a missing model never mutates the
// store, then embeds the single text.
func (u *UseCase) embed(ctx context.Context, modelID, text string) ([]float32, error) {
	embedder, err := u.registry.Get(modelID)
	if err != nil {
		return nil, err
	}

	vectors, _, err := embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}
