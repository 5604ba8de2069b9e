package memory

import (
	"context"

	"github.com/m-mizutani/engram/pkg/model"
	"github.com/m-mizutani/engram/pkg/store"
)

// RecallInput carries a text query for similarity search.
type RecallInput struct {
	Query    string
	Model    string
	TopK     int
	MinScore float64
}

// Recall embeds the query and returns the closest stored entries.
func (u *UseCase) Recall(ctx context.Context, input *RecallInput) ([]*store.Hit, error) {
	topK := input.TopK
	if topK <= 0 {
		topK = 5
	}

	embedding, err := u.embed(ctx, input.Model, input.Query)
	if err != nil {
		return nil, err
	}

	return u.store.Search(ctx, embedding, topK, input.MinScore)
}

// RecallByPattern returns stored entries whose text matches the regular
// expression, in insertion order.
func (u *UseCase) RecallByPattern(ctx context.Context, pattern string) ([]*model.Entry, error) {
	return u.store.SearchByPattern(ctx, pattern)
}
