package memory

import (
	"context"

	"github.com/m-mizutani/engram/pkg/model"
	"github.com/m-mizutani/engram/pkg/store"
)

// MemorizeInput carries one text to remember.
type MemorizeInput struct {
	Text     string
	Metadata map[string]string
	Model    string
	Force    bool
}

// Memorize embeds the text and stores it. Near-duplicates fail with the
// measured similarity unless Force is set.
func (u *UseCase) Memorize(ctx context.Context, input *MemorizeInput) (*model.Entry, error) {
	embedding, err := u.embed(ctx, input.Model, input.Text)
	if err != nil {
		return nil, err
	}

	return u.store.Add(ctx, &store.AddInput{
		Text:      input.Text,
		Embedding: embedding,
		Metadata:  input.Metadata,
		Force:     input.Force,
	})
}
