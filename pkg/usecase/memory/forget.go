package memory

import (
	"context"
	"fmt"

	"github.com/m-mizutani/engram/pkg/model"
)

// Forget removes one entry by ID.
func (u *UseCase) Forget(ctx context.Context, id model.EntryID) error {
	if err := u.store.Remove(ctx, id); err != nil {
		return err
	}

	fmt.Fprintf(u.output, "Forgot entry %s\n", id)
	return nil
}
