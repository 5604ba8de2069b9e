package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/m-mizutani/engram/pkg/model"
)

// Show prints one entry in a human-readable form.
func (u *UseCase) Show(ctx context.Context, id model.EntryID) (*model.Entry, error) {
	entry, err := u.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(u.output, "ID:        %s\n", entry.ID)
	fmt.Fprintf(u.output, "Created:   %s\n", entry.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(u.output, "Dimension: %d\n", len(entry.Embedding))
	if len(entry.Metadata) > 0 {
		keys := make([]string, 0, len(entry.Metadata))
		for k := range entry.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(u.output, "  %s: %s\n", k, entry.Metadata[k])
		}
	}
	fmt.Fprintf(u.output, "\n%s\n", entry.Text)

	return entry, nil
}
