package memory

import (
	"context"
	"fmt"

	"github.com/m-mizutani/engram/pkg/model"
)

const summaryLength = 60

// List prints stored entries in insertion order.
func (u *UseCase) List(ctx context.Context, offset, limit int) ([]*model.Entry, error) {
	entries, err := u.store.List(ctx, offset, limit)
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		text := entry.Text
		if len(text) > summaryLength {
			text = text[:summaryLength] + "..."
		}
		fmt.Fprintf(u.output, "%s  %s  %s\n",
			entry.ID, entry.CreatedAt.Format("2006-01-02 15:04"), text)
	}
	fmt.Fprintf(u.output, "\n%d entries (total %d)\n", len(entries), u.store.Len())

	return entries, nil
}
