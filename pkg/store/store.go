package store

import (
	"context"
	"math"

	"github.com/m-mizutani/engram/pkg/model"
)

// AddInput carries one candidate entry. Force bypasses duplicate detection so
// the caller can insert a known near-duplicate on purpose.
type AddInput struct {
	Text      string
	Embedding []float32
	Metadata  map[string]string
	Force     bool
}

// Hit is a search result: the matched entry and its cosine similarity to the
// query.
type Hit struct {
	Entry *model.Entry `json:"entry"`
	Score float64      `json:"score"`
}

// Store is the persisted set of entries with duplicate detection and
// similarity/pattern search. Implementations: Local (append-log file,
// default) and Firestore (shared remote backend).
type Store interface {
	// Add validates the input, rejects near-duplicates above the configured
	// threshold (unless forced) and persists the new entry durably before
	// returning it.
	Add(ctx context.Context, input *AddInput) (*model.Entry, error)

	// Get retrieves an entry by ID.
	Get(ctx context.Context, id model.EntryID) (*model.Entry, error)

	// Remove deletes an entry by ID. The removal is durable before return.
	Remove(ctx context.Context, id model.EntryID) error

	// List returns entries in insertion order. offset/limit paginate;
	// limit <= 0 returns everything from offset.
	List(ctx context.Context, offset, limit int) ([]*model.Entry, error)

	// Search returns up to limit entries ranked by descending cosine
	// similarity to the query. Ties keep insertion order. Entries scoring
	// below minScore are dropped.
	Search(ctx context.Context, query []float32, limit int, minScore float64) ([]*Hit, error)

	// SearchByPattern returns entries whose text matches the regular
	// expression, in insertion order.
	SearchByPattern(ctx context.Context, pattern string) ([]*model.Entry, error)

	// Len returns the number of stored entries.
	Len() int

	// Dimension returns the embedding dimensionality, or 0 when the store is
	// empty and no dimension has been established yet.
	Dimension() int

	// Close flushes outstanding writes and releases resources.
	Close() error
}

// CosineSimilarity is the dot product of two vectors divided by the product
// of their magnitudes. It is 0 (not an error) when either magnitude is zero,
// which keeps search total over the stored set.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
