package store_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/engram/pkg/model"
	"github.com/m-mizutani/engram/pkg/store"
	"github.com/m-mizutani/gt"
)

func newLocal(t *testing.T, opts ...store.LocalOption) *store.Local {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memory.jsonl")
	s, err := store.Open(context.Background(), path, opts...)
	gt.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestLocalAddAndGet(t *testing.T) {
	ctx := context.Background()
	s := newLocal(t)

	entry, err := s.Add(ctx, &store.AddInput{
		Text:      "the deployment pipeline uses blue-green rollout",
		Embedding: []float32{1, 0, 0},
		Metadata:  map[string]string{"topic": "ops"},
	})
	gt.NoError(t, err)

	gt.NotEqual(t, entry.ID, model.EntryID(""))
	gt.False(t, entry.CreatedAt.IsZero())
	gt.Equal(t, s.Len(), 1)
	gt.Equal(t, s.Dimension(), 3)

	got, err := s.Get(ctx, entry.ID)
	gt.NoError(t, err)
	gt.Equal(t, got.Text, entry.Text)
	gt.Equal(t, got.Metadata["topic"], "ops")
}

func TestLocalAddValidation(t *testing.T) {
	ctx := context.Background()
	s := newLocal(t)

	_, err := s.Add(ctx, &store.AddInput{Text: "", Embedding: []float32{1}})
	gt.True(t, errors.Is(err, model.ErrEmptyText))

	_, err = s.Add(ctx, &store.AddInput{Text: "no vector"})
	gt.True(t, errors.Is(err, model.ErrEmptyEmbedding))

	gt.Equal(t, s.Len(), 0)
}

func TestLocalDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	s := newLocal(t)

	_, err := s.Add(ctx, &store.AddInput{Text: "first", Embedding: []float32{1, 0, 0}})
	gt.NoError(t, err)

	_, err = s.Add(ctx, &store.AddInput{Text: "wrong size", Embedding: []float32{1, 0}})
	gt.True(t, errors.Is(err, model.ErrDimensionMismatch))

	_, err = s.Search(ctx, []float32{1, 0}, 10, 0)
	gt.True(t, errors.Is(err, model.ErrDimensionMismatch))
}

func TestLocalDuplicateDetection(t *testing.T) {
	ctx := context.Background()
	s := newLocal(t, store.WithDedupThreshold(0.9))

	_, err := s.Add(ctx, &store.AddInput{Text: "retries use exponential backoff", Embedding: []float32{1, 0, 0}})
	gt.NoError(t, err)

	// Nearly parallel vector: rejected as duplicate.
	_, err = s.Add(ctx, &store.AddInput{Text: "retries back off exponentially", Embedding: []float32{0.99, 0.01, 0}})
	gt.True(t, errors.Is(err, model.ErrDuplicateEntry))
	gt.Equal(t, s.Len(), 1)

	// Force bypasses the check.
	_, err = s.Add(ctx, &store.AddInput{
		Text:      "retries back off exponentially",
		Embedding: []float32{0.99, 0.01, 0},
		Force:     true,
	})
	gt.NoError(t, err)
	gt.Equal(t, s.Len(), 2)

	// Orthogonal vector: stored normally.
	_, err = s.Add(ctx, &store.AddInput{Text: "the cache holds 4096 slots", Embedding: []float32{0, 1, 0}})
	gt.NoError(t, err)
	gt.Equal(t, s.Len(), 3)
}

func TestLocalRemove(t *testing.T) {
	ctx := context.Background()
	s := newLocal(t)

	entry, err := s.Add(ctx, &store.AddInput{Text: "to be removed", Embedding: []float32{1, 0}})
	gt.NoError(t, err)

	gt.NoError(t, s.Remove(ctx, entry.ID))
	gt.Equal(t, s.Len(), 0)

	_, err = s.Get(ctx, entry.ID)
	gt.True(t, errors.Is(err, model.ErrEntryNotFound))

	err = s.Remove(ctx, entry.ID)
	gt.True(t, errors.Is(err, model.ErrEntryNotFound))
}

func TestLocalList(t *testing.T) {
	ctx := context.Background()
	s := newLocal(t)

	texts := []string{"alpha", "bravo", "charlie", "delta"}
	for i, text := range texts {
		// Orthogonal vectors so no insert trips the duplicate threshold.
		embedding := make([]float32, len(texts))
		embedding[i] = 1
		_, err := s.Add(ctx, &store.AddInput{Text: text, Embedding: embedding})
		gt.NoError(t, err)
	}

	all, err := s.List(ctx, 0, 0)
	gt.NoError(t, err)
	gt.A(t, all).Length(4)
	gt.Equal(t, all[0].Text, "alpha")
	gt.Equal(t, all[3].Text, "delta")

	page, err := s.List(ctx, 1, 2)
	gt.NoError(t, err)
	gt.A(t, page).Length(2)
	gt.Equal(t, page[0].Text, "bravo")
	gt.Equal(t, page[1].Text, "charlie")

	empty, err := s.List(ctx, 10, 2)
	gt.NoError(t, err)
	gt.A(t, empty).Length(0)
}

func TestLocalSearchRanking(t *testing.T) {
	ctx := context.Background()
	s := newLocal(t)

	for _, in := range []*store.AddInput{
		{Text: "far", Embedding: []float32{0, 1, 0}},
		{Text: "near", Embedding: []float32{1, 0.1, 0}},
		{Text: "exact", Embedding: []float32{2, 0, 0}, Force: true},
	} {
		_, err := s.Add(ctx, in)
		gt.NoError(t, err)
	}

	hits, err := s.Search(ctx, []float32{1, 0, 0}, 2, 0)
	gt.NoError(t, err)
	gt.A(t, hits).Length(2)
	gt.Equal(t, hits[0].Entry.Text, "exact")
	gt.Equal(t, hits[1].Entry.Text, "near")
	gt.Number(t, hits[0].Score).GreaterOrEqual(hits[1].Score)

	// minScore filters out the orthogonal entry even without a limit.
	hits, err = s.Search(ctx, []float32{1, 0, 0}, 0, 0.5)
	gt.NoError(t, err)
	gt.A(t, hits).Length(2)
}

func TestLocalSearchTiesKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := newLocal(t)

	// Two entries with identical direction score identically; the earlier one
	// must rank first.
	first, err := s.Add(ctx, &store.AddInput{Text: "first", Embedding: []float32{1, 0}})
	gt.NoError(t, err)
	second, err := s.Add(ctx, &store.AddInput{Text: "second", Embedding: []float32{2, 0}, Force: true})
	gt.NoError(t, err)

	hits, err := s.Search(ctx, []float32{1, 0}, 0, 0)
	gt.NoError(t, err)
	gt.A(t, hits).Length(2)
	gt.Equal(t, hits[0].Entry.ID, first.ID)
	gt.Equal(t, hits[1].Entry.ID, second.ID)
}

func TestLocalSearchByPattern(t *testing.T) {
	ctx := context.Background()
	s := newLocal(t)

	_, err := s.Add(ctx, &store.AddInput{Text: "deploy failed on friday", Embedding: []float32{1, 0}})
	gt.NoError(t, err)
	_, err = s.Add(ctx, &store.AddInput{Text: "deploy succeeded on monday", Embedding: []float32{0, 1}})
	gt.NoError(t, err)

	matched, err := s.SearchByPattern(ctx, `deploy \w+ on`)
	gt.NoError(t, err)
	gt.A(t, matched).Length(2)

	matched, err = s.SearchByPattern(ctx, `failed`)
	gt.NoError(t, err)
	gt.A(t, matched).Length(1)
	gt.Equal(t, matched[0].Text, "deploy failed on friday")

	_, err = s.SearchByPattern(ctx, `[unclosed`)
	gt.True(t, errors.Is(err, model.ErrInvalidPattern))
}

func TestLocalPersistenceRoundtrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "memory.jsonl")

	s, err := store.Open(ctx, path)
	gt.NoError(t, err)

	kept, err := s.Add(ctx, &store.AddInput{
		Text:      "kept across restarts",
		Embedding: []float32{0.25, -0.5, 0.125},
		Metadata:  map[string]string{"source": "test"},
	})
	gt.NoError(t, err)

	removed, err := s.Add(ctx, &store.AddInput{Text: "removed before restart", Embedding: []float32{0, 1, 0}})
	gt.NoError(t, err)
	gt.NoError(t, s.Remove(ctx, removed.ID))
	gt.NoError(t, s.Close())

	reopened, err := store.Open(ctx, path)
	gt.NoError(t, err)
	defer reopened.Close()

	gt.Equal(t, reopened.Len(), 1)
	gt.Equal(t, reopened.Dimension(), 3)

	got, err := reopened.Get(ctx, kept.ID)
	gt.NoError(t, err)
	gt.Equal(t, got.Text, kept.Text)
	gt.Equal(t, got.Embedding, kept.Embedding)
	gt.Equal(t, got.Metadata["source"], "test")
	gt.True(t, got.CreatedAt.Equal(kept.CreatedAt))

	_, err = reopened.Get(ctx, removed.ID)
	gt.True(t, errors.Is(err, model.ErrEntryNotFound))
}

func TestLocalCorruptedRecordFailsOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "memory.jsonl")

	s, err := store.Open(ctx, path)
	gt.NoError(t, err)
	_, err = s.Add(ctx, &store.AddInput{Text: "survivor", Embedding: []float32{1, 0}})
	gt.NoError(t, err)
	gt.NoError(t, s.Close())

	// A terminated garbage line in the middle of the log is unrecoverable.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	gt.NoError(t, err)
	_, err = f.WriteString("{not json}\n")
	gt.NoError(t, err)
	gt.NoError(t, f.Close())

	_, err = store.Open(ctx, path)
	gt.True(t, errors.Is(err, model.ErrCorrupted))
}

func TestLocalChecksumMismatchFailsOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "memory.jsonl")

	s, err := store.Open(ctx, path)
	gt.NoError(t, err)
	_, err = s.Add(ctx, &store.AddInput{Text: "original text", Embedding: []float32{1, 0}})
	gt.NoError(t, err)
	gt.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	gt.NoError(t, err)

	// Flip one byte of the stored text so the line stays valid JSON but the
	// checksum no longer matches.
	for i := 0; i+8 <= len(data); i++ {
		if string(data[i:i+8]) == "original" {
			data[i] = 'O'
			break
		}
	}
	gt.NoError(t, os.WriteFile(path, data, 0600))

	_, err = store.Open(ctx, path)
	gt.True(t, errors.Is(err, model.ErrCorrupted))
}

func TestLocalTornTailIsTruncated(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "memory.jsonl")

	s, err := store.Open(ctx, path)
	gt.NoError(t, err)
	entry, err := s.Add(ctx, &store.AddInput{Text: "complete record", Embedding: []float32{1, 0}})
	gt.NoError(t, err)
	gt.NoError(t, s.Close())

	// Simulate a crash mid-append: a partial record with no newline.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	gt.NoError(t, err)
	_, err = f.WriteString(`{"op":"put","entry":{"id":"trunc`)
	gt.NoError(t, err)
	gt.NoError(t, f.Close())

	reopened, err := store.Open(ctx, path)
	gt.NoError(t, err)
	defer reopened.Close()

	gt.Equal(t, reopened.Len(), 1)
	_, err = reopened.Get(ctx, entry.ID)
	gt.NoError(t, err)

	// The log stays appendable after recovery.
	_, err = reopened.Add(ctx, &store.AddInput{Text: "after recovery", Embedding: []float32{0, 1}})
	gt.NoError(t, err)
	gt.NoError(t, reopened.Close())

	again, err := store.Open(ctx, path)
	gt.NoError(t, err)
	defer again.Close()
	gt.Equal(t, again.Len(), 2)
}

func TestLocalEmptyFileOpens(t *testing.T) {
	ctx := context.Background()
	s := newLocal(t)

	gt.Equal(t, s.Len(), 0)
	gt.Equal(t, s.Dimension(), 0)

	hits, err := s.Search(ctx, []float32{1, 0}, 5, 0)
	gt.NoError(t, err)
	gt.A(t, hits).Length(0)
}
