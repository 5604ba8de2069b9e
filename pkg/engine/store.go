package engine

import (
	"context"
	"encoding/json"

	"github.com/m-mizutani/engram/pkg/model"
	"github.com/m-mizutani/engram/pkg/rpc"
	"github.com/m-mizutani/engram/pkg/store"
	"github.com/m-mizutani/engram/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// StoreEngine serves the memory store methods. The store is opened by the
// initialize method (or pre-opened by the CLI); every other method fails with
// STORE_NOT_LOADED until then.
type StoreEngine struct {
	current   store.Store
	path      string
	threshold float64
}

type StoreEngineOption func(*StoreEngine)

// WithStore pre-opens the engine with a ready store, used when the CLI owns
// the store lifecycle (direct commands, Firestore backend).
func WithStore(s store.Store, path string) StoreEngineOption {
	return func(e *StoreEngine) {
		e.current = s
		e.path = path
	}
}

// WithThreshold sets the dedup threshold applied when initialize opens a
// local store.
func WithThreshold(threshold float64) StoreEngineOption {
	return func(e *StoreEngine) {
		e.threshold = threshold
	}
}

func NewStoreEngine(opts ...StoreEngineOption) *StoreEngine {
	e := &StoreEngine{
		threshold: store.DefaultDedupThreshold,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Bind registers every store method on the server.
func (e *StoreEngine) Bind(srv *rpc.Server) {
	srv.Register("store/initialize", e.handleInitialize)
	srv.Register("store/add", e.handleAdd)
	srv.Register("store/search", e.handleSearch)
	srv.Register("store/searchByPattern", e.handleSearchByPattern)
	srv.Register("store/get", e.handleGet)
	srv.Register("store/remove", e.handleRemove)
	srv.Register("store/list", e.handleList)
	srv.Register("store/close", e.handleClose)
}

// Close releases the underlying store if one is open.
func (e *StoreEngine) Close() error {
	if e.current == nil {
		return nil
	}
	s := e.current
	e.current = nil
	e.path = ""
	return s.Close()
}

func (e *StoreEngine) open() (store.Store, error) {
	if e.current == nil {
		return nil, goerr.Wrap(model.ErrNotLoaded, "initialize the store first")
	}
	return e.current, nil
}

type initializeParams struct {
	Path           string   `json:"path"`
	DedupThreshold *float64 `json:"dedupThreshold,omitempty"`
}

type initializeResult struct {
	Entries   int `json:"entries"`
	Dimension int `json:"dimension"`
}

func (e *StoreEngine) handleInitialize(ctx context.Context, params json.RawMessage) (any, error) {
	var p initializeParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	if p.Path == "" {
		return nil, goerr.Wrap(rpc.ErrInvalidParams, "path is required")
	}

	// Re-initializing the already-open path is a no-op answering with the
	// loaded state; a new path switches the store.
	if e.current != nil && e.path == p.Path {
		return &initializeResult{Entries: e.current.Len(), Dimension: e.current.Dimension()}, nil
	}
	if e.current != nil {
		logging.From(ctx).Info("switching store", "from", e.path, "to", p.Path)
		if err := e.Close(); err != nil {
			return nil, err
		}
	}

	threshold := e.threshold
	if p.DedupThreshold != nil {
		threshold = *p.DedupThreshold
	}

	s, err := store.Open(ctx, p.Path, store.WithDedupThreshold(threshold))
	if err != nil {
		return nil, err
	}

	e.current = s
	e.path = p.Path
	return &initializeResult{Entries: s.Len(), Dimension: s.Dimension()}, nil
}

type addParams struct {
	Text      string            `json:"text"`
	Embedding []float32         `json:"embedding"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Force     bool              `json:"force,omitempty"`
}

type addResult struct {
	ID model.EntryID `json:"id"`
}

func (e *StoreEngine) handleAdd(ctx context.Context, params json.RawMessage) (any, error) {
	s, err := e.open()
	if err != nil {
		return nil, err
	}

	var p addParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}

	entry, err := s.Add(ctx, &store.AddInput{
		Text:      p.Text,
		Embedding: p.Embedding,
		Metadata:  p.Metadata,
		Force:     p.Force,
	})
	if err != nil {
		return nil, err
	}
	return &addResult{ID: entry.ID}, nil
}

type searchParams struct {
	Embedding []float32 `json:"embedding"`
	TopK      int       `json:"topK"`
	MinScore  *float64  `json:"minScore"`
}

type searchResult struct {
	Hits []*store.Hit `json:"hits"`
}

func (e *StoreEngine) handleSearch(ctx context.Context, params json.RawMessage) (any, error) {
	s, err := e.open()
	if err != nil {
		return nil, err
	}

	var p searchParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	if p.TopK <= 0 {
		return nil, goerr.Wrap(rpc.ErrInvalidParams, "topK must be positive", goerr.V("topK", p.TopK))
	}

	// Cosine similarity spans [-1, 1], so an omitted minScore disables the
	// cutoff instead of defaulting to 0.
	minScore := -1.0
	if p.MinScore != nil {
		minScore = *p.MinScore
	}

	hits, err := s.Search(ctx, p.Embedding, p.TopK, minScore)
	if err != nil {
		return nil, err
	}
	return &searchResult{Hits: hits}, nil
}

type searchByPatternParams struct {
	Pattern string `json:"pattern"`
}

type entriesResult struct {
	Entries []*model.Entry `json:"entries"`
}

func (e *StoreEngine) handleSearchByPattern(ctx context.Context, params json.RawMessage) (any, error) {
	s, err := e.open()
	if err != nil {
		return nil, err
	}

	var p searchByPatternParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}

	entries, err := s.SearchByPattern(ctx, p.Pattern)
	if err != nil {
		return nil, err
	}
	return &entriesResult{Entries: entries}, nil
}

type idParams struct {
	ID model.EntryID `json:"id"`
}

func (e *StoreEngine) handleGet(ctx context.Context, params json.RawMessage) (any, error) {
	s, err := e.open()
	if err != nil {
		return nil, err
	}

	var p idParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, goerr.Wrap(rpc.ErrInvalidParams, "id is required")
	}

	entry, err := s.Get(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"entry": entry}, nil
}

func (e *StoreEngine) handleRemove(ctx context.Context, params json.RawMessage) (any, error) {
	s, err := e.open()
	if err != nil {
		return nil, err
	}

	var p idParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, goerr.Wrap(rpc.ErrInvalidParams, "id is required")
	}

	if err := s.Remove(ctx, p.ID); err != nil {
		return nil, err
	}
	return map[string]any{"removed": p.ID}, nil
}

type listParams struct {
	Offset int `json:"offset,omitempty"`
	Limit  int `json:"limit,omitempty"`
}

func (e *StoreEngine) handleList(ctx context.Context, params json.RawMessage) (any, error) {
	s, err := e.open()
	if err != nil {
		return nil, err
	}

	var p listParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}

	entries, err := s.List(ctx, p.Offset, p.Limit)
	if err != nil {
		return nil, err
	}
	return &entriesResult{Entries: entries}, nil
}

func (e *StoreEngine) handleClose(ctx context.Context, params json.RawMessage) (any, error) {
	if e.current == nil {
		return nil, goerr.Wrap(model.ErrNotLoaded, "no store to close")
	}
	if err := e.Close(); err != nil {
		return nil, err
	}
	return map[string]any{"closed": true}, nil
}
