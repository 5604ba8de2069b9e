package store

import (
	"context"
	"regexp"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/engram/pkg/model"
	"github.com/m-mizutani/engram/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const defaultCollection = "memories"

// Firestore is the shared remote backend. It mirrors the Local semantics but
// delegates nearest-neighbor ranking to Firestore vector search.
type Firestore struct {
	client     *firestore.Client
	collection string
	count      int
	dimension  int
	threshold  float64
}

type FirestoreOption func(*Firestore)

// WithCollection overrides the collection name.
func WithCollection(name string) FirestoreOption {
	return func(s *Firestore) {
		s.collection = name
	}
}

// WithFirestoreDedupThreshold overrides the duplicate-detection threshold.
func WithFirestoreDedupThreshold(threshold float64) FirestoreOption {
	return func(s *Firestore) {
		s.threshold = threshold
	}
}

type memoryDoc struct {
	ID        string             `firestore:"id"`
	Text      string             `firestore:"text"`
	Embedding firestore.Vector32 `firestore:"embedding"`
	Metadata  map[string]string  `firestore:"metadata,omitempty"`
	CreatedAt time.Time          `firestore:"createdAt"`
}

func (x *memoryDoc) entry() *model.Entry {
	return &model.Entry{
		ID:        model.EntryID(x.ID),
		Text:      x.Text,
		Embedding: []float32(x.Embedding),
		Metadata:  x.Metadata,
		CreatedAt: x.CreatedAt,
	}
}

// OpenFirestore connects to the project database and counts the stored
// entries so Len and Dimension answer without further round trips.
func OpenFirestore(ctx context.Context, projectID, databaseID string, opts ...FirestoreOption) (*Firestore, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(model.ErrStoreIO, "failed to create firestore client",
			goerr.V("projectId", projectID), goerr.V("databaseId", databaseID), goerr.V("cause", err.Error()))
	}

	s := &Firestore{
		client:     client,
		collection: defaultCollection,
		threshold:  DefaultDedupThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.refresh(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	logging.From(ctx).Info("firestore store opened",
		"projectId", projectID, "databaseId", databaseID,
		"collection", s.collection, "entries", s.count)

	return s, nil
}

func (s *Firestore) refresh(ctx context.Context) error {
	iter := s.client.Collection(s.collection).
		OrderBy("createdAt", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	s.count = 0
	s.dimension = 0
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return goerr.Wrap(model.ErrStoreIO, "failed to scan collection", goerr.V("cause", err.Error()))
		}

		var memory memoryDoc
		if err := doc.DataTo(&memory); err != nil {
			return goerr.Wrap(model.ErrCorrupted, "stored document has unexpected shape",
				goerr.V("doc", doc.Ref.ID), goerr.V("cause", err.Error()))
		}

		if s.dimension > 0 && len(memory.Embedding) != s.dimension {
			return goerr.Wrap(model.ErrCorrupted, "collection holds mixed embedding dimensions",
				goerr.V("doc", doc.Ref.ID), goerr.V("expected", s.dimension), goerr.V("actual", len(memory.Embedding)))
		}
		if s.dimension == 0 {
			s.dimension = len(memory.Embedding)
		}
		s.count++
	}
	return nil
}

func (s *Firestore) Len() int {
	return s.count
}

func (s *Firestore) Dimension() int {
	return s.dimension
}

func (s *Firestore) Add(ctx context.Context, input *AddInput) (*model.Entry, error) {
	if input.Text == "" {
		return nil, goerr.Wrap(model.ErrEmptyText, "cannot store an entry without text")
	}
	if len(input.Embedding) == 0 {
		return nil, goerr.Wrap(model.ErrEmptyEmbedding, "cannot store an entry without embedding")
	}
	if s.dimension > 0 && len(input.Embedding) != s.dimension {
		return nil, goerr.Wrap(model.ErrDimensionMismatch, "embedding does not match store dimension",
			goerr.V("expected", s.dimension), goerr.V("actual", len(input.Embedding)))
	}

	if !input.Force && s.count > 0 {
		hits, err := s.Search(ctx, input.Embedding, 1, 0)
		if err != nil {
			return nil, err
		}
		if len(hits) > 0 && hits[0].Score >= s.threshold {
			return nil, goerr.Wrap(model.ErrDuplicateEntry, "candidate is too similar to a stored entry",
				goerr.V("similarity", hits[0].Score),
				goerr.V("threshold", s.threshold),
				goerr.V("duplicateId", string(hits[0].Entry.ID)))
		}
	}

	entry, err := model.NewEntry(input.Text, input.Embedding, input.Metadata)
	if err != nil {
		return nil, err
	}

	doc := &memoryDoc{
		ID:        string(entry.ID),
		Text:      entry.Text,
		Embedding: firestore.Vector32(entry.Embedding),
		Metadata:  entry.Metadata,
		CreatedAt: entry.CreatedAt,
	}
	if _, err := s.client.Collection(s.collection).Doc(doc.ID).Set(ctx, doc); err != nil {
		return nil, goerr.Wrap(model.ErrStoreIO, "failed to put entry",
			goerr.V("id", doc.ID), goerr.V("cause", err.Error()))
	}

	if s.dimension == 0 {
		s.dimension = len(entry.Embedding)
	}
	s.count++
	return entry, nil
}

func (s *Firestore) Get(ctx context.Context, id model.EntryID) (*model.Entry, error) {
	doc, err := s.client.Collection(s.collection).Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(model.ErrEntryNotFound, "no entry for id", goerr.V("id", string(id)))
		}
		return nil, goerr.Wrap(model.ErrStoreIO, "failed to get entry",
			goerr.V("id", string(id)), goerr.V("cause", err.Error()))
	}

	var memory memoryDoc
	if err := doc.DataTo(&memory); err != nil {
		return nil, goerr.Wrap(model.ErrCorrupted, "stored document has unexpected shape",
			goerr.V("id", string(id)), goerr.V("cause", err.Error()))
	}
	return memory.entry(), nil
}

func (s *Firestore) Remove(ctx context.Context, id model.EntryID) error {
	ref := s.client.Collection(s.collection).Doc(string(id))

	if _, err := ref.Get(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(model.ErrEntryNotFound, "no entry for id", goerr.V("id", string(id)))
		}
		return goerr.Wrap(model.ErrStoreIO, "failed to get entry",
			goerr.V("id", string(id)), goerr.V("cause", err.Error()))
	}

	if _, err := ref.Delete(ctx); err != nil {
		return goerr.Wrap(model.ErrStoreIO, "failed to delete entry",
			goerr.V("id", string(id)), goerr.V("cause", err.Error()))
	}

	s.count--
	return nil
}

func (s *Firestore) List(ctx context.Context, offset, limit int) ([]*model.Entry, error) {
	query := s.client.Collection(s.collection).OrderBy("createdAt", firestore.Asc)
	if offset > 0 {
		query = query.Offset(offset)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	return s.collect(query.Documents(ctx))
}

func (s *Firestore) Search(ctx context.Context, query []float32, limit int, minScore float64) ([]*Hit, error) {
	if len(query) == 0 {
		return nil, goerr.Wrap(model.ErrEmptyEmbedding, "search query embedding is empty")
	}
	if s.dimension > 0 && len(query) != s.dimension {
		return nil, goerr.Wrap(model.ErrDimensionMismatch, "query does not match store dimension",
			goerr.V("expected", s.dimension), goerr.V("actual", len(query)))
	}

	if limit <= 0 {
		limit = s.count
	}
	if limit == 0 {
		return []*Hit{}, nil
	}

	vq := s.client.Collection(s.collection).FindNearest(
		"embedding",
		firestore.Vector32(query),
		limit,
		firestore.DistanceMeasureCosine,
		nil,
	)

	iter := vq.Documents(ctx)
	defer iter.Stop()

	hits := make([]*Hit, 0, limit)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(model.ErrStoreIO, "vector search failed", goerr.V("cause", err.Error()))
		}

		var memory memoryDoc
		if err := doc.DataTo(&memory); err != nil {
			return nil, goerr.Wrap(model.ErrCorrupted, "stored document has unexpected shape",
				goerr.V("doc", doc.Ref.ID), goerr.V("cause", err.Error()))
		}

		entry := memory.entry()
		// Firestore orders by distance but does not return the score, so it is
		// recomputed locally for the minScore cut and the response payload.
		score := CosineSimilarity(query, entry.Embedding)
		if score < minScore {
			continue
		}
		hits = append(hits, &Hit{Entry: entry, Score: score})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	return hits, nil
}

func (s *Firestore) SearchByPattern(ctx context.Context, pattern string) ([]*model.Entry, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, goerr.Wrap(model.ErrInvalidPattern, "failed to compile pattern",
			goerr.V("pattern", pattern), goerr.V("cause", err.Error()))
	}

	// Firestore has no regex query, so the pattern runs over a full scan in
	// insertion order.
	entries, err := s.collect(s.client.Collection(s.collection).
		OrderBy("createdAt", firestore.Asc).
		Documents(ctx))
	if err != nil {
		return nil, err
	}

	matched := make([]*model.Entry, 0)
	for _, entry := range entries {
		if re.MatchString(entry.Text) {
			matched = append(matched, entry)
		}
	}
	return matched, nil
}

func (s *Firestore) collect(iter *firestore.DocumentIterator) ([]*model.Entry, error) {
	defer iter.Stop()

	entries := make([]*model.Entry, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(model.ErrStoreIO, "failed to scan collection", goerr.V("cause", err.Error()))
		}

		var memory memoryDoc
		if err := doc.DataTo(&memory); err != nil {
			return nil, goerr.Wrap(model.ErrCorrupted, "stored document has unexpected shape",
				goerr.V("doc", doc.Ref.ID), goerr.V("cause", err.Error()))
		}
		entries = append(entries, memory.entry())
	}
	return entries, nil
}

func (s *Firestore) Close() error {
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	if err != nil {
		return goerr.Wrap(model.ErrStoreIO, "failed to close firestore client", goerr.V("cause", err.Error()))
	}
	return nil
}
