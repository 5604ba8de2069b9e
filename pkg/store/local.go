package store

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"regexp"
	"sort"

	"github.com/m-mizutani/engram/pkg/model"
	"github.com/m-mizutani/engram/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// DefaultDedupThreshold is the cosine similarity above which a new entry is
// rejected as a duplicate of a stored one.
const DefaultDedupThreshold = 0.95

// Local is the file-backed store: all entries in memory, mutations appended
// to a checksummed JSON-lines log and fsynced before the call returns.
//
// A Local instance exclusively owns its backing file and serves exactly one
// client over one stream, so no internal locking is performed.
type Local struct {
	path      string
	file      *os.File
	entries   []*model.Entry
	index     map[model.EntryID]*model.Entry
	dimension int
	threshold float64
}

type LocalOption func(*Local)

// WithDedupThreshold overrides the duplicate-detection threshold.
func WithDedupThreshold(threshold float64) LocalOption {
	return func(s *Local) {
		s.threshold = threshold
	}
}

// Open opens or creates the backing log at path and replays it. A record that
// fails its checksum mid-file is corruption and fails the open; a torn record
// at the very end of the log (unclean shutdown) is truncated away with a
// logged warning.
func Open(ctx context.Context, path string, opts ...LocalOption) (*Local, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, goerr.Wrap(model.ErrStoreIO, "failed to open store log",
			goerr.V("path", path), goerr.V("cause", err.Error()))
	}

	s := &Local{
		path:      path,
		file:      file,
		index:     make(map[model.EntryID]*model.Entry),
		threshold: DefaultDedupThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.load(ctx); err != nil {
		_ = file.Close()
		return nil, err
	}

	logging.From(ctx).Info("store opened",
		"path", path, "entries", len(s.entries), "dimension", s.dimension)

	return s, nil
}

// Path returns the backing file location.
func (s *Local) Path() string {
	return s.path
}

func (s *Local) Len() int {
	return len(s.entries)
}

func (s *Local) Dimension() int {
	return s.dimension
}

func (s *Local) load(ctx context.Context) error {
	logger := logging.From(ctx)

	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return goerr.Wrap(model.ErrStoreIO, "failed to seek store log", goerr.V("cause", err.Error()))
	}

	reader := bufio.NewReader(s.file)
	var offset int64
	lineNo := 0

	for {
		line, readErr := reader.ReadBytes('\n')
		if readErr != nil && readErr != io.EOF {
			return goerr.Wrap(model.ErrStoreIO, "failed to read store log", goerr.V("cause", readErr.Error()))
		}
		terminated := readErr == nil

		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 {
			if readErr == io.EOF {
				break
			}
			offset += int64(len(line))
			continue
		}
		lineNo++

		rec, decErr := decodeRecord(trimmed)
		if decErr != nil {
			if !terminated {
				// Torn tail from an unclean shutdown: drop it, keep everything
				// before it. This is the only recovery that happens silently
				// dropping bytes, and it is always logged.
				logger.Warn("truncating torn record at end of store log",
					"path", s.path, "line", lineNo, "offset", offset)
				return s.truncate(offset)
			}
			return goerr.Wrap(decErr, "store log is corrupted",
				goerr.V("path", s.path), goerr.V("line", lineNo))
		}

		if err := s.apply(rec, lineNo); err != nil {
			return err
		}
		offset += int64(len(line))

		if readErr == io.EOF {
			// The final record is complete but missed its newline; restore the
			// framing so the next append starts on a fresh line.
			if _, err := s.file.WriteString("\n"); err != nil {
				return goerr.Wrap(model.ErrStoreIO, "failed to repair store log framing", goerr.V("cause", err.Error()))
			}
			break
		}
	}

	if _, err := s.file.Seek(0, io.SeekEnd); err != nil {
		return goerr.Wrap(model.ErrStoreIO, "failed to seek store log", goerr.V("cause", err.Error()))
	}
	return nil
}

func (s *Local) apply(rec *record, lineNo int) error {
	switch rec.Op {
	case opPut:
		entry := rec.Entry
		if _, exists := s.index[entry.ID]; exists {
			return goerr.Wrap(model.ErrCorrupted, "store log holds duplicate entry id",
				goerr.V("id", string(entry.ID)), goerr.V("line", lineNo))
		}
		if s.dimension > 0 && len(entry.Embedding) != s.dimension {
			return goerr.Wrap(model.ErrCorrupted, "store log holds mixed embedding dimensions",
				goerr.V("id", string(entry.ID)), goerr.V("expected", s.dimension), goerr.V("actual", len(entry.Embedding)))
		}
		if s.dimension == 0 {
			s.dimension = len(entry.Embedding)
		}
		s.entries = append(s.entries, entry)
		s.index[entry.ID] = entry

	case opDel:
		if _, exists := s.index[rec.ID]; !exists {
			// A tombstone for an unknown entry drops nothing, so it is not
			// treated as corruption.
			return nil
		}
		s.drop(rec.ID)
	}
	return nil
}

func (s *Local) drop(id model.EntryID) {
	delete(s.index, id)
	for i, entry := range s.entries {
		if entry.ID == id {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return
		}
	}
}

func (s *Local) truncate(offset int64) error {
	if err := s.file.Truncate(offset); err != nil {
		return goerr.Wrap(model.ErrStoreIO, "failed to truncate store log",
			goerr.V("path", s.path), goerr.V("cause", err.Error()))
	}
	if _, err := s.file.Seek(0, io.SeekEnd); err != nil {
		return goerr.Wrap(model.ErrStoreIO, "failed to seek store log", goerr.V("cause", err.Error()))
	}
	return nil
}

// append writes one record followed by a newline and fsyncs, so the mutation
// is durable before the caller answers the request.
func (s *Local) append(rec *record) error {
	line, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	if _, err := s.file.Write(append(line, '\n')); err != nil {
		return goerr.Wrap(model.ErrStoreIO, "failed to append store record",
			goerr.V("path", s.path), goerr.V("cause", err.Error()))
	}
	if err := s.file.Sync(); err != nil {
		return goerr.Wrap(model.ErrStoreIO, "failed to sync store log",
			goerr.V("path", s.path), goerr.V("cause", err.Error()))
	}
	return nil
}

func (s *Local) Add(ctx context.Context, input *AddInput) (*model.Entry, error) {
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

	if !input.Force {
		best, bestID := s.nearest(input.Embedding)
		if bestID != "" && best >= s.threshold {
			return nil, goerr.Wrap(model.ErrDuplicateEntry, "candidate is too similar to a stored entry",
				goerr.V("similarity", best),
				goerr.V("threshold", s.threshold),
				goerr.V("duplicateId", string(bestID)))
		}
	}

	entry, err := model.NewEntry(input.Text, input.Embedding, input.Metadata)
	if err != nil {
		return nil, err
	}

	if err := s.append(&record{Op: opPut, Entry: entry}); err != nil {
		return nil, err
	}

	if s.dimension == 0 {
		s.dimension = len(entry.Embedding)
	}
	s.entries = append(s.entries, entry)
	s.index[entry.ID] = entry

	logging.From(ctx).Debug("entry stored", "id", entry.ID, "dimension", s.dimension)
	return entry, nil
}

// nearest returns the highest cosine similarity between the candidate and the
// stored set, with the matching entry ID.
func (s *Local) nearest(embedding []float32) (float64, model.EntryID) {
	best := -1.0
	var bestID model.EntryID
	for _, entry := range s.entries {
		if score := CosineSimilarity(embedding, entry.Embedding); score > best {
			best = score
			bestID = entry.ID
		}
	}
	return best, bestID
}

func (s *Local) Get(ctx context.Context, id model.EntryID) (*model.Entry, error) {
	entry, ok := s.index[id]
	if !ok {
		return nil, goerr.Wrap(model.ErrEntryNotFound, "no entry for id", goerr.V("id", string(id)))
	}
	return entry, nil
}

func (s *Local) Remove(ctx context.Context, id model.EntryID) error {
	if _, ok := s.index[id]; !ok {
		return goerr.Wrap(model.ErrEntryNotFound, "no entry for id", goerr.V("id", string(id)))
	}

	if err := s.append(&record{Op: opDel, ID: id}); err != nil {
		return err
	}

	s.drop(id)
	logging.From(ctx).Debug("entry removed", "id", id)
	return nil
}

// TODO: compact the log on Close when tombstones outnumber live entries

func (s *Local) List(ctx context.Context, offset, limit int) ([]*model.Entry, error) {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(s.entries) {
		return []*model.Entry{}, nil
	}

	entries := s.entries[offset:]
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	result := make([]*model.Entry, len(entries))
	copy(result, entries)
	return result, nil
}

func (s *Local) Search(ctx context.Context, query []float32, limit int, minScore float64) ([]*Hit, error) {
	if len(query) == 0 {
		return nil, goerr.Wrap(model.ErrEmptyEmbedding, "search query embedding is empty")
	}
	if s.dimension > 0 && len(query) != s.dimension {
		return nil, goerr.Wrap(model.ErrDimensionMismatch, "query does not match store dimension",
			goerr.V("expected", s.dimension), goerr.V("actual", len(query)))
	}

	hits := make([]*Hit, 0, len(s.entries))
	for _, entry := range s.entries {
		score := CosineSimilarity(query, entry.Embedding)
		if score < minScore {
			continue
		}
		hits = append(hits, &Hit{Entry: entry, Score: score})
	}

	// Stable sort keeps insertion order for equal scores: earlier entries
	// rank first.
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *Local) SearchByPattern(ctx context.Context, pattern string) ([]*model.Entry, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, goerr.Wrap(model.ErrInvalidPattern, "failed to compile pattern",
			goerr.V("pattern", pattern), goerr.V("cause", err.Error()))
	}

	matched := make([]*model.Entry, 0)
	for _, entry := range s.entries {
		if re.MatchString(entry.Text) {
			matched = append(matched, entry)
		}
	}
	return matched, nil
}

func (s *Local) Close() error {
	if s.file == nil {
		return nil
	}

	syncErr := s.file.Sync()
	closeErr := s.file.Close()
	s.file = nil

	if syncErr != nil {
		return goerr.Wrap(model.ErrStoreIO, "failed to sync store log on close", goerr.V("cause", syncErr.Error()))
	}
	if closeErr != nil {
		return goerr.Wrap(model.ErrStoreIO, "failed to close store log", goerr.V("cause", closeErr.Error()))
	}
	return nil
}
