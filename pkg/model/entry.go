package model

import (
	"time"

	"github.com/google/uuid"
)

type EntryID string

// NewEntryID generates a new unique EntryID
func NewEntryID() EntryID {
	return EntryID(uuid.New().String())
}

// Entry is one stored memory unit: text, its embedding vector and optional
// caller metadata. ID and CreatedAt are assigned on creation and never change.
type Entry struct {
	ID        EntryID           `json:"id"`
	Text      string            `json:"text"`
	Embedding []float32         `json:"embedding"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Validate checks the creation invariants: non-empty text and a non-empty
// embedding vector.
func (x *Entry) Validate() error {
	if x.Text == "" {
		return ErrEmptyText
	}
	if len(x.Embedding) == 0 {
		return ErrEmptyEmbedding
	}
	return nil
}

// NewEntry constructs a validated entry with a fresh ID and timestamp.
func NewEntry(text string, embedding []float32, metadata map[string]string) (*Entry, error) {
	entry := &Entry{
		ID:        NewEntryID(),
		Text:      text,
		Embedding: embedding,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	return entry, nil
}
