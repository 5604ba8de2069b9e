package model

import (
	"errors"

	"github.com/m-mizutani/goerr/v2"
)

// Store failure kinds. Each sentinel maps 1:1 to a wire code via ErrorCode,
// which is the contract the host depends on for programmatic error handling.
var (
	ErrNotLoaded         = goerr.New("memory store is not initialized")
	ErrEmptyText         = goerr.New("entry text is empty")
	ErrEmptyEmbedding    = goerr.New("entry embedding is empty")
	ErrEntryNotFound     = goerr.New("entry not found")
	ErrDuplicateEntry    = goerr.New("similar entry already stored")
	ErrInvalidPattern    = goerr.New("invalid search pattern")
	ErrStoreIO           = goerr.New("store I/O failure")
	ErrSerialization     = goerr.New("failed to serialize entry")
	ErrCorrupted         = goerr.New("store data is corrupted")
	ErrDimensionMismatch = goerr.New("embedding dimension mismatch")

	// ErrModelNotLoaded is an embedder capability failure, not a store failure.
	// It must surface before any store mutation is attempted.
	ErrModelNotLoaded = goerr.New("embedding model is not loaded")
)

// Wire codes for store errors.
const (
	CodeNotLoaded         = "STORE_NOT_LOADED"
	CodeEmptyText         = "STORE_EMPTY_TEXT"
	CodeEmptyEmbedding    = "STORE_EMPTY_EMBEDDING"
	CodeEntryNotFound     = "ENTRY_NOT_FOUND"
	CodeDuplicate         = "STORE_DUPLICATE"
	CodeInvalidRegex      = "STORE_INVALID_REGEX"
	CodeStoreIO           = "STORE_IO"
	CodeSerialization     = "STORE_SERIALIZATION"
	CodeCorrupted         = "STORE_CORRUPT"
	CodeDimensionMismatch = "STORE_DIMENSION_MISMATCH"
	CodeModelNotLoaded    = "MODEL_NOT_LOADED"
)

// ErrorCode returns the stable wire code for a store error. The second return
// value is false for errors outside the taxonomy.
func ErrorCode(err error) (string, bool) {
	switch {
	case errors.Is(err, ErrNotLoaded):
		return CodeNotLoaded, true
	case errors.Is(err, ErrEmptyText):
		return CodeEmptyText, true
	case errors.Is(err, ErrEmptyEmbedding):
		return CodeEmptyEmbedding, true
	case errors.Is(err, ErrEntryNotFound):
		return CodeEntryNotFound, true
	case errors.Is(err, ErrDuplicateEntry):
		return CodeDuplicate, true
	case errors.Is(err, ErrInvalidPattern):
		return CodeInvalidRegex, true
	case errors.Is(err, ErrCorrupted):
		return CodeCorrupted, true
	case errors.Is(err, ErrSerialization):
		return CodeSerialization, true
	case errors.Is(err, ErrDimensionMismatch):
		return CodeDimensionMismatch, true
	case errors.Is(err, ErrStoreIO):
		return CodeStoreIO, true
	case errors.Is(err, ErrModelNotLoaded):
		return CodeModelNotLoaded, true
	}
	return "", false
}
