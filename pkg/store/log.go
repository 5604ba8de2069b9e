package store

import (
	"encoding/json"
	"fmt"
	"hash/crc32"

	"github.com/m-mizutani/engram/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// The backing file is a JSON-lines append log. Every record carries a CRC32C
// checksum over its own serialized form (with the sum field empty), so each
// line is independently verifiable after a crash.

type operation string

const (
	opPut operation = "put"
	opDel operation = "del"
)

type record struct {
	Op    operation     `json:"op"`
	Entry *model.Entry  `json:"entry,omitempty"`
	ID    model.EntryID `json:"id,omitempty"`
	Sum   string        `json:"sum,omitempty"`
}

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

func checksum(data []byte) string {
	return fmt.Sprintf("%08x", crc32.Checksum(data, castagnoli))
}

// encodeRecord serializes a record with its checksum filled in. The returned
// line has no trailing newline.
func encodeRecord(rec *record) ([]byte, error) {
	rec.Sum = ""
	base, err := json.Marshal(rec)
	if err != nil {
		return nil, goerr.Wrap(model.ErrSerialization, "failed to encode store record", goerr.V("cause", err.Error()))
	}

	rec.Sum = checksum(base)
	line, err := json.Marshal(rec)
	if err != nil {
		return nil, goerr.Wrap(model.ErrSerialization, "failed to encode store record", goerr.V("cause", err.Error()))
	}
	return line, nil
}

// decodeRecord parses one log line and verifies its checksum. Any failure is
// reported as corruption; the caller decides whether the position allows
// recovery.
func decodeRecord(line []byte) (*record, error) {
	var rec record
	if err := json.Unmarshal(line, &rec); err != nil {
		return nil, goerr.Wrap(model.ErrCorrupted, "store record is not valid JSON", goerr.V("cause", err.Error()))
	}

	sum := rec.Sum
	rec.Sum = ""
	base, err := json.Marshal(&rec)
	if err != nil {
		return nil, goerr.Wrap(model.ErrCorrupted, "store record cannot be re-serialized", goerr.V("cause", err.Error()))
	}
	if checksum(base) != sum {
		return nil, goerr.Wrap(model.ErrCorrupted, "store record checksum mismatch",
			goerr.V("expected", sum), goerr.V("actual", checksum(base)))
	}

	switch rec.Op {
	case opPut:
		if rec.Entry == nil {
			return nil, goerr.Wrap(model.ErrCorrupted, "put record has no entry")
		}
		if err := rec.Entry.Validate(); err != nil {
			return nil, goerr.Wrap(model.ErrCorrupted, "put record holds an invalid entry", goerr.V("id", string(rec.Entry.ID)))
		}
	case opDel:
		if rec.ID == "" {
			return nil, goerr.Wrap(model.ErrCorrupted, "del record has no entry id")
		}
	default:
		return nil, goerr.Wrap(model.ErrCorrupted, "unknown record operation", goerr.V("op", string(rec.Op)))
	}

	rec.Sum = sum
	return &rec, nil
}
