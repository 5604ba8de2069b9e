package rpc

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// Transport frames a byte stream into request/response units: one JSON object
// per line in, one JSON object per line out, flushed after every write. It
// knows nothing about method semantics.
type Transport struct {
	reader *bufio.Reader
	writer *bufio.Writer
	eof    bool
}

func NewTransport(r io.Reader, w io.Writer) *Transport {
	return &Transport{
		reader: bufio.NewReader(r),
		writer: bufio.NewWriter(w),
	}
}

// ReadRequest reads the next line and parses it as a request. A line that is
// not a well-formed request yields a Malformed descriptor instead of an error:
// only stream-level failures (including io.EOF on a cleanly closed input) are
// returned as err.
func (t *Transport) ReadRequest() (*Request, *Malformed, error) {
	for {
		if t.eof {
			return nil, nil, io.EOF
		}

		line, err := t.reader.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				return nil, nil, goerr.Wrap(err, "failed to read request line")
			}
			// A final line without a trailing newline is still a request.
			t.eof = true
			if strings.TrimSpace(line) == "" {
				return nil, nil, io.EOF
			}
		}

		if strings.TrimSpace(line) == "" {
			continue
		}

		return parseLine([]byte(line))
	}
}

func parseLine(line []byte) (*Request, *Malformed, error) {
	if !json.Valid(line) {
		return nil, &Malformed{
			Err: &ErrorObject{Code: CodeParseError, Message: "invalid JSON in request line"},
		}, nil
	}

	// The line is valid JSON; shape violations are invalid-request errors and
	// carry the ID when it can be recovered.
	var raw struct {
		ID     *uint64         `json:"id"`
		Method *string         `json:"method"`
		Params json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, &Malformed{
			Err: &ErrorObject{Code: CodeInvalidRequest, Message: "request is not a valid object: " + err.Error()},
		}, nil
	}

	if raw.ID == nil || raw.Method == nil || *raw.Method == "" {
		return nil, &Malformed{
			ID:  raw.ID,
			Err: &ErrorObject{Code: CodeInvalidRequest, Message: "request must have numeric id and method"},
		}, nil
	}

	return &Request{ID: *raw.ID, Method: *raw.Method, Params: raw.Params}, nil, nil
}

// WriteResponse emits exactly one JSON object followed by a newline and
// flushes, so the caller observes the response without buffering delay.
func (t *Transport) WriteResponse(resp *Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal response")
	}

	if _, err := t.writer.Write(data); err != nil {
		return goerr.Wrap(err, "failed to write response")
	}
	if err := t.writer.WriteByte('\n'); err != nil {
		return goerr.Wrap(err, "failed to write response delimiter")
	}
	if err := t.writer.Flush(); err != nil {
		return goerr.Wrap(err, "failed to flush response")
	}
	return nil
}
