package rpc

import (
	"encoding/json"
)

// Numeric protocol error codes. The -32000 range carries application errors
// with a stable string code in the error data.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeStoreError     = -32000
	CodeModelNotFound  = -32001
)

// Request is one protocol request: a caller-supplied numeric ID echoed back
// unmodified, a method name and raw params to be decoded by the handler.
type Request struct {
	ID     uint64          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is one protocol response. Exactly one of Result or Error is set.
// ID is a pointer so that responses to unparseable requests serialize as null.
type Response struct {
	ID     *uint64      `json:"id"`
	Result any          `json:"result,omitempty"`
	Error  *ErrorObject `json:"error,omitempty"`
}

// ErrorObject is the structured error payload: a numeric protocol code, a
// human-readable message and machine-readable details (for store errors, the
// stable string code plus contextual values such as the measured similarity).
type ErrorObject struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// Malformed describes an input line that could not be turned into a Request.
// ID holds the request ID when it could be recovered from the line.
type Malformed struct {
	ID  *uint64
	Err *ErrorObject
}

func successResponse(id uint64, result any) *Response {
	return &Response{ID: &id, Result: result}
}

func errorResponse(id *uint64, obj *ErrorObject) *Response {
	return &Response{ID: id, Error: obj}
}
