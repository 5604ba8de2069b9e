package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/m-mizutani/engram/pkg/model"
	"github.com/m-mizutani/engram/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// ErrInvalidParams marks a handler failure caused by params that do not
// decode into the shape the method expects.
var ErrInvalidParams = goerr.New("invalid parameters")

// Handler executes one method. Params are the raw JSON value from the request
// (nil when absent).
type Handler func(ctx context.Context, params json.RawMessage) (any, error)

// Server binds method names to handlers and runs the request/response cycle:
// read one request, execute, write one response, in strict arrival order.
// Handler errors become error responses; only a broken transport is fatal.
type Server struct {
	transport *Transport
	handlers  map[string]Handler
}

func NewServer(r io.Reader, w io.Writer) *Server {
	return &Server{
		transport: NewTransport(r, w),
		handlers:  make(map[string]Handler),
	}
}

// Register binds a method name to a handler. Later registrations win.
func (s *Server) Register(method string, handler Handler) {
	s.handlers[method] = handler
}

// Serve runs the loop until the input stream closes (returns nil) or the
// transport itself fails (returns the error).
func (s *Server) Serve(ctx context.Context) error {
	logger := logging.From(ctx)

	for {
		req, malformed, err := s.transport.ReadRequest()
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Debug("input stream closed, shutting down")
				return nil
			}
			return goerr.Wrap(err, "transport read failed")
		}

		if malformed != nil {
			logger.Warn("malformed request line", "code", malformed.Err.Code, "message", malformed.Err.Message)
			if err := s.transport.WriteResponse(errorResponse(malformed.ID, malformed.Err)); err != nil {
				return goerr.Wrap(err, "transport write failed")
			}
			continue
		}

		resp := s.execute(ctx, req)
		if err := s.transport.WriteResponse(resp); err != nil {
			return goerr.Wrap(err, "transport write failed")
		}
	}
}

func (s *Server) execute(ctx context.Context, req *Request) *Response {
	handler, ok := s.handlers[req.Method]
	if !ok {
		return errorResponse(&req.ID, &ErrorObject{
			Code:    CodeMethodNotFound,
			Message: "method not found: " + req.Method,
			Data:    map[string]any{"method": req.Method},
		})
	}

	result, err := handler(ctx, req.Params)
	if err != nil {
		logging.From(ctx).Debug("request failed", "method", req.Method, "error", err)
		return errorResponse(&req.ID, toErrorObject(err))
	}

	return successResponse(req.ID, result)
}

// toErrorObject maps a handler error into the wire error payload. Store
// errors keep their stable string code and contextual values (similarity,
// pattern, entry ID) in the data field.
func toErrorObject(err error) *ErrorObject {
	if errors.Is(err, ErrInvalidParams) {
		return &ErrorObject{Code: CodeInvalidParams, Message: err.Error()}
	}

	if code, ok := model.ErrorCode(err); ok {
		numeric := CodeStoreError
		if code == model.CodeModelNotLoaded {
			numeric = CodeModelNotFound
		}

		data := map[string]any{"code": code}
		for k, v := range goerr.Values(err) {
			data[k] = v
		}

		return &ErrorObject{Code: numeric, Message: err.Error(), Data: data}
	}

	return &ErrorObject{Code: CodeInternalError, Message: err.Error()}
}
