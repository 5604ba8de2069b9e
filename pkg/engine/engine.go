// Package engine binds the capability surfaces to the line-delimited RPC
// server: the store engine serves the memory methods, the infer engine serves
// batch embedding as a prompt-style method.
package engine

import (
	"encoding/json"

	"github.com/m-mizutani/engram/pkg/rpc"
	"github.com/m-mizutani/goerr/v2"
)

// decode unmarshals method params into the typed shape the handler expects.
// A nil params value decodes into the zero value so optional-params methods
// work without a body.
func decode[T any](params json.RawMessage, out *T) error {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, out); err != nil {
		return goerr.Wrap(rpc.ErrInvalidParams, "failed to decode params", goerr.V("cause", err.Error()))
	}
	return nil
}
