package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// Handler is the typed body of an operation. call.Session has already been narrowed by
// whatever middlewares the procedure carries.
type Handler[In, Out any] func(ctx context.Context, call Call, input In) (Out, error)

// Operation binds a handler to a procedure under a path.
type Operation[In, Out any] struct {
	path      string
	kind      Kind
	procedure Procedure
	handler   Handler[In, Out]
}

// Query builds a read-only operation.
func Query[In, Out any](procedure Procedure, path string, handler Handler[In, Out]) *Operation[In, Out] {
	return &Operation[In, Out]{path: path, kind: KindQuery, procedure: procedure, handler: handler}
}

// Mutation builds a state-changing operation.
func Mutation[In, Out any](procedure Procedure, path string, handler Handler[In, Out]) *Operation[In, Out] {
	return &Operation[In, Out]{path: path, kind: KindMutation, procedure: procedure, handler: handler}
}

// Path returns the dotted operation path, e.g. "post.list".
func (o *Operation[In, Out]) Path() string {
	return o.path
}

// Kind reports whether the operation is a query or a mutation.
func (o *Operation[In, Out]) Kind() Kind {
	return o.kind
}

// Call runs the operation with an already-typed input.
func (o *Operation[In, Out]) Call(ctx context.Context, session *Session, input In) (Out, error) {
	return o.run(ctx, session, func() (In, error) {
		return input, nil
	})
}

// Invoke decodes a JSON input and runs the operation. Decoding happens inside the chain so
// that an anonymous caller is rejected before its payload is inspected.
func (o *Operation[In, Out]) Invoke(ctx context.Context, session *Session, rawInput json.RawMessage) (any, error) {
	return o.run(ctx, session, func() (In, error) {
		var input In
		trimmed := bytes.TrimSpace(rawInput)
		if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
			return input, nil
		}
		if err := json.Unmarshal(trimmed, &input); err != nil {
			return input, Validation(map[string][]string{"input": {"malformed JSON input"}})
		}
		return input, nil
	})
}

func (o *Operation[In, Out]) run(ctx context.Context, session *Session, decode func() (In, error)) (Out, error) {
	var zero Out
	call := Call{Path: o.path, Kind: o.kind, Session: session}
	result, err := o.procedure.Run(ctx, call, func(ctx context.Context, call Call) (any, error) {
		input, err := decode()
		if err != nil {
			return nil, err
		}
		if validationErr := ValidateInput(input); validationErr != nil {
			return nil, validationErr
		}
		output, err := o.handler(ctx, call, input)
		if err != nil {
			return nil, err
		}
		return output, nil
	})
	if err != nil {
		return zero, err
	}
	output, ok := result.(Out)
	if !ok {
		return zero, Internal(fmt.Errorf("rpc: %s produced %T", o.path, result))
	}
	return output, nil
}
