package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Call represents a single request being served.
type Call struct {
	Conn   *Conn
	Method string
	Params json.RawMessage
}

// Handler serves a single method.
type Handler func(ctx context.Context, call Call) (any, error)

// Middleware is a function designed to run some code before and/or after
// another Handler.
type Middleware func(Handler) Handler

// Dispatcher routes requests to the registered handlers. Subscription
// methods are kept apart and only served over push connections.
type Dispatcher struct {
	mu            sync.RWMutex
	methods       map[string]Handler
	subscriptions map[string]Handler
	mw            []Middleware
}

// NewDispatcher constructs a dispatcher with the middleware applied to every
// method registered afterwards.
func NewDispatcher(mw ...Middleware) *Dispatcher {
	return &Dispatcher{
		methods:       make(map[string]Handler),
		subscriptions: make(map[string]Handler),
		mw:            mw,
	}
}

// Register adds a request/response method.
func (d *Dispatcher) Register(method string, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.methods[method] = d.wrap(handler)
}

// RegisterSubscription adds a method that requires a push connection.
func (d *Dispatcher) RegisterSubscription(method string, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.subscriptions[method] = d.wrap(handler)
}

// Methods returns the number of registered methods of both kinds.
func (d *Dispatcher) Methods() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return len(d.methods) + len(d.subscriptions)
}

// Handle serves the payload received over the connection. The payload is a
// single request or a batch. The encoded response is returned.
func (d *Dispatcher) Handle(ctx context.Context, conn *Conn, payload []byte) []byte {
	payload = bytes.TrimSpace(payload)

	if len(payload) > 0 && payload[0] == '[' {
		var batch []json.RawMessage
		if err := json.Unmarshal(payload, &batch); err != nil {
			return encode(errorResponse(nil, ErrParse))
		}

		if len(batch) == 0 {
			return encode(errorResponse(nil, ErrInvalidRequest))
		}

		resps := make([]Response, len(batch))
		for i, raw := range batch {
			resps[i] = d.serve(ctx, conn, raw)
		}

		return encode(resps)
	}

	if !json.Valid(payload) {
		return encode(errorResponse(nil, ErrParse))
	}

	return encode(d.serve(ctx, conn, payload))
}

// Call serves a single decoded request.
func (d *Dispatcher) Call(ctx context.Context, conn *Conn, req Request) Response {
	d.mu.RLock()
	handler, isMethod := d.methods[req.Method]
	subscribe, isSubscription := d.subscriptions[req.Method]
	d.mu.RUnlock()

	switch {
	case isMethod:
	case isSubscription:
		if conn == nil || conn.Capability != Push {
			return errorResponse(req.ID, ErrNotificationsUnsupported)
		}
		handler = subscribe
	default:
		return errorResponse(req.ID, MethodNotFound(req.Method))
	}

	call := Call{
		Conn:   conn,
		Method: req.Method,
		Params: req.Params,
	}

	result, err := handler(ctx, call)
	if err != nil {
		return errorResponse(req.ID, toError(err))
	}

	data, err := json.Marshal(result)
	if err != nil {
		return errorResponse(req.ID, NewError(CodeInternal, "encoding result: %s", err))
	}

	return Response{
		Version: Version,
		ID:      id(req.ID),
		Result:  data,
	}
}

// =============================================================================

// serve decodes and serves one element of a payload.
func (d *Dispatcher) serve(ctx context.Context, conn *Conn, raw json.RawMessage) Response {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResponse(nil, ErrInvalidRequest)
	}

	if req.Method == "" {
		return errorResponse(req.ID, ErrInvalidRequest)
	}

	return d.Call(ctx, conn, req)
}

// wrap applies the dispatcher middleware and recovers panics raised by the
// handler.
func (d *Dispatcher) wrap(handler Handler) Handler {
	h := func(ctx context.Context, call Call) (result any, err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = &Error{
					Code:    CodeInternal,
					Message: ErrInternal.Message,
					Data:    fmt.Sprint(rec),
				}
			}
		}()

		return handler(ctx, call)
	}

	for i := len(d.mw) - 1; i >= 0; i-- {
		if d.mw[i] != nil {
			h = d.mw[i](h)
		}
	}

	return h
}

func errorResponse(reqID json.RawMessage, err *Error) Response {
	return Response{
		Version: Version,
		ID:      id(reqID),
		Error:   err,
	}
}

func id(reqID json.RawMessage) json.RawMessage {
	if len(reqID) == 0 {
		return null
	}
	return reqID
}

func encode(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		data, _ = json.Marshal(errorResponse(nil, ErrInternal))
	}
	return data
}
