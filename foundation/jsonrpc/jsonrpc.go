// Package jsonrpc provides support for serving JSON-RPC 2.0 requests over
// request-only and push capable connections.
package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// Version is the protocol version carried by every envelope.
const Version = "2.0"

// SubscriptionMethod is the method name of every pushed notification.
const SubscriptionMethod = "eth_subscription"

// Set of error codes returned in error envelopes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternal       = -32603
	CodeServer         = -32000
)

// null is the JSON encoding of an absent id or result.
var null = json.RawMessage("null")

// =============================================================================

// Request represents a single call received from a client.
type Request struct {
	Version string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response represents the answer to a single request. Exactly one of Result
// and Error is set.
type Response struct {
	Version string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Notification represents a message pushed to a subscriber.
type Notification struct {
	Version string             `json:"jsonrpc"`
	Method  string             `json:"method"`
	Params  SubscriptionResult `json:"params"`
}

// SubscriptionResult carries the subscription id and the pushed value.
type SubscriptionResult struct {
	Subscription string `json:"subscription"`
	Result       any    `json:"result"`
}

// =============================================================================

// Error is the error object of a response envelope.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// NewError constructs an error object with the specified code.
func NewError(code int, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// InvalidParams constructs an error for parameters that can't be used.
func InvalidParams(format string, args ...any) *Error {
	return NewError(CodeInvalidParams, format, args...)
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// ErrorCode returns the JSON-RPC error code.
func (e *Error) ErrorCode() int {
	return e.Code
}

// ErrorData returns the data attached to the error.
func (e *Error) ErrorData() any {
	return e.Data
}

// Set of errors produced by the dispatcher itself.
var (
	ErrParse                    = NewError(CodeParseError, "parse error")
	ErrInvalidRequest           = NewError(CodeInvalidRequest, "invalid request")
	ErrNotificationsUnsupported = NewError(CodeServer, "notifications not supported")
	ErrInternal                 = NewError(CodeInternal, "internal error")
)

// MethodNotFound constructs the error for an unregistered method.
func MethodNotFound(method string) *Error {
	return NewError(CodeMethodNotFound, "the method %s does not exist/is not available", method)
}

// =============================================================================

// codeError is implemented by errors choosing their own error code.
type codeError interface {
	error
	ErrorCode() int
}

// dataError is implemented by errors carrying additional data.
type dataError interface {
	error
	ErrorData() any
}

// toError converts any error into an error object. Errors that don't select
// a code are reported as server errors with their message.
func toError(err error) *Error {
	if rpcErr, ok := err.(*Error); ok {
		return rpcErr
	}

	e := Error{
		Code:    CodeServer,
		Message: err.Error(),
	}

	if ce, ok := err.(codeError); ok {
		e.Code = ce.ErrorCode()
	}

	if de, ok := err.(dataError); ok {
		e.Data = de.ErrorData()
	}

	return &e
}
