// Package api
// Author: momentics <momentics@gmail.com>
//
// Error taxonomy shared by the chunk transport, parser seam, session
// directory and channel registry.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the library.
var (
	ErrInvalidArgument           = errors.New("invalid argument")
	ErrResourceExhausted         = errors.New("resource exhausted")
	ErrParse                     = errors.New("malformed wire input")
	ErrSessionMismatch           = errors.New("session identity is stale")
	ErrChannelNotRegistered      = errors.New("channel not registered")
	ErrUnsupportedRepresentation = errors.New("no acceptable representation")
	ErrStreamReleased            = errors.New("data stream already released")
	ErrDoubleFree                = errors.New("chunk released twice")
	ErrNotFound                  = errors.New("resource not found")
	ErrAlreadyExists             = errors.New("resource already exists")
	ErrClosed                    = errors.New("closed")
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInvalidArgument
	ErrCodeResourceExhausted
	ErrCodeParse
	ErrCodeSessionMismatch
	ErrCodeChannelNotRegistered
	ErrCodeUnsupportedRepresentation
	ErrCodeStreamReleased
	ErrCodeNotFound
	ErrCodeAlreadyExists
	ErrCodeInternal
)

var codeSentinels = map[ErrorCode]error{
	ErrCodeInvalidArgument:           ErrInvalidArgument,
	ErrCodeResourceExhausted:         ErrResourceExhausted,
	ErrCodeParse:                     ErrParse,
	ErrCodeSessionMismatch:           ErrSessionMismatch,
	ErrCodeChannelNotRegistered:      ErrChannelNotRegistered,
	ErrCodeUnsupportedRepresentation: ErrUnsupportedRepresentation,
	ErrCodeStreamReleased:            ErrStreamReleased,
	ErrCodeNotFound:                  ErrNotFound,
	ErrCodeAlreadyExists:             ErrAlreadyExists,
}

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (context: %+v)", e.Message, e.Context)
}

// Unwrap exposes the sentinel matching Code so errors.Is works on structured errors.
func (e *Error) Unwrap() error {
	return codeSentinels[e.Code]
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// ParseError carries the nonzero status code returned by the wire parser.
type ParseError struct {
	Code int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error: code %d", e.Code)
}

// Is matches ErrParse.
func (e *ParseError) Is(target error) bool { return target == ErrParse }

// ParseErrorCode extracts the parser status code from err, or 0.
func ParseErrorCode(err error) int {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return 0
}

// Exhausted builds a ResourceExhausted error naming what ran out.
func Exhausted(what string) error {
	return NewError(ErrCodeResourceExhausted, what+" exhausted").WithContext("resource", what)
}
