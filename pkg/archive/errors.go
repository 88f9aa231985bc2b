// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrConsumed is returned when a builder is opened after it produced a session.
	ErrConsumed = errors.New("builder already consumed")
	// ErrClosed is returned by operations on a session that has been closed.
	ErrClosed = errors.New("archive session closed")
	// ErrStaleEntry is the panic value (via errors.Is) raised when an entry is
	// used after the iterator has moved past it.
	ErrStaleEntry = errors.New("entry can only be used while it is the current iterator item")
)

// Error is a failure reported by the decoding engine.
type Error struct {
	// Code is the engine errno (an OS error number where one applies).
	Code int
	// Message is the engine's diagnostic text.
	Message string
	// cause is set when the failure originated in a caller-supplied source.
	cause error
}

// NewError constructs an engine error.
func NewError(code int, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// WithCause returns a copy of e that unwraps to cause.
func (e *Error) WithCause(cause error) *Error {
	cp := *e
	cp.cause = cause
	return &cp
}

func (e *Error) Error() string {
	if e.Code == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (errno %d)", e.Message, e.Code)
}

// Unwrap returns the source error behind an engine error, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// SourceError records an I/O failure from a caller-supplied byte source.
type SourceError struct {
	Errno int
	Err   error
}

func (e *SourceError) Error() string {
	return "reading archive source: " + e.Err.Error()
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// StaleEntryError describes a use of an entry that is no longer current.
type StaleEntryError struct {
	Index   int
	Current int
}

func (e *StaleEntryError) Error() string {
	return fmt.Sprintf("%s: entry %d used while entry %d is current", ErrStaleEntry, e.Index, e.Current)
}

// Is matches ErrStaleEntry.
func (e *StaleEntryError) Is(target error) bool {
	return target == ErrStaleEntry
}
