// Package ecode defines the error kinds shared by every layer of the
// Infinite Map storage engine.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package ecode

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is a tagged error category. Callers switch on Kind, not on the
// wrapped cause, so that a component can change its internal error without
// breaking the propagation rules in spec §7.
type Kind string

const (
	OutOfBounds           Kind = "out_of_bounds"
	OutOfSpace             Kind = "out_of_space"
	InvariantViolated       Kind = "invariant_violated"
	ChecksumMismatch        Kind = "checksum_mismatch"
	IntegrityUnrepairable   Kind = "integrity_unrepairable"
	Corrupt                 Kind = "corrupt"
	NotFound                Kind = "not_found"
	PathConflict            Kind = "path_conflict"
	IoError                 Kind = "io_error"
	Busy                    Kind = "busy"
)

// Error is the structured result every public operation returns on
// failure: it distinguishes success from each error kind per spec §7 and
// never represents a partial update.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "vat.allocate"
	Msg  string
	err  error // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Op, e.Kind, e.Msg, e.err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.err }

// Is reports whether target is an *Error of the same Kind, so
// errors.Is(err, ecode.New(ecode.OutOfSpace, "", "")) matches any
// OutOfSpace error in err's chain.
func (e *Error) Is(target error) bool {
	if k, ok := target.(*Error); ok {
		return e.Kind == k.Kind
	}
	return false
}

// New constructs a *Error with no wrapped cause.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap constructs a *Error wrapping cause with errors.Wrap so the original
// stack trace survives for logs, while the Kind stays stable for callers.
func Wrap(kind Kind, op, msg string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, err: errors.Wrap(cause, msg)}
}

// KindOf extracts the Kind from err, or "" if err is not (or does not wrap)
// an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
