// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package errs defines the stable error taxonomy (spec.md §6/§7) shared
// by every package in this module, the way the teacher repo shares a
// single error wrapping convention across ion/blockfmt and compr rather
// than letting each package invent its own. It has no dependencies on
// the rest of the module so any package, including the top-level
// facade, can return errs.Error without an import cycle.
package errs

import "fmt"

// Code is one of the stable error codes from spec.md §6. Its integer
// values match the original C-ABI's error numbers so a language binding
// built on top of this module can reuse them verbatim.
type Code int

const (
	Ok Code = iota
	OutOfMemory
	KeyError
	TypeError
	Invalid
	IOError
	CapacityError
	IndexError
	Cancelled
	UnknownError
	NotImplemented
	SerializationError
	// StringNotLongEnough shares the wire value of SerializationError
	// in the original C-ABI (both are 11); kept as a distinct Go
	// identifier for readability at call sites.
	StringNotLongEnough = SerializationError
)

func (c Code) String() string {
	switch c {
	case Ok:
		return "ok"
	case OutOfMemory:
		return "out of memory"
	case KeyError:
		return "key error"
	case TypeError:
		return "type error"
	case Invalid:
		return "invalid"
	case IOError:
		return "io error"
	case CapacityError:
		return "capacity error"
	case IndexError:
		return "index error"
	case Cancelled:
		return "cancelled"
	case NotImplemented:
		return "not implemented"
	case SerializationError:
		return "serialization error"
	default:
		return "unknown error"
	}
}

// Error is the error type returned by every operation in this module.
// It carries a stable Code alongside the operation name and the
// underlying cause, so callers can match on Code with errors.Is/As
// while still getting a descriptive message for logs.
type Error struct {
	Code Code
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Code, so that
// errors.Is(err, errs.New(errs.Invalid, "", nil)) works without callers
// needing to construct a matching Op/Err.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New builds an *Error. err may be nil when the code alone is
// sufficient to describe the failure.
func New(code Code, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

// Errorf is a convenience wrapper around New(code, op, fmt.Errorf(format, args...)).
func Errorf(code Code, op, format string, args ...any) *Error {
	return New(code, op, fmt.Errorf(format, args...))
}
