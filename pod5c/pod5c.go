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

// Package pod5c is the observable contract of the language-binding
// surface spec.md §1 excludes from the hard core and §9 describes: a
// stable, opaque-handle API returning a result code, with the failing
// error's detail retrievable afterward via GetErrorNo/GetErrorString.
// The binding itself (cgo export, language-specific marshaling) is out
// of scope per spec.md §1; this package exists to exercise the
// contract's shape in Go, the way pod5 exercises the rest of the
// module's packages end to end.
//
// The original's TLS-backed g_pod5_error_no/g_pod5_error_string (see
// original_source/c++/pod5_format/c_api.cpp) becomes a package-level
// mutex-protected slot here: a real per-goroutine thread-local doesn't
// exist in Go, and a binding that actually needs one would set it at
// the cgo boundary, not in this package (spec.md §9's "pushed down to
// the language binding only"). Every call that can fail sets the slot
// immediately before returning its code, matching the original's
// "thread-local storage set immediately before returning the integer
// code" for the single-goroutine-per-call pattern a C caller uses.
package pod5c

import (
	"errors"
	"sync"

	"github.com/nanoporetech/pod5"
	"github.com/nanoporetech/pod5/errs"
)

// ErrorNo mirrors the original C-ABI's pod5_error_t values (errs.Code's
// integer values match it directly, per errs.Code's doc comment).
type ErrorNo int

const (
	Ok                 ErrorNo = ErrorNo(errs.Ok)
	OutOfMemory        ErrorNo = ErrorNo(errs.OutOfMemory)
	KeyError           ErrorNo = ErrorNo(errs.KeyError)
	TypeError          ErrorNo = ErrorNo(errs.TypeError)
	Invalid            ErrorNo = ErrorNo(errs.Invalid)
	IOError            ErrorNo = ErrorNo(errs.IOError)
	CapacityError      ErrorNo = ErrorNo(errs.CapacityError)
	IndexError         ErrorNo = ErrorNo(errs.IndexError)
	Cancelled          ErrorNo = ErrorNo(errs.Cancelled)
	UnknownError       ErrorNo = ErrorNo(errs.UnknownError)
	NotImplemented     ErrorNo = ErrorNo(errs.NotImplemented)
	SerializationError ErrorNo = ErrorNo(errs.SerializationError)
)

var lastErr struct {
	mu  sync.Mutex
	no  ErrorNo
	msg string
}

func setError(err error) ErrorNo {
	lastErr.mu.Lock()
	defer lastErr.mu.Unlock()
	if err == nil {
		lastErr.no = Ok
		lastErr.msg = ""
		return Ok
	}
	var e *errs.Error
	if errors.As(err, &e) {
		lastErr.no = ErrorNo(e.Code)
	} else {
		lastErr.no = UnknownError
	}
	lastErr.msg = err.Error()
	return lastErr.no
}

// GetErrorNo returns the error code set by the most recent call made
// through this package, across every handle: Ok if that call succeeded.
func GetErrorNo() ErrorNo {
	lastErr.mu.Lock()
	defer lastErr.mu.Unlock()
	return lastErr.no
}

// GetErrorString returns the message set alongside GetErrorNo, or an
// empty string if the last call succeeded.
func GetErrorString() string {
	lastErr.mu.Lock()
	defer lastErr.mu.Unlock()
	return lastErr.msg
}

// ReaderHandle and WriterHandle are opaque handles over a *pod5.Reader
// / *pod5.Writer, the way Pod5FileReader_t*/Pod5FileWriter_t* are
// opaque pointers in the original C-ABI (spec.md §9's "no owning
// pointer" rule applies one level up: this package owns the handle
// table, callers only ever see an integer).
type ReaderHandle int32
type WriterHandle int32

// InvalidHandle is returned (alongside a non-Ok GetErrorNo) whenever an
// open/create call fails or an operation is given a handle that was
// never opened or has already been released.
const InvalidHandle = 0

var handles struct {
	mu      sync.Mutex
	next    int32
	readers map[ReaderHandle]*pod5.Reader
	writers map[WriterHandle]*pod5.Writer
}

func init() {
	handles.readers = make(map[ReaderHandle]*pod5.Reader)
	handles.writers = make(map[WriterHandle]*pod5.Writer)
}

// OpenFileForReading opens path and returns a handle over the resulting
// *pod5.Reader, or InvalidHandle on failure (inspect GetErrorNo/
// GetErrorString for the cause).
func OpenFileForReading(path string) ReaderHandle {
	r, err := pod5.Open(path)
	if err != nil {
		setError(err)
		return InvalidHandle
	}
	setError(nil)

	handles.mu.Lock()
	defer handles.mu.Unlock()
	handles.next++
	h := ReaderHandle(handles.next)
	handles.readers[h] = r
	return h
}

// reader resolves h to its underlying *pod5.Reader, setting KeyError if
// h is not a currently open handle.
func reader(h ReaderHandle) (*pod5.Reader, bool) {
	handles.mu.Lock()
	defer handles.mu.Unlock()
	r, ok := handles.readers[h]
	if !ok {
		setError(errs.Errorf(errs.KeyError, "pod5c", "unknown reader handle %d", h))
	}
	return r, ok
}

// CloseAndFreeReader releases h. It is a no-op, reporting Ok, if h is
// already closed.
func CloseAndFreeReader(h ReaderHandle) ErrorNo {
	handles.mu.Lock()
	r, ok := handles.readers[h]
	if ok {
		delete(handles.readers, h)
	}
	handles.mu.Unlock()
	if !ok {
		return ErrorNo(setError(nil))
	}
	return ErrorNo(setError(r.Close()))
}

// GetReadBatchCount returns the (migrated) read table's batch count for
// h, matching pod5_get_read_batch_count's shape.
func GetReadBatchCount(h ReaderHandle) (count int, errno ErrorNo) {
	r, ok := reader(h)
	if !ok {
		return 0, GetErrorNo()
	}
	setError(nil)
	return r.NumReadBatches(), Ok
}

// GetFileInfo returns the container footer's identity fields for h.
func GetFileInfo(h ReaderHandle) (fileIdentifier, software, pod5Version string, errno ErrorNo) {
	r, ok := reader(h)
	if !ok {
		return "", "", "", GetErrorNo()
	}
	setError(nil)
	return r.FileIdentifier(), r.Software(), r.Pod5Version(), Ok
}

// CreateFile creates path and returns a handle over the resulting
// *pod5.Writer, or InvalidHandle on failure.
func CreateFile(path, software string) WriterHandle {
	w, err := pod5.Create(path, pod5.WriterOptions{Software: software})
	if err != nil {
		setError(err)
		return InvalidHandle
	}
	setError(nil)

	handles.mu.Lock()
	defer handles.mu.Unlock()
	handles.next++
	h := WriterHandle(handles.next)
	handles.writers[h] = w
	return h
}

func writer(h WriterHandle) (*pod5.Writer, bool) {
	handles.mu.Lock()
	defer handles.mu.Unlock()
	w, ok := handles.writers[h]
	if !ok {
		setError(errs.Errorf(errs.KeyError, "pod5c", "unknown writer handle %d", h))
	}
	return w, ok
}

// AddRead appends one read (id, samples) to the writer behind h,
// returning the stored read id's 16 raw bytes and Ok, or a zeroed array
// and the failing code.
func AddRead(h WriterHandle, samples []int16) (readID [16]byte, errno ErrorNo) {
	w, ok := writer(h)
	if !ok {
		return readID, GetErrorNo()
	}
	id, err := w.AddRead(pod5.ReadInput{Samples: samples})
	if err != nil {
		return readID, ErrorNo(setError(err))
	}
	setError(nil)
	return [16]byte(id), Ok
}

// CloseAndFreeWriter flushes and releases h.
func CloseAndFreeWriter(h WriterHandle) ErrorNo {
	handles.mu.Lock()
	w, ok := handles.writers[h]
	if ok {
		delete(handles.writers, h)
	}
	handles.mu.Unlock()
	if !ok {
		return ErrorNo(setError(nil))
	}
	return ErrorNo(setError(w.Close()))
}
