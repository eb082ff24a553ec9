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

//go:build linux

package alignedio

import (
	"os"
	"syscall"

	"github.com/nanoporetech/pod5/errs"
)

// FileSink wraps an *os.File as a Sink/Preallocator, grounded directly
// on the teacher's tenant/dcache/file_linux.go resize helper (Truncate
// then syscall.Fallocate) — the same "grow the file, then reserve the
// space behind it" pattern, reused here per-chunk instead of once at
// open.
type FileSink struct {
	f *os.File
}

// OpenFileSink opens path for writing, optionally with O_DIRECT and
// O_SYNC as spec.md §4.9 allows ("optionally O_DIRECT", "optional
// O_DIRECT/O_SYNC writer").
func OpenFileSink(path string, direct, sync bool) (*FileSink, error) {
	flags := os.O_RDWR | os.O_CREATE | os.O_TRUNC
	if direct {
		flags |= syscall.O_DIRECT
	}
	if sync {
		flags |= syscall.O_SYNC
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, errs.New(errs.IOError, "alignedio", err)
	}
	return &FileSink{f: f}, nil
}

func (s *FileSink) WriteAt(p []byte, off int64) (int, error) { return s.f.WriteAt(p, off) }

func (s *FileSink) Truncate(size int64) error { return s.f.Truncate(size) }

// Preallocate reserves size bytes for the file, matching spec.md
// §4.9's "Preallocation reserves space in fallocate_chunk steps". It
// uses fallocate mode 0, so a file shorter than size also grows to
// size; Stream.Close's Truncate trims it back to the written length.
func (s *FileSink) Preallocate(size int64) error {
	return syscall.Fallocate(int(s.f.Fd()), 0, 0, size)
}

// Close releases the underlying file descriptor. Callers should call
// Stream.Close first so the final truncate lands before this runs.
func (s *FileSink) Close() error { return s.f.Close() }
