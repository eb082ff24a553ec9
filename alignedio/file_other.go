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

//go:build !linux

package alignedio

import (
	"os"

	"github.com/nanoporetech/pod5/errs"
)

// FileSink is the non-Linux fallback: O_DIRECT has no portable
// equivalent, so direct is accepted but ignored, and Preallocate is a
// no-op (the file simply grows as writes land, as any ordinary file
// does).
type FileSink struct {
	f *os.File
}

// OpenFileSink opens path for writing. direct and sync are accepted
// for interface parity with the Linux build but have no effect here.
func OpenFileSink(path string, direct, sync bool) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, errs.New(errs.IOError, "alignedio", err)
	}
	return &FileSink{f: f}, nil
}

func (s *FileSink) WriteAt(p []byte, off int64) (int, error) { return s.f.WriteAt(p, off) }
func (s *FileSink) Truncate(size int64) error                { return s.f.Truncate(size) }
func (s *FileSink) Close() error                              { return s.f.Close() }
