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

// Package container implements the self-describing binary envelope
// (spec.md §3 "File (container)" and §4.4): two magic signatures, a
// randomly-chosen section marker repeated at every structural boundary,
// three embedded record-batch sub-files, and a trailing flatbuffer
// footer locating them. It plays the same role the teacher's
// ion/blockfmt.Trailer does for a single embedded table, generalized to
// a small fixed constellation of three sibling tables.
package container

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/nanoporetech/pod5/errs"
)

const op = "container"

// Magic is the 8-byte signature that opens and closes every container.
var Magic = [8]byte{0x8B, 'P', 'O', 'D', 0x0D, 0x0A, 0x1A, 0x0A}

// FooterMagic marks the start of the footer section.
var FooterMagic = [8]byte{'F', 'O', 'O', 'T', 'E', 'R', 0, 0}

// MarkerSize is the length, in bytes, of a section marker.
const MarkerSize = 16

// Marker is the 16-byte random identifier written identically at every
// section boundary in a single file, so a partially-written or
// corrupted file can be recovered up to the last intact marker.
type Marker [MarkerSize]byte

// NewMarker draws a fresh random marker for a file about to be written.
func NewMarker() (Marker, error) {
	var m Marker
	if _, err := rand.Read(m[:]); err != nil {
		return Marker{}, errs.New(errs.IOError, op, err)
	}
	return m, nil
}

// ContentType enumerates which logical table an embedded file holds.
type ContentType int8

const (
	ContentSignalTable ContentType = iota
	ContentRunInfoTable
	ContentReadsTable
)

func (c ContentType) String() string {
	switch c {
	case ContentSignalTable:
		return "SignalTable"
	case ContentRunInfoTable:
		return "RunInfoTable"
	case ContentReadsTable:
		return "ReadsTable"
	default:
		return "Unknown"
	}
}

// Format enumerates the on-disk format of an embedded file. Only
// FeatherV2 (an Arrow IPC file) is currently produced or accepted.
type Format int8

const FormatFeatherV2 Format = 0

// EmbeddedFile is one entry in the footer: the byte range within the
// container holding one embedded record-batch file.
type EmbeddedFile struct {
	Offset      int64
	Length      int64
	Format      Format
	ContentType ContentType
}

// padTo8 returns the number of zero bytes needed to bring n up to the
// next multiple of 8.
func padTo8(n int64) int64 {
	return (8 - n%8) % 8
}

// writePadding writes enough zero bytes to w to align written to the
// next multiple of 8, returning the number of bytes written.
func writePadding(w io.Writer, written int64) (int64, error) {
	n := padTo8(written)
	if n == 0 {
		return 0, nil
	}
	if _, err := w.Write(make([]byte, n)); err != nil {
		return 0, errs.New(errs.IOError, op, err)
	}
	return n, nil
}

// footerLengthOffset computes the absolute file offset of the trailing
// little-endian footer length field, given the total file size.
func footerLengthOffset(fileSize int64) int64 {
	return fileSize - int64(len(Magic)) - MarkerSize - 8
}

func putFooterLength(b []byte, n int64) {
	binary.LittleEndian.PutUint64(b, uint64(n))
}

func getFooterLength(b []byte) int64 {
	return int64(binary.LittleEndian.Uint64(b))
}

func validateMagic(b []byte) error {
	if len(b) != len(Magic) {
		return errs.Errorf(errs.IOError, op, "invalid magic length %d", len(b))
	}
	for i := range Magic {
		if b[i] != Magic[i] {
			return errs.Errorf(errs.IOError, op, "invalid magic signature")
		}
	}
	return nil
}

func validateMarker(got, want Marker) error {
	if got != want {
		return errs.Errorf(errs.IOError, op, "invalid section marker")
	}
	return nil
}

// String implements fmt.Stringer for debugging/log output.
func (e EmbeddedFile) String() string {
	return fmt.Sprintf("%s@[%d,%d) format=%d", e.ContentType, e.Offset, e.Offset+e.Length, e.Format)
}
