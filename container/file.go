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

package container

import (
	"io"

	"github.com/nanoporetech/pod5/errs"
	"github.com/nanoporetech/pod5/uuid"
)

// Writer assembles the container envelope around three embedded
// sub-files, written in the order the caller invokes WriteSection (the
// spec-mandated order is signal, then run-info, then reads). It owns
// the underlying io.Writer exclusively until Close, matching spec.md
// §3's "Ownership and lifecycle" for a file-writer.
type Writer struct {
	w                                  io.Writer
	marker                             Marker
	offset                             int64
	fileIdentifier, software, version string
	contents                           []EmbeddedFile
	closed                             bool
}

// NewWriter writes the opening MAGIC and section marker and returns a
// Writer ready to receive embedded sub-files. fileIdentifier should be
// a freshly generated uuid.Uuid's String(); software and version feed
// directly into the footer's corresponding fields.
func NewWriter(w io.Writer, fileIdentifier, software, version string) (*Writer, error) {
	m, err := NewMarker()
	if err != nil {
		return nil, err
	}
	cw := &Writer{w: w, marker: m, fileIdentifier: fileIdentifier, software: software, version: version}
	if err := cw.write(Magic[:]); err != nil {
		return nil, err
	}
	if err := cw.write(m[:]); err != nil {
		return nil, err
	}
	return cw, nil
}

func (cw *Writer) write(b []byte) error {
	n, err := cw.w.Write(b)
	cw.offset += int64(n)
	if err != nil {
		return errs.New(errs.IOError, op, err)
	}
	return nil
}

// Offset returns the writer's current absolute position: where the
// next embedded sub-file, if opened now, would begin.
func (cw *Writer) Offset() int64 { return cw.offset }

// Marker returns the section marker this writer generated, so callers
// building a recovery tool can scan for it independently.
func (cw *Writer) Marker() Marker { return cw.marker }

// WriteSection appends the fully-serialized bytes of one embedded
// sub-file (an Arrow IPC file produced by package table) at the
// writer's current offset, pads to the next 8-byte boundary, writes
// the section marker, and records the resulting byte range for the
// footer.
func (cw *Writer) WriteSection(content ContentType, data []byte) error {
	if cw.closed {
		return errs.Errorf(errs.Invalid, op, "WriteSection called after Close")
	}
	start := cw.offset
	if err := cw.write(data); err != nil {
		return err
	}
	pad := padTo8(int64(len(data)))
	if pad > 0 {
		if err := cw.write(make([]byte, pad)); err != nil {
			return err
		}
	}
	if err := cw.write(cw.marker[:]); err != nil {
		return err
	}
	cw.contents = append(cw.contents, EmbeddedFile{
		Offset:      start,
		Length:      int64(len(data)),
		Format:      FormatFeatherV2,
		ContentType: content,
	})
	return nil
}

// Close writes the footer magic, the footer flatbuffer (padded to 8
// bytes) and the trailing length+marker+magic, then releases the writer. It must be called
// after WriteSection has been invoked once for each of
// ContentSignalTable, ContentRunInfoTable and ContentReadsTable, in
// that order.
func (cw *Writer) Close() error {
	if cw.closed {
		return nil
	}
	cw.closed = true

	footerBytes := EncodeFooter(Footer{
		FileIdentifier: cw.fileIdentifier,
		Software:       cw.software,
		Pod5Version:    cw.version,
		Contents:       cw.contents,
	})

	if err := cw.write(FooterMagic[:]); err != nil {
		return err
	}
	if err := cw.write(footerBytes); err != nil {
		return err
	}
	if pad := padTo8(int64(len(footerBytes))); pad > 0 {
		if err := cw.write(make([]byte, pad)); err != nil {
			return err
		}
	}
	var lenBuf [8]byte
	putFooterLength(lenBuf[:], int64(len(footerBytes)))
	if err := cw.write(lenBuf[:]); err != nil {
		return err
	}
	if err := cw.write(cw.marker[:]); err != nil {
		return err
	}
	return cw.write(Magic[:])
}

// Reader parses and verifies a container's envelope and exposes
// length-bounded views onto its three embedded sub-files. Unlike
// Writer, a Reader shares its underlying io.ReaderAt freely: every
// method here is safe for concurrent use, matching spec.md §3's
// "a file reader is multi-reader" rule.
type Reader struct {
	ra     io.ReaderAt
	size   int64
	Footer Footer
	marker Marker
}

// minContainerSize is the smallest plausible container: two magics, an
// opening marker, an (empty) FooterMagic+0-length footer+padding, a
// length field, a closing marker.
const minContainerSize = int64(len(Magic))*2 + MarkerSize*2 + int64(len(FooterMagic)) + 8

// OpenReader verifies both magics, locates and parses the footer, and
// validates that every embedded file's byte range lies within the
// container and that all four section markers (opening, and one after
// each of the three embedded sub-files) agree.
func OpenReader(ra io.ReaderAt, size int64) (*Reader, error) {
	if size < minContainerSize {
		return nil, errs.Errorf(errs.IOError, op, "file too small to be a valid container (%d bytes)", size)
	}

	var head [8]byte
	if _, err := ra.ReadAt(head[:], 0); err != nil {
		return nil, errs.New(errs.IOError, op, err)
	}
	if err := validateMagic(head[:]); err != nil {
		return nil, err
	}
	var tail [8]byte
	if _, err := ra.ReadAt(tail[:], size-8); err != nil {
		return nil, errs.New(errs.IOError, op, err)
	}
	if err := validateMagic(tail[:]); err != nil {
		return nil, err
	}

	var openMarker Marker
	if _, err := ra.ReadAt(openMarker[:], int64(len(Magic))); err != nil {
		return nil, errs.New(errs.IOError, op, err)
	}

	lenOff := footerLengthOffset(size)
	var lenBuf [8]byte
	if _, err := ra.ReadAt(lenBuf[:], lenOff); err != nil {
		return nil, errs.New(errs.IOError, op, err)
	}
	footerLen := getFooterLength(lenBuf[:])
	if footerLen < 0 || footerLen > size {
		return nil, errs.Errorf(errs.IOError, op, "invalid footer length %d", footerLen)
	}

	var closeMarker Marker
	if _, err := ra.ReadAt(closeMarker[:], lenOff+8); err != nil {
		return nil, errs.New(errs.IOError, op, err)
	}
	if err := validateMarker(closeMarker, openMarker); err != nil {
		return nil, err
	}

	footerStart := lenOff - (footerLen + padTo8(footerLen))
	if footerStart < int64(len(FooterMagic)) {
		return nil, errs.Errorf(errs.IOError, op, "invalid footer placement")
	}
	var fm [8]byte
	if _, err := ra.ReadAt(fm[:], footerStart-int64(len(FooterMagic))); err != nil {
		return nil, errs.New(errs.IOError, op, err)
	}
	if fm != FooterMagic {
		return nil, errs.Errorf(errs.IOError, op, "invalid footer magic")
	}

	footerBuf := make([]byte, footerLen)
	if _, err := ra.ReadAt(footerBuf, footerStart); err != nil {
		return nil, errs.New(errs.IOError, op, err)
	}
	footer, err := DecodeFooter(footerBuf)
	if err != nil {
		return nil, err
	}
	if _, ok := uuid.Parse(footer.FileIdentifier); !ok {
		return nil, errs.Errorf(errs.IOError, op, "footer file_identifier %q is not a valid uuid", footer.FileIdentifier)
	}

	seen := make(map[ContentType]bool, len(footer.Contents))
	for _, ef := range footer.Contents {
		if ef.Offset < 0 || ef.Length < 0 || ef.Offset+ef.Length > size {
			return nil, errs.Errorf(errs.IOError, op, "embedded file %s out of bounds", ef)
		}
		if ef.Format != FormatFeatherV2 {
			return nil, errs.Errorf(errs.IOError, op, "embedded file %s has unsupported format", ef)
		}
		if seen[ef.ContentType] {
			return nil, errs.Errorf(errs.IOError, op, "duplicate embedded content type %s", ef.ContentType)
		}
		seen[ef.ContentType] = true

		markerPos := ef.Offset + ef.Length + padTo8(ef.Length)
		var m Marker
		if _, err := ra.ReadAt(m[:], markerPos); err != nil {
			return nil, errs.New(errs.IOError, op, err)
		}
		if err := validateMarker(m, openMarker); err != nil {
			return nil, err
		}
	}
	for _, want := range []ContentType{ContentSignalTable, ContentRunInfoTable, ContentReadsTable} {
		if !seen[want] {
			return nil, errs.Errorf(errs.IOError, op, "missing embedded %s", want)
		}
	}

	return &Reader{ra: ra, size: size, Footer: footer, marker: openMarker}, nil
}

// Open returns a length-bounded, independently-seekable view onto the
// requested embedded sub-file.
func (r *Reader) Open(content ContentType) (*io.SectionReader, EmbeddedFile, error) {
	for _, ef := range r.Footer.Contents {
		if ef.ContentType == content {
			return io.NewSectionReader(r.ra, ef.Offset, ef.Length), ef, nil
		}
	}
	return nil, EmbeddedFile{}, errs.Errorf(errs.IOError, op, "container: no embedded %s", content)
}
