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

package pod5

import (
	"os"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/nanoporetech/pod5/container"
	"github.com/nanoporetech/pod5/errs"
	"github.com/nanoporetech/pod5/loader"
	"github.com/nanoporetech/pod5/migration"
	"github.com/nanoporetech/pod5/readindex"
	"github.com/nanoporetech/pod5/schema"
	"github.com/nanoporetech/pod5/table"
	"github.com/nanoporetech/pod5/threadpool"
	"github.com/nanoporetech/pod5/uuid"
)

// Reader is an opened pod5 file: the container envelope plus its three
// embedded tables, migrated to the current read-table version on open
// if the file predates it (spec.md §4.6, scenario S5). It holds the
// file handle and the tables' shared memory pool for its whole
// lifetime (spec.md §3's "a file reader ... holds the memory pool and
// sub-file handles"), and — like container.Reader and table.Reader
// underneath it — is safe for concurrent use by multiple goroutines
// once Open returns.
type Reader struct {
	f  *os.File
	cr *container.Reader

	sig     *table.Reader
	reads   *table.Reader
	runInfo *table.Reader

	readsVersion int
	alloc        memory.Allocator

	// migratedFile/migrated are set when Open had to run the read
	// table forward through migration.RunStreaming; Close tears both
	// down before closing the original file handle.
	migratedFile *os.File
	migrated     *migration.Dir

	idx *readindex.Index
}

// Open opens the pod5 file at path for reading.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.New(errs.IOError, op, err)
	}
	r, err := newReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func newReader(f *os.File) (*Reader, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, errs.New(errs.IOError, op, err)
	}
	cr, err := container.OpenReader(f, fi.Size())
	if err != nil {
		return nil, err
	}

	alloc := memory.NewGoAllocator()

	sigSec, _, err := cr.Open(container.ContentSignalTable)
	if err != nil {
		return nil, err
	}
	sig, err := table.OpenReader(sigSec, alloc)
	if err != nil {
		return nil, err
	}
	runInfoSec, _, err := cr.Open(container.ContentRunInfoTable)
	if err != nil {
		return nil, err
	}
	runInfo, err := table.OpenReader(runInfoSec, alloc)
	if err != nil {
		return nil, err
	}
	readsSec, _, err := cr.Open(container.ContentReadsTable)
	if err != nil {
		return nil, err
	}
	reads, err := table.OpenReader(readsSec, alloc)
	if err != nil {
		return nil, err
	}

	version, err := schema.ReadTableVersionForPod5Version(reads.Pod5Version())
	if err != nil {
		return nil, err
	}

	r := &Reader{
		f:            f,
		cr:           cr,
		sig:          sig,
		reads:        reads,
		runInfo:      runInfo,
		readsVersion: version,
		alloc:        alloc,
	}

	if version < schema.ReadTable.Current {
		if err := r.migrateReadTable(); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// migrateReadTable runs the read table forward to the current logical
// version by streaming it through a temporary file (migration.
// RunStreaming, backed by a migration.TempDirRegistry so the temporary
// directory is cleaned up by Close rather than left on disk), then
// reopens the migrated table in place of the one OpenReader parsed from
// the container. This is the code path scenario S5 exercises: a v0
// file's reads table is reported at schema.ReadTable.Current (v4)
// after Open returns.
func (r *Reader) migrateReadTable() error {
	reg := migration.New()
	dir, path, err := migration.RunStreaming(r.reads, r.sig, r.readsVersion, reg, r.reads.FileIdentifier(), r.reads.Software(), 0, r.alloc)
	if err != nil {
		return err
	}
	mf, err := os.Open(path)
	if err != nil {
		dir.Close()
		return errs.New(errs.IOError, op, err)
	}
	migrated, err := table.OpenReader(mf, r.alloc)
	if err != nil {
		mf.Close()
		dir.Close()
		return err
	}
	r.reads = migrated
	r.readsVersion = schema.ReadTable.Current
	r.migratedFile = mf
	r.migrated = dir
	return nil
}

// FileIdentifier, Software and Pod5Version return the container
// footer's recorded identity (spec.md §3/§6).
func (r *Reader) FileIdentifier() string { return r.cr.Footer.FileIdentifier }
func (r *Reader) Software() string       { return r.cr.Footer.Software }
func (r *Reader) Pod5Version() string    { return r.cr.Footer.Pod5Version }

// ReadTableVersion returns the logical version the read table is
// currently being served at — always schema.ReadTable.Current, since
// Open migrates older files before returning.
func (r *Reader) ReadTableVersion() int { return r.readsVersion }

// NumReadBatches returns the number of record batches in the (migrated)
// read table.
func (r *Reader) NumReadBatches() int { return r.reads.NumRecords() }

// ReadRecord returns the i'th record batch of the (migrated) read
// table, at schema.ReadTableV4's physical shape.
func (r *Reader) ReadRecord(i int) (arrow.Record, error) { return r.reads.Record(i) }

// Rows decodes every row of the (migrated) read table into
// migration.Row values, batch by batch — the shape package loader and
// package readindex both consume.
func (r *Reader) Rows() ([][]migration.Row, error) {
	batches := make([][]migration.Row, r.reads.NumRecords())
	for b := 0; b < r.reads.NumRecords(); b++ {
		rec, err := r.reads.Record(b)
		if err != nil {
			return nil, err
		}
		rows := make([]migration.Row, rec.NumRows())
		for row := 0; row < int(rec.NumRows()); row++ {
			rw, err := migration.DecodeRow(r.readsVersion, rec, row)
			if err != nil {
				rec.Release()
				return nil, err
			}
			rows[row] = rw
		}
		rec.Release()
		batches[b] = rows
	}
	return batches, nil
}

// RunInfoRows decodes every row of the run_info table.
func (r *Reader) RunInfoRows() ([]RunInfo, error) {
	var out []RunInfo
	for i := 0; i < r.runInfo.NumRecords(); i++ {
		rec, err := r.runInfo.Record(i)
		if err != nil {
			return nil, err
		}
		for row := 0; row < int(rec.NumRows()); row++ {
			ri, err := decodeRunInfo(rec, row)
			if err != nil {
				rec.Release()
				return nil, err
			}
			out = append(out, ri)
		}
		rec.Release()
	}
	return out, nil
}

// ensureIndex builds the read-id index on first use and caches it for
// the Reader's lifetime (spec.md §4.7: "build ... once and cache").
func (r *Reader) ensureIndex() error {
	if r.idx != nil {
		return nil
	}
	idx, err := readindex.Build(r.reads)
	if err != nil {
		return err
	}
	r.idx = idx
	return nil
}

// SearchReadIDs resolves ids against the read table's cached index
// (spec.md §4.7's search_for_read_ids).
func (r *Reader) SearchReadIDs(ids []uuid.Uuid) (readindex.Result, error) {
	if err := r.ensureIndex(); err != nil {
		return readindex.Result{}, err
	}
	return r.idx.Search(ids), nil
}

// NewSignalLoader starts an asynchronous signal loader (package loader)
// over every batch of the (migrated) read table's rows, decoding
// against the signal table's record batches. pool may be nil to let the
// loader own and manage its own worker pool.
func (r *Reader) NewSignalLoader(pool *threadpool.Pool, mode loader.DecodeMode, workerCount, maxPendingBatches int) (*loader.Loader, error) {
	batches, err := r.Rows()
	if err != nil {
		return nil, err
	}
	sigRecs := make([]arrow.Record, r.sig.NumRecords())
	for i := range sigRecs {
		rec, err := r.sig.Record(i)
		if err != nil {
			return nil, err
		}
		sigRecs[i] = rec
	}
	return loader.New(pool, sigRecs, batches, nil, mode, workerCount, maxPendingBatches), nil
}

// Close releases the reader's file handle and, if Open migrated the
// read table onto a temporary file, the migrated file and its scoped
// temporary directory.
func (r *Reader) Close() error {
	if r.migratedFile != nil {
		r.migratedFile.Close()
	}
	if r.migrated != nil {
		r.migrated.Close()
	}
	return r.f.Close()
}
