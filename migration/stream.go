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

package migration

import (
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/nanoporetech/pod5/builder"
	"github.com/nanoporetech/pod5/errs"
	"github.com/nanoporetech/pod5/schema"
	"github.com/nanoporetech/pod5/table"
)

// defaultStreamBatchSize bounds how many decoded rows RunStreaming holds
// in memory at once (one output record batch), regardless of how large
// the source table is.
const defaultStreamBatchSize = 1024

// RunStreaming performs the same v0->v4 decode/re-encode work Run does,
// but spools the result through a temporary record-batch file created in
// dir instead of accumulating every row of the table in a []Row first
// (spec.md §4.6: "each writes to a newly created temporary record-batch
// file in a scoped temporary directory"). Memory use is bounded to
// batchSize rows at a time (plus whatever signalRowSamples needs to
// resolve num_samples for a pre-v2 source, which is itself a flat
// per-row slice rather than decoded Row values).
//
// On success it returns the Dir the temporary file was created in — the
// caller owns it and must Close it once the migrated table has been
// consumed (typically right after re-opening it with table.OpenReader)
// — and the file's path.
func RunStreaming(reads, sig *table.Reader, sourceVersion int, dir *TempDirRegistry, fileIdentifier, software string, batchSize int, alloc memory.Allocator) (migrated *Dir, path string, err error) {
	var samples []uint32
	if sourceVersion < schema.ReadTableV2 {
		samples, err = signalRowSamples(sig)
		if err != nil {
			return nil, "", err
		}
	}
	if batchSize <= 0 {
		batchSize = defaultStreamBatchSize
	}

	td, err := dir.Create("pod5-migrate")
	if err != nil {
		return nil, "", err
	}
	f, err := td.CreateFile("reads-*.arrow")
	if err != nil {
		td.Close()
		return nil, "", err
	}
	fail := func(err error) (*Dir, string, error) {
		f.Close()
		td.Close()
		return nil, "", err
	}

	fields := schema.ReadTable.ArrowFields(schema.ReadTableV4)
	meta := table.BuildMetadata(fileIdentifier, software, schema.CurrentPod5Version)
	w, err := table.NewFileWriter(f, fields, meta, alloc)
	if err != nil {
		return fail(err)
	}

	tb := builder.New(schema.ReadTable, schema.ReadTableV4, alloc)
	defer tb.Release()

	pending := 0
	flush := func() error {
		if pending == 0 {
			return nil
		}
		rec := tb.NewRecord()
		defer rec.Release()
		pending = 0
		if rec.NumRows() == 0 {
			return nil
		}
		return w.WriteRecord(rec)
	}

	for i := 0; i < reads.NumRecords(); i++ {
		rec, recErr := reads.Record(i)
		if recErr != nil {
			return fail(recErr)
		}
		for r := 0; r < int(rec.NumRows()); r++ {
			row, decErr := DecodeRow(sourceVersion, rec, r)
			if decErr != nil {
				rec.Release()
				return fail(decErr)
			}
			if sourceVersion < schema.ReadTableV2 {
				row.NumSamples = sumSamples(samples, row.SignalRows)
			}
			if encErr := EncodeRow(tb, row); encErr != nil {
				rec.Release()
				return fail(encErr)
			}
			pending++
			if pending >= batchSize {
				if flushErr := flush(); flushErr != nil {
					rec.Release()
					return fail(flushErr)
				}
			}
		}
		rec.Release()
	}
	if flushErr := flush(); flushErr != nil {
		return fail(flushErr)
	}
	if _, closeErr := w.Close(); closeErr != nil {
		return fail(closeErr)
	}
	name := f.Name()
	if closeErr := f.Close(); closeErr != nil {
		td.Close()
		return nil, "", errs.New(errs.IOError, op, closeErr)
	}
	return td, name, nil
}
