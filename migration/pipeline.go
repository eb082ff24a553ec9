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
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/nanoporetech/pod5/builder"
	"github.com/nanoporetech/pod5/errs"
	"github.com/nanoporetech/pod5/schema"
	"github.com/nanoporetech/pod5/table"
)

// signalRowSamples flattens every record batch of a signal table into one
// row-indexed slice of per-row sample counts, the shape v1->v2 migration
// needs to resolve a read's signal-row-id list into num_samples (spec.md
// §4.6 "compute num_samples ... by summing the per-chunk sample counts").
func signalRowSamples(sig *table.Reader) ([]uint32, error) {
	var out []uint32
	for i := 0; i < sig.NumRecords(); i++ {
		rec, err := sig.Record(i)
		if err != nil {
			return nil, err
		}
		col := columnIndex(rec, "samples")
		if col < 0 {
			rec.Release()
			return nil, errs.Errorf(errs.Invalid, op, "signal table batch %d missing samples column", i)
		}
		sa, ok := rec.Column(col).(*array.Uint32)
		if !ok {
			rec.Release()
			return nil, errs.Errorf(errs.TypeError, op, "signal table samples column is not uint32")
		}
		for r := 0; r < int(rec.NumRows()); r++ {
			out = append(out, sa.Value(r))
		}
		rec.Release()
	}
	return out, nil
}

// Result is a fully migrated read table, ready for table.NewWriter at
// schema.ReadTableV4.
type Result struct {
	Rows []Row
}

// Run decodes every row of reads (a read table opened at sourceVersion)
// through the full v0->v4 chain, resolving num_samples against sig where
// the source version predates it (sourceVersion < schema.ReadTableV2).
// Rows newer than v2 already carry num_samples verbatim; this function
// still decodes and re-encodes them so the output is always the current
// physical shape, matching spec.md §4.5's "reader matches ... by name" —
// migration here is "decode to the logical model, re-encode", not a
// distinct code path per source version.
func Run(reads *table.Reader, sig *table.Reader, sourceVersion int) (*Result, error) {
	var samples []uint32
	if sourceVersion < schema.ReadTableV2 {
		var err error
		samples, err = signalRowSamples(sig)
		if err != nil {
			return nil, err
		}
	}

	var rows []Row
	for i := 0; i < reads.NumRecords(); i++ {
		rec, err := reads.Record(i)
		if err != nil {
			return nil, err
		}
		for r := 0; r < int(rec.NumRows()); r++ {
			row, err := DecodeRow(sourceVersion, rec, r)
			if err != nil {
				rec.Release()
				return nil, err
			}
			if sourceVersion < schema.ReadTableV2 {
				row.NumSamples = sumSamples(samples, row.SignalRows)
			}
			rows = append(rows, row)
		}
		rec.Release()
	}
	return &Result{Rows: rows}, nil
}

func sumSamples(samples []uint32, rowIDs []uint64) uint64 {
	var total uint64
	for _, id := range rowIDs {
		if id < uint64(len(samples)) {
			total += uint64(samples[id])
		}
	}
	return total
}

// Write encodes every row of res into one or more record batches at
// schema.ReadTableV4, batchSize rows at a time, and returns the
// serialized embedded table bytes, whose schema-level metadata carries
// fileIdentifier and software.
func (res *Result) Write(fileIdentifier, software string, batchSize int, alloc memory.Allocator) ([]byte, error) {
	if batchSize <= 0 {
		batchSize = len(res.Rows)
		if batchSize == 0 {
			batchSize = 1
		}
	}
	fields := schema.ReadTable.ArrowFields(schema.ReadTableV4)
	meta := table.BuildMetadata(fileIdentifier, software, schema.CurrentPod5Version)
	w, err := table.NewWriter(fields, meta, alloc)
	if err != nil {
		return nil, err
	}

	tb := builder.New(schema.ReadTable, schema.ReadTableV4, alloc)
	defer tb.Release()

	flush := func() error {
		rec := tb.NewRecord()
		defer rec.Release()
		if rec.NumRows() == 0 {
			return nil
		}
		return w.WriteRecord(rec)
	}

	for i, row := range res.Rows {
		if err := EncodeRow(tb, row); err != nil {
			return nil, err
		}
		if (i+1)%batchSize == 0 {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if len(res.Rows)%batchSize != 0 || len(res.Rows) == 0 {
		if err := flush(); err != nil {
			return nil, err
		}
	}
	return w.Close()
}
