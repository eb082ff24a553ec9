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

package loader

import (
	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"

	"github.com/nanoporetech/pod5/errs"
	"github.com/nanoporetech/pod5/signalcodec"
)

const op = "loader"

// signalTable resolves a read's signal-row-id list (global row indices
// into the signal table, spec.md §3 "signal (list<uint64>)") against
// the signal table's record batches, decoding either the raw int16 or
// minknow.vbz representation on demand. Row ids are resolved lazily
// per access rather than flattened up front, since a loader typically
// only ever touches the rows a read's job slab actually needs.
type signalTable struct {
	recs    []arrow.Record // one per record batch, ref-counted by caller
	cumRows []int          // cumRows[b] = total rows in batches [0,b)
}

func newSignalTable(recs []arrow.Record) *signalTable {
	cum := make([]int, len(recs)+1)
	for i, r := range recs {
		cum[i+1] = cum[i] + int(r.NumRows())
	}
	return &signalTable{recs: recs, cumRows: cum}
}

// locate finds the (batch, row) a global signal-table row id resolves to.
func (s *signalTable) locate(id uint64) (batch, row int, ok bool) {
	n := int(id)
	if n < 0 || n >= s.cumRows[len(s.cumRows)-1] {
		return 0, 0, false
	}
	// cumRows is short (one entry per record batch, typically tens to
	// low hundreds); a linear scan is simpler than sort.Search here and
	// never dominates decode cost.
	for b := 0; b < len(s.recs); b++ {
		if n < s.cumRows[b+1] {
			return b, n - s.cumRows[b], true
		}
	}
	return 0, 0, false
}

// sampleCount returns the sample count recorded for row id without
// decoding its blob. NoSamples mode does not use it: that mode reads
// the count from the read table and never opens the signal table.
func (s *signalTable) sampleCount(id uint64) (int, error) {
	b, row, ok := s.locate(id)
	if !ok {
		return 0, errs.Errorf(errs.IndexError, op, "signal row id %d out of range", id)
	}
	rec := s.recs[b]
	col := columnIndex(rec, "samples")
	if col < 0 {
		return 0, errs.Errorf(errs.Invalid, op, "signal table missing samples column")
	}
	sa, ok := rec.Column(col).(*array.Uint32)
	if !ok {
		return 0, errs.Errorf(errs.TypeError, op, "signal table samples column is not uint32")
	}
	return int(sa.Value(row)), nil
}

// decode returns the full, decompressed sample array for row id
// (loader.Samples mode).
func (s *signalTable) decode(id uint64) ([]int16, error) {
	b, row, ok := s.locate(id)
	if !ok {
		return nil, errs.Errorf(errs.IndexError, op, "signal row id %d out of range", id)
	}
	rec := s.recs[b]
	blobCol := columnIndex(rec, "signal_blob")
	samplesCol := columnIndex(rec, "samples")
	if blobCol < 0 || samplesCol < 0 {
		return nil, errs.Errorf(errs.Invalid, op, "signal table missing signal_blob/samples column")
	}
	n := int(rec.Column(samplesCol).(*array.Uint32).Value(row))

	switch blob := rec.Column(blobCol).(type) {
	case *array.List:
		start, end := blob.ValueOffsets(row)
		values, ok := blob.ListValues().(*array.Int16)
		if !ok {
			return nil, errs.Errorf(errs.TypeError, op, "signal_blob list values are not int16")
		}
		out := make([]int16, end-start)
		for i := range out {
			out[i] = values.Value(int(start) + i)
		}
		return out, nil
	case *array.Binary:
		out := make([]int16, n)
		if err := signalcodec.Decompress(out, blob.Value(row), n); err != nil {
			return nil, err
		}
		return out, nil
	case *array.LargeBinary:
		out := make([]int16, n)
		if err := signalcodec.Decompress(out, blob.Value(row), n); err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, errs.Errorf(errs.TypeError, op, "signal_blob column has unsupported type %T", blob)
	}
}

func columnIndex(rec arrow.Record, name string) int {
	for i, f := range rec.Schema().Fields() {
		if f.Name == name {
			return i
		}
	}
	return -1
}
