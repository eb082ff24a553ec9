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

package repack

import (
	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"

	"github.com/nanoporetech/pod5/errs"
	"github.com/nanoporetech/pod5/signalcodec"
	"github.com/nanoporetech/pod5/table"
	"github.com/nanoporetech/pod5/uuid"
)

// signalSource resolves global signal-table row ids against one
// input's record batches, the same locate-by-cumulative-row-count
// scheme loader/signal_index.go uses, plus access to a row's raw
// on-disk bytes so a verbatim copy never has to decompress.
type signalSource struct {
	recs    []arrow.Record
	cumRows []int
	vbz     bool // true if this source's signal_blob column is minknow.vbz
}

func newSignalSource(src *table.Reader) (*signalSource, error) {
	s := &signalSource{}
	for i := 0; i < src.NumRecords(); i++ {
		rec, err := src.Record(i)
		if err != nil {
			return nil, err
		}
		s.recs = append(s.recs, rec)
	}
	s.cumRows = make([]int, len(s.recs)+1)
	for i, r := range s.recs {
		s.cumRows[i+1] = s.cumRows[i] + int(r.NumRows())
	}
	if len(s.recs) > 0 {
		col := colIdx(s.recs[0], "signal_blob")
		if col < 0 {
			return nil, errs.Errorf(errs.Invalid, op, "signal table missing signal_blob column")
		}
		switch s.recs[0].Column(col).(type) {
		case *array.Binary, *array.LargeBinary:
			s.vbz = true
		case *array.List:
			s.vbz = false
		default:
			return nil, errs.Errorf(errs.TypeError, op, "signal_blob column has unsupported type %T", s.recs[0].Column(col))
		}
	}
	return s, nil
}

func (s *signalSource) release() {
	for _, r := range s.recs {
		r.Release()
	}
}

func (s *signalSource) locate(id uint64) (batch, row int, ok bool) {
	n := int(id)
	if n < 0 || len(s.cumRows) == 0 || n >= s.cumRows[len(s.cumRows)-1] {
		return 0, 0, false
	}
	for b := 0; b < len(s.recs); b++ {
		if n < s.cumRows[b+1] {
			return b, n - s.cumRows[b], true
		}
	}
	return 0, 0, false
}

// rawRow returns row id's bytes exactly as stored on disk (VBZ blob, or
// raw little-endian int16 samples), its read id and its sample count,
// without decompressing anything.
func (s *signalSource) rawRow(id uint64) (readID uuid.Uuid, blob []byte, sampleCount uint32, err error) {
	b, row, ok := s.locate(id)
	if !ok {
		return uuid.Nil, nil, 0, errs.Errorf(errs.IndexError, op, "signal row id %d out of range", id)
	}
	rec := s.recs[b]

	idCol := colIdx(rec, "read_id")
	blobCol := colIdx(rec, "signal_blob")
	samplesCol := colIdx(rec, "samples")
	if idCol < 0 || blobCol < 0 || samplesCol < 0 {
		return uuid.Nil, nil, 0, errs.Errorf(errs.Invalid, op, "signal table missing read_id/signal_blob/samples column")
	}
	readID = uuid.FromBytes(rec.Column(idCol).(*array.FixedSizeBinary).Value(row))
	sampleCount = rec.Column(samplesCol).(*array.Uint32).Value(row)

	switch col := rec.Column(blobCol).(type) {
	case *array.Binary:
		blob = col.Value(row)
	case *array.LargeBinary:
		blob = col.Value(row)
	case *array.List:
		start, end := col.ValueOffsets(row)
		values, ok := col.ListValues().(*array.Int16)
		if !ok {
			return uuid.Nil, nil, 0, errs.Errorf(errs.TypeError, op, "signal_blob list values are not int16")
		}
		raw := make([]byte, (end-start)*2)
		for i := start; i < end; i++ {
			v := uint16(values.Value(int(i)))
			raw[(i-start)*2] = byte(v)
			raw[(i-start)*2+1] = byte(v >> 8)
		}
		blob = raw
	default:
		return uuid.Nil, nil, 0, errs.Errorf(errs.TypeError, op, "signal_blob column has unsupported type %T", col)
	}
	return readID, blob, sampleCount, nil
}

// copySignalRows copies every row named by ids from src into dst
// (dst's compression mode is whatever dst was constructed with),
// returning the destination's global signal-table row ids in the same
// order — the mapping each copied read's signal_row_indices must be
// rewritten to. Bytes are copied verbatim when src and dst agree on
// compression; otherwise each row passes through decode-then-encode.
func copySignalRows(dst *outputSignal, src *signalSource, ids []uint64) ([]uint64, error) {
	out := make([]uint64, len(ids))
	for i, id := range ids {
		readID, blob, n, err := src.rawRow(id)
		if err != nil {
			return nil, err
		}
		var destID uint64
		if src.vbz == dst.vbz {
			destID, err = dst.appendPreCompressed(readID, blob, n)
		} else if src.vbz {
			samples := make([]int16, n)
			if err := signalcodec.Decompress(samples, blob, int(n)); err != nil {
				return nil, err
			}
			destID, err = dst.appendUncompressed(readID, samples)
		} else {
			samples := rawLEToInt16(blob)
			destID, err = dst.appendUncompressed(readID, samples)
		}
		if err != nil {
			return nil, err
		}
		out[i] = destID
	}
	return out, nil
}

func rawLEToInt16(blob []byte) []int16 {
	out := make([]int16, len(blob)/2)
	for i := range out {
		out[i] = int16(uint16(blob[2*i]) | uint16(blob[2*i+1])<<8)
	}
	return out
}
