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
	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"

	"github.com/nanoporetech/pod5/errs"
	"github.com/nanoporetech/pod5/schema"
	"github.com/nanoporetech/pod5/uuid"
)

const op = "migration"

// columnIndex returns the physical column index named name in rec's
// schema, or -1.
func columnIndex(rec arrow.Record, name string) int {
	for i, f := range rec.Schema().Fields() {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// decodeDictString returns the dictionary-decoded string value at row for
// a dictionary<int16, string> column.
func decodeDictString(rec arrow.Record, col, row int) (string, error) {
	da, ok := rec.Column(col).(*array.Dictionary)
	if !ok {
		return "", errs.Errorf(errs.TypeError, op, "column %d is not dictionary-encoded", col)
	}
	idx := da.GetValueIndex(row)
	values, ok := da.Dictionary().(*array.String)
	if !ok {
		return "", errs.Errorf(errs.TypeError, op, "column %d dictionary values are not strings", col)
	}
	return values.Value(idx), nil
}

// DecodeRow decodes the row'th row of rec, a read-table record batch
// opened at the given logical version, into the flattened Row
// representation. Pre-v3 files carry pore/calibration/end_reason as
// struct columns (original field layout: pore{channel, well, pore_type},
// calibration{offset, scale}, end_reason{end_reason, forced} — see
// DESIGN.md); v3+ files already carry the flattened scalar/dictionary
// columns this function's output always uses.
func DecodeRow(version int, rec arrow.Record, row int) (Row, error) {
	r := DefaultRowV0()

	if i := columnIndex(rec, "read_id"); i >= 0 {
		fb, ok := rec.Column(i).(*array.FixedSizeBinary)
		if !ok {
			return Row{}, errs.Errorf(errs.TypeError, op, "read_id is not fixed_size_binary")
		}
		r.ReadID = uuid.FromBytes(fb.Value(row))
	}
	if i := columnIndex(rec, "signal"); i >= 0 {
		la, ok := rec.Column(i).(*array.List)
		if !ok {
			return Row{}, errs.Errorf(errs.TypeError, op, "signal is not a list column")
		}
		start, end := la.ValueOffsets(row)
		values, ok := la.ListValues().(*array.Uint64)
		if !ok {
			return Row{}, errs.Errorf(errs.TypeError, op, "signal list values are not uint64")
		}
		rows := make([]uint64, 0, end-start)
		for k := start; k < end; k++ {
			rows = append(rows, values.Value(int(k)))
		}
		r.SignalRows = rows
	}
	if i := columnIndex(rec, "read_number"); i >= 0 {
		r.ReadNumber = rec.Column(i).(*array.Uint32).Value(row)
	}
	if i := columnIndex(rec, "start_sample"); i >= 0 {
		r.StartSample = rec.Column(i).(*array.Uint64).Value(row)
	}
	if i := columnIndex(rec, "median_before"); i >= 0 {
		r.MedianBefore = rec.Column(i).(*array.Float32).Value(row)
	}
	if i := columnIndex(rec, "run_info"); i >= 0 {
		s, err := decodeDictString(rec, i, row)
		if err != nil {
			return Row{}, err
		}
		r.RunInfo = s
	}

	if version < schema.ReadTableV3 {
		if err := decodeLegacyStructs(rec, row, &r); err != nil {
			return Row{}, err
		}
	} else {
		if i := columnIndex(rec, "pore_channel"); i >= 0 {
			r.PoreChannel = rec.Column(i).(*array.Uint16).Value(row)
		}
		if i := columnIndex(rec, "pore_well"); i >= 0 {
			r.PoreWell = rec.Column(i).(*array.Uint8).Value(row)
		}
		if i := columnIndex(rec, "pore_type"); i >= 0 {
			s, err := decodeDictString(rec, i, row)
			if err != nil {
				return Row{}, err
			}
			r.PoreType = s
		}
		if i := columnIndex(rec, "calibration_offset"); i >= 0 {
			r.CalibrationOffset = rec.Column(i).(*array.Float32).Value(row)
		}
		if i := columnIndex(rec, "calibration_scale"); i >= 0 {
			r.CalibrationScale = rec.Column(i).(*array.Float32).Value(row)
		}
		if i := columnIndex(rec, "end_reason"); i >= 0 {
			s, err := decodeDictString(rec, i, row)
			if err != nil {
				return Row{}, err
			}
			r.EndReason = s
		}
	}

	if i := columnIndex(rec, "num_minknow_events"); i >= 0 {
		r.NumMinknowEvents = rec.Column(i).(*array.Uint64).Value(row)
	}
	if i := columnIndex(rec, "tracked_scaling_scale"); i >= 0 {
		r.TrackedScalingScale = rec.Column(i).(*array.Float32).Value(row)
	}
	if i := columnIndex(rec, "tracked_scaling_shift"); i >= 0 {
		r.TrackedScalingShift = rec.Column(i).(*array.Float32).Value(row)
	}
	if i := columnIndex(rec, "predicted_scaling_scale"); i >= 0 {
		r.PredictedScalingScale = rec.Column(i).(*array.Float32).Value(row)
	}
	if i := columnIndex(rec, "predicted_scaling_shift"); i >= 0 {
		r.PredictedScalingShift = rec.Column(i).(*array.Float32).Value(row)
	}
	if i := columnIndex(rec, "num_reads_since_mux_change"); i >= 0 {
		r.NumReadsSinceMuxChange = rec.Column(i).(*array.Uint32).Value(row)
	}
	if i := columnIndex(rec, "time_since_mux_change"); i >= 0 {
		r.TimeSinceMuxChange = rec.Column(i).(*array.Float32).Value(row)
	}
	if i := columnIndex(rec, "num_samples"); i >= 0 {
		r.NumSamples = rec.Column(i).(*array.Uint64).Value(row)
	}
	if i := columnIndex(rec, "open_pore_level"); i >= 0 {
		r.OpenPoreLevel = rec.Column(i).(*array.Float32).Value(row)
	}

	return r, nil
}

// decodeLegacyStructs unpacks a pre-v3 read row's pore/calibration/
// end_reason dictionary-of-struct columns into r's flattened fields.
func decodeLegacyStructs(rec arrow.Record, row int, r *Row) error {
	if i := columnIndex(rec, "pore"); i >= 0 {
		s, err := dictStruct(rec, i, row)
		if err != nil {
			return err
		}
		r.PoreChannel = uint16(s.Field(0).(*array.Uint16).Value(s.row))
		r.PoreWell = s.Field(1).(*array.Uint8).Value(s.row)
		r.PoreType = s.Field(2).(*array.String).Value(s.row)
	}
	if i := columnIndex(rec, "calibration"); i >= 0 {
		s, err := dictStruct(rec, i, row)
		if err != nil {
			return err
		}
		r.CalibrationOffset = s.Field(0).(*array.Float32).Value(s.row)
		r.CalibrationScale = s.Field(1).(*array.Float32).Value(s.row)
	}
	if i := columnIndex(rec, "end_reason"); i >= 0 {
		s, err := dictStruct(rec, i, row)
		if err != nil {
			return err
		}
		r.EndReason = s.Field(0).(*array.String).Value(s.row)
	}
	return nil
}

// structDictValue is the resolved dictionary value for one dictionary<
// struct> column access: the struct array backing the dictionary, plus
// the row within it the dictionary index resolved to.
type structDictValue struct {
	*array.Struct
	row int
}

func dictStruct(rec arrow.Record, col, row int) (structDictValue, error) {
	da, ok := rec.Column(col).(*array.Dictionary)
	if !ok {
		return structDictValue{}, errs.Errorf(errs.TypeError, op, "column %d is not dictionary-encoded", col)
	}
	idx := da.GetValueIndex(row)
	sa, ok := da.Dictionary().(*array.Struct)
	if !ok {
		return structDictValue{}, errs.Errorf(errs.TypeError, op, "column %d dictionary values are not structs", col)
	}
	return structDictValue{Struct: sa, row: idx}, nil
}
