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

	"github.com/nanoporetech/pod5/builder"
	"github.com/nanoporetech/pod5/errs"
	"github.com/nanoporetech/pod5/table"
)

// runInfoRow is the decoded form of one run_info table row (spec.md §3
// "Run-info entity").
type runInfoRow struct {
	AcquisitionID          string
	AcquisitionStartTimeMs int64
	AdcMin, AdcMax         int16
	SampleRate             uint16
	ContextTags            []kv
	TrackingID             []kv
}

type kv struct{ Key, Value string }

func colIdx(rec arrow.Record, name string) int {
	for i, f := range rec.Schema().Fields() {
		if f.Name == name {
			return i
		}
	}
	return -1
}

func decodeKVList(rec arrow.Record, col, row int) ([]kv, error) {
	la, ok := rec.Column(col).(*array.List)
	if !ok {
		return nil, errs.Errorf(errs.TypeError, op, "column %d is not a list", col)
	}
	start, end := la.ValueOffsets(row)
	sa, ok := la.ListValues().(*array.Struct)
	if !ok {
		return nil, errs.Errorf(errs.TypeError, op, "column %d list values are not structs", col)
	}
	keys, ok := sa.Field(0).(*array.String)
	if !ok {
		return nil, errs.Errorf(errs.TypeError, op, "column %d key field is not string", col)
	}
	vals, ok := sa.Field(1).(*array.String)
	if !ok {
		return nil, errs.Errorf(errs.TypeError, op, "column %d value field is not string", col)
	}
	out := make([]kv, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, kv{Key: keys.Value(int(i)), Value: vals.Value(int(i))})
	}
	return out, nil
}

func decodeRunInfoRow(rec arrow.Record, row int) (runInfoRow, error) {
	var r runInfoRow
	idx := colIdx(rec, "acquisition_id")
	if idx < 0 {
		return r, errs.Errorf(errs.Invalid, op, "run_info table missing acquisition_id column")
	}
	r.AcquisitionID = rec.Column(idx).(*array.String).Value(row)

	if i := colIdx(rec, "acquisition_start_time_ms"); i >= 0 {
		r.AcquisitionStartTimeMs = rec.Column(i).(*array.Int64).Value(row)
	}
	if i := colIdx(rec, "adc_min"); i >= 0 {
		r.AdcMin = rec.Column(i).(*array.Int16).Value(row)
	}
	if i := colIdx(rec, "adc_max"); i >= 0 {
		r.AdcMax = rec.Column(i).(*array.Int16).Value(row)
	}
	if i := colIdx(rec, "sample_rate"); i >= 0 {
		r.SampleRate = rec.Column(i).(*array.Uint16).Value(row)
	}
	if i := colIdx(rec, "context_tags"); i >= 0 {
		tags, err := decodeKVList(rec, i, row)
		if err != nil {
			return runInfoRow{}, err
		}
		r.ContextTags = tags
	}
	if i := colIdx(rec, "tracking_id"); i >= 0 {
		ids, err := decodeKVList(rec, i, row)
		if err != nil {
			return runInfoRow{}, err
		}
		r.TrackingID = ids
	}
	return r, nil
}

func appendKVList(lb *array.ListBuilder, kvs []kv) error {
	lb.Append(true)
	sb, ok := lb.ValueBuilder().(*array.StructBuilder)
	if !ok {
		return errs.Errorf(errs.TypeError, op, "run_info kv list values are not structs")
	}
	for _, e := range kvs {
		sb.Append(true)
		sb.FieldBuilder(0).(*array.StringBuilder).Append(e.Key)
		sb.FieldBuilder(1).(*array.StringBuilder).Append(e.Value)
	}
	return nil
}

func appendRunInfoRow(tb *builder.TableBuilder, r runInfoRow) error {
	col := func(name string) int {
		for i := 0; i < tb.NumFields(); i++ {
			if tb.FieldName(i) == name {
				return i
			}
		}
		return -1
	}
	set := func(name string, fn func(i int) error) error {
		i := col(name)
		if i < 0 {
			return errs.Errorf(errs.Invalid, op, "run_info builder missing %q", name)
		}
		return fn(i)
	}
	if err := set("acquisition_id", func(i int) error {
		tb.Field(i).(*array.StringBuilder).Append(r.AcquisitionID)
		return nil
	}); err != nil {
		return err
	}
	if err := set("acquisition_start_time_ms", func(i int) error {
		tb.Field(i).(*array.Int64Builder).Append(r.AcquisitionStartTimeMs)
		return nil
	}); err != nil {
		return err
	}
	if err := set("adc_min", func(i int) error {
		tb.Field(i).(*array.Int16Builder).Append(r.AdcMin)
		return nil
	}); err != nil {
		return err
	}
	if err := set("adc_max", func(i int) error {
		tb.Field(i).(*array.Int16Builder).Append(r.AdcMax)
		return nil
	}); err != nil {
		return err
	}
	if err := set("sample_rate", func(i int) error {
		tb.Field(i).(*array.Uint16Builder).Append(r.SampleRate)
		return nil
	}); err != nil {
		return err
	}
	if err := set("context_tags", func(i int) error {
		return appendKVList(tb.Field(i).(*array.ListBuilder), r.ContextTags)
	}); err != nil {
		return err
	}
	if err := set("tracking_id", func(i int) error {
		return appendKVList(tb.Field(i).(*array.ListBuilder), r.TrackingID)
	}); err != nil {
		return err
	}
	return nil
}

// mergeRunInfo decodes every row of src (if non-nil) and appends the
// ones not already present in the output, keyed by acquisition_id —
// the "per-input cache mapping ... run_info (keyed by RunInfoData by
// value, with acquisition_id as primary dedup key)" spec.md §4.10
// describes. Insertion is guarded by the output's writer mutex so
// concurrent per-input copies (package repack's use of threadpool.Pool)
// never double-insert the same acquisition_id.
func (o *output) mergeRunInfo(src *table.Reader) error {
	if src == nil {
		return nil
	}
	for i := 0; i < src.NumRecords(); i++ {
		rec, err := src.Record(i)
		if err != nil {
			return err
		}
		for r := 0; r < int(rec.NumRows()); r++ {
			row, err := decodeRunInfoRow(rec, r)
			if err != nil {
				rec.Release()
				return err
			}
			if err := o.addRunInfo(row); err != nil {
				rec.Release()
				return err
			}
		}
		rec.Release()
	}
	return nil
}
