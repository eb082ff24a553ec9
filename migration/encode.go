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

	"github.com/nanoporetech/pod5/builder"
	"github.com/nanoporetech/pod5/errs"
)

// EncodeRow appends r to tb, a builder.TableBuilder constructed against
// schema.ReadTable at schema.ReadTableV4 — the only physical shape this
// module ever writes, regardless of the source file's version.
func EncodeRow(tb *builder.TableBuilder, r Row) error {
	col := func(name string) (int, error) {
		for i := 0; i < tb.NumFields(); i++ {
			if tb.FieldName(i) == name {
				return i, nil
			}
		}
		return -1, errs.Errorf(errs.Invalid, op, "read table v4 builder has no %q column", name)
	}

	set := func(name string, fn func(i int) error) error {
		i, err := col(name)
		if err != nil {
			return err
		}
		return fn(i)
	}

	if err := tb.AppendUUID(mustCol(tb, "read_id"), r.ReadID); err != nil {
		return err
	}
	if err := set("signal", func(i int) error {
		lb, ok := tb.Field(i).(*array.ListBuilder)
		if !ok {
			return errs.Errorf(errs.TypeError, op, "signal column is not a list builder")
		}
		lb.Append(true)
		vb := lb.ValueBuilder().(*array.Uint64Builder)
		vb.AppendValues(r.SignalRows, nil)
		return nil
	}); err != nil {
		return err
	}
	if err := set("read_number", func(i int) error {
		tb.Field(i).(*array.Uint32Builder).Append(r.ReadNumber)
		return nil
	}); err != nil {
		return err
	}
	if err := set("start_sample", func(i int) error {
		tb.Field(i).(*array.Uint64Builder).Append(r.StartSample)
		return nil
	}); err != nil {
		return err
	}
	if err := set("median_before", func(i int) error {
		tb.Field(i).(*array.Float32Builder).Append(r.MedianBefore)
		return nil
	}); err != nil {
		return err
	}
	if err := set("pore_type", func(i int) error {
		return tb.Field(i).(*array.BinaryDictionaryBuilder).AppendString(r.PoreType)
	}); err != nil {
		return err
	}
	if err := set("end_reason", func(i int) error {
		return tb.Field(i).(*array.BinaryDictionaryBuilder).AppendString(r.EndReason)
	}); err != nil {
		return err
	}
	if err := set("calibration_offset", func(i int) error {
		tb.Field(i).(*array.Float32Builder).Append(r.CalibrationOffset)
		return nil
	}); err != nil {
		return err
	}
	if err := set("calibration_scale", func(i int) error {
		tb.Field(i).(*array.Float32Builder).Append(r.CalibrationScale)
		return nil
	}); err != nil {
		return err
	}
	if err := set("pore_channel", func(i int) error {
		tb.Field(i).(*array.Uint16Builder).Append(r.PoreChannel)
		return nil
	}); err != nil {
		return err
	}
	if err := set("pore_well", func(i int) error {
		tb.Field(i).(*array.Uint8Builder).Append(r.PoreWell)
		return nil
	}); err != nil {
		return err
	}
	if err := set("run_info", func(i int) error {
		return tb.Field(i).(*array.BinaryDictionaryBuilder).AppendString(r.RunInfo)
	}); err != nil {
		return err
	}
	if err := set("num_minknow_events", func(i int) error {
		tb.Field(i).(*array.Uint64Builder).Append(r.NumMinknowEvents)
		return nil
	}); err != nil {
		return err
	}
	if err := set("tracked_scaling_scale", func(i int) error {
		tb.Field(i).(*array.Float32Builder).Append(r.TrackedScalingScale)
		return nil
	}); err != nil {
		return err
	}
	if err := set("tracked_scaling_shift", func(i int) error {
		tb.Field(i).(*array.Float32Builder).Append(r.TrackedScalingShift)
		return nil
	}); err != nil {
		return err
	}
	if err := set("predicted_scaling_scale", func(i int) error {
		tb.Field(i).(*array.Float32Builder).Append(r.PredictedScalingScale)
		return nil
	}); err != nil {
		return err
	}
	if err := set("predicted_scaling_shift", func(i int) error {
		tb.Field(i).(*array.Float32Builder).Append(r.PredictedScalingShift)
		return nil
	}); err != nil {
		return err
	}
	if err := set("num_reads_since_mux_change", func(i int) error {
		tb.Field(i).(*array.Uint32Builder).Append(r.NumReadsSinceMuxChange)
		return nil
	}); err != nil {
		return err
	}
	if err := set("time_since_mux_change", func(i int) error {
		tb.Field(i).(*array.Float32Builder).Append(r.TimeSinceMuxChange)
		return nil
	}); err != nil {
		return err
	}
	if err := set("num_samples", func(i int) error {
		tb.Field(i).(*array.Uint64Builder).Append(r.NumSamples)
		return nil
	}); err != nil {
		return err
	}
	if err := set("open_pore_level", func(i int) error {
		tb.Field(i).(*array.Float32Builder).Append(r.OpenPoreLevel)
		return nil
	}); err != nil {
		return err
	}
	return nil
}

func mustCol(tb *builder.TableBuilder, name string) int {
	for i := 0; i < tb.NumFields(); i++ {
		if tb.FieldName(i) == name {
			return i
		}
	}
	return -1
}
