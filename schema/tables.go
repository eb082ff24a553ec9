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

package schema

import (
	"math"

	"github.com/apache/arrow/go/v17/arrow"
)

// ReadTableVersion is the logical version of the read table as declared
// by spec.md §3 "Read entity". v0..v2 only add scalar columns; v3's
// struct-flattening is a physical, not logical, change (see the
// package doc comment), so this registry already declares the
// post-flatten column names — migration from a pre-v3 file rewrites
// the physical struct columns into these names/types rather than the
// reader ever seeing two different logical shapes.
const (
	ReadTableV0 = 0
	ReadTableV1 = 1
	ReadTableV2 = 2
	ReadTableV3 = 3
	ReadTableV4 = 4
)

func stringDict() arrow.DataType {
	return &arrow.DictionaryType{IndexType: arrow.PrimitiveTypes.Int16, ValueType: arrow.BinaryTypes.String, Ordered: false}
}

// ReadTable is the field registry for the per-read metadata table.
var ReadTable = &Table{
	Name:    "reads",
	Current: ReadTableV4,
	Fields: []Field{
		{Name: "read_id", Type: UUIDStorage, AddedIn: ReadTableV0},
		{Name: "signal", Type: arrow.ListOf(arrow.PrimitiveTypes.Uint64), AddedIn: ReadTableV0},
		{Name: "read_number", Type: arrow.PrimitiveTypes.Uint32, AddedIn: ReadTableV0, Default: uint32(0)},
		{Name: "start_sample", Type: arrow.PrimitiveTypes.Uint64, AddedIn: ReadTableV0, Default: uint64(0)},
		{Name: "median_before", Type: arrow.PrimitiveTypes.Float32, AddedIn: ReadTableV0, Default: float32(math.NaN())},
		{Name: "pore_type", Type: stringDict(), AddedIn: ReadTableV0, Default: "not found"},
		{Name: "end_reason", Type: stringDict(), AddedIn: ReadTableV0, Default: EndReasonUnknown},
		{Name: "calibration_offset", Type: arrow.PrimitiveTypes.Float32, AddedIn: ReadTableV0, Default: float32(math.NaN())},
		{Name: "calibration_scale", Type: arrow.PrimitiveTypes.Float32, AddedIn: ReadTableV0, Default: float32(math.NaN())},
		{Name: "pore_channel", Type: arrow.PrimitiveTypes.Uint16, AddedIn: ReadTableV0, Default: uint16(0)},
		{Name: "pore_well", Type: arrow.PrimitiveTypes.Uint8, AddedIn: ReadTableV0, Default: uint8(0)},
		{Name: "run_info", Type: &arrow.DictionaryType{IndexType: arrow.PrimitiveTypes.Int16, ValueType: arrow.BinaryTypes.String, Ordered: false}, AddedIn: ReadTableV0, Default: "not found"},

		{Name: "num_minknow_events", Type: arrow.PrimitiveTypes.Uint64, AddedIn: ReadTableV1, Default: uint64(0)},
		{Name: "tracked_scaling_scale", Type: arrow.PrimitiveTypes.Float32, AddedIn: ReadTableV1, Default: float32(math.NaN())},
		{Name: "tracked_scaling_shift", Type: arrow.PrimitiveTypes.Float32, AddedIn: ReadTableV1, Default: float32(math.NaN())},
		{Name: "predicted_scaling_scale", Type: arrow.PrimitiveTypes.Float32, AddedIn: ReadTableV1, Default: float32(math.NaN())},
		{Name: "predicted_scaling_shift", Type: arrow.PrimitiveTypes.Float32, AddedIn: ReadTableV1, Default: float32(math.NaN())},
		{Name: "num_reads_since_mux_change", Type: arrow.PrimitiveTypes.Uint32, AddedIn: ReadTableV1, Default: uint32(0)},
		{Name: "time_since_mux_change", Type: arrow.PrimitiveTypes.Float32, AddedIn: ReadTableV1, Default: float32(0)},

		{Name: "num_samples", Type: arrow.PrimitiveTypes.Uint64, AddedIn: ReadTableV2, Default: uint64(0)},

		{Name: "open_pore_level", Type: arrow.PrimitiveTypes.Float32, AddedIn: ReadTableV4, Default: float32(math.NaN())},
	},
}

// EndReasonUnknown and the rest of the end-reason enum (spec.md §6).
const (
	EndReasonUnknown                     = "unknown"
	EndReasonMuxChange                   = "mux_change"
	EndReasonUnblockMuxChange            = "unblock_mux_change"
	EndReasonDataServiceUnblockMuxChange = "data_service_unblock_mux_change"
	EndReasonSignalPositive              = "signal_positive"
	EndReasonSignalNegative              = "signal_negative"
	EndReasonAPIRequest                  = "api_request"
	EndReasonDeviceDataError             = "device_data_error"
	EndReasonAnalysisConfigChange        = "analysis_config_change"
	EndReasonPaused                      = "paused"
)

// EndReasons is the full ordered enum, used to seed dictionaries.
var EndReasons = []string{
	EndReasonUnknown,
	EndReasonMuxChange,
	EndReasonUnblockMuxChange,
	EndReasonDataServiceUnblockMuxChange,
	EndReasonSignalPositive,
	EndReasonSignalNegative,
	EndReasonAPIRequest,
	EndReasonDeviceDataError,
	EndReasonAnalysisConfigChange,
	EndReasonPaused,
}

// RunInfoTable is the field registry for the run-info table (spec.md §3
// "Run-info entity"). It has had only one logical version to date.
var RunInfoTable = &Table{
	Name:    "run_info",
	Current: 0,
	Fields: []Field{
		{Name: "acquisition_id", Type: arrow.BinaryTypes.String, AddedIn: 0},
		{Name: "acquisition_start_time_ms", Type: arrow.PrimitiveTypes.Int64, AddedIn: 0},
		{Name: "adc_min", Type: arrow.PrimitiveTypes.Int16, AddedIn: 0},
		{Name: "adc_max", Type: arrow.PrimitiveTypes.Int16, AddedIn: 0},
		{Name: "sample_rate", Type: arrow.PrimitiveTypes.Uint16, AddedIn: 0},
		{Name: "context_tags", Type: stringStringList(), AddedIn: 0},
		{Name: "tracking_id", Type: stringStringList(), AddedIn: 0},
	},
}

// stringStringList models an order-preserving string->string map as a
// list of (key, value) structs: functionally identical to how Arrow's
// own Map logical type is laid out on the wire (list<struct<key,
// value>>), chosen here explicitly rather than via arrow.MapOf so this
// package does not depend on the exact helper signature Arrow's Map
// constructor happens to expose across versions.
func stringStringList() arrow.DataType {
	entry := arrow.StructOf(
		arrow.Field{Name: "key", Type: arrow.BinaryTypes.String},
		arrow.Field{Name: "value", Type: arrow.BinaryTypes.String},
	)
	return arrow.ListOf(entry)
}

// SignalTable returns the field registry for the signal table. The
// signal_blob column's physical type depends on whether the file was
// written with VBZ (delta+zigzag SVB16 + Zstd) compression or stores
// raw int16 samples, so callers pass the variant they need; a reader
// detects which variant is in use by inspecting the physical schema's
// signal_blob type (see package table).
func SignalTable(vbz bool) *Table {
	var blobType arrow.DataType
	if vbz {
		blobType = VBZStorage
	} else {
		blobType = arrow.ListOf(arrow.PrimitiveTypes.Int16)
	}
	return &Table{
		Name:    "signal",
		Current: 0,
		Fields: []Field{
			{Name: "read_id", Type: UUIDStorage, AddedIn: 0},
			{Name: "signal_blob", Type: blobType, AddedIn: 0},
			{Name: "samples", Type: arrow.PrimitiveTypes.Uint32, AddedIn: 0},
		},
	}
}
