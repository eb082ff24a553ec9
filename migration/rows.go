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

// Package migration implements the v0->v1->v2->v3->v4 read-table rewrite
// chain of spec.md §4.6. Each step is a pure function over a neutral
// in-memory Row value rather than a direct Arrow-array-to-Arrow-array
// transform: spec.md §3's v3 struct-flattening is a physical reshape (not
// an additive column), so there is no single physical schema that every
// version's reader/writer code can share. Decoding every version down to
// Row, and encoding Row back up to the current physical schema, means the
// rest of this module (readindex, loader, repack) only ever has to
// know the v4 shape.
package migration

import (
	"math"

	"github.com/nanoporetech/pod5/uuid"
)

// Row is the fully-flattened logical read record, a superset of every
// field any table version has ever declared (spec.md §3 "Read entity").
// Decoding an older physical row into a Row applies that version's
// defaults for fields it didn't have yet; encoding always writes every
// field.
type Row struct {
	ReadID      uuid.Uuid
	SignalRows  []uint64 // signal-table row ids, in chunk order
	ReadNumber  uint32
	StartSample uint64
	MedianBefore float32

	PoreChannel uint16
	PoreWell    uint8
	PoreType    string

	CalibrationOffset float32
	CalibrationScale  float32

	EndReason string

	RunInfo string // acquisition_id of the owning run-info row

	// v1
	NumMinknowEvents        uint64
	TrackedScalingScale     float32
	TrackedScalingShift     float32
	PredictedScalingScale   float32
	PredictedScalingShift   float32
	NumReadsSinceMuxChange  uint32
	TimeSinceMuxChange      float32

	// v2
	NumSamples uint64

	// v4
	OpenPoreLevel float32
}

// DefaultRowV0 returns the defaults spec.md §3/§4.6 documents for fields a
// v0 file never had: NaN for scaling floats, 0 for new counters, "unknown"
// for end-reason fallback (the back-fill defaults listed in SPEC_FULL.md
// section 4 — this module follows the spec's documented default, not a
// production-file survey it has no access to).
func DefaultRowV0() Row {
	nan := float32(math.NaN())
	return Row{
		MedianBefore:          nan,
		CalibrationOffset:     nan,
		CalibrationScale:      nan,
		TrackedScalingScale:   nan,
		TrackedScalingShift:   nan,
		PredictedScalingScale: nan,
		PredictedScalingShift: nan,
		OpenPoreLevel:         nan,
		EndReason:             "unknown",
		PoreType:              "not found",
		RunInfo:               "not found",
	}
}
