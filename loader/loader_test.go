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
	"bytes"
	"testing"
	"time"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/nanoporetech/pod5/builder"
	"github.com/nanoporetech/pod5/migration"
	"github.com/nanoporetech/pod5/schema"
	"github.com/nanoporetech/pod5/table"
	"github.com/nanoporetech/pod5/uuid"
)

// roundTripRecord serializes rec through a table.Writer/Reader pair (a
// real Arrow IPC file, not just the in-memory array the builder
// produced) and returns the record as a consumer opening a pod5 file
// would actually see it. Signal columns with a LargeBinary physical
// type deserialize to a different concrete Go type than they may hold
// before serialization, so tests exercising the minknow.vbz path need
// to go through this, not just builder.Finish().NewRecord().
func roundTripRecord(t *testing.T, rec arrow.Record, vbz bool) arrow.Record {
	t.Helper()
	alloc := memory.NewGoAllocator()
	meta := table.BuildMetadata(uuid.MustNew().String(), "pod5-go test harness", schema.CurrentPod5Version)
	w, err := table.NewWriter(schema.SignalTable(vbz).ArrowFields(0), meta, alloc)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.WriteRecord(rec); err != nil {
		t.Fatalf("WriteRecord: %v", err)
	}
	data, err := w.Close()
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	r, err := table.OpenReader(bytes.NewReader(data), alloc)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	got, err := r.Record(0)
	if err != nil {
		t.Fatalf("Record(0): %v", err)
	}
	return got
}

// buildSignalBatch writes one signal-table record batch (uncompressed)
// holding len(chunks) rows, each chunks[i] samples long, all tagged
// with the same readID (as a real file would for one read's chunk
// list).
func buildSignalBatch(t *testing.T, readID uuid.Uuid, chunks [][]int16) arrow.Record {
	t.Helper()
	alloc := memory.NewGoAllocator()
	sb := builder.NewSignalBuilder(false, alloc)
	defer sb.Release()
	for _, c := range chunks {
		if err := sb.AppendUncompressed(readID, c); err != nil {
			t.Fatalf("AppendUncompressed: %v", err)
		}
	}
	tb := sb.Finish()
	return tb.NewRecord()
}

func TestLoaderOrderingAndCounts(t *testing.T) {
	id0 := uuid.MustNew()
	id1 := uuid.MustNew()

	// first signal batch, 2 rows: both chunks of read0.
	sigRec := buildSignalBatch(t, id0, [][]int16{{1, 2, 3}, {4, 5}})
	// append read1's chunk into a second signal record to keep global
	// row ids spanning more than one signal batch, exercising
	// signalTable.locate's cross-batch lookup.
	sigRec2 := buildSignalBatch(t, id1, [][]int16{{6, 7, 8, 9}})
	defer sigRec.Release()
	defer sigRec2.Release()

	row0 := migration.Row{ReadID: id0, SignalRows: []uint64{0, 1}, NumSamples: 5}
	row1 := migration.Row{ReadID: id1, SignalRows: []uint64{2}, NumSamples: 4}

	batches := [][]migration.Row{{row0}, {row1}}

	l := New(nil, []arrow.Record{sigRec, sigRec2}, batches, nil, Samples, 2, 4)
	defer l.Close()

	b0, err := l.ReleaseNextBatch(5 * time.Second)
	if err != nil {
		t.Fatalf("ReleaseNextBatch(0): %v", err)
	}
	if b0 == nil || b0.BatchIndex != 0 {
		t.Fatalf("expected batch 0 first, got %+v", b0)
	}
	if len(b0.Reads) != 1 || b0.Reads[0].SampleCount != 5 {
		t.Fatalf("batch 0 reads = %+v", b0.Reads)
	}
	want0 := []int16{1, 2, 3, 4, 5}
	if !int16sEqual(b0.Reads[0].Samples, want0) {
		t.Fatalf("batch 0 samples = %v, want %v", b0.Reads[0].Samples, want0)
	}

	b1, err := l.ReleaseNextBatch(5 * time.Second)
	if err != nil {
		t.Fatalf("ReleaseNextBatch(1): %v", err)
	}
	if b1 == nil || b1.BatchIndex != 1 {
		t.Fatalf("expected batch 1 second, got %+v", b1)
	}
	want1 := []int16{6, 7, 8, 9}
	if !int16sEqual(b1.Reads[0].Samples, want1) {
		t.Fatalf("batch 1 samples = %v, want %v", b1.Reads[0].Samples, want1)
	}

	b2, err := l.ReleaseNextBatch(time.Second)
	if err != nil || b2 != nil {
		t.Fatalf("expected clean exhaustion, got %+v, err=%v", b2, err)
	}
}

func TestLoaderVBZSignalDecode(t *testing.T) {
	id0 := uuid.MustNew()
	alloc := memory.NewGoAllocator()
	sb := builder.NewSignalBuilder(true, alloc)
	defer sb.Release()
	if err := sb.AppendUncompressed(id0, []int16{10, 20, 30, -5, -6}); err != nil {
		t.Fatalf("AppendUncompressed: %v", err)
	}
	rec := sb.Finish().NewRecord()
	defer rec.Release()

	sigRec := roundTripRecord(t, rec, true)
	defer sigRec.Release()

	row0 := migration.Row{ReadID: id0, SignalRows: []uint64{0}, NumSamples: 5}
	batches := [][]migration.Row{{row0}}

	l := New(nil, []arrow.Record{sigRec}, batches, nil, Samples, 1, 1)
	defer l.Close()

	b, err := l.ReleaseNextBatch(5 * time.Second)
	if err != nil {
		t.Fatalf("ReleaseNextBatch: %v", err)
	}
	if b == nil || len(b.Reads) != 1 {
		t.Fatalf("got %+v", b)
	}
	want := []int16{10, 20, 30, -5, -6}
	if !int16sEqual(b.Reads[0].Samples, want) {
		t.Fatalf("vbz samples = %v, want %v", b.Reads[0].Samples, want)
	}
}

func TestLoaderNoSamplesModeSkipsDecode(t *testing.T) {
	id0 := uuid.MustNew()
	row0 := migration.Row{ReadID: id0, SignalRows: []uint64{999}, NumSamples: 42}
	batches := [][]migration.Row{{row0}}

	l := New(nil, nil, batches, nil, NoSamples, 1, 1)
	defer l.Close()

	b, err := l.ReleaseNextBatch(5 * time.Second)
	if err != nil {
		t.Fatalf("ReleaseNextBatch: %v", err)
	}
	if b == nil || len(b.Reads) != 1 {
		t.Fatalf("got %+v", b)
	}
	if b.Reads[0].SampleCount != 42 || b.Reads[0].Samples != nil {
		t.Fatalf("NoSamples mode should skip signal-table access entirely: %+v", b.Reads[0])
	}
}

func int16sEqual(a, b []int16) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
