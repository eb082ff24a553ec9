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

package pod5

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/nanoporetech/pod5/builder"
	"github.com/nanoporetech/pod5/container"
	"github.com/nanoporetech/pod5/loader"
	"github.com/nanoporetech/pod5/migration"
	"github.com/nanoporetech/pod5/schema"
	"github.com/nanoporetech/pod5/table"
	"github.com/nanoporetech/pod5/uuid"
)

// TestRoundTrip exercises scenario S2: write a file with several reads
// whose signal spans more than one signal-table batch, then read it
// back through the facade and check every count and read id agree.
func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "round-trip.pod5")

	w, err := Create(path, WriterOptions{
		MaxSignalChunkSize:    20480,
		SignalTableBatchSize:  5,
		ReadTableBatchSize:    10,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := w.AddRunInfo(RunInfo{AcquisitionID: "run-0", SampleRate: 4000}); err != nil {
		t.Fatalf("AddRunInfo: %v", err)
	}

	const numReads = 10
	ids := make([]uuid.Uuid, numReads)
	samples := make([]int16, 100000)
	for i := range samples {
		samples[i] = int16(i % 30000)
	}
	for i := 0; i < numReads; i++ {
		id, err := w.AddRead(ReadInput{
			Samples:    samples,
			ReadNumber: uint32(i),
			RunInfo:    "run-0",
		})
		if err != nil {
			t.Fatalf("AddRead(%d): %v", i, err)
		}
		ids[i] = id
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if r.NumReadBatches() == 0 {
		t.Fatal("expected at least one read record batch")
	}
	batches, err := r.Rows()
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	var got []uuid.Uuid
	for _, b := range batches {
		for _, row := range b {
			got = append(got, row.ReadID)
			if row.NumSamples != uint64(len(samples)) {
				t.Fatalf("read %s: NumSamples = %d, want %d", row.ReadID, row.NumSamples, len(samples))
			}
			if row.RunInfo != "run-0" {
				t.Fatalf("read %s: RunInfo = %q, want run-0", row.ReadID, row.RunInfo)
			}
		}
	}
	if len(got) != numReads {
		t.Fatalf("got %d reads back, want %d", len(got), numReads)
	}

	runInfos, err := r.RunInfoRows()
	if err != nil {
		t.Fatalf("RunInfoRows: %v", err)
	}
	if len(runInfos) != 1 || runInfos[0].AcquisitionID != "run-0" {
		t.Fatalf("RunInfoRows = %+v, want one row with AcquisitionID run-0", runInfos)
	}

	res, err := r.SearchReadIDs(ids[:3])
	if err != nil {
		t.Fatalf("SearchReadIDs: %v", err)
	}
	if res.FindSuccessCount != 3 {
		t.Fatalf("FindSuccessCount = %d, want 3", res.FindSuccessCount)
	}

	sl, err := r.NewSignalLoader(nil, loader.Samples, 2, 4)
	if err != nil {
		t.Fatalf("NewSignalLoader: %v", err)
	}
	total := 0
	for {
		batch, err := sl.ReleaseNextBatch(0)
		if err != nil {
			t.Fatalf("ReleaseNextBatch: %v", err)
		}
		if batch == nil {
			break
		}
		for _, rd := range batch.Reads {
			total += len(rd.Samples)
		}
	}
	if total != numReads*len(samples) {
		t.Fatalf("loader delivered %d samples total, want %d", total, numReads*len(samples))
	}
}

// TestOpenMigratesV0 exercises scenario S5: a hand-assembled v0 read
// table, embedded directly into a container the way container.Writer
// would, is reported at the current read table version once Open
// returns.
func TestOpenMigratesV0(t *testing.T) {
	alloc := memory.NewGoAllocator()
	path := filepath.Join(t.TempDir(), "v0.pod5")

	sigMeta := table.BuildMetadata("file-id", "test", "0.0.1")
	sigW, err := table.NewWriter(schema.SignalTable(false).ArrowFields(0), sigMeta, alloc)
	if err != nil {
		t.Fatalf("signal NewWriter: %v", err)
	}
	sb := builder.NewSignalBuilder(false, alloc)
	readID := uuid.MustNew()
	if err := sb.AppendUncompressed(readID, []int16{1, 2, 3, 4, 5}); err != nil {
		t.Fatalf("AppendUncompressed: %v", err)
	}
	sigRec := sb.Finish().NewRecord()
	if err := sigW.WriteRecord(sigRec); err != nil {
		t.Fatalf("signal WriteRecord: %v", err)
	}
	sigRec.Release()
	sb.Release()
	sigBytes, err := sigW.Close()
	if err != nil {
		t.Fatalf("signal Close: %v", err)
	}

	runInfoMeta := table.BuildMetadata("file-id", "test", "0.0.1")
	riW, err := table.NewWriter(schema.RunInfoTable.ArrowFields(0), runInfoMeta, alloc)
	if err != nil {
		t.Fatalf("run_info NewWriter: %v", err)
	}
	riBytes, err := riW.Close()
	if err != nil {
		t.Fatalf("run_info Close: %v", err)
	}

	readsMeta := table.BuildMetadata("file-id", "test", "0.0.1")
	readsW, err := table.NewWriter(schema.ReadTable.ArrowFields(schema.ReadTableV0), readsMeta, alloc)
	if err != nil {
		t.Fatalf("reads NewWriter: %v", err)
	}
	tb := builder.New(schema.ReadTable, schema.ReadTableV0, alloc)
	row := migration.DefaultRowV0()
	row.ReadID = readID
	row.SignalRows = []uint64{0}
	if err := migration.EncodeRow(tb, row); err != nil {
		t.Fatalf("encode v0 row: %v", err)
	}
	rec := tb.NewRecord()
	if err := readsW.WriteRecord(rec); err != nil {
		t.Fatalf("reads WriteRecord: %v", err)
	}
	rec.Release()
	tb.Release()
	readsBytes, err := readsW.Close()
	if err != nil {
		t.Fatalf("reads Close: %v", err)
	}

	cf, err := os.Create(path)
	if err != nil {
		t.Fatalf("os.Create: %v", err)
	}
	defer cf.Close()
	cw, err := container.NewWriter(cf, "file-id", "test", "0.0.1")
	if err != nil {
		t.Fatalf("container.NewWriter: %v", err)
	}
	if err := cw.WriteSection(container.ContentSignalTable, sigBytes); err != nil {
		t.Fatalf("WriteSection(signal): %v", err)
	}
	if err := cw.WriteSection(container.ContentRunInfoTable, riBytes); err != nil {
		t.Fatalf("WriteSection(run_info): %v", err)
	}
	if err := cw.WriteSection(container.ContentReadsTable, readsBytes); err != nil {
		t.Fatalf("WriteSection(reads): %v", err)
	}
	if err := cw.Close(); err != nil {
		t.Fatalf("container Close: %v", err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if got, want := r.ReadTableVersion(), schema.ReadTable.Current; got != want {
		t.Fatalf("ReadTableVersion = %d, want %d (current)", got, want)
	}
	batches, err := r.Rows()
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if len(batches) != 1 || len(batches[0]) != 1 {
		t.Fatalf("unexpected batch shape: %+v", batches)
	}
	got := batches[0][0]
	if got.ReadID != readID {
		t.Fatalf("ReadID = %s, want %s", got.ReadID, readID)
	}
	if got.NumSamples != 5 {
		t.Fatalf("NumSamples = %d, want 5 (migrated v0->current from signal row length)", got.NumSamples)
	}
}
