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

package readindex

import (
	"bytes"
	"testing"

	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/nanoporetech/pod5/migration"
	"github.com/nanoporetech/pod5/table"
	"github.com/nanoporetech/pod5/uuid"
)

func buildReadsTable(t *testing.T, ids []uuid.Uuid, batchSize int, alloc memory.Allocator) *table.Reader {
	t.Helper()
	rows := make([]migration.Row, len(ids))
	for i, id := range ids {
		row := migration.DefaultRowV0()
		row.ReadID = id
		rows[i] = row
	}
	res := &migration.Result{Rows: rows}
	b, err := res.Write("file-id", "test", batchSize, alloc)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	r, err := table.OpenReader(bytes.NewReader(b), alloc)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	return r
}

func TestSearchFindsEveryIDAcrossBatches(t *testing.T) {
	alloc := memory.NewGoAllocator()
	ids := make([]uuid.Uuid, 10)
	for i := range ids {
		ids[i] = uuid.MustNew()
	}
	// batchSize 3 over 10 rows forces 4 record batches (3,3,3,1), so the
	// index must resolve hits against more than one batch.
	reads := buildReadsTable(t, ids, 3, alloc)

	idx, err := Build(reads)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	res := idx.Search(ids)
	if res.FindSuccessCount != len(ids) {
		t.Fatalf("FindSuccessCount = %d, want %d", res.FindSuccessCount, len(ids))
	}
	if len(res.Counts) != reads.NumRecords() {
		t.Fatalf("Counts has %d entries, want %d batches", len(res.Counts), reads.NumRecords())
	}

	total := 0
	for b, rows := range res.BatchRows {
		total += len(rows)
		if res.Counts[b] != len(rows) {
			t.Fatalf("batch %d: Counts = %d, want %d", b, res.Counts[b], len(rows))
		}
		for i := 1; i < len(rows); i++ {
			if rows[i-1] >= rows[i] {
				t.Fatalf("batch %d: rows not strictly ascending: %v", b, rows)
			}
		}
	}
	if total != len(ids) {
		t.Fatalf("total matched rows = %d, want %d", total, len(ids))
	}
}

func TestSearchReportsMisses(t *testing.T) {
	alloc := memory.NewGoAllocator()
	present := uuid.MustNew()
	missing := uuid.MustNew()
	reads := buildReadsTable(t, []uuid.Uuid{present}, 0, alloc)

	idx, err := Build(reads)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	res := idx.Search([]uuid.Uuid{present, missing})
	if res.FindSuccessCount != 1 {
		t.Fatalf("FindSuccessCount = %d, want 1", res.FindSuccessCount)
	}
	if len(res.BatchRows) != 1 || len(res.BatchRows[0]) != 1 || res.BatchRows[0][0] != 0 {
		t.Fatalf("BatchRows = %v, want [[0]]", res.BatchRows)
	}
}

func TestSearchWithDuplicateQueryIDs(t *testing.T) {
	alloc := memory.NewGoAllocator()
	ids := []uuid.Uuid{uuid.MustNew(), uuid.MustNew(), uuid.MustNew()}
	reads := buildReadsTable(t, ids, 0, alloc)

	idx, err := Build(reads)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	query := []uuid.Uuid{ids[1], ids[1], ids[0]}
	res := idx.Search(query)
	if res.FindSuccessCount != len(query) {
		t.Fatalf("FindSuccessCount = %d, want %d", res.FindSuccessCount, len(query))
	}
	// ids[1]'s row (1) is matched twice (once per duplicate query entry)
	// and ids[0]'s row (0) once, so batch 0 ends up with 3 entries total.
	want := []int{0, 1, 1}
	if len(res.BatchRows[0]) != len(want) {
		t.Fatalf("batch 0 rows = %v, want %v", res.BatchRows[0], want)
	}
	for i, v := range want {
		if res.BatchRows[0][i] != v {
			t.Fatalf("batch 0 rows = %v, want %v", res.BatchRows[0], want)
		}
	}
}
