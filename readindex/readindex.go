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

// Package readindex implements spec.md §4.7's read-id index:
// search_for_read_ids, a merge-join between a sorted query of read ids
// and a once-built, cached per-file sorted (uuid, batch, row) array.
package readindex

import (
	"golang.org/x/exp/slices"

	"github.com/apache/arrow/go/v17/arrow/array"

	"github.com/nanoporetech/pod5/errs"
	"github.com/nanoporetech/pod5/table"
	"github.com/nanoporetech/pod5/uuid"
)

const op = "readindex"

// entry is one row of the read table, keyed by its read_id.
type entry struct {
	id    uuid.Uuid
	batch int
	row   int
}

// Index is a read table's read_id -> (batch, row) lookup, built once
// and reused across every Search call against the same reader (spec.md
// §4.7: "build a per-batch sorted list ... once and cache").
type Index struct {
	entries []entry
	batches int
}

// Build walks every record batch of reads and constructs the sorted
// index. Callers typically build this once per opened file and hold
// onto it for the reader's lifetime.
func Build(reads *table.Reader) (*Index, error) {
	n := reads.NumRecords()
	idx := &Index{batches: n}
	for b := 0; b < n; b++ {
		rec, err := reads.Record(b)
		if err != nil {
			return nil, err
		}
		col := -1
		for i, f := range rec.Schema().Fields() {
			if f.Name == "read_id" {
				col = i
				break
			}
		}
		if col < 0 {
			rec.Release()
			return nil, errs.Errorf(errs.Invalid, op, "read table batch %d missing read_id column", b)
		}
		fb, ok := rec.Column(col).(*array.FixedSizeBinary)
		if !ok {
			rec.Release()
			return nil, errs.Errorf(errs.TypeError, op, "read_id column is not fixed_size_binary")
		}
		for row := 0; row < int(rec.NumRows()); row++ {
			idx.entries = append(idx.entries, entry{id: uuid.FromBytes(fb.Value(row)), batch: b, row: row})
		}
		rec.Release()
	}
	slices.SortFunc(idx.entries, func(a, b entry) int { return a.id.Compare(b.id) })
	return idx, nil
}

// Result is the outcome of one Search call.
type Result struct {
	// Counts holds one entry per batch in the indexed table, the
	// number of query ids resolved to that batch.
	Counts []int
	// BatchRows is Counts-grouped: for each batch, in ascending batch
	// order, the row indices that matched, themselves sorted
	// ascending within the batch (spec.md §8 property 7).
	BatchRows [][]int
	// FindSuccessCount is the total number of query ids that resolved
	// to an entry; len(query) - FindSuccessCount is the miss count.
	FindSuccessCount int
}

// Search performs the merge-join described in spec.md §4.7: the query
// is stable-sorted by uuid (ties keep their original relative order,
// though Index guarantees unique ids so this only matters for
// duplicate query entries), then walked alongside the cached sorted
// index. Missing ids contribute nothing to any batch's count.
func (idx *Index) Search(query []uuid.Uuid) Result {
	type qitem struct {
		id   uuid.Uuid
		orig int
	}
	qs := make([]qitem, len(query))
	for i, id := range query {
		qs[i] = qitem{id: id, orig: i}
	}
	slices.SortStableFunc(qs, func(a, b qitem) int { return a.id.Compare(b.id) })

	res := Result{
		Counts:    make([]int, idx.batches),
		BatchRows: make([][]int, idx.batches),
	}

	i, j := 0, 0
	for i < len(qs) && j < len(idx.entries) {
		switch {
		case qs[i].id.Less(idx.entries[j].id):
			i++
		case idx.entries[j].id.Less(qs[i].id):
			j++
		default:
			e := idx.entries[j]
			for i < len(qs) && qs[i].id.Equal(e.id) {
				res.BatchRows[e.batch] = append(res.BatchRows[e.batch], e.row)
				res.FindSuccessCount++
				i++
			}
			j++
		}
	}
	for b := range res.BatchRows {
		slices.Sort(res.BatchRows[b])
		res.Counts[b] = len(res.BatchRows[b])
	}
	return res
}
