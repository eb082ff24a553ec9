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

package table

import (
	"bytes"
	"testing"

	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/nanoporetech/pod5/builder"
	"github.com/nanoporetech/pod5/schema"
	"github.com/nanoporetech/pod5/uuid"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	alloc := memory.NewGoAllocator()
	fileID := uuid.MustNew().String()

	tb := builder.New(schema.RunInfoTable, 0, alloc)
	defer tb.Release()
	for i := 0; i < tb.NumFields(); i++ {
		switch name := tb.FieldName(i); name {
		case "acquisition_id":
			tb.Field(i).(*array.StringBuilder).Append("acq-0")
		case "acquisition_start_time_ms":
			tb.Field(i).(*array.Int64Builder).Append(0)
		case "adc_min", "adc_max":
			tb.Field(i).(*array.Int16Builder).Append(0)
		case "sample_rate":
			tb.Field(i).(*array.Uint16Builder).Append(4000)
		case "context_tags", "tracking_id":
			tb.Field(i).(*array.ListBuilder).Append(true)
		default:
			t.Fatalf("unexpected run_info field %q", name)
		}
	}

	w, err := NewWriter(schema.RunInfoTable.ArrowFields(0), BuildMetadata(fileID, "pod5-go test harness", schema.CurrentPod5Version), alloc)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	rec := tb.NewRecord()
	if err := w.WriteRecord(rec); err != nil {
		t.Fatalf("WriteRecord: %v", err)
	}
	rec.Release()
	data, err := w.Close()
	if err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := OpenReader(bytes.NewReader(data), alloc)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	if r.FileIdentifier() != fileID {
		t.Errorf("FileIdentifier = %q, want %q", r.FileIdentifier(), fileID)
	}
	if r.Pod5Version() != schema.CurrentPod5Version {
		t.Errorf("Pod5Version = %q, want %q", r.Pod5Version(), schema.CurrentPod5Version)
	}
	if r.NumRecords() != 1 {
		t.Fatalf("NumRecords = %d, want 1", r.NumRecords())
	}
	got, err := r.Record(0)
	if err != nil {
		t.Fatalf("Record(0): %v", err)
	}
	defer got.Release()
	if got.NumRows() != 1 {
		t.Errorf("NumRows = %d, want 1", got.NumRows())
	}
}
