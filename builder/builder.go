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

// Package builder implements the type-erased columnar append machinery of
// spec.md §4.5 ("Field builders") and §4.6 ("Signal builders") on top of
// arrow/array's RecordBuilder, plus the tagged-union signal builder
// spec.md §9 asks for in place of the original's builder-subclass
// hierarchy.
package builder

import (
	"math"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/nanoporetech/pod5/errs"
	"github.com/nanoporetech/pod5/schema"
	"github.com/nanoporetech/pod5/uuid"
)

const op = "builder"

// TableBuilder accumulates rows for one record batch of a schema-versioned
// table (spec.md §4.5): it owns an arrow/array.RecordBuilder built from the
// table's ArrowFields at a given version, and knows how to substitute each
// field's declared zero-value default when a caller only supplies some of
// the columns for a row.
type TableBuilder struct {
	table   *schema.Table
	version int
	fields  []schema.Field
	rb      *array.RecordBuilder
}

// New constructs a TableBuilder for t at version, using alloc (typically a
// shared arrow/memory.Allocator owned by the enclosing file writer, per
// spec.md §3's "record-batch objects hold a shared reference to the
// reader's memory pool").
func New(t *schema.Table, version int, alloc memory.Allocator) *TableBuilder {
	fields := t.FieldsAt(version)
	sch := arrow.NewSchema(t.ArrowFields(version), nil)
	return &TableBuilder{
		table:   t,
		version: version,
		fields:  fields,
		rb:      array.NewRecordBuilder(alloc, sch),
	}
}

// Schema returns the physical schema this builder constructs records
// against.
func (b *TableBuilder) Schema() *arrow.Schema { return b.rb.Schema() }

// NumFields returns the number of logical fields at this builder's version.
func (b *TableBuilder) NumFields() int { return len(b.fields) }

// FieldName returns the i'th logical field's column name.
func (b *TableBuilder) FieldName(i int) string { return b.fields[i].Name }

// Field returns the underlying arrow/array.Builder for the i'th logical
// field, for callers that need direct access (e.g. dictionary builders).
func (b *TableBuilder) Field(i int) array.Builder { return b.rb.Field(i) }

// AppendDefault appends the i'th field's declared sentinel default value
// (spec.md §4.5 "missing columns default to the declared sentinel"), used
// by the migration pipeline when back-filling a column that did not exist
// in an older file.
func (b *TableBuilder) AppendDefault(i int) error {
	f := b.fields[i]
	return appendValue(b.rb.Field(i), f.Default)
}

// AppendUUID appends a Uuid value to the i'th field, which must be backed
// by schema.UUIDStorage (a fixed_size_binary(16) column).
func (b *TableBuilder) AppendUUID(i int, u uuid.Uuid) error {
	fb, ok := b.rb.Field(i).(*array.FixedSizeBinaryBuilder)
	if !ok {
		return errs.Errorf(errs.TypeError, op, "field %q is not a fixed_size_binary(16) column", b.fields[i].Name)
	}
	fb.Append(u[:])
	return nil
}

// NewRecord finalizes the accumulated rows into an arrow.Record and resets
// the builder for the next batch, mirroring array.RecordBuilder.NewRecord.
func (b *TableBuilder) NewRecord() arrow.Record { return b.rb.NewRecord() }

// Release releases the underlying column builders' memory.
func (b *TableBuilder) Release() { b.rb.Release() }

// appendValue appends v to the appropriate concrete builder type,
// covering every Go type a schema.Field.Default currently uses.
func appendValue(b array.Builder, v any) error {
	switch bb := b.(type) {
	case *array.Uint8Builder:
		bb.Append(v.(uint8))
	case *array.Uint16Builder:
		bb.Append(v.(uint16))
	case *array.Uint32Builder:
		bb.Append(v.(uint32))
	case *array.Uint64Builder:
		bb.Append(v.(uint64))
	case *array.Int16Builder:
		bb.Append(v.(int16))
	case *array.Int64Builder:
		bb.Append(v.(int64))
	case *array.Float32Builder:
		bb.Append(v.(float32))
	case *array.BinaryDictionaryBuilder:
		s, _ := v.(string)
		return bb.AppendString(s)
	case *array.StringBuilder:
		s, _ := v.(string)
		bb.Append(s)
	case *array.ListBuilder:
		bb.Append(true) // empty list
	default:
		return errs.Errorf(errs.TypeError, op, "no default-append rule for builder type %T", b)
	}
	return nil
}

// NaN32 is the float32 NaN value used as the default for scaling/level
// columns absent in older files (spec.md §3), exported so migration code
// comparing against "is this a defaulted row" doesn't need math.Float32bits
// boilerplate at every call site.
var NaN32 = float32(math.NaN())
