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

// Package schema declares the logical field registries for the three
// embedded tables (signal, run-info, reads) and the machinery to match
// a physical Arrow schema against them: spec.md §4.5's "schema
// descriptions" and "FieldLocations" concepts.
//
// Each table's fields are declared once, in order, tagged with the
// table version that introduced (and, if applicable, removed) them.
// Opening an older file does not require a different registry: the
// reader locates whichever of the *current* fields are physically
// present by name and lets the migration package fill in the rest.
package schema

import (
	"github.com/apache/arrow/go/v17/arrow"

	"github.com/nanoporetech/pod5/errs"
)

const op = "schema"

// Extension name constants for the two custom logical types this
// format needs. Arrow's own ExtensionType carries a process-global
// registry (arrow.RegisterExtensionType); spec.md §9 explicitly asks
// for that to be replaced with explicit, non-global construction, so
// here an extension is nothing more than a storage type plus a name
// carried in field metadata — no registration step, no global state.
const (
	ExtensionUUID = "minknow.uuid"
	ExtensionVBZ  = "minknow.vbz"
)

// ExtensionMetadata returns the single-entry field metadata Arrow uses
// to mark a column as carrying one of this format's extension types.
func ExtensionMetadata(name string) arrow.Metadata {
	return arrow.NewMetadata([]string{"ARROW:extension:name"}, []string{name})
}

// UUIDStorage and VBZStorage are the physical Arrow storage types
// backing the two extension types (spec.md §6).
var (
	UUIDStorage = &arrow.FixedSizeBinaryType{ByteWidth: 16}
	VBZStorage  = arrow.BinaryTypes.LargeBinary
)

// Field describes one logical column of a table across its version
// history.
type Field struct {
	Name string
	Type arrow.DataType
	// AddedIn is the table version that introduced this field.
	AddedIn int
	// RemovedIn is the table version that dropped this field, or 0 if
	// it is still present in the latest version.
	RemovedIn int
	// Default is the sentinel value substituted when a physical
	// column is absent (because the file predates AddedIn). Its
	// dynamic type must match Type's Go representation.
	Default any
}

// presentAt reports whether f is part of the logical schema at the
// given table version.
func (f Field) presentAt(version int) bool {
	if version < f.AddedIn {
		return false
	}
	return f.RemovedIn == 0 || version < f.RemovedIn
}

// Table is an ordered field registry for one of the three embedded
// tables, plus the version that is "latest" for newly written files.
type Table struct {
	Name    string
	Fields  []Field
	Current int
}

// FieldsAt returns the fields that exist at the given table version, in
// declaration order.
func (t *Table) FieldsAt(version int) []Field {
	out := make([]Field, 0, len(t.Fields))
	for _, f := range t.Fields {
		if f.presentAt(version) {
			out = append(out, f)
		}
	}
	return out
}

// ArrowFields returns the arrow.Field list for the fields present at
// version, the shape table.NewWriter is given when constructing a
// fresh file at the table's Current version.
func (t *Table) ArrowFields(version int) []arrow.Field {
	fs := t.FieldsAt(version)
	out := make([]arrow.Field, len(fs))
	for i, f := range fs {
		out[i] = arrow.Field{Name: f.Name, Type: f.Type, Nullable: false}
	}
	return out
}

// FieldLocations maps each logical field (by its index into
// Table.FieldsAt(version)) to the physical column index it was found
// at in an opened record-batch schema, or -1 if the column is missing
// and the field's Default should be used instead.
type FieldLocations struct {
	Table    *Table
	Version  int
	fields   []Field
	physical []int // parallel to fields; -1 == not present
}

// Fields returns the logical fields this FieldLocations was built for,
// in the same order as Index/Physical.
func (l *FieldLocations) Fields() []Field { return l.fields }

// Physical returns the physical column index for the i'th logical
// field, or -1 if it must be defaulted.
func (l *FieldLocations) Physical(i int) int { return l.physical[i] }

// Locate matches t's fields at version against phys (an opened
// record-batch file's physical schema) by name. Unknown physical
// columns are ignored, as spec.md §4.5 requires; missing logical
// columns resolve to Physical(i) == -1 so the caller can apply the
// field's Default.
func Locate(t *Table, version int, phys *arrow.Schema) (*FieldLocations, error) {
	if version > t.Current {
		return nil, errs.Errorf(errs.Invalid, op, "table %q: unsupported version %d (latest known is %d)", t.Name, version, t.Current)
	}
	byName := make(map[string]int, phys.NumFields())
	for i, f := range phys.Fields() {
		byName[f.Name] = i
	}
	fields := t.FieldsAt(version)
	loc := &FieldLocations{Table: t, Version: version, fields: fields, physical: make([]int, len(fields))}
	for i, f := range fields {
		if idx, ok := byName[f.Name]; ok {
			loc.physical[i] = idx
		} else {
			loc.physical[i] = -1
		}
	}
	return loc, nil
}
