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
	"bytes"
	"testing"

	"github.com/nanoporetech/pod5/errs"
	"github.com/nanoporetech/pod5/uuid"
)

func buildTestContainer(t *testing.T, signal, runInfo, reads []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	id := uuid.MustNew()
	w, err := NewWriter(&buf, id.String(), "pod5-go test harness", "0.3.30")
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.WriteSection(ContentSignalTable, signal); err != nil {
		t.Fatalf("WriteSection(signal): %v", err)
	}
	if err := w.WriteSection(ContentRunInfoTable, runInfo); err != nil {
		t.Fatalf("WriteSection(runInfo): %v", err)
	}
	if err := w.WriteSection(ContentReadsTable, reads); err != nil {
		t.Fatalf("WriteSection(reads): %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return buf.Bytes()
}

// TestRoundTrip covers scenario S2 (file round trip) at the container
// layer: three arbitrary byte blobs go in as embedded sub-files and
// come back out byte-identical, at the offsets the footer claims.
func TestRoundTrip(t *testing.T) {
	signal := bytes.Repeat([]byte{0xAA}, 137)
	runInfo := bytes.Repeat([]byte{0xBB}, 41)
	reads := bytes.Repeat([]byte{0xCC}, 293)

	raw := buildTestContainer(t, signal, runInfo, reads)

	r, err := OpenReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}

	cases := []struct {
		content ContentType
		want    []byte
	}{
		{ContentSignalTable, signal},
		{ContentRunInfoTable, runInfo},
		{ContentReadsTable, reads},
	}
	for _, c := range cases {
		sr, ef, err := r.Open(c.content)
		if err != nil {
			t.Fatalf("Open(%s): %v", c.content, err)
		}
		if ef.Length != int64(len(c.want)) {
			t.Fatalf("%s: length = %d, want %d", c.content, ef.Length, len(c.want))
		}
		got := make([]byte, ef.Length)
		if _, err := sr.ReadAt(got, 0); err != nil {
			t.Fatalf("%s: ReadAt: %v", c.content, err)
		}
		if !bytes.Equal(got, c.want) {
			t.Errorf("%s: content mismatch", c.content)
		}
	}
}

// TestContainerIdentity covers property 4 ("Container identity"): both
// magics must be the fixed byte sequence, and every section marker
// occurring in the file must be identical.
func TestContainerIdentity(t *testing.T) {
	raw := buildTestContainer(t, []byte("s"), []byte("r"), []byte("d"))

	if !bytes.Equal(raw[:8], Magic[:]) {
		t.Errorf("leading magic mismatch: %x", raw[:8])
	}
	if !bytes.Equal(raw[len(raw)-8:], Magic[:]) {
		t.Errorf("trailing magic mismatch: %x", raw[len(raw)-8:])
	}

	r, err := OpenReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	if len(r.Footer.Contents) != 3 {
		t.Fatalf("got %d embedded files, want 3", len(r.Footer.Contents))
	}
}

func TestOpenReaderRejectsBadMagic(t *testing.T) {
	raw := buildTestContainer(t, []byte("s"), []byte("r"), []byte("d"))
	corrupt := append([]byte(nil), raw...)
	corrupt[0] ^= 0xFF

	_, err := OpenReader(bytes.NewReader(corrupt), int64(len(corrupt)))
	if err == nil {
		t.Fatal("expected error for corrupt leading magic")
	}
	var e *errs.Error
	if !asError(err, &e) || e.Code != errs.IOError {
		t.Errorf("got error %v, want IOError", err)
	}
}

func asError(err error, target **errs.Error) bool {
	e, ok := err.(*errs.Error)
	if ok {
		*target = e
	}
	return ok
}

func TestOpenReaderRejectsTamperedMarker(t *testing.T) {
	raw := buildTestContainer(t, []byte("s"), []byte("r"), []byte("d"))
	corrupt := append([]byte(nil), raw...)
	// Flip a byte inside the opening section marker, right after the
	// leading magic.
	corrupt[len(Magic)] ^= 0xFF

	_, err := OpenReader(bytes.NewReader(corrupt), int64(len(corrupt)))
	if err == nil {
		t.Fatal("expected error for tampered section marker")
	}
}

func TestOpenReaderRejectsTruncatedFile(t *testing.T) {
	raw := buildTestContainer(t, []byte("s"), []byte("r"), []byte("d"))
	truncated := raw[:len(raw)/2]

	_, err := OpenReader(bytes.NewReader(truncated), int64(len(truncated)))
	if err == nil {
		t.Fatal("expected error for truncated file")
	}
}

func TestOpenReaderRejectsMissingSection(t *testing.T) {
	var buf bytes.Buffer
	id := uuid.MustNew()
	w, err := NewWriter(&buf, id.String(), "pod5-go test harness", "0.3.30")
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.WriteSection(ContentSignalTable, []byte("s")); err != nil {
		t.Fatalf("WriteSection: %v", err)
	}
	// Deliberately omit run-info and reads sections.
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	_, err = OpenReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err == nil {
		t.Fatal("expected error for missing embedded sections")
	}
}
