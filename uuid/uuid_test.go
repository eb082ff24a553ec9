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

package uuid

import "testing"

func TestParseRoundTrip(t *testing.T) {
	cases := []string{
		"6ba7b810-9dad-11d1-80b4-00c04fd430c8",
		"6BA7B810-9DAD-11D1-80B4-00C04FD430C8",
		"{6ba7b810-9dad-11d1-80b4-00c04fd430c8}",
	}
	for _, s := range cases {
		u, ok := Parse(s)
		if !ok {
			t.Fatalf("Parse(%q): expected ok", s)
		}
		if got := u.String(); got != "6ba7b810-9dad-11d1-80b4-00c04fd430c8" {
			t.Fatalf("Parse(%q).String() = %q", s, got)
		}
	}
}

func TestParseInvalid(t *testing.T) {
	cases := []string{
		"",
		"not-a-uuid",
		"6ba7b810-9dad-11d1-80b4-00c04fd430c",   // too short
		"6ba7b810-9dad-11d1-80b4-00c04fd430c8x", // trailing junk
		"zzzzzzzz-9dad-11d1-80b4-00c04fd430c8",  // bad hex
	}
	for _, s := range cases {
		if u, ok := Parse(s); ok || u != Nil {
			t.Fatalf("Parse(%q): expected failure, got %v, %v", s, u, ok)
		}
	}
}

func TestCompareOrder(t *testing.T) {
	a := Uuid{0x00}
	b := Uuid{0x01}
	if a.Compare(b) >= 0 {
		t.Fatal("expected a < b")
	}
	if b.Compare(a) <= 0 {
		t.Fatal("expected b > a")
	}
	if a.Compare(a) != 0 {
		t.Fatal("expected a == a")
	}
	if !a.Less(b) || b.Less(a) {
		t.Fatal("Less disagrees with Compare")
	}
}

func TestHashStable(t *testing.T) {
	u := MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	h1 := u.Hash()
	h2 := u.Hash()
	if h1 != h2 {
		t.Fatal("Hash is not deterministic")
	}
	other := MustParse("6ba7b811-9dad-11d1-80b4-00c04fd430c8")
	if u.Hash() == other.Hash() {
		t.Fatal("Hash collided on adjacent uuids (statistically unexpected)")
	}
}

func TestNewSetsVersionAndVariant(t *testing.T) {
	for i := 0; i < 100; i++ {
		u := MustNew()
		if u[6]&0xf0 != 0x40 {
			t.Fatalf("version nibble not set: %x", u[6])
		}
		if u[8]&0xc0 != 0x80 {
			t.Fatalf("variant bits not set: %x", u[8])
		}
	}
}

func TestIsNil(t *testing.T) {
	if !Nil.IsNil() {
		t.Fatal("Nil.IsNil() should be true")
	}
	u := MustNew()
	if u.IsNil() {
		t.Fatal("random uuid should not be nil")
	}
}
