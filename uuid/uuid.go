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

// Package uuid implements the fixed 128-bit read and run identifiers used
// throughout the container format.
//
// Uuid is a value type (unlike the reader/writer graph in package
// container, nothing here is reference-counted): it can be copied,
// compared and hashed like any other fixed-size Go value. Parsing and
// canonical formatting are delegated to google/uuid, which already
// implements the accepted textual grammar; this package adds the
// fixed-size value semantics, the "never fails, reports ok=false"
// parse contract and the byte-order total order that the container
// format relies on for sorted read-id indices.
package uuid

import (
	"crypto/rand"

	"github.com/dchest/siphash"
	guuid "github.com/google/uuid"
)

// Uuid is a 128-bit identifier, stored in the same byte layout as RFC 4122.
type Uuid [16]byte

// Nil is the all-zero Uuid.
var Nil Uuid

// siphash keys used to mix the two 64-bit halves of a Uuid into a single
// well-distributed 64-bit hash. Fixed and arbitrary: Hash is not meant to
// be collision-resistant, only well-mixed for in-process hash tables.
const (
	hashKey0 = 0x9ae16a3b2f90404f
	hashKey1 = 0xc2b2ae3d27d4eb4f
)

// FromBytes constructs a Uuid from a 16-byte slice. It panics if b is not
// exactly 16 bytes long, mirroring the precondition the original places on
// its "construct from iterator range" constructor.
func FromBytes(b []byte) Uuid {
	if len(b) != 16 {
		panic("uuid: FromBytes requires exactly 16 bytes")
	}
	var u Uuid
	copy(u[:], b)
	return u
}

// Parse parses s, which may be in plain (`xxxxxxxx-xxxx-...`) or
// braced (`{xxxxxxxx-xxxx-...}`) form, case-insensitively. On any
// malformed input it returns the zero Uuid and ok=false; it never panics
// and never returns an error value, matching the "parse returns none"
// contract of the original.
func Parse(s string) (u Uuid, ok bool) {
	g, err := guuid.Parse(s)
	if err != nil {
		return Nil, false
	}
	return Uuid(g), true
}

// MustParse is like Parse but panics on malformed input. It exists for
// tests and constant-like initialization, not for parsing untrusted data.
func MustParse(s string) Uuid {
	u, ok := Parse(s)
	if !ok {
		panic("uuid: MustParse: invalid uuid " + s)
	}
	return u
}

// String formats u in canonical lowercase hyphenated form.
func (u Uuid) String() string {
	return guuid.UUID(u).String()
}

// IsNil reports whether u is the all-zero Uuid.
func (u Uuid) IsNil() bool {
	return u == Nil
}

// Compare returns -1, 0 or 1 according to the lexicographic byte-order
// comparison of u and v. This is the order the read-id index relies on
// for its sorted (uuid, batch, row) arrays.
func (u Uuid) Compare(v Uuid) int {
	for i := range u {
		if u[i] != v[i] {
			if u[i] < v[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Less reports whether u sorts strictly before v in byte order. It is
// provided so Uuid can be used directly with slices.SortFunc and similar
// ordered-comparison helpers.
func (u Uuid) Less(v Uuid) bool {
	return u.Compare(v) < 0
}

// Equal reports byte-for-byte equality.
func (u Uuid) Equal(v Uuid) bool {
	return u == v
}

// Hash returns a 64-bit mix of the two halves of u, suitable for
// in-process hash tables (not for cross-process or persisted hashing).
func (u Uuid) Hash() uint64 {
	return siphash.Hash(hashKey0, hashKey1, u[:])
}

// New draws 16 random bytes and sets the variant and version bits so the
// result looks like an RFC 4122 version-4 (random) UUID:
//
//	byte 6: version nibble set to 0100xxxx
//	byte 8: variant bits set to 10xxxxxx
func New() (Uuid, error) {
	var u Uuid
	if _, err := rand.Read(u[:]); err != nil {
		return Nil, err
	}
	u[6] = (u[6] & 0x0f) | 0x40
	u[8] = (u[8] & 0x3f) | 0x80
	return u, nil
}

// MustNew is like New but panics if the system RNG fails.
func MustNew() Uuid {
	u, err := New()
	if err != nil {
		panic(err)
	}
	return u
}
