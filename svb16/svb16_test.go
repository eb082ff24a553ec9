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

package svb16

import (
	"math/rand"
	"testing"
)

// S1 from spec.md §8: ten consecutive small negative values.
func TestScenarioS1(t *testing.T) {
	xs := make([]int16, 10)
	for i := range xs {
		xs[i] = int16(-20000 + i)
	}
	enc := Encode(nil, xs, 0, Options{Delta: true, ZigZag: true})
	if len(enc) != KeyLength(len(xs))+len(xs)+1 {
		// the first value is a delta of -20000 from the predecessor 0 and
		// takes two bytes; the other nine are deltas of 1, which zigzag
		// keeps to one byte each.
		t.Fatalf("expected one wide value and nine narrow ones, got %d bytes", len(enc))
	}
	out := make([]int16, len(xs))
	n, err := Decode(out, enc, len(xs), 0, Options{Delta: true, ZigZag: true})
	if err != nil {
		t.Fatal(err)
	}
	if n != len(enc) {
		t.Fatalf("consumed %d, want %d", n, len(enc))
	}
	for i := range xs {
		if out[i] != xs[i] {
			t.Fatalf("out[%d] = %d, want %d", i, out[i], xs[i])
		}
	}
}

func allOptions() []Options {
	return []Options{
		{Delta: false, ZigZag: false},
		{Delta: false, ZigZag: true},
		{Delta: true, ZigZag: false},
		{Delta: true, ZigZag: true},
	}
}

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, opts := range allOptions() {
		for _, n := range []int{0, 1, 7, 8, 9, 16, 17, 100, 1000} {
			xs := make([]int16, n)
			for i := range xs {
				xs[i] = int16(rng.Intn(1<<16) - 1<<15)
			}
			enc := Encode(nil, xs, 0, opts)
			if len(enc) > MaxEncodedLength(n) {
				t.Fatalf("opts=%+v n=%d: encoded length %d exceeds max %d", opts, n, len(enc), MaxEncodedLength(n))
			}
			out := make([]int16, n)
			if _, err := Decode(out, enc, n, 0, opts); err != nil {
				t.Fatalf("opts=%+v n=%d: %v", opts, n, err)
			}
			for i := range xs {
				if out[i] != xs[i] {
					t.Fatalf("opts=%+v n=%d: out[%d]=%d want %d", opts, n, i, out[i], xs[i])
				}
			}
		}
	}
}

// TestScalarVectorAgree forces both decode paths over the same encoded
// input and checks they produce byte-for-byte identical output,
// including across the lane boundary where decodeVector's fast path and
// fallback path meet.
func TestScalarVectorAgree(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	for _, opts := range allOptions() {
		for _, n := range []int{0, 1, 15, 16, 17, 31, 32, 33, 200} {
			xs := make([]int16, n)
			for i := range xs {
				xs[i] = int16(rng.Intn(1<<16) - 1<<15)
			}
			enc := Encode(nil, xs, 5, opts)
			keyLen := KeyLength(n)
			scalarOut := make([]int16, n)
			decodeScalar(scalarOut, enc[:keyLen], enc[keyLen:], 5, opts)
			vectorOut := make([]int16, n)
			decodeVector(vectorOut, enc[:keyLen], enc[keyLen:], 5, opts)
			for i := range scalarOut {
				if scalarOut[i] != vectorOut[i] {
					t.Fatalf("opts=%+v n=%d i=%d: scalar=%d vector=%d", opts, n, i, scalarOut[i], vectorOut[i])
				}
			}
		}
	}
}

func TestDecodeRejectsTruncatedInput(t *testing.T) {
	xs := []int16{1, 2, 3, 400, 500}
	opts := Options{Delta: true, ZigZag: true}
	enc := Encode(nil, xs, 0, opts)
	for l := 0; l < len(enc); l++ {
		out := make([]int16, len(xs))
		_, err := Decode(out, enc[:l], len(xs), 0, opts)
		if err == nil {
			t.Fatalf("expected error decoding truncated input of length %d (full length %d)", l, len(enc))
		}
	}
}

// FuzzDecodeRobustness is property 3 from spec.md §8: for any input byte
// sequence and any declared output length within bounds, Decode must
// either produce a defined-length output or a non-nil error; it must
// never panic or read/write out of bounds (the race/bounds checker in
// `go test -fuzz` together with `-race` is what actually exercises
// that guarantee).
func FuzzDecodeRobustness(f *testing.F) {
	f.Add([]byte{0, 0, 0}, 2)
	f.Add([]byte{0xFF, 1, 2, 3, 4}, 8)
	f.Add([]byte{}, 0)
	f.Fuzz(func(t *testing.T, src []byte, n int) {
		if n < 0 || n > 4096 {
			return
		}
		dst := make([]int16, n)
		_, _ = Decode(dst, src, n, 0, Options{Delta: true, ZigZag: true})
	})
}

func TestKeyAndMaxLength(t *testing.T) {
	cases := []struct{ n, keyLen, max int }{
		{0, 0, 0},
		{1, 1, 3},
		{7, 1, 15},
		{8, 1, 17},
		{9, 2, 20},
	}
	for _, c := range cases {
		if got := KeyLength(c.n); got != c.keyLen {
			t.Errorf("KeyLength(%d) = %d, want %d", c.n, got, c.keyLen)
		}
		if got := MaxEncodedLength(c.n); got != c.max {
			t.Errorf("MaxEncodedLength(%d) = %d, want %d", c.n, got, c.max)
		}
	}
}
