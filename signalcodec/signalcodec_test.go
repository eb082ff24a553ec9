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

package signalcodec

import (
	"math/rand"
	"testing"

	"github.com/klauspost/compress/zstd"

	"github.com/nanoporetech/pod5/errs"
)

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for _, n := range []int{0, 1, 100, 4096, 20480} {
		xs := make([]int16, n)
		v := int16(0)
		for i := range xs {
			v += int16(rng.Intn(7) - 3)
			xs[i] = v
		}
		compressed, err := Compress(nil, xs)
		if err != nil {
			t.Fatalf("n=%d: Compress: %v", n, err)
		}
		if len(compressed) > CompressedMaxSize(n) {
			t.Fatalf("n=%d: compressed length %d exceeds bound %d", n, len(compressed), CompressedMaxSize(n))
		}
		out := make([]int16, n)
		if err := Decompress(out, compressed, n); err != nil {
			t.Fatalf("n=%d: Decompress: %v", n, err)
		}
		for i := range xs {
			if out[i] != xs[i] {
				t.Fatalf("n=%d: out[%d] = %d, want %d", n, i, out[i], xs[i])
			}
		}
	}
}

// S6 from spec.md §8: a well-formed Zstd payload whose decompressed
// size exceeds the SVB16 bound for the declared sample count must be
// rejected as invalid, never silently truncated or panicked on.
func TestScenarioS6(t *testing.T) {
	declaredSamples := 4
	oversized := make([]byte, 10_000) // far larger than svb16.MaxEncodedLength(4)
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatal(err)
	}
	payload := enc.EncodeAll(oversized, nil)
	enc.Close()

	out := make([]int16, declaredSamples)
	err = Decompress(out, payload, declaredSamples)
	if err == nil {
		t.Fatal("expected error for oversized decompressed payload")
	}
	var e *errs.Error
	if !asError(err, &e) || e.Code != errs.Invalid {
		t.Fatalf("expected errs.Invalid, got %v", err)
	}
}

func asError(err error, target **errs.Error) bool {
	e, ok := err.(*errs.Error)
	if ok {
		*target = e
	}
	return ok
}

func TestDecompressRejectsOversizedInput(t *testing.T) {
	n := 10
	huge := make([]byte, CompressedMaxSize(n)+1)
	out := make([]int16, n)
	if err := Decompress(out, huge, n); err == nil {
		t.Fatal("expected rejection of input larger than CompressedMaxSize")
	}
}
