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
	"golang.org/x/sys/cpu"

	"github.com/nanoporetech/pod5/internal/simd"
)

// lanes is the number of 16-bit values processed per batch: one
// 128-bit SSE register's worth of single-byte-encoded values.
const lanes = 16

// hasVectorDecode reports whether the runtime CPU advertises the
// instruction set extensions the original C++ decoder requires
// (SSSE3 for its byte-shuffle table, SSE4.1 for the widening loads).
// Go cannot portably emit those instructions without hand-written
// assembly, so decodeVector below is a software emulation of the same
// batched-load strategy using the teacher package's Vec8x16 type
// (itself a pure-Go SIMD emulation, see internal/simd's doc comment),
// gated behind the same feature flags so the dispatch shape matches
// the original even though the speedup is structural rather than
// instruction-level.
func hasVectorDecode() bool {
	return cpu.X86.HasSSE41 && cpu.X86.HasSSSE3
}

// decodeVector decodes src in lanes-sized batches. When every key bit in
// a batch is 0 (all 16 values are single-byte), the 16 raw data bytes
// are loaded as one Vec8x16 and widened in a tight loop instead of being
// re-tested bit by bit; any batch containing a two-byte value falls
// back to the same per-value logic decodeScalar uses. decodeOne is the
// single source of truth for delta/zigzag reversal, so this path always
// produces output identical to decodeScalar.
func decodeVector(dst []int16, key, data []byte, prev int16, opts Options) {
	p := prev
	off := 0
	i := 0
	for i < len(dst) {
		batch := lanes
		if i+batch > len(dst) {
			batch = len(dst) - i
		}
		if batch == lanes && off+lanes <= len(data) && allNarrow(key, i, lanes) {
			var v simd.Vec8x16
			copy(v[:], data[off:off+lanes])
			off += lanes
			for j := 0; j < lanes; j++ {
				dst[i+j] = decodeOne(uint16(v[j]), opts, &p)
			}
			i += lanes
			continue
		}
		for j := 0; j < batch; j++ {
			var enc uint16
			if keyBit(key, i+j) {
				enc = uint16(data[off]) | uint16(data[off+1])<<8
				off += 2
			} else {
				enc = uint16(data[off])
				off++
			}
			dst[i+j] = decodeOne(enc, opts, &p)
		}
		i += batch
	}
}

func allNarrow(key []byte, start, count int) bool {
	for i := start; i < start+count; i++ {
		if keyBit(key, i) {
			return false
		}
	}
	return true
}
