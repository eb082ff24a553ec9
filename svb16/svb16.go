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

// Package svb16 implements StreamVByte-16: a byte-aligned variable-length
// encoding for sequences of 16-bit integers, with optional delta and
// zigzag pre-transforms.
//
// An encoded stream is a key stream (one bit per input value: 0 selects a
// single data byte, 1 selects two little-endian data bytes) immediately
// followed by the data stream itself. Encode always produces the scalar
// reference encoding; Decode dispatches to a batched fast path when the
// CPU advertises SSSE3/SSE4.1 (see decode_vector.go), but both paths are
// required to, and do, produce byte-identical results.
package svb16

import "errors"

// ErrCorrupt is returned by Decode when the key stream declares more data
// bytes than are actually present in the source buffer.
var ErrCorrupt = errors.New("svb16: truncated or corrupt input")

// Options selects the pre-transforms applied to each value before
// encoding, and reversed (in the opposite order) on decode.
type Options struct {
	// Delta encodes each value as its difference from the previous
	// value (the first value is relative to the caller-supplied Prev).
	Delta bool
	// ZigZag maps signed magnitudes to small unsigned ones so that
	// small-magnitude negative deltas still fit in a single byte.
	ZigZag bool
}

// KeyLength returns the number of key-stream bytes needed to encode n
// values: ceil(n/8).
func KeyLength(n int) int {
	return (n + 7) / 8
}

// MaxEncodedLength returns the largest possible encoded length (key
// stream plus worst-case two bytes per value) for n values.
func MaxEncodedLength(n int) int {
	return KeyLength(n) + 2*n
}

// DecodeInputBufferPaddingByteCount returns the number of extra readable
// (but not necessarily meaningful) bytes callers must guarantee exist
// immediately past the end of a Decode source buffer: one SSE
// register's worth. Neither decode path in this package reads past the
// declared end of the data stream (the batched path falls back to
// per-value decoding when fewer than 16 data bytes remain), so Decode
// itself works without this padding.
func DecodeInputBufferPaddingByteCount() int {
	return 16 // sizeof(__m128i)
}

func zigzagEncode(x int16) uint16 {
	return uint16((x << 1) ^ (x >> 15))
}

func zigzagDecode(z uint16) int16 {
	return int16(z>>1) ^ -int16(z&1)
}

// Encode appends the StreamVByte-16 encoding of xs to dst and returns the
// extended slice. prev is the value used as the predecessor of xs[0] when
// opts.Delta is set; callers with no natural predecessor pass 0.
func Encode(dst []byte, xs []int16, prev int16, opts Options) []byte {
	n := len(xs)
	keyStart := len(dst)
	dst = append(dst, make([]byte, KeyLength(n))...)

	p := prev
	for i, x := range xs {
		v := x
		if opts.Delta {
			v = int16(uint16(x) - uint16(p))
		}
		p = x

		var enc uint16
		if opts.ZigZag {
			enc = zigzagEncode(v)
		} else {
			enc = uint16(v)
		}

		if enc <= 0xFF {
			dst = append(dst, byte(enc))
		} else {
			dst[keyStart+i/8] |= 1 << uint(i%8)
			dst = append(dst, byte(enc), byte(enc>>8))
		}
	}
	return dst
}

// Decode decodes n values from src into dst (which must have length >=
// n) and returns the number of source bytes consumed (key stream plus
// data stream). It validates the key stream against n before consuming
// any data bytes, so malformed input is rejected without ever reading
// past src's declared content.
func Decode(dst []int16, src []byte, n int, prev int16, opts Options) (consumed int, err error) {
	if len(dst) < n {
		panic("svb16: Decode: dst too small")
	}
	keyLen := KeyLength(n)
	if len(src) < keyLen {
		return 0, ErrCorrupt
	}
	key := src[:keyLen]

	need := keyLen
	for i := 0; i < n; i++ {
		if keyBit(key, i) {
			need += 2
		} else {
			need += 1
		}
	}
	if len(src) < need {
		return 0, ErrCorrupt
	}

	if hasVectorDecode() {
		decodeVector(dst[:n], key, src[keyLen:], prev, opts)
	} else {
		decodeScalar(dst[:n], key, src[keyLen:], prev, opts)
	}
	return need, nil
}

func keyBit(key []byte, i int) bool {
	return key[i/8]&(1<<uint(i%8)) != 0
}

func decodeScalar(dst []int16, key, data []byte, prev int16, opts Options) {
	p := prev
	off := 0
	for i := range dst {
		var enc uint16
		if keyBit(key, i) {
			enc = uint16(data[off]) | uint16(data[off+1])<<8
			off += 2
		} else {
			enc = uint16(data[off])
			off++
		}
		dst[i] = decodeOne(enc, opts, &p)
	}
}

// decodeOne reverses the delta/zigzag transforms for a single decoded
// 16-bit key/data value, threading the running "previous value" state p
// through successive calls. It is the single point of truth for value
// reconstruction: decodeScalar and decodeVector both call it so they are
// guaranteed to produce identical output.
func decodeOne(enc uint16, opts Options, p *int16) int16 {
	var v int16
	if opts.ZigZag {
		v = zigzagDecode(enc)
	} else {
		v = int16(enc)
	}
	x := v
	if opts.Delta {
		x = int16(uint16(*p) + uint16(v))
	}
	*p = x
	return x
}
