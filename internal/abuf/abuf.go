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

// Package abuf implements the growable aligned byte buffer spec.md §2's
// "Expandable buffer" row describes: package alignedio's sole consumer,
// accumulating bytes between flushes and splitting off whichever
// alignment-sized prefix is ready to hand to a block-aligned write while
// retaining the unaligned remainder for the next one.
package abuf

// Buffer is a growable []byte with an alignment boundary baked in. It is
// not safe for concurrent use; alignedio.Stream serializes access to its
// own Buffer internally.
type Buffer struct {
	alignment int
	buf       []byte
}

// New constructs a Buffer that flushes in multiples of alignment bytes.
// alignment <= 0 is treated as 1 (no alignment constraint), useful for
// tests that don't care about block boundaries.
func New(alignment int) *Buffer {
	if alignment <= 0 {
		alignment = 1
	}
	return &Buffer{alignment: alignment}
}

// Alignment returns the buffer's configured flush boundary.
func (b *Buffer) Alignment() int { return b.alignment }

// Len returns the number of bytes currently buffered.
func (b *Buffer) Len() int { return len(b.buf) }

// Write appends p to the buffer, growing it as needed. It always
// succeeds, satisfying io.Writer.
func (b *Buffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// Bytes returns the buffer's current contents. The slice is only valid
// until the next Write, FlushAligned or FlushPadded call.
func (b *Buffer) Bytes() []byte { return b.buf }

// Reset empties the buffer without releasing its backing array.
func (b *Buffer) Reset() { b.buf = b.buf[:0] }

// Grow ensures at least n additional bytes can be appended without a
// further reallocation.
func (b *Buffer) Grow(n int) {
	if cap(b.buf)-len(b.buf) >= n {
		return
	}
	nb := make([]byte, len(b.buf), len(b.buf)+n)
	copy(nb, b.buf)
	b.buf = nb
}

// FlushAligned removes and returns the largest prefix of the buffered
// bytes whose length is a multiple of the configured alignment, copying
// it into a fresh slice safe for the caller to hand off to an
// in-flight write. The unaligned remainder, if any, is shifted to the
// front of the buffer and retained for the next Write. It returns nil
// if fewer than one alignment's worth of bytes is currently buffered.
func (b *Buffer) FlushAligned() []byte {
	n := (len(b.buf) / b.alignment) * b.alignment
	if n == 0 {
		return nil
	}
	out := make([]byte, n)
	copy(out, b.buf[:n])
	remainder := len(b.buf) - n
	copy(b.buf, b.buf[n:])
	b.buf = b.buf[:remainder]
	return out
}

// FlushPadded returns the entire buffered contents, zero-padded up to
// the next alignment boundary, and empties the buffer. Used once, at
// Close, for the final partial block (spec.md §4.9: "on close, the
// final partial buffer is padded to alignment, written, then the file
// is ftruncate'd to the true byte count").
func (b *Buffer) FlushPadded() (data []byte, trueLen int) {
	trueLen = len(b.buf)
	padded := trueLen
	if rem := trueLen % b.alignment; rem != 0 {
		padded += b.alignment - rem
	}
	data = make([]byte, padded)
	copy(data, b.buf)
	b.buf = b.buf[:0]
	return data, trueLen
}
