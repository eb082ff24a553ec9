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

package alignedio

import (
	"bytes"
	"fmt"
	"math/rand"
	"sync"
	"testing"
)

// memSink is an in-memory Sink fake for exercising Stream without real
// file I/O.
type memSink struct {
	mu         sync.Mutex
	buf        []byte
	truncated  bool
	finalSize  int64
	preallocs  []int64
	failWrites bool
}

func (m *memSink) WriteAt(p []byte, off int64) (int, error) {
	if m.failWrites {
		return 0, fmt.Errorf("injected write failure")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	end := off + int64(len(p))
	if int64(len(m.buf)) < end {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[off:end], p)
	return len(p), nil
}

func (m *memSink) Truncate(size int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.truncated = true
	m.finalSize = size
	if int64(len(m.buf)) > size {
		m.buf = m.buf[:size]
	}
	return nil
}

func (m *memSink) Preallocate(size int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.preallocs = append(m.preallocs, size)
	return nil
}

func TestStreamRoundTrip(t *testing.T) {
	sink := &memSink{}
	s := New(sink, 0, false)

	src := make([]byte, Alignment*3+17)
	rand.New(rand.NewSource(1)).Read(src)

	// write in odd-sized chunks to exercise the unaligned remainder path
	for off := 0; off < len(src); {
		n := 777
		if off+n > len(src) {
			n = len(src) - off
		}
		if _, err := s.Write(src[off : off+n]); err != nil {
			t.Fatalf("Write: %v", err)
		}
		off += n
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if !sink.truncated || sink.finalSize != int64(len(src)) {
		t.Fatalf("final size = %d, want %d (truncated=%v)", sink.finalSize, len(src), sink.truncated)
	}
	if !bytes.Equal(sink.buf, src) {
		t.Fatalf("round-tripped bytes differ")
	}
}

func TestStreamPropagatesWriteError(t *testing.T) {
	sink := &memSink{failWrites: true}
	s := New(sink, 0, false)
	big := make([]byte, Alignment*2)
	if _, err := s.Write(big); err != nil {
		t.Fatalf("Write (buffered only) should not fail synchronously: %v", err)
	}
	if err := s.Close(); err == nil {
		t.Fatal("expected Close to surface the injected write error")
	}
}

func TestStreamPreallocates(t *testing.T) {
	sink := &memSink{}
	s := New(sink, 0, false)
	big := make([]byte, FallocateChunk+Alignment)
	if _, err := s.Write(big); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(sink.preallocs) == 0 {
		t.Fatal("expected at least one Preallocate call for a write exceeding one chunk")
	}
}
