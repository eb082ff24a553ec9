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

package pod5c

import (
	"path/filepath"
	"testing"
)

func TestWriteReadRoundTripThroughHandles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "handles.pod5")

	wh := CreateFile(path, "pod5c-test")
	if wh == InvalidHandle {
		t.Fatalf("CreateFile failed: errno=%d msg=%q", GetErrorNo(), GetErrorString())
	}

	id, errno := AddRead(wh, []int16{1, 2, 3, 4, 5})
	if errno != Ok {
		t.Fatalf("AddRead failed: errno=%d msg=%q", errno, GetErrorString())
	}
	if id == ([16]byte{}) {
		t.Fatal("AddRead returned a zero read id")
	}

	if errno := CloseAndFreeWriter(wh); errno != Ok {
		t.Fatalf("CloseAndFreeWriter failed: errno=%d msg=%q", errno, GetErrorString())
	}

	rh := OpenFileForReading(path)
	if rh == InvalidHandle {
		t.Fatalf("OpenFileForReading failed: errno=%d msg=%q", GetErrorNo(), GetErrorString())
	}
	defer CloseAndFreeReader(rh)

	count, errno := GetReadBatchCount(rh)
	if errno != Ok {
		t.Fatalf("GetReadBatchCount failed: errno=%d", errno)
	}
	if count == 0 {
		t.Fatal("expected at least one read record batch")
	}

	fileIdentifier, software, _, errno := GetFileInfo(rh)
	if errno != Ok {
		t.Fatalf("GetFileInfo failed: errno=%d", errno)
	}
	if fileIdentifier == "" {
		t.Fatal("expected a non-empty file identifier")
	}
	if software != "pod5c-test" {
		t.Fatalf("software = %q, want pod5c-test", software)
	}
}

func TestUnknownHandleSetsKeyError(t *testing.T) {
	const bogus ReaderHandle = 99999
	if _, ok := reader(bogus); ok {
		t.Fatal("expected reader() to fail for an unopened handle")
	}
	if GetErrorNo() != KeyError {
		t.Fatalf("GetErrorNo() = %d, want KeyError", GetErrorNo())
	}
	if GetErrorString() == "" {
		t.Fatal("expected a non-empty error string")
	}
}

func TestCloseAndFreeReaderTwiceIsOk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "double-close.pod5")
	wh := CreateFile(path, "pod5c-test")
	if wh == InvalidHandle {
		t.Fatalf("CreateFile failed: errno=%d", GetErrorNo())
	}
	if _, errno := AddRead(wh, []int16{1}); errno != Ok {
		t.Fatalf("AddRead failed: errno=%d", errno)
	}
	if errno := CloseAndFreeWriter(wh); errno != Ok {
		t.Fatalf("CloseAndFreeWriter failed: errno=%d", errno)
	}

	rh := OpenFileForReading(path)
	if rh == InvalidHandle {
		t.Fatalf("OpenFileForReading failed: errno=%d", GetErrorNo())
	}
	if errno := CloseAndFreeReader(rh); errno != Ok {
		t.Fatalf("first CloseAndFreeReader failed: errno=%d", errno)
	}
	if errno := CloseAndFreeReader(rh); errno != Ok {
		t.Fatalf("second CloseAndFreeReader should report Ok, got errno=%d", errno)
	}
}
