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

package schema

import "testing"

func TestReadTableVersionForPod5Version(t *testing.T) {
	cases := []struct {
		version string
		want    int
	}{
		{"0.0.1", ReadTableV0},
		{"0.0.23", ReadTableV0},
		{"0.0.24", ReadTableV1},
		{"0.0.31", ReadTableV1},
		{"0.0.32", ReadTableV2},
		{"0.0.37", ReadTableV2},
		{"0.0.38", ReadTableV3},
		{"0.3.29", ReadTableV3},
		{"0.3.30", ReadTableV4},
		{"1.0.0", ReadTableV4},
	}
	for _, c := range cases {
		got, err := ReadTableVersionForPod5Version(c.version)
		if err != nil {
			t.Fatalf("%s: %v", c.version, err)
		}
		if got != c.want {
			t.Errorf("ReadTableVersionForPod5Version(%q) = %d, want %d", c.version, got, c.want)
		}
	}
}

func TestReadTableVersionForPod5VersionRejectsMalformed(t *testing.T) {
	for _, s := range []string{"", "1.2", "a.b.c", "1.2.3.4"} {
		if _, err := ReadTableVersionForPod5Version(s); err == nil {
			t.Errorf("expected error for malformed version %q", s)
		}
	}
}
