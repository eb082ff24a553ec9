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

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nanoporetech/pod5/errs"
)

// pod5Version is a parsed "maj.min.rev" writer-software version string.
type pod5Version struct {
	major, minor, rev int
}

func parsePod5Version(s string) (pod5Version, error) {
	parts := strings.SplitN(s, ".", 3)
	if len(parts) != 3 {
		return pod5Version{}, errs.Errorf(errs.Invalid, op, "malformed pod5_version %q", s)
	}
	var v pod5Version
	var err error
	if v.major, err = strconv.Atoi(parts[0]); err != nil {
		return pod5Version{}, errs.Errorf(errs.Invalid, op, "malformed pod5_version %q: %v", s, err)
	}
	if v.minor, err = strconv.Atoi(parts[1]); err != nil {
		return pod5Version{}, errs.Errorf(errs.Invalid, op, "malformed pod5_version %q: %v", s, err)
	}
	if v.rev, err = strconv.Atoi(parts[2]); err != nil {
		return pod5Version{}, errs.Errorf(errs.Invalid, op, "malformed pod5_version %q: %v", s, err)
	}
	return v, nil
}

// less reports whether v sorts strictly before w.
func (v pod5Version) less(w pod5Version) bool {
	if v.major != w.major {
		return v.major < w.major
	}
	if v.minor != w.minor {
		return v.minor < w.minor
	}
	return v.rev < w.rev
}

// readTableBumps are the pod5_version thresholds at which the read table's
// logical version advances, in ascending order (spec.md §6).
var readTableBumps = []pod5Version{
	{0, 0, 24}, // -> v1
	{0, 0, 32}, // -> v2
	{0, 0, 38}, // -> v3
	{0, 3, 30}, // -> v4
}

// ReadTableVersionForPod5Version derives the read table's logical version
// from the writer's recorded pod5_version string, following the bump
// points documented in spec.md §6.
func ReadTableVersionForPod5Version(s string) (int, error) {
	v, err := parsePod5Version(s)
	if err != nil {
		return 0, err
	}
	version := ReadTableV0
	for i, bump := range readTableBumps {
		if !v.less(bump) {
			version = i + 1
		}
	}
	return version, nil
}

// FormatPod5Version renders the canonical "maj.min.rev" string for a
// version this module writes.
func FormatPod5Version(major, minor, rev int) string {
	return fmt.Sprintf("%d.%d.%d", major, minor, rev)
}

// CurrentPod5Version is the writer-software version string this module
// stamps on every file it creates: past the v4 read-table bump point, so
// every newly written file is read back at ReadTableV4.
const CurrentPod5Version = "0.3.30"
