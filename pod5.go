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

// Package pod5 is the top-level file facade spec.md §3/§4.4 describes:
// Reader opens a container, migrates its embedded read table forward to
// the current logical version if needed, and exposes the three embedded
// tables plus a read-id index and an asynchronous signal loader built on
// top of them; Writer assembles a fresh container from scratch, routed
// through package alignedio's aligned/direct output stream.
//
// Every package this one wires together — container, table, migration,
// readindex, loader, alignedio, builder and schema — otherwise only runs
// under its own package's tests; this is the layer where spec.md's
// end-to-end scenarios (S2: round-trip a file through Writer then
// Reader; S5: open a v0 file and observe its read table reported at v4)
// actually execute.
package pod5

const op = "pod5"
