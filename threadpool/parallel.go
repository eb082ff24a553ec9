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

package threadpool

import "runtime"

// defaultParallelism mirrors the teacher's runtime.GOMAXPROCS(0) idiom
// for "default to hardware concurrency" (see plan/root.go, jsonrl/ndjson.go
// and ion/zion/compress.go in the teacher repo), used in place of
// runtime.NumCPU() so the default respects a caller's GOMAXPROCS cap.
func defaultParallelism() int {
	return runtime.GOMAXPROCS(0)
}
