// Copyright 2023 Sneller, Inc.
//
//  Licensed under the Apache License, Version 2.0 (the "License");
//  you may not use this file except in compliance with the License.
//  You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
//  Unless required by applicable law or agreed to in writing, software
//  distributed under the License is distributed on an "AS IS" BASIS,
//  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//  See the License for the specific language governing permissions and
//  limitations under the License.

// Package simd provides a pure-Go stand-in for the 128-bit vector
// register the svb16 package's batched decode path loads 16
// single-byte-width values through. It is a software emulation, not an
// assembly SIMD implementation (see github.com/nanoporetech/pod5/svb16).
package simd

import "fmt"

// Vec8x16 holds the 16 bytes that would occupy one SSE register.
type Vec8x16 [16]uint8

func (v Vec8x16) String() string {
	return fmt.Sprintf("{%02x, %02x, %02x, %02x, %02x, %02x, %02x, %02x, %02x, %02x, %02x, %02x, %02x, %02x, %02x, %02x}",
		v[15], v[14], v[13], v[12], v[11], v[10], v[9], v[8],
		v[7], v[6], v[5], v[4], v[3], v[2], v[1], v[0])
}
