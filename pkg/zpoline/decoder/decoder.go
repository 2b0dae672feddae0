// Copyright 2018 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package decoder scans a byte range of x86-64 code and reports the
// offsets of every syscall/sysenter instruction. It never matches the
// two-byte 0F 05 / 0F 34 patterns when they occur inside an immediate or
// a ModR/M displacement, because it decodes full instructions with
// golang.org/x/arch/x86/x86asm rather than scanning for the byte pattern
// directly.
package decoder

import (
	"golang.org/x/arch/x86/x86asm"
)

// Kind identifies which of the two trapping instructions was found.
type Kind int

const (
	// Syscall is the 0F 05 instruction.
	Syscall Kind = iota
	// Sysenter is the 0F 34 instruction.
	Sysenter
)

func (k Kind) String() string {
	switch k {
	case Syscall:
		return "syscall"
	case Sysenter:
		return "sysenter"
	default:
		return "unknown"
	}
}

// Site is one discovered syscall/sysenter instruction.
type Site struct {
	// Offset is the byte offset of the first byte of the instruction
	// within the buffer that was scanned.
	Offset int
	Kind   Kind
}

// ScanAll decodes code as 64-bit x86-64 instructions starting at base and
// returns every syscall/sysenter site found. It tolerates trailing
// garbage (a partial instruction at the end of the buffer) by stopping
// cleanly instead of erroring.
func ScanAll(base uint64, code []byte) []Site {
	var sites []Site
	Scan(base, code, func(s Site) bool {
		sites = append(sites, s)
		return true
	})
	return sites
}

// Scan decodes code as 64-bit x86-64 instructions starting at base,
// invoking yield for each syscall/sysenter site found in instruction
// order. Scan stops early if yield returns false. This is the lazy-
// sequence form named in spec.md §4.3; ScanAll is the convenience
// slice-returning wrapper most callers use.
func Scan(base uint64, code []byte, yield func(Site) bool) {
	for off := 0; off < len(code); {
		inst, err := x86asm.Decode(code[off:], 64)
		if err != nil {
			// Either a genuine decode error or a partial instruction cut
			// off at the end of the buffer. Either way, spec.md §4.3
			// requires stopping cleanly rather than scanning byte-by-byte
			// from here, since re-synchronizing on raw bytes could invent
			// instructions that were never actually executed.
			return
		}
		if inst.Len == 0 {
			// Defensive: x86asm should never return a zero-length
			// instruction without an error, but looping forever on one
			// would hang the rewriter.
			return
		}

		switch inst.Op {
		case x86asm.SYSCALL:
			if !yield(Site{Offset: off, Kind: Syscall}) {
				return
			}
		case x86asm.SYSENTER:
			if !yield(Site{Offset: off, Kind: Sysenter}) {
				return
			}
		}

		off += inst.Len
	}
}
