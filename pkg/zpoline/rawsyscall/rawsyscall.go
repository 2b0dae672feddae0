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

//go:build linux && amd64
// +build linux,amd64

// Package rawsyscall is the only way into the kernel that this module
// guarantees the rewriter will never patch. Every other syscall/sysenter
// site in the process's executable memory is replaced with an indirect
// call that eventually reaches Raw or Bypass below.
package rawsyscall

import (
	"reflect"
	"runtime"

	"golang.org/x/sys/unix"
)

// Regs is the fixed-layout, 56-byte register record the stub materializes
// on the stack and the hook runtime receives by pointer. Field order is
// load-bearing: it must match the order the trampoline stub pushes
// registers in (lowest address = RAX, pushed last; highest = R9, pushed
// first).
type Regs struct {
	RAX uint64 // syscall number on entry, return value on exit
	RDI uint64 // arg1
	RSI uint64 // arg2
	RDX uint64 // arg3
	R10 uint64 // arg4 (not RCX: the kernel ABI, not the C ABI)
	R8  uint64 // arg5
	R9  uint64 // arg6
}

// Raw issues the syscall encoded in r directly against the kernel,
// bypassing any installed hook. It is the function named raw_syscall in
// spec.md §6; its own code must never be patched by the rewriter.
//
//go:noinline
func Raw(r *Regs) int64 {
	return Bypass(r.RAX, r.RDI, r.RSI, r.RDX, r.R10, r.R8, r.R9)
}

// Bypass is the spread-argument twin of Raw (raw_syscall_bypass in
// spec.md §6). It is built on unix.RawSyscall6, which is itself backed by
// a hand-written SYSCALL-instruction stub inside the x/sys/unix package
// rather than project-local assembly: reusing it means this module does
// not need to maintain its own copy of the one instruction sequence the
// rewriter must never touch, and ExcludedRanges (below) still knows where
// that stub lives so the rewrite configuration can exclude it.
//
//go:noinline
func Bypass(nr, a1, a2, a3, a4, a5, a6 uintptr) int64 {
	r1, _, errno := unix.RawSyscall6(nr, a1, a2, a3, a4, a5, a6)
	if errno != 0 {
		return -int64(errno)
	}
	return int64(r1)
}

// ExcludedRange is a half-open virtual address range that must never be
// rewritten because it is reachable from Raw/Bypass.
type ExcludedRange struct {
	Start, End uintptr
}

// ExcludedRanges returns the address ranges of Raw and Bypass in this
// package and of the x/sys/unix entry points (RawSyscall6, RawSyscall)
// they rely on to issue the real SYSCALL instruction. The rewrite
// configuration excludes these ranges per spec.md §4.1 and §4.4(a).
//
// The bound is necessarily approximate: Go does not expose a function's
// compiled size directly, so each range is widened by funcSizeSlop bytes
// past the entry point found via runtime.FuncForPC. This errs toward
// excluding slightly more code than necessary, never less.
func ExcludedRanges() []ExcludedRange {
	fns := []any{Raw, Bypass, unix.RawSyscall6, unix.RawSyscall}
	ranges := make([]ExcludedRange, 0, len(fns))
	for _, fn := range fns {
		pc := reflect.ValueOf(fn).Pointer()
		start := uintptr(pc)
		end := start + funcSizeSlop
		if rf := runtime.FuncForPC(pc); rf != nil {
			if entry := rf.Entry(); entry != 0 {
				start = entry
				end = entry + funcSizeSlop
			}
		}
		ranges = append(ranges, ExcludedRange{Start: start, End: end})
	}
	return ranges
}

// funcSizeSlop bounds how far past a function's entry point its compiled
// code, and any inlined SYSCALL instruction stub, might extend.
const funcSizeSlop = 4096
