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

// Package trampoline builds the zero-page dispatch target that every
// patched syscall/sysenter site branches to: a NOP sled wide enough to
// cover any legal syscall number, followed by a stub that marshals the
// kernel-ABI registers into a record and calls into the hook runtime.
package trampoline

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// MaxSyscallNR bounds the NOP sled: every byte below this offset is
// 0x90, so any syscall number in [0, MaxSyscallNR) is a valid callq
// *%rax entry point. The value is fixed; bootstrap checks it against
// rawsyscall.MaxKnownSyscallNumber, the highest syscall number in the
// build's x/sys/unix constants, and refuses to run if that does not fit.
const MaxSyscallNR = 512

// stubSlack is extra room past MaxSyscallNR for the hand-assembled stub
// itself; spec.md sizes the mapping at roughly 512 + 4096 bytes.
const stubSlack = 4096

// Size is the total length of the zero-page mapping.
const Size = MaxSyscallNR + stubSlack

// ErrMmapFailed wraps a failure to reserve the fixed mapping at virtual
// address 0. The most common cause is the kernel's mmap_min_addr sysctl
// forbidding mappings below a nonzero floor.
type ErrMmapFailed struct {
	Err error
}

func (e *ErrMmapFailed) Error() string {
	return fmt.Sprintf("zero-page trampoline mmap failed: %v (lower vm.mmap_min_addr to 0 if this is unexpected)", e.Err)
}
func (e *ErrMmapFailed) Unwrap() error { return e.Err }

// Trampoline is the live zero-page mapping. It is built once per
// process and never torn down.
type Trampoline struct {
	mem []byte
}

// Base returns the virtual address of byte zero of the mapping: always
// 0 on success, since that is the whole point.
func (t *Trampoline) Base() uintptr { return 0 }

// StubOffset returns the byte offset at which the hand-assembled stub
// begins.
func (t *Trampoline) StubOffset() int { return MaxSyscallNR }

// Setup reserves the fixed page-zero mapping, fills the NOP sled, and
// writes the stub that calls into the hook runtime via cHookEntryGlue.
// It must be called at most once per process; callers enforce that with
// a sync.Once at the bootstrap layer (spec.md §4.9's one-shot guard),
// not here, so that tests can exercise Setup's internals against
// mappings other than the real VA 0 by calling the unexported
// constructor directly.
func Setup() (*Trampoline, error) {
	return setupAt(0)
}

// fixedFlag chooses MAP_FIXED_NOREPLACE when addr != 0, so a test
// exercising setupAt against a scratch address fails loudly instead of
// silently unmapping whatever the allocator already put there; the real
// VA-0 call path keeps plain MAP_FIXED since page zero is never already
// mapped in a process that reaches bootstrap.
func fixedFlag(addr uintptr) int {
	if addr == 0 {
		return unix.MAP_FIXED
	}
	return unix.MAP_FIXED_NOREPLACE
}

func setupAt(addr uintptr) (*Trampoline, error) {
	flags := uintptr(unix.MAP_PRIVATE | unix.MAP_ANONYMOUS | fixedFlag(addr))
	prot := uintptr(unix.PROT_READ | unix.PROT_WRITE | unix.PROT_EXEC)

	ret, _, errno := unix.Syscall6(unix.SYS_MMAP, addr, uintptr(Size), prot, flags,
		^uintptr(0) /* fd = -1 */, 0)
	if errno != 0 {
		return nil, &ErrMmapFailed{Err: errno}
	}

	mem := unsafe.Slice((*byte)(unsafe.Pointer(ret)), Size)

	for i := 0; i < MaxSyscallNR; i++ {
		mem[i] = 0x90
	}

	stub := buildStub(glueEntryAddr())
	copy(mem[MaxSyscallNR:], stub)

	return &Trampoline{mem: mem}, nil
}
