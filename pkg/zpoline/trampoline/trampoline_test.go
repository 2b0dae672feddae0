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

package trampoline

import (
	"encoding/binary"
	"testing"

	"golang.org/x/arch/x86/x86asm"
)

// TestBuildStubDecodesToExpectedMnemonics symbolically verifies the
// hand-assembled stub by feeding it back through the same decoder the
// rewriter uses, rather than executing it: spec.md §4.5's pseudocode,
// instruction by instruction.
func TestBuildStubDecodesToExpectedMnemonics(t *testing.T) {
	const glueAddr = 0x0000123456789abc
	stub := buildStub(glueAddr)

	wantOps := []x86asm.Op{
		x86asm.PUSH, x86asm.PUSH, x86asm.PUSH, x86asm.PUSH,
		x86asm.PUSH, x86asm.PUSH, x86asm.PUSH,
		x86asm.SUB,
		x86asm.LEA,
		x86asm.MOV, // movabs decodes as MOV with an imm64 operand
		x86asm.CALL,
		x86asm.ADD, x86asm.ADD,
		x86asm.POP, x86asm.POP, x86asm.POP, x86asm.POP, x86asm.POP, x86asm.POP,
		x86asm.RET,
	}

	off := 0
	for i, want := range wantOps {
		inst, err := x86asm.Decode(stub[off:], 64)
		if err != nil {
			t.Fatalf("instruction %d: decode error at offset %d: %v", i, off, err)
		}
		if inst.Op != want {
			t.Fatalf("instruction %d at offset %d = %v, want %v", i, off, inst.Op, want)
		}
		off += inst.Len
	}
	if off != len(stub) {
		t.Fatalf("decoded %d bytes, stub is %d bytes", off, len(stub))
	}
}

// TestBuildStubPushOrderMatchesRegisterRecord checks invariant: the
// seven pushes lay down rax, rdi, rsi, rdx, r10, r8, r9 from lowest to
// highest stack address, i.e. in push order r9, r8, r10, rdx, rsi, rdi,
// rax.
func TestBuildStubPushOrderMatchesRegisterRecord(t *testing.T) {
	stub := buildStub(0)
	wantPushOpcodes := [][]byte{
		{0x41, 0x51}, // push r9
		{0x41, 0x50}, // push r8
		{0x41, 0x52}, // push r10
		{0x52},       // push rdx
		{0x56},       // push rsi
		{0x57},       // push rdi
		{0x50},       // push rax
	}
	off := 0
	for i, want := range wantPushOpcodes {
		got := stub[off : off+len(want)]
		if !bytesEqual(got, want) {
			t.Fatalf("push %d = % x, want % x", i, got, want)
		}
		off += len(want)
	}
}

func TestBuildStubEmbedsGlueAddress(t *testing.T) {
	const glueAddr = 0x1122334455667788
	stub := buildStub(glueAddr)
	idx := indexOf(stub, []byte{0x49, 0xbb})
	if idx < 0 {
		t.Fatal("movabs r11 opcode not found in stub")
	}
	got := binary.LittleEndian.Uint64(stub[idx+2 : idx+10])
	if got != glueAddr {
		t.Fatalf("embedded glue address = %#x, want %#x", got, glueAddr)
	}
}

func TestBuildStubLengthFitsSlack(t *testing.T) {
	stub := buildStub(0xdeadbeef)
	if len(stub) > stubSlack {
		t.Fatalf("stub is %d bytes, exceeds stubSlack=%d", len(stub), stubSlack)
	}
}

func TestSetupAtScratchAddress(t *testing.T) {
	const scratch = 0x0000700000000000
	tr, err := setupAt(scratch)
	if err != nil {
		t.Skipf("setupAt(scratch) unavailable in this environment: %v", err)
	}
	if tr.mem[0] != 0x90 || tr.mem[MaxSyscallNR-1] != 0x90 {
		t.Fatalf("NOP sled not fully written")
	}
	if tr.mem[MaxSyscallNR] == 0x90 {
		t.Fatalf("stub region appears to still be NOPs")
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func indexOf(haystack, needle []byte) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if bytesEqual(haystack[i:i+len(needle)], needle) {
			return i
		}
	}
	return -1
}
