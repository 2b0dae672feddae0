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

// Hand-assembled x86-64 machine code for the stub described in
// spec.md §4.5. Every mnemonic in the comment above a byte run names
// exactly the bytes that follow it; there is no general-purpose
// assembler backing this, since the stub must live inside the page this
// package maps at virtual address 0 rather than inside the Go binary's
// own .text, where the rewriter itself would otherwise be free to patch
// it.

// buildStub returns the stub byte sequence that:
//
//	push r9; push r8; push r10; push rdx; push rsi; push rdi; push rax
//	sub  rsp, 8
//	lea  rdi, [rsp + 8]
//	movabs r11, glueAddr
//	call r11
//	add  rsp, 8
//	add  rsp, 8
//	pop rdi; pop rsi; pop rdx; pop r10; pop r8; pop r9
//	ret
//
// glueAddr is the address of the assembly glue routine that bridges into
// hook.Entry (see glue_amd64.s). The seven pushes lay down the register
// record in the exact field order rax, rdi, rsi, rdx, r10, r8, r9 with
// rax at the lowest stack address (it is pushed last), matching
// rawsyscall.Regs, whose RAX field sits at offset 0.
func buildStub(glueAddr uint64) []byte {
	var b []byte

	push := func(opcode byte) { b = append(b, opcode) }
	// push r9, r8, r10 use the REX.B prefix (0x41) since they are the
	// extended register numbers 9, 8, 10.
	push(0x41)
	push(0x51) // push r9
	push(0x41)
	push(0x50) // push r8
	push(0x41)
	push(0x52) // push r10
	push(0x52) // push rdx
	push(0x56) // push rsi
	push(0x57) // push rdi
	push(0x50) // push rax

	// sub rsp, 8 -> 48 83 EC 08
	b = append(b, 0x48, 0x83, 0xec, 0x08)

	// lea rdi, [rsp+8] -> 48 8D 7C 24 08
	b = append(b, 0x48, 0x8d, 0x7c, 0x24, 0x08)

	// movabs r11, imm64 -> 49 BB <8 bytes little-endian>
	b = append(b, 0x49, 0xbb)
	b = appendUint64LE(b, glueAddr)

	// call r11 -> 41 FF D3
	b = append(b, 0x41, 0xff, 0xd3)

	// add rsp, 8 (twice) -> 48 83 C4 08
	b = append(b, 0x48, 0x83, 0xc4, 0x08)
	b = append(b, 0x48, 0x83, 0xc4, 0x08)

	// pop rdi, rsi, rdx, r10, r8, r9
	b = append(b, 0x5f) // pop rdi
	b = append(b, 0x5e) // pop rsi
	b = append(b, 0x5a) // pop rdx
	b = append(b, 0x41, 0x5a) // pop r10
	b = append(b, 0x41, 0x58) // pop r8
	b = append(b, 0x41, 0x59) // pop r9

	b = append(b, 0xc3) // ret

	return b
}

func appendUint64LE(b []byte, v uint64) []byte {
	for i := 0; i < 8; i++ {
		b = append(b, byte(v>>(8*uint(i))))
	}
	return b
}
