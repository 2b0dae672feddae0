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
	"reflect"

	"github.com/zpoline-go/zpoline/pkg/zpoline/hook"
	"github.com/zpoline-go/zpoline/pkg/zpoline/rawsyscall"
)

// cHookEntryGlue has no Go body; it is implemented in glue_amd64.s. It
// is the address the hand-assembled stub calls with %rdi holding the
// register record pointer, following plain C calling convention. Its
// job is solely to reshape that argument onto the stack the way Go's
// ABI0 expects before calling goHookEntry, the same bridge shape the Go
// runtime itself uses wherever assembly needs to call back into Go
// (compare runtime.asmcgocall's stack-based handoff).
func cHookEntryGlue()

// goHookEntry is the actual hook dispatch, reached only through
// cHookEntryGlue. It must never be called directly from Go code that
// expects ordinary ABIInternal register passing; the asm wrapper exists
// precisely because the stub's caller-saved register layout does not
// match what a direct Go call from hand-assembled bytes could rely on.
func goHookEntry(r *rawsyscall.Regs) int64 {
	return hook.Entry(r)
}

// glueEntryAddr returns the address the stub should call into.
func glueEntryAddr() uint64 {
	return uint64(reflect.ValueOf(cHookEntryGlue).Pointer())
}
