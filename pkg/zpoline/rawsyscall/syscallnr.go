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

package rawsyscall

import "golang.org/x/sys/unix"

// MaxKnownSyscallNumber is the highest syscall number x/sys/unix generates
// constants for on this GOARCH. Bootstrap refuses to run if this reaches
// the trampoline's NOP sled length, resolving the open question in
// spec.md §9 about the precise upper bound on legal syscall numbers.
const MaxKnownSyscallNumber = unix.SYS_SET_MEMPOLICY_HOME_NODE
