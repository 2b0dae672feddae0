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

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestBypassGetpid(t *testing.T) {
	got := Bypass(unix.SYS_GETPID, 0, 0, 0, 0, 0, 0)
	if got <= 0 {
		t.Fatalf("Bypass(SYS_GETPID) = %d, want a positive pid", got)
	}
	if want := int64(unix.Getpid()); got != want {
		t.Fatalf("Bypass(SYS_GETPID) = %d, want %d", got, want)
	}
}

func TestRawGetpid(t *testing.T) {
	r := &Regs{RAX: unix.SYS_GETPID}
	got := Raw(r)
	if got != int64(unix.Getpid()) {
		t.Fatalf("Raw(SYS_GETPID) = %d, want %d", got, unix.Getpid())
	}
}

func TestBypassErrno(t *testing.T) {
	// close(-1) always fails with EBADF.
	got := Bypass(unix.SYS_CLOSE, ^uintptr(0), 0, 0, 0, 0, 0)
	if got != -int64(unix.EBADF) {
		t.Fatalf("Bypass(SYS_CLOSE, -1) = %d, want %d", got, -int64(unix.EBADF))
	}
}

func TestExcludedRangesWellFormed(t *testing.T) {
	ranges := ExcludedRanges()
	if len(ranges) == 0 {
		t.Fatal("ExcludedRanges() returned no ranges")
	}
	for _, r := range ranges {
		if r.Start >= r.End {
			t.Errorf("range %#x-%#x is not well-formed", r.Start, r.End)
		}
	}
}

func TestRegsLayout(t *testing.T) {
	r := Regs{RAX: 1, RDI: 2, RSI: 3, RDX: 4, R10: 5, R8: 6, R9: 7}
	if r.RAX != 1 || r.RDI != 2 || r.RSI != 3 || r.RDX != 4 || r.R10 != 5 || r.R8 != 6 || r.R9 != 7 {
		t.Fatalf("unexpected field values: %+v", r)
	}
}
