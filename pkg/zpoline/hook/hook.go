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

// Package hook holds the process-global hook function pointer, the
// reentrancy guard that keeps a user hook from being re-entered on the
// same thread, and the dispatcher the trampoline stub's call targets.
package hook

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/zpoline-go/zpoline/pkg/zpoline/rawsyscall"
	"github.com/zpoline-go/zpoline/pkg/zpoline/zlog"
)

// Func is the hook function type: it receives a pointer to the register
// record and returns the value that should appear in %rax after the
// trampoline stub returns.
type Func func(r *rawsyscall.Regs) int64

var (
	// current holds the process-wide hook function pointer. Go's atomic
	// load/store are always sequentially consistent, which is what
	// spec.md §5 requires of the publication of a new hook.
	current atomic.Pointer[Func]

	callCount atomic.Uint64
)

func init() {
	identity := Func(defaultHook)
	current.Store(&identity)
}

func defaultHook(r *rawsyscall.Regs) int64 {
	return rawsyscall.Raw(r)
}

// Init publishes fn as the new hook function. This is the symbol named
// __hook_init in spec.md §6.
func Init(fn Func) {
	f := fn
	current.Store(&f)
}

// Get returns the currently installed hook function.
func Get() Func {
	return *current.Load()
}

// CallCount returns the number of times Entry has been invoked. This is
// the diagnostic counter named get_hook_entry_call_count in spec.md §6;
// it uses relaxed-equivalent semantics (Go's atomic counters have no
// weaker mode, so this is merely advisory, matching the spec).
func CallCount() uint64 {
	return callCount.Load()
}

// reentrancy tracks, per OS thread ID, whether that thread is currently
// inside a user hook invocation. Go has no native OS-thread-local
// storage (goroutines, not threads, are the unit of scheduling), so this
// emulates spec.md §3's thread-local reentrancy flag with a table keyed
// by Linux TID. Each key is only ever touched by the thread it names,
// so concurrent access from other threads only ever touches other keys.
var reentrancy sync.Map // map[int32]*atomic.Bool

func flagForCurrentThread() *atomic.Bool {
	tid := int32(unix.Gettid())
	if v, ok := reentrancy.Load(tid); ok {
		return v.(*atomic.Bool)
	}
	flag := new(atomic.Bool)
	actual, _ := reentrancy.LoadOrStore(tid, flag)
	return actual.(*atomic.Bool)
}

// Entry is the function the trampoline stub's "call r11" targets
// (hook_entry in spec.md §6). It is panic-free by construction: any
// panic raised by a user hook is recovered and reported to the caller as
// -EFAULT, so a misbehaving hook can never propagate out through
// self-modified code the Go runtime does not expect to unwind through.
func Entry(r *rawsyscall.Regs) (result int64) {
	callCount.Add(1)

	flag := flagForCurrentThread()
	if flag.Load() {
		// Reentrant call: a syscall issued from inside a user hook
		// (e.g. by fmt.Fprintf allocating or writing) must reach the
		// kernel directly, never the user hook again, per spec.md §4.6
		// and the per-syscall state machine in §4.9.
		return rawsyscall.Raw(r)
	}

	flag.Store(true)
	defer flag.Store(false)

	defer func() {
		if rec := recover(); rec != nil {
			zlog.Warningf("zpoline: hook panicked: %v", rec)
			result = -int64(unix.EFAULT)
		}
	}()

	return Get()(r)
}

// IsInHook reports whether the calling thread is currently executing
// inside a user hook. Exposed for tests exercising the reentrancy bound.
func IsInHook() bool {
	return flagForCurrentThread().Load()
}
