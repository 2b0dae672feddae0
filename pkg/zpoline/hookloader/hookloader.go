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

//go:build linux
// +build linux

// Package hookloader loads a user-supplied hook shared object into a
// fresh dynamic-linker namespace, so its copy of libc (and any syscalls
// it issues on its own behalf during initialization) is isolated from
// the application being instrumented. golang.org/x/sys/unix does not
// expose dlmopen, so this is the one package in the module that needs
// cgo.
package hookloader

/*
#cgo LDFLAGS: -ldl
#include <dlfcn.h>
#include <stdlib.h>

// LM_ID_NEWLM is not exposed as a libc macro value stable across all
// glibc versions in a way cgo can see without link-map.h, so it is
// reproduced directly; glibc has guaranteed this value since dlmopen's
// introduction.
static const long zpoline_lm_id_newlm = -1;

static void *zpoline_dlmopen(const char *path) {
    return dlmopen(zpoline_lm_id_newlm, path, RTLD_NOW | RTLD_LOCAL);
}

static void *zpoline_dlsym(void *handle, const char *sym) {
    return dlsym(handle, sym);
}

static const char *zpoline_dlerror(void) {
    return dlerror();
}

typedef void *(*zpoline_init_fn)(void);

static void *zpoline_call_init(void *fn) {
    zpoline_init_fn init = (zpoline_init_fn)fn;
    return init();
}

typedef long long (*zpoline_hook_fn)(void *);

static long long zpoline_invoke_hook(void *fn, void *record) {
    zpoline_hook_fn h = (zpoline_hook_fn)fn;
    return h(record);
}
*/
import "C"

import (
	"errors"
	"fmt"
	"time"
	"unsafe"

	"github.com/cenkalti/backoff"

	"github.com/zpoline-go/zpoline/pkg/zpoline/hook"
	"github.com/zpoline-go/zpoline/pkg/zpoline/rawsyscall"
	"github.com/zpoline-go/zpoline/pkg/zpoline/zlog"
)

const initSymbol = "zpoline_hook_init"

// ErrNotSpecified is returned by Load when path is empty.
var ErrNotSpecified = errors.New("hookloader: no hook library path specified")

// OpenError wraps a dlmopen failure, carrying glibc's own diagnostic.
type OpenError struct {
	Path   string
	Detail string
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("hookloader: dlmopen(%s) failed: %s", e.Path, e.Detail)
}

// SymbolError is returned when the init symbol is missing from the
// loaded library.
type SymbolError struct {
	Symbol string
}

func (e *SymbolError) Error() string {
	return fmt.Sprintf("hookloader: symbol %q not found", e.Symbol)
}

// ErrNilHook is returned when the library's init symbol runs but
// returns a null function pointer.
var ErrNilHook = errors.New("hookloader: init symbol returned a null hook pointer")

// Load opens path in a fresh linker namespace, resolves its
// zpoline_hook_init symbol, calls it, and wraps the returned C
// function pointer as a hook.Func. Transient open failures (for
// example a library a concurrently-running build step has not yet
// flushed to disk) are retried with exponential backoff.
func Load(path string) (hook.Func, error) {
	if path == "" {
		return nil, ErrNotSpecified
	}

	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	var handle unsafe.Pointer
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 2 * time.Second

	err := backoff.Retry(func() error {
		handle = C.zpoline_dlmopen(cPath)
		if handle == nil {
			detail := dlerrorString()
			zlog.Warningf("hookloader: dlmopen(%s) attempt failed: %s", path, detail)
			return &OpenError{Path: path, Detail: detail}
		}
		return nil
	}, b)
	if err != nil {
		return nil, err
	}

	cSym := C.CString(initSymbol)
	defer C.free(unsafe.Pointer(cSym))

	initPtr := C.zpoline_dlsym(handle, cSym)
	if initPtr == nil {
		return nil, &SymbolError{Symbol: initSymbol}
	}

	hookPtr := C.zpoline_call_init(initPtr)
	if hookPtr == nil {
		return nil, ErrNilHook
	}

	return func(r *rawsyscall.Regs) int64 {
		return int64(C.zpoline_invoke_hook(hookPtr, recordPtr(r)))
	}, nil
}

func dlerrorString() string {
	p := C.zpoline_dlerror()
	if p == nil {
		return "unknown error"
	}
	return C.GoString(p)
}

func recordPtr(r *rawsyscall.Regs) unsafe.Pointer {
	return unsafe.Pointer(r)
}
