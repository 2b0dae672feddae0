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

// Package rewriter scans the executable regions of the current process
// and replaces every syscall/sysenter instruction with a two-byte
// indirect call, callq *%rax, under temporarily-widened page protection.
package rewriter

import (
	"os"
	"unsafe"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/zpoline-go/zpoline/pkg/zpoline/decoder"
	"github.com/zpoline-go/zpoline/pkg/zpoline/procmaps"
)

// Replacement bytes per spec.md §6: 0F 05 and 0F 34 both become FF D0.
const (
	origByte0 = 0x0f
	origByte1Syscall  = 0x05
	origByte1Sysenter = 0x34
	newByte0 = 0xff
	newByte1 = 0xd0
)

var pageSize = uintptr(os.Getpagesize())

// Rewriter orchestrates region selection, protection flipping, and
// two-byte patching for one process. It is not safe for concurrent use
// by multiple goroutines calling RewriteRegion on overlapping regions;
// RewriteAll serializes the patch phase per region while letting the
// read-only scan phase run concurrently (see spec.md §4.4's rationale
// reproduced in SPEC_FULL.md §4.4).
type Rewriter struct {
	config *Config
	stats  Stats
}

// New returns a Rewriter governed by config.
func New(config *Config) *Rewriter {
	return &Rewriter{config: config}
}

// Stats returns a point-in-time snapshot of the rewrite statistics.
func (rw *Rewriter) Stats() Stats { return rw.stats.Snapshot() }

// RewriteRegion implements the algorithm of spec.md §4.4 for a single
// memory region, returning the number of instructions replaced.
func (rw *Rewriter) RewriteRegion(region procmaps.Region) (int, error) {
	rw.stats.RegionsScanned++

	if !region.IsExecutable() {
		return 0, nil
	}

	if rw.config.IsExcluded(region) {
		rw.stats.RegionsSkipped++
		return 0, nil
	}

	sites, err := rw.scan(region)
	if err != nil {
		return 0, err
	}
	if len(sites) == 0 {
		return 0, nil
	}

	if rw.config.IsDryRun() {
		rw.tally(sites)
		return len(sites), nil
	}

	alignedStart, alignedLen := alignToPages(region.Start, region.End)

	writableProt := unix.PROT_READ | unix.PROT_EXEC
	if region.IsWritable() {
		writableProt |= unix.PROT_WRITE
	}
	if err := mprotect(alignedStart, alignedLen, unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC); err != nil {
		return 0, &ProtectError{Err: err}
	}

	code := memSlice(region.Start, int(region.Size()))
	replaced := 0
	for _, s := range sites {
		if s.Offset+2 > len(code) {
			continue
		}
		b0, b1 := code[s.Offset], code[s.Offset+1]
		switch s.Kind {
		case decoder.Syscall:
			if b0 != origByte0 || b1 != origByte1Syscall {
				continue
			}
		case decoder.Sysenter:
			if b0 != origByte0 || b1 != origByte1Sysenter {
				continue
			}
		}
		code[s.Offset] = newByte0
		code[s.Offset+1] = newByte1
		replaced++
		switch s.Kind {
		case decoder.Syscall:
			rw.stats.SyscallsReplaced++
		case decoder.Sysenter:
			rw.stats.SysentersReplaced++
		}
	}

	restoreProt := unix.PROT_READ | unix.PROT_EXEC
	if region.IsWritable() {
		restoreProt = writableProt
	}
	if err := mprotect(alignedStart, alignedLen, restoreProt); err != nil {
		return replaced, &ProtectError{Err: err}
	}

	if replaced > 0 {
		rw.stats.RegionsRewritten++
	}
	return replaced, nil
}

func (rw *Rewriter) scan(region procmaps.Region) ([]decoder.Site, error) {
	code := memSlice(region.Start, int(region.Size()))
	return decoder.ScanAll(uint64(region.Start), code), nil
}

func (rw *Rewriter) tally(sites []decoder.Site) {
	for _, s := range sites {
		switch s.Kind {
		case decoder.Syscall:
			rw.stats.SyscallsReplaced++
		case decoder.Sysenter:
			rw.stats.SysentersReplaced++
		}
	}
}

// RewriteAll runs RewriteRegion over every region in regions, scanning
// concurrently (read-only, so safe to parallelize) and patching each
// region's protection/write/restore phase serially with respect to the
// others, since protection changes on one mapping never need to wait on
// another's. Per-region errors are collected and returned to the caller
// for logging; they do not stop the remaining regions from being
// processed, matching spec.md §7 ("per-region failures... proceed to
// the next region").
func (rw *Rewriter) RewriteAll(regions []procmaps.Region) (total int, perRegionErrs map[int]error) {
	type scanResult struct {
		idx   int
		sites []decoder.Site
		err   error
	}

	results := make([]scanResult, len(regions))
	g := new(errgroup.Group)
	for i, region := range regions {
		i, region := i, region
		g.Go(func() error {
			if !region.IsExecutable() || rw.config.IsExcluded(region) {
				results[i] = scanResult{idx: i}
				return nil
			}
			code := memSlice(region.Start, int(region.Size()))
			results[i] = scanResult{idx: i, sites: decoder.ScanAll(uint64(region.Start), code)}
			return nil
		})
	}
	// Scan errors cannot currently occur (decoder.ScanAll never errors),
	// but errgroup.Wait is still the right join point for when a future
	// decoder gains fallible modes.
	_ = g.Wait()

	perRegionErrs = make(map[int]error)
	for i, region := range regions {
		rw.stats.RegionsScanned++
		if !region.IsExecutable() {
			continue
		}
		if rw.config.IsExcluded(region) {
			rw.stats.RegionsSkipped++
			continue
		}
		n, err := rw.patchSites(region, results[i].sites)
		if err != nil {
			perRegionErrs[i] = err
			continue
		}
		total += n
	}
	return total, perRegionErrs
}

// patchSites applies the protect/patch/restore phase for one region's
// already-discovered sites. It duplicates the tail half of RewriteRegion
// deliberately: RewriteRegion also performs its own scan (needed when
// called standalone, e.g. from tests and from idempotence checks), while
// RewriteAll's scan phase has already run concurrently above.
func (rw *Rewriter) patchSites(region procmaps.Region, sites []decoder.Site) (int, error) {
	if len(sites) == 0 {
		return 0, nil
	}
	if rw.config.IsDryRun() {
		rw.tally(sites)
		return len(sites), nil
	}

	alignedStart, alignedLen := alignToPages(region.Start, region.End)
	writableProt := unix.PROT_READ | unix.PROT_EXEC
	if region.IsWritable() {
		writableProt |= unix.PROT_WRITE
	}
	if err := mprotect(alignedStart, alignedLen, unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC); err != nil {
		return 0, &ProtectError{Err: err}
	}

	code := memSlice(region.Start, int(region.Size()))
	replaced := 0
	for _, s := range sites {
		if s.Offset+2 > len(code) {
			continue
		}
		b0, b1 := code[s.Offset], code[s.Offset+1]
		switch s.Kind {
		case decoder.Syscall:
			if b0 != origByte0 || b1 != origByte1Syscall {
				continue
			}
		case decoder.Sysenter:
			if b0 != origByte0 || b1 != origByte1Sysenter {
				continue
			}
		}
		code[s.Offset] = newByte0
		code[s.Offset+1] = newByte1
		replaced++
		switch s.Kind {
		case decoder.Syscall:
			rw.stats.SyscallsReplaced++
		case decoder.Sysenter:
			rw.stats.SysentersReplaced++
		}
	}

	restoreProt := unix.PROT_READ | unix.PROT_EXEC
	if region.IsWritable() {
		restoreProt = writableProt
	}
	if err := mprotect(alignedStart, alignedLen, restoreProt); err != nil {
		return replaced, &ProtectError{Err: err}
	}
	if replaced > 0 {
		rw.stats.RegionsRewritten++
	}
	return replaced, nil
}

func alignToPages(start, end uintptr) (alignedStart, alignedLen uintptr) {
	alignedStart = start &^ (pageSize - 1)
	alignedEnd := (end + pageSize - 1) &^ (pageSize - 1)
	return alignedStart, alignedEnd - alignedStart
}

func mprotect(addr, length uintptr, prot int) error {
	b := memSlice(addr, int(length))
	return unix.Mprotect(b, prot)
}

// memSlice views length bytes starting at addr as a Go byte slice. The
// caller is responsible for addr/length describing memory this process
// actually owns; this is inherently unsafe in the same way the original
// zpoline core's raw pointer arithmetic is, because the region came from
// parsing /proc/self/maps rather than from Go's allocator.
func memSlice(addr uintptr, length int) []byte {
	if length == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), length)
}
