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

// Package bootstrap drives the one-shot sequence that installs syscall
// interception in the current process: build the zero-page trampoline,
// compose the exclude set, rewrite every eligible executable region,
// and report statistics. See spec.md §4.7 and §4.9.
package bootstrap

import (
	"fmt"
	"os"
	"sync"

	"github.com/zpoline-go/zpoline/pkg/zpoline/bootconfig"
	"github.com/zpoline-go/zpoline/pkg/zpoline/hook"
	"github.com/zpoline-go/zpoline/pkg/zpoline/hookloader"
	"github.com/zpoline-go/zpoline/pkg/zpoline/procmaps"
	"github.com/zpoline-go/zpoline/pkg/zpoline/rawsyscall"
	"github.com/zpoline-go/zpoline/pkg/zpoline/rewriter"
	"github.com/zpoline-go/zpoline/pkg/zpoline/trampoline"
	"github.com/zpoline-go/zpoline/pkg/zpoline/zlog"
)

// State names the bootstrap state machine of spec.md §4.9.
type State int

const (
	Uninit State = iota
	TrampolineReady
	Rewritten
	Serving
	Failed
)

func (s State) String() string {
	switch s {
	case Uninit:
		return "UNINIT"
	case TrampolineReady:
		return "TRAMPOLINE_READY"
	case Rewritten:
		return "REWRITTEN"
	case Serving:
		return "SERVING"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

var (
	once     sync.Once
	mu       sync.Mutex
	state    = Uninit
	lastErr  error
	stats    rewriter.Stats
	zeroPage *trampoline.Trampoline
)

// options configures a single Once call.
type options struct {
	exit         func(int)
	excludePaths []string
	dryRun       bool
}

// Option customizes Once's behavior. Most callers need none; the
// default composes the full exclude set from spec.md §4.4 automatically.
type Option func(*options)

// WithExit overrides the function called on a fatal bootstrap failure.
// Tests inject a non-terminating stand-in; production code defaults to
// os.Exit.
func WithExit(fn func(int)) Option {
	return func(o *options) { o.exit = fn }
}

// WithExcludePath adds an extra path prefix to the exclude set, beyond
// what ZPOLINE_EXCLUDE already contributes.
func WithExcludePath(prefix string) Option {
	return func(o *options) { o.excludePaths = append(o.excludePaths, prefix) }
}

// WithDryRun(true) forces dry-run mode regardless of ZPOLINE_CONFIG.
// WithDryRun(false) leaves the configured dry_run setting in effect.
func WithDryRun(enabled bool) Option {
	return func(o *options) { o.dryRun = enabled }
}

// CurrentState returns the current bootstrap state.
func CurrentState() State {
	mu.Lock()
	defer mu.Unlock()
	return state
}

// Stats returns a snapshot of the last completed rewrite pass's
// statistics. Zero-valued before the first successful Once call.
func Stats() rewriter.Stats {
	mu.Lock()
	defer mu.Unlock()
	return stats
}

// LastError returns the error that drove the state machine into Failed,
// or nil.
func LastError() error {
	mu.Lock()
	defer mu.Unlock()
	return lastErr
}

// Once runs the bootstrap sequence exactly once per process, regardless
// of how many times or with what options it is called; the first call's
// options win. Subsequent calls return the first call's result.
func Once(opts ...Option) error {
	once.Do(func() {
		lastErr = run(opts...)
	})
	return LastError()
}

func run(opts ...Option) error {
	o := &options{exit: os.Exit}
	for _, opt := range opts {
		opt(o)
	}

	setState(Uninit)
	zlog.Infof("bootstrap: starting")

	if rawsyscall.MaxKnownSyscallNumber >= trampoline.MaxSyscallNR {
		setState(Failed)
		err := fmt.Errorf("bootstrap: highest known syscall number %d does not fit the trampoline's %d-byte NOP sled",
			rawsyscall.MaxKnownSyscallNumber, trampoline.MaxSyscallNR)
		zlog.Fatalf("%v", err)
		o.exit(1)
		return err
	}

	tr, err := trampoline.Setup()
	if err != nil {
		setState(Failed)
		zlog.Fatalf("bootstrap: trampoline setup failed: %v", err)
		o.exit(1)
		return err
	}
	zeroPage = tr
	setState(TrampolineReady)
	zlog.Infof("bootstrap: trampoline ready at VA 0")

	resolved, err := bootconfig.Load()
	if err != nil {
		zlog.Warningf("bootstrap: config load failed, using defaults: %v", err)
		resolved = &bootconfig.Resolved{Config: rewriter.NewConfig()}
	}
	rwConfig := resolved.Config
	if o.dryRun {
		rwConfig = rewriter.NewConfig().DryRun(true)
		for _, p := range resolved.Config.ExcludePaths() {
			rwConfig.ExcludePath(p)
		}
	}
	for _, p := range o.excludePaths {
		rwConfig.ExcludePath(p)
	}
	addCoreExclusions(rwConfig)

	if resolved.HookLibrary != "" {
		fn, err := hookloader.Load(resolved.HookLibrary)
		if err != nil {
			zlog.Warningf("bootstrap: hook library load failed, keeping default hook: %v", err)
		} else {
			hook.Init(fn)
			zlog.Infof("bootstrap: loaded hook library %s", resolved.HookLibrary)
		}
	}

	regions, err := procmaps.ParseSelf()
	if err != nil {
		setState(Failed)
		zlog.Fatalf("bootstrap: failed to read process map: %v", err)
		o.exit(1)
		return err
	}

	rw := rewriter.New(rwConfig)
	total := 0
	eligible, failed := 0, 0
	for _, region := range regions {
		if isKernelVirtualRegion(region) {
			continue
		}
		if !region.IsExecutable() || rwConfig.IsExcluded(region) {
			continue
		}
		eligible++
		n, err := rw.RewriteRegion(region)
		if err != nil {
			failed++
			zlog.Warningf("bootstrap: region %s (%#x-%#x) failed: %v",
				region.Pathname, region.Start, region.End, err)
			continue
		}
		total += n
	}

	mu.Lock()
	stats = rw.Stats()
	mu.Unlock()

	if eligible > 0 && failed == eligible {
		setState(Failed)
		err := fmt.Errorf("bootstrap: all %d eligible executable regions failed to rewrite", eligible)
		zlog.Fatalf("%v", err)
		o.exit(1)
		return err
	}

	if total == 0 && stats.RegionsScanned > 0 {
		zlog.Warningf("bootstrap: no syscall sites were rewritten across %d scanned regions", stats.RegionsScanned)
	}

	setState(Rewritten)
	zlog.Infof("bootstrap: rewrote %d sites across %d regions (%d skipped)",
		total, stats.RegionsRewritten, stats.RegionsSkipped)

	setState(Serving)
	return nil
}

func setState(s State) {
	mu.Lock()
	state = s
	mu.Unlock()
}

// addCoreExclusions implements spec.md §4.4's exclude-set composition:
// the raw syscall path, the first 64 KiB (trampoline and slack), and the
// running executable's own path. Configured and caller-supplied path
// prefixes are added by run before this is called, and [vdso]/[vsyscall]
// regions are filtered out in run's region loop.
func addCoreExclusions(cfg *rewriter.Config) {
	for _, r := range rawsyscall.ExcludedRanges() {
		cfg.ExcludeRange(r.Start, r.End)
	}
	cfg.ExcludeRange(0, 64*1024)

	if selfPath, ok := executableSelfPath(); ok {
		cfg.ExcludePath(selfPath)
	}
}

func executableSelfPath() (string, bool) {
	p, err := os.Executable()
	if err != nil {
		return "", false
	}
	return p, true
}

func isKernelVirtualRegion(r procmaps.Region) bool {
	return r.Pathname == "[vdso]" || r.Pathname == "[vsyscall]"
}
