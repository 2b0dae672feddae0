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

package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/zpoline-go/zpoline/pkg/zpoline/bootstrap"
)

// bootstrapCmd runs bootstrap.Once against zpolinectl's own process.
// Outside of documentation and manual smoke-testing this is not a
// useful way to instrument a real target: the core is meant to run
// inside the target's own address space via its load-time initializer,
// not be invoked against a throwaway CLI process (see spec.md's
// Non-goals on the process-wide initializer).
type bootstrapCmd struct {
	dryRun bool
}

func (*bootstrapCmd) Name() string     { return "bootstrap" }
func (*bootstrapCmd) Synopsis() string { return "run bootstrap against this process (demo only)" }
func (*bootstrapCmd) Usage() string {
	return "bootstrap [-dry-run] - install syscall interception in the current process\n"
}

func (c *bootstrapCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.dryRun, "dry-run", false, "count sites without patching them")
}

func (c *bootstrapCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	err := bootstrap.Once(bootstrap.WithDryRun(c.dryRun))
	if err != nil {
		fmt.Printf("bootstrap failed: %v\n", err)
		return subcommands.ExitFailure
	}
	stats := bootstrap.Stats()
	fmt.Printf("bootstrap complete: state=%s regions_scanned=%d regions_rewritten=%d syscalls_replaced=%d sysenters_replaced=%d\n",
		bootstrap.CurrentState(), stats.RegionsScanned, stats.RegionsRewritten,
		stats.SyscallsReplaced, stats.SysentersReplaced)
	return subcommands.ExitSuccess
}
