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

	"github.com/zpoline-go/zpoline/pkg/zpoline/bootconfig"
)

// configCmd shows how ZPOLINE_CONFIG/ZPOLINE_EXCLUDE/ZPOLINE_HOOK
// resolve, for operators debugging why a particular module was or
// wasn't excluded from rewriting.
type configCmd struct{}

func (*configCmd) Name() string     { return "config" }
func (*configCmd) Synopsis() string { return "print the resolved bootconfig merge result" }
func (*configCmd) Usage() string {
	return "config - print resolved exclude paths, dry-run flag, and hook library path\n"
}

func (*configCmd) SetFlags(*flag.FlagSet) {}

func (*configCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	resolved, err := bootconfig.Load()
	if err != nil {
		fmt.Printf("config load failed: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("hook_library: %s\n", orNone(resolved.HookLibrary))
	fmt.Printf("dry_run: %v\n", resolved.Config.IsDryRun())
	fmt.Printf("exclude_ranges: %d\n", resolved.Config.ExcludeRangeCount())
	fmt.Printf("exclude_paths:\n")
	for _, p := range resolved.Config.ExcludePaths() {
		fmt.Printf("  - %s\n", p)
	}
	return subcommands.ExitSuccess
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
