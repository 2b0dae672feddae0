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

// Command zpolinectl is a diagnostic and demonstration CLI for the
// zpoline syscall-interception core: it can drive bootstrap against
// itself, print the last bootstrap's statistics, and show how
// ZPOLINE_CONFIG/ZPOLINE_EXCLUDE/ZPOLINE_HOOK resolve.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"

	"github.com/zpoline-go/zpoline/pkg/zpoline/zlog"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")

	subcommands.Register(&bootstrapCmd{}, "")
	subcommands.Register(&statsCmd{}, "")
	subcommands.Register(&configCmd{}, "")

	flag.Parse()
	zlog.Infof("zpolinectl starting, args=%v", os.Args)
	os.Exit(int(subcommands.Execute(context.Background())))
}
