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
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/subcommands"

	"github.com/zpoline-go/zpoline/pkg/zpoline/bootstrap"
	"github.com/zpoline-go/zpoline/pkg/zpoline/zlog"
)

// statsCmd prints bootstrap.Stats() as JSON, either to stdout or appended
// to a file. The statistics are those of a bootstrap run in the current
// process; nothing persists them between zpolinectl invocations, so a
// standalone "stats" run reports zero counters. The file write is
// flock-guarded so two
// concurrently running zpolinectl processes sharing a stats file don't
// interleave partial JSON objects.
type statsCmd struct {
	outFile string
}

func (*statsCmd) Name() string     { return "stats" }
func (*statsCmd) Synopsis() string { return "print the last bootstrap's rewrite statistics" }
func (*statsCmd) Usage() string {
	return "stats [-out <file>] - print rewrite statistics as JSON\n"
}

func (c *statsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.outFile, "out", "", "append JSON stats to this file instead of stdout")
}

func (c *statsCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	stats := bootstrap.Stats()
	b, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		fmt.Printf("marshaling stats: %v\n", err)
		return subcommands.ExitFailure
	}
	b = append(b, '\n')

	if c.outFile == "" {
		os.Stdout.Write(b)
		return subcommands.ExitSuccess
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	lock := flock.New(c.outFile + ".lock")
	locked, err := lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil || !locked {
		zlog.Warningf("stats: could not acquire lock on %s: %v", c.outFile, err)
		return subcommands.ExitFailure
	}
	defer lock.Unlock()

	f, err := os.OpenFile(c.outFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Printf("opening %s: %v\n", c.outFile, err)
		return subcommands.ExitFailure
	}
	defer f.Close()
	if _, err := f.Write(b); err != nil {
		fmt.Printf("writing %s: %v\n", c.outFile, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
