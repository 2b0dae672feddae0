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

package rewriter

import (
	"strings"

	"github.com/zpoline-go/zpoline/pkg/zpoline/procmaps"
)

// Config is a rewrite configuration: which regions to leave untouched,
// and whether to actually patch anything. It is built once at bootstrap
// and immutable thereafter (spec.md §3).
type Config struct {
	excludePaths []string
	excludeAddrs *rangeSet
	dryRun       bool
}

// NewConfig returns an empty configuration: nothing excluded, not a dry
// run.
func NewConfig() *Config {
	return &Config{excludeAddrs: newRangeSet()}
}

// ExcludePath adds a path prefix to the exclude set: any region whose
// pathname starts with prefix will not be rewritten.
func (c *Config) ExcludePath(prefix string) *Config {
	c.excludePaths = append(c.excludePaths, prefix)
	return c
}

// ExcludeRange adds a half-open address range to the exclude set.
func (c *Config) ExcludeRange(start, end uintptr) *Config {
	c.excludeAddrs.Add(start, end)
	return c
}

// DryRun sets whether the rewriter should only count sites it would
// patch, without actually patching them.
func (c *Config) DryRun(enabled bool) *Config {
	c.dryRun = enabled
	return c
}

// ExcludePaths returns the configured exclude path prefixes.
func (c *Config) ExcludePaths() []string {
	out := make([]string, len(c.excludePaths))
	copy(out, c.excludePaths)
	return out
}

// ExcludeRangeCount returns the number of excluded address ranges.
func (c *Config) ExcludeRangeCount() int {
	if c.excludeAddrs == nil {
		return 0
	}
	return c.excludeAddrs.Len()
}

// IsDryRun reports whether this configuration is in dry-run mode.
func (c *Config) IsDryRun() bool { return c.dryRun }

// IsExcluded reports whether r should be skipped per spec.md §4.4 step 2:
// any excluded path that is a prefix of r's pathname, or any overlap
// between r's address span and an excluded range.
func (c *Config) IsExcluded(r procmaps.Region) bool {
	if r.Pathname != "" {
		for _, prefix := range c.excludePaths {
			if strings.HasPrefix(r.Pathname, prefix) {
				return true
			}
		}
	}
	return c.excludeAddrs.Overlaps(r.Start, r.End)
}
