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

import "github.com/mohae/deepcopy"

// Stats holds the monotonically non-decreasing counters spec.md §3
// requires: how many regions were looked at, how many were actually
// patched or skipped, and how many of each trapping instruction were
// replaced.
type Stats struct {
	RegionsScanned    int
	RegionsRewritten  int
	RegionsSkipped    int
	SyscallsReplaced  int
	SysentersReplaced int
}

// Snapshot returns a copy of s that the caller may read or retain
// without racing the live counters a Rewriter keeps updating. It uses
// mohae/deepcopy rather than a hand-rolled struct copy so that adding a
// field to Stats later can't silently reintroduce aliasing here.
func (s *Stats) Snapshot() Stats {
	return deepcopy.Copy(*s).(Stats)
}
