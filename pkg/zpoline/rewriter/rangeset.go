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

import "github.com/google/btree"

// rangeSet holds a set of half-open address ranges, [Start, End), indexed
// by start address so Overlaps can avoid a full linear scan once the
// exclude list grows past a handful of entries (common once a large
// binary's segments, the trampoline, and the raw syscall path are all
// excluded).
type rangeSet struct {
	tr *btree.BTree
}

type rangeItem struct {
	start, end uintptr
}

func (r rangeItem) Less(than btree.Item) bool {
	o := than.(rangeItem)
	if r.start != o.start {
		return r.start < o.start
	}
	return r.end < o.end
}

func newRangeSet() *rangeSet {
	return &rangeSet{tr: btree.New(8)}
}

// Add inserts a new excluded range. Ranges may overlap each other; that
// is harmless for Overlaps.
func (s *rangeSet) Add(start, end uintptr) {
	s.tr.ReplaceOrInsert(rangeItem{start: start, end: end})
}

// Len returns the number of ranges added.
func (s *rangeSet) Len() int { return s.tr.Len() }

// Overlaps reports whether [start, end) intersects any range in the set.
func (s *rangeSet) Overlaps(start, end uintptr) bool {
	found := false
	// Every range that could possibly overlap [start, end) has its own
	// start strictly less than end; ranges starting at or after end
	// cannot intersect a half-open interval ending at end.
	s.tr.AscendRange(rangeItem{start: 0}, rangeItem{start: end}, func(i btree.Item) bool {
		item := i.(rangeItem)
		if item.end > start {
			found = true
			return false
		}
		return true
	})
	return found
}
