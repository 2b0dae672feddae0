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

package procmaps

import (
	"os"
	"path/filepath"
	"testing"
)

// S1 from spec.md §8.
func TestParseLineNamedRegion(t *testing.T) {
	line := "7f8b4c000000-7f8b4c021000 r-xp 00000000 08:01 1234 /lib/x86_64-linux-gnu/libc.so.6"
	r, ok := parseLine(line)
	if !ok {
		t.Fatal("parseLine returned ok=false")
	}
	if r.Start != 0x7f8b4c000000 || r.End != 0x7f8b4c021000 {
		t.Errorf("bad address range: %#x-%#x", r.Start, r.End)
	}
	if !r.Read || r.Write || !r.Execute || !r.Private {
		t.Errorf("bad perms: %+v", r)
	}
	if r.Offset != 0 {
		t.Errorf("Offset = %d, want 0", r.Offset)
	}
	if r.Device != "08:01" {
		t.Errorf("Device = %q, want 08:01", r.Device)
	}
	if r.Inode != 1234 {
		t.Errorf("Inode = %d, want 1234", r.Inode)
	}
	if r.Pathname != "/lib/x86_64-linux-gnu/libc.so.6" {
		t.Errorf("Pathname = %q", r.Pathname)
	}
}

// S2 from spec.md §8.
func TestParseLineAnonymousRegion(t *testing.T) {
	line := "7ffd1234000-7ffd1235000 rw-p 00000000 00:00 0"
	r, ok := parseLine(line)
	if !ok {
		t.Fatal("parseLine returned ok=false")
	}
	if r.Pathname != "" {
		t.Errorf("Pathname = %q, want empty", r.Pathname)
	}
	if r.IsExecutable() {
		t.Error("region should not be executable")
	}
	if !r.IsWritable() {
		t.Error("region should be writable")
	}
}

func TestParseLineMalformedDropped(t *testing.T) {
	for _, line := range []string{
		"",
		"not-a-valid-line",
		"7f8b4c000000 r-xp 00000000 08:01 1234",
		"7f8b4c000000-7f8b4c021000 rx 00000000 08:01 1234",
	} {
		if _, ok := parseLine(line); ok {
			t.Errorf("parseLine(%q) = ok, want dropped", line)
		}
	}
}

func TestParseFileLenient(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "maps")
	content := "garbage line with no structure\n" +
		"7f0000000000-7f0000001000 r-xp 00000000 00:00 0 \n" +
		"400000-401000 rw-p 00000000 08:01 99 /bin/true\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	regions, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(regions) != 2 {
		t.Fatalf("got %d regions, want 2: %+v", len(regions), regions)
	}
	if regions[1].Pathname != "/bin/true" {
		t.Errorf("Pathname = %q", regions[1].Pathname)
	}
}

func TestParseFileMissing(t *testing.T) {
	_, err := ParseFile("/nonexistent/path/does-not-exist")
	if err == nil {
		t.Fatal("expected an error for a missing file")
	}
	var ioErr *IOError
	if !as(err, &ioErr) {
		t.Fatalf("error is not an *IOError: %v (%T)", err, err)
	}
}

func as(err error, target **IOError) bool {
	ioErr, ok := err.(*IOError)
	if !ok {
		return false
	}
	*target = ioErr
	return true
}

func TestParseSelf(t *testing.T) {
	regions, err := ParseSelf()
	if err != nil {
		t.Fatalf("ParseSelf: %v", err)
	}
	if len(regions) == 0 {
		t.Fatal("ParseSelf returned no regions for the running test binary")
	}
	var sawExecutable bool
	for _, r := range regions {
		if r.Start >= r.End {
			t.Errorf("region %+v has Start >= End", r)
		}
		if r.IsExecutable() {
			sawExecutable = true
		}
	}
	if !sawExecutable {
		t.Error("expected at least one executable region in the test binary's own map")
	}
}
