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

package bootconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{envConfig, envExclude, envHook} {
		old, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, old)
			}
		})
	}
}

func TestLoadDefaultsWithNoEnv(t *testing.T) {
	clearEnv(t)
	r, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if r.HookLibrary != "" {
		t.Fatalf("HookLibrary = %q, want empty", r.HookLibrary)
	}
	if r.Config.IsDryRun() {
		t.Fatalf("IsDryRun = true, want false")
	}
}

func TestLoadFileThenEnvOverride(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "zpoline.toml")
	body := "dry_run = true\nhook_library = \"/opt/hook.so\"\nexclude_paths = [\"/lib/libc.so\"]\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	os.Setenv(envConfig, path)
	os.Setenv(envHook, "/opt/override.so")
	os.Setenv(envExclude, "/usr/lib/:/opt/extra/")

	r, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if r.HookLibrary != "/opt/override.so" {
		t.Fatalf("HookLibrary = %q, want env override", r.HookLibrary)
	}
	if !r.Config.IsDryRun() {
		t.Fatalf("IsDryRun = false, want true from file")
	}
	paths := r.Config.ExcludePaths()
	want := map[string]bool{"/lib/libc.so": true, "/usr/lib/": true, "/opt/extra/": true}
	if len(paths) != len(want) {
		t.Fatalf("ExcludePaths = %v, want %v", paths, want)
	}
	for _, p := range paths {
		if !want[p] {
			t.Fatalf("unexpected exclude path %q", p)
		}
	}
}

func TestLoadMissingConfigFileErrors(t *testing.T) {
	clearEnv(t)
	os.Setenv(envConfig, "/nonexistent/zpoline.toml")
	if _, err := Load(); err == nil {
		t.Fatal("Load: expected error for missing config file")
	}
}
