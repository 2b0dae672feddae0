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

// Package bootconfig resolves the rewrite configuration and hook
// library path from an optional TOML file plus environment variable
// overrides, per spec.md §6's ZPOLINE_HOOK/ZPOLINE_EXCLUDE/ZPOLINE_CONFIG
// variables.
package bootconfig

import (
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/zpoline-go/zpoline/pkg/zpoline/rewriter"
)

const (
	envConfig  = "ZPOLINE_CONFIG"
	envExclude = "ZPOLINE_EXCLUDE"
	envHook    = "ZPOLINE_HOOK"
)

// fileConfig is the TOML document shape for ZPOLINE_CONFIG.
type fileConfig struct {
	ExcludePaths []string `toml:"exclude_paths"`
	DryRun       bool     `toml:"dry_run"`
	HookLibrary  string   `toml:"hook_library"`
}

// Resolved is the result of merging file and environment configuration:
// ZPOLINE_HOOK overrides the file's hook_library, ZPOLINE_EXCLUDE
// prefixes are added to the file's exclude_paths, and the file wins over
// built-in defaults.
type Resolved struct {
	Config      *rewriter.Config
	HookLibrary string
}

// Load builds a Resolved configuration by reading ZPOLINE_CONFIG (if
// set), then layering ZPOLINE_EXCLUDE and ZPOLINE_HOOK on top.
func Load() (*Resolved, error) {
	var fc fileConfig
	if path := os.Getenv(envConfig); path != "" {
		if _, err := toml.DecodeFile(path, &fc); err != nil {
			return nil, &LoadError{Path: path, Err: err}
		}
	}

	cfg := rewriter.NewConfig().DryRun(fc.DryRun)
	for _, p := range fc.ExcludePaths {
		cfg.ExcludePath(p)
	}
	if extra := os.Getenv(envExclude); extra != "" {
		for _, p := range strings.Split(extra, ":") {
			if p != "" {
				cfg.ExcludePath(p)
			}
		}
	}

	hookLib := fc.HookLibrary
	if h := os.Getenv(envHook); h != "" {
		hookLib = h
	}

	return &Resolved{Config: cfg, HookLibrary: hookLib}, nil
}

// LoadError wraps a failure to parse the ZPOLINE_CONFIG file.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string { return "bootconfig: " + e.Path + ": " + e.Err.Error() }
func (e *LoadError) Unwrap() error { return e.Err }
