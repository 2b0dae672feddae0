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

import "fmt"

// ProtectError wraps a failure to change a region's page protection.
type ProtectError struct {
	Err error
}

func (e *ProtectError) Error() string { return fmt.Sprintf("memory protection error: %v", e.Err) }
func (e *ProtectError) Unwrap() error { return e.Err }

// DecodeError wraps an instruction-decoder failure.
type DecodeError struct {
	Msg string
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode error: %s", e.Msg) }

// OtherError covers conditions that don't fit the two categories above.
type OtherError struct {
	Msg string
}

func (e *OtherError) Error() string { return e.Msg }
