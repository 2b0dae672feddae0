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

// Package zlog is a small leveled-logging façade used throughout this
// module, matching the call-site idiom of gVisor's pkg/log (Infof,
// Warningf, Debugf) while backing it with the teacher repo's declared
// logging dependency, logrus.
package zlog

import (
	"os"

	"github.com/sirupsen/logrus"
)

var std = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	if os.Getenv("ZPOLINE_DEBUG") != "" {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

// SetOutput redirects all subsequent log output, primarily for tests.
func SetOutput(w interface {
	Write([]byte) (int, error)
}) {
	std.SetOutput(w)
}

// Infof logs at info level.
func Infof(format string, args ...any) { std.Infof(format, args...) }

// Warningf logs at warn level.
func Warningf(format string, args ...any) { std.Warnf(format, args...) }

// Debugf logs at debug level.
func Debugf(format string, args ...any) { std.Debugf(format, args...) }

// Fatalf logs at error level only. Unlike logrus.Fatalf, it neither calls
// os.Exit nor any exit hook: bootstrap controls process termination
// explicitly, after calling Fatalf, so tests can observe the "would have
// exited" path.
func Fatalf(format string, args ...any) { std.Errorf(format, args...) }
