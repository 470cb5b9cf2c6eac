// Copyright 2024 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

// Package command builds the argument vectors of the external programs the
// pipeline runs, one typed builder per program.
package command

import (
	"fmt"
	"strings"

	"github.com/kballard/go-shellquote"
	"github.com/mattn/go-shellwords"
	cerrors "github.com/pingcap/nbest-rescore/pkg/errors"
)

// Builder is implemented by every typed command.
type Builder interface {
	// Kind names the program, e.g. "rescore".
	Kind() string
	// Validate checks all required fields are set.
	Validate() error
	// Args returns the argument vector, program first.
	Args() ([]string, error)
}

// ParseProgram splits a shell-style program string such as
// "python3 /opt/bin/rescore_split.py" into an argument vector. Scheduler
// wrappers and pipeline programs are parsed the same way.
func ParseProgram(program string) ([]string, error) {
	args, err := shellwords.Parse(program)
	if err != nil {
		return nil, cerrors.WrapError(cerrors.ErrInvalidCommand, err,
			"program", fmt.Sprintf("cannot parse %q", program))
	}
	if len(args) == 0 {
		return nil, cerrors.ErrInvalidCommand.GenWithStackByArgs(
			"program", fmt.Sprintf("%q is empty", program))
	}
	return args, nil
}

// Render quotes argv into a single line that a POSIX shell splits back into
// the same arguments.
func Render(argv []string) string {
	return shellquote.Join(argv...)
}

// Build validates b and returns its argument vector.
func Build(b Builder) ([]string, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b.Args()
}

func requireFields(kind string, fields ...[2]string) error {
	var missing []string
	for _, f := range fields {
		if strings.TrimSpace(f[1]) == "" {
			missing = append(missing, f[0])
		}
	}
	if len(missing) > 0 {
		return cerrors.ErrInvalidCommand.GenWithStackByArgs(
			kind, "missing "+strings.Join(missing, ", "))
	}
	return nil
}
