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

package config

import (
	"time"

	"github.com/pingcap/errors"
	cerrors "github.com/pingcap/nbest-rescore/pkg/errors"
)

// Scheduler dialects.
const (
	DialectPBS   = "pbs"
	DialectSlurm = "slurm"
)

// TomlDuration is a duration with a custom toml decoder.
type TomlDuration time.Duration

// UnmarshalText is the toml decoder
func (d *TomlDuration) UnmarshalText(text []byte) error {
	stdDuration, err := time.ParseDuration(string(text))
	if err != nil {
		return errors.Trace(err)
	}
	*d = TomlDuration(stdDuration)
	return nil
}

// MarshalText encodes the duration the way UnmarshalText decodes it.
func (d TomlDuration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Duration returns d as a time.Duration.
func (d TomlDuration) Duration() time.Duration {
	return time.Duration(d)
}

// SchedulerConfig configs the cluster scheduler the jobs are submitted to.
type SchedulerConfig struct {
	// Dialect is one of "pbs" or "slurm".
	Dialect string `toml:"dialect" json:"dialect"`
	// Submit is the wrapper that enqueues a command and prints its job id.
	// Empty means the dialect default (qsubrun or sbatch).
	Submit string `toml:"submit" json:"submit"`
	// Cancel is the program that deletes a job by id.
	// Empty means the dialect default (qdel or scancel).
	Cancel string `toml:"cancel" json:"cancel"`

	RerankQueue    string       `toml:"rerank-queue" json:"rerank-queue"`
	RerankWalltime TomlDuration `toml:"rerank-walltime" json:"rerank-walltime"`

	// CancelRetries is how many extra attempts a failed cancel gets.
	CancelRetries int          `toml:"cancel-retries" json:"cancel-retries"`
	CancelTimeout TomlDuration `toml:"cancel-timeout" json:"cancel-timeout"`
}

// ValidateAndAdjust verifies that each parameter is valid.
func (c *SchedulerConfig) ValidateAndAdjust() error {
	switch c.Dialect {
	case "":
		c.Dialect = DialectPBS
	case DialectPBS, DialectSlurm:
	default:
		return cerrors.ErrUnknownDialect.GenWithStackByArgs(c.Dialect)
	}
	if c.RerankWalltime < 0 {
		return cerrors.ErrInvalidConfig.GenWithStackByArgs("rerank-walltime must not be negative")
	}
	if c.CancelRetries < 0 {
		return cerrors.ErrInvalidConfig.GenWithStackByArgs("cancel-retries must not be negative")
	}
	if c.CancelTimeout <= 0 {
		return cerrors.ErrInvalidConfig.GenWithStackByArgs("cancel-timeout must be larger than 0")
	}
	return nil
}
