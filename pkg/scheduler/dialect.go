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

package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/mattn/go-shellwords"
	"github.com/pingcap/errors"
	"github.com/pingcap/nbest-rescore/pkg/command"
	"github.com/pingcap/nbest-rescore/pkg/config"
	cerrors "github.com/pingcap/nbest-rescore/pkg/errors"
)

// JobSpec holds the scheduler directives of a wrapped job.
type JobSpec struct {
	// Name is the job name shown by the scheduler.
	Name string
	// Monitor receives the joined stdout and stderr of the job.
	Monitor string
	// Queue is optional.
	Queue string
	// Walltime is optional, zero means the queue default.
	Walltime time.Duration
}

// Dialect knows how a particular batch scheduler spells submissions,
// dependencies and cancellations.
type Dialect interface {
	Name() string
	// DependencyClause returns the directive that holds a job until every
	// listed job has completed successfully. No ids means no directive.
	DependencyClause(ids []string) string
	// Wrap turns argv into a submission of argv as a batch job.
	Wrap(spec JobSpec, clause string, argv []string) ([]string, error)
	// CancelArgs returns the command that deletes a job.
	CancelArgs(id string) []string
	// ParseJobID extracts the job identifier from the submit output.
	ParseJobID(out []byte) (string, error)
}

// NewDialect creates the dialect named by cfg.
func NewDialect(cfg *config.SchedulerConfig) (Dialect, error) {
	var (
		submit, cancel []string
		err            error
	)
	if cfg.Submit != "" {
		if submit, err = command.ParseProgram(cfg.Submit); err != nil {
			return nil, err
		}
	}
	if cfg.Cancel != "" {
		if cancel, err = command.ParseProgram(cfg.Cancel); err != nil {
			return nil, err
		}
	}

	switch cfg.Dialect {
	case config.DialectPBS, "":
		d := &PBS{submit: []string{"qsubrun"}, cancel: []string{"qdel"}}
		if submit != nil {
			d.submit = submit
		}
		if cancel != nil {
			d.cancel = cancel
		}
		return d, nil
	case config.DialectSlurm:
		d := &Slurm{submit: []string{"sbatch", "--parsable"}, cancel: []string{"scancel"}}
		if submit != nil {
			d.submit = submit
		}
		if cancel != nil {
			d.cancel = cancel
		}
		return d, nil
	default:
		return nil, cerrors.ErrUnknownDialect.GenWithStackByArgs(cfg.Dialect)
	}
}

// splitClause splits a dependency clause into arguments.
func splitClause(clause string) ([]string, error) {
	if clause == "" {
		return nil, nil
	}
	args, err := shellwords.Parse(clause)
	if err != nil {
		return nil, errors.Annotatef(err, "parse dependency clause %q", clause)
	}
	return args, nil
}

// checkJobID accepts a single non-empty token.
func checkJobID(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, " \t\r\n") {
		return "", cerrors.ErrInvalidJobID.GenWithStackByArgs(id)
	}
	return id, nil
}

// formatWalltime renders d as H:MM:SS, which PBS and Slurm both accept.
func formatWalltime(d time.Duration) string {
	secs := int64(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%d:%02d:%02d", secs/3600, secs/60%60, secs%60)
}

// PBS is the PBS/Torque dialect. Jobs are wrapped with qsubrun, which takes
// qsub directives before "--" and the command after it.
type PBS struct {
	submit []string
	cancel []string
}

// Name implements Dialect.
func (d *PBS) Name() string { return config.DialectPBS }

// DependencyClause implements Dialect.
func (d *PBS) DependencyClause(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	return "-W depend=afterok:" + strings.Join(ids, ":")
}

// Wrap implements Dialect.
func (d *PBS) Wrap(spec JobSpec, clause string, argv []string) ([]string, error) {
	deps, err := splitClause(clause)
	if err != nil {
		return nil, err
	}
	args := append([]string(nil), d.submit...)
	if spec.Queue != "" {
		args = append(args, "-q", spec.Queue)
	}
	if spec.Walltime > 0 {
		args = append(args, "-l", "walltime="+formatWalltime(spec.Walltime))
	}
	args = append(args, "-j", "oe")
	if spec.Monitor != "" {
		args = append(args, "-o", spec.Monitor)
	}
	if spec.Name != "" {
		args = append(args, "-N", spec.Name)
	}
	args = append(args, deps...)
	args = append(args, "--")
	return append(args, argv...), nil
}

// CancelArgs implements Dialect.
func (d *PBS) CancelArgs(id string) []string {
	return append(append([]string(nil), d.cancel...), id)
}

// ParseJobID implements Dialect.
func (d *PBS) ParseJobID(out []byte) (string, error) {
	return checkJobID(strings.TrimSpace(string(out)))
}

// Slurm is the Slurm dialect. Jobs are submitted with
// `sbatch --parsable --wrap`.
type Slurm struct {
	submit []string
	cancel []string
}

// Name implements Dialect.
func (d *Slurm) Name() string { return config.DialectSlurm }

// DependencyClause implements Dialect.
func (d *Slurm) DependencyClause(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	return "--dependency=afterok:" + strings.Join(ids, ":")
}

// Wrap implements Dialect.
func (d *Slurm) Wrap(spec JobSpec, clause string, argv []string) ([]string, error) {
	deps, err := splitClause(clause)
	if err != nil {
		return nil, err
	}
	args := append([]string(nil), d.submit...)
	if spec.Queue != "" {
		args = append(args, "--partition", spec.Queue)
	}
	if spec.Walltime > 0 {
		args = append(args, "--time", formatWalltime(spec.Walltime))
	}
	if spec.Monitor != "" {
		args = append(args, "--output", spec.Monitor)
	}
	if spec.Name != "" {
		args = append(args, "--job-name", spec.Name)
	}
	args = append(args, deps...)
	return append(args, "--wrap", shellquote.Join(argv...)), nil
}

// CancelArgs implements Dialect.
func (d *Slurm) CancelArgs(id string) []string {
	return append(append([]string(nil), d.cancel...), id)
}

// ParseJobID implements Dialect. With --parsable sbatch prints
// "jobid[;cluster]".
func (d *Slurm) ParseJobID(out []byte) (string, error) {
	id := strings.TrimSpace(string(out))
	if i := strings.IndexByte(id, ';'); i >= 0 {
		id = id[:i]
	}
	return checkJobID(id)
}
