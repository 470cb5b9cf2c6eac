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
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/pingcap/nbest-rescore/pkg/command"
	cerrors "github.com/pingcap/nbest-rescore/pkg/errors"
	"go.uber.org/zap"
)

// waitDelay bounds how long a killed scheduler tool may keep its output
// pipes open, e.g. through a child it left behind.
const waitDelay = 2 * time.Second

// ExecScheduler talks to the cluster by running the scheduler's command line
// tools as child processes.
type ExecScheduler struct {
	dialect Dialect
	logger  *zap.Logger
}

// NewExecScheduler creates a new ExecScheduler.
func NewExecScheduler(dialect Dialect) *ExecScheduler {
	return &ExecScheduler{
		dialect: dialect,
		logger:  log.L().With(zap.String("dialect", dialect.Name())),
	}
}

// Submit implements Scheduler.
func (s *ExecScheduler) Submit(ctx context.Context, argv []string) (string, error) {
	if len(argv) == 0 {
		return "", cerrors.ErrSubmitJob.GenWithStackByArgs("empty command")
	}
	line := command.Render(argv)
	stdout, err := s.run(ctx, argv)
	if err != nil {
		return "", cerrors.WrapError(cerrors.ErrSubmitJob, err, line)
	}
	id, err := s.dialect.ParseJobID(stdout)
	if err != nil {
		return "", errors.Annotatef(err, "submit %s", line)
	}
	s.logger.Debug("job submitted", zap.String("job-id", id), zap.String("command", line))
	return id, nil
}

// Cancel implements Scheduler.
func (s *ExecScheduler) Cancel(ctx context.Context, id string) error {
	argv := s.dialect.CancelArgs(id)
	if _, err := s.run(ctx, argv); err != nil {
		return cerrors.WrapError(cerrors.ErrCancelJob, err, id)
	}
	s.logger.Debug("job cancelled", zap.String("job-id", id))
	return nil
}

func (s *ExecScheduler) run(ctx context.Context, argv []string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, errors.Annotate(err, msg)
		}
		return nil, errors.Trace(err)
	}
	return stdout.Bytes(), nil
}
