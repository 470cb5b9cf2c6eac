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
	"context"
	"fmt"
	"sync"

	"github.com/pingcap/log"
	"github.com/pingcap/nbest-rescore/pkg/command"
	"go.uber.org/zap"
)

// DryRunScheduler accepts every submission without touching the cluster and
// hands out sequential identifiers.
type DryRunScheduler struct {
	mu     sync.Mutex
	next   int
	prefix string
}

// NewDryRunScheduler creates a new DryRunScheduler.
func NewDryRunScheduler() *DryRunScheduler {
	return &DryRunScheduler{prefix: "dryrun-"}
}

// Submit implements Scheduler.
func (s *DryRunScheduler) Submit(_ context.Context, argv []string) (string, error) {
	s.mu.Lock()
	s.next++
	id := fmt.Sprintf("%s%d", s.prefix, s.next)
	s.mu.Unlock()

	log.Info("dry run, skip submission",
		zap.String("job-id", id), zap.String("command", command.Render(argv)))
	return id, nil
}

// Cancel implements Scheduler.
func (s *DryRunScheduler) Cancel(_ context.Context, id string) error {
	log.Info("dry run, skip cancellation", zap.String("job-id", id))
	return nil
}
