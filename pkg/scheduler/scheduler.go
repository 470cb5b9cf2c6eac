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
)

// Scheduler enqueues commands on the cluster and deletes enqueued jobs.
// Both calls block until the scheduler has acknowledged the request; they
// never wait for the job itself.
//
//go:generate mockgen -destination mock/scheduler_mock.go -package mock github.com/pingcap/nbest-rescore/pkg/scheduler Scheduler
type Scheduler interface {
	// Submit runs argv, which either enqueues itself or is wrapped by a
	// dialect, and returns the identifier the scheduler assigned.
	Submit(ctx context.Context, argv []string) (string, error)
	// Cancel deletes the job with the given identifier.
	Cancel(ctx context.Context, id string) error
}
