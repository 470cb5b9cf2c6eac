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

package job

import (
	"context"
	"sync"

	"github.com/pingcap/log"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// GuardOptions configures a Guard.
type GuardOptions struct {
	// Disabled guards never cancel; they only report what is left behind.
	Disabled bool
	Logger   *zap.Logger
}

// Guard cancels the outstanding jobs of a registry when a run ends before the
// registry is cleared. Create it before the first submission and defer
// Release.
type Guard struct {
	reg  *Registry
	opts GuardOptions

	once     sync.Once
	released atomic.Bool
	err      error
}

// NewGuard creates a guard for reg.
func NewGuard(reg *Registry, opts GuardOptions) *Guard {
	if opts.Logger == nil {
		opts.Logger = log.L()
	}
	return &Guard{reg: reg, opts: opts}
}

// Release cancels every job still in the registry. It is safe to call from
// several goroutines: the first call does the work and the others wait for it
// and return nil. Release does not use the run context, which is usually
// already canceled when it is called; the registry bounds each cancellation
// with its own timeout.
func (g *Guard) Release() error {
	first := false
	g.once.Do(func() {
		first = true
		g.released.Store(true)
		g.err = g.release()
	})
	if !first {
		return nil
	}
	return g.err
}

func (g *Guard) release() error {
	if g.opts.Disabled {
		if ids := g.reg.Outstanding(); len(ids) > 0 {
			g.opts.Logger.Warn("job guard is disabled, jobs are left in the queue",
				zap.Strings("job-ids", ids))
		}
		return nil
	}

	return g.reg.CancelAll(context.Background())
}

// Released returns true once Release has been called.
func (g *Guard) Released() bool {
	return g.released.Load()
}
