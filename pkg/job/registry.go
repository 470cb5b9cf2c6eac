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
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	cerrors "github.com/pingcap/nbest-rescore/pkg/errors"
	"github.com/pingcap/nbest-rescore/pkg/scheduler"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	defaultCancelRetries = 2
	defaultCancelBackoff = 500 * time.Millisecond
	defaultCancelTimeout = time.Minute
)

// Registry tracks the jobs this process is responsible for. A job enters the
// registry when the scheduler accepts it and leaves it exactly once, either
// through Clear or through CancelAll.
type Registry struct {
	sched scheduler.Scheduler

	mu  sync.Mutex
	ids []string
	// seen holds every identifier ever accepted, so a reused one is caught
	// even after it left the registry.
	seen map[string]struct{}

	cancelRetries int
	cancelBackoff time.Duration
	cancelTimeout time.Duration
	logger        *zap.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithCancelRetries sets how many times a failed cancellation is retried.
func WithCancelRetries(retries int) RegistryOption {
	return func(r *Registry) {
		if retries >= 0 {
			r.cancelRetries = retries
		}
	}
}

// WithCancelBackoff sets the initial interval between cancellation retries.
func WithCancelBackoff(interval time.Duration) RegistryOption {
	return func(r *Registry) {
		if interval > 0 {
			r.cancelBackoff = interval
		}
	}
}

// WithCancelTimeout bounds the cancellation of a single job, retries
// included.
func WithCancelTimeout(timeout time.Duration) RegistryOption {
	return func(r *Registry) {
		if timeout > 0 {
			r.cancelTimeout = timeout
		}
	}
}

// WithLogger sets the logger of the registry.
func WithLogger(logger *zap.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates an empty registry backed by sched.
func NewRegistry(sched scheduler.Scheduler, opts ...RegistryOption) *Registry {
	r := &Registry{
		sched:         sched,
		seen:          make(map[string]struct{}),
		cancelRetries: defaultCancelRetries,
		cancelBackoff: defaultCancelBackoff,
		cancelTimeout: defaultCancelTimeout,
		logger:        log.L(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Submit enqueues the job synchronously and records its identifier. Once
// started, a submission is not interrupted by the cancellation of ctx: the
// scheduler may already have accepted the job, and its identifier is needed
// to cancel it. Callers check ctx before submitting.
func (r *Registry) Submit(ctx context.Context, spec Spec) (*Job, error) {
	id, err := r.sched.Submit(context.WithoutCancel(ctx), spec.Command)
	if err != nil {
		jobSubmitFailedCounter.WithLabelValues(string(spec.Stage)).Inc()
		return nil, errors.Trace(err)
	}

	r.mu.Lock()
	if _, ok := r.seen[id]; ok {
		r.mu.Unlock()
		jobSubmitFailedCounter.WithLabelValues(string(spec.Stage)).Inc()
		r.logger.Error("scheduler reused a job id",
			zap.String("job-id", id), zap.String("job", spec.Name))
		return nil, cerrors.ErrInvalidJobID.GenWithStackByArgs(id)
	}
	r.seen[id] = struct{}{}
	r.ids = append(r.ids, id)
	r.mu.Unlock()

	jobSubmittedCounter.WithLabelValues(string(spec.Stage)).Inc()
	r.logger.Info("job submitted",
		zap.String("job-id", id),
		zap.String("stage", string(spec.Stage)),
		zap.String("job", spec.Name),
		zap.Strings("deps", spec.Deps))

	return &Job{
		ID:      id,
		Stage:   spec.Stage,
		Name:    spec.Name,
		Command: append([]string(nil), spec.Command...),
		Deps:    append([]string(nil), spec.Deps...),
	}, nil
}

// Clear empties the registry without cancelling anything. After Clear the
// submitted jobs belong to the scheduler.
func (r *Registry) Clear() {
	r.mu.Lock()
	n := len(r.ids)
	r.ids = nil
	r.mu.Unlock()

	if n > 0 {
		r.logger.Info("job registry cleared", zap.Int("jobs", n))
	}
}

// CancelAll empties the registry and cancels every identifier it held, in
// submission order. A failed cancellation is logged and does not stop the
// remaining ones; all failures are returned together. Each identifier gets
// its own cancel timeout and ignores the cancellation of ctx, so a hung
// cancel program cannot keep the later jobs from being cancelled.
func (r *Registry) CancelAll(ctx context.Context) error {
	r.mu.Lock()
	ids := r.ids
	r.ids = nil
	r.mu.Unlock()

	if len(ids) == 0 {
		return nil
	}
	r.logger.Warn("cancelling outstanding jobs", zap.Strings("job-ids", ids))

	var errs error
	for _, id := range ids {
		if err := r.cancel(ctx, id); err != nil {
			if !cerrors.IsCancellationError(err) {
				err = cerrors.WrapError(cerrors.ErrCancelJob, err, id)
			}
			jobCancelFailedCounter.Inc()
			r.logger.Warn("cancel job failed", zap.String("job-id", id), zap.Error(err))
			errs = multierr.Append(errs, err)
			continue
		}
		jobCancelledCounter.Inc()
		r.logger.Info("job cancelled", zap.String("job-id", id))
	}
	return errs
}

func (r *Registry) cancel(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cancelTimeout)
	defer cancel()

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = r.cancelBackoff
	expBackoff.MaxElapsedTime = 0
	retryCfg := backoff.WithMaxRetries(
		backoff.WithContext(expBackoff, ctx),
		uint64(r.cancelRetries),
	)
	return backoff.Retry(func() error {
		err := r.sched.Cancel(ctx, id)
		if err != nil {
			r.logger.Debug("cancel job attempt failed", zap.String("job-id", id), zap.Error(err))
		}
		return err
	}, retryCfg)
}

// Outstanding returns the identifiers currently in the registry.
func (r *Registry) Outstanding() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

// Len returns the number of identifiers in the registry.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}
