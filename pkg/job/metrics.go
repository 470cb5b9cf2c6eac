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
	"github.com/prometheus/client_golang/prometheus"
)

var (
	jobSubmittedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nbest",
			Subsystem: "launcher",
			Name:      "job_submitted_total",
			Help:      "Total number of jobs accepted by the scheduler",
		}, []string{"stage"})
	jobSubmitFailedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nbest",
			Subsystem: "launcher",
			Name:      "job_submit_failed_total",
			Help:      "Total number of rejected job submissions",
		}, []string{"stage"})
	jobCancelledCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "nbest",
			Subsystem: "launcher",
			Name:      "job_cancelled_total",
			Help:      "Total number of jobs cancelled during teardown",
		})
	jobCancelFailedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "nbest",
			Subsystem: "launcher",
			Name:      "job_cancel_failed_total",
			Help:      "Total number of jobs that could not be cancelled",
		})
)

// InitMetrics registers all metrics in this file.
func InitMetrics(registry *prometheus.Registry) {
	registry.MustRegister(jobSubmittedCounter)
	registry.MustRegister(jobSubmitFailedCounter)
	registry.MustRegister(jobCancelledCounter)
	registry.MustRegister(jobCancelFailedCounter)
}
