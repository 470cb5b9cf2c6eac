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

// Stage is one tier of the pipeline.
type Stage string

// Pipeline stages, in submission order.
const (
	StageRescore Stage = "rescore"
	StageCombine Stage = "combine"
	StageRerank  Stage = "rerank"
)

// Spec describes a job that is about to be submitted.
type Spec struct {
	Stage Stage
	// Name identifies the job inside the pipeline, e.g. "dev.m3".
	Name string
	// Command is the complete submission command, scheduler wrapper included.
	Command []string
	// Deps are the identifiers the job waits for, in clause order.
	Deps []string
}

// Job is a submitted job. It is never modified after submission.
type Job struct {
	ID      string   `json:"id"`
	Stage   Stage    `json:"stage"`
	Name    string   `json:"name"`
	Command []string `json:"command"`
	Deps    []string `json:"deps,omitempty"`
}

// IDs returns the identifiers of jobs, in order.
func IDs(jobs []*Job) []string {
	ids := make([]string, 0, len(jobs))
	for _, j := range jobs {
		ids = append(ids, j.ID)
	}
	return ids
}
