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

package planner

import (
	"os"

	"github.com/goccy/go-json"
	"github.com/pingcap/errors"
	"github.com/pingcap/nbest-rescore/pkg/job"
)

// Graph is the job DAG of one run: rescore jobs per dataset, one combine job
// per dataset and a single terminal rerank job.
type Graph struct {
	RunID string `json:"run-id,omitempty"`
	// Datasets holds every processed dataset, evaluation sets first.
	Datasets []string `json:"datasets"`
	// Evaluated holds the datasets passed to the rerank job for decoding.
	Evaluated []string `json:"evaluated"`
	TuneSet   string   `json:"tune-set"`

	// Rescore jobs are in model order. A dataset has none when rescoring
	// was skipped.
	Rescore  map[string][]*job.Job `json:"rescore"`
	Scores   map[string][]string   `json:"scores"`
	Combine  map[string]*job.Job   `json:"combine"`
	Adjoin   map[string]string     `json:"adjoin"`
	Terminal *job.Job              `json:"terminal,omitempty"`
}

func newGraph(datasets, evaluated []string, tuneSet string) *Graph {
	return &Graph{
		Datasets:  datasets,
		Evaluated: evaluated,
		TuneSet:   tuneSet,
		Rescore:   make(map[string][]*job.Job, len(datasets)),
		Scores:    make(map[string][]string, len(datasets)),
		Combine:   make(map[string]*job.Job, len(datasets)),
		Adjoin:    make(map[string]string, len(datasets)),
	}
}

// RescoreIDs returns the rescore job ids of dataset in model order.
func (g *Graph) RescoreIDs(dataset string) []string {
	return job.IDs(g.Rescore[dataset])
}

// CombineIDs returns the combine job ids of datasets, skipping the datasets
// that have no combine job yet.
func (g *Graph) CombineIDs(datasets []string) []string {
	ids := make([]string, 0, len(datasets))
	for _, ds := range datasets {
		if j, ok := g.Combine[ds]; ok {
			ids = append(ids, j.ID)
		}
	}
	return ids
}

// Jobs returns every submitted job, stage by stage.
func (g *Graph) Jobs() []*job.Job {
	var jobs []*job.Job
	for _, ds := range g.Datasets {
		jobs = append(jobs, g.Rescore[ds]...)
	}
	for _, ds := range g.Datasets {
		if j, ok := g.Combine[ds]; ok {
			jobs = append(jobs, j)
		}
	}
	if g.Terminal != nil {
		jobs = append(jobs, g.Terminal)
	}
	return jobs
}

// Dump writes the graph to path as indented JSON.
func (g *Graph) Dump(path string) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(os.WriteFile(path, data, 0o644))
}
