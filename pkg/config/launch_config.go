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
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/pingcap/errors"
	cerrors "github.com/pingcap/nbest-rescore/pkg/errors"
	"github.com/pingcap/nbest-rescore/pkg/logutil"
)

const (
	defaultTuneSet = "dev"
	defaultWidth   = 5
	defaultSuffix  = "onebest.rerank"
	defaultLabel   = "x"
	// StdoutPath means the transcript goes to standard output.
	StdoutPath = "-"
)

var defaultLaunchConfig = &LaunchConfig{
	OutFile:           StdoutPath,
	ModelNums:         []int{1, 2, 3, 4, 5, 6, 7, 8},
	TuneSet:           defaultTuneSet,
	EvalSets:          []string{"dev", "test", "syscomb"},
	Width:             defaultWidth,
	Suffix:            defaultSuffix,
	Label:             defaultLabel,
	SubmitConcurrency: 1,
	Programs: &ProgramsConfig{
		RescoreSingle: "rescore_split.py",
		Convert:       "nmtrescore2sbmtnbest.py",
		Pipeline:      "/home/nlg-02/pust/pipeline-2.22",
		RunRerank:     "runrerank.sh",
	},
	Scheduler: &SchedulerConfig{
		Dialect:        DialectPBS,
		RerankQueue:    "isi",
		RerankWalltime: TomlDuration(10 * time.Minute),
		CancelRetries:  2,
		CancelTimeout:  TomlDuration(time.Minute),
	},
	Log: &logutil.Config{
		Level: "info",
	},
}

// LaunchConfig describes one pipeline launch.
type LaunchConfig struct {
	// InputDir contains <set>.src.hyp, <set>.nbest, <set>.trg.ref and
	// weights.final for every set.
	InputDir string `toml:"input" json:"input"`
	// OutFile receives the command transcript, "-" for stdout.
	OutFile   string   `toml:"outfile" json:"outfile"`
	ModelDir  string   `toml:"model" json:"model"`
	ModelNums []int    `toml:"model-nums" json:"model-nums"`
	TuneSet   string   `toml:"dev" json:"dev"`
	EvalSets  []string `toml:"eval" json:"eval"`
	// Root is where scores, logs, monitors and adjoined n-best lists go.
	Root   string `toml:"root" json:"root"`
	Width  int    `toml:"width" json:"width"`
	Suffix string `toml:"suffix" json:"suffix"`
	Label  string `toml:"label" json:"label"`

	SkipRescore bool `toml:"skip-rescore" json:"skip-rescore"`
	Debug       bool `toml:"debug" json:"debug"`
	DryRun      bool `toml:"dry-run" json:"dry-run"`
	// WaitForTune makes the rerank job wait for the tuning set's combine job
	// even when the tuning set is not evaluated.
	WaitForTune       bool   `toml:"wait-for-tune" json:"wait-for-tune"`
	SubmitConcurrency int    `toml:"submit-concurrency" json:"submit-concurrency"`
	MetricsFile       string `toml:"metrics-file" json:"metrics-file"`

	Programs  *ProgramsConfig  `toml:"programs" json:"programs"`
	Scheduler *SchedulerConfig `toml:"scheduler" json:"scheduler"`
	Log       *logutil.Config  `toml:"log" json:"log"`
}

// ProgramsConfig holds the external programs of each stage. Every value is a
// shell-style command prefix, e.g. "python3 /opt/rescore_split.py".
type ProgramsConfig struct {
	RescoreSingle string `toml:"rescore-single" json:"rescore-single"`
	Convert       string `toml:"convert" json:"convert"`
	Pipeline      string `toml:"pipeline" json:"pipeline"`
	RunRerank     string `toml:"runrerank" json:"runrerank"`
}

// ValidateAndAdjust verifies that each parameter is valid.
func (c *ProgramsConfig) ValidateAndAdjust(skipRescore bool) error {
	if !skipRescore && strings.TrimSpace(c.RescoreSingle) == "" {
		return cerrors.ErrInvalidConfig.GenWithStackByArgs("rescore-single program is required")
	}
	if strings.TrimSpace(c.Convert) == "" {
		return cerrors.ErrInvalidConfig.GenWithStackByArgs("convert program is required")
	}
	if strings.TrimSpace(c.RunRerank) == "" {
		return cerrors.ErrInvalidConfig.GenWithStackByArgs("runrerank program is required")
	}
	return nil
}

// RerankProgram returns the rerank program, resolved against the pipeline
// directory unless it is an absolute path.
func (c *ProgramsConfig) RerankProgram() string {
	if c.Pipeline == "" || filepath.IsAbs(c.RunRerank) {
		return c.RunRerank
	}
	return filepath.Join(c.Pipeline, c.RunRerank)
}

// GetDefaultLaunchConfig returns the default launch config.
func GetDefaultLaunchConfig() *LaunchConfig {
	return defaultLaunchConfig.Clone()
}

// Clone clones the launch config.
func (c *LaunchConfig) Clone() *LaunchConfig {
	cloned := *c
	cloned.ModelNums = append([]int(nil), c.ModelNums...)
	cloned.EvalSets = append([]string(nil), c.EvalSets...)
	if c.Programs != nil {
		programs := *c.Programs
		cloned.Programs = &programs
	}
	if c.Scheduler != nil {
		scheduler := *c.Scheduler
		cloned.Scheduler = &scheduler
	}
	if c.Log != nil {
		logCfg := *c.Log
		cloned.Log = &logCfg
	}
	return &cloned
}

// ValidateAndAdjust validates and adjusts the launch configuration.
func (c *LaunchConfig) ValidateAndAdjust() error {
	if c.InputDir == "" {
		return cerrors.ErrInvalidConfig.GenWithStackByArgs("input directory is required")
	}
	if c.Root == "" {
		return cerrors.ErrInvalidConfig.GenWithStackByArgs("root directory is required")
	}
	if c.ModelDir == "" && !c.SkipRescore {
		return cerrors.ErrInvalidConfig.GenWithStackByArgs("model path is required unless rescoring is skipped")
	}
	if len(c.ModelNums) == 0 {
		return cerrors.ErrInvalidConfig.GenWithStackByArgs("at least one model number is required")
	}
	seen := make(map[int]struct{}, len(c.ModelNums))
	for _, num := range c.ModelNums {
		if _, ok := seen[num]; ok {
			return cerrors.ErrInvalidConfig.GenWithStackByArgs(
				fmt.Sprintf("model number %d is listed twice", num))
		}
		seen[num] = struct{}{}
	}
	if c.TuneSet == "" {
		return cerrors.ErrInvalidConfig.GenWithStackByArgs("tuning set is required")
	}
	if len(c.EvalSets) == 0 {
		return cerrors.ErrInvalidConfig.GenWithStackByArgs("at least one evaluation set is required")
	}
	for _, set := range c.EvalSets {
		if strings.TrimSpace(set) == "" {
			return cerrors.ErrInvalidConfig.GenWithStackByArgs("evaluation set name must not be empty")
		}
	}
	if c.Width <= 0 {
		return cerrors.ErrInvalidConfig.GenWithStackByArgs("width must be larger than 0")
	}
	if c.Suffix == "" {
		c.Suffix = defaultSuffix
	}
	if c.Label == "" {
		c.Label = defaultLabel
	}
	if c.OutFile == "" {
		c.OutFile = StdoutPath
	}
	if c.SubmitConcurrency <= 0 {
		c.SubmitConcurrency = 1
	}

	if c.Programs == nil {
		c.Programs = GetDefaultLaunchConfig().Programs
	}
	if err := c.Programs.ValidateAndAdjust(c.SkipRescore); err != nil {
		return errors.Trace(err)
	}
	if c.Scheduler == nil {
		c.Scheduler = GetDefaultLaunchConfig().Scheduler
	}
	if err := c.Scheduler.ValidateAndAdjust(); err != nil {
		return errors.Trace(err)
	}
	if c.Log == nil {
		c.Log = GetDefaultLaunchConfig().Log
	}
	return nil
}

// Datasets returns the evaluation sets followed by the tuning set, each name
// once, in configuration order.
func (c *LaunchConfig) Datasets() []string {
	datasets := make([]string, 0, len(c.EvalSets)+1)
	seen := make(map[string]struct{}, len(c.EvalSets)+1)
	for _, set := range append(append([]string(nil), c.EvalSets...), c.TuneSet) {
		if _, ok := seen[set]; ok {
			continue
		}
		seen[set] = struct{}{}
		datasets = append(datasets, set)
	}
	return datasets
}

// IsEvaluated returns true if the set is one of the evaluation sets.
func (c *LaunchConfig) IsEvaluated(set string) bool {
	for _, s := range c.EvalSets {
		if s == set {
			return true
		}
	}
	return false
}
