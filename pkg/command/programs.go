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

package command

import (
	"strconv"
	"strings"

	cerrors "github.com/pingcap/nbest-rescore/pkg/errors"
)

// Rescore scores one data file with one trained model. The program splits
// the data into pieces, submits them to the cluster itself and prints the
// id of the job that finishes last.
type Rescore struct {
	Program   string
	WorkDir   string
	SplitSize int
	ModelDir  string
	ModelNum  int
	DataFile  string
	OutFile   string
	LogFile   string
}

// Kind implements Builder.
func (r *Rescore) Kind() string { return "rescore" }

// Validate implements Builder.
func (r *Rescore) Validate() error {
	if err := requireFields(r.Kind(),
		[2]string{"program", r.Program},
		[2]string{"workdir", r.WorkDir},
		[2]string{"model", r.ModelDir},
		[2]string{"datafile", r.DataFile},
		[2]string{"outfile", r.OutFile},
		[2]string{"logfile", r.LogFile},
	); err != nil {
		return err
	}
	if r.SplitSize <= 0 {
		return cerrors.ErrInvalidCommand.GenWithStackByArgs(r.Kind(), "splitsize must be larger than 0")
	}
	return nil
}

// Args implements Builder.
func (r *Rescore) Args() ([]string, error) {
	args, err := ParseProgram(r.Program)
	if err != nil {
		return nil, err
	}
	return append(args,
		"--workdir", r.WorkDir,
		"--splitsize", strconv.Itoa(r.SplitSize),
		"--model", r.ModelDir,
		"--modelnum", strconv.Itoa(r.ModelNum),
		"--datafile", r.DataFile,
		"--outfile", r.OutFile,
		"--logfile", r.LogFile,
	), nil
}

// Combine pastes the per-model score files of one dataset back into its
// original n-best list.
type Combine struct {
	Program    string
	ScoreFiles []string
	NBest      string
	Output     string
}

// Kind implements Builder.
func (c *Combine) Kind() string { return "combine" }

// Validate implements Builder.
func (c *Combine) Validate() error {
	if err := requireFields(c.Kind(),
		[2]string{"program", c.Program},
		[2]string{"nbest", c.NBest},
		[2]string{"output", c.Output},
	); err != nil {
		return err
	}
	if len(c.ScoreFiles) == 0 {
		return cerrors.ErrInvalidCommand.GenWithStackByArgs(c.Kind(), "no score files")
	}
	return nil
}

// Args implements Builder.
func (c *Combine) Args() ([]string, error) {
	args, err := ParseProgram(c.Program)
	if err != nil {
		return nil, err
	}
	args = append(args, "-i")
	args = append(args, c.ScoreFiles...)
	return append(args, "-a", c.NBest, "-o", c.Output), nil
}

// Rerank tunes feature weights on the tuning set and reranks every decoded
// set with them.
type Rerank struct {
	Program    string
	Suffix     string
	Features   []string
	Weights    string
	TuneRef    string
	OutDir     string
	TuneAdjoin string
	Decode     []string
}

// Kind implements Builder.
func (r *Rerank) Kind() string { return "rerank" }

// Validate implements Builder.
func (r *Rerank) Validate() error {
	if err := requireFields(r.Kind(),
		[2]string{"program", r.Program},
		[2]string{"suffix", r.Suffix},
		[2]string{"weights", r.Weights},
		[2]string{"reference", r.TuneRef},
		[2]string{"outdir", r.OutDir},
		[2]string{"tuning adjoin", r.TuneAdjoin},
	); err != nil {
		return err
	}
	if len(r.Features) == 0 {
		return cerrors.ErrInvalidCommand.GenWithStackByArgs(r.Kind(), "no feature names")
	}
	if len(r.Decode) == 0 {
		return cerrors.ErrInvalidCommand.GenWithStackByArgs(r.Kind(), "no sets to decode")
	}
	return nil
}

// Args implements Builder.
func (r *Rerank) Args() ([]string, error) {
	args, err := ParseProgram(r.Program)
	if err != nil {
		return nil, err
	}
	args = append(args,
		"-S", r.Suffix,
		"-f", strings.Join(r.Features, " "),
		"-w", r.Weights,
		"-r", r.TuneRef,
		"-o", r.OutDir,
		"-t", r.TuneAdjoin,
	)
	return append(args, r.Decode...), nil
}

// FeatureNames returns one synthetic feature name per model, numbered by
// position.
func FeatureNames(models int) []string {
	names := make([]string, 0, models)
	for i := 0; i < models; i++ {
		names = append(names, "nmt_"+strconv.Itoa(i))
	}
	return names
}
