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
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/pingcap/nbest-rescore/pkg/command"
	"github.com/pingcap/nbest-rescore/pkg/config"
	cerrors "github.com/pingcap/nbest-rescore/pkg/errors"
	"github.com/pingcap/nbest-rescore/pkg/job"
	"github.com/pingcap/nbest-rescore/pkg/scheduler"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Planner submits the job DAG of one run.
type Planner struct {
	cfg     *config.LaunchConfig
	dialect scheduler.Dialect
	reg     *job.Registry
	runID   string
	logger  *zap.Logger

	outMu sync.Mutex
	out   io.Writer
}

// Option configures a Planner.
type Option func(*Planner)

// WithRunID tags the graph and the logs with id.
func WithRunID(id string) Option {
	return func(p *Planner) {
		p.runID = id
	}
}

// WithLogger sets the logger of the planner.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Planner) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a Planner. Every command line is written to transcript before
// it is submitted.
func New(
	cfg *config.LaunchConfig,
	dialect scheduler.Dialect,
	reg *job.Registry,
	transcript io.Writer,
	opts ...Option,
) *Planner {
	p := &Planner{
		cfg:     cfg,
		dialect: dialect,
		reg:     reg,
		out:     transcript,
		logger:  log.L(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.runID != "" {
		p.logger = p.logger.With(zap.String("run-id", p.runID))
	}
	return p
}

type rescoreTask struct {
	name   string
	scores string
	argv   []string
}

// plan holds every command of the run, built and validated before the first
// submission.
type plan struct {
	root      string
	datasets  []string
	evaluated []string
	// waitFor are the datasets whose combine jobs the terminal job waits for.
	waitFor []string
	rescore map[string][]rescoreTask
	combine map[string][]string
	adjoin  map[string]string
	rerank  []string
}

func (p *Planner) build() (*plan, error) {
	cfg := p.cfg
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, errors.Trace(err)
	}
	input, err := filepath.Abs(cfg.InputDir)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var modelDir string
	if !cfg.SkipRescore {
		if modelDir, err = filepath.Abs(cfg.ModelDir); err != nil {
			return nil, errors.Trace(err)
		}
	}

	pl := &plan{
		root:     root,
		datasets: cfg.Datasets(),
		rescore:  make(map[string][]rescoreTask),
		combine:  make(map[string][]string),
	}
	for _, ds := range pl.datasets {
		if cfg.IsEvaluated(ds) {
			pl.evaluated = append(pl.evaluated, ds)
			pl.waitFor = append(pl.waitFor, ds)
		} else if ds == cfg.TuneSet && cfg.WaitForTune {
			pl.waitFor = append(pl.waitFor, ds)
		}
	}

	adjoins := make(map[string]string, len(pl.datasets))
	pl.adjoin = adjoins
	for _, ds := range pl.datasets {
		tasks := make([]rescoreTask, 0, len(cfg.ModelNums))
		scores := make([]string, 0, len(cfg.ModelNums))
		for _, num := range cfg.ModelNums {
			task := rescoreTask{
				name:   fmt.Sprintf("%s.m%d", ds, num),
				scores: filepath.Join(root, fmt.Sprintf("%s.m%d.scores", ds, num)),
			}
			if !cfg.SkipRescore {
				task.argv, err = command.Build(&command.Rescore{
					Program:   cfg.Programs.RescoreSingle,
					WorkDir:   filepath.Join(root, ds),
					SplitSize: cfg.Width,
					ModelDir:  modelDir,
					ModelNum:  num,
					DataFile:  filepath.Join(input, ds+".src.hyp"),
					OutFile:   task.scores,
					LogFile:   filepath.Join(root, fmt.Sprintf("%s.m%d.log", ds, num)),
				})
				if err != nil {
					return nil, errors.Trace(err)
				}
			}
			tasks = append(tasks, task)
			scores = append(scores, task.scores)
		}
		pl.rescore[ds] = tasks

		adjoins[ds] = filepath.Join(root, fmt.Sprintf("%s.adjoin.%s", ds, cfg.Suffix))
		pl.combine[ds], err = command.Build(&command.Combine{
			Program:    cfg.Programs.Convert,
			ScoreFiles: scores,
			NBest:      filepath.Join(input, ds+".nbest"),
			Output:     adjoins[ds],
		})
		if err != nil {
			return nil, errors.Trace(err)
		}
	}

	decode := make([]string, 0, len(pl.evaluated))
	for _, ds := range pl.evaluated {
		decode = append(decode, adjoins[ds])
	}
	pl.rerank, err = command.Build(&command.Rerank{
		Program:    cfg.Programs.RerankProgram(),
		Suffix:     cfg.Suffix,
		Features:   command.FeatureNames(len(cfg.ModelNums)),
		Weights:    filepath.Join(input, "weights.final"),
		TuneRef:    filepath.Join(input, cfg.TuneSet+".trg.ref"),
		OutDir:     root,
		TuneAdjoin: adjoins[cfg.TuneSet],
		Decode:     decode,
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return pl, nil
}

// Run submits the rescore, combine and rerank stages in order and clears the
// registry once the rerank job is accepted. It stops at the first error. The
// returned graph holds the jobs submitted so far, also on error.
func (p *Planner) Run(ctx context.Context) (*Graph, error) {
	pl, err := p.build()
	if err != nil {
		return nil, err
	}
	g := newGraph(pl.datasets, pl.evaluated, p.cfg.TuneSet)
	g.RunID = p.runID
	for _, ds := range pl.datasets {
		for _, task := range pl.rescore[ds] {
			g.Scores[ds] = append(g.Scores[ds], task.scores)
		}
		g.Adjoin[ds] = pl.adjoin[ds]
	}

	if err := os.MkdirAll(pl.root, 0o755); err != nil {
		return g, cerrors.WrapError(cerrors.ErrPrepareWorkspace, err, pl.root)
	}

	p.logger.Info("submitting pipeline",
		zap.Strings("datasets", pl.datasets),
		zap.Strings("evaluated", pl.evaluated),
		zap.Ints("models", p.cfg.ModelNums),
		zap.Bool("skip-rescore", p.cfg.SkipRescore))

	if err := p.rescoreStage(ctx, pl, g); err != nil {
		return g, err
	}
	if err := p.combineStage(ctx, pl, g); err != nil {
		return g, err
	}
	if err := p.terminalStage(ctx, pl, g); err != nil {
		return g, err
	}
	return g, nil
}

func (p *Planner) rescoreStage(ctx context.Context, pl *plan, g *Graph) error {
	if p.cfg.SkipRescore {
		for _, ds := range pl.datasets {
			for _, task := range pl.rescore[ds] {
				if _, err := os.Stat(task.scores); err != nil {
					return cerrors.WrapError(cerrors.ErrMissingPrecomputedResult, err, task.scores)
				}
			}
		}
		p.logger.Info("rescoring skipped, reuse existing scores")
		return nil
	}

	results := make(map[string][]*job.Job, len(pl.datasets))
	for _, ds := range pl.datasets {
		results[ds] = make([]*job.Job, len(pl.rescore[ds]))
	}
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(p.cfg.SubmitConcurrency)
	for _, ds := range pl.datasets {
		jobs := results[ds]
		for i, task := range pl.rescore[ds] {
			i, task := i, task
			eg.Go(func() error {
				// A failed sibling stops new submissions. Submissions in
				// flight keep the run context so their ids are not lost.
				if err := egCtx.Err(); err != nil {
					return errors.Trace(err)
				}
				j, err := p.submit(ctx, job.Spec{
					Stage:   job.StageRescore,
					Name:    task.name,
					Command: task.argv,
				})
				if err != nil {
					return err
				}
				jobs[i] = j
				return nil
			})
		}
	}
	err := eg.Wait()
	for _, ds := range pl.datasets {
		for _, j := range results[ds] {
			if j != nil {
				g.Rescore[ds] = append(g.Rescore[ds], j)
			}
		}
	}
	if err != nil {
		return err
	}
	p.logger.Info("rescore stage submitted", zap.Int("jobs", len(g.Jobs())))
	return nil
}

func (p *Planner) combineStage(ctx context.Context, pl *plan, g *Graph) error {
	for _, ds := range pl.datasets {
		deps := g.RescoreIDs(ds)
		argv, err := p.dialect.Wrap(scheduler.JobSpec{
			Name:    fmt.Sprintf("%s.%s.convert", p.cfg.Label, ds),
			Monitor: filepath.Join(pl.root, ds+".convert.monitor"),
		}, p.dialect.DependencyClause(deps), pl.combine[ds])
		if err != nil {
			return errors.Trace(err)
		}
		j, err := p.submit(ctx, job.Spec{
			Stage:   job.StageCombine,
			Name:    ds,
			Command: argv,
			Deps:    deps,
		})
		if err != nil {
			return err
		}
		g.Combine[ds] = j
	}
	p.logger.Info("combine stage submitted", zap.Int("jobs", len(g.Combine)))
	return nil
}

func (p *Planner) terminalStage(ctx context.Context, pl *plan, g *Graph) error {
	deps := g.CombineIDs(pl.waitFor)
	argv, err := p.dialect.Wrap(scheduler.JobSpec{
		Name:     p.cfg.Label + ".rescore",
		Monitor:  filepath.Join(pl.root, "rescore.monitor"),
		Queue:    p.cfg.Scheduler.RerankQueue,
		Walltime: p.cfg.Scheduler.RerankWalltime.Duration(),
	}, p.dialect.DependencyClause(deps), pl.rerank)
	if err != nil {
		return errors.Trace(err)
	}
	j, err := p.submit(ctx, job.Spec{
		Stage:   job.StageRerank,
		Name:    "rerank",
		Command: argv,
		Deps:    deps,
	})
	if err != nil {
		return err
	}
	g.Terminal = j

	// The pipeline is committed, its jobs now belong to the scheduler.
	p.reg.Clear()
	p.logger.Info("pipeline submitted", zap.String("job-id", j.ID))
	return p.writeLine(j.ID)
}

func (p *Planner) submit(ctx context.Context, spec job.Spec) (*job.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	if err := p.writeLine(command.Render(spec.Command)); err != nil {
		return nil, err
	}
	return p.reg.Submit(ctx, spec)
}

func (p *Planner) writeLine(line string) error {
	p.outMu.Lock()
	defer p.outMu.Unlock()
	_, err := io.WriteString(p.out, line+"\n")
	return errors.Trace(err)
}
