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

package launch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	cmdcontext "github.com/pingcap/nbest-rescore/pkg/cmd/context"
	"github.com/pingcap/nbest-rescore/pkg/cmd/util"
	"github.com/pingcap/nbest-rescore/pkg/config"
	cerrors "github.com/pingcap/nbest-rescore/pkg/errors"
	"github.com/pingcap/nbest-rescore/pkg/job"
	"github.com/pingcap/nbest-rescore/pkg/logutil"
	"github.com/pingcap/nbest-rescore/pkg/planner"
	"github.com/pingcap/nbest-rescore/pkg/scheduler"
	"github.com/pingcap/nbest-rescore/pkg/transcript"
	"github.com/pingcap/nbest-rescore/pkg/uuid"
	"github.com/pingcap/nbest-rescore/pkg/version"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// options defines flags for the `launch` command.
type options struct {
	configFilePath string

	launchConfig *config.LaunchConfig
}

// newOptions creates new options for the `launch` command.
func newOptions() *options {
	return &options{
		launchConfig: config.GetDefaultLaunchConfig(),
	}
}

// addFlags receives a *cobra.Command reference and binds
// flags related to the launch to it.
func (o *options) addFlags(cmd *cobra.Command) {
	c := o.launchConfig
	d := config.GetDefaultLaunchConfig()
	cmd.Flags().StringVarP(&c.InputDir, "input", "i", d.InputDir, "input directory containing <set>.src.hyp, <set>.nbest, <set>.trg.ref and weights.final")
	cmd.Flags().StringVarP(&c.OutFile, "outfile", "o", d.OutFile, "transcript file, '-' for stdout, a '.gz' suffix compresses it")
	cmd.Flags().StringVarP(&c.ModelDir, "model", "m", d.ModelDir, "path to the trained model")
	cmd.Flags().IntSliceVarP(&c.ModelNums, "model-nums", "n", d.ModelNums, "which models to use")
	cmd.Flags().StringVarP(&c.TuneSet, "dev", "d", d.TuneSet, "set to optimize on")
	cmd.Flags().StringSliceVarP(&c.EvalSets, "eval", "e", d.EvalSets, "sets to evaluate on")
	cmd.Flags().StringVarP(&c.Root, "root", "r", d.Root, "path to put outputs")
	cmd.Flags().IntVarP(&c.Width, "width", "w", d.Width, "how many pieces to split each rescore job into")
	cmd.Flags().StringVarP(&c.Suffix, "suffix", "S", d.Suffix, "goes on the end of the final onebest")
	cmd.Flags().StringVarP(&c.Label, "label", "l", d.Label, "label for job names")

	cmd.Flags().StringVar(&c.Programs.RescoreSingle, "rescore-single", d.Programs.RescoreSingle, "rescore program, it submits itself and prints a job id")
	cmd.Flags().StringVar(&c.Programs.Convert, "convert", d.Programs.Convert, "program that adjoins scores to an n-best list")
	cmd.Flags().StringVar(&c.Programs.Pipeline, "pipeline", d.Programs.Pipeline, "sbmt pipeline directory")
	cmd.Flags().StringVar(&c.Programs.RunRerank, "runrerank", d.Programs.RunRerank, "rerank script, relative to the pipeline directory")

	cmd.Flags().BoolVar(&c.SkipRescore, "skip-rescore", d.SkipRescore, "assume rescore results already exist and skip them")
	cmd.Flags().BoolVar(&c.Debug, "debug", d.Debug, "keep the work directory and never cancel submitted jobs")
	cmd.Flags().BoolVar(&c.DryRun, "dry-run", d.DryRun, "print the commands without submitting them")
	cmd.Flags().BoolVar(&c.WaitForTune, "wait-for-tune", d.WaitForTune, "make the rerank job wait for the tuning set even if it is not evaluated")
	cmd.Flags().IntVar(&c.SubmitConcurrency, "submit-concurrency", d.SubmitConcurrency, "number of rescore jobs submitted at the same time")
	cmd.Flags().StringVar(&c.MetricsFile, "metrics-file", d.MetricsFile, "write launch metrics to this file in prometheus text format")
	cmd.Flags().StringVar(&c.Scheduler.Dialect, "scheduler", d.Scheduler.Dialect, "scheduler dialect (pbs|slurm)")

	cmd.Flags().StringVar(&c.Log.File, "log-file", d.Log.File, "log file path")
	cmd.Flags().StringVar(&c.Log.Level, "log-level", d.Log.Level, "log level (etc: debug|info|warn|error)")

	cmd.Flags().StringVar(&o.configFilePath, "config", "", "Path of the configuration file")
}

func (o *options) loadAndVerifyLaunchConfig(cmd *cobra.Command) (*config.LaunchConfig, error) {
	conf := config.GetDefaultLaunchConfig()
	if len(o.configFilePath) > 0 {
		if err := util.StrictDecodeFile(o.configFilePath, "rescore-all", conf); err != nil {
			return nil, err
		}
	}
	c := o.launchConfig
	cmd.Flags().Visit(func(flag *pflag.Flag) {
		switch flag.Name {
		case "input":
			conf.InputDir = c.InputDir
		case "outfile":
			conf.OutFile = c.OutFile
		case "model":
			conf.ModelDir = c.ModelDir
		case "model-nums":
			conf.ModelNums = c.ModelNums
		case "dev":
			conf.TuneSet = c.TuneSet
		case "eval":
			conf.EvalSets = c.EvalSets
		case "root":
			conf.Root = c.Root
		case "width":
			conf.Width = c.Width
		case "suffix":
			conf.Suffix = c.Suffix
		case "label":
			conf.Label = c.Label
		case "rescore-single":
			conf.Programs.RescoreSingle = c.Programs.RescoreSingle
		case "convert":
			conf.Programs.Convert = c.Programs.Convert
		case "pipeline":
			conf.Programs.Pipeline = c.Programs.Pipeline
		case "runrerank":
			conf.Programs.RunRerank = c.Programs.RunRerank
		case "skip-rescore":
			conf.SkipRescore = c.SkipRescore
		case "debug":
			conf.Debug = c.Debug
		case "dry-run":
			conf.DryRun = c.DryRun
		case "wait-for-tune":
			conf.WaitForTune = c.WaitForTune
		case "submit-concurrency":
			conf.SubmitConcurrency = c.SubmitConcurrency
		case "metrics-file":
			conf.MetricsFile = c.MetricsFile
		case "scheduler":
			conf.Scheduler.Dialect = c.Scheduler.Dialect
		case "log-file":
			conf.Log.File = c.Log.File
		case "log-level":
			conf.Log.Level = c.Log.Level
		case "config":
			// do nothing
		default:
			log.Panic("unknown flag, please report a bug", zap.String("flagName", flag.Name))
		}
	})
	if conf.SkipRescore {
		for _, name := range []string{"rescore-single", "submit-concurrency"} {
			if cmd.Flags().Changed(name) {
				return nil, cerrors.ErrInvalidCliParameter.GenWithStackByArgs(
					fmt.Sprintf("--%s has no effect with --skip-rescore", name))
			}
		}
	}
	if err := conf.ValidateAndAdjust(); err != nil {
		return nil, errors.Trace(err)
	}
	return conf, nil
}

func (o *options) run(cmd *cobra.Command) error {
	conf, err := o.loadAndVerifyLaunchConfig(cmd)
	if err != nil {
		return errors.Trace(err)
	}

	cancel := util.InitCmd(cmd, conf.Log)
	defer cancel()
	version.LogVersionInfo()

	l := newLauncher(conf, uuid.NewGenerator(), cmd.OutOrStdout(), cmd.ErrOrStderr())
	return l.run(cmdcontext.GetDefaultContext())
}

// launcher owns the resources of one launch: the work directory, the
// transcript, the job registry and its guard.
type launcher struct {
	cfg    *config.LaunchConfig
	runID  string
	stdout io.Writer
	stderr io.Writer
	logger *zap.Logger
	// exit terminates the process after a forced shutdown.
	exit func(code int)

	workDir string
}

func newLauncher(cfg *config.LaunchConfig, gen uuid.Generator, stdout, stderr io.Writer) *launcher {
	runID := gen.NewString()
	return &launcher{
		cfg:    cfg,
		runID:  runID,
		stdout: stdout,
		stderr: stderr,
		logger: log.L().With(zap.String("run-id", runID)),
		exit:   os.Exit,
	}
}

func (l *launcher) run(ctx context.Context) (err error) {
	cfg := l.cfg
	l.logger.Info("launch pipeline",
		zap.String("root", cfg.Root),
		zap.String("scheduler", cfg.Scheduler.Dialect),
		zap.Bool("dry-run", cfg.DryRun),
		zap.Bool("debug", cfg.Debug))

	if err := l.prepareWorkDir(); err != nil {
		return err
	}
	defer l.cleanWorkDir()

	if cfg.MetricsFile != "" {
		registry := prometheus.NewRegistry()
		job.InitMetrics(registry)
		defer func() {
			if werr := prometheus.WriteToTextfile(cfg.MetricsFile, registry); werr != nil {
				l.logger.Warn("write metrics file failed",
					zap.String("file", cfg.MetricsFile), zap.Error(werr))
			}
		}()
	}

	out, err := transcript.Open(cfg.OutFile, l.stdout)
	if err != nil {
		return errors.Trace(err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = errors.Trace(cerr)
		}
	}()

	dialect, err := scheduler.NewDialect(cfg.Scheduler)
	if err != nil {
		return errors.Trace(err)
	}
	var sched scheduler.Scheduler = scheduler.NewExecScheduler(dialect)
	if cfg.DryRun {
		sched = scheduler.NewDryRunScheduler()
	}

	reg := job.NewRegistry(sched,
		job.WithCancelRetries(cfg.Scheduler.CancelRetries),
		job.WithCancelTimeout(cfg.Scheduler.CancelTimeout.Duration()),
		job.WithLogger(l.logger))
	guard := job.NewGuard(reg, job.GuardOptions{
		Disabled: cfg.Debug,
		Logger:   l.logger,
	})
	defer func() {
		if rerr := guard.Release(); rerr != nil {
			l.logger.Warn("some jobs could not be cancelled", zap.Error(rerr))
		}
	}()

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	runDone := make(chan struct{})
	stop := util.InitSignalHandling(func() <-chan struct{} {
		cancelRun()
		return runDone
	}, func() {
		if guard.Released() {
			l.logger.Warn("forced shutdown, waiting for the running job cancellation")
		}
		if rerr := guard.Release(); rerr != nil {
			l.logger.Warn("some jobs could not be cancelled", zap.Error(rerr))
		}
		l.exit(1)
	})
	defer stop()

	p := planner.New(cfg, dialect, reg, out,
		planner.WithRunID(l.runID),
		planner.WithLogger(log.L().Named("planner")))
	g, err := p.Run(runCtx)
	close(runDone)

	if cfg.Debug && g != nil {
		path := filepath.Join(l.workDir, "plan.json")
		if derr := g.Dump(path); derr != nil {
			l.logger.Warn("dump plan failed", zap.String("file", path), zap.Error(derr))
		} else {
			l.logger.Info("plan dumped", zap.String("file", path))
		}
	}
	if err != nil {
		l.logger.Error("launch pipeline failed",
			zap.String("code", cerrors.RFCCode(err)),
			zap.Bool("submission-error", cerrors.IsSubmissionError(err)),
			logutil.ZapErrorFilter(err, context.Canceled))
		l.logger.Debug("launch pipeline failed", zap.String("stack", errors.ErrorStack(err)))
		return errors.Trace(err)
	}
	l.logger.Info("pipeline launched",
		zap.String("job-id", g.Terminal.ID), zap.Int("jobs", len(g.Jobs())))
	return nil
}

func (l *launcher) prepareWorkDir() error {
	dir, err := os.MkdirTemp("", "rescore-all-")
	if err != nil {
		return cerrors.WrapError(cerrors.ErrPrepareWorkspace, err, os.TempDir())
	}
	l.workDir = dir
	if l.cfg.Debug {
		fmt.Fprintln(l.stdout, dir)
		fmt.Fprint(l.stderr, color.HiYellowString(
			"[WARN] debug mode, submitted jobs are not cancelled on failure and %s is kept\n", dir))
	}
	return nil
}

func (l *launcher) cleanWorkDir() {
	if l.cfg.Debug || l.workDir == "" {
		return
	}
	if err := os.RemoveAll(l.workDir); err != nil {
		l.logger.Warn("remove work directory failed", zap.String("dir", l.workDir), zap.Error(err))
	}
}

// NewCmdLaunch creates the `launch` command.
func NewCmdLaunch() *cobra.Command {
	o := newOptions()

	command := &cobra.Command{
		Use:   "launch",
		Short: "Submit the rescore, combine and rerank jobs of an n-best rescoring run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd)
		},
	}
	o.addFlags(command)

	return command
}
