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
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pingcap/nbest-rescore/pkg/config"
	cerrors "github.com/pingcap/nbest-rescore/pkg/errors"
	"github.com/pingcap/nbest-rescore/pkg/uuid"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const testRunID = "0f8fad5b-d9cb-469f-a165-70867728950e"

func newTestLaunchConfig(t *testing.T) *config.LaunchConfig {
	dir := t.TempDir()
	cfg := config.GetDefaultLaunchConfig()
	cfg.InputDir = filepath.Join(dir, "input")
	cfg.ModelDir = filepath.Join(dir, "model")
	cfg.Root = filepath.Join(dir, "root")
	cfg.OutFile = filepath.Join(dir, "transcript.txt")
	cfg.ModelNums = []int{1, 2}
	cfg.EvalSets = []string{"dev", "test"}
	require.NoError(t, cfg.ValidateAndAdjust())
	return cfg
}

func readLines(t *testing.T, path string) []string {
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(content), "\n"), "\n")
}

func TestLoadAndVerifyLaunchConfig(t *testing.T) {
	t.Parallel()

	configPath := filepath.Join(t.TempDir(), "launch.toml")
	configContent := `
input = "/data/from-file"
model = "/models/from-file"
label = "fromfile"
width = 10

[scheduler]
dialect = "slurm"
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0o644))

	o := newOptions()
	cmd := &cobra.Command{Use: "launch"}
	o.addFlags(cmd)
	require.NoError(t, cmd.ParseFlags([]string{
		"--config", configPath,
		"--root", "/scratch/out",
		"-l", "fromflag",
		"-n", "1,2",
		"--dry-run",
	}))

	cfg, err := o.loadAndVerifyLaunchConfig(cmd)
	require.NoError(t, err)
	// flags win over the file, the file wins over defaults
	require.Equal(t, "fromflag", cfg.Label)
	require.Equal(t, "/scratch/out", cfg.Root)
	require.Equal(t, []int{1, 2}, cfg.ModelNums)
	require.True(t, cfg.DryRun)
	require.Equal(t, "/data/from-file", cfg.InputDir)
	require.Equal(t, 10, cfg.Width)
	require.Equal(t, config.DialectSlurm, cfg.Scheduler.Dialect)
	require.Equal(t, "dev", cfg.TuneSet)
	require.Equal(t, []string{"dev", "test", "syscomb"}, cfg.EvalSets)
	require.Equal(t, config.StdoutPath, cfg.OutFile)
}

func TestLoadAndVerifyLaunchConfigInvalid(t *testing.T) {
	t.Parallel()

	o := newOptions()
	cmd := &cobra.Command{Use: "launch"}
	o.addFlags(cmd)
	require.NoError(t, cmd.ParseFlags([]string{"--root", "/scratch/out"}))
	_, err := o.loadAndVerifyLaunchConfig(cmd)
	require.ErrorIs(t, err, cerrors.ErrInvalidConfig)

	o = newOptions()
	cmd = &cobra.Command{Use: "launch"}
	o.addFlags(cmd)
	require.NoError(t, cmd.ParseFlags([]string{
		"-i", "/data", "-r", "/scratch/out", "-m", "/models", "--scheduler", "lsf",
	}))
	_, err = o.loadAndVerifyLaunchConfig(cmd)
	require.ErrorIs(t, err, cerrors.ErrUnknownDialect)

	o = newOptions()
	cmd = &cobra.Command{Use: "launch"}
	o.addFlags(cmd)
	require.NoError(t, cmd.ParseFlags([]string{"--config", filepath.Join(t.TempDir(), "missing.toml")}))
	_, err = o.loadAndVerifyLaunchConfig(cmd)
	require.ErrorIs(t, err, cerrors.ErrDecodeConfigFile)

	o = newOptions()
	cmd = &cobra.Command{Use: "launch"}
	o.addFlags(cmd)
	require.NoError(t, cmd.ParseFlags([]string{
		"-i", "/data", "-r", "/scratch/out", "--skip-rescore", "--submit-concurrency", "4",
	}))
	_, err = o.loadAndVerifyLaunchConfig(cmd)
	require.ErrorIs(t, err, cerrors.ErrInvalidCliParameter)
	require.ErrorContains(t, err, "--submit-concurrency has no effect with --skip-rescore")
}

func TestLauncherDryRun(t *testing.T) {
	cfg := newTestLaunchConfig(t)
	cfg.DryRun = true
	cfg.MetricsFile = filepath.Join(t.TempDir(), "launch.prom")

	var stdout, stderr bytes.Buffer
	l := newLauncher(cfg, uuid.NewGenerator(), &stdout, &stderr)
	require.NoError(t, l.run(context.Background()))

	// 2 datasets x 2 models, 2 combines and the rerank job
	lines := readLines(t, cfg.OutFile)
	require.Len(t, lines, 8)
	require.Equal(t, "dryrun-7", lines[len(lines)-1])
	require.Empty(t, stdout.String())

	metrics, err := os.ReadFile(cfg.MetricsFile)
	require.NoError(t, err)
	require.Contains(t, string(metrics), `nbest_launcher_job_submitted_total{stage="rescore"}`)
	require.Contains(t, string(metrics), `nbest_launcher_job_submitted_total{stage="rerank"}`)

	require.NoDirExists(t, l.workDir)
	require.DirExists(t, cfg.Root)
}

func TestLauncherDebugKeepsWorkDir(t *testing.T) {
	cfg := newTestLaunchConfig(t)
	cfg.DryRun = true
	cfg.Debug = true

	var stdout, stderr bytes.Buffer
	l := newLauncher(cfg, uuid.NewConstGenerator(testRunID), &stdout, &stderr)
	require.NoError(t, l.run(context.Background()))
	t.Cleanup(func() { os.RemoveAll(l.workDir) })

	require.Equal(t, l.workDir+"\n", stdout.String())
	require.Contains(t, stderr.String(), "[WARN] debug mode")
	require.DirExists(t, l.workDir)
	plan, err := os.ReadFile(filepath.Join(l.workDir, "plan.json"))
	require.NoError(t, err)
	require.Contains(t, string(plan), `"run-id": "`+testRunID+`"`)
}

func TestLauncherCancelsOnFailure(t *testing.T) {
	dir := t.TempDir()
	cancelled := filepath.Join(dir, "cancelled")

	cfg := newTestLaunchConfig(t)
	cfg.EvalSets = []string{"dev"}
	// the rescore program submits itself and prints "m<modelnum>.hpc"
	cfg.Programs.RescoreSingle = `sh -c 'echo m$8.hpc' rescore`
	cfg.Scheduler.Submit = "false"
	cfg.Scheduler.Cancel = `sh -c 'echo $1 >> ` + cancelled + `' cancel`

	var stdout, stderr bytes.Buffer
	l := newLauncher(cfg, uuid.NewGenerator(), &stdout, &stderr)
	err := l.run(context.Background())
	require.ErrorIs(t, err, cerrors.ErrSubmitJob)

	// both rescore jobs and the failed combine job were written
	require.Len(t, readLines(t, cfg.OutFile), 3)
	require.ElementsMatch(t, []string{"m1.hpc", "m2.hpc"}, readLines(t, cancelled))
}

func TestLaunchCommand(t *testing.T) {
	dir := t.TempDir()
	outFile := filepath.Join(dir, "transcript.txt.gz")

	cmd := NewCmdLaunch()
	cmd.SetArgs([]string{
		"--input", filepath.Join(dir, "input"),
		"--root", filepath.Join(dir, "root"),
		"--model", filepath.Join(dir, "model"),
		"-n", "1,2",
		"-e", "dev",
		"-o", outFile,
		"--dry-run",
		"--log-level", "error",
	})
	require.NoError(t, cmd.Execute())
	require.FileExists(t, outFile)

	cmd = NewCmdLaunch()
	cmd.SetArgs([]string{"unexpected"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	require.Error(t, cmd.Execute())
}
