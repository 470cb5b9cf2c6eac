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
	"testing"

	"github.com/mattn/go-shellwords"
	cerrors "github.com/pingcap/nbest-rescore/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestRescoreArgs(t *testing.T) {
	t.Parallel()

	r := &Rescore{
		Program:   "python3 /opt/bin/rescore_split.py",
		WorkDir:   "/data/out/dev",
		SplitSize: 5,
		ModelDir:  "/models/zoph",
		ModelNum:  3,
		DataFile:  "/data/in/dev.src.hyp",
		OutFile:   "/data/out/dev.m3.scores",
		LogFile:   "/data/out/dev.m3.log",
	}
	args, err := Build(r)
	require.NoError(t, err)
	require.Equal(t, []string{
		"python3", "/opt/bin/rescore_split.py",
		"--workdir", "/data/out/dev",
		"--splitsize", "5",
		"--model", "/models/zoph",
		"--modelnum", "3",
		"--datafile", "/data/in/dev.src.hyp",
		"--outfile", "/data/out/dev.m3.scores",
		"--logfile", "/data/out/dev.m3.log",
	}, args)
}

func TestRescoreValidate(t *testing.T) {
	t.Parallel()

	r := &Rescore{Program: "rescore_split.py", SplitSize: 5}
	err := r.Validate()
	require.ErrorIs(t, err, cerrors.ErrInvalidCommand)
	require.Regexp(t, "missing workdir, model, datafile, outfile, logfile", err.Error())

	r = &Rescore{
		Program: "rescore_split.py", WorkDir: "w", ModelDir: "m",
		DataFile: "d", OutFile: "o", LogFile: "l",
	}
	err = r.Validate()
	require.ErrorIs(t, err, cerrors.ErrInvalidCommand)
	require.Regexp(t, "splitsize", err.Error())
}

func TestCombineArgs(t *testing.T) {
	t.Parallel()

	c := &Combine{
		Program:    "nmtrescore2sbmtnbest.py",
		ScoreFiles: []string{"/out/dev.m1.scores", "/out/dev.m2.scores"},
		NBest:      "/in/dev.nbest",
		Output:     "/out/dev.adjoin.onebest.rerank",
	}
	args, err := Build(c)
	require.NoError(t, err)
	require.Equal(t, []string{
		"nmtrescore2sbmtnbest.py",
		"-i", "/out/dev.m1.scores", "/out/dev.m2.scores",
		"-a", "/in/dev.nbest",
		"-o", "/out/dev.adjoin.onebest.rerank",
	}, args)

	c.ScoreFiles = nil
	_, err = Build(c)
	require.ErrorIs(t, err, cerrors.ErrInvalidCommand)
}

func TestRerankArgs(t *testing.T) {
	t.Parallel()

	r := &Rerank{
		Program:    "/pipeline/runrerank.sh",
		Suffix:     "onebest.rerank",
		Features:   FeatureNames(2),
		Weights:    "/in/weights.final",
		TuneRef:    "/in/dev.trg.ref",
		OutDir:     "/out",
		TuneAdjoin: "/out/dev.adjoin.onebest.rerank",
		Decode:     []string{"/out/dev.adjoin.onebest.rerank", "/out/test.adjoin.onebest.rerank"},
	}
	args, err := Build(r)
	require.NoError(t, err)
	require.Equal(t, []string{
		"/pipeline/runrerank.sh",
		"-S", "onebest.rerank",
		"-f", "nmt_0 nmt_1",
		"-w", "/in/weights.final",
		"-r", "/in/dev.trg.ref",
		"-o", "/out",
		"-t", "/out/dev.adjoin.onebest.rerank",
		"/out/dev.adjoin.onebest.rerank", "/out/test.adjoin.onebest.rerank",
	}, args)
	require.Equal(t,
		"/pipeline/runrerank.sh -S onebest.rerank -f 'nmt_0 nmt_1' -w /in/weights.final "+
			"-r /in/dev.trg.ref -o /out -t /out/dev.adjoin.onebest.rerank "+
			"/out/dev.adjoin.onebest.rerank /out/test.adjoin.onebest.rerank",
		Render(args))

	r.Decode = nil
	err = r.Validate()
	require.ErrorIs(t, err, cerrors.ErrInvalidCommand)
}

func TestParseProgram(t *testing.T) {
	t.Parallel()

	args, err := ParseProgram(`python3 "/opt/my tools/convert.py" --fast`)
	require.NoError(t, err)
	require.Equal(t, []string{"python3", "/opt/my tools/convert.py", "--fast"}, args)

	_, err = ParseProgram("   ")
	require.ErrorIs(t, err, cerrors.ErrInvalidCommand)

	_, err = ParseProgram(`python3 "unterminated`)
	require.ErrorIs(t, err, cerrors.ErrInvalidCommand)
}

func TestRenderRoundTrip(t *testing.T) {
	t.Parallel()

	argv := []string{"qsubrun", "-N", "x.dev.convert", "-W", "depend=afterok:1.hpc:2.hpc",
		"--", "convert", "-f", "it's spaced"}
	line := Render(argv)
	parsed, err := shellwords.Parse(line)
	require.NoError(t, err)
	require.Equal(t, argv, parsed)
}

func TestFeatureNames(t *testing.T) {
	t.Parallel()

	require.Empty(t, FeatureNames(0))
	require.Equal(t, []string{"nmt_0", "nmt_1", "nmt_2"}, FeatureNames(3))
}
