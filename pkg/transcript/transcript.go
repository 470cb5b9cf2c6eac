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

// Package transcript opens the stream that receives every submitted command
// line and the final job id.
package transcript

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pingcap/errors"
	"github.com/pingcap/nbest-rescore/pkg/config"
	cerrors "github.com/pingcap/nbest-rescore/pkg/errors"
	"go.uber.org/multierr"
)

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

type gzipFile struct {
	*gzip.Writer
	f *os.File
}

func (w *gzipFile) Close() error {
	return multierr.Append(w.Writer.Close(), w.f.Close())
}

// Open opens path for writing. "-" writes to stdout, which is never closed,
// and a ".gz" suffix compresses the transcript.
func Open(path string, stdout io.Writer) (io.WriteCloser, error) {
	if path == "" || path == config.StdoutPath {
		return nopCloser{stdout}, nil
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, cerrors.WrapError(cerrors.ErrPrepareWorkspace, err, dir)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if strings.HasSuffix(path, ".gz") {
		return &gzipFile{Writer: gzip.NewWriter(f), f: f}, nil
	}
	return f, nil
}
