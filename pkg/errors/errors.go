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

package errors

import (
	"github.com/pingcap/errors"
)

// all launcher errors
var (
	// cli and config related errors
	ErrInvalidCliParameter = errors.Normalize(
		"invalid cli parameters: %s",
		errors.RFCCodeText("NBEST:ErrInvalidCliParameter"),
	)
	ErrInvalidConfig = errors.Normalize(
		"invalid launch config: %s",
		errors.RFCCodeText("NBEST:ErrInvalidConfig"),
	)
	ErrDecodeConfigFile = errors.Normalize(
		"decode config file %s failed",
		errors.RFCCodeText("NBEST:ErrDecodeConfigFile"),
	)
	ErrUnknownDialect = errors.Normalize(
		"unknown scheduler dialect: %s",
		errors.RFCCodeText("NBEST:ErrUnknownDialect"),
	)
	ErrInvalidCommand = errors.Normalize(
		"invalid %s command: %s",
		errors.RFCCodeText("NBEST:ErrInvalidCommand"),
	)

	// scheduler related errors
	ErrSubmitJob = errors.Normalize(
		"submit job failed: %s",
		errors.RFCCodeText("NBEST:ErrSubmitJob"),
	)
	ErrInvalidJobID = errors.Normalize(
		"scheduler returned an invalid job id %q",
		errors.RFCCodeText("NBEST:ErrInvalidJobID"),
	)
	ErrCancelJob = errors.Normalize(
		"couldn't cancel job %s",
		errors.RFCCodeText("NBEST:ErrCancelJob"),
	)

	// pipeline related errors
	ErrMissingPrecomputedResult = errors.Normalize(
		"skipping rescore but %s does not exist",
		errors.RFCCodeText("NBEST:ErrMissingPrecomputedResult"),
	)
	ErrPrepareWorkspace = errors.Normalize(
		"prepare workspace %s failed",
		errors.RFCCodeText("NBEST:ErrPrepareWorkspace"),
	)
)
