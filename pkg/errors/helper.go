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
	stderrors "errors"

	"github.com/pingcap/errors"
)

// WrapError generates a new error based on given `*errors.Error`, wraps the err
// as cause error.
// If given `err` is nil, returns a nil error, which is a the different behavior
// against `Wrap` function in pingcap/errors.
func WrapError(rfcError *errors.Error, err error, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return rfcError.Wrap(err).GenWithStackByArgs(args...)
}

// IsSubmissionError returns true if the error means a job could not be
// enqueued by the scheduler.
func IsSubmissionError(err error) bool {
	return stderrors.Is(err, ErrSubmitJob) || stderrors.Is(err, ErrInvalidJobID)
}

// IsCancellationError returns true if the error comes from cancelling a job.
func IsCancellationError(err error) bool {
	return stderrors.Is(err, ErrCancelJob)
}

// RFCCode returns the RFC code of a normalized error, or an empty string.
func RFCCode(err error) string {
	type causer interface {
		Cause() error
	}
	for err != nil {
		if rfcErr, ok := err.(*errors.Error); ok {
			return string(rfcErr.RFCCode())
		}
		c, ok := err.(causer)
		if !ok {
			break
		}
		err = c.Cause()
	}
	return ""
}
