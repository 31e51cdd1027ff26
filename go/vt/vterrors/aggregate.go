/*
Copyright 2019 The Vitess Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package vterrors

import (
	"sort"
	"strings"

	"google.golang.org/grpc/codes"
)

// A list of all codes, ordered by priority. These priorities are
// used when aggregating multiple errors from a fan-out.
// Higher priority codes are more urgent for user to fix.
const (
	PriorityOK = iota
	PriorityCanceled
	PriorityAlreadyExists
	PriorityOutOfRange
	PriorityInvalidArgument
	PriorityNotFound
	PriorityPermissionDenied
	PriorityResourceExhausted
	PriorityFailedPrecondition
	PriorityUnauthenticated
	PriorityUnknown
	PriorityDeadlineExceeded
	PriorityInternal
	PriorityDataLoss
	PriorityAborted
	PriorityUnavailable
	PriorityUnimplemented
)

var errorPriorities = map[codes.Code]int{
	codes.OK:                 PriorityOK,
	codes.Canceled:           PriorityCanceled,
	codes.Unknown:            PriorityUnknown,
	codes.InvalidArgument:    PriorityInvalidArgument,
	codes.DeadlineExceeded:   PriorityDeadlineExceeded,
	codes.NotFound:           PriorityNotFound,
	codes.AlreadyExists:      PriorityAlreadyExists,
	codes.PermissionDenied:   PriorityPermissionDenied,
	codes.Unauthenticated:    PriorityUnauthenticated,
	codes.ResourceExhausted:  PriorityResourceExhausted,
	codes.FailedPrecondition: PriorityFailedPrecondition,
	codes.Aborted:            PriorityAborted,
	codes.OutOfRange:         PriorityOutOfRange,
	codes.Unimplemented:      PriorityUnimplemented,
	codes.Internal:           PriorityInternal,
	codes.Unavailable:        PriorityUnavailable,
	codes.DataLoss:           PriorityDataLoss,
}

// Aggregate aggregates several errors into a single one.
// The resulting error code will be the one with the highest
// priority as defined by the priority constants in this package.
// Messages that occur more than once are reported once.
func Aggregate(errors []error) error {
	if len(errors) == 0 {
		return nil
	}
	return New(aggregateCodes(errors), aggregateErrors(errors))
}

func aggregateCodes(errors []error) codes.Code {
	highCode := codes.OK
	for _, e := range errors {
		code := Code(e)
		if errorPriorities[code] > errorPriorities[highCode] {
			highCode = code
		}
	}
	return highCode
}

// aggregateErrors joins the distinct messages of errs.
func aggregateErrors(errs []error) string {
	seen := make(map[string]struct{}, len(errs))
	errStrs := make([]string, 0, len(errs))
	for _, e := range errs {
		s := e.Error()
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		errStrs = append(errStrs, s)
	}
	// sort the error strings so we always have deterministic ordering
	sort.Strings(errStrs)
	return strings.Join(errStrs, "\n")
}
