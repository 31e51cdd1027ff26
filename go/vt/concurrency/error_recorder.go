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

// Package concurrency collects the outcome of work spread across goroutines.
package concurrency

import (
	"sync/atomic"

	"vitess.io/shardcore/go/vt/vterrors"
)

// ErrorRecorder offers a way to record errors during complex
// asynchronous operations. Various implementation will offer
// different services.
type ErrorRecorder interface {
	RecordError(error)
	HasErrors() bool
	Error() error
}

// AllErrorRecorder records all the errors reported by concurrent
// producers, except cancellations: those replace a single slot, so a
// fan-out that is abandoned reports one cancellation and not one per
// straggler. The zero value is ready to use.
type AllErrorRecorder struct {
	head         atomic.Pointer[errNode]
	cancellation atomic.Pointer[cancelRecord]
}

type errNode struct {
	err  error
	next *errNode
}

type cancelRecord struct {
	err error
}

var _ ErrorRecorder = (*AllErrorRecorder)(nil)

// IsCancellation reports whether err means the work was abandoned rather
// than failed: its code is Canceled or DeadlineExceeded, or it wraps the
// matching context error.
func IsCancellation(err error) bool {
	return vterrors.IsCancellation(err)
}

// RecordError records a possible error. nil is ignored.
func (aer *AllErrorRecorder) RecordError(err error) {
	if err == nil {
		return
	}
	if IsCancellation(err) {
		aer.cancellation.Store(&cancelRecord{err: err})
		return
	}
	n := &errNode{err: err}
	for {
		old := aer.head.Load()
		n.next = old
		if aer.head.CompareAndSwap(old, n) {
			return
		}
	}
}

// HasErrors returns true if we ever recorded an error, cancellations
// included.
func (aer *AllErrorRecorder) HasErrors() bool {
	return aer.head.Load() != nil || aer.cancellation.Load() != nil
}

// Errors returns a snapshot of the non-cancellation errors, in the order
// they were recorded.
func (aer *AllErrorRecorder) Errors() []error {
	var errs []error
	for n := aer.head.Load(); n != nil; n = n.next {
		errs = append(errs, n.err)
	}
	for i, j := 0, len(errs)-1; i < j; i, j = i+1, j-1 {
		errs[i], errs[j] = errs[j], errs[i]
	}
	return errs
}

// AggrError runs the provided aggregation function on all the recorded
// non-cancellation errors.
func (aer *AllErrorRecorder) AggrError(aggr func([]error) error) error {
	errs := aer.Errors()
	if len(errs) == 0 {
		return nil
	}
	return aggr(errs)
}

// Error returns the aggregate of all the recorded non-cancellation errors,
// or nil if there are none. A recorded cancellation alone does not make
// Error return non-nil; see FinalError.
func (aer *AllErrorRecorder) Error() error {
	return aer.AggrError(vterrors.Aggregate)
}

// CancellationError returns the most recently recorded cancellation, or nil.
func (aer *AllErrorRecorder) CancellationError() error {
	if r := aer.cancellation.Load(); r != nil {
		return r.err
	}
	return nil
}

// FinalError is the outcome to report once every producer is done: the
// aggregate of real failures if there is one, otherwise the cancellation,
// otherwise nil.
func (aer *AllErrorRecorder) FinalError() error {
	if err := aer.Error(); err != nil {
		return err
	}
	return aer.CancellationError()
}

// ErrorStrings returns all errors as string array.
func (aer *AllErrorRecorder) ErrorStrings() []string {
	errs := aer.Errors()
	if len(errs) == 0 {
		return nil
	}
	strs := make([]string, len(errs))
	for i, e := range errs {
		strs[i] = e.Error()
	}
	return strs
}
