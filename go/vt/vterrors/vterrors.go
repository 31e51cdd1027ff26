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

// Package vterrors provides simple error handling primitives for shardcore.
//
// In all shardcore code, errors should be propagated using vterrors.Wrapf()
// and not fmt.Errorf(). This makes sure that the error code of the innermost
// error is preserved all the way up to the caller.
//
// Error codes share the gRPC code space (google.golang.org/grpc/codes), so an
// error can cross the transport boundary without being re-classified.
//
// Cancellation is special: an error is a cancellation when its code is
// Canceled or DeadlineExceeded. Components that collect failures from many
// concurrent calls keep cancellations apart from real failures, see
// IsCancellation.
package vterrors

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc/codes"
)

type fundamental struct {
	msg  string
	code codes.Code
}

func (f *fundamental) Error() string { return f.msg }

func (f *fundamental) ErrorCode() codes.Code { return f.code }

func (f *fundamental) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			panicIfError(io.WriteString(s, "Code: "+f.code.String()+"\n"))
		}
		panicIfError(io.WriteString(s, f.msg))
	case 's':
		panicIfError(io.WriteString(s, f.msg))
	case 'q':
		panicIfError(fmt.Fprintf(s, "%q", f.msg))
	}
}

// New returns an error with the supplied message.
func New(code codes.Code, message string) error {
	return &fundamental{
		msg:  message,
		code: code,
	}
}

// Errorf formats according to a format specifier and returns the string
// as a value that satisfies error.
func Errorf(code codes.Code, format string, args ...any) error {
	return &fundamental{
		msg:  fmt.Sprintf(format, args...),
		code: code,
	}
}

// NewErrorf is Errorf with an explicit wrapped cause: the result matches
// errors.Is(err, cause) while reporting code.
func NewErrorf(code codes.Code, cause error, format string, args ...any) error {
	return &wrapping{
		cause: &fundamental{msg: cause.Error(), code: code},
		msg:   fmt.Sprintf(format, args...),
		inner: cause,
	}
}

type wrapping struct {
	cause error
	msg   string
	// inner is the original error, kept for errors.Is / errors.As.
	inner error
}

func (w *wrapping) Error() string { return w.msg + ": " + w.cause.Error() }

func (w *wrapping) Cause() error { return w.cause }

func (w *wrapping) Unwrap() error {
	if w.inner != nil {
		return w.inner
	}
	return w.cause
}

func (w *wrapping) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v', 's':
		panicIfError(io.WriteString(s, w.Error()))
	case 'q':
		panicIfError(fmt.Fprintf(s, "%q", w.Error()))
	}
}

// Wrap returns an error annotating err with the supplied message.
// If err is nil, Wrap returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return &wrapping{
		cause: err,
		msg:   message,
	}
}

// Wrapf returns an error annotating err with the format specifier.
// If err is nil, Wrapf returns nil.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &wrapping{
		cause: err,
		msg:   fmt.Sprintf(format, args...),
	}
}

// ErrorWithCode is implemented by errors that know their own code.
type ErrorWithCode interface {
	ErrorCode() codes.Code
}

// Code returns the error code if it's a vtError.
// If err is nil, it returns codes.OK.
func Code(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	var withCode ErrorWithCode
	if errors.As(err, &withCode) {
		return withCode.ErrorCode()
	}
	if cause := Cause(err); cause != nil && cause != err {
		return Code(cause)
	}

	// Handle some special cases.
	switch {
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	}
	return codes.Unknown
}

// IsCancellation reports whether err means the work was abandoned rather than
// failed: its code is Canceled or DeadlineExceeded.
func IsCancellation(err error) bool {
	switch Code(err) {
	case codes.Canceled, codes.DeadlineExceeded:
		return true
	}
	return false
}

// Cause will return the immediate cause, if possible.
// An error value has a cause if it implements the following
// interface:
//
//	type causer interface {
//	       Cause() error
//	}
//
// If the error does not implement Cause, nil will be returned
func Cause(err error) error {
	type causer interface {
		Cause() error
	}

	causerObj, ok := err.(causer)
	if !ok {
		return nil
	}

	return causerObj.Cause()
}

// RootCause returns the underlying cause of the error, if possible.
// If the error does not implement Cause, the original error will
// be returned. If the error is nil, nil will be returned without further
// investigation.
func RootCause(err error) error {
	for {
		cause := Cause(err)
		if cause == nil {
			return err
		}
		err = cause
	}
}

func panicIfError(_ int, err error) {
	if err != nil {
		panic(err)
	}
}
