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
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestWrapNil(t *testing.T) {
	got := Wrap(nil, "no error")
	if got != nil {
		t.Errorf("Wrap(nil, \"no error\"): got %#v, expected nil", got)
	}
}

func TestWrap(t *testing.T) {
	tests := []struct {
		err         error
		message     string
		wantMessage string
		wantCode    codes.Code
	}{
		{io.EOF, "read error", "read error: EOF", codes.Unknown},
		{New(codes.AlreadyExists, "oops"), "client error", "client error: oops", codes.AlreadyExists},
	}

	for _, tt := range tests {
		got := Wrap(tt.err, tt.message)
		if got.Error() != tt.wantMessage {
			t.Errorf("Wrap(%v, %q): got: [%v], want [%v]", tt.err, tt.message, got, tt.wantMessage)
		}
		if Code(got) != tt.wantCode {
			t.Errorf("Wrap(%v, %v): got: [%v], want [%v]", tt.err, tt, Code(got), tt.wantCode)
		}
	}
}

type nilError struct{}

func (nilError) Error() string { return "nil error" }

func TestRootCause(t *testing.T) {
	x := New(codes.FailedPrecondition, "error")
	tests := []struct {
		err  error
		want error
	}{{
		// nil error is nil
		err:  nil,
		want: nil,
	}, {
		// typed nil is nil
		err:  (*nilError)(nil),
		want: (*nilError)(nil),
	}, {
		// uncaused error is unaffected
		err:  io.EOF,
		want: io.EOF,
	}, {
		// caused error returns cause
		err:  Wrap(io.EOF, "ignored"),
		want: io.EOF,
	}, {
		err:  x,
		want: x,
	}}

	for i, tt := range tests {
		got := RootCause(tt.err)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("test %d: got %#v, want %#v", i+1, got, tt.want)
		}
	}
}

func TestWrapf(t *testing.T) {
	tests := []struct {
		err     error
		message string
		want    string
	}{
		{io.EOF, "read error", "read error: EOF"},
		{Wrapf(io.EOF, "read error without format specifiers"), "client error", "client error: read error without format specifiers: EOF"},
		{Wrapf(io.EOF, "read error with %d format specifier", 1), "client error", "client error: read error with 1 format specifier: EOF"},
	}

	for _, tt := range tests {
		got := Wrapf(tt.err, "%s", tt.message).Error()
		if got != tt.want {
			t.Errorf("Wrapf(%v, %q): got: %v, want %v", tt.err, tt.message, got, tt.want)
		}
	}
	assert.Nil(t, Wrapf(nil, "no error"))
}

func TestErrorf(t *testing.T) {
	err := Errorf(codes.DataLoss, "read error with %d format specifier", 1)
	assert.EqualError(t, err, "read error with 1 format specifier")
	assert.Equal(t, codes.DataLoss, Code(err))
}

func TestNewErrorf(t *testing.T) {
	err := NewErrorf(codes.Canceled, context.Canceled, "shard %s", "-80")
	assert.EqualError(t, err, "shard -80: context canceled")
	assert.Equal(t, codes.Canceled, Code(err))
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, IsCancellation(err))
}

func TestCode(t *testing.T) {
	testcases := []struct {
		in   error
		want codes.Code
	}{{
		in:   nil,
		want: codes.OK,
	}, {
		in:   errors.New("generic"),
		want: codes.Unknown,
	}, {
		in:   New(codes.Canceled, "generic"),
		want: codes.Canceled,
	}, {
		in:   context.Canceled,
		want: codes.Canceled,
	}, {
		in:   context.DeadlineExceeded,
		want: codes.DeadlineExceeded,
	}, {
		in:   fmt.Errorf("wrapped: %w", context.DeadlineExceeded),
		want: codes.DeadlineExceeded,
	}, {
		in:   Wrap(Wrapf(New(codes.ResourceExhausted, "full"), "inner"), "outer"),
		want: codes.ResourceExhausted,
	}}
	for _, tcase := range testcases {
		if got := Code(tcase.in); got != tcase.want {
			t.Errorf("Code(%v): %v, want %v", tcase.in, got, tcase.want)
		}
	}
}

func TestIsCancellation(t *testing.T) {
	assert.True(t, IsCancellation(context.Canceled))
	assert.True(t, IsCancellation(New(codes.DeadlineExceeded, "too slow")))
	assert.True(t, IsCancellation(Wrap(New(codes.Canceled, "closed"), "shard -80")))
	assert.False(t, IsCancellation(nil))
	assert.False(t, IsCancellation(errors.New("connection refused")))
	assert.False(t, IsCancellation(New(codes.Unavailable, "cancel requested by no one")))
}

func TestWrapping(t *testing.T) {
	err1 := Errorf(codes.Unavailable, "foo")
	err2 := Wrapf(err1, "bar")
	err3 := Wrapf(err2, "baz")

	assert.Equal(t, "baz: bar: foo", err3.Error())
	assert.Equal(t, "baz: bar: foo", fmt.Sprintf("%v", err3))
	assert.Equal(t, codes.Unavailable, Code(err3))
	assert.ErrorIs(t, err3, err1)
}

func TestGRPCRoundTrip(t *testing.T) {
	require.Nil(t, ToGRPC(nil))
	require.Nil(t, FromGRPC(nil))
	require.Equal(t, io.EOF, FromGRPC(io.EOF))

	err := ToGRPC(New(codes.ResourceExhausted, "sequence user_seq exhausted"))
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.ResourceExhausted, st.Code())

	back := FromGRPC(err)
	assert.Equal(t, codes.ResourceExhausted, Code(back))
	assert.EqualError(t, back, "sequence user_seq exhausted")
}
