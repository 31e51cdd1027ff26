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

// Package execctx implements the cancellable execution context tree used by
// every fan-out path.
//
// A Context is a node in an explicit tree. Cancelling a node marks it and
// every live descendant done with the same reason. A node that cancels
// itself, explicitly or because its deadline passed, detaches from its
// parent; nodes cancelled from above are dropped wholesale by the canceller.
// Deadlines are discovered lazily by IsDone and Err, and by a timer armed
// only once somebody asks for the Done channel.
//
// *Context implements context.Context, so it can be handed to database/sql
// and any other API that takes a standard context.
package execctx

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc/codes"

	"vitess.io/shardcore/go/stats"
)

const (
	// ReasonDeadlineExceeded is the reason recorded when a deadline passes.
	ReasonDeadlineExceeded = "deadline exceeded"
	// ReasonClosed is the reason recorded by Close.
	ReasonClosed = "closed"
)

// ContextCancellations counts nodes that cancelled themselves, by reason
// kind. Descendants reached by propagation and nodes released by Close
// are not counted.
var ContextCancellations = stats.NewCountersWithSingleLabel("ContextCancellations", "Execution context cancellations", "Kind")

var background = &Context{root: true}

// Context is a cancellable, deadline-bearing execution scope.
type Context struct {
	parent *Context
	root   bool

	// std is set on nodes created by FromContext.
	std context.Context

	deadline    time.Time
	hasDeadline bool

	done   chan struct{}
	isDone atomic.Bool

	mu       sync.Mutex
	children map[*Context]struct{}
	values   map[any]any
	reason   string
	err      error
	timer    *time.Timer
	stopStd  func() bool
}

var _ context.Context = (*Context)(nil)

// CancelError is the error returned by Err once a Context is done. It
// carries the cancellation reason and unwraps to context.Canceled or
// context.DeadlineExceeded.
type CancelError struct {
	Reason string
	cause  error
}

func (e *CancelError) Error() string {
	if e.cause == context.DeadlineExceeded {
		return "context deadline exceeded"
	}
	return "context canceled: " + e.Reason
}

// Unwrap returns context.Canceled or context.DeadlineExceeded.
func (e *CancelError) Unwrap() error {
	return e.cause
}

// ErrorCode implements vterrors.ErrorWithCode.
func (e *CancelError) ErrorCode() codes.Code {
	if e.cause == context.DeadlineExceeded {
		return codes.DeadlineExceeded
	}
	return codes.Canceled
}

// Background returns the root context. It is never done, has no deadline
// and does not track its children.
func Background() *Context {
	return background
}

// WithCancel returns a child of parent that inherits its deadline and
// values and is cancelled whenever parent is.
func WithCancel(parent *Context) *Context {
	if parent.hasDeadline {
		return newChild(parent, parent.deadline, true)
	}
	return newChild(parent, time.Time{}, false)
}

// WithDeadline returns a child of parent whose deadline is the earlier of
// d and the parent's deadline.
func WithDeadline(parent *Context, d time.Time) *Context {
	if parent.hasDeadline && parent.deadline.Before(d) {
		d = parent.deadline
	}
	return newChild(parent, d, true)
}

// WithTimeout returns WithDeadline(parent, time.Now().Add(timeout)).
func WithTimeout(parent *Context, timeout time.Duration) *Context {
	return WithDeadline(parent, time.Now().Add(timeout))
}

// FromContext adapts a standard context into the tree. The returned node is
// a child of Background that carries ctx's deadline, reads values through
// to ctx and is cancelled when ctx is. A *Context is returned unchanged.
func FromContext(ctx context.Context) *Context {
	if c, ok := ctx.(*Context); ok {
		return c
	}
	d, ok := ctx.Deadline()
	c := newChild(background, d, ok)
	c.std = ctx
	if err := ctx.Err(); err != nil {
		c.cancel(stdReason(ctx), stdCause(err), false)
		return c
	}
	if ctx.Done() != nil {
		stop := context.AfterFunc(ctx, func() {
			c.cancel(stdReason(ctx), stdCause(ctx.Err()), false)
		})
		c.mu.Lock()
		if c.isDone.Load() {
			c.mu.Unlock()
			stop()
			return c
		}
		c.stopStd = stop
		c.mu.Unlock()
	}
	return c
}

func stdCause(err error) error {
	if err == context.DeadlineExceeded {
		return context.DeadlineExceeded
	}
	return context.Canceled
}

// stdReason prefers the cancellation cause set through
// context.WithCancelCause, if any.
func stdReason(ctx context.Context) string {
	err := ctx.Err()
	if err == context.DeadlineExceeded {
		return ReasonDeadlineExceeded
	}
	if cause := context.Cause(ctx); cause != nil && cause != err {
		return cause.Error()
	}
	return "canceled"
}

func newChild(parent *Context, d time.Time, hasDeadline bool) *Context {
	c := &Context{
		parent:      parent,
		deadline:    d,
		hasDeadline: hasDeadline,
		done:        make(chan struct{}),
	}
	if parent.root {
		return c
	}

	parent.mu.Lock()
	if parent.isDone.Load() {
		reason, err := parent.reason, parent.err
		parent.mu.Unlock()
		c.inherit(reason, err)
		return c
	}
	if parent.children == nil {
		parent.children = make(map[*Context]struct{})
	}
	parent.children[c] = struct{}{}
	parent.mu.Unlock()
	return c
}

// inherit marks a node that was never published as done.
func (c *Context) inherit(reason string, err error) {
	c.reason = reason
	c.err = err
	c.isDone.Store(true)
	close(c.done)
}

// Cancel marks the context and all of its descendants done with the given
// reason. Only the first call has any effect.
func (c *Context) Cancel(reason string) {
	c.cancel(reason, context.Canceled, true)
}

// CancelWithCause is Cancel for a context whose work ended the way cause
// says: if cause is or wraps context.DeadlineExceeded the context is done
// as timed out, otherwise as cancelled.
func (c *Context) CancelWithCause(reason string, cause error) {
	if errors.Is(cause, context.DeadlineExceeded) {
		c.cancel(reason, context.DeadlineExceeded, true)
		return
	}
	c.cancel(reason, context.Canceled, true)
}

// Close is equivalent to Cancel("closed").
func (c *Context) Close() {
	c.Cancel(ReasonClosed)
}

// cancel marks c done. Children are cancelled after c's lock is released
// and never touch c again; detach removes c from its parent's child set.
func (c *Context) cancel(reason string, cause error, detach bool) {
	if c.root {
		return
	}
	c.mu.Lock()
	if c.isDone.Load() {
		c.mu.Unlock()
		return
	}
	c.reason = reason
	c.err = &CancelError{Reason: reason, cause: cause}
	c.isDone.Store(true)
	close(c.done)

	children := c.children
	c.children = nil
	timer, stopStd := c.timer, c.stopStd
	c.timer, c.stopStd = nil, nil
	c.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if stopStd != nil {
		stopStd()
	}
	for child := range children {
		child.cancel(reason, cause, false)
	}
	if detach {
		c.parent.removeChild(c)
		switch {
		case cause == context.DeadlineExceeded:
			ContextCancellations.Add("Deadline", 1)
		case reason != ReasonClosed:
			ContextCancellations.Add("Canceled", 1)
		}
	}
}

func (c *Context) removeChild(child *Context) {
	if c == nil || c.root {
		return
	}
	c.mu.Lock()
	delete(c.children, child)
	c.mu.Unlock()
}

// IsDone reports whether the context is done. A passed deadline is
// detected here and cancels the context with ReasonDeadlineExceeded.
func (c *Context) IsDone() bool {
	if c.isDone.Load() {
		return true
	}
	if c.hasDeadline && !time.Now().Before(c.deadline) {
		c.cancel(ReasonDeadlineExceeded, context.DeadlineExceeded, true)
		return true
	}
	return false
}

// Reason returns the cancellation reason, or "" if the context is not done.
func (c *Context) Reason() string {
	if !c.IsDone() {
		return ""
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// Err returns nil while the context is live and a *CancelError once it is
// done.
func (c *Context) Err() error {
	if !c.IsDone() {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Deadline implements context.Context.
func (c *Context) Deadline() (time.Time, bool) {
	return c.deadline, c.hasDeadline
}

// Done implements context.Context. The channel is closed when the context
// is cancelled. If the context has a deadline, asking for the channel arms
// a timer so that blocked receivers observe the expiry.
func (c *Context) Done() <-chan struct{} {
	if c.root {
		return nil
	}
	if c.hasDeadline && !c.isDone.Load() {
		c.armDeadline()
	}
	return c.done
}

func (c *Context) armDeadline() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isDone.Load() || c.timer != nil {
		return
	}
	c.timer = time.AfterFunc(time.Until(c.deadline), func() {
		c.cancel(ReasonDeadlineExceeded, context.DeadlineExceeded, true)
	})
}

// Value returns the value stored under key on this node, or on the nearest
// ancestor that has it.
func (c *Context) Value(key any) any {
	for n := c; n != nil && !n.root; n = n.parent {
		n.mu.Lock()
		v, ok := n.values[key]
		n.mu.Unlock()
		if ok {
			return v
		}
		if n.std != nil {
			return n.std.Value(key)
		}
	}
	return nil
}

// SetValue stores a value in this node's own bag. Ancestors are never
// modified; descendants see the value on lookup unless they shadow it.
func (c *Context) SetValue(key, value any) {
	if c.root {
		panic("execctx: SetValue on Background")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.values == nil {
		c.values = make(map[any]any)
	}
	c.values[key] = value
}

func (c *Context) numChildren() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.children)
}
