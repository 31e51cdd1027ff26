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

package execctx

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"google.golang.org/grpc/codes"

	"vitess.io/shardcore/go/vt/vterrors"
)

func TestBackground(t *testing.T) {
	bg := Background()
	assert.False(t, bg.IsDone())
	assert.Nil(t, bg.Err())
	assert.Nil(t, bg.Done())
	_, ok := bg.Deadline()
	assert.False(t, ok)

	bg.Cancel("ignored")
	assert.False(t, bg.IsDone())

	child := WithCancel(bg)
	assert.Zero(t, bg.numChildren(), "background does not track children")
	child.Close()
}

func TestCancelPropagatesToDescendants(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	root := WithCancel(Background())
	a := WithCancel(root)
	b := WithCancel(root)
	a1 := WithCancel(a)
	a2 := WithTimeout(a, time.Hour)
	a11 := WithCancel(a1)

	a.Cancel("shard 2 aborted")

	for name, c := range map[string]*Context{"a": a, "a1": a1, "a2": a2, "a11": a11} {
		assert.True(t, c.IsDone(), name)
		assert.Equal(t, "shard 2 aborted", c.Reason(), name)
		assert.ErrorIs(t, c.Err(), context.Canceled, name)
		select {
		case <-c.Done():
		default:
			t.Errorf("%s: Done channel not closed", name)
		}
	}
	assert.False(t, root.IsDone())
	assert.False(t, b.IsDone())
	assert.Empty(t, b.Reason())

	assert.Zero(t, a.numChildren(), "cancellation drops the child set")
	assert.Equal(t, 1, root.numChildren(), "self-cancelled node detaches from its parent")

	root.Close()
	assert.True(t, b.IsDone())
	assert.Equal(t, ReasonClosed, b.Reason())
}

func TestCancelIsIdempotent(t *testing.T) {
	c := WithCancel(Background())
	c.Cancel("first")
	c.Cancel("second")
	c.Close()
	c.Close()
	assert.Equal(t, "first", c.Reason())
}

func TestCloseReason(t *testing.T) {
	c := WithCancel(Background())
	c.Close()
	c.Close()
	assert.True(t, c.IsDone())
	assert.Equal(t, ReasonClosed, c.Reason())
	assert.Equal(t, "context canceled: closed", c.Err().Error())
	assert.Equal(t, codes.Canceled, vterrors.Code(c.Err()))
}

func TestCancelWithCause(t *testing.T) {
	parent := WithCancel(Background())
	child := WithCancel(parent)
	parent.CancelWithCause("shard timed out", vterrors.New(codes.DeadlineExceeded, "statement timeout"))
	parent.Cancel("later")

	for _, c := range []*Context{parent, child} {
		assert.Equal(t, "shard timed out", c.Reason())
		assert.ErrorIs(t, c.Err(), context.DeadlineExceeded)
		assert.Equal(t, codes.DeadlineExceeded, vterrors.Code(c.Err()))
	}

	other := WithCancel(Background())
	other.CancelWithCause("gave up", errors.New("connection reset"))
	assert.ErrorIs(t, other.Err(), context.Canceled)
	assert.Equal(t, "context canceled: gave up", other.Err().Error())
}

func TestChildOfDoneParentIsBornDone(t *testing.T) {
	parent := WithCancel(Background())
	parent.Cancel("gone")

	child := WithCancel(parent)
	assert.True(t, child.IsDone())
	assert.Equal(t, "gone", child.Reason())
	assert.Zero(t, parent.numChildren())
}

func TestPastDeadlineDetectedOnPoll(t *testing.T) {
	parent := WithCancel(Background())
	c := WithDeadline(parent, time.Now().Add(-time.Second))
	child := WithCancel(c)
	require.Equal(t, 1, parent.numChildren())

	assert.True(t, c.IsDone())
	assert.Equal(t, ReasonDeadlineExceeded, c.Reason())
	assert.ErrorIs(t, c.Err(), context.DeadlineExceeded)
	assert.Equal(t, codes.DeadlineExceeded, vterrors.Code(c.Err()))

	assert.True(t, child.IsDone())
	assert.Equal(t, ReasonDeadlineExceeded, child.Reason())
	assert.Zero(t, parent.numChildren())
	assert.False(t, parent.IsDone())
}

func TestDeadlineNeverWidened(t *testing.T) {
	early := time.Now().Add(time.Minute)
	parent := WithDeadline(Background(), early)
	defer parent.Close()

	child := WithDeadline(parent, early.Add(time.Hour))
	d, ok := child.Deadline()
	require.True(t, ok)
	assert.Equal(t, early, d)

	tighter := WithTimeout(parent, time.Second)
	d, _ = tighter.Deadline()
	assert.True(t, d.Before(early))

	inherited := WithCancel(parent)
	d, ok = inherited.Deadline()
	require.True(t, ok)
	assert.Equal(t, early, d)
}

func TestDoneFiresOnDeadline(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	c := WithTimeout(Background(), 10*time.Millisecond)
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Done was not closed after the deadline")
	}
	assert.ErrorIs(t, c.Err(), context.DeadlineExceeded)
	assert.Equal(t, ReasonDeadlineExceeded, c.Reason())
}

func TestValues(t *testing.T) {
	type key string
	root := WithCancel(Background())
	root.SetValue(key("session"), "s1")
	root.SetValue(key("shadow"), "root")

	child := WithCancel(root)
	child.SetValue(key("shadow"), "child")
	child.SetValue(key("local"), 1)

	assert.Equal(t, "s1", child.Value(key("session")))
	assert.Equal(t, "child", child.Value(key("shadow")))
	assert.Equal(t, "root", root.Value(key("shadow")))
	assert.Nil(t, root.Value(key("local")), "SetValue never writes ancestors")
	assert.Nil(t, child.Value(key("missing")))

	assert.Panics(t, func() { Background().SetValue(key("x"), 1) })
}

func TestFromContext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	type key struct{}
	std, cancel := context.WithCancelCause(context.WithValue(context.Background(), key{}, "caller"))
	c := FromContext(std)
	child := WithCancel(c)

	assert.Same(t, c, FromContext(c))
	assert.Equal(t, "caller", child.Value(key{}))
	assert.False(t, child.IsDone())

	cancel(errors.New("client went away"))
	select {
	case <-child.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("standard context cancellation did not propagate")
	}
	assert.Equal(t, "client went away", child.Reason())
	assert.ErrorIs(t, child.Err(), context.Canceled)
}

func TestFromContextAlreadyDone(t *testing.T) {
	std, cancel := context.WithTimeout(context.Background(), -time.Second)
	defer cancel()

	c := FromContext(std)
	assert.True(t, c.IsDone())
	assert.ErrorIs(t, c.Err(), context.DeadlineExceeded)
}

func TestConcurrentChildrenAndCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	parent := WithCancel(Background())
	var wg sync.WaitGroup
	children := make(chan *Context, 1000)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				c := WithCancel(parent)
				children <- c
				if c.IsDone() {
					continue
				}
				grand := WithCancel(c)
				grand.Cancel("self")
			}
		}()
	}
	time.Sleep(time.Millisecond)
	parent.Cancel("request finished")
	wg.Wait()
	close(children)

	for c := range children {
		require.True(t, c.IsDone())
	}
	assert.Zero(t, parent.numChildren())
}
