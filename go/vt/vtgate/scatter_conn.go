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

package vtgate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"google.golang.org/grpc/codes"

	"vitess.io/shardcore/go/sqltypes"
	"vitess.io/shardcore/go/stats"
	"vitess.io/shardcore/go/trace"
	"vitess.io/shardcore/go/vt/concurrency"
	"vitess.io/shardcore/go/vt/execctx"
	"vitess.io/shardcore/go/vt/logutil"
	"vitess.io/shardcore/go/vt/srvtopo"
	"vitess.io/shardcore/go/vt/vterrors"
)

var (
	// ScatterShardErrors counts failed shard calls by error code.
	ScatterShardErrors = stats.NewCountersWithSingleLabel("ScatterShardErrors", "Failed shard calls by error code", "Code")

	scatterCancelLog = logutil.NewThrottledLogger("ScatterCancel", 5*time.Second)
)

// ScatterConn is used for executing queries across multiple shards.
type ScatterConn struct {
	exec        srvtopo.ShardExecutor
	parallelism int64
}

// NewScatterConn creates a ScatterConn sending shard calls to exec, at most
// parallelism of them at a time per request.
func NewScatterConn(exec srvtopo.ShardExecutor, parallelism int) *ScatterConn {
	if parallelism <= 0 {
		parallelism = 1
	}
	return &ScatterConn{exec: exec, parallelism: int64(parallelism)}
}

// Execute sends query to every shard in rss and merges the results in shard
// order.
//
// Each shard call runs under its own child of ctx. A shard call that ends in
// a cancellation cancels ctx, so that its siblings stop too. Once every call
// has returned, the request fails with the recorder's final error if any
// call failed: a real error is preferred over a cancellation.
func (stc *ScatterConn) Execute(ctx *execctx.Context, rss []*srvtopo.ResolvedShard, query string, args []any) (*sqltypes.Result, error) {
	span, _ := trace.NewSpan(ctx, "ScatterConn.Execute")
	defer span.Finish()
	span.Annotate("shards", len(rss))
	trace.AnnotateSQL(span, query)

	results := make([]*sqltypes.Result, len(rss))
	allErrors := stc.multiGo(ctx, rss, func(shardCtx *execctx.Context, i int, rs *srvtopo.ResolvedShard) error {
		qr, err := stc.exec.ExecuteOnShard(shardCtx, rs, query, args...)
		if err != nil {
			return err
		}
		results[i] = qr
		return nil
	})
	if allErrors.HasErrors() {
		return nil, allErrors.FinalError()
	}

	qr := &sqltypes.Result{}
	for _, r := range results {
		if r != nil {
			qr.AppendResult(r)
		}
	}
	return qr, nil
}

// multiGo performs the requested 'action' on the specified shards in
// parallel, at most stc.parallelism at a time. It returns once every
// action has returned.
func (stc *ScatterConn) multiGo(
	ctx *execctx.Context,
	rss []*srvtopo.ResolvedShard,
	action func(shardCtx *execctx.Context, i int, rs *srvtopo.ResolvedShard) error,
) *concurrency.AllErrorRecorder {
	allErrors := new(concurrency.AllErrorRecorder)
	sem := semaphore.NewWeighted(stc.parallelism)

	oneShard := func(i int, rs *srvtopo.ResolvedShard) {
		shardCtx := execctx.WithCancel(ctx)
		defer shardCtx.Close()

		err := action(shardCtx, i, rs)
		if err == nil {
			return
		}
		if concurrency.IsCancellation(err) {
			reason := shardCtx.Reason()
			if reason == "" {
				reason = fmt.Sprintf("shard %v: %v", rs, err)
			}
			if !ctx.IsDone() {
				scatterCancelLog.Infof("cancelling request: shard %v was cancelled: %s", rs, reason)
			}
			cause := context.Canceled
			if vterrors.Code(err) == codes.DeadlineExceeded {
				cause = context.DeadlineExceeded
			}
			ctx.CancelWithCause(reason, cause)
		}
		stc.recordError(allErrors, rs, err)
	}

	if len(rss) == 1 {
		// only one shard, do it synchronously.
		oneShard(0, rss[0])
		return allErrors
	}

	var wg sync.WaitGroup
	for i, rs := range rss {
		if err := sem.Acquire(ctx, 1); err != nil {
			stc.recordError(allErrors, rs, err)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			oneShard(i, rs)
		}()
	}
	wg.Wait()
	return allErrors
}

func (stc *ScatterConn) recordError(allErrors *concurrency.AllErrorRecorder, rs *srvtopo.ResolvedShard, err error) {
	ScatterShardErrors.Add(vterrors.Code(err).String(), 1)
	allErrors.RecordError(vterrors.Wrapf(err, "shard %v", rs))
}
