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

// Package vtgate executes queries across the shards of a keyspace.
//
// The Executor plans a query, draws the auto-increment values it needs from
// the sequence cache, and sends it to every target shard through the
// ScatterConn. Identical read-only queries running at the same time can
// share one execution through the consolidator.
package vtgate

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"google.golang.org/grpc/codes"

	"vitess.io/shardcore/go/cache"
	"vitess.io/shardcore/go/sqltypes"
	"vitess.io/shardcore/go/stats"
	"vitess.io/shardcore/go/sync2"
	"vitess.io/shardcore/go/trace"
	"vitess.io/shardcore/go/vt/execctx"
	"vitess.io/shardcore/go/vt/log"
	"vitess.io/shardcore/go/vt/srvtopo"
	"vitess.io/shardcore/go/vt/vterrors"
	"vitess.io/shardcore/go/vt/vtgate/engine"
	"vitess.io/shardcore/go/vt/vtgate/sequence"
)

// PlanCacheEvictions counts plans pushed out of the plan cache.
var PlanCacheEvictions = stats.NewCounter("PlanCacheEvictions", "Plans evicted from the plan cache")

// Executor is the engine that executes queries by utilizing
// the abilities of the underlying shards.
type Executor struct {
	cfg          Config
	planner      engine.Planner
	plans        cache.Cache[string, *engine.Plan]
	scatterConn  *ScatterConn
	sequences    *sequence.Cache
	consolidator *sync2.Consolidator
}

// NewExecutor creates a new Executor. Plans come from planner, shard calls
// and sequence reservations go to exec.
func NewExecutor(planner engine.Planner, exec srvtopo.ShardExecutor, cfg Config) (*Executor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	plans := cache.NewDefaultCacheImpl[string, *engine.Plan](&cache.Config{MaxEntries: cfg.PlanCacheCapacity})
	if lru, ok := plans.(*cache.LRUCache[string, *engine.Plan]); ok {
		lru.OnEvict(func(key string, _ *engine.Plan) {
			PlanCacheEvictions.Add(1)
			log.V(2).Infof("evicted plan %q", key)
		})
	}
	return &Executor{
		cfg:          cfg,
		planner:      planner,
		plans:        plans,
		scatterConn:  NewScatterConn(exec, cfg.ScatterParallelism),
		sequences:    sequence.NewCache(exec, cfg.Sequence),
		consolidator: sync2.NewConsolidator(),
	}, nil
}

// NewSession returns a session targeting keyspace, with the configured
// default consolidation mode.
func (e *Executor) NewSession(keyspace string) *Session {
	return NewSession(keyspace, e.cfg.Consolidator == ConsolidatorEnable)
}

// Sequences returns the sequence cache used for auto-increment values.
func (e *Executor) Sequences() *sequence.Cache {
	return e.sequences
}

// Execute executes a non-streaming query.
//
// The request runs under a child of ctx carrying the query timeout, and is
// released when Execute returns. Results of consolidated queries are shared
// between callers and must not be modified.
func (e *Executor) Execute(ctx context.Context, session *Session, query string, bindVars []any) (result *sqltypes.Result, err error) {
	if session == nil {
		return nil, vterrors.New(codes.InvalidArgument, "no session")
	}
	parent := execctx.FromContext(ctx)
	if parent != ctx {
		defer parent.Close()
	}
	reqCtx := e.newRequestContext(parent, session)
	defer reqCtx.Close()

	span, _ := trace.NewSpan(reqCtx, "Executor.Execute")
	defer span.Finish()
	span.Annotate("session", session.ID.String())
	trace.AnnotateSQL(span, query)

	start := time.Now()
	plan, err := e.getPlan(reqCtx, session.TargetKeyspace(), query)
	if err != nil {
		return nil, err
	}
	defer func() {
		var affected, returned uint64
		if result != nil {
			affected, returned = result.RowsAffected, uint64(len(result.Rows))
		}
		plan.AddStats(time.Since(start), len(plan.Shards), affected, returned, err)
	}()

	text := plan.QueryFor(query)
	args := bindVars
	var ids []int64
	if plan.Autoinc != nil {
		ai := plan.Autoinc
		ids, err = e.sequences.GetSequences(reqCtx, ai.Shard, ai.Keyspace, ai.Sequence, ai.Count)
		if err != nil {
			return nil, err
		}
		args = make([]any, 0, len(bindVars)+len(ids))
		args = append(args, bindVars...)
		for _, id := range ids {
			args = append(args, id)
		}
	}

	if plan.ReadOnly && plan.Autoinc == nil && session.Consolidate() {
		return e.executeConsolidated(reqCtx, plan.Shards, text, args)
	}

	qr, err := e.scatterConn.Execute(reqCtx, plan.Shards, text, args)
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		qr.InsertID = uint64(ids[0])
	}
	return qr, nil
}

func (e *Executor) newRequestContext(parent *execctx.Context, session *Session) *execctx.Context {
	var reqCtx *execctx.Context
	if e.cfg.QueryTimeout > 0 {
		reqCtx = execctx.WithTimeout(parent, e.cfg.QueryTimeout)
	} else {
		reqCtx = execctx.WithCancel(parent)
	}
	reqCtx.SetValue(sessionIDKey{}, session.ID)
	return reqCtx
}

// executeConsolidated runs query through the consolidator. Waiters get the
// executor's outcome, including its cancellation.
func (e *Executor) executeConsolidated(reqCtx *execctx.Context, shards []*srvtopo.ResolvedShard, query string, args []any) (*sqltypes.Result, error) {
	key := Fingerprint(query, args, shards)
	res, err, shared := e.consolidator.Do(key, func() (any, error) {
		return e.scatterConn.Execute(reqCtx, shards, query, args)
	})
	if shared {
		log.V(2).Infof("query %s consolidated", FingerprintHash(key))
	}
	if err != nil {
		return nil, err
	}
	return res.(*sqltypes.Result), nil
}

// getPlan computes the plan for the given query. If one is in
// the cache, it reuses it.
func (e *Executor) getPlan(ctx *execctx.Context, keyspace, query string) (*engine.Plan, error) {
	key := planKey(keyspace, query)
	if plan, ok := e.plans.Get(key); ok {
		return plan, nil
	}
	plan, err := e.planner.Plan(ctx, keyspace, query)
	if err != nil {
		return nil, vterrors.Wrapf(err, "planning %q", query)
	}
	e.plans.Set(key, plan)
	return plan, nil
}

// ServeHTTP dumps the cached plans, most recently used first, as JSON.
func (e *Executor) ServeHTTP(response http.ResponseWriter, request *http.Request) {
	type planEntry struct {
		Key  string
		Plan *engine.Plan
	}
	keys := e.plans.Keys()
	entries := make([]planEntry, 0, len(keys))
	for _, key := range keys {
		if plan, ok := e.plans.Peek(key); ok {
			entries = append(entries, planEntry{Key: key, Plan: plan})
		}
	}
	writeJSON(response, entries)
}

// ConsolidationsHandler dumps how often recent queries were consolidated.
func (e *Executor) ConsolidationsHandler() http.Handler {
	return http.HandlerFunc(func(response http.ResponseWriter, request *http.Request) {
		items := e.consolidator.Items()
		for i := range items {
			items[i].Query = strings.ReplaceAll(items[i].Query, "\x00", " ")
		}
		writeJSON(response, items)
	})
}

func writeJSON(response http.ResponseWriter, v any) {
	b, err := json.MarshalIndent(v, "", " ")
	if err != nil {
		http.Error(response, err.Error(), http.StatusInternalServerError)
		return
	}
	response.Header().Set("Content-Type", "application/json; charset=utf-8")
	response.Write(b)
}
