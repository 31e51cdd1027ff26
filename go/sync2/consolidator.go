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

// Package sync2 provides synchronization primitives layered on top of sync,
// chiefly the query Consolidator.
package sync2

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"google.golang.org/grpc/codes"

	"vitess.io/shardcore/go/cache"
	"vitess.io/shardcore/go/stats"
	"vitess.io/shardcore/go/vt/logutil"
	"vitess.io/shardcore/go/vt/vterrors"
)

const consolidatorShards = 16

var (
	// ConsolidatorWaits counts callers that joined an in-flight execution.
	ConsolidatorWaits = stats.NewCounter("ConsolidatorWaits", "Callers that waited on a consolidated execution")
	// ConsolidatorExecutions counts real executions started by the consolidator.
	ConsolidatorExecutions = stats.NewCounter("ConsolidatorExecutions", "Executions started through the consolidator")

	waitLogger = logutil.NewThrottledLogger("ConsolidatorWait", 5*time.Second)
)

// Consolidator consolidates duplicate queries from executing simultaneously
// and shares results between them.
//
// The first caller for a key becomes the executor. Callers arriving while
// the entry is registered are waiters: they block until the executor calls
// Broadcast and then read the same result. An entry stays registered until
// every caller holding it has called Release, after which the next caller
// for the key starts a fresh execution.
type Consolidator struct {
	*ConsolidatorCache

	shards [consolidatorShards]consolidatorShard
}

type consolidatorShard struct {
	mu      sync.Mutex
	queries map[string]*PendingResult
}

// NewConsolidator creates a new Consolidator
func NewConsolidator() *Consolidator {
	co := &Consolidator{ConsolidatorCache: NewConsolidatorCache(1000)}
	for i := range co.shards {
		co.shards[i].queries = make(map[string]*PendingResult)
	}
	return co
}

// PendingResult is a wrapper for result of a query.
type PendingResult struct {
	// executing is write locked by the executor until Broadcast.
	executing sync.RWMutex
	shard     *consolidatorShard
	co        *Consolidator
	key       string

	// waiters counts the callers holding this entry, the executor
	// included. Guarded by shard.mu.
	waiters int64

	result any
	err    error
}

func (co *Consolidator) shardFor(key string) *consolidatorShard {
	return &co.shards[xxhash.Sum64String(key)%consolidatorShards]
}

// Create adds a query to currently executing queries and acquires a
// lock on its Result if it is not already present. If the query is
// a duplicate, Create returns false.
//
// Either way the caller holds one waiter reference and must call Release
// once it is done with the result.
func (co *Consolidator) Create(key string) (*PendingResult, bool) {
	s := co.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.queries[key]; ok {
		r.waiters++
		return r, false
	}
	r := &PendingResult{shard: s, co: co, key: key, waiters: 1}
	r.executing.Lock()
	s.queries[key] = r
	ConsolidatorExecutions.Add(1)
	return r, true
}

// Get returns the entry currently registered for key, if any, without
// taking a waiter reference.
func (co *Consolidator) Get(key string) (*PendingResult, bool) {
	s := co.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.queries[key]
	return r, ok
}

// Remove unregisters the entry for key so that the next caller starts a new
// execution. Callers already holding the entry are unaffected.
func (co *Consolidator) Remove(key string) {
	s := co.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.queries, key)
}

// Len returns the number of registered entries.
func (co *Consolidator) Len() int {
	n := 0
	for i := range co.shards {
		s := &co.shards[i]
		s.mu.Lock()
		n += len(s.queries)
		s.mu.Unlock()
	}
	return n
}

// Do runs fn through the consolidator. Concurrent calls with the same key
// share a single execution of fn; shared reports whether the caller waited
// on another caller's execution. If fn panics, waiters receive an Internal
// error and the panic is propagated to the executing caller.
func (co *Consolidator) Do(key string, fn func() (any, error)) (result any, err error, shared bool) {
	rs, created := co.Create(key)
	defer rs.Release()

	if !created {
		rs.Wait()
		return rs.Result(), rs.Err(), true
	}

	func() {
		defer rs.Broadcast()
		defer func() {
			if x := recover(); x != nil {
				rs.SetErr(vterrors.Errorf(codes.Internal, "consolidated execution of %q panicked: %v", key, x))
				panic(x)
			}
		}()
		res, err := fn()
		rs.SetResult(res)
		rs.SetErr(err)
	}()
	return rs.Result(), rs.Err(), false
}

// Broadcast removes the write lock on the entry, waking every waiter. It
// must be called exactly once, by the executor.
func (rs *PendingResult) Broadcast() {
	rs.executing.Unlock()
}

// Wait waits for the original query to complete execution. Wait should
// be invoked for duplicate queries.
func (rs *PendingResult) Wait() {
	rs.co.Record(rs.key)
	ConsolidatorWaits.Add(1)
	waitLogger.Infof("waiting on consolidated execution of %q", rs.key)
	rs.executing.RLock()
	rs.executing.RUnlock()
}

// AddWaiterCounter adjusts the number of callers holding the entry and
// returns the new count. When the count drops to zero the entry is
// unregistered, unless it was already replaced.
func (rs *PendingResult) AddWaiterCounter(delta int64) int64 {
	rs.shard.mu.Lock()
	defer rs.shard.mu.Unlock()
	rs.waiters += delta
	if rs.waiters <= 0 {
		if cur, ok := rs.shard.queries[rs.key]; ok && cur == rs {
			delete(rs.shard.queries, rs.key)
		}
	}
	return rs.waiters
}

// Release drops the caller's waiter reference.
func (rs *PendingResult) Release() {
	rs.AddWaiterCounter(-1)
}

// SetResult sets the result. Only the executor may call it, before Broadcast.
func (rs *PendingResult) SetResult(result any) {
	rs.result = result
}

// SetErr sets the error. Only the executor may call it, before Broadcast.
func (rs *PendingResult) SetErr(err error) {
	rs.err = err
}

// Result returns the published result. Valid after Wait returns.
func (rs *PendingResult) Result() any {
	return rs.result
}

// Err returns the published error. Valid after Wait returns.
func (rs *PendingResult) Err() error {
	return rs.err
}

// ConsolidatorCache is a thread-safe object used for counting how often
// recent queries have been consolidated.
type ConsolidatorCache struct {
	*cache.LRUCache[string, *atomic.Int64]
}

// NewConsolidatorCache creates a new cache with the given capacity.
func NewConsolidatorCache(capacity int) *ConsolidatorCache {
	return &ConsolidatorCache{cache.NewLRUCache[string, *atomic.Int64](capacity)}
}

// Record increments the count for "query" by 1.
// If it's not in the cache yet, it will be added.
func (cc *ConsolidatorCache) Record(query string) {
	v, _ := cc.GetOrSet(query, func() *atomic.Int64 { return new(atomic.Int64) })
	v.Add(1)
}

// ConsolidatorCacheItem is a wrapper for the items in the consolidator cache
type ConsolidatorCacheItem struct {
	Query string
	Count int64
}

// Items returns the items in the cache as an array of String, int64 structs
func (cc *ConsolidatorCache) Items() []ConsolidatorCacheItem {
	keys := cc.Keys()
	ret := make([]ConsolidatorCacheItem, 0, len(keys))
	for _, k := range keys {
		if v, ok := cc.Peek(k); ok {
			ret = append(ret, ConsolidatorCacheItem{Query: k, Count: v.Load()})
		}
	}
	return ret
}
