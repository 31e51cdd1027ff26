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

// Package sequence hands out unique values for auto-increment columns.
//
// Each sequence is backed by a counter row on a shard. A Cache leases a
// block of values at a time by reading the row and advancing it with a
// conditional update, then serves draws from the block with an atomic
// compare-and-swap. Only the refill is serialized, per sequence.
package sequence

import (
	"context"
	"math"
	"sync"
	"time"

	"google.golang.org/grpc/codes"

	"vitess.io/shardcore/go/sqlescape"
	"vitess.io/shardcore/go/stats"
	"vitess.io/shardcore/go/timer"
	"vitess.io/shardcore/go/trace"
	"vitess.io/shardcore/go/vt/logutil"
	"vitess.io/shardcore/go/vt/srvtopo"
	"vitess.io/shardcore/go/vt/vterrors"
)

var (
	// SequenceRefills counts blocks reserved from the backing store.
	SequenceRefills = stats.NewCounter("SequenceRefills", "Sequence blocks reserved from the backing store")
	// SequenceContentionRetries counts conditional updates that lost a race.
	SequenceContentionRetries = stats.NewCounter("SequenceContentionRetries", "Sequence reservations retried after losing a race")
	// SequenceValuesServed counts values handed out.
	SequenceValuesServed = stats.NewCounter("SequenceValuesServed", "Sequence values handed out")

	contentionLog = logutil.NewThrottledLogger("SequenceContention", 5*time.Second)
)

// Config tunes the reservation retry loop.
type Config struct {
	// RefillRetries bounds the read-then-conditional-update attempts of
	// one reservation.
	RefillRetries int
	// BackoffMin and BackoffMax bound the random sleep between attempts.
	BackoffMin time.Duration
	BackoffMax time.Duration
}

// DefaultConfig returns the default reservation settings.
func DefaultConfig() Config {
	return Config{
		RefillRetries: 100,
		BackoffMin:    time.Millisecond,
		BackoffMax:    5 * time.Millisecond,
	}
}

// Cache is the process-wide cache of leased sequence blocks. It is safe for
// concurrent use.
type Cache struct {
	exec srvtopo.ShardExecutor
	cfg  Config

	// blocks maps a sequence key to its current *block.
	blocks sync.Map
	// refills maps a sequence key to a one-slot semaphore guarding the
	// refill of that sequence.
	refills sync.Map
}

// NewCache creates a Cache that reaches the counter rows through exec.
func NewCache(exec srvtopo.ShardExecutor, cfg Config) *Cache {
	if cfg.RefillRetries <= 0 {
		cfg.RefillRetries = 1
	}
	return &Cache{exec: exec, cfg: cfg}
}

func sequenceKey(keyspace, table string) string {
	return keyspace + "." + table
}

// NextValue returns the next value of the sequence stored in table on rs,
// declared in keyspace. Values are unique across every Cache sharing the
// same counter row, but not gap-free: a block left unused when a process
// exits is lost.
func (c *Cache) NextValue(ctx context.Context, rs *srvtopo.ResolvedShard, keyspace, table string) (int64, error) {
	key := sequenceKey(keyspace, table)
	for {
		b := c.current(key)
		if b != nil {
			if v, ok := b.draw(); ok {
				if v < 0 {
					return 0, vterrors.Errorf(codes.OutOfRange, "sequence %s overflowed: drew %d", key, v)
				}
				SequenceValuesServed.Add(1)
				return v, nil
			}
		}
		if err := c.refill(ctx, rs, key, keyspace, table, b); err != nil {
			return 0, err
		}
	}
}

// GetSequences draws count values. If any draw fails the whole batch fails
// with an error naming the sequence.
func (c *Cache) GetSequences(ctx context.Context, rs *srvtopo.ResolvedShard, keyspace, table string, count int) ([]int64, error) {
	if count < 0 {
		return nil, vterrors.Errorf(codes.InvalidArgument, "invalid count %d for sequence %s", count, sequenceKey(keyspace, table))
	}
	values := make([]int64, 0, count)
	for range count {
		v, err := c.NextValue(ctx, rs, keyspace, table)
		if err != nil {
			return nil, vterrors.Wrapf(err, "getting %d values from sequence %s in keyspace %s", count, table, keyspace)
		}
		values = append(values, v)
	}
	return values, nil
}

// Forget drops the cached block and refill lock of a sequence, for example
// after its table was dropped. Values left in the block are never handed
// out.
func (c *Cache) Forget(keyspace, table string) {
	key := sequenceKey(keyspace, table)
	c.blocks.Delete(key)
	c.refills.Delete(key)
}

// Len returns the number of sequences with a cached block.
func (c *Cache) Len() int {
	n := 0
	c.blocks.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (c *Cache) current(key string) *block {
	if v, ok := c.blocks.Load(key); ok {
		return v.(*block)
	}
	return nil
}

// refill reserves a new block for key unless another caller replaced
// exhausted while we waited for the refill slot.
func (c *Cache) refill(ctx context.Context, rs *srvtopo.ResolvedShard, key, keyspace, table string, exhausted *block) error {
	v, _ := c.refills.LoadOrStore(key, make(chan struct{}, 1))
	slot := v.(chan struct{})
	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return vterrors.Wrapf(ctx.Err(), "waiting to refill sequence %s", key)
	}
	defer func() { <-slot }()

	if b := c.current(key); b != exhausted && !b.exhausted() {
		return nil
	}
	b, err := c.reserve(ctx, rs, keyspace, table)
	if err != nil {
		return err
	}
	c.blocks.Store(key, b)
	return nil
}

// reserve runs the read-then-conditional-update cycle until it wins the
// counter row, the retries are exhausted or ctx is done.
func (c *Cache) reserve(ctx context.Context, rs *srvtopo.ResolvedShard, keyspace, table string) (*block, error) {
	if err := sqlescape.ValidateTableName(table); err != nil {
		return nil, err
	}
	span, ctx := trace.NewSpan(ctx, "Sequence.Reserve")
	defer span.Finish()
	span.Annotate("keyspace", keyspace)
	span.Annotate("table", table)

	escaped := sqlescape.EscapeID(table)
	selectQuery := "select next_id, cache from " + escaped + " where id = 0"
	updateQuery := "update " + escaped + " set next_id = ? where id = 0 and next_id = ?"

	for attempt := 1; ; attempt++ {
		span.Annotate("attempts", attempt)
		if err := ctx.Err(); err != nil {
			return nil, vterrors.Wrapf(err, "reserving a block for sequence %s in keyspace %s", table, keyspace)
		}

		qr, err := c.exec.ExecuteOnShard(ctx, rs, selectQuery)
		if err != nil {
			return nil, vterrors.Wrapf(err, "reading sequence %s in keyspace %s", table, keyspace)
		}
		if len(qr.Rows) != 1 || len(qr.Rows[0]) != 2 {
			return nil, vterrors.Errorf(codes.NotFound, "sequence %s in keyspace %s has no counter row", table, keyspace)
		}
		next, err := qr.Rows[0][0].ToInt64()
		if err != nil {
			return nil, vterrors.Wrapf(err, "reading next_id of sequence %s in keyspace %s", table, keyspace)
		}
		cache, err := qr.Rows[0][1].ToInt64()
		if err != nil {
			return nil, vterrors.Wrapf(err, "reading cache of sequence %s in keyspace %s", table, keyspace)
		}

		start, upper, err := blockBounds(next, cache)
		if err != nil {
			return nil, vterrors.Wrapf(err, "sequence %s in keyspace %s", table, keyspace)
		}

		qr, err = c.exec.ExecuteOnShard(ctx, rs, updateQuery, upper, next)
		if err != nil {
			return nil, vterrors.Wrapf(err, "advancing sequence %s in keyspace %s", table, keyspace)
		}
		if qr.RowsAffected == 1 {
			SequenceRefills.Add(1)
			return newBlock(start, upper), nil
		}

		SequenceContentionRetries.Add(1)
		if attempt >= c.cfg.RefillRetries {
			return nil, vterrors.Errorf(codes.ResourceExhausted,
				"could not reserve a block for sequence %s in keyspace %s after %d attempts", table, keyspace, attempt)
		}
		contentionLog.Warningf("sequence %s in keyspace %s: lost the race for next_id %d, retrying", table, keyspace, next)
		if err := timer.SleepJitter(ctx, c.cfg.BackoffMin, c.cfg.BackoffMax); err != nil {
			return nil, vterrors.Wrapf(err, "reserving a block for sequence %s in keyspace %s", table, keyspace)
		}
	}
}

// blockBounds returns the block [start, upper) leased from a counter row
// holding next and cache. A stored next of 0 starts at 1.
func blockBounds(next, cache int64) (start, upper int64, err error) {
	if cache <= 0 {
		return 0, 0, vterrors.Errorf(codes.FailedPrecondition, "invalid cache value %d", cache)
	}
	if next < 0 {
		return 0, 0, vterrors.Errorf(codes.OutOfRange, "invalid next_id %d", next)
	}
	start = max(next, 1)
	if start > math.MaxInt64-cache {
		return 0, 0, vterrors.Errorf(codes.OutOfRange, "next_id %d plus cache %d overflows", start, cache)
	}
	return start, start + cache, nil
}
