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

package sequence

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"google.golang.org/grpc/codes"

	"vitess.io/shardcore/go/sqltypes"
	"vitess.io/shardcore/go/vt/dbconnpool"
	"vitess.io/shardcore/go/vt/srvtopo"
	"vitess.io/shardcore/go/vt/srvtopo/srvtopotest"
	"vitess.io/shardcore/go/vt/vterrors"
)

const (
	selectUserSeq = "select next_id, cache from `user_seq` where id = 0"
	updateUserSeq = "update `user_seq` set next_id = ? where id = 0 and next_id = ?"
)

var testShard = &srvtopo.ResolvedShard{Keyspace: "unsharded", Shard: "0", TabletType: srvtopo.TabletPrimary}

// memShard is an in-memory shard holding sequence counter rows.
type memShard struct {
	mu   sync.Mutex
	rows map[string]*[2]int64

	// steal makes every conditional update lose against a concurrent
	// allocator.
	steal   bool
	selects atomic.Int32
	updates atomic.Int32
}

func newMemShard() *memShard {
	return &memShard{rows: make(map[string]*[2]int64)}
}

func (m *memShard) set(table string, next, cache int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows["`"+table+"`"] = &[2]int64{next, cache}
}

func (m *memShard) next(table string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows["`"+table+"`"][0]
}

func (m *memShard) ExecuteOnShard(ctx context.Context, rs *srvtopo.ResolvedShard, query string, args ...any) (*sqltypes.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	fields := strings.Fields(query)
	switch fields[0] {
	case "select":
		m.selects.Add(1)
		row, ok := m.rows[fields[4]]
		if !ok {
			return &sqltypes.Result{}, nil
		}
		return &sqltypes.Result{Rows: [][]sqltypes.Value{{sqltypes.NewInt64(row[0]), sqltypes.NewInt64(row[1])}}}, nil
	case "update":
		m.updates.Add(1)
		row := m.rows[fields[1]]
		if m.steal {
			row[0] += row[1]
		}
		if row[0] != args[1].(int64) {
			return &sqltypes.Result{}, nil
		}
		row[0] = args[0].(int64)
		return &sqltypes.Result{RowsAffected: 1}, nil
	}
	return nil, fmt.Errorf("unexpected query %q", query)
}

func counterRow(next, cache int64) *sqltypes.Result {
	return &sqltypes.Result{Rows: [][]sqltypes.Value{{sqltypes.NewInt64(next), sqltypes.NewInt64(cache)}}}
}

func fastConfig() Config {
	return Config{RefillRetries: 100, BackoffMin: 0, BackoffMax: time.Millisecond}
}

func TestDrawAcrossBlockExhaustion(t *testing.T) {
	shard := newMemShard()
	shard.set("user_seq", 0, 5)
	c := NewCache(shard, DefaultConfig())
	refills := SequenceRefills.Get()

	var got []int64
	for range 12 {
		v, err := c.NextValue(context.Background(), testShard, "commerce", "user_seq")
		require.NoError(t, err)
		got = append(got, v)
	}

	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, got)
	assert.EqualValues(t, 3, shard.updates.Load())
	assert.EqualValues(t, 3, SequenceRefills.Get()-refills)
	assert.EqualValues(t, 16, shard.next("user_seq"))
	assert.Equal(t, 1, c.Len())
}

func TestConcurrentDrawsAreUnique(t *testing.T) {
	const (
		workers = 8
		draws   = 250
	)
	shard := newMemShard()
	shard.set("user_seq", 100, 7)
	c := NewCache(shard, fastConfig())

	values := make(chan int64, workers*draws)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range draws {
				v, err := c.NextValue(context.Background(), testShard, "commerce", "user_seq")
				if !assert.NoError(t, err) {
					return
				}
				values <- v
			}
		}()
	}
	wg.Wait()
	close(values)

	seen := make(map[int64]bool, workers*draws)
	for v := range values {
		require.False(t, seen[v], "value %d handed out twice", v)
		seen[v] = true
	}
	require.Len(t, seen, workers*draws)
}

func TestSequencesAreKeyedByKeyspace(t *testing.T) {
	shard := newMemShard()
	shard.set("user_seq", 1, 100)
	c := NewCache(shard, DefaultConfig())

	v1, err := c.NextValue(context.Background(), testShard, "ks1", "user_seq")
	require.NoError(t, err)
	v2, err := c.NextValue(context.Background(), testShard, "ks2", "user_seq")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v1)
	assert.Equal(t, int64(101), v2)
	assert.Equal(t, 2, c.Len())
}

func TestGetSequences(t *testing.T) {
	shard := newMemShard()
	shard.set("user_seq", 1, 4)
	c := NewCache(shard, DefaultConfig())

	values, err := c.GetSequences(context.Background(), testShard, "commerce", "user_seq", 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, values)

	values, err = c.GetSequences(context.Background(), testShard, "commerce", "user_seq", 0)
	require.NoError(t, err)
	assert.Empty(t, values)

	_, err = c.GetSequences(context.Background(), testShard, "commerce", "user_seq", -1)
	assert.Equal(t, codes.InvalidArgument, vterrors.Code(err))

	_, err = c.GetSequences(context.Background(), testShard, "commerce", "missing_seq", 3)
	require.Error(t, err)
	assert.Equal(t, codes.NotFound, vterrors.Code(err))
	assert.Contains(t, err.Error(), "getting 3 values from sequence missing_seq in keyspace commerce")
}

func TestContentionIsRetried(t *testing.T) {
	ctrl := gomock.NewController(t)
	exec := srvtopotest.NewMockShardExecutor(ctrl)
	retries := SequenceContentionRetries.Get()

	gomock.InOrder(
		exec.EXPECT().ExecuteOnShard(gomock.Any(), testShard, selectUserSeq).Return(counterRow(1, 10), nil),
		exec.EXPECT().ExecuteOnShard(gomock.Any(), testShard, updateUserSeq, int64(11), int64(1)).Return(&sqltypes.Result{}, nil),
		exec.EXPECT().ExecuteOnShard(gomock.Any(), testShard, selectUserSeq).Return(counterRow(11, 10), nil),
		exec.EXPECT().ExecuteOnShard(gomock.Any(), testShard, updateUserSeq, int64(21), int64(11)).Return(&sqltypes.Result{RowsAffected: 1}, nil),
	)

	c := NewCache(exec, fastConfig())
	v, err := c.NextValue(context.Background(), testShard, "commerce", "user_seq")
	require.NoError(t, err)
	assert.EqualValues(t, 11, v)
	assert.EqualValues(t, 1, SequenceContentionRetries.Get()-retries)
}

func TestRetriesExhausted(t *testing.T) {
	shard := newMemShard()
	shard.set("user_seq", 1, 10)
	shard.steal = true
	c := NewCache(shard, Config{RefillRetries: 3})

	_, err := c.NextValue(context.Background(), testShard, "commerce", "user_seq")
	require.Error(t, err)
	assert.Equal(t, codes.ResourceExhausted, vterrors.Code(err))
	assert.Contains(t, err.Error(), "user_seq")
	assert.Contains(t, err.Error(), "commerce")
	assert.EqualValues(t, 3, shard.updates.Load())
}

func TestInvalidCacheIsFatal(t *testing.T) {
	for _, cache := range []int64{0, -5} {
		shard := newMemShard()
		shard.set("user_seq", 1, cache)
		c := NewCache(shard, DefaultConfig())

		_, err := c.NextValue(context.Background(), testShard, "commerce", "user_seq")
		require.Error(t, err)
		assert.Equal(t, codes.FailedPrecondition, vterrors.Code(err))
		assert.Contains(t, err.Error(), "sequence user_seq in keyspace commerce")
		assert.EqualValues(t, 1, shard.selects.Load(), "invalid configuration is not retried")
		assert.Zero(t, shard.updates.Load())
	}
}

func TestOverflowIsFatal(t *testing.T) {
	tests := []struct {
		name string
		next int64
	}{
		{"overflowing block", math.MaxInt64 - 2},
		{"negative counter", -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shard := newMemShard()
			shard.set("user_seq", tt.next, 5)
			c := NewCache(shard, DefaultConfig())

			_, err := c.NextValue(context.Background(), testShard, "commerce", "user_seq")
			require.Error(t, err)
			assert.Equal(t, codes.OutOfRange, vterrors.Code(err))
			assert.Contains(t, err.Error(), "user_seq")
			assert.Zero(t, shard.updates.Load())
		})
	}
}

func TestCancellationIsNotRetried(t *testing.T) {
	t.Run("shard call cancelled", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		exec := srvtopotest.NewMockShardExecutor(ctrl)
		exec.EXPECT().ExecuteOnShard(gomock.Any(), testShard, selectUserSeq).Return(nil, context.Canceled).Times(1)

		c := NewCache(exec, fastConfig())
		_, err := c.NextValue(context.Background(), testShard, "commerce", "user_seq")
		require.Error(t, err)
		assert.True(t, vterrors.IsCancellation(err))
	})

	t.Run("cancelled during backoff", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		exec := srvtopotest.NewMockShardExecutor(ctrl)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		gomock.InOrder(
			exec.EXPECT().ExecuteOnShard(gomock.Any(), testShard, selectUserSeq).Return(counterRow(1, 10), nil),
			exec.EXPECT().ExecuteOnShard(gomock.Any(), testShard, updateUserSeq, int64(11), int64(1)).DoAndReturn(
				func(context.Context, *srvtopo.ResolvedShard, string, ...any) (*sqltypes.Result, error) {
					cancel()
					return &sqltypes.Result{}, nil
				}),
		)

		c := NewCache(exec, Config{RefillRetries: 100, BackoffMin: time.Minute, BackoffMax: time.Minute})
		start := time.Now()
		_, err := c.NextValue(ctx, testShard, "commerce", "user_seq")
		require.Error(t, err)
		assert.True(t, vterrors.IsCancellation(err), err)
		assert.Less(t, time.Since(start), 10*time.Second)
	})

	t.Run("already cancelled", func(t *testing.T) {
		shard := newMemShard()
		shard.set("user_seq", 1, 10)
		c := NewCache(shard, DefaultConfig())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := c.NextValue(ctx, testShard, "commerce", "user_seq")
		require.Error(t, err)
		assert.True(t, vterrors.IsCancellation(err))
		assert.Zero(t, shard.selects.Load())
	})
}

func TestForget(t *testing.T) {
	shard := newMemShard()
	shard.set("user_seq", 1, 5)
	c := NewCache(shard, DefaultConfig())

	v, err := c.NextValue(context.Background(), testShard, "commerce", "user_seq")
	require.NoError(t, err)
	assert.EqualValues(t, 1, v)

	c.Forget("commerce", "user_seq")
	assert.Zero(t, c.Len())

	v, err = c.NextValue(context.Background(), testShard, "commerce", "user_seq")
	require.NoError(t, err)
	assert.EqualValues(t, 6, v, "the rest of the forgotten block is never handed out")
}

func TestInvalidTableName(t *testing.T) {
	c := NewCache(newMemShard(), DefaultConfig())
	_, err := c.NextValue(context.Background(), testShard, "commerce", "")
	assert.Equal(t, codes.InvalidArgument, vterrors.Code(err))
}

// TestSQLiteBackedAllocators runs two caches, as two processes would, against
// one SQLite shard and checks that they never hand out the same value.
func TestSQLiteBackedAllocators(t *testing.T) {
	ctx := context.Background()
	pool, err := dbconnpool.NewShardPool(dbconnpool.Config{
		Driver:      dbconnpool.DriverSQLite,
		DSNTemplate: filepath.Join(t.TempDir(), "{keyspace}-{shard}.db"),
	})
	require.NoError(t, err)
	defer pool.Close()

	require.NoError(t, dbconnpool.CreateSequenceTable(ctx, pool, testShard, "user_seq"))
	require.NoError(t, dbconnpool.InitSequence(ctx, pool, testShard, "user_seq", 0, 3))

	caches := []*Cache{NewCache(pool, fastConfig()), NewCache(pool, fastConfig())}
	const perWorker = 40
	var mu sync.Mutex
	var all []int64
	var wg sync.WaitGroup
	for i := range 6 {
		c := caches[i%len(caches)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			values, err := c.GetSequences(ctx, testShard, "unsharded", "user_seq", perWorker)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			all = append(all, values...)
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, all, 6*perWorker)
	slices.Sort(all)
	assert.Equal(t, len(all), len(slices.Compact(slices.Clone(all))), "duplicate values handed out")
	assert.GreaterOrEqual(t, all[0], int64(1))

	qr, err := pool.ExecuteOnShard(ctx, testShard, selectUserSeq)
	require.NoError(t, err)
	next, err := qr.Rows[0][0].ToInt64()
	require.NoError(t, err)
	assert.Greater(t, next, all[len(all)-1], "the stored counter is past every value handed out")
}
