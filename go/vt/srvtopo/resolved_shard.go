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

// Package srvtopo holds the shard handle types that the execution layer
// receives from routing, and the boundary used to run a query on one shard.
package srvtopo

import (
	"context"
	"fmt"

	"vitess.io/shardcore/go/sqltypes"
)

// TabletType selects which kind of backend a ResolvedShard targets.
type TabletType string

// Known tablet types.
const (
	TabletPrimary TabletType = "primary"
	TabletReplica TabletType = "replica"
)

// ResolvedShard contains everything we need to send a query to a shard.
type ResolvedShard struct {
	Keyspace   string
	Shard      string
	TabletType TabletType
}

// String returns keyspace/shard, or keyspace/shard@type for non-primary
// targets.
func (rs *ResolvedShard) String() string {
	if rs.TabletType == "" || rs.TabletType == TabletPrimary {
		return rs.Keyspace + "/" + rs.Shard
	}
	return fmt.Sprintf("%s/%s@%s", rs.Keyspace, rs.Shard, rs.TabletType)
}

// ResolvedShardsEqual is an equality check on *ResolvedShard slice.
func ResolvedShardsEqual(rss1, rss2 []*ResolvedShard) bool {
	if len(rss1) != len(rss2) {
		return false
	}
	for i, rs1 := range rss1 {
		if *rs1 != *rss2[i] {
			return false
		}
	}
	return true
}

// PrimaryShards builds the primary targets for the given shards of a
// keyspace.
func PrimaryShards(keyspace string, shards ...string) []*ResolvedShard {
	rss := make([]*ResolvedShard, len(shards))
	for i, shard := range shards {
		rss[i] = &ResolvedShard{Keyspace: keyspace, Shard: shard, TabletType: TabletPrimary}
	}
	return rss
}

// ShardExecutor runs one bound query against one shard. Implementations
// must honour ctx cancellation. Queries that modify rows report the count
// in Result.RowsAffected.
type ShardExecutor interface {
	ExecuteOnShard(ctx context.Context, rs *ResolvedShard, query string, args ...any) (*sqltypes.Result, error)
}

// ShardExecutorFunc adapts a function to the ShardExecutor interface.
type ShardExecutorFunc func(ctx context.Context, rs *ResolvedShard, query string, args ...any) (*sqltypes.Result, error)

// ExecuteOnShard calls f.
func (f ShardExecutorFunc) ExecuteOnShard(ctx context.Context, rs *ResolvedShard, query string, args ...any) (*sqltypes.Result, error) {
	return f(ctx, rs, query, args...)
}
