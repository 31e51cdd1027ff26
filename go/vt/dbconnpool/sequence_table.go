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

package dbconnpool

import (
	"context"

	"google.golang.org/grpc/codes"

	"vitess.io/shardcore/go/sqlescape"
	"vitess.io/shardcore/go/vt/srvtopo"
	"vitess.io/shardcore/go/vt/vterrors"
)

// CreateSequenceTable creates the backing counter table of a sequence if it
// does not exist yet. The table holds a single row with id 0.
func CreateSequenceTable(ctx context.Context, exec srvtopo.ShardExecutor, rs *srvtopo.ResolvedShard, table string) error {
	if err := sqlescape.ValidateTableName(table); err != nil {
		return err
	}
	_, err := exec.ExecuteOnShard(ctx, rs,
		"create table if not exists "+sqlescape.EscapeID(table)+" (id bigint primary key, next_id bigint not null, cache bigint not null)")
	return err
}

// InitSequence writes the counter row of a sequence: the next value to hand
// out and the size of the blocks reserved at a time. An existing row is
// replaced.
func InitSequence(ctx context.Context, exec srvtopo.ShardExecutor, rs *srvtopo.ResolvedShard, table string, start, cache int64) error {
	if err := sqlescape.ValidateTableName(table); err != nil {
		return err
	}
	if start < 0 {
		return vterrors.Errorf(codes.InvalidArgument, "invalid start value %d for sequence %s", start, table)
	}
	if cache <= 0 {
		return vterrors.Errorf(codes.InvalidArgument, "invalid cache value %d for sequence %s", cache, table)
	}
	escaped := sqlescape.EscapeID(table)
	if _, err := exec.ExecuteOnShard(ctx, rs, "delete from "+escaped+" where id = 0"); err != nil {
		return err
	}
	_, err := exec.ExecuteOnShard(ctx, rs, "insert into "+escaped+" (id, next_id, cache) values (0, ?, ?)", start, cache)
	return err
}
