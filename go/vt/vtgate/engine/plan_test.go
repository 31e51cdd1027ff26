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

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"

	"vitess.io/shardcore/go/vt/srvtopo"
	"vitess.io/shardcore/go/vt/vterrors"
)

func TestPlanType(t *testing.T) {
	assert.Equal(t, PlanUnknown, NewPlan("select 1", nil, true, nil).Type)
	assert.Equal(t, PlanPassthrough, NewPlan("select 1", srvtopo.PrimaryShards("ks", "0"), true, nil).Type)
	assert.Equal(t, PlanScatter, NewPlan("select 1", srvtopo.PrimaryShards("ks", "-80", "80-"), true, nil).Type)
	assert.Equal(t, "Scatter", PlanScatter.String())
	assert.Equal(t, "Unknown", PlanType(42).String())
}

func TestPlanMarshalJSON(t *testing.T) {
	p := NewPlan("insert into t(id) values (?)", srvtopo.PrimaryShards("ks", "-80"), false, &Autoinc{
		Keyspace: "ks",
		Sequence: "t_seq",
		Shard:    &srvtopo.ResolvedShard{Keyspace: "unsharded", Shard: "0"},
		Count:    1,
	})
	p.AddStats(2*time.Millisecond, 1, 1, 0, nil)
	p.AddStats(time.Millisecond, 1, 0, 0, errors.New("boom"))

	b, err := json.Marshal(p)
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "Passthrough", got["Type"])
	assert.Equal(t, "ks.t_seq", got["Autoinc"])
	assert.EqualValues(t, 2, got["ExecCount"])
	assert.EqualValues(t, 1, got["Errors"])
	assert.EqualValues(t, 3*time.Millisecond, got["ExecTime"])
	assert.Equal(t, []any{"ks/-80"}, got["Shards"])
	assert.NotContains(t, got, "ReadOnly")
}

func TestScatterPlanner(t *testing.T) {
	sp := &ScatterPlanner{Keyspaces: map[string][]*srvtopo.ResolvedShard{
		"ks": srvtopo.PrimaryShards("ks", "-80", "80-"),
	}}

	p, err := sp.Plan(context.Background(), "ks", "  SELECT * from t")
	require.NoError(t, err)
	assert.True(t, p.ReadOnly)
	assert.Len(t, p.Shards, 2)

	p, err = sp.Plan(context.Background(), "ks", "update t set a = 1")
	require.NoError(t, err)
	assert.False(t, p.ReadOnly)

	_, err = sp.Plan(context.Background(), "other", "select 1")
	assert.Equal(t, codes.NotFound, vterrors.Code(err))

	_, err = sp.Plan(context.Background(), "ks", " ")
	assert.Equal(t, codes.InvalidArgument, vterrors.Code(err))
}

func TestPlanQueryFor(t *testing.T) {
	p := NewPlan("select 1", nil, true, nil)
	assert.Equal(t, "select  1", p.QueryFor("select  1"))
	p.Query = "select 1 limit 10001"
	assert.Equal(t, "select 1 limit 10001", p.QueryFor("select  1"))
}

func TestIsReadOnly(t *testing.T) {
	tests := map[string]bool{
		"select 1":             true,
		"(select 1) union all": true,
		"Show tables":          true,
		"with x as (select 1)": true,
		"insert into t values": false,
		"delete from t":        false,
		"":                     false,

		"select * from t for update":                         false,
		"select * from t where id = 1 FOR SHARE":             false,
		"select * from t lock in share mode":                 false,
		"select a into @x from t":                            false,
		"with x as (select id from t) delete from t":         false,
		"with x as (select 1) update t set a = 1":            false,
		"select * from t where name = 'for update'":          true,
		"select replace(name, 'a', 'b') from t":              true,
		"select `update`, `share` from t":                    true,
		"select 1 /* for update */":                          true,
		"with x as (select 1) select * from x join t on t.a": true,
	}
	for query, want := range tests {
		assert.Equal(t, want, IsReadOnly(query), query)
	}
}
