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

// Package engine holds the execution plans the executor runs. Plans are
// produced by a Planner and cached by the executor.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"vitess.io/shardcore/go/vt/srvtopo"
)

type (
	// PlanType classifies a plan by how many shards it reaches.
	PlanType int8

	// Autoinc describes the auto-increment values a statement needs. The
	// values are drawn from the sequence stored in Sequence on Shard and
	// appended to the bind variables, in order.
	Autoinc struct {
		Keyspace string
		Sequence string
		Shard    *srvtopo.ResolvedShard
		Count    int
	}

	// Plan represents the execution strategy for a given query.
	Plan struct {
		Type     PlanType                 // Type of plan
		Original string                   // Original is the original query.
		Query    string                   // Query is what gets sent to every shard.
		Shards   []*srvtopo.ResolvedShard // Shards the query is sent to
		ReadOnly bool                     // ReadOnly plans can be consolidated
		Autoinc  *Autoinc                 // Autoinc is set if the statement needs generated ids

		ExecCount    atomic.Uint64 // Count of times this plan was executed
		ExecTime     atomic.Uint64 // Total execution time
		ShardQueries atomic.Uint64 // Total number of shard queries
		RowsReturned atomic.Uint64 // Total number of rows
		RowsAffected atomic.Uint64 // Total number of rows
		Errors       atomic.Uint64 // Total number of errors
	}
)

const (
	PlanUnknown PlanType = iota
	PlanPassthrough
	PlanScatter
)

// Planner turns a query into a Plan. Implementations live outside the
// executor and must be safe for concurrent use.
type Planner interface {
	Plan(ctx context.Context, keyspace, query string) (*Plan, error)
}

// NewPlan builds a plan for query. The query is sent unchanged to shards.
func NewPlan(query string, shards []*srvtopo.ResolvedShard, readOnly bool, autoinc *Autoinc) *Plan {
	return &Plan{
		Type:     getPlanType(shards),
		Original: query,
		Query:    query,
		Shards:   shards,
		ReadOnly: readOnly,
		Autoinc:  autoinc,
	}
}

func getPlanType(shards []*srvtopo.ResolvedShard) PlanType {
	switch len(shards) {
	case 0:
		return PlanUnknown
	case 1:
		return PlanPassthrough
	default:
		return PlanScatter
	}
}

// QueryFor returns the text to send to the shards for sql, a query that
// shares this cached plan. A plan that rewrote its original query sends the
// rewrite; otherwise sql itself is sent.
func (p *Plan) QueryFor(sql string) string {
	if p.Query != p.Original {
		return p.Query
	}
	return sql
}

// AddStats records one execution of the plan.
func (p *Plan) AddStats(execTime time.Duration, shardQueries int, rowsAffected, rowsReturned uint64, err error) {
	p.ExecCount.Add(1)
	p.ExecTime.Add(uint64(execTime))
	p.ShardQueries.Add(uint64(shardQueries))
	p.RowsAffected.Add(rowsAffected)
	p.RowsReturned.Add(rowsReturned)
	if err != nil {
		p.Errors.Add(1)
	}
}

// MarshalJSON serializes the plan into a JSON representation.
func (p *Plan) MarshalJSON() ([]byte, error) {
	shards := make([]string, len(p.Shards))
	for i, rs := range p.Shards {
		shards[i] = rs.String()
	}
	marshalPlan := struct {
		Type         string
		Original     string        `json:",omitempty"`
		Shards       []string      `json:",omitempty"`
		ReadOnly     bool          `json:",omitempty"`
		Autoinc      string        `json:",omitempty"`
		ExecCount    uint64        `json:",omitempty"`
		ExecTime     time.Duration `json:",omitempty"`
		ShardQueries uint64        `json:",omitempty"`
		RowsAffected uint64        `json:",omitempty"`
		RowsReturned uint64        `json:",omitempty"`
		Errors       uint64        `json:",omitempty"`
	}{
		Type:         p.Type.String(),
		Original:     p.Original,
		Shards:       shards,
		ReadOnly:     p.ReadOnly,
		ExecCount:    p.ExecCount.Load(),
		ExecTime:     time.Duration(p.ExecTime.Load()),
		ShardQueries: p.ShardQueries.Load(),
		RowsAffected: p.RowsAffected.Load(),
		RowsReturned: p.RowsReturned.Load(),
		Errors:       p.Errors.Load(),
	}
	if p.Autoinc != nil {
		marshalPlan.Autoinc = p.Autoinc.Keyspace + "." + p.Autoinc.Sequence
	}

	b := new(bytes.Buffer)
	enc := json.NewEncoder(b)
	enc.SetEscapeHTML(false)
	err := enc.Encode(marshalPlan)
	if err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

func (p PlanType) String() string {
	switch p {
	case PlanPassthrough:
		return "Passthrough"
	case PlanScatter:
		return "Scatter"
	default:
		return "Unknown"
	}
}
