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
	"slices"
	"strings"

	"google.golang.org/grpc/codes"

	"vitess.io/shardcore/go/vt/srvtopo"
	"vitess.io/shardcore/go/vt/vterrors"
)

// readPrefixes are the statement verbs planned as read-only.
var readPrefixes = []string{"select", "show", "with", "explain", "describe"}

// ScatterPlanner sends every query to all the shards of the target keyspace.
// It does not parse SQL: read-only statements are recognized from their
// words, see IsReadOnly.
type ScatterPlanner struct {
	// Keyspaces maps a keyspace name to its shards.
	Keyspaces map[string][]*srvtopo.ResolvedShard
}

var _ Planner = (*ScatterPlanner)(nil)

// Plan implements Planner.
func (sp *ScatterPlanner) Plan(_ context.Context, keyspace, query string) (*Plan, error) {
	shards, ok := sp.Keyspaces[keyspace]
	if !ok || len(shards) == 0 {
		return nil, vterrors.Errorf(codes.NotFound, "keyspace %s not found", keyspace)
	}
	if strings.TrimSpace(query) == "" {
		return nil, vterrors.New(codes.InvalidArgument, "empty query")
	}
	return NewPlan(query, shards, IsReadOnly(query), nil), nil
}

// IsReadOnly reports whether query starts with a read verb and neither
// locks rows, writes rows nor stores its result. Locking reads (FOR UPDATE,
// FOR SHARE, LOCK IN SHARE MODE), SELECT ... INTO and a WITH clause leading
// into an UPDATE or DELETE are not read-only.
func IsReadOnly(query string) bool {
	words := Words(query)
	if len(words) == 0 || !slices.Contains(readPrefixes, words[0]) {
		return false
	}
	for i, w := range words[1:] {
		switch w {
		case "update", "delete", "into":
			return false
		case "share":
			if prev := words[i]; prev == "for" || prev == "in" {
				return false
			}
		}
	}
	return true
}
