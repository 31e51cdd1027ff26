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
	"sync"

	"github.com/google/uuid"

	"vitess.io/shardcore/go/vt/execctx"
)

// Session is the per-connection state the executor needs. It is safe for
// concurrent use.
type Session struct {
	// ID identifies the session in logs and traces.
	ID uuid.UUID

	mu             sync.Mutex
	targetKeyspace string
	consolidate    bool
}

// NewSession returns a Session targeting keyspace. consolidate is the
// initial consolidation mode, usually taken from Config.Consolidator.
func NewSession(keyspace string, consolidate bool) *Session {
	return &Session{
		ID:             uuid.New(),
		targetKeyspace: keyspace,
		consolidate:    consolidate,
	}
}

// TargetKeyspace returns the keyspace queries are planned against.
func (session *Session) TargetKeyspace() string {
	if session == nil {
		return ""
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.targetKeyspace
}

// SetTargetKeyspace changes the keyspace queries are planned against.
func (session *Session) SetTargetKeyspace(keyspace string) {
	session.mu.Lock()
	defer session.mu.Unlock()
	session.targetKeyspace = keyspace
}

// Consolidate returns true if identical read-only queries of this session
// may share one execution.
func (session *Session) Consolidate() bool {
	if session == nil {
		return false
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.consolidate
}

// SetConsolidate overrides the consolidation mode.
func (session *Session) SetConsolidate(consolidate bool) {
	session.mu.Lock()
	defer session.mu.Unlock()
	session.consolidate = consolidate
}

type sessionIDKey struct{}

// SessionID returns the ID of the session executing the request ctx
// belongs to.
func SessionID(ctx *execctx.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(sessionIDKey{}).(uuid.UUID)
	return id, ok
}
