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
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestSession(t *testing.T) {
	s1 := NewSession("commerce", true)
	s2 := NewSession("commerce", true)
	assert.NotEqual(t, uuid.Nil, s1.ID)
	assert.NotEqual(t, s1.ID, s2.ID)
	assert.Equal(t, "commerce", s1.TargetKeyspace())
	assert.True(t, s1.Consolidate())

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s1.SetConsolidate(false)
			s1.SetTargetKeyspace("customer")
			_ = s1.Consolidate()
		}()
	}
	wg.Wait()
	assert.False(t, s1.Consolidate())
	assert.Equal(t, "customer", s1.TargetKeyspace())
}

func TestNilSession(t *testing.T) {
	var s *Session
	assert.False(t, s.Consolidate())
	assert.Empty(t, s.TargetKeyspace())
}
