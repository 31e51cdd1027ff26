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

import "sync/atomic"

// block is a leased range [next, upper) of a sequence. It is replaced
// wholesale once exhausted, never refilled in place.
type block struct {
	next  atomic.Int64
	upper int64
}

func newBlock(start, upper int64) *block {
	b := &block{upper: upper}
	b.next.Store(start)
	return b
}

// draw hands out the next value of the block, or reports false if the block
// is exhausted.
func (b *block) draw() (int64, bool) {
	for {
		cur := b.next.Load()
		if cur >= b.upper {
			return 0, false
		}
		if b.next.CompareAndSwap(cur, cur+1) {
			return cur, true
		}
	}
}

func (b *block) exhausted() bool {
	return b == nil || b.next.Load() >= b.upper
}
