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

package cache

import (
	"fmt"
	"sync"
)

var _ Cache[string, any] = (*LRUCache[string, any])(nil)

// LRUCache is a typical LRU cache implementation. If the cache reaches the
// capacity, the least recently used item is deleted from the cache.
//
// Entries live on a circular doubly-linked list threaded through the entries
// themselves, anchored on a sentinel: root.next is the most recently used
// entry and root.prev the least recently used one. A single mutex guards the
// list and the index.
type LRUCache[K comparable, V any] struct {
	mu sync.Mutex

	root     entry[K, V]
	table    map[K]*entry[K, V]
	size     int
	capacity int

	evictions int64
	onEvict   func(K, V)
}

type entry[K comparable, V any] struct {
	prev, next *entry[K, V]
	key        K
	value      V
}

// NewLRUCache creates a new empty cache with the given capacity. The
// capacity must be positive.
func NewLRUCache[K comparable, V any](capacity int) *LRUCache[K, V] {
	if capacity <= 0 {
		panic(fmt.Sprintf("cache: invalid LRU capacity %d", capacity))
	}
	lru := &LRUCache[K, V]{
		table:    make(map[K]*entry[K, V]),
		capacity: capacity,
	}
	lru.root.next = &lru.root
	lru.root.prev = &lru.root
	return lru
}

// OnEvict installs a callback invoked, outside the cache lock, for every
// entry evicted because of the capacity bound.
func (lru *LRUCache[K, V]) OnEvict(f func(key K, value V)) {
	lru.mu.Lock()
	defer lru.mu.Unlock()
	lru.onEvict = f
}

// Get returns a value from the cache, and marks the entry as most recently used.
func (lru *LRUCache[K, V]) Get(key K) (v V, ok bool) {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	e := lru.table[key]
	if e == nil {
		return v, false
	}
	lru.moveToFront(e)
	return e.value, true
}

// Peek returns a value from the cache without changing the LRU order.
func (lru *LRUCache[K, V]) Peek(key K) (v V, ok bool) {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	e := lru.table[key]
	if e == nil {
		return v, false
	}
	return e.value, true
}

// Set sets a value in the cache.
func (lru *LRUCache[K, V]) Set(key K, value V) {
	lru.mu.Lock()
	if e := lru.table[key]; e != nil {
		e.value = value
		lru.moveToFront(e)
		lru.mu.Unlock()
		return
	}

	e := &entry[K, V]{key: key, value: value}
	lru.insertFront(e)
	lru.table[key] = e
	lru.size++
	evicted := lru.checkCapacity()
	lru.mu.Unlock()

	lru.notify(evicted)
}

// GetOrSet returns the value stored under key, marking it as most recently
// used. If there is none, it stores and returns newValue(); loaded reports
// whether the value was already there. newValue is called under the cache
// lock and must not use the cache.
func (lru *LRUCache[K, V]) GetOrSet(key K, newValue func() V) (v V, loaded bool) {
	lru.mu.Lock()
	if e := lru.table[key]; e != nil {
		lru.moveToFront(e)
		lru.mu.Unlock()
		return e.value, true
	}

	e := &entry[K, V]{key: key, value: newValue()}
	lru.insertFront(e)
	lru.table[key] = e
	lru.size++
	evicted := lru.checkCapacity()
	lru.mu.Unlock()

	lru.notify(evicted)
	return e.value, false
}

// Delete removes an entry from the cache, and returns if the entry existed.
func (lru *LRUCache[K, V]) Delete(key K) bool {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	e := lru.table[key]
	if e == nil {
		return false
	}
	lru.unlink(e)
	delete(lru.table, key)
	lru.size--
	return true
}

// Clear will clear the entire cache.
func (lru *LRUCache[K, V]) Clear() {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	for e := lru.root.next; e != &lru.root; {
		next := e.next
		e.prev, e.next = nil, nil
		e = next
	}
	lru.root.next = &lru.root
	lru.root.prev = &lru.root
	clear(lru.table)
	lru.size = 0
}

// Len returns the size of the cache (in entries)
func (lru *LRUCache[K, V]) Len() int {
	lru.mu.Lock()
	defer lru.mu.Unlock()
	return lru.size
}

// Capacity returns the cache maximum capacity.
func (lru *LRUCache[K, V]) Capacity() int {
	lru.mu.Lock()
	defer lru.mu.Unlock()
	return lru.capacity
}

// SetCapacity will set the capacity of the cache. If the capacity is
// smaller, and the current cache size exceed that capacity, the cache
// will be shrunk.
func (lru *LRUCache[K, V]) SetCapacity(capacity int) {
	if capacity <= 0 {
		panic(fmt.Sprintf("cache: invalid LRU capacity %d", capacity))
	}
	lru.mu.Lock()
	lru.capacity = capacity
	evicted := lru.checkCapacity()
	lru.mu.Unlock()

	lru.notify(evicted)
}

// Evictions returns the number of evictions
func (lru *LRUCache[K, V]) Evictions() int64 {
	lru.mu.Lock()
	defer lru.mu.Unlock()
	return lru.evictions
}

// Keys returns all the keys for the cache, ordered from most recently
// used to least recently used.
func (lru *LRUCache[K, V]) Keys() []K {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	keys := make([]K, 0, lru.size)
	for e := lru.root.next; e != &lru.root; e = e.next {
		keys = append(keys, e.key)
	}
	return keys
}

func (lru *LRUCache[K, V]) insertFront(e *entry[K, V]) {
	e.prev = &lru.root
	e.next = lru.root.next
	lru.root.next.prev = e
	lru.root.next = e
}

func (lru *LRUCache[K, V]) unlink(e *entry[K, V]) {
	e.prev.next = e.next
	e.next.prev = e.prev
	e.prev, e.next = nil, nil
}

func (lru *LRUCache[K, V]) moveToFront(e *entry[K, V]) {
	if lru.root.next == e {
		return
	}
	lru.unlink(e)
	lru.insertFront(e)
}

// checkCapacity evicts from the tail until the size is within capacity and
// returns the evicted entries. Must be called with the lock held.
func (lru *LRUCache[K, V]) checkCapacity() []*entry[K, V] {
	var evicted []*entry[K, V]
	for lru.size > lru.capacity {
		tail := lru.root.prev
		lru.unlink(tail)
		delete(lru.table, tail.key)
		lru.size--
		lru.evictions++
		evicted = append(evicted, tail)
	}
	if lru.onEvict == nil {
		return nil
	}
	return evicted
}

func (lru *LRUCache[K, V]) notify(evicted []*entry[K, V]) {
	if len(evicted) == 0 {
		return
	}
	lru.mu.Lock()
	onEvict := lru.onEvict
	lru.mu.Unlock()
	if onEvict == nil {
		return
	}
	for _, e := range evicted {
		onEvict(e.key, e.value)
	}
}
