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

// Package cache provides bounded in-memory caches for keyed artifacts such
// as compiled plans.
package cache

// Cache is a generic interface type for a data structure that keeps recently used
// objects in memory and evicts them when it becomes full.
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, val V)
	Peek(key K) (V, bool)
	Delete(key K) bool
	Clear()
	Keys() []K

	Len() int
	Capacity() int
	SetCapacity(int)
	Evictions() int64
}

// Config is the configuration options for a cache instance
type Config struct {
	// MaxEntries is the maximum number of entries the cache can hold.
	// A value of 0 disables caching altogether.
	MaxEntries int
}

// DefaultConfig is the default configuration for a cache instance in shardcore
var DefaultConfig = &Config{
	MaxEntries: 5000,
}

// NewDefaultCacheImpl returns the default cache implementation for shardcore:
// an LRU bounded by cfg.MaxEntries, or a null cache if caching is disabled.
func NewDefaultCacheImpl[K comparable, V any](cfg *Config) Cache[K, V] {
	if cfg == nil || cfg.MaxEntries <= 0 {
		return &nullCache[K, V]{}
	}
	return NewLRUCache[K, V](cfg.MaxEntries)
}
