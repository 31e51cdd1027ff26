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

// nullCache is a no-op cache that does not store items
type nullCache[K comparable, V any] struct{}

// Get never returns anything on the nullCache
func (n *nullCache[K, V]) Get(_ K) (v V, ok bool) {
	return v, false
}

// Set is a no-op in the nullCache
func (n *nullCache[K, V]) Set(_ K, _ V) {}

// Peek never returns anything on the nullCache
func (n *nullCache[K, V]) Peek(_ K) (v V, ok bool) {
	return v, false
}

// Delete is a no-op in the nullCache
func (n *nullCache[K, V]) Delete(_ K) bool {
	return false
}

// Clear is a no-op in the nullCache
func (n *nullCache[K, V]) Clear() {}

// Keys returns nothing on the nullCache
func (n *nullCache[K, V]) Keys() []K {
	return nil
}

// Len returns the number of entries in the nullCache, which is always 0
func (n *nullCache[K, V]) Len() int {
	return 0
}

// Capacity returns the capacity of the nullCache, which is always 0
func (n *nullCache[K, V]) Capacity() int {
	return 0
}

// SetCapacity sets the capacity of the null cache, which is a no-op
func (n *nullCache[K, V]) SetCapacity(_ int) {}

// Evictions returns the number of evictions, which is always 0
func (n *nullCache[K, V]) Evictions() int64 {
	return 0
}
