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

package stats

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
)

// Counter is expvar.Int+Get+hook
type Counter struct {
	i    atomic.Int64
	help string
}

// NewCounter returns a new Counter
func NewCounter(name string, help string) *Counter {
	v := &Counter{help: help}
	if name != "" {
		publish(name, v)
	}
	return v
}

// Add adds the provided value to the Counter
func (v *Counter) Add(delta int64) {
	v.i.Add(delta)
}

// Reset resets the counter value to 0
func (v *Counter) Reset() {
	v.i.Store(0)
}

// Get returns the value
func (v *Counter) Get() int64 {
	return v.i.Load()
}

// String is the implementation of expvar.var
func (v *Counter) String() string {
	return strconv.FormatInt(v.i.Load(), 10)
}

// Help returns the help string
func (v *Counter) Help() string {
	return v.help
}

// Gauge is an unlabeled metric whose values can go up/down.
type Gauge struct {
	Counter
}

// NewGauge creates a new Gauge and publishes it if name is set
func NewGauge(name string, help string) *Gauge {
	v := &Gauge{Counter: Counter{help: help}}
	if name != "" {
		publish(name, v)
	}
	return v
}

// Set sets the value
func (v *Gauge) Set(value int64) {
	v.Counter.i.Store(value)
}

// CountersWithSingleLabel tracks multiple counter values for a single
// dimension ("label").
type CountersWithSingleLabel struct {
	// mu only protects adding and retrieving the value (*atomic.Int64) from
	// the map; the value itself is modified atomically.
	mu        sync.RWMutex
	counts    map[string]*atomic.Int64
	help      string
	labelName string
}

// NewCountersWithSingleLabel create a new Counters instance. If name is set,
// the variable gets published. tags are pre-created with a zero value.
func NewCountersWithSingleLabel(name, help, label string, tags ...string) *CountersWithSingleLabel {
	c := &CountersWithSingleLabel{
		counts:    make(map[string]*atomic.Int64),
		help:      help,
		labelName: label,
	}
	for _, tag := range tags {
		c.counts[tag] = new(atomic.Int64)
	}
	if name != "" {
		publish(name, c)
	}
	return c
}

func (c *CountersWithSingleLabel) getValueAddr(name string) *atomic.Int64 {
	c.mu.RLock()
	a, ok := c.counts[name]
	c.mu.RUnlock()
	if ok {
		return a
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// we need to check the existence again
	// as it may be created by other goroutine.
	if a, ok = c.counts[name]; ok {
		return a
	}
	a = new(atomic.Int64)
	c.counts[name] = a
	return a
}

// Add adds a value to a named counter.
func (c *CountersWithSingleLabel) Add(name string, value int64) {
	c.getValueAddr(name).Add(value)
}

// Reset resets the value for the name.
func (c *CountersWithSingleLabel) Reset(name string) {
	c.getValueAddr(name).Store(0)
}

// Counts returns a copy of the Counters' map.
func (c *CountersWithSingleLabel) Counts() map[string]int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	counts := make(map[string]int64, len(c.counts))
	for k, a := range c.counts {
		counts[k] = a.Load()
	}
	return counts
}

// LabelName returns the label name.
func (c *CountersWithSingleLabel) LabelName() string {
	return c.labelName
}

// Help returns the help string.
func (c *CountersWithSingleLabel) Help() string {
	return c.help
}

// String implements expvar.
func (c *CountersWithSingleLabel) String() string {
	counts := c.Counts()
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b := bytes.NewBuffer(make([]byte, 0, 256))
	fmt.Fprintf(b, "{")
	for i, k := range keys {
		if i > 0 {
			fmt.Fprintf(b, ", ")
		}
		fmt.Fprintf(b, "%q: %v", k, counts[k])
	}
	fmt.Fprintf(b, "}")
	return b.String()
}
