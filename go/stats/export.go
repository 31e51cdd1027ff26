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

// Package stats is a wrapper for publishing process metrics.
//
// Variables are created once, usually as package-level vars, and published
// under a CamelCase name. Backends (see prometheusbackend) subscribe with
// Register and are handed every variable, including the ones published
// before they subscribed.
package stats

import (
	"sort"
	"strings"
	"sync"
	"unicode"

	"vitess.io/shardcore/go/vt/log"
)

// Variable is the minimal interface every published metric implements.
type Variable interface {
	// Help returns the help string for the metric.
	Help() string
	// String returns a JSON rendering of the current value.
	String() string
}

var (
	mu    sync.Mutex
	vars  = make(map[string]Variable)
	hooks []func(name string, v Variable)
)

func publish(name string, v Variable) {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := vars[name]; ok {
		log.Warningf("stats variable %s published twice, keeping the first one", name)
		return
	}
	vars[name] = v
	for _, hook := range hooks {
		hook(name, v)
	}
}

// Register installs a hook that is called for every published variable.
func Register(hook func(name string, v Variable)) {
	mu.Lock()
	defer mu.Unlock()
	hooks = append(hooks, hook)
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		hook(name, vars[name])
	}
}

// Get returns the published variable with the given name, or nil.
func Get(name string) Variable {
	mu.Lock()
	defer mu.Unlock()
	return vars[name]
}

// GetSnakeName converts a CamelCase name into snake_case.
func GetSnakeName(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
