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

// Package timer provides sleep and jitter helpers that honour a context.
package timer

import (
	"context"
	"math/rand/v2"
	"time"
)

// SleepContext is like time.Sleep, but it returns early with ctx.Err() if
// the context is done first.
func SleepContext(ctx context.Context, duration time.Duration) error {
	t := time.NewTimer(duration)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RandomDuration returns a duration picked uniformly in [min, max]. If max
// is not greater than min, min is returned.
func RandomDuration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + rand.N(max-min+1)
}

// SleepJitter sleeps for a random duration in [min, max], honouring ctx.
func SleepJitter(ctx context.Context, min, max time.Duration) error {
	return SleepContext(ctx, RandomDuration(min, max))
}
