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
	"time"

	"github.com/spf13/pflag"
	"google.golang.org/grpc/codes"

	"vitess.io/shardcore/go/vt/utils"
	"vitess.io/shardcore/go/vt/vterrors"
	"vitess.io/shardcore/go/vt/vtgate/sequence"
)

// Values of the --consolidator flag.
const (
	ConsolidatorEnable  = "enable"
	ConsolidatorDisable = "disable"
)

// Config holds the executor settings.
type Config struct {
	// PlanCacheCapacity is the number of plans kept. 0 disables caching.
	PlanCacheCapacity int
	// Consolidator is the default consolidation mode of new sessions.
	Consolidator string
	// ScatterParallelism bounds the concurrent shard calls of one request.
	ScatterParallelism int
	// QueryTimeout is the deadline of one request. 0 means none.
	QueryTimeout time.Duration

	Sequence sequence.Config
}

// DefaultConfig returns the default executor settings.
func DefaultConfig() Config {
	return Config{
		PlanCacheCapacity:  5000,
		Consolidator:       ConsolidatorEnable,
		ScatterParallelism: 16,
		Sequence:           sequence.DefaultConfig(),
	}
}

// RegisterFlags registers the executor flags on fs, writing to cfg. The
// current values of cfg are the defaults.
func RegisterFlags(fs *pflag.FlagSet, cfg *Config) {
	utils.SetFlagIntVar(fs, &cfg.PlanCacheCapacity, "plan-cache-capacity", cfg.PlanCacheCapacity, "number of query plans kept in the plan cache, 0 disables the cache")
	utils.SetFlagStringVar(fs, &cfg.Consolidator, "consolidator", cfg.Consolidator, "default consolidation of identical read-only queries for new sessions: enable or disable")
	utils.SetFlagIntVar(fs, &cfg.ScatterParallelism, "scatter-parallelism", cfg.ScatterParallelism, "maximum number of concurrent shard calls per request")
	utils.SetFlagDurationVar(fs, &cfg.QueryTimeout, "query-timeout", cfg.QueryTimeout, "deadline of a single request, 0 for none")
	utils.SetFlagIntVar(fs, &cfg.Sequence.RefillRetries, "sequence-refill-retries", cfg.Sequence.RefillRetries, "attempts to reserve a sequence block before giving up")
	utils.SetFlagDurationVar(fs, &cfg.Sequence.BackoffMin, "sequence-backoff-min", cfg.Sequence.BackoffMin, "minimum sleep between sequence reservation attempts")
	utils.SetFlagDurationVar(fs, &cfg.Sequence.BackoffMax, "sequence-backoff-max", cfg.Sequence.BackoffMax, "maximum sleep between sequence reservation attempts")
}

// Validate checks the settings.
func (cfg *Config) Validate() error {
	switch {
	case cfg.PlanCacheCapacity < 0:
		return vterrors.Errorf(codes.InvalidArgument, "plan-cache-capacity must not be negative: %d", cfg.PlanCacheCapacity)
	case cfg.Consolidator != ConsolidatorEnable && cfg.Consolidator != ConsolidatorDisable:
		return vterrors.Errorf(codes.InvalidArgument, "consolidator must be %s or %s: %q", ConsolidatorEnable, ConsolidatorDisable, cfg.Consolidator)
	case cfg.ScatterParallelism <= 0:
		return vterrors.Errorf(codes.InvalidArgument, "scatter-parallelism must be positive: %d", cfg.ScatterParallelism)
	case cfg.QueryTimeout < 0:
		return vterrors.Errorf(codes.InvalidArgument, "query-timeout must not be negative: %v", cfg.QueryTimeout)
	case cfg.Sequence.RefillRetries <= 0:
		return vterrors.Errorf(codes.InvalidArgument, "sequence-refill-retries must be positive: %d", cfg.Sequence.RefillRetries)
	case cfg.Sequence.BackoffMin < 0 || cfg.Sequence.BackoffMax < cfg.Sequence.BackoffMin:
		return vterrors.Errorf(codes.InvalidArgument, "invalid sequence backoff range [%v, %v]", cfg.Sequence.BackoffMin, cfg.Sequence.BackoffMax)
	}
	return nil
}
