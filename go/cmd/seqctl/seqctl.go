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

// seqctl creates, draws from and benchmarks sharded auto-increment
// sequences, and runs ad-hoc queries across the shards of a keyspace.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"vitess.io/shardcore/go/cmd/seqctl/command"
	"vitess.io/shardcore/go/vt/log"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := command.Root.ExecuteContext(ctx); err != nil {
		log.Flush()
		cancel()
		os.Exit(1)
	}
}
