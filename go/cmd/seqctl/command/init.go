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

package command

import (
	"fmt"

	"github.com/spf13/cobra"

	"vitess.io/shardcore/go/vt/dbconnpool"
	"vitess.io/shardcore/go/vt/utils"
)

var (
	initOptions = struct {
		Table string
		Start int64
		Cache int64
	}{
		Start: 1,
		Cache: 1000,
	}

	Init = &cobra.Command{
		Use:     "init --table <table> [--start <n>] [--cache <n>]",
		Short:   "Creates a sequence counter table and seeds its row.",
		Long:    "Creates the counter table if needed and resets its single row, so that the next value handed out is --start and each reservation leases --cache values.",
		Example: "seqctl --driver sqlite --dsn /tmp/{keyspace}_{shard}.db init --table user_seq --start 1 --cache 100",
		Args:    cobra.NoArgs,
		RunE:    commandInit,
	}
)

func commandInit(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := cmd.Context()
	rs := sequenceShard()
	if err := dbconnpool.CreateSequenceTable(ctx, e.pool, rs, initOptions.Table); err != nil {
		return err
	}
	if err := dbconnpool.InitSequence(ctx, e.pool, rs, initOptions.Table, initOptions.Start, initOptions.Cache); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "initialized sequence %s on %v: start %d, cache %d\n", initOptions.Table, rs, initOptions.Start, initOptions.Cache)
	return nil
}

func init() {
	utils.SetFlagStringVar(Init.Flags(), &initOptions.Table, "table", initOptions.Table, "name of the sequence table")
	utils.SetFlagInt64Var(Init.Flags(), &initOptions.Start, "start", initOptions.Start, "first value handed out")
	utils.SetFlagInt64Var(Init.Flags(), &initOptions.Cache, "cache", initOptions.Cache, "number of values leased per reservation")
	Init.MarkFlagRequired("table")
	Root.AddCommand(Init)
}
