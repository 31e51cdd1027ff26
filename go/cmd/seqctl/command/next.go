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

	"vitess.io/shardcore/go/vt/execctx"
	"vitess.io/shardcore/go/vt/utils"
	"vitess.io/shardcore/go/vt/vtgate/sequence"
)

var (
	nextOptions = struct {
		Table string
		Count int
	}{
		Count: 1,
	}

	Next = &cobra.Command{
		Use:   "next --table <table> [--count <n>]",
		Short: "Draws values from a sequence and prints them, one per line.",
		Args:  cobra.NoArgs,
		RunE:  commandNext,
	}
)

func commandNext(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := execctx.FromContext(cmd.Context())
	defer ctx.Close()

	cache := sequence.NewCache(e.pool, vtgateConfig.Sequence)
	values, err := cache.GetSequences(ctx, sequenceShard(), keyspace, nextOptions.Table, nextOptions.Count)
	if err != nil {
		return err
	}
	for _, v := range values {
		fmt.Fprintln(cmd.OutOrStdout(), v)
	}
	return nil
}

func init() {
	utils.SetFlagStringVar(Next.Flags(), &nextOptions.Table, "table", nextOptions.Table, "name of the sequence table")
	utils.SetFlagIntVar(Next.Flags(), &nextOptions.Count, "count", nextOptions.Count, "number of values to draw")
	Next.MarkFlagRequired("table")
	Root.AddCommand(Next)
}
