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
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"

	"vitess.io/shardcore/go/sqltypes"
	"vitess.io/shardcore/go/vt/srvtopo"
	"vitess.io/shardcore/go/vt/utils"
	"vitess.io/shardcore/go/vt/vtgate"
	"vitess.io/shardcore/go/vt/vtgate/engine"
)

var (
	queryOptions = struct {
		Shards      string
		Consolidate bool
	}{
		Shards: "0",
	}

	Query = &cobra.Command{
		Use:   "query [--shards <s1,s2,...>] <sql> [<bind var>...]",
		Short: "Runs a query on every listed shard of --keyspace and prints the merged rows.",
		Long: "Runs the query through the executor: bind variables are passed positionally, " +
			"results of all shards are merged in shard order.",
		Example: "seqctl --driver sqlite --dsn /tmp/{keyspace}_{shard}.db --keyspace commerce query --shards -80,80- 'select id from customer where id > ?' 10",
		Args:    cobra.MinimumNArgs(1),
		RunE:    commandQuery,
	}
)

func commandQuery(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	var shards []string
	for _, s := range strings.Split(queryOptions.Shards, ",") {
		if s = strings.TrimSpace(s); s != "" {
			shards = append(shards, s)
		}
	}
	planner := &engine.ScatterPlanner{Keyspaces: map[string][]*srvtopo.ResolvedShard{
		keyspace: srvtopo.PrimaryShards(keyspace, shards...),
	}}
	executor, err := vtgate.NewExecutor(planner, e.pool, vtgateConfig)
	if err != nil {
		return err
	}
	e.Handle("/debug/query_plans", executor)
	e.Handle("/debug/consolidations", executor.ConsolidationsHandler())

	bindVars := make([]any, 0, len(args)-1)
	for _, a := range args[1:] {
		bindVars = append(bindVars, a)
	}
	session := executor.NewSession(keyspace)
	if cmd.Flags().Changed("consolidate") {
		session.SetConsolidate(queryOptions.Consolidate)
	}
	qr, err := executor.Execute(cmd.Context(), session, args[0], bindVars)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(qr.Fields) == 0 {
		fmt.Fprintf(out, "%d rows affected\n", qr.RowsAffected)
		return nil
	}
	if err := printRows(out, qr); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d rows in set\n", len(qr.Rows))
	return nil
}

// printRows renders qr as borderless, left-aligned columns under a header
// row of field names.
func printRows(out io.Writer, qr *sqltypes.Result) error {
	table := tablewriter.NewTable(out,
		tablewriter.WithRenderer(renderer.NewBlueprint(tw.Rendition{
			Borders: tw.BorderNone,
			Symbols: tw.NewSymbols(tw.StyleNone),
			Settings: tw.Settings{
				Separators: tw.Separators{BetweenRows: tw.Off, BetweenColumns: tw.Off},
				Lines:      tw.Lines{ShowHeaderLine: tw.Off},
			},
		})),
		tablewriter.WithHeaderAutoFormat(tw.Off),
		tablewriter.WithHeaderAlignment(tw.AlignLeft),
		tablewriter.WithRowAlignment(tw.AlignLeft),
	)
	names := make([]string, len(qr.Fields))
	for i, f := range qr.Fields {
		names[i] = f.Name
	}
	table.Header(names)
	rows := make([][]string, 0, len(qr.Rows))
	for _, row := range qr.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			if v.IsNull() {
				cells[i] = "NULL"
				continue
			}
			cells[i] = v.ToString()
		}
		rows = append(rows, cells)
	}
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

func init() {
	utils.SetFlagStringVar(Query.Flags(), &queryOptions.Shards, "shards", queryOptions.Shards, "comma-separated shards of --keyspace to send the query to")
	utils.SetFlagBoolVar(Query.Flags(), &queryOptions.Consolidate, "consolidate", queryOptions.Consolidate, "overrides --consolidator for this query")
	Root.AddCommand(Query)
}
