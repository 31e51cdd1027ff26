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
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/codes"

	"vitess.io/shardcore/go/vt/execctx"
	"vitess.io/shardcore/go/vt/log"
	"vitess.io/shardcore/go/vt/utils"
	"vitess.io/shardcore/go/vt/vterrors"
	"vitess.io/shardcore/go/vt/vtgate/sequence"
)

var (
	benchOptions = struct {
		Table   string
		Workers int
		Count   int
	}{
		Workers: 8,
		Count:   1000,
	}

	Bench = &cobra.Command{
		Use:   "bench --table <table> [--workers <n>] [--count <n>]",
		Short: "Draws values concurrently and verifies that they are unique.",
		Long: "Starts --workers goroutines sharing one sequence cache, each drawing --count values, " +
			"then checks that no value was handed out twice and prints the allocation statistics.",
		Args: cobra.NoArgs,
		RunE: commandBench,
	}
)

// benchReport is the outcome of a bench run.
type benchReport struct {
	Values     int
	Duplicates int
	Min, Max   int64
	Elapsed    time.Duration
	Refills    int64
	Contention int64
}

func (r benchReport) write(out io.Writer) {
	fmt.Fprintf(out, "values:      %s\n", humanize.Comma(int64(r.Values)))
	fmt.Fprintf(out, "range:       [%s, %s]\n", humanize.Comma(r.Min), humanize.Comma(r.Max))
	fmt.Fprintf(out, "elapsed:     %v\n", r.Elapsed.Round(time.Millisecond))
	if secs := r.Elapsed.Seconds(); secs > 0 {
		fmt.Fprintf(out, "rate:        %s values/s\n", humanize.Comma(int64(float64(r.Values)/secs)))
	}
	fmt.Fprintf(out, "refills:     %s\n", humanize.Comma(r.Refills))
	fmt.Fprintf(out, "contention:  %s\n", humanize.Comma(r.Contention))
	fmt.Fprintf(out, "duplicates:  %s\n", humanize.Comma(int64(r.Duplicates)))
}

func commandBench(cmd *cobra.Command, args []string) error {
	if benchOptions.Workers <= 0 || benchOptions.Count < 0 {
		return vterrors.Errorf(codes.InvalidArgument, "invalid bench size: %d workers, %d values each", benchOptions.Workers, benchOptions.Count)
	}
	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := execctx.FromContext(cmd.Context())
	defer ctx.Close()

	refills, retries := sequence.SequenceRefills.Get(), sequence.SequenceContentionRetries.Get()
	cache := sequence.NewCache(e.pool, vtgateConfig.Sequence)
	drawn := make([][]int64, benchOptions.Workers)

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for w := range benchOptions.Workers {
		g.Go(func() error {
			values := make([]int64, 0, benchOptions.Count)
			for range benchOptions.Count {
				v, err := cache.NextValue(gctx, sequenceShard(), keyspace, benchOptions.Table)
				if err != nil {
					return vterrors.Wrapf(err, "worker %d", w)
				}
				values = append(values, v)
			}
			drawn[w] = values
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	report := checkUnique(drawn)
	report.Elapsed = time.Since(start)
	report.Refills = sequence.SequenceRefills.Get() - refills
	report.Contention = sequence.SequenceContentionRetries.Get() - retries
	report.write(cmd.OutOrStdout())
	if report.Duplicates > 0 {
		log.Errorf("sequence %s handed out %d duplicate values", benchOptions.Table, report.Duplicates)
		return vterrors.Errorf(codes.Internal, "sequence %s handed out %d duplicate values", benchOptions.Table, report.Duplicates)
	}
	return nil
}

func checkUnique(drawn [][]int64) benchReport {
	var report benchReport
	seen := make(map[int64]struct{})
	for _, values := range drawn {
		for _, v := range values {
			if report.Values == 0 || v < report.Min {
				report.Min = v
			}
			if v > report.Max {
				report.Max = v
			}
			report.Values++
			if _, ok := seen[v]; ok {
				report.Duplicates++
				continue
			}
			seen[v] = struct{}{}
		}
	}
	return report
}

func init() {
	utils.SetFlagStringVar(Bench.Flags(), &benchOptions.Table, "table", benchOptions.Table, "name of the sequence table")
	utils.SetFlagIntVar(Bench.Flags(), &benchOptions.Workers, "workers", benchOptions.Workers, "number of concurrent workers")
	utils.SetFlagIntVar(Bench.Flags(), &benchOptions.Count, "count", benchOptions.Count, "values drawn by each worker")
	Bench.MarkFlagRequired("table")
	Root.AddCommand(Bench)
}
