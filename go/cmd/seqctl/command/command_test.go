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
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vitess.io/shardcore/go/sqltypes"
)

// resetFlags puts every flag back to its default so that runs do not leak
// into each other.
func resetFlags(t *testing.T) {
	t.Helper()
	reset := func(fs *pflag.FlagSet) {
		fs.VisitAll(func(f *pflag.Flag) {
			if f.Changed {
				require.NoError(t, f.Value.Set(f.DefValue))
				f.Changed = false
			}
		})
	}
	reset(Root.PersistentFlags())
	for _, c := range Root.Commands() {
		reset(c.Flags())
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(t)
	var out bytes.Buffer
	Root.SetOut(&out)
	Root.SetErr(io.Discard)
	Root.SetArgs(args)
	err := Root.ExecuteContext(context.Background())
	return out.String(), err
}

func sqliteFlags(t *testing.T) []string {
	return []string{"--driver", "sqlite", "--dsn", filepath.Join(t.TempDir(), "{keyspace}_{shard}.db")}
}

func TestInitNextBench(t *testing.T) {
	base := sqliteFlags(t)

	out, err := execute(t, append(base, "init", "--table", "user_seq", "--start", "100", "--cache", "5")...)
	require.NoError(t, err)
	assert.Equal(t, "initialized sequence user_seq on unsharded/0: start 100, cache 5\n", out)

	out, err = execute(t, append(base, "next", "--table", "user_seq", "--count", "3")...)
	require.NoError(t, err)
	assert.Equal(t, "100\n101\n102\n", out)

	// A new process leases a new block: the rest of the first one is lost.
	out, err = execute(t, append(base, "next", "--table", "user_seq")...)
	require.NoError(t, err)
	assert.Equal(t, "105\n", out)

	out, err = execute(t, append(base, "bench", "--table", "user_seq", "--workers", "4", "--count", "50")...)
	require.NoError(t, err)
	assert.Contains(t, out, "values:      200\n")
	assert.Contains(t, out, "duplicates:  0\n")
	assert.Contains(t, out, "range:       [110, 309]\n")
}

func TestMissingTable(t *testing.T) {
	_, err := execute(t, append(sqliteFlags(t), "next")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "table" not set`)
}

func TestInvalidExecutorFlags(t *testing.T) {
	_, err := execute(t, append(sqliteFlags(t), "--consolidator", "maybe", "next", "--table", "s")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "consolidator must be")
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "seqctl.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("driver: sqlite\n"+
		"dsn: "+filepath.Join(dir, "{keyspace}_{shard}.db")+"\n"+
		"keyspace: commerce\n"+
		"sequence-refill-retries: 3\n"), 0o600))

	out, err := execute(t, "--config", cfg, "init", "--table", "order_seq")
	require.NoError(t, err)
	assert.Contains(t, out, "on commerce/0")
	assert.Equal(t, 3, vtgateConfig.Sequence.RefillRetries)

	// Command line wins over the file.
	out, err = execute(t, "--config", cfg, "--shard", "-80", "init", "--table", "order_seq")
	require.NoError(t, err)
	assert.Contains(t, out, "on commerce/-80")

	_, err = execute(t, "--config", filepath.Join(dir, "missing.yaml"), "next", "--table", "s")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestEnvironment(t *testing.T) {
	t.Setenv("SEQCTL_DRIVER", "sqlite")
	t.Setenv("SEQCTL_DSN", filepath.Join(t.TempDir(), "{keyspace}_{shard}.db"))
	t.Setenv("SEQCTL_SHARD", "80-")

	out, err := execute(t, "init", "--table", "env_seq")
	require.NoError(t, err)
	assert.Contains(t, out, "on unsharded/80-")
}

func TestQuery(t *testing.T) {
	base := append(sqliteFlags(t), "--keyspace", "commerce")
	query := func(args ...string) string {
		t.Helper()
		out, err := execute(t, append(append(base, "query", "--shards", "-80,80-"), args...)...)
		require.NoError(t, err)
		return out
	}

	assert.Equal(t, "0 rows affected\n", query("create table customer (id integer primary key, name text)"))
	assert.Equal(t, "2 rows affected\n", query("insert into customer (id, name) values (?, ?)", "1", "alice"))

	out := query("select id, name from customer where name = ?", "alice")
	assert.Equal(t, [][]string{
		{"id", "name"},
		{"1", "alice"},
		{"1", "alice"},
		{"2", "rows", "in", "set"},
	}, fields(out))
}

// fields splits the non-blank lines of out into white space separated words.
func fields(out string) [][]string {
	var lines [][]string
	for line := range strings.Lines(out) {
		if f := strings.Fields(line); len(f) > 0 {
			lines = append(lines, f)
		}
	}
	return lines
}

func TestPrintRows(t *testing.T) {
	var out strings.Builder
	qr := &sqltypes.Result{
		Fields: []*sqltypes.Field{{Name: "id", Type: sqltypes.Int64}, {Name: "name", Type: sqltypes.VarChar}},
		Rows: [][]sqltypes.Value{
			{sqltypes.NewInt64(10), sqltypes.NewVarChar("alice")},
			{sqltypes.NewInt64(2), sqltypes.NULL},
		},
	}
	require.NoError(t, printRows(&out, qr))
	assert.Equal(t, [][]string{{"id", "name"}, {"10", "alice"}, {"2", "NULL"}}, fields(out.String()))
	assert.NotContains(t, out.String(), "|")
	assert.NotContains(t, out.String(), "+")
}

func TestCheckUnique(t *testing.T) {
	report := checkUnique([][]int64{{4, 2}, {3, 2}, nil})
	assert.Equal(t, 4, report.Values)
	assert.Equal(t, 1, report.Duplicates)
	assert.EqualValues(t, 2, report.Min)
	assert.EqualValues(t, 4, report.Max)
}

func TestBenchReport(t *testing.T) {
	var out strings.Builder
	benchReport{
		Values:     2_000_000,
		Min:        1,
		Max:        2_000_000,
		Elapsed:    2 * time.Second,
		Refills:    2_000,
		Contention: 12,
	}.write(&out)
	assert.Equal(t, `values:      2,000,000
range:       [1, 2,000,000]
elapsed:     2s
rate:        1,000,000 values/s
refills:     2,000
contention:  12
duplicates:  0
`, out.String())
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "seqctl, version")
	assert.Contains(t, out, "go version:")
}
