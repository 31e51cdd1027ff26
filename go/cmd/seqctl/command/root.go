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
	"context"
	"errors"
	"flag"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	versioncollector "github.com/prometheus/client_golang/prometheus/collectors/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"vitess.io/shardcore/go/stats/prometheusbackend"
	"vitess.io/shardcore/go/trace"
	"vitess.io/shardcore/go/vt/dbconnpool"
	"vitess.io/shardcore/go/vt/log"
	"vitess.io/shardcore/go/vt/srvtopo"
	"vitess.io/shardcore/go/vt/utils"
	"vitess.io/shardcore/go/vt/vterrors"
	"vitess.io/shardcore/go/vt/vtgate"
)

const metricsNamespace = "shardcore"

var (
	driver      = dbconnpool.DriverMySQL
	dsnTemplate string
	keyspace    = "unsharded"
	shard       = "0"
	configFile  string
	metricsAddr string

	vtgateConfig = vtgate.DefaultConfig()

	// promBackend is created once: stats variables are published to it for
	// the lifetime of the process.
	promBackend *prometheusbackend.PromBackend

	Root = &cobra.Command{
		Use:   "seqctl",
		Short: "seqctl manages sharded auto-increment sequences.",
		Long: "`seqctl` creates sequence counter tables on a backing shard, draws values from them " +
			"through the block-leasing sequence cache, and benchmarks concurrent allocation.\n\n" +
			"Every flag can also be given in the file named by --config or as a SEQCTL_ environment variable.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cmd.Flags()); err != nil {
				return err
			}
			if err := log.Init(cmd.Flags()); err != nil {
				return err
			}
			return vtgateConfig.Validate()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			log.Flush()
		},
		SilenceUsage: true,
	}
)

func init() {
	fs := Root.PersistentFlags()
	utils.SetFlagStringVar(fs, &driver, "driver", driver, "database/sql driver of the backing shards: mysql or sqlite")
	utils.SetFlagStringVar(fs, &dsnTemplate, "dsn", dsnTemplate, "DSN of a shard, {keyspace} and {shard} are substituted")
	utils.SetFlagStringVar(fs, &keyspace, "keyspace", keyspace, "keyspace holding the sequence tables")
	utils.SetFlagStringVar(fs, &shard, "shard", shard, "shard holding the sequence tables")
	utils.SetFlagStringVar(fs, &configFile, "config", configFile, "config file (yaml, json or toml) providing flag values")
	utils.SetFlagStringVar(fs, &metricsAddr, "metrics-addr", metricsAddr, "if set, serve /metrics and /debug handlers on this address")
	vtgate.RegisterFlags(fs, &vtgateConfig)
	log.RegisterFlags(fs)
	trace.RegisterFlags(fs)
	fs.AddGoFlagSet(flag.CommandLine)
	fs.SetNormalizeFunc(utils.NormalizeUnderscoresToDashes)
}

// loadConfig fills every flag not given on the command line from the
// environment or the config file.
func loadConfig(fs *pflag.FlagSet) error {
	v := viper.New()
	v.SetEnvPrefix("SEQCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return vterrors.Wrapf(err, "reading config file %s", configFile)
		}
	}
	if err := v.BindPFlags(fs); err != nil {
		return err
	}

	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Changed || !v.IsSet(f.Name) {
			return
		}
		if err := fs.Set(f.Name, v.GetString(f.Name)); err != nil {
			errs = append(errs, vterrors.Wrapf(err, "invalid value for %s", f.Name))
		}
	})
	return errors.Join(errs...)
}

func sequenceShard() *srvtopo.ResolvedShard {
	return &srvtopo.ResolvedShard{Keyspace: keyspace, Shard: shard, TabletType: srvtopo.TabletPrimary}
}

// env holds the resources of one command run.
type env struct {
	pool    *dbconnpool.ShardPool
	tracing io.Closer
	server  *http.Server
	mux     *http.ServeMux
}

// newEnv opens the shard pool and starts tracing and, if requested, the
// metrics server. The caller must Close it.
func newEnv() (*env, error) {
	pool, err := dbconnpool.NewShardPool(dbconnpool.Config{Driver: driver, DSNTemplate: dsnTemplate})
	if err != nil {
		return nil, err
	}
	e := &env{pool: pool, tracing: trace.StartTracing("seqctl")}
	if metricsAddr == "" {
		return e, nil
	}

	if promBackend == nil {
		promBackend = prometheusbackend.New(metricsNamespace)
		promBackend.Registry().MustRegister(versioncollector.NewCollector(programName))
	}
	e.mux = http.NewServeMux()
	e.mux.Handle("/metrics", promBackend.Handler())
	lis, err := net.Listen("tcp", metricsAddr)
	if err != nil {
		e.Close()
		return nil, vterrors.Wrapf(err, "listening on %s", metricsAddr)
	}
	e.server = &http.Server{Handler: e.mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := e.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("metrics server: %v", err)
		}
	}()
	log.Infof("serving metrics on %s", lis.Addr())
	return e, nil
}

// Handle adds a debug handler to the metrics server, if one is running.
func (e *env) Handle(path string, h http.Handler) {
	if e.mux != nil {
		e.mux.Handle(path, h)
	}
}

// Close releases the resources of the run.
func (e *env) Close() {
	if e.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.server.Shutdown(ctx); err != nil {
			log.Warningf("shutting down metrics server: %v", err)
		}
	}
	if err := e.tracing.Close(); err != nil {
		log.Warningf("closing tracer: %v", err)
	}
	if err := e.pool.Close(); err != nil {
		log.Warningf("closing shard pool: %v", err)
	}
}
