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

/*
Package dbconnpool maps resolved shards onto database/sql handles.

A ShardPool lazily opens one *sql.DB per keyspace/shard from a DSN template
and runs queries on it. It implements srvtopo.ShardExecutor, which makes a
MySQL server or an embedded SQLite file usable as the backing store of a
shard.
*/
package dbconnpool

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"google.golang.org/grpc/codes"
	"modernc.org/sqlite"

	"vitess.io/shardcore/go/sqltypes"
	"vitess.io/shardcore/go/stats"
	"vitess.io/shardcore/go/vt/log"
	"vitess.io/shardcore/go/vt/srvtopo"
	"vitess.io/shardcore/go/vt/vterrors"
)

// Supported drivers.
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

var (
	// ErrConnPoolClosed is returned if the connection pool is closed.
	ErrConnPoolClosed = vterrors.New(codes.Unavailable, "connection pool is closed")

	openShards = stats.NewGauge("ShardPoolOpenShards", "Shards with an open database handle")
)

// Config describes how to reach the shards.
type Config struct {
	// Driver is DriverMySQL or DriverSQLite.
	Driver string
	// DSNTemplate is expanded per shard: {keyspace} and {shard} are
	// replaced by the target's keyspace and shard name.
	DSNTemplate string
	// Capacity bounds the open connections per shard. SQLite shards always
	// use a single connection.
	Capacity int
	// IdleTimeout closes connections idle for longer. 0 keeps them.
	IdleTimeout time.Duration
}

// ShardPool re-exposes database/sql handles as a ShardExecutor.
type ShardPool struct {
	cfg Config

	mu     sync.Mutex
	dbs    map[string]*sql.DB
	closed bool
}

var _ srvtopo.ShardExecutor = (*ShardPool)(nil)

// NewShardPool creates a new ShardPool. No connection is made until a shard
// is first used.
func NewShardPool(cfg Config) (*ShardPool, error) {
	switch cfg.Driver {
	case DriverMySQL, DriverSQLite:
	default:
		return nil, vterrors.Errorf(codes.InvalidArgument, "unsupported driver %q", cfg.Driver)
	}
	if cfg.DSNTemplate == "" {
		return nil, vterrors.New(codes.InvalidArgument, "empty DSN template")
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = 4
	}
	return &ShardPool{cfg: cfg, dbs: make(map[string]*sql.DB)}, nil
}

// DSN expands the template for one shard.
func (sp *ShardPool) DSN(rs *srvtopo.ResolvedShard) string {
	return strings.NewReplacer("{keyspace}", rs.Keyspace, "{shard}", rs.Shard).Replace(sp.cfg.DSNTemplate)
}

// DB returns the handle of a shard, opening it on first use.
func (sp *ShardPool) DB(rs *srvtopo.ResolvedShard) (*sql.DB, error) {
	key := rs.Keyspace + "/" + rs.Shard

	sp.mu.Lock()
	defer sp.mu.Unlock()
	if sp.closed {
		return nil, ErrConnPoolClosed
	}
	if db, ok := sp.dbs[key]; ok {
		return db, nil
	}
	db, err := sp.open(sp.DSN(rs))
	if err != nil {
		return nil, vterrors.Wrapf(err, "opening shard %v", rs)
	}
	sp.dbs[key] = db
	openShards.Add(1)
	log.Infof("opened %s connection pool for shard %v", sp.cfg.Driver, rs)
	return db, nil
}

func (sp *ShardPool) open(dsn string) (*sql.DB, error) {
	var db *sql.DB
	switch sp.cfg.Driver {
	case DriverMySQL:
		mcfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, vterrors.Wrap(err, "parsing mysql DSN")
		}
		connector, err := mysql.NewConnector(mcfg)
		if err != nil {
			return nil, err
		}
		db = sql.OpenDB(connector)
		db.SetMaxOpenConns(sp.cfg.Capacity)
		db.SetMaxIdleConns(sp.cfg.Capacity)
	case DriverSQLite:
		var err error
		db, err = sql.Open(DriverSQLite, dsn)
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(1)
	}
	if sp.cfg.IdleTimeout > 0 {
		db.SetConnMaxIdleTime(sp.cfg.IdleTimeout)
	}
	return db, nil
}

// ExecuteOnShard is part of the srvtopo.ShardExecutor interface. Reads
// return rows; other statements return RowsAffected and InsertID.
func (sp *ShardPool) ExecuteOnShard(ctx context.Context, rs *srvtopo.ResolvedShard, query string, args ...any) (*sqltypes.Result, error) {
	db, err := sp.DB(rs)
	if err != nil {
		return nil, err
	}
	if isRead(query) {
		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, shardError(rs, err)
		}
		defer rows.Close()
		qr, err := scanRows(rows)
		if err != nil {
			return nil, shardError(rs, err)
		}
		return qr, nil
	}

	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, shardError(rs, err)
	}
	qr := &sqltypes.Result{}
	if n, err := res.RowsAffected(); err == nil {
		qr.RowsAffected = uint64(n)
	}
	if id, err := res.LastInsertId(); err == nil && id > 0 {
		qr.InsertID = uint64(id)
	}
	return qr, nil
}

// Close closes every shard handle. Later calls fail with ErrConnPoolClosed.
func (sp *ShardPool) Close() error {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if sp.closed {
		return nil
	}
	sp.closed = true
	var errs []error
	for key, db := range sp.dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, vterrors.Wrapf(err, "closing %s", key))
		}
		openShards.Add(-1)
	}
	sp.dbs = nil
	return vterrors.Aggregate(errs)
}

func isRead(query string) bool {
	q := strings.TrimLeft(query, " \t\r\n(")
	end := strings.IndexAny(q, " \t\r\n")
	if end < 0 {
		end = len(q)
	}
	switch strings.ToLower(q[:end]) {
	case "select", "show", "with", "explain", "pragma", "describe":
		return true
	}
	return false
}

func scanRows(rows *sql.Rows) (*sqltypes.Result, error) {
	cols, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	qr := &sqltypes.Result{Fields: make([]*sqltypes.Field, len(cols))}
	for i, c := range cols {
		qr.Fields[i] = &sqltypes.Field{Name: c.Name(), Type: fieldType(c.DatabaseTypeName())}
	}

	dest := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make([]sqltypes.Value, len(cols))
		for i, v := range dest {
			if row[i], err = sqltypes.FromAny(v); err != nil {
				return nil, err
			}
		}
		qr.Rows = append(qr.Rows, row)
	}
	return qr, rows.Err()
}

func fieldType(dbType string) sqltypes.Type {
	switch t := strings.ToUpper(dbType); {
	case strings.Contains(t, "INT"):
		if strings.HasPrefix(t, "UNSIGNED") {
			return sqltypes.Uint64
		}
		return sqltypes.Int64
	case t == "REAL", t == "DOUBLE", t == "FLOAT", t == "DECIMAL":
		return sqltypes.Float64
	case strings.Contains(t, "BLOB"), strings.Contains(t, "BINARY"):
		return sqltypes.VarBinary
	}
	return sqltypes.VarChar
}

// MySQL and SQLite error numbers with a dedicated code.
const (
	mysqlErrDupEntry     = 1062
	mysqlErrNoSuchTable  = 1146
	mysqlErrLockDeadlock = 1213
	sqliteBusy           = 5
	sqliteLocked         = 6
)

// shardError attaches the shard to err and gives it a code.
func shardError(rs *srvtopo.ResolvedShard, err error) error {
	if vterrors.IsCancellation(err) {
		return vterrors.Wrapf(err, "shard %v", rs)
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		code := codes.Unknown
		switch myErr.Number {
		case mysqlErrDupEntry:
			code = codes.AlreadyExists
		case mysqlErrNoSuchTable:
			code = codes.NotFound
		case mysqlErrLockDeadlock:
			code = codes.Aborted
		}
		return vterrors.NewErrorf(code, err, "shard %v", rs)
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() & 0xff {
		case sqliteBusy, sqliteLocked:
			return vterrors.NewErrorf(codes.Unavailable, err, "shard %v", rs)
		}
		return vterrors.NewErrorf(codes.Unknown, err, "shard %v", rs)
	}
	return vterrors.Wrapf(err, "shard %v", rs)
}
