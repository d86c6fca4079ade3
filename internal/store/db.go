// Package store is the reference bun persistence for the content graph.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/goliatone/go-graph-cache/domain"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Open connects to the database and wraps it in a bun.DB with the dialect
// matching driver.
func Open(driver, dsn string, maxOpenConns int) (*bun.DB, error) {
	sqldb, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if maxOpenConns > 0 {
		sqldb.SetMaxOpenConns(maxOpenConns)
	}

	switch driver {
	case DriverSQLite:
		return bun.NewDB(sqldb, sqlitedialect.New()), nil
	case DriverPostgres:
		return bun.NewDB(sqldb, pgdialect.New()), nil
	default:
		_ = sqldb.Close()
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
}

// CreateSchema creates the tables and indexes if they do not exist.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	models := []any{
		(*domain.User)(nil),
		(*domain.Channel)(nil),
		(*domain.Block)(nil),
		(*domain.Connection)(nil),
		(*domain.Follow)(nil),
	}
	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}

	indexes := []*bun.CreateIndexQuery{
		db.NewCreateIndex().Model((*domain.Channel)(nil)).Index("channels_owner_idx").Column("owner_id").IfNotExists(),
		db.NewCreateIndex().Model((*domain.Connection)(nil)).Index("connections_edge_idx").Unique().
			Column("channel_id", "block_id").IfNotExists(),
		db.NewCreateIndex().Model((*domain.Follow)(nil)).Index("follows_edge_idx").Unique().
			Column("follower_id", "followable_type", "followable_id").IfNotExists(),
		db.NewCreateIndex().Model((*domain.Follow)(nil)).Index("follows_target_idx").Column("followable_type", "followable_id").IfNotExists(),
	}
	for _, q := range indexes {
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}
