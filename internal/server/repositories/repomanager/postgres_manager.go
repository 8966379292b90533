// Package repomanager binds the Postgres repositories to a connection and
// owns the schema: opening the pool and applying the embedded goose
// migrations at startup.
package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/mediaflow/internal/dbx"
	"github.com/dmitrijs2005/mediaflow/internal/server/migrations"
	"github.com/dmitrijs2005/mediaflow/internal/server/repositories/media"
	"github.com/dmitrijs2005/mediaflow/internal/server/repositories/publishes"
	"github.com/dmitrijs2005/mediaflow/internal/server/repositories/tokens"
	"github.com/dmitrijs2005/mediaflow/internal/server/repositories/transfers"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

const driverName = "pgx"

// test seams
var (
	sqlOpen   = sql.Open
	migrateUp = func(ctx context.Context, db *sql.DB, dir string) error {
		return goose.UpContext(ctx, db, dir)
	}
)

type PostgresRepositoryManager struct{}

func NewPostgresRepositoryManager() RepositoryManager {
	return &PostgresRepositoryManager{}
}

func (m *PostgresRepositoryManager) Transfers(db dbx.DBTX) transfers.Repository {
	return transfers.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Publishes(db dbx.DBTX) publishes.Repository {
	return publishes.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Tokens(db dbx.DBTX) tokens.Repository {
	return tokens.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Media(db dbx.DBTX) media.Repository {
	return media.NewPostgresRepository(db)
}

// RunMigrations brings the schema up to the newest embedded migration.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect(driverName); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := migrateUp(ctx, db, "."); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// OpenDB opens a pgx pool sized by opts and checks it answers.
func OpenDB(ctx context.Context, dsn string, opts PoolOptions) (*sql.DB, error) {
	db, err := sqlOpen(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	opts.apply(db)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}
