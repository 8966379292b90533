package repomanager

import (
	"context"
	"database/sql"
	"time"

	"github.com/dmitrijs2005/mediaflow/internal/dbx"
	"github.com/dmitrijs2005/mediaflow/internal/server/repositories/media"
	"github.com/dmitrijs2005/mediaflow/internal/server/repositories/publishes"
	"github.com/dmitrijs2005/mediaflow/internal/server/repositories/tokens"
	"github.com/dmitrijs2005/mediaflow/internal/server/repositories/transfers"
)

// RepositoryManager hands out repositories bound to either the pool or an
// open transaction, so a service can run several of them under one dbx.WithTx.
type RepositoryManager interface {
	RunMigrations(ctx context.Context, db *sql.DB) error
	Transfers(db dbx.DBTX) transfers.Repository
	Publishes(db dbx.DBTX) publishes.Repository
	Tokens(db dbx.DBTX) tokens.Repository
	Media(db dbx.DBTX) media.Repository
}

// PoolOptions sizes the connection pool. Part uploads hold a connection only
// for the ledger write, publish runs poll, so the defaults stay small.
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

var DefaultPoolOptions = PoolOptions{
	MaxOpenConns:    20,
	MaxIdleConns:    5,
	ConnMaxLifetime: 30 * time.Minute,
	ConnMaxIdleTime: 5 * time.Minute,
}

func (o PoolOptions) apply(db *sql.DB) {
	db.SetMaxOpenConns(o.MaxOpenConns)
	db.SetMaxIdleConns(o.MaxIdleConns)
	db.SetConnMaxLifetime(o.ConnMaxLifetime)
	db.SetConnMaxIdleTime(o.ConnMaxIdleTime)
}
