package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	// Registers the "mysql" driver with database/sql.
	_ "github.com/go-sql-driver/mysql"

	"github.com/couchcryptid/weather-snapshot-etl/internal/config"
)

// ErrConfigIncomplete is returned by Connect when host, database name, user
// or password is missing. No connection is attempted in that case.
var ErrConfigIncomplete = errors.New("database configuration is incomplete")

// Provider opens and closes single database connections.
// It implements pipeline.Connector.
type Provider struct {
	cfg    config.Database
	open   func(driverName, dsn string) (*sql.DB, error)
	logger *slog.Logger
}

// NewProvider creates a Provider for the given settings.
func NewProvider(cfg config.Database, logger *slog.Logger) *Provider {
	return &Provider{
		cfg:    cfg,
		open:   sql.Open,
		logger: logger,
	}
}

// Connect returns a live handle limited to one underlying connection. The
// caller owns the handle and must release it with Close.
func (p *Provider) Connect(ctx context.Context) (*sql.DB, error) {
	if !p.cfg.Complete() {
		return nil, ErrConfigIncomplete
	}

	db, err := p.open("mysql", p.cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to %s/%s: %w", p.cfg.Host, p.cfg.Name, err)
	}

	p.logger.Debug("database connection established", "host", p.cfg.Host, "database", p.cfg.Name)
	return db, nil
}

// Close releases a handle returned by Connect. It is safe to call with nil or
// with an already-closed handle.
func (p *Provider) Close(db *sql.DB) {
	if db == nil {
		return
	}
	if err := db.Close(); err != nil {
		p.logger.Debug("database close failed", "error", err)
		return
	}
	p.logger.Debug("database connection closed")
}
