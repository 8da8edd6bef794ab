// Command hydrate runs a joined query and prints the hydrated records as JSON. Entities are described by a YAML
// schema (see hydrate.Schema); the query's joins decide which relations are loaded.
//
//	hydrate --database.driver sqlite --database.dsn shop.db \
//	  --query.schema schema.yaml --query.root User \
//	  --query.sql "FROM users u LEFT JOIN orders o ON o.user_id = u.id WHERE u.id IN (?, ?)" --query.args 1,2
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jinzhu/gorm"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/coursehero/hydrate/v2"
	"github.com/coursehero/hydrate/v2/internal/config"
	"github.com/coursehero/hydrate/v2/internal/logging"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("configuration validation failed", slog.String("error", err.Error()))
		os.Exit(2)
	}

	logger := logging.NewLogger(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Stdout, logger); err != nil {
		logger.Error("hydrate failed", slog.String("error", err.Error()))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, out io.Writer, logger *slog.Logger) error {
	schema, err := hydrate.LoadSchema(cfg.Query.Schema)
	if err != nil {
		return err
	}
	root, err := schema.Tree(cfg.Query.Root)
	if err != nil {
		return err
	}

	stmt, err := cfg.Query.Statement()
	if err != nil {
		return err
	}

	db, err := openDB(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	records, err := hydrate.NewQuery(db, stmt, cfg.Query.ArgValues()...).
		Root(root).
		WithLogger(logger).
		Records(ctx)
	if err != nil {
		return err
	}
	logger.Info("records hydrated", slog.String("root", cfg.Query.Root), slog.Int("count", len(records)))

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

func openDB(cfg config.DatabaseConfig) (*gorm.DB, error) {
	sqlDB, err := sql.Open(cfg.SQLDriver(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	db, err := gorm.Open(cfg.Dialect(), sqlDB)
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.LogMode(false)
	return db, nil
}
