package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // goose는 database/sql 드라이버가 필요
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

func openMigrator(dsn string) (*sql.DB, error) {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("set dialect: %w", err)
	}
	db, err := goose.OpenDBWithDriver("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db for migrations: %w", err)
	}
	return db, nil
}

// Migrate applies all pending migrations
func (db *DB) Migrate(ctx context.Context) error {
	return Migrate(ctx, db.url)
}

// Migrate applies all pending embedded migrations to dsn
func Migrate(ctx context.Context, dsn string) error {
	sqlDB, err := openMigrator(dsn)
	if err != nil {
		return err
	}
	defer func() { _ = sqlDB.Close() }()

	if err := goose.UpContext(ctx, sqlDB, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Rollback reverts the last steps migrations
func Rollback(ctx context.Context, dsn string, steps int) error {
	sqlDB, err := openMigrator(dsn)
	if err != nil {
		return err
	}
	defer func() { _ = sqlDB.Close() }()

	for i := 0; i < steps; i++ {
		if err := goose.DownContext(ctx, sqlDB, "migrations"); err != nil {
			return fmt.Errorf("rollback: %w", err)
		}
	}
	return nil
}

// Version returns the applied migration version
func Version(ctx context.Context, dsn string) (int64, error) {
	sqlDB, err := openMigrator(dsn)
	if err != nil {
		return 0, err
	}
	defer func() { _ = sqlDB.Close() }()

	version, err := goose.GetDBVersionContext(ctx, sqlDB)
	if err != nil {
		return 0, fmt.Errorf("get version: %w", err)
	}
	return version, nil
}
