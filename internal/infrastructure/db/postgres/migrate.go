package postgres

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"

	"github.com/baechuer/account-service/internal/infrastructure/db/postgres/migrations"
	"github.com/baechuer/account-service/internal/logger"
)

// gooseUp is a seam for tests.
var gooseUp = func(ctx context.Context, db *sql.DB, dir string) error {
	return goose.UpContext(ctx, db, dir)
}

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}

	if err := gooseUp(ctx, db, "."); err != nil {
		return err
	}
	log := logger.Component("migrations")
	log.Info().Msg("schema up to date")
	return nil
}
