package postgresdb

import (
	"context"
	"net/url"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"

	"github.com/codexlms/codex/core"
	appfs "github.com/codexlms/codex/fs"
)

const migrationsDir = "migrations"

// CreateIfNotExist creates the database named in the store URL, connecting to the `postgres`
// database with the same credentials.
func CreateIfNotExist(ctx context.Context, conf *core.Config) error {
	u, err := url.Parse(conf.Store.PostgresURL)
	if err != nil {
		return errors.Wrap(err, "parsing postgres url")
	}
	dbName := strings.TrimPrefix(u.Path, "/")
	if dbName == "" {
		return errors.New("postgres url has no database name")
	}
	u.Path = "/postgres"

	db, err := sqlx.Open("postgres", u.String())
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = db.Close() }()
	if err = ping(ctx, db); err != nil {
		return errors.Wrap(err, "pinging database")
	}

	var exists bool
	if err = db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, dbName); err != nil {
		return errors.Wrap(err, "checking DB")
	}
	if !exists {
		if _, err = db.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(dbName)); err != nil {
			return errors.Wrap(err, "creating database")
		}
	}
	return nil
}

// Migrate runs the embedded migrations.
func Migrate(ctx context.Context, db *DB) error {
	goose.SetBaseFS(appfs.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "setting goose dialect")
	}
	if err := goose.UpContext(ctx, db.SQL(), migrationsDir); err != nil {
		return errors.Wrap(err, "migrating database")
	}
	return nil
}
