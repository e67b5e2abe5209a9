package main

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"

	appfs "github.com/codexlms/codex/fs"
)

var gooseRunFunc = goose.RunContext // mockable

var errNoMigrations = errors.New("only the postgres store uses migrations")

// sqlStore is implemented by the stores backed by database/sql.
type sqlStore interface {
	SQL() *sql.DB
}

func (cli *commandLine) migrate(ctx context.Context, args []string) error {
	store, ok := cli.db.(sqlStore)
	if !ok {
		return errNoMigrations
	}
	goose.SetBaseFS(appfs.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "setting goose dialect")
	}
	return gooseRunFunc(ctx, args[0], store.SQL(), "migrations", args[1:]...)
}
