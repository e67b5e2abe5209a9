// Package database opens the document store selected by the configuration.
package database

import (
	"context"

	"github.com/pkg/errors"

	"github.com/codexlms/codex/core"
	dummydb "github.com/codexlms/codex/storage/database/dummy"
	firestoredb "github.com/codexlms/codex/storage/database/firestore"
	mongodb "github.com/codexlms/codex/storage/database/mongo"
	postgresdb "github.com/codexlms/codex/storage/database/postgres"
)

var ErrUnknownBackend = errors.New("unknown store backend")

// Open connects to the configured backend. Postgres databases are migrated on open.
func Open(ctx context.Context, conf *core.Config) (core.DocumentStore, error) {
	switch conf.Store.Backend {
	case core.StoreMemory, "":
		return dummydb.Open(), nil
	case core.StoreFirestore:
		return firestoredb.Open(ctx, conf)
	case core.StoreMongo:
		return mongodb.Open(ctx, conf)
	case core.StorePostgres:
		db, err := postgresdb.Open(ctx, conf)
		if err != nil {
			return nil, err
		}
		if err := postgresdb.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	default:
		return nil, errors.Wrap(ErrUnknownBackend, conf.Store.Backend)
	}
}
