// Package postgresdb implements core.DocumentStore on a single PostgreSQL JSONB table.
// Changes are published by a trigger on the `document_changes` channel, which Listen follows.
package postgresdb

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/codexlms/codex/core"
)

const changesChannel = "document_changes"

type DB struct {
	db  *sqlx.DB
	url string
}

var _ core.DocumentStore = (*DB)(nil)

type row struct {
	Collection string `db:"collection"`
	ID         string `db:"id"`
	Data       []byte `db:"data"`
}

func (r row) toDocument() (core.Document, error) {
	var data map[string]interface{}
	if err := sonic.ConfigStd.Unmarshal(r.Data, &data); err != nil {
		return core.Document{}, errors.Wrap(err, "decoding document data")
	}
	return core.Document{ID: r.ID, Collection: r.Collection, Data: data}, nil
}

// Open connects to the database and waits until it answers.
func Open(ctx context.Context, conf *core.Config) (*DB, error) {
	db, err := sqlx.Open("postgres", conf.Store.PostgresURL)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if err := ping(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DB{db: db, url: conf.Store.PostgresURL}, nil
}

// ping waits for the database to be ready. Waits 100ms longer between each attempt.
func ping(ctx context.Context, db *sqlx.DB) error {
	var err error
	maxAttempts := 30
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		if err = db.PingContext(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempts) * 100 * time.Millisecond):
		}
	}
	return errors.Wrap(err, "DB ping timeout")
}

// SQL exposes the connection, eg. to run migrations.
func (db *DB) SQL() *sql.DB {
	return db.db.DB
}

func (db *DB) Get(ctx context.Context, col, id string) (core.Document, error) {
	if err := core.ValidateCollection(col); err != nil {
		return core.Document{}, err
	}
	var r row
	err := db.db.GetContext(ctx, &r, `SELECT collection, id, data FROM documents WHERE collection = $1 AND id = $2`, col, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Document{}, core.ErrDocNotFound
		}
		return core.Document{}, errors.Wrap(err, "getting document")
	}
	return r.toDocument()
}

func (db *DB) Query(ctx context.Context, q core.Query) ([]core.Document, error) {
	stmt, args, err := buildQuery(q)
	if err != nil {
		return nil, err
	}
	return db.query(ctx, stmt, args)
}

func (db *DB) query(ctx context.Context, stmt string, args []interface{}) ([]core.Document, error) {
	var rows []row
	if err := db.db.SelectContext(ctx, &rows, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "querying documents")
	}
	docs := make([]core.Document, 0, len(rows))
	for _, r := range rows {
		doc, err := r.toDocument()
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// sqlBuilder numbers the placeholders of a statement.
type sqlBuilder struct {
	args []interface{}
}

func (b *sqlBuilder) arg(v interface{}) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

func (b *sqlBuilder) jsonArg(v interface{}) (string, error) {
	raw, err := sonic.ConfigStd.Marshal(v)
	if err != nil {
		return "", errors.Wrap(err, "encoding filter value")
	}
	return b.arg(string(raw)) + "::jsonb", nil
}

// buildQuery translates q to SQL. Missing fields never match a filter; comparisons only match
// values of the same JSON type.
func buildQuery(q core.Query) (string, []interface{}, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}
	b := &sqlBuilder{}
	where := make([]string, 0, len(q.Filters)+1)
	if q.Group {
		where = append(where, "group_id = "+b.arg(q.Collection))
	} else {
		where = append(where, "collection = "+b.arg(q.Collection))
	}

	for _, f := range q.Filters {
		val, err := core.NormalizeValue(f.Value)
		if err != nil {
			return "", nil, err
		}
		field := "data -> " + b.arg(f.Field)

		switch f.Op {
		case core.OpEqual:
			v, err := b.jsonArg(val)
			if err != nil {
				return "", nil, err
			}
			where = append(where, field+" = "+v)
		case core.OpNotEqual:
			v, err := b.jsonArg(val)
			if err != nil {
				return "", nil, err
			}
			where = append(where, field+" IS NOT NULL AND "+field+" <> "+v)
		case core.OpLess, core.OpLessOrEqual, core.OpGreater, core.OpGreaterOrEqual:
			v, err := b.jsonArg(val)
			if err != nil {
				return "", nil, err
			}
			where = append(where, "jsonb_typeof("+field+") = jsonb_typeof("+v+") AND "+field+" "+f.Op+" "+v)
		case core.OpIn:
			values, ok := val.([]interface{})
			if !ok {
				return "", nil, errors.Errorf("%q filter on %s needs a list", f.Op, f.Field)
			}
			if len(values) == 0 {
				where = append(where, "FALSE")
				continue
			}
			placeholders := make([]string, 0, len(values))
			for _, item := range values {
				v, err := b.jsonArg(item)
				if err != nil {
					return "", nil, err
				}
				placeholders = append(placeholders, v)
			}
			where = append(where, field+" IN ("+strings.Join(placeholders, ", ")+")")
		case core.OpArrayContains:
			v, err := b.jsonArg([]interface{}{val})
			if err != nil {
				return "", nil, err
			}
			where = append(where, "jsonb_typeof("+field+") = 'array' AND "+field+" @> "+v)
		}
	}

	stmt := "SELECT collection, id, data FROM documents WHERE " + strings.Join(where, " AND ")
	orderBy := make([]string, 0, len(q.Orderings)+2)
	for _, ord := range q.Orderings {
		dir := "DESC NULLS LAST"
		if ord.Ascending {
			dir = "ASC NULLS FIRST"
		}
		orderBy = append(orderBy, "data -> "+b.arg(ord.Field)+" "+dir)
	}
	orderBy = append(orderBy, "collection", "id")
	stmt += " ORDER BY " + strings.Join(orderBy, ", ")
	if q.Limit > 0 {
		stmt += " LIMIT " + b.arg(q.Limit)
	}
	return stmt, b.args, nil
}

func (db *DB) Create(ctx context.Context, col string, data map[string]interface{}) (string, error) {
	id := uuid.NewString()
	if err := db.Set(ctx, col, id, data); err != nil {
		return "", err
	}
	return id, nil
}

func (db *DB) Set(ctx context.Context, col, id string, data map[string]interface{}) error {
	return db.Batch(ctx, core.Write{Op: core.WriteSet, Collection: col, ID: id, Data: data})
}

func (db *DB) Update(ctx context.Context, col, id string, data map[string]interface{}) error {
	return db.Batch(ctx, core.Write{Op: core.WriteUpdate, Collection: col, ID: id, Data: data})
}

func (db *DB) Delete(ctx context.Context, col, id string) error {
	return db.Batch(ctx, core.Write{Op: core.WriteDelete, Collection: col, ID: id})
}

const (
	upsertStmt = `INSERT INTO documents (collection, group_id, id, data) VALUES ($1, $2, $3, $4::jsonb)
ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`
	updateStmt = `UPDATE documents SET data = data || $3::jsonb, updated_at = now() WHERE collection = $1 AND id = $2`
	deleteStmt = `DELETE FROM documents WHERE collection = $1 AND id = $2`
)

// Batch applies the writes in a transaction.
func (db *DB) Batch(ctx context.Context, writes ...core.Write) (err error) {
	if len(writes) == 0 {
		return nil
	}
	for _, w := range writes {
		if err := core.ValidateCollection(w.Collection); err != nil {
			return err
		}
		if w.ID == "" {
			return errors.Wrap(core.ErrInvalidPath, "missing document id")
		}
	}

	tx, err := db.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, w := range writes {
		if err = applyWrite(ctx, tx, w); err != nil {
			return err
		}
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

func applyWrite(ctx context.Context, tx *sqlx.Tx, w core.Write) error {
	var raw []byte
	if w.Op != core.WriteDelete {
		data, err := core.NormalizeData(w.Data)
		if err != nil {
			return err
		}
		if data == nil {
			data = map[string]interface{}{}
		}
		if raw, err = sonic.ConfigStd.Marshal(data); err != nil {
			return errors.Wrap(err, "encoding document data")
		}
	}

	switch w.Op {
	case core.WriteSet:
		_, err := tx.ExecContext(ctx, upsertStmt, w.Collection, core.CollectionID(w.Collection), w.ID, string(raw))
		return errors.Wrap(err, "setting document")
	case core.WriteUpdate:
		res, err := tx.ExecContext(ctx, updateStmt, w.Collection, w.ID, string(raw))
		if err != nil {
			return errors.Wrap(err, "updating document")
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return errors.Wrap(core.ErrDocNotFound, core.DocPath(w.Collection, w.ID))
		}
		return nil
	case core.WriteDelete:
		_, err := tx.ExecContext(ctx, deleteStmt, w.Collection, w.ID)
		return errors.Wrap(err, "deleting document")
	default:
		return errors.Errorf("unknown write op %d", w.Op)
	}
}

// Listen sends the query results now and each time a document of a matching collection changes.
func (db *DB) Listen(ctx context.Context, q core.Query) (<-chan core.Snapshot, error) {
	stmt, args, err := buildQuery(q)
	if err != nil {
		return nil, err
	}
	docs, err := db.query(ctx, stmt, args)
	if err != nil {
		return nil, err
	}

	listener := pq.NewListener(db.url, 100*time.Millisecond, 10*time.Second, nil)
	if err := listener.Listen(changesChannel); err != nil {
		_ = listener.Close()
		return nil, errors.Wrap(err, "listening to document changes")
	}

	ch := make(chan core.Snapshot, 1)
	ch <- core.Snapshot{Docs: docs}
	go func() {
		defer close(ch)
		defer func() { _ = listener.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case n := <-listener.Notify:
				// n is nil after a reconnection: changes may have been missed
				if n != nil && !q.Matches(n.Extra) {
					continue
				}
				docs, err := db.query(ctx, stmt, args)
				snap := core.Snapshot{Docs: docs, Err: err}
				select {
				case <-ch: // drop the stale snapshot
				default:
				}
				ch <- snap
			case <-time.After(90 * time.Second):
				go func() { _ = listener.Ping() }()
			}
		}
	}()
	return ch, nil
}

func (db *DB) Close() error {
	return db.db.Close()
}
