// Package dummydb is an in-memory core.DocumentStore used in development and tests.
package dummydb

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/codexlms/codex/core"
)

var errClosed = errors.New("store closed")

type (
	collection map[string]map[string]interface{} // {id: data}

	DB struct {
		mu          sync.RWMutex
		collections map[string]collection // {path: collection}
		listeners   map[int]*listener
		nextID      int
		closed      bool
	}

	listener struct {
		query core.Query
		ch    chan core.Snapshot
	}
)

var _ core.DocumentStore = (*DB)(nil) // interface compliance check

func Open() *DB {
	return &DB{
		collections: make(map[string]collection),
		listeners:   make(map[int]*listener),
	}
}

func (db *DB) Get(_ context.Context, col, id string) (core.Document, error) {
	if err := core.ValidateCollection(col); err != nil {
		return core.Document{}, err
	}
	db.mu.RLock()
	defer db.mu.RUnlock()

	data, ok := db.collections[col][id]
	if !ok {
		return core.Document{}, core.ErrDocNotFound
	}
	return core.Document{ID: id, Collection: col, Data: copyData(data)}, nil
}

func (db *DB) Query(_ context.Context, q core.Query) ([]core.Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	filters, err := normalizeFilters(q.Filters)
	if err != nil {
		return nil, err
	}
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.query(q, filters), nil
}

// query must be called with db.mu held.
func (db *DB) query(q core.Query, filters []core.Filter) []core.Document {
	docs := make([]core.Document, 0)
	for path, col := range db.collections {
		if !q.Matches(path) {
			continue
		}
		for id, data := range col {
			if matchAll(data, filters) {
				docs = append(docs, core.Document{ID: id, Collection: path, Data: copyData(data)})
			}
		}
	}
	sortDocs(docs, q.Orderings)
	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}
	return docs
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

func (db *DB) Batch(_ context.Context, writes ...core.Write) error {
	// normalize everything before locking so that a bad write leaves the store untouched
	normalized := make([]core.Write, 0, len(writes))
	for _, w := range writes {
		if err := core.ValidateCollection(w.Collection); err != nil {
			return err
		}
		if w.ID == "" {
			return errors.Wrap(core.ErrInvalidPath, "missing document id")
		}
		if w.Op != core.WriteDelete {
			data, err := core.NormalizeData(w.Data)
			if err != nil {
				return err
			}
			if data == nil {
				data = make(map[string]interface{})
			}
			w.Data = data
		}
		normalized = append(normalized, w)
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return errClosed
	}

	// replay the writes in order: an update needs the document to exist at that point of the batch
	exists := make(map[string]bool, len(normalized))
	for _, w := range normalized {
		path := core.DocPath(w.Collection, w.ID)
		found, seen := exists[path]
		if !seen {
			found = db.exists(w.Collection, w.ID)
		}
		switch w.Op {
		case core.WriteSet:
			exists[path] = true
		case core.WriteUpdate:
			if !found {
				return errors.Wrap(core.ErrDocNotFound, path)
			}
			exists[path] = true
		case core.WriteDelete:
			exists[path] = false
		default:
			return errors.Errorf("unknown write op %d", w.Op)
		}
	}

	changed := make(map[string]struct{}, len(normalized))
	for _, w := range normalized {
		col, ok := db.collections[w.Collection]
		if !ok {
			col = make(collection)
			db.collections[w.Collection] = col
		}
		switch w.Op {
		case core.WriteSet:
			col[w.ID] = w.Data
		case core.WriteUpdate:
			merged := col[w.ID]
			for k, v := range w.Data {
				merged[k] = v
			}
		case core.WriteDelete:
			delete(col, w.ID)
		}
		changed[w.Collection] = struct{}{}
	}

	db.notify(changed)
	return nil
}

func (db *DB) exists(col, id string) bool {
	_, ok := db.collections[col][id]
	return ok
}

func (db *DB) Listen(ctx context.Context, q core.Query) (<-chan core.Snapshot, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	filters, err := normalizeFilters(q.Filters)
	if err != nil {
		return nil, err
	}
	q.Filters = filters

	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return nil, errClosed
	}
	lsn := &listener{query: q, ch: make(chan core.Snapshot, 1)}
	id := db.nextID
	db.nextID++
	db.listeners[id] = lsn
	lsn.ch <- core.Snapshot{Docs: db.query(q, q.Filters)}
	db.mu.Unlock()

	go func() {
		<-ctx.Done()
		db.mu.Lock()
		defer db.mu.Unlock()
		if _, ok := db.listeners[id]; ok {
			delete(db.listeners, id)
			close(lsn.ch)
		}
	}()
	return lsn.ch, nil
}

// notify must be called with db.mu held. Slow listeners only get the latest snapshot.
func (db *DB) notify(changed map[string]struct{}) {
	for _, lsn := range db.listeners {
		affected := false
		for path := range changed {
			if lsn.query.Matches(path) {
				affected = true
				break
			}
		}
		if !affected {
			continue
		}
		snap := core.Snapshot{Docs: db.query(lsn.query, lsn.query.Filters)}
		select {
		case <-lsn.ch: // drop the stale snapshot
		default:
		}
		lsn.ch <- snap
	}
}

func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true
	for id, lsn := range db.listeners {
		delete(db.listeners, id)
		close(lsn.ch)
	}
	return nil
}

// Reset drops every document; used between tests.
func (db *DB) Reset() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.collections = make(map[string]collection)
}

// Collections lists the collection paths holding at least one document.
func (db *DB) Collections() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	paths := make([]string, 0, len(db.collections))
	for path, col := range db.collections {
		if len(col) > 0 {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths
}
