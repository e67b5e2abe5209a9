// Package firestoredb implements core.DocumentStore on Google Cloud Firestore.
package firestoredb

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/pkg/errors"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/codexlms/codex/core"
)

type DB struct {
	client *firestore.Client
}

var _ core.DocumentStore = (*DB)(nil)

func Open(ctx context.Context, conf *core.Config) (*DB, error) {
	var opts []option.ClientOption
	if conf.Store.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(conf.Store.CredentialsFile))
	}
	projectID := conf.Store.ProjectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "creating firestore client")
	}
	return &DB{client: client}, nil
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func (db *DB) Get(ctx context.Context, col, id string) (core.Document, error) {
	if err := core.ValidateCollection(col); err != nil {
		return core.Document{}, err
	}
	snap, err := db.client.Collection(col).Doc(id).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return core.Document{}, core.ErrDocNotFound
		}
		return core.Document{}, errors.Wrap(err, "getting document")
	}
	return toDocument(snap)
}

func (db *DB) buildQuery(q core.Query) (firestore.Query, error) {
	if err := q.Validate(); err != nil {
		return firestore.Query{}, err
	}
	var fq firestore.Query
	if q.Group {
		fq = db.client.CollectionGroup(q.Collection).Query
	} else {
		fq = db.client.Collection(q.Collection).Query
	}
	for _, f := range q.Filters {
		val, err := core.NormalizeValue(f.Value)
		if err != nil {
			return firestore.Query{}, err
		}
		fq = fq.WherePath(firestore.FieldPath{f.Field}, f.Op, val)
	}
	for _, ord := range q.Orderings {
		dir := firestore.Desc
		if ord.Ascending {
			dir = firestore.Asc
		}
		fq = fq.OrderByPath(firestore.FieldPath{ord.Field}, dir)
	}
	if q.Limit > 0 {
		fq = fq.Limit(q.Limit)
	}
	return fq, nil
}

func (db *DB) Query(ctx context.Context, q core.Query) ([]core.Document, error) {
	fq, err := db.buildQuery(q)
	if err != nil {
		return nil, err
	}
	iter := fq.Documents(ctx)
	defer iter.Stop()

	docs := make([]core.Document, 0)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "querying documents")
		}
		doc, err := toDocument(snap)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (db *DB) Create(ctx context.Context, col string, data map[string]interface{}) (string, error) {
	if err := core.ValidateCollection(col); err != nil {
		return "", err
	}
	ref := db.client.Collection(col).NewDoc()
	if err := db.Set(ctx, col, ref.ID, data); err != nil {
		return "", err
	}
	return ref.ID, nil
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

// Batch runs the writes in a transaction.
func (db *DB) Batch(ctx context.Context, writes ...core.Write) error {
	if len(writes) == 0 {
		return nil
	}
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
				data = map[string]interface{}{}
			}
			w.Data = data
		}
		normalized = append(normalized, w)
	}

	err := db.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		// reads come first: empty updates only check that the document exists
		for _, w := range normalized {
			if w.Op == core.WriteUpdate && len(w.Data) == 0 {
				if _, err := tx.Get(db.client.Collection(w.Collection).Doc(w.ID)); err != nil {
					return err
				}
			}
		}
		for _, w := range normalized {
			ref := db.client.Collection(w.Collection).Doc(w.ID)
			var err error
			switch w.Op {
			case core.WriteSet:
				err = tx.Set(ref, w.Data)
			case core.WriteUpdate:
				if len(w.Data) == 0 {
					continue
				}
				updates := make([]firestore.Update, 0, len(w.Data))
				for k, v := range w.Data {
					updates = append(updates, firestore.Update{FieldPath: firestore.FieldPath{k}, Value: v})
				}
				err = tx.Update(ref, updates)
			case core.WriteDelete:
				err = tx.Delete(ref)
			default:
				err = errors.Errorf("unknown write op %d", w.Op)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if isNotFound(err) {
			return errors.Wrap(core.ErrDocNotFound, err.Error())
		}
		return errors.Wrap(err, "writing documents")
	}
	return nil
}

// Listen relays the query snapshots of Firestore.
func (db *DB) Listen(ctx context.Context, q core.Query) (<-chan core.Snapshot, error) {
	fq, err := db.buildQuery(q)
	if err != nil {
		return nil, err
	}
	ch := make(chan core.Snapshot, 1)
	go func() {
		defer close(ch)
		iter := fq.Snapshots(ctx)
		defer iter.Stop()
		for {
			qs, err := iter.Next()
			if err != nil {
				if ctx.Err() == nil && status.Code(err) != codes.Canceled {
					send(ctx, ch, core.Snapshot{Err: errors.Wrap(err, "listening to documents")})
				}
				return
			}
			snaps, err := qs.Documents.GetAll()
			if err != nil {
				send(ctx, ch, core.Snapshot{Err: errors.Wrap(err, "reading snapshot")})
				return
			}
			docs := make([]core.Document, 0, len(snaps))
			for _, s := range snaps {
				doc, err := toDocument(s)
				if err != nil {
					send(ctx, ch, core.Snapshot{Err: err})
					return
				}
				docs = append(docs, doc)
			}
			if !send(ctx, ch, core.Snapshot{Docs: docs}) {
				return
			}
		}
	}()
	return ch, nil
}

func send(ctx context.Context, ch chan<- core.Snapshot, snap core.Snapshot) bool {
	select {
	case ch <- snap:
		return true
	case <-ctx.Done():
		return false
	}
}

func (db *DB) Close() error {
	return db.client.Close()
}

func toDocument(snap *firestore.DocumentSnapshot) (core.Document, error) {
	data, err := core.NormalizeData(snap.Data())
	if err != nil {
		return core.Document{}, err
	}
	return core.Document{ID: snap.Ref.ID, Collection: relativePath(snap.Ref.Parent), Data: data}, nil
}

// relativePath returns the path of col from the database root, eg. "users/42/enrollments".
func relativePath(col *firestore.CollectionRef) string {
	path := col.ID
	for doc := col.Parent; doc != nil; doc = doc.Parent.Parent {
		path = doc.Parent.ID + "/" + doc.ID + "/" + path
	}
	return path
}
