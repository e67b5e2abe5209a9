// Package mongodb implements core.DocumentStore on MongoDB.
// Every document lives in the `documents` collection under its path; transactions and change
// streams need a replica set.
package mongodb

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/codexlms/codex/core"
)

const documentsCollection = "documents"

type DB struct {
	client *mongo.Client
	docs   *mongo.Collection
}

var _ core.DocumentStore = (*DB)(nil)

type record struct {
	Path       string                 `bson:"_id"`
	Collection string                 `bson:"collection"`
	GroupID    string                 `bson:"groupId"`
	ID         string                 `bson:"docId"`
	Data       map[string]interface{} `bson:"data"`
}

func (r record) toDocument() (core.Document, error) {
	data, err := core.NormalizeData(r.Data)
	if err != nil {
		return core.Document{}, err
	}
	if data == nil {
		data = map[string]interface{}{}
	}
	return core.Document{ID: r.ID, Collection: r.Collection, Data: data}, nil
}

func Open(ctx context.Context, conf *core.Config) (*DB, error) {
	opts := options.Client().
		ApplyURI(conf.Store.MongoURI).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, errors.Wrap(err, "connecting to mongo")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrap(err, "pinging mongo")
	}
	docs := client.Database(conf.Store.MongoDatabase).Collection(documentsCollection)
	if err := ensureIndexes(ctx, docs); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return &DB{client: client, docs: docs}, nil
}

func ensureIndexes(ctx context.Context, docs *mongo.Collection) error {
	_, err := docs.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "collection", Value: 1}}},
		{Keys: bson.D{{Key: "groupId", Value: 1}}},
	})
	return errors.Wrap(err, "creating indexes")
}

func (db *DB) Get(ctx context.Context, col, id string) (core.Document, error) {
	if err := core.ValidateCollection(col); err != nil {
		return core.Document{}, err
	}
	var r record
	if err := db.docs.FindOne(ctx, bson.M{"_id": core.DocPath(col, id)}).Decode(&r); err != nil {
		if err == mongo.ErrNoDocuments {
			return core.Document{}, core.ErrDocNotFound
		}
		return core.Document{}, errors.Wrap(err, "getting document")
	}
	return r.toDocument()
}

// buildFilter translates q; missing fields never match.
func buildFilter(q core.Query) (bson.D, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	filter := bson.D{}
	if q.Group {
		filter = append(filter, bson.E{Key: "groupId", Value: q.Collection})
	} else {
		filter = append(filter, bson.E{Key: "collection", Value: q.Collection})
	}

	conds := make(map[string]bson.D, len(q.Filters))
	fields := make([]string, 0, len(q.Filters))
	for _, f := range q.Filters {
		val, err := core.NormalizeValue(f.Value)
		if err != nil {
			return nil, err
		}
		key := "data." + f.Field
		if _, ok := conds[key]; !ok {
			fields = append(fields, key)
			conds[key] = bson.D{{Key: "$exists", Value: true}}
		}

		var cond bson.E
		switch f.Op {
		case core.OpEqual:
			cond = bson.E{Key: "$eq", Value: val}
		case core.OpNotEqual:
			cond = bson.E{Key: "$ne", Value: val}
		case core.OpLess:
			cond = bson.E{Key: "$lt", Value: val}
		case core.OpLessOrEqual:
			cond = bson.E{Key: "$lte", Value: val}
		case core.OpGreater:
			cond = bson.E{Key: "$gt", Value: val}
		case core.OpGreaterOrEqual:
			cond = bson.E{Key: "$gte", Value: val}
		case core.OpIn:
			values, ok := val.([]interface{})
			if !ok {
				return nil, errors.Errorf("%q filter on %s needs a list", f.Op, f.Field)
			}
			cond = bson.E{Key: "$in", Value: values}
		case core.OpArrayContains:
			cond = bson.E{Key: "$elemMatch", Value: bson.D{{Key: "$eq", Value: val}}}
		}
		conds[key] = append(conds[key], cond)
	}
	for _, key := range fields {
		filter = append(filter, bson.E{Key: key, Value: conds[key]})
	}
	return filter, nil
}

func findOptions(q core.Query) *options.FindOptions {
	sort := bson.D{}
	for _, ord := range q.Orderings {
		dir := -1
		if ord.Ascending {
			dir = 1
		}
		sort = append(sort, bson.E{Key: "data." + ord.Field, Value: dir})
	}
	sort = append(sort, bson.E{Key: "_id", Value: 1})
	opts := options.Find().SetSort(sort)
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	return opts
}

func (db *DB) Query(ctx context.Context, q core.Query) ([]core.Document, error) {
	filter, err := buildFilter(q)
	if err != nil {
		return nil, err
	}
	return db.find(ctx, filter, findOptions(q))
}

func (db *DB) find(ctx context.Context, filter bson.D, opts *options.FindOptions) ([]core.Document, error) {
	cursor, err := db.docs.Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(err, "querying documents")
	}
	var records []record
	if err := cursor.All(ctx, &records); err != nil {
		return nil, errors.Wrap(err, "decoding documents")
	}
	docs := make([]core.Document, 0, len(records))
	for _, r := range records {
		doc, err := r.toDocument()
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
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

// Batch applies the writes in a transaction.
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

	sess, err := db.client.StartSession()
	if err != nil {
		return errors.Wrap(err, "starting session")
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		for _, w := range normalized {
			if err := db.apply(sc, w); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

func (db *DB) apply(ctx context.Context, w core.Write) error {
	path := core.DocPath(w.Collection, w.ID)
	switch w.Op {
	case core.WriteSet:
		r := record{Path: path, Collection: w.Collection, GroupID: core.CollectionID(w.Collection), ID: w.ID, Data: w.Data}
		_, err := db.docs.ReplaceOne(ctx, bson.M{"_id": path}, r, options.Replace().SetUpsert(true))
		return errors.Wrap(err, "setting document")
	case core.WriteUpdate:
		set := bson.M{}
		for k, v := range w.Data {
			set["data."+k] = v
		}
		if len(set) == 0 {
			n, err := db.docs.CountDocuments(ctx, bson.M{"_id": path})
			if err != nil {
				return errors.Wrap(err, "updating document")
			}
			if n == 0 {
				return errors.Wrap(core.ErrDocNotFound, path)
			}
			return nil
		}
		res, err := db.docs.UpdateOne(ctx, bson.M{"_id": path}, bson.M{"$set": set})
		if err != nil {
			return errors.Wrap(err, "updating document")
		}
		if res.MatchedCount == 0 {
			return errors.Wrap(core.ErrDocNotFound, path)
		}
		return nil
	case core.WriteDelete:
		_, err := db.docs.DeleteOne(ctx, bson.M{"_id": path})
		return errors.Wrap(err, "deleting document")
	default:
		return errors.Errorf("unknown write op %d", w.Op)
	}
}

// Listen sends the query results now and after every change of a matching collection.
func (db *DB) Listen(ctx context.Context, q core.Query) (<-chan core.Snapshot, error) {
	filter, err := buildFilter(q)
	if err != nil {
		return nil, err
	}
	opts := findOptions(q)

	stream, err := db.docs.Watch(ctx, mongo.Pipeline{})
	if err != nil {
		return nil, errors.Wrap(err, "watching documents")
	}
	docs, err := db.find(ctx, filter, opts)
	if err != nil {
		_ = stream.Close(ctx)
		return nil, err
	}

	ch := make(chan core.Snapshot, 1)
	ch <- core.Snapshot{Docs: docs}
	go func() {
		defer close(ch)
		defer func() { _ = stream.Close(context.Background()) }()
		for stream.Next(ctx) {
			var ev struct {
				DocumentKey struct {
					ID string `bson:"_id"`
				} `bson:"documentKey"`
			}
			if err := stream.Decode(&ev); err != nil || !q.Matches(pathCollection(ev.DocumentKey.ID)) {
				continue
			}
			docs, err := db.find(ctx, filter, opts)
			select {
			case <-ch: // drop the stale snapshot
			default:
			}
			ch <- core.Snapshot{Docs: docs, Err: err}
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			select {
			case <-ch:
			default:
			}
			ch <- core.Snapshot{Err: errors.Wrap(err, "watching documents")}
		}
	}()
	return ch, nil
}

// pathCollection returns the collection part of a document path.
func pathCollection(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[:i]
	}
	return ""
}

func (db *DB) Close() error {
	return db.client.Disconnect(context.Background())
}
