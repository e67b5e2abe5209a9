package core

import (
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
)

// codec is shared by every backend so that a value always reads back the way it was written:
// numbers become float64, time.Time becomes a TimeLayout string, structs become maps.
var codec = sonic.ConfigStd

// TimeLayout is RFC3339 in UTC with a fixed-width fraction, so that stored timestamps compare
// as strings in time order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// fixTimes rewrites the RFC3339 strings found in v in TimeLayout.
func fixTimes(v interface{}) interface{} {
	switch val := v.(type) {
	case string:
		if len(val) < len("2006-01-02T15:04:05Z") || val[4] != '-' || val[10] != 'T' {
			return val
		}
		if t, err := time.Parse(time.RFC3339Nano, val); err == nil {
			return t.UTC().Format(TimeLayout)
		}
	case map[string]interface{}:
		for k, x := range val {
			val[k] = fixTimes(x)
		}
	case []interface{}:
		for i, x := range val {
			val[i] = fixTimes(x)
		}
	}
	return v
}

// EncodeDocument turns an entity struct into document data using its json tags.
// The `id` field is dropped since it lives in the document path.
func EncodeDocument(v interface{}) (map[string]interface{}, error) {
	b, err := codec.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "marshalling document")
	}
	var data map[string]interface{}
	if err := codec.Unmarshal(b, &data); err != nil {
		return nil, errors.Wrap(err, "unmarshalling document")
	}
	delete(data, "id")
	fixTimes(data)
	return data, nil
}

// DecodeDocument fills v from the document data and ID.
func DecodeDocument(doc Document, v interface{}) error {
	data := make(map[string]interface{}, len(doc.Data)+1)
	for k, val := range doc.Data {
		data[k] = val
	}
	data["id"] = doc.ID

	b, err := codec.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "marshalling document data")
	}
	return errors.Wrap(codec.Unmarshal(b, v), "decoding document "+doc.Path())
}

// DecodeDocuments decodes docs into a slice of T.
func DecodeDocuments[T any](docs []Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var v T
		if err := doc.DataTo(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// NormalizeValue passes v through the document codec, eg. to compare a filter value with stored data.
func NormalizeValue(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	b, err := codec.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "marshalling value")
	}
	var out interface{}
	if err := codec.Unmarshal(b, &out); err != nil {
		return nil, errors.Wrap(err, "unmarshalling value")
	}
	return fixTimes(out), nil
}

// NormalizeData passes backend-native data (eg. int64, bson types) through the document codec.
func NormalizeData(data map[string]interface{}) (map[string]interface{}, error) {
	b, err := codec.Marshal(data)
	if err != nil {
		return nil, errors.Wrap(err, "marshalling data")
	}
	var out map[string]interface{}
	if err := codec.Unmarshal(b, &out); err != nil {
		return nil, errors.Wrap(err, "unmarshalling data")
	}
	fixTimes(out)
	return out, nil
}
