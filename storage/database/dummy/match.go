package dummydb

import (
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/codexlms/codex/core"
)

func normalizeFilters(filters []core.Filter) ([]core.Filter, error) {
	out := make([]core.Filter, 0, len(filters))
	for _, f := range filters {
		v, err := core.NormalizeValue(f.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, core.Filter{Field: f.Field, Op: f.Op, Value: v})
	}
	return out, nil
}

// lookup resolves a dotted field path in data.
func lookup(data map[string]interface{}, field string) (interface{}, bool) {
	var cur interface{} = data
	for _, part := range strings.Split(field, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func matchAll(data map[string]interface{}, filters []core.Filter) bool {
	for _, f := range filters {
		if !match(data, f) {
			return false
		}
	}
	return true
}

// match applies a single filter; documents missing the field never match.
func match(data map[string]interface{}, f core.Filter) bool {
	val, ok := lookup(data, f.Field)
	if !ok {
		return false
	}
	switch f.Op {
	case core.OpEqual:
		return equal(val, f.Value)
	case core.OpNotEqual:
		return !equal(val, f.Value)
	case core.OpLess, core.OpLessOrEqual, core.OpGreater, core.OpGreaterOrEqual:
		c, ok := compare(val, f.Value)
		if !ok {
			return false
		}
		switch f.Op {
		case core.OpLess:
			return c < 0
		case core.OpLessOrEqual:
			return c <= 0
		case core.OpGreater:
			return c > 0
		default:
			return c >= 0
		}
	case core.OpIn:
		candidates, ok := f.Value.([]interface{})
		if !ok {
			return false
		}
		for _, c := range candidates {
			if equal(val, c) {
				return true
			}
		}
		return false
	case core.OpArrayContains:
		items, ok := val.([]interface{})
		if !ok {
			return false
		}
		for _, item := range items {
			if equal(item, f.Value) {
				return true
			}
		}
		return false
	}
	return false
}

func equal(a, b interface{}) bool {
	if c, ok := compare(a, b); ok {
		return c == 0
	}
	return reflect.DeepEqual(a, b)
}

// compare orders two scalar values of the same kind. RFC3339 strings are compared as times.
func compare(a, b interface{}) (int, bool) {
	switch av := a.(type) {
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		}
		return 0, true
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		if at, err := time.Parse(time.RFC3339Nano, av); err == nil {
			if bt, err := time.Parse(time.RFC3339Nano, bv); err == nil {
				return at.Compare(bt), true
			}
		}
		return strings.Compare(av, bv), true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case !av:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

// sortDocs sorts by the orderings then by path so that results are stable.
// Missing or incomparable values sort first.
func sortDocs(docs []core.Document, orderings []core.DBOrdering) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, ord := range orderings {
			vi, iok := lookup(docs[i].Data, ord.Field)
			vj, jok := lookup(docs[j].Data, ord.Field)
			var c int
			switch {
			case !iok && !jok:
				c = 0
			case !iok:
				c = -1
			case !jok:
				c = 1
			default:
				c, _ = compare(vi, vj)
			}
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return docs[i].Path() < docs[j].Path()
	})
}

func copyData(data map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v interface{}) interface{} {
	switch vv := v.(type) {
	case map[string]interface{}:
		return copyData(vv)
	case []interface{}:
		out := make([]interface{}, len(vv))
		for i, item := range vv {
			out[i] = copyValue(item)
		}
		return out
	}
	return v
}
