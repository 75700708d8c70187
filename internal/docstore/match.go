package docstore

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

type document map[string]any

func decodeDocument(raw json.RawMessage) (document, error) {
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// normalize round-trips v through JSON so it compares equal to decoded fields.
func normalize(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

func (d document) matches(filters []Filter) bool {
	for _, f := range filters {
		if !d.match(f) {
			return false
		}
	}
	return true
}

func (d document) match(f Filter) bool {
	val, ok := d[f.Field]
	switch f.Op {
	case OpEq:
		// A nil value matches an explicit JSON null only, as containment does.
		if !ok {
			return false
		}
		return reflect.DeepEqual(val, normalize(f.Value))
	case OpArrayContains:
		items, isList := val.([]any)
		if !isList {
			return false
		}
		want := normalize(f.Value)
		for _, item := range items {
			if reflect.DeepEqual(item, want) {
				return true
			}
		}
		return false
	case OpPrefix:
		s, isString := val.(string)
		prefix, _ := f.Value.(string)
		return isString && strings.HasPrefix(s, prefix)
	default:
		return false
	}
}

func validateQuery(q Query) error {
	if q.Collection == "" {
		return fmt.Errorf("docstore: query without collection")
	}
	for _, f := range q.Filters {
		switch f.Op {
		case OpEq, OpArrayContains:
		case OpPrefix:
			if _, ok := f.Value.(string); !ok {
				return fmt.Errorf("docstore: prefix filter on %q needs a string", f.Field)
			}
		default:
			return fmt.Errorf("docstore: unsupported operator %q", f.Op)
		}
	}
	return nil
}

// orderRecords sorts records by q.OrderBy and applies q.Limit. Both drivers
// share it so ordering is identical everywhere.
func orderRecords(records []Record, q Query) ([]Record, error) {
	type keyed struct {
		rec Record
		key any
	}
	items := make([]keyed, 0, len(records))
	for _, rec := range records {
		var key any
		if q.OrderBy != "" {
			doc, err := decodeDocument(rec.Data)
			if err != nil {
				return nil, err
			}
			key = sortKey(doc[q.OrderBy])
		}
		items = append(items, keyed{rec: rec, key: key})
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if q.OrderBy != "" {
			if cmp := compareKeys(a.key, b.key); cmp != 0 {
				if a.key == nil || b.key == nil {
					return a.key != nil
				}
				if q.Descending {
					return cmp > 0
				}
				return cmp < 0
			}
		}
		if !a.rec.CreateTime.Equal(b.rec.CreateTime) {
			if q.Descending {
				return a.rec.CreateTime.After(b.rec.CreateTime)
			}
			return a.rec.CreateTime.Before(b.rec.CreateTime)
		}
		return a.rec.ID < b.rec.ID
	})

	out := make([]Record, 0, len(items))
	for _, it := range items {
		out = append(out, it.rec)
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func sortKey(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		if t, err := time.Parse(time.RFC3339Nano, val); err == nil {
			return t
		}
		return val
	case float64, bool:
		return val
	default:
		return fmt.Sprint(val)
	}
}

// compareKeys orders nil after everything else.
func compareKeys(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	switch av := a.(type) {
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv)
		}
	case float64:
		if bv, ok := b.(float64); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0
			case !av:
				return -1
			}
			return 1
		}
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv)
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
