package loader

import (
	"fmt"
	"sort"

	"github.com/goccy/go-yaml"
	"github.com/itchyny/gojq"

	"github.com/qxlabai/datapipe/pkg/dataset"
)

// applyQuery runs a jq expression over every record. The first result
// replaces the record and must be an object. Keys already present keep
// their column position, new keys are appended in sorted order.
func applyQuery(query *gojq.Query, ds *dataset.Dataset) (*dataset.Dataset, error) {
	if ds.Len() == 0 {
		return ds, nil
	}

	rows := make([]dataset.Record, ds.Len())
	keys := make(map[string]bool)
	for i, rec := range ds.Records() {
		iter := query.Run(toJQ(rec))
		v, ok := iter.Next()
		if !ok {
			return nil, fmt.Errorf("row %d: no result", i)
		}
		if err, ok := v.(error); ok {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("row %d: result %T is not an object", i, v)
		}
		rows[i] = dataset.Record(obj)
		for k := range obj {
			keys[k] = true
		}
	}

	var cols []string
	for _, c := range ds.Columns() {
		if keys[c] {
			cols = append(cols, c)
			delete(keys, c)
		}
	}
	added := make([]string, 0, len(keys))
	for k := range keys {
		added = append(added, k)
	}
	sort.Strings(added)
	return dataset.New(append(cols, added...), rows), nil
}

// toJQ copies a cell into the plain JSON shapes gojq accepts. Ordered
// maps flatten to plain maps; jq has no key order anyway.
func toJQ(v any) any {
	switch t := v.(type) {
	case yaml.MapSlice:
		out := make(map[string]any, len(t))
		for _, item := range t {
			if k, ok := item.Key.(string); ok {
				out[k] = toJQ(item.Value)
			}
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = toJQ(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = toJQ(val)
		}
		return out
	case int64:
		return int(t)
	case int32:
		return int(t)
	case float32:
		return float64(t)
	}
	return v
}
