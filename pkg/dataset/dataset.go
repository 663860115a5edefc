// Package dataset provides the in-memory record table the pipeline
// operates on: ordered columns over rows of loosely typed values, with
// copy-on-write transforms so stages never mutate their input.
//
// Values inside a record are plain Go types as produced by the loaders:
// strings, numbers, bools, nil, []any, and ordered [yaml.MapSlice] objects
// for nested JSON, which keep the document key order that conversation
// inference depends on.
package dataset

import (
	"fmt"
	"math/rand/v2"
	"reflect"
	"slices"
	"sort"
)

// Record is one row, keyed by column name.
type Record = map[string]any

// Dataset is an immutable ordered-column table. All transforming methods
// return a new Dataset sharing no row maps with the receiver.
type Dataset struct {
	cols []string
	rows []Record
}

// New builds a Dataset with an explicit column order. Records may omit
// columns; missing cells read as nil. Record keys not listed in columns
// are appended in sorted order so the column set always covers the data.
func New(columns []string, rows []Record) *Dataset {
	cols := slices.Clone(columns)
	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		seen[c] = true
	}
	var extra []string
	for _, r := range rows {
		for k := range r {
			if !seen[k] {
				seen[k] = true
				extra = append(extra, k)
			}
		}
	}
	sort.Strings(extra)
	return &Dataset{cols: append(cols, extra...), rows: rows}
}

// FromRecords builds a Dataset with lexicographically ordered columns.
// Prefer [New] when the source defines a column order.
func FromRecords(rows []Record) *Dataset {
	return New(nil, rows)
}

// Columns returns the column names in order.
func (d *Dataset) Columns() []string { return slices.Clone(d.cols) }

// HasColumn reports whether the named column exists.
func (d *Dataset) HasColumn(name string) bool { return slices.Contains(d.cols, name) }

// Len returns the number of rows.
func (d *Dataset) Len() int { return len(d.rows) }

// Records returns the backing rows. Callers must treat them as read-only.
func (d *Dataset) Records() []Record { return d.rows }

// Row returns the i-th row. Callers must treat it as read-only.
func (d *Dataset) Row(i int) Record { return d.rows[i] }

// Column returns the named column's values in row order.
func (d *Dataset) Column(name string) []any {
	out := make([]any, len(d.rows))
	for i, r := range d.rows {
		out[i] = r[name]
	}
	return out
}

// Sample returns one random row, or nil for an empty dataset. Format
// detection probes a sampled row rather than assuming the first row is
// representative.
func (d *Dataset) Sample() Record {
	if len(d.rows) == 0 {
		return nil
	}
	return d.rows[rand.IntN(len(d.rows))]
}

// Map applies fn to every row and merges the returned columns into a copy
// of it. Returned columns overwrite existing cells; columns not yet in the
// dataset are appended in sorted order. A nil return leaves the row as the
// copy. The first error aborts the whole Map.
func (d *Dataset) Map(fn func(Record) (map[string]any, error)) (*Dataset, error) {
	rows := make([]Record, len(d.rows))
	newCols := make(map[string]bool)
	for i, r := range d.rows {
		cp := make(Record, len(r))
		for k, v := range r {
			cp[k] = v
		}
		out, err := fn(cp)
		if err != nil {
			return nil, fmt.Errorf("dataset: map row %d: %w", i, err)
		}
		for k, v := range out {
			cp[k] = v
			if !slices.Contains(d.cols, k) {
				newCols[k] = true
			}
		}
		rows[i] = cp
	}
	cols := slices.Clone(d.cols)
	extra := make([]string, 0, len(newCols))
	for k := range newCols {
		extra = append(extra, k)
	}
	sort.Strings(extra)
	return &Dataset{cols: append(cols, extra...), rows: rows}, nil
}

// Select keeps only the listed columns, in the listed order.
func (d *Dataset) Select(columns []string) (*Dataset, error) {
	for _, c := range columns {
		if !d.HasColumn(c) {
			return nil, fmt.Errorf("dataset: select: unknown column %q", c)
		}
	}
	rows := make([]Record, len(d.rows))
	for i, r := range d.rows {
		cp := make(Record, len(columns))
		for _, c := range columns {
			if v, ok := r[c]; ok {
				cp[c] = v
			}
		}
		rows[i] = cp
	}
	return &Dataset{cols: slices.Clone(columns), rows: rows}, nil
}

// Remove drops the listed columns.
func (d *Dataset) Remove(columns []string) (*Dataset, error) {
	drop := make(map[string]bool, len(columns))
	for _, c := range columns {
		if !d.HasColumn(c) {
			return nil, fmt.Errorf("dataset: remove: unknown column %q", c)
		}
		drop[c] = true
	}
	keep := make([]string, 0, len(d.cols))
	for _, c := range d.cols {
		if !drop[c] {
			keep = append(keep, c)
		}
	}
	return d.Select(keep)
}

// Rename renames a column in place in the column order.
func (d *Dataset) Rename(from, to string) (*Dataset, error) {
	if !d.HasColumn(from) {
		return nil, fmt.Errorf("dataset: rename: unknown column %q", from)
	}
	if from == to {
		return d, nil
	}
	if d.HasColumn(to) {
		return nil, fmt.Errorf("dataset: rename: column %q already exists", to)
	}
	cols := slices.Clone(d.cols)
	cols[slices.Index(cols, from)] = to
	rows := make([]Record, len(d.rows))
	for i, r := range d.rows {
		cp := make(Record, len(r))
		for k, v := range r {
			if k == from {
				cp[to] = v
			} else {
				cp[k] = v
			}
		}
		rows[i] = cp
	}
	return &Dataset{cols: cols, rows: rows}, nil
}

// Take returns the first n rows (all rows when n exceeds the length).
func (d *Dataset) Take(n int) *Dataset {
	if n < 0 {
		n = 0
	}
	if n > len(d.rows) {
		n = len(d.rows)
	}
	return &Dataset{cols: slices.Clone(d.cols), rows: d.rows[:n]}
}

// FilterRows returns the rows at the given indices, in the given order.
func (d *Dataset) FilterRows(indices []int) (*Dataset, error) {
	rows := make([]Record, len(indices))
	for i, idx := range indices {
		if idx < 0 || idx >= len(d.rows) {
			return nil, fmt.Errorf("dataset: filter: row %d out of range", idx)
		}
		rows[i] = d.rows[idx]
	}
	return &Dataset{cols: slices.Clone(d.cols), rows: rows}, nil
}

// Empty returns a zero-row dataset with the same columns.
func (d *Dataset) Empty() *Dataset {
	return &Dataset{cols: slices.Clone(d.cols)}
}

// Equal reports deep equality of columns, order, and rows.
func (d *Dataset) Equal(other *Dataset) bool {
	if d == nil || other == nil {
		return d == other
	}
	return reflect.DeepEqual(d.cols, other.cols) && reflect.DeepEqual(d.rows, other.rows)
}
