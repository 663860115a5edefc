package dataset

import "sort"

// Dict maps split names to datasets.
type Dict map[string]*Dataset

// Names returns the split names in sorted order so iteration over a Dict
// is deterministic.
func (d Dict) Names() []string {
	names := make([]string, 0, len(d))
	for name := range d {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Merge copies other's splits into d, overwriting name collisions.
func (d Dict) Merge(other Dict) {
	for name, ds := range other {
		d[name] = ds
	}
}
