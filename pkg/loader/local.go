package loader

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/common"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"

	"github.com/qxlabai/datapipe/pkg/dataset"
)

// LocalFileConfig describes one dataset file on disk.
type LocalFileConfig struct {
	// Path to a csv, json (object array or JSON lines) or parquet file.
	Path string `json:"path" yaml:"path"`
	// TakeRows truncates the dataset to the first n rows.
	TakeRows int `json:"take_rows,omitempty" yaml:"take_rows,omitempty"`
}

// loadLocalFile reads one file. The split is named after the file base
// name.
func loadLocalFile(cfg LocalFileConfig) (string, *dataset.Dataset, error) {
	var (
		ds  *dataset.Dataset
		err error
	)
	switch ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(cfg.Path), ".")); ext {
	case "csv":
		ds, err = readCSVFile(cfg.Path)
	case "json", "jsonl":
		ds, err = readJSONFile(cfg.Path)
	case "parquet":
		ds, err = readParquetFile(cfg.Path)
	default:
		return "", nil, fmt.Errorf("unsupported filetype %q (want csv, json or parquet)", ext)
	}
	if err != nil {
		return "", nil, err
	}
	if cfg.TakeRows > 0 {
		ds = ds.Take(cfg.TakeRows)
	}
	return filepath.Base(cfg.Path), ds, nil
}

func readCSVFile(path string) (*dataset.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(rows) == 0 {
		return dataset.New(nil, nil), nil
	}
	cols := rows[0]
	records := make([]dataset.Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := make(dataset.Record, len(cols))
		for i, col := range cols {
			if i < len(row) {
				rec[col] = csvCell(row[i])
			}
		}
		records = append(records, rec)
	}
	return dataset.New(cols, records), nil
}

// csvCell restores the cell types a csv file flattens away.
func csvCell(s string) any {
	if s == "" {
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	switch s {
	case "true", "True":
		return true
	case "false", "False":
		return false
	}
	return structuredCell(s)
}

// structuredCell decodes a cell holding a JSON array or object back into
// ordered values, so embedded conversations survive a trip through the
// flat file formats. Anything else stays a string.
func structuredCell(s string) any {
	t := strings.TrimSpace(s)
	if len(t) == 0 || (t[0] != '[' && t[0] != '{') || !json.Valid([]byte(t)) {
		return s
	}
	v, err := dataset.DecodeValue([]byte(t))
	if err != nil {
		return s
	}
	return v
}

// readJSONFile reads either a top level array of objects or JSON lines.
func readJSONFile(path string) (*dataset.Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return dataset.New(nil, nil), nil
	}

	var rows []dataset.Record
	if trimmed[0] == '[' {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		if err := dec.Decode(&rows); err != nil {
			return nil, fmt.Errorf("read json array: %w", err)
		}
	} else {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		for {
			var rec dataset.Record
			if err := dec.Decode(&rec); err == io.EOF {
				break
			} else if err != nil {
				return nil, fmt.Errorf("read json lines: %w", err)
			}
			rows = append(rows, rec)
		}
	}
	for i := range rows {
		rows[i] = normalizeNumbers(rows[i]).(dataset.Record)
	}

	first, err := firstObjectKeys(trimmed)
	if err != nil {
		return nil, fmt.Errorf("scan columns: %w", err)
	}
	return dataset.New(unionColumns(first, rows), rows), nil
}

// firstObjectKeys returns the keys of the first JSON object in the
// input, in order of appearance. Maps lose that order on decode.
func firstObjectKeys(data []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		if d, ok := tok.(json.Delim); ok && d == '{' {
			break
		}
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		keys = append(keys, key)
		if err := skipValue(dec); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

func skipValue(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	d, ok := tok.(json.Delim)
	if !ok || (d != '{' && d != '[') {
		return nil
	}
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	return nil
}

// unionColumns keeps the ordered keys first and appends any further
// keys found across rows in sorted order.
func unionColumns(ordered []string, rows []dataset.Record) []string {
	seen := make(map[string]bool, len(ordered))
	cols := make([]string, 0, len(ordered))
	for _, c := range ordered {
		if !seen[c] {
			seen[c] = true
			cols = append(cols, c)
		}
	}
	var extra []string
	for _, rec := range rows {
		for k := range rec {
			if !seen[k] {
				seen[k] = true
				extra = append(extra, k)
			}
		}
	}
	sort.Strings(extra)
	return append(cols, extra...)
}

// normalizeNumbers rewrites json.Number cells into int64 or float64.
func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if n, err := strconv.ParseInt(string(t), 10, 64); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return string(t)
	case map[string]any:
		for k, val := range t {
			t[k] = normalizeNumbers(val)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = normalizeNumbers(val)
		}
		return t
	}
	return v
}

// readParquetFile reads a flat parquet file column by column.
func readParquetFile(path string) (*dataset.Dataset, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, err
	}
	defer fr.Close()

	pr, err := reader.NewParquetColumnReader(fr, 4)
	if err != nil {
		return nil, fmt.Errorf("open parquet: %w", err)
	}
	defer pr.ReadStop()

	elems := pr.SchemaHandler.SchemaElements
	if len(elems) == 0 {
		return dataset.New(nil, nil), nil
	}
	root := elems[0]
	fields := elems[1:]
	if int(root.GetNumChildren()) < len(fields) {
		return nil, fmt.Errorf("nested parquet schemas are not supported")
	}

	num := pr.GetNumRows()
	records := make([]dataset.Record, num)
	for i := range records {
		records[i] = make(dataset.Record, len(fields))
	}

	cols := make([]string, 0, len(fields))
	for idx, el := range fields {
		// The reader renames schema elements to Go-style in-names; the
		// file's original column name is the ExName.
		name := pr.SchemaHandler.Infos[idx+1].ExName
		cols = append(cols, name)
		if num == 0 {
			continue
		}
		if el.GetRepetitionType() == parquet.FieldRepetitionType_REPEATED {
			return nil, fmt.Errorf("repeated parquet column %q not supported", name)
		}
		var maxDL int32
		if el.GetRepetitionType() == parquet.FieldRepetitionType_OPTIONAL {
			maxDL = 1
		}
		vals, _, dls, err := pr.ReadColumnByPath(common.ReformPathStr(root.GetName()+"."+el.GetName()), num)
		if err != nil {
			return nil, fmt.Errorf("read column %q: %w", name, err)
		}
		for i, cell := range assembleColumn(vals, dls, maxDL) {
			if s, ok := cell.(string); ok {
				cell = structuredCell(s)
			}
			records[i][name] = cell
		}
	}
	return dataset.New(cols, records), nil
}

// assembleColumn lines column values up with one slot per row,
// restoring nulls from the definition levels.
func assembleColumn(vals []any, dls []int32, maxDL int32) []any {
	if len(dls) == 0 {
		return vals
	}
	out := make([]any, len(dls))
	if len(vals) == len(dls) {
		for i, dl := range dls {
			if dl >= maxDL {
				out[i] = vals[i]
			}
		}
		return out
	}
	vi := 0
	for i, dl := range dls {
		if dl >= maxDL && vi < len(vals) {
			out[i] = vals[vi]
			vi++
		}
	}
	return out
}
