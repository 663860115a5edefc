package saver

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"

	writerfile "github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/qxlabai/datapipe/pkg/dataset"
)

// kind is the parquet column class inferred from cell values.
type kind int

const (
	kindString kind = iota
	kindInt
	kindDouble
	kindBool
	kindJSON // nested values, stored as JSON text
)

// classify maps a cell value onto a column kind.
func classify(v any) kind {
	switch v.(type) {
	case string:
		return kindString
	case bool:
		return kindBool
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return kindInt
	case float32, float64:
		return kindDouble
	}
	return kindJSON
}

// columnKinds infers one kind per column from the first non-nil cell.
// All-null columns degrade to strings.
func columnKinds(ds *dataset.Dataset, cols []string) []kind {
	kinds := make([]kind, len(cols))
	for i, col := range cols {
		kinds[i] = kindString
		for _, cell := range ds.Column(col) {
			if cell == nil {
				continue
			}
			kinds[i] = classify(cell)
			break
		}
	}
	return kinds
}

// jsonCell renders a nested value as JSON text. Ordered maps keep their
// key order.
func jsonCell(v any) (string, error) {
	b, err := dataset.MarshalValue(v)
	if err != nil {
		return "", fmt.Errorf("encode cell: %w", err)
	}
	return string(b), nil
}

// parquetSchema builds the JSON schema string for the parquet writer.
func parquetSchema(cols []string, kinds []kind) (string, error) {
	type field struct {
		Tag string `json:"Tag"`
	}
	fields := make([]field, len(cols))
	for i, col := range cols {
		var typ string
		switch kinds[i] {
		case kindInt:
			typ = "type=INT64"
		case kindDouble:
			typ = "type=DOUBLE"
		case kindBool:
			typ = "type=BOOLEAN"
		default:
			typ = "type=BYTE_ARRAY, convertedtype=UTF8"
		}
		fields[i] = field{Tag: fmt.Sprintf("name=%s, %s, repetitiontype=OPTIONAL", col, typ)}
	}
	root := struct {
		Tag    string  `json:"Tag"`
		Fields []field `json:"Fields"`
	}{
		Tag:    "name=parquet_go_root, repetitiontype=REQUIRED",
		Fields: fields,
	}
	b, err := json.Marshal(root)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// parquetCell coerces a cell into the physical type its column was
// inferred as.
func parquetCell(v any, k kind) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch k {
	case kindString:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return jsonCell(v)
	case kindInt:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int8:
			return int64(n), nil
		case int16:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case int64:
			return n, nil
		case uint:
			return int64(n), nil
		case uint8:
			return int64(n), nil
		case uint16:
			return int64(n), nil
		case uint32:
			return int64(n), nil
		case uint64:
			return int64(n), nil
		case float32:
			return int64(n), nil
		case float64:
			return int64(n), nil
		}
		return nil, fmt.Errorf("cell %v (%T) in integer column", v, v)
	case kindDouble:
		switch n := v.(type) {
		case float32:
			return float64(n), nil
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		case int32:
			return float64(n), nil
		case int64:
			return float64(n), nil
		}
		return nil, fmt.Errorf("cell %v (%T) in double column", v, v)
	case kindBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
		return nil, fmt.Errorf("cell %v (%T) in boolean column", v, v)
	}
	return jsonCell(v)
}

// writeParquet writes ds as a SNAPPY-compressed parquet file.
func writeParquet(w io.Writer, ds *dataset.Dataset) error {
	cols := ds.Columns()
	kinds := columnKinds(ds, cols)
	schema, err := parquetSchema(cols, kinds)
	if err != nil {
		return err
	}

	pf := writerfile.NewWriterFile(w)
	pw, err := writer.NewJSONWriter(schema, pf, 4)
	if err != nil {
		return err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, rec := range ds.Records() {
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			cell, err := parquetCell(rec[col], kinds[i])
			if err != nil {
				return fmt.Errorf("column %q: %w", col, err)
			}
			row[col] = cell
		}
		// JSONWriter consumes rows as JSON text, not Go maps.
		line, err := json.Marshal(row)
		if err != nil {
			return err
		}
		if err := pw.Write(string(line)); err != nil {
			return err
		}
	}
	return pw.WriteStop()
}

// writeCSV writes ds with a header row. Nested values become JSON text.
func writeCSV(w io.Writer, ds *dataset.Dataset) error {
	cols := ds.Columns()
	cw := csv.NewWriter(w)
	if err := cw.Write(cols); err != nil {
		return err
	}
	row := make([]string, len(cols))
	for _, rec := range ds.Records() {
		for i, col := range cols {
			switch v := rec[col].(type) {
			case nil:
				row[i] = ""
			case string:
				row[i] = v
			case bool, int, int8, int16, int32, int64,
				uint, uint8, uint16, uint32, uint64, float32, float64:
				row[i] = fmt.Sprint(v)
			default:
				cell, err := jsonCell(v)
				if err != nil {
					return fmt.Errorf("column %q: %w", col, err)
				}
				row[i] = cell
			}
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// writeJSONLines writes one JSON object per row, keeping column order.
func writeJSONLines(w io.Writer, ds *dataset.Dataset) error {
	cols := ds.Columns()
	for _, rec := range ds.Records() {
		line := make([]byte, 0, 128)
		line = append(line, '{')
		for i, col := range cols {
			if i > 0 {
				line = append(line, ',')
			}
			key, err := json.Marshal(col)
			if err != nil {
				return err
			}
			val, err := dataset.MarshalValue(rec[col])
			if err != nil {
				return fmt.Errorf("column %q: %w", col, err)
			}
			line = append(line, key...)
			line = append(line, ':')
			line = append(line, val...)
		}
		line = append(line, '}', '\n')
		if _, err := w.Write(line); err != nil {
			return err
		}
	}
	return nil
}
