package saver_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/common"
	"github.com/xitongsys/parquet-go/reader"

	"github.com/qxlabai/datapipe/pkg/dataset"
	"github.com/qxlabai/datapipe/pkg/saver"
)

func sampleDataset() *dataset.Dataset {
	return dataset.New(
		[]string{"text", "n", "score", "ok", "meta"},
		[]dataset.Record{
			{"text": "alpha", "n": 1, "score": 0.5, "ok": true, "meta": map[string]any{"lang": "en"}},
			{"text": "beta", "n": 2, "score": 1.25, "ok": false, "meta": map[string]any{"lang": "de"}},
			{"text": nil, "n": 3, "score": 2.0, "ok": true, "meta": nil},
		},
	)
}

func TestSaveJSONLines(t *testing.T) {
	dir := t.TempDir()
	path, err := saver.Save(context.Background(), sampleDataset(), &saver.Config{
		Directory: dir,
		Filename:  "out",
		Filetype:  saver.TypeJSON,
	})
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "out.json"); path != want {
		t.Fatalf("path = %q, want %q", path, want)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}

	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatal(err)
	}
	if first["text"] != "alpha" || first["n"] != float64(1) || first["ok"] != true {
		t.Fatalf("first line = %#v", first)
	}
	meta, ok := first["meta"].(map[string]any)
	if !ok || meta["lang"] != "en" {
		t.Fatalf("meta = %#v", first["meta"])
	}

	var last map[string]any
	if err := json.Unmarshal([]byte(lines[2]), &last); err != nil {
		t.Fatal(err)
	}
	if last["text"] != nil {
		t.Fatalf("null cell = %#v, want nil", last["text"])
	}

	// Keys follow the dataset column order, not alphabetical order.
	ti := strings.Index(lines[0], `"text"`)
	ni := strings.Index(lines[0], `"n"`)
	si := strings.Index(lines[0], `"score"`)
	if !(ti < ni && ni < si) {
		t.Fatalf("key order wrong in %s", lines[0])
	}
}

func TestSaveCSV(t *testing.T) {
	dir := t.TempDir()
	path, err := saver.Save(context.Background(), sampleDataset(), &saver.Config{
		Directory: dir,
		Filename:  "table",
		Filetype:  saver.TypeCSV,
	})
	if err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 {
		t.Fatalf("got %d rows, want header + 3", len(rows))
	}

	header := strings.Join(rows[0], ",")
	if header != "text,n,score,ok,meta" {
		t.Fatalf("header = %q", header)
	}
	want := []string{"alpha", "1", "0.5", "true", `{"lang":"en"}`}
	for i, cell := range want {
		if rows[1][i] != cell {
			t.Fatalf("row 1 col %d = %q, want %q", i, rows[1][i], cell)
		}
	}
	if rows[3][0] != "" || rows[3][4] != "" {
		t.Fatalf("nil cells = %q, %q, want empty", rows[3][0], rows[3][4])
	}
}

func TestSaveParquet(t *testing.T) {
	dir := t.TempDir()
	path, err := saver.Save(context.Background(), sampleDataset(), &saver.Config{
		Directory: dir,
		Filename:  "data",
		Filetype:  saver.TypeParquet,
	})
	if err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(raw, []byte("PAR1")) || !bytes.HasSuffix(raw, []byte("PAR1")) {
		t.Fatal("missing parquet magic bytes")
	}

	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer fr.Close()
	pr, err := reader.NewParquetColumnReader(fr, 4)
	if err != nil {
		t.Fatal(err)
	}
	defer pr.ReadStop()
	if n := pr.GetNumRows(); n != 3 {
		t.Fatalf("rows = %d, want 3", n)
	}

	texts, _, dls, err := pr.ReadColumnByPath(common.ReformPathStr("parquet_go_root.text"), 3)
	if err != nil {
		t.Fatal(err)
	}
	if texts[0] != "alpha" || texts[1] != "beta" {
		t.Fatalf("texts = %#v", texts)
	}
	if len(dls) != 3 || dls[0] != 1 || dls[1] != 1 || dls[2] != 0 {
		t.Fatalf("definition levels = %v", dls)
	}

	ns, _, _, err := pr.ReadColumnByPath(common.ReformPathStr("parquet_go_root.n"), 3)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range ns {
		if v.(int64) != int64(i+1) {
			t.Fatalf("n[%d] = %v", i, v)
		}
	}

	scores, _, _, err := pr.ReadColumnByPath(common.ReformPathStr("parquet_go_root.score"), 3)
	if err != nil {
		t.Fatal(err)
	}
	if scores[0].(float64) != 0.5 || scores[1].(float64) != 1.25 {
		t.Fatalf("scores = %#v", scores)
	}

	metas, _, _, err := pr.ReadColumnByPath(common.ReformPathStr("parquet_go_root.meta"), 3)
	if err != nil {
		t.Fatal(err)
	}
	if metas[0] != `{"lang":"en"}` {
		t.Fatalf("meta[0] = %#v", metas[0])
	}
}

func TestSaveDefaultFilename(t *testing.T) {
	dir := t.TempDir()
	path, err := saver.Save(context.Background(), sampleDataset(), &saver.Config{Directory: dir})
	if err != nil {
		t.Fatal(err)
	}
	base := filepath.Base(path)
	if !regexp.MustCompile(`^dataset_\d{20}\.parquet$`).MatchString(base) {
		t.Fatalf("filename = %q", base)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatal(err)
	}
}

func TestSaveFilenameSuffix(t *testing.T) {
	cases := []struct {
		name     string
		filename string
		filetype string
		want     string
	}{
		{"keeps matching suffix", "corpus.json", "json", "corpus.json"},
		{"appends to foreign suffix", "corpus.txt", "json", "corpus.txt.json"},
		{"appends when missing", "corpus", "csv", "corpus.csv"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			path, err := saver.Save(context.Background(), sampleDataset(), &saver.Config{
				Directory: dir,
				Filename:  tc.filename,
				Filetype:  tc.filetype,
			})
			if err != nil {
				t.Fatal(err)
			}
			if base := filepath.Base(path); base != tc.want {
				t.Fatalf("filename = %q, want %q", base, tc.want)
			}
			if _, err := os.Stat(path); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestSaveInvalidFiletypeDefaultsParquet(t *testing.T) {
	dir := t.TempDir()
	path, err := saver.Save(context.Background(), sampleDataset(), &saver.Config{
		Directory: dir,
		Filename:  "d",
		Filetype:  "xml",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(path, "d.parquet") {
		t.Fatalf("path = %q", path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(raw, []byte("PAR1")) {
		t.Fatal("not a parquet file")
	}
}

func TestSaveEmptyDataset(t *testing.T) {
	dir := t.TempDir()
	path, err := saver.Save(context.Background(), sampleDataset().Empty(), &saver.Config{
		Directory: dir,
		Filename:  "none",
		Filetype:  saver.TypeJSON,
	})
	if err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) != 0 {
		t.Fatalf("empty dataset wrote %d bytes", len(raw))
	}
}
