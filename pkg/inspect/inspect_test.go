package inspect

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeExport(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"data_0.csv": "0.0010000000,0.0020000000,0.0005000000,0.0001000000,0.0003000000,2000000.0000000000\n" +
			"0.0012000000,0.0020000000,0.0005000000,0.0001500000,0.0004000000,1000000.0000000000\n",
		"data_1.csv": "0.0030000000,0.0021000000,0.0006000000,0.0002000000,0.0005000000,3000000.0000000000\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func TestSummarize(t *testing.T) {
	dir := writeExport(t)
	s, err := Summarize(context.Background(), dir)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}

	if s.Events != 3 {
		t.Errorf("Events = %d, want 3", s.Events)
	}
	if s.MinX != 0.001 || s.MaxX != 0.003 {
		t.Errorf("x bounds = [%v, %v], want [0.001, 0.003]", s.MinX, s.MaxX)
	}
	if s.FirstSolidified != 0.0003 || s.LastSolidified != 0.0005 {
		t.Errorf("solidification window = [%v, %v], want [0.0003, 0.0005]",
			s.FirstSolidified, s.LastSolidified)
	}
	if s.MeanCoolingRate != 2e6 {
		t.Errorf("MeanCoolingRate = %v, want 2e6", s.MeanCoolingRate)
	}
	if s.MaxCoolingRate != 3e6 {
		t.Errorf("MaxCoolingRate = %v, want 3e6", s.MaxCoolingRate)
	}
}

func TestQuery(t *testing.T) {
	dir := writeExport(t)
	cols, rows, err := Query(context.Background(), dir,
		"SELECT count(*) AS n FROM events WHERE cooling_rate >= 2000000")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(cols) != 1 || cols[0] != "n" {
		t.Errorf("columns = %v, want [n]", cols)
	}
	if len(rows) != 1 || rows[0][0] != "2" {
		t.Errorf("rows = %v, want [[2]]", rows)
	}
}
