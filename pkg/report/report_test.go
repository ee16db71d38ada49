package report

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/meltflow/meltflow/pkg/solidify"
)

func writeExport(t *testing.T, rows map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range rows {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func TestLoadEventsBothFormats(t *testing.T) {
	dir := writeExport(t, map[string]string{
		"data_0.csv": "0.001,0.002,0.0005,0.0001,0.0003,2000000.0,1000.0,2000.0,3000.0\n",
		"data_1.csv": "0.003,0.002,0.0005,0.0002,0.0005,1000000.0\n",
	})

	events, err := LoadEvents(dir)
	if err != nil {
		t.Fatalf("LoadEvents() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if events[0].GradX != 1000.0 {
		t.Errorf("GradX = %v, want 1000", events[0].GradX)
	}
	if events[1].GradX != 0 {
		t.Errorf("exaca GradX = %v, want 0", events[1].GradX)
	}
}

func TestLoadEventsMissingDir(t *testing.T) {
	if _, err := LoadEvents(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("LoadEvents() on empty dir succeeded, want error")
	}
}

func TestComputeStats(t *testing.T) {
	events := []solidify.Event{
		{X: 1, Y: 2, Z: 3, SolidTime: 0.1, CoolingRate: 1e6},
		{X: 2, Y: 1, Z: 4, SolidTime: 0.3, CoolingRate: 3e6},
	}
	s := Compute(events)

	if s.Events != 2 {
		t.Errorf("Events = %d, want 2", s.Events)
	}
	if s.MeanCoolingRate != 2e6 {
		t.Errorf("MeanCoolingRate = %v, want 2e6", s.MeanCoolingRate)
	}
	if math.Abs(s.MeanSolidTime-0.2) > 1e-12 {
		t.Errorf("MeanSolidTime = %v, want 0.2", s.MeanSolidTime)
	}
	if s.Lower != [3]float64{1, 1, 3} {
		t.Errorf("Lower = %v, want [1 1 3]", s.Lower)
	}
	if s.Upper != [3]float64{2, 2, 4} {
		t.Errorf("Upper = %v, want [2 2 4]", s.Upper)
	}
	if s.Percentiles[0.5] < 1e6 || s.Percentiles[0.5] > 3e6 {
		t.Errorf("median = %v, want within [1e6, 3e6]", s.Percentiles[0.5])
	}
}

func TestComputeEmpty(t *testing.T) {
	s := Compute(nil)
	if s.Events != 0 {
		t.Errorf("Events = %d, want 0", s.Events)
	}
}

func TestGenerateWorkbook(t *testing.T) {
	dir := writeExport(t, map[string]string{
		"data_0.csv": "0.001,0.002,0.0005,0.0001,0.0003,2000000.0,1000.0,2000.0,3000.0\n" +
			"0.002,0.002,0.0005,0.0002,0.0004,1500000.0,500.0,100.0,200.0\n",
	})
	out := filepath.Join(t.TempDir(), "report.xlsx")

	stats, err := Generate(dir, out)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if stats.Events != 2 {
		t.Errorf("Events = %d, want 2", stats.Events)
	}

	wb, err := excelize.OpenFile(out)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer wb.Close()

	for _, sheet := range []string{"Summary", "Events"} {
		if idx, err := wb.GetSheetIndex(sheet); err != nil || idx < 0 {
			t.Errorf("sheet %q missing (idx %d, err %v)", sheet, idx, err)
		}
	}
	cell, err := wb.GetCellValue("Events", "A2")
	if err != nil || cell == "" {
		t.Errorf("Events!A2 = %q (err %v), want a value", cell, err)
	}
}
