// Package report builds an XLSX workbook from an event export: one sheet
// of summary statistics, one of cooling rate percentiles, and the raw
// events capped to a browsable size.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/xuri/excelize/v2"
	"gonum.org/v1/gonum/stat"

	"github.com/meltflow/meltflow/pkg/errors"
	"github.com/meltflow/meltflow/pkg/solidify"
)

// maxRawRows caps the raw event sheet; spreadsheets past this are
// unusable anyway and the full data stays in the CSV export.
const maxRawRows = 10000

// Stats summarizes the event population.
type Stats struct {
	Events int

	MeanCoolingRate   float64
	StdDevCoolingRate float64
	Percentiles       map[float64]float64 // quantile -> cooling rate

	MeanSolidTime float64
	Lower, Upper  [3]float64
}

// LoadEvents reads every per-rank CSV in an export directory. Both CSV
// formats parse; gradients default to zero in the exaca layout.
func LoadEvents(dir string) ([]solidify.Event, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "data_*.csv"))
	if err != nil || len(paths) == 0 {
		return nil, errors.New(errors.CodeFileNotFound, "no event export found").
			WithContext("dir", dir)
	}
	sort.Strings(paths)

	var events []solidify.Event
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeFileNotFound, "cannot open event file").
				WithContext("path", path)
		}
		r := csv.NewReader(f)
		r.FieldsPerRecord = -1
		for {
			record, err := r.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				f.Close()
				return nil, errors.Wrap(err, errors.CodeExportFailed, "cannot parse event file").
					WithContext("path", path)
			}
			e, err := parseEvent(record)
			if err != nil {
				f.Close()
				return nil, errors.Wrap(err, errors.CodeExportFailed, "malformed event row").
					WithContext("path", path)
			}
			events = append(events, e)
		}
		f.Close()
	}
	return events, nil
}

func parseEvent(record []string) (solidify.Event, error) {
	var e solidify.Event
	if len(record) != 6 && len(record) != 9 {
		return e, fmt.Errorf("row has %d fields, want 6 or 9", len(record))
	}
	fields := make([]float64, len(record))
	for i, s := range record {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return e, err
		}
		fields[i] = v
	}
	e.X, e.Y, e.Z = fields[0], fields[1], fields[2]
	e.MeltTime, e.SolidTime, e.CoolingRate = fields[3], fields[4], fields[5]
	if len(fields) == 9 {
		e.GradX, e.GradY, e.GradZ = fields[6], fields[7], fields[8]
	}
	return e, nil
}

// Compute derives the summary statistics.
func Compute(events []solidify.Event) *Stats {
	s := &Stats{
		Events:      len(events),
		Percentiles: make(map[float64]float64),
		Lower:       [3]float64{math.Inf(1), math.Inf(1), math.Inf(1)},
		Upper:       [3]float64{math.Inf(-1), math.Inf(-1), math.Inf(-1)},
	}
	if len(events) == 0 {
		return s
	}

	rates := make([]float64, len(events))
	times := make([]float64, len(events))
	for i, e := range events {
		rates[i] = e.CoolingRate
		times[i] = e.SolidTime
		for d, v := range [3]float64{e.X, e.Y, e.Z} {
			s.Lower[d] = math.Min(s.Lower[d], v)
			s.Upper[d] = math.Max(s.Upper[d], v)
		}
	}

	s.MeanCoolingRate, s.StdDevCoolingRate = stat.MeanStdDev(rates, nil)
	if len(rates) == 1 {
		s.StdDevCoolingRate = 0
	}
	s.MeanSolidTime = stat.Mean(times, nil)

	sort.Float64s(rates)
	for _, q := range []float64{0.05, 0.25, 0.50, 0.75, 0.95} {
		s.Percentiles[q] = stat.Quantile(q, stat.Empirical, rates, nil)
	}
	return s
}

// Generate reads an export directory and writes the workbook.
func Generate(dir, outPath string) (*Stats, error) {
	events, err := LoadEvents(dir)
	if err != nil {
		return nil, err
	}
	stats := Compute(events)

	wb := excelize.NewFile()
	defer wb.Close()

	if err := writeSummarySheet(wb, stats); err != nil {
		return nil, err
	}
	if err := writeEventSheet(wb, events); err != nil {
		return nil, err
	}
	wb.DeleteSheet("Sheet1")

	if err := wb.SaveAs(outPath); err != nil {
		return nil, errors.Wrap(err, errors.CodeExportFailed, "cannot save workbook").
			WithContext("path", outPath)
	}
	return stats, nil
}

func writeSummarySheet(wb *excelize.File, s *Stats) error {
	const sheet = "Summary"
	if _, err := wb.NewSheet(sheet); err != nil {
		return errors.Wrap(err, errors.CodeExportFailed, "cannot create summary sheet")
	}

	rows := [][]any{
		{"Events", s.Events},
		{"Mean cooling rate (K/s)", s.MeanCoolingRate},
		{"Stddev cooling rate (K/s)", s.StdDevCoolingRate},
		{"Mean solidification time (s)", s.MeanSolidTime},
		{},
		{"Melt pool bounds", "min", "max"},
		{"x (m)", s.Lower[0], s.Upper[0]},
		{"y (m)", s.Lower[1], s.Upper[1]},
		{"z (m)", s.Lower[2], s.Upper[2]},
		{},
		{"Cooling rate percentiles", ""},
	}
	for _, q := range []float64{0.05, 0.25, 0.50, 0.75, 0.95} {
		rows = append(rows, []any{fmt.Sprintf("p%02.0f", q*100), s.Percentiles[q]})
	}

	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := wb.SetSheetRow(sheet, cell, &row); err != nil {
			return errors.Wrap(err, errors.CodeExportFailed, "cannot write summary row")
		}
	}
	return nil
}

func writeEventSheet(wb *excelize.File, events []solidify.Event) error {
	const sheet = "Events"
	if _, err := wb.NewSheet(sheet); err != nil {
		return errors.Wrap(err, errors.CodeExportFailed, "cannot create event sheet")
	}

	header := []any{"x", "y", "z", "melt_time", "solid_time", "cooling_rate", "grad_x", "grad_y", "grad_z"}
	if err := wb.SetSheetRow(sheet, "A1", &header); err != nil {
		return errors.Wrap(err, errors.CodeExportFailed, "cannot write event header")
	}

	n := len(events)
	if n > maxRawRows {
		n = maxRawRows
	}
	for i := 0; i < n; i++ {
		e := events[i]
		row := []any{e.X, e.Y, e.Z, e.MeltTime, e.SolidTime, e.CoolingRate, e.GradX, e.GradY, e.GradZ}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := wb.SetSheetRow(sheet, cell, &row); err != nil {
			return errors.Wrap(err, errors.CodeExportFailed, "cannot write event row")
		}
	}
	return nil
}
