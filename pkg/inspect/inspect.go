// Package inspect runs SQL over exported event tables. DuckDB reads the
// per-rank CSVs in place, so a multi-gigabyte export never has to be
// loaded into Go memory.
package inspect

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/meltflow/meltflow/pkg/errors"
)

// Summary aggregates an event export across all ranks.
type Summary struct {
	Events int64

	// Melt pool bounding box.
	MinX, MaxX float64
	MinY, MaxY float64
	MinZ, MaxZ float64

	// Solidification window.
	FirstSolidified float64
	LastSolidified  float64

	// Cooling rate statistics.
	MeanCoolingRate float64
	MaxCoolingRate  float64
}

// open creates an in-memory DuckDB with an events view over the export.
// Only the six columns shared by both CSV formats are exposed.
func open(dir string) (*sql.DB, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeBackendConnect, "cannot open DuckDB")
	}

	pattern := filepath.Join(dir, "data_*.csv")
	view := fmt.Sprintf(`
		CREATE VIEW events AS
		SELECT
			column0 AS x,
			column1 AS y,
			column2 AS z,
			column3 AS melt_time,
			column4 AS solid_time,
			column5 AS cooling_rate
		FROM read_csv_auto('%s', header=false)
	`, pattern)
	if _, err := db.Exec(view); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.CodeExportFailed, "cannot read event export").
			WithContext("dir", dir)
	}
	return db, nil
}

// Summarize computes the standard summary over an export directory.
func Summarize(ctx context.Context, dir string) (*Summary, error) {
	db, err := open(dir)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var s Summary
	row := db.QueryRowContext(ctx, `
		SELECT
			count(*),
			coalesce(min(x), 0), coalesce(max(x), 0),
			coalesce(min(y), 0), coalesce(max(y), 0),
			coalesce(min(z), 0), coalesce(max(z), 0),
			coalesce(min(solid_time), 0), coalesce(max(solid_time), 0),
			coalesce(avg(cooling_rate), 0), coalesce(max(cooling_rate), 0)
		FROM events
	`)
	if err := row.Scan(
		&s.Events,
		&s.MinX, &s.MaxX,
		&s.MinY, &s.MaxY,
		&s.MinZ, &s.MaxZ,
		&s.FirstSolidified, &s.LastSolidified,
		&s.MeanCoolingRate, &s.MaxCoolingRate,
	); err != nil {
		return nil, errors.Wrap(err, errors.CodeExportFailed, "summary query failed").
			WithContext("dir", dir)
	}
	return &s, nil
}

// Query runs a free-form SQL statement against the events view and
// returns the column names and stringified rows.
func Query(ctx context.Context, dir, query string) ([]string, [][]string, error) {
	db, err := open(dir)
	if err != nil {
		return nil, nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.CodeExportFailed, "query failed").
			WithContext("query", query)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.CodeExportFailed, "cannot read result columns")
	}

	var out [][]string
	for rows.Next() {
		raw := make([]any, len(cols))
		for i := range raw {
			raw[i] = new(sql.NullString)
		}
		if err := rows.Scan(raw...); err != nil {
			return nil, nil, errors.Wrap(err, errors.CodeExportFailed, "cannot scan result row")
		}
		record := make([]string, len(cols))
		for i, v := range raw {
			ns := v.(*sql.NullString)
			if ns.Valid {
				record[i] = ns.String
			} else {
				record[i] = "NULL"
			}
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, errors.Wrap(err, errors.CodeExportFailed, "query iteration failed")
	}
	return cols, out, nil
}
