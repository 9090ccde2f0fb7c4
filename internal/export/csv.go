// Package export renders batch reports and spectra for the external
// viewer/reporting layer: CSV score tables, JSON spectra documents and
// parquet report dumps.
package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/specmatch/specmatch/internal/batch"
)

// WriteCSVReport writes the report as a score table: one row per query,
// one forward/reverse column pair per candidate. Failed cells render as
// empty score fields; their reasons go to WriteCSVFailures.
func WriteCSVReport(w io.Writer, report *batch.Report) error {
	cw := csv.NewWriter(w)

	// Two header rows, candidate names over forward/reverse column pairs.
	top := []string{""}
	sub := []string{"query"}
	for _, cand := range report.Candidates {
		top = append(top, cand, "")
		sub = append(sub, "forward", "reverse")
	}
	if err := cw.Write(top); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	if err := cw.Write(sub); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, query := range report.Queries {
		row := []string{query}
		for _, cand := range report.Candidates {
			cell, ok := report.Cell(query, cand)
			if !ok || cell.Failed {
				row = append(row, "", "")
				continue
			}
			row = append(row,
				fmt.Sprintf("%.4f", cell.Forward),
				fmt.Sprintf("%.4f", cell.Reverse))
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteCSVFailures writes one row per failed cell with its error reason,
// the companion to WriteCSVReport for auditing partial results.
func WriteCSVFailures(w io.Writer, report *batch.Report) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"query", "candidate", "error"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, query := range report.Queries {
		for _, cand := range report.Candidates {
			cell, ok := report.Cell(query, cand)
			if !ok || !cell.Failed {
				continue
			}
			if err := cw.Write([]string{query, cand, cell.Err}); err != nil {
				return fmt.Errorf("failed to write CSV row: %w", err)
			}
		}
	}

	cw.Flush()
	return cw.Error()
}
