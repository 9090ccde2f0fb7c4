package export

import (
	"fmt"
	"io"

	"github.com/segmentio/parquet-go"

	"github.com/specmatch/specmatch/internal/batch"
)

// parquetCell is the flat row shape for parquet report dumps.
type parquetCell struct {
	Query     string  `parquet:"query"`
	Candidate string  `parquet:"candidate"`
	Forward   float64 `parquet:"forward"`
	Reverse   float64 `parquet:"reverse"`
	SelfMatch bool    `parquet:"self_match"`
	Failed    bool    `parquet:"failed"`
	Error     string  `parquet:"error"`
	Metric    string  `parquet:"metric"`
	ConfigKey string  `parquet:"config_key"`
}

// WriteParquetReport writes every report cell as one parquet row, for
// downstream analysis tooling.
func WriteParquetReport(w io.Writer, report *batch.Report) error {
	pw := parquet.NewWriter(w)

	for _, query := range report.Queries {
		for _, cand := range report.Candidates {
			cell, ok := report.Cell(query, cand)
			if !ok {
				continue
			}
			row := parquetCell{
				Query:     cell.Query,
				Candidate: cell.Candidate,
				Forward:   cell.Forward,
				Reverse:   cell.Reverse,
				SelfMatch: cell.SelfMatch,
				Failed:    cell.Failed,
				Error:     cell.Err,
				Metric:    string(report.Metric),
				ConfigKey: report.ConfigKey,
			}
			if err := pw.Write(row); err != nil {
				return fmt.Errorf("failed to write parquet row: %w", err)
			}
		}
	}

	if err := pw.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}
