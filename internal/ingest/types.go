package ingest

import (
	"strings"
	"time"
)

// SpectrumRecord is the flat record shape shared by the CSV, JSON and
// parquet readers. Peaks holds "mass:intensity" pairs separated by
// semicolons in the flat formats.
type SpectrumRecord struct {
	ID            string  `csv:"id" parquet:"id" json:"id"`
	Name          string  `csv:"name" parquet:"name" json:"name"`
	Source        string  `csv:"source" parquet:"source" json:"source"`
	RetentionTime float64 `csv:"retention_time" parquet:"retention_time" json:"retention_time"`
	Area          float64 `csv:"area" parquet:"area" json:"area"`
	Peaks         string  `csv:"peaks" parquet:"peaks" json:"peaks"`
}

// Config contains ingest pipeline settings
type Config struct {
	BatchSize      int  `yaml:"batch_size" mapstructure:"batch_size"`
	ProgressReport int  `yaml:"progress_report" mapstructure:"progress_report"`
	Replace        bool `yaml:"replace" mapstructure:"replace"`
}

// Result summarizes one ingest run
type Result struct {
	TotalRecords int64         `json:"total_records"`
	Loaded       int64         `json:"loaded"`
	Failed       int64         `json:"failed"`
	Duration     time.Duration `json:"duration"`
	Errors       []string      `json:"errors,omitempty"`
}

// FileFormat represents supported file formats
type FileFormat string

const (
	FormatMSP     FileFormat = "msp"
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSON    FileFormat = "json"
)

// DetectFileFormat detects file format from extension
func DetectFileFormat(filename string) FileFormat {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".msp"):
		return FormatMSP
	case strings.HasSuffix(lower, ".csv"):
		return FormatCSV
	case strings.HasSuffix(lower, ".parquet"):
		return FormatParquet
	case strings.HasSuffix(lower, ".json") || strings.HasSuffix(lower, ".jsonl"):
		return FormatJSON
	default:
		return FormatMSP // spectral libraries ship as MSP by default
	}
}
