// Package ingest loads spectral library files into an index and the backing
// store, in batches, isolating per-record failures.
package ingest

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"

	"github.com/specmatch/specmatch/internal/library"
	"github.com/specmatch/specmatch/internal/spectrum"
	"github.com/specmatch/specmatch/internal/store"
)

// Pipeline loads spectra from library files into the index and store.
type Pipeline struct {
	index  *library.Index
	store  *store.Store // optional, may be nil
	config *Config
	logger *zap.Logger
}

// NewPipeline creates a new ingest pipeline. The store is optional.
func NewPipeline(index *library.Index, st *store.Store, config *Config, logger *zap.Logger) *Pipeline {
	if config.BatchSize <= 0 {
		config.BatchSize = 500
	}
	if config.ProgressReport <= 0 {
		config.ProgressReport = 1000
	}
	return &Pipeline{index: index, store: st, config: config, logger: logger}
}

// ProcessFile loads a spectral library file (MSP, CSV, JSON or Parquet).
func (p *Pipeline) ProcessFile(ctx context.Context, filePath string) (*Result, error) {
	start := time.Now()
	result := &Result{}

	format := DetectFileFormat(filePath)
	p.logger.Info("Starting ingest",
		zap.String("file", filePath),
		zap.String("format", string(format)),
		zap.Int("batch_size", p.config.BatchSize))

	var err error
	switch format {
	case FormatMSP:
		err = p.processMSP(ctx, filePath, result)
	case FormatCSV:
		err = p.processCSV(ctx, filePath, result)
	case FormatJSON:
		err = p.processJSON(ctx, filePath, result)
	case FormatParquet:
		err = p.processParquet(ctx, filePath, result)
	default:
		err = fmt.Errorf("unsupported file format: %s", format)
	}
	if err != nil {
		return result, err
	}

	result.Duration = time.Since(start)
	p.logger.Info("Ingest completed",
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("loaded", result.Loaded),
		zap.Int64("failed", result.Failed),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// processBatches drains the reader function batch by batch until it returns
// an empty batch, checking for cancellation at each boundary.
func (p *Pipeline) processBatches(ctx context.Context, readBatch func() ([]*spectrum.Spectrum, error), result *Result) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		batch, err := readBatch()
		if err != nil {
			return fmt.Errorf("failed to read batch: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		if err := p.loadBatch(ctx, batch, result); err != nil {
			return err
		}

		if result.TotalRecords%int64(p.config.ProgressReport) == 0 {
			p.logger.Info("Ingest progress",
				zap.Int64("total_records", result.TotalRecords),
				zap.Int64("loaded", result.Loaded),
				zap.Int64("failed", result.Failed))
		}
	}
	return nil
}

// loadBatch inserts one batch into the index and, if configured, the store.
func (p *Pipeline) loadBatch(ctx context.Context, batch []*spectrum.Spectrum, result *Result) error {
	loaded := make([]*spectrum.Spectrum, 0, len(batch))
	for _, spec := range batch {
		result.TotalRecords++

		var err error
		if p.config.Replace {
			err = p.index.InsertReplace(ctx, spec)
		} else {
			err = p.index.Insert(spec)
		}
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, err.Error())
			p.logger.Warn("Skipping spectrum",
				zap.String("spectrum_id", spec.ID()),
				zap.Error(err))
			continue
		}

		result.Loaded++
		loaded = append(loaded, spec)
	}

	if p.store != nil && len(loaded) > 0 {
		if err := p.store.SaveLibrary(ctx, loaded); err != nil {
			return fmt.Errorf("persisting batch: %w", err)
		}
	}
	return nil
}

// recordSpectrum converts one flat record into a Spectrum.
func recordSpectrum(rec *SpectrumRecord) (*spectrum.Spectrum, error) {
	if rec.ID == "" {
		return nil, fmt.Errorf("record missing id")
	}

	var peaks []spectrum.Peak
	for _, pair := range strings.Split(rec.Peaks, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		m, i, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("record %q: malformed peak %q", rec.ID, pair)
		}
		mass, err := strconv.ParseFloat(m, 64)
		if err != nil {
			return nil, fmt.Errorf("record %q: invalid mass %q: %w", rec.ID, m, err)
		}
		intensity, err := strconv.ParseFloat(i, 64)
		if err != nil {
			return nil, fmt.Errorf("record %q: invalid intensity %q: %w", rec.ID, i, err)
		}
		peaks = append(peaks, spectrum.Peak{Mass: mass, Intensity: intensity})
	}

	return spectrum.New(rec.ID, peaks, spectrum.Metadata{
		Name:          rec.Name,
		Source:        rec.Source,
		RetentionTime: rec.RetentionTime,
		Area:          rec.Area,
	})
}

// processMSP streams an MSP spectral library.
func (p *Pipeline) processMSP(ctx context.Context, filePath string, result *Result) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open MSP file: %w", err)
	}
	defer file.Close()

	reader := NewMSPReader(file)

	return p.processBatches(ctx, func() ([]*spectrum.Spectrum, error) {
		var batch []*spectrum.Spectrum
		for len(batch) < p.config.BatchSize && reader.Next() {
			batch = append(batch, reader.Spectrum())
		}
		if err := reader.Err(); err != nil {
			return nil, err
		}
		return batch, nil
	}, result)
}

// processCSV reads flat CSV records with a header row.
func (p *Pipeline) processCSV(ctx context.Context, filePath string, result *Result) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("failed to read CSV header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := col["id"]; !ok {
		return fmt.Errorf("CSV header missing id column")
	}

	field := func(row []string, name string) string {
		if i, ok := col[name]; ok && i < len(row) {
			return row[i]
		}
		return ""
	}

	return p.processBatches(ctx, func() ([]*spectrum.Spectrum, error) {
		var batch []*spectrum.Spectrum
		for len(batch) < p.config.BatchSize {
			row, err := reader.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				p.logger.Warn("Failed to read CSV record", zap.Error(err))
				result.TotalRecords++
				result.Failed++
				continue
			}

			rec := &SpectrumRecord{
				ID:     field(row, "id"),
				Name:   field(row, "name"),
				Source: field(row, "source"),
				Peaks:  field(row, "peaks"),
			}
			rec.RetentionTime, _ = strconv.ParseFloat(field(row, "retention_time"), 64)
			rec.Area, _ = strconv.ParseFloat(field(row, "area"), 64)

			spec, err := recordSpectrum(rec)
			if err != nil {
				p.logger.Warn("Invalid CSV record", zap.Error(err))
				result.TotalRecords++
				result.Failed++
				continue
			}
			batch = append(batch, spec)
		}
		return batch, nil
	}, result)
}

// processJSON reads one JSON record per document in a stream.
func (p *Pipeline) processJSON(ctx context.Context, filePath string, result *Result) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open JSON file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)

	return p.processBatches(ctx, func() ([]*spectrum.Spectrum, error) {
		var batch []*spectrum.Spectrum
		for len(batch) < p.config.BatchSize {
			var rec SpectrumRecord
			err := decoder.Decode(&rec)
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("failed to decode JSON record: %w", err)
			}

			spec, err := recordSpectrum(&rec)
			if err != nil {
				p.logger.Warn("Invalid JSON record", zap.Error(err))
				result.TotalRecords++
				result.Failed++
				continue
			}
			batch = append(batch, spec)
		}
		return batch, nil
	}, result)
}

// processParquet reads flat parquet records.
func (p *Pipeline) processParquet(ctx context.Context, filePath string, result *Result) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open Parquet file: %w", err)
	}
	defer file.Close()

	reader := parquet.NewReader(file)
	defer reader.Close()

	return p.processBatches(ctx, func() ([]*spectrum.Spectrum, error) {
		var batch []*spectrum.Spectrum
		for len(batch) < p.config.BatchSize {
			var rec SpectrumRecord
			err := reader.Read(&rec)
			if err == io.EOF {
				break
			}
			if err != nil {
				p.logger.Warn("Failed to read Parquet record", zap.Error(err))
				result.TotalRecords++
				result.Failed++
				continue
			}

			spec, err := recordSpectrum(&rec)
			if err != nil {
				p.logger.Warn("Invalid Parquet record", zap.Error(err))
				result.TotalRecords++
				result.Failed++
				continue
			}
			batch = append(batch, spec)
		}
		return batch, nil
	}, result)
}
