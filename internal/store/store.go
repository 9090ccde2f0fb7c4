// Package store persists spectrum libraries and comparison reports in an
// embedded sqlite database.
package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/specmatch/specmatch/internal/batch"
	"github.com/specmatch/specmatch/internal/similarity"
	"github.com/specmatch/specmatch/internal/spectrum"
)

// Store handles library persistence
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// Config contains database configuration
type Config struct {
	Path         string        `yaml:"path" mapstructure:"path"`
	MaxOpenConns int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	BusyTimeout  time.Duration `yaml:"busy_timeout" mapstructure:"busy_timeout"`
}

const schema = `
CREATE TABLE IF NOT EXISTS spectra (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL DEFAULT '',
	source         TEXT NOT NULL DEFAULT '',
	retention_time REAL NOT NULL DEFAULT 0,
	scan_index     INTEGER NOT NULL DEFAULT 0,
	area           REAL NOT NULL DEFAULT 0,
	match_factor   REAL NOT NULL DEFAULT 0,
	peaks          TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS report_cells (
	query_id     TEXT NOT NULL,
	candidate_id TEXT NOT NULL,
	forward      REAL NOT NULL DEFAULT 0,
	reverse      REAL NOT NULL DEFAULT 0,
	self_match   INTEGER NOT NULL DEFAULT 0,
	failed       INTEGER NOT NULL DEFAULT 0,
	error        TEXT NOT NULL DEFAULT '',
	metric       TEXT NOT NULL DEFAULT '',
	config_key   TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (query_id, candidate_id)
);`

// NewStore opens (creating if necessary) the library database.
func NewStore(config *Config, logger *zap.Logger) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d", config.Path, config.BusyTimeout.Milliseconds())
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open library database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	store := &Store{db: db, logger: logger}

	if err := store.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	logger.Info("Library store opened", zap.String("path", config.Path))
	return store, nil
}

// initialize checks the connection and creates the schema.
func (s *Store) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

type spectrumRow struct {
	ID            string  `db:"id"`
	Name          string  `db:"name"`
	Source        string  `db:"source"`
	RetentionTime float64 `db:"retention_time"`
	ScanIndex     int     `db:"scan_index"`
	Area          float64 `db:"area"`
	MatchFactor   float64 `db:"match_factor"`
	Peaks         string  `db:"peaks"`
}

func rowFor(s *spectrum.Spectrum) spectrumRow {
	meta := s.Meta()
	return spectrumRow{
		ID:            s.ID(),
		Name:          meta.Name,
		Source:        meta.Source,
		RetentionTime: meta.RetentionTime,
		ScanIndex:     meta.ScanIndex,
		Area:          meta.Area,
		MatchFactor:   meta.MatchFactor,
		Peaks:         formatPeaks(s.Peaks()),
	}
}

func (r spectrumRow) spectrum() (*spectrum.Spectrum, error) {
	peaks, err := parsePeaks(r.Peaks)
	if err != nil {
		return nil, fmt.Errorf("spectrum %q: %w", r.ID, err)
	}
	return spectrum.New(r.ID, peaks, spectrum.Metadata{
		Name:          r.Name,
		Source:        r.Source,
		RetentionTime: r.RetentionTime,
		ScanIndex:     r.ScanIndex,
		Area:          r.Area,
		MatchFactor:   r.MatchFactor,
	})
}

// SaveSpectrum inserts or replaces one spectrum.
func (s *Store) SaveSpectrum(ctx context.Context, spec *spectrum.Spectrum) error {
	query := `
		INSERT OR REPLACE INTO spectra (id, name, source, retention_time, scan_index, area, match_factor, peaks)
		VALUES (:id, :name, :source, :retention_time, :scan_index, :area, :match_factor, :peaks)`

	if _, err := s.db.NamedExecContext(ctx, query, rowFor(spec)); err != nil {
		s.logger.Error("Failed to save spectrum",
			zap.Error(err),
			zap.String("spectrum_id", spec.ID()))
		return fmt.Errorf("failed to save spectrum: %w", err)
	}
	return nil
}

// SaveLibrary saves many spectra in one transaction.
func (s *Store) SaveLibrary(ctx context.Context, specs []*spectrum.Spectrum) error {
	if len(specs) == 0 {
		return nil
	}

	start := time.Now()
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT OR REPLACE INTO spectra (id, name, source, retention_time, scan_index, area, match_factor, peaks)
		VALUES (:id, :name, :source, :retention_time, :scan_index, :area, :match_factor, :peaks)`

	for _, spec := range specs {
		if _, err := tx.NamedExecContext(ctx, query, rowFor(spec)); err != nil {
			return fmt.Errorf("failed to save spectrum %q: %w", spec.ID(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit library: %w", err)
	}

	s.logger.Info("Library saved",
		zap.Int("spectra", len(specs)),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// LoadLibrary loads every stored spectrum, ordered by identifier.
func (s *Store) LoadLibrary(ctx context.Context) ([]*spectrum.Spectrum, error) {
	var rows []spectrumRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT * FROM spectra ORDER BY id"); err != nil {
		return nil, fmt.Errorf("failed to load library: %w", err)
	}

	specs := make([]*spectrum.Spectrum, 0, len(rows))
	for _, r := range rows {
		spec, err := r.spectrum()
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// Count returns the number of stored spectra.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM spectra"); err != nil {
		return 0, fmt.Errorf("failed to count spectra: %w", err)
	}
	return n, nil
}

// SaveReport persists every cell of a batch report, replacing any prior
// cells for the same query/candidate pairs.
func (s *Store) SaveReport(ctx context.Context, report *batch.Report) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT OR REPLACE INTO report_cells (query_id, candidate_id, forward, reverse, self_match, failed, error, metric, config_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	for _, row := range report.Cells {
		for _, cell := range row {
			_, err := tx.ExecContext(ctx, query,
				cell.Query, cell.Candidate, cell.Forward, cell.Reverse,
				cell.SelfMatch, cell.Failed, cell.Err,
				string(report.Metric), report.ConfigKey)
			if err != nil {
				return fmt.Errorf("failed to save report cell %s/%s: %w", cell.Query, cell.Candidate, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit report: %w", err)
	}

	s.logger.Info("Report saved", zap.Int("cells", report.Size()))
	return nil
}

type cellRow struct {
	QueryID     string  `db:"query_id"`
	CandidateID string  `db:"candidate_id"`
	Forward     float64 `db:"forward"`
	Reverse     float64 `db:"reverse"`
	SelfMatch   bool    `db:"self_match"`
	Failed      bool    `db:"failed"`
	Error       string  `db:"error"`
	Metric      string  `db:"metric"`
	ConfigKey   string  `db:"config_key"`
}

// LoadReport reconstructs the stored report table.
func (s *Store) LoadReport(ctx context.Context) (*batch.Report, error) {
	var rows []cellRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT * FROM report_cells ORDER BY query_id, candidate_id"); err != nil {
		return nil, fmt.Errorf("failed to load report: %w", err)
	}

	report := &batch.Report{Cells: make(map[string]map[string]batch.Cell)}
	queries := make(map[string]bool)
	candidates := make(map[string]bool)

	for _, r := range rows {
		if report.Metric == "" {
			report.Metric = similarity.Metric(r.Metric)
			report.ConfigKey = r.ConfigKey
		}
		if report.Cells[r.QueryID] == nil {
			report.Cells[r.QueryID] = make(map[string]batch.Cell)
		}
		report.Cells[r.QueryID][r.CandidateID] = batch.Cell{
			Query:     r.QueryID,
			Candidate: r.CandidateID,
			Forward:   r.Forward,
			Reverse:   r.Reverse,
			SelfMatch: r.SelfMatch,
			Failed:    r.Failed,
			Err:       r.Error,
		}
		if !queries[r.QueryID] {
			queries[r.QueryID] = true
			report.Queries = append(report.Queries, r.QueryID)
		}
		if !candidates[r.CandidateID] {
			candidates[r.CandidateID] = true
			report.Candidates = append(report.Candidates, r.CandidateID)
		}
	}

	return report, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Helper functions

// formatPeaks serializes peaks as "mass:intensity,..." pairs.
func formatPeaks(peaks []spectrum.Peak) string {
	if len(peaks) == 0 {
		return ""
	}
	parts := make([]string, len(peaks))
	for i, p := range peaks {
		parts[i] = fmt.Sprintf("%g:%g", p.Mass, p.Intensity)
	}
	return strings.Join(parts, ",")
}

// parsePeaks converts the serialized form back to a peak slice.
func parsePeaks(encoded string) ([]spectrum.Peak, error) {
	if encoded == "" {
		return nil, nil
	}

	parts := strings.Split(encoded, ",")
	peaks := make([]spectrum.Peak, 0, len(parts))
	for _, part := range parts {
		mi := strings.SplitN(part, ":", 2)
		if len(mi) != 2 {
			return nil, fmt.Errorf("malformed peak %q", part)
		}
		mass, err := strconv.ParseFloat(mi[0], 64)
		if err != nil {
			return nil, fmt.Errorf("malformed peak mass %q: %w", mi[0], err)
		}
		intensity, err := strconv.ParseFloat(mi[1], 64)
		if err != nil {
			return nil, fmt.Errorf("malformed peak intensity %q: %w", mi[1], err)
		}
		peaks = append(peaks, spectrum.Peak{Mass: mass, Intensity: intensity})
	}
	return peaks, nil
}
