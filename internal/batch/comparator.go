// Package batch drives bulk comparison workflows: every spectrum of one
// collection scored against every spectrum of another, with per-pair
// failures isolated so one bad spectrum cannot abort a library comparison.
package batch

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/specmatch/specmatch/internal/binning"
	"github.com/specmatch/specmatch/internal/similarity"
	"github.com/specmatch/specmatch/internal/spectrum"
)

// Config contains batch comparator settings.
type Config struct {
	// Workers is the number of goroutines comparing queries in parallel.
	// Each query writes a disjoint row of the report, so the fan-out is
	// safe without shared state.
	Workers int
	// OnProgress, if set, is called after each completed query row with
	// (completed, total) counts.
	OnProgress func(completed, total int)
}

// Comparator orchestrates many pairwise comparisons.
type Comparator struct {
	scorer *similarity.Scorer
	config Config
	logger *zap.Logger
}

// NewComparator creates a Comparator. Workers below 1 run sequentially.
func NewComparator(scorer *similarity.Scorer, config Config, logger *zap.Logger) *Comparator {
	if config.Workers < 1 {
		config.Workers = 1
	}
	return &Comparator{scorer: scorer, config: config, logger: logger}
}

// CompareAll scores every spectrum of setA (as query) against every
// spectrum of setB (as candidate) and assembles the full m by n result
// table. Self comparisons are flagged, never dropped. A failing pair is
// recorded inline and the rest of the batch proceeds. The context is
// checked between pairwise computations, so a long batch can be cancelled
// cooperatively. Cells are keyed by spectrum identifier, so the ids in
// each set must be unique; a repeated id overwrites its earlier row or
// column.
func (c *Comparator) CompareAll(ctx context.Context, setA, setB []*spectrum.Spectrum, cfg binning.Config) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()

	report := &Report{
		Queries:    ids(setA),
		Candidates: ids(setB),
		Metric:     c.scorer.Metric(),
		ConfigKey:  cfg.Key(),
		Cells:      make(map[string]map[string]Cell, len(setA)),
	}

	// Candidates are shared across queries; bin them once up front.
	candVecs := make(map[string]*binning.Vector, len(setB))
	candErrs := make(map[string]string, len(setB))
	for _, s := range setB {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		vec, err := binning.Bin(s, cfg)
		if err != nil {
			candErrs[s.ID()] = err.Error()
			continue
		}
		candVecs[s.ID()] = vec
	}

	rows := make([]map[string]Cell, len(setA))

	jobs := make(chan int)
	var wg sync.WaitGroup

	var done int
	var doneMu sync.Mutex
	reportProgress := func() {
		if c.config.OnProgress == nil {
			return
		}
		doneMu.Lock()
		done++
		n := done
		doneMu.Unlock()
		c.config.OnProgress(n, len(setA))
	}

	for w := 0; w < c.config.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				rows[i] = c.compareRow(ctx, setA[i], setB, candVecs, candErrs, cfg)
				reportProgress()
			}
		}()
	}

feed:
	for i := range setA {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, q := range setA {
		report.Cells[q.ID()] = rows[i]
	}

	c.logger.Info("Batch comparison completed",
		zap.Int("queries", len(setA)),
		zap.Int("candidates", len(setB)),
		zap.Int("failed_cells", report.FailedCount()),
		zap.String("metric", string(c.scorer.Metric())),
		zap.Duration("duration", time.Since(start)))

	return report, nil
}

// compareRow computes one query's row of the table.
func (c *Comparator) compareRow(ctx context.Context, query *spectrum.Spectrum, setB []*spectrum.Spectrum, candVecs map[string]*binning.Vector, candErrs map[string]string, cfg binning.Config) map[string]Cell {
	row := make(map[string]Cell, len(setB))

	queryVec, queryErr := binning.Bin(query, cfg)

	for _, cand := range setB {
		select {
		case <-ctx.Done():
			return row
		default:
		}

		cell := Cell{
			Query:     query.ID(),
			Candidate: cand.ID(),
			SelfMatch: query.ID() == cand.ID(),
		}

		switch {
		case queryErr != nil:
			cell.Failed = true
			cell.Err = queryErr.Error()
		case candErrs[cand.ID()] != "":
			cell.Failed = true
			cell.Err = candErrs[cand.ID()]
		default:
			fwd, err := c.scorer.Score(queryVec, candVecs[cand.ID()])
			if err != nil {
				cell.Failed = true
				cell.Err = err.Error()
				break
			}
			rev, err := c.scorer.ReverseScore(queryVec, candVecs[cand.ID()])
			if err != nil {
				cell.Failed = true
				cell.Err = err.Error()
				break
			}
			cell.Forward = fwd.Value
			cell.Reverse = rev.Value
		}

		row[cand.ID()] = cell
	}

	return row
}

func ids(set []*spectrum.Spectrum) []string {
	out := make([]string, len(set))
	for i, s := range set {
		out[i] = s.ID()
	}
	sort.Strings(out)
	return out
}
