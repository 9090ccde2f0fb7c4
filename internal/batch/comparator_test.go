package batch

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/specmatch/specmatch/internal/binning"
	"github.com/specmatch/specmatch/internal/similarity"
	"github.com/specmatch/specmatch/internal/spectrum"
)

var testConfig = binning.Config{MassMin: 20, MassMax: 200, BinWidth: 1, Normalization: binning.NormL2}

func testComparator(t *testing.T, workers int) *Comparator {
	t.Helper()
	return NewComparator(similarity.NewScorer(similarity.MetricCosine), Config{Workers: workers}, zap.NewNop())
}

func mustSpectrum(t *testing.T, id string, peaks []spectrum.Peak) *spectrum.Spectrum {
	t.Helper()
	s, err := spectrum.New(id, peaks, spectrum.Metadata{})
	if err != nil {
		t.Fatalf("Failed to create spectrum %s: %v", id, err)
	}
	return s
}

func testSet(t *testing.T) []*spectrum.Spectrum {
	t.Helper()
	return []*spectrum.Spectrum{
		mustSpectrum(t, "hexane", []spectrum.Peak{{Mass: 41, Intensity: 50}, {Mass: 43, Intensity: 100}, {Mass: 57, Intensity: 90}}),
		mustSpectrum(t, "heptane", []spectrum.Peak{{Mass: 43, Intensity: 100}, {Mass: 57, Intensity: 80}, {Mass: 71, Intensity: 40}}),
		mustSpectrum(t, "toluene", []spectrum.Peak{{Mass: 65, Intensity: 12}, {Mass: 91, Intensity: 100}, {Mass: 92, Intensity: 70}}),
	}
}

// TestCompareAll tests the full comparison table
func TestCompareAll(t *testing.T) {
	ctx := context.Background()

	t.Run("FullTable", func(t *testing.T) {
		set := testSet(t)
		report, err := testComparator(t, 2).CompareAll(ctx, set, set, testConfig)
		if err != nil {
			t.Fatalf("CompareAll failed: %v", err)
		}
		if report.Size() != 9 {
			t.Errorf("Expected 9 cells, got %d", report.Size())
		}
		if len(report.Queries) != 3 || len(report.Candidates) != 3 {
			t.Errorf("Expected 3x3 axes, got %dx%d", len(report.Queries), len(report.Candidates))
		}
		if report.FailedCount() != 0 {
			t.Errorf("Expected no failures, got %d", report.FailedCount())
		}
		if report.ConfigKey != testConfig.Key() {
			t.Errorf("Unexpected config key %s", report.ConfigKey)
		}
	})

	t.Run("SelfMatchesFlagged", func(t *testing.T) {
		set := testSet(t)
		report, err := testComparator(t, 1).CompareAll(ctx, set, set, testConfig)
		if err != nil {
			t.Fatalf("CompareAll failed: %v", err)
		}
		for _, q := range report.Queries {
			for _, c := range report.Candidates {
				cell, ok := report.Cell(q, c)
				if !ok {
					t.Fatalf("Missing cell %s/%s", q, c)
				}
				if (q == c) != cell.SelfMatch {
					t.Errorf("Cell %s/%s self flag wrong", q, c)
				}
				if q == c && math.Abs(cell.Forward-1.0) > 1e-9 {
					t.Errorf("Self match %s should score 1.0, got %f", q, cell.Forward)
				}
			}
		}
	})

	t.Run("AsymmetricSets", func(t *testing.T) {
		set := testSet(t)
		report, err := testComparator(t, 4).CompareAll(ctx, set[:1], set, testConfig)
		if err != nil {
			t.Fatalf("CompareAll failed: %v", err)
		}
		if report.Size() != 3 {
			t.Errorf("Expected 1x3 = 3 cells, got %d", report.Size())
		}
	})

	t.Run("ReverseAtLeastForward", func(t *testing.T) {
		// Masking the query to the candidate's support removes
		// mismatching signal, so the reverse factor cannot be lower.
		set := testSet(t)
		report, err := testComparator(t, 1).CompareAll(ctx, set, set, testConfig)
		if err != nil {
			t.Fatalf("CompareAll failed: %v", err)
		}
		for _, q := range report.Queries {
			for _, c := range report.Candidates {
				cell, _ := report.Cell(q, c)
				if cell.Reverse < cell.Forward-1e-9 {
					t.Errorf("Cell %s/%s reverse %f below forward %f", q, c, cell.Reverse, cell.Forward)
				}
			}
		}
	})

	t.Run("EmptySpectrumScoresZero", func(t *testing.T) {
		set := testSet(t)
		withEmpty := append(set, mustSpectrum(t, "empty", nil))
		report, err := testComparator(t, 2).CompareAll(ctx, withEmpty, withEmpty, testConfig)
		if err != nil {
			t.Fatalf("CompareAll failed: %v", err)
		}
		cell, ok := report.Cell("hexane", "empty")
		if !ok {
			t.Fatal("Missing cell for empty candidate")
		}
		if cell.Failed {
			t.Error("Empty spectrum should score, not fail")
		}
		if cell.Forward != 0 {
			t.Errorf("Expected score 0 against empty spectrum, got %f", cell.Forward)
		}
	})

	t.Run("InvalidConfig", func(t *testing.T) {
		set := testSet(t)
		bad := testConfig
		bad.BinWidth = 0
		if _, err := testComparator(t, 1).CompareAll(ctx, set, set, bad); err == nil {
			t.Error("Expected error for invalid config")
		}
	})

	t.Run("Cancellation", func(t *testing.T) {
		set := testSet(t)
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := testComparator(t, 2).CompareAll(cancelled, set, set, testConfig)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	})

	t.Run("ProgressReported", func(t *testing.T) {
		set := testSet(t)
		var mu sync.Mutex
		var calls []int
		comparator := NewComparator(similarity.NewScorer(similarity.MetricCosine), Config{
			Workers: 2,
			OnProgress: func(completed, total int) {
				mu.Lock()
				calls = append(calls, completed)
				mu.Unlock()
				if total != len(set) {
					t.Errorf("Expected total %d, got %d", len(set), total)
				}
			},
		}, zap.NewNop())

		if _, err := comparator.CompareAll(ctx, set, set, testConfig); err != nil {
			t.Fatalf("CompareAll failed: %v", err)
		}
		mu.Lock()
		defer mu.Unlock()
		if len(calls) != len(set) {
			t.Errorf("Expected %d progress calls, got %d", len(set), len(calls))
		}
	})

	t.Run("DeterministicAcrossWorkerCounts", func(t *testing.T) {
		set := testSet(t)
		one, err := testComparator(t, 1).CompareAll(ctx, set, set, testConfig)
		if err != nil {
			t.Fatalf("CompareAll failed: %v", err)
		}
		many, err := testComparator(t, 8).CompareAll(ctx, set, set, testConfig)
		if err != nil {
			t.Fatalf("CompareAll failed: %v", err)
		}
		for _, q := range one.Queries {
			for _, c := range one.Candidates {
				a, _ := one.Cell(q, c)
				b, _ := many.Cell(q, c)
				if a.Forward != b.Forward || a.Reverse != b.Reverse {
					t.Errorf("Cell %s/%s differs across worker counts", q, c)
				}
			}
		}
	})
}

// TestReportTopK tests per-query ranking extraction
func TestReportTopK(t *testing.T) {
	ctx := context.Background()
	set := testSet(t)
	report, err := testComparator(t, 1).CompareAll(ctx, set, set, testConfig)
	if err != nil {
		t.Fatalf("CompareAll failed: %v", err)
	}

	t.Run("ExcludesSelfByDefault", func(t *testing.T) {
		rankings := report.TopK("hexane", 5, false)
		if len(rankings) != 2 {
			t.Fatalf("Expected 2 rankings, got %d", len(rankings))
		}
		for _, r := range rankings {
			if r.Candidate == "hexane" {
				t.Error("Self match not excluded")
			}
		}
		if rankings[0].Candidate != "heptane" {
			t.Errorf("Expected heptane first, got %s", rankings[0].Candidate)
		}
	})

	t.Run("IncludesSelfWhenAsked", func(t *testing.T) {
		rankings := report.TopK("hexane", 5, true)
		if len(rankings) != 3 {
			t.Fatalf("Expected 3 rankings, got %d", len(rankings))
		}
		if rankings[0].Candidate != "hexane" || !rankings[0].SelfMatch {
			t.Error("Self match should rank first when included")
		}
	})

	t.Run("Truncates", func(t *testing.T) {
		if got := len(report.TopK("hexane", 1, true)); got != 1 {
			t.Errorf("Expected 1 ranking, got %d", got)
		}
	})

	t.Run("UnknownQuery", func(t *testing.T) {
		if report.TopK("missing", 5, true) != nil {
			t.Error("Expected nil for unknown query")
		}
	})
}

// TestConfidence tests the reference-vs-unknown confidence metric
func TestConfidence(t *testing.T) {
	ctx := context.Background()
	comparator := testComparator(t, 1)

	peakSpectrum := func(id string, area float64, peaks []spectrum.Peak) *spectrum.Spectrum {
		s, err := spectrum.New(id, peaks, spectrum.Metadata{Area: area})
		if err != nil {
			t.Fatalf("Failed to create spectrum %s: %v", id, err)
		}
		return s
	}
	peaks := []spectrum.Peak{{Mass: 43, Intensity: 100}, {Mass: 57, Intensity: 60}}

	t.Run("PerfectMatch", func(t *testing.T) {
		pairs := []AlignedPair{
			{Reference: peakSpectrum("r1", 100, peaks), Unknown: peakSpectrum("u1", 100, peaks)},
			{Reference: peakSpectrum("r2", 50, peaks), Unknown: peakSpectrum("u2", 50, peaks)},
		}
		conf, err := comparator.Confidence(ctx, pairs, testConfig)
		if err != nil {
			t.Fatalf("Confidence failed: %v", err)
		}
		if math.Abs(conf-1.0) > 1e-9 {
			t.Errorf("Expected confidence 1.0, got %f", conf)
		}
	})

	t.Run("MissingUnknownPeakScoresZero", func(t *testing.T) {
		pairs := []AlignedPair{
			{Reference: peakSpectrum("r1", 100, peaks), Unknown: peakSpectrum("u1", 100, peaks)},
			{Reference: peakSpectrum("r2", 50, peaks), Unknown: nil},
		}
		conf, err := comparator.Confidence(ctx, pairs, testConfig)
		if err != nil {
			t.Fatalf("Confidence failed: %v", err)
		}
		if math.Abs(conf-0.5) > 1e-9 {
			t.Errorf("Expected confidence 0.5 with one missing peak, got %f", conf)
		}
	})

	t.Run("AreaDisagreementPenalized", func(t *testing.T) {
		// Both sides base-peak 100; the second pair's areas disagree by
		// 30 percentage points, costing 3 of its 10 points.
		pairs := []AlignedPair{
			{Reference: peakSpectrum("r1", 100, peaks), Unknown: peakSpectrum("u1", 100, peaks)},
			{Reference: peakSpectrum("r2", 80, peaks), Unknown: peakSpectrum("u2", 50, peaks)},
		}
		conf, err := comparator.Confidence(ctx, pairs, testConfig)
		if err != nil {
			t.Fatalf("Confidence failed: %v", err)
		}
		expected := (10.0 + 7.0) / 20.0
		if math.Abs(conf-expected) > 1e-9 {
			t.Errorf("Expected confidence %f, got %f", expected, conf)
		}
	})

	t.Run("UnknownOnlyRowsIgnored", func(t *testing.T) {
		pairs := []AlignedPair{
			{Reference: peakSpectrum("r1", 100, peaks), Unknown: peakSpectrum("u1", 100, peaks)},
			{Reference: nil, Unknown: peakSpectrum("u2", 50, peaks)},
		}
		conf, err := comparator.Confidence(ctx, pairs, testConfig)
		if err != nil {
			t.Fatalf("Confidence failed: %v", err)
		}
		if math.Abs(conf-1.0) > 1e-9 {
			t.Errorf("Rows without a reference peak should not count, got %f", conf)
		}
	})

	t.Run("NoReferencePeaks", func(t *testing.T) {
		conf, err := comparator.Confidence(ctx, nil, testConfig)
		if err != nil {
			t.Fatalf("Confidence failed: %v", err)
		}
		if conf != 0 {
			t.Errorf("Expected 0 for empty alignment, got %f", conf)
		}
	})

	t.Run("Cancellation", func(t *testing.T) {
		pairs := []AlignedPair{
			{Reference: peakSpectrum("r1", 100, peaks), Unknown: peakSpectrum("u1", 100, peaks)},
		}
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		if _, err := comparator.Confidence(cancelled, pairs, testConfig); !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	})
}
