package similarity

import (
	"errors"
	"math"
	"testing"

	"github.com/specmatch/specmatch/internal/binning"
	"github.com/specmatch/specmatch/internal/spectrum"
)

var testConfig = binning.Config{MassMin: 20, MassMax: 200, BinWidth: 1, Normalization: binning.NormL2}

func vectorFor(t *testing.T, id string, peaks []spectrum.Peak) *binning.Vector {
	t.Helper()
	s, err := spectrum.New(id, peaks, spectrum.Metadata{})
	if err != nil {
		t.Fatalf("Failed to create spectrum %s: %v", id, err)
	}
	vec, err := binning.Bin(s, testConfig)
	if err != nil {
		t.Fatalf("Failed to bin spectrum %s: %v", id, err)
	}
	return vec
}

// TestParseMetric tests metric name parsing
func TestParseMetric(t *testing.T) {
	for _, name := range []string{"cosine", "dot", "euclidean"} {
		if _, err := ParseMetric(name); err != nil {
			t.Errorf("ParseMetric(%q) failed: %v", name, err)
		}
	}
	if _, err := ParseMetric("manhattan"); err == nil {
		t.Error("Expected error for unknown metric")
	}
}

// TestScore tests pairwise scoring
func TestScore(t *testing.T) {
	peaks := []spectrum.Peak{
		{Mass: 43, Intensity: 100},
		{Mass: 57, Intensity: 60},
		{Mass: 91, Intensity: 20},
	}

	t.Run("SelfScoreIsOne", func(t *testing.T) {
		for _, metric := range []Metric{MetricCosine, MetricDot, MetricEuclidean} {
			scorer := NewScorer(metric)
			a := vectorFor(t, "a", peaks)
			b := vectorFor(t, "b", peaks)
			score, err := scorer.Score(a, b)
			if err != nil {
				t.Fatalf("%s: Score failed: %v", metric, err)
			}
			if math.Abs(score.Value-1.0) > 1e-9 {
				t.Errorf("%s: identical spectra should score 1.0, got %f", metric, score.Value)
			}
		}
	})

	t.Run("Symmetric", func(t *testing.T) {
		other := []spectrum.Peak{
			{Mass: 43, Intensity: 50},
			{Mass: 105, Intensity: 100},
		}
		for _, metric := range []Metric{MetricCosine, MetricDot, MetricEuclidean} {
			scorer := NewScorer(metric)
			a := vectorFor(t, "a", peaks)
			b := vectorFor(t, "b", other)
			ab, err := scorer.Score(a, b)
			if err != nil {
				t.Fatalf("%s: Score failed: %v", metric, err)
			}
			ba, err := scorer.Score(b, a)
			if err != nil {
				t.Fatalf("%s: Score failed: %v", metric, err)
			}
			if math.Abs(ab.Value-ba.Value) > 1e-12 {
				t.Errorf("%s: score not symmetric: %f vs %f", metric, ab.Value, ba.Value)
			}
		}
	})

	t.Run("BoundedZeroToOne", func(t *testing.T) {
		disjoint := []spectrum.Peak{{Mass: 150, Intensity: 100}}
		for _, metric := range []Metric{MetricCosine, MetricDot, MetricEuclidean} {
			scorer := NewScorer(metric)
			a := vectorFor(t, "a", peaks)
			b := vectorFor(t, "b", disjoint)
			score, err := scorer.Score(a, b)
			if err != nil {
				t.Fatalf("%s: Score failed: %v", metric, err)
			}
			if score.Value < 0 || score.Value > 1 {
				t.Errorf("%s: score %f outside [0, 1]", metric, score.Value)
			}
		}
	})

	t.Run("ZeroVectorScoresZero", func(t *testing.T) {
		for _, metric := range []Metric{MetricCosine, MetricDot, MetricEuclidean} {
			scorer := NewScorer(metric)
			a := vectorFor(t, "a", peaks)
			empty := vectorFor(t, "empty", nil)
			score, err := scorer.Score(a, empty)
			if err != nil {
				t.Fatalf("%s: Score failed: %v", metric, err)
			}
			if score.Value != 0 {
				t.Errorf("%s: score against empty spectrum should be 0, got %f", metric, score.Value)
			}
		}
	})

	t.Run("IncompatibleVectors", func(t *testing.T) {
		scorer := NewScorer(MetricCosine)
		a := vectorFor(t, "a", peaks)

		s, _ := spectrum.New("b", peaks, spectrum.Metadata{})
		otherCfg := testConfig
		otherCfg.BinWidth = 0.5
		b, err := binning.Bin(s, otherCfg)
		if err != nil {
			t.Fatalf("Bin failed: %v", err)
		}

		_, err = scorer.Score(a, b)
		var incompatible *IncompatibleVectorsError
		if !errors.As(err, &incompatible) {
			t.Fatalf("Expected IncompatibleVectorsError, got %v", err)
		}
	})

	t.Run("PopulatesScoreFields", func(t *testing.T) {
		scorer := NewScorer(MetricCosine)
		a := vectorFor(t, "query", peaks)
		b := vectorFor(t, "cand", peaks)
		score, err := scorer.Score(a, b)
		if err != nil {
			t.Fatalf("Score failed: %v", err)
		}
		if score.Query != "query" || score.Candidate != "cand" {
			t.Errorf("Unexpected identifiers: %s, %s", score.Query, score.Candidate)
		}
		if score.Metric != MetricCosine {
			t.Errorf("Expected cosine metric, got %s", score.Metric)
		}
		if score.ConfigKey != testConfig.Key() {
			t.Errorf("Unexpected config key %s", score.ConfigKey)
		}
	})
}

// TestReverseScore tests candidate-masked scoring
func TestReverseScore(t *testing.T) {
	scorer := NewScorer(MetricCosine)

	t.Run("IgnoresQueryOnlyPeaks", func(t *testing.T) {
		// The query has extra peaks the candidate lacks. The reverse
		// score masks them out and sees a perfect match on the
		// candidate's support.
		query := vectorFor(t, "q", []spectrum.Peak{
			{Mass: 43, Intensity: 100},
			{Mass: 57, Intensity: 60},
			{Mass: 120, Intensity: 40},
			{Mass: 130, Intensity: 40},
		})
		cand := vectorFor(t, "c", []spectrum.Peak{
			{Mass: 43, Intensity: 100},
			{Mass: 57, Intensity: 60},
		})

		forward, err := scorer.Score(query, cand)
		if err != nil {
			t.Fatalf("Score failed: %v", err)
		}
		reverse, err := scorer.ReverseScore(query, cand)
		if err != nil {
			t.Fatalf("ReverseScore failed: %v", err)
		}

		if math.Abs(reverse.Value-1.0) > 1e-9 {
			t.Errorf("Reverse score should be 1.0 on matched support, got %f", reverse.Value)
		}
		if forward.Value >= reverse.Value {
			t.Errorf("Forward %f should be below reverse %f here", forward.Value, reverse.Value)
		}
	})

	t.Run("IncompatibleVectors", func(t *testing.T) {
		a := vectorFor(t, "a", []spectrum.Peak{{Mass: 43, Intensity: 1}})
		s, _ := spectrum.New("b", []spectrum.Peak{{Mass: 43, Intensity: 1}}, spectrum.Metadata{})
		otherCfg := testConfig
		otherCfg.MassMax = 300
		b, _ := binning.Bin(s, otherCfg)

		if _, err := scorer.ReverseScore(a, b); err == nil {
			t.Error("Expected error for incompatible vectors")
		}
	})
}

// TestRank tests ranking a query against candidates
func TestRank(t *testing.T) {
	scorer := NewScorer(MetricCosine)
	query := vectorFor(t, "q", []spectrum.Peak{
		{Mass: 43, Intensity: 100},
		{Mass: 57, Intensity: 50},
	})

	t.Run("OrdersByDescendingScore", func(t *testing.T) {
		candidates := []Candidate{
			{ID: "far", Vector: vectorFor(t, "far", []spectrum.Peak{{Mass: 150, Intensity: 100}})},
			{ID: "exact", Vector: vectorFor(t, "exact", []spectrum.Peak{{Mass: 43, Intensity: 100}, {Mass: 57, Intensity: 50}})},
			{ID: "close", Vector: vectorFor(t, "close", []spectrum.Peak{{Mass: 43, Intensity: 100}, {Mass: 57, Intensity: 30}})},
		}
		ranked, err := scorer.Rank(query, candidates)
		if err != nil {
			t.Fatalf("Rank failed: %v", err)
		}
		if len(ranked) != 3 {
			t.Fatalf("Expected 3 results, got %d", len(ranked))
		}
		if ranked[0].ID != "exact" || ranked[1].ID != "close" || ranked[2].ID != "far" {
			t.Errorf("Unexpected order: %s, %s, %s", ranked[0].ID, ranked[1].ID, ranked[2].ID)
		}
		for i := 1; i < len(ranked); i++ {
			if ranked[i].Score.Value > ranked[i-1].Score.Value {
				t.Error("Scores not descending")
			}
		}
	})

	t.Run("TieBreakByID", func(t *testing.T) {
		same := []spectrum.Peak{{Mass: 43, Intensity: 100}, {Mass: 57, Intensity: 50}}
		candidates := []Candidate{
			{ID: "zeta", Vector: vectorFor(t, "zeta", same)},
			{ID: "alpha", Vector: vectorFor(t, "alpha", same)},
		}
		ranked, err := scorer.Rank(query, candidates)
		if err != nil {
			t.Fatalf("Rank failed: %v", err)
		}
		if ranked[0].ID != "alpha" {
			t.Errorf("Equal scores should order by identifier, got %s first", ranked[0].ID)
		}
	})

	t.Run("EmptyCandidates", func(t *testing.T) {
		ranked, err := scorer.Rank(query, nil)
		if err != nil {
			t.Fatalf("Rank failed: %v", err)
		}
		if len(ranked) != 0 {
			t.Errorf("Expected empty result, got %d entries", len(ranked))
		}
	})

	t.Run("IncompatibleCandidateFails", func(t *testing.T) {
		s, _ := spectrum.New("x", []spectrum.Peak{{Mass: 43, Intensity: 1}}, spectrum.Metadata{})
		otherCfg := testConfig
		otherCfg.BinWidth = 2
		bad, _ := binning.Bin(s, otherCfg)

		_, err := scorer.Rank(query, []Candidate{{ID: "x", Vector: bad}})
		if err == nil {
			t.Error("Expected error for incompatible candidate")
		}
	})
}
