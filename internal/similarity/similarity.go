// Package similarity scores binned spectra against each other and ranks a
// query vector against a collection of candidates.
package similarity

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/specmatch/specmatch/internal/binning"
)

// Metric identifies a similarity metric. The set is closed: metric
// selection maps a name onto one of these variants, each backed by a pure
// function.
type Metric string

const (
	// MetricCosine is cosine similarity, the default.
	MetricCosine Metric = "cosine"
	// MetricDot is the dot product of max-normalized vectors, clamped to [0, 1].
	MetricDot Metric = "dot"
	// MetricEuclidean derives a similarity 1/(1+d) from Euclidean distance.
	MetricEuclidean Metric = "euclidean"
)

// ParseMetric parses a metric name from configuration.
func ParseMetric(name string) (Metric, error) {
	switch Metric(name) {
	case MetricCosine, MetricDot, MetricEuclidean:
		return Metric(name), nil
	default:
		return "", fmt.Errorf("unknown similarity metric %q", name)
	}
}

// IncompatibleVectorsError reports an attempt to compare vectors produced
// under different binning configurations.
type IncompatibleVectorsError struct {
	A, B string // config keys
}

func (e *IncompatibleVectorsError) Error() string {
	return fmt.Sprintf("incompatible vectors: %q vs %q", e.A, e.B)
}

// Score is one similarity measurement between two spectra.
type Score struct {
	Query     string  `json:"query"`
	Candidate string  `json:"candidate"`
	Value     float64 `json:"value"`
	Metric    Metric  `json:"metric"`
	ConfigKey string  `json:"config_key"`
}

// Scorer computes similarity scores using a fixed metric.
type Scorer struct {
	metric Metric
}

// NewScorer creates a Scorer for the given metric.
func NewScorer(metric Metric) *Scorer {
	return &Scorer{metric: metric}
}

// Metric returns the scorer's metric.
func (s *Scorer) Metric() Metric {
	return s.metric
}

// Score computes the similarity between two vectors. Both must have been
// produced under the same binning configuration. If either vector is
// all-zero the score is 0, not an error.
func (s *Scorer) Score(a, b *binning.Vector) (Score, error) {
	if !binning.Compatible(a, b) {
		var ka, kb string
		if a != nil {
			ka = a.ConfigKey
		}
		if b != nil {
			kb = b.ConfigKey
		}
		return Score{}, &IncompatibleVectorsError{A: ka, B: kb}
	}

	return Score{
		Query:     a.SpectrumID,
		Candidate: b.SpectrumID,
		Value:     s.value(a.Values, b.Values),
		Metric:    s.metric,
		ConfigKey: a.ConfigKey,
	}, nil
}

// ReverseScore computes the similarity restricted to bins where the
// candidate has signal, the reverse match factor: how well does the query
// account for the candidate's peaks, ignoring anything the candidate lacks.
func (s *Scorer) ReverseScore(a, b *binning.Vector) (Score, error) {
	if !binning.Compatible(a, b) {
		var ka, kb string
		if a != nil {
			ka = a.ConfigKey
		}
		if b != nil {
			kb = b.ConfigKey
		}
		return Score{}, &IncompatibleVectorsError{A: ka, B: kb}
	}

	masked := make([]float64, len(a.Values))
	for i, bv := range b.Values {
		if bv != 0 {
			masked[i] = a.Values[i]
		}
	}

	return Score{
		Query:     a.SpectrumID,
		Candidate: b.SpectrumID,
		Value:     s.value(masked, b.Values),
		Metric:    s.metric,
		ConfigKey: a.ConfigKey,
	}, nil
}

func (s *Scorer) value(a, b []float64) float64 {
	switch s.metric {
	case MetricDot:
		return dotSimilarity(a, b)
	case MetricEuclidean:
		return euclideanSimilarity(a, b)
	default:
		return cosineSimilarity(a, b)
	}
}

// cosineSimilarity returns dot(a,b)/(|a||b|), 0 when either vector is
// all-zero.
func cosineSimilarity(a, b []float64) float64 {
	na := floats.Norm(a, 2)
	nb := floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	v := floats.Dot(a, b) / (na * nb)
	// Clamp rounding spill just above 1.
	return math.Min(v, 1)
}

// dotSimilarity max-normalizes both vectors, takes their dot product and
// rescales by the shared support size, clamped to [0, 1].
func dotSimilarity(a, b []float64) float64 {
	ma := floats.Max(a)
	mb := floats.Max(b)
	if ma == 0 || mb == 0 {
		return 0
	}

	var dot, scale float64
	for i := range a {
		x := a[i] / ma
		y := b[i] / mb
		dot += x * y
		if x > 0 || y > 0 {
			scale += math.Max(x, y) * math.Max(x, y)
		}
	}
	if scale == 0 {
		return 0
	}
	return math.Min(dot/scale, 1)
}

// euclideanSimilarity returns 1/(1+d) where d is the Euclidean distance.
// All-zero inputs on either side yield 0 to keep empty spectra out of
// rankings.
func euclideanSimilarity(a, b []float64) float64 {
	if isZero(a) || isZero(b) {
		return 0
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return 1 / (1 + math.Sqrt(sum))
}

func isZero(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// Candidate pairs an identifier with its binned vector for ranking.
type Candidate struct {
	ID     string
	Vector *binning.Vector
}

// Ranked is one ranked entry returned by Rank.
type Ranked struct {
	ID    string `json:"id"`
	Score Score  `json:"score"`
}

// Rank scores the query against every candidate and returns the results
// sorted by descending score, ties broken by ascending identifier. An empty
// candidate collection yields an empty slice, not an error.
func (s *Scorer) Rank(query *binning.Vector, candidates []Candidate) ([]Ranked, error) {
	ranked := make([]Ranked, 0, len(candidates))
	for _, c := range candidates {
		score, err := s.Score(query, c.Vector)
		if err != nil {
			return nil, fmt.Errorf("scoring candidate %q: %w", c.ID, err)
		}
		score.Candidate = c.ID
		ranked = append(ranked, Ranked{ID: c.ID, Score: score})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score.Value != ranked[j].Score.Value {
			return ranked[i].Score.Value > ranked[j].Score.Value
		}
		return ranked[i].ID < ranked[j].ID
	})

	return ranked, nil
}
