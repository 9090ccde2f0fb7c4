package batch

import (
	"sort"

	"github.com/specmatch/specmatch/internal/similarity"
)

// Cell is one entry of the comparison table. A failed pairwise computation
// is carried inline: Failed is set, Err holds the reason and the scores are
// meaningless. Self comparisons are scored normally and flagged so callers
// can exclude them.
type Cell struct {
	Query     string  `json:"query"`
	Candidate string  `json:"candidate"`
	Forward   float64 `json:"forward"`
	Reverse   float64 `json:"reverse"`
	SelfMatch bool    `json:"self_match,omitempty"`
	Failed    bool    `json:"failed,omitempty"`
	Err       string  `json:"error,omitempty"`
}

// Report is the result table of a batch comparison: every query of set A
// against every candidate of set B.
type Report struct {
	Queries    []string          `json:"queries"`
	Candidates []string          `json:"candidates"`
	Metric     similarity.Metric `json:"metric"`
	ConfigKey  string            `json:"config_key"`

	// Cells is keyed by query identifier, then candidate identifier.
	Cells map[string]map[string]Cell `json:"cells"`
}

// Cell looks up one entry of the table.
func (r *Report) Cell(query, candidate string) (Cell, bool) {
	row, ok := r.Cells[query]
	if !ok {
		return Cell{}, false
	}
	c, ok := row[candidate]
	return c, ok
}

// Size returns the number of cells in the table.
func (r *Report) Size() int {
	n := 0
	for _, row := range r.Cells {
		n += len(row)
	}
	return n
}

// FailedCount returns the number of cells whose pairwise computation failed.
func (r *Report) FailedCount() int {
	n := 0
	for _, row := range r.Cells {
		for _, c := range row {
			if c.Failed {
				n++
			}
		}
	}
	return n
}

// Ranking is one candidate in a per-query ranking.
type Ranking struct {
	Candidate string  `json:"candidate"`
	Forward   float64 `json:"forward"`
	Reverse   float64 `json:"reverse"`
	SelfMatch bool    `json:"self_match,omitempty"`
}

// TopK returns the k best candidates for a query, sorted by descending
// forward score with ascending candidate identifier as tie-break. Failed
// cells are excluded. Pass includeSelf=false to drop flagged self matches.
func (r *Report) TopK(query string, k int, includeSelf bool) []Ranking {
	row, ok := r.Cells[query]
	if !ok || k <= 0 {
		return nil
	}

	ranked := make([]Ranking, 0, len(row))
	for _, c := range row {
		if c.Failed {
			continue
		}
		if c.SelfMatch && !includeSelf {
			continue
		}
		ranked = append(ranked, Ranking{
			Candidate: c.Candidate,
			Forward:   c.Forward,
			Reverse:   c.Reverse,
			SelfMatch: c.SelfMatch,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Forward != ranked[j].Forward {
			return ranked[i].Forward > ranked[j].Forward
		}
		return ranked[i].Candidate < ranked[j].Candidate
	})

	if k < len(ranked) {
		ranked = ranked[:k]
	}
	return ranked
}
