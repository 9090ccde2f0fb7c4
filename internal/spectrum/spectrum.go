// Package spectrum provides the immutable mass spectrum value type shared by
// the binning, similarity and library components.
package spectrum

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Peak represents a single mass, intensity pair.
type Peak struct {
	Mass      float64 `json:"mass"`
	Intensity float64 `json:"intensity"`
}

// Metadata carries optional descriptive fields for a spectrum.
type Metadata struct {
	Name          string  `json:"name,omitempty"`
	Source        string  `json:"source,omitempty"`
	RetentionTime float64 `json:"retention_time,omitempty"` // minutes
	ScanIndex     int     `json:"scan_index,omitempty"`
	Area          float64 `json:"area,omitempty"`
	MatchFactor   float64 `json:"match_factor,omitempty"`
}

// Spectrum is an immutable sparse mass/intensity series with metadata.
// Peaks are strictly increasing by mass and intensities are non-negative.
type Spectrum struct {
	id    string
	peaks []Peak
	meta  Metadata
}

// MalformedSpectrumError reports invalid spectrum data at construction time.
type MalformedSpectrumError struct {
	ID      string
	Message string
}

func (e *MalformedSpectrumError) Error() string {
	return fmt.Sprintf("malformed spectrum %q: %s", e.ID, e.Message)
}

// New constructs a Spectrum from the given peaks. Peaks are sorted by mass
// and duplicate masses are merged by summing their intensities. Negative,
// NaN or infinite values are rejected.
func New(id string, peaks []Peak, meta Metadata) (*Spectrum, error) {
	if id == "" {
		return nil, &MalformedSpectrumError{ID: id, Message: "identifier is required"}
	}

	var errs []string
	for i, p := range peaks {
		if math.IsNaN(p.Mass) || math.IsInf(p.Mass, 0) {
			errs = append(errs, fmt.Sprintf("peak %d has invalid mass", i))
		}
		if math.IsNaN(p.Intensity) || math.IsInf(p.Intensity, 0) {
			errs = append(errs, fmt.Sprintf("peak %d has invalid intensity", i))
		}
		if p.Intensity < 0 {
			errs = append(errs, fmt.Sprintf("peak %d intensity must be non-negative", i))
		}
	}
	if len(errs) > 0 {
		return nil, &MalformedSpectrumError{ID: id, Message: strings.Join(errs, "; ")}
	}

	sorted := make([]Peak, len(peaks))
	copy(sorted, peaks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Mass < sorted[j].Mass })

	// Merge duplicate masses by summing intensities.
	merged := sorted[:0]
	for _, p := range sorted {
		if n := len(merged); n > 0 && merged[n-1].Mass == p.Mass {
			merged[n-1].Intensity += p.Intensity
			continue
		}
		merged = append(merged, p)
	}

	return &Spectrum{id: id, peaks: merged, meta: meta}, nil
}

// ID returns the spectrum identifier.
func (s *Spectrum) ID() string {
	return s.id
}

// Meta returns the spectrum metadata.
func (s *Spectrum) Meta() Metadata {
	return s.meta
}

// Len returns the number of peaks.
func (s *Spectrum) Len() int {
	return len(s.peaks)
}

// Empty reports whether the spectrum has no peaks.
func (s *Spectrum) Empty() bool {
	return len(s.peaks) == 0
}

// Peaks returns a copy of the peak series.
func (s *Spectrum) Peaks() []Peak {
	out := make([]Peak, len(s.peaks))
	copy(out, s.peaks)
	return out
}

// MaxIntensity returns the largest intensity, or 0 for an empty spectrum.
func (s *Spectrum) MaxIntensity() float64 {
	var max float64
	for _, p := range s.peaks {
		if p.Intensity > max {
			max = p.Intensity
		}
	}
	return max
}

// BasePeak returns the most intense peak. The second return value is false
// for an empty spectrum.
func (s *Spectrum) BasePeak() (Peak, bool) {
	if len(s.peaks) == 0 {
		return Peak{}, false
	}
	base := s.peaks[0]
	for _, p := range s.peaks[1:] {
		if p.Intensity > base.Intensity {
			base = p
		}
	}
	return base, true
}

// MaxMass returns the largest mass whose intensity is at least cutoff times
// the maximum intensity. Returns 0 for an empty spectrum.
func (s *Spectrum) MaxMass(cutoff float64) float64 {
	threshold := cutoff * s.MaxIntensity()
	var max float64
	for _, p := range s.peaks {
		if p.Intensity >= threshold && p.Mass > max {
			max = p.Mass
		}
	}
	return max
}

// NormalizedIntensities returns the intensities scaled so the base peak is
// 100. An empty spectrum yields an empty slice.
func (s *Spectrum) NormalizedIntensities() []float64 {
	out := make([]float64, len(s.peaks))
	maxIntensity := s.MaxIntensity()
	if maxIntensity == 0 {
		return out
	}
	for i, p := range s.peaks {
		out[i] = p.Intensity / maxIntensity * 100
	}
	return out
}

// TopMass is a mass with its display intensity on the 0-999 scale.
type TopMass struct {
	Mass      float64 `json:"mass"`
	Intensity int     `json:"intensity"`
}

// TopMasses returns the n most intense masses, base peak scaled to 999.
// Ties are broken by ascending mass for determinism.
func (s *Spectrum) TopMasses(n int) []TopMass {
	if n <= 0 || len(s.peaks) == 0 {
		return nil
	}

	ordered := make([]Peak, len(s.peaks))
	copy(ordered, s.peaks)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Intensity != ordered[j].Intensity {
			return ordered[i].Intensity > ordered[j].Intensity
		}
		return ordered[i].Mass < ordered[j].Mass
	})

	if n > len(ordered) {
		n = len(ordered)
	}

	maxIntensity := ordered[0].Intensity
	out := make([]TopMass, 0, n)
	for _, p := range ordered[:n] {
		scaled := 0
		if maxIntensity > 0 {
			scaled = int(p.Intensity / maxIntensity * 999)
		}
		out = append(out, TopMass{Mass: p.Mass, Intensity: scaled})
	}
	return out
}
