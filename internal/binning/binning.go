// Package binning converts sparse spectra into dense fixed-resolution
// vectors that the similarity engine can compare.
package binning

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/specmatch/specmatch/internal/spectrum"
)

// Mode selects the normalization applied after binning.
type Mode string

const (
	NormNone Mode = "none"
	NormMax  Mode = "max"
	NormL2   Mode = "l2"
)

// ParseMode parses a normalization mode name from configuration.
func ParseMode(name string) (Mode, error) {
	switch Mode(name) {
	case NormNone, NormMax, NormL2:
		return Mode(name), nil
	default:
		return "", &InvalidArgumentError{Message: fmt.Sprintf("unknown normalization %q", name)}
	}
}

// InvalidArgumentError reports invalid configuration or call arguments.
type InvalidArgumentError struct {
	Message string
}

func (e *InvalidArgumentError) Error() string {
	return "invalid argument: " + e.Message
}

// Config describes how a spectrum is binned for comparison.
type Config struct {
	MassMin       float64
	MassMax       float64
	BinWidth      float64
	Normalization Mode
}

// Validate checks the configuration invariants.
func (c Config) Validate() error {
	if c.BinWidth <= 0 {
		return &InvalidArgumentError{Message: fmt.Sprintf("bin width must be positive, got %g", c.BinWidth)}
	}
	if c.MassMin < 0 || c.MassMax <= 0 {
		return &InvalidArgumentError{Message: fmt.Sprintf("mass range bounds must be positive, got [%g, %g)", c.MassMin, c.MassMax)}
	}
	if c.MassMin >= c.MassMax {
		return &InvalidArgumentError{Message: fmt.Sprintf("mass_min %g must be below mass_max %g", c.MassMin, c.MassMax)}
	}
	switch c.Normalization {
	case NormNone, NormMax, NormL2:
	default:
		return &InvalidArgumentError{Message: fmt.Sprintf("unknown normalization %q", c.Normalization)}
	}
	return nil
}

// NumBins returns the vector length implied by the mass range and bin width.
func (c Config) NumBins() int {
	return int(math.Ceil((c.MassMax - c.MassMin) / c.BinWidth))
}

// Key returns a deterministic string identifying this configuration,
// used as a cache key component.
func (c Config) Key() string {
	return fmt.Sprintf("%g:%g:%g:%s", c.MassMin, c.MassMax, c.BinWidth, c.Normalization)
}

// Vector is a dense binned representation of one spectrum.
type Vector struct {
	SpectrumID string    `json:"spectrum_id"`
	ConfigKey  string    `json:"config_key"`
	Norm       Mode      `json:"norm"`
	Values     []float64 `json:"values"`
}

// Compatible reports whether two vectors were produced under the same
// binning configuration.
func Compatible(a, b *Vector) bool {
	return a != nil && b != nil && a.ConfigKey == b.ConfigKey && len(a.Values) == len(b.Values)
}

// IsZero reports whether every bin is zero.
func (v *Vector) IsZero() bool {
	for _, x := range v.Values {
		if x != 0 {
			return false
		}
	}
	return true
}

// Bin converts a spectrum into a dense vector under the given config.
// Masses outside [MassMin, MassMax) are dropped silently, not reported as
// errors. Intensities landing in the same bin are summed. The result is
// deterministic for identical inputs.
func Bin(s *spectrum.Spectrum, cfg Config) (*Vector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	values := make([]float64, cfg.NumBins())
	for _, p := range s.Peaks() {
		if p.Mass < cfg.MassMin || p.Mass >= cfg.MassMax {
			continue
		}
		idx := int(math.Floor((p.Mass - cfg.MassMin) / cfg.BinWidth))
		if idx >= len(values) {
			// Guard against float rounding at the upper edge.
			idx = len(values) - 1
		}
		values[idx] += p.Intensity
	}

	normalize(values, cfg.Normalization)

	return &Vector{
		SpectrumID: s.ID(),
		ConfigKey:  cfg.Key(),
		Norm:       cfg.Normalization,
		Values:     values,
	}, nil
}

// normalize scales values in place. All-zero vectors are left untouched.
func normalize(values []float64, mode Mode) {
	switch mode {
	case NormMax:
		max := floats.Max(values)
		if max == 0 {
			return
		}
		floats.Scale(1/max, values)
	case NormL2:
		norm := floats.Norm(values, 2)
		if norm == 0 {
			return
		}
		floats.Scale(1/norm, values)
	}
}
