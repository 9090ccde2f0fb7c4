package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/specmatch/specmatch/internal/spectrum"
)

// SeriesDocument is the JSON shape the viewer consumes for one spectrum:
// parallel mass and intensity arrays plus display metadata.
type SeriesDocument struct {
	ID          string             `json:"id"`
	Meta        spectrum.Metadata  `json:"meta"`
	Masses      []float64          `json:"masses"`
	Intensities []float64          `json:"intensities"`
	TopMasses   []spectrum.TopMass `json:"top_masses,omitempty"`
}

// NewSeriesDocument prepares a spectrum for rendering. Intensities are
// scaled so the base peak is 100, the viewer's display convention.
func NewSeriesDocument(s *spectrum.Spectrum) SeriesDocument {
	peaks := s.Peaks()
	masses := make([]float64, len(peaks))
	for i, p := range peaks {
		masses[i] = p.Mass
	}
	return SeriesDocument{
		ID:          s.ID(),
		Meta:        s.Meta(),
		Masses:      masses,
		Intensities: s.NormalizedIntensities(),
		TopMasses:   s.TopMasses(10),
	}
}

// WriteJSONSeries writes one SeriesDocument per spectrum as a JSON array.
func WriteJSONSeries(w io.Writer, specs []*spectrum.Spectrum) error {
	docs := make([]SeriesDocument, len(specs))
	for i, s := range specs {
		docs[i] = NewSeriesDocument(s)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(docs); err != nil {
		return fmt.Errorf("failed to encode spectra: %w", err)
	}
	return nil
}
