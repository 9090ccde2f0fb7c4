package batch

import (
	"context"
	"math"

	"github.com/specmatch/specmatch/internal/binning"
	"github.com/specmatch/specmatch/internal/spectrum"
)

// maxConfidence is the points available per reference peak: up to 5 lost
// for peak-area disagreement, up to 5 for spectral dissimilarity.
const maxConfidence = 10.0

// AlignedPair is one row of a peak alignment between a reference profile
// and an unknown sample. Alignment itself happens outside this engine;
// either side may be nil where the other has no counterpart.
type AlignedPair struct {
	Reference *spectrum.Spectrum
	Unknown   *spectrum.Spectrum
}

// Confidence computes a [0, 1] confidence that the unknown profile matches
// the reference profile, given their aligned peak spectra. Each reference
// peak is worth ten points; a point is lost per ten percentage points of
// peak-area difference (capped at five) and per 0.1 of similarity score
// below a perfect match (capped at five). Reference peaks with no aligned
// unknown peak score zero. Rows with no reference peak contribute nothing.
func (c *Comparator) Confidence(ctx context.Context, pairs []AlignedPair, cfg binning.Config) (float64, error) {
	if err := cfg.Validate(); err != nil {
		return 0, err
	}

	maxRefArea := maxArea(pairs, func(p AlignedPair) *spectrum.Spectrum { return p.Reference })
	maxUnknArea := maxArea(pairs, func(p AlignedPair) *spectrum.Spectrum { return p.Unknown })

	var theoretical, actual float64

	for _, pair := range pairs {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}

		if pair.Reference == nil {
			continue
		}
		theoretical += maxConfidence

		if pair.Unknown == nil {
			continue
		}

		confidence := maxConfidence

		// Peak area penalty: one point per 10 percentage points apart.
		if maxRefArea > 0 && maxUnknArea > 0 {
			refPct := pair.Reference.Meta().Area / maxRefArea
			unknPct := pair.Unknown.Meta().Area / maxUnknArea
			confidence -= math.Min(math.Abs(refPct-unknPct)/0.1, 5)
		}

		// Similarity penalty: one point per 0.1 below a perfect score.
		refVec, err := binning.Bin(pair.Reference, cfg)
		if err != nil {
			return 0, err
		}
		unknVec, err := binning.Bin(pair.Unknown, cfg)
		if err != nil {
			return 0, err
		}
		score, err := c.scorer.Score(refVec, unknVec)
		if err != nil {
			return 0, err
		}
		confidence -= math.Min((1-score.Value)/0.1, 5)

		if confidence < 0 {
			confidence = 0
		}
		actual += confidence
	}

	if theoretical == 0 {
		return 0, nil
	}
	return actual / theoretical, nil
}

func maxArea(pairs []AlignedPair, pick func(AlignedPair) *spectrum.Spectrum) float64 {
	var max float64
	for _, p := range pairs {
		if s := pick(p); s != nil && s.Meta().Area > max {
			max = s.Meta().Area
		}
	}
	return max
}
