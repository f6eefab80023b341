package analysis

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

const (
	// sparseFluxCount is the number of non-zero flux samples below which the
	// permissive half-mean threshold is used.
	sparseFluxCount = 10
	// silentFluxThreshold is used when every flux sample is zero.
	silentFluxThreshold = 1e-6
)

// OnsetDetector computes half-wave rectified spectral flux over a sequence of
// spectra, one Push per frame in frame order.
type OnsetDetector struct {
	previous Spectrum
	flux     []float64
}

// NewOnsetDetector creates a detector with capacity for frameCount frames.
func NewOnsetDetector(frameCount int) *OnsetDetector {
	return &OnsetDetector{flux: make([]float64, 0, frameCount)}
}

// Push records the flux between s and the previous spectrum and returns it.
// The first frame has no predecessor and gets flux 0. Non-finite magnitudes
// make the flux NaN, which Onsets reports as a failure.
func (d *OnsetDetector) Push(s Spectrum) float64 {
	var flux float64
	if d.previous != nil {
		for k, m := range s {
			if diff := m - d.previous[k]; diff > 0 || math.IsNaN(diff) {
				flux += diff
			}
		}
	}
	d.previous = s
	d.flux = append(d.flux, flux)
	return flux
}

// Flux returns the flux per frame, indexed by frame.
func (d *OnsetDetector) Flux() []float64 {
	return d.flux
}

// Onsets returns the retained onset times in seconds. Candidate i is placed at
// the center of frame i, kept when its flux exceeds the adaptive threshold, and
// thinned so that no two onsets are closer than minInterval.
func (d *OnsetDetector) Onsets(seg *FrameSegmenter, sampleRate int, duration, minInterval float64) ([]float64, error) {
	for i, f := range d.flux {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: non-finite flux at frame %d", ErrOnsetDetection, i)
		}
	}

	threshold := AdaptiveThreshold(d.flux)

	var candidates []float64
	for i, f := range d.flux {
		if f <= threshold {
			continue
		}
		t := seg.FrameTime(i, sampleRate)
		if t < 0 || t >= duration {
			continue
		}
		candidates = append(candidates, t)
	}

	return SpaceOnsets(candidates, minInterval), nil
}

// AdaptiveThreshold derives the onset threshold from the non-zero flux samples.
//
// Sparse signals get half the mean. Otherwise the lowest of mean+0.15*std, the
// 75th percentile and 1.1*median is used, floored at 1% of the mean.
func AdaptiveThreshold(flux []float64) float64 {
	nonZero := make([]float64, 0, len(flux))
	for _, f := range flux {
		if f > 0 {
			nonZero = append(nonZero, f)
		}
	}

	if len(nonZero) == 0 {
		return silentFluxThreshold
	}

	mean, std := stat.PopMeanStdDev(nonZero, nil)
	if len(nonZero) < sparseFluxCount {
		return 0.5 * mean
	}

	slices.Sort(nonZero)
	byDeviation := mean + 0.15*std
	byPercentile := stat.Quantile(0.75, stat.LinInterp, nonZero, nil)
	byMedian := stat.Quantile(0.5, stat.LinInterp, nonZero, nil) * 1.1

	return max(min(byDeviation, byPercentile, byMedian), 0.01*mean)
}

// SpaceOnsets sorts times and greedily keeps each one that is at least
// minInterval after the last kept time. Equal times are always collapsed.
func SpaceOnsets(times []float64, minInterval float64) []float64 {
	sorted := slices.Clone(times)
	slices.Sort(sorted)

	kept := make([]float64, 0, len(sorted))
	for _, t := range sorted {
		if n := len(kept); n > 0 && (t <= kept[n-1] || t-kept[n-1] < minInterval) {
			continue
		}
		kept = append(kept, t)
	}
	return kept
}
