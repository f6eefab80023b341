package analysis

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Energy summarizes per-frame energy. Curve holds the coarse-frame energies
// used for structural segmentation.
type Energy struct {
	Mean  float64   `json:"mean"`
	Std   float64   `json:"std"`
	Curve []float64 `json:"curve,omitempty"`
}

// FeatureAggregator collects per-frame energy and spectral centroid.
type FeatureAggregator struct {
	sampleRate int
	energies   []float64
	centroids  []float64
}

// NewFeatureAggregator creates an aggregator with capacity for frameCount frames.
func NewFeatureAggregator(sampleRate, frameCount int) *FeatureAggregator {
	return &FeatureAggregator{
		sampleRate: sampleRate,
		energies:   make([]float64, 0, frameCount),
		centroids:  make([]float64, 0, frameCount),
	}
}

// Push records the energy of frame and the centroid of its spectrum.
func (a *FeatureAggregator) Push(frame []float64, s Spectrum) {
	a.energies = append(a.energies, MeanSquare(frame))
	a.centroids = append(a.centroids, s.Centroid(a.sampleRate))
}

// Centroids returns the per-frame spectral centroids, indexed by frame.
func (a *FeatureAggregator) Centroids() []float64 {
	return a.centroids
}

// Energy returns the mean and population standard deviation of frame energy.
// Std is 0 with fewer than two frames.
func (a *FeatureAggregator) Energy() Energy {
	return energyStats(a.energies)
}

// MeanCentroid returns the mean spectral centroid over all frames, 0 if none.
func (a *FeatureAggregator) MeanCentroid() float64 {
	if len(a.centroids) == 0 {
		return 0
	}
	return stat.Mean(a.centroids, nil)
}

func energyStats(energies []float64) Energy {
	switch len(energies) {
	case 0:
		return Energy{}
	case 1:
		return Energy{Mean: energies[0]}
	}
	mean, std := stat.PopMeanStdDev(energies, nil)
	return Energy{Mean: mean, Std: std}
}

// MeanSquare returns the mean squared amplitude of x, 0 when empty.
func MeanSquare(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return floats.Dot(x, x) / float64(len(x))
}
