package analysis

import (
	"context"
	"math"
)

// fixedTempo is a TempoEstimator returning a canned result.
type fixedTempo struct {
	tempo *Tempo
	err   error
}

func (f fixedTempo) EstimateTempo(context.Context, *PCMBuffer) (*Tempo, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.tempo != nil {
		return f.tempo, nil
	}
	return &Tempo{BPM: 120, Beats: []float64{0.5, 1.0, 1.5}, Confidence: 0.8}, nil
}

// tone returns consecutive regions of a 64-sample-period sine, one per
// amplitude, each seconds long. Every region repeats bit-identical samples.
func tone(sampleRate int, seconds float64, amps ...float64) *PCMBuffer {
	per := int(seconds * float64(sampleRate))
	samples := make([]float64, 0, per*len(amps))
	for _, a := range amps {
		for range per {
			n := len(samples)
			samples = append(samples, a*math.Sin(2*math.Pi*float64(n%64)/64))
		}
	}
	return NewPCMBuffer(samples, sampleRate)
}

// clicks returns a silent buffer with unit impulses at the given times.
func clicks(sampleRate int, seconds float64, at ...float64) *PCMBuffer {
	samples := make([]float64, int(seconds*float64(sampleRate)))
	for _, t := range at {
		samples[int(math.Round(t*float64(sampleRate)))] = 1
	}
	return NewPCMBuffer(samples, sampleRate)
}
