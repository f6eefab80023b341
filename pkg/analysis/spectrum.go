package analysis

import (
	"math"

	"github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/dsp/fourier"
)

// Spectrum holds non-negative magnitudes for bins 0..frameSize/2-1.
type Spectrum []float64

// BinFrequency returns the center frequency of bin k in Hz.
func (s Spectrum) BinFrequency(k, sampleRate int) float64 {
	return float64(k) * float64(sampleRate) / float64(2*len(s))
}

// Centroid returns the magnitude-weighted mean frequency, or 0 for silence.
func (s Spectrum) Centroid(sampleRate int) float64 {
	var weighted, total float64
	for k, m := range s {
		weighted += s.BinFrequency(k, sampleRate) * m
		total += m
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

// SpectralTransformer applies a Hann window and returns the magnitude spectrum
// of a frame. It keeps scratch buffers, so a transformer belongs to one
// pipeline run; results do not depend on previous calls.
type SpectralTransformer struct {
	size     int
	window   []float64
	fft      *fourier.FFT
	windowed []float64
	coeffs   []complex128
}

// NewSpectralTransformer creates a transformer for frames of frameSize samples.
func NewSpectralTransformer(frameSize int) *SpectralTransformer {
	return &SpectralTransformer{
		size:     frameSize,
		window:   window.Hann(frameSize),
		fft:      fourier.NewFFT(frameSize),
		windowed: make([]float64, frameSize),
		coeffs:   make([]complex128, frameSize/2+1),
	}
}

// Transform returns a new Spectrum of length frameSize/2 for frame.
func (t *SpectralTransformer) Transform(frame []float64) Spectrum {
	for i := range t.windowed {
		t.windowed[i] = frame[i] * t.window[i]
	}

	t.coeffs = t.fft.Coefficients(t.coeffs, t.windowed)

	spec := make(Spectrum, t.size/2)
	for k := range spec {
		re := real(t.coeffs[k])
		im := imag(t.coeffs[k])
		spec[k] = math.Sqrt(re*re + im*im)
	}
	return spec
}
