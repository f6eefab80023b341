package analysis

import "fmt"

// Config holds the parameters of a single pipeline run. It is a plain value:
// each invocation gets its own copy.
type Config struct {
	// SampleRate is the rate audio files are decoded and resampled to.
	// Default: 44100
	SampleRate int

	// FrameSize is the fine analysis window length in samples.
	// Default: 2048
	FrameSize int

	// HopSize is the distance between fine frame starts in samples.
	// Default: 512
	HopSize int

	// MinOnsetInterval is the minimum spacing between reported onsets in seconds.
	// Default: 0.02
	MinOnsetInterval float64

	// MaxReportedOnsets caps the onset list in the result; 0 disables the cap.
	// OnsetCount is never capped. Default: 2000
	MaxReportedOnsets int

	// CoarseFrameSpan is the structural segmentation window in seconds.
	// Default: 0.5
	CoarseFrameSpan float64

	// BoundaryDeviation multiplies the series standard deviation to get the
	// boundary threshold. Default: 1.5
	BoundaryDeviation float64

	// ChorusEnergyRatio labels a section chorus above this multiple of the
	// global energy mean. Default: 1.2
	ChorusEnergyRatio float64

	// VerseEnergyRatio labels a section verse below this multiple of the
	// global energy mean. Default: 0.8
	VerseEnergyRatio float64

	// BridgeDurationRatio labels a mid-energy section bridge when shorter than
	// this fraction of the track. Default: 0.10
	BridgeDurationRatio float64
}

// DefaultConfig returns the reference analysis parameters.
func DefaultConfig() Config {
	return Config{
		SampleRate:          44100,
		FrameSize:           2048,
		HopSize:             512,
		MinOnsetInterval:    0.02,
		MaxReportedOnsets:   2000,
		CoarseFrameSpan:     0.5,
		BoundaryDeviation:   1.5,
		ChorusEnergyRatio:   1.2,
		VerseEnergyRatio:    0.8,
		BridgeDurationRatio: 0.10,
	}
}

// Validate returns ErrInvalidParameters if any setting cannot drive the pipeline.
func (c Config) Validate() error {
	switch {
	case c.SampleRate <= 0:
		return fmt.Errorf("%w: sample rate %d", ErrInvalidParameters, c.SampleRate)
	case c.FrameSize <= 0:
		return fmt.Errorf("%w: frame size %d", ErrInvalidParameters, c.FrameSize)
	case c.HopSize <= 0:
		return fmt.Errorf("%w: hop size %d", ErrInvalidParameters, c.HopSize)
	case c.MinOnsetInterval < 0:
		return fmt.Errorf("%w: min onset interval %g", ErrInvalidParameters, c.MinOnsetInterval)
	case c.MaxReportedOnsets < 0:
		return fmt.Errorf("%w: max reported onsets %d", ErrInvalidParameters, c.MaxReportedOnsets)
	case c.CoarseFrameSpan <= 0:
		return fmt.Errorf("%w: coarse frame span %g", ErrInvalidParameters, c.CoarseFrameSpan)
	}
	return nil
}
