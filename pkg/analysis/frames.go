package analysis

import (
	"fmt"
	"iter"
)

// FrameSegmenter slices a sample buffer into fixed-size overlapping frames.
// Frame i starts at i*HopSize; a trailing partial frame is dropped.
type FrameSegmenter struct {
	FrameSize int
	HopSize   int
}

// NewFrameSegmenter returns ErrInvalidParameters for non-positive sizes.
func NewFrameSegmenter(frameSize, hopSize int) (*FrameSegmenter, error) {
	if frameSize <= 0 || hopSize <= 0 {
		return nil, fmt.Errorf("%w: frame size %d, hop size %d", ErrInvalidParameters, frameSize, hopSize)
	}
	return &FrameSegmenter{FrameSize: frameSize, HopSize: hopSize}, nil
}

// Count returns the number of full frames in a buffer of sampleCount samples.
func (s *FrameSegmenter) Count(sampleCount int) int {
	if sampleCount < s.FrameSize {
		return 0
	}
	return (sampleCount-s.FrameSize)/s.HopSize + 1
}

// Require fails when the buffer cannot hold a single frame.
func (s *FrameSegmenter) Require(sampleCount int) error {
	if s.FrameSize > sampleCount {
		return fmt.Errorf("%w: frame size %d exceeds %d samples", ErrInvalidParameters, s.FrameSize, sampleCount)
	}
	return nil
}

// Frames yields (index, frame) pairs in index order. Each frame is a view into
// samples and must not be modified. The sequence can be ranged over repeatedly.
func (s *FrameSegmenter) Frames(samples []float64) iter.Seq2[int, []float64] {
	n := s.Count(len(samples))
	return func(yield func(int, []float64) bool) {
		for i := range n {
			start := i * s.HopSize
			if !yield(i, samples[start:start+s.FrameSize:start+s.FrameSize]) {
				return
			}
		}
	}
}

// FrameTime returns the timestamp in seconds of the center of frame i.
func (s *FrameSegmenter) FrameTime(i, sampleRate int) float64 {
	return float64(i*s.HopSize+s.FrameSize/2) / float64(sampleRate)
}
