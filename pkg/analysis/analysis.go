// Package analysis extracts tempo, onsets, energy, brightness and a coarse
// section structure from decoded audio.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// TrackAnalysis is the JSON sidecar written next to an analyzed audio file.
type TrackAnalysis struct {
	File       string    `json:"file"`
	SampleRate int       `json:"sample_rate"`
	Analysis   *Result   `json:"analysis"`
	Waveform   *Waveform `json:"waveform,omitempty"`
}

// Waveform contains downsampled waveform data for visualization.
type Waveform struct {
	PixelsPerSec int       `json:"pixels_per_sec"`
	Peaks        []float64 `json:"peaks"`
	Troughs      []float64 `json:"troughs"`
}

// GenerateWaveform computes min/max pairs over blocks of buf.
// pixelsPerSec controls the resolution (e.g., 100 = 100 data points per second).
func GenerateWaveform(buf *PCMBuffer, pixelsPerSec int) (*Waveform, error) {
	if pixelsPerSec <= 0 {
		return nil, fmt.Errorf("%w: pixels per second %d", ErrInvalidParameters, pixelsPerSec)
	}
	samplesPerPixel := max(buf.SampleRate/pixelsPerSec, 1)

	numPixels := len(buf.Samples) / samplesPerPixel
	if numPixels == 0 {
		return nil, fmt.Errorf("audio too short")
	}

	peaks := make([]float64, numPixels)
	troughs := make([]float64, numPixels)
	for i := range numPixels {
		block := buf.Samples[i*samplesPerPixel : (i+1)*samplesPerPixel]
		maxVal, minVal := -1.0, 1.0
		for _, s := range block {
			maxVal = max(maxVal, s)
			minVal = min(minVal, s)
		}
		peaks[i] = maxVal
		troughs[i] = minVal
	}

	return &Waveform{
		PixelsPerSec: pixelsPerSec,
		Peaks:        peaks,
		Troughs:      troughs,
	}, nil
}

// AnalyzeTrack analyzes one file into a sidecar record.
func (a *Analyzer) AnalyzeTrack(ctx context.Context, audioPath string, cfg Config) *TrackAnalysis {
	result, buf := a.analyzeFile(ctx, audioPath, cfg)
	track := &TrackAnalysis{
		File:       filepath.Base(audioPath),
		SampleRate: cfg.SampleRate,
		Analysis:   result,
	}
	if buf == nil || result.Error != "" {
		return track
	}

	waveform, err := GenerateWaveform(buf, 100)
	if err != nil {
		fmt.Printf("  Warning: could not generate waveform: %v\n", err)
		return track
	}
	track.Waveform = waveform
	return track
}

// AnalyzeDir recursively analyzes all audio files in a directory.
// For each audio file, it creates a corresponding .json sidecar file.
// If force is true, existing JSON files are overwritten.
func (a *Analyzer) AnalyzeDir(ctx context.Context, dir string, cfg Config, force bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		if !IsSupportedAudio(ext) {
			return nil
		}

		jsonPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".json"
		if !force {
			if _, err := os.Stat(jsonPath); err == nil {
				fmt.Printf("Skipping %s (already analyzed)\n", filepath.Base(path))
				return nil
			}
		}

		fmt.Printf("Analyzing %s...\n", filepath.Base(path))

		track := a.AnalyzeTrack(ctx, path, cfg)
		if err := track.WriteJSON(jsonPath); err != nil {
			return fmt.Errorf("write JSON: %w", err)
		}

		r := track.Analysis
		if r.Error != "" {
			fmt.Printf("  Error: %s\n", r.Error)
			return nil // Continue with other files
		}
		fmt.Printf("  Duration: %.1fs\n", r.Duration)
		fmt.Printf("  BPM=%.1f, Beats=%d, Onsets=%d\n", r.BPM, len(r.Beats), r.OnsetCount)
		fmt.Printf("  Sections: %d\n", len(r.Structure.Sections))
		return nil
	})
}

// IsSupportedAudio returns true if the file extension can be decoded.
func IsSupportedAudio(ext string) bool {
	switch ext {
	case ".mp3", ".wav":
		return true
	default:
		return false
	}
}

// WriteJSON writes the analysis to a JSON file.
func (ta *TrackAnalysis) WriteJSON(path string) error {
	data, err := json.MarshalIndent(ta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
