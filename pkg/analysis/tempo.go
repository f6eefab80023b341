package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"

	"gonum.org/v1/gonum/floats"
)

// Tempo is the output of a tempo/beat estimator.
type Tempo struct {
	BPM        float64   `json:"bpm"`
	Beats      []float64 `json:"beats"`
	Confidence float64   `json:"confidence"`
}

// TempoEstimator extracts tempo and beat positions from a buffer.
type TempoEstimator interface {
	EstimateTempo(ctx context.Context, buf *PCMBuffer) (*Tempo, error)
}

// AutocorrEstimator estimates tempo by autocorrelating an onset-strength
// envelope over the lags of a BPM range.
type AutocorrEstimator struct {
	// EnvelopeRate is the envelope sample rate in Hz. Default: 200
	EnvelopeRate int
	// MinBPM and MaxBPM bound the search. Default: 60, 200
	MinBPM float64
	MaxBPM float64
}

// NewAutocorrEstimator returns an estimator with the default search range.
func NewAutocorrEstimator() *AutocorrEstimator {
	return &AutocorrEstimator{EnvelopeRate: 200, MinBPM: 60, MaxBPM: 200}
}

// EstimateTempo implements TempoEstimator. Silence yields a zero Tempo.
func (a *AutocorrEstimator) EstimateTempo(ctx context.Context, buf *PCMBuffer) (*Tempo, error) {
	if buf.SampleRate <= 0 || len(buf.Samples) == 0 {
		return nil, fmt.Errorf("%w: empty buffer", ErrTempoEstimation)
	}

	factor := max(buf.SampleRate/a.EnvelopeRate, 1)
	envRate := float64(buf.SampleRate) / float64(factor)

	// Mean absolute amplitude per block, then its half-wave rectified rise.
	envelope := make([]float64, 0, len(buf.Samples)/factor+1)
	for i := 0; i < len(buf.Samples); i += factor {
		end := min(i+factor, len(buf.Samples))
		var sum float64
		for _, s := range buf.Samples[i:end] {
			sum += math.Abs(s)
		}
		envelope = append(envelope, sum/float64(end-i))
	}
	strength := make([]float64, len(envelope))
	for i := 1; i < len(envelope); i++ {
		strength[i] = max(envelope[i]-envelope[i-1], 0)
	}

	minLag := max(int(envRate*60/a.MaxBPM), 1)
	maxLag := int(envRate * 60 / a.MinBPM)
	if maxLag >= len(strength) {
		return nil, fmt.Errorf("%w: %.2fs is shorter than one beat at %.0f BPM", ErrTempoEstimation, buf.Duration(), a.MinBPM)
	}

	energy := floats.Dot(strength, strength) / float64(len(strength))
	if energy == 0 {
		return &Tempo{Beats: []float64{}}, nil
	}

	bestLag, bestVal := minLag, math.Inf(-1)
	for lag := minLag; lag <= maxLag; lag++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ac := floats.Dot(strength[:len(strength)-lag], strength[lag:]) / float64(len(strength)-lag)
		if ac > bestVal {
			bestVal = ac
			bestLag = lag
		}
	}

	// Place the grid on the phase with the most onset strength.
	bestPhase, bestSum := 0, math.Inf(-1)
	for phase := range bestLag {
		var sum float64
		for i := phase; i < len(strength); i += bestLag {
			sum += strength[i]
		}
		if sum > bestSum {
			bestSum = sum
			bestPhase = phase
		}
	}
	beats := []float64{}
	for i := bestPhase; i < len(strength); i += bestLag {
		beats = append(beats, float64(i)/envRate)
	}

	return &Tempo{
		BPM:        60 * envRate / float64(bestLag),
		Beats:      beats,
		Confidence: math.Max(0, math.Min(1, bestVal/energy)),
	}, nil
}

// CommandEstimator runs an external beat tracker. The buffer is written to a
// temporary WAV file whose path is appended to Args after "--json"; the command
// must print {"bpm", "beats", "confidence"} on stdout.
type CommandEstimator struct {
	Path string
	Args []string
}

// NewCommandEstimator resolves name on PATH.
func NewCommandEstimator(name string, args ...string) (*CommandEstimator, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return nil, fmt.Errorf("%s not found: %w", name, err)
	}
	return &CommandEstimator{Path: path, Args: args}, nil
}

// EstimateTempo implements TempoEstimator.
func (e *CommandEstimator) EstimateTempo(ctx context.Context, buf *PCMBuffer) (*Tempo, error) {
	tmp, err := os.CreateTemp("", "tempo-*.wav")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTempoEstimation, err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := WriteWAV(tmpPath, buf); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTempoEstimation, err)
	}

	args := append(append([]string{}, e.Args...), "--json", tmpPath)
	cmd := exec.CommandContext(ctx, e.Path, args...)

	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			stderr := string(exitErr.Stderr)
			if stderr == "" {
				stderr = "unknown error"
			}
			return nil, fmt.Errorf("%w: beat detection failed: %s", ErrTempoEstimation, stderr)
		}
		return nil, fmt.Errorf("%w: beat detection failed: %w", ErrTempoEstimation, err)
	}

	var tempo Tempo
	if err := json.Unmarshal(output, &tempo); err != nil {
		return nil, fmt.Errorf("%w: failed to parse beat detection output: %w", ErrTempoEstimation, err)
	}
	if tempo.Beats == nil {
		tempo.Beats = []float64{}
	}
	return &tempo, nil
}
