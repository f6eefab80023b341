package analysis

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/labstack/gommon/log"
)

// ctxCheckFrames is how many frames are processed between cancellation checks.
const ctxCheckFrames = 64

// Result is the analysis record of one track. It is not modified after assembly.
type Result struct {
	BPM              float64        `json:"bpm"`
	Beats            []float64      `json:"beats"`
	Confidence       float64        `json:"confidence"`
	Duration         float64        `json:"duration"`
	Onsets           []float64      `json:"onsets"`
	OnsetCount       int            `json:"onset_count"`
	OnsetRate        float64        `json:"onset_rate"`
	Energy           Energy         `json:"energy"`
	SpectralCentroid float64        `json:"spectral_centroid"`
	Structure        Structure      `json:"structure"`
	Mood             *string        `json:"mood"`
	Genre            *string        `json:"genre"`
	Transcription    *Transcription `json:"transcription"`
	Error            string         `json:"error,omitempty"`
}

// ErrorResult is the record reported for a fatal failure: the message, zero
// numbers and empty lists.
func ErrorResult(err error) *Result {
	return &Result{
		Beats:     []float64{},
		Onsets:    []float64{},
		Structure: Structure{Sections: []Section{}, Boundaries: []float64{}},
		Error:     err.Error(),
	}
}

// withTranscription returns a copy of r carrying t.
func (r *Result) withTranscription(t *Transcription) *Result {
	out := *r
	out.Transcription = t
	return &out
}

// Analyzer runs the analysis pipeline with its external collaborators.
// It holds no per-run state and may be shared between goroutines if its
// collaborators can.
type Analyzer struct {
	tempo       TempoEstimator
	transcriber Transcriber
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithTranscriber enables transcription in AnalyzeFile.
func WithTranscriber(t Transcriber) Option {
	return func(a *Analyzer) {
		a.transcriber = t
	}
}

// New creates an Analyzer using tempo for tempo and beat estimation.
func New(tempo TempoEstimator, opts ...Option) *Analyzer {
	a := &Analyzer{tempo: tempo}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze runs tempo estimation, onset detection, feature aggregation and
// structural segmentation over buf. Tempo failures are returned; onset
// failures are logged and reported as no onsets.
func (a *Analyzer) Analyze(ctx context.Context, buf *PCMBuffer, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if buf.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: buffer sample rate %d", ErrInvalidParameters, buf.SampleRate)
	}
	seg, err := NewFrameSegmenter(cfg.FrameSize, cfg.HopSize)
	if err != nil {
		return nil, err
	}

	tempo, err := a.tempo.EstimateTempo(ctx, buf)
	if err != nil {
		return nil, fmt.Errorf("estimate tempo: %w", err)
	}

	duration := buf.Duration()
	frameCount := seg.Count(len(buf.Samples))
	transformer := NewSpectralTransformer(cfg.FrameSize)
	detector := NewOnsetDetector(frameCount)
	features := NewFeatureAggregator(buf.SampleRate, frameCount)

	// One spectrum per frame, shared by every consumer.
	for i, frame := range seg.Frames(buf.Samples) {
		if i%ctxCheckFrames == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		spec := transformer.Transform(frame)
		detector.Push(spec)
		features.Push(frame, spec)
	}

	onsets, err := detector.Onsets(seg, buf.SampleRate, duration, cfg.MinOnsetInterval)
	if err != nil {
		log.Warnf("onset detection failed, reporting no onsets: %v", err)
		onsets = []float64{}
	}

	energy := features.Energy()
	if frameCount == 0 && len(buf.Samples) > 0 {
		energy = energyStats([]float64{MeanSquare(buf.Samples)})
	}

	coarse := CoarseFrames(buf.Samples, buf.SampleRate, cfg.CoarseFrameSpan, seg, features.Centroids())
	boundaries := DetectBoundaries(coarse, cfg.BoundaryDeviation, duration)
	sections := LabelSections(BuildSections(boundaries, duration, coarse), energy.Mean, duration, cfg.LabelRules())

	energy.Curve = make([]float64, len(coarse))
	for i, c := range coarse {
		energy.Curve[i] = c.Energy
	}

	log.Debugf("analyzed %.2fs: %d frames, %d onsets, %d sections", duration, frameCount, len(onsets), len(sections))

	return assemble(tempo, duration, onsets, cfg.MaxReportedOnsets, energy, features.MeanCentroid(),
		Structure{Sections: sections, Boundaries: boundaries}), nil
}

// assemble merges component outputs into a Result. maxOnsets caps the
// reported list when positive; OnsetCount is always the full count.
func assemble(tempo *Tempo, duration float64, onsets []float64, maxOnsets int, energy Energy, centroid float64, structure Structure) *Result {
	reported := onsets
	if maxOnsets > 0 && len(reported) > maxOnsets {
		reported = reported[:maxOnsets]
	}

	var rate float64
	if duration > 0 {
		rate = float64(len(onsets)) / duration
	}

	beats := tempo.Beats
	if beats == nil {
		beats = []float64{}
	}

	return &Result{
		BPM:              tempo.BPM,
		Beats:            beats,
		Confidence:       tempo.Confidence,
		Duration:         duration,
		Onsets:           reported,
		OnsetCount:       len(onsets),
		OnsetRate:        rate,
		Energy:           energy,
		SpectralCentroid: centroid,
		Structure:        structure,
	}
}

// AnalyzeFile loads path and analyzes it. Transcription, when configured,
// runs alongside the analysis on the raw file bytes. Fatal failures are
// reported through Result.Error.
func (a *Analyzer) AnalyzeFile(ctx context.Context, path string, cfg Config) *Result {
	result, _ := a.analyzeFile(ctx, path, cfg)
	return result
}

// analyzeFile also returns the decoded buffer, nil if decoding failed.
func (a *Analyzer) analyzeFile(ctx context.Context, path string, cfg Config) (*Result, *PCMBuffer) {
	buf, err := LoadAudioMono(path, cfg.SampleRate)
	if err != nil {
		log.Errorf("load %s: %v", filepath.Base(path), err)
		return ErrorResult(err), nil
	}

	var transcription chan *Transcription
	if a.transcriber != nil {
		transcription = make(chan *Transcription, 1)
		go func() {
			transcription <- a.transcribe(ctx, path)
		}()
	}

	result, err := a.Analyze(ctx, buf, cfg)
	if err != nil {
		log.Errorf("analyze %s: %v", filepath.Base(path), err)
		return ErrorResult(err), buf
	}

	if transcription != nil {
		result = result.withTranscription(<-transcription)
	}
	return result, buf
}

// transcribe returns nil on any failure.
func (a *Analyzer) transcribe(ctx context.Context, path string) *Transcription {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Warnf("transcription skipped: %v", fmt.Errorf("%w: %w", ErrTranscription, err))
		return nil
	}

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	t, err := a.transcriber.Transcribe(ctx, data, contentType)
	if err != nil {
		log.Warnf("transcription failed: %v", err)
		return nil
	}
	return t
}
