package analysis

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// Section labels.
const (
	LabelIntro   = "intro"
	LabelOutro   = "outro"
	LabelChorus  = "chorus"
	LabelVerse   = "verse"
	LabelBridge  = "bridge"
	LabelSong    = "song"
	LabelSection = "section" // unlabeled
)

// Structure is the coarse segmentation of a track.
type Structure struct {
	Sections   []Section `json:"sections"`
	Boundaries []float64 `json:"boundaries"`
}

// Section is a labeled span of the track. Sections partition [0, duration].
type Section struct {
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Duration float64 `json:"duration"`
	Label    string  `json:"label"`
	Energy   float64 `json:"energy"`
}

// CoarseFrame aggregates energy and centroid over one coarse span.
type CoarseFrame struct {
	Start    float64
	Energy   float64
	Centroid float64
}

// LabelRules are the energy and duration ratios of the section labeling heuristic.
type LabelRules struct {
	ChorusEnergyRatio   float64
	VerseEnergyRatio    float64
	BridgeDurationRatio float64
}

// LabelRules returns the labeling ratios of c.
func (c Config) LabelRules() LabelRules {
	return LabelRules{
		ChorusEnergyRatio:   c.ChorusEnergyRatio,
		VerseEnergyRatio:    c.VerseEnergyRatio,
		BridgeDurationRatio: c.BridgeDurationRatio,
	}
}

// CoarseFrames re-frames samples into non-overlapping spans of span seconds.
// Each coarse frame's centroid is the mean of the fine-frame centroids whose
// frames lie fully inside it, or 0 if there are none. A trailing partial span
// is kept.
func CoarseFrames(samples []float64, sampleRate int, span float64, seg *FrameSegmenter, centroids []float64) []CoarseFrame {
	size := max(int(math.Round(span*float64(sampleRate))), 1)
	n := (len(samples) + size - 1) / size

	frames := make([]CoarseFrame, n)
	for c := range n {
		lo := c * size
		hi := min(lo+size, len(samples))

		var sum float64
		var count int
		for i := (lo + seg.HopSize - 1) / seg.HopSize; i < len(centroids); i++ {
			if i*seg.HopSize+seg.FrameSize > hi {
				break
			}
			sum += centroids[i]
			count++
		}

		frames[c] = CoarseFrame{
			Start:  float64(lo) / float64(sampleRate),
			Energy: MeanSquare(samples[lo:hi]),
		}
		if count > 0 {
			frames[c].Centroid = sum / float64(count)
		}
	}
	return frames
}

// DetectBoundaries flags the start of every coarse frame whose energy or
// centroid jumps from its predecessor by more than deviation times the
// series standard deviation. Results are sorted, unique and strictly inside
// (0, duration).
func DetectBoundaries(frames []CoarseFrame, deviation, duration float64) []float64 {
	if len(frames) < 2 {
		return []float64{}
	}

	energies := make([]float64, len(frames))
	centroids := make([]float64, len(frames))
	for i, f := range frames {
		energies[i] = f.Energy
		centroids[i] = f.Centroid
	}
	energyThreshold := deviation * stat.PopStdDev(energies, nil)
	centroidThreshold := deviation * stat.PopStdDev(centroids, nil)

	boundaries := []float64{}
	for i := 1; i < len(frames); i++ {
		dEnergy := math.Abs(energies[i] - energies[i-1])
		dCentroid := math.Abs(centroids[i] - centroids[i-1])
		if dEnergy <= energyThreshold && dCentroid <= centroidThreshold {
			continue
		}
		if t := frames[i].Start; t > 0 && t < duration {
			boundaries = append(boundaries, t)
		}
	}

	slices.Sort(boundaries)
	return slices.Compact(boundaries)
}

// BuildSections cuts [0, duration] at the boundaries. Each section's energy is
// the mean energy of the coarse frames starting inside it. Sections are
// returned unlabeled.
func BuildSections(boundaries []float64, duration float64, frames []CoarseFrame) []Section {
	if duration <= 0 {
		return []Section{}
	}

	cuts := make([]float64, 0, len(boundaries)+2)
	cuts = append(cuts, 0)
	cuts = append(cuts, boundaries...)
	cuts = append(cuts, duration)

	sections := make([]Section, 0, len(cuts)-1)
	for i := 1; i < len(cuts); i++ {
		start, end := cuts[i-1], cuts[i]

		var sum float64
		var count int
		for _, f := range frames {
			if f.Start >= start && f.Start < end {
				sum += f.Energy
				count++
			}
		}

		s := Section{
			Start:    start,
			End:      end,
			Duration: end - start,
			Label:    LabelSection,
		}
		if count > 0 {
			s.Energy = sum / float64(count)
		}
		sections = append(sections, s)
	}
	return sections
}

// LabelSections returns a labeled copy of sections. A lone section is a song.
// Otherwise the first match wins: first is intro, last is outro, loud is
// chorus, quiet is verse, short is bridge, anything else is verse.
func LabelSections(sections []Section, globalEnergyMean, duration float64, rules LabelRules) []Section {
	labeled := slices.Clone(sections)
	if len(labeled) == 1 {
		labeled[0].Label = LabelSong
		return labeled
	}

	last := len(labeled) - 1
	for i := range labeled {
		s := &labeled[i]
		switch {
		case i == 0:
			s.Label = LabelIntro
		case i == last:
			s.Label = LabelOutro
		case s.Energy > rules.ChorusEnergyRatio*globalEnergyMean:
			s.Label = LabelChorus
		case s.Energy < rules.VerseEnergyRatio*globalEnergyMean:
			s.Label = LabelVerse
		case s.Duration < rules.BridgeDurationRatio*duration:
			s.Label = LabelBridge
		default:
			s.Label = LabelVerse
		}
	}
	return labeled
}
