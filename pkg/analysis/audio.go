package analysis

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

// PCMBuffer is a decoded mono signal. It is not modified once loaded.
type PCMBuffer struct {
	Samples    []float64
	SampleRate int
}

// NewPCMBuffer wraps samples at sampleRate.
func NewPCMBuffer(samples []float64, sampleRate int) *PCMBuffer {
	return &PCMBuffer{Samples: samples, SampleRate: sampleRate}
}

// Duration returns the buffer length in seconds.
func (b *PCMBuffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(len(b.Samples)) / float64(b.SampleRate)
}

// LoadAudioMono decodes an audio file to mono samples in [-1, 1] at sampleRate.
func LoadAudioMono(path string, sampleRate int) (*PCMBuffer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate %d", ErrInvalidParameters, sampleRate)
	}

	var (
		samples []float64
		rate    int
		err     error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".mp3":
		samples, rate, err = loadMP3Mono(path)
	case ".wav":
		samples, rate, err = loadWAVMono(path)
	default:
		return nil, fmt.Errorf("%w: unsupported audio format: %s", ErrDecodeFailure, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodeFailure, err)
	}

	return NewPCMBuffer(resample(samples, rate, sampleRate), sampleRate), nil
}

// Additional samples that go-mp3 produces compared to browser decoders.
const goMP3DecoderDelay = 924

// Default encoder delay if we can't read it from the LAME header
const defaultEncoderDelay = 576

// readMP3Delay returns the LAME encoder delay plus the go-mp3 decoder delay.
func readMP3Delay(header []byte) int {
	return readLAMEEncoderDelay(header) + goMP3DecoderDelay
}

// readLAMEEncoderDelay reads the encoder delay from the LAME/Xing header in
// the first bytes of an MP3 file.
func readLAMEEncoderDelay(header []byte) int {
	if len(header) < 200 {
		return defaultEncoderDelay
	}

	lameIdx := bytes.Index(header, []byte("LAME"))
	if lameIdx == -1 {
		return defaultEncoderDelay
	}

	// 21 bytes after "LAME": 12 bits of delay, 12 bits of padding
	delayOffset := lameIdx + 21
	if delayOffset+3 > len(header) {
		return defaultEncoderDelay
	}
	b := header[delayOffset : delayOffset+3]
	delay := (int(b[0]) << 4) | (int(b[1]) >> 4)

	if delay > 4096 {
		return defaultEncoderDelay
	}
	return delay
}

// loadMP3Mono decodes an MP3 file, mixes it to mono and trims the codec delay.
func loadMP3Mono(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	header := make([]byte, 4096)
	n, _ := io.ReadFull(f, header)
	totalDelay := readMP3Delay(header[:n])
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, 0, fmt.Errorf("failed to rewind file: %w", err)
	}

	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create MP3 decoder: %w", err)
	}

	// 16-bit signed stereo, interleaved
	pcmData, err := io.ReadAll(decoder)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode MP3: %w", err)
	}

	numSamplePairs := len(pcmData) / 4
	samples := make([]float64, numSamplePairs)
	for i := range numSamplePairs {
		offset := i * 4
		left := int16(binary.LittleEndian.Uint16(pcmData[offset:]))
		right := int16(binary.LittleEndian.Uint16(pcmData[offset+2:]))
		samples[i] = (float64(left) + float64(right)) / 2.0 / 32768.0
	}

	if len(samples) > totalDelay {
		samples = samples[totalDelay:]
	}
	return samples, decoder.SampleRate(), nil
}

// loadWAVMono decodes an integer PCM WAV file and averages its channels.
func loadWAVMono(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, 0, fmt.Errorf("invalid WAV file")
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("could not read PCM buffer: %w", err)
	}

	channels := max(buf.Format.NumChannels, 1)
	bitDepth := int(decoder.BitDepth)
	scale := math.Pow(2, float64(bitDepth-1))
	offset := 0.0
	if bitDepth == 8 {
		offset = scale // 8-bit WAV is unsigned
	}

	samples := make([]float64, len(buf.Data)/channels)
	for i := range samples {
		var sum float64
		for ch := range channels {
			sum += (float64(buf.Data[i*channels+ch]) - offset) / scale
		}
		samples[i] = sum / float64(channels)
	}
	return samples, buf.Format.SampleRate, nil
}

// WriteWAV writes b as a 16-bit mono WAV file.
func WriteWAV(path string, b *PCMBuffer) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create WAV: %w", err)
	}
	defer f.Close()

	data := make([]int, len(b.Samples))
	for i, s := range b.Samples {
		data[i] = int(math.Round(math.Max(-1, math.Min(1, s)) * 32767))
	}

	enc := wav.NewEncoder(f, b.SampleRate, 16, 1, 1)
	if err := enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: b.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}); err != nil {
		return fmt.Errorf("write WAV: %w", err)
	}
	return enc.Close()
}

// resample converts samples from one rate to another by linear interpolation.
func resample(samples []float64, from, to int) []float64 {
	if from == to || from <= 0 || len(samples) == 0 {
		return samples
	}

	n := int(int64(len(samples)) * int64(to) / int64(from))
	out := make([]float64, n)
	ratio := float64(from) / float64(to)
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		if j+1 >= len(samples) {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := pos - float64(j)
		out[i] = samples[j]*(1-frac) + samples[j+1]*frac
	}
	return out
}
