// Package audio provides the PCM buffer type, sample-rate conversion and
// WAV container handling for the speak pipeline. All audio is mono 16-bit
// signed little-endian PCM.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
)

// ErrEmptyAudio indicates a buffer with no samples where audio is required.
var ErrEmptyAudio = errors.New("audio buffer has no samples")

const (
	bytesPerSample = 2
	sampleScale    = 32767
)

// Buffer holds mono PCM samples at a known sample rate.
type Buffer struct {
	Samples []int16
	Rate    int
}

// Duration is the buffer length in seconds.
func (b *Buffer) Duration() float64 {
	if b.Rate <= 0 {
		return 0
	}

	return float64(len(b.Samples)) / float64(b.Rate)
}

// ReadRaw loads a headerless little-endian PCM file rendered at rate.
func ReadRaw(path string, rate int) (*Buffer, error) {
	data, readErr := os.ReadFile(path) // #nosec G304 -- pipeline-owned temp file
	if readErr != nil {
		return nil, fmt.Errorf("failed to read raw audio %s: %w", path, readErr)
	}

	return &Buffer{
		Samples: decodeSamples(data),
		Rate:    rate,
	}, nil
}

// decodeSamples converts little-endian PCM bytes to samples. A trailing odd
// byte is dropped.
func decodeSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/bytesPerSample)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*bytesPerSample:]))
	}

	return samples
}

// quantize converts a floating-point sample in [-1, 1] back to 16-bit PCM,
// clamping out-of-range values instead of wrapping.
func quantize(value float64) int16 {
	scaled := math.Round(value * sampleScale)
	if scaled > math.MaxInt16 {
		return math.MaxInt16
	}

	if scaled < math.MinInt16 {
		return math.MinInt16
	}

	return int16(scaled)
}
