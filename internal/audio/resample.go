package audio

import (
	"errors"
	"fmt"

	"github.com/faiface/beep"
)

// fastestQuality selects beep's lowest interpolation quality tier. Speech
// does not benefit from the higher tiers and conversion stays cheap.
const fastestQuality = 1

// ErrInvalidRate indicates a non-positive target sample rate.
var ErrInvalidRate = errors.New("invalid target sample rate")

// Resample converts a buffer to targetRate. When the rates already match
// the result is a copy with bit-identical samples. Otherwise conversion
// happens in floating point and is re-quantized to 16-bit PCM, with the
// output normalized to floor(frames × target/native) samples.
func Resample(in *Buffer, targetRate int) (*Buffer, error) {
	if in == nil || len(in.Samples) == 0 {
		return nil, ErrEmptyAudio
	}

	if targetRate <= 0 || in.Rate <= 0 {
		return nil, fmt.Errorf("%w: %d -> %d", ErrInvalidRate, in.Rate, targetRate)
	}

	if in.Rate == targetRate {
		out := make([]int16, len(in.Samples))
		copy(out, in.Samples)

		return &Buffer{Samples: out, Rate: targetRate}, nil
	}

	resampler := beep.Resample(
		fastestQuality,
		beep.SampleRate(in.Rate),
		beep.SampleRate(targetRate),
		newBufferStreamer(in),
	)

	want := len(in.Samples) * targetRate / in.Rate
	samples := drain(resampler, want)

	return &Buffer{Samples: samples, Rate: targetRate}, nil
}

// drain pulls the full resampled stream and fixes its length at want
// frames: the interpolator may land a frame short or long at the stream
// boundary.
func drain(streamer beep.Streamer, want int) []int16 {
	const chunkFrames = 512

	samples := make([]int16, 0, want)
	frames := make([][2]float64, chunkFrames)

	for {
		n, ok := streamer.Stream(frames)
		for _, frame := range frames[:n] {
			samples = append(samples, quantize(frame[0]))
		}

		if !ok {
			break
		}
	}

	if len(samples) > want {
		return samples[:want]
	}

	for len(samples) < want {
		samples = append(samples, 0)
	}

	return samples
}

// bufferStreamer adapts a Buffer to beep's pull-based streamer, presenting
// the mono signal on both channels in the unit float range.
type bufferStreamer struct {
	samples []int16
	pos     int
}

func newBufferStreamer(buf *Buffer) *bufferStreamer {
	return &bufferStreamer{samples: buf.Samples, pos: 0}
}

func (s *bufferStreamer) Stream(frames [][2]float64) (int, bool) {
	if s.pos >= len(s.samples) {
		return 0, false
	}

	filled := 0

	for i := range frames {
		if s.pos >= len(s.samples) {
			break
		}

		value := float64(s.samples[s.pos]) / sampleScale
		frames[i][0] = value
		frames[i][1] = value
		s.pos++
		filled++
	}

	return filled, true
}

func (s *bufferStreamer) Err() error {
	return nil
}
