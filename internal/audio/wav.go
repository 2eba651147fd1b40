package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/faiface/beep"
	"github.com/faiface/beep/wav"
)

// WAV chunk layout constants.
const (
	riffHeaderLen  = 12
	chunkHeaderLen = 8
	fmtChunkMinLen = 16
	pcmFormatTag   = 1
)

var (
	// ErrNotWAV indicates data without a RIFF/WAVE header.
	ErrNotWAV = errors.New("not a RIFF/WAVE stream")
	// ErrUnsupportedFormat indicates a WAV stream that is not mono
	// 16-bit PCM.
	ErrUnsupportedFormat = errors.New("unsupported WAV format")
)

// WriteWAV persists the buffer at path as a mono 16-bit PCM WAV file.
func WriteWAV(path string, buf *Buffer) error {
	if buf == nil || len(buf.Samples) == 0 {
		return ErrEmptyAudio
	}

	file, createErr := os.Create(path) // #nosec G304 -- pipeline-owned temp file
	if createErr != nil {
		return fmt.Errorf("failed to create wav file %s: %w", path, createErr)
	}

	format := beep.Format{
		SampleRate:  beep.SampleRate(buf.Rate),
		NumChannels: 1,
		Precision:   bytesPerSample,
	}

	encodeErr := wav.Encode(file, newBufferStreamer(buf), format)
	closeErr := file.Close()

	if encodeErr != nil {
		return fmt.Errorf("failed to encode wav file %s: %w", path, encodeErr)
	}

	if closeErr != nil {
		return fmt.Errorf("failed to close wav file %s: %w", path, closeErr)
	}

	return nil
}

// ParseWAV decodes a mono 16-bit PCM WAV stream. Writers that stream their
// output leave the data chunk size unset, so an implausible size falls back
// to reading through the end of the input.
func ParseWAV(data []byte) (*Buffer, error) {
	if len(data) < riffHeaderLen ||
		string(data[0:4]) != "RIFF" ||
		string(data[8:12]) != "WAVE" {
		return nil, ErrNotWAV
	}

	var (
		rate    int
		haveFmt bool
	)

	offset := riffHeaderLen

	for offset+chunkHeaderLen <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + chunkHeaderLen

		switch chunkID {
		case "fmt ":
			fmtErr := parseFmtChunk(data, body, &rate)
			if fmtErr != nil {
				return nil, fmtErr
			}

			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, fmt.Errorf("%w: data chunk before fmt", ErrNotWAV)
			}

			end := body + chunkSize
			if chunkSize <= 0 || end > len(data) {
				end = len(data)
			}

			return &Buffer{
				Samples: decodeSamples(data[body:end]),
				Rate:    rate,
			}, nil
		}

		if chunkSize <= 0 || body+chunkSize > len(data) {
			break
		}

		offset = body + chunkSize + chunkSize%2
	}

	return nil, fmt.Errorf("%w: no data chunk", ErrNotWAV)
}

func parseFmtChunk(data []byte, body int, rate *int) error {
	if body+fmtChunkMinLen > len(data) {
		return fmt.Errorf("%w: truncated fmt chunk", ErrNotWAV)
	}

	formatTag := binary.LittleEndian.Uint16(data[body:])
	channels := binary.LittleEndian.Uint16(data[body+2:])
	sampleRate := binary.LittleEndian.Uint32(data[body+4:])
	bitsPerSample := binary.LittleEndian.Uint16(data[body+14:])

	if formatTag != pcmFormatTag || channels != 1 || bitsPerSample != 16 {
		return fmt.Errorf("%w: format=%d channels=%d bits=%d",
			ErrUnsupportedFormat, formatTag, channels, bitsPerSample)
	}

	*rate = int(sampleRate)

	return nil
}
