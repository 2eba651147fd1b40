// Package engine adapts an opaque text-to-speech capability into the speak
// pipeline. The capability delivers audio exclusively through a synchronous
// callback; the adapter owns the output sink for the duration of one
// synthesis and guarantees paired initialize/terminate calls.
package engine

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/book-expert/logger"
)

// Static errors for the two fatal engine stages.
var (
	// ErrInit indicates the underlying engine could not initialize.
	// This is treated as a broken installation: no retry.
	ErrInit = errors.New("engine initialization failed")
	// ErrSynthesis indicates the engine failed while producing audio.
	ErrSynthesis = errors.New("engine synthesis failed")
)

// Prosody carries the five voice-shaping parameters understood by the
// engine.
type Prosody struct {
	Speed    int
	Volume   int
	WordGap  int
	Pitch    int
	Capitals int
}

// SampleSink receives PCM samples from the engine as they become
// available. The engine may call Append any number of times per synthesis,
// including with zero samples; returning from Synthesize is the end
// marker.
type SampleSink interface {
	Append(samples []int16) error
}

// Capability is the opaque text-to-speech engine: text in, PCM samples out
// through the sink callback at the engine's fixed native rate. Engines are
// not assumed reentrant; the adapter serializes access.
type Capability interface {
	// Initialize prepares the engine and returns its native sample
	// rate. Must be paired with exactly one Terminate.
	Initialize() (int, error)

	SetVoice(voice string) error
	SetProsody(prosody Prosody) error

	// Synthesize renders text, delivering samples to sink in callback
	// order.
	Synthesize(text string, sink SampleSink) error

	// Terminate releases engine-global resources.
	Terminate() error
}

// synthMu serializes the initialize->synthesize->terminate sequence across
// concurrent invocations sharing the process-wide engine.
var synthMu sync.Mutex

// Adapter drives a Capability for one synthesis at a time.
type Adapter struct {
	capability Capability
	log        *logger.Logger
}

// NewAdapter creates an adapter over the given capability.
func NewAdapter(capability Capability, log *logger.Logger) *Adapter {
	return &Adapter{
		capability: capability,
		log:        log,
	}
}

// RenderToFile synthesizes text into a headerless little-endian PCM file
// at rawPath and returns the engine's native sample rate.
func (a *Adapter) RenderToFile(text, voice string, prosody Prosody, rawPath string) (int, error) {
	synthMu.Lock()
	defer synthMu.Unlock()

	nativeRate, initErr := a.capability.Initialize()
	if initErr != nil {
		return 0, fmt.Errorf("%w: %v", ErrInit, initErr)
	}

	defer func() {
		termErr := a.capability.Terminate()
		if termErr != nil {
			a.log.Warn("Failed to terminate engine: %v", termErr)
		}
	}()

	configErr := a.configure(voice, prosody)
	if configErr != nil {
		return 0, configErr
	}

	sink, sinkErr := newRawSink(rawPath)
	if sinkErr != nil {
		return 0, fmt.Errorf("%w: %v", ErrSynthesis, sinkErr)
	}

	synthErr := a.capability.Synthesize(text, sink)
	closeErr := sink.Close()

	if synthErr != nil {
		return 0, fmt.Errorf("%w: %v", ErrSynthesis, synthErr)
	}

	if closeErr != nil {
		return 0, fmt.Errorf("%w: %v", ErrSynthesis, closeErr)
	}

	return nativeRate, nil
}

func (a *Adapter) configure(voice string, prosody Prosody) error {
	voiceErr := a.capability.SetVoice(voice)
	if voiceErr != nil {
		return fmt.Errorf("%w: %v", ErrSynthesis, voiceErr)
	}

	prosodyErr := a.capability.SetProsody(prosody)
	if prosodyErr != nil {
		return fmt.Errorf("%w: %v", ErrSynthesis, prosodyErr)
	}

	return nil
}

// rawSink buffers PCM samples into a file as little-endian bytes. It is
// the single output sink the adapter owns per synthesis.
type rawSink struct {
	file   *os.File
	writer *bufio.Writer
}

func newRawSink(path string) (*rawSink, error) {
	file, createErr := os.Create(path) // #nosec G304 -- pipeline-owned temp file
	if createErr != nil {
		return nil, fmt.Errorf("failed to create raw sink %s: %w", path, createErr)
	}

	return &rawSink{
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

// Append writes samples in callback order. Zero-sample calls are valid.
func (s *rawSink) Append(samples []int16) error {
	if len(samples) == 0 {
		return nil
	}

	writeErr := binary.Write(s.writer, binary.LittleEndian, samples)
	if writeErr != nil {
		return fmt.Errorf("failed to append samples: %w", writeErr)
	}

	return nil
}

func (s *rawSink) Close() error {
	flushErr := s.writer.Flush()
	closeErr := s.file.Close()

	if flushErr != nil {
		return fmt.Errorf("failed to flush raw sink: %w", flushErr)
	}

	if closeErr != nil {
		return fmt.Errorf("failed to close raw sink: %w", closeErr)
	}

	return nil
}
