package engine

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/telvox/speak/internal/audio"
)

// espeakNativeRate is the fixed output rate of eSpeak-NG, independent of
// the desired playback rate.
const espeakNativeRate = 22050

// sinkChunkSamples bounds how many samples are handed to the sink per
// callback.
const sinkChunkSamples = 4096

var (
	// ErrESpeakNotFound indicates no eSpeak binary is installed.
	ErrESpeakNotFound = errors.New("espeak executable not found in PATH")
	// ErrUnexpectedRate indicates the binary produced audio at a rate
	// other than the one promised by Initialize.
	ErrUnexpectedRate = errors.New("espeak produced an unexpected sample rate")
)

// espeakCandidates are tried in order when locating the binary.
var espeakCandidates = []string{"espeak-ng", "espeak"}

// ESpeak drives the eSpeak-NG binary as a synthesis capability. Each
// synthesis runs the binary once with --stdout and feeds the resulting PCM
// through the sink in chunks.
type ESpeak struct {
	binaryPath string
	voice      string
	prosody    Prosody
}

// NewESpeak locates the eSpeak binary.
func NewESpeak() (*ESpeak, error) {
	for _, candidate := range espeakCandidates {
		path, lookErr := exec.LookPath(candidate)
		if lookErr == nil {
			return &ESpeak{
				binaryPath: path,
				voice:      "",
				prosody:    Prosody{Speed: 0, Volume: 0, WordGap: 0, Pitch: 0, Capitals: 0},
			}, nil
		}
	}

	return nil, ErrESpeakNotFound
}

// Initialize verifies the installation and returns the native sample rate.
func (e *ESpeak) Initialize() (int, error) {
	versionErr := exec.Command(e.binaryPath, "--version").Run() // #nosec G204 -- path from exec.LookPath
	if versionErr != nil {
		return 0, fmt.Errorf("espeak installation check failed: %w", versionErr)
	}

	return espeakNativeRate, nil
}

// SetVoice records the voice identifier. Unknown voices are the binary's
// concern; it degrades to its default voice.
func (e *ESpeak) SetVoice(voice string) error {
	e.voice = voice

	return nil
}

// SetProsody records the prosody parameters.
func (e *ESpeak) SetProsody(prosody Prosody) error {
	e.prosody = prosody

	return nil
}

// synthesisArgs builds the command line for one utterance. The option
// terminator keeps text beginning with a dash from being read as a flag.
func (e *ESpeak) synthesisArgs(text string) []string {
	args := []string{
		"-s", strconv.Itoa(e.prosody.Speed),
		"-a", strconv.Itoa(e.prosody.Volume),
		"-g", strconv.Itoa(e.prosody.WordGap),
		"-p", strconv.Itoa(e.prosody.Pitch),
		"-k", strconv.Itoa(e.prosody.Capitals),
		"--stdout",
	}

	if e.voice != "" && e.voice != "default" {
		args = append(args, "-v", e.voice)
	}

	return append(args, "--", text)
}

// Synthesize runs the binary and delivers the decoded samples to the sink.
func (e *ESpeak) Synthesize(text string, sink SampleSink) error {
	args := e.synthesisArgs(text)

	var stdout, stderr bytes.Buffer

	cmd := exec.Command(e.binaryPath, args...) // #nosec G204 -- path from exec.LookPath
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if runErr != nil {
		return fmt.Errorf("espeak execution failed: %w - output: %s", runErr, stderr.String())
	}

	buf, parseErr := audio.ParseWAV(stdout.Bytes())
	if parseErr != nil {
		return fmt.Errorf("failed to decode espeak output: %w", parseErr)
	}

	if buf.Rate != espeakNativeRate {
		return fmt.Errorf("%w: got %d", ErrUnexpectedRate, buf.Rate)
	}

	for start := 0; start < len(buf.Samples); start += sinkChunkSamples {
		end := start + sinkChunkSamples
		if end > len(buf.Samples) {
			end = len(buf.Samples)
		}

		appendErr := sink.Append(buf.Samples[start:end])
		if appendErr != nil {
			return fmt.Errorf("failed to deliver samples: %w", appendErr)
		}
	}

	return nil
}

// Terminate releases engine state. The subprocess capability holds none.
func (e *ESpeak) Terminate() error {
	return nil
}
