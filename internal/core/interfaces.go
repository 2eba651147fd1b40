// Package core defines the request types and collaborator interfaces for the
// speak pipeline.
package core

import "context"

// AnyDigit is the interrupt specification that matches every DTMF digit.
const AnyDigit = "any"

// Request describes a single utterance to synthesize and play.
type Request struct {
	// Text is the utterance to speak. Must be non-empty.
	Text string

	// InterruptKeys lists the DTMF digits that cancel playback, or
	// AnyDigit to cancel on any digit. Empty disables interruption.
	InterruptKeys string

	// Language optionally overrides the configured voice for this
	// request only.
	Language string
}

// ArtifactStore persists rendered audio artifacts keyed by content
// fingerprint. Stores are an optimization, not a correctness requirement:
// callers treat store failures as non-fatal.
type ArtifactStore interface {
	Exists(ctx context.Context, key string) bool
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}

// Channel is the host runtime's playback surface. The pipeline never owns
// the channel; it only asks it to stream a rendered artifact and to watch
// for interrupt digits while streaming.
type Channel interface {
	IsAnswered() bool
	Answer() error

	// Language reports the channel's own locale. It is independent of
	// the synthesis voice: a request may render in one language while
	// the channel stays tagged with another.
	Language() string

	// StreamArtifact starts streaming the audio file at path on the
	// channel, tagged with the given locale.
	StreamArtifact(path, locale string) error

	// WaitForInterrupt blocks until playback finishes or the far end
	// presses a digit in keys. It returns the digit that interrupted
	// playback, or zero if playback ran to completion.
	WaitForInterrupt(keys string) (byte, error)

	StopStream() error
}
