package speaker

import (
	"github.com/book-expert/logger"
)

// Console is a minimal core.Channel for command-line use: it reports the
// rendered artifact instead of streaming it and never interrupts. The real
// telephony channel lives in the host runtime.
type Console struct {
	log      *logger.Logger
	answered bool
}

// NewConsole creates a console channel.
func NewConsole(log *logger.Logger) *Console {
	return &Console{
		log:      log,
		answered: false,
	}
}

// IsAnswered reports whether Answer has been called.
func (c *Console) IsAnswered() bool {
	return c.answered
}

// Answer marks the channel up.
func (c *Console) Answer() error {
	c.answered = true

	return nil
}

// Language reports an empty locale; the console has no host language.
func (c *Console) Language() string {
	return ""
}

// StreamArtifact reports the artifact that would be played.
func (c *Console) StreamArtifact(path, locale string) error {
	c.log.Info("Playing artifact %s (locale %s)", path, locale)

	return nil
}

// WaitForInterrupt always reports completed playback.
func (c *Console) WaitForInterrupt(_ string) (byte, error) {
	return 0, nil
}

// StopStream is a no-op for the console.
func (c *Console) StopStream() error {
	return nil
}
