// Package speaker orchestrates the synthesis-to-playback pipeline: cache
// lookup, speech rendering, sample-rate conversion, artifact persistence
// and interruptible playback on the host channel.
package speaker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/book-expert/logger"
	"github.com/google/uuid"

	"github.com/telvox/speak/internal/audio"
	"github.com/telvox/speak/internal/cache"
	"github.com/telvox/speak/internal/config"
	"github.com/telvox/speak/internal/core"
	"github.com/telvox/speak/internal/engine"
)

// Static errors for the fatal pipeline stages. Engine-stage errors come
// from the engine package; cache problems are never fatal and surface only
// in the log.
var (
	// ErrEmptyText indicates a request without text. Nothing is
	// attempted.
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrResampling indicates the rendered audio could not be converted
	// to the target rate.
	ErrResampling = errors.New("resampling failed")
	// ErrPlayback indicates the channel collaborator failed while
	// streaming.
	ErrPlayback = errors.New("playback failed")
)

// Status is the user-visible outcome of one invocation.
type Status int

const (
	// StatusCompleted means the artifact played to the end.
	StatusCompleted Status = iota
	// StatusInterrupted means the far end pressed an interrupt digit.
	StatusInterrupted
	// StatusFailed means a fatal stage error aborted the invocation.
	StatusFailed
)

// Result reports how playback ended. Digit is set only for
// StatusInterrupted.
type Result struct {
	Status Status
	Digit  byte
}

// Temporary file naming. The random token keeps concurrent invocations
// from contending on the same paths.
const (
	tempFilePrefix = "speak_"
	rawExt         = ".raw"
	wavExt         = ".wav"
	wavWidebandExt = ".wav16"
)

const artifactPermissions = 0o600

// Speaker runs the pipeline for one invocation at a time. Independent
// invocations may run concurrently on separate channels; the engine
// adapter serializes the one process-wide shared resource.
type Speaker struct {
	settings config.Settings
	engine   *engine.Adapter
	store    core.ArtifactStore
	log      *logger.Logger
}

// New creates a speaker. store may be nil to disable caching regardless of
// the settings.
func New(settings config.Settings, adapter *engine.Adapter, store core.ArtifactStore, log *logger.Logger) *Speaker {
	return &Speaker{
		settings: settings,
		engine:   adapter,
		store:    store,
		log:      log,
	}
}

// Speak renders the request text and plays it on the channel. It returns
// exactly one of: completed, interrupted with the triggering digit, or an
// error naming the failed stage. Temporary files are removed on every exit
// path; cache artifacts are persisted only after resampling fully
// succeeds, so a failure never leaves a partial artifact behind.
func (s *Speaker) Speak(ctx context.Context, channel core.Channel, req core.Request) (Result, error) {
	failed := Result{Status: StatusFailed, Digit: 0}

	if req.Text == "" {
		return failed, ErrEmptyText
	}

	voice := s.settings.Voice
	if req.Language != "" {
		voice = req.Language
	}

	interruptKeys := req.InterruptKeys
	if strings.EqualFold(interruptKeys, core.AnyDigit) {
		interruptKeys = core.AnyDigit
	}

	rawPath, playPath := s.tempPaths()
	defer s.removeTemp(rawPath)
	defer s.removeTemp(playPath)

	key := cache.Fingerprint(req.Text)
	useCache := s.settings.UseCache && s.store != nil

	prepErr := s.prepareArtifact(ctx, req.Text, voice, key, useCache, rawPath, playPath)
	if prepErr != nil {
		return failed, prepErr
	}

	digit, playErr := s.play(channel, playPath, interruptKeys)
	if playErr != nil {
		return failed, playErr
	}

	if digit != 0 {
		return Result{Status: StatusInterrupted, Digit: digit}, nil
	}

	return Result{Status: StatusCompleted, Digit: 0}, nil
}

// prepareArtifact leaves a playback-ready artifact at playPath, either
// from the cache or by rendering and resampling the text.
func (s *Speaker) prepareArtifact(
	ctx context.Context,
	text, voice, key string,
	useCache bool,
	rawPath, playPath string,
) error {
	if useCache && s.store.Exists(ctx, key) {
		data, downloadErr := s.store.Download(ctx, key)
		if downloadErr == nil {
			writeErr := os.WriteFile(playPath, data, artifactPermissions)
			if writeErr != nil {
				return fmt.Errorf("%w: %v", ErrPlayback, writeErr)
			}

			return nil
		}

		// A broken cache entry is not fatal; fall through to a fresh
		// render.
		s.log.Warn("Cache read skipped for %s: %v", key, downloadErr)
	}

	renderErr := s.render(text, voice, rawPath, playPath)
	if renderErr != nil {
		return renderErr
	}

	if useCache {
		s.persist(ctx, key, playPath)
	}

	return nil
}

// render synthesizes text to rawPath and writes the resampled,
// container-wrapped artifact to playPath.
func (s *Speaker) render(text, voice, rawPath, playPath string) error {
	prosody := engine.Prosody{
		Speed:    s.settings.Speed,
		Volume:   s.settings.Volume,
		WordGap:  s.settings.WordGap,
		Pitch:    s.settings.Pitch,
		Capitals: s.settings.Capitals,
	}

	nativeRate, renderErr := s.engine.RenderToFile(text, voice, prosody, rawPath)
	if renderErr != nil {
		return renderErr
	}

	raw, readErr := audio.ReadRaw(rawPath, nativeRate)
	if readErr != nil {
		return fmt.Errorf("%w: %v", ErrResampling, readErr)
	}

	resampled, resampleErr := audio.Resample(raw, s.settings.TargetRate)
	if resampleErr != nil {
		return fmt.Errorf("%w: %v", ErrResampling, resampleErr)
	}

	writeErr := audio.WriteWAV(playPath, resampled)
	if writeErr != nil {
		return fmt.Errorf("%w: %v", ErrResampling, writeErr)
	}

	s.removeTemp(rawPath)

	return nil
}

// persist stores the rendered artifact under key. Failures are logged and
// never abort playback: the cache is an optimization.
func (s *Speaker) persist(ctx context.Context, key, playPath string) {
	data, readErr := os.ReadFile(playPath) // #nosec G304 -- pipeline-owned temp file
	if readErr != nil {
		s.log.Warn("Cache write skipped for %s: %v", key, readErr)

		return
	}

	uploadErr := s.store.Upload(ctx, key, data)
	if uploadErr != nil {
		s.log.Warn("Cache write failed for %s: %v", key, uploadErr)
	}
}

// play streams the artifact and waits for completion or an interrupt
// digit. The channel is answered first if it is not already up. The stream
// is tagged with the channel's locale, not the synthesis voice.
func (s *Speaker) play(channel core.Channel, path, interruptKeys string) (byte, error) {
	if !channel.IsAnswered() {
		answerErr := channel.Answer()
		if answerErr != nil {
			return 0, fmt.Errorf("%w: %v", ErrPlayback, answerErr)
		}
	}

	streamErr := channel.StreamArtifact(path, channel.Language())
	if streamErr != nil {
		return 0, fmt.Errorf("%w: %v", ErrPlayback, streamErr)
	}

	digit, waitErr := channel.WaitForInterrupt(interruptKeys)

	stopErr := channel.StopStream()
	if stopErr != nil {
		s.log.Warn("Failed to stop stream: %v", stopErr)
	}

	if waitErr != nil {
		return 0, fmt.Errorf("%w: %v", ErrPlayback, waitErr)
	}

	return digit, nil
}

// tempPaths derives the per-invocation intermediate file names. Wideband
// artifacts carry a distinct extension so the host's format detection
// picks the right codec.
func (s *Speaker) tempPaths() (rawPath, playPath string) {
	token := tempFilePrefix + uuid.NewString()

	playExt := wavExt
	if s.settings.TargetRate == config.SampleRateWideband {
		playExt = wavWidebandExt
	}

	rawPath = filepath.Join(s.settings.TempDir, token+rawExt)
	playPath = filepath.Join(s.settings.TempDir, token+playExt)

	return rawPath, playPath
}

func (s *Speaker) removeTemp(path string) {
	removeErr := os.Remove(path)
	if removeErr != nil && !os.IsNotExist(removeErr) {
		s.log.Warn("Failed to remove temp file %s: %v", path, removeErr)
	}
}
