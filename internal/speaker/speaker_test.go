// Package speaker_test tests the playback orchestrator against a fake
// engine capability and a mock channel.
package speaker_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telvox/speak/internal/cache"
	"github.com/telvox/speak/internal/config"
	"github.com/telvox/speak/internal/core"
	"github.com/telvox/speak/internal/engine"
	"github.com/telvox/speak/internal/speaker"
)

var (
	errFakeInit   = errors.New("fake init failure")
	errFakeStream = errors.New("fake stream failure")
	errFakeStore  = errors.New("fake store failure")
)

// fakeCapability renders a fixed tenth of a second of silence at 22050 Hz.
type fakeCapability struct {
	initFails  bool
	emptyAudio bool
	synthCount int
}

func (f *fakeCapability) Initialize() (int, error) {
	if f.initFails {
		return 0, errFakeInit
	}

	return 22050, nil
}

func (f *fakeCapability) SetVoice(_ string) error {
	return nil
}

func (f *fakeCapability) SetProsody(_ engine.Prosody) error {
	return nil
}

func (f *fakeCapability) Synthesize(_ string, sink engine.SampleSink) error {
	f.synthCount++

	if f.emptyAudio {
		return nil
	}

	return sink.Append(make([]int16, 2205))
}

func (f *fakeCapability) Terminate() error {
	return nil
}

// mockChannel records the playback interaction and can inject an interrupt
// digit or a streaming failure.
type mockChannel struct {
	answered      bool
	answerCount   int
	language      string
	streamedPath  string
	streamedFiles int
	streamFails   bool
	locale        string
	waitKeys      string
	digit         byte
	stopped       bool
}

func (m *mockChannel) IsAnswered() bool {
	return m.answered
}

func (m *mockChannel) Answer() error {
	m.answered = true
	m.answerCount++

	return nil
}

func (m *mockChannel) Language() string {
	return m.language
}

func (m *mockChannel) StreamArtifact(path, locale string) error {
	if m.streamFails {
		return errFakeStream
	}

	m.streamedPath = path
	m.streamedFiles++
	m.locale = locale

	return nil
}

func (m *mockChannel) WaitForInterrupt(keys string) (byte, error) {
	m.waitKeys = keys

	return m.digit, nil
}

func (m *mockChannel) StopStream() error {
	m.stopped = true

	return nil
}

// failingStore reports every key as cached but fails all transfers.
type failingStore struct {
	downloads int
	uploads   int
}

func (f *failingStore) Exists(_ context.Context, _ string) bool {
	return true
}

func (f *failingStore) Download(_ context.Context, _ string) ([]byte, error) {
	f.downloads++

	return nil, errFakeStore
}

func (f *failingStore) Upload(_ context.Context, _ string, _ []byte) error {
	f.uploads++

	return errFakeStore
}

type fixture struct {
	speaker    *speaker.Speaker
	capability *fakeCapability
	channel    *mockChannel
	settings   config.Settings
}

func newFixture(t *testing.T, mutate func(*config.Settings, *fakeCapability)) *fixture {
	t.Helper()

	log, logErr := logger.New(t.TempDir(), "speaker-test.log")
	require.NoError(t, logErr)

	settings := config.Defaults()
	settings.TempDir = t.TempDir()
	settings.CacheDir = filepath.Join(t.TempDir(), "cache")

	capability := &fakeCapability{}

	if mutate != nil {
		mutate(&settings, capability)
	}

	var store core.ArtifactStore
	if settings.UseCache {
		store = cache.NewFileStore(settings.CacheDir)
	}

	return &fixture{
		speaker:    speaker.New(settings, engine.NewAdapter(capability, log), store, log),
		capability: capability,
		channel:    &mockChannel{},
		settings:   settings,
	}
}

func requireNoTempFiles(t *testing.T, dir string) {
	t.Helper()

	entries, readErr := os.ReadDir(dir)
	require.NoError(t, readErr)

	for _, entry := range entries {
		assert.False(t, strings.HasPrefix(entry.Name(), "speak_"),
			"leftover temp file: %s", entry.Name())
	}
}

func TestSpeakCompletes(t *testing.T) {
	t.Parallel()

	fix := newFixture(t, nil)

	result, err := fix.speaker.Speak(context.Background(), fix.channel, core.Request{
		Text:          "welcome",
		InterruptKeys: "",
		Language:      "",
	})
	require.NoError(t, err)

	assert.Equal(t, speaker.StatusCompleted, result.Status)
	assert.Equal(t, 1, fix.channel.answerCount, "channel should be answered before playback")
	assert.True(t, strings.HasSuffix(fix.channel.streamedPath, ".wav"))
	assert.True(t, fix.channel.stopped)
	requireNoTempFiles(t, fix.settings.TempDir)
}

func TestSpeakWidebandArtifactNaming(t *testing.T) {
	t.Parallel()

	fix := newFixture(t, func(settings *config.Settings, _ *fakeCapability) {
		settings.TargetRate = config.SampleRateWideband
	})

	_, err := fix.speaker.Speak(context.Background(), fix.channel, core.Request{Text: "welcome"})
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(fix.channel.streamedPath, ".wav16"))
}

func TestSpeakEmptyTextIsHardError(t *testing.T) {
	t.Parallel()

	fix := newFixture(t, nil)

	result, err := fix.speaker.Speak(context.Background(), fix.channel, core.Request{Text: ""})
	require.ErrorIs(t, err, speaker.ErrEmptyText)

	assert.Equal(t, speaker.StatusFailed, result.Status)
	assert.Zero(t, fix.channel.streamedFiles, "no playback may be attempted")
	assert.Zero(t, fix.capability.synthCount, "no synthesis may be attempted")
}

func TestSpeakInterrupted(t *testing.T) {
	t.Parallel()

	fix := newFixture(t, nil)
	fix.channel.digit = '1'

	result, err := fix.speaker.Speak(context.Background(), fix.channel, core.Request{
		Text:          "press one or two",
		InterruptKeys: "12",
	})
	require.NoError(t, err)

	assert.Equal(t, speaker.StatusInterrupted, result.Status)
	assert.Equal(t, byte('1'), result.Digit)
	assert.Equal(t, "12", fix.channel.waitKeys)
	assert.True(t, fix.channel.stopped, "stream must be stopped after interruption")
	requireNoTempFiles(t, fix.settings.TempDir)
}

func TestSpeakNormalizesAnyInterruptSpec(t *testing.T) {
	t.Parallel()

	fix := newFixture(t, nil)

	_, err := fix.speaker.Speak(context.Background(), fix.channel, core.Request{
		Text:          "any key stops this",
		InterruptKeys: "ANY",
	})
	require.NoError(t, err)

	assert.Equal(t, core.AnyDigit, fix.channel.waitKeys)
}

func TestSpeakStreamsChannelLocale(t *testing.T) {
	t.Parallel()

	fix := newFixture(t, nil)
	fix.channel.language = "en"

	_, err := fix.speaker.Speak(context.Background(), fix.channel, core.Request{
		Text:     "bonjour",
		Language: "fr",
	})
	require.NoError(t, err)

	assert.Equal(t, "en", fix.channel.locale,
		"the stream carries the channel's locale, not the synthesis voice")
}

func TestSpeakBrokenStoreIsNonFatal(t *testing.T) {
	t.Parallel()

	log, logErr := logger.New(t.TempDir(), "speaker-test.log")
	require.NoError(t, logErr)

	settings := config.Defaults()
	settings.TempDir = t.TempDir()
	settings.UseCache = true

	capability := &fakeCapability{}
	store := &failingStore{}
	channel := &mockChannel{}
	spk := speaker.New(settings, engine.NewAdapter(capability, log), store, log)

	result, err := spk.Speak(context.Background(), channel, core.Request{Text: "balance is ten dollars"})
	require.NoError(t, err, "store failures must never abort playback")

	assert.Equal(t, speaker.StatusCompleted, result.Status)
	assert.Equal(t, 1, capability.synthCount, "a broken cache entry forces a fresh render")
	assert.Equal(t, 1, channel.streamedFiles)
	assert.Equal(t, 1, store.downloads, "the cached entry must be attempted first")
	assert.Equal(t, 1, store.uploads, "re-persisting is attempted even when it cannot succeed")
	requireNoTempFiles(t, settings.TempDir)
}

func TestSpeakCacheIdempotence(t *testing.T) {
	t.Parallel()

	fix := newFixture(t, func(settings *config.Settings, _ *fakeCapability) {
		settings.UseCache = true
	})
	req := core.Request{Text: "your account balance is"}

	_, firstErr := fix.speaker.Speak(context.Background(), fix.channel, req)
	require.NoError(t, firstErr)
	assert.Equal(t, 1, fix.capability.synthCount)

	_, secondErr := fix.speaker.Speak(context.Background(), fix.channel, req)
	require.NoError(t, secondErr)

	assert.Equal(t, 1, fix.capability.synthCount, "second call must be served from cache")

	key := cache.Fingerprint(req.Text)
	path, pathErr := cache.DerivePath(fix.settings.CacheDir, key)
	require.NoError(t, pathErr)

	_, statErr := os.Stat(path)
	assert.NoError(t, statErr, "artifact should be persisted under the fingerprint")
	requireNoTempFiles(t, fix.settings.TempDir)
}

func TestSpeakCacheDisabledWritesNothing(t *testing.T) {
	t.Parallel()

	fix := newFixture(t, nil)
	req := core.Request{Text: "uncached announcement"}

	_, firstErr := fix.speaker.Speak(context.Background(), fix.channel, req)
	require.NoError(t, firstErr)

	_, secondErr := fix.speaker.Speak(context.Background(), fix.channel, req)
	require.NoError(t, secondErr)

	assert.Equal(t, 2, fix.capability.synthCount)

	_, statErr := os.Stat(fix.settings.CacheDir)
	assert.True(t, os.IsNotExist(statErr), "cache directory must stay untouched")
}

func TestSpeakEngineInitFailure(t *testing.T) {
	t.Parallel()

	fix := newFixture(t, func(_ *config.Settings, capability *fakeCapability) {
		capability.initFails = true
	})

	result, err := fix.speaker.Speak(context.Background(), fix.channel, core.Request{Text: "hello"})
	require.ErrorIs(t, err, engine.ErrInit)

	assert.Equal(t, speaker.StatusFailed, result.Status)
	assert.Zero(t, fix.channel.streamedFiles)
	requireNoTempFiles(t, fix.settings.TempDir)
}

func TestSpeakResamplingFailureCleansUp(t *testing.T) {
	t.Parallel()

	fix := newFixture(t, func(_ *config.Settings, capability *fakeCapability) {
		capability.emptyAudio = true
	})

	result, err := fix.speaker.Speak(context.Background(), fix.channel, core.Request{Text: "hello"})
	require.ErrorIs(t, err, speaker.ErrResampling)

	assert.Equal(t, speaker.StatusFailed, result.Status)
	assert.Zero(t, fix.channel.streamedFiles)
	requireNoTempFiles(t, fix.settings.TempDir)
}

func TestSpeakPlaybackFailureDoesNotCorruptCache(t *testing.T) {
	t.Parallel()

	fix := newFixture(t, func(settings *config.Settings, _ *fakeCapability) {
		settings.UseCache = true
	})
	fix.channel.streamFails = true
	req := core.Request{Text: "goodbye"}

	_, err := fix.speaker.Speak(context.Background(), fix.channel, req)
	require.ErrorIs(t, err, speaker.ErrPlayback)

	// Persisting happens before playback, so the artifact survives the
	// playback failure intact.
	store := cache.NewFileStore(fix.settings.CacheDir)
	assert.True(t, store.Exists(context.Background(), cache.Fingerprint(req.Text)))
	requireNoTempFiles(t, fix.settings.TempDir)
}
