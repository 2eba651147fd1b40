// Package config resolves the speech settings for the speak pipeline.
//
// Settings come from a TOML file with [general] and [voice] tables. A
// missing file is not an error: every key has a documented default, and
// values that fail to parse fall back to their defaults with a logged
// warning rather than aborting the invocation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/book-expert/logger"
	"github.com/pelletier/go-toml/v2"
)

// Default values for every configurable key.
const (
	DefaultSpeed      = 150
	DefaultVolume     = 100
	DefaultWordGap    = 1
	DefaultPitch      = 50
	DefaultCapitals   = 0
	DefaultVoice      = "default"
	DefaultSampleRate = 8000
	DefaultCacheDir   = "/tmp"
	DefaultNatsBucket = "speak-cache"
)

// SampleRateWideband is the only supported target rate besides the default.
const SampleRateWideband = 16000

// Settings holds the resolved synthesis and cache parameters for one
// invocation of the pipeline.
type Settings struct {
	// Voice prosody parameters, passed to the synthesis engine.
	Speed    int
	Volume   int
	WordGap  int
	Pitch    int
	Capitals int
	Voice    string

	// TargetRate is the playback sample rate, 8000 or 16000 Hz.
	TargetRate int

	// Cache policy.
	UseCache bool
	CacheDir string

	// NatsURL, when set, selects the shared NATS object-store cache
	// backend instead of the local directory. NatsBucket names the
	// object-store bucket.
	NatsURL    string
	NatsBucket string

	// TempDir holds intermediate render files. Defaults to the system
	// temp directory.
	TempDir string
}

// fileSettings mirrors the on-disk layout. Values are decoded as `any` so
// that both bare numbers and quoted strings are accepted.
type fileSettings struct {
	General map[string]any `toml:"general"`
	Voice   map[string]any `toml:"voice"`
}

// Defaults returns the settings used when no configuration file exists.
func Defaults() Settings {
	return Settings{
		Speed:      DefaultSpeed,
		Volume:     DefaultVolume,
		WordGap:    DefaultWordGap,
		Pitch:      DefaultPitch,
		Capitals:   DefaultCapitals,
		Voice:      DefaultVoice,
		TargetRate: DefaultSampleRate,
		UseCache:   false,
		CacheDir:   DefaultCacheDir,
		NatsURL:    "",
		NatsBucket: DefaultNatsBucket,
		TempDir:    os.TempDir(),
	}
}

// Load reads the settings file at path. It never fails: a missing or
// unreadable file yields the defaults, and individual malformed values are
// replaced by their defaults. Problems are reported through the logger.
func Load(path string, log *logger.Logger) Settings {
	settings := Defaults()

	data, readErr := os.ReadFile(path)
	if readErr != nil {
		log.Warn("No settings file at %s, using default settings: %v", path, readErr)

		return settings
	}

	var raw fileSettings

	unmarshalErr := toml.Unmarshal(data, &raw)
	if unmarshalErr != nil {
		log.Warn("Settings file %s is malformed, using default settings: %v", path, unmarshalErr)

		return settings
	}

	settings.UseCache = boolValue(raw.General, "usecache", settings.UseCache, log)
	settings.CacheDir = stringValue(raw.General, "cachedir", settings.CacheDir)
	settings.TargetRate = intValue(raw.General, "samplerate", settings.TargetRate, log)
	settings.NatsURL = stringValue(raw.General, "natsurl", settings.NatsURL)
	settings.NatsBucket = stringValue(raw.General, "natsbucket", settings.NatsBucket)
	settings.TempDir = stringValue(raw.General, "tmpdir", settings.TempDir)

	settings.Speed = intValue(raw.Voice, "speed", settings.Speed, log)
	settings.WordGap = intValue(raw.Voice, "wordgap", settings.WordGap, log)
	settings.Volume = intValue(raw.Voice, "volume", settings.Volume, log)
	settings.Pitch = intValue(raw.Voice, "pitch", settings.Pitch, log)
	settings.Capitals = intValue(raw.Voice, "capind", settings.Capitals, log)
	settings.Voice = stringValue(raw.Voice, "voice", settings.Voice)

	settings.TargetRate = coerceRate(settings.TargetRate, log)

	return settings
}

// coerceRate enforces the supported-rate policy: anything other than the
// two supported rates falls back to 8000 Hz with a warning.
func coerceRate(rate int, log *logger.Logger) int {
	if rate != DefaultSampleRate && rate != SampleRateWideband {
		log.Warn("Unsupported sample rate %d, falling back to %d Hz", rate, DefaultSampleRate)

		return DefaultSampleRate
	}

	return rate
}

func stringValue(table map[string]any, key, fallback string) string {
	value, ok := table[key]
	if !ok {
		return fallback
	}

	text, ok := value.(string)
	if !ok || text == "" {
		return fallback
	}

	return text
}

func intValue(table map[string]any, key string, fallback int, log *logger.Logger) int {
	value, ok := table[key]
	if !ok {
		return fallback
	}

	switch number := value.(type) {
	case int64:
		return int(number)
	case float64:
		return int(number)
	case string:
		parsed, parseErr := strconv.Atoi(strings.TrimSpace(number))
		if parseErr != nil {
			log.Warn("Ignoring non-numeric value %q for key %s: %v", number, key, parseErr)

			return fallback
		}

		return parsed
	default:
		log.Warn("Ignoring value of unexpected type %T for key %s", value, key)

		return fallback
	}
}

func boolValue(table map[string]any, key string, fallback bool, log *logger.Logger) bool {
	value, ok := table[key]
	if !ok {
		return fallback
	}

	switch flag := value.(type) {
	case bool:
		return flag
	case string:
		switch strings.ToLower(strings.TrimSpace(flag)) {
		case "yes", "true", "on", "1":
			return true
		case "no", "false", "off", "0":
			return false
		default:
			log.Warn("Ignoring non-boolean value %q for key %s", flag, key)

			return fallback
		}
	case int64:
		return flag != 0
	default:
		log.Warn("Ignoring value of unexpected type %T for key %s", value, key)

		return fallback
	}
}

// String renders the effective settings for diagnostic logging.
func (s Settings) String() string {
	return fmt.Sprintf("voice=%s speed=%d volume=%d wordgap=%d pitch=%d capind=%d rate=%d usecache=%t cachedir=%s",
		s.Voice, s.Speed, s.Volume, s.WordGap, s.Pitch, s.Capitals, s.TargetRate, s.UseCache, s.CacheDir)
}
