// main package for the speak command: renders one utterance through the
// pipeline and reports the outcome.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"

	"github.com/telvox/speak/internal/cache"
	"github.com/telvox/speak/internal/config"
	"github.com/telvox/speak/internal/core"
	"github.com/telvox/speak/internal/engine"
	"github.com/telvox/speak/internal/speaker"
)

const defaultConfigPath = "/etc/speak.toml"

var errNoText = errors.New("no text to speak")

func run() error {
	configPath := flag.String("config", defaultConfigPath, "path to the settings file")
	interrupt := flag.String("interrupt", "", `interrupt digits, or "any"`)
	language := flag.String("language", "", "voice override for this utterance")
	flag.Parse()

	log, logErr := logger.New(os.TempDir(), "speak.log")
	if logErr != nil {
		return fmt.Errorf("failed to create logger: %w", logErr)
	}

	defer func() {
		closeErr := log.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing logger: %v\n", closeErr)
		}
	}()

	text := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if text == "" {
		return errNoText
	}

	settings := config.Load(*configPath, log)
	log.Info("Effective settings: %s", settings.String())

	capability, espeakErr := engine.NewESpeak()
	if espeakErr != nil {
		return fmt.Errorf("failed to locate synthesis engine: %w", espeakErr)
	}

	talker := speaker.New(settings, engine.NewAdapter(capability, log), buildStore(settings, log), log)

	result, speakErr := talker.Speak(context.Background(), speaker.NewConsole(log), core.Request{
		Text:          text,
		InterruptKeys: *interrupt,
		Language:      *language,
	})
	if speakErr != nil {
		return fmt.Errorf("speak failed: %w", speakErr)
	}

	if result.Status == speaker.StatusInterrupted {
		log.Info("Playback interrupted by digit %c", result.Digit)
	} else {
		log.Info("Playback completed")
	}

	return nil
}

// buildStore selects the artifact cache backend. The cache is an
// optimization, so an unreachable backend degrades to no caching instead
// of failing the invocation.
func buildStore(settings config.Settings, log *logger.Logger) core.ArtifactStore {
	if !settings.UseCache {
		return nil
	}

	if settings.NatsURL == "" {
		return cache.NewFileStore(settings.CacheDir)
	}

	conn, connErr := nats.Connect(settings.NatsURL)
	if connErr != nil {
		log.Warn("NATS cache unavailable at %s, continuing without cache: %v", settings.NatsURL, connErr)

		return nil
	}

	jetstreamContext, jsErr := conn.JetStream()
	if jsErr != nil {
		log.Warn("JetStream unavailable, continuing without cache: %v", jsErr)

		return nil
	}

	store, storeErr := cache.NewNatsStore(jetstreamContext, settings.NatsBucket)
	if storeErr != nil {
		log.Warn("Failed to open artifact bucket, continuing without cache: %v", storeErr)

		return nil
	}

	log.Info("Using NATS artifact cache at %s (bucket %s)", settings.NatsURL, settings.NatsBucket)

	return store
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "speak: %v\n", err)
		os.Exit(1)
	}
}
