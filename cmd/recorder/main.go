// Package main provides a terminal recorder: it prompts sentence by sentence,
// records from the microphone and writes trimmed takes into a dataset.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/maauso/speech-dataset-maker/internal/bootstrap"
	"github.com/maauso/speech-dataset-maker/internal/capture"
	"github.com/maauso/speech-dataset-maker/internal/config"
	"github.com/maauso/speech-dataset-maker/internal/playback"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	datasetName := flag.String("dataset", "", "name of the dataset to record (descriptor file name without extension)")
	listDevices := flag.Bool("list-devices", false, "list input devices and exit")
	device := flag.Int("device", -2, "input device index, overrides INPUT_DEVICE")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *device != -2 {
		cfg.InputDevice = *device
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	if err := capture.Initialize(); err != nil {
		return fmt.Errorf("initialize audio: %w", err)
	}
	defer func() { _ = capture.Terminate() }()

	if *listDevices {
		return printDevices()
	}

	deps, err := bootstrap.NewDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	if *datasetName == "" {
		names, err := deps.TakeService.ListDatasets(context.Background())
		if err != nil {
			return err
		}
		if len(names) != 1 {
			return fmt.Errorf("-dataset is required, available: %v", names)
		}
		*datasetName = names[0]
	}

	sess, err := deps.TakeService.Session(*datasetName)
	if err != nil {
		return err
	}

	rec, err := capture.NewRecorder(sess.Config().Format(), cfg.InputDevice, logger)
	if err != nil {
		return fmt.Errorf("create recorder: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := newConsole(deps.TakeService, *datasetName, rec, playback.NewPlayer(), os.Stdin, os.Stdout)
	if err := c.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func printDevices() error {
	devices, err := capture.Devices()
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}
	for _, d := range devices {
		marker := " "
		if d.Default {
			marker = "*"
		}
		fmt.Printf("%s %2d  %-40s  %d ch  %.0f Hz\n", marker, d.Index, d.Name, d.MaxInputChannels, d.DefaultSampleRate)
	}
	return nil
}
