package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/integrii/flaggy"

	"github.com/phosphorvj/phosphor/audio"
	"github.com/phosphorvj/phosphor/audio/capture"
	"github.com/phosphorvj/phosphor/config"
	"github.com/phosphorvj/phosphor/engine"

	_ "github.com/phosphorvj/phosphor/audio/capture/pulse"
)

// AppName is the app name.
const AppName = "phosphor"

// AppDesc is the app description.
const AppDesc = "a real-time audio-reactive visual engine for live VJ performance"

// AppSite is the app website.
const AppSite = "https://github.com/phosphorvj/phosphor"

var version = "unknown"

func main() {
	log.SetFlags(0)

	cfg := config.NewZeroConfig()
	var effectPath string

	audioTest, listBackends, listDevices := doFlags(&cfg, &effectPath)
	if listBackends {
		for _, name := range capture.Names() {
			fmt.Printf("- %s\n", name)
		}
		return
	}
	if listDevices {
		runListDevices(cfg.Backend)
		return
	}

	chk(cfg.Sanitize(), "invalid configuration")

	logger := newLogger(cfg.AudioDebug)
	slog.SetDefault(logger)

	if audioTest {
		runAudioTest(logger, cfg)
		return
	}

	if err := run(logger, cfg, effectPath); err != nil {
		logger.Error("phosphor exited with error", "err", err)
		os.Exit(1)
	}
}

func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(h)
}

func doFlags(cfg *config.Config, effectPath *string) (audioTest, listBackends, listDevices bool) {
	parser := flaggy.NewParser(AppName)
	parser.Description = AppDesc
	parser.AdditionalHelpPrepend = AppSite
	parser.Version = version

	listBackendsCmd := flaggy.Subcommand{
		Name:        "list-backends",
		ShortName:   "lb",
		Description: "list all supported audio capture backends",
	}
	parser.AttachSubcommand(&listBackendsCmd, 1)

	listDevicesCmd := flaggy.Subcommand{
		Name:        "list-devices",
		ShortName:   "ld",
		Description: "list all devices for a backend",
	}
	parser.AttachSubcommand(&listDevicesCmd, 1)

	parser.String(&cfg.Backend, "b", "backend", "audio capture backend name")
	parser.String(&cfg.Device, "d", "device", "audio capture device name")
	parser.Float64(&cfg.SampleRate, "r", "rate", "audio sample rate")
	parser.Int(&cfg.ChannelCount, "ch", "channels", "channel count (1 or 2)")
	parser.Int(&cfg.AnalysisHz, "a", "analysis-hz", "audio analysis rate")
	parser.Int(&cfg.OSCReceivePort, "op", "osc-port", "OSC receive port")
	parser.Int(&cfg.WebPort, "wp", "web-port", "web control-panel port")
	parser.String(&cfg.MIDIDevice, "m", "midi", "MIDI input device name")
	parser.String(effectPath, "e", "effect", "effect manifest to load at startup")
	parser.Bool(&audioTest, "at", "audio-test", "run the audio pipeline only and print feature snapshots")

	chk(parser.Parse(), "failed to parse arguments")

	if debug := os.Getenv("PHOSPHOR_AUDIO_DEBUG"); debug == "1" {
		cfg.AudioDebug = true
	}

	return audioTest, listBackendsCmd.Used, listDevicesCmd.Used
}

func runListDevices(backendName string) {
	if backendName == "" {
		backendName = capture.Default()
	}
	backend, err := capture.Init(backendName)
	chk(err, "failed to init backend")

	devices, err := backend.Devices()
	chk(err, "failed to list devices")

	def, _ := backend.DefaultDevice()

	fmt.Printf("all devices for %q backend. '*' marks default\n", backendName)
	for _, d := range devices {
		star := ' '
		if def != nil && d.String() == def.String() {
			star = '*'
		}
		fmt.Printf("- %v %c\n", d, star)
	}
}

// runAudioTest runs the audio front only, with no GPU surface, and
// prints one feature snapshot per second until interrupted (spec §6
// "--audio-test runs the audio pipeline only and prints feature
// snapshots (no GPU)").
func runAudioTest(logger *slog.Logger, cfg config.Config) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	backendName := cfg.Backend
	if backendName == "" {
		backendName = capture.Default()
	}
	backend, err := capture.Init(backendName)
	chk(err, "failed to init audio backend")

	device, err := capture.GetDevice(backend, cfg.Device)
	chk(err, "failed to resolve audio device")

	front := audio.New(audio.Config{
		Backend:     backend,
		Device:      device,
		SampleRate:  cfg.SampleRate,
		Channels:    cfg.ChannelCount,
		AnalysisHz:  cfg.AnalysisHz,
		RingSeconds: cfg.RingSeconds,
	})
	chk(front.Start(ctx), "failed to start audio front")
	defer front.Stop()

	logger.Info("audio-test running", "backend", backendName, "device", device)

	ticker := ctxTicker(ctx)
	for range ticker {
		snap := front.Latest()
		logger.Info("audio snapshot",
			"rms", snap.RMS, "centroid", snap.Centroid, "flatness", snap.Flatness,
			"onset", snap.Onset, "beat", snap.Beat, "bpm", snap.BPM)
	}
}

func run(logger *slog.Logger, cfg config.Config, effectPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	backendName := cfg.Backend
	if backendName == "" {
		backendName = capture.Default()
	}
	backend, err := capture.Init(backendName)
	if err != nil {
		return err
	}
	device, err := capture.GetDevice(backend, cfg.Device)
	if err != nil {
		return err
	}

	effectsDir, err := config.EffectsDir()
	if err != nil {
		logger.Warn("failed to resolve effects directory, hot reload disabled", "err", err)
	}

	// GPU device/queue acquisition is left to the platform windowing
	// layer this binary is embedded in; here Device/Queue come from
	// whatever hal.Instance the deployment wires up before calling
	// engine.New. Standalone `phosphor` builds without a windowing
	// integration cannot reach this point with a live device.
	eng, err := engine.New(engine.Config{
		Device: nil,
		Queue:  nil,
		Log:    logger,
		Width:  cfg.Width,
		Height: cfg.Height,
		Audio: audio.Config{
			Backend:     backend,
			Device:      device,
			SampleRate:  cfg.SampleRate,
			Channels:    cfg.ChannelCount,
			AnalysisHz:  cfg.AnalysisHz,
			RingSeconds: cfg.RingSeconds,
		},
		OSCAddr:    fmt.Sprintf(":%d", cfg.OSCReceivePort),
		WebAddr:    fmt.Sprintf(":%d", cfg.WebPort),
		MIDIDevice: cfg.MIDIDevice,
	})
	if err != nil {
		return err
	}

	if effectPath != "" {
		if err := eng.LoadEffect(filepath.Base(effectPath), effectPath); err != nil {
			logger.Warn("failed to load startup effect", "path", effectPath, "err", err)
		}
	}

	if err := eng.Start(ctx, effectsDir); err != nil {
		return err
	}
	defer eng.Stop()

	return eng.Run(ctx)
}

// ctxTicker returns a channel that fires once a second until ctx is
// cancelled, then closes.
func ctxTicker(ctx context.Context) <-chan struct{} {
	out := make(chan struct{})
	go func() {
		defer close(out)
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				select {
				case out <- struct{}{}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func chk(err error, wrap string) {
	if err != nil {
		log.Fatalln(wrap+": ", err)
	}
}
