package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jmattison/huectl/internal/config"
	"github.com/jmattison/huectl/internal/device"
	"github.com/jmattison/huectl/internal/effects"
	"github.com/jmattison/huectl/internal/hue"
	"github.com/jmattison/huectl/internal/kv"
)

const usage = `huectl <action> [ <subtarg> ]
actions:
  get-lights            Get a list of lights
  get-colors            Get a list of colors you can set the lights to
  get-xy                Get the raw bridge state for each light

  on / off              Turn on, or off, all lights. With --targets, only
                        the specified lights
  blink                 Blink all lights. With --targets, blink specified lights
  fade                  Loop through all available colors until interrupted
  color <name>          Set a named color (or use the color name as the action)
  script <file>         Run a Lua effect script on the targeted lights
  increment <name>      Walk one light through the full hue range
  identify              Blink each light in turn, printing its name
`

func main() {
	var (
		configPath string
		targets    string
		interval   time.Duration
		iterations int
		brightness int
		hueFlag    int
		saturation int
		step       int
		forever    bool
		verbose    bool
	)

	// Support both short and long spellings for the common flags
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.StringVar(&configPath, "c", "", "Path to configuration file (shorthand)")
	flag.StringVar(&targets, "targets", "", "Comma-separated list of bulbs to target")
	flag.StringVar(&targets, "t", "", "Comma-separated list of bulbs to target (shorthand)")
	flag.DurationVar(&interval, "interval", 0, "The interval at which to blink or step")
	flag.DurationVar(&interval, "I", 0, "The interval at which to blink or step (shorthand)")
	flag.IntVar(&iterations, "iterations", 0, "How many times to repeat the action")
	flag.IntVar(&iterations, "i", 0, "How many times to repeat the action (shorthand)")
	flag.IntVar(&brightness, "brightness", -1, "Brightness 0-255")
	flag.IntVar(&brightness, "b", -1, "Brightness 0-255 (shorthand)")
	flag.IntVar(&hueFlag, "hue", -1, "Hue 0-65535")
	flag.IntVar(&saturation, "saturation", -1, "Saturation 0-255")
	flag.IntVar(&saturation, "s", -1, "Saturation 0-255 (shorthand)")
	flag.IntVar(&step, "step", -1, "Hue increment per fade step")
	flag.BoolVar(&forever, "forever", false, "Repeat the effect until interrupted")
	flag.BoolVar(&verbose, "verbose", false, "Enable debug logging")
	flag.BoolVar(&verbose, "v", false, "Enable debug logging (shorthand)")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	action := flag.Arg(0)
	subtarg := flag.Arg(1)

	// Load configuration (env vars are required, the file is optional)
	cfg, err := config.Load(configPath)
	if err != nil {
		setupLogging("info", false, false)
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	setupLogging(level, cfg.Log.UseJSON, cfg.Log.Colors)

	client := hue.NewClient(cfg.Bridge.Address, cfg.Bridge.Token, cfg.Bridge.Timeout.Duration(), cfg.Bridge.RateLimitRPS)
	defer client.Close()

	// The snapshot cache is best-effort; a broken cache never blocks the CLI
	var cache *kv.Store
	if cache, err = kv.Open(cfg.Cache.Path); err != nil {
		log.Warn().Err(err).Msg("Snapshot cache unavailable")
		cache = nil
	} else {
		defer cache.Close()
	}

	// Shared effect settings, written here and read live by running effects
	settings := effects.NewSettings()
	if brightness >= 0 {
		settings.SetBrightness(brightness)
	}
	if saturation >= 0 {
		settings.SetSaturation(saturation)
	}
	if hueFlag >= 0 {
		settings.SetHue(hueFlag)
	}
	settings.SetForever(forever)

	a := &app{
		cfg:      cfg,
		client:   client,
		registry: device.NewRegistry(client, cache),
		sched:    effects.NewScheduler(settings),
		settings: settings,
		flags: cliFlags{
			targets:    splitTargets(targets),
			interval:   interval,
			iterations: iterations,
			brightness: optInt(brightness),
			hue:        optInt(hueFlag),
			saturation: optInt(saturation),
			step:       optInt(step),
		},
	}

	ctx := signalContext()
	if err := a.run(ctx, action, subtarg); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(0)
		}
		log.Error().Err(err).Str("action", action).Msg("Command failed")
		os.Exit(1)
	}
}

func setupLogging(level string, useJSON bool, colors bool) {
	zerolog.TimeFieldFormat = time.RFC3339

	if useJSON {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
			NoColor:    !colors,
		})
	}

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warn().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	return ctx
}
