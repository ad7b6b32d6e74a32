package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jmattison/huectl/internal/config"
	"github.com/jmattison/huectl/internal/device"
	"github.com/jmattison/huectl/internal/effects"
	"github.com/jmattison/huectl/internal/hue"
)

// cliFlags holds the parsed command-line parameters. Pointer fields are nil
// when the flag was not given, so an explicit zero survives.
type cliFlags struct {
	targets    []string
	interval   time.Duration
	iterations int
	brightness *int
	hue        *int
	saturation *int
	step       *int
}

// app wires the command surface to the registry and the effect scheduler.
type app struct {
	cfg      *config.Config
	client   *hue.Client
	registry *device.Registry
	sched    *effects.Scheduler
	settings *effects.Settings
	flags    cliFlags
}

func (a *app) run(ctx context.Context, action, subtarg string) error {
	// get-colors needs no bridge at all
	if action == "get-colors" {
		fmt.Println("colors:")
		for _, name := range device.ColorNames() {
			fmt.Println(" -", name)
		}
		return nil
	}

	if err := a.registry.Refresh(ctx, false); err != nil {
		// Listing still works from the last snapshot when the bridge is down
		if action == "get-lights" && errors.Is(err, hue.ErrBackend) {
			return a.listCachedLights()
		}
		return err
	}

	switch action {
	case "on":
		return a.power(ctx, true)
	case "off":
		return a.power(ctx, false)
	case "blink":
		return a.blink(ctx)
	case "fade":
		return a.fade(ctx)
	case "color":
		if subtarg == "" {
			return fmt.Errorf("you must provide a color; use get-colors for the list")
		}
		return a.color(ctx, subtarg)
	case "script":
		if subtarg == "" {
			return fmt.Errorf("you must provide a script file")
		}
		return a.script(ctx, subtarg)
	case "get-lights":
		return a.listLights()
	case "get-xy":
		return a.getXY(ctx)
	case "increment":
		return a.increment(ctx, subtarg)
	case "id", "identify":
		return a.identify(ctx)
	default:
		// A bare color name acts as "color <name>"
		if _, ok := device.HueFor(action); ok {
			return a.color(ctx, action)
		}
		return fmt.Errorf("unknown action %q", action)
	}
}

// targetBulbs resolves --targets against the registry, defaulting to every
// known bulb. An unknown name fails the whole command before anything runs.
func (a *app) targetBulbs() ([]*device.Bulb, error) {
	if len(a.flags.targets) == 0 {
		return a.registry.All(), nil
	}
	bulbs := make([]*device.Bulb, 0, len(a.flags.targets))
	for _, name := range a.flags.targets {
		b, err := a.registry.Get(name)
		if err != nil {
			return nil, err
		}
		bulbs = append(bulbs, b)
	}
	return bulbs, nil
}

// baseParams builds effect parameters from the explicit flags only; values
// left out fall through to the shared settings at tick time.
func (a *app) baseParams() effects.Params {
	return effects.Params{
		Brightness: a.flags.brightness,
		Saturation: a.flags.saturation,
		Hue:        a.flags.hue,
		Interval:   a.flags.interval,
		Step:       a.flags.step,
	}
}

// sharedState resolves the saturation, brightness and hue for direct
// (non-effect) state changes.
func (a *app) sharedState() (sat, bri int, hueVal *int) {
	sat = a.settings.Saturation()
	bri = a.settings.Brightness()
	if v, ok := a.settings.Hue(); ok {
		hueVal = &v
	}
	return sat, bri, hueVal
}

func (a *app) power(ctx context.Context, on bool) error {
	bulbs, err := a.targetBulbs()
	if err != nil {
		return err
	}
	sat, bri, hueVal := a.sharedState()
	for _, b := range bulbs {
		if on {
			fmt.Printf("Turning on %s\n", b.Name())
			err = b.TurnOn(ctx, sat, bri, hueVal)
		} else {
			fmt.Printf("Turning off %s\n", b.Name())
			err = b.TurnOff(ctx)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", b.Name(), err)
		}
	}
	return nil
}

func (a *app) blink(ctx context.Context) error {
	bulbs, err := a.targetBulbs()
	if err != nil {
		return err
	}
	params := a.baseParams()

	if a.settings.Forever() {
		for _, b := range bulbs {
			fmt.Printf("%s -> BLINK\n", b.Name())
			if err := a.sched.Start(ctx, b, effects.Blink{}, params, true); err != nil {
				return err
			}
		}
		return a.waitAndShutdown(ctx)
	}

	n := a.flags.iterations
	if n <= 0 {
		n = 1
	}
	return a.forEachBulb(bulbs, func(b *device.Bulb) error {
		for i := 0; i < n; i++ {
			if err := a.sched.Start(ctx, b, effects.Blink{}, params, false); err != nil {
				return err
			}
		}
		return nil
	})
}

func (a *app) fade(ctx context.Context) error {
	bulbs, err := a.targetBulbs()
	if err != nil {
		return err
	}

	params := a.baseParams()
	if params.Interval == 0 {
		params.Interval = a.cfg.Fade.Interval.Duration()
	}
	step := a.flags.step
	if step == nil {
		step = &a.cfg.Fade.Step
	}
	if params.Brightness == nil {
		params.Brightness = &a.cfg.Fade.Brightness
	}

	// Each bulb gets its own sweep so the cursors stay independent
	for _, b := range bulbs {
		sweep, err := effects.NewColorSweep(step)
		if err != nil {
			return err
		}
		fmt.Printf("%s -> FADE\n", b.Name())
		if err := a.sched.Start(ctx, b, sweep, params, true); err != nil {
			return err
		}
	}
	return a.waitAndShutdown(ctx)
}

func (a *app) color(ctx context.Context, name string) error {
	hueVal, ok := device.HueFor(name)
	if !ok {
		return fmt.Errorf("color %q is not known; use get-colors for the list", name)
	}
	bulbs, err := a.targetBulbs()
	if err != nil {
		return err
	}
	sat, bri, _ := a.sharedState()
	for _, b := range bulbs {
		fmt.Printf("%s -> %s\n", b.Name(), name)
		if err := b.TurnOn(ctx, sat, bri, &hueVal); err != nil {
			return fmt.Errorf("%s: %w", b.Name(), err)
		}
	}
	return nil
}

func (a *app) script(ctx context.Context, path string) error {
	bulbs, err := a.targetBulbs()
	if err != nil {
		return err
	}
	params := a.baseParams()

	// One Lua state per slot; a script effect must not be shared
	for _, b := range bulbs {
		eff, err := effects.LoadScript(path)
		if err != nil {
			return err
		}
		defer eff.Close()
		fmt.Printf("%s -> SCRIPT %s\n", b.Name(), path)
		if err := a.sched.Start(ctx, b, eff, params, true); err != nil {
			return err
		}
	}
	return a.waitAndShutdown(ctx)
}

func (a *app) listLights() error {
	fmt.Println("lights:")
	for _, b := range a.registry.All() {
		if room := b.Room(); room != "" {
			fmt.Printf(" - %s (%s)\n", b.Name(), room)
		} else {
			fmt.Printf(" - %s\n", b.Name())
		}
	}
	return nil
}

func (a *app) listCachedLights() error {
	lights, err := a.registry.CachedLights()
	if err != nil {
		return err
	}
	fmt.Println("lights (cached):")
	names := make([]string, 0, len(lights))
	for _, l := range lights {
		names = append(names, l.Name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Println(" -", name)
	}
	return nil
}

func (a *app) getXY(ctx context.Context) error {
	for _, b := range a.registry.All() {
		light, err := a.client.Light(ctx, b.Index())
		if err != nil {
			return fmt.Errorf("%s: %w", b.Name(), err)
		}
		data, err := json.Marshal(light)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s\n", b.Name(), data)
	}
	return nil
}

func (a *app) increment(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("increment needs a specific light")
	}
	b, err := a.registry.Get(name)
	if err != nil {
		return err
	}

	steps := a.flags.iterations
	if steps <= 0 {
		steps = 30
	}
	// More steps than hue values would truncate the increment to zero and
	// the walk would never advance.
	if steps > 65535 {
		return fmt.Errorf("%w: iterations %d exceeds the hue range", effects.ErrInvalidParameter, steps)
	}
	total := a.flags.interval
	if total <= 0 {
		total = 30 * time.Second
	}
	pauseFor := total / time.Duration(steps)

	sat, bri, _ := a.sharedState()
	if err := b.TurnOn(ctx, sat, bri, nil); err != nil {
		return err
	}
	for h := 0; h < 65535; h += 65535 / steps {
		hueVal := h
		if err := b.SetState(ctx, true, sat, bri, &hueVal); err != nil {
			return err
		}
		if err := pause(ctx, pauseFor); err != nil {
			return err
		}
	}
	return b.TurnOff(ctx)
}

func (a *app) identify(ctx context.Context) error {
	interval := a.flags.interval
	if interval <= 0 {
		interval = time.Second
	}
	sat, bri, hueVal := a.sharedState()

	for _, b := range a.registry.All() {
		fmt.Println("---- IDENTIFYING ----")
		fmt.Printf("BULB NAME: %s\n", b.Name())
		for i := 0; i < 10; i++ {
			if err := b.BlinkOnce(ctx, interval, sat, bri, hueVal); err != nil {
				if ctx.Err() != nil {
					// Interrupted mid-blink; leave the light on
					restoreCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					defer cancel()
					_ = b.TurnOn(restoreCtx, sat, bri, hueVal)
					return ctx.Err()
				}
				return fmt.Errorf("%s: %w", b.Name(), err)
			}
			fmt.Print(".")
		}
		fmt.Println()
	}
	return nil
}

// forEachBulb fans a one-shot action out across bulbs and collects the first
// failure.
func (a *app) forEachBulb(bulbs []*device.Bulb, fn func(*device.Bulb) error) error {
	var wg sync.WaitGroup
	errCh := make(chan error, len(bulbs))
	for _, b := range bulbs {
		wg.Add(1)
		go func(b *device.Bulb) {
			defer wg.Done()
			if err := fn(b); err != nil {
				errCh <- fmt.Errorf("%s: %w", b.Name(), err)
			}
		}(b)
	}
	wg.Wait()
	close(errCh)
	return <-errCh
}

// waitAndShutdown blocks until the signal context fires, then stops every
// running effect, bounded by the configured shutdown timeout.
func (a *app) waitAndShutdown(ctx context.Context) error {
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout.Duration())
	defer cancel()
	return a.sched.Shutdown(shutdownCtx)
}

// pause waits for d or until ctx is cancelled.
func pause(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func splitTargets(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	targets := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			targets = append(targets, p)
		}
	}
	return targets
}

func optInt(v int) *int {
	if v < 0 {
		return nil
	}
	return &v
}
