package effects

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "effect.lua")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestScriptTickDrivesLight(t *testing.T) {
	path := writeScript(t, `
function tick(light, params)
    light:set_state(true, 100, params.brightness, 4000)
    light:sweep_step(params.brightness * 10, params.brightness)
end
`)
	eff, err := LoadScript(path)
	if err != nil {
		t.Fatalf("LoadScript: %v", err)
	}
	defer eff.Close()

	light := &fakeLight{name: "Lamp1"}
	r := Resolved{Brightness: 42, Saturation: 100, Interval: time.Second}
	if err := eff.Tick(context.Background(), light, r); err != nil {
		t.Fatalf("tick: %v", err)
	}

	hues := light.recordedHues()
	if len(hues) != 2 || hues[0] != 4000 || hues[1] != 420 {
		t.Fatalf("unexpected hue sequence: %v", hues)
	}
}

func TestScriptReceivesResolvedParams(t *testing.T) {
	path := writeScript(t, `
function tick(light, params)
    if params.brightness ~= 80 then error("bad brightness") end
    if params.saturation ~= 90 then error("bad saturation") end
    if params.hue ~= 12000 then error("bad hue") end
    if params.interval ~= 0.5 then error("bad interval") end
end
`)
	eff, err := LoadScript(path)
	if err != nil {
		t.Fatalf("LoadScript: %v", err)
	}
	defer eff.Close()

	hueVal := 12000
	r := Resolved{Brightness: 80, Saturation: 90, Hue: &hueVal, Interval: 500 * time.Millisecond}
	if err := eff.Tick(context.Background(), &fakeLight{name: "Lamp1"}, r); err != nil {
		t.Fatalf("tick: %v", err)
	}
}

func TestScriptWithoutTickIsRejected(t *testing.T) {
	path := writeScript(t, `local x = 1`)
	if _, err := LoadScript(path); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter for missing tick, got %v", err)
	}
}

func TestScriptSyntaxErrorIsRejected(t *testing.T) {
	path := writeScript(t, `function tick(light, params`)
	if _, err := LoadScript(path); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter for syntax error, got %v", err)
	}
}

func TestScriptRuntimeErrorSurfaces(t *testing.T) {
	path := writeScript(t, `
function tick(light, params)
    error("deliberate")
end
`)
	eff, err := LoadScript(path)
	if err != nil {
		t.Fatalf("LoadScript: %v", err)
	}
	defer eff.Close()

	err = eff.Tick(context.Background(), &fakeLight{name: "Lamp1"}, Resolved{})
	if err == nil {
		t.Fatal("expected the script error to surface")
	}
}

func TestScriptLightErrorSurfaces(t *testing.T) {
	path := writeScript(t, `
function tick(light, params)
    light:set_state(true, 1, 1)
end
`)
	eff, err := LoadScript(path)
	if err != nil {
		t.Fatalf("LoadScript: %v", err)
	}
	defer eff.Close()

	light := &fakeLight{name: "Lamp1", err: errors.New("bridge down")}
	if err := eff.Tick(context.Background(), light, Resolved{}); err == nil {
		t.Fatal("expected the light error to surface through the script")
	}
}

func TestScriptSleepHonorsCancellation(t *testing.T) {
	path := writeScript(t, `
function tick(light, params)
    sleep(60)
end
`)
	eff, err := LoadScript(path)
	if err != nil {
		t.Fatalf("LoadScript: %v", err)
	}
	defer eff.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err = eff.Tick(ctx, &fakeLight{name: "Lamp1"}, Resolved{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("sleep did not react to cancellation: %s", elapsed)
	}
}

func TestScriptEffectName(t *testing.T) {
	path := writeScript(t, `function tick(light, params) end`)
	eff, err := LoadScript(path)
	if err != nil {
		t.Fatalf("LoadScript: %v", err)
	}
	defer eff.Close()
	if eff.Name() != "script:effect.lua" {
		t.Fatalf("unexpected effect name %q", eff.Name())
	}
}
