package effects

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// testEffect is a configurable effect for scheduler tests.
type testEffect struct {
	name string
	tick func(ctx context.Context, light Light, r Resolved) error
}

func (e testEffect) Name() string            { return e.name }
func (e testEffect) Validate(p Params) error { return p.validate() }
func (e testEffect) Tick(ctx context.Context, light Light, r Resolved) error {
	return e.tick(ctx, light, r)
}

// countingEffect ticks a counter and pauses so tests can observe the slot.
func countingEffect(name string, counter *atomic.Int64) testEffect {
	return testEffect{
		name: name,
		tick: func(ctx context.Context, _ Light, _ Resolved) error {
			counter.Add(1)
			return sleep(ctx, 5*time.Millisecond)
		},
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal(msg)
}

func TestStartRunsForeverUntilStopped(t *testing.T) {
	s := NewScheduler(NewSettings())
	defer s.Shutdown(context.Background())

	light := &fakeLight{name: "Lamp1"}
	var ticks atomic.Int64

	if err := s.Start(context.Background(), light, countingEffect("count", &ticks), Params{}, true); err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := s.State("Lamp1"); got != StateRunning {
		t.Fatalf("expected running slot, got %s", got)
	}

	waitFor(t, func() bool { return ticks.Load() >= 3 }, "effect never ticked")

	s.Stop("Lamp1")
	if got := s.State("Lamp1"); got != StateIdle {
		t.Fatalf("expected idle slot after stop, got %s", got)
	}

	// No ticks after the join returned
	settled := ticks.Load()
	time.Sleep(20 * time.Millisecond)
	if ticks.Load() != settled {
		t.Fatalf("effect ticked after stop: %d -> %d", settled, ticks.Load())
	}
}

func TestStartReplacesRunningEffect(t *testing.T) {
	s := NewScheduler(NewSettings())
	defer s.Shutdown(context.Background())

	light := &fakeLight{name: "Lamp1"}
	var first, second atomic.Int64

	if err := s.Start(context.Background(), light, countingEffect("first", &first), Params{}, true); err != nil {
		t.Fatalf("start first: %v", err)
	}
	waitFor(t, func() bool { return first.Load() > 0 }, "first effect never ticked")

	if err := s.Start(context.Background(), light, countingEffect("second", &second), Params{}, true); err != nil {
		t.Fatalf("start second: %v", err)
	}

	// Replace fully stops the old unit before the new one starts, so the
	// first counter must be frozen from here on.
	frozen := first.Load()
	waitFor(t, func() bool { return second.Load() >= 2 }, "second effect never ticked")
	if first.Load() != frozen {
		t.Fatalf("first effect ticked after being replaced: %d -> %d", frozen, first.Load())
	}

	if got := len(s.Active()); got != 1 {
		t.Fatalf("expected exactly one active slot, got %d", got)
	}
}

func TestAtMostOneSlotPerName(t *testing.T) {
	s := NewScheduler(NewSettings())
	defer s.Shutdown(context.Background())

	light := &fakeLight{name: "Lamp1"}
	var ticks atomic.Int64

	// Rapid successive starts for the same name
	for i := 0; i < 5; i++ {
		if err := s.Start(context.Background(), light, countingEffect("count", &ticks), Params{}, true); err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
	}

	if got := len(s.Active()); got != 1 {
		t.Fatalf("expected one active slot after rapid starts, got %d", got)
	}
	s.Stop("Lamp1")
	if got := len(s.Active()); got != 0 {
		t.Fatalf("expected no active slots after stop, got %d", got)
	}
}

func TestStopUnknownNameIsNoop(t *testing.T) {
	s := NewScheduler(NewSettings())
	defer s.Shutdown(context.Background())

	done := make(chan struct{})
	go func() {
		s.Stop("NoSuchLamp")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stop on an idle name did not return promptly")
	}
}

func TestForeverModeAbsorbsTickErrors(t *testing.T) {
	s := NewScheduler(NewSettings())
	defer s.Shutdown(context.Background())

	light := &fakeLight{name: "Lamp1"}
	var ticks atomic.Int64
	failing := testEffect{
		name: "failing",
		tick: func(ctx context.Context, _ Light, _ Resolved) error {
			ticks.Add(1)
			return errors.New("bridge unreachable")
		},
	}

	if err := s.Start(context.Background(), light, failing, Params{Interval: time.Millisecond}, true); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, func() bool { return ticks.Load() >= 3 }, "failing effect stopped ticking")

	if got := s.State("Lamp1"); got != StateRunning {
		t.Fatalf("effect should survive tick errors, state is %s", got)
	}
	s.Stop("Lamp1")
}

func TestOneShotPropagatesErrors(t *testing.T) {
	s := NewScheduler(NewSettings())
	defer s.Shutdown(context.Background())

	light := &fakeLight{name: "Lamp1"}
	boom := errors.New("boom")
	failing := testEffect{
		name: "failing",
		tick: func(ctx context.Context, _ Light, _ Resolved) error { return boom },
	}

	err := s.Start(context.Background(), light, failing, Params{}, false)
	if !errors.Is(err, boom) {
		t.Fatalf("expected one-shot error to propagate, got %v", err)
	}
	if got := len(s.Active()); got != 0 {
		t.Fatalf("one-shot must not occupy a slot, got %d active", got)
	}
}

func TestInvalidParametersNeverStartAUnit(t *testing.T) {
	s := NewScheduler(NewSettings())
	defer s.Shutdown(context.Background())

	light := &fakeLight{name: "Lamp1"}
	var ticks atomic.Int64

	err := s.Start(context.Background(), light, countingEffect("count", &ticks), Params{Brightness: intPtr(999)}, true)
	if !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
	if ticks.Load() != 0 {
		t.Fatal("effect ticked despite invalid parameters")
	}
	if got := s.State("Lamp1"); got != StateIdle {
		t.Fatalf("expected idle slot, got %s", got)
	}
}

func TestSweepStopsCleanlyMidRun(t *testing.T) {
	// Fade workflow: start a forever sweep, stop within a few ticks, slot
	// returns to idle and the light holds the last state.
	s := NewScheduler(NewSettings())
	defer s.Shutdown(context.Background())

	light := &fakeLight{name: "Lamp1"}
	sweep, err := NewColorSweep(intPtr(200))
	if err != nil {
		t.Fatalf("NewColorSweep: %v", err)
	}

	params := Params{Brightness: intPtr(200), Interval: time.Millisecond}
	if err := s.Start(context.Background(), light, sweep, params, true); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, func() bool { return len(light.recordedHues()) >= 5 }, "sweep never ticked")

	s.Stop("Lamp1")
	if got := s.State("Lamp1"); got != StateIdle {
		t.Fatalf("expected idle after stop, got %s", got)
	}

	hues := light.recordedHues()
	for i, h := range hues[:5] {
		if h != i*200 {
			t.Fatalf("hue[%d] = %d, want %d", i, h, i*200)
		}
	}
}

func TestShutdownStopsEverythingAndPoisons(t *testing.T) {
	s := NewScheduler(NewSettings())

	var ticks atomic.Int64
	lights := []*fakeLight{{name: "A"}, {name: "B"}, {name: "C"}}
	for _, l := range lights {
		if err := s.Start(context.Background(), l, countingEffect("count", &ticks), Params{}, true); err != nil {
			t.Fatalf("start %s: %v", l.name, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if got := len(s.Active()); got != 0 {
		t.Fatalf("expected no active slots after shutdown, got %d", got)
	}

	// Poisoned: no new units
	err := s.Start(context.Background(), lights[0], countingEffect("count", &ticks), Params{}, true)
	if !errors.Is(err, ErrShuttingDown) {
		t.Fatalf("expected ErrShuttingDown after shutdown, got %v", err)
	}
}

func TestStartRacingShutdownLeavesNoSlot(t *testing.T) {
	// Starts issued while Shutdown runs must either be rejected or be fully
	// cleaned up; the slot map ends empty either way.
	for i := 0; i < 100; i++ {
		s := NewScheduler(NewSettings())
		light := &fakeLight{name: "Lamp1"}
		var ticks atomic.Int64

		if err := s.Start(context.Background(), light, countingEffect("count", &ticks), Params{}, true); err != nil {
			t.Fatalf("start: %v", err)
		}

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				_ = s.Start(context.Background(), light, countingEffect("count", &ticks), Params{}, true)
			}
		}()

		if err := s.Shutdown(context.Background()); err != nil {
			t.Fatalf("shutdown: %v", err)
		}
		wg.Wait()

		if got := s.Active(); len(got) != 0 {
			t.Fatalf("slot lingered after shutdown: %v", got)
		}
		if got := s.State("Lamp1"); got != StateIdle {
			t.Fatalf("expected idle after shutdown, got %s", got)
		}
	}
}

func TestStateStringValues(t *testing.T) {
	tests := []struct {
		state SlotState
		want  string
	}{
		{StateIdle, "idle"},
		{StateRunning, "running"},
		{StateStopping, "stopping"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Fatalf("SlotState(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
