package effects

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// HueMax is the top of the hue range a sweep covers.
const HueMax = 64000

// DefaultSweepStep is the hue increment used when no step is given.
const DefaultSweepStep = 200

// Light is the device surface an effect drives. One slot owns one Light at a
// time; the scheduler enforces that.
type Light interface {
	Name() string
	SetState(ctx context.Context, on bool, sat, bri int, hueVal *int) error
	BlinkOnce(ctx context.Context, interval time.Duration, sat, bri int, hueVal *int) error
	ColorSweepStep(ctx context.Context, hueVal, bri int) error
}

// Effect performs one indivisible action per Tick. The scheduler, not the
// effect, decides whether and when to call Tick again.
type Effect interface {
	Name() string
	// Validate runs before any unit is created; parameter errors never
	// start an effect.
	Validate(p Params) error
	Tick(ctx context.Context, light Light, r Resolved) error
}

// Blink is a single off/on cycle per tick, interval split evenly between the
// two phases.
type Blink struct{}

func (Blink) Name() string { return "blink" }

func (Blink) Validate(p Params) error { return p.validate() }

func (Blink) Tick(ctx context.Context, light Light, r Resolved) error {
	return light.BlinkOnce(ctx, r.Interval, r.Saturation, r.Brightness, r.Hue)
}

// ColorSweep steps hue from 0 up to HueMax in fixed increments and back down
// again, one step per tick, holding brightness fixed. The cursor lives in
// the effect instance, so every Start gets a fresh sweep from zero.
type ColorSweep struct {
	step int

	mu   sync.Mutex
	pos  int
	down bool
}

// NewColorSweep creates a sweep with the given step. A nil step uses
// DefaultSweepStep. A zero or negative step would never advance and a step at
// or beyond HueMax would push the cursor out of range, so both are rejected.
func NewColorSweep(step *int) (*ColorSweep, error) {
	v := DefaultSweepStep
	if step != nil {
		v = *step
	}
	if err := validateSweepStep(v); err != nil {
		return nil, err
	}
	return &ColorSweep{step: v}, nil
}

func validateSweepStep(v int) error {
	if v <= 0 {
		return fmt.Errorf("%w: sweep step must be positive, got %d", ErrInvalidParameter, v)
	}
	if v >= HueMax {
		return fmt.Errorf("%w: sweep step %d exceeds the hue range", ErrInvalidParameter, v)
	}
	return nil
}

func (c *ColorSweep) Name() string { return "fade" }

func (c *ColorSweep) Validate(p Params) error {
	if p.Step != nil {
		if err := validateSweepStep(*p.Step); err != nil {
			return err
		}
	}
	return p.validate()
}

// next emits the current hue and advances the cursor, turning around at the
// range ends so the sequence is strictly monotonic between them.
func (c *ColorSweep) next() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.pos
	if !c.down {
		if c.pos+c.step >= HueMax {
			c.down = true
			c.pos -= c.step
		} else {
			c.pos += c.step
		}
	} else {
		if c.pos-c.step < 0 {
			c.down = false
			c.pos += c.step
		} else {
			c.pos -= c.step
		}
	}
	return cur
}

func (c *ColorSweep) Tick(ctx context.Context, light Light, r Resolved) error {
	if err := light.ColorSweepStep(ctx, c.next(), r.Brightness); err != nil {
		return err
	}
	return sleep(ctx, r.Interval)
}

// sleep waits for d or until ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
