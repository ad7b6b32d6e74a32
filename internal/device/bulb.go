package device

import (
	"context"
	"sync"
	"time"

	"github.com/jmattison/huectl/internal/hue"
)

// Bulb is the handle for one controllable light. The index is resolved once
// at discovery and never changes within a session. Cached state fields are
// best-effort copies of the last update we issued or observed; the bridge
// remains the source of truth.
type Bulb struct {
	client *hue.Client
	name   string
	index  string
	room   string

	mu  sync.Mutex
	on  bool
	bri int
	sat int
	hue *int
}

func newBulb(client *hue.Client, name, index, room string, st hue.LightState) *Bulb {
	b := &Bulb{
		client: client,
		name:   name,
		index:  index,
		room:   room,
		on:     st.On,
		bri:    st.Bri,
	}
	if st.Sat != nil {
		b.sat = *st.Sat
	}
	if st.Hue != nil {
		v := *st.Hue
		b.hue = &v
	}
	return b
}

// Name returns the bulb's name, its identity within a snapshot.
func (b *Bulb) Name() string { return b.name }

// Index returns the bridge-assigned identifier.
func (b *Bulb) Index() string { return b.index }

// Room returns the room this bulb belongs to, or "" when ungrouped.
func (b *Bulb) Room() string { return b.room }

// State returns the cached last-known state.
func (b *Bulb) State() (on bool, bri, sat int, hueVal *int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	on, bri, sat = b.on, b.bri, b.sat
	if b.hue != nil {
		v := *b.hue
		hueVal = &v
	}
	return on, bri, sat, hueVal
}

// SetState issues exactly one outbound state update. The body always carries
// on, sat and bri; hue is included only when non-nil, so an intentional hue
// of zero is preserved. The local cache is updated on success. Failures are
// returned to the caller, never retried here.
func (b *Bulb) SetState(ctx context.Context, on bool, sat, bri int, hueVal *int) error {
	update := hue.StateUpdate{On: on, Sat: sat, Bri: bri, Hue: hueVal}
	if err := b.client.SetLightState(ctx, b.index, update); err != nil {
		return err
	}

	b.mu.Lock()
	b.on = on
	b.sat = sat
	b.bri = bri
	if hueVal != nil {
		v := *hueVal
		b.hue = &v
	}
	b.mu.Unlock()
	return nil
}

// TurnOn powers the bulb on with the given saturation, brightness and
// optional hue.
func (b *Bulb) TurnOn(ctx context.Context, sat, bri int, hueVal *int) error {
	return b.SetState(ctx, true, sat, bri, hueVal)
}

// TurnOff powers the bulb off, keeping the last cached color parameters.
func (b *Bulb) TurnOff(ctx context.Context) error {
	b.mu.Lock()
	sat, bri := b.sat, b.bri
	b.mu.Unlock()
	return b.SetState(ctx, false, sat, bri, nil)
}

// BlinkOnce performs one off/on cycle with the interval split evenly between
// the two phases. It is one discrete unit of work; repetition is the
// scheduler's job.
func (b *Bulb) BlinkOnce(ctx context.Context, interval time.Duration, sat, bri int, hueVal *int) error {
	if err := b.SetState(ctx, false, sat, bri, nil); err != nil {
		return err
	}
	if err := sleep(ctx, interval/2); err != nil {
		return err
	}
	if err := b.SetState(ctx, true, sat, bri, hueVal); err != nil {
		return err
	}
	return sleep(ctx, interval/2)
}

// ColorSweepStep sets one step of a hue sweep. The sequence of hues is
// driven by the caller.
func (b *Bulb) ColorSweepStep(ctx context.Context, hueVal, bri int) error {
	b.mu.Lock()
	sat := b.sat
	b.mu.Unlock()
	v := hueVal
	return b.SetState(ctx, true, sat, bri, &v)
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
