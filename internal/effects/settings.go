package effects

import "sync/atomic"

// Default channel values applied when neither the caller nor the shared
// settings provide one. A fade without explicit brightness uses the maximum
// so the sweep stays visible.
const (
	DefaultBrightness = 254
	DefaultSaturation = 254
)

// Settings is the process-wide effect configuration. The command surface
// writes it, every running effect reads it on each tick, so changes apply to
// future ticks of already-running effects. All fields are atomics; there is
// no per-effect snapshot.
type Settings struct {
	brightness atomic.Int32
	saturation atomic.Int32
	hue        atomic.Int32
	hueSet     atomic.Bool
	forever    atomic.Bool
}

// NewSettings returns settings with library defaults and no hue selection.
func NewSettings() *Settings {
	s := &Settings{}
	s.brightness.Store(DefaultBrightness)
	s.saturation.Store(DefaultSaturation)
	return s
}

// Brightness returns the shared brightness.
func (s *Settings) Brightness() int { return int(s.brightness.Load()) }

// SetBrightness stores the shared brightness.
func (s *Settings) SetBrightness(v int) { s.brightness.Store(int32(v)) }

// Saturation returns the shared saturation.
func (s *Settings) Saturation() int { return int(s.saturation.Load()) }

// SetSaturation stores the shared saturation.
func (s *Settings) SetSaturation(v int) { s.saturation.Store(int32(v)) }

// Hue returns the shared hue selection, if one has been made. A selection of
// zero is a real value, distinct from no selection.
func (s *Settings) Hue() (int, bool) {
	if !s.hueSet.Load() {
		return 0, false
	}
	return int(s.hue.Load()), true
}

// SetHue stores the shared hue selection.
func (s *Settings) SetHue(v int) {
	s.hue.Store(int32(v))
	s.hueSet.Store(true)
}

// ClearHue removes the shared hue selection.
func (s *Settings) ClearHue() { s.hueSet.Store(false) }

// Forever reports whether effects should repeat until cancelled.
func (s *Settings) Forever() bool { return s.forever.Load() }

// SetForever stores the repeat flag.
func (s *Settings) SetForever(v bool) { s.forever.Store(v) }
