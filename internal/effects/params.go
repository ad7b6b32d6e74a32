package effects

import (
	"fmt"
	"time"
)

// Params records what the caller explicitly provided for one effect run.
// Pointer fields distinguish "not given" from a deliberate zero; anything
// left nil falls back to the shared Settings at tick time, then to library
// defaults.
type Params struct {
	Brightness *int
	Saturation *int
	Hue        *int
	Interval   time.Duration
	Step       *int
}

// Resolved carries the concrete values one tick runs with.
type Resolved struct {
	Brightness int
	Saturation int
	Hue        *int
	Interval   time.Duration
}

// validate rejects values the bridge can never accept.
func (p Params) validate() error {
	if p.Brightness != nil && (*p.Brightness < 0 || *p.Brightness > 255) {
		return fmt.Errorf("%w: brightness %d out of range [0,255]", ErrInvalidParameter, *p.Brightness)
	}
	if p.Saturation != nil && (*p.Saturation < 0 || *p.Saturation > 255) {
		return fmt.Errorf("%w: saturation %d out of range [0,255]", ErrInvalidParameter, *p.Saturation)
	}
	if p.Hue != nil && (*p.Hue < 0 || *p.Hue > 65535) {
		return fmt.Errorf("%w: hue %d out of range [0,65535]", ErrInvalidParameter, *p.Hue)
	}
	if p.Interval < 0 {
		return fmt.Errorf("%w: negative interval %s", ErrInvalidParameter, p.Interval)
	}
	return nil
}

// resolve merges explicit parameters with the live shared settings. Called
// once per tick so settings changes reach running effects.
func (p Params) resolve(s *Settings) Resolved {
	r := Resolved{Interval: p.Interval}
	if r.Interval == 0 {
		r.Interval = time.Second
	}

	switch {
	case p.Brightness != nil:
		r.Brightness = *p.Brightness
	case s != nil:
		r.Brightness = s.Brightness()
	default:
		r.Brightness = DefaultBrightness
	}

	switch {
	case p.Saturation != nil:
		r.Saturation = *p.Saturation
	case s != nil:
		r.Saturation = s.Saturation()
	default:
		r.Saturation = DefaultSaturation
	}

	if p.Hue != nil {
		v := *p.Hue
		r.Hue = &v
	} else if s != nil {
		if v, ok := s.Hue(); ok {
			r.Hue = &v
		}
	}

	return r
}
