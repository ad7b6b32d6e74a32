package device

import "sort"

// baseColors maps color names to approximate hue values on the bridge's
// 0-65535 color wheel.
var baseColors = map[string]int{
	"red":          0,
	"orange":       4000,
	"yellow":       8000,
	"lime":         12000,
	"green":        16000,
	"dark_green":   20000,
	"forest_green": 24000,
	"teal":         28000,
	"cyan":         32000,
	"light_blue":   36000,
	"blue":         40000,
	"dark_blue":    44000,
	"magenta":      48000,
	"purple":       52000,
	"pink":         56000,
	"bright_pink":  60000,
}

// ColorNames returns the known color names ordered by hue.
func ColorNames() []string {
	names := make([]string, 0, len(baseColors))
	for name := range baseColors {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return baseColors[names[i]] < baseColors[names[j]] })
	return names
}

// HueFor returns the hue value for a named color.
func HueFor(name string) (int, bool) {
	v, ok := baseColors[name]
	return v, ok
}

// NearestColor returns the color name closest to the given hue.
func NearestColor(hueVal int) string {
	best := ""
	bestDist := -1
	for _, name := range ColorNames() {
		dist := hueVal - baseColors[name]
		if dist < 0 {
			dist = -dist
		}
		if bestDist < 0 || dist < bestDist {
			best = name
			bestDist = dist
		}
	}
	return best
}
