// Package colorutil provides shared color utilities for the annotation canvas.
package colorutil

import (
	"fmt"
	"image/color"
)

// Common annotation colors.
var (
	Black   = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	White   = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Red     = color.RGBA{R: 235, G: 59, B: 48, A: 255}
	Orange  = color.RGBA{R: 255, G: 149, B: 0, A: 255}
	Yellow  = color.RGBA{R: 255, G: 204, B: 0, A: 255}
	Green   = color.RGBA{R: 52, G: 199, B: 89, A: 255}
	Blue    = color.RGBA{R: 0, G: 122, B: 255, A: 255}
	Magenta = color.RGBA{R: 255, G: 0, B: 255, A: 255}
)

// ParseHex parses a "#rrggbb" or "rrggbb" color string.
func ParseHex(s string) (color.RGBA, error) {
	if len(s) > 0 && s[0] == '#' {
		s = s[1:]
	}
	if len(s) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q", s)
	}
	var r, g, b uint8
	if _, err := fmt.Sscanf(s, "%02x%02x%02x", &r, &g, &b); err != nil {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q: %w", s, err)
	}
	return color.RGBA{R: r, G: g, B: b, A: 255}, nil
}

// Hex formats a color as "#rrggbb".
func Hex(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// WithAlpha returns the color with its alpha channel replaced.
func WithAlpha(c color.RGBA, a uint8) color.RGBA {
	c.A = a
	return c
}

// Blend alpha-blends src over dst with the given opacity in [0,1].
func Blend(dst, src color.RGBA, opacity float64) color.RGBA {
	if opacity <= 0 {
		return dst
	}
	if opacity >= 1 {
		return src
	}
	inv := 1 - opacity
	return color.RGBA{
		R: uint8(float64(src.R)*opacity + float64(dst.R)*inv),
		G: uint8(float64(src.G)*opacity + float64(dst.G)*inv),
		B: uint8(float64(src.B)*opacity + float64(dst.B)*inv),
		A: 255,
	}
}
