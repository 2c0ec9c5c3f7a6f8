// Package transform is the single conversion boundary between media space
// (native pixels of the loaded image or video frame) and display space
// (on-screen pixels inside the viewing container). Every component that
// touches both spaces must go through this package; nothing else is allowed
// to divide by scale or add padding on its own.
package transform

import (
	"errors"
	"math"

	"media-markup/pkg/geometry"
)

// Zoom limits for the interactive viewport.
const (
	MinZoom = 0.2
	MaxZoom = 5.0
)

// ErrDegenerate is returned when the container or the media has a
// non-positive dimension. Callers must treat it as "nothing to lay out"
// rather than proceed into divide-by-zero geometry.
var ErrDegenerate = errors.New("transform: degenerate container or media size")

// Metrics describes the current media-to-display mapping. It is derived
// from container size, natural media size, zoom, and pan; it is recomputed
// whole on every input change, never patched incrementally.
type Metrics struct {
	Scale           float64
	PaddingX        float64
	PaddingY        float64
	DisplayWidth    float64
	DisplayHeight   float64
	ContainerWidth  float64
	ContainerHeight float64
}

// ClampZoom limits a zoom factor to the supported range.
func ClampZoom(zoom float64) float64 {
	if zoom < MinZoom {
		return MinZoom
	}
	if zoom > MaxZoom {
		return MaxZoom
	}
	return zoom
}

// FitScale returns the scale that fits the media inside the container without
// upscaling: min(containerW/naturalW, containerH/naturalH, 1).
func FitScale(container, natural geometry.Size) float64 {
	if container.IsZero() || natural.IsZero() {
		return 0
	}
	s := math.Min(container.Width/natural.Width, container.Height/natural.Height)
	return math.Min(s, 1)
}

// Compute derives fresh metrics for the given container, media size, and
// zoom, with the media centered (letterboxed) in the container.
func Compute(container, natural geometry.Size, zoom float64) (Metrics, error) {
	if container.IsZero() || natural.IsZero() {
		return Metrics{}, ErrDegenerate
	}
	scale := FitScale(container, natural) * ClampZoom(zoom)
	m := Metrics{
		Scale:           scale,
		DisplayWidth:    natural.Width * scale,
		DisplayHeight:   natural.Height * scale,
		ContainerWidth:  container.Width,
		ContainerHeight: container.Height,
	}
	m.PaddingX = clampPadding((container.Width-m.DisplayWidth)/2, container.Width, m.DisplayWidth)
	m.PaddingY = clampPadding((container.Height-m.DisplayHeight)/2, container.Height, m.DisplayHeight)
	return m, nil
}

// clampPadding keeps the media visible. When the media fits the axis it is
// centered and not pannable; otherwise padding is held in
// [container-display, 0].
func clampPadding(pad, container, display float64) float64 {
	if display <= container {
		return (container - display) / 2
	}
	if pad < container-display {
		return container - display
	}
	if pad > 0 {
		return 0
	}
	return pad
}

// ZoomAroundCenter recomputes metrics for newZoom while anchoring the media
// point currently under the container's visual center. When the media
// becomes smaller than the container the result falls back to pure
// centering via the padding clamp.
func ZoomAroundCenter(old Metrics, natural geometry.Size, newZoom float64) (Metrics, error) {
	container := geometry.NewSize(old.ContainerWidth, old.ContainerHeight)
	m, err := Compute(container, natural, newZoom)
	if err != nil {
		return Metrics{}, err
	}
	if old.Scale <= 0 {
		return m, nil
	}

	// Media point under the container center before the zoom change.
	anchorX := (old.ContainerWidth/2 - old.PaddingX) / old.Scale
	anchorY := (old.ContainerHeight/2 - old.PaddingY) / old.Scale

	// Solve for the padding that keeps that point at the center, then re-clamp.
	m.PaddingX = clampPadding(old.ContainerWidth/2-anchorX*m.Scale, m.ContainerWidth, m.DisplayWidth)
	m.PaddingY = clampPadding(old.ContainerHeight/2-anchorY*m.Scale, m.ContainerHeight, m.DisplayHeight)
	return m, nil
}

// Pan shifts the metrics by a display-space delta. Each axis moves only when
// the media overflows the container on that axis, and the result is
// re-clamped every call so repeated drags cannot accumulate drift.
func (m Metrics) Pan(dx, dy float64) Metrics {
	if m.DisplayWidth > m.ContainerWidth {
		m.PaddingX = clampPadding(m.PaddingX+dx, m.ContainerWidth, m.DisplayWidth)
	}
	if m.DisplayHeight > m.ContainerHeight {
		m.PaddingY = clampPadding(m.PaddingY+dy, m.ContainerHeight, m.DisplayHeight)
	}
	return m
}

// Pannable reports whether panning is permitted on either axis.
func (m Metrics) Pannable() bool {
	return m.DisplayWidth > m.ContainerWidth || m.DisplayHeight > m.ContainerHeight
}

// ToDisplay converts a media-space point to display space.
func (m Metrics) ToDisplay(p geometry.Point2D) geometry.Point2D {
	return geometry.Point2D{
		X: m.PaddingX + p.X*m.Scale,
		Y: m.PaddingY + p.Y*m.Scale,
	}
}

// ToMedia converts a display-space point to media space. Exact inverse of
// ToDisplay up to floating-point rounding.
func (m Metrics) ToMedia(p geometry.Point2D) geometry.Point2D {
	return geometry.Point2D{
		X: (p.X - m.PaddingX) / m.Scale,
		Y: (p.Y - m.PaddingY) / m.Scale,
	}
}

// RectToDisplay converts a media-space rect to display space, preserving the
// sign of width and height.
func (m Metrics) RectToDisplay(r geometry.Rect) geometry.Rect {
	origin := m.ToDisplay(r.TopLeft())
	return geometry.Rect{X: origin.X, Y: origin.Y, Width: r.Width * m.Scale, Height: r.Height * m.Scale}
}

// RectToMedia converts a display-space rect to media space, preserving the
// sign of width and height.
func (m Metrics) RectToMedia(r geometry.Rect) geometry.Rect {
	origin := m.ToMedia(r.TopLeft())
	return geometry.Rect{X: origin.X, Y: origin.Y, Width: r.Width / m.Scale, Height: r.Height / m.Scale}
}

// Valid reports whether the metrics can be used for conversions.
func (m Metrics) Valid() bool {
	return m.Scale > 0 && !math.IsNaN(m.Scale) && !math.IsInf(m.Scale, 0)
}
