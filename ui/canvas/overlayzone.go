package canvas

import "media-markup/pkg/geometry"

// Control affordance sizes on the selected overlay, in display pixels.
const (
	overlayHandleSize   = 14.0
	overlayOpacityWidth = 10.0
)

// overlayZone identifies which control of a selected overlay a pointer
// landed on.
type overlayZone int

const (
	zoneNone overlayZone = iota
	zoneBody
	zoneClose
	zoneResize
	zoneOpacity
)

// closeBoxRect is the top-right close control.
func closeBoxRect(r geometry.Rect) geometry.Rect {
	return geometry.Rect{
		X:      r.X + r.Width - overlayHandleSize,
		Y:      r.Y,
		Width:  overlayHandleSize,
		Height: overlayHandleSize,
	}
}

// resizeHandleRect is the bottom-right corner scale handle.
func resizeHandleRect(r geometry.Rect) geometry.Rect {
	return geometry.Rect{
		X:      r.X + r.Width - overlayHandleSize,
		Y:      r.Y + r.Height - overlayHandleSize,
		Width:  overlayHandleSize,
		Height: overlayHandleSize,
	}
}

// opacityStripRect is the vertical opacity slider along the left edge.
func opacityStripRect(r geometry.Rect) geometry.Rect {
	return geometry.Rect{
		X:      r.X,
		Y:      r.Y,
		Width:  overlayOpacityWidth,
		Height: r.Height,
	}
}

// overlayZoneAt classifies a display-space point against a selected
// overlay's rect. Corner controls win over the opacity strip, which wins
// over the body.
func overlayZoneAt(r geometry.Rect, p geometry.Point2D) overlayZone {
	if !r.Contains(p) {
		return zoneNone
	}
	switch {
	case closeBoxRect(r).Contains(p):
		return zoneClose
	case resizeHandleRect(r).Contains(p):
		return zoneResize
	case opacityStripRect(r).Contains(p):
		return zoneOpacity
	}
	return zoneBody
}
