// Package export renders committed annotations onto media frames for
// download. Rendering happens in media pixel space on a plain RGBA frame,
// so one code path serves still images and extracted video frames alike.
package export

import (
	"image"
	"image/color"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"media-markup/internal/annotation"
	"media-markup/internal/ink"
	"media-markup/internal/media"
	"media-markup/internal/overlay"
	"media-markup/pkg/colorutil"
	"media-markup/pkg/geometry"
)

const (
	// labelMaxRunes bounds the burned-in label so it stays readable inside
	// small markers.
	labelMaxRunes = 15

	// defaultBoxFraction sizes the fallback box drawn for records whose
	// geometry collapsed to a point or a line. The record must still be
	// visible in the export.
	defaultBoxFraction = 0.25

	// rectFillOpacity tints the interior of rect markers without hiding
	// the media underneath.
	rectFillOpacity = 0.15

	// labelPlaceholder labels markers whose annotation text is empty.
	labelPlaceholder = "(no text)"
)

// fallbackColor is used when a record carries an unparseable color string.
var fallbackColor = colorutil.Red

// absoluteRect turns a stored rect into absolute media pixels. Rects with
// every component in [-1, 1] are relative and scale with the frame;
// anything else is already in pixels. The sign of the extent is kept.
func absoluteRect(r geometry.Rect, frame media.Frame) geometry.Rect {
	if r.IsRelative() {
		return r.ScaleXY(float64(frame.NaturalWidth), float64(frame.NaturalHeight))
	}
	return r
}

// resolveRect turns a stored rect into clamped absolute media pixels.
// Degenerate results collapse to a centered default box.
func resolveRect(r geometry.Rect, frame media.Frame) geometry.Rect {
	w := float64(frame.NaturalWidth)
	h := float64(frame.NaturalHeight)

	abs := absoluteRect(r, frame).Clamp(w, h)

	if abs.IsDegenerate() {
		bw := w * defaultBoxFraction
		bh := h * defaultBoxFraction
		abs = geometry.Rect{X: (w - bw) / 2, Y: (h - bh) / 2, Width: bw, Height: bh}
	}
	return abs
}

// lineThickness picks an outline weight proportional to the frame so
// exports of large stills do not end up with hairline markers.
func lineThickness(frame media.Frame) int {
	minDim := frame.NaturalWidth
	if frame.NaturalHeight < minDim {
		minDim = frame.NaturalHeight
	}
	t := minDim / 400
	if t < 2 {
		t = 2
	}
	return t
}

// DrawAnnotations burns every annotation into dst. A missing or degenerate
// rect synthesizes the centered default box, so every record yields a
// visible overlay.
func DrawAnnotations(dst *image.RGBA, list []annotation.Annotation, frame media.Frame) {
	thickness := lineThickness(frame)

	for _, a := range list {
		col, err := colorutil.ParseHex(a.Color)
		if err != nil {
			col = fallbackColor
		}

		tool, err := annotation.ParseTool(a.Tool)
		if err != nil {
			tool = annotation.ToolRect
		}

		var stored geometry.Rect
		if a.Rect != nil {
			stored = *a.Rect
		}

		if tool == annotation.ToolArrow {
			abs := absoluteRect(stored, frame)
			// An arrow only needs a direction; a single zero extent still
			// draws an axis-aligned shaft.
			if abs.Width != 0 || abs.Height != 0 {
				drawArrow(dst, abs, col, thickness)
				drawLabel(dst, a.Text, abs.Canon(), col)
				continue
			}
			// Collapsed arrow: fall through to the default box.
			tool = annotation.ToolRect
		}

		rect := resolveRect(stored, frame)
		switch tool {
		case annotation.ToolCircle:
			drawEllipse(dst, rect, col, thickness)
		default:
			fillRectBlend(dst, rect, col, rectFillOpacity)
			drawRectOutline(dst, rect, col, thickness)
		}
		drawLabel(dst, a.Text, rect, col)
	}
}

// DrawInk replays persisted ink strokes onto dst. Stroke points are media
// pixels already, so only color parsing and line stamping remain.
func DrawInk(dst *image.RGBA, doc ink.Document) {
	for _, stroke := range doc.Strokes {
		if len(stroke.Points) < 2 {
			continue
		}
		col, err := colorutil.ParseHex(stroke.Color)
		if err != nil {
			col = fallbackColor
		}
		width := int(stroke.Width)
		if width < 1 {
			width = 1
		}
		for i := 1; i < len(stroke.Points); i++ {
			p1 := stroke.Points[i-1]
			p2 := stroke.Points[i]
			drawLine(dst, int(p1.X), int(p1.Y), int(p2.X), int(p2.Y), col, width)
		}
	}
}

// DrawOverlayImage composites one reference overlay into dst at its stored
// relative position, uniform scale, and opacity. Hidden or unloaded
// overlays draw nothing.
func DrawOverlayImage(dst *image.RGBA, ov *overlay.Image, frame media.Frame) {
	if !ov.Visible || ov.Bitmap == nil {
		return
	}

	w := float64(frame.NaturalWidth)
	h := float64(frame.NaturalHeight)
	ow := float64(ov.Frame.NaturalWidth) * ov.Scale
	oh := float64(ov.Frame.NaturalHeight) * ov.Scale

	target := image.Rect(
		int(ov.Position.X*w),
		int(ov.Position.Y*h),
		int(ov.Position.X*w+ow),
		int(ov.Position.Y*h+oh),
	)

	alpha := uint8(math.Round(ov.Opacity * 255))
	mask := image.NewUniform(color.Alpha{A: alpha})
	xdraw.BiLinear.Scale(dst, target, ov.Bitmap, ov.Bitmap.Bounds(), xdraw.Over, &xdraw.Options{
		DstMask: nil,
		SrcMask: mask,
	})
}

// fillRectBlend tints the rect interior by blending the marker color over
// the existing pixels.
func fillRectBlend(dst *image.RGBA, rect geometry.Rect, col color.RGBA, opacity float64) {
	target := image.Rect(int(rect.X), int(rect.Y), int(rect.X+rect.Width), int(rect.Y+rect.Height))
	target = target.Intersect(dst.Bounds())
	for y := target.Min.Y; y < target.Max.Y; y++ {
		for x := target.Min.X; x < target.Max.X; x++ {
			dst.SetRGBA(x, y, colorutil.Blend(dst.RGBAAt(x, y), col, opacity))
		}
	}
}

// drawRectOutline draws a thick axis-aligned outline, clipped to bounds.
func drawRectOutline(dst *image.RGBA, rect geometry.Rect, col color.RGBA, thickness int) {
	bounds := dst.Bounds()
	x1, y1 := int(rect.X), int(rect.Y)
	x2, y2 := int(rect.X+rect.Width), int(rect.Y+rect.Height)

	for t := 0; t < thickness; t++ {
		for x := x1; x <= x2; x++ {
			if x >= bounds.Min.X && x < bounds.Max.X {
				if y1+t >= bounds.Min.Y && y1+t < bounds.Max.Y {
					dst.Set(x, y1+t, col)
				}
				if y2-t >= bounds.Min.Y && y2-t < bounds.Max.Y {
					dst.Set(x, y2-t, col)
				}
			}
		}
		for y := y1; y <= y2; y++ {
			if y >= bounds.Min.Y && y < bounds.Max.Y {
				if x1+t >= bounds.Min.X && x1+t < bounds.Max.X {
					dst.Set(x1+t, y, col)
				}
				if x2-t >= bounds.Min.X && x2-t < bounds.Max.X {
					dst.Set(x2-t, y, col)
				}
			}
		}
	}
}

// drawEllipse draws the outline of the ellipse inscribed in rect.
func drawEllipse(dst *image.RGBA, rect geometry.Rect, col color.RGBA, thickness int) {
	bounds := dst.Bounds()
	cx := rect.X + rect.Width/2
	cy := rect.Y + rect.Height/2
	rx := rect.Width / 2
	ry := rect.Height / 2
	if rx < 1 || ry < 1 {
		return
	}

	inner := float64(thickness)
	minX, maxX := int(cx-rx-1), int(cx+rx+1)
	minY, maxY := int(cy-ry-1), int(cy+ry+1)

	for y := minY; y <= maxY; y++ {
		if y < bounds.Min.Y || y >= bounds.Max.Y {
			continue
		}
		for x := minX; x <= maxX; x++ {
			if x < bounds.Min.X || x >= bounds.Max.X {
				continue
			}
			dx := (float64(x) - cx) / rx
			dy := (float64(y) - cy) / ry
			d := dx*dx + dy*dy
			// Ring test against the inscribed ellipse, widened inward by
			// the outline thickness.
			idx := (float64(x) - cx) / math.Max(rx-inner, 1)
			idy := (float64(y) - cy) / math.Max(ry-inner, 1)
			if d <= 1 && idx*idx+idy*idy >= 1 {
				dst.Set(x, y, col)
			}
		}
	}
}

// drawArrow draws a shaft from the rect origin along its signed extent,
// capped with two barbs. Signed width/height keep the drag direction; the
// rect is already absolute media pixels and non-degenerate.
func drawArrow(dst *image.RGBA, abs geometry.Rect, col color.RGBA, thickness int) {
	x1, y1 := abs.X, abs.Y
	x2, y2 := abs.X+abs.Width, abs.Y+abs.Height

	drawLine(dst, int(x1), int(y1), int(x2), int(y2), col, thickness)

	headLen := math.Max(12, float64(thickness)*4)
	angle := math.Atan2(y2-y1, x2-x1)
	for _, spread := range []float64{math.Pi / 6, -math.Pi / 6} {
		bx := x2 - headLen*math.Cos(angle+spread)
		by := y2 - headLen*math.Sin(angle+spread)
		drawLine(dst, int(x2), int(y2), int(bx), int(by), col, thickness)
	}
}

// drawLine draws a thick line using Bresenham's algorithm.
func drawLine(dst *image.RGBA, x1, y1, x2, y2 int, col color.RGBA, thickness int) {
	bounds := dst.Bounds()

	dx := x2 - x1
	dy := y2 - y1
	if dx < 0 {
		dx = -dx
	}
	if dy < 0 {
		dy = -dy
	}

	sx := 1
	if x1 > x2 {
		sx = -1
	}
	sy := 1
	if y1 > y2 {
		sy = -1
	}

	err := dx - dy

	for {
		for t := -thickness / 2; t <= thickness/2; t++ {
			for s := -thickness / 2; s <= thickness/2; s++ {
				px, py := x1+s, y1+t
				if px >= bounds.Min.X && px < bounds.Max.X && py >= bounds.Min.Y && py < bounds.Max.Y {
					dst.Set(px, py, col)
				}
			}
		}

		if x1 == x2 && y1 == y2 {
			break
		}

		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x1 += sx
		}
		if e2 < dx {
			err += dx
			y1 += sy
		}
	}
}

// drawLabel renders a truncated text label on a solid background just
// above the marker, falling inside it when the marker touches the top
// edge. Empty text gets a placeholder so every marker stays labeled.
func drawLabel(dst *image.RGBA, text string, rect geometry.Rect, col color.RGBA) {
	if text == "" {
		text = labelPlaceholder
	}
	runes := []rune(text)
	if len(runes) > labelMaxRunes {
		text = string(runes[:labelMaxRunes]) + "…"
	}

	face := basicfont.Face7x13
	textWidth := font.MeasureString(face, text).Ceil()
	textHeight := face.Metrics().Height.Ceil()
	pad := 3

	x := int(rect.X)
	y := int(rect.Y) - textHeight - 2*pad
	if y < dst.Bounds().Min.Y {
		y = int(rect.Y)
	}

	bg := image.Rect(x, y, x+textWidth+2*pad, y+textHeight+2*pad)
	bg = bg.Intersect(dst.Bounds())
	for py := bg.Min.Y; py < bg.Max.Y; py++ {
		for px := bg.Min.X; px < bg.Max.X; px++ {
			dst.Set(px, py, col)
		}
	}

	drawer := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(colorutil.White),
		Face: face,
		Dot: fixed.Point26_6{
			X: fixed.I(x + pad),
			Y: fixed.I(y + pad + face.Metrics().Ascent.Ceil()),
		},
	}
	drawer.DrawString(text)
}
