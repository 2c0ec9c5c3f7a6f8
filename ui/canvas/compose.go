package canvas

import (
	"image"
	"image/color"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"media-markup/internal/annotation"
	"media-markup/internal/media"
	"media-markup/internal/overlay"
	"media-markup/internal/transform"
	"media-markup/pkg/colorutil"
	"media-markup/pkg/geometry"
)

const (
	markerThickness  = 2
	findingThickness = 2

	tagPadX = 3
	tagPadY = 2
)

var (
	backgroundColor   = color.RGBA{R: 24, G: 24, B: 27, A: 255}
	selectionColor    = color.RGBA{R: 255, G: 255, B: 0, A: 255}
	errorTileColor    = color.RGBA{R: 64, G: 24, B: 24, A: 255}
	closeBoxColor     = color.RGBA{R: 200, G: 48, B: 48, A: 255}
	opacityTrackColor = color.RGBA{R: 40, G: 40, B: 40, A: 255}
	tagTextColor      = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// compose renders the full layer stack for the current widget size. The
// z-order is fixed: media, reference overlays, ink, committed markers,
// findings, then the in-progress creation preview on top.
func (c *Canvas) compose(w, h int) image.Image {
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.SetRGBA(x, y, backgroundColor)
		}
	}

	m := c.session.Metrics()
	if !m.Valid() {
		return out
	}

	c.drawMedia(out, m)
	for _, ov := range c.session.Overlays.Images() {
		c.drawReferenceOverlay(out, ov, m)
	}
	c.drawInk(out, m)
	c.drawMarkers(out, m)
	if c.showFindings {
		c.drawFindings(out, m)
	}
	c.drawCreationPreview(out, m)

	return out
}

func (c *Canvas) drawMedia(out *image.RGBA, m transform.Metrics) {
	if c.mediaImage == nil {
		return
	}
	target := image.Rect(
		int(m.PaddingX), int(m.PaddingY),
		int(m.PaddingX+m.DisplayWidth), int(m.PaddingY+m.DisplayHeight),
	)
	xdraw.ApproxBiLinear.Scale(out, target, c.mediaImage, c.mediaImage.Bounds(), xdraw.Src, nil)
}

func (c *Canvas) drawReferenceOverlay(out *image.RGBA, ov *overlay.Image, m transform.Metrics) {
	if !ov.Visible {
		return
	}
	rect := ov.DisplayRect(m)
	target := image.Rect(int(rect.X), int(rect.Y), int(rect.X+rect.Width), int(rect.Y+rect.Height))

	if ov.Bitmap == nil {
		// Load failed or still pending: show a placeholder tile so the user
		// can still select and remove it.
		if ov.LoadErr != nil {
			fillRect(out, target, errorTileColor)
		}
	} else {
		alpha := uint8(math.Round(ov.Opacity * 255))
		mask := image.NewUniform(color.Alpha{A: alpha})
		xdraw.ApproxBiLinear.Scale(out, target, ov.Bitmap, ov.Bitmap.Bounds(), xdraw.Over, &xdraw.Options{
			SrcMask: mask,
		})
	}

	if c.session.Overlays.Selected() == ov.ID {
		drawDashedRect(out, target, selectionColor)
		drawOverlayControls(out, ov, rect)
	}
}

// drawOverlayControls paints the close box, corner resize handle, and
// opacity strip on the selected overlay.
func drawOverlayControls(out *image.RGBA, ov *overlay.Image, rect geometry.Rect) {
	closeBox := closeBoxRect(rect)
	fillRect(out, imageRect(closeBox), closeBoxColor)
	x1, y1 := int(closeBox.X)+3, int(closeBox.Y)+3
	x2, y2 := int(closeBox.X+closeBox.Width)-4, int(closeBox.Y+closeBox.Height)-4
	drawLine(out, x1, y1, x2, y2, tagTextColor, 1)
	drawLine(out, x1, y2, x2, y1, tagTextColor, 1)

	fillRect(out, imageRect(resizeHandleRect(rect)), selectionColor)

	strip := opacityStripRect(rect)
	fillRect(out, imageRect(strip), opacityTrackColor)
	// Thumb sits at the current opacity, fully opaque at the top.
	thumbY := int(strip.Y + (1-ov.Opacity)*strip.Height)
	drawLine(out, int(strip.X), thumbY, int(strip.X+strip.Width)-1, thumbY, selectionColor, 2)
}

func imageRect(r geometry.Rect) image.Rectangle {
	return image.Rect(int(r.X), int(r.Y), int(r.X+r.Width), int(r.Y+r.Height))
}

func (c *Canvas) drawInk(out *image.RGBA, m transform.Metrics) {
	if c.ink == nil {
		return
	}
	for _, stroke := range c.ink.Strokes() {
		col, err := colorutil.ParseHex(stroke.Color)
		if err != nil {
			col = colorutil.Red
		}
		width := int(stroke.Width * m.Scale)
		if width < 1 {
			width = 1
		}
		for i := 1; i < len(stroke.Points); i++ {
			p1 := m.ToDisplay(stroke.Points[i-1])
			p2 := m.ToDisplay(stroke.Points[i])
			drawLine(out, int(p1.X), int(p1.Y), int(p2.X), int(p2.Y), col, width)
		}
	}
}

func (c *Canvas) drawMarkers(out *image.RGBA, m transform.Metrics) {
	frame := c.session.Frame()
	for _, a := range c.session.Annotations() {
		if a.Rect == nil {
			continue
		}
		col, err := colorutil.ParseHex(a.Color)
		if err != nil {
			col = colorutil.Red
		}

		rect := markerMediaRect(*a.Rect, frame)
		if override, ok := c.editor.DisplayRect(a); ok {
			rect = override
		}
		disp := m.RectToDisplay(rect)

		tool, err := annotation.ParseTool(a.Tool)
		if err != nil {
			tool = annotation.ToolRect
		}
		drawMarkerShape(out, tool, disp, col)

		if c.editor.EditingID() == a.ID {
			target := image.Rect(int(disp.X), int(disp.Y), int(disp.X+disp.Width), int(disp.Y+disp.Height))
			drawDashedRect(out, target, selectionColor)
		}
	}
}

func (c *Canvas) drawFindings(out *image.RGBA, m transform.Metrics) {
	for _, f := range c.session.Findings() {
		disp := m.RectToDisplay(f.Rect)
		col := f.Severity.Color()
		drawRectOutline(out, disp, col, findingThickness)
		if f.Label != "" {
			drawTextTag(out, f.Label, disp, col)
		}
	}
}

// markerMediaRect resolves stored annotation geometry to absolute media
// pixels; relative (0-1) rects expand against the frame.
func markerMediaRect(r geometry.Rect, frame media.Frame) geometry.Rect {
	if r.IsRelative() {
		return r.ScaleXY(float64(frame.NaturalWidth), float64(frame.NaturalHeight))
	}
	return r
}

// drawTextTag paints text on a solid background immediately above a
// display-space rect, dropping inside it when there is no room above.
func drawTextTag(out *image.RGBA, text string, rect geometry.Rect, col color.RGBA) {
	if text == "" {
		return
	}
	face := basicfont.Face7x13
	w := font.MeasureString(face, text).Ceil() + 2*tagPadX
	h := face.Metrics().Height.Ceil() + 2*tagPadY

	x := int(rect.X)
	y := int(rect.Y) - h
	if y < out.Bounds().Min.Y {
		y = int(rect.Y)
	}

	fillRect(out, image.Rect(x, y, x+w, y+h), col)
	d := &font.Drawer{
		Dst:  out,
		Src:  image.NewUniform(tagTextColor),
		Face: face,
		Dot:  fixed.P(x+tagPadX, y+tagPadY+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(text)
}

func (c *Canvas) drawCreationPreview(out *image.RGBA, m transform.Metrics) {
	rect, ok := c.creator.CurrentRect()
	if !ok {
		return
	}
	col, err := colorutil.ParseHex(c.creator.Color())
	if err != nil {
		col = colorutil.Red
	}
	// Preview rect is already display-space.
	drawMarkerShape(out, c.creator.Tool(), rect, col)
}

// drawMarkerShape dispatches one display-space rect to its tool's shape.
func drawMarkerShape(out *image.RGBA, tool annotation.Tool, disp geometry.Rect, col color.RGBA) {
	switch tool {
	case annotation.ToolArrow:
		drawArrowShape(out, disp, col, markerThickness)
	case annotation.ToolCircle:
		drawEllipseOutline(out, disp.Canon(), col, markerThickness)
	default:
		drawRectOutline(out, disp.Canon(), col, markerThickness)
	}
}

func fillRect(out *image.RGBA, r image.Rectangle, col color.RGBA) {
	r = r.Intersect(out.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			out.SetRGBA(x, y, col)
		}
	}
}

func drawRectOutline(out *image.RGBA, rect geometry.Rect, col color.RGBA, thickness int) {
	bounds := out.Bounds()
	x1, y1 := int(rect.X), int(rect.Y)
	x2, y2 := int(rect.X+rect.Width), int(rect.Y+rect.Height)

	for t := 0; t < thickness; t++ {
		for x := x1; x <= x2; x++ {
			if x >= bounds.Min.X && x < bounds.Max.X {
				if y1+t >= bounds.Min.Y && y1+t < bounds.Max.Y {
					out.SetRGBA(x, y1+t, col)
				}
				if y2-t >= bounds.Min.Y && y2-t < bounds.Max.Y {
					out.SetRGBA(x, y2-t, col)
				}
			}
		}
		for y := y1; y <= y2; y++ {
			if y >= bounds.Min.Y && y < bounds.Max.Y {
				if x1+t >= bounds.Min.X && x1+t < bounds.Max.X {
					out.SetRGBA(x1+t, y, col)
				}
				if x2-t >= bounds.Min.X && x2-t < bounds.Max.X {
					out.SetRGBA(x2-t, y, col)
				}
			}
		}
	}
}

// drawDashedRect draws a dashed outline, alternating pixels on a 4-pixel
// cadence.
func drawDashedRect(out *image.RGBA, r image.Rectangle, col color.RGBA) {
	bounds := out.Bounds()
	for x := r.Min.X; x <= r.Max.X; x++ {
		if x < bounds.Min.X || x >= bounds.Max.X {
			continue
		}
		if (x+r.Min.Y)%4 < 2 && r.Min.Y >= bounds.Min.Y && r.Min.Y < bounds.Max.Y {
			out.SetRGBA(x, r.Min.Y, col)
		}
		if (x+r.Max.Y)%4 < 2 && r.Max.Y >= bounds.Min.Y && r.Max.Y < bounds.Max.Y {
			out.SetRGBA(x, r.Max.Y, col)
		}
	}
	for y := r.Min.Y; y <= r.Max.Y; y++ {
		if y < bounds.Min.Y || y >= bounds.Max.Y {
			continue
		}
		if (r.Min.X+y)%4 < 2 && r.Min.X >= bounds.Min.X && r.Min.X < bounds.Max.X {
			out.SetRGBA(r.Min.X, y, col)
		}
		if (r.Max.X+y)%4 < 2 && r.Max.X >= bounds.Min.X && r.Max.X < bounds.Max.X {
			out.SetRGBA(r.Max.X, y, col)
		}
	}
}

func drawEllipseOutline(out *image.RGBA, rect geometry.Rect, col color.RGBA, thickness int) {
	bounds := out.Bounds()
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
			idx := (float64(x) - cx) / math.Max(rx-inner, 1)
			idy := (float64(y) - cy) / math.Max(ry-inner, 1)
			if dx*dx+dy*dy <= 1 && idx*idx+idy*idy >= 1 {
				out.SetRGBA(x, y, col)
			}
		}
	}
}

// drawArrowShape draws a shaft from the rect origin along its signed
// extent, with two barbs at the tip.
func drawArrowShape(out *image.RGBA, rect geometry.Rect, col color.RGBA, thickness int) {
	x1, y1 := rect.X, rect.Y
	x2, y2 := rect.X+rect.Width, rect.Y+rect.Height
	if x1 == x2 && y1 == y2 {
		return
	}

	drawLine(out, int(x1), int(y1), int(x2), int(y2), col, thickness)

	headLen := math.Max(10, float64(thickness)*4)
	angle := math.Atan2(y2-y1, x2-x1)
	for _, spread := range []float64{math.Pi / 6, -math.Pi / 6} {
		bx := x2 - headLen*math.Cos(angle+spread)
		by := y2 - headLen*math.Sin(angle+spread)
		drawLine(out, int(x2), int(y2), int(bx), int(by), col, thickness)
	}
}

// drawLine draws a thick line using Bresenham's algorithm.
func drawLine(out *image.RGBA, x1, y1, x2, y2 int, col color.RGBA, thickness int) {
	bounds := out.Bounds()

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
					out.SetRGBA(px, py, col)
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
