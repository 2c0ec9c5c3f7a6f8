// Package canvas provides the annotation canvas: media display with pan
// and zoom, layered overlays, ink, markers, and pointer routing into the
// creation and edit state machines.
package canvas

import (
	"image"
	"log/slog"

	"fyne.io/fyne/v2"
	fynecanvas "fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"

	"media-markup/internal/annotation"
	"media-markup/internal/ink"
	"media-markup/internal/overlay"
	"media-markup/internal/session"
	"media-markup/internal/transform"
	"media-markup/pkg/geometry"
)

// inkStrokeWidth is the pen stroke width in media pixels.
const inkStrokeWidth = 3.0

// Canvas renders the session's media with every annotation layer
// composited on top, and routes pointer gestures to the collaborator that
// owns the active tool.
type Canvas struct {
	widget.BaseWidget

	session *session.Session
	creator *annotation.Creator
	editor  *annotation.Editor
	ink     *ink.Layer

	raster *fynecanvas.Raster

	// Media pixels; nil until a frame is loaded.
	mediaImage *image.RGBA

	showFindings bool

	// Interaction state for the current gesture.
	dragging    bool
	lastDrag    geometry.Point2D
	dragTarget  dragTarget
	dragOverlay *overlay.Image

	// onInputRequested fires when a gesture finishes and the creation
	// machine waits for text; the host opens its input dialog and calls
	// creator.Submit or creator.Cancel.
	onInputRequested func()

	// onMarkerTapped fires with the tapped annotation when the cursor tool
	// hits a committed marker.
	onMarkerTapped func(annotation.Annotation)

	log *slog.Logger
}

type dragTarget int

const (
	dragNone dragTarget = iota
	dragPan
	dragOverlayMove
	dragOverlayResize
	dragOverlayOpacity
	dragEditMove
	dragCreate
	dragInk
)

// New creates the canvas bound to its collaborators.
func New(s *session.Session, creator *annotation.Creator, editor *annotation.Editor, inkLayer *ink.Layer, log *slog.Logger) *Canvas {
	if log == nil {
		log = slog.Default()
	}
	c := &Canvas{
		session:      s,
		creator:      creator,
		editor:       editor,
		ink:          inkLayer,
		showFindings: true,
		log:          log,
	}
	c.raster = fynecanvas.NewRaster(c.compose)
	c.ExtendBaseWidget(c)

	s.On(session.EventMetricsChanged, func(interface{}) { c.Refresh() })
	s.On(session.EventAnnotationsChanged, func(interface{}) { c.Refresh() })
	s.On(session.EventFindingsChanged, func(interface{}) { c.Refresh() })
	s.Overlays.OnChange(func() { c.Refresh() })
	creator.OnChange(func() { c.Refresh() })
	editor.OnChange(func() { c.Refresh() })
	inkLayer.OnChange(func() { c.Refresh() })

	return c
}

// SetMediaImage installs the decoded media pixels for the current frame.
func (c *Canvas) SetMediaImage(img *image.RGBA) {
	c.mediaImage = img
	c.Refresh()
}

// SetFindingsVisible toggles the AI findings layer.
func (c *Canvas) SetFindingsVisible(visible bool) {
	c.showFindings = visible
	c.Refresh()
}

// OnInputRequested registers the host's text-input opener.
func (c *Canvas) OnInputRequested(fn func()) { c.onInputRequested = fn }

// OnMarkerTapped registers the host's marker-tap handler.
func (c *Canvas) OnMarkerTapped(fn func(annotation.Annotation)) { c.onMarkerTapped = fn }

// CreateRenderer implements fyne.Widget.
func (c *Canvas) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(c.raster)
}

// Resize propagates the new container size into the session so display
// metrics recompute before the next paint.
func (c *Canvas) Resize(size fyne.Size) {
	c.session.SetContainerSize(geometry.Size{
		Width:  float64(size.Width),
		Height: float64(size.Height),
	})
	c.BaseWidget.Resize(size)
}

// Scrolled zooms on wheel movement, anchored at the container center.
func (c *Canvas) Scrolled(ev *fyne.ScrollEvent) {
	if ev.Scrolled.DY > 0 {
		c.session.ZoomIn()
	} else if ev.Scrolled.DY < 0 {
		c.session.ZoomOut()
	}
}

// MouseDown starts a gesture and picks its target from the active tool.
func (c *Canvas) MouseDown(ev *desktop.MouseEvent) {
	p := geometry.Point2D{X: float64(ev.Position.X), Y: float64(ev.Position.Y)}
	m := c.session.Metrics()
	c.dragging = true
	c.lastDrag = p
	c.dragTarget = dragNone

	tool := c.session.Tool()
	switch {
	case tool.CreatesMarker():
		c.creator.SetTool(tool)
		c.creator.SetColor(c.session.Color())
		if c.creator.PointerDown(p, m) {
			c.dragTarget = dragCreate
			if c.creator.State() == annotation.CreateAwaitingInput {
				// Text tool opens input immediately.
				c.requestInput()
			}
		}

	case tool == annotation.ToolPen:
		c.ink.BeginStroke(m.ToMedia(p), c.session.Color(), inkStrokeWidth)
		c.dragTarget = dragInk

	default: // cursor
		if sel, ok := c.session.Overlays.Get(c.session.Overlays.Selected()); ok && sel.Visible {
			rect := sel.DisplayRect(m)
			switch overlayZoneAt(rect, p) {
			case zoneClose:
				c.session.Overlays.Remove(sel.ID)
				c.dragging = false
				return
			case zoneResize:
				c.dragOverlay = sel
				c.dragTarget = dragOverlayResize
				return
			case zoneOpacity:
				sel.SetOpacityFromSlider(p.Y-rect.Y, rect.Height)
				c.dragOverlay = sel
				c.dragTarget = dragOverlayOpacity
				c.Refresh()
				return
			}
		}
		if ov, ok := c.session.Overlays.TopAt(p, m); ok {
			c.session.Overlays.Select(ov.ID)
			c.dragOverlay = ov
			c.dragTarget = dragOverlayMove
			return
		}
		if a, ok := c.markerAt(p, m); ok && c.editor.EditingID() == a.ID {
			c.dragTarget = dragEditMove
			return
		}
		c.session.Overlays.Select("")
		c.dragTarget = dragPan
	}
}

// MouseMoved advances the current gesture.
func (c *Canvas) MouseMoved(ev *desktop.MouseEvent) {
	if !c.dragging {
		return
	}
	p := geometry.Point2D{X: float64(ev.Position.X), Y: float64(ev.Position.Y)}
	dx := p.X - c.lastDrag.X
	dy := p.Y - c.lastDrag.Y
	c.lastDrag = p

	m := c.session.Metrics()
	switch c.dragTarget {
	case dragCreate:
		c.creator.PointerMove(p)
	case dragInk:
		c.ink.ExtendStroke(m.ToMedia(p))
	case dragOverlayMove:
		if c.dragOverlay != nil {
			c.dragOverlay.DragBy(dx, dy, m)
			c.Refresh()
		}
	case dragOverlayResize:
		if c.dragOverlay != nil {
			c.dragOverlay.ResizeBy(dx, m)
			c.Refresh()
		}
	case dragOverlayOpacity:
		if c.dragOverlay != nil {
			rect := c.dragOverlay.DisplayRect(m)
			c.dragOverlay.SetOpacityFromSlider(p.Y-rect.Y, rect.Height)
			c.Refresh()
		}
	case dragEditMove:
		if m.Scale > 0 {
			c.editor.MoveBy(dx/m.Scale, dy/m.Scale)
		}
	case dragPan:
		c.session.Pan(dx, dy)
	}
}

// MouseUp finishes the gesture.
func (c *Canvas) MouseUp(_ *desktop.MouseEvent) {
	if !c.dragging {
		return
	}
	c.dragging = false

	switch c.dragTarget {
	case dragCreate:
		wasSizing := c.creator.State() == annotation.CreateSizing || c.creator.State() == annotation.CreateDrawing
		c.creator.PointerUp(c.session.Metrics())
		if wasSizing && c.creator.State() == annotation.CreateAwaitingInput {
			c.requestInput()
		}
	case dragInk:
		c.ink.EndStroke()
	}
	c.dragOverlay = nil
	c.dragTarget = dragNone
}

// MouseIn implements desktop.Hoverable.
func (c *Canvas) MouseIn(*desktop.MouseEvent) {}

// MouseOut cancels any in-flight gesture when the pointer leaves.
func (c *Canvas) MouseOut() {
	if c.dragging && c.dragTarget == dragInk {
		c.ink.EndStroke()
	}
	c.dragging = false
	c.dragTarget = dragNone
	c.dragOverlay = nil
}

// Tapped routes cursor taps to committed markers.
func (c *Canvas) Tapped(ev *fyne.PointEvent) {
	if c.session.Tool() != annotation.ToolCursor {
		return
	}
	p := geometry.Point2D{X: float64(ev.Position.X), Y: float64(ev.Position.Y)}
	if a, ok := c.markerAt(p, c.session.Metrics()); ok && c.onMarkerTapped != nil {
		c.onMarkerTapped(a)
	}
}

// markerAt hit-tests committed annotations in display space, topmost
// (latest) first.
func (c *Canvas) markerAt(p geometry.Point2D, m transform.Metrics) (annotation.Annotation, bool) {
	if !m.Valid() {
		return annotation.Annotation{}, false
	}
	frame := c.session.Frame()
	list := c.session.Annotations()
	for i := len(list) - 1; i >= 0; i-- {
		a := list[i]
		if a.Rect == nil {
			continue
		}
		rect := markerMediaRect(*a.Rect, frame)
		if override, ok := c.editor.DisplayRect(a); ok {
			rect = override
		}
		if m.RectToDisplay(rect).Contains(p) {
			return a, true
		}
	}
	return annotation.Annotation{}, false
}

func (c *Canvas) requestInput() {
	if c.onInputRequested != nil {
		c.onInputRequested()
	}
}
