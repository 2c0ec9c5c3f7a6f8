// Package overlay manages user-placed reference images floating above the
// base media. Placement is stored in relative (0-1) coordinates so overlays
// survive container resizes and zoom changes; raw pixels never reach the
// stored state.
package overlay

import (
	"image"

	"github.com/google/uuid"

	"media-markup/internal/media"
	"media-markup/internal/transform"
	"media-markup/pkg/geometry"
)

// Opacity slider bounds. The low end stays slightly above zero so an
// overlay can never be made fully invisible by the slider alone.
const (
	MinOpacity = 0.01
	MaxOpacity = 1.0

	// MinScale stops the corner handle from collapsing an overlay into an
	// unclickable point.
	MinScale = 0.05
)

// Image is one reference-image overlay.
type Image struct {
	ID        string
	SourceRef string

	// Position is the top-left corner as a fraction (0-1) of the display
	// area. Scale is relative to the overlay's natural size in media pixels.
	Position geometry.Point2D
	Scale    float64
	Opacity  float64
	Visible  bool

	// Loaded bitmap, or nil with LoadErr set when loading failed and the
	// compositor should render an error placeholder instead.
	Bitmap  *image.RGBA
	Frame   media.Frame
	LoadErr error
}

// New creates an overlay dropped at the given relative position.
func New(sourceRef string, position geometry.Point2D) *Image {
	return &Image{
		ID:        uuid.NewString(),
		SourceRef: sourceRef,
		Position:  clampRelative(position),
		Scale:     1,
		Opacity:   1,
		Visible:   true,
	}
}

// DragBy moves the overlay by a display-space delta, written back as a
// relative position change.
func (o *Image) DragBy(dx, dy float64, m transform.Metrics) {
	if m.DisplayWidth <= 0 || m.DisplayHeight <= 0 {
		return
	}
	o.Position = clampRelative(geometry.Point2D{
		X: o.Position.X + dx/m.DisplayWidth,
		Y: o.Position.Y + dy/m.DisplayHeight,
	})
}

// ResizeBy applies a corner-handle drag (display-space delta along x) as a
// uniform scale change.
func (o *Image) ResizeBy(dx float64, m transform.Metrics) {
	current := o.DisplayRect(m)
	if current.Width <= 0 {
		return
	}
	factor := (current.Width + dx) / current.Width
	o.Scale *= factor
	if o.Scale < MinScale {
		o.Scale = MinScale
	}
}

// SetOpacityFromSlider maps a vertical slider position (0 at the top of a
// sliderHeight-tall region) linearly onto [MinOpacity, MaxOpacity].
func (o *Image) SetOpacityFromSlider(y, sliderHeight float64) {
	if sliderHeight <= 0 {
		return
	}
	v := 1 - y/sliderHeight
	if v < MinOpacity {
		v = MinOpacity
	}
	if v > MaxOpacity {
		v = MaxOpacity
	}
	o.Opacity = v
}

// DisplayRect returns where the overlay renders under the current metrics.
// Position is resolution-independent: x = paddingX + position*displayWidth.
func (o *Image) DisplayRect(m transform.Metrics) geometry.Rect {
	w := float64(o.Frame.NaturalWidth) * o.Scale * m.Scale
	h := float64(o.Frame.NaturalHeight) * o.Scale * m.Scale
	return geometry.Rect{
		X:      m.PaddingX + o.Position.X*m.DisplayWidth,
		Y:      m.PaddingY + o.Position.Y*m.DisplayHeight,
		Width:  w,
		Height: h,
	}
}

// HitTest reports whether a display-space point falls on the overlay body.
func (o *Image) HitTest(p geometry.Point2D, m transform.Metrics) bool {
	return o.Visible && o.DisplayRect(m).Contains(p)
}

func clampRelative(p geometry.Point2D) geometry.Point2D {
	clamp := func(v float64) float64 {
		if v < 0 {
			return 0
		}
		if v > 1 {
			return 1
		}
		return v
	}
	return geometry.Point2D{X: clamp(p.X), Y: clamp(p.Y)}
}

// Set is the ordered collection of overlays for one annotation session.
type Set struct {
	images      []*Image
	selectedID  string
	onSelection func(id string)
	onChange    func()
}

// NewSet creates an empty overlay set.
func NewSet() *Set {
	return &Set{}
}

// OnSelectionChanged registers the selection-changed callback. An empty id
// means the selection was cleared.
func (s *Set) OnSelectionChanged(fn func(id string)) { s.onSelection = fn }

// OnChange registers a redraw callback.
func (s *Set) OnChange(fn func()) { s.onChange = fn }

// Add appends an overlay to the top of the overlay layer.
func (s *Set) Add(o *Image) {
	s.images = append(s.images, o)
	s.notify()
}

// Remove deletes one overlay. Removing the selected overlay clears the
// selection first.
func (s *Set) Remove(id string) {
	for i, o := range s.images {
		if o.ID == id {
			if s.selectedID == id {
				s.Select("")
			}
			s.images = append(s.images[:i], s.images[i+1:]...)
			s.notify()
			return
		}
	}
}

// Clear removes every overlay and clears the selection.
func (s *Set) Clear() {
	if len(s.images) == 0 {
		return
	}
	s.Select("")
	s.images = nil
	s.notify()
}

// Select marks an overlay as selected and fires the selection callback.
func (s *Set) Select(id string) {
	if s.selectedID == id {
		return
	}
	s.selectedID = id
	if s.onSelection != nil {
		s.onSelection(id)
	}
	s.notify()
}

// Selected returns the selected overlay id, or "".
func (s *Set) Selected() string { return s.selectedID }

// Images returns the overlays in z-order (first is bottom).
func (s *Set) Images() []*Image { return s.images }

// Len returns the number of overlays.
func (s *Set) Len() int { return len(s.images) }

// Get returns an overlay by id.
func (s *Set) Get(id string) (*Image, bool) {
	for _, o := range s.images {
		if o.ID == id {
			return o, true
		}
	}
	return nil, false
}

// TopAt returns the topmost visible overlay under a display-space point.
func (s *Set) TopAt(p geometry.Point2D, m transform.Metrics) (*Image, bool) {
	for i := len(s.images) - 1; i >= 0; i-- {
		if s.images[i].HitTest(p, m) {
			return s.images[i], true
		}
	}
	return nil, false
}

func (s *Set) notify() {
	if s.onChange != nil {
		s.onChange()
	}
}
