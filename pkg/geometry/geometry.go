// Package geometry provides the basic geometric types shared by the
// annotation canvas and the export rasterizer.
package geometry

import (
	"math"
)

// Point2D represents a 2D point with floating-point coordinates.
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NewPoint2D creates a new Point2D.
func NewPoint2D(x, y float64) Point2D {
	return Point2D{X: x, Y: y}
}

// Distance returns the Euclidean distance to another point.
func (p Point2D) Distance(other Point2D) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Add returns the sum of two points.
func (p Point2D) Add(other Point2D) Point2D {
	return Point2D{X: p.X + other.X, Y: p.Y + other.Y}
}

// Sub returns the difference of two points.
func (p Point2D) Sub(other Point2D) Point2D {
	return Point2D{X: p.X - other.X, Y: p.Y - other.Y}
}

// Scale returns the point scaled by a factor.
func (p Point2D) Scale(factor float64) Point2D {
	return Point2D{X: p.X * factor, Y: p.Y * factor}
}

// Rect represents an axis-aligned rectangle with floating-point coordinates.
// Committed annotation rects are always media-space; rects flowing through
// pointer handlers are display-space. Width and Height may be negative for
// direction-preserving shapes (arrows).
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// NewRect creates a new Rect.
func NewRect(x, y, width, height float64) Rect {
	return Rect{X: x, Y: y, Width: width, Height: height}
}

// RectFromCorners builds a normalized rectangle from two opposite corners.
// The anchor is swapped as needed so Width and Height are never negative.
func RectFromCorners(a, b Point2D) Rect {
	x1, x2 := a.X, b.X
	if x1 > x2 {
		x1, x2 = x2, x1
	}
	y1, y2 := a.Y, b.Y
	if y1 > y2 {
		y1, y2 = y2, y1
	}
	return Rect{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

// RectFromDrag builds a rectangle anchored at the drag start with raw signed
// deltas to the live point. Direction-sensitive shapes depend on the sign.
func RectFromDrag(anchor, live Point2D) Rect {
	return Rect{X: anchor.X, Y: anchor.Y, Width: live.X - anchor.X, Height: live.Y - anchor.Y}
}

// Canon returns the rectangle with non-negative width and height, moving the
// origin as needed. The result covers the same area.
func (r Rect) Canon() Rect {
	if r.Width < 0 {
		r.X += r.Width
		r.Width = -r.Width
	}
	if r.Height < 0 {
		r.Y += r.Height
		r.Height = -r.Height
	}
	return r
}

// Contains returns true if the point is inside the canonical rectangle.
func (r Rect) Contains(p Point2D) bool {
	c := r.Canon()
	return p.X >= c.X && p.X <= c.X+c.Width &&
		p.Y >= c.Y && p.Y <= c.Y+c.Height
}

// Center returns the center point of the rectangle.
func (r Rect) Center() Point2D {
	return Point2D{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// TopLeft returns the origin corner.
func (r Rect) TopLeft() Point2D {
	return Point2D{X: r.X, Y: r.Y}
}

// BottomRight returns the corner opposite the origin. For signed rects this
// is the drag end point, not necessarily the maximum corner.
func (r Rect) BottomRight() Point2D {
	return Point2D{X: r.X + r.Width, Y: r.Y + r.Height}
}

// Scale returns the rectangle with every component multiplied by factor.
func (r Rect) Scale(factor float64) Rect {
	return Rect{X: r.X * factor, Y: r.Y * factor, Width: r.Width * factor, Height: r.Height * factor}
}

// ScaleXY returns the rectangle scaled independently per axis.
func (r Rect) ScaleXY(sx, sy float64) Rect {
	return Rect{X: r.X * sx, Y: r.Y * sy, Width: r.Width * sx, Height: r.Height * sy}
}

// Clamp returns the canonical rectangle clipped to [0,0,width,height].
func (r Rect) Clamp(width, height float64) Rect {
	c := r.Canon()
	x1 := math.Max(c.X, 0)
	y1 := math.Max(c.Y, 0)
	x2 := math.Min(c.X+c.Width, width)
	y2 := math.Min(c.Y+c.Height, height)
	if x2 < x1 {
		x2 = x1
	}
	if y2 < y1 {
		y2 = y1
	}
	return Rect{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

// IsDegenerate reports whether the rectangle has no usable area.
func (r Rect) IsDegenerate() bool {
	return r.Width == 0 || r.Height == 0
}

// IsRelative reports whether every component lies in [-1, 1], which marks a
// rect expressed as a 0-1 fraction of the frame rather than in pixels.
func (r Rect) IsRelative() bool {
	return math.Abs(r.X) <= 1 && math.Abs(r.Y) <= 1 &&
		math.Abs(r.Width) <= 1 && math.Abs(r.Height) <= 1
}

// Intersects returns true if this rectangle intersects with another.
func (r Rect) Intersects(other Rect) bool {
	a, b := r.Canon(), other.Canon()
	return a.X < b.X+b.Width && a.X+a.Width > b.X &&
		a.Y < b.Y+b.Height && a.Y+a.Height > b.Y
}

// RectInt represents a rectangle with integer coordinates.
type RectInt struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ToFloat converts to Rect.
func (r RectInt) ToFloat() Rect {
	return Rect{X: float64(r.X), Y: float64(r.Y), Width: float64(r.Width), Height: float64(r.Height)}
}

// Size represents a 2D size.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// NewSize creates a new Size.
func NewSize(width, height float64) Size {
	return Size{Width: width, Height: height}
}

// IsZero reports whether either dimension is non-positive.
func (s Size) IsZero() bool {
	return s.Width <= 0 || s.Height <= 0
}

// BoundingBox computes the axis-aligned bounding box of a set of points.
func BoundingBox(points []Point2D) Rect {
	if len(points) == 0 {
		return Rect{}
	}
	minX, minY := points[0].X, points[0].Y
	maxX, maxY := minX, minY
	for _, p := range points[1:] {
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}
