// Package finding ingests AI/expert finding records. Upstream producers use
// two incompatible bounding-box conventions; both are normalized into the
// internal media-space Rect here, at the boundary, so rendering code never
// sees per-convention math.
package finding

import (
	"errors"
	"fmt"
	"image/color"
	"log/slog"

	"media-markup/internal/media"
	"media-markup/pkg/colorutil"
	"media-markup/pkg/geometry"
)

// normalizedScale is the denominator of the [y1,x1,y2,x2] box convention.
const normalizedScale = 1000.0

// Severity grades a finding.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Color returns the rectangle color for the severity.
func (s Severity) Color() color.RGBA {
	switch s {
	case SeverityCritical:
		return colorutil.Red
	case SeverityHigh:
		return colorutil.Orange
	case SeverityMedium:
		return colorutil.Yellow
	default:
		return colorutil.Blue
	}
}

// PixelArea is the {x,y,width,height} convention, already in media-space
// pixels.
type PixelArea struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Payload is a finding as delivered by an upstream producer. Exactly one of
// Area (pixel convention) or Box ([y1,x1,y2,x2] on a 0-1000 scale) must be
// set.
type Payload struct {
	ID       string      `json:"id"`
	Label    string      `json:"label,omitempty"`
	Severity Severity    `json:"severity"`
	Area     *PixelArea  `json:"area,omitempty"`
	Box      *[4]float64 `json:"box,omitempty"`
}

// Record is an ingested finding with its geometry resolved to media space.
// Records are read-only; the canvas renders them but never edits them.
type Record struct {
	ID       string
	Label    string
	Severity Severity
	Rect     geometry.Rect
}

// ErrNoGeometry is returned when a payload carries neither convention.
var ErrNoGeometry = errors.New("finding: payload has neither area nor box")

// Ingest converts one payload to a Record against the given frame.
func Ingest(p Payload, frame media.Frame) (Record, error) {
	if frame.IsZero() {
		return Record{}, fmt.Errorf("finding %s: %w", p.ID, errors.New("degenerate media frame"))
	}

	var rect geometry.Rect
	switch {
	case p.Area != nil:
		rect = geometry.NewRect(p.Area.X, p.Area.Y, p.Area.Width, p.Area.Height)
	case p.Box != nil:
		// [y1,x1,y2,x2] normalized to 0-1000: divide by the scale, then
		// multiply by the natural dimensions.
		y1 := p.Box[0] / normalizedScale * float64(frame.NaturalHeight)
		x1 := p.Box[1] / normalizedScale * float64(frame.NaturalWidth)
		y2 := p.Box[2] / normalizedScale * float64(frame.NaturalHeight)
		x2 := p.Box[3] / normalizedScale * float64(frame.NaturalWidth)
		rect = geometry.RectFromCorners(geometry.NewPoint2D(x1, y1), geometry.NewPoint2D(x2, y2))
	default:
		return Record{}, fmt.Errorf("finding %s: %w", p.ID, ErrNoGeometry)
	}

	rect = rect.Clamp(float64(frame.NaturalWidth), float64(frame.NaturalHeight))
	if rect.IsDegenerate() {
		return Record{}, fmt.Errorf("finding %s: geometry degenerate after clamping", p.ID)
	}

	return Record{ID: p.ID, Label: p.Label, Severity: p.Severity, Rect: rect}, nil
}

// IngestAll converts a batch of payloads, skipping (and logging) the ones
// with unusable geometry. A bad finding never hides the rest.
func IngestAll(payloads []Payload, frame media.Frame, log *slog.Logger) []Record {
	if log == nil {
		log = slog.Default()
	}
	records := make([]Record, 0, len(payloads))
	for _, p := range payloads {
		record, err := Ingest(p, frame)
		if err != nil {
			log.Warn("skipping finding", "id", p.ID, "err", err)
			continue
		}
		records = append(records, record)
	}
	return records
}
