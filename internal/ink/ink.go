// Package ink holds the freehand stroke layer. One ink document exists per
// (subtask, version) scope; it is cleared or replaced wholesale, never
// merged. Stroke points are captured in device space while the pen tool is
// interactive.
package ink

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"gonum.org/v1/gonum/interp"

	"media-markup/internal/annotation"
	"media-markup/pkg/geometry"
)

// documentVersion tags the serialized format.
const documentVersion = 1

// resampleSpacing is the target distance (device px) between stroke points
// after resampling. Raw pointer events arrive unevenly; even spacing keeps
// serialized documents compact and strokes smooth at any replay scale.
const resampleSpacing = 3.0

// Stroke is one continuous pen path.
type Stroke struct {
	Points []geometry.Point2D `json:"points"`
	Color  string             `json:"color"`
	Width  float64            `json:"width"`
}

// Document is the serialized vector-stroke document for one scope.
type Document struct {
	Version int      `json:"version"`
	Strokes []Stroke `json:"strokes"`
}

// ScopeID builds the storage key for a subtask's ink document.
func ScopeID(subtaskID string, version int) string {
	return fmt.Sprintf("%s:v%d", subtaskID, version)
}

// Layer is the in-memory ink layer bound to one scope.
type Layer struct {
	scopeID string
	doc     Document
	dirty   bool
	active  *Stroke

	onChange func()
}

// NewLayer creates an empty ink layer for a scope.
func NewLayer(scopeID string) *Layer {
	return &Layer{
		scopeID: scopeID,
		doc:     Document{Version: documentVersion},
	}
}

// OnChange registers a callback fired on user-driven changes only. Loading
// pre-existing ink data never fires it.
func (l *Layer) OnChange(fn func()) { l.onChange = fn }

// ScopeID returns the layer's storage key.
func (l *Layer) ScopeID() string { return l.scopeID }

// Dirty reports whether the layer has unsaved user changes.
func (l *Layer) Dirty() bool { return l.dirty }

// Strokes returns the committed strokes plus the stroke in progress.
func (l *Layer) Strokes() []Stroke {
	if l.active == nil {
		return l.doc.Strokes
	}
	out := make([]Stroke, 0, len(l.doc.Strokes)+1)
	out = append(out, l.doc.Strokes...)
	out = append(out, *l.active)
	return out
}

// LoadSerialized replaces the document with previously persisted data.
// This is a restore, not an edit: the layer stays clean and no change
// notification fires.
func (l *Layer) LoadSerialized(data []byte) error {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("ink document for %s: %w", l.scopeID, err)
	}
	l.doc = doc
	l.active = nil
	l.dirty = false
	return nil
}

// BeginStroke starts a new stroke at a device-space point.
func (l *Layer) BeginStroke(p geometry.Point2D, color string, width float64) {
	l.active = &Stroke{Points: []geometry.Point2D{p}, Color: color, Width: width}
	l.notify()
}

// ExtendStroke appends a point to the stroke in progress.
func (l *Layer) ExtendStroke(p geometry.Point2D) {
	if l.active == nil {
		return
	}
	l.active.Points = append(l.active.Points, p)
	l.notify()
}

// EndStroke commits the stroke in progress, resampled to even spacing.
// Strokes with fewer than two points are discarded as stray taps.
func (l *Layer) EndStroke() {
	if l.active == nil {
		return
	}
	stroke := *l.active
	l.active = nil
	if len(stroke.Points) < 2 {
		l.notify()
		return
	}
	stroke.Points = Resample(stroke.Points, resampleSpacing)
	l.doc.Strokes = append(l.doc.Strokes, stroke)
	l.dirty = true
	l.notify()
}

// UndoStroke removes the most recently committed stroke.
func (l *Layer) UndoStroke() {
	if len(l.doc.Strokes) == 0 {
		return
	}
	l.doc.Strokes = l.doc.Strokes[:len(l.doc.Strokes)-1]
	l.dirty = true
	l.notify()
}

// Clear wipes the layer wholesale.
func (l *Layer) Clear() {
	if len(l.doc.Strokes) == 0 && l.active == nil {
		return
	}
	l.doc.Strokes = nil
	l.active = nil
	l.dirty = true
	l.notify()
}

// Serialize returns the document as a persistable blob.
func (l *Layer) Serialize() ([]byte, error) {
	data, err := json.Marshal(l.doc)
	if err != nil {
		return nil, fmt.Errorf("serialize ink document %s: %w", l.scopeID, err)
	}
	return data, nil
}

// Save persists the document through the store and marks the layer clean.
// On failure the dirty flag and document are left untouched for retry.
func (l *Layer) Save(ctx context.Context, store annotation.Store) error {
	data, err := l.Serialize()
	if err != nil {
		return err
	}
	if err := store.SaveInkDocument(ctx, l.scopeID, data); err != nil {
		return fmt.Errorf("save ink document %s: %w", l.scopeID, err)
	}
	l.dirty = false
	return nil
}

func (l *Layer) notify() {
	if l.onChange != nil {
		l.onChange()
	}
}

// Resample redistributes stroke points to roughly even arc-length spacing
// using piecewise-linear interpolation of x(s) and y(s) over cumulative
// distance. The first and last points are always preserved.
func Resample(points []geometry.Point2D, spacing float64) []geometry.Point2D {
	if len(points) < 3 || spacing <= 0 {
		return points
	}

	// Cumulative arc length; coincident points are collapsed because the
	// interpolators require strictly increasing abscissae.
	dist := make([]float64, 0, len(points))
	xs := make([]float64, 0, len(points))
	ys := make([]float64, 0, len(points))
	total := 0.0
	for i, p := range points {
		if i > 0 {
			step := p.Distance(points[i-1])
			if step == 0 {
				continue
			}
			total += step
		}
		dist = append(dist, total)
		xs = append(xs, p.X)
		ys = append(ys, p.Y)
	}
	if len(dist) < 3 || total < spacing {
		return points
	}

	var px, py interp.PiecewiseLinear
	if err := px.Fit(dist, xs); err != nil {
		return points
	}
	if err := py.Fit(dist, ys); err != nil {
		return points
	}

	n := int(math.Ceil(total/spacing)) + 1
	out := make([]geometry.Point2D, 0, n)
	for i := 0; i < n; i++ {
		s := float64(i) * total / float64(n-1)
		out = append(out, geometry.Point2D{X: px.Predict(s), Y: py.Predict(s)})
	}
	return out
}
