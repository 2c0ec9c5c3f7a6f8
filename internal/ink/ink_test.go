package ink

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-markup/internal/annotation"
	"media-markup/pkg/geometry"
)

func TestScopeID(t *testing.T) {
	assert.Equal(t, "subtask-7:v3", ScopeID("subtask-7", 3))
}

func TestDrawStrokeMarksDirtyAndNotifies(t *testing.T) {
	l := NewLayer("s:v1")
	changes := 0
	l.OnChange(func() { changes++ })

	l.BeginStroke(geometry.NewPoint2D(0, 0), "#ff0000", 2)
	l.ExtendStroke(geometry.NewPoint2D(10, 0))
	l.ExtendStroke(geometry.NewPoint2D(20, 5))
	l.EndStroke()

	assert.True(t, l.Dirty())
	assert.Greater(t, changes, 0)
	require.Len(t, l.Strokes(), 1)
	assert.Equal(t, "#ff0000", l.Strokes()[0].Color)
}

func TestLoadSerializedIsNotAnEdit(t *testing.T) {
	doc := Document{Version: 1, Strokes: []Stroke{
		{Points: []geometry.Point2D{{X: 1, Y: 1}, {X: 2, Y: 2}}, Color: "#000000", Width: 3},
	}}
	data, err := json.Marshal(doc)
	require.NoError(t, err)

	l := NewLayer("s:v1")
	fired := false
	l.OnChange(func() { fired = true })

	require.NoError(t, l.LoadSerialized(data))
	assert.False(t, l.Dirty(), "loading persisted ink must not mark the layer dirty")
	assert.False(t, fired, "loading persisted ink must not fire change notifications")
	assert.Len(t, l.Strokes(), 1)
}

func TestLoadSerializedRejectsGarbage(t *testing.T) {
	l := NewLayer("s:v1")
	assert.Error(t, l.LoadSerialized([]byte("not json")))
}

func TestStrayTapIsDiscarded(t *testing.T) {
	l := NewLayer("s:v1")
	l.BeginStroke(geometry.NewPoint2D(5, 5), "#000000", 2)
	l.EndStroke()
	assert.Empty(t, l.Strokes())
	assert.False(t, l.Dirty())
}

func TestClearIsWholesaleAndDirty(t *testing.T) {
	l := NewLayer("s:v1")
	l.BeginStroke(geometry.NewPoint2D(0, 0), "#000000", 2)
	l.ExtendStroke(geometry.NewPoint2D(50, 50))
	l.EndStroke()
	require.Len(t, l.Strokes(), 1)

	l.Clear()
	assert.Empty(t, l.Strokes())
	assert.True(t, l.Dirty())
}

func TestUndoStroke(t *testing.T) {
	l := NewLayer("s:v1")
	for i := 0; i < 2; i++ {
		l.BeginStroke(geometry.NewPoint2D(float64(i), 0), "#000000", 2)
		l.ExtendStroke(geometry.NewPoint2D(float64(i)+30, 30))
		l.EndStroke()
	}
	require.Len(t, l.Strokes(), 2)
	l.UndoStroke()
	assert.Len(t, l.Strokes(), 1)
}

func TestSaveRoundTrip(t *testing.T) {
	store := annotation.NewMemoryStore()
	l := NewLayer("s:v2")
	l.BeginStroke(geometry.NewPoint2D(0, 0), "#00ff00", 4)
	l.ExtendStroke(geometry.NewPoint2D(100, 0))
	l.EndStroke()

	require.NoError(t, l.Save(context.Background(), store))
	assert.False(t, l.Dirty())

	blob, ok := store.InkDocument("s:v2")
	require.True(t, ok)

	restored := NewLayer("s:v2")
	require.NoError(t, restored.LoadSerialized(blob))
	require.Len(t, restored.Strokes(), 1)
	assert.Equal(t, "#00ff00", restored.Strokes()[0].Color)
}

func TestResampleEvensOutSpacing(t *testing.T) {
	// Uneven input: clustered at the start, one long jump at the end.
	points := []geometry.Point2D{
		{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 2, Y: 0}, {X: 3, Y: 0}, {X: 100, Y: 0},
	}
	out := Resample(points, 5)
	require.Greater(t, len(out), 2)

	assert.InDelta(t, 0.0, out[0].X, 1e-9)
	assert.InDelta(t, 100.0, out[len(out)-1].X, 1e-6)

	// Consecutive gaps should be near-uniform after resampling.
	first := out[1].X - out[0].X
	for i := 2; i < len(out); i++ {
		assert.InDelta(t, first, out[i].X-out[i-1].X, 1e-6)
	}
}

func TestResampleHandlesDuplicatePoints(t *testing.T) {
	points := []geometry.Point2D{
		{X: 0, Y: 0}, {X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 0}, {X: 20, Y: 0},
	}
	out := Resample(points, 4)
	require.NotEmpty(t, out)
	assert.InDelta(t, 20.0, out[len(out)-1].X, 1e-6)
}

func TestResampleShortStrokesPassThrough(t *testing.T) {
	points := []geometry.Point2D{{X: 0, Y: 0}, {X: 1, Y: 1}}
	assert.Equal(t, points, Resample(points, 3))
}
