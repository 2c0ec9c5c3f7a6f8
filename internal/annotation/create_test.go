package annotation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-markup/internal/transform"
	"media-markup/pkg/geometry"
)

// failingStore rejects every call, for error-path tests.
type failingStore struct{}

func (failingStore) CreateAnnotation(context.Context, Annotation) (Annotation, error) {
	return Annotation{}, errors.New("network down")
}
func (failingStore) UpdateAnnotationRect(context.Context, string, geometry.Rect) error {
	return errors.New("network down")
}
func (failingStore) SaveInkDocument(context.Context, string, []byte) error {
	return errors.New("network down")
}
func (failingStore) ClearInkDocument(context.Context, string) error {
	return errors.New("network down")
}

func identityMetrics(t *testing.T) transform.Metrics {
	t.Helper()
	m, err := transform.Compute(geometry.NewSize(2000, 2000), geometry.NewSize(2000, 2000), 1)
	require.NoError(t, err)
	require.InDelta(t, 1.0, m.Scale, 1e-9)
	return m
}

func TestCreateRectNormalizesDragDirection(t *testing.T) {
	store := NewMemoryStore()
	c := NewCreator(store, nil, nil)
	c.SetTool(ToolRect)
	m := identityMetrics(t)

	require.True(t, c.PointerDown(geometry.NewPoint2D(100, 100), m))
	c.PointerMove(geometry.NewPoint2D(40, 60))
	c.PointerUp(m)
	require.Equal(t, CreateAwaitingInput, c.State())

	committed, err := c.Submit(context.Background(), m, "scratch near hinge", "")
	require.NoError(t, err)
	require.NotNil(t, committed.Rect)
	assert.InDelta(t, 40.0, committed.Rect.X, 1e-9)
	assert.InDelta(t, 60.0, committed.Rect.Y, 1e-9)
	assert.InDelta(t, 60.0, committed.Rect.Width, 1e-9)
	assert.InDelta(t, 40.0, committed.Rect.Height, 1e-9)
	assert.Equal(t, "rect", committed.Type)
	assert.NotEmpty(t, committed.ID)
}

func TestCreateArrowKeepsSignedDeltas(t *testing.T) {
	store := NewMemoryStore()
	c := NewCreator(store, nil, nil)
	c.SetTool(ToolArrow)
	m := identityMetrics(t)

	require.True(t, c.PointerDown(geometry.NewPoint2D(100, 100), m))
	c.PointerMove(geometry.NewPoint2D(40, 60))
	c.PointerUp(m)

	committed, err := c.Submit(context.Background(), m, "", "")
	require.NoError(t, err)
	require.NotNil(t, committed.Rect)
	assert.InDelta(t, 100.0, committed.Rect.X, 1e-9)
	assert.InDelta(t, 100.0, committed.Rect.Y, 1e-9)
	assert.InDelta(t, -60.0, committed.Rect.Width, 1e-9)
	assert.InDelta(t, -40.0, committed.Rect.Height, 1e-9)
}

func TestCommitInverseTransformsUnderZoom(t *testing.T) {
	store := NewMemoryStore()
	c := NewCreator(store, nil, nil)
	c.SetTool(ToolRect)

	// 1000x1000 media in a 1000x1000 container at zoom 2: scale 2, padding -?
	m, err := transform.Compute(geometry.NewSize(1000, 1000), geometry.NewSize(1000, 1000), 2)
	require.NoError(t, err)

	down := m.ToDisplay(geometry.NewPoint2D(100, 100))
	up := m.ToDisplay(geometry.NewPoint2D(160, 140))
	require.True(t, c.PointerDown(down, m))
	c.PointerMove(up)
	c.PointerUp(m)

	committed, err := c.Submit(context.Background(), m, "zoomed", "")
	require.NoError(t, err)
	assert.InDelta(t, 100.0, committed.Rect.X, 1e-6)
	assert.InDelta(t, 100.0, committed.Rect.Y, 1e-6)
	assert.InDelta(t, 60.0, committed.Rect.Width, 1e-6)
	assert.InDelta(t, 40.0, committed.Rect.Height, 1e-6)
}

func TestTextToolOpensInputOnPointerDown(t *testing.T) {
	c := NewCreator(NewMemoryStore(), nil, nil)
	c.SetTool(ToolText)
	m := identityMetrics(t)

	require.True(t, c.PointerDown(geometry.NewPoint2D(300, 200), m))
	assert.Equal(t, CreateAwaitingInput, c.State())

	r, ok := c.CurrentRect()
	require.True(t, ok)
	assert.Greater(t, r.Width, 0.0)
	assert.Greater(t, r.Height, 0.0)
}

func TestSearchToolFiresSideChannelAndSkipsPersistence(t *testing.T) {
	store := NewMemoryStore()
	c := NewCreator(store, nil, nil)
	c.SetTool(ToolSearch)
	m := identityMetrics(t)

	var got *geometry.Rect
	c.OnSearch(func(region geometry.Rect) { got = &region })

	require.True(t, c.PointerDown(geometry.NewPoint2D(10, 10), m))
	c.PointerMove(geometry.NewPoint2D(90, 70))
	c.PointerUp(m)

	require.NotNil(t, got)
	assert.InDelta(t, 10.0, got.X, 1e-9)
	assert.InDelta(t, 80.0, got.Width, 1e-9)
	assert.Equal(t, CreateIdle, c.State())
	assert.Empty(t, store.Annotations())
}

func TestSearchToolIgnoresTinySelections(t *testing.T) {
	c := NewCreator(NewMemoryStore(), nil, nil)
	c.SetTool(ToolSearch)
	m := identityMetrics(t)

	fired := false
	c.OnSearch(func(geometry.Rect) { fired = true })

	require.True(t, c.PointerDown(geometry.NewPoint2D(10, 10), m))
	c.PointerMove(geometry.NewPoint2D(15, 14))
	c.PointerUp(m)

	assert.False(t, fired)
	assert.Equal(t, CreateIdle, c.State())
}

func TestOnlyOneCreationInFlight(t *testing.T) {
	c := NewCreator(NewMemoryStore(), nil, nil)
	c.SetTool(ToolRect)
	m := identityMetrics(t)

	require.True(t, c.PointerDown(geometry.NewPoint2D(10, 10), m))
	c.PointerMove(geometry.NewPoint2D(50, 50))
	c.PointerUp(m)
	require.Equal(t, CreateAwaitingInput, c.State())

	// A new gesture cannot start while input is pending.
	assert.False(t, c.PointerDown(geometry.NewPoint2D(200, 200), m))
}

func TestCursorAndPenDoNotCreateMarkers(t *testing.T) {
	c := NewCreator(NewMemoryStore(), nil, nil)
	m := identityMetrics(t)

	c.SetTool(ToolCursor)
	assert.False(t, c.PointerDown(geometry.NewPoint2D(10, 10), m))
	c.SetTool(ToolPen)
	assert.False(t, c.PointerDown(geometry.NewPoint2D(10, 10), m))
}

func TestCommitResetsTransientStateButKeepsToolAndColor(t *testing.T) {
	c := NewCreator(NewMemoryStore(), nil, nil)
	c.SetTool(ToolCircle)
	c.SetColor("#00ff00")
	m := identityMetrics(t)

	require.True(t, c.PointerDown(geometry.NewPoint2D(10, 10), m))
	c.PointerMove(geometry.NewPoint2D(80, 80))
	c.PointerUp(m)
	_, err := c.Submit(context.Background(), m, "dent", "")
	require.NoError(t, err)

	assert.Equal(t, CreateIdle, c.State())
	_, ok := c.CurrentRect()
	assert.False(t, ok)
	assert.Equal(t, ToolCircle, c.Tool())
	assert.Equal(t, "#00ff00", c.Color())
}

func TestCancelReturnsToIdle(t *testing.T) {
	c := NewCreator(NewMemoryStore(), nil, nil)
	c.SetTool(ToolRect)
	m := identityMetrics(t)

	require.True(t, c.PointerDown(geometry.NewPoint2D(10, 10), m))
	c.PointerMove(geometry.NewPoint2D(60, 60))
	c.PointerUp(m)
	c.Cancel()
	assert.Equal(t, CreateIdle, c.State())

	// The machine accepts a fresh gesture afterwards.
	assert.True(t, c.PointerDown(geometry.NewPoint2D(5, 5), m))
}

func TestVideoCommitStampsDefaultSegment(t *testing.T) {
	playback := func() (float64, float64, bool) { return 12.4, 90, true }
	c := NewCreator(NewMemoryStore(), playback, nil)
	c.SetTool(ToolRect)
	m := identityMetrics(t)

	require.True(t, c.PointerDown(geometry.NewPoint2D(10, 10), m))
	c.PointerMove(geometry.NewPoint2D(60, 60))
	c.PointerUp(m)
	committed, err := c.Submit(context.Background(), m, "flicker", "")
	require.NoError(t, err)

	require.NotNil(t, committed.StartAt)
	require.NotNil(t, committed.EndAt)
	assert.InDelta(t, 12.4, *committed.StartAt, 1e-9)
	assert.InDelta(t, 13.4, *committed.EndAt, 1e-9)
	assert.InDelta(t, 12.4, committed.Timestamp, 1e-9)
}

func TestVideoCommitClampsSegmentToDuration(t *testing.T) {
	playback := func() (float64, float64, bool) { return 89.7, 90, true }
	c := NewCreator(NewMemoryStore(), playback, nil)
	c.SetTool(ToolRect)
	m := identityMetrics(t)

	require.True(t, c.PointerDown(geometry.NewPoint2D(10, 10), m))
	c.PointerMove(geometry.NewPoint2D(60, 60))
	c.PointerUp(m)
	committed, err := c.Submit(context.Background(), m, "", "")
	require.NoError(t, err)
	assert.InDelta(t, 90.0, *committed.EndAt, 1e-9)
}

func TestSubmitFailurePreservesGesture(t *testing.T) {
	c := NewCreator(failingStore{}, nil, nil)
	c.SetTool(ToolRect)
	m := identityMetrics(t)

	require.True(t, c.PointerDown(geometry.NewPoint2D(10, 10), m))
	c.PointerMove(geometry.NewPoint2D(60, 60))
	c.PointerUp(m)

	_, err := c.Submit(context.Background(), m, "x", "")
	require.Error(t, err)
	assert.Equal(t, CreateAwaitingInput, c.State())
}

func TestSubmitOutsideAwaitingInput(t *testing.T) {
	c := NewCreator(NewMemoryStore(), nil, nil)
	_, err := c.Submit(context.Background(), identityMetrics(t), "x", "")
	assert.ErrorIs(t, err, ErrNotAwaitingInput)
}

func TestToolTable(t *testing.T) {
	assert.Equal(t, SizeNormalized, ToolRect.Sizing())
	assert.Equal(t, SizeNormalized, ToolCircle.Sizing())
	assert.Equal(t, SizeNormalized, ToolText.Sizing())
	assert.Equal(t, SizeNormalized, ToolSearch.Sizing())
	assert.Equal(t, SizeSigned, ToolArrow.Sizing())

	parsed, err := ParseTool("arrow")
	require.NoError(t, err)
	assert.Equal(t, ToolArrow, parsed)
	_, err = ParseTool("lasso")
	assert.Error(t, err)
}
