package export

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-markup/internal/annotation"
	"media-markup/internal/ink"
	"media-markup/internal/media"
	"media-markup/internal/overlay"
	"media-markup/pkg/geometry"
)

func blankFrame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	return img
}

// countNonWhite returns how many pixels differ from the white background.
func countNonWhite(img *image.RGBA) int {
	n := 0
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.RGBAAt(x, y) != (color.RGBA{255, 255, 255, 255}) {
				n++
			}
		}
	}
	return n
}

func TestRelativeRectScalesWithFrame(t *testing.T) {
	frame := media.Frame{NaturalWidth: 400, NaturalHeight: 200}
	rel := geometry.Rect{X: 0.25, Y: 0.25, Width: 0.5, Height: 0.5}

	abs := resolveRect(rel, frame)
	assert.InDelta(t, 100, abs.X, 1e-9)
	assert.InDelta(t, 50, abs.Y, 1e-9)
	assert.InDelta(t, 200, abs.Width, 1e-9)
	assert.InDelta(t, 100, abs.Height, 1e-9)
}

func TestPixelRectClampedToFrame(t *testing.T) {
	frame := media.Frame{NaturalWidth: 400, NaturalHeight: 200}
	r := geometry.Rect{X: 350, Y: 150, Width: 200, Height: 200}

	abs := resolveRect(r, frame)
	assert.InDelta(t, 350, abs.X, 1e-9)
	assert.InDelta(t, 50, abs.Width, 1e-9)
	assert.InDelta(t, 50, abs.Height, 1e-9)
}

func TestDegenerateRectBecomesVisibleDefaultBox(t *testing.T) {
	frame := media.Frame{NaturalWidth: 400, NaturalHeight: 200}
	r := geometry.Rect{X: 120, Y: 80, Width: 0, Height: 0}

	abs := resolveRect(r, frame)
	require.False(t, abs.IsDegenerate())
	assert.InDelta(t, 200, abs.Center().X, 1e-9)
	assert.InDelta(t, 100, abs.Center().Y, 1e-9)

	// And it actually marks pixels when drawn.
	img := blankFrame(400, 200)
	rect := geometry.Rect{X: 120, Y: 80}
	DrawAnnotations(img, []annotation.Annotation{{Rect: &rect, Color: "#eb3b30", Tool: "rect"}}, frame)
	assert.Greater(t, countNonWhite(img), 100)
}

func TestRectAnnotationDrawsOutlineAndLabel(t *testing.T) {
	frame := media.Frame{NaturalWidth: 400, NaturalHeight: 200}
	img := blankFrame(400, 200)
	rect := geometry.Rect{X: 100, Y: 100, Width: 120, Height: 60}

	DrawAnnotations(img, []annotation.Annotation{{
		Rect: &rect, Color: "#1c8f49", Tool: "rect", Text: "scratch on housing, upper left corner",
	}}, frame)

	green := color.RGBA{R: 28, G: 143, B: 73, A: 255}
	assert.Equal(t, green, img.RGBAAt(100, 100), "outline corner")
	assert.Equal(t, green, img.RGBAAt(220, 160), "outline opposite corner")

	// Label background sits above the rect top edge.
	found := false
	for y := 70; y < 100 && !found; y++ {
		for x := 100; x < 220; x++ {
			if img.RGBAAt(x, y) == green {
				found = true
				break
			}
		}
	}
	assert.True(t, found, "label background above marker")
}

func TestArrowKeepsDirection(t *testing.T) {
	frame := media.Frame{NaturalWidth: 400, NaturalHeight: 200}

	// Drag from bottom-right to top-left: signed negative extent.
	rect := geometry.Rect{X: 300, Y: 150, Width: -200, Height: -100}
	img := blankFrame(400, 200)
	DrawAnnotations(img, []annotation.Annotation{{Rect: &rect, Color: "#eb3b30", Tool: "arrow"}}, frame)

	red := color.RGBA{R: 235, G: 59, B: 48, A: 255}
	assert.Equal(t, red, img.RGBAAt(300, 150), "arrow tail")
	assert.Equal(t, red, img.RGBAAt(100, 50), "arrow tip")
	assert.Equal(t, red, img.RGBAAt(200, 100), "shaft midpoint")
}

func TestBadColorFallsBack(t *testing.T) {
	frame := media.Frame{NaturalWidth: 100, NaturalHeight: 100}
	img := blankFrame(100, 100)
	rect := geometry.Rect{X: 10, Y: 10, Width: 50, Height: 50}

	DrawAnnotations(img, []annotation.Annotation{{Rect: &rect, Color: "not-a-color", Tool: "rect"}}, frame)
	assert.Equal(t, fallbackColor, img.RGBAAt(10, 10))
}

func TestNilRectSynthesizesDefaultBox(t *testing.T) {
	frame := media.Frame{NaturalWidth: 200, NaturalHeight: 200}
	img := blankFrame(200, 200)

	DrawAnnotations(img, []annotation.Annotation{{Text: "just a comment", Color: "#eb3b30", Tool: "rect"}}, frame)
	require.Greater(t, countNonWhite(img), 100, "record without geometry must still be visible")

	// The synthesized box is centered: its outline crosses the vertical
	// midline at the box's top edge (frame/2 - frame*0.25/2).
	red := color.RGBA{R: 235, G: 59, B: 48, A: 255}
	assert.Equal(t, red, img.RGBAAt(100, 75))
}

func TestDegenerateArrowFallsBackToDefaultBox(t *testing.T) {
	frame := media.Frame{NaturalWidth: 200, NaturalHeight: 200}
	img := blankFrame(200, 200)
	rect := geometry.Rect{X: 40, Y: 40}

	DrawAnnotations(img, []annotation.Annotation{{Rect: &rect, Color: "#eb3b30", Tool: "arrow"}}, frame)
	require.Greater(t, countNonWhite(img), 100, "collapsed arrow must still be visible")

	red := color.RGBA{R: 235, G: 59, B: 48, A: 255}
	assert.Equal(t, red, img.RGBAAt(100, 75), "default box centered on the frame")
}

func TestAxisAlignedArrowStillDraws(t *testing.T) {
	frame := media.Frame{NaturalWidth: 200, NaturalHeight: 200}
	img := blankFrame(200, 200)
	rect := geometry.Rect{X: 20, Y: 100, Width: 160, Height: 0}

	DrawAnnotations(img, []annotation.Annotation{{Rect: &rect, Color: "#eb3b30", Tool: "arrow"}}, frame)
	red := color.RGBA{R: 235, G: 59, B: 48, A: 255}
	assert.Equal(t, red, img.RGBAAt(100, 100), "horizontal shaft")
}

func TestArrowGetsLabel(t *testing.T) {
	frame := media.Frame{NaturalWidth: 400, NaturalHeight: 200}
	rect := geometry.Rect{X: 100, Y: 100, Width: 120, Height: 60}

	labeled := blankFrame(400, 200)
	DrawAnnotations(labeled, []annotation.Annotation{{Rect: &rect, Color: "#eb3b30", Tool: "arrow", Text: "broken solder joint"}}, frame)

	bare := blankFrame(400, 200)
	DrawAnnotations(bare, []annotation.Annotation{{Rect: &rect, Color: "#eb3b30", Tool: "arrow"}}, frame)

	assert.NotEqual(t, labeled.Pix, bare.Pix, "label text must alter the render")

	// Label background sits above the shaft's bounding box.
	red := color.RGBA{R: 235, G: 59, B: 48, A: 255}
	found := false
	for y := 70; y < 100 && !found; y++ {
		for x := 100; x < 220; x++ {
			if labeled.RGBAAt(x, y) == red {
				found = true
				break
			}
		}
	}
	assert.True(t, found, "label background above arrow bounding box")
}

func TestEmptyTextGetsPlaceholderLabel(t *testing.T) {
	frame := media.Frame{NaturalWidth: 400, NaturalHeight: 200}
	img := blankFrame(400, 200)
	rect := geometry.Rect{X: 100, Y: 100, Width: 120, Height: 60}

	DrawAnnotations(img, []annotation.Annotation{{Rect: &rect, Color: "#1c8f49", Tool: "rect"}}, frame)

	green := color.RGBA{R: 28, G: 143, B: 73, A: 255}
	found := false
	for y := 70; y < 100 && !found; y++ {
		for x := 100; x < 220; x++ {
			if img.RGBAAt(x, y) == green {
				found = true
				break
			}
		}
	}
	assert.True(t, found, "placeholder label drawn above marker")
}

func TestDrawInkStampsStrokes(t *testing.T) {
	img := blankFrame(100, 100)
	doc := ink.Document{
		Version: 1,
		Strokes: []ink.Stroke{{
			Points: []geometry.Point2D{{X: 10, Y: 50}, {X: 90, Y: 50}},
			Color:  "#eb3b30",
			Width:  3,
		}},
	}

	DrawInk(img, doc)
	red := color.RGBA{R: 235, G: 59, B: 48, A: 255}
	assert.Equal(t, red, img.RGBAAt(50, 50))
	assert.Equal(t, red, img.RGBAAt(10, 50))
}

func solidBitmap(w, h int, col color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, col)
		}
	}
	return img
}

func TestDrawOverlayImageComposites(t *testing.T) {
	frame := media.Frame{NaturalWidth: 200, NaturalHeight: 200}
	blue := color.RGBA{R: 0, G: 0, B: 255, A: 255}

	ov := overlay.New("ref-1", geometry.Point2D{X: 0.25, Y: 0.25})
	ov.Bitmap = solidBitmap(40, 40, blue)
	ov.Frame = media.Frame{NaturalWidth: 40, NaturalHeight: 40}
	ov.Opacity = 1.0

	img := blankFrame(200, 200)
	DrawOverlayImage(img, ov, frame)

	// Positioned at 25% of the frame, natural size.
	assert.Equal(t, blue, img.RGBAAt(70, 70), "inside the overlay")
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, img.RGBAAt(30, 30), "outside untouched")
}

func TestDrawOverlayImageRespectsOpacityAndVisibility(t *testing.T) {
	frame := media.Frame{NaturalWidth: 200, NaturalHeight: 200}
	blue := color.RGBA{R: 0, G: 0, B: 255, A: 255}

	ov := overlay.New("ref-2", geometry.Point2D{X: 0, Y: 0})
	ov.Bitmap = solidBitmap(40, 40, blue)
	ov.Frame = media.Frame{NaturalWidth: 40, NaturalHeight: 40}
	ov.Opacity = 0.5

	img := blankFrame(200, 200)
	DrawOverlayImage(img, ov, frame)
	// White background through a half-opaque blue tile: red channel lands
	// near the midpoint, blue stays saturated.
	got := img.RGBAAt(20, 20)
	assert.InDelta(t, 127, int(got.R), 10)
	assert.InDelta(t, 255, int(got.B), 5)

	hidden := blankFrame(200, 200)
	ov.Visible = false
	DrawOverlayImage(hidden, ov, frame)
	assert.Zero(t, countNonWhite(hidden))
}

// fakeSource serves fixed frames and fails on request.
type fakeSource struct {
	frame media.Frame
	fail  map[float64]bool
	seeks []float64
}

func (f *fakeSource) Frame() media.Frame { return f.frame }

func (f *fakeSource) SeekFrame(ts float64) (*image.RGBA, error) {
	f.seeks = append(f.seeks, ts)
	if f.fail[ts] {
		return nil, fmt.Errorf("decode failed at %.1f", ts)
	}
	return blankFrame(f.frame.NaturalWidth, f.frame.NaturalHeight), nil
}

func videoAnnotation(ts float64) annotation.Annotation {
	rect := geometry.Rect{X: 10, Y: 10, Width: 40, Height: 40}
	return annotation.Annotation{Rect: &rect, Color: "#eb3b30", Tool: "rect", Timestamp: ts}
}

func TestExtractSkipsFailedTimestamps(t *testing.T) {
	src := &fakeSource{
		frame: media.Frame{NaturalWidth: 100, NaturalHeight: 100},
		fail:  map[float64]bool{5.0: true},
	}
	list := []annotation.Annotation{videoAnnotation(8.0), videoAnnotation(2.0), videoAnnotation(5.0)}

	frames, err := ExtractAnnotatedFrames(context.Background(), src, list, nil)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, 2.0, frames[0].Timestamp)
	assert.Equal(t, 8.0, frames[1].Timestamp)
	assert.Equal(t, []float64{2.0, 5.0, 8.0}, src.seeks, "seeks happen in order")
	assert.Greater(t, countNonWhite(frames[0].Image), 0, "annotations burned in")
}

func TestExtractDedupesTimestamps(t *testing.T) {
	src := &fakeSource{frame: media.Frame{NaturalWidth: 100, NaturalHeight: 100}}
	list := []annotation.Annotation{videoAnnotation(3.0), videoAnnotation(3.0), videoAnnotation(3.0)}

	frames, err := ExtractAnnotatedFrames(context.Background(), src, list, nil)
	require.NoError(t, err)
	assert.Len(t, frames, 1)
	assert.Len(t, src.seeks, 1)
}

func TestExtractFailsOnlyWhenNothingDecodes(t *testing.T) {
	src := &fakeSource{
		frame: media.Frame{NaturalWidth: 100, NaturalHeight: 100},
		fail:  map[float64]bool{1.0: true, 2.0: true},
	}
	list := []annotation.Annotation{videoAnnotation(1.0), videoAnnotation(2.0)}

	frames, err := ExtractAnnotatedFrames(context.Background(), src, list, nil)
	assert.Error(t, err)
	assert.Empty(t, frames)
}

func TestExtractIncludesCommentOnlyTimestamps(t *testing.T) {
	src := &fakeSource{frame: media.Frame{NaturalWidth: 100, NaturalHeight: 100}}

	frames, err := ExtractAnnotatedFrames(context.Background(), src, []annotation.Annotation{
		{Text: "comment without geometry", Color: "#eb3b30", Tool: "rect", Timestamp: 7.5},
	}, nil)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, 7.5, frames[0].Timestamp)
	assert.Greater(t, countNonWhite(frames[0].Image), 0, "default box burned into the frame")
}

func TestExtractEmptyAnnotationList(t *testing.T) {
	src := &fakeSource{frame: media.Frame{NaturalWidth: 100, NaturalHeight: 100}}

	frames, err := ExtractAnnotatedFrames(context.Background(), src, nil, nil)
	assert.NoError(t, err)
	assert.Nil(t, frames)
	assert.Empty(t, src.seeks)
}
