// Package media abstracts the still images and video files that annotations
// are drawn over. A Frame carries the intrinsic pixel size used as the
// media-space coordinate system; it is replaced wholesale when the source
// changes, never mutated.
package media

import (
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"media-markup/pkg/geometry"
)

// Frame is the intrinsic pixel size of the current image or video frame.
type Frame struct {
	NaturalWidth  int `json:"natural_width"`
	NaturalHeight int `json:"natural_height"`
}

// Size returns the frame dimensions as a geometry.Size.
func (f Frame) Size() geometry.Size {
	return geometry.NewSize(float64(f.NaturalWidth), float64(f.NaturalHeight))
}

// IsZero reports whether the frame has no usable dimensions.
func (f Frame) IsZero() bool {
	return f.NaturalWidth <= 0 || f.NaturalHeight <= 0
}

// FrameOf returns the Frame for a decoded image.
func FrameOf(img image.Image) Frame {
	b := img.Bounds()
	return Frame{NaturalWidth: b.Dx(), NaturalHeight: b.Dy()}
}

// LoadImage decodes a still image from disk and returns it together with its
// natural frame.
func LoadImage(path string) (*image.RGBA, Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Frame{}, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, Frame{}, fmt.Errorf("decode image %s: %w", path, err)
	}
	rgba := ToRGBA(img)
	return rgba, FrameOf(rgba), nil
}

// ToRGBA converts any image to *image.RGBA with a zero-origin bounds,
// copying only when the input is not already in that form.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}
