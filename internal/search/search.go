// Package search implements the region-search collaborator fired by the
// search tool. A crop of the media is recognized with Tesseract and the
// extracted text is handed to a pluggable lookup backend; the creation state
// machine only ever sees the Searcher interface.
package search

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"gocv.io/x/gocv"

	"media-markup/pkg/geometry"
)

// Result is one similarity hit from the lookup backend.
type Result struct {
	Ref   string  `json:"ref"`
	Title string  `json:"title"`
	Score float64 `json:"score"`
}

// Searcher accepts a media-space crop region against the full-resolution
// media bitmap and returns similarity results.
type Searcher interface {
	SearchRegion(ctx context.Context, img *image.RGBA, region geometry.Rect) ([]Result, error)
}

// LookupFunc resolves an extracted text query to results.
type LookupFunc func(ctx context.Context, query string) ([]Result, error)

// OCRSearcher recognizes text in the crop and queries a lookup backend.
type OCRSearcher struct {
	client *gosseract.Client
	lookup LookupFunc
	log    *slog.Logger
}

// NewOCRSearcher creates a searcher backed by a Tesseract client.
func NewOCRSearcher(lookup LookupFunc, log *slog.Logger) (*OCRSearcher, error) {
	if log == nil {
		log = slog.Default()
	}
	client := gosseract.NewClient()
	if err := client.SetLanguage("eng"); err != nil {
		client.Close()
		return nil, fmt.Errorf("set OCR language: %w", err)
	}
	return &OCRSearcher{client: client, lookup: lookup, log: log}, nil
}

// Close releases the Tesseract client.
func (s *OCRSearcher) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// SearchRegion crops the region out of the media, runs OCR on it, and looks
// up the recognized text. An empty recognition yields an empty result list,
// not an error.
func (s *OCRSearcher) SearchRegion(ctx context.Context, img *image.RGBA, region geometry.Rect) ([]Result, error) {
	if img == nil {
		return nil, fmt.Errorf("search: no media bitmap")
	}
	b := img.Bounds()
	clamped := region.Clamp(float64(b.Dx()), float64(b.Dy()))
	if clamped.IsDegenerate() {
		return nil, fmt.Errorf("search: region %+v outside media bounds", region)
	}

	mat, err := gocv.ImageToMatRGBA(img)
	if err != nil {
		return nil, fmt.Errorf("search: convert media: %w", err)
	}
	defer mat.Close()

	crop := mat.Region(image.Rect(
		int(clamped.X), int(clamped.Y),
		int(clamped.X+clamped.Width), int(clamped.Y+clamped.Height),
	))
	defer crop.Close()

	buf, err := gocv.IMEncode(gocv.PNGFileExt, crop)
	if err != nil {
		return nil, fmt.Errorf("search: encode crop: %w", err)
	}
	defer buf.Close()

	if err := s.client.SetImageFromBytes(buf.GetBytes()); err != nil {
		return nil, fmt.Errorf("search: load crop into OCR: %w", err)
	}
	text, err := s.client.Text()
	if err != nil {
		return nil, fmt.Errorf("search: recognize crop: %w", err)
	}

	query := strings.Join(strings.Fields(text), " ")
	if query == "" {
		s.log.Debug("search region produced no text", "region", clamped)
		return nil, nil
	}

	results, err := s.lookup(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search lookup %q: %w", query, err)
	}
	return results, nil
}
