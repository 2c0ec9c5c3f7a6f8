package export

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sort"

	"media-markup/internal/annotation"
	"media-markup/internal/media"
)

// AnnotatedFrame is one extracted video frame with its annotations burned
// in.
type AnnotatedFrame struct {
	Timestamp float64
	Image     *image.RGBA
}

// FrameSource yields decoded frames at arbitrary timestamps. Implemented
// by media.VideoSource; tests substitute a fake.
type FrameSource interface {
	Frame() media.Frame
	SeekFrame(timestamp float64) (*image.RGBA, error)
}

// ExtractAnnotatedFrames pulls one frame per distinct annotated timestamp
// and burns the annotations of that timestamp into it. A failed seek skips
// only its own timestamp; the export succeeds with whatever frames could
// be decoded, and fails only when none could.
func ExtractAnnotatedFrames(ctx context.Context, src FrameSource, list []annotation.Annotation, log *slog.Logger) ([]AnnotatedFrame, error) {
	if log == nil {
		log = slog.Default()
	}

	// Records without geometry still get their timestamp's frame; the
	// rasterizer synthesizes a default box for them.
	byTimestamp := make(map[float64][]annotation.Annotation)
	for _, a := range list {
		byTimestamp[a.Timestamp] = append(byTimestamp[a.Timestamp], a)
	}
	if len(byTimestamp) == 0 {
		return nil, nil
	}

	timestamps := make([]float64, 0, len(byTimestamp))
	for ts := range byTimestamp {
		timestamps = append(timestamps, ts)
	}
	sort.Float64s(timestamps)

	frame := src.Frame()
	out := make([]AnnotatedFrame, 0, len(timestamps))
	var lastErr error

	for _, ts := range timestamps {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		img, err := src.SeekFrame(ts)
		if err != nil {
			log.Warn("frame extraction failed", "timestamp", ts, "err", err)
			lastErr = err
			continue
		}

		DrawAnnotations(img, byTimestamp[ts], frame)
		out = append(out, AnnotatedFrame{Timestamp: ts, Image: img})
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("extract annotated frames: all %d seeks failed: %w", len(timestamps), lastErr)
	}
	return out, nil
}
