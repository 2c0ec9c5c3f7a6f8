package overlay

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"media-markup/internal/media"
)

// LoadTimeout bounds how long a reference image may take to arrive before
// the overlay falls back to an error placeholder.
const LoadTimeout = 15 * time.Second

// LoadResult is the outcome of an asynchronous overlay load: either a
// decoded bitmap or an error the compositor turns into a placeholder.
type LoadResult struct {
	Bitmap *image.RGBA
	Frame  media.Frame
	Err    error
}

// LoadHandle cancels a load in flight. After Cancel the completion callback
// is guaranteed not to run, so a torn-down surface is never called back.
type LoadHandle struct {
	cancel context.CancelFunc

	mu       sync.Mutex
	disposed bool
}

// Cancel stops the load and suppresses its callback.
func (h *LoadHandle) Cancel() {
	h.mu.Lock()
	h.disposed = true
	h.mu.Unlock()
	h.cancel()
}

// Load runs fetch on its own goroutine with the load timeout applied and
// delivers exactly one LoadResult to done, unless the handle is cancelled
// first. fetch must honor context cancellation.
func Load(ctx context.Context, fetch func(ctx context.Context) (image.Image, error), done func(LoadResult)) *LoadHandle {
	ctx, cancel := context.WithTimeout(ctx, LoadTimeout)
	handle := &LoadHandle{cancel: cancel}

	go func() {
		defer cancel()
		img, err := fetch(ctx)

		var result LoadResult
		if err != nil {
			result.Err = err
		} else {
			result.Bitmap = media.ToRGBA(img)
			result.Frame = media.FrameOf(img)
		}

		handle.mu.Lock()
		disposed := handle.disposed
		handle.mu.Unlock()
		if disposed {
			return
		}
		done(result)
	}()
	return handle
}

// FetchURL returns a fetch function that downloads and decodes an image
// over HTTP, for use with Load.
func FetchURL(client *http.Client, url string) func(ctx context.Context) (image.Image, error) {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context) (image.Image, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", url, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch %s: status %s", url, resp.Status)
		}
		img, _, err := image.Decode(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", url, err)
		}
		return img, nil
	}
}

// StartLoad wires Load into an overlay Image: on completion the overlay's
// bitmap or load error is filled in and changed is invoked for a redraw.
func StartLoad(ctx context.Context, o *Image, fetch func(ctx context.Context) (image.Image, error), changed func(), log *slog.Logger) *LoadHandle {
	if log == nil {
		log = slog.Default()
	}
	return Load(ctx, fetch, func(result LoadResult) {
		if result.Err != nil {
			log.Warn("overlay load failed", "id", o.ID, "source", o.SourceRef, "err", result.Err)
			o.LoadErr = result.Err
		} else {
			o.Bitmap = result.Bitmap
			o.Frame = result.Frame
			o.LoadErr = nil
		}
		if changed != nil {
			changed()
		}
	})
}
