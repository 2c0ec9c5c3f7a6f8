package annotation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"media-markup/internal/transform"
	"media-markup/pkg/geometry"
)

// Creation state machine states. The machine is driven from the UI event
// loop; transitions are guarded by state, not locks.
type CreateState int

const (
	CreateIdle CreateState = iota
	CreateDrawing
	CreateSizing
	CreateAwaitingInput
)

const (
	// DefaultSegmentLength is the fixed playable segment stamped onto video
	// annotations at commit. Not user-adjustable at creation time.
	DefaultSegmentLength = 1 * time.Second

	// searchMinSizePx is the minimum selection (display px) that fires a
	// region search instead of being discarded as an accidental click.
	searchMinSizePx = 10.0

	// Default text box size (display px) seeded by a single click of the
	// text tool.
	defaultTextBoxWidth  = 160.0
	defaultTextBoxHeight = 48.0
)

// ErrNotAwaitingInput is returned by Submit outside the AwaitingInput state.
var ErrNotAwaitingInput = errors.New("annotation: no creation awaiting input")

// Playback reports the current media playback position and duration in
// seconds. ok is false for still images.
type Playback func() (current, duration float64, ok bool)

// Creator turns raw pointer gestures into committed annotation records.
// All pointer coordinates entering the machine are display-space; the rect
// is converted to media space exactly once, at commit.
type Creator struct {
	store    Store
	playback Playback
	log      *slog.Logger

	state CreateState
	tool  Tool
	color string

	anchor  geometry.Point2D
	current geometry.Rect

	onCommit func(Annotation)
	onSearch func(region geometry.Rect)
	onChange func()
}

// NewCreator creates a creation state machine persisting through store.
func NewCreator(store Store, playback Playback, log *slog.Logger) *Creator {
	if log == nil {
		log = slog.Default()
	}
	return &Creator{
		store:    store,
		playback: playback,
		log:      log,
		tool:     ToolCursor,
		color:    "#eb3b30",
	}
}

// OnCommit registers the callback invoked with every committed record.
func (c *Creator) OnCommit(fn func(Annotation)) { c.onCommit = fn }

// OnSearch registers the side-channel fired by the search tool with a
// media-space crop region. Search selections are not persisted.
func (c *Creator) OnSearch(fn func(region geometry.Rect)) { c.onSearch = fn }

// OnChange registers a callback fired whenever the in-progress rect changes,
// so the compositor can redraw the preview.
func (c *Creator) OnChange(fn func()) { c.onChange = fn }

// SetTool selects the active tool. Changing tools cancels any creation in
// flight.
func (c *Creator) SetTool(tool Tool) {
	if c.state != CreateIdle {
		c.Cancel()
	}
	c.tool = tool
}

// Tool returns the active tool.
func (c *Creator) Tool() Tool { return c.tool }

// SetColor selects the color applied to subsequently committed annotations.
func (c *Creator) SetColor(color string) { c.color = color }

// Color returns the active color.
func (c *Creator) Color() string { return c.color }

// State returns the current machine state.
func (c *Creator) State() CreateState { return c.state }

// CurrentRect returns the in-progress display-space rect for preview
// rendering, and whether one exists.
func (c *Creator) CurrentRect() (geometry.Rect, bool) {
	if c.state == CreateIdle {
		return geometry.Rect{}, false
	}
	return c.current, true
}

// PointerDown starts a creation gesture at a display-space point. Returns
// true when the gesture was accepted. The text tool skips sizing entirely:
// a single click seeds a default-sized box and opens the input immediately.
func (c *Creator) PointerDown(p geometry.Point2D, m transform.Metrics) bool {
	if c.state != CreateIdle || !c.tool.CreatesMarker() || !m.Valid() {
		return false
	}
	c.anchor = p
	if c.tool == ToolText {
		c.current = geometry.NewRect(p.X, p.Y, defaultTextBoxWidth, defaultTextBoxHeight)
		c.state = CreateAwaitingInput
	} else {
		c.current = geometry.NewRect(p.X, p.Y, 0, 0)
		c.state = CreateDrawing
	}
	c.notify()
	return true
}

// PointerMove resizes the in-progress rect from the anchor to the live
// point while the button is held, per the tool's sizing policy.
func (c *Creator) PointerMove(p geometry.Point2D) {
	if c.state != CreateDrawing && c.state != CreateSizing {
		return
	}
	c.state = CreateSizing
	switch c.tool.Sizing() {
	case SizeSigned:
		c.current = geometry.RectFromDrag(c.anchor, p)
	default:
		c.current = geometry.RectFromCorners(c.anchor, p)
	}
	c.notify()
}

// PointerUp finishes the sizing phase. Shape tools move to AwaitingInput.
// The search tool instead fires the search side channel (when the selection
// exceeds the minimum size) and returns straight to Idle.
func (c *Creator) PointerUp(m transform.Metrics) {
	if c.state != CreateDrawing && c.state != CreateSizing {
		return
	}
	if c.tool == ToolSearch {
		region := c.current.Canon()
		if region.Width >= searchMinSizePx && region.Height >= searchMinSizePx && c.onSearch != nil {
			c.onSearch(m.RectToMedia(region))
		}
		c.reset()
		c.notify()
		return
	}
	c.state = CreateAwaitingInput
	c.notify()
}

// Submit commits the creation with the user's text and optional attachment.
// The rect is converted from display space to media space through the
// metrics in effect at commit, the record is handed to the persistence
// collaborator, and transient state is reset. Tool and color survive.
func (c *Creator) Submit(ctx context.Context, m transform.Metrics, text, attachmentURL string) (Annotation, error) {
	if c.state != CreateAwaitingInput {
		return Annotation{}, ErrNotAwaitingInput
	}
	if !m.Valid() {
		return Annotation{}, transform.ErrDegenerate
	}

	rect := m.RectToMedia(c.current)
	record := Annotation{
		Type:               c.tool.String(),
		Tool:               c.tool.String(),
		Rect:               &rect,
		Text:               text,
		Color:              c.color,
		AttachmentImageURL: attachmentURL,
	}

	if c.playback != nil {
		if current, duration, ok := c.playback(); ok {
			record.Timestamp = current
			start := current
			end := current + DefaultSegmentLength.Seconds()
			if duration > 0 && end > duration {
				end = duration
			}
			record.StartAt = &start
			record.EndAt = &end
		}
	}

	committed, err := c.store.CreateAnnotation(ctx, record)
	if err != nil {
		// The gesture stays in AwaitingInput so the user can retry or cancel
		// without losing the drawn rect.
		return Annotation{}, fmt.Errorf("create annotation: %w", err)
	}

	c.log.Debug("annotation committed",
		"id", committed.ID, "tool", committed.Tool, "rect", rect)

	c.reset()
	c.notify()
	if c.onCommit != nil {
		c.onCommit(committed)
	}
	return committed, nil
}

// Cancel abandons the creation in flight and returns to Idle.
func (c *Creator) Cancel() {
	if c.state == CreateIdle {
		return
	}
	c.reset()
	c.notify()
}

// reset clears tool-local transient state. The active tool and color are
// deliberately left alone.
func (c *Creator) reset() {
	c.state = CreateIdle
	c.anchor = geometry.Point2D{}
	c.current = geometry.Rect{}
}

func (c *Creator) notify() {
	if c.onChange != nil {
		c.onChange()
	}
}
