package annotation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"media-markup/pkg/geometry"
)

// SaveStatus tracks the asynchronous save of an edit session.
type SaveStatus int

const (
	SaveIdle SaveStatus = iota
	SaveSaving
	SaveSuccess
	SaveError
)

// SuccessGrace is how long the edited rect stays on screen after a
// successful save, so the view does not snap back while the authoritative
// record propagates through the data layer.
const SuccessGrace = 1 * time.Second

var (
	// ErrEditInProgress is returned when a second edit is started before the
	// first resolves.
	ErrEditInProgress = errors.New("annotation: another edit is in progress")
	// ErrNoEdit is returned for operations without an active edit session.
	ErrNoEdit = errors.New("annotation: no edit in progress")
	// ErrNoRect is returned when editing an annotation without geometry.
	ErrNoRect = errors.New("annotation: annotation has no rect to edit")
)

// EditSession is the per-annotation working state while editing.
type EditSession struct {
	AnnotationID string
	WorkingRect  geometry.Rect
	IsDirty      bool
	Status       SaveStatus
}

// linger keeps a saved rect visible for the grace period.
type linger struct {
	id    string
	rect  geometry.Rect
	until time.Time
}

// Editor is the drag/resize-to-edit lifecycle for existing annotations.
// At most one annotation is in the Editing state at a time.
type Editor struct {
	store Store
	log   *slog.Logger

	session *EditSession
	linger  *linger

	now       func() time.Time
	afterFunc func(d time.Duration, fn func())
	onChange  func()
}

// NewEditor creates an edit lifecycle saving through store.
func NewEditor(store Store, log *slog.Logger) *Editor {
	if log == nil {
		log = slog.Default()
	}
	return &Editor{
		store:     store,
		log:       log,
		now:       time.Now,
		afterFunc: func(d time.Duration, fn func()) { time.AfterFunc(d, fn) },
	}
}

// OnChange registers a redraw callback fired on any session change.
func (e *Editor) OnChange(fn func()) { e.onChange = fn }

// Session returns the active edit session, or nil.
func (e *Editor) Session() *EditSession { return e.session }

// EditingID returns the id of the annotation being edited, or "".
func (e *Editor) EditingID() string {
	if e.session == nil {
		return ""
	}
	return e.session.AnnotationID
}

// Start begins editing an existing annotation, seeding the working rect from
// its stored geometry. A prior session must finish or cancel first.
func (e *Editor) Start(a Annotation) error {
	if e.session != nil {
		return ErrEditInProgress
	}
	if a.Rect == nil {
		return ErrNoRect
	}
	e.session = &EditSession{
		AnnotationID: a.ID,
		WorkingRect:  *a.Rect,
	}
	e.notify()
	return nil
}

// MoveBy shifts the working rect by a media-space delta and marks it dirty.
// The origin annotation is untouched until save.
func (e *Editor) MoveBy(dx, dy float64) {
	if e.session == nil || e.session.Status == SaveSaving {
		return
	}
	e.session.WorkingRect.X += dx
	e.session.WorkingRect.Y += dy
	e.session.IsDirty = true
	e.notify()
}

// ResizeBy grows the working rect by a media-space delta and marks it dirty.
func (e *Editor) ResizeBy(dw, dh float64) {
	if e.session == nil || e.session.Status == SaveSaving {
		return
	}
	e.session.WorkingRect.Width += dw
	e.session.WorkingRect.Height += dh
	e.session.IsDirty = true
	e.notify()
}

// SetWorkingRect replaces the working rect wholesale and marks it dirty.
func (e *Editor) SetWorkingRect(r geometry.Rect) {
	if e.session == nil || e.session.Status == SaveSaving {
		return
	}
	e.session.WorkingRect = r
	e.session.IsDirty = true
	e.notify()
}

// Finish saves the working rect through the persistence collaborator. On
// success the session ends immediately but the edited rect lingers on screen
// for SuccessGrace. On error the session, working rect, and dirty flag are
// all preserved so the user can retry or cancel without losing the edit.
func (e *Editor) Finish(ctx context.Context) error {
	if e.session == nil {
		return ErrNoEdit
	}
	if !e.session.IsDirty {
		e.session = nil
		e.notify()
		return nil
	}

	e.session.Status = SaveSaving
	e.notify()

	if err := e.store.UpdateAnnotationRect(ctx, e.session.AnnotationID, e.session.WorkingRect); err != nil {
		e.session.Status = SaveError
		e.notify()
		return fmt.Errorf("save annotation %s: %w", e.session.AnnotationID, err)
	}

	e.session.Status = SaveSuccess
	e.linger = &linger{
		id:    e.session.AnnotationID,
		rect:  e.session.WorkingRect,
		until: e.now().Add(SuccessGrace),
	}
	e.log.Debug("annotation rect saved", "id", e.session.AnnotationID)
	e.session = nil
	e.notify()

	e.afterFunc(SuccessGrace, func() {
		e.linger = nil
		e.notify()
	})
	return nil
}

// Cancel discards the working rect unconditionally, dirty or not, and
// returns to viewing. No save call is made.
func (e *Editor) Cancel() {
	if e.session == nil {
		return
	}
	e.session = nil
	e.notify()
}

// DisplayRect returns the rect the compositor should render for an
// annotation: the live working rect while editing, the lingering rect
// during the post-save grace window, or the stored rect.
func (e *Editor) DisplayRect(a Annotation) (geometry.Rect, bool) {
	id := a.ID
	if e.session != nil && e.session.AnnotationID == id {
		return e.session.WorkingRect, true
	}
	if e.linger != nil && e.linger.id == id && e.now().Before(e.linger.until) {
		return e.linger.rect, true
	}
	if a.Rect != nil {
		return *a.Rect, true
	}
	return geometry.Rect{}, false
}

func (e *Editor) notify() {
	if e.onChange != nil {
		e.onChange()
	}
}
