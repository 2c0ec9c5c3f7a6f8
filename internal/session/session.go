// Package session owns the shared mutable state of one annotation session:
// the loaded media frame, the viewport, the active tool and color, and the
// host player's playback position. All mutation goes through named setters
// that recompute derived metrics whole and emit events; nothing outside this
// package patches the state directly. Sessions are plain injectable values,
// so several can run in isolation.
package session

import (
	"log/slog"
	"sync"

	"media-markup/internal/annotation"
	"media-markup/internal/finding"
	"media-markup/internal/media"
	"media-markup/internal/overlay"
	"media-markup/internal/transform"
	"media-markup/pkg/geometry"
)

// zoomStep is the multiplicative step used by keyboard/wheel zoom.
const zoomStep = 1.25

// EventType identifies session events.
type EventType int

const (
	EventMediaChanged EventType = iota
	EventMetricsChanged
	EventToolChanged
	EventColorChanged
	EventAnnotationsChanged
	EventFindingsChanged
	EventPlaybackChanged
)

// EventListener is called when an event occurs.
type EventListener func(data interface{})

// MetricsUpdate is the payload of EventMetricsChanged, for collaborators
// that must align their own overlays with the media.
type MetricsUpdate struct {
	Scale        float64 `json:"scale"`
	PaddingX     float64 `json:"paddingX"`
	PaddingY     float64 `json:"paddingY"`
	ScaledWidth  float64 `json:"scaledWidth"`
	ScaledHeight float64 `json:"scaledHeight"`
}

// Session is the per-annotation-session state store.
type Session struct {
	mu sync.RWMutex

	frame   media.Frame
	isVideo bool

	container geometry.Size
	zoom      float64
	metrics   transform.Metrics

	tool  annotation.Tool
	color string

	playCurrent  float64
	playDuration float64

	annotations []annotation.Annotation
	findings    []finding.Record

	// Overlays manage their own change notification.
	Overlays *overlay.Set

	listeners map[EventType][]EventListener
	log       *slog.Logger
}

// New creates a session with no media loaded.
func New(log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		zoom:      1,
		tool:      annotation.ToolCursor,
		color:     "#eb3b30",
		Overlays:  overlay.NewSet(),
		listeners: make(map[EventType][]EventListener),
		log:       log,
	}
}

// On registers an event listener for the specified event type.
func (s *Session) On(event EventType, listener EventListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[event] = append(s.listeners[event], listener)
}

// Emit triggers all listeners for the specified event type.
func (s *Session) Emit(event EventType, data interface{}) {
	s.mu.RLock()
	listeners := s.listeners[event]
	s.mu.RUnlock()

	for _, listener := range listeners {
		listener(data)
	}
}

// SetMedia replaces the media frame wholesale. The viewport recenters at
// the current zoom and annotations/findings from the previous media are
// the caller's responsibility to swap.
func (s *Session) SetMedia(frame media.Frame, isVideo bool) {
	s.mu.Lock()
	s.frame = frame
	s.isVideo = isVideo
	s.recomputeLocked(true)
	s.mu.Unlock()

	s.Emit(EventMediaChanged, frame)
	s.emitMetrics()
}

// Frame returns the current media frame.
func (s *Session) Frame() media.Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frame
}

// IsVideo reports whether the loaded media is a video.
func (s *Session) IsVideo() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isVideo
}

// SetContainerSize updates the viewing container dimensions, recentering
// the media under the new layout.
func (s *Session) SetContainerSize(size geometry.Size) {
	s.mu.Lock()
	if size == s.container {
		s.mu.Unlock()
		return
	}
	s.container = size
	s.recomputeLocked(true)
	s.mu.Unlock()

	s.emitMetrics()
}

// SetZoom changes the zoom factor, anchored at the container center.
func (s *Session) SetZoom(zoom float64) {
	s.mu.Lock()
	s.zoom = transform.ClampZoom(zoom)
	s.recomputeLocked(false)
	s.mu.Unlock()

	s.emitMetrics()
}

// Zoom returns the current zoom factor.
func (s *Session) Zoom() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.zoom
}

// ZoomIn increases the zoom by one step.
func (s *Session) ZoomIn() { s.SetZoom(s.Zoom() * zoomStep) }

// ZoomOut decreases the zoom by one step.
func (s *Session) ZoomOut() { s.SetZoom(s.Zoom() / zoomStep) }

// Pan shifts the view by a display-space delta, clamped so the media can
// never be panned fully out of the container.
func (s *Session) Pan(dx, dy float64) {
	s.mu.Lock()
	if !s.metrics.Valid() {
		s.mu.Unlock()
		return
	}
	s.metrics = s.metrics.Pan(dx, dy)
	s.mu.Unlock()

	s.emitMetrics()
}

// Metrics returns the current display metrics.
func (s *Session) Metrics() transform.Metrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metrics
}

// SetTool selects the active tool.
func (s *Session) SetTool(tool annotation.Tool) {
	s.mu.Lock()
	if s.tool == tool {
		s.mu.Unlock()
		return
	}
	s.tool = tool
	s.mu.Unlock()
	s.Emit(EventToolChanged, tool)
}

// Tool returns the active tool.
func (s *Session) Tool() annotation.Tool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tool
}

// SetColor selects the active annotation color.
func (s *Session) SetColor(color string) {
	s.mu.Lock()
	s.color = color
	s.mu.Unlock()
	s.Emit(EventColorChanged, color)
}

// Color returns the active annotation color.
func (s *Session) Color() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.color
}

// SetPlayback records the host player's position and duration (seconds).
func (s *Session) SetPlayback(current, duration float64) {
	s.mu.Lock()
	s.playCurrent = current
	s.playDuration = duration
	s.mu.Unlock()
	s.Emit(EventPlaybackChanged, current)
}

// Playback returns the playback position; ok is false for still images.
func (s *Session) Playback() (current, duration float64, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.playCurrent, s.playDuration, s.isVideo
}

// SetAnnotations replaces the annotation list (e.g. after a data-layer
// refresh).
func (s *Session) SetAnnotations(list []annotation.Annotation) {
	s.mu.Lock()
	s.annotations = list
	s.mu.Unlock()
	s.Emit(EventAnnotationsChanged, nil)
}

// Upsert inserts or replaces one annotation by id.
func (s *Session) Upsert(a annotation.Annotation) {
	s.mu.Lock()
	replaced := false
	for i := range s.annotations {
		if s.annotations[i].ID == a.ID {
			s.annotations[i] = a
			replaced = true
			break
		}
	}
	if !replaced {
		s.annotations = append(s.annotations, a)
	}
	s.mu.Unlock()
	s.Emit(EventAnnotationsChanged, nil)
}

// Annotations returns the current annotation list.
func (s *Session) Annotations() []annotation.Annotation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]annotation.Annotation, len(s.annotations))
	copy(out, s.annotations)
	return out
}

// SetFindings replaces the ingested AI/expert findings.
func (s *Session) SetFindings(records []finding.Record) {
	s.mu.Lock()
	s.findings = records
	s.mu.Unlock()
	s.Emit(EventFindingsChanged, nil)
}

// Findings returns the current findings.
func (s *Session) Findings() []finding.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]finding.Record, len(s.findings))
	copy(out, s.findings)
	return out
}

// recomputeLocked rebuilds metrics from the stored inputs. centered forces
// a recenter; otherwise the zoom change is anchored on the container center
// of the previous metrics.
func (s *Session) recomputeLocked(centered bool) {
	if s.container.IsZero() || s.frame.IsZero() {
		s.metrics = transform.Metrics{}
		return
	}
	if centered || !s.metrics.Valid() {
		m, err := transform.Compute(s.container, s.frame.Size(), s.zoom)
		if err != nil {
			s.log.Warn("viewport recompute failed", "err", err)
			s.metrics = transform.Metrics{}
			return
		}
		s.metrics = m
		return
	}
	m, err := transform.ZoomAroundCenter(s.metrics, s.frame.Size(), s.zoom)
	if err != nil {
		s.log.Warn("anchored zoom failed", "err", err)
		return
	}
	s.metrics = m
}

func (s *Session) emitMetrics() {
	m := s.Metrics()
	if !m.Valid() {
		return
	}
	s.Emit(EventMetricsChanged, MetricsUpdate{
		Scale:        m.Scale,
		PaddingX:     m.PaddingX,
		PaddingY:     m.PaddingY,
		ScaledWidth:  m.DisplayWidth,
		ScaledHeight: m.DisplayHeight,
	})
}
