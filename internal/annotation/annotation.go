// Package annotation defines annotation records, the tool variant they are
// created with, and the state machines that turn pointer gestures into
// committed records and edits.
package annotation

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"media-markup/pkg/geometry"
)

// Tool identifies the active annotation tool. It is the single tagged
// variant dispatched on by sizing policy, marker rendering, and export
// rasterization; adding a tool means touching one table per concern.
type Tool int

const (
	ToolCursor Tool = iota
	ToolRect
	ToolCircle
	ToolArrow
	ToolText
	ToolPen
	ToolSearch
)

var toolNames = map[Tool]string{
	ToolCursor: "cursor",
	ToolRect:   "rect",
	ToolCircle: "circle",
	ToolArrow:  "arrow",
	ToolText:   "text",
	ToolPen:    "pen",
	ToolSearch: "search",
}

// String returns the wire name of the tool.
func (t Tool) String() string {
	if name, ok := toolNames[t]; ok {
		return name
	}
	return "unknown"
}

// ParseTool maps a wire name back to a Tool.
func ParseTool(name string) (Tool, error) {
	for t, n := range toolNames {
		if n == name {
			return t, nil
		}
	}
	return ToolCursor, fmt.Errorf("unknown tool %q", name)
}

// SizingPolicy determines how a drag gesture becomes a rect.
type SizingPolicy int

const (
	// SizeNormalized swaps the anchor as needed so width/height never go
	// negative, no matter the drag direction.
	SizeNormalized SizingPolicy = iota
	// SizeSigned keeps raw deltas from the anchor; direction matters.
	SizeSigned
)

var sizingPolicies = map[Tool]SizingPolicy{
	ToolRect:   SizeNormalized,
	ToolCircle: SizeNormalized,
	ToolText:   SizeNormalized,
	ToolSearch: SizeNormalized,
	ToolArrow:  SizeSigned,
}

// Sizing returns the sizing policy for the tool.
func (t Tool) Sizing() SizingPolicy {
	return sizingPolicies[t]
}

// CreatesMarker reports whether the tool drives the marker-creation state
// machine. Cursor manipulates existing content and pen draws ink strokes;
// neither produces an annotation record from a single gesture.
func (t Tool) CreatesMarker() bool {
	switch t {
	case ToolRect, ToolCircle, ToolArrow, ToolText, ToolSearch:
		return true
	}
	return false
}

// Annotation is a committed annotation record. Rect is always media-space
// once committed; only in-progress rects inside the creation machine are
// display-space.
type Annotation struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Rect      *geometry.Rect `json:"rect,omitempty"`
	Text      string         `json:"text"`
	Color     string         `json:"color"`
	Tool      string         `json:"tool"`
	Timestamp float64        `json:"timestamp,omitempty"`
	Solved    bool           `json:"solved,omitempty"`

	// Playable segment, present only for video annotations.
	StartAt *float64 `json:"start_at,omitempty"`
	EndAt   *float64 `json:"end_at,omitempty"`

	// Either a freshly uploaded file's URL or the path of a drag-referenced
	// existing image.
	AttachmentImageURL string `json:"attachment_image_url,omitempty"`
}

// Store is the external persistence collaborator. The core never deletes
// annotations; deletion belongs to the data layer behind this interface.
type Store interface {
	CreateAnnotation(ctx context.Context, record Annotation) (Annotation, error)
	UpdateAnnotationRect(ctx context.Context, id string, rect geometry.Rect) error
	SaveInkDocument(ctx context.Context, scopeID string, doc []byte) error
	ClearInkDocument(ctx context.Context, scopeID string) error
}

// MemoryStore is an in-process Store used by the demo app and tests.
type MemoryStore struct {
	mu          sync.Mutex
	annotations map[string]Annotation
	inkDocs     map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		annotations: make(map[string]Annotation),
		inkDocs:     make(map[string][]byte),
	}
}

// CreateAnnotation assigns an id and stores the record.
func (s *MemoryStore) CreateAnnotation(_ context.Context, record Annotation) (Annotation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	s.annotations[record.ID] = record
	return record, nil
}

// UpdateAnnotationRect replaces the rect of an existing record.
func (s *MemoryStore) UpdateAnnotationRect(_ context.Context, id string, rect geometry.Rect) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.annotations[id]
	if !ok {
		return fmt.Errorf("annotation %s not found", id)
	}
	r := rect
	record.Rect = &r
	s.annotations[id] = record
	return nil
}

// SaveInkDocument stores a serialized ink document under its scope.
func (s *MemoryStore) SaveInkDocument(_ context.Context, scopeID string, doc []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inkDocs[scopeID] = append([]byte(nil), doc...)
	return nil
}

// ClearInkDocument removes the ink document for a scope.
func (s *MemoryStore) ClearInkDocument(_ context.Context, scopeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inkDocs, scopeID)
	return nil
}

// Annotation returns a stored record by id.
func (s *MemoryStore) Annotation(id string) (Annotation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.annotations[id]
	return record, ok
}

// Annotations returns all stored records.
func (s *MemoryStore) Annotations() []Annotation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Annotation, 0, len(s.annotations))
	for _, record := range s.annotations {
		out = append(out, record)
	}
	return out
}

// InkDocument returns the stored ink document for a scope.
func (s *MemoryStore) InkDocument(scopeID string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.inkDocs[scopeID]
	return doc, ok
}
