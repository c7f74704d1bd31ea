// Package anchor finds where each anchored note sits in the rendered
// transcript.
//
// Geometry comes from a Measurer supplied for each pass, so the registry
// never touches a DOM itself: a browser client posts its measurements, the
// export path measures inside headless Chrome, and FlowMeasurer estimates
// positions from the rendered markup.
package anchor

import (
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/notes"
)

const (
	// FallbackStep is how far below the previous anchor an unresolved anchor
	// is placed.
	FallbackStep = 24.0
	// FallbackTailOffset is the distance from the bottom of the container of
	// the default anchor used when the first note cannot be resolved.
	FallbackTailOffset = 48.0
)

// Rect is an axis-aligned box in pixels.
type Rect struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Bottom returns the lower edge.
func (r Rect) Bottom() float64 { return r.Top + r.Height }

// Right returns the right edge.
func (r Rect) Right() float64 { return r.Left + r.Width }

// RelativeTo translates r into the coordinate space whose origin is the
// top-left corner of origin.
func (r Rect) RelativeTo(origin Rect) Rect {
	return Rect{
		Top:    r.Top - origin.Top,
		Left:   r.Left - origin.Left,
		Width:  r.Width,
		Height: r.Height,
	}
}

// Measurer reports the geometry of one rendered transcript. Container is the
// layout container shared by the transcript and the sidebar; Measure returns
// the box of the first element whose data-comment-id equals commentID. Both
// are in the same coordinate space.
type Measurer interface {
	Container() Rect
	Measure(commentID string) (Rect, bool)
}

// Point is an anchor that needs a sidebar card.
type Point struct {
	NoteID    string `json:"noteId"`
	CommentID string `json:"commentId"`
	Rect      Rect   `json:"rect"`
	Fallback  bool   `json:"fallback,omitempty"`
	Pending   bool   `json:"pending,omitempty"`
}

// Pending identifies a comment that is being composed and has no note yet.
type Pending struct {
	NoteID    string `json:"noteId"`
	CommentID string `json:"commentId"`
}

// Resolve returns one point per anchored root note, in creation order,
// followed by one for the pending comment if there is one. Rects are
// relative to the measurer's container. Notes whose highlight cannot be
// measured get a synthetic rect FallbackStep below the previous point, or
// near the bottom right of the container when they come first, so every
// note keeps a place in the sidebar.
func Resolve(threads []notes.Thread, pending *Pending, m Measurer) []Point {
	if m == nil {
		m = Static{}
	}
	container := m.Container()

	roots := make([]notes.Note, 0, len(threads))
	for _, thread := range threads {
		if thread.Root.IsReply() || !thread.Root.IsAnchored() {
			continue
		}
		roots = append(roots, thread.Root)
	}
	roots = notes.SortByCreation(roots)

	points := make([]Point, 0, len(roots)+1)
	place := func(noteID, key string, isPending bool) {
		point := Point{NoteID: noteID, CommentID: key, Pending: isPending}
		if rect, ok := m.Measure(key); ok {
			point.Rect = rect.RelativeTo(container)
		} else {
			point.Fallback = true
			point.Rect = fallbackRect(points, container)
		}
		points = append(points, point)
	}

	for _, root := range roots {
		place(root.ID, root.AnchorKey(), false)
	}
	if pending != nil && pending.CommentID != "" {
		place(pending.NoteID, pending.CommentID, true)
	}
	return points
}

func fallbackRect(previous []Point, container Rect) Rect {
	if len(previous) > 0 {
		last := previous[len(previous)-1].Rect
		return Rect{Top: last.Top + FallbackStep, Left: last.Left}
	}
	top := container.Height - FallbackTailOffset
	if top < 0 {
		top = 0
	}
	return Rect{Top: top, Left: container.Width}
}

// Static is a Measurer backed by fixed measurements, typically posted by a
// browser client.
type Static struct {
	ContainerRect Rect            `json:"container"`
	Rects         map[string]Rect `json:"anchors"`
}

// Container implements Measurer.
func (s Static) Container() Rect { return s.ContainerRect }

// Measure implements Measurer.
func (s Static) Measure(commentID string) (Rect, bool) {
	rect, ok := s.Rects[commentID]
	return rect, ok
}
