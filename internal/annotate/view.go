// Package annotate assembles the annotation view. It renders the transcript,
// resolves anchors, lays out the sidebar and publishes the result as an
// immutable Frame.
package annotate

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/anchor"
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/document"
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/interaction"
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/layout"
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/notes"
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/render"
)

// MeasurerFunc returns the geometry of markup laid out at width. It is
// called once per recompute.
type MeasurerFunc func(markup string, width float64) anchor.Measurer

// FlowMeasurerFunc measures with anchor.FlowMeasurer using opts, overriding
// the width with the view width when one is set.
func FlowMeasurerFunc(opts anchor.FlowOptions) MeasurerFunc {
	return func(markup string, width float64) anchor.Measurer {
		if width > 0 {
			opts.Width = width
		}
		return anchor.NewFlowMeasurer(markup, opts)
	}
}

// StaticMeasurerFunc always returns m.
func StaticMeasurerFunc(m anchor.Measurer) MeasurerFunc {
	return func(string, float64) anchor.Measurer { return m }
}

// Card is one sidebar entry. Pending cards have no thread yet.
type Card struct {
	layout.Position
	Classes []string                    `json:"classes,omitempty"`
	Thread  *notes.Thread               `json:"thread,omitempty"`
	Pending *interaction.PendingComment `json:"pending,omitempty"`
}

// Frame is the complete output of one recompute. Frames are never modified
// after they are published.
type Frame struct {
	Version      uint64                   `json:"version"`
	Markup       string                   `json:"html"`
	Cards        []Card                   `json:"cards"`
	General      []notes.Thread           `json:"general"`
	Layout       layout.Snapshot          `json:"layout"`
	Presentation interaction.Presentation `json:"presentation"`
}

// Option configures a View.
type Option func(*View)

// WithMeasurer replaces the default flow measurer.
func WithMeasurer(fn MeasurerFunc) Option {
	return func(v *View) {
		if fn != nil {
			v.measure = fn
		}
	}
}

// WithLayoutOptions sets the gap, placeholder height and card column used by
// the position engine.
func WithLayoutOptions(opts layout.Options) Option {
	return func(v *View) { v.layoutOpts = opts }
}

// WithLogger sets the logger for recompute diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(v *View) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// View holds the inputs of the annotation view. Setters record the new input
// and request a recompute; Recompute does the work and swaps in a new Frame.
type View struct {
	controller *interaction.Controller
	measure    MeasurerFunc
	layoutOpts layout.Options
	logger     *slog.Logger

	mu      sync.Mutex
	doc     document.Node
	items   []notes.Note
	heights map[string]float64
	width   float64
	request func(Trigger)

	// recompute serializes passes so frames publish in version order.
	recompute   sync.Mutex
	version     atomic.Uint64
	frame       atomic.Pointer[Frame]
	unsubscribe func()
}

// NewView creates a view driven by controller. A nil controller gives a
// read-only view with no hover, focus or composition.
func NewView(controller *interaction.Controller, opts ...Option) *View {
	v := &View{
		controller: controller,
		measure:    FlowMeasurerFunc(anchor.DefaultFlowOptions),
		logger:     slog.Default(),
		heights:    make(map[string]float64),
	}
	for _, opt := range opts {
		opt(v)
	}
	if controller != nil {
		v.unsubscribe = controller.Subscribe(func(interaction.Presentation) {
			v.trigger(TriggerPresentation)
		})
	}
	return v
}

// Attach routes recompute requests to s. Without a scheduler the caller runs
// Recompute itself.
func (v *View) Attach(s *Scheduler) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if s == nil {
		v.request = nil
		return
	}
	v.request = s.Request
}

// Close detaches the view from its controller.
func (v *View) Close() {
	if v.unsubscribe != nil {
		v.unsubscribe()
	}
}

func (v *View) trigger(reason Trigger) {
	v.mu.Lock()
	request := v.request
	v.mu.Unlock()
	if request != nil {
		request(reason)
	}
}

// SetContent replaces the transcript and its notes.
func (v *View) SetContent(doc document.Node, items []notes.Note) {
	v.mu.Lock()
	v.doc = doc
	v.items = append([]notes.Note(nil), items...)
	v.mu.Unlock()
	v.trigger(TriggerContent)
}

// SetCardHeight records the measured height of a card.
func (v *View) SetCardHeight(noteID string, height float64) {
	v.mu.Lock()
	if v.heights[noteID] == height {
		v.mu.Unlock()
		return
	}
	v.heights[noteID] = height
	v.mu.Unlock()
	v.trigger(TriggerCardHeight)
}

// Resize records a new transcript width.
func (v *View) Resize(width float64) {
	v.mu.Lock()
	v.width = width
	v.mu.Unlock()
	v.trigger(TriggerResize)
}

// Scroll notes that the shared scroll container moved. Positions are
// container relative, but measurers that read viewport geometry need a
// fresh pass.
func (v *View) Scroll() {
	v.trigger(TriggerScroll)
}

// Frame returns the latest published frame, or nil before the first
// recompute.
func (v *View) Frame() *Frame {
	return v.frame.Load()
}

// Recompute rebuilds the frame from the current inputs and publishes it.
func (v *View) Recompute() *Frame {
	v.recompute.Lock()
	defer v.recompute.Unlock()

	v.mu.Lock()
	doc := v.doc
	items := v.items
	width := v.width
	heights := make(map[string]float64, len(v.heights))
	for id, h := range v.heights {
		heights[id] = h
	}
	v.mu.Unlock()

	var pres interaction.Presentation
	if v.controller != nil {
		pres = v.controller.Presentation()
	}

	anchored, general := notes.Partition(items)
	renderItems := items
	var pending *anchor.Pending
	if p := pres.Pending; p != nil {
		pending = &anchor.Pending{NoteID: p.NoteID, CommentID: p.CommentID}
		renderItems = append(append([]notes.Note(nil), items...), notes.Note{
			ID:         p.NoteID,
			CommentID:  p.CommentID,
			AnchorText: p.AnchorText,
			CreatedAt:  after(items),
		})
	}

	markup := render.Render(doc, renderItems)
	points := anchor.Resolve(anchored, pending, v.measure(markup, width))
	snapshot := layout.Layout(points, heights, pres.ActiveID(), v.layoutOpts)

	frame := &Frame{
		Version: v.version.Add(1),
		Markup: render.Decorate(markup, func(h render.Highlight) []string {
			return pres.ClassesFor(h.CommentID)
		}),
		Cards:        cards(snapshot.Positions, anchored, pres),
		General:      general,
		Layout:       snapshot,
		Presentation: pres,
	}
	v.frame.Store(frame)
	v.logger.Debug("annotation view recomputed",
		"version", frame.Version,
		"cards", len(frame.Cards),
		"general", len(general),
		"sidebar_height", snapshot.SidebarHeight,
	)
	return frame
}

func cards(positions []layout.Position, anchored []notes.Thread, pres interaction.Presentation) []Card {
	byNote := make(map[string]int, len(anchored))
	for i, thread := range anchored {
		byNote[thread.Root.ID] = i
	}
	out := make([]Card, 0, len(positions))
	for _, p := range positions {
		card := Card{Position: p, Classes: pres.ClassesFor(p.CommentID)}
		if p.Pending && pres.Pending != nil {
			pending := *pres.Pending
			card.Pending = &pending
		} else if i, ok := byNote[p.NoteID]; ok {
			thread := anchored[i]
			card.Thread = &thread
		}
		out = append(out, card)
	}
	return out
}

// after returns a time later than every note, so a pending comment never
// takes anchor text that an existing note already claims.
func after(items []notes.Note) time.Time {
	var latest time.Time
	for _, n := range items {
		if n.CreatedAt.After(latest) {
			latest = n.CreatedAt
		}
	}
	return latest.Add(time.Nanosecond)
}
