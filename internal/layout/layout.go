// Package layout places sidebar cards next to their transcript anchors
// without letting any two cards overlap.
package layout

import (
	"math"
	"sort"
	"strconv"

	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/anchor"
)

const (
	// MinGap is the vertical space kept between consecutive cards.
	MinGap = 12.0
	// PlaceholderHeight is assumed for cards that have not been measured.
	PlaceholderHeight = 80.0
	// SidebarMargin is added below the lowest card.
	SidebarMargin = 48.0
	// ConnectorOffset moves connector endpoints from the top edge down to
	// roughly the first line of text.
	ConnectorOffset = 10.0
)

// Options tunes the engine. Zero fields take the package defaults.
type Options struct {
	MinGap            float64 `mapstructure:"min_gap" json:"minGap,omitempty"`
	PlaceholderHeight float64 `mapstructure:"placeholder_height" json:"placeholderHeight,omitempty"`
	SidebarMargin     float64 `mapstructure:"sidebar_margin" json:"sidebarMargin,omitempty"`
	ConnectorOffset   float64 `mapstructure:"connector_offset" json:"connectorOffset,omitempty"`
	// CardLeft is the x coordinate of the sidebar column in container space.
	CardLeft float64 `mapstructure:"card_left" json:"cardLeft,omitempty"`
}

func (o Options) withDefaults() Options {
	if o.MinGap <= 0 || !finite(o.MinGap) {
		o.MinGap = MinGap
	}
	if o.PlaceholderHeight <= 0 || !finite(o.PlaceholderHeight) {
		o.PlaceholderHeight = PlaceholderHeight
	}
	if o.SidebarMargin <= 0 || !finite(o.SidebarMargin) {
		o.SidebarMargin = SidebarMargin
	}
	if o.ConnectorOffset <= 0 || !finite(o.ConnectorOffset) {
		o.ConnectorOffset = ConnectorOffset
	}
	if !finite(o.CardLeft) {
		o.CardLeft = 0
	}
	return o
}

// Position is where one card goes.
type Position struct {
	NoteID     string  `json:"noteId"`
	CommentID  string  `json:"commentId"`
	Top        float64 `json:"top"`
	Height     float64 `json:"height"`
	AnchorTop  float64 `json:"anchorTop"`
	AnchorLeft float64 `json:"anchorLeft"`
	CardLeft   float64 `json:"cardLeft"`
	Pending    bool    `json:"pending,omitempty"`
	Fallback   bool    `json:"fallback,omitempty"`
}

// Bottom is the lower edge of the card.
func (p Position) Bottom() float64 { return p.Top + p.Height }

// ComputePositions returns one position per anchor, sorted by anchor top
// with ties broken by note id. Each card starts level with its anchor and is
// pushed down just far enough to clear the previous card by MinGap. heights
// is keyed by note id. Neither argument is modified, and the result depends
// only on the arguments.
func ComputePositions(anchors []anchor.Point, heights map[string]float64, opts Options) []Position {
	opts = opts.withDefaults()
	positions := make([]Position, 0, len(anchors))
	for _, a := range anchors {
		top := a.Rect.Top
		if !finite(top) {
			top = 0
		}
		left := a.Rect.Left
		if !finite(left) {
			left = 0
		}
		positions = append(positions, Position{
			NoteID:     a.NoteID,
			CommentID:  a.CommentID,
			Top:        top,
			Height:     cardHeight(heights, a.NoteID, opts),
			AnchorTop:  top,
			AnchorLeft: left,
			CardLeft:   opts.CardLeft,
			Pending:    a.Pending,
			Fallback:   a.Fallback,
		})
	}

	sort.SliceStable(positions, func(i, j int) bool {
		if positions[i].AnchorTop != positions[j].AnchorTop {
			return positions[i].AnchorTop < positions[j].AnchorTop
		}
		return positions[i].NoteID < positions[j].NoteID
	})

	for i := 1; i < len(positions); i++ {
		floor := positions[i-1].Bottom() + opts.MinGap
		if positions[i].Top < floor {
			positions[i].Top = floor
		}
	}
	return positions
}

func cardHeight(heights map[string]float64, noteID string, opts Options) float64 {
	h, ok := heights[noteID]
	if !ok || h <= 0 || !finite(h) {
		return opts.PlaceholderHeight
	}
	return h
}

// SidebarHeight is the minimum sidebar height that contains every card.
func SidebarHeight(positions []Position, opts Options) float64 {
	if len(positions) == 0 {
		return 0
	}
	opts = opts.withDefaults()
	lowest := 0.0
	for _, p := range positions {
		if b := p.Bottom(); b > lowest {
			lowest = b
		}
	}
	return lowest + opts.SidebarMargin
}

// Connector is the line drawn from a highlight to its card.
type Connector struct {
	NoteID string  `json:"noteId"`
	X1     float64 `json:"x1"`
	Y1     float64 `json:"y1"`
	X2     float64 `json:"x2"`
	Y2     float64 `json:"y2"`
	Path   string  `json:"path"`
}

// ConnectorFor builds the connector for the card whose note id or comment id
// is id. It reports false when id is empty or has no position.
func ConnectorFor(positions []Position, id string, opts Options) (Connector, bool) {
	if id == "" {
		return Connector{}, false
	}
	opts = opts.withDefaults()
	for _, p := range positions {
		if p.NoteID != id && p.CommentID != id {
			continue
		}
		c := Connector{
			NoteID: p.NoteID,
			X1:     p.AnchorLeft,
			Y1:     p.AnchorTop + opts.ConnectorOffset,
			X2:     p.CardLeft,
			Y2:     p.Top + opts.ConnectorOffset,
		}
		c.Path = cubicPath(c.X1, c.Y1, c.X2, c.Y2)
		return c, true
	}
	return Connector{}, false
}

// cubicPath returns an SVG path whose control points share the horizontal
// midpoint, giving an S-curve between two different heights.
func cubicPath(x1, y1, x2, y2 float64) string {
	mx := (x1 + x2) / 2
	b := make([]byte, 0, 64)
	b = append(b, "M "...)
	b = appendPoint(b, x1, y1)
	b = append(b, " C "...)
	b = appendPoint(b, mx, y1)
	b = append(b, ", "...)
	b = appendPoint(b, mx, y2)
	b = append(b, ", "...)
	b = appendPoint(b, x2, y2)
	return string(b)
}

func appendPoint(b []byte, x, y float64) []byte {
	b = strconv.AppendFloat(b, x, 'f', -1, 64)
	b = append(b, ' ')
	return strconv.AppendFloat(b, y, 'f', -1, 64)
}

// Snapshot is one complete layout pass. It is replaced as a whole on every
// recompute.
type Snapshot struct {
	Positions     []Position `json:"positions"`
	Connector     *Connector `json:"connector,omitempty"`
	SidebarHeight float64    `json:"sidebarHeight"`
}

// Position returns the card position for a note id.
func (s *Snapshot) Position(noteID string) (Position, bool) {
	if s == nil {
		return Position{}, false
	}
	for _, p := range s.Positions {
		if p.NoteID == noteID {
			return p, true
		}
	}
	return Position{}, false
}

// Layout runs a full pass. A pending anchor, if any, gets the connector;
// otherwise activeID, the focused note or comment id, does.
func Layout(anchors []anchor.Point, heights map[string]float64, activeID string, opts Options) Snapshot {
	positions := ComputePositions(anchors, heights, opts)
	snapshot := Snapshot{
		Positions:     positions,
		SidebarHeight: SidebarHeight(positions, opts),
	}
	for _, p := range positions {
		if p.Pending {
			activeID = p.NoteID
			break
		}
	}
	if c, ok := ConnectorFor(positions, activeID, opts); ok {
		snapshot.Connector = &c
	}
	return snapshot
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
