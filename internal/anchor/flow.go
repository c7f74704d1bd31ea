package anchor

import (
	"strings"
	"unicode"

	"golang.org/x/net/html"

	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/render"
)

// FlowOptions describes the monospace box model FlowMeasurer lays text out
// in.
type FlowOptions struct {
	Width      float64 `mapstructure:"width"`
	LineHeight float64 `mapstructure:"line_height"`
	CharWidth  float64 `mapstructure:"char_width"`
	BlockGap   float64 `mapstructure:"block_gap"`
}

// DefaultFlowOptions approximates the transcript column of the web view.
var DefaultFlowOptions = FlowOptions{
	Width:      640,
	LineHeight: 24,
	CharWidth:  8,
	BlockGap:   12,
}

func (o FlowOptions) withDefaults() FlowOptions {
	if o.Width <= 0 {
		o.Width = DefaultFlowOptions.Width
	}
	if o.LineHeight <= 0 {
		o.LineHeight = DefaultFlowOptions.LineHeight
	}
	if o.CharWidth <= 0 {
		o.CharWidth = DefaultFlowOptions.CharWidth
	}
	if o.BlockGap < 0 {
		o.BlockGap = 0
	}
	return o
}

// FlowMeasurer estimates highlight positions by flowing rendered transcript
// markup through fixed-width lines. It is used where no browser is available
// (server-side layout previews, HTML export, tests).
type FlowMeasurer struct {
	container Rect
	rects     map[string]Rect
}

// NewFlowMeasurer lays out markup and records the box of the first highlight
// span for each comment id.
func NewFlowMeasurer(markup string, opts FlowOptions) *FlowMeasurer {
	f := newFlow(opts.withDefaults())
	z := html.NewTokenizer(strings.NewReader(markup))
	var spans []string
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			f.blockBoundary()
			return &FlowMeasurer{
				container: Rect{Width: f.opts.Width, Height: f.y},
				rects:     f.rects,
			}
		case html.TextToken:
			f.text(string(z.Text()))
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			switch {
			case tok.Data == "span":
				id := ""
				if h, ok := render.ParseHighlight(tok); ok {
					id = f.open(h.CommentID)
				}
				if tt == html.StartTagToken {
					spans = append(spans, id)
				}
			case tok.Data == "br":
				f.newline()
			case tok.Data == "hr":
				f.blockBoundary()
				f.y += f.opts.LineHeight / 2
			case isFlowBlock(tok.Data):
				f.blockBoundary()
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			switch {
			case tag == "span":
				if len(spans) == 0 {
					continue
				}
				id := spans[len(spans)-1]
				spans = spans[:len(spans)-1]
				if id != "" {
					f.close(id)
				}
			case isFlowBlock(tag):
				f.blockBoundary()
				if tag != "ul" && tag != "ol" {
					f.y += f.opts.BlockGap
				}
			}
		}
	}
}

// Container implements Measurer.
func (m *FlowMeasurer) Container() Rect { return m.container }

// Measure implements Measurer.
func (m *FlowMeasurer) Measure(commentID string) (Rect, bool) {
	rect, ok := m.rects[commentID]
	return rect, ok
}

func isFlowBlock(tag string) bool {
	switch tag {
	case "p", "h1", "h2", "h3", "h4", "h5", "h6", "li", "ul", "ol", "blockquote", "pre", "div":
		return true
	}
	return false
}

type flowSpan struct {
	started          bool
	startY, endY     float64
	startCol, endCol int
}

type flow struct {
	opts         FlowOptions
	perLine      int
	y            float64
	col          int
	pendingSpace bool
	active       map[string]*flowSpan
	rects        map[string]Rect
}

func newFlow(opts FlowOptions) *flow {
	perLine := int(opts.Width / opts.CharWidth)
	if perLine < 1 {
		perLine = 1
	}
	return &flow{
		opts:    opts,
		perLine: perLine,
		active:  make(map[string]*flowSpan),
		rects:   make(map[string]Rect),
	}
}

// open starts tracking a highlight. It returns "" when the id is already
// measured or open, so only the first element per id counts.
func (f *flow) open(id string) string {
	if _, done := f.rects[id]; done {
		return ""
	}
	if _, open := f.active[id]; open {
		return ""
	}
	f.flushSpace()
	f.active[id] = &flowSpan{}
	return id
}

func (f *flow) close(id string) {
	span, ok := f.active[id]
	if !ok {
		return
	}
	delete(f.active, id)
	cw, lh := f.opts.CharWidth, f.opts.LineHeight
	if !span.started {
		f.rects[id] = Rect{Top: f.y, Left: float64(f.col) * cw, Height: lh}
		return
	}
	if span.startY == span.endY {
		f.rects[id] = Rect{
			Top:    span.startY,
			Left:   float64(span.startCol) * cw,
			Width:  float64(span.endCol-span.startCol) * cw,
			Height: lh,
		}
		return
	}
	f.rects[id] = Rect{
		Top:    span.startY,
		Left:   0,
		Width:  float64(f.perLine) * cw,
		Height: span.endY - span.startY + lh,
	}
}

func (f *flow) text(s string) {
	for _, r := range s {
		if unicode.IsSpace(r) {
			f.pendingSpace = true
			continue
		}
		f.flushSpace()
		f.advance()
	}
}

func (f *flow) flushSpace() {
	if f.pendingSpace && f.col > 0 {
		f.advance()
	}
	f.pendingSpace = false
}

func (f *flow) advance() {
	if f.col >= f.perLine {
		f.y += f.opts.LineHeight
		f.col = 0
	}
	for _, span := range f.active {
		if !span.started {
			span.started = true
			span.startY = f.y
			span.startCol = f.col
		}
		span.endY = f.y
		span.endCol = f.col + 1
	}
	f.col++
}

func (f *flow) newline() {
	f.y += f.opts.LineHeight
	f.col = 0
	f.pendingSpace = false
}

func (f *flow) blockBoundary() {
	if f.col > 0 {
		f.y += f.opts.LineHeight
		f.col = 0
	}
	f.pendingSpace = false
}
