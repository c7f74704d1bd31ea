package export

import (
	"bytes"
	"html/template"
	"math"
	"strconv"
	"time"

	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/annotate"
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/notes"
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/render"
)

// TranscriptWidth is the width of the transcript column in export pages, in
// CSS pixels. Browser measurement and layout both use it.
const TranscriptWidth = 640.0

// sidebarLeft is where cards start, relative to the transcript column.
const sidebarLeft = TranscriptWidth + 48

var documentTemplate = template.Must(template.New("document").Funcs(template.FuncMap{
	"px": formatPx,
}).Parse(documentHTML))

// TemplateData holds data for document template rendering
type TemplateData struct {
	Title          string
	Participant    string
	UpdatedBy      string
	UpdatedAt      time.Time
	TranscriptHTML template.HTML
	Width          float64
	SidebarLeft    float64
	SidebarHeight  float64
	// Flat lists notes after the transcript instead of positioning them
	// beside it. Used where absolute positioning does not survive, as in
	// DOCX conversion.
	Flat    bool
	Cards   []TemplateCard
	General []TemplateNote
}

// TemplateCard is one positioned sidebar card.
type TemplateCard struct {
	CommentID string
	Top       float64
	Fallback  bool
	Root      TemplateNote
	Replies   []TemplateNote
}

// TemplateNote is a rendered note body with its byline.
type TemplateNote struct {
	Author    string
	Anchor    string
	CreatedAt time.Time
	Body      template.HTML
}

// RenderDocumentHTML renders the document template with provided data
func RenderDocumentHTML(data TemplateData) (string, error) {
	if data.Width <= 0 {
		data.Width = TranscriptWidth
	}
	if data.SidebarLeft <= 0 {
		data.SidebarLeft = sidebarLeft
	}
	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// templateData turns a recomputed frame into page data. Card bodies are
// rendered by render.NoteContentHTML, which only emits its own tags.
func templateData(m Material, frame *annotate.Frame, flat bool) TemplateData {
	data := TemplateData{
		Title:          m.Title,
		Participant:    m.Participant,
		UpdatedBy:      m.UpdatedBy,
		UpdatedAt:      m.UpdatedAt,
		TranscriptHTML: templateHTML(frame.Markup),
		Width:          TranscriptWidth,
		SidebarLeft:    sidebarLeft,
		SidebarHeight:  frame.Layout.SidebarHeight,
		Flat:           flat,
	}
	for _, card := range frame.Cards {
		if card.Thread == nil {
			continue
		}
		tc := TemplateCard{
			CommentID: card.CommentID,
			Top:       card.Top,
			Fallback:  card.Fallback,
			Root:      templateNote(card.Thread.Root),
		}
		for _, reply := range card.Thread.Replies {
			tc.Replies = append(tc.Replies, templateNote(reply))
		}
		data.Cards = append(data.Cards, tc)
	}
	for _, thread := range frame.General {
		data.General = append(data.General, templateNote(thread.Root))
		for _, reply := range thread.Replies {
			data.General = append(data.General, templateNote(reply))
		}
	}
	return data
}

// templateHTML marks renderer output as trusted. Only render.Render and
// render.NoteContentHTML output is passed here; both escape user text.
func templateHTML(s string) template.HTML {
	return template.HTML(s)
}

func formatPx(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = 0
	}
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64) + "px"
}

func templateNote(n notes.Note) TemplateNote {
	return TemplateNote{
		Author:    n.Author,
		Anchor:    n.AnchorText,
		CreatedAt: n.CreatedAt,
		Body:      templateHTML(render.NoteContentHTML(n.Content)),
	}
}

const documentHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.5; margin: 2rem; color: #222; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .page { position: relative; }
    .transcript { width: {{px .Width}}; font-size: 15px; }
    .comment-highlight { background: #fff3b0; border-bottom: 2px solid #e6b800; }
    .sidebar { position: absolute; top: 0; left: {{px .SidebarLeft}}; width: 280px; height: {{px .SidebarHeight}}; }
    .card { position: absolute; left: 0; right: 0; background: #f5f5f5; border-left: 3px solid #e6b800; padding: 0.5rem 0.75rem; font-size: 12px; }
    .card--fallback { border-left-color: #999; }
    .reply { margin-top: 0.5rem; padding-left: 0.5rem; border-left: 2px solid #ddd; }
    .byline { color: #666; font-size: 11px; }
    .notes .note { background: #f5f5f5; padding: 0.75rem; margin: 0.75rem 0; border-left: 3px solid #333; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">{{if .Participant}}{{.Participant}} | {{end}}{{if .UpdatedBy}}{{.UpdatedBy}} | {{end}}{{if not .UpdatedAt.IsZero}}{{.UpdatedAt.Format "Jan 2, 2006"}}{{end}}</div>
  <div class="page">
    <div class="transcript" data-transcript-root>{{.TranscriptHTML}}</div>
    {{- if and .Cards (not .Flat)}}
    <aside class="sidebar">
      {{- range .Cards}}
      <div class="card{{if .Fallback}} card--fallback{{end}}" data-comment-id="{{.CommentID}}" style="top: {{px .Top}}">
        <div class="byline">{{.Root.Author}}</div>
        {{.Root.Body}}
        {{- range .Replies}}
        <div class="reply"><div class="byline">{{.Author}}</div>{{.Body}}</div>
        {{- end}}
      </div>
      {{- end}}
    </aside>
    {{- end}}
  </div>
  {{- if and .Cards .Flat}}
  <h2>Comments</h2>
  <div class="notes">
    {{- range .Cards}}
    <div class="note">
      {{if .Root.Anchor}}<blockquote>{{.Root.Anchor}}</blockquote>{{end}}
      <p class="byline">{{.Root.Author}}</p>
      {{.Root.Body}}
      {{- range .Replies}}
      <div class="reply"><p class="byline">{{.Author}}</p>{{.Body}}</div>
      {{- end}}
    </div>
    {{- end}}
  </div>
  {{- end}}
  {{- if .General}}
  <h2>Notes</h2>
  <div class="notes">
    {{- range .General}}
    <div class="note"><p class="byline">{{.Author}}</p>{{.Body}}</div>
    {{- end}}
  </div>
  {{- end}}
</body>
</html>`
