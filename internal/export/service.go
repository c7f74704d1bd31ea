package export

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/anchor"
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/annotate"
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/layout"
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/notes"
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/render"
)

// Source loads the interview being exported.
type Source interface {
	ExportMaterial(ctx context.Context, interviewID string) (Material, error)
}

// Service provides interview export functionality
type Service struct {
	source    Source
	browser   Browser
	converter Converter
	archive   Archive
	layout    layout.Options
	flow      anchor.FlowOptions
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Service)

// WithBrowser enables PDF output and browser measured anchors.
func WithBrowser(b Browser) Option {
	return func(s *Service) { s.browser = b }
}

func WithConverter(c Converter) Option {
	return func(s *Service) {
		if c != nil {
			s.converter = c
		}
	}
}

// WithArchive uploads results when a request asks for it.
func WithArchive(a Archive) Option {
	return func(s *Service) { s.archive = a }
}

func WithLayoutOptions(opts layout.Options) Option {
	return func(s *Service) { s.layout = opts }
}

func WithFlowOptions(opts anchor.FlowOptions) Option {
	return func(s *Service) { s.flow = opts }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a new export service
func NewService(source Source, opts ...Option) *Service {
	s := &Service{
		source:    source,
		converter: Pandoc{},
		flow:      anchor.DefaultFlowOptions,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	switch req.Format {
	case FormatHTML, FormatPDF, FormatDOCX:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
	if req.Format == FormatPDF && s.browser == nil {
		return nil, fmt.Errorf("%w: no browser configured", ErrPDFDependencyMissing)
	}

	m, err := s.source.ExportMaterial(ctx, req.InterviewID)
	if err != nil {
		return nil, fmt.Errorf("load interview: %w", err)
	}
	items := m.Notes
	if !req.IncludeNotes {
		items = nil
	}

	measure := annotate.FlowMeasurerFunc(s.flow)
	if req.Format == FormatPDF {
		if static, err := s.measure(ctx, m, items); err != nil {
			s.logger.Warn("browser measurement failed, using flow layout", "interview_id", req.InterviewID, "error", err)
		} else {
			measure = annotate.StaticMeasurerFunc(static)
		}
	}

	view := annotate.NewView(nil,
		annotate.WithMeasurer(measure),
		annotate.WithLayoutOptions(s.layout),
		annotate.WithLogger(s.logger),
	)
	view.SetContent(m.Transcript, items)
	view.Resize(TranscriptWidth)
	anchored, _ := notes.Partition(items)
	for _, thread := range anchored {
		view.SetCardHeight(thread.Root.ID, estimateCardHeight(thread))
	}
	frame := view.Recompute()

	page, err := RenderDocumentHTML(templateData(m, frame, req.Format == FormatDOCX))
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	res := &Result{Filename: sanitizeFilename(m.Title) + "." + string(req.Format)}
	switch req.Format {
	case FormatHTML:
		res.Data = []byte(page)
		res.MimeType = "text/html; charset=utf-8"
	case FormatPDF:
		if res.Data, err = s.browser.PrintPDF(ctx, page); err != nil {
			return nil, err
		}
		res.MimeType = "application/pdf"
	case FormatDOCX:
		if res.Data, err = s.converter.ConvertDOCX(ctx, page); err != nil {
			return nil, err
		}
		res.MimeType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	}

	if req.Archive && s.archive != nil {
		key := fmt.Sprintf("%s/%d-%s", req.InterviewID, s.now().UTC().Unix(), res.Filename)
		if res.URL, err = s.archive.Store(ctx, key, res); err != nil {
			return nil, fmt.Errorf("archive export: %w", err)
		}
	}
	s.logger.Info("interview exported",
		"interview_id", req.InterviewID,
		"format", req.Format,
		"bytes", len(res.Data),
		"cards", len(frame.Cards),
		"archived", res.URL != "",
	)
	return res, nil
}

// measure lays the bare transcript page out in the browser so anchors match
// what the PDF will show.
func (s *Service) measure(ctx context.Context, m Material, items []notes.Note) (anchor.Static, error) {
	page, err := RenderDocumentHTML(TemplateData{
		Title:          m.Title,
		Participant:    m.Participant,
		UpdatedBy:      m.UpdatedBy,
		UpdatedAt:      m.UpdatedAt,
		TranscriptHTML: templateHTML(render.Render(m.Transcript, items)),
	})
	if err != nil {
		return anchor.Static{}, err
	}
	return s.browser.Measure(ctx, page)
}

const (
	cardChrome     = 36.0
	replyChrome    = 24.0
	cardLineHeight = 16.0
	cardLineChars  = 40
)

// estimateCardHeight approximates the rendered height of a sidebar card.
// Printed pages have no live card measurements to feed back.
func estimateCardHeight(t notes.Thread) float64 {
	h := cardChrome + cardLineHeight*float64(textLines(t.Root.Content))
	for _, reply := range t.Replies {
		h += replyChrome + cardLineHeight*float64(textLines(reply.Content))
	}
	return h
}

func textLines(content string) int {
	lines := 0
	for _, line := range strings.Split(render.NoteContentText(content), "\n") {
		n := utf8.RuneCountInString(line)
		lines += int(math.Max(1, math.Ceil(float64(n)/cardLineChars)))
	}
	return lines
}
