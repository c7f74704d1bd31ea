// Package export renders an annotated interview transcript as a standalone
// HTML page, a PDF or a DOCX file.
package export

import (
	"errors"
	"time"

	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/document"
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/notes"
)

// Format represents the export output format
type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

// ParseFormat accepts the query values used by the API. Empty means PDF.
func ParseFormat(s string) (Format, bool) {
	switch Format(s) {
	case "", FormatPDF:
		return FormatPDF, true
	case FormatHTML, FormatDOCX:
		return Format(s), true
	}
	return "", false
}

// Request contains parameters for an export operation
type Request struct {
	InterviewID  string
	Format       Format
	IncludeNotes bool
	// Archive uploads the result and returns a download URL when an
	// archive is configured.
	Archive bool
}

// Material is everything an export needs about one interview.
type Material struct {
	Title       string
	Participant string
	UpdatedBy   string
	UpdatedAt   time.Time
	Transcript  document.Node
	Notes       []notes.Note
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
	URL      string
}

var (
	// ErrContentUnavailable indicates interview content could not be loaded for export.
	ErrContentUnavailable = errors.New("export content unavailable")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
	// ErrUnsupportedFormat is returned for formats other than html, pdf and docx.
	ErrUnsupportedFormat = errors.New("unsupported export format")
)
