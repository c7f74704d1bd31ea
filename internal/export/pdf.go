package export

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/anchor"
)

// Browser lays pages out in a real engine. Measure returns the container and
// first highlight rect per comment id of a page built by RenderDocumentHTML;
// PrintPDF prints a page.
type Browser interface {
	Measure(ctx context.Context, html string) (anchor.Static, error)
	PrintPDF(ctx context.Context, html string) ([]byte, error)
}

// Chrome drives headless Chromium through chromedp. A fresh browser is
// started per call.
type Chrome struct {
	ExecPath string
	Timeout  time.Duration
}

// measureScript reads the geometry of the transcript column. Only the first
// element carrying a comment id counts, matching how cards anchor.
const measureScript = `(() => {
  const root = document.querySelector('[data-transcript-root]');
  const box = (r) => ({top: r.top, left: r.left, width: r.width, height: r.height});
  const rects = {};
  if (!root) return {container: {top: 0, left: 0, width: 0, height: 0}, rects};
  for (const el of root.querySelectorAll('[data-comment-id]')) {
    const id = el.getAttribute('data-comment-id');
    if (!id || id in rects) continue;
    rects[id] = box(el.getBoundingClientRect());
  }
  return {container: box(root.getBoundingClientRect()), rects};
})()`

type measured struct {
	Container anchor.Rect            `json:"container"`
	Rects     map[string]anchor.Rect `json:"rects"`
}

// percentEncodeForDataURL encodes a string for use in a data URL
// Unlike url.QueryEscape, this properly encodes spaces as %20 for data URLs
func percentEncodeForDataURL(s string) string {
	var result strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '-', r == '_', r == '.', r == '~':
			result.WriteRune(r)
		case r == ' ':
			result.WriteString("%20")
		default:
			for _, b := range []byte(string(r)) {
				fmt.Fprintf(&result, "%%%02X", b)
			}
		}
	}
	return result.String()
}

func dataURL(html string) string {
	return "data:text/html;charset=utf-8," + percentEncodeForDataURL(html)
}

func (c *Chrome) execPath() (string, error) {
	if c.ExecPath != "" {
		return c.ExecPath, nil
	}
	for _, name := range []string{"chromium-browser", "chromium", "google-chrome"} {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: chromium not installed", ErrPDFDependencyMissing)
}

func (c *Chrome) run(ctx context.Context, actions ...chromedp.Action) error {
	path, err := c.execPath()
	if err != nil {
		return err
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(path),
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.WindowSize(1280, 1024),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	defer cancelTask()

	return chromedp.Run(taskCtx, actions...)
}

// Measure loads html and reports highlight geometry.
func (c *Chrome) Measure(ctx context.Context, html string) (anchor.Static, error) {
	var out measured
	err := c.run(ctx,
		chromedp.Navigate(dataURL(html)),
		chromedp.WaitReady("body"),
		chromedp.Evaluate(measureScript, &out),
	)
	if err != nil {
		return anchor.Static{}, fmt.Errorf("chrome measure failed: %w", err)
	}
	return anchor.Static{ContainerRect: out.Container, Rects: out.Rects}, nil
}

// PrintPDF converts html to a landscape letter PDF, leaving room for the
// sidebar.
func (c *Chrome) PrintPDF(ctx context.Context, html string) ([]byte, error) {
	var pdfData []byte
	err := c.run(ctx,
		chromedp.Navigate(dataURL(html)),
		chromedp.WaitReady("body"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdfData, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithLandscape(true).
				WithPaperWidth(8.5).
				WithPaperHeight(11.0).
				WithMarginTop(0.5).
				WithMarginBottom(0.5).
				WithMarginLeft(0.5).
				WithMarginRight(0.5).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("chrome pdf generation failed: %w", err)
	}
	return pdfData, nil
}

// sanitizeFilename creates a safe filename from a title
func sanitizeFilename(title string) string {
	var b strings.Builder
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('-')
		}
	}
	result := b.String()
	if len(result) > 50 {
		result = result[:50]
	}
	if result == "" {
		result = "interview"
	}
	return result
}
