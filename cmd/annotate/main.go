// Command annotate lays out an interview transcript and its notes offline
// and writes the resulting frame as JSON, or the highlighted markup as HTML.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/annotate"
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/config"
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/document"
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/interaction"
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/notes"
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/rbac"
)

func main() {
	var (
		configPath     = flag.String("config", "", "path to a YAML config file")
		transcriptPath = flag.String("transcript", "", "transcript document JSON")
		notesPath      = flag.String("notes", "", "notes JSON array")
		width          = flag.Float64("width", 0, "transcript width in pixels")
		focus          = flag.String("focus", "", "comment id to focus")
		format         = flag.String("format", "json", "output format: json or html")
		timeout        = flag.Duration("timeout", 5*time.Second, "give up after this long")
	)
	flag.Parse()

	if err := run(*configPath, *transcriptPath, *notesPath, *width, *focus, *format, *timeout, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "annotate:", err)
		os.Exit(1)
	}
}

func run(configPath, transcriptPath, notesPath string, width float64, focus, format string, timeout time.Duration, out io.Writer) error {
	if transcriptPath == "" {
		return fmt.Errorf("-transcript is required")
	}
	if format != "json" && format != "html" {
		return fmt.Errorf("unknown format %q", format)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := cfg.NewLogger(os.Stderr)

	raw, err := os.ReadFile(transcriptPath)
	if err != nil {
		return err
	}
	doc, err := document.Parse(raw)
	if err != nil {
		return err
	}
	var items []notes.Note
	if notesPath != "" {
		rawNotes, err := os.ReadFile(notesPath)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(rawNotes, &items); err != nil {
			return fmt.Errorf("decode notes: %w", err)
		}
	}

	controller := interaction.NewController(rbac.RoleViewer, nil, interaction.WithLogger(log))
	view := annotate.NewView(controller,
		annotate.WithMeasurer(annotate.FlowMeasurerFunc(cfg.Flow)),
		annotate.WithLayoutOptions(cfg.Layout),
		annotate.WithLogger(log),
	)
	defer view.Close()

	frames := make(chan *annotate.Frame, 1)
	scheduler := annotate.NewScheduler(func() {
		frame := view.Recompute()
		select {
		case frames <- frame:
		default:
		}
	}, annotate.SchedulerOptions{
		Frame:  cfg.Scheduler.Frame,
		Settle: cfg.Scheduler.Settle,
		Logger: log,
	})
	view.Attach(scheduler)

	view.SetContent(doc, items)
	if width > 0 {
		view.Resize(width)
	}
	if focus != "" {
		controller.ClickAnchor(focus)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	go scheduler.Run(ctx)

	var frame *annotate.Frame
	select {
	case frame = <-frames:
	case <-ctx.Done():
		return fmt.Errorf("no frame produced: %w", ctx.Err())
	}

	if format == "html" {
		_, err = io.WriteString(out, frame.Markup)
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(frame)
}
