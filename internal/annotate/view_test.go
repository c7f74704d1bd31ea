package annotate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/anchor"
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/document"
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/interaction"
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/layout"
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/notes"
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/rbac"
)

var created = time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)

func transcript() document.Node {
	commented := document.Node{
		Type:  document.TypeText,
		Text:  "revisit pricing",
		Marks: []document.Mark{{Type: document.MarkComment, Attrs: map[string]any{"commentId": "c1"}}},
	}
	return document.Node{Type: document.TypeDoc, Content: []document.Node{
		{Type: document.TypeParagraph, Content: []document.Node{
			{Type: document.TypeText, Text: "We should "},
			commented,
		}},
		{Type: document.TypeParagraph, Content: []document.Node{
			{Type: document.TypeText, Text: "Budget talk was brief"},
		}},
	}}
}

func TestRecomputeResolvedComment(t *testing.T) {
	v := NewView(nil)
	v.SetContent(transcript(), []notes.Note{{ID: "n1", CommentID: "c1", Content: "Looks good", CreatedAt: created}})
	frame := v.Recompute()

	if !strings.Contains(frame.Markup, `data-comment-id="c1" data-note-id="n1"`) {
		t.Fatalf("expected a resolved highlight, got %s", frame.Markup)
	}
	if len(frame.Cards) != 1 || frame.Cards[0].NoteID != "n1" {
		t.Fatalf("expected one card for n1, got %+v", frame.Cards)
	}
	if frame.Cards[0].Thread == nil || frame.Cards[0].Thread.Root.Content != "Looks good" {
		t.Fatalf("card should carry its thread, got %+v", frame.Cards[0])
	}
	if frame.Cards[0].Fallback {
		t.Fatal("c1 is in the transcript and should be measured")
	}
	if v.Frame() != frame {
		t.Fatal("Frame should return the published frame")
	}
}

func TestRecomputeMissingCommentStillPlaced(t *testing.T) {
	v := NewView(nil)
	v.SetContent(transcript(), []notes.Note{
		{ID: "n1", CommentID: "c1", Content: "a", CreatedAt: created},
		{ID: "n2", CommentID: "gone", Content: "b", CreatedAt: created.Add(time.Minute)},
		{ID: "g1", Content: "general", CreatedAt: created},
	})
	frame := v.Recompute()
	p, ok := frame.Layout.Position("n2")
	if !ok {
		t.Fatal("a note whose comment id is missing must still get a position")
	}
	if !p.Fallback {
		t.Fatalf("expected a fallback anchor, got %+v", p)
	}
	if len(frame.General) != 1 || frame.General[0].Root.ID != "g1" {
		t.Fatalf("unexpected general notes: %+v", frame.General)
	}
}

func TestPendingCommentCancelLeavesNoPosition(t *testing.T) {
	c := interaction.NewController(rbac.RoleCommenter, nil)
	v := NewView(c)
	defer v.Close()
	v.SetContent(transcript(), []notes.Note{{ID: "n1", CommentID: "c1", Content: "a", CreatedAt: created}})

	c.SelectionChange(interaction.Selection{Text: "Budget talk", InTranscript: true})
	pending, err := c.ConfirmSelection()
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}

	frame := v.Recompute()
	p, ok := frame.Layout.Position(pending.NoteID)
	if !ok || !p.Pending {
		t.Fatalf("pending comment should be positioned immediately, got %+v", frame.Layout.Positions)
	}
	if p.Fallback {
		t.Fatal("pending comment should anchor to its selected text")
	}
	if !strings.Contains(frame.Markup, pending.CommentID) || !strings.Contains(frame.Markup, interaction.ClassPending) {
		t.Fatalf("pending highlight missing from %s", frame.Markup)
	}
	if frame.Layout.Connector == nil || frame.Layout.Connector.NoteID != pending.NoteID {
		t.Fatalf("pending comment should own the connector, got %+v", frame.Layout.Connector)
	}

	c.Cancel()
	frame = v.Recompute()
	if _, ok := frame.Layout.Position(pending.NoteID); ok {
		t.Fatal("cancelled pending comment left a position behind")
	}
	if strings.Contains(frame.Markup, pending.CommentID) {
		t.Fatal("cancelled pending comment left a highlight behind")
	}
	if len(frame.Cards) != 1 {
		t.Fatalf("expected only n1, got %+v", frame.Cards)
	}
}

func TestRecomputeAppliesPresentation(t *testing.T) {
	c := interaction.NewController(rbac.RoleViewer, nil)
	v := NewView(c, WithLayoutOptions(layout.Options{CardLeft: 700}))
	v.SetContent(transcript(), []notes.Note{{ID: "n1", CommentID: "c1", Content: "a", CreatedAt: created}})

	c.ClickAnchor("c1")
	frame := v.Recompute()
	if !strings.Contains(frame.Markup, interaction.ClassFocused) {
		t.Fatalf("focused class missing from %s", frame.Markup)
	}
	if frame.Layout.Connector == nil || frame.Layout.Connector.NoteID != "n1" || frame.Layout.Connector.X2 != 700 {
		t.Fatalf("unexpected connector: %+v", frame.Layout.Connector)
	}
	if got := frame.Cards[0].Classes; len(got) != 1 || got[0] != interaction.ClassFocused {
		t.Fatalf("card classes = %v", got)
	}
}

func TestRecomputeUsesMeasurerAndHeights(t *testing.T) {
	static := anchor.Static{
		ContainerRect: anchor.Rect{Top: 10},
		Rects: map[string]anchor.Rect{
			"c1": {Top: 10},
			"c2": {Top: 15},
		},
	}
	v := NewView(nil, WithMeasurer(StaticMeasurerFunc(static)))
	v.SetContent(document.Node{}, []notes.Note{
		{ID: "n1", CommentID: "c1", Content: "a", CreatedAt: created},
		{ID: "n2", CommentID: "c2", Content: "b", CreatedAt: created},
	})
	v.SetCardHeight("n1", 40)
	frame := v.Recompute()
	p, _ := frame.Layout.Position("n2")
	if p.Top != 52 {
		t.Fatalf("n2 top = %v, want 52", p.Top)
	}

	v.SetCardHeight("n1", 100)
	next := v.Recompute()
	if p, _ := next.Layout.Position("n2"); p.Top != 112 {
		t.Fatalf("n2 top = %v, want 112", p.Top)
	}
	if p, _ := frame.Layout.Position("n2"); p.Top != 52 {
		t.Fatal("published frames must not change")
	}
	if next.Version <= frame.Version {
		t.Fatalf("versions should increase: %d then %d", frame.Version, next.Version)
	}
}

func TestViewRequestsAreCoalesced(t *testing.T) {
	ticks := make(chan time.Time)
	done := make(chan *Frame, 8)
	c := interaction.NewController(rbac.RoleViewer, nil)
	v := NewView(c)
	s := NewScheduler(func() { done <- v.Recompute() }, SchedulerOptions{Ticks: ticks})
	v.Attach(s)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()
	<-done

	v.SetContent(transcript(), []notes.Note{{ID: "n1", CommentID: "c1", Content: "a", CreatedAt: created}})
	v.SetCardHeight("n1", 60)
	v.Resize(480)
	v.Scroll()
	c.PointerEnter("c1")
	ticks <- time.Now()
	frame := <-done
	if len(frame.Cards) != 1 || frame.Presentation.HoveredID != "c1" {
		t.Fatalf("recompute should see every input, got %+v", frame)
	}

	ticks <- time.Now()
	ticks <- time.Now()
	select {
	case extra := <-done:
		t.Fatalf("expected one recompute per burst, got another: version %d", extra.Version)
	default:
	}

	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v", err)
	}
}

func TestPendingCommentOwnsConnectorOverFocus(t *testing.T) {
	c := interaction.NewController(rbac.RoleCommenter, nil)
	v := NewView(c)
	defer v.Close()
	v.SetContent(transcript(), []notes.Note{{ID: "n1", CommentID: "c1", Content: "a", CreatedAt: created}})

	c.ClickAnchor("c1")
	c.SelectionChange(interaction.Selection{Text: "Budget talk", InTranscript: true})
	pending, err := c.ConfirmSelection()
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}

	frame := v.Recompute()
	if frame.Layout.Connector == nil || frame.Layout.Connector.NoteID != pending.NoteID {
		t.Fatalf("composed comment should own the connector, got %+v", frame.Layout.Connector)
	}
	if frame.Presentation.FocusedID != "c1" {
		t.Fatalf("focus should survive composing, got %q", frame.Presentation.FocusedID)
	}

	c.Cancel()
	frame = v.Recompute()
	if frame.Layout.Connector == nil || frame.Layout.Connector.NoteID != "n1" {
		t.Fatalf("connector should return to the focused comment, got %+v", frame.Layout.Connector)
	}
}

func TestPendingCommentInsideHighlight(t *testing.T) {
	c := interaction.NewController(rbac.RoleCommenter, nil)
	v := NewView(c)
	defer v.Close()
	v.SetContent(transcript(), []notes.Note{{ID: "n1", CommentID: "c1", Content: "a", CreatedAt: created}})

	c.SelectionChange(interaction.Selection{Text: "pricing", InTranscript: true})
	pending, err := c.ConfirmSelection()
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}

	frame := v.Recompute()
	p, ok := frame.Layout.Position(pending.NoteID)
	if !ok || p.Fallback {
		t.Fatalf("pending comment should anchor to the selected text, got %+v", p)
	}
	existing, _ := frame.Layout.Position("n1")
	if p.AnchorTop != existing.AnchorTop {
		t.Fatalf("pending anchor top = %v, want the first line at %v", p.AnchorTop, existing.AnchorTop)
	}
	if !strings.Contains(frame.Markup, "revisit <span") || !strings.Contains(frame.Markup, pending.CommentID) {
		t.Fatalf("pending highlight should nest inside c1, got %s", frame.Markup)
	}
}

func TestConcurrentRecomputeKeepsNewestFrame(t *testing.T) {
	v := NewView(nil)
	v.SetContent(transcript(), []notes.Note{{ID: "n1", CommentID: "c1", Content: "a", CreatedAt: created}})

	const passes = 32
	var wg sync.WaitGroup
	for i := 0; i < passes; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v.Recompute()
		}()
	}
	wg.Wait()
	if got := v.Frame().Version; got != passes {
		t.Fatalf("published version = %d, want %d", got, passes)
	}
}
