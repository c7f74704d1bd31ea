package interaction

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/notes"
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/rbac"
)

type fakeMutator struct {
	created []notes.CreateNoteIntent
	err     error
}

func (f *fakeMutator) CreateNote(_ context.Context, intent notes.CreateNoteIntent) (notes.Note, error) {
	if f.err != nil {
		return notes.Note{}, f.err
	}
	f.created = append(f.created, intent)
	return notes.Note{
		ID:         "note-1",
		Content:    intent.Content,
		CommentID:  intent.CommentID,
		AnchorText: intent.AnchorText,
		CreatedAt:  time.Now(),
	}, nil
}

func (f *fakeMutator) UpdateNote(context.Context, notes.UpdateNoteIntent) (notes.Note, error) {
	return notes.Note{}, errors.New("not implemented")
}

func (f *fakeMutator) DeleteNote(context.Context, notes.DeleteNoteIntent) error {
	return errors.New("not implemented")
}

type fakeScroller struct{ scrolled []string }

func (f *fakeScroller) ScrollIntoView(commentID string) { f.scrolled = append(f.scrolled, commentID) }

func validSelection(text string) Selection {
	return Selection{Text: text, InTranscript: true}
}

func TestHoverAndSiblingLeave(t *testing.T) {
	c := NewController(rbac.RoleViewer, nil)
	c.PointerEnter("c1")
	if got := c.Presentation().HoveredID; got != "c1" {
		t.Fatalf("hovered = %q", got)
	}
	c.PointerLeave("c1", "c2")
	if got := c.Presentation().HoveredID; got != "c2" {
		t.Fatalf("moving to a sibling should hover it, got %q", got)
	}
	c.PointerLeave("c1", "")
	if got := c.Presentation().HoveredID; got != "c2" {
		t.Fatalf("a stale leave should not clear the hover, got %q", got)
	}
	c.PointerLeave("c2", "")
	if got := c.Presentation().HoveredID; got != "" {
		t.Fatalf("expected idle hover, got %q", got)
	}
}

func TestFocusScrollsOnlyFromCard(t *testing.T) {
	scroller := &fakeScroller{}
	c := NewController(rbac.RoleViewer, nil, WithScroller(scroller))

	c.ClickAnchor("c1")
	if got := c.Presentation().FocusedID; got != "c1" {
		t.Fatalf("focused = %q", got)
	}
	if len(scroller.scrolled) != 0 {
		t.Fatalf("anchor click should not scroll, got %v", scroller.scrolled)
	}

	c.ClickCard("c2")
	if got := c.Presentation().FocusedID; got != "c2" {
		t.Fatalf("only one comment can be focused, got %q", got)
	}
	if !reflect.DeepEqual(scroller.scrolled, []string{"c2"}) {
		t.Fatalf("card click should scroll, got %v", scroller.scrolled)
	}

	c.ClickCard(" ")
	if len(scroller.scrolled) != 1 {
		t.Fatal("blank ids should be ignored")
	}
}

func TestSelectionThreshold(t *testing.T) {
	cases := []struct {
		name string
		sel  Selection
		mode Mode
	}{
		{name: "long enough", sel: validSelection("abc"), mode: ModeSelecting},
		{name: "too short after trim", sel: validSelection("  ab  "), mode: ModeIdle},
		{name: "collapsed", sel: Selection{Text: "abcdef", Collapsed: true, InTranscript: true}, mode: ModeIdle},
		{name: "outside transcript", sel: Selection{Text: "abcdef"}, mode: ModeIdle},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewController(rbac.RoleCommenter, nil)
			c.SelectionChange(tc.sel)
			if got := c.Presentation().Mode; got != tc.mode {
				t.Fatalf("mode = %s, want %s", got, tc.mode)
			}
		})
	}
}

func TestSelectionRequiresCommentPermission(t *testing.T) {
	c := NewController(rbac.RoleViewer, nil)
	c.SelectionChange(validSelection("some words"))
	state := c.Presentation()
	if state.Mode != ModeSelecting || state.CanAddComment {
		t.Fatalf("viewer should select without the add affordance, got %+v", state)
	}
	if _, err := c.ConfirmSelection(); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestComposeAndSubmit(t *testing.T) {
	mutator := &fakeMutator{}
	c := NewController(rbac.RoleCommenter, mutator)

	c.SelectionChange(validSelection("  first line\nsecond line"))
	if !c.Presentation().CanAddComment {
		t.Fatal("commenter should be offered the add affordance")
	}
	pending, err := c.ConfirmSelection()
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !strings.HasPrefix(pending.CommentID, "cmt_") || pending.AnchorText != "first line" {
		t.Fatalf("unexpected pending comment: %+v", pending)
	}
	state := c.Presentation()
	if state.Mode != ModeComposing || state.Pending == nil || state.Pending.CommentID != pending.CommentID {
		t.Fatalf("expected composing state, got %+v", state)
	}
	if state.ActiveID() != pending.CommentID {
		t.Fatalf("pending comment should own the connector, got %q", state.ActiveID())
	}

	note, err := c.Submit(context.Background(), "Worth following up")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if note.CommentID != pending.CommentID {
		t.Fatalf("note comment id = %q, want %q", note.CommentID, pending.CommentID)
	}
	want := notes.CreateNoteIntent{Content: "Worth following up", CommentID: pending.CommentID, AnchorText: "first line"}
	if !reflect.DeepEqual(mutator.created, []notes.CreateNoteIntent{want}) {
		t.Fatalf("unexpected intents: %+v", mutator.created)
	}
	if state := c.Presentation(); state.Mode != ModeIdle || state.Pending != nil {
		t.Fatalf("expected idle after submit, got %+v", state)
	}
}

func TestSubmitFailureKeepsPending(t *testing.T) {
	mutator := &fakeMutator{err: errors.New("offline")}
	c := NewController(rbac.RoleCommenter, mutator)
	c.SelectionChange(validSelection("quoted text"))
	if _, err := c.ConfirmSelection(); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := c.Submit(context.Background(), "hello"); err == nil {
		t.Fatal("expected submit error")
	}
	if state := c.Presentation(); state.Mode != ModeComposing || state.Pending == nil {
		t.Fatalf("pending comment should survive a failed submit, got %+v", state)
	}
	if _, err := c.Submit(context.Background(), "   "); !errors.Is(err, notes.ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
}

func TestSubmitWithoutPending(t *testing.T) {
	c := NewController(rbac.RoleCommenter, &fakeMutator{})
	if _, err := c.Submit(context.Background(), "hello"); !errors.Is(err, ErrNotComposing) {
		t.Fatalf("expected ErrNotComposing, got %v", err)
	}
}

func TestEscapeCancelsWithoutResidue(t *testing.T) {
	c := NewController(rbac.RoleCommenter, &fakeMutator{})
	c.ClickAnchor("c1")
	c.SelectionChange(validSelection("quoted text"))
	if _, err := c.ConfirmSelection(); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	if !c.KeyDown(KeyEscape) {
		t.Fatal("escape should be handled while composing")
	}
	state := c.Presentation()
	if state.Mode != ModeIdle || state.Pending != nil || state.Selection != "" {
		t.Fatalf("expected a clean idle state, got %+v", state)
	}
	if state.FocusedID != "c1" {
		t.Fatalf("cancelling a composition should keep the focus, got %q", state.FocusedID)
	}

	if !c.KeyDown(KeyEscape) {
		t.Fatal("escape should clear the focus")
	}
	if c.KeyDown(KeyEscape) {
		t.Fatal("escape with nothing to do should not be consumed")
	}
	if c.KeyDown("Enter") {
		t.Fatal("other keys are not handled")
	}
}

func TestSubscribeNotifiesOnChange(t *testing.T) {
	c := NewController(rbac.RoleViewer, nil)
	var seen []Presentation
	unsubscribe := c.Subscribe(func(p Presentation) { seen = append(seen, p) })

	c.PointerEnter("c1")
	c.PointerEnter("c1")
	c.ClickAnchor("c1")
	if len(seen) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(seen))
	}
	if seen[1].HoveredID != "c1" || seen[1].FocusedID != "c1" {
		t.Fatalf("unexpected state: %+v", seen[1])
	}

	unsubscribe()
	c.ClearFocus()
	if len(seen) != 2 {
		t.Fatal("unsubscribed callback was called")
	}
}

func TestClassesFor(t *testing.T) {
	p := Presentation{
		HoveredID: "c1",
		FocusedID: "c1",
		Pending:   &PendingComment{CommentID: "c2"},
	}
	if got := p.ClassesFor("c1"); !reflect.DeepEqual(got, []string{ClassHover, ClassFocused}) {
		t.Fatalf("c1 classes = %v", got)
	}
	if got := p.ClassesFor("c2"); !reflect.DeepEqual(got, []string{ClassPending}) {
		t.Fatalf("c2 classes = %v", got)
	}
	if got := p.ClassesFor("c3"); got != nil {
		t.Fatalf("c3 classes = %v", got)
	}
	if got := p.ActiveID(); got != "c2" {
		t.Fatalf("pending comment should be active over the focused one, got %q", got)
	}
	p.Pending = nil
	if got := p.ActiveID(); got != "c1" {
		t.Fatalf("focused comment should be active without a pending one, got %q", got)
	}
}

func TestRestore(t *testing.T) {
	c := NewController(rbac.RoleEditor, nil)
	pending := &PendingComment{NoteID: "pending_cmt_1", CommentID: "cmt_1", AnchorText: "quote"}
	c.Restore(Presentation{Mode: ModeComposing, FocusedID: "c9", Pending: pending})
	pending.CommentID = "changed"

	state := c.Presentation()
	if state.Mode != ModeComposing || state.FocusedID != "c9" || state.Pending.CommentID != "cmt_1" {
		t.Fatalf("unexpected restored state: %+v", state)
	}
	c.Cancel()
	if state := c.Presentation(); state.Pending != nil {
		t.Fatalf("restored pending comment should cancel cleanly, got %+v", state)
	}
}
