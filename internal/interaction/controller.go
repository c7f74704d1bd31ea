// Package interaction is the hover, focus and selection state machine that
// links transcript highlights with their sidebar cards.
package interaction

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/notes"
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/rbac"
)

// MinSelectionLength is the shortest trimmed selection that can become a
// comment.
const MinSelectionLength = 3

// KeyEscape cancels a selection or composition.
const KeyEscape = "Escape"

var (
	ErrNoSelection  = errors.New("no comment-able selection")
	ErrForbidden    = errors.New("role may not comment")
	ErrNotComposing = errors.New("no pending comment")
)

// Selection describes the current text selection in the page.
type Selection struct {
	Text         string
	Collapsed    bool
	InTranscript bool
}

// Scroller brings a transcript highlight into view.
type Scroller interface {
	ScrollIntoView(commentID string)
}

// Option configures a Controller.
type Option func(*Controller)

// WithScroller sets the scroller used when a card is clicked.
func WithScroller(s Scroller) Option {
	return func(c *Controller) { c.scroller = s }
}

// WithLogger sets the controller logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Controller owns the interaction state for one annotation view. All methods
// are safe for concurrent use; subscribers run outside the lock.
type Controller struct {
	role     rbac.Role
	mutator  notes.Mutator
	scroller Scroller
	logger   *slog.Logger

	mu          sync.Mutex
	state       Presentation
	subscribers map[int]func(Presentation)
	nextSub     int
}

// NewController returns an idle controller acting with role. mutator may be
// nil for read-only views, in which case Submit fails.
func NewController(role rbac.Role, mutator notes.Mutator, opts ...Option) *Controller {
	c := &Controller{
		role:        role,
		mutator:     mutator,
		logger:      slog.Default(),
		subscribers: make(map[int]func(Presentation)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Presentation returns a copy of the current state.
func (c *Controller) Presentation() Presentation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Subscribe registers fn to receive every state change. The returned func
// removes the subscription.
func (c *Controller) Subscribe(fn func(Presentation)) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subscribers[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.subscribers, id)
		c.mu.Unlock()
	}
}

// update applies change under the lock and notifies subscribers when the
// state actually changed.
func (c *Controller) update(change func(*Presentation)) {
	c.mu.Lock()
	before := c.state.clone()
	change(&c.state)
	after := c.state.clone()
	if before.equal(after) {
		c.mu.Unlock()
		return
	}
	subs := make([]func(Presentation), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		subs = append(subs, fn)
	}
	c.mu.Unlock()
	for _, fn := range subs {
		fn(after.clone())
	}
}

// PointerEnter marks commentID as hovered.
func (c *Controller) PointerEnter(commentID string) {
	commentID = strings.TrimSpace(commentID)
	if commentID == "" {
		return
	}
	c.update(func(s *Presentation) { s.HoveredID = commentID })
}

// PointerLeave handles the pointer leaving commentID's element. next is the
// comment id of the element the pointer moved into, or "" when it is not a
// comment element; moving between siblings keeps a hover.
func (c *Controller) PointerLeave(commentID, next string) {
	next = strings.TrimSpace(next)
	c.update(func(s *Presentation) {
		if next != "" {
			s.HoveredID = next
			return
		}
		if s.HoveredID == commentID {
			s.HoveredID = ""
		}
	})
}

// ClickAnchor focuses a comment from its transcript highlight. The transcript
// is not scrolled.
func (c *Controller) ClickAnchor(commentID string) {
	c.focus(commentID)
}

// ClickCard focuses a comment from its sidebar card and scrolls the
// transcript highlight into view.
func (c *Controller) ClickCard(commentID string) {
	if !c.focus(commentID) {
		return
	}
	if c.scroller != nil {
		c.scroller.ScrollIntoView(strings.TrimSpace(commentID))
	}
}

func (c *Controller) focus(commentID string) bool {
	commentID = strings.TrimSpace(commentID)
	if commentID == "" {
		return false
	}
	c.update(func(s *Presentation) { s.FocusedID = commentID })
	return true
}

// ClearFocus removes the focus, which also removes the connector.
func (c *Controller) ClearFocus() {
	c.update(func(s *Presentation) { s.FocusedID = "" })
}

// SelectionChange reports a new text selection. A long enough selection in
// the transcript moves an idle controller to selecting; anything else drops
// back to idle. While composing the selection is recorded but the pending
// comment is kept.
func (c *Controller) SelectionChange(sel Selection) {
	text := strings.TrimSpace(sel.Text)
	valid := !sel.Collapsed && sel.InTranscript && utf8.RuneCountInString(text) >= MinSelectionLength
	canComment := rbac.Can(c.role, rbac.ActionComment)
	c.update(func(s *Presentation) {
		if !valid {
			s.Selection = ""
			s.CanAddComment = false
			if s.Mode == ModeSelecting {
				s.Mode = ModeIdle
			}
			return
		}
		s.Selection = sel.Text
		s.CanAddComment = canComment
		if s.Mode != ModeComposing {
			s.Mode = ModeSelecting
		}
	})
}

// ConfirmSelection turns the current selection into a pending comment with a
// fresh comment id. A previous pending comment is replaced.
func (c *Controller) ConfirmSelection() (PendingComment, error) {
	if !rbac.Can(c.role, rbac.ActionComment) {
		return PendingComment{}, ErrForbidden
	}
	var (
		pending PendingComment
		err     error
	)
	c.update(func(s *Presentation) {
		if s.Selection == "" {
			err = ErrNoSelection
			return
		}
		commentID := notes.NewCommentID()
		pending = PendingComment{
			NoteID:       "pending_" + commentID,
			CommentID:    commentID,
			AnchorText:   notes.AnchorTextFromSelection(s.Selection),
			SelectedText: s.Selection,
		}
		s.Mode = ModeComposing
		s.Selection = ""
		s.CanAddComment = false
		s.Pending = &pending
	})
	if err != nil {
		return PendingComment{}, err
	}
	c.logger.Debug("comment composition started", "comment_id", pending.CommentID)
	return pending, nil
}

// Submit creates the note for the pending comment. On success the
// controller returns to idle; on failure the pending comment is kept so the
// caller can retry.
func (c *Controller) Submit(ctx context.Context, content string) (notes.Note, error) {
	c.mu.Lock()
	var pending PendingComment
	composing := c.state.Mode == ModeComposing && c.state.Pending != nil
	if composing {
		pending = *c.state.Pending
	}
	c.mu.Unlock()
	if !composing {
		return notes.Note{}, ErrNotComposing
	}
	if c.mutator == nil {
		return notes.Note{}, errors.New("note mutator is not configured")
	}

	intent := notes.CreateNoteIntent{
		Content:    content,
		CommentID:  pending.CommentID,
		AnchorText: pending.AnchorText,
	}
	if err := intent.Validate(); err != nil {
		return notes.Note{}, err
	}
	note, err := c.mutator.CreateNote(ctx, intent)
	if err != nil {
		c.logger.Warn("create note failed", "comment_id", pending.CommentID, "error", err)
		return notes.Note{}, err
	}

	c.update(func(s *Presentation) {
		if s.Pending == nil || s.Pending.CommentID != pending.CommentID {
			return
		}
		s.Pending = nil
		s.Mode = ModeIdle
	})
	return note, nil
}

// Cancel discards any selection and pending comment.
func (c *Controller) Cancel() {
	c.update(func(s *Presentation) {
		s.Pending = nil
		s.Selection = ""
		s.CanAddComment = false
		s.Mode = ModeIdle
	})
}

// KeyDown handles keyboard shortcuts and reports whether key was consumed.
// Escape cancels a selection or composition, or clears the focus when there
// is neither.
func (c *Controller) KeyDown(key string) bool {
	if key != KeyEscape {
		return false
	}
	state := c.Presentation()
	switch {
	case state.Mode != ModeIdle:
		c.Cancel()
	case state.FocusedID != "":
		c.ClearFocus()
	default:
		return false
	}
	return true
}

// Restore replaces the whole state, for views rebuilt from a client
// snapshot. Subscribers are notified if anything changed.
func (c *Controller) Restore(state Presentation) {
	state = state.clone()
	c.update(func(s *Presentation) { *s = state })
}
