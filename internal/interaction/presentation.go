package interaction

// Presentation classes applied to highlights and cards.
const (
	ClassHover   = "comment-highlight--hover"
	ClassFocused = "comment-highlight--active"
	ClassPending = "comment-highlight--pending"
)

// Mode is the selection/composition part of the controller state. Hover and
// focus are tracked independently of it.
type Mode int

const (
	ModeIdle Mode = iota
	ModeSelecting
	ModeComposing
)

func (m Mode) String() string {
	switch m {
	case ModeSelecting:
		return "selecting"
	case ModeComposing:
		return "composing"
	default:
		return "idle"
	}
}

// MarshalText lets Mode appear as a string in JSON.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// PendingComment is a comment being composed. It has a comment id and an
// anchor before any note exists for it.
type PendingComment struct {
	NoteID       string `json:"noteId"`
	CommentID    string `json:"commentId"`
	AnchorText   string `json:"anchorText"`
	SelectedText string `json:"selectedText"`
}

// Presentation is everything the view needs to style highlights and cards.
// It is a value; the controller hands out copies.
type Presentation struct {
	Mode          Mode            `json:"mode"`
	HoveredID     string          `json:"hoveredId,omitempty"`
	FocusedID     string          `json:"focusedId,omitempty"`
	Selection     string          `json:"selection,omitempty"`
	CanAddComment bool            `json:"canAddComment"`
	Pending       *PendingComment `json:"pending,omitempty"`
}

// ClassesFor returns the presentation classes for the highlight and card of
// commentID.
func (p Presentation) ClassesFor(commentID string) []string {
	if commentID == "" {
		return nil
	}
	var classes []string
	if commentID == p.HoveredID {
		classes = append(classes, ClassHover)
	}
	if commentID == p.FocusedID {
		classes = append(classes, ClassFocused)
	}
	if p.Pending != nil && commentID == p.Pending.CommentID {
		classes = append(classes, ClassPending)
	}
	return classes
}

// ActiveID is the comment whose connector is drawn: the pending comment
// while composing, otherwise the focused one.
func (p Presentation) ActiveID() string {
	if p.Pending != nil {
		return p.Pending.CommentID
	}
	return p.FocusedID
}

func (p Presentation) clone() Presentation {
	if p.Pending != nil {
		pending := *p.Pending
		p.Pending = &pending
	}
	return p
}

func (p Presentation) equal(other Presentation) bool {
	if p.Mode != other.Mode || p.HoveredID != other.HoveredID || p.FocusedID != other.FocusedID ||
		p.Selection != other.Selection || p.CanAddComment != other.CanAddComment {
		return false
	}
	if (p.Pending == nil) != (other.Pending == nil) {
		return false
	}
	return p.Pending == nil || *p.Pending == *other.Pending
}
