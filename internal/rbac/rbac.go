// Package rbac maps interview workspace roles to the note and transcript
// actions they may perform.
package rbac

import "strings"

type Role string
type Action string

const (
	RoleViewer    Role = "viewer"
	RoleCommenter Role = "commenter"
	RoleEditor    Role = "editor"
	RoleAdmin     Role = "admin"
)

const (
	ActionRead     Action = "read"
	ActionExport   Action = "export"
	ActionComment  Action = "comment"
	ActionWrite    Action = "write"
	ActionModerate Action = "moderate"
	ActionAdmin    Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleEditor:
		return action == ActionRead || action == ActionExport || action == ActionComment ||
			action == ActionWrite || action == ActionModerate
	case RoleCommenter:
		return action == ActionRead || action == ActionExport || action == ActionComment
	case RoleViewer:
		return action == ActionRead || action == ActionExport
	default:
		return false
	}
}

// CanModifyNote reports whether actor may edit or delete a note written by
// author. Commenters manage their own notes; moderators manage everyone's.
func CanModifyNote(role Role, actor, author string) bool {
	if Can(role, ActionModerate) {
		return true
	}
	actor = strings.TrimSpace(actor)
	return actor != "" && actor == strings.TrimSpace(author) && Can(role, ActionComment)
}

// Normalize maps untrusted input to a known role, defaulting to viewer.
func Normalize(role string) Role {
	switch r := Role(strings.ToLower(strings.TrimSpace(role))); r {
	case RoleViewer, RoleCommenter, RoleEditor, RoleAdmin:
		return r
	default:
		return RoleViewer
	}
}
