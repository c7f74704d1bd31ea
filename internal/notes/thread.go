package notes

import "sort"

// Thread is a root note and its replies, oldest first.
type Thread struct {
	Root    Note   `json:"root"`
	Replies []Note `json:"replies"`
}

// Partition splits notes into anchored and general threads, each sorted by
// creation order. Replies nest under the root of their chain so threads stay
// one level deep; a reply whose chain never reaches a root becomes a root of
// its own so that no note is dropped.
func Partition(items []Note) (anchored []Thread, general []Thread) {
	sorted := SortByCreation(items)

	byID := make(map[string]Note, len(sorted))
	for _, note := range sorted {
		byID[note.ID] = note
	}

	index := make(map[string]int)
	var threads []Thread
	var replies []Note
	rootOf := make(map[string]string)
	for _, note := range sorted {
		if root, ok := chainRoot(note, byID); ok {
			rootOf[note.ID] = root
			replies = append(replies, note)
			continue
		}
		index[note.ID] = len(threads)
		threads = append(threads, Thread{Root: note, Replies: []Note{}})
	}
	for _, reply := range replies {
		i := index[rootOf[reply.ID]]
		threads[i].Replies = append(threads[i].Replies, reply)
	}

	anchored = []Thread{}
	general = []Thread{}
	for _, thread := range threads {
		if thread.Root.IsAnchored() {
			anchored = append(anchored, thread)
		} else {
			general = append(general, thread)
		}
	}
	return anchored, general
}

// chainRoot follows parent links from a reply to the first non-reply note.
func chainRoot(note Note, byID map[string]Note) (string, bool) {
	if !note.IsReply() {
		return "", false
	}
	seen := map[string]struct{}{note.ID: {}}
	current := note
	for current.IsReply() {
		parent, ok := byID[current.ParentID]
		if !ok {
			return "", false
		}
		if _, loop := seen[parent.ID]; loop {
			return "", false
		}
		seen[parent.ID] = struct{}{}
		current = parent
	}
	return current.ID, true
}

// SortByCreation returns a copy of items ordered by CreatedAt, ties broken by
// id.
func SortByCreation(items []Note) []Note {
	sorted := make([]Note, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}

// ByAnchorKey maps anchor keys to the anchored root note that owns them. When
// several roots share a comment id the oldest wins.
func ByAnchorKey(threads []Thread) map[string]Note {
	owners := make(map[string]Note, len(threads))
	for _, thread := range threads {
		key := thread.Root.AnchorKey()
		if _, ok := owners[key]; ok {
			continue
		}
		owners[key] = thread.Root
	}
	return owners
}

// Roots returns the root note of every thread.
func Roots(threads []Thread) []Note {
	roots := make([]Note, 0, len(threads))
	for _, thread := range threads {
		roots = append(roots, thread.Root)
	}
	return roots
}
