package render

import (
	"strings"

	"golang.org/x/net/html"
)

// Decorate returns markup with extra classes on each highlight span. classes
// is called once per span and may return nil to leave it untouched. The input
// is not modified, so the same rendered transcript can be decorated for any
// number of presentation states.
func Decorate(markup string, classes func(Highlight) []string) string {
	if classes == nil {
		return markup
	}
	z := html.NewTokenizer(strings.NewReader(markup))
	var b strings.Builder
	b.Grow(len(markup))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return b.String()
		}
		raw := string(z.Raw())
		if tt != html.StartTagToken {
			b.WriteString(raw)
			continue
		}
		tok := z.Token()
		h, ok := ParseHighlight(tok)
		if !ok {
			b.WriteString(raw)
			continue
		}
		extra := classes(h)
		if len(extra) == 0 {
			b.WriteString(raw)
			continue
		}
		h.Classes = append(h.Classes, extra...)
		b.WriteString(h.OpenTag())
	}
}
