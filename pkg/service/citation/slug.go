package citation

import (
	"strconv"
	"strings"
	"unicode"
)

// Slugger derives URL/anchor-safe heading ids the same way the document
// viewer does. Slug identity with the viewer is load-bearing: a citation's
// heading id must resolve to the anchor the rendered document uses, so any
// change here has to stay byte-compatible with the viewer's slugger.
//
// Duplicate base slugs get -1, -2, ... suffixes in document order, which
// makes the ids order-sensitive: the slugger is stateful and must see the
// headings in the order they appear.
type Slugger struct {
	seen map[string]int
}

// NewSlugger returns a slugger with no remembered headings.
func NewSlugger() *Slugger {
	return &Slugger{seen: make(map[string]int)}
}

// Slug returns the anchor id for the next occurrence of title.
func (s *Slugger) Slug(title string) string {
	base := slugBase(title)
	n := s.seen[base]
	s.seen[base] = n + 1
	if n == 0 {
		return base
	}
	return base + "-" + strconv.Itoa(n)
}

// slugBase lowercases, maps whitespace to hyphens, strips every rune outside
// the Unicode Letter/Number/Mark sets, collapses repeated hyphens and falls
// back to "section" when nothing survives.
func slugBase(title string) string {
	var sb strings.Builder
	lastHyphen := true // suppress leading hyphens
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		switch {
		case unicode.IsSpace(r) || r == '-' || r == '_':
			if !lastHyphen {
				sb.WriteByte('-')
				lastHyphen = true
			}
		case unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsMark(r):
			sb.WriteRune(r)
			lastHyphen = false
		}
		// Everything else (punctuation, symbols) is dropped.
	}
	out := strings.TrimRight(sb.String(), "-")
	if out == "" {
		return "section"
	}
	return out
}
