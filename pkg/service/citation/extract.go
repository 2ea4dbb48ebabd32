// Package citation scores source-document paragraphs against an assembled
// answer and returns ranked, traceable excerpts. It is pure and side-effect
// free: an empty result is a valid outcome, never an error.
package citation

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/prdagent/prdagent/pkg/models"
)

const (
	maxKeywords      = 40
	minCJKRun        = 2
	minLatinRun      = 3
	maxKeywordWeight = 8
	minParagraphLen  = 18
	excerptLen       = 240
	headingHitBonus  = 5.0
	softLenLimit     = 400
	hardLenLimit     = 900
)

var headingLineRe = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)

// Extract returns up to maxCitations ranked citations linking answerText
// back to documentContent. Heading ids are derived from the raw markdown
// with the same slugger the document viewer uses.
func Extract(documentContent, answerText string, maxCitations int) []models.Citation {
	if maxCitations <= 0 || strings.TrimSpace(documentContent) == "" || strings.TrimSpace(answerText) == "" {
		return nil
	}

	keywords := extractKeywords(answerText)
	if len(keywords) == 0 {
		return nil
	}

	paragraphs := splitParagraphs(documentContent)
	if len(paragraphs) == 0 {
		return nil
	}

	type scored struct {
		para  paragraph
		score float64
	}
	candidates := make([]scored, 0, len(paragraphs))
	for _, p := range paragraphs {
		if utf8.RuneCountInString(p.clean) < minParagraphLen {
			continue
		}
		s := scoreParagraph(p, keywords)
		if s <= 0 {
			continue
		}
		candidates = append(candidates, scored{para: p, score: s})
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	type dedupeKey struct {
		headingID string
		excerpt   string
	}
	taken := make(map[dedupeKey]bool)
	out := make([]models.Citation, 0, maxCitations)
	for _, c := range candidates {
		excerpt := buildExcerpt(c.para.clean, keywords)
		key := dedupeKey{c.para.headingID, normalizeExcerpt(excerpt)}
		if taken[key] {
			continue
		}
		taken[key] = true
		out = append(out, models.Citation{
			HeadingTitle: c.para.headingTitle,
			HeadingID:    c.para.headingID,
			Excerpt:      excerpt,
			Score:        c.score,
			Rank:         len(out) + 1,
		})
		if len(out) >= maxCitations {
			break
		}
	}
	return out
}

// ---- document segmentation ----

type paragraph struct {
	headingTitle string
	headingID    string
	clean        string
}

// splitParagraphs walks the raw markdown, tracking the current heading and
// its slug, and emits blank-line separated paragraphs scoped to it.
func splitParagraphs(content string) []paragraph {
	slugger := NewSlugger()
	var (
		out      []paragraph
		title    string
		id       string
		current  []string
		inFence  bool
	)

	flush := func() {
		if len(current) == 0 {
			return
		}
		text := strings.Join(current, "\n")
		current = nil
		clean := cleanText(text)
		if clean == "" {
			return
		}
		out = append(out, paragraph{headingTitle: title, headingID: id, clean: clean})
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			flush()
			continue
		}
		if inFence {
			// Fenced code is not citable prose.
			continue
		}

		if m := headingLineRe.FindStringSubmatch(trimmed); m != nil {
			flush()
			title = strings.TrimSpace(m[2])
			id = slugger.Slug(title)
			continue
		}

		if trimmed == "" {
			flush()
			continue
		}
		current = append(current, trimmed)
	}
	flush()
	return out
}

// cleanText strips lightweight markdown syntax and collapses whitespace so
// scoring and excerpting see prose, not markup.
func cleanText(text string) string {
	var sb strings.Builder
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "#>*- \t")
		line = strings.NewReplacer("**", "", "`", "", "*", "").Replace(line)
		if line == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(line)
	}
	return sb.String()
}

// ---- keyword extraction ----

type keyword struct {
	text   string
	weight float64
}

// extractKeywords pulls contiguous CJK runs (length >= 2) and Latin/digit
// runs (length >= 3) out of the answer, scores them frequency x min(len, 8)
// and keeps the top 40.
func extractKeywords(answer string) []keyword {
	counts := make(map[string]int)

	var run []rune
	var runCJK bool
	flushRun := func() {
		if len(run) == 0 {
			return
		}
		minLen := minLatinRun
		if runCJK {
			minLen = minCJKRun
		}
		if len(run) >= minLen {
			counts[strings.ToLower(string(run))]++
		}
		run = run[:0]
	}

	for _, r := range answer {
		switch {
		case isCJK(r):
			if !runCJK && len(run) > 0 {
				flushRun()
			}
			runCJK = true
			run = append(run, r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if runCJK && len(run) > 0 {
				flushRun()
			}
			runCJK = false
			run = append(run, r)
		default:
			flushRun()
		}
	}
	flushRun()

	kws := make([]keyword, 0, len(counts))
	for text, freq := range counts {
		length := utf8.RuneCountInString(text)
		w := length
		if w > maxKeywordWeight {
			w = maxKeywordWeight
		}
		kws = append(kws, keyword{text: text, weight: float64(freq * w)})
	}
	sort.SliceStable(kws, func(i, j int) bool {
		if kws[i].weight != kws[j].weight {
			return kws[i].weight > kws[j].weight
		}
		return kws[i].text < kws[j].text
	})
	if len(kws) > maxKeywords {
		kws = kws[:maxKeywords]
	}
	return kws
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}

// ---- scoring ----

// scoreParagraph sums keyword-length weights for body hits, adds a flat
// bonus per keyword found in the heading title and applies a mild length
// penalty to very long paragraphs.
func scoreParagraph(p paragraph, keywords []keyword) float64 {
	body := strings.ToLower(p.clean)
	heading := strings.ToLower(p.headingTitle)

	var score float64
	for _, kw := range keywords {
		if occ := strings.Count(body, kw.text); occ > 0 {
			if occ > 5 {
				occ = 5
			}
			length := utf8.RuneCountInString(kw.text)
			if length > maxKeywordWeight {
				length = maxKeywordWeight
			}
			score += float64(occ * length)
		}
		if heading != "" && strings.Contains(heading, kw.text) {
			score += headingHitBonus
		}
	}
	if score <= 0 {
		return 0
	}

	runeLen := utf8.RuneCountInString(p.clean)
	if runeLen > hardLenLimit {
		score *= 0.7
	} else if runeLen > softLenLimit {
		score *= 0.85
	}
	return score
}

// ---- excerpting ----

// buildExcerpt returns a window of about excerptLen runes centered on the
// earliest hit of the highest-weight keyword. Ellipsis marks a truncated
// edge. If no keyword localizes, the paragraph head is returned.
func buildExcerpt(clean string, keywords []keyword) string {
	runes := []rune(clean)
	if len(runes) <= excerptLen {
		return clean
	}

	lower := strings.ToLower(clean)
	hit := -1
	for _, kw := range keywords { // keywords are sorted by weight
		if idx := strings.Index(lower, kw.text); idx >= 0 {
			hit = utf8.RuneCountInString(lower[:idx])
			break
		}
	}
	if hit < 0 {
		return string(runes[:excerptLen]) + "…"
	}

	start := hit - excerptLen/2
	if start < 0 {
		start = 0
	}
	end := start + excerptLen
	if end > len(runes) {
		end = len(runes)
		start = end - excerptLen
		if start < 0 {
			start = 0
		}
	}

	excerpt := string(runes[start:end])
	if start > 0 {
		excerpt = "…" + excerpt
	}
	if end < len(runes) {
		excerpt += "…"
	}
	return excerpt
}

func normalizeExcerpt(excerpt string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.Trim(excerpt, "…"))), " ")
}
