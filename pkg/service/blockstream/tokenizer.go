// Package blockstream converts a raw incremental model output stream into
// structured block events suitable for incremental rendering.
//
// The tokenizer buffers partial lines and only classifies a line once it is
// complete, so token-level noise can never flicker a line between block
// kinds. It is total over any input: there are no error states.
package blockstream

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Token event types
const (
	TokenStart = "start"
	TokenDelta = "delta"
	TokenEnd   = "end"
)

// Block kinds
const (
	KindParagraph = "paragraph"
	KindHeading   = "heading"
	KindListItem  = "listItem"
	KindCodeBlock = "codeBlock"
)

// BlockToken describes one step of incremental rendering. Tokens live only
// for the duration of one tokenizer pass; they are never persisted.
type BlockToken struct {
	Type     string `json:"type"` // start, delta, end
	BlockID  string `json:"block_id"`
	Kind     string `json:"kind"`
	Content  string `json:"content,omitempty"`  // delta events only
	Language string `json:"language,omitempty"` // codeBlock start only
}

var (
	headingRe = regexp.MustCompile(`^#{1,6}\s+\S`)
	bulletRe  = regexp.MustCompile(`^\s{0,3}[-*+]\s+\S`)
	orderedRe = regexp.MustCompile(`^\s{0,3}\d{1,9}[.)]\s+\S`)
)

// Tokenizer turns an unbounded sequence of text fragments into block events.
// Not safe for concurrent use; each stream owns one Tokenizer.
type Tokenizer struct {
	pending strings.Builder // buffered partial line

	openID    string // id of the currently open block, "" if none
	openKind  string // paragraph or codeBlock; single-line kinds never stay open
	paraLines int    // delta count of the open paragraph
}

// NewTokenizer returns a tokenizer with no open block.
func NewTokenizer() *Tokenizer {
	return &Tokenizer{}
}

// Push consumes the next fragment and returns the block events produced by
// every line the fragment completed.
func (t *Tokenizer) Push(delta string) []BlockToken {
	if delta == "" {
		return nil
	}
	t.pending.WriteString(delta)

	buf := t.pending.String()
	idx := strings.LastIndexByte(buf, '\n')
	if idx < 0 {
		return nil
	}
	complete := buf[:idx]
	t.pending.Reset()
	t.pending.WriteString(buf[idx+1:])

	var out []BlockToken
	for _, line := range strings.Split(complete, "\n") {
		out = append(out, t.processLine(line)...)
	}
	return out
}

// Flush terminates the stream: a trailing partial line is classified as if
// newline-terminated, and any still-open block is closed. The upstream model
// stream can end mid-paragraph or inside an unterminated code fence.
func (t *Tokenizer) Flush() []BlockToken {
	var out []BlockToken
	if t.pending.Len() > 0 {
		line := t.pending.String()
		t.pending.Reset()
		out = append(out, t.processLine(line)...)
	}
	out = append(out, t.closeOpen()...)
	return out
}

func (t *Tokenizer) processLine(line string) []BlockToken {
	line = strings.TrimSuffix(line, "\r")

	// Rule 1: an open fence swallows everything until the closing fence.
	if t.openKind == KindCodeBlock {
		if isClosingFence(line) {
			return t.closeOpen()
		}
		return []BlockToken{{Type: TokenDelta, BlockID: t.openID, Kind: KindCodeBlock, Content: line + "\n"}}
	}

	trimmed := strings.TrimSpace(line)

	// Rule 2: a blank line closes any open paragraph.
	if trimmed == "" {
		return t.closeOpen()
	}

	// Rule 3: heading and list lines are complete single-line blocks.
	if kind := singleLineKind(line); kind != "" {
		out := t.closeOpen()
		id := uuid.New().String()
		out = append(out,
			BlockToken{Type: TokenStart, BlockID: id, Kind: kind},
			BlockToken{Type: TokenDelta, BlockID: id, Kind: kind, Content: line},
			BlockToken{Type: TokenEnd, BlockID: id, Kind: kind},
		)
		return out
	}

	// Rule 4: an opening fence starts a code block.
	if lang, ok := openingFence(trimmed); ok {
		out := t.closeOpen()
		t.openID = uuid.New().String()
		t.openKind = KindCodeBlock
		out = append(out, BlockToken{Type: TokenStart, BlockID: t.openID, Kind: KindCodeBlock, Language: lang})
		return out
	}

	// Rule 5: anything else extends the open paragraph, opening one if needed.
	var out []BlockToken
	if t.openKind != KindParagraph {
		t.openID = uuid.New().String()
		t.openKind = KindParagraph
		t.paraLines = 0
		out = append(out, BlockToken{Type: TokenStart, BlockID: t.openID, Kind: KindParagraph})
	}
	content := line
	if t.paraLines > 0 {
		content = "\n" + line
	}
	t.paraLines++
	out = append(out, BlockToken{Type: TokenDelta, BlockID: t.openID, Kind: KindParagraph, Content: content})
	return out
}

func (t *Tokenizer) closeOpen() []BlockToken {
	if t.openKind == "" {
		return nil
	}
	tok := BlockToken{Type: TokenEnd, BlockID: t.openID, Kind: t.openKind}
	t.openID = ""
	t.openKind = ""
	t.paraLines = 0
	return []BlockToken{tok}
}

func singleLineKind(line string) string {
	switch {
	case headingRe.MatchString(line):
		return KindHeading
	case bulletRe.MatchString(line):
		return KindListItem
	case orderedRe.MatchString(line):
		return KindListItem
	default:
		return ""
	}
}

func openingFence(trimmed string) (lang string, ok bool) {
	if !strings.HasPrefix(trimmed, "```") {
		return "", false
	}
	lang = strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
	// A fence line with trailing backticks is not an opening fence.
	if strings.Contains(lang, "`") {
		return "", false
	}
	return lang, true
}

func isClosingFence(line string) bool {
	trimmed := strings.TrimSpace(line)
	return trimmed == "```"
}
