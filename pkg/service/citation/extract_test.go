package citation

import (
	"strings"
	"testing"
)

const sampleDoc = `# Overview

The payment gateway handles checkout, refund processing and settlement
reporting for all storefront orders.

# Overview

Retry behavior: failed webhook deliveries are retried with exponential
backoff for up to 24 hours before the delivery is abandoned.

# Security

All webhook payloads are signed with HMAC-SHA256 and the signature is
verified before any processing happens.
`

func TestExtract_DuplicateHeadingsGetDistinctAnchors(t *testing.T) {
	answer := "Failed webhook deliveries are retried with exponential backoff."

	got := Extract(sampleDoc, answer, 5)
	if len(got) == 0 {
		t.Fatalf("expected at least one citation")
	}
	if got[0].HeadingID != "overview-1" {
		t.Fatalf("top citation heading id = %q, want %q", got[0].HeadingID, "overview-1")
	}
	if got[0].HeadingTitle != "Overview" {
		t.Fatalf("heading title = %q, want %q", got[0].HeadingTitle, "Overview")
	}
	if got[0].Rank != 1 {
		t.Fatalf("rank = %d, want 1", got[0].Rank)
	}
}

func TestExtract_EmptyInputs(t *testing.T) {
	if got := Extract("", "answer", 5); got != nil {
		t.Fatalf("empty document: got %d citations, want none", len(got))
	}
	if got := Extract(sampleDoc, "", 5); got != nil {
		t.Fatalf("empty answer: got %d citations, want none", len(got))
	}
	if got := Extract(sampleDoc, "!!! ... ???", 5); got != nil {
		t.Fatalf("punctuation-only answer: got %d citations, want none", len(got))
	}
}

func TestExtract_ScoresSignatureSection(t *testing.T) {
	answer := "The HMAC signature on the webhook payload is verified first."

	got := Extract(sampleDoc, answer, 3)
	if len(got) == 0 {
		t.Fatalf("expected citations")
	}
	if got[0].HeadingID != "security" {
		t.Fatalf("top heading id = %q, want %q", got[0].HeadingID, "security")
	}
	if !strings.Contains(strings.ToLower(got[0].Excerpt), "hmac") {
		t.Fatalf("excerpt %q does not contain the keyword", got[0].Excerpt)
	}
}

func TestExtract_RespectsMaxCitations(t *testing.T) {
	answer := "webhook checkout refund settlement signature retried backoff"

	got := Extract(sampleDoc, answer, 1)
	if len(got) != 1 {
		t.Fatalf("got %d citations, want 1", len(got))
	}

	all := Extract(sampleDoc, answer, 10)
	for i, c := range all {
		if c.Rank != i+1 {
			t.Fatalf("citation %d has rank %d", i, c.Rank)
		}
		if i > 0 && all[i-1].Score < c.Score {
			t.Fatalf("citations not ordered by score: %f before %f", all[i-1].Score, c.Score)
		}
	}
}

func TestExtract_LongParagraphGetsBoundedExcerpt(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("# Scaling\n\n")
	sb.WriteString(strings.Repeat("The ingestion pipeline batches events before flushing. ", 20))
	sb.WriteString("Sharding keys are derived from the tenant identifier. ")
	sb.WriteString(strings.Repeat("Afterwards compaction merges the segment files on disk. ", 20))

	got := Extract(sb.String(), "sharding keys come from the tenant identifier", 1)
	if len(got) != 1 {
		t.Fatalf("got %d citations, want 1", len(got))
	}
	excerpt := []rune(got[0].Excerpt)
	if len(excerpt) > excerptLen+2 {
		t.Fatalf("excerpt length %d exceeds bound", len(excerpt))
	}
	if !strings.Contains(strings.ToLower(got[0].Excerpt), "sharding") {
		t.Fatalf("excerpt %q not centered on keyword hit", got[0].Excerpt)
	}
	if !strings.HasPrefix(got[0].Excerpt, "…") || !strings.HasSuffix(got[0].Excerpt, "…") {
		t.Fatalf("expected ellipsis on both truncated edges: %q", got[0].Excerpt)
	}
}

func TestExtract_DeduplicatesIdenticalExcerpts(t *testing.T) {
	doc := "# Findings\n\nLatency regressions come from lock contention in the scheduler.\n\nLatency regressions come from lock contention in the scheduler.\n"

	got := Extract(doc, "lock contention causes the latency regressions", 5)
	if len(got) != 1 {
		t.Fatalf("got %d citations, want 1 after dedupe", len(got))
	}
}

func TestExtract_SkipsCodeFences(t *testing.T) {
	doc := "# Setup\n\n```bash\ninstall the scheduler binary now\n```\n\nshort line\n"

	got := Extract(doc, "install the scheduler binary now", 5)
	if len(got) != 0 {
		t.Fatalf("fenced code must not be citable, got %d citations", len(got))
	}
}
