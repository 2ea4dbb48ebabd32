package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/prdagent/prdagent/pkg/cache"
	"github.com/prdagent/prdagent/pkg/config"
	"github.com/prdagent/prdagent/pkg/db"
	"github.com/prdagent/prdagent/pkg/models"
)

func seqMsg(seq int64, content string) models.Message {
	return models.Message{Content: content, SeqNumber: &seq}
}

func TestPlanCompressionUnderThreshold(t *testing.T) {
	msgs := []models.Message{
		seqMsg(1, strings.Repeat("a", 100)),
		seqMsg(2, strings.Repeat("b", 100)),
		seqMsg(3, strings.Repeat("c", 100)),
	}
	plan := PlanCompression(msgs, 1000, 200, 2)
	if plan.ShouldCompress {
		t.Fatal("expected no compression under threshold")
	}
	if len(plan.ToCompress) != 0 {
		t.Fatalf("expected empty toCompress, got %d", len(plan.ToCompress))
	}
	if len(plan.KeepRaw) != 3 {
		t.Fatalf("expected full keepRaw, got %d", len(plan.KeepRaw))
	}
	for i := range msgs {
		if plan.KeepRaw[i].Seq() != msgs[i].Seq() {
			t.Fatalf("keepRaw order changed at %d", i)
		}
	}
}

func TestPlanCompressionFewerThanMinKeep(t *testing.T) {
	msgs := []models.Message{
		seqMsg(1, strings.Repeat("a", 60000)),
		seqMsg(2, strings.Repeat("b", 60000)),
	}
	plan := PlanCompression(msgs, 50000, 20000, 8)
	if plan.ShouldCompress {
		t.Fatal("expected no compression with fewer than minKeepCount messages")
	}
	if len(plan.KeepRaw) != 2 {
		t.Fatalf("expected all messages kept, got %d", len(plan.KeepRaw))
	}
}

func TestPlanCompressionBackwardScan(t *testing.T) {
	// 17 messages of 3000 chars: 51000 total against a 50000 threshold.
	var msgs []models.Message
	for i := 1; i <= 17; i++ {
		msgs = append(msgs, seqMsg(int64(i), strings.Repeat("x", 3000)))
	}
	plan := PlanCompression(msgs, 50000, 20000, 8)
	if !plan.ShouldCompress {
		t.Fatal("expected compression above threshold")
	}
	if len(plan.KeepRaw) < 8 {
		t.Fatalf("keepRaw has %d messages, want at least 8", len(plan.KeepRaw))
	}
	keepChars := 0
	for _, m := range plan.KeepRaw {
		keepChars += len(m.Content)
	}
	if keepChars < 20000 {
		t.Fatalf("keepRaw retains %d chars, want at least 20000", keepChars)
	}
	// The split preserves order and covers all input.
	if len(plan.ToCompress)+len(plan.KeepRaw) != len(msgs) {
		t.Fatalf("plan lost messages: %d + %d != %d", len(plan.ToCompress), len(plan.KeepRaw), len(msgs))
	}
	if plan.ToCompress[len(plan.ToCompress)-1].Seq() >= plan.KeepRaw[0].Seq() {
		t.Fatal("toCompress must be strictly older than keepRaw")
	}
	if plan.KeepRaw[len(plan.KeepRaw)-1].Seq() != 17 {
		t.Fatal("keepRaw must end with the newest message")
	}
}

func TestPlanCompressionKeepsAtLeastMinKeep(t *testing.T) {
	// Tiny messages: char target is met long before the message minimum.
	var msgs []models.Message
	for i := 1; i <= 30; i++ {
		msgs = append(msgs, seqMsg(int64(i), strings.Repeat("y", 500)))
	}
	plan := PlanCompression(msgs, 1000, 100, 8)
	if !plan.ShouldCompress {
		t.Fatal("expected compression")
	}
	if len(plan.KeepRaw) < 8 {
		t.Fatalf("keepRaw has %d messages, want at least 8", len(plan.KeepRaw))
	}
}

func TestPlanCompressionNothingEligible(t *testing.T) {
	// Over threshold but the keep rules swallow every message.
	var msgs []models.Message
	for i := 1; i <= 8; i++ {
		msgs = append(msgs, seqMsg(int64(i), strings.Repeat("z", 10000)))
	}
	plan := PlanCompression(msgs, 50000, 100000, 8)
	if plan.ShouldCompress {
		t.Fatal("expected planner to find nothing eligible")
	}
	if len(plan.KeepRaw) != 8 {
		t.Fatalf("expected full keepRaw, got %d", len(plan.KeepRaw))
	}
}

func TestForcePlanLeavesTwoRaw(t *testing.T) {
	var msgs []models.Message
	for i := 1; i <= 5; i++ {
		msgs = append(msgs, seqMsg(int64(i), "m"))
	}
	plan := ForcePlan(msgs)
	if !plan.ShouldCompress {
		t.Fatal("expected force plan to compress")
	}
	if len(plan.KeepRaw) != 2 {
		t.Fatalf("expected 2 raw messages, got %d", len(plan.KeepRaw))
	}
	if len(plan.ToCompress) != 3 {
		t.Fatalf("expected 3 compressed messages, got %d", len(plan.ToCompress))
	}

	short := msgs[:2]
	plan = ForcePlan(short)
	if plan.ShouldCompress {
		t.Fatal("force plan must never reduce keepRaw below 2")
	}
}

func TestBuildSummaryContext(t *testing.T) {
	if got := BuildSummaryContext(nil); got != "" {
		t.Fatalf("nil checkpoint should render empty, got %q", got)
	}
	cp := &models.GroupCompressionState{Summary: "decided to ship v2 first"}
	got := BuildSummaryContext(cp)
	if !strings.Contains(got, "decided to ship v2 first") {
		t.Fatal("summary text missing from context")
	}
	if !strings.Contains(got, "derived material") {
		t.Fatal("summary context must be labeled as derived material")
	}
}

func TestForceCompressBelowThreshold(t *testing.T) {
	gdb := newTestDB(t)
	svc := NewCompressionService(gdb, &fakeResolver{invoker: &fakeInvoker{}}, cache.New("", "", 0), &config.AppConfig{})
	if err := svc.AutoMigrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := gdb.AutoMigrate(&db.Message{}); err != nil {
		t.Fatalf("migrate messages: %v", err)
	}

	for i := int64(1); i <= 5; i++ {
		seq := i
		msg := models.Message{
			ID:        fmt.Sprintf("m%d", i),
			SessionID: "s1",
			GroupID:   "g1",
			Role:      db.RoleUser,
			Content:   fmt.Sprintf("message %d", i),
			SeqNumber: &seq,
			Status:    db.MessageStatusCompleted,
		}
		if err := gdb.Create(&msg).Error; err != nil {
			t.Fatalf("seed message %d: %v", i, err)
		}
	}

	ctx := context.Background()

	// Far under threshold, the automatic pass declines.
	state, err := svc.CheckAndCompress(ctx, "g1", "")
	if err != nil {
		t.Fatalf("CheckAndCompress: %v", err)
	}
	if state != nil {
		t.Fatal("no automatic compression expected under threshold")
	}

	state, err = svc.ForceCompress(ctx, "g1", "")
	if err != nil {
		t.Fatalf("ForceCompress: %v", err)
	}
	if state == nil {
		t.Fatal("forced pass must produce a checkpoint")
	}
	if state.FromSeq != 1 || state.ToSeq != 3 || state.MessageCount != 3 {
		t.Fatalf("checkpoint range = [%d,%d] over %d messages, want [1,3] over 3",
			state.FromSeq, state.ToSeq, state.MessageCount)
	}
	if state.Summary == "" {
		t.Fatal("checkpoint must carry a summary")
	}

	// The two newest messages stay raw behind the new checkpoint.
	remaining, checkpoint, err := svc.UncompressedMessages(ctx, "g1")
	if err != nil {
		t.Fatalf("UncompressedMessages: %v", err)
	}
	if checkpoint == nil || checkpoint.ToSeq != 3 {
		t.Fatalf("expected the forced checkpoint to be live, got %+v", checkpoint)
	}
	if len(remaining) != 2 || remaining[0].Seq() != 4 || remaining[1].Seq() != 5 {
		t.Fatalf("remaining raw messages = %d, want seqs 4 and 5", len(remaining))
	}
}
