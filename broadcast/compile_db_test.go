package broadcast

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/peonylabs/herald/config"
	"github.com/peonylabs/herald/testutil"
)

func TestCompileAnnotationsBatching(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	started := time.Date(2026, 4, 1, 18, 0, 0, 0, time.UTC)

	// 50-char title; per-batch capacity is 2000 - 50 - 2 = 1948.
	title := strings.Repeat("T", 50)
	b := &Broadcast{VideoID: "vid1", Title: title, Status: StatusJustLive}
	if err := InsertBroadcast(ctx, db, b); err != nil {
		t.Fatal(err)
	}
	if _, err := MarkLive(ctx, db, "vid1", Handle{ChannelID: "c", MessageID: "m"}); err != nil {
		t.Fatal(err)
	}
	if _, err := MarkCompleted(ctx, db, "vid1", started, started.Add(2*time.Hour)); err != nil {
		t.Fatal(err)
	}

	// The first rendered line (text plus its ~38-rune link prefix) lands just
	// under the 1948 capacity, so the second line cannot share its batch; the
	// short second and third lines pack together.
	texts := []string{
		strings.Repeat("a", 1900),
		strings.Repeat("b", 10),
		strings.Repeat("c", 20),
	}
	for i, text := range texts {
		a := Annotation{VideoID: "vid1", AuthorID: "u1", DisplayName: "al",
			SubmittedAt: started.Add(time.Duration(i+1) * time.Minute), Text: text}
		if err := AppendAnnotation(ctx, db, a); err != nil {
			t.Fatal(err)
		}
	}

	cfg := &config.Config{ArchiveChannelID: "arch", StreamStartFudge: 13 * time.Second, MessageCharLimit: 2000}
	pub := &fakePublisher{}
	b.Status = StatusCompleted
	b.ActualStart = started

	if err := CompileAnnotations(ctx, db, pub, b, false, cfg); err != nil {
		t.Fatalf("CompileAnnotations() error = %v", err)
	}

	if len(pub.published) != 2 {
		t.Fatalf("published %d batches, want 2", len(pub.published))
	}
	for i, p := range pub.published {
		if p.channelID != "arch" {
			t.Errorf("batch %d posted to %s", i, p.channelID)
		}
		if p.msg.Title != title {
			t.Errorf("batch %d title = %q", i, p.msg.Title)
		}
	}
	if strings.Count(pub.published[0].msg.Body, "](") != 1 {
		t.Errorf("first batch holds %d lines, want 1", strings.Count(pub.published[0].msg.Body, "]("))
	}
	if strings.Count(pub.published[1].msg.Body, "](") != 2 {
		t.Errorf("second batch holds %d lines, want 2", strings.Count(pub.published[1].msg.Body, "]("))
	}

	// Offsets were persisted: 60/120/180 seconds in, minus the 13s fudge.
	anns, _ := ListAnnotations(ctx, db, "vid1")
	for i, want := range []int{47, 107, 167} {
		if anns[i].OffsetSeconds == nil || *anns[i].OffsetSeconds != want {
			t.Errorf("annotation %d offset = %v, want %d", i, anns[i].OffsetSeconds, want)
		}
	}
}

func TestCompileAnnotationsNoTags(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	b := &Broadcast{VideoID: "vid1", Title: "t", Status: StatusCompleted, ActualStart: time.Now().UTC()}
	if err := InsertBroadcast(ctx, db, b); err != nil {
		t.Fatal(err)
	}
	pub := &fakePublisher{}
	cfg := &config.Config{ArchiveChannelID: "arch", MessageCharLimit: 2000}
	if err := CompileAnnotations(ctx, db, pub, b, false, cfg); err != nil {
		t.Fatalf("CompileAnnotations() error = %v", err)
	}
	if len(pub.published) != 0 {
		t.Errorf("published %d batches with no tags", len(pub.published))
	}
}

func TestCompileAnnotationsOffsetsStableAcrossRuns(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	started := time.Date(2026, 4, 1, 18, 0, 0, 0, time.UTC)

	b := &Broadcast{VideoID: "vid1", Title: "t", Status: StatusCompleted, ActualStart: started}
	if err := InsertBroadcast(ctx, db, b); err != nil {
		t.Fatal(err)
	}
	a := Annotation{VideoID: "vid1", AuthorID: "u1", DisplayName: "al",
		SubmittedAt: started.Add(90 * time.Second), Text: "hi"}
	if err := AppendAnnotation(ctx, db, a); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{ArchiveChannelID: "arch", StreamStartFudge: 13 * time.Second, MessageCharLimit: 2000}
	pub := &fakePublisher{}

	if err := CompileAnnotations(ctx, db, pub, b, false, cfg); err != nil {
		t.Fatal(err)
	}
	anns, _ := ListAnnotations(ctx, db, "vid1")
	first := *anns[0].OffsetSeconds
	if first != 77 {
		t.Fatalf("offset = %d, want 77", first)
	}

	// A forced recompile recomputes from the same inputs: same result.
	if err := CompileAnnotations(ctx, db, pub, b, true, cfg); err != nil {
		t.Fatal(err)
	}
	anns, _ = ListAnnotations(ctx, db, "vid1")
	if *anns[0].OffsetSeconds != first {
		t.Errorf("forced recompile changed offset from %d to %d", first, *anns[0].OffsetSeconds)
	}
	if len(pub.published) != 2 {
		t.Errorf("published %d batches across two runs, want 2", len(pub.published))
	}
}
