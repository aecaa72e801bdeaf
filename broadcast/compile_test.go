package broadcast

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestComputeOffset(t *testing.T) {
	start := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		submitted time.Time
		fudge     int
		want      int
	}{
		{"mid stream", start.Add(90 * time.Second), 13, 77},
		{"before fudge window clamps to zero", start.Add(5 * time.Second), 13, 0},
		{"at start clamps to zero", start, 13, 0},
		{"fractional seconds floor", start.Add(10*time.Second + 900*time.Millisecond), 0, 10},
		{"no fudge", start.Add(60 * time.Second), 0, 60},
		{"exactly fudge", start.Add(13 * time.Second), 13, 0},
		{"hour in", start.Add(time.Hour + 13*time.Second), 13, 3600},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := computeOffset(tt.submitted, start, tt.fudge); got != tt.want {
				t.Errorf("computeOffset(+%v, fudge=%d) = %d, want %d", tt.submitted.Sub(start), tt.fudge, got, tt.want)
			}
		})
	}
}

func TestFormatClock(t *testing.T) {
	tests := []struct {
		seconds int
		want    string
	}{
		{0, "0:00"},
		{9, "0:09"},
		{77, "1:17"},
		{600, "10:00"},
		{3599, "59:59"},
		{3600, "1:00:00"},
		{3725, "1:02:05"},
		{36000, "10:00:00"},
	}
	for _, tt := range tests {
		if got := formatClock(tt.seconds); got != tt.want {
			t.Errorf("formatClock(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestRenderLine(t *testing.T) {
	off := 77
	a := Annotation{DisplayName: "alice", Text: "great moment", OffsetSeconds: &off}
	got := renderLine(a, "vid123")
	want := "alice\n[1:17](https://youtu.be/vid123?t=77) great moment"
	if got != want {
		t.Errorf("renderLine() = %q, want %q", got, want)
	}
}

func TestRenderLineNilOffset(t *testing.T) {
	a := Annotation{DisplayName: "bob", Text: "hi"}
	got := renderLine(a, "vid123")
	if !strings.Contains(got, "?t=0") || !strings.Contains(got, "[0:00]") {
		t.Errorf("renderLine() with nil offset = %q, want t=0 link", got)
	}
}

func TestPackLines(t *testing.T) {
	line := func(n int) string { return strings.Repeat("x", n) }

	t.Run("boundary split", func(t *testing.T) {
		// capacity as computed for a 2000-char message limit and a 50-char
		// title: 2000 - 50 - 2 = 1948. The first two lines joined need
		// 1900+2+50 = 1952, so the second line starts a new batch.
		batches := packLines([]string{line(1900), line(50), line(60)}, 1948)
		if len(batches) != 2 {
			t.Fatalf("packLines() = %d batches, want 2", len(batches))
		}
		if len(batches[0]) != 1 || len(batches[1]) != 2 {
			t.Errorf("batch sizes = %d,%d, want 1,2", len(batches[0]), len(batches[1]))
		}
	})

	t.Run("all fit in one", func(t *testing.T) {
		batches := packLines([]string{line(10), line(20), line(30)}, 100)
		if len(batches) != 1 || len(batches[0]) != 3 {
			t.Fatalf("packLines() = %v batches, want single batch of 3", len(batches))
		}
	})

	t.Run("oversized line is its own batch", func(t *testing.T) {
		batches := packLines([]string{line(10), line(500), line(10)}, 100)
		if len(batches) != 3 {
			t.Fatalf("packLines() = %d batches, want 3", len(batches))
		}
		if len(batches[1]) != 1 || len(batches[1][0]) != 500 {
			t.Errorf("oversized line was not emitted alone")
		}
	})

	t.Run("exact capacity fits", func(t *testing.T) {
		// 40 + 2 + 58 = 100
		batches := packLines([]string{line(40), line(58)}, 100)
		if len(batches) != 1 {
			t.Fatalf("packLines() = %d batches, want 1", len(batches))
		}
	})

	t.Run("empty input", func(t *testing.T) {
		if batches := packLines(nil, 100); batches != nil {
			t.Errorf("packLines(nil) = %v, want nil", batches)
		}
	})

	t.Run("order preserved", func(t *testing.T) {
		var lines []string
		for i := 0; i < 20; i++ {
			lines = append(lines, fmt.Sprintf("line-%02d", i))
		}
		batches := packLines(lines, 30)
		var flat []string
		for _, b := range batches {
			flat = append(flat, b...)
		}
		for i, l := range flat {
			if want := fmt.Sprintf("line-%02d", i); l != want {
				t.Fatalf("flattened[%d] = %q, want %q", i, l, want)
			}
		}
	})
}

func TestMissingOffsets(t *testing.T) {
	off := 5
	if missingOffsets([]Annotation{{OffsetSeconds: &off}}) {
		t.Error("missingOffsets() = true for fully computed annotations")
	}
	if !missingOffsets([]Annotation{{OffsetSeconds: &off}, {}}) {
		t.Error("missingOffsets() = false with an uncomputed annotation present")
	}
}
