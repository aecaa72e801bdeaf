package broadcast

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/peonylabs/herald/config"
	"github.com/peonylabs/herald/telemetry"
)

// batchSeparator joins rendered tag lines inside one archival post.
const batchSeparator = "\n\n"

// CompileAnnotations turns a completed broadcast's tags into archival posts:
// offsets are computed (and cached) relative to the actual start, each tag is
// rendered to a deep-linked line, and lines are greedily packed into posts
// that fit the transport's message size limit. Posts are emitted to the
// archive channel in submission order.
//
// force recomputes cached offsets; used by the operator recompile pass that
// picks up tags which landed after the completed transition.
func CompileAnnotations(ctx context.Context, db *sql.DB, pub Publisher, b *Broadcast, force bool, cfg *config.Config) error {
	logger := slog.Default().With(slog.String("video_id", b.VideoID), slog.String("component", "compile"))
	anns, err := ListAnnotations(ctx, db, b.VideoID)
	if err != nil {
		return err
	}
	if len(anns) == 0 {
		logger.Debug("no tags to compile")
		return nil
	}

	if force || missingOffsets(anns) {
		offsets := make(map[int64]int, len(anns))
		for i := range anns {
			off := computeOffset(anns[i].SubmittedAt, b.ActualStart, int(cfg.StreamStartFudge.Seconds()))
			offsets[anns[i].ID] = off
			anns[i].OffsetSeconds = &off
		}
		if err := StoreOffsets(ctx, db, offsets); err != nil {
			return err
		}
	}

	lines := make([]string, len(anns))
	for i, a := range anns {
		lines[i] = renderLine(a, b.VideoID)
	}

	capacity := cfg.MessageCharLimit - utf8.RuneCountInString(b.Title) - len(batchSeparator)
	batches := packLines(lines, capacity)
	for _, batch := range batches {
		msg := Message{Title: b.Title, Body: strings.Join(batch, batchSeparator)}
		if _, err := pub.Publish(ctx, cfg.ArchiveChannelID, msg); err != nil {
			return fmt.Errorf("emit tag archive for %s: %w", b.VideoID, err)
		}
		telemetry.CompileBatches.Inc()
	}
	logger.Info("tags compiled", slog.Int("tags", len(anns)), slog.Int("batches", len(batches)))
	return nil
}

func missingOffsets(anns []Annotation) bool {
	for i := range anns {
		if anns[i].OffsetSeconds == nil {
			return true
		}
	}
	return false
}

// computeOffset derives the seconds-into-stream position of a tag. fudge
// compensates for the lag between the platform's actual start and our own
// live confirmation, so offsets line up with the archived video. Never
// negative, and deterministic for fixed inputs (recomputation is idempotent).
func computeOffset(submitted, actualStart time.Time, fudge int) int {
	off := int(math.Floor(submitted.Sub(actualStart).Seconds())) - fudge
	if off < 0 {
		return 0
	}
	return off
}

// renderLine renders one tag as a display line with a timestamped deep link:
//
//	{displayName}
//	[{m:ss}](https://youtu.be/{id}?t={off}) {text}
func renderLine(a Annotation, videoID string) string {
	off := 0
	if a.OffsetSeconds != nil {
		off = *a.OffsetSeconds
	}
	return fmt.Sprintf("%s\n[%s](https://youtu.be/%s?t=%d) %s",
		a.DisplayName, formatClock(off), videoID, off, a.Text)
}

// formatClock renders seconds as m:ss under an hour, h:mm:ss above.
func formatClock(seconds int) string {
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// packLines greedily packs rendered lines into batches whose joined size
// (lines plus one separator per joint) stays within capacity. A single line
// larger than the capacity becomes its own oversized batch - emitted as-is
// rather than split or dropped.
func packLines(lines []string, capacity int) [][]string {
	var batches [][]string
	var current []string
	size := 0
	for _, line := range lines {
		n := utf8.RuneCountInString(line)
		switch {
		case len(current) == 0:
			current = []string{line}
			size = n
		case size+len(batchSeparator)+n <= capacity:
			current = append(current, line)
			size += len(batchSeparator) + n
		default:
			batches = append(batches, current)
			current = []string{line}
			size = n
		}
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}
