package broadcast

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/peonylabs/herald/telemetry"
)

// Rejection reasons returned to tag submitters. These cross back to the
// caller as values, never as panics or opaque failures.
var (
	ErrNoLiveBroadcast = errors.New("no live broadcast to tag")
	ErrEmptyText       = errors.New("tag text is empty")
	ErrTextTooLong     = errors.New("tag text exceeds the character budget")
)

// SubmitAnnotation appends a timestamped tag to the current live broadcast.
// maxLen is the submitter's character budget - a policy decision made by the
// caller (privileged submitters get a larger one). The append is a single
// INSERT, so a submission racing the completed transition is never corrupted;
// at worst it misses that compile run and is picked up by a recompile.
func SubmitAnnotation(ctx context.Context, db *sql.DB, authorID, displayName, text string, maxLen int) error {
	text = strings.TrimSpace(text)
	if text == "" {
		telemetry.TagsRejected.Inc()
		return ErrEmptyText
	}
	if maxLen > 0 && utf8.RuneCountInString(text) > maxLen {
		telemetry.TagsRejected.Inc()
		return ErrTextTooLong
	}
	live, err := CurrentLive(ctx, db)
	if err != nil {
		return err
	}
	if live == nil {
		telemetry.TagsRejected.Inc()
		return ErrNoLiveBroadcast
	}
	a := Annotation{
		VideoID:     live.VideoID,
		AuthorID:    authorID,
		DisplayName: displayName,
		SubmittedAt: time.Now().UTC(),
		Text:        text,
	}
	if err := AppendAnnotation(ctx, db, a); err != nil {
		return err
	}
	telemetry.TagsAccepted.Inc()
	slog.Debug("tag accepted",
		slog.String("video_id", live.VideoID),
		slog.String("author_id", authorID),
		slog.String("component", "tags"))
	return nil
}
