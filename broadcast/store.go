package broadcast

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// checkpointKey is the kv row holding the discovery poller's last-checked time.
const checkpointKey = "discovery_last_checked"

const broadcastColumns = `video_id,
	COALESCE(title, ''),
	status,
	scheduled_start,
	actual_start,
	actual_end,
	COALESCE(announce_channel_id, ''),
	COALESCE(announce_message_id, ''),
	COALESCE(manual_end_requested, FALSE),
	COALESCE(created_at, to_timestamp(0)),
	COALESCE(updated_at, to_timestamp(0))`

func scanBroadcast(row interface{ Scan(...any) error }) (*Broadcast, error) {
	var b Broadcast
	var scheduled, started, ended sql.NullTime
	if err := row.Scan(&b.VideoID, &b.Title, &b.Status, &scheduled, &started, &ended,
		&b.Announce.ChannelID, &b.Announce.MessageID, &b.ManualEndRequested, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	if scheduled.Valid {
		b.ScheduledStart = scheduled.Time.UTC()
	}
	if started.Valid {
		b.ActualStart = started.Time.UTC()
	}
	if ended.Valid {
		b.ActualEnd = ended.Time.UTC()
	}
	return &b, nil
}

// GetBroadcast returns the broadcast with the given platform video id, or
// (nil, nil) when absent.
func GetBroadcast(ctx context.Context, db *sql.DB, videoID string) (*Broadcast, error) {
	row := db.QueryRowContext(ctx, `SELECT `+broadcastColumns+` FROM broadcasts WHERE video_id=$1`, videoID)
	b, err := scanBroadcast(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get broadcast %s: %w", videoID, err)
	}
	return b, nil
}

// FindByStatus returns all broadcasts in any of the given statuses, in read
// order (scheduled time, then insertion order).
func FindByStatus(ctx context.Context, db *sql.DB, statuses ...Status) ([]Broadcast, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	args := make([]any, len(statuses))
	placeholders := ""
	for i, s := range statuses {
		if i > 0 {
			placeholders += ","
		}
		placeholders += fmt.Sprintf("$%d", i+1)
		args[i] = string(s)
	}
	rows, err := db.QueryContext(ctx, `SELECT `+broadcastColumns+` FROM broadcasts
		WHERE status IN (`+placeholders+`)
		ORDER BY COALESCE(scheduled_start, created_at), id`, args...)
	if err != nil {
		return nil, fmt.Errorf("find broadcasts by status: %w", err)
	}
	defer rows.Close()
	var out []Broadcast
	for rows.Next() {
		b, err := scanBroadcast(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// CurrentLive returns the most recently started live broadcast, or (nil, nil)
// when nothing is live.
func CurrentLive(ctx context.Context, db *sql.DB) (*Broadcast, error) {
	row := db.QueryRowContext(ctx, `SELECT `+broadcastColumns+` FROM broadcasts
		WHERE status=$1 ORDER BY COALESCE(scheduled_start, created_at) DESC, id DESC LIMIT 1`, string(StatusLive))
	b, err := scanBroadcast(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("current live broadcast: %w", err)
	}
	return b, nil
}

// InsertBroadcast inserts a newly discovered broadcast; re-discovery of a
// known video id is a no-op (idempotent via ON CONFLICT DO NOTHING).
func InsertBroadcast(ctx context.Context, db *sql.DB, b *Broadcast) error {
	var scheduled any
	if !b.ScheduledStart.IsZero() {
		scheduled = b.ScheduledStart
	}
	_, err := db.ExecContext(ctx, `INSERT INTO broadcasts (video_id, title, status, scheduled_start, created_at)
		VALUES ($1,$2,$3,$4,NOW()) ON CONFLICT (video_id) DO NOTHING`,
		b.VideoID, b.Title, string(b.Status), scheduled)
	if err != nil {
		return fmt.Errorf("insert broadcast %s: %w", b.VideoID, err)
	}
	return nil
}

// UpdateSchedule records a platform-side reschedule; the status is untouched.
func UpdateSchedule(ctx context.Context, db *sql.DB, videoID string, scheduled time.Time) error {
	_, err := db.ExecContext(ctx, `UPDATE broadcasts SET scheduled_start=$1, updated_at=NOW() WHERE video_id=$2`,
		scheduled, videoID)
	if err != nil {
		return fmt.Errorf("update schedule %s: %w", videoID, err)
	}
	return nil
}

// MarkLive flips a pending broadcast to live and records its announcement
// handle in the same statement, so the handle-iff-live invariant can't be
// observed half-applied. Returns false when the broadcast was not pending.
func MarkLive(ctx context.Context, db *sql.DB, videoID string, h Handle) (bool, error) {
	res, err := db.ExecContext(ctx, `UPDATE broadcasts
		SET status=$1, announce_channel_id=$2, announce_message_id=$3, updated_at=NOW()
		WHERE video_id=$4 AND status IN ($5,$6)`,
		string(StatusLive), h.ChannelID, h.MessageID, videoID, string(StatusUpcoming), string(StatusJustLive))
	if err != nil {
		return false, fmt.Errorf("mark live %s: %w", videoID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// MarkCompleted performs the one-way terminal transition. The status guard
// makes a re-run on an already-completed record a no-op (returns false).
func MarkCompleted(ctx context.Context, db *sql.DB, videoID string, started, ended time.Time) (bool, error) {
	res, err := db.ExecContext(ctx, `UPDATE broadcasts
		SET status=$1, actual_start=$2, actual_end=$3, updated_at=NOW()
		WHERE video_id=$4 AND status=$5`,
		string(StatusCompleted), started, ended, videoID, string(StatusLive))
	if err != nil {
		return false, fmt.Errorf("mark completed %s: %w", videoID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// MarkCompletedUnannounced retires a pending broadcast that ended before it
// was ever confirmed live. No announcement handle is recorded; the status
// guard keeps it a no-op for anything already live or completed.
func MarkCompletedUnannounced(ctx context.Context, db *sql.DB, videoID string, started, ended time.Time) (bool, error) {
	res, err := db.ExecContext(ctx, `UPDATE broadcasts
		SET status=$1, actual_start=$2, actual_end=$3, updated_at=NOW()
		WHERE video_id=$4 AND status IN ($5,$6)`,
		string(StatusCompleted), started, ended, videoID, string(StatusUpcoming), string(StatusJustLive))
	if err != nil {
		return false, fmt.Errorf("mark completed unannounced %s: %w", videoID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// RequestManualEnd sets the operator's early-termination marker on a live
// broadcast; the next updater tick performs the actual transition.
func RequestManualEnd(ctx context.Context, db *sql.DB, videoID string) (bool, error) {
	res, err := db.ExecContext(ctx, `UPDATE broadcasts SET manual_end_requested=TRUE, updated_at=NOW()
		WHERE video_id=$1 AND status=$2`, videoID, string(StatusLive))
	if err != nil {
		return false, fmt.Errorf("request manual end %s: %w", videoID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// AppendAnnotation appends one annotation. A plain INSERT keeps appends atomic
// with respect to the updater's field updates; there is no read-modify-write
// to race with a concurrent completed transition.
func AppendAnnotation(ctx context.Context, db *sql.DB, a Annotation) error {
	_, err := db.ExecContext(ctx, `INSERT INTO annotations (video_id, author_id, display_name, submitted_at, text)
		VALUES ($1,$2,$3,$4,$5)`, a.VideoID, a.AuthorID, a.DisplayName, a.SubmittedAt, a.Text)
	if err != nil {
		return fmt.Errorf("append annotation for %s: %w", a.VideoID, err)
	}
	return nil
}

// ListAnnotations returns a broadcast's annotations in submission order.
func ListAnnotations(ctx context.Context, db *sql.DB, videoID string) ([]Annotation, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, video_id, COALESCE(author_id,''), COALESCE(display_name,''),
		submitted_at, text, offset_seconds
		FROM annotations WHERE video_id=$1 ORDER BY id`, videoID)
	if err != nil {
		return nil, fmt.Errorf("list annotations for %s: %w", videoID, err)
	}
	defer rows.Close()
	var out []Annotation
	for rows.Next() {
		var a Annotation
		var off sql.NullInt64
		if err := rows.Scan(&a.ID, &a.VideoID, &a.AuthorID, &a.DisplayName, &a.SubmittedAt, &a.Text, &off); err != nil {
			return nil, err
		}
		a.SubmittedAt = a.SubmittedAt.UTC()
		if off.Valid {
			v := int(off.Int64)
			a.OffsetSeconds = &v
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// StoreOffsets persists computed offsets for a batch of annotations in a
// single transaction, so a crash mid-write never leaves a partially cached
// batch visible as fully computed.
func StoreOffsets(ctx context.Context, db *sql.DB, offsets map[int64]int) error {
	if len(offsets) == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store offsets begin: %w", err)
	}
	for id, off := range offsets {
		if _, err := tx.ExecContext(ctx, `UPDATE annotations SET offset_seconds=$1 WHERE id=$2`, off, id); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("store offset for annotation %d: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store offsets commit: %w", err)
	}
	return nil
}

// DiscoveryCheckpoint reads the poller's last-checked time; ok=false means
// never checked.
func DiscoveryCheckpoint(ctx context.Context, db *sql.DB) (time.Time, bool, error) {
	var value string
	err := db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key=$1`, checkpointKey).Scan(&value)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read discovery checkpoint: %w", err)
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		// unreadable checkpoint: treat as never checked rather than wedging the poller
		return time.Time{}, false, nil
	}
	return t.UTC(), true, nil
}

// SetDiscoveryCheckpoint advances the poller's last-checked time.
func SetDiscoveryCheckpoint(ctx context.Context, db *sql.DB, t time.Time) error {
	_, err := db.ExecContext(ctx, `INSERT INTO kv (key,value,updated_at) VALUES ($1,$2,NOW())
		ON CONFLICT(key) DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()`,
		checkpointKey, t.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("set discovery checkpoint: %w", err)
	}
	return nil
}
