package broadcast

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/peonylabs/herald/config"
	"github.com/peonylabs/herald/telemetry"
	"github.com/peonylabs/herald/youtubeapi"
)

// confirmLeeway is how far ahead of its scheduled time a pending broadcast is
// checked at all, and how large a platform-side schedule shift is absorbed as
// a reschedule instead of a live confirmation. The search index can report a
// stream as about-to-start before the detail endpoint agrees; the reschedule
// branch soaks up that skew without flapping the announced state.
const confirmLeeway = time.Minute

// StartLifecycleJob runs the updater loop: every tick it advances each
// non-terminal broadcast through the state machine and keeps its announcement
// message current.
func StartLifecycleJob(ctx context.Context, db *sql.DB, platform Platform, pub Publisher, cfg *config.Config) {
	slog.Info("lifecycle job starting", slog.Duration("interval", cfg.LifecycleInterval), slog.String("component", "lifecycle"))
	if err := lifecycleTick(ctx, db, platform, pub, cfg); err != nil {
		slog.Warn("lifecycle tick", slog.Any("err", err), slog.String("component", "lifecycle"))
	}
	ticker := time.NewTicker(cfg.LifecycleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("lifecycle job stopped", slog.String("component", "lifecycle"))
			return
		case <-ticker.C:
			if err := lifecycleTick(ctx, db, platform, pub, cfg); err != nil {
				slog.Warn("lifecycle tick", slog.Any("err", err), slog.String("component", "lifecycle"))
			}
		}
	}
}

// lifecycleTick is one pass of the updater. Broadcasts are processed one at a
// time in read order; a failure on one record never aborts the others. Only a
// store read failure ends the tick early (retried next tick).
func lifecycleTick(ctx context.Context, db *sql.DB, platform Platform, pub Publisher, cfg *config.Config) error {
	telemetry.LifecycleTicks.Inc()
	start := time.Now()
	defer func() {
		telemetry.TickDuration.Observe(time.Since(start).Seconds())
	}()

	live, err := FindByStatus(ctx, db, StatusLive)
	if err != nil {
		return err
	}
	telemetry.SetLiveBroadcasts(len(live))
	for i := range live {
		updateLive(ctx, db, platform, pub, &live[i], cfg)
	}

	pending, err := FindByStatus(ctx, db, StatusUpcoming, StatusJustLive)
	if err != nil {
		return err
	}
	for i := range pending {
		confirmPending(ctx, db, platform, pub, &pending[i], cfg)
	}
	return nil
}

// updateLive refreshes one live broadcast: terminate when the platform
// reports an end time (or an operator asked for one), otherwise edit the
// announcement with fresh statistics.
func updateLive(ctx context.Context, db *sql.DB, platform Platform, pub Publisher, b *Broadcast, cfg *config.Config) {
	logger := slog.Default().With(slog.String("video_id", b.VideoID), slog.String("component", "lifecycle"))
	detail, err := platform.VideoDetail(ctx, b.VideoID)
	if err != nil {
		telemetry.PlatformAPIErrors.Inc()
		logger.Warn("live detail fetch failed; retrying next tick", slog.Any("err", err))
		return
	}
	if detail.Ended() || b.ManualEndRequested {
		finalizeBroadcast(ctx, db, pub, b, detail, cfg, logger)
		return
	}
	if b.Announce.IsZero() {
		// invariant violation: a live broadcast always carries its handle.
		// Leave the record for manual inspection instead of advancing it.
		logger.Error("live broadcast has no announcement handle; leaving untouched",
			slog.String("status", string(b.Status)), slog.Time("scheduled", b.ScheduledStart))
		return
	}
	if err := pub.Edit(ctx, b.Announce, liveMessage(b.Title, b.VideoID, detail)); err != nil {
		logger.Warn("announcement edit failed", slog.Any("err", err))
		return
	}
	telemetry.AnnounceEdits.Inc()
	logger.Debug("announcement refreshed", slog.Uint64("viewers", detail.ConcurrentViewers))
}

// finalizeBroadcast performs the one-way completed transition: resolve actual
// start/end, flip the status (a no-op when already completed), retire the
// announcement, and compile the accumulated tags.
func finalizeBroadcast(ctx context.Context, db *sql.DB, pub Publisher, b *Broadcast, detail *youtubeapi.VideoDetail, cfg *config.Config, logger *slog.Logger) {
	started := detail.ActualStart
	if started.IsZero() {
		started = b.ScheduledStart
	}
	if started.IsZero() {
		started = b.CreatedAt
	}
	ended := detail.ActualEnd
	if ended.IsZero() {
		// operator-forced end before the platform recorded one
		ended = time.Now().UTC()
	}
	ok, err := MarkCompleted(ctx, db, b.VideoID, started, ended)
	if err != nil {
		logger.Warn("mark completed failed; retrying next tick", slog.Any("err", err))
		return
	}
	if !ok {
		logger.Debug("already completed; termination is a no-op")
		return
	}
	telemetry.BroadcastsCompleted.Inc()
	logger.Info("broadcast completed", slog.Time("started", started), slog.Time("ended", ended), slog.Bool("manual", b.ManualEndRequested))

	if b.Announce.IsZero() {
		logger.Error("completed broadcast has no announcement handle; skipping finalize edit")
	} else {
		if err := pub.Unpin(ctx, b.Announce); err != nil {
			logger.Warn("announcement unpin failed", slog.Any("err", err))
		}
		if err := pub.Edit(ctx, b.Announce, endedMessage(b.Title, b.VideoID, detail)); err != nil {
			logger.Warn("final announcement edit failed", slog.Any("err", err))
		}
	}

	b.Status = StatusCompleted
	b.ActualStart = started
	b.ActualEnd = ended
	if err := CompileAnnotations(ctx, db, pub, b, false, cfg); err != nil {
		logger.Warn("tag compilation failed", slog.Any("err", err))
	}
}

// confirmPending re-validates a pending broadcast against the detail endpoint
// and either absorbs a reschedule or confirms it live (publish, pin, record
// the handle, flip the status).
func confirmPending(ctx context.Context, db *sql.DB, platform Platform, pub Publisher, b *Broadcast, cfg *config.Config) {
	logger := slog.Default().With(slog.String("video_id", b.VideoID), slog.String("component", "lifecycle"))
	now := time.Now().UTC()
	if !b.ScheduledStart.IsZero() && b.ScheduledStart.After(now.Add(confirmLeeway)) {
		return
	}
	detail, err := platform.VideoDetail(ctx, b.VideoID)
	if err != nil {
		telemetry.PlatformAPIErrors.Inc()
		logger.Warn("pending detail fetch failed; retrying next tick", slog.Any("err", err))
		return
	}
	if detail.Ended() {
		// ended between ticks without ever being confirmed; a live
		// announcement now would be immediately wrong
		started := detail.ActualStart
		if started.IsZero() {
			started = b.ScheduledStart
		}
		if started.IsZero() {
			started = b.CreatedAt
		}
		ok, err := MarkCompletedUnannounced(ctx, db, b.VideoID, started, detail.ActualEnd)
		if err != nil {
			logger.Warn("mark completed unannounced failed; retrying next tick", slog.Any("err", err))
			return
		}
		if ok {
			telemetry.BroadcastsCompleted.Inc()
			logger.Info("broadcast ended before live confirmation",
				slog.Time("started", started), slog.Time("ended", detail.ActualEnd))
		}
		return
	}
	if !detail.ScheduledStart.IsZero() && detail.ScheduledStart.After(b.ScheduledStart.Add(confirmLeeway)) {
		// the platform's own schedule moved; a stale search result almost
		// declared this live. Reschedule, no state change this tick.
		if err := UpdateSchedule(ctx, db, b.VideoID, detail.ScheduledStart); err != nil {
			logger.Warn("reschedule update failed", slog.Any("err", err))
			return
		}
		logger.Info("broadcast rescheduled",
			slog.Time("was", b.ScheduledStart), slog.Time("now", detail.ScheduledStart))
		return
	}

	handle, err := pub.Publish(ctx, cfg.AnnounceChannelID, liveMessage(b.Title, b.VideoID, detail))
	if err != nil {
		logger.Warn("announcement publish failed; retrying next tick", slog.Any("err", err))
		return
	}
	if err := pub.Pin(ctx, handle); err != nil {
		logger.Warn("announcement pin failed", slog.Any("err", err), slog.String("handle", handle.String()))
	}
	ok, err := MarkLive(ctx, db, b.VideoID, handle)
	if err != nil {
		logger.Error("mark live failed after publish", slog.Any("err", err), slog.String("handle", handle.String()))
		return
	}
	if !ok {
		logger.Warn("broadcast no longer pending; announcement may be orphaned", slog.String("handle", handle.String()))
		return
	}
	telemetry.AnnouncesPublished.Inc()
	logger.Info("broadcast confirmed live", slog.String("title", b.Title), slog.String("handle", handle.String()))
}

// liveMessage renders the announcement for a live broadcast. Missing upstream
// statistics have already been normalized to zero.
func liveMessage(title, videoID string, d *youtubeapi.VideoDetail) Message {
	return Message{
		Title: "🔴 LIVE: " + title,
		Body: fmt.Sprintf("https://youtu.be/%s\n\n👀 %d watching now\n👍 %d / 👎 %d\n▶️ %d views",
			videoID, d.ConcurrentViewers, d.LikeCount, d.DislikeCount, d.ViewCount),
	}
}

// endedMessage renders the final state of the announcement after termination.
func endedMessage(title, videoID string, d *youtubeapi.VideoDetail) Message {
	return Message{
		Title: "Stream ended: " + title,
		Body: fmt.Sprintf("https://youtu.be/%s\n\n👍 %d / 👎 %d\n▶️ %d views",
			videoID, d.LikeCount, d.DislikeCount, d.ViewCount),
	}
}
