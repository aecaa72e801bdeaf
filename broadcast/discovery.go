package broadcast

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/peonylabs/herald/config"
	"github.com/peonylabs/herald/telemetry"
	"github.com/peonylabs/herald/youtubeapi"
)

// discoveryRetryDelay is how long the poller waits before retrying after a
// failed pass or an unreadable checkpoint.
const discoveryRetryDelay = time.Minute

// StartDiscoveryJob polls the platform for the tracked channel's live and
// upcoming broadcasts, throttled to one pass per cfg.DiscoveryInterval. The
// throttle window is persisted, so a restart inside the window sleeps out the
// remainder instead of searching again.
func StartDiscoveryJob(ctx context.Context, db *sql.DB, platform Platform, cfg *config.Config) {
	slog.Info("discovery job starting",
		slog.String("channel_id", cfg.YTChannelID),
		slog.Duration("interval", cfg.DiscoveryInterval),
		slog.String("component", "discovery"))
	for {
		if ctx.Err() != nil {
			slog.Info("discovery job stopped", slog.String("component", "discovery"))
			return
		}
		if wait := runDiscoveryPass(ctx, db, platform, cfg); wait > 0 {
			sleepCtx(ctx, wait)
		}
	}
}

// runDiscoveryPass makes one throttle decision and, when a pass is due, runs
// it and advances the checkpoint. The returned duration is how long the
// caller must wait before calling again; zero means a pass just succeeded and
// the next call computes the fresh throttle window. Every failure path
// returns a delay, so a partially broken store can never turn the loop into
// a zero-delay hammer on the search API.
func runDiscoveryPass(ctx context.Context, db *sql.DB, platform Platform, cfg *config.Config) time.Duration {
	last, ok, err := DiscoveryCheckpoint(ctx, db)
	if err != nil {
		slog.Warn("discovery checkpoint read", slog.Any("err", err), slog.String("component", "discovery"))
		return discoveryRetryDelay
	}
	if ok {
		if remaining := cfg.DiscoveryInterval - time.Since(last); remaining > 0 {
			slog.Debug("discovery throttled", slog.Duration("remaining", remaining), slog.String("component", "discovery"))
			return remaining
		}
	}
	err = nil
	telemetry.TimeFunc(telemetry.DiscoveryDuration, func() {
		err = discoverOnce(ctx, db, platform, cfg)
	})
	if err != nil {
		slog.Warn("discovery pass failed", slog.Any("err", err), slog.String("component", "discovery"))
		return discoveryRetryDelay
	}
	if err := SetDiscoveryCheckpoint(ctx, db, time.Now().UTC()); err != nil {
		// the stale checkpoint would let the next iteration search again
		// immediately; back off until the kv write recovers
		slog.Warn("discovery checkpoint write", slog.Any("err", err), slog.String("component", "discovery"))
		return discoveryRetryDelay
	}
	return 0
}

// discoverOnce runs a single full discovery pass: search live and upcoming,
// insert every unseen broadcast. A failed search aborts the pass (transient,
// retried); a failed detail fetch skips only that candidate.
func discoverOnce(ctx context.Context, db *sql.DB, platform Platform, cfg *config.Config) error {
	telemetry.DiscoveryPasses.Inc()
	now := time.Now().UTC()
	for _, eventType := range []string{youtubeapi.EventLive, youtubeapi.EventUpcoming} {
		ids, err := platform.SearchBroadcasts(ctx, cfg.YTChannelID, eventType)
		if err != nil {
			telemetry.PlatformAPIErrors.Inc()
			return err
		}
		for _, id := range ids {
			existing, err := GetBroadcast(ctx, db, id)
			if err != nil {
				return err
			}
			if existing != nil {
				continue
			}
			detail, err := platform.VideoDetail(ctx, id)
			if err != nil {
				// one bad response must not abort the whole pass
				telemetry.PlatformAPIErrors.Inc()
				slog.Warn("discovery detail fetch failed; skipping candidate",
					slog.String("video_id", id), slog.Any("err", err), slog.String("component", "discovery"))
				continue
			}
			status := StatusJustLive
			if eventType == youtubeapi.EventUpcoming {
				// stale search results surface past "upcoming" streams; drop them
				if detail.ScheduledStart.IsZero() || !detail.ScheduledStart.After(now) {
					slog.Debug("skipping stale upcoming result",
						slog.String("video_id", id), slog.Time("scheduled", detail.ScheduledStart), slog.String("component", "discovery"))
					continue
				}
				status = StatusUpcoming
			} else if detail.Ended() {
				// the search index lags; this one already finished
				continue
			}
			b := &Broadcast{VideoID: id, Title: detail.Title, Status: status, ScheduledStart: detail.ScheduledStart}
			if err := InsertBroadcast(ctx, db, b); err != nil {
				return err
			}
			telemetry.DiscoveryInserted.Inc()
			slog.Info("discovered broadcast",
				slog.String("video_id", id),
				slog.String("title", detail.Title),
				slog.String("status", string(status)),
				slog.Time("scheduled", detail.ScheduledStart),
				slog.String("component", "discovery"))
		}
	}
	return nil
}

// DiscoverNow runs a single discovery pass immediately, bypassing the
// throttle window. The checkpoint advances on success so the poller does not
// repeat the pass at its next wakeup.
func DiscoverNow(ctx context.Context, db *sql.DB, platform Platform, cfg *config.Config) error {
	if err := discoverOnce(ctx, db, platform, cfg); err != nil {
		return err
	}
	return SetDiscoveryCheckpoint(ctx, db, time.Now().UTC())
}

// sleepCtx sleeps for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
