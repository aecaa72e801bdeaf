// Command recompile forces a tag compilation pass for one completed
// broadcast, recomputing offsets and re-emitting the archive posts. Use it
// when tags landed after the stream's completed transition:
//
//	recompile <video-id>
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/peonylabs/herald/broadcast"
	"github.com/peonylabs/herald/config"
	"github.com/peonylabs/herald/db"
	"github.com/peonylabs/herald/discordapi"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: recompile <video-id>")
		os.Exit(2)
	}
	videoID := os.Args[1]

	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if cfg.DiscordBotToken == "" || cfg.ArchiveChannelID == "" {
		slog.Error("missing env: require DISCORD_BOT_TOKEN and ANNOUNCE_CHANNEL_ID or ARCHIVE_CHANNEL_ID")
		os.Exit(1)
	}

	database, err := db.Connect()
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() { _ = database.Close() }()

	ctx := context.Background()
	b, err := broadcast.GetBroadcast(ctx, database, videoID)
	if err != nil {
		slog.Error("lookup failed", slog.Any("err", err))
		os.Exit(1)
	}
	if b == nil {
		slog.Error("no such broadcast", slog.String("video_id", videoID))
		os.Exit(1)
	}
	if b.Status != broadcast.StatusCompleted {
		slog.Error("broadcast is not completed", slog.String("video_id", videoID), slog.String("status", string(b.Status)))
		os.Exit(1)
	}

	pub := &discordapi.Client{BotToken: cfg.DiscordBotToken}
	if err := broadcast.CompileAnnotations(ctx, database, pub, b, true, cfg); err != nil {
		slog.Error("recompile failed", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("recompile complete", slog.String("video_id", videoID))
}
