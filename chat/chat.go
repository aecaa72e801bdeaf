// Package chat collects tag submissions from the community's Twitch chat.
// A viewer types "!tag <text>" while a broadcast is live and the text is
// appended to that broadcast's annotation list; the lifecycle updater's
// compiler later turns the list into archival posts.
package chat

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/peonylabs/herald/broadcast"
	"github.com/peonylabs/herald/config"
)

const tagCommand = "!tag"

// StartTagCollector connects to the configured Twitch channel and feeds !tag
// messages into the annotation store. It blocks until ctx is done.
func StartTagCollector(ctx context.Context, db *sql.DB, cfg *config.Config) {
	if err := cfg.ValidateChatReady(); err != nil {
		slog.Info("tag collector disabled", slog.Any("reason", err), slog.String("component", "chat"))
		return
	}
	client := twitch.NewClient(cfg.TwitchBotUsername, cfg.TwitchOAuthToken)

	client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		text, ok := parseTagCommand(msg.Message)
		if !ok {
			return
		}
		budget := cfg.TagCharLimit
		if privileged(msg.User.Badges) {
			budget = cfg.TagCharLimitPrivileged
		}
		err := broadcast.SubmitAnnotation(ctx, db, msg.User.ID, msg.User.DisplayName, text, budget)
		if err == nil {
			return
		}
		if reason, known := rejectionReply(err); known {
			client.Reply(msg.Channel, msg.ID, reason)
			return
		}
		slog.Error("tag submission failed", slog.Any("err", err),
			slog.String("author", msg.User.Name), slog.String("component", "chat"))
	})

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		client.Disconnect()
		close(done)
	}()

	client.Join(cfg.TwitchChannel)
	slog.Info("tag collector connecting", slog.String("channel", cfg.TwitchChannel), slog.String("component", "chat"))
	if err := client.Connect(); err != nil {
		slog.Error("twitch chat connect error", slog.Any("err", err), slog.String("component", "chat"))
	}
	<-done
}

// parseTagCommand extracts the tag text from a "!tag ..." chat line.
func parseTagCommand(message string) (string, bool) {
	if !strings.HasPrefix(strings.ToLower(message), tagCommand) {
		return "", false
	}
	rest := message[len(tagCommand):]
	if rest != "" && rest[0] != ' ' {
		// "!tagsomething" is not our command
		return "", false
	}
	return strings.TrimSpace(rest), true
}

// privileged reports whether the submitter gets the larger character budget.
func privileged(badges map[string]int) bool {
	for _, b := range []string{"broadcaster", "moderator", "vip"} {
		if badges[b] > 0 {
			return true
		}
	}
	return false
}

// rejectionReply maps submission rejections to chat-friendly replies.
func rejectionReply(err error) (string, bool) {
	switch {
	case errors.Is(err, broadcast.ErrNoLiveBroadcast):
		return "There's no live stream to tag right now!", true
	case errors.Is(err, broadcast.ErrEmptyText):
		return "Tag what? Try !tag <something memorable>", true
	case errors.Is(err, broadcast.ErrTextTooLong):
		return "That tag is too long, keep it short!", true
	}
	return "", false
}
