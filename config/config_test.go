package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"DISCOVERY_INTERVAL", "LIFECYCLE_TICK_INTERVAL", "STREAM_START_FUDGE",
		"MESSAGE_CHAR_LIMIT", "TAG_CHAR_LIMIT", "TAG_CHAR_LIMIT_PRIVILEGED",
		"ANNOUNCE_CHANNEL_ID", "ARCHIVE_CHANNEL_ID", "DB_DSN",
	} {
		t.Setenv(key, "")
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DiscoveryInterval != time.Hour {
		t.Errorf("DiscoveryInterval = %v, want 1h", cfg.DiscoveryInterval)
	}
	if cfg.LifecycleInterval != 30*time.Second {
		t.Errorf("LifecycleInterval = %v, want 30s", cfg.LifecycleInterval)
	}
	if cfg.StreamStartFudge != 13*time.Second {
		t.Errorf("StreamStartFudge = %v, want 13s", cfg.StreamStartFudge)
	}
	if cfg.MessageCharLimit != 2000 {
		t.Errorf("MessageCharLimit = %d, want 2000", cfg.MessageCharLimit)
	}
	if cfg.TagCharLimit != 200 || cfg.TagCharLimitPrivileged != 500 {
		t.Errorf("tag limits = %d/%d, want 200/500", cfg.TagCharLimit, cfg.TagCharLimitPrivileged)
	}
	if cfg.DBDsn == "" {
		t.Error("DBDsn default empty")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DISCOVERY_INTERVAL", "15m")
	t.Setenv("LIFECYCLE_TICK_INTERVAL", "10s")
	t.Setenv("STREAM_START_FUDGE", "20s")
	t.Setenv("MESSAGE_CHAR_LIMIT", "4000")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DiscoveryInterval != 15*time.Minute {
		t.Errorf("DiscoveryInterval = %v, want 15m", cfg.DiscoveryInterval)
	}
	if cfg.LifecycleInterval != 10*time.Second {
		t.Errorf("LifecycleInterval = %v, want 10s", cfg.LifecycleInterval)
	}
	if cfg.StreamStartFudge != 20*time.Second {
		t.Errorf("StreamStartFudge = %v, want 20s", cfg.StreamStartFudge)
	}
	if cfg.MessageCharLimit != 4000 {
		t.Errorf("MessageCharLimit = %d, want 4000", cfg.MessageCharLimit)
	}
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("DISCOVERY_INTERVAL", "soon")
	t.Setenv("LIFECYCLE_TICK_INTERVAL", "-5s")
	t.Setenv("MESSAGE_CHAR_LIMIT", "zero")
	t.Setenv("TAG_CHAR_LIMIT", "-1")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DiscoveryInterval != time.Hour {
		t.Errorf("DiscoveryInterval = %v, want default on garbage", cfg.DiscoveryInterval)
	}
	if cfg.LifecycleInterval != 30*time.Second {
		t.Errorf("LifecycleInterval = %v, want default on negative", cfg.LifecycleInterval)
	}
	if cfg.MessageCharLimit != 2000 || cfg.TagCharLimit != 200 {
		t.Errorf("limits = %d/%d, want defaults", cfg.MessageCharLimit, cfg.TagCharLimit)
	}
}

func TestArchiveChannelFallsBackToAnnounce(t *testing.T) {
	t.Setenv("ANNOUNCE_CHANNEL_ID", "ann123")
	t.Setenv("ARCHIVE_CHANNEL_ID", "")
	cfg, _ := Load()
	if cfg.ArchiveChannelID != "ann123" {
		t.Errorf("ArchiveChannelID = %q, want announce fallback", cfg.ArchiveChannelID)
	}

	t.Setenv("ARCHIVE_CHANNEL_ID", "arch456")
	cfg, _ = Load()
	if cfg.ArchiveChannelID != "arch456" {
		t.Errorf("ArchiveChannelID = %q, want explicit value", cfg.ArchiveChannelID)
	}
}

func TestValidateTracking(t *testing.T) {
	base := func() *Config {
		return &Config{YTChannelID: "chan", YTAPIKey: "key", DiscordBotToken: "tok", AnnounceChannelID: "ann"}
	}

	if err := base().ValidateTracking(); err != nil {
		t.Errorf("ValidateTracking() with full config = %v", err)
	}

	c := base()
	c.YTChannelID = ""
	if err := c.ValidateTracking(); err == nil {
		t.Error("ValidateTracking() without channel id = nil")
	}

	c = base()
	c.YTAPIKey = ""
	if err := c.ValidateTracking(); err == nil {
		t.Error("ValidateTracking() without any YouTube credential = nil")
	}
	c.YTClientID = "oauth-client"
	if err := c.ValidateTracking(); err != nil {
		t.Errorf("ValidateTracking() with oauth client = %v", err)
	}

	c = base()
	c.DiscordBotToken = ""
	if err := c.ValidateTracking(); err == nil {
		t.Error("ValidateTracking() without bot token = nil")
	}
}

func TestValidateChatReady(t *testing.T) {
	c := &Config{TwitchChannel: "ch", TwitchBotUsername: "bot", TwitchOAuthToken: "oauth:x"}
	if err := c.ValidateChatReady(); err != nil {
		t.Errorf("ValidateChatReady() = %v", err)
	}
	c.TwitchOAuthToken = ""
	if err := c.ValidateChatReady(); err == nil {
		t.Error("ValidateChatReady() without token = nil")
	}
}
