package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// MockYouTubeServer mocks the YouTube Data API v3. Point a youtubeapi.Service
// at it via the Endpoint override.
type MockYouTubeServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockYouTubeServer creates a new mock YouTube Data API server.
func NewMockYouTubeServer(t *testing.T) *MockYouTubeServer {
	t.Helper()
	m := &MockYouTubeServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := m.Handlers[r.URL.Path]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// MockSearchResponse adds a handler for the search endpoint, keyed by the
// eventType query parameter.
func (m *MockYouTubeServer) MockSearchResponse(idsByEventType map[string][]string) {
	m.Handlers["/youtube/v3/search"] = func(w http.ResponseWriter, r *http.Request) {
		items := []map[string]any{}
		for _, id := range idsByEventType[r.URL.Query().Get("eventType")] {
			items = append(items, map[string]any{
				"id": map[string]string{"kind": "youtube#video", "videoId": id},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"items": items}) //nolint:errcheck // test mock response
	}
}

// VideoFixture is one mocked video detail response. Empty timestamp fields are
// omitted, mirroring the real API.
type VideoFixture struct {
	ID                string
	Title             string
	ScheduledStart    string
	ActualStart       string
	ActualEnd         string
	ConcurrentViewers uint64
	ViewCount         uint64
	LikeCount         uint64
}

// MockVideosResponse adds a handler for the videos endpoint serving the given
// fixtures by id. Unknown ids return an empty item list.
func (m *MockYouTubeServer) MockVideosResponse(fixtures ...VideoFixture) {
	byID := make(map[string]VideoFixture, len(fixtures))
	for _, f := range fixtures {
		byID[f.ID] = f
	}
	m.Handlers["/youtube/v3/videos"] = func(w http.ResponseWriter, r *http.Request) {
		items := []map[string]any{}
		if f, ok := byID[r.URL.Query().Get("id")]; ok {
			ls := map[string]any{}
			if f.ScheduledStart != "" {
				ls["scheduledStartTime"] = f.ScheduledStart
			}
			if f.ActualStart != "" {
				ls["actualStartTime"] = f.ActualStart
			}
			if f.ActualEnd != "" {
				ls["actualEndTime"] = f.ActualEnd
			}
			if f.ConcurrentViewers > 0 {
				// uint64 fields cross the wire as strings
				ls["concurrentViewers"] = strconv.FormatUint(f.ConcurrentViewers, 10)
			}
			items = append(items, map[string]any{
				"id":                   f.ID,
				"snippet":              map[string]any{"title": f.Title},
				"liveStreamingDetails": ls,
				"statistics": map[string]any{
					"viewCount": strconv.FormatUint(f.ViewCount, 10),
					"likeCount": strconv.FormatUint(f.LikeCount, 10),
				},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"items": items}) //nolint:errcheck // test mock response
	}
}

// MockDiscordServer mocks the Discord REST endpoints the publisher uses,
// recording every call for assertions.
type MockDiscordServer struct {
	*httptest.Server

	mu        sync.Mutex
	nextID    int
	Published []PublishedMessage
	Edits     []PublishedMessage
	Pins      []string
	Unpins    []string
}

// PublishedMessage is one recorded message create or edit.
type PublishedMessage struct {
	ChannelID string
	MessageID string
	Title     string
	Body      string
}

// NewMockDiscordServer creates a new mock Discord API server.
func NewMockDiscordServer(t *testing.T) *MockDiscordServer {
	t.Helper()
	m := &MockDiscordServer{nextID: 1000}
	m.Server = httptest.NewServer(http.HandlerFunc(m.route))
	t.Cleanup(m.Close)
	return m
}

func (m *MockDiscordServer) route(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	// /channels/{cid}/messages[/{mid}] and /channels/{cid}/pins/{mid}
	if len(parts) < 3 || parts[0] != "channels" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	channelID := parts[1]
	switch {
	case parts[2] == "messages" && len(parts) == 3 && r.Method == http.MethodPost:
		title, body := decodeEmbed(r)
		m.nextID++
		id := fmt.Sprintf("%d", m.nextID)
		m.Published = append(m.Published, PublishedMessage{ChannelID: channelID, MessageID: id, Title: title, Body: body})
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"id": id, "channel_id": channelID}) //nolint:errcheck // test mock response
	case parts[2] == "messages" && len(parts) == 4 && r.Method == http.MethodPatch:
		title, body := decodeEmbed(r)
		m.Edits = append(m.Edits, PublishedMessage{ChannelID: channelID, MessageID: parts[3], Title: title, Body: body})
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"id": parts[3], "channel_id": channelID}) //nolint:errcheck // test mock response
	case parts[2] == "pins" && len(parts) == 4 && r.Method == http.MethodPut:
		m.Pins = append(m.Pins, channelID+"/"+parts[3])
		w.WriteHeader(http.StatusNoContent)
	case parts[2] == "pins" && len(parts) == 4 && r.Method == http.MethodDelete:
		m.Unpins = append(m.Unpins, channelID+"/"+parts[3])
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func decodeEmbed(r *http.Request) (title, body string) {
	var payload struct {
		Embeds []struct {
			Title       string `json:"title"`
			Description string `json:"description"`
		} `json:"embeds"`
	}
	_ = json.NewDecoder(r.Body).Decode(&payload)
	if len(payload.Embeds) > 0 {
		return payload.Embeds[0].Title, payload.Embeds[0].Description
	}
	return "", ""
}
