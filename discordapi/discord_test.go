package discordapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/peonylabs/herald/broadcast"
	"github.com/peonylabs/herald/testutil"
)

func newTestClient(m *testutil.MockDiscordServer) *Client {
	return &Client{BotToken: "tok", BaseURL: m.URL, HTTPClient: m.Client()}
}

func TestPublish(t *testing.T) {
	m := testutil.NewMockDiscordServer(t)
	c := newTestClient(m)

	h, err := c.Publish(context.Background(), "chan1", broadcast.Message{Title: "🔴 LIVE: Stream", Body: "body"})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if h.ChannelID != "chan1" || h.MessageID == "" {
		t.Errorf("Publish() handle = %+v", h)
	}
	if len(m.Published) != 1 {
		t.Fatalf("recorded %d messages, want 1", len(m.Published))
	}
	if m.Published[0].Title != "🔴 LIVE: Stream" || m.Published[0].Body != "body" {
		t.Errorf("recorded = %+v", m.Published[0])
	}
}

func TestEditPinUnpin(t *testing.T) {
	m := testutil.NewMockDiscordServer(t)
	c := newTestClient(m)
	ctx := context.Background()

	h, err := c.Publish(ctx, "chan1", broadcast.Message{Title: "t", Body: "b"})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Edit(ctx, h, broadcast.Message{Title: "t2", Body: "b2"}); err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	if len(m.Edits) != 1 || m.Edits[0].MessageID != h.MessageID || m.Edits[0].Title != "t2" {
		t.Errorf("edit recorded = %+v", m.Edits)
	}

	if err := c.Pin(ctx, h); err != nil {
		t.Fatalf("Pin() error = %v", err)
	}
	if err := c.Unpin(ctx, h); err != nil {
		t.Fatalf("Unpin() error = %v", err)
	}
	want := h.ChannelID + "/" + h.MessageID
	if len(m.Pins) != 1 || m.Pins[0] != want {
		t.Errorf("pins = %v, want [%s]", m.Pins, want)
	}
	if len(m.Unpins) != 1 || m.Unpins[0] != want {
		t.Errorf("unpins = %v, want [%s]", m.Unpins, want)
	}
}

func TestEmptyHandleRejected(t *testing.T) {
	m := testutil.NewMockDiscordServer(t)
	c := newTestClient(m)
	ctx := context.Background()

	if err := c.Edit(ctx, broadcast.Handle{}, broadcast.Message{}); err == nil {
		t.Error("Edit(zero handle) = nil error, want error")
	}
	if err := c.Pin(ctx, broadcast.Handle{}); err == nil {
		t.Error("Pin(zero handle) = nil error, want error")
	}
	if err := c.Unpin(ctx, broadcast.Handle{}); err == nil {
		t.Error("Unpin(zero handle) = nil error, want error")
	}
}

func TestAuthHeaderAndErrorBody(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		http.Error(w, `{"message": "Missing Access", "code": 50001}`, http.StatusForbidden)
	}))
	defer srv.Close()

	c := &Client{BotToken: "secret", BaseURL: srv.URL}
	_, err := c.Publish(context.Background(), "chan1", broadcast.Message{Title: "t"})
	if err == nil {
		t.Fatal("Publish() against 403 = nil error, want error")
	}
	if gotAuth != "Bot secret" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bot secret")
	}
	if !strings.Contains(err.Error(), "403") || !strings.Contains(err.Error(), "Missing Access") {
		t.Errorf("error = %v, want status and body text", err)
	}
}
