// Package discordapi contains a minimal Discord REST client for publishing,
// editing, and pinning announcement messages. It implements the tracker's
// Publisher interface; the rest of the Discord surface (commands, roles,
// moderation) lives outside this service.
package discordapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/peonylabs/herald/broadcast"
)

const defaultBaseURL = "https://discord.com/api/v10"

// embedColor is the accent color of announcement embeds (peony pink).
const embedColor = 0xE8A2B8

// Client calls the Discord REST API with a bot token.
type Client struct {
	BotToken   string
	BaseURL    string // overridable for tests
	HTTPClient *http.Client
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) base() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return defaultBaseURL
}

type embed struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Color       int    `json:"color,omitempty"`
}

type messagePayload struct {
	Embeds []embed `json:"embeds"`
}

type messageResponse struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
}

func payloadFor(msg broadcast.Message) messagePayload {
	return messagePayload{Embeds: []embed{{Title: msg.Title, Description: msg.Body, Color: embedColor}}}
}

// do executes one authorized request and decodes the response into out when
// non-nil. Non-2xx responses are returned as errors with the body text.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base()+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bot "+c.BotToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http().Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("discord %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// Publish posts a new announcement message and returns its handle.
func (c *Client) Publish(ctx context.Context, channelID string, msg broadcast.Message) (broadcast.Handle, error) {
	var res messageResponse
	if err := c.do(ctx, http.MethodPost, "/channels/"+channelID+"/messages", payloadFor(msg), &res); err != nil {
		return broadcast.Handle{}, err
	}
	if res.ID == "" {
		return broadcast.Handle{}, fmt.Errorf("discord publish: empty message id")
	}
	return broadcast.Handle{ChannelID: channelID, MessageID: res.ID}, nil
}

// Edit replaces the content of an existing announcement message in place.
func (c *Client) Edit(ctx context.Context, h broadcast.Handle, msg broadcast.Message) error {
	if h.IsZero() {
		return fmt.Errorf("discord edit: empty handle")
	}
	return c.do(ctx, http.MethodPatch, "/channels/"+h.ChannelID+"/messages/"+h.MessageID, payloadFor(msg), nil)
}

// Pin pins the message in its channel.
func (c *Client) Pin(ctx context.Context, h broadcast.Handle) error {
	if h.IsZero() {
		return fmt.Errorf("discord pin: empty handle")
	}
	return c.do(ctx, http.MethodPut, "/channels/"+h.ChannelID+"/pins/"+h.MessageID, nil, nil)
}

// Unpin removes the pin; the message itself stays.
func (c *Client) Unpin(ctx context.Context, h broadcast.Handle) error {
	if h.IsZero() {
		return fmt.Errorf("discord unpin: empty handle")
	}
	return c.do(ctx, http.MethodDelete, "/channels/"+h.ChannelID+"/pins/"+h.MessageID, nil, nil)
}
