// Package youtubeapi wraps the YouTube Data API for livestream discovery and
// detail polling. It supports two access modes: a plain API key (default) or a
// stored OAuth token refreshed through golang.org/x/oauth2, persisted via the
// provided TokenStore so workers can reuse it across restarts.
package youtubeapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/peonylabs/herald/config"
)

const provider = "youtube"

// Event types accepted by SearchBroadcasts.
const (
	EventLive     = "live"
	EventUpcoming = "upcoming"
)

// callTimeout bounds every platform API call so a stuck request can only
// delay its own loop's tick, never hang it.
const callTimeout = 15 * time.Second

type TokenStore interface {
	UpsertOAuthToken(ctx context.Context, provider, accessToken, refreshToken string, expiry time.Time, scope string) error
	GetOAuthToken(ctx context.Context, provider string) (accessToken, refreshToken string, expiry time.Time, scope string, err error)
}

// VideoDetail is the normalized view of a video's livestream state. Absent
// upstream fields come back as zero values, never as errors.
type VideoDetail struct {
	ID                string
	Title             string
	ScheduledStart    time.Time // zero if the platform reports none
	ActualStart       time.Time
	ActualEnd         time.Time
	ConcurrentViewers uint64
	ViewCount         uint64
	LikeCount         uint64
	DislikeCount      uint64
}

// Ended reports whether the platform has recorded an end time for the stream.
func (d *VideoDetail) Ended() bool { return !d.ActualEnd.IsZero() }

type Service struct {
	apiKey string
	oauth  *oauth2.Config
	tokens TokenStore

	// Endpoint and HTTPClient override the real API for tests.
	Endpoint   string
	HTTPClient *http.Client
}

func New(cfg *config.Config, ts TokenStore) *Service {
	s := &Service{apiKey: cfg.YTAPIKey, tokens: ts}
	if cfg.YTClientID != "" {
		s.oauth = &oauth2.Config{
			ClientID:     cfg.YTClientID,
			ClientSecret: cfg.YTClientSecret,
			Endpoint:     google.Endpoint,
			RedirectURL:  cfg.YTRedirectURI,
			Scopes:       []string{"https://www.googleapis.com/auth/youtube.readonly"},
		}
	}
	return s
}

// AuthCodeURL returns the consent URL for the OAuth access mode.
func (s *Service) AuthCodeURL(state string) string {
	if s.oauth == nil {
		return ""
	}
	return s.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token and persists it.
func (s *Service) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if s.oauth == nil {
		return nil, errors.New("oauth not configured")
	}
	tok, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	_ = s.tokens.UpsertOAuthToken(ctx, provider, tok.AccessToken, tok.RefreshToken, tok.Expiry, "")
	return tok, nil
}

func (s *Service) refreshIfNeeded(ctx context.Context) (*oauth2.Token, error) {
	access, refresh, expiry, _, err := s.tokens.GetOAuthToken(ctx, provider)
	if err != nil {
		return nil, err
	}
	if access == "" {
		return nil, errors.New("no youtube token stored")
	}
	tok := &oauth2.Token{AccessToken: access, RefreshToken: refresh, Expiry: expiry}
	if time.Until(tok.Expiry) > 2*time.Minute {
		return tok, nil
	}
	newTok, err := s.oauth.TokenSource(ctx, tok).Token()
	if err != nil {
		return tok, err
	}
	_ = s.tokens.UpsertOAuthToken(ctx, provider, newTok.AccessToken, newTok.RefreshToken, newTok.Expiry, "")
	return newTok, nil
}

// client builds a YouTube service for one call. API key mode wins when both
// modes are configured; OAuth mode requires a previously stored token.
func (s *Service) client(ctx context.Context) (*yt.Service, error) {
	opts := []option.ClientOption{}
	if s.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(s.Endpoint))
	}
	if s.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(s.HTTPClient))
	}
	switch {
	case s.apiKey != "":
		opts = append(opts, option.WithAPIKey(s.apiKey))
	case s.oauth != nil:
		tok, err := s.refreshIfNeeded(ctx)
		if err != nil {
			return nil, fmt.Errorf("youtube token: %w", err)
		}
		opts = append(opts, option.WithTokenSource(oauth2.StaticTokenSource(tok)))
	default:
		return nil, errors.New("no youtube credentials configured")
	}
	return yt.NewService(ctx, opts...)
}

// SearchBroadcasts returns the video ids of the channel's broadcasts matching
// eventType (EventLive or EventUpcoming). The search index is eventually
// consistent; callers must re-validate through VideoDetail before acting.
func (s *Service) SearchBroadcasts(ctx context.Context, channelID, eventType string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	svc, err := s.client(ctx)
	if err != nil {
		return nil, err
	}
	res, err := svc.Search.List([]string{"id"}).
		ChannelId(channelID).
		EventType(eventType).
		Type("video").
		MaxResults(25).
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("youtube search (%s): %w", eventType, err)
	}
	ids := make([]string, 0, len(res.Items))
	for _, item := range res.Items {
		if item.Id != nil && item.Id.VideoId != "" {
			ids = append(ids, item.Id.VideoId)
		}
	}
	return ids, nil
}

// VideoDetail fetches a single video's snippet, livestream details, and
// statistics, normalized into a VideoDetail. Missing statistics or livestream
// details default to zero values.
func (s *Service) VideoDetail(ctx context.Context, id string) (*VideoDetail, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	svc, err := s.client(ctx)
	if err != nil {
		return nil, err
	}
	res, err := svc.Videos.List([]string{"snippet", "liveStreamingDetails", "statistics"}).
		Id(id).
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("youtube videos.list %s: %w", id, err)
	}
	if len(res.Items) == 0 {
		return nil, fmt.Errorf("video %s not found", id)
	}
	v := res.Items[0]
	d := &VideoDetail{ID: id}
	if v.Snippet != nil {
		d.Title = v.Snippet.Title
	}
	if ls := v.LiveStreamingDetails; ls != nil {
		d.ScheduledStart = parseTimestampOrZero(ls.ScheduledStartTime)
		d.ActualStart = parseTimestampOrZero(ls.ActualStartTime)
		d.ActualEnd = parseTimestampOrZero(ls.ActualEndTime)
		d.ConcurrentViewers = ls.ConcurrentViewers
	}
	if st := v.Statistics; st != nil {
		d.ViewCount = st.ViewCount
		d.LikeCount = st.LikeCount
		d.DislikeCount = st.DislikeCount
	}
	return d, nil
}

// timestampLayouts covers the two upstream variants observed in the wild:
// plain RFC3339 and RFC3339 with fractional seconds.
var timestampLayouts = []string{time.RFC3339, time.RFC3339Nano}

// ParseTimestamp parses an upstream ISO-8601 UTC timestamp, accepting both
// with and without fractional seconds.
func ParseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q: %w", s, lastErr)
}

func parseTimestampOrZero(s string) time.Time {
	t, err := ParseTimestamp(s)
	if err != nil {
		return time.Time{}
	}
	return t
}
