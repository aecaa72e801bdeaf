// Package broadcast implements the livestream lifecycle tracker: discovery of
// a creator's live/upcoming broadcasts, the state machine that confirms them
// live and detects termination, the announcement publishing around those
// transitions, and the compilation of user-submitted tags into archival posts.
//
// State flows one way: upcoming/just_live -> live -> completed. Rescheduling
// while upcoming is a field update, not a transition. All durable state lives
// in Postgres; both background loops resume from it after a restart.
package broadcast

import (
	"context"
	"time"

	"github.com/peonylabs/herald/youtubeapi"
)

// Status is a broadcast's lifecycle state.
type Status string

const (
	// StatusUpcoming marks a scheduled broadcast discovered before its start.
	StatusUpcoming Status = "upcoming"
	// StatusJustLive marks a broadcast the search index reported as live but
	// whose detail has not yet been re-validated. Treated like upcoming by the
	// updater; the distinct value records provenance.
	StatusJustLive Status = "just_live"
	// StatusLive marks a confirmed, announced broadcast.
	StatusLive Status = "live"
	// StatusCompleted is terminal.
	StatusCompleted Status = "completed"
)

// Pending reports whether the broadcast has not yet been confirmed live.
func (s Status) Pending() bool { return s == StatusUpcoming || s == StatusJustLive }

// Terminal reports whether no further transitions apply.
func (s Status) Terminal() bool { return s == StatusCompleted }

// Handle is the opaque reference to a published announcement message.
// The zero value means "no announcement yet".
type Handle struct {
	ChannelID string
	MessageID string
}

func (h Handle) IsZero() bool { return h.ChannelID == "" || h.MessageID == "" }

func (h Handle) String() string { return h.ChannelID + "/" + h.MessageID }

// Broadcast is one tracked live/upcoming video.
type Broadcast struct {
	VideoID            string
	Title              string
	Status             Status
	ScheduledStart     time.Time // zero if the platform never reported one
	ActualStart        time.Time // set only once completed
	ActualEnd          time.Time // set only once completed
	Announce           Handle    // set iff status is live or completed
	ManualEndRequested bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Annotation is one user-submitted timestamped comment tied to a broadcast.
type Annotation struct {
	ID          int64
	VideoID     string
	AuthorID    string
	DisplayName string
	SubmittedAt time.Time
	Text        string
	// OffsetSeconds is derived from SubmittedAt relative to the broadcast's
	// actual start; nil until the compiler computes and caches it.
	OffsetSeconds *int
}

// Platform is the narrow view of the video platform API both loops poll.
// youtubeapi.Service satisfies it.
type Platform interface {
	SearchBroadcasts(ctx context.Context, channelID, eventType string) ([]string, error)
	VideoDetail(ctx context.Context, id string) (*youtubeapi.VideoDetail, error)
}

// Message is the payload handed to the announcement publisher. Title and body
// render however the chat transport sees fit (e.g. a Discord embed).
type Message struct {
	Title string
	Body  string
}

// Publisher abstracts post/edit/pin over the announcement transport. The core
// never talks to the chat platform directly.
type Publisher interface {
	Publish(ctx context.Context, channelID string, msg Message) (Handle, error)
	Edit(ctx context.Context, h Handle, msg Message) error
	Pin(ctx context.Context, h Handle) error
	Unpin(ctx context.Context, h Handle) error
}
