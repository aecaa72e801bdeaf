package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/peonylabs/herald/broadcast"
)

// broadcastView is the JSON shape of one tracked broadcast.
type broadcastView struct {
	ScheduledStart *time.Time `json:"scheduled_start,omitempty"`
	ActualStart    *time.Time `json:"actual_start,omitempty"`
	ActualEnd      *time.Time `json:"actual_end,omitempty"`
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Status         string     `json:"status"`
	AnnounceRef    string     `json:"announce_ref,omitempty"`
	ManualEnd      bool       `json:"manual_end_requested,omitempty"`
}

func viewOf(b *broadcast.Broadcast) broadcastView {
	v := broadcastView{
		ID:        b.VideoID,
		Title:     b.Title,
		Status:    string(b.Status),
		ManualEnd: b.ManualEndRequested,
	}
	if !b.ScheduledStart.IsZero() {
		t := b.ScheduledStart
		v.ScheduledStart = &t
	}
	if !b.ActualStart.IsZero() {
		t := b.ActualStart
		v.ActualStart = &t
	}
	if !b.ActualEnd.IsZero() {
		t := b.ActualEnd
		v.ActualEnd = &t
	}
	if !b.Announce.IsZero() {
		v.AnnounceRef = b.Announce.String()
	}
	return v
}

// HandleBroadcastsList returns a paginated list of tracked broadcasts,
// optionally filtered with ?status=live.
func (h *Handlers) HandleBroadcastsList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	// Basic pagination: ?limit=50&offset=0
	limit := parseIntQuery(r, "limit", 50)
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := parseIntQuery(r, "offset", 0)

	q := `SELECT video_id, COALESCE(title,''), status, scheduled_start, actual_start, actual_end,
			COALESCE(announce_channel_id,''), COALESCE(announce_message_id,''),
			COALESCE(manual_end_requested, FALSE)
		FROM broadcasts`
	args := []any{}
	if status := r.URL.Query().Get("status"); status != "" {
		q += ` WHERE status=$1`
		args = append(args, status)
	}
	q += ` ORDER BY COALESCE(scheduled_start, created_at) DESC, id DESC`
	if len(args) == 1 {
		q += ` LIMIT $2 OFFSET $3`
	} else {
		q += ` LIMIT $1 OFFSET $2`
	}
	args = append(args, limit, offset)

	rows, err := h.db.QueryContext(r.Context(), q, args...)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Warn("failed to close rows", slog.Any("err", err))
		}
	}()

	list := make([]broadcastView, 0)
	for rows.Next() {
		var b broadcast.Broadcast
		var scheduled, started, ended *time.Time
		if err := rows.Scan(&b.VideoID, &b.Title, &b.Status, &scheduled, &started, &ended,
			&b.Announce.ChannelID, &b.Announce.MessageID, &b.ManualEndRequested); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if scheduled != nil {
			b.ScheduledStart = scheduled.UTC()
		}
		if started != nil {
			b.ActualStart = started.UTC()
		}
		if ended != nil {
			b.ActualEnd = ended.UTC()
		}
		list = append(list, viewOf(&b))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}

// HandleBroadcastsDispatcher routes requests under /broadcasts/{id}/* to the
// appropriate sub-handlers.
func (h *Handlers) HandleBroadcastsDispatcher(w http.ResponseWriter, r *http.Request) {
	// crude routing
	path := strings.TrimPrefix(r.URL.Path, "/broadcasts/")
	parts := strings.Split(path, "/")
	videoID := parts[0]
	tail := ""
	if len(parts) > 1 {
		tail = strings.Join(parts[1:], "/")
	}
	switch {
	case videoID == "" || videoID == "/":
		http.NotFound(w, r)
	case tail == "":
		h.handleBroadcastDetail(w, r, videoID)
	case tail == "tags":
		h.handleBroadcastTags(w, r, videoID)
	case tail == "end":
		h.handleBroadcastEnd(w, r, videoID)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handlers) handleBroadcastDetail(w http.ResponseWriter, r *http.Request, videoID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	b, err := broadcast.GetBroadcast(r.Context(), h.db, videoID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if b == nil {
		http.NotFound(w, r)
		return
	}
	anns, err := broadcast.ListAnnotations(r.Context(), h.db, videoID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	type tag struct {
		SubmittedAt time.Time `json:"submitted_at"`
		Offset      *int      `json:"offset_seconds,omitempty"`
		Author      string    `json:"author"`
		Text        string    `json:"text"`
	}
	tags := make([]tag, 0, len(anns))
	for _, a := range anns {
		tags = append(tags, tag{Author: a.DisplayName, SubmittedAt: a.SubmittedAt, Text: a.Text, Offset: a.OffsetSeconds})
	}
	resp := struct {
		broadcastView
		Tags []tag `json:"tags"`
	}{viewOf(b), tags}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// handleBroadcastTags accepts a tag submission for the current live broadcast.
func (h *Handlers) handleBroadcastTags(w http.ResponseWriter, r *http.Request, videoID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		AuthorID    string `json:"author_id"`
		DisplayName string `json:"display_name"`
		Text        string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	live, err := broadcast.CurrentLive(r.Context(), h.db)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if live == nil || live.VideoID != videoID {
		http.Error(w, "broadcast is not live", http.StatusConflict)
		return
	}
	err = broadcast.SubmitAnnotation(r.Context(), h.db, req.AuthorID, req.DisplayName, req.Text, h.cfg.TagCharLimit)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusCreated)
	case errors.Is(err, broadcast.ErrEmptyText):
		http.Error(w, "text required", http.StatusBadRequest)
	case errors.Is(err, broadcast.ErrTextTooLong):
		http.Error(w, "text too long", http.StatusRequestEntityTooLarge)
	case errors.Is(err, broadcast.ErrNoLiveBroadcast):
		http.Error(w, "broadcast is not live", http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// handleBroadcastEnd marks a live broadcast for early termination; the next
// updater tick performs the actual transition.
func (h *Handlers) handleBroadcastEnd(w http.ResponseWriter, r *http.Request, videoID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ok, err := broadcast.RequestManualEnd(r.Context(), h.db, videoID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "broadcast is not live", http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
