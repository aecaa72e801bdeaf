package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/peonylabs/herald/broadcast"
)

// HandleAdminDiscoveryRun forces a discovery pass outside the throttle window.
func (h *Handlers) HandleAdminDiscoveryRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := h.cfg.ValidateTracking(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := broadcast.DiscoverNow(r.Context(), h.db, h.platform, h.cfg); err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "channel_id": h.cfg.YTChannelID})
}

// HandleAdminBroadcastsDispatcher routes /admin/broadcasts/{id}/* requests.
func (h *Handlers) HandleAdminBroadcastsDispatcher(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/admin/broadcasts/")
	parts := strings.Split(path, "/")
	videoID := parts[0]
	tail := ""
	if len(parts) > 1 {
		tail = strings.Join(parts[1:], "/")
	}
	switch {
	case videoID == "" || videoID == "/":
		http.NotFound(w, r)
	case tail == "recompile":
		h.handleAdminRecompile(w, r, videoID)
	default:
		http.NotFound(w, r)
	}
}

// handleAdminRecompile re-runs tag compilation for a completed broadcast,
// recomputing offsets and re-emitting archive posts. Used when tags landed
// after the completed transition.
func (h *Handlers) handleAdminRecompile(w http.ResponseWriter, r *http.Request, videoID string) {
	if r.Method != http.MethodPost {
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
	if b.Status != broadcast.StatusCompleted {
		http.Error(w, "broadcast is not completed", http.StatusConflict)
		return
	}
	if err := broadcast.CompileAnnotations(r.Context(), h.db, h.pub, b, true, h.cfg); err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "id": videoID})
}
