package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/peonylabs/herald/broadcast"
)

// HandleStatus returns a monitoring summary: broadcast counts by status, the
// current live broadcast if any, and the discovery checkpoint.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	stats := map[string]any{}

	rows, err := h.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM broadcasts GROUP BY status`)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			_ = rows.Close()
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		counts[status] = n
	}
	_ = rows.Close()
	stats["broadcasts"] = counts

	var tags int
	_ = h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM annotations`).Scan(&tags)
	stats["tags"] = tags

	if last, ok, err := broadcast.DiscoveryCheckpoint(ctx, h.db); err == nil && ok {
		stats["discovery_last_checked"] = last.Format(time.RFC3339)
	}

	if live, err := broadcast.CurrentLive(ctx, h.db); err == nil && live != nil {
		stats["live"] = viewOf(live)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(stats)
}
