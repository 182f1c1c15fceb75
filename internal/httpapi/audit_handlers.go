package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"authkeep.org/internal/audit"
	"authkeep.org/internal/obs"
)

// auditRecordResponse is the outward shape of one trail entry.
type auditRecordResponse struct {
	ID        string    `json:"id"`
	UserID    *int64    `json:"user_id,omitempty"`
	Action    string    `json:"action"`
	Resource  string    `json:"resource,omitempty"`
	Result    string    `json:"result"`
	Details   string    `json:"details,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toAuditResponses(recs []*audit.Record) []auditRecordResponse {
	out := make([]auditRecordResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, auditRecordResponse{
			ID:        rec.ID,
			UserID:    rec.UserID,
			Action:    rec.Action,
			Resource:  rec.Resource,
			Result:    rec.Result,
			Details:   rec.Details,
			IPAddress: rec.IPAddress,
			UserAgent: rec.UserAgent,
			CreatedAt: rec.CreatedAt,
		})
	}
	return out
}

func (a *API) auditFilterFromQuery(w http.ResponseWriter, r *http.Request) (audit.Filter, bool) {
	q := r.URL.Query()
	f := audit.Filter{
		Action: q.Get("action"),
		Result: q.Get("result"),
	}
	if raw := q.Get("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, r, http.StatusBadRequest, "user_id must be a positive integer")
			return audit.Filter{}, false
		}
		f.UserID = &id
	}
	offset, err := parsePositiveInt(q.Get("offset"), 0, 0, 1<<30)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "offset must be a non-negative integer")
		return audit.Filter{}, false
	}
	limit, err := parsePositiveInt(q.Get("limit"), 100, 1, 1000)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "limit must be between 1 and 1000")
		return audit.Filter{}, false
	}
	f.Offset, f.Limit = offset, limit
	return f, true
}

// handleAuditLogs serves the full trail to administrators.
func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	if !actor.IsAdmin {
		writeError(w, r, http.StatusForbidden, "forbidden")
		return
	}
	f, ok := a.auditFilterFromQuery(w, r)
	if !ok {
		return
	}

	recs, err := a.audits.List(r.Context(), f)
	if err != nil {
		obs.Error("audit list failed", map[string]any{"err": err.Error()})
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"logs":   toAuditResponses(recs),
		"offset": f.Offset,
		"limit":  f.Limit,
	})
}

// handleAuditLogsMy serves the caller's own slice of the trail; the user_id
// filter is pinned to the actor and cannot be overridden.
func (a *API) handleAuditLogsMy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	f, ok := a.auditFilterFromQuery(w, r)
	if !ok {
		return
	}
	f.UserID = &actor.ID

	recs, err := a.audits.List(r.Context(), f)
	if err != nil {
		obs.Error("audit list failed", map[string]any{"err": err.Error()})
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"logs":   toAuditResponses(recs),
		"offset": f.Offset,
		"limit":  f.Limit,
	})
}

func (a *API) handleAuditStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	if !actor.IsAdmin {
		writeError(w, r, http.StatusForbidden, "forbidden")
		return
	}
	f, ok := a.auditFilterFromQuery(w, r)
	if !ok {
		return
	}

	stats, err := a.audits.Stats(r.Context(), f)
	if err != nil {
		obs.Error("audit stats failed", map[string]any{"err": err.Error()})
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":     stats.Total,
		"by_action": stats.ByAction,
		"by_result": stats.ByResult,
	})
}
