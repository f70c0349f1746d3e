package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"rollcall.org/internal/activity"
	"rollcall.org/internal/audit"
	"rollcall.org/internal/auth"
	"rollcall.org/internal/obs"
	"rollcall.org/internal/roster"
)

type createRoleRequest struct {
	Name        string `json:"name"`
	IsOwnerRole bool   `json:"is_owner_role"`
}

type createQuotaRequest struct {
	Name              string   `json:"name"`
	Type              string   `json:"type"`
	Value             float64  `json:"value"`
	SessionTypeFilter string   `json:"session_type_filter"`
	RoleIDs           []string `json:"role_ids"`
}

type adjustmentRequest struct {
	UserID  int64  `json:"user_id"`
	Minutes int64  `json:"minutes"`
	Reason  string `json:"reason"`
}

// settingsRequest carries a partial update; nil fields keep their value.
type settingsRequest struct {
	IdleTimeEnabled     *bool      `json:"idle_time_enabled"`
	IncludeOpenSessions *bool      `json:"include_open_sessions"`
	TrackingEpoch       *time.Time `json:"tracking_epoch"`
	Categories          []string   `json:"categories"`
}

type settingsResponse struct {
	IdleTimeEnabled     bool      `json:"idle_time_enabled"`
	IncludeOpenSessions bool      `json:"include_open_sessions"`
	TrackingEpoch       time.Time `json:"tracking_epoch"`
	Categories          []string  `json:"categories"`
}

type listResponse[T any] struct {
	Items []T `json:"items"`
}

func newSettingsResponse(st activity.Settings) settingsResponse {
	cats := st.Categories
	if cats == nil {
		cats = []string{}
	}
	return settingsResponse{
		IdleTimeEnabled:     st.IdleTimeEnabled,
		IncludeOpenSessions: st.IncludeOpenSessions,
		TrackingEpoch:       st.TrackingEpoch,
		Categories:          cats,
	}
}

func items[T any](v []T) listResponse[T] {
	if v == nil {
		v = []T{}
	}
	return listResponse[T]{Items: v}
}

func (a *API) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := a.roster.ListRoles(r.Context(), chi.URLParam(r, "org"))
	if err != nil {
		handleRosterError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items(roles))
}

func (a *API) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := a.roster.CreateRole(r.Context(), chi.URLParam(r, "org"), req.Name, req.IsOwnerRole)
	if err != nil {
		handleRosterError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "roster.role.created", map[string]any{
		"role_id":       role.ID,
		"name":          role.Name,
		"is_owner_role": role.IsOwnerRole,
	})
	writeJSON(w, http.StatusCreated, role)
}

func (a *API) assignRole(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserID(chi.URLParam(r, "user"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	asg, err := a.roster.AssignRole(r.Context(), chi.URLParam(r, "org"), userID, chi.URLParam(r, "role"))
	if err != nil {
		handleRosterError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "roster.role.assigned", map[string]any{
		"member_id": asg.UserID,
		"role_id":   asg.RoleID,
	})
	writeJSON(w, http.StatusCreated, asg)
}

func (a *API) removeRole(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserID(chi.URLParam(r, "user"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	roleID := chi.URLParam(r, "role")
	if err := a.roster.RemoveRole(r.Context(), chi.URLParam(r, "org"), userID, roleID); err != nil {
		handleRosterError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "roster.role.removed", map[string]any{
		"member_id": userID,
		"role_id":   roleID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listQuotas(w http.ResponseWriter, r *http.Request) {
	quotas, err := a.roster.ListQuotas(r.Context(), chi.URLParam(r, "org"))
	if err != nil {
		handleRosterError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items(quotas))
}

func (a *API) createQuota(w http.ResponseWriter, r *http.Request) {
	var req createQuotaRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	q, err := a.roster.CreateQuota(r.Context(), chi.URLParam(r, "org"), activity.Quota{
		Name:              req.Name,
		Type:              activity.QuotaType(req.Type),
		Value:             req.Value,
		SessionTypeFilter: req.SessionTypeFilter,
		RoleIDs:           req.RoleIDs,
	})
	if err != nil {
		handleRosterError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "roster.quota.created", map[string]any{
		"quota_id": q.ID,
		"type":     string(q.Type),
		"value":    q.Value,
		"role_ids": q.RoleIDs,
	})
	writeJSON(w, http.StatusCreated, q)
}

func (a *API) deleteQuota(w http.ResponseWriter, r *http.Request) {
	quotaID := chi.URLParam(r, "quota")
	if err := a.roster.DeleteQuota(r.Context(), chi.URLParam(r, "org"), quotaID); err != nil {
		handleRosterError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "roster.quota.deleted", map[string]any{"quota_id": quotaID})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listResets(w http.ResponseWriter, r *http.Request) {
	resets, err := a.roster.ListResets(r.Context(), chi.URLParam(r, "org"))
	if err != nil {
		handleRosterError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items(resets))
}

func (a *API) resetPeriod(w http.ResponseWriter, r *http.Request) {
	reset, err := a.roster.ResetPeriod(r.Context(), chi.URLParam(r, "org"), actor(r))
	if err != nil {
		handleRosterError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "roster.period.reset", map[string]any{
		"reset_id": reset.ID,
		"reset_at": reset.ResetAt.Format(time.RFC3339),
	})
	writeJSON(w, http.StatusCreated, reset)
}

func (a *API) addAdjustment(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	adj, err := a.roster.AddAdjustment(r.Context(), chi.URLParam(r, "org"), req.UserID, req.Minutes, req.Reason, actor(r))
	if err != nil {
		handleRosterError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "roster.adjustment.added", map[string]any{
		"adjustment_id": adj.ID,
		"member_id":     adj.UserID,
		"minutes":       adj.Minutes,
		"reason":        adj.Reason,
	})
	writeJSON(w, http.StatusCreated, adj)
}

func (a *API) getSettings(w http.ResponseWriter, r *http.Request) {
	st, err := a.roster.GetSettings(r.Context(), chi.URLParam(r, "org"))
	if err != nil {
		handleRosterError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSettingsResponse(st))
}

func (a *API) putSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	st, err := a.roster.UpdateSettings(r.Context(), chi.URLParam(r, "org"), activity.SettingsPatch{
		IdleTimeEnabled:     req.IdleTimeEnabled,
		IncludeOpenSessions: req.IncludeOpenSessions,
		TrackingEpoch:       req.TrackingEpoch,
		Categories:          req.Categories,
	})
	if err != nil {
		handleRosterError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "roster.settings.updated", map[string]any{
		"idle_time_enabled":     st.IdleTimeEnabled,
		"include_open_sessions": st.IncludeOpenSessions,
		"tracking_epoch":        st.TrackingEpoch.Format(time.RFC3339),
		"categories":            st.Categories,
	})
	writeJSON(w, http.StatusOK, newSettingsResponse(st))
}

func actor(r *http.Request) string {
	if p, ok := auth.PrincipalFromContext(r.Context()); ok {
		return p.UserID
	}
	return ""
}

func handleRosterError(w http.ResponseWriter, r *http.Request, err error) {
	var cfgErr *activity.ConfigurationError
	switch {
	case errors.As(err, &cfgErr), errors.Is(err, roster.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, roster.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, roster.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		obs.Logger().ErrorContext(r.Context(), "roster operation failed",
			"request_id", RequestIDFromContext(r.Context()),
			"error", err.Error(),
		)
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
