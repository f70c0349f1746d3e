package httpapi

import (
	"net/http"
	"strings"
	"time"

	"rollcall.org/internal/audit"
	"rollcall.org/internal/auth"
)

type tokenRequest struct {
	User         string   `json:"user"`
	Organization string   `json:"organization"`
	Roles        []string `json:"roles"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if !a.devTokens {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	user := strings.TrimSpace(req.User)
	if user == "" {
		writeError(w, r, http.StatusBadRequest, "user is required")
		return
	}
	roles := make([]string, 0, len(req.Roles))
	admin := false
	for _, role := range req.Roles {
		role = strings.ToLower(strings.TrimSpace(role))
		if role == "" {
			continue
		}
		if !auth.KnownRole(role) {
			writeError(w, r, http.StatusBadRequest, "unknown role "+role)
			return
		}
		admin = admin || role == auth.RoleAdmin
		roles = append(roles, role)
	}
	if len(roles) == 0 {
		writeError(w, r, http.StatusBadRequest, "roles are required")
		return
	}
	org := strings.TrimSpace(req.Organization)
	if org == "" && !admin {
		writeError(w, r, http.StatusBadRequest, "organization is required")
		return
	}

	token, err := auth.GenerateToken(user, org, roles, a.tokenTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	fields := map[string]any{
		"user":         user,
		"organization": org,
		"roles":        roles,
		"expires_at":   expiresAt.Format(time.RFC3339),
	}
	_ = audit.LogEvent(r.Context(), "auth.token.issued", fields)

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	})
}
