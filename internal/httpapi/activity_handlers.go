package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"rollcall.org/internal/activity"
)

type startSessionRequest struct {
	UserID int64 `json:"user_id"`
}

type endSessionRequest struct {
	IdleMinutes  float64 `json:"idle_minutes"`
	MessageCount int64   `json:"message_count"`
}

type recordEventRequest struct {
	OwnerID   int64               `json:"owner_id"`
	Date      time.Time           `json:"date"`
	EventType string              `json:"event_type"`
	Slots     []activity.RoleSlot `json:"slots"`
}

type claimSlotRequest struct {
	UserID    int64 `json:"user_id"`
	SlotIndex int   `json:"slot_index"`
}

type recordVisitRequest struct {
	HostID         int64   `json:"host_id"`
	ParticipantIDs []int64 `json:"participant_ids"`
}

func (a *API) startSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ps, err := a.roster.StartSession(r.Context(), chi.URLParam(r, "org"), req.UserID)
	if err != nil {
		handleRosterError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ps)
}

func (a *API) endSession(w http.ResponseWriter, r *http.Request) {
	var req endSessionRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ps, err := a.roster.EndSession(r.Context(), chi.URLParam(r, "org"), chi.URLParam(r, "session"), req.IdleMinutes, req.MessageCount)
	if err != nil {
		handleRosterError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (a *API) recordEvent(w http.ResponseWriter, r *http.Request) {
	var req recordEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ev, err := a.roster.RecordEvent(r.Context(), chi.URLParam(r, "org"), activity.HostedEvent{
		OwnerID:      req.OwnerID,
		Date:         req.Date,
		EventTypeTag: req.EventType,
		Slots:        req.Slots,
	})
	if err != nil {
		handleRosterError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

func (a *API) claimSlot(w http.ResponseWriter, r *http.Request) {
	var req claimSlotRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	p, err := a.roster.ClaimSlot(r.Context(), chi.URLParam(r, "org"), chi.URLParam(r, "event"), req.UserID, req.SlotIndex)
	if err != nil {
		handleRosterError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (a *API) recordVisit(w http.ResponseWriter, r *http.Request) {
	var req recordVisitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	v, err := a.roster.RecordVisit(r.Context(), chi.URLParam(r, "org"), req.HostID, req.ParticipantIDs)
	if err != nil {
		handleRosterError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}
