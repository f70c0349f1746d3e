package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"rollcall.org/internal/obs"
	"rollcall.org/internal/report"
)

func (a *API) getReport(w http.ResponseWriter, r *http.Request) {
	rep, err := a.reports.OrganizationReport(r.Context(), chi.URLParam(r, "org"))
	if err != nil {
		handleReportError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (a *API) getProgress(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserID(chi.URLParam(r, "user"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	row, err := a.reports.MemberProgress(r.Context(), chi.URLParam(r, "org"), userID)
	if err != nil {
		handleReportError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (a *API) getQuotaSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := a.reports.QuotaSummary(r.Context(), chi.URLParam(r, "org"))
	if err != nil {
		handleReportError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func handleReportError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, report.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, report.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		obs.Logger().ErrorContext(r.Context(), "report failed",
			"request_id", RequestIDFromContext(r.Context()),
			"error", err.Error(),
		)
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
