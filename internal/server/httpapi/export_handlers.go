package httpapi

import (
	"net/http"
	"time"

	"github.com/dmitrijs2005/timeledger/internal/server/models"
	"github.com/dmitrijs2005/timeledger/internal/server/services"
	"github.com/go-chi/chi/v5"
)

// exportRequest takes a half-open period; both bounds accept a date
// (YYYY-MM-DD, read as UTC midnight) or an RFC 3339 timestamp.
type exportRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type exportResponse struct {
	ID         string     `json:"id"`
	Status     string     `json:"status"`
	RowCount   int        `json:"row_count"`
	PeriodFrom time.Time  `json:"period_from"`
	PeriodTo   time.Time  `json:"period_to"`
	CreatedAt  time.Time  `json:"created_at"`
	URL        string     `json:"url,omitempty"`
	ExpiresAt  *time.Time `json:"url_expires_at,omitempty"`
}

func toExportResponse(e *models.Export) exportResponse {
	return exportResponse{
		ID:         e.ID,
		Status:     e.Status,
		RowCount:   e.RowCount,
		PeriodFrom: e.PeriodFrom,
		PeriodTo:   e.PeriodTo,
		CreatedAt:  e.CreatedAt,
	}
}

func toExportResultResponse(res *services.ExportResult) exportResponse {
	out := toExportResponse(res.Export)
	out.URL = res.URL
	expires := res.ExpiresAt
	out.ExpiresAt = &expires
	return out
}

func parsePeriodBound(s string) (time.Time, bool) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

func (s *Server) createExport(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := AccountID(r.Context())

	var req exportRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	from, ok := parsePeriodBound(req.From)
	if !ok {
		s.badRequest(w, r, "from must be a date (YYYY-MM-DD) or an RFC 3339 timestamp")
		return
	}
	to, ok := parsePeriodBound(req.To)
	if !ok {
		s.badRequest(w, r, "to must be a date (YYYY-MM-DD) or an RFC 3339 timestamp")
		return
	}

	res, err := s.exports.ExportTimesheet(r.Context(), tenantID, from, to)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toExportResultResponse(res))
}

func (s *Server) getExport(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := AccountID(r.Context())

	res, err := s.exports.GetExport(r.Context(), tenantID, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toExportResultResponse(res))
}

func (s *Server) listExports(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := AccountID(r.Context())

	limit, err := queryLimit(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	exports, err := s.exports.ListExports(r.Context(), tenantID, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := make([]exportResponse, 0, len(exports))
	for i := range exports {
		out = append(out, toExportResponse(&exports[i]))
	}
	writeJSON(w, http.StatusOK, out)
}
