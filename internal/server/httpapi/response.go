package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dmitrijs2005/timeledger/internal/common"
	"github.com/dmitrijs2005/timeledger/internal/server/policy"
)

// maxBodyBytes caps request bodies; config documents are the largest payload.
const maxBodyBytes = 64 << 10

// APIError is the body of every non-2xx response.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Rule      string `json:"rule,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// errorResponse maps a service error onto a status code and a public body.
// Internal errors are never echoed to the client.
func errorResponse(err error) (int, APIError) {
	var v *policy.Violation

	switch {
	case errors.As(err, &v):
		return http.StatusUnprocessableEntity, APIError{Code: "weak_password", Message: v.Reason, Rule: string(v.Rule)}
	case errors.Is(err, common.ErrWeakPassword):
		return http.StatusUnprocessableEntity, APIError{Code: "weak_password", Message: "weak password"}
	case errors.Is(err, common.ErrDuplicateIdentity):
		return http.StatusConflict, APIError{Code: "duplicate", Message: "email or username already in use"}
	case errors.Is(err, common.ErrAlreadyExists):
		return http.StatusConflict, APIError{Code: "already_exists", Message: "already exists"}
	case errors.Is(err, common.ErrAccountLocked):
		return http.StatusLocked, APIError{Code: "locked", Message: "account locked"}
	case common.IsUnauthenticated(err):
		return http.StatusUnauthorized, APIError{Code: "unauthorized", Message: "unauthorized"}
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound, APIError{Code: "not_found", Message: "not found"}
	case errors.Is(err, common.ErrInvalidInput):
		return http.StatusBadRequest, APIError{Code: "invalid_input", Message: err.Error()}
	case errors.Is(err, common.ErrExportDisabled):
		return http.StatusServiceUnavailable, APIError{Code: "export_disabled", Message: "export is not configured"}
	}
	return http.StatusInternalServerError, APIError{Code: "internal", Message: "internal error"}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorResponse(err)
	body.RequestID = RequestID(r.Context())
	if status == http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed", "error", err.Error(), "path", r.URL.Path, "request_id", body.RequestID)
	}
	writeJSON(w, status, body)
}

func (s *Server) badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	writeJSON(w, http.StatusBadRequest, APIError{Code: "invalid_input", Message: msg, RequestID: RequestID(r.Context())})
}

// decodeJSON reads a single JSON object into dst, rejecting unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("malformed request body: %v: %w", err, common.ErrInvalidInput)
	}
	return nil
}
