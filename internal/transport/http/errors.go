package http

import (
	"encoding/json"
	"net/http"

	"live-quiz-service/internal/domain"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

// statusOf maps a domain error kind to its HTTP status and code.
func statusOf(err error) (int, string) {
	switch domain.Kind(err) {
	case domain.ErrUnauthenticated:
		return http.StatusUnauthorized, "UNAUTHENTICATED"
	case domain.ErrNotFound:
		return http.StatusNotFound, "NOT_FOUND"
	case domain.ErrForbidden:
		return http.StatusForbidden, "FORBIDDEN"
	case domain.ErrInvalid:
		return http.StatusBadRequest, "INVALID_REQUEST"
	case domain.ErrStateConflict:
		return http.StatusConflict, "STATE_CONFLICT"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, code := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	writeJSON(w, status, errorResponse{Error: apiError{Code: code, Message: msg}})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// decodeBody decodes a JSON body; an empty body leaves dst untouched.
func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domain.Invalidf("malformed request body: %v", err)
	}
	return nil
}
