package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"live-quiz-service/internal/app"
)

// tokenHeader carries the admin credential.
const tokenHeader = "token"

type adminHandler struct {
	service *app.QuizService
}

func newAdminHandler(service *app.QuizService) *adminHandler {
	return &adminHandler{service: service}
}

type startSessionRequest struct {
	AutoStartNum int `json:"autoStartNum"`
}

type startSessionResponse struct {
	SessionID string `json:"sessionId"`
}

type actionRequest struct {
	Action string `json:"action"`
}

type exportResponse struct {
	URL string `json:"url"`
}

// StartSession handles POST /v1/admin/quiz/{quizId}/session/start
func (h *adminHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	id, err := h.service.StartSession(r.Context(), r.Header.Get(tokenHeader), mux.Vars(r)["quizId"], req.AutoStartNum)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, startSessionResponse{SessionID: id})
}

// ListSessions handles GET /v1/admin/quiz/{quizId}/sessions
func (h *adminHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListSessions(r.Context(), r.Header.Get(tokenHeader), mux.Vars(r)["quizId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// ApplyAction handles PUT /v1/admin/session/{sessionId}
func (h *adminHandler) ApplyAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.service.ApplyAction(r.Context(), r.Header.Get(tokenHeader), mux.Vars(r)["sessionId"], req.Action); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Status handles GET /v1/admin/session/{sessionId}
func (h *adminHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.SessionStatus(r.Context(), r.Header.Get(tokenHeader), mux.Vars(r)["sessionId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// FinalResults handles GET /v1/admin/session/{sessionId}/results
func (h *adminHandler) FinalResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.service.SessionFinalResults(r.Context(), r.Header.Get(tokenHeader), mux.Vars(r)["sessionId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// Export handles GET /v1/admin/session/{sessionId}/results/export?format=csv|xlsx
func (h *adminHandler) Export(w http.ResponseWriter, r *http.Request) {
	url, err := h.service.ExportResults(r.Context(), r.Header.Get(tokenHeader), mux.Vars(r)["sessionId"], r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exportResponse{URL: url})
}

// Clear handles DELETE /v1/clear
func (h *adminHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Reset(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
