package http

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

type playerHandler struct {
	service *app.QuizService
}

func newPlayerHandler(service *app.QuizService) *playerHandler {
	return &playerHandler{service: service}
}

type joinRequest struct {
	SessionID string `json:"sessionId"`
	Name      string `json:"name"`
}

type joinResponse struct {
	PlayerID string `json:"playerId"`
}

type answerRequest struct {
	AnswerIDs []string `json:"answerIds"`
}

func position(r *http.Request) (int, error) {
	raw := mux.Vars(r)["position"]
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.Invalidf("question position %q is not a number", raw)
	}
	return n, nil
}

// Join handles POST /v1/player/join
func (h *playerHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	id, err := h.service.JoinSession(r.Context(), req.SessionID, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, joinResponse{PlayerID: id})
}

// Status handles GET /v1/player/{playerId}
func (h *playerHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.PlayerStatus(r.Context(), mux.Vars(r)["playerId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// Question handles GET /v1/player/{playerId}/question/{position}
func (h *playerHandler) Question(w http.ResponseWriter, r *http.Request) {
	pos, err := position(r)
	if err != nil {
		writeError(w, err)
		return
	}
	q, err := h.service.QuestionForPlayer(r.Context(), mux.Vars(r)["playerId"], pos)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// Answer handles PUT /v1/player/{playerId}/question/{position}/answer
func (h *playerHandler) Answer(w http.ResponseWriter, r *http.Request) {
	pos, err := position(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req answerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.service.SubmitAnswer(r.Context(), mux.Vars(r)["playerId"], pos, req.AnswerIDs); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// QuestionResults handles GET /v1/player/{playerId}/question/{position}/results
func (h *playerHandler) QuestionResults(w http.ResponseWriter, r *http.Request) {
	pos, err := position(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.service.QuestionResults(r.Context(), mux.Vars(r)["playerId"], pos)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// FinalResults handles GET /v1/player/{playerId}/results
func (h *playerHandler) FinalResults(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.FinalResults(r.Context(), mux.Vars(r)["playerId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
