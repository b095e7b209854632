package http

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"live-quiz-service/internal/app"
)

// RouterConfig holds the collaborators of the HTTP surface.
type RouterConfig struct {
	Logger  *slog.Logger
	Service *app.QuizService
	// ExportDir is served under /exports/ when set.
	ExportDir string
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

// NewRouter wires the admin, player, websocket and ops routes.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	r := mux.NewRouter()

	admin := newAdminHandler(cfg.Service)
	player := newPlayerHandler(cfg.Service)
	ws := NewWSHandler(cfg.Service, logger)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(recovery(logger))
	v1.Use(logging(logger))

	v1.HandleFunc("/admin/quiz/{quizId}/session/start", admin.StartSession).Methods(http.MethodPost)
	v1.HandleFunc("/admin/quiz/{quizId}/sessions", admin.ListSessions).Methods(http.MethodGet)
	v1.HandleFunc("/admin/session/{sessionId}", admin.ApplyAction).Methods(http.MethodPut)
	v1.HandleFunc("/admin/session/{sessionId}", admin.Status).Methods(http.MethodGet)
	v1.HandleFunc("/admin/session/{sessionId}/results", admin.FinalResults).Methods(http.MethodGet)
	v1.HandleFunc("/admin/session/{sessionId}/results/export", admin.Export).Methods(http.MethodGet)

	v1.HandleFunc("/player/join", player.Join).Methods(http.MethodPost)
	v1.HandleFunc("/player/{playerId}", player.Status).Methods(http.MethodGet)
	v1.HandleFunc("/player/{playerId}/question/{position}", player.Question).Methods(http.MethodGet)
	v1.HandleFunc("/player/{playerId}/question/{position}/answer", player.Answer).Methods(http.MethodPut)
	v1.HandleFunc("/player/{playerId}/question/{position}/results", player.QuestionResults).Methods(http.MethodGet)
	v1.HandleFunc("/player/{playerId}/results", player.FinalResults).Methods(http.MethodGet)

	v1.HandleFunc("/clear", admin.Clear).Methods(http.MethodDelete)

	r.HandleFunc("/ws", ws.ServeWS)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics).Methods(http.MethodGet)
	}
	if cfg.ExportDir != "" {
		r.PathPrefix("/exports/").Handler(http.StripPrefix("/exports/", http.FileServer(http.Dir(cfg.ExportDir)))).Methods(http.MethodGet)
	}
	return r
}
