package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"dirconsole/internal/core"
	"dirconsole/internal/directory"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server holds the HTTP server state.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	store      core.Store
	vacations  *core.VacationService
	tasks      *core.TaskService
	dir        directory.Client
	logger     *slog.Logger
	authToken  string
}

// NewServer constructs the HTTP API server.
func NewServer(addr, authToken string, st core.Store, vacations *core.VacationService, tasks *core.TaskService, dir directory.Client, logger *slog.Logger) (*Server, error) {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:    router,
		store:     st,
		vacations: vacations,
		tasks:     tasks,
		dir:       dir,
		logger:    logger,
		authToken: authToken,
	}
	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.Route("/v1", func(r chi.Router) {
		if s.authToken != "" {
			r.Use(AuthMiddleware(s.authToken))
		}

		r.Route("/vacations", func(r chi.Router) {
			r.Post("/", s.handleScheduleVacation)
			r.Delete("/{vacationID}", s.handleCancelVacation)
		})

		r.Route("/schedule", func(r chi.Router) {
			r.Get("/", s.handleListSchedule)
			r.Delete("/{taskID}", s.handleRemoveScheduledTask)
		})

		r.Get("/audit", s.handleListAudit)

		r.Route("/users", func(r chi.Router) {
			r.Get("/", s.handleSearchUsers)
			r.Post("/", s.handleCreateUser)

			r.Route("/{userID}", func(r chi.Router) {
				r.Get("/", s.handleGetUser)
				r.Patch("/", s.handleModifyUser)
				r.Delete("/", s.handleDeleteUser)
				r.Post("/disable", s.handleDisableUser)
				r.Post("/enable", s.handleEnableUser)
				r.Post("/unlock", s.handleUnlockUser)
				r.Post("/move", s.handleMoveUser)
			})
		})

		r.Route("/groups", func(r chi.Router) {
			r.Get("/", s.handleListGroups)
			r.Put("/{group}/members/{userID}", s.handleAddGroupMember)
			r.Delete("/{group}/members/{userID}", s.handleRemoveGroupMember)
		})

		r.Get("/orgunits", s.handleListOrgUnits)
	})
}

// actorFrom resolves the acting administrator for audit purposes.
func actorFrom(r *http.Request) string {
	if actor := r.Header.Get("X-Actor"); actor != "" {
		return actor
	}
	return "admin"
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	payload := map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	}
	writeJSON(w, status, payload)
}
