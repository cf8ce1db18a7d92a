// Package web serves the device's JSON API and the per-alarm inbound
// webhooks.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/CarlEnstrom/Goodmornin/internal/alarm"
	"github.com/CarlEnstrom/Goodmornin/internal/notify"
)

const maxBodyBytes = 16 << 10

// Runner executes fn on the goroutine that owns the engine.
type Runner interface {
	Do(ctx context.Context, fn func(ctx context.Context, e *alarm.Engine)) error
}

// Deliveries reports on the outbound notification queue.
type Deliveries interface {
	LastResult() notify.Result
	Len() int
}

type Options struct {
	AdminToken string
	// FSCapacity is reported as the filesystem total; zero reports used
	// bytes as the total.
	FSCapacity int64
	// Restart is called after the restart command has been answered.
	Restart func()
}

type Server struct {
	runner     Runner
	fs         afero.Fs
	deliveries Deliveries
	opts       Options
	router     *http.ServeMux
	logger     *zap.Logger
}

func NewServer(runner Runner, fs afero.Fs, deliveries Deliveries, logger *zap.Logger, opts Options) *Server {
	s := &Server{
		runner:     runner,
		fs:         fs,
		deliveries: deliveries,
		opts:       opts,
		router:     http.NewServeMux(),
		logger:     logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("GET /api/status", s.handleStatus)

	s.router.HandleFunc("GET /api/alarms", s.handleList)
	s.router.HandleFunc("POST /api/alarms", s.adminMiddleware(s.handleCreate))
	s.router.HandleFunc("GET /api/alarms/{id}", s.handleGet)
	s.router.HandleFunc("PUT /api/alarms/{id}", s.adminMiddleware(s.handleUpdate))
	s.router.HandleFunc("DELETE /api/alarms/{id}", s.adminMiddleware(s.handleDelete))
	s.router.HandleFunc("POST /api/alarms/{id}/{action}", s.adminMiddleware(s.handleAction))

	s.router.HandleFunc("POST /wh/alarm/{id}", s.handleWebhook)

	s.router.HandleFunc("GET /api/files", s.handleListFiles)
	s.router.HandleFunc("GET /api/files/space", s.adminMiddleware(s.handleSpace))
	s.router.HandleFunc("POST /api/files/upload", s.adminMiddleware(s.handleUpload))
	s.router.HandleFunc("DELETE /api/files", s.adminMiddleware(s.handleDeleteFile))

	s.router.HandleFunc("GET /api/config/export", s.adminMiddleware(s.handleExport))
	s.router.HandleFunc("POST /api/config/import", s.adminMiddleware(s.handleImport))

	s.router.HandleFunc("POST /api/system/restart", s.adminMiddleware(s.handleRestart))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Middleware

func (s *Server) adminMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.opts.AdminToken == "" {
			next(w, r)
			return
		}
		token := r.Header.Get("X-Admin-Token")
		if token == "" {
			token = r.URL.Query().Get("admin_token")
		}
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token != s.opts.AdminToken {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

// Helpers

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

func writeOK(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// writeEngineError maps engine errors onto status codes. Validation errors
// report their code; anything unrecognised is a 500.
func writeEngineError(w http.ResponseWriter, err error) {
	var verr *alarm.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Code)
	case errors.Is(err, alarm.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, alarm.ErrNotRinging), errors.Is(err, alarm.ErrNoFreeSlot):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, alarm.ErrMissingToken), errors.Is(err, alarm.ErrBadToken):
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (uint32, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "bad_id")
		return 0, false
	}
	return uint32(id), true
}

// run executes fn on the engine goroutine. It writes a 503 and returns false
// when the loop is not running.
func (s *Server) run(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, e *alarm.Engine)) bool {
	if err := s.runner.Do(r.Context(), fn); err != nil {
		s.logger.Warn("Engine unavailable", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "unavailable")
		return false
	}
	return true
}

type statusResponse struct {
	alarm.Status
	LastWebhook notify.Result `json:"last_webhook"`
	Queued      int           `json:"queued"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var resp statusResponse
	if !s.run(w, r, func(ctx context.Context, e *alarm.Engine) {
		resp.Status = e.Status()
		resp.Queued = s.deliveries.Len()
	}) {
		return
	}
	resp.LastWebhook = s.deliveries.LastResult()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("Restart requested", zap.String("remote", r.RemoteAddr))
	writeOK(w)
	if s.opts.Restart != nil {
		s.opts.Restart()
	}
}
