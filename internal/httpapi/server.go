package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/beyondwords/zensync/internal/zensync"
)

type ServerConfig struct {
	// AuthToken, when set, is required as a bearer token on every /v1 route.
	AuthToken    string
	MaxBodyBytes int64
}

type Server struct {
	store   *zensync.Store
	cfg     ServerConfig
	metrics *serverMetrics
}

func NewServer(store *zensync.Store) *Server {
	return NewServerWithConfig(store, ServerConfig{})
}

func NewServerWithConfig(store *zensync.Store, cfg ServerConfig) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	return &Server{
		store:   store,
		cfg:     cfg,
		metrics: newServerMetrics(),
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/health" && r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":        "ok",
			"configured":    s.store.IsConfigured(),
			"pendingWrites": s.store.PendingWrites(),
		})
		return
	}
	if r.URL.Path == "/metrics" && r.Method == http.MethodGet {
		s.metrics.handler().ServeHTTP(w, r)
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if len(parts) < 2 || parts[0] != "v1" {
		writeError(w, http.StatusNotFound, "not_found", "route not found")
		return
	}
	if !s.authorize(r) {
		s.metrics.observe(r.Method, "unauthorized", http.StatusUnauthorized)
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
		return
	}

	// The event stream upgrades the connection; it cannot go through the
	// status-recording wrapper.
	if len(parts) == 3 && parts[1] == "sync" && parts[2] == "events" && r.Method == http.MethodGet {
		s.metrics.observe(r.Method, "sync_events", http.StatusSwitchingProtocols)
		s.handleSyncEvents(w, r)
		return
	}

	recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	route := s.dispatch(recorder, r, parts)
	s.metrics.observe(r.Method, route, recorder.status)
}

// dispatch routes /v1 requests and returns the route label for metrics.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, parts []string) string {
	switch {
	case len(parts) == 2 && parts[1] == "config":
		switch r.Method {
		case http.MethodGet:
			s.handleGetConfig(w, r)
			return "config_get"
		case http.MethodPut:
			s.handlePutConfig(w, r)
			return "config_put"
		case http.MethodDelete:
			s.handleDeleteConfig(w, r)
			return "config_delete"
		}
	case len(parts) == 3 && parts[1] == "config" && parts[2] == "test" && r.Method == http.MethodPost:
		s.handleTestConfig(w, r)
		return "config_test"
	case len(parts) == 3 && parts[1] == "sync" && parts[2] == "recent" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, s.store.RecentEvents())
		return "sync_recent"
	case len(parts) >= 4 && parts[1] == "users":
		return s.dispatchUser(w, r, parts[2], parts[3:])
	}
	writeError(w, http.StatusNotFound, "not_found", "route not found")
	return "not_found"
}

func (s *Server) dispatchUser(w http.ResponseWriter, r *http.Request, email string, rest []string) string {
	email = zensync.NormalizeEmail(email)
	if email == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "user email is required")
		return "bad_user"
	}
	switch {
	case len(rest) == 1 && rest[0] == "notes" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, s.store.GetNotes(r.Context(), email))
		return "notes_list"
	case len(rest) == 1 && rest[0] == "notes" && r.Method == http.MethodPut:
		s.handlePutNote(w, r, email)
		return "note_put"
	case len(rest) == 2 && rest[0] == "notes" && r.Method == http.MethodDelete:
		s.handleDeleteNote(w, r, email, rest[1])
		return "note_delete"
	case len(rest) == 1 && rest[0] == "folders" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, s.store.GetFolders(r.Context(), email))
		return "folders_list"
	case len(rest) == 1 && rest[0] == "folders" && r.Method == http.MethodPut:
		s.handlePutFolders(w, r, email)
		return "folders_put"
	case len(rest) == 1 && rest[0] == "inspiration" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, s.store.GetInspiration(r.Context(), email))
		return "inspiration_list"
	case len(rest) == 1 && rest[0] == "inspiration" && r.Method == http.MethodPut:
		s.handlePutInspiration(w, r, email)
		return "inspiration_put"
	case len(rest) == 2 && rest[0] == "inspiration" && r.Method == http.MethodDelete:
		s.handleDeleteInspiration(w, r, email, rest[1])
		return "inspiration_delete"
	case len(rest) == 1 && rest[0] == "stats" && r.Method == http.MethodGet:
		s.handleGetStats(w, r, email)
		return "stats_get"
	case len(rest) == 1 && rest[0] == "stats" && r.Method == http.MethodPut:
		s.handlePutStats(w, r, email)
		return "stats_put"
	case len(rest) == 2 && rest[0] == "stats" && rest[1] == "words" && r.Method == http.MethodPost:
		s.handleRecordWords(w, r, email)
		return "stats_words"
	case len(rest) == 1 && rest[0] == "settings" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, s.store.GetEditorSettings(email))
		return "settings_get"
	case len(rest) == 1 && rest[0] == "settings" && r.Method == http.MethodPut:
		s.handlePutSettings(w, r, email)
		return "settings_put"
	case len(rest) == 2 && rest[0] == "session" && rest[1] == "end" && r.Method == http.MethodPost:
		dropped := s.store.EndSession(email)
		writeJSON(w, http.StatusOK, map[string]any{"cancelledWrites": dropped})
		return "session_end"
	}
	writeError(w, http.StatusNotFound, "not_found", "route not found")
	return "not_found"
}

// --- config ---

// handleGetConfig never echoes the access key, only whether one is set.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.store.Config()
	writeJSON(w, http.StatusOK, map[string]any{
		"url":        cfg.URL,
		"keySet":     cfg.Key != "",
		"configured": s.store.IsConfigured(),
	})
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
		Key string `json:"key"`
	}
	if !s.decodeValidated(w, r, configSchema, &req) {
		return
	}
	s.store.SaveConfig(req.URL, req.Key)
	writeJSON(w, http.StatusOK, map[string]any{"configured": s.store.IsConfigured()})
}

func (s *Server) handleDeleteConfig(w http.ResponseWriter, r *http.Request) {
	s.store.ClearConfig()
	writeJSON(w, http.StatusOK, map[string]any{"configured": s.store.IsConfigured()})
}

func (s *Server) handleTestConfig(w http.ResponseWriter, r *http.Request) {
	if err := s.store.TestConnection(r.Context()); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// --- notes ---

func (s *Server) handlePutNote(w http.ResponseWriter, r *http.Request, email string) {
	var note zensync.Note
	if !s.decodeValidated(w, r, noteSchema, &note) {
		return
	}
	saved, err := s.store.SaveNote(r.Context(), email, note)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleDeleteNote(w http.ResponseWriter, r *http.Request, email, id string) {
	if err := s.store.DeleteNote(r.Context(), email, id); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// --- folders ---

func (s *Server) handlePutFolders(w http.ResponseWriter, r *http.Request, email string) {
	var folders []zensync.Folder
	if !s.decodeValidated(w, r, foldersSchema, &folders) {
		return
	}
	if err := s.store.SaveFolders(r.Context(), email, folders); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, folders)
}

// --- inspiration ---

func (s *Server) handlePutInspiration(w http.ResponseWriter, r *http.Request, email string) {
	var items []zensync.InspirationItem
	if !s.decodeValidated(w, r, inspirationSchema, &items) {
		return
	}
	if err := s.store.SaveInspiration(r.Context(), email, items); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleDeleteInspiration(w http.ResponseWriter, r *http.Request, email, id string) {
	if err := s.store.DeleteInspiration(r.Context(), email, id); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// --- stats ---

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request, email string) {
	if r.URL.Query().Get("refresh") == "true" {
		writeJSON(w, http.StatusOK, s.store.RefreshStats(r.Context(), email))
		return
	}
	writeJSON(w, http.StatusOK, s.store.GetStats(r.Context(), email))
}

func (s *Server) handlePutStats(w http.ResponseWriter, r *http.Request, email string) {
	var stats zensync.UserStats
	if !s.decodeJSONBody(w, r, &stats) {
		return
	}
	if err := s.store.SaveStats(r.Context(), email, stats); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (s *Server) handleRecordWords(w http.ResponseWriter, r *http.Request, email string) {
	var req struct {
		Delta int `json:"delta"`
	}
	if !s.decodeValidated(w, r, wordsSchema, &req) {
		return
	}
	stats, err := s.store.RecordWords(r.Context(), email, req.Delta)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// --- settings ---

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request, email string) {
	var settings zensync.EditorSettings
	if !s.decodeJSONBody(w, r, &settings) {
		return
	}
	if err := s.store.SaveEditorSettings(email, settings); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// --- helpers ---

func (s *Server) authorize(r *http.Request) bool {
	if s.cfg.AuthToken == "" {
		return true
	}
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthToken)) == 1
}

func (s *Server) readRequestBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body exceeds configured limit")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read request body")
		return nil, false
	}
	return body, true
}

func (s *Server) decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, ok := s.readRequestBody(w, r)
	if !ok {
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"code":    code,
		"message": message,
	})
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, zensync.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, zensync.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
