package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"draftdrop/internal/api"
	"draftdrop/internal/config"
	"draftdrop/internal/fileutil"
	"draftdrop/internal/logging"
	"draftdrop/internal/textutil"
	"draftdrop/internal/watcher"
	"draftdrop/internal/workflow"
)

// uploadOverhead is the multipart framing allowance added to the image size limit.
const uploadOverhead = 1 << 20

type apiServer struct {
	bind    string
	cfg     *config.Config
	logger  *slog.Logger
	daemon  *Daemon
	service *api.Service
	handler http.Handler

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:    strings.TrimSpace(cfg.Paths.APIBind),
		cfg:     cfg,
		logger:  logger,
		daemon:  d,
		service: api.NewService(d.store),
	}

	token := cfg.Paths.APIToken
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", authMiddleware(token, srv.handleStatus))
	mux.HandleFunc("/api/items", authMiddleware(token, srv.handleItems))
	mux.HandleFunc("/api/items/", authMiddleware(token, srv.handleItem))
	mux.HandleFunc("/api/upload", authMiddleware(token, srv.handleUpload))
	mux.HandleFunc("/api/logs", authMiddleware(token, srv.handleLogs))
	mux.HandleFunc("/api/settings", authMiddleware(token, srv.handleSettings))
	if d.metrics != nil {
		mux.HandleFunc("/metrics", authMiddleware(token, d.metrics.Handler().ServeHTTP))
	}
	srv.handler = requestIDMiddleware(mux)
	return srv
}

// listen binds the API address. An empty bind disables the API.
func (s *apiServer) listen() error {
	if s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       2 * time.Minute,
		// Upload and retry respond after a full pipeline run.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	s.mu.Unlock()
	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// serve blocks until ctx is done or the server fails.
func (s *apiServer) serve(ctx context.Context) error {
	s.mu.Lock()
	server, listener := s.server, s.listener
	s.mu.Unlock()
	if server == nil {
		<-ctx.Done()
		return nil
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
			return fmt.Errorf("api serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		s.shutdown()
		return nil
	}
}

func (s *apiServer) shutdown() {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

func (s *apiServer) address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	counts, err := s.service.Counts(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	settings, err := s.service.Settings(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	checks := s.daemon.PreflightResults()
	results := make([]api.CheckResult, 0, len(checks))
	for _, c := range checks {
		results = append(results, api.CheckResult{Name: c.Name, Passed: c.Passed, Detail: c.Detail})
	}
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:     s.daemon.Running(),
		PID:         os.Getpid(),
		WatchDir:    s.cfg.Paths.WatchDir,
		ArchiveDir:  s.cfg.Paths.ArchiveDir,
		DatabaseURL: s.cfg.DatabasePath(),
		LockPath:    s.cfg.LockPath(),
		AutoProcess: settings.AutoProcess,
		InFlight:    s.daemon.engine.InFlight(),
		ItemCounts:  counts,
		Preflight:   results,
	})
}

func (s *apiServer) handleItems(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	statuses, err := api.ParseStatuses(r.URL.Query()["status"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	items, err := s.service.ListItems(r.Context(), statuses...)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.ItemListResponse{Items: items})
}

func (s *apiServer) handleItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/items/"), "/")
	parts := strings.Split(rest, "/")
	if rest == "" || len(parts) > 2 {
		s.writeError(w, http.StatusNotFound, "item not found")
		return
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	if len(parts) == 2 {
		if parts[1] != "retry" {
			s.writeError(w, http.StatusNotFound, "item not found")
			return
		}
		s.handleRetry(w, r, id)
		return
	}

	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	detail, err := s.service.DescribeItem(r.Context(), id)
	if errors.Is(err, api.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "item not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, detail)
}

func (s *apiServer) handleRetry(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	res := s.daemon.engine.Retry(r.Context(), id)
	switch {
	case errors.Is(res.Err, workflow.ErrItemNotFound):
		s.writeError(w, http.StatusNotFound, "item not found")
		return
	case errors.Is(res.Err, workflow.ErrItemBusy):
		s.writeError(w, http.StatusConflict, "item is already being processed")
		return
	case errors.Is(res.Err, workflow.ErrEngineClosed):
		s.writeError(w, http.StatusServiceUnavailable, "daemon is shutting down")
		return
	}
	s.writeRunResult(w, r, res)
}

func (s *apiServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Analyzer.MaxImageBytes+uploadOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		s.writeError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	name := textutil.SanitizeFileName(header.Filename)
	if !watcher.Eligible(name, s.cfg.Watcher.Extensions) {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported file %q", name))
		return
	}

	path, err := fileutil.WriteUnique(s.cfg.Paths.WatchDir, name, file)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// An upload is explicit intent: it runs even when the name was seen
	// before. The claim only keeps the watcher from submitting it again.
	s.daemon.registry.Claim(filepath.Base(path))
	s.log().Info("upload received",
		logging.String(logging.FieldEventType, "upload_received"),
		logging.String("path", path),
		logging.Int64("size", header.Size),
	)

	res := s.daemon.engine.Process(r.Context(), path, s.daemon.engine.ArchiveDir())
	s.writeRunResult(w, r, res)
}

func (s *apiServer) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	query := r.URL.Query()
	var itemID int64
	if raw := strings.TrimSpace(query.Get("item_id")); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid item_id")
			return
		}
		itemID = parsed
	}
	limit := 0
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	entries, err := s.service.Logs(r.Context(), itemID, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.LogListResponse{Entries: entries})
}

func (s *apiServer) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		settings, err := s.service.Settings(r.Context())
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, settings)
	case http.MethodPut:
		var req api.UpdateSettingsRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		settings, err := s.service.UpdateSettings(r.Context(), req)
		var vErr *api.ValidationError
		if errors.As(err, &vErr) {
			s.writeError(w, http.StatusBadRequest, vErr.Error())
			return
		}
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.log().Info("settings updated",
			logging.String(logging.FieldEventType, "settings_updated"),
			logging.Bool("auto_process", settings.AutoProcess),
		)
		s.writeJSON(w, http.StatusOK, settings)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// writeRunResult reports a finished run. Pipeline failures are a 200 with
// success=false; the failure is part of the item's history, not of the request.
func (s *apiServer) writeRunResult(w http.ResponseWriter, r *http.Request, res workflow.Result) {
	out := api.FromResult(res)
	if res.ItemID > 0 {
		if item, err := s.daemon.store.GetByID(r.Context(), res.ItemID); err == nil && item != nil {
			dto := api.FromItem(item)
			out.Item = &dto
		}
	}
	if errors.Is(res.Err, workflow.ErrEngineClosed) {
		s.writeJSON(w, http.StatusServiceUnavailable, out)
		return
	}
	if res.ItemID == 0 && res.Err != nil {
		s.writeJSON(w, http.StatusInternalServerError, out)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}
