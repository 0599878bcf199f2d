package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"dmailcal/internal/config"
	"dmailcal/internal/ics"
	appLog "dmailcal/internal/log"
	"dmailcal/internal/model"
	"dmailcal/internal/refresh"
)

const maxUploadSize = 16 << 20

// Importer / Exporter / Store are the collaborators the API drives.
type Importer interface {
	Parse(text, account string, existing []model.EventRecord) ([]model.EventRecord, ics.Result)
}

type Exporter interface {
	ExportAll(ctx context.Context, events []model.EventRecord, account string) ([]string, error)
	CancelAll(ctx context.Context, events []model.EventRecord, account string, cancel ics.Cancellation) ([]string, error)
}

type Store interface {
	Snapshot() []model.EventRecord
	Merge(events []model.EventRecord) (int, error)
}

type Refresher interface {
	RunOnce(ctx context.Context) (refresh.Report, error)
}

// Server exposes import/export over HTTP.
type Server struct {
	cfg      *config.Config
	importer Importer
	exporter Exporter
	store    Store
	refresh  Refresher
	mux      *http.ServeMux
}

// NewServer wires the handlers. refresher may be nil, which disables
// POST /api/refresh.
func NewServer(cfg *config.Config, im Importer, ex Exporter, st Store, refresher Refresher) *Server {
	s := &Server{
		cfg:      cfg,
		importer: im,
		exporter: ex,
		store:    st,
		refresh:  refresher,
		mux:      http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the root handler, wrapped in basic auth when configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials disable auth rather than lock everyone out.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware guards everything except /health.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="DMailCal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ListenAndServe serves until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("POST /api/import", s.handleImport)
	s.mux.HandleFunc("POST /api/export", s.handleExport)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type eventsResponse struct {
	Count  int                 `json:"count"`
	Events []model.EventRecord `json:"events"`
}

func (s *Server) handleEvents(w http.ResponseWriter, _ *http.Request) {
	events := s.store.Snapshot()
	writeJSON(w, http.StatusOK, eventsResponse{Count: len(events), Events: events})
}

type importResponse struct {
	Status   string              `json:"status"`
	Raw      int                 `json:"raw"`
	Imported int                 `json:"imported"`
	Merged   int                 `json:"merged,omitempty"`
	Events   []model.EventRecord `json:"events"`
	Error    string              `json:"error,omitempty"`
}

// handleImport parses the ICS request body against the store snapshot.
// ?merge=1 also writes the new events to the store.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadSize))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	events, res := s.importer.Parse(string(body), s.account(), s.store.Snapshot())
	resp := importResponse{
		Status:   res.Outcome.String(),
		Raw:      res.Raw,
		Imported: res.Kept,
		Events:   events,
	}
	if events == nil {
		if res.Err != nil {
			resp.Error = res.Err.Error()
		}
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}

	if isTrue(r.URL.Query().Get("merge")) {
		n, err := s.store.Merge(events)
		if err != nil {
			appLog.Error("store merge failed", err)
			writeError(w, http.StatusInternalServerError, "failed to store events")
			return
		}
		resp.Merged = n
	}
	writeJSON(w, http.StatusOK, resp)
}

type exportRequest struct {
	Events []model.EventRecord `json:"events"`
}

// handleExport renders the posted events as one text/calendar stream, one
// VCALENDAR per event in request order. ?cancel=<subject> produces
// cancellation notices instead.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadSize))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if len(req.Events) == 0 {
		writeError(w, http.StatusBadRequest, "no events")
		return
	}

	var (
		docs []string
		err  error
	)
	q := r.URL.Query()
	if q.Has("cancel") {
		docs, err = s.exporter.CancelAll(r.Context(), req.Events, s.account(), ics.Cancellation{Subject: q.Get("cancel")})
	} else {
		docs, err = s.exporter.ExportAll(r.Context(), req.Events, s.account())
	}
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="events.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, strings.Join(docs, ""))
}

type refreshResponse struct {
	Fetched  int    `json:"fetched"`
	Parsed   int    `json:"parsed"`
	Imported int    `json:"imported"`
	Error    string `json:"error,omitempty"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.refresh == nil {
		writeError(w, http.StatusNotFound, "no subscriptions configured")
		return
	}
	rep, err := s.refresh.RunOnce(r.Context())
	resp := refreshResponse{Fetched: rep.Fetched, Parsed: rep.Parsed, Imported: rep.Imported}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) account() string {
	if s.cfg == nil {
		return ""
	}
	return s.cfg.Account
}

func isTrue(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
