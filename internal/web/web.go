package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/cors"

	"notifsync/internal/config"
	"notifsync/internal/ics"
	appLog "notifsync/internal/log"
	"notifsync/internal/model"
	"notifsync/internal/store"
)

// maxBodyBytes bounds request bodies (records and uploaded calendars).
const maxBodyBytes = 10 << 20

// EventStore is the set of store operations the API exposes.
type EventStore interface {
	List() []model.Event
	Get(id int) (model.Event, error)
	Add(ev model.Event) (model.Event, error)
	Update(id int, ev model.Event) (model.Event, error)
	Delete(id int) (model.Event, error)
	ClearTrash() (int, error)
}

// CalendarImporter imports an uploaded ICS payload.
type CalendarImporter interface {
	ImportBody(src ics.Source, body []byte) (ics.Result, error)
}

// Server provides the HTTP API over the event store.
type Server struct {
	cfg      *config.Config
	store    EventStore
	importer CalendarImporter
	mux      *http.ServeMux
}

// NewServer constructs a new Server. importer may be nil, in which case
// uploads are rejected.
func NewServer(cfg *config.Config, st EventStore, importer CalendarImporter) *Server {
	s := &Server{
		cfg:      cfg,
		store:    st,
		importer: importer,
		mux:      http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the API wrapped with request logging and CORS for the
// configured front-end origin.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{s.cfg.AllowedOrigin},
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions, http.MethodHead,
		},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	return c.Handler(logRequests(s.mux))
}

// StartServer serves the API on cfg.Listen until ctx is canceled, then
// shuts down gracefully.
func StartServer(ctx context.Context, cfg *config.Config, st EventStore, importer CalendarImporter) error {
	s := NewServer(cfg, st, importer)
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen, "allowed_origin", cfg.AllowedOrigin)
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
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/events", s.handleList)
	s.mux.HandleFunc("POST /api/events", s.handleCreate)
	s.mux.HandleFunc("GET /api/events.ics", s.handleFeed)
	s.mux.HandleFunc("POST /api/events/import", s.handleImport)
	s.mux.HandleFunc("DELETE /api/events/trash", s.handleClearTrash)
	s.mux.HandleFunc("GET /api/events/{id}", s.handleGet)
	s.mux.HandleFunc("PUT /api/events/{id}", s.handleUpdate)
	s.mux.HandleFunc("DELETE /api/events/{id}", s.handleDelete)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.List())
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ev, err := s.store.Get(id)
	if err != nil {
		writeStoreError(w, err, "get", id)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// handleCreate adds a record. An id in the body is honored and overwrites
// any record already stored under it.
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	ev, ok := decodeEvent(w, r)
	if !ok {
		return
	}
	created, err := s.store.Add(ev)
	if err != nil {
		writeStoreError(w, err, "create", ev.ID)
		return
	}
	appLog.Info("event created", "id", created.ID, "title", created.Title)
	writeJSON(w, http.StatusOK, created)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ev, ok := decodeEvent(w, r)
	if !ok {
		return
	}
	updated, err := s.store.Update(id, ev)
	if err != nil {
		writeStoreError(w, err, "update", id)
		return
	}
	appLog.Info("event updated", "id", id)
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ev, err := s.store.Delete(id)
	if err != nil {
		writeStoreError(w, err, "delete", id)
		return
	}
	appLog.Info("event moved to trash", "id", id)
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleClearTrash(w http.ResponseWriter, _ *http.Request) {
	if _, err := s.store.ClearTrash(); err != nil {
		writeStoreError(w, err, "clear trash", 0)
		return
	}
	writeDetail(w, http.StatusOK, "Trash cleared")
}

func (s *Server) handleFeed(w http.ResponseWriter, _ *http.Request) {
	feed := ics.BuildFeed(s.store.List(), s.cfg.Location())
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, feed)
}

// handleImport merges an uploaded calendar into the store.
//
// POST /api/events/import?source=Work
//   - source: becomes source_app of the imported records (default "Calendar")
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if s.importer == nil {
		writeDetail(w, http.StatusServiceUnavailable, "calendar import is not configured")
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	src := ics.Source{ID: "upload", Name: r.URL.Query().Get("source")}
	res, err := s.importer.ImportBody(src, body)
	if err != nil {
		if errors.Is(err, ics.ErrParse) {
			writeDetail(w, http.StatusBadRequest, err.Error())
			return
		}
		appLog.Error("calendar import failed", err)
		writeDetail(w, http.StatusInternalServerError, "failed to import calendar")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// pathID parses the {id} segment, answering 422 when it is not an integer.
func pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.PathValue("id")
	id, err := strconv.Atoi(raw)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "id must be an integer, got "+strconv.Quote(raw))
		return 0, false
	}
	return id, true
}

func decodeEvent(w http.ResponseWriter, r *http.Request) (model.Event, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "failed to read request body")
		return model.Event{}, false
	}
	ev, err := model.ParseEvent(data)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return model.Event{}, false
	}
	return ev, true
}

func writeStoreError(w http.ResponseWriter, err error, op string, id int) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeDetail(w, http.StatusNotFound, "Event not found")
	case errors.Is(err, model.ErrInvalid):
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
	default:
		appLog.Error("store operation failed", err, "op", op, "id", id)
		writeDetail(w, http.StatusInternalServerError, "failed to save events")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeDetail(w http.ResponseWriter, status int, msg string) {
	type detailResp struct {
		Detail string `json:"detail"`
	}
	writeJSON(w, status, detailResp{Detail: msg})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		appLog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"elapsed", time.Since(start).String(),
		)
	})
}
