package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/go-chi/chi/v5"

	"leadscanner/internal/domain"
	"leadscanner/internal/ports"
)

// ScanTrigger runs one scan to completion. Callers must treat it as a
// long-running blocking operation.
type ScanTrigger interface {
	Run(ctx context.Context) (domain.ScanSummary, error)
}

// Server is the operator-facing HTTP surface: trigger scans, review leads,
// manage sources, inspect run history.
type Server struct {
	pipeline ScanTrigger
	sources  ports.SourceRepository
	leads    ports.LeadRepository
	runs     ports.RunRepository
	logger   *slog.Logger

	// Guards against overlapping scans in this process. This is a
	// convention, not a distributed lock.
	scanning atomic.Bool
}

// New wires repositories and the scan pipeline into the server.
func New(pipeline ScanTrigger, sources ports.SourceRepository, leads ports.LeadRepository, runs ports.RunRepository, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{pipeline: pipeline, sources: sources, leads: leads, runs: runs, logger: logger}
}

// Routes returns the chi router for the API.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealthz)
	r.Route("/api", func(r chi.Router) {
		r.Post("/scans", s.handleTriggerScan)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
		r.Get("/leads", s.handleListLeads)
		r.Patch("/leads/{id}", s.handleUpdateLeadStatus)
		r.Get("/sources", s.handleListSources)
		r.Post("/sources", s.handleCreateSource)
		r.Delete("/sources/{id}", s.handleDeleteSource)
		r.Post("/sources/{id}/toggle", s.handleToggleSource)
	})
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTriggerScan(w http.ResponseWriter, r *http.Request) {
	if !s.scanning.CompareAndSwap(false, true) {
		s.respondError(w, http.StatusConflict, "a scan is already running")
		return
	}
	defer s.scanning.Store(false)

	summary, err := s.pipeline.Run(r.Context())
	if err != nil {
		s.logger.Error("scan failed", "error", err)
		s.respondError(w, http.StatusInternalServerError, "scan failed")
		return
	}

	s.respond(w, http.StatusOK, map[string]any{
		"success":      true,
		"leadsCreated": summary.LeadsCreated,
		"itemsFound":   summary.ItemsFound,
	})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.runs.ListRuns(r.Context())
	if err != nil {
		s.logger.Error("list runs", "error", err)
		s.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.respond(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.runs.GetRun(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, ports.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.logger.Error("get run", "error", err)
		s.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.respond(w, http.StatusOK, map[string]any{"run": run})
}

func (s *Server) handleListLeads(w http.ResponseWriter, r *http.Request) {
	status := domain.LeadStatus(strings.ToUpper(r.URL.Query().Get("status")))
	if status != "" && !domain.ValidLeadStatus(status) {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", status))
		return
	}

	leads, err := s.leads.ListLeads(r.Context(), status)
	if err != nil {
		s.logger.Error("list leads", "error", err)
		s.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.respond(w, http.StatusOK, map[string]any{"leads": leads})
}

func (s *Server) handleUpdateLeadStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status domain.LeadStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !domain.ValidLeadStatus(body.Status) {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", body.Status))
		return
	}

	err := s.leads.UpdateLeadStatus(r.Context(), chi.URLParam(r, "id"), body.Status)
	if errors.Is(err, ports.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "lead not found")
		return
	}
	if err != nil {
		s.logger.Error("update lead status", "error", err)
		s.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.respond(w, http.StatusOK, map[string]string{"status": string(body.Status)})
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.sources.ListSources(r.Context())
	if err != nil {
		s.logger.Error("list sources", "error", err)
		s.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.respond(w, http.StatusOK, map[string]any{"sources": sources})
}

func (s *Server) handleCreateSource(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string            `json:"name"`
		Type domain.SourceType `json:"type"`
		URL  string            `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	// Source config is validated here, once, so the pipeline never has to
	// re-interpret it.
	body.Name = strings.TrimSpace(body.Name)
	if body.Name == "" {
		s.respondError(w, http.StatusBadRequest, "missing required field: name")
		return
	}
	if !domain.ValidSourceType(body.Type) {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("type must be RSS or URL, got %q", body.Type))
		return
	}
	parsed, err := url.Parse(strings.TrimSpace(body.URL))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		s.respondError(w, http.StatusBadRequest, "url must be absolute http(s)")
		return
	}

	src, err := s.sources.CreateSource(r.Context(), body.Name, body.Type, parsed.String())
	if err != nil {
		s.logger.Error("create source", "error", err)
		s.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.respond(w, http.StatusCreated, map[string]any{"source": src})
}

func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	err := s.sources.DeleteSource(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, ports.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "source not found")
		return
	}
	if err != nil {
		s.logger.Error("delete source", "error", err)
		s.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.respond(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleToggleSource(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	err := s.sources.SetSourceEnabled(r.Context(), chi.URLParam(r, "id"), body.Enabled)
	if errors.Is(err, ports.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "source not found")
		return
	}
	if err != nil {
		s.logger.Error("toggle source", "error", err)
		s.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.respond(w, http.StatusOK, map[string]bool{"enabled": body.Enabled})
}

func (s *Server) respond(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, code int, message string) {
	s.respond(w, code, map[string]string{"error": message})
}
