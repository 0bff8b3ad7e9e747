// Package api pkg/api/server.go exposes run control, series queries and
// reports over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/vipdiag/vipdiag/pkg/coordinator"
	"github.com/vipdiag/vipdiag/pkg/detector"
	"github.com/vipdiag/vipdiag/pkg/models"
	"github.com/vipdiag/vipdiag/pkg/report"
	"github.com/vipdiag/vipdiag/pkg/store"
)

const defaultListLimit = 50

// Server wires the coordinator, store, detector and assembler behind a
// JSON API.
type Server struct {
	coord     *coordinator.Coordinator
	store     store.Store
	detector  *detector.Detector
	assembler *report.Assembler
	logger    *zap.Logger
	router    *mux.Router
}

func NewServer(
	coord *coordinator.Coordinator,
	st store.Store,
	det *detector.Detector,
	asm *report.Assembler,
	logger *zap.Logger,
) *Server {
	s := &Server{
		coord:     coord,
		store:     st,
		detector:  det,
		assembler: asm,
		logger:    logger.Named("api"),
		router:    mux.NewRouter(),
	}
	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/runs", s.startRun).Methods("POST")
	s.router.HandleFunc("/api/runs", s.listRuns).Methods("GET")
	s.router.HandleFunc("/api/runs/{id}", s.getRun).Methods("GET")
	s.router.HandleFunc("/api/runs/{id}", s.deleteRun).Methods("DELETE")
	s.router.HandleFunc("/api/runs/{id}/stop", s.stopRun).Methods("POST")
	s.router.HandleFunc("/api/runs/{id}/abort", s.abortRun).Methods("POST")
	s.router.HandleFunc("/api/runs/{id}/metrics", s.getMetrics).Methods("GET")
	s.router.HandleFunc("/api/runs/{id}/analyze", s.analyzeRun).Methods("POST")
	s.router.HandleFunc("/api/runs/{id}/findings", s.getFindings).Methods("GET")
	s.router.HandleFunc("/api/runs/{id}/report", s.getReport).Methods("GET")
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.logger.Info("api listening", zap.String("addr", addr))

	return srv.ListenAndServe()
}

func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	var req coordinator.StartRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	run, err := s.coord.StartRun(r.Context(), &req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, run)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}

		limit = parsed
	}

	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if runs == nil {
		runs = []models.Run{}
	}

	s.writeJSON(w, http.StatusOK, runs)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, run)
}

func (s *Server) deleteRun(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	if s.coord.ActiveRunID() == runID {
		http.Error(w, "run is active", http.StatusConflict)
		return
	}

	if _, err := s.store.GetRun(r.Context(), runID); err != nil {
		s.writeError(w, err)
		return
	}

	if err := s.store.DeleteRun(r.Context(), runID); err != nil {
		s.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) stopRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.coord.StopRun(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, run)
}

func (s *Server) abortRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.coord.AbortRun(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, run)
}

// getMetrics supports ?name=, ?source=, ?start=, ?end= (RFC3339) and
// repeated ?tag=k:v filters.
func (s *Server) getMetrics(w http.ResponseWriter, r *http.Request) {
	filter := &models.PointFilter{
		RunID:  mux.Vars(r)["id"],
		Name:   r.URL.Query().Get("name"),
		Source: models.Source(r.URL.Query().Get("source")),
	}

	if raw := r.URL.Query().Get("start"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "invalid start time", http.StatusBadRequest)
			return
		}

		filter.Start = ts
	}

	if raw := r.URL.Query().Get("end"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "invalid end time", http.StatusBadRequest)
			return
		}

		filter.End = ts
	}

	for _, raw := range r.URL.Query()["tag"] {
		k, v, ok := strings.Cut(raw, ":")
		if !ok {
			http.Error(w, "invalid tag filter, want k:v", http.StatusBadRequest)
			return
		}

		if filter.Tags == nil {
			filter.Tags = make(map[string]string)
		}

		filter.Tags[k] = v
	}

	// Point queries only make sense for runs that exist.
	if _, err := s.store.GetRun(r.Context(), filter.RunID); err != nil {
		s.writeError(w, err)
		return
	}

	points, err := s.store.Query(r.Context(), filter)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if points == nil {
		points = []models.MetricPoint{}
	}

	s.writeJSON(w, http.StatusOK, points)
}

func (s *Server) analyzeRun(w http.ResponseWriter, r *http.Request) {
	findings, err := s.detector.Analyze(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}

	if findings == nil {
		findings = []models.Finding{}
	}

	s.writeJSON(w, http.StatusOK, findings)
}

func (s *Server) getFindings(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	if _, err := s.store.GetRun(r.Context(), runID); err != nil {
		s.writeError(w, err)
		return
	}

	findings, err := s.store.GetFindings(r.Context(), runID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if findings == nil {
		findings = []models.Finding{}
	}

	s.writeJSON(w, http.StatusOK, findings)
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	doc, err := s.assembler.Assemble(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, doc)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

// writeError maps domain sentinels to HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrRunNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, coordinator.ErrRunActive):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, coordinator.ErrInvalidRequest):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, coordinator.ErrUnknownRun),
		errors.Is(err, store.ErrRunClosed),
		errors.Is(err, detector.ErrRunNotCompleted),
		errors.Is(err, report.ErrIncompleteRun):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		s.logger.Error("request failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}
