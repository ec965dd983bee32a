// Package server exposes the sync daemon's health and last-pass status over
// HTTP. The endpoints are read-only and unauthenticated; bind them to a
// loopback or otherwise private address.
package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/rumor-ml/commons.systems/ledgersync/internal/engine"
	"github.com/rumor-ml/commons.systems/ledgersync/internal/firestore"
)

// recentRunsLimit bounds the /runs response.
const recentRunsLimit = 20

// RunHistory provides the persisted pass records served by /runs.
// *firestore.Client implements it.
type RunHistory interface {
	RecentRuns(ctx context.Context, limit int) ([]*firestore.RunRecord, error)
}

// Status is the /status response body.
type Status struct {
	Halted     bool            `json:"halted"`
	HaltReason string          `json:"haltReason,omitempty"`
	LastPassAt time.Time       `json:"lastPassAt,omitzero"`
	Sources    []engine.Report `json:"sources"`
}

// Server serves the daemon's observability endpoints.
type Server struct {
	halt    *engine.Halt
	mux     *http.ServeMux
	history RunHistory

	mu      sync.RWMutex
	reports map[string]engine.Report
	lastAt  time.Time
}

// New creates a server reading halt state from the given latch.
func New(halt *engine.Halt) *Server {
	s := &Server{
		halt:    halt,
		mux:     http.NewServeMux(),
		reports: map[string]engine.Report{},
	}
	s.mux.HandleFunc("/health", s.health)
	s.mux.HandleFunc("/status", s.status)
	s.mux.HandleFunc("/runs", s.runs)
	return s
}

// SetRunHistory enables the /runs endpoint. Without it the endpoint
// answers 404; run history needs a persistent backend.
func (s *Server) SetRunHistory(history RunHistory) {
	s.history = history
}

// Record stores the latest report for a source, replacing the previous pass.
func (s *Server) Record(report engine.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[report.Source] = report
	if report.FinishedAt.After(s.lastAt) {
		s.lastAt = report.FinishedAt
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, halted := s.halt.Halted(); halted {
		// Still serving, but the sync loop is latched and needs an
		// operator restart. Surface that to probes.
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "halted"})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	status := Status{
		LastPassAt: s.lastAt,
		Sources:    make([]engine.Report, 0, len(s.reports)),
	}
	for _, report := range s.reports {
		status.Sources = append(status.Sources, report)
	}
	s.mu.RUnlock()

	sort.Slice(status.Sources, func(i, j int) bool {
		return status.Sources[i].Source < status.Sources[j].Source
	})
	if cause, halted := s.halt.Halted(); halted {
		status.Halted = true
		status.HaltReason = cause.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Printf("ERROR: failed to encode status response: %v", err)
	}
}

func (s *Server) runs(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.Error(w, "run history not configured", http.StatusNotFound)
		return
	}

	records, err := s.history.RecentRuns(r.Context(), recentRunsLimit)
	if err != nil {
		log.Printf("ERROR: loading run history: %v", err)
		http.Error(w, "failed to load run history", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []*firestore.RunRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(records); err != nil {
		log.Printf("ERROR: failed to encode runs response: %v", err)
	}
}
