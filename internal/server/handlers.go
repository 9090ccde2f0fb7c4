package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/specmatch/specmatch/internal/binning"
	"github.com/specmatch/specmatch/internal/events"
	"github.com/specmatch/specmatch/internal/export"
	"github.com/specmatch/specmatch/internal/library"
	"github.com/specmatch/specmatch/internal/spectrum"
)

const defaultTopK = 5

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":       "specmatch",
		"library":    s.index.Name(),
		"spectra":    s.index.Len(),
		"metric":     s.config.Similarity.Metric,
		"config_key": s.binCfg.Key(),
		"viewers":    s.hub.Stats().ActiveConnections,
	})
}

// handleListSpectra returns every identifier in the library
func (s *Server) handleListSpectra(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"library": s.index.Name(),
		"count":   s.index.Len(),
		"ids":     s.index.IDs(),
	})
}

// handleGetSpectrum returns one spectrum's series prepared for rendering
func (s *Server) handleGetSpectrum(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	spec, err := s.index.Get(id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, export.NewSeriesDocument(spec))
}

// handleMatches returns the best library matches for one member spectrum
func (s *Server) handleMatches(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	topK := defaultTopK
	if raw := r.URL.Query().Get("k"); raw != "" {
		k, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "invalid k parameter", http.StatusBadRequest)
			return
		}
		topK = k
	}

	spec, err := s.index.Get(id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	matches, err := s.index.FindBestMatches(r.Context(), spec, s.binCfg, topK)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"query":   id,
		"matches": matches,
	})
}

// compareRequest is the POST /compare body: two sets of member identifiers.
// An empty candidate list compares against the whole library.
type compareRequest struct {
	Queries    []string `json:"queries"`
	Candidates []string `json:"candidates"`
}

// handleCompare runs a batch comparison between two sets of library members
func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Queries) == 0 {
		http.Error(w, "queries must not be empty", http.StatusBadRequest)
		return
	}
	// Report cells are keyed by identifier, so repeated ids would
	// silently collapse rows or columns.
	if id, dup := firstDuplicate(req.Queries); dup {
		http.Error(w, fmt.Sprintf("duplicate query id %q", id), http.StatusBadRequest)
		return
	}
	if id, dup := firstDuplicate(req.Candidates); dup {
		http.Error(w, fmt.Sprintf("duplicate candidate id %q", id), http.StatusBadRequest)
		return
	}
	if len(req.Candidates) == 0 {
		req.Candidates = s.index.IDs()
	}

	setA, err := s.resolve(req.Queries)
	if err != nil {
		s.writeError(w, err)
		return
	}
	setB, err := s.resolve(req.Candidates)
	if err != nil {
		s.writeError(w, err)
		return
	}

	start := time.Now()
	report, err := s.comparator.CompareAll(r.Context(), setA, setB, s.binCfg)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.hub.Broadcast(events.EventTypeBatchComplete, events.BatchCompleteEvent{
		Queries:     len(report.Queries),
		Candidates:  len(report.Candidates),
		FailedCells: report.FailedCount(),
		DurationMS:  float64(time.Since(start).Microseconds()) / 1000,
	})

	s.writeJSON(w, http.StatusOK, report)
}

// handleWebSocket attaches viewer clients to the event hub
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.hub.HandleWebSocket(w, r)
}

func firstDuplicate(ids []string) (string, bool) {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return id, true
		}
		seen[id] = struct{}{}
	}
	return "", false
}

func (s *Server) resolve(ids []string) ([]*spectrum.Spectrum, error) {
	specs := make([]*spectrum.Spectrum, 0, len(ids))
	for _, id := range ids {
		spec, err := s.index.Get(id)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// writeError maps engine errors onto HTTP status codes
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var notFound *library.NotFoundError
	var invalidQuery *library.InvalidArgumentError
	var invalidConfig *binning.InvalidArgumentError

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &notFound):
		status = http.StatusNotFound
	case errors.As(err, &invalidQuery), errors.As(err, &invalidConfig):
		status = http.StatusBadRequest
	}

	http.Error(w, err.Error(), status)
}
