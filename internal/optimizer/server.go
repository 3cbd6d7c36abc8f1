// Package optimizer exposes the GA planner over HTTP.
package optimizer

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/elektrokombinacija/amr-fleet/internal/ga"
)

// Server serves /health and /optimize.
type Server struct {
	cfg ga.Config
	log zerolog.Logger
}

// NewServer builds the HTTP surface with the service's GA parameters. The
// per-request seed overrides cfg.Seed.
func NewServer(cfg ga.Config, log zerolog.Logger) *Server {
	return &Server{cfg: cfg, log: log}
}

// Routes returns the request mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /optimize", s.handleOptimize)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req ga.PlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	cfg := s.cfg
	cfg.Seed = req.Seed
	assignments, meta := ga.Optimize(req.Robots, req.PendingJobs, cfg)
	s.log.Info().
		Str("run_id", req.RunID).
		Int("robots", len(req.Robots)).
		Int("jobs", len(req.PendingJobs)).
		Float64("best_score", meta.BestScore).
		Msg("optimize")

	writeJSON(w, http.StatusOK, ga.PlanResponse{Assignments: assignments, Meta: meta})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
