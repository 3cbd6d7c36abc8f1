package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/elektrokombinacija/amr-fleet/internal/core"
	"github.com/elektrokombinacija/amr-fleet/internal/ga"
)

// Planner produces a GA plan for the current pending jobs.
type Planner interface {
	Plan(ctx context.Context, req ga.PlanRequest) ([]core.PlannedAssignment, error)
}

// HTTPPlanner calls the optimizer service's /optimize endpoint.
type HTTPPlanner struct {
	baseURL string
	client  *http.Client
}

// NewHTTPPlanner builds a planner against the optimizer base URL.
func NewHTTPPlanner(baseURL string) *HTTPPlanner {
	return &HTTPPlanner{
		baseURL: baseURL,
		client:  &http.Client{Timeout: plannerTimeout},
	}
}

// Plan posts the request and returns the assignments sorted by
// (job_id, robot_id).
func (p *HTTPPlanner) Plan(ctx context.Context, req ga.PlanRequest) ([]core.PlannedAssignment, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode optimize request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/optimize", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build optimize request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call optimizer: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("optimizer returned status %d", resp.StatusCode)
	}

	var plan ga.PlanResponse
	if err := json.NewDecoder(resp.Body).Decode(&plan); err != nil {
		return nil, fmt.Errorf("decode optimize response: %w", err)
	}
	core.SortPlanned(plan.Assignments)
	return plan.Assignments, nil
}

// LocalPlanner runs the GA in process. Used by the local harness and tests
// so no optimizer service is needed.
type LocalPlanner struct {
	cfg ga.Config
}

// NewLocalPlanner builds an in-process planner with the given GA
// parameters. The per-request seed overrides cfg.Seed, matching the
// optimizer service.
func NewLocalPlanner(cfg ga.Config) *LocalPlanner {
	return &LocalPlanner{cfg: cfg}
}

// Plan runs the GA synchronously.
func (p *LocalPlanner) Plan(_ context.Context, req ga.PlanRequest) ([]core.PlannedAssignment, error) {
	cfg := p.cfg
	cfg.Seed = req.Seed
	assignments, _ := ga.Optimize(req.Robots, req.PendingJobs, cfg)
	return assignments, nil
}
