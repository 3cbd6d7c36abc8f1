package optimizer

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/elektrokombinacija/amr-fleet/internal/core"
	"github.com/elektrokombinacija/amr-fleet/internal/ga"
)

func newTestServer() *httptest.Server {
	cfg := ga.Config{
		ServiceTimeS:   5,
		PopulationSize: 32,
		Generations:    20,
		EliteSize:      2,
		CrossoverRate:  0.9,
		MutationRate:   0.1,
	}
	return httptest.NewServer(NewServer(cfg, zerolog.Nop()).Routes())
}

func planRequest(seed int64) ga.PlanRequest {
	return ga.PlanRequest{
		RunID:    "run-1",
		Seed:     seed,
		Scale:    "mini",
		Mode:     "ga",
		SimTimeS: 0,
		Robots: []core.RobotInfo{
			{ID: 1, X: 0, Y: 0, Speed: 1.5, Battery: 100, State: core.RobotIdle},
			{ID: 2, X: 50, Y: 50, Speed: 1.2, Battery: 80, State: core.RobotIdle},
		},
		PendingJobs: []core.JobInfo{
			{ID: "job_1", PickupX: 5, PickupY: 5, DropoffX: 10, DropoffY: 10, DeadlineTS: 150, Priority: 3, State: core.JobPending},
			{ID: "job_2", PickupX: 55, PickupY: 55, DropoffX: 60, DropoffY: 60, DeadlineTS: 200, Priority: 2, State: core.JobPending},
		},
	}
}

func postOptimize(t *testing.T, srv *httptest.Server, req ga.PlanRequest) ga.PlanResponse {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/optimize", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var plan ga.PlanResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&plan))
	return plan
}

func TestHealth(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "ok", body["status"])
}

func TestOptimizeDeterministicOverHTTP(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	first := postOptimize(t, srv, planRequest(42))
	second := postOptimize(t, srv, planRequest(42))

	require.Equal(t, first, second, "same request must give byte-identical plans")
	require.Len(t, first.Assignments, 2)
	require.Equal(t, int64(42), first.Meta.Seed)
	require.Equal(t, 20, first.Meta.Generations)
}

func TestOptimizeSeedFromRequest(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	a := postOptimize(t, srv, planRequest(1))
	require.Equal(t, int64(1), a.Meta.Seed, "request seed overrides service config")
}

func TestOptimizeEmptyJobs(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	req := planRequest(42)
	req.PendingJobs = nil
	plan := postOptimize(t, srv, req)
	require.NotNil(t, plan.Assignments)
	require.Empty(t, plan.Assignments)
}

func TestOptimizeRejectsBadJSON(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/optimize", "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
