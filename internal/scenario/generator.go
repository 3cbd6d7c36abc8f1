// Package scenario generates deterministic robot/job scenarios.
package scenario

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand"

	"github.com/elektrokombinacija/amr-fleet/internal/config"
	"github.com/elektrokombinacija/amr-fleet/internal/core"
)

// Params configures scenario generation. Robots/Jobs of 0 mean "use the
// scale preset"; overrides must be provided together.
type Params struct {
	Seed      int64
	Scale     string
	WorldSize int
	SpeedMin  float64
	SpeedMax  float64
	Robots    int
	Jobs      int
	Presets   map[string]config.ScalePreset
}

// Generate creates robots and jobs from a seeded RNG and returns them with
// the scenario hash. The draw order is fixed: for each robot x, y, speed;
// for each job pickup x/y, dropoff x/y, deadline jitter, priority.
func Generate(p Params) ([]core.Robot, []core.Job, string, error) {
	preset, ok := p.Presets[p.Scale]
	if !ok {
		return nil, nil, "", fmt.Errorf("invalid scale: %s", p.Scale)
	}
	if (p.Robots == 0) != (p.Jobs == 0) {
		return nil, nil, "", fmt.Errorf("robots and jobs overrides must be provided together")
	}
	if p.Robots < 0 {
		return nil, nil, "", fmt.Errorf("robots override must be > 0")
	}
	if p.Jobs < 0 {
		return nil, nil, "", fmt.Errorf("jobs override must be > 0")
	}

	robotCount := preset.Robots
	jobCount := preset.Jobs
	if p.Robots > 0 {
		robotCount = p.Robots
		jobCount = p.Jobs
	}

	rng := rand.New(rand.NewSource(p.Seed))
	world := float64(p.WorldSize)

	robots := make([]core.Robot, 0, robotCount)
	for i := 1; i <= robotCount; i++ {
		robots = append(robots, core.Robot{
			ID:      i,
			X:       core.Round3(uniform(rng, 0, world)),
			Y:       core.Round3(uniform(rng, 0, world)),
			Speed:   core.Round3(uniform(rng, p.SpeedMin, p.SpeedMax)),
			Battery: 100.0,
			State:   core.RobotIdle,
		})
	}

	jobs := make([]core.Job, 0, jobCount)
	for j := 1; j <= jobCount; j++ {
		pickupX := core.Round3(uniform(rng, 0, world))
		pickupY := core.Round3(uniform(rng, 0, world))
		dropoffX := core.Round3(uniform(rng, 0, world))
		dropoffY := core.Round3(uniform(rng, 0, world))
		deadline := 120 + j*12 + randint(rng, 0, 20)
		jobs = append(jobs, core.Job{
			ID:         fmt.Sprintf("job_%d", j),
			PickupX:    pickupX,
			PickupY:    pickupY,
			DropoffX:   dropoffX,
			DropoffY:   dropoffY,
			DeadlineTS: deadline,
			Priority:   randint(rng, 1, 5),
			State:      core.JobPending,
		})
	}

	hash, err := Hash(p.Seed, p.Scale, robots, jobs)
	if err != nil {
		return nil, nil, "", err
	}
	return robots, jobs, hash, nil
}

// Hash computes the SHA-256 scenario hash over the canonical JSON encoding
// of the seed, scale, full robot states and job definitions.
func Hash(seed int64, scale string, robots []core.Robot, jobs []core.Job) (string, error) {
	robotDicts := make([]map[string]any, 0, len(robots))
	for i := range robots {
		r := &robots[i]
		robotDicts = append(robotDicts, map[string]any{
			"id":                r.ID,
			"x":                 r.X,
			"y":                 r.Y,
			"speed":             r.Speed,
			"battery":           r.Battery,
			"state":             r.State,
			"current_job_id":    nil,
			"target_x":          nil,
			"target_y":          nil,
			"phase_remaining_s": r.PhaseRemainingS,
			"distance_traveled": r.DistanceTraveled,
		})
	}
	jobDicts := make([]map[string]any, 0, len(jobs))
	for i := range jobs {
		j := &jobs[i]
		jobDicts = append(jobDicts, map[string]any{
			"id":          j.ID,
			"pickup_x":    j.PickupX,
			"pickup_y":    j.PickupY,
			"dropoff_x":   j.DropoffX,
			"dropoff_y":   j.DropoffY,
			"deadline_ts": j.DeadlineTS,
			"priority":    j.Priority,
		})
	}
	payload := map[string]any{
		"seed":   seed,
		"scale":  scale,
		"robots": robotDicts,
		"jobs":   jobDicts,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode scenario: %w", err)
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:]), nil
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

func randint(rng *rand.Rand, a, b int) int {
	return a + rng.Intn(b-a+1)
}
