// Package dispatch assigns jobs to robots, either with the baseline
// EDF-plus-nearest heuristic or by delegating to the GA optimizer.
package dispatch

import (
	"sort"

	"github.com/elektrokombinacija/amr-fleet/internal/core"
)

// Assignment reasons carried on job.assigned events.
const (
	ReasonBaseline  = "baseline_edf_nearest"
	ReasonGAPlanned = "ga_planned"
)

// BaselineAssignment pairs a job with its chosen robot.
type BaselineAssignment struct {
	JobID   string
	RobotID int
	Reason  string
}

// ComputeBaselineAssignments picks, for each pending job in EDF order, the
// nearest eligible idle robot. When every idle robot is below the battery
// threshold the filter is relaxed so the fleet cannot stall.
func ComputeBaselineAssignments(
	robots map[int]*robotView,
	jobs map[string]*jobView,
	alreadyAssigned map[string]bool,
	blockedRobots map[int]bool,
	batteryThreshold float64,
) []BaselineAssignment {
	pending := make([]*jobView, 0, len(jobs))
	for _, j := range jobs {
		if !core.JobState(j.State).Assignable() || alreadyAssigned[j.ID] {
			continue
		}
		pending = append(pending, j)
	}

	idle := make([]*robotView, 0, len(robots))
	for _, r := range robots {
		if r.State == string(core.RobotIdle) && !blockedRobots[r.ID] && r.Battery >= batteryThreshold {
			idle = append(idle, r)
		}
	}
	if len(idle) == 0 && len(pending) > 0 {
		for _, r := range robots {
			if r.State == string(core.RobotIdle) && !blockedRobots[r.ID] {
				idle = append(idle, r)
			}
		}
	}

	sort.Slice(pending, func(i, j int) bool {
		if pending[i].DeadlineTS != pending[j].DeadlineTS {
			return pending[i].DeadlineTS < pending[j].DeadlineTS
		}
		if pending[i].Priority != pending[j].Priority {
			return pending[i].Priority > pending[j].Priority
		}
		return pending[i].ID < pending[j].ID
	})
	sort.Slice(idle, func(i, j int) bool { return idle[i].ID < idle[j].ID })

	assignments := make([]BaselineAssignment, 0, len(pending))
	used := make(map[int]bool)

	for _, job := range pending {
		var best *robotView
		bestDistance := 0.0
		for _, robot := range idle {
			if used[robot.ID] {
				continue
			}
			d := core.Distance(robot.X, robot.Y, job.PickupX, job.PickupY)
			if best == nil || d < bestDistance || (d == bestDistance && robot.ID < best.ID) {
				best = robot
				bestDistance = d
			}
		}
		if best == nil {
			continue
		}
		used[best.ID] = true
		assignments = append(assignments, BaselineAssignment{
			JobID:   job.ID,
			RobotID: best.ID,
			Reason:  ReasonBaseline,
		})
	}

	sort.Slice(assignments, func(i, j int) bool {
		if assignments[i].JobID != assignments[j].JobID {
			return assignments[i].JobID < assignments[j].JobID
		}
		return assignments[i].RobotID < assignments[j].RobotID
	})
	return assignments
}
