package sim

import (
	"math"

	"github.com/elektrokombinacija/amr-fleet/internal/core"
)

// Metrics summarizes a completed run.
type Metrics struct {
	OnTimeRate        float64 `json:"on_time_rate"`
	TotalDistance     float64 `json:"total_distance"`
	AvgCompletionTime float64 `json:"avg_completion_time"`
	MaxLateness       float64 `json:"max_lateness"`
	CompletedJobs     int     `json:"completed_jobs"`
	FailedJobs        int     `json:"failed_jobs"`
	TotalJobs         int     `json:"total_jobs"`
}

// ComputeMetrics aggregates job and robot state into run-level metrics.
// Lateness and completion times count completed jobs only.
func ComputeMetrics(jobs []core.Job, robots []core.Robot) Metrics {
	m := Metrics{TotalJobs: len(jobs)}

	onTime := 0
	completionSum := 0.0
	for i := range jobs {
		j := &jobs[i]
		switch j.State {
		case core.JobCompleted:
			m.CompletedJobs++
			completionSum += float64(j.CompletedSimTS)
			if j.CompletedSimTS <= j.DeadlineTS {
				onTime++
			}
			if j.LatenessS > m.MaxLateness {
				m.MaxLateness = j.LatenessS
			}
		case core.JobFailed:
			m.FailedJobs++
		}
	}

	if m.TotalJobs > 0 {
		m.OnTimeRate = float64(onTime) / float64(m.TotalJobs) * 100.0
	}
	if m.CompletedJobs > 0 {
		m.AvgCompletionTime = completionSum / float64(m.CompletedJobs)
	}
	for i := range robots {
		m.TotalDistance += robots[i].DistanceTraveled
	}

	m.OnTimeRate = round6(m.OnTimeRate)
	m.TotalDistance = round6(m.TotalDistance)
	m.AvgCompletionTime = round6(m.AvgCompletionTime)
	m.MaxLateness = round6(m.MaxLateness)
	return m
}

// Map returns the metrics as an event payload fragment.
func (m Metrics) Map() map[string]any {
	return map[string]any{
		"on_time_rate":        m.OnTimeRate,
		"total_distance":      m.TotalDistance,
		"avg_completion_time": m.AvgCompletionTime,
		"max_lateness":        m.MaxLateness,
		"completed_jobs":      m.CompletedJobs,
		"failed_jobs":         m.FailedJobs,
		"total_jobs":          m.TotalJobs,
	}
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
