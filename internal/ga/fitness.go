// Package ga implements the deterministic genetic-algorithm planner for
// job-to-robot assignment.
package ga

import (
	"github.com/elektrokombinacija/amr-fleet/internal/core"
)

const infeasibleScore = 1e9

// FitnessResult is the total chromosome score plus per-job contributions.
type FitnessResult struct {
	Score     float64
	JobScores map[string]float64
}

// SortJobs returns a copy of jobs in the deterministic GA evaluation order.
func SortJobs(jobs []core.JobInfo) []core.JobInfo {
	ordered := make([]core.JobInfo, len(jobs))
	copy(ordered, jobs)
	core.SortJobsEDF(ordered)
	return ordered
}

// Evaluate scores a chromosome against robots and jobs. Gene i maps
// sorted job i to robots[gene%len(robots)]. Lower is better.
func Evaluate(chromosome []int, robots []core.RobotInfo, jobs []core.JobInfo, serviceTimeS int) FitnessResult {
	if len(jobs) == 0 {
		return FitnessResult{Score: 0, JobScores: map[string]float64{}}
	}
	if len(robots) == 0 {
		scores := make(map[string]float64, len(jobs))
		for _, job := range jobs {
			scores[job.ID] = infeasibleScore
		}
		return FitnessResult{Score: infeasibleScore, JobScores: scores}
	}

	ordered := SortJobs(jobs)

	robotTime := make([]float64, len(robots))
	robotX := make([]float64, len(robots))
	robotY := make([]float64, len(robots))
	robotBattery := make([]float64, len(robots))
	robotJobCount := make([]int, len(robots))
	for i, r := range robots {
		robotX[i] = r.X
		robotY[i] = r.Y
		robotBattery[i] = r.Battery
	}

	total := 0.0
	jobScores := make(map[string]float64, len(ordered))

	for idx, job := range ordered {
		ri := geneIndex(chromosome[idx], len(robots))
		travelToPickup := core.Distance(robotX[ri], robotY[ri], job.PickupX, job.PickupY)
		travelToDropoff := core.Distance(job.PickupX, job.PickupY, job.DropoffX, job.DropoffY)
		distance := travelToPickup + travelToDropoff

		speed := robots[ri].Speed
		if speed < 0.1 {
			speed = 0.1
		}
		travelTime := distance / speed

		completionTime := robotTime[ri] + travelTime + 2*float64(serviceTimeS)
		lateness := completionTime - float64(job.DeadlineTS)
		if lateness < 0 {
			lateness = 0
		}

		batteryAfter := robotBattery[ri] - distance*0.1
		batteryPenalty := 0.0
		if batteryAfter < 0 {
			batteryPenalty = 500.0 + (-batteryAfter)*100.0
		} else if batteryAfter < 10 {
			batteryPenalty = 200.0
		}

		loadPenalty := float64(robotJobCount[ri]*robotJobCount[ri]) * 30.0

		jobPenalty := lateness*1000.0 +
			distance*2.0 +
			float64(6-job.Priority)*3.0 +
			batteryPenalty +
			loadPenalty
		total += jobPenalty
		jobScores[job.ID] = jobPenalty

		robotTime[ri] = completionTime
		robotX[ri] = job.DropoffX
		robotY[ri] = job.DropoffY
		if batteryAfter < 0 {
			batteryAfter = 0
		}
		robotBattery[ri] = batteryAfter
		robotJobCount[ri]++
	}

	return FitnessResult{Score: total, JobScores: jobScores}
}

// geneIndex maps a gene to a robot index, wrapping negatives so any
// integer gene is tolerated.
func geneIndex(gene, robotCount int) int {
	idx := gene % robotCount
	if idx < 0 {
		idx += robotCount
	}
	return idx
}
