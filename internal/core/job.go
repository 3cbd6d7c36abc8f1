package core

import "sort"

// Job is the full job state tracked by the simulation engine.
type Job struct {
	ID              string
	PickupX         float64
	PickupY         float64
	DropoffX        float64
	DropoffY        float64
	DeadlineTS      int
	Priority        int
	State           JobState
	AssignedRobotID int // 0 means unassigned
	CreatedSimTS    int
	StartedSimTS    int
	CompletedSimTS  int
	LatenessS       float64
}

// JobInfo is the wire view of a job shared with the optimizer.
type JobInfo struct {
	ID         string   `json:"id"`
	PickupX    float64  `json:"pickup_x"`
	PickupY    float64  `json:"pickup_y"`
	DropoffX   float64  `json:"dropoff_x"`
	DropoffY   float64  `json:"dropoff_y"`
	DeadlineTS int      `json:"deadline_ts"`
	Priority   int      `json:"priority"`
	State      JobState `json:"state"`
}

// Info returns the job's wire view.
func (j *Job) Info() JobInfo {
	return JobInfo{
		ID:         j.ID,
		PickupX:    j.PickupX,
		PickupY:    j.PickupY,
		DropoffX:   j.DropoffX,
		DropoffY:   j.DropoffY,
		DeadlineTS: j.DeadlineTS,
		Priority:   j.Priority,
		State:      j.State,
	}
}

// SortJobsEDF orders job views by (deadline asc, priority desc, id asc),
// the deterministic order used by both the dispatcher and the optimizer.
func SortJobsEDF(jobs []JobInfo) {
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].DeadlineTS != jobs[j].DeadlineTS {
			return jobs[i].DeadlineTS < jobs[j].DeadlineTS
		}
		if jobs[i].Priority != jobs[j].Priority {
			return jobs[i].Priority > jobs[j].Priority
		}
		return jobs[i].ID < jobs[j].ID
	})
}
