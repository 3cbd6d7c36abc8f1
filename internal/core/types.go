// Package core defines domain models for the AMR fleet.
package core

import (
	"math"
	"sort"
)

// RobotState is a robot lifecycle state.
type RobotState string

const (
	RobotIdle            RobotState = "idle"
	RobotMovingToPickup  RobotState = "moving_to_pickup"
	RobotMovingToDropoff RobotState = "moving_to_dropoff"
	RobotCharging        RobotState = "charging"
)

// Moving reports whether the robot is in transit to a kinematic target.
func (s RobotState) Moving() bool {
	return s == RobotMovingToPickup || s == RobotMovingToDropoff
}

// JobState is a job lifecycle state.
type JobState string

const (
	JobPending    JobState = "pending"
	JobUnassigned JobState = "unassigned"
	JobAssigned   JobState = "assigned"
	JobInProgress JobState = "in_progress"
	JobCompleted  JobState = "completed"
	JobFailed     JobState = "failed"
)

// Assignable reports whether the job may still be handed to a robot.
func (s JobState) Assignable() bool {
	return s == JobPending || s == JobUnassigned
}

// Terminal reports whether the job reached a final state.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Assignment instructs the simulation engine to start a job on a robot.
type Assignment struct {
	JobID   string `json:"job_id"`
	RobotID int    `json:"robot_id"`
}

// PlannedAssignment is a scored job-to-robot pairing produced by the optimizer.
type PlannedAssignment struct {
	JobID   string  `json:"job_id"`
	RobotID int     `json:"robot_id"`
	Score   float64 `json:"score"`
}

// SortPlanned orders assignments by (job_id, robot_id).
func SortPlanned(assignments []PlannedAssignment) {
	sort.Slice(assignments, func(i, j int) bool {
		if assignments[i].JobID != assignments[j].JobID {
			return assignments[i].JobID < assignments[j].JobID
		}
		return assignments[i].RobotID < assignments[j].RobotID
	})
}

// Distance returns the Euclidean distance between two points.
func Distance(ax, ay, bx, by float64) float64 {
	return math.Hypot(ax-bx, ay-by)
}

// Round3 rounds to 3 decimals, the wire precision for coordinates and battery.
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
