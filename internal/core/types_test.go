package core

import (
	"math"
	"testing"
)

func TestJobStateTransitions(t *testing.T) {
	tests := []struct {
		state      JobState
		assignable bool
		terminal   bool
	}{
		{JobPending, true, false},
		{JobUnassigned, true, false},
		{JobAssigned, false, false},
		{JobInProgress, false, false},
		{JobCompleted, false, true},
		{JobFailed, false, true},
	}

	for _, tt := range tests {
		if got := tt.state.Assignable(); got != tt.assignable {
			t.Errorf("%s.Assignable() = %v, want %v", tt.state, got, tt.assignable)
		}
		if got := tt.state.Terminal(); got != tt.terminal {
			t.Errorf("%s.Terminal() = %v, want %v", tt.state, got, tt.terminal)
		}
	}
}

func TestRobotStateMoving(t *testing.T) {
	tests := []struct {
		state RobotState
		want  bool
	}{
		{RobotIdle, false},
		{RobotMovingToPickup, true},
		{RobotMovingToDropoff, true},
		{RobotCharging, false},
	}

	for _, tt := range tests {
		if got := tt.state.Moving(); got != tt.want {
			t.Errorf("%s.Moving() = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestDistance(t *testing.T) {
	if d := Distance(0, 0, 3, 4); math.Abs(d-5) > 1e-12 {
		t.Errorf("Distance(0,0,3,4) = %v, want 5", d)
	}
	if d := Distance(1, 1, 1, 1); d != 0 {
		t.Errorf("Distance at same point = %v, want 0", d)
	}
}

func TestRound3(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{1.23456, 1.235},
		{1.2344, 1.234},
		{0, 0},
		{-2.5555, -2.556},
	}
	for _, tt := range tests {
		if got := Round3(tt.in); got != tt.want {
			t.Errorf("Round3(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSortJobsEDF(t *testing.T) {
	jobs := []JobInfo{
		{ID: "job_3", DeadlineTS: 200, Priority: 1},
		{ID: "job_1", DeadlineTS: 100, Priority: 2},
		{ID: "job_2", DeadlineTS: 100, Priority: 5},
		{ID: "job_4", DeadlineTS: 100, Priority: 5},
	}
	SortJobsEDF(jobs)

	want := []string{"job_2", "job_4", "job_1", "job_3"}
	for i, id := range want {
		if jobs[i].ID != id {
			t.Fatalf("order[%d] = %s, want %s", i, jobs[i].ID, id)
		}
	}
}

func TestRobotInfoNilJobID(t *testing.T) {
	r := Robot{ID: 1, X: 1.23456, Y: 2, Speed: 1.5, Battery: 99.9999}
	info := r.Info()
	if info.CurrentJobID != nil {
		t.Errorf("expected nil current_job_id for idle robot")
	}
	if info.X != 1.235 {
		t.Errorf("expected rounded x, got %v", info.X)
	}

	r.CurrentJobID = "job_1"
	info = r.Info()
	if info.CurrentJobID == nil || *info.CurrentJobID != "job_1" {
		t.Errorf("expected current_job_id job_1, got %v", info.CurrentJobID)
	}
}
