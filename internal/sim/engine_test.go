package sim

import (
	"testing"

	"github.com/elektrokombinacija/amr-fleet/internal/core"
)

func testConfig() Config {
	return Config{
		TickHz:                1,
		ServiceTimeS:          2,
		MaxSimSeconds:         3600,
		ChargeRate:            5,
		ChargeResumeThreshold: 20,
		EmitPositionUpdates:   true,
	}
}

func newTestEngine(cfg Config, robots []core.Robot, jobs []core.Job) (*Engine, *[]RobotUpdate) {
	state := &State{
		RunID:  "run-test",
		Mode:   "baseline",
		Seed:   42,
		Scale:  "mini",
		Robots: robots,
		Jobs:   jobs,
	}
	var updates []RobotUpdate
	engine := NewEngine(state, cfg, func(u RobotUpdate) {
		updates = append(updates, u)
	})
	return engine, &updates
}

func TestApplyAssignmentPreconditions(t *testing.T) {
	robots := []core.Robot{
		{ID: 1, X: 0, Y: 0, Speed: 1, Battery: 100, State: core.RobotIdle},
		{ID: 2, X: 5, Y: 5, Speed: 1, Battery: 100, State: core.RobotCharging},
	}
	jobs := []core.Job{
		{ID: "job_1", PickupX: 1, PickupY: 0, DropoffX: 2, DropoffY: 0, DeadlineTS: 100, Priority: 3, State: core.JobPending},
		{ID: "job_2", PickupX: 1, PickupY: 0, DropoffX: 2, DropoffY: 0, DeadlineTS: 100, Priority: 3, State: core.JobCompleted},
	}
	engine, updates := newTestEngine(testConfig(), robots, jobs)

	if engine.ApplyAssignment(core.Assignment{JobID: "job_9", RobotID: 1}) {
		t.Error("unknown job should not apply")
	}
	if engine.ApplyAssignment(core.Assignment{JobID: "job_1", RobotID: 9}) {
		t.Error("unknown robot should not apply")
	}
	if engine.ApplyAssignment(core.Assignment{JobID: "job_1", RobotID: 2}) {
		t.Error("non-idle robot should not accept assignments")
	}
	if engine.ApplyAssignment(core.Assignment{JobID: "job_2", RobotID: 1}) {
		t.Error("terminal job should not be assignable")
	}
	if len(*updates) != 0 {
		t.Fatalf("rejected assignments must not emit, got %d", len(*updates))
	}

	if !engine.ApplyAssignment(core.Assignment{JobID: "job_1", RobotID: 1}) {
		t.Fatal("valid assignment rejected")
	}
	if len(*updates) != 1 {
		t.Fatalf("accepted assignment must force-emit, got %d updates", len(*updates))
	}
	u := (*updates)[0]
	if u.RobotID != 1 || u.State != core.RobotMovingToPickup || u.CurrentJobID != "job_1" {
		t.Errorf("unexpected emission: %+v", u)
	}

	// Idempotent: the job is no longer assignable.
	if engine.ApplyAssignment(core.Assignment{JobID: "job_1", RobotID: 1}) {
		t.Error("duplicate assignment should not apply")
	}
}

func TestJobCompletionWalk(t *testing.T) {
	robots := []core.Robot{{ID: 1, X: 0, Y: 0, Speed: 1, Battery: 100, State: core.RobotIdle}}
	jobs := []core.Job{{ID: "job_1", PickupX: 1, PickupY: 0, DropoffX: 2, DropoffY: 0, DeadlineTS: 100, Priority: 3, State: core.JobPending}}
	engine, _ := newTestEngine(testConfig(), robots, jobs)

	if !engine.ApplyAssignment(core.Assignment{JobID: "job_1", RobotID: 1}) {
		t.Fatal("assignment rejected")
	}

	// Travel to pickup plus first service tick.
	engine.Step()
	job := &engine.state.Jobs[0]
	robot := &engine.state.Robots[0]
	if robot.State != core.RobotMovingToPickup {
		t.Fatalf("after tick 1: state = %s", robot.State)
	}
	// Service completes, pickup done.
	engine.Step()
	if robot.State != core.RobotMovingToDropoff || job.State != core.JobInProgress {
		t.Fatalf("after tick 2: robot %s, job %s", robot.State, job.State)
	}
	// Travel to dropoff plus first service tick.
	engine.Step()
	if job.State != core.JobInProgress {
		t.Fatalf("after tick 3: job = %s", job.State)
	}
	// Dropoff service completes.
	engine.Step()
	if job.State != core.JobCompleted {
		t.Fatalf("after tick 4: job = %s", job.State)
	}
	if job.CompletedSimTS != 3 {
		t.Errorf("completed_sim_ts = %d, want 3", job.CompletedSimTS)
	}
	if job.LatenessS != 0 {
		t.Errorf("lateness = %v, want 0", job.LatenessS)
	}
	if robot.State != core.RobotIdle || robot.CurrentJobID != "" || robot.HasTarget {
		t.Errorf("robot not reset: %+v", robot)
	}
	if robot.DistanceTraveled != 2 {
		t.Errorf("distance traveled = %v, want 2", robot.DistanceTraveled)
	}
	if !engine.ShouldStop() {
		t.Error("all jobs terminal, engine should stop")
	}
}

func TestLatenessRecorded(t *testing.T) {
	cfg := testConfig()
	robots := []core.Robot{{ID: 1, X: 0, Y: 0, Speed: 1, Battery: 100, State: core.RobotIdle}}
	jobs := []core.Job{{ID: "job_1", PickupX: 1, PickupY: 0, DropoffX: 2, DropoffY: 0, DeadlineTS: 1, Priority: 3, State: core.JobPending}}
	engine, _ := newTestEngine(cfg, robots, jobs)

	engine.ApplyAssignment(core.Assignment{JobID: "job_1", RobotID: 1})
	for i := 0; i < 4; i++ {
		engine.Step()
	}
	job := &engine.state.Jobs[0]
	if job.State != core.JobCompleted {
		t.Fatalf("job = %s", job.State)
	}
	if job.LatenessS != 2 {
		t.Errorf("lateness = %v, want completed(3) - deadline(1) = 2", job.LatenessS)
	}
}

func TestChargingAndResume(t *testing.T) {
	robots := []core.Robot{{ID: 1, X: 0, Y: 0, Speed: 1, Battery: 0.05, State: core.RobotIdle}}
	jobs := []core.Job{{ID: "job_1", PickupX: 50, PickupY: 0, DropoffX: 60, DropoffY: 0, DeadlineTS: 1000, Priority: 3, State: core.JobPending}}
	engine, _ := newTestEngine(testConfig(), robots, jobs)

	engine.ApplyAssignment(core.Assignment{JobID: "job_1", RobotID: 1})
	robot := &engine.state.Robots[0]

	// One tick of travel depletes the battery to zero.
	engine.Step()
	if robot.State != core.RobotCharging {
		t.Fatalf("expected charging, got %s", robot.State)
	}
	if robot.Battery != 0 {
		t.Fatalf("battery = %v, want clamped to 0", robot.Battery)
	}

	// Charge at 5/s until the 20 threshold, then resume the trip.
	for i := 0; i < 3; i++ {
		engine.Step()
		if robot.State != core.RobotCharging {
			t.Fatalf("tick %d: expected still charging at battery %v", i, robot.Battery)
		}
	}
	engine.Step()
	if robot.State != core.RobotMovingToPickup {
		t.Fatalf("expected resume to moving_to_pickup, got %s", robot.State)
	}
	if robot.Battery < 20 {
		t.Fatalf("battery = %v, want >= 20", robot.Battery)
	}
	if robot.CurrentJobID != "job_1" {
		t.Errorf("job binding lost across charging")
	}
}

func TestIdleRobotChargingKeepsIdleResume(t *testing.T) {
	// A robot that hits zero while idle never transitions; only moving
	// robots divert to charging.
	robots := []core.Robot{{ID: 1, X: 0, Y: 0, Speed: 1, Battery: 0, State: core.RobotIdle}}
	engine, _ := newTestEngine(testConfig(), robots, nil)
	engine.Step()
	if engine.state.Robots[0].State != core.RobotIdle {
		t.Fatalf("idle robot should stay idle, got %s", engine.state.Robots[0].State)
	}
}

func TestEmissionContract(t *testing.T) {
	cfg := testConfig()
	cfg.TickHz = 5
	robots := []core.Robot{{ID: 1, X: 0, Y: 0, Speed: 1, Battery: 100, State: core.RobotIdle}}
	engine, updates := newTestEngine(cfg, robots, nil)

	engine.EmitInitialUpdates()
	if len(*updates) != 1 {
		t.Fatalf("initial updates = %d, want 1", len(*updates))
	}

	// Five ticks stay inside sim second 0: positional updates throttled.
	for i := 0; i < 5; i++ {
		engine.Step()
	}
	if len(*updates) != 1 {
		t.Fatalf("throttle failed: %d emissions inside one sim second", len(*updates))
	}

	// The next tick crosses into sim second 1 and may emit again.
	engine.Step()
	if len(*updates) != 2 {
		t.Fatalf("expected one emission for the new sim second, got %d", len(*updates))
	}
	last := (*updates)[1]
	if last.SimTimeS != 1 || last.RobotID != 1 || last.State != core.RobotIdle {
		t.Errorf("unexpected emission: %+v", last)
	}
}

func TestEmissionStreamFullRun(t *testing.T) {
	cfg := testConfig()
	cfg.TickHz = 5
	robots := []core.Robot{{ID: 1, X: 0, Y: 0, Speed: 1, Battery: 100, State: core.RobotIdle}}
	jobs := []core.Job{{ID: "job_1", PickupX: 3, PickupY: 0, DropoffX: 6, DropoffY: 0, DeadlineTS: 100, Priority: 3, State: core.JobPending}}
	engine, updates := newTestEngine(cfg, robots, jobs)

	engine.EmitInitialUpdates()
	if !engine.ApplyAssignment(core.Assignment{JobID: "job_1", RobotID: 1}) {
		t.Fatal("assignment rejected")
	}
	for !engine.ShouldStop() {
		engine.Step()
	}

	if len(*updates) == 0 {
		t.Fatal("a full run must emit robot.updated events")
	}
	prev := -1
	for i, u := range *updates {
		if u.SimTimeS < prev {
			t.Fatalf("emission %d: sim_time_s %d after %d", i, u.SimTimeS, prev)
		}
		prev = u.SimTimeS
		if u.RobotID != 1 {
			t.Errorf("emission %d: robot_id = %d", i, u.RobotID)
		}
		if u.State == "" {
			t.Errorf("emission %d: empty state", i)
		}
		if u.Battery < 0 || u.Battery > 100 {
			t.Errorf("emission %d: battery %v out of range", i, u.Battery)
		}
	}
	last := (*updates)[len(*updates)-1]
	if last.State != core.RobotIdle {
		t.Errorf("final emission state = %s, want idle after completion", last.State)
	}
}

func TestEmissionRounding(t *testing.T) {
	robots := []core.Robot{{ID: 1, X: 1.23456, Y: 2.34567, Speed: 1.5, Battery: 99.87654, State: core.RobotIdle}}
	engine, updates := newTestEngine(testConfig(), robots, nil)
	engine.EmitInitialUpdates()
	u := (*updates)[0]
	if u.X != 1.235 || u.Y != 2.346 || u.Battery != 99.877 {
		t.Errorf("wire fields not rounded to 3 decimals: %+v", u)
	}
}

func TestFinalizeFailsActiveJobs(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSimSeconds = 2
	robots := []core.Robot{{ID: 1, X: 0, Y: 0, Speed: 0.1, Battery: 100, State: core.RobotIdle}}
	jobs := []core.Job{
		{ID: "job_1", PickupX: 90, PickupY: 0, DropoffX: 95, DropoffY: 0, DeadlineTS: 1, Priority: 3, State: core.JobPending},
		{ID: "job_2", PickupX: 90, PickupY: 0, DropoffX: 95, DropoffY: 0, DeadlineTS: 10, Priority: 3, State: core.JobPending},
	}
	engine, _ := newTestEngine(cfg, robots, jobs)
	engine.ApplyAssignment(core.Assignment{JobID: "job_1", RobotID: 1})

	for !engine.ShouldStop() {
		engine.Step()
	}
	engine.Finalize()

	for i := range engine.state.Jobs {
		job := &engine.state.Jobs[i]
		if job.State != core.JobFailed {
			t.Errorf("job %s = %s, want failed", job.ID, job.State)
		}
		if job.CompletedSimTS != 2 {
			t.Errorf("job %s completed_sim_ts = %d, want 2", job.ID, job.CompletedSimTS)
		}
	}
	if engine.state.Jobs[0].LatenessS != 1 {
		t.Errorf("job_1 lateness = %v, want 1", engine.state.Jobs[0].LatenessS)
	}
	if engine.state.Jobs[1].LatenessS != 0 {
		t.Errorf("job_2 lateness = %v, want 0 (deadline after cutoff)", engine.state.Jobs[1].LatenessS)
	}
}

func TestSnapshotShape(t *testing.T) {
	robots := []core.Robot{{ID: 2, X: 1, Y: 2, Speed: 1, Battery: 50, State: core.RobotIdle}, {ID: 1, X: 0, Y: 0, Speed: 1, Battery: 100, State: core.RobotIdle}}
	jobs := []core.Job{{ID: "job_1", PickupX: 1, PickupY: 0, DropoffX: 2, DropoffY: 0, DeadlineTS: 100, Priority: 3, State: core.JobPending}}
	engine, _ := newTestEngine(testConfig(), robots, jobs)

	snap := engine.Snapshot()
	if snap["run_id"] != "run-test" || snap["sim_time_s"] != 0 {
		t.Errorf("snapshot header: %v", snap)
	}
	robotList := snap["robots"].([]map[string]any)
	if len(robotList) != 2 || robotList[0]["id"] != 1 || robotList[1]["id"] != 2 {
		t.Errorf("robots not sorted by ID: %v", robotList)
	}
	if robotList[0]["current_job_id"] != nil {
		t.Errorf("idle robot should have null current_job_id")
	}
	jobList := snap["jobs"].([]map[string]any)
	if len(jobList) != 1 || jobList[0]["assigned_robot_id"] != nil {
		t.Errorf("unassigned job should have null assigned_robot_id: %v", jobList)
	}
}

func TestMetrics(t *testing.T) {
	jobs := []core.Job{
		{ID: "job_1", DeadlineTS: 10, State: core.JobCompleted, CompletedSimTS: 8, LatenessS: 0},
		{ID: "job_2", DeadlineTS: 10, State: core.JobCompleted, CompletedSimTS: 14, LatenessS: 4},
		{ID: "job_3", DeadlineTS: 10, State: core.JobFailed, CompletedSimTS: 20, LatenessS: 10},
		{ID: "job_4", DeadlineTS: 10, State: core.JobPending},
	}
	robots := []core.Robot{
		{ID: 1, DistanceTraveled: 12.5},
		{ID: 2, DistanceTraveled: 7.5},
	}

	m := ComputeMetrics(jobs, robots)
	if m.TotalJobs != 4 || m.CompletedJobs != 2 || m.FailedJobs != 1 {
		t.Errorf("counts: %+v", m)
	}
	if m.OnTimeRate != 25.0 {
		t.Errorf("on_time_rate = %v, want 25 (1 of 4)", m.OnTimeRate)
	}
	if m.AvgCompletionTime != 11.0 {
		t.Errorf("avg_completion_time = %v, want 11", m.AvgCompletionTime)
	}
	if m.MaxLateness != 4 {
		t.Errorf("max_lateness = %v, want 4 (failed jobs excluded)", m.MaxLateness)
	}
	if m.TotalDistance != 20 {
		t.Errorf("total_distance = %v, want 20", m.TotalDistance)
	}
}

func TestMetricsEmpty(t *testing.T) {
	m := ComputeMetrics(nil, nil)
	if m.OnTimeRate != 0 || m.AvgCompletionTime != 0 || m.TotalJobs != 0 {
		t.Errorf("empty metrics: %+v", m)
	}
}
