// Package sim implements the deterministic fleet simulation engine and the
// broker-driven runner service around it.
package sim

import (
	"sort"

	"github.com/elektrokombinacija/amr-fleet/internal/core"
)

// Config holds the engine parameters.
type Config struct {
	TickHz                int
	ServiceTimeS          int
	MaxSimSeconds         int
	ChargeRate            float64
	ChargeResumeThreshold float64
	EmitPositionUpdates   bool
}

// State is the mutable simulation world for one run.
type State struct {
	RunID  string
	Mode   string
	Seed   int64
	Scale  string
	Robots []core.Robot
	Jobs   []core.Job
	Tick   int
}

// RobotUpdate is the deterministic portion of a robot.updated emission.
type RobotUpdate struct {
	RobotID      int
	State        core.RobotState
	SimTimeS     int
	X            float64
	Y            float64
	Speed        float64
	Battery      float64
	CurrentJobID string
}

// Engine advances the simulation one tick at a time. All iteration is in
// ascending robot ID order so runs replay identically.
type Engine struct {
	state *State
	cfg   Config
	dt    float64
	sink  func(RobotUpdate)

	robots   []*core.Robot // sorted by ID
	robotsBy map[int]*core.Robot
	jobsBy   map[string]*core.Job

	resumeState      map[int]core.RobotState
	lastPositionEmit map[int]int
}

// NewEngine wires an engine over the given state. The sink receives every
// robot.updated emission in order.
func NewEngine(state *State, cfg Config, sink func(RobotUpdate)) *Engine {
	e := &Engine{
		state:            state,
		cfg:              cfg,
		dt:               1.0 / float64(cfg.TickHz),
		sink:             sink,
		robotsBy:         make(map[int]*core.Robot, len(state.Robots)),
		jobsBy:           make(map[string]*core.Job, len(state.Jobs)),
		resumeState:      make(map[int]core.RobotState),
		lastPositionEmit: make(map[int]int),
	}
	for i := range state.Robots {
		r := &state.Robots[i]
		e.robots = append(e.robots, r)
		e.robotsBy[r.ID] = r
	}
	sort.Slice(e.robots, func(i, j int) bool { return e.robots[i].ID < e.robots[j].ID })
	for i := range state.Jobs {
		j := &state.Jobs[i]
		e.jobsBy[j.ID] = j
	}
	return e
}

// CurrentSimTimeS returns the simulation time in whole seconds.
func (e *Engine) CurrentSimTimeS() int {
	return e.state.Tick / e.cfg.TickHz
}

// EmitInitialUpdates emits a forced robot.updated for every robot.
func (e *Engine) EmitInitialUpdates() {
	simTimeS := e.CurrentSimTimeS()
	for _, robot := range e.robots {
		e.emitRobotUpdated(robot, simTimeS, true)
	}
}

// ApplyAssignment starts a job on a robot if the robot is idle and the job
// is still assignable. It reports whether the assignment took effect and
// force-emits the robot's new state when it does.
func (e *Engine) ApplyAssignment(a core.Assignment) bool {
	robot := e.robotsBy[a.RobotID]
	job := e.jobsBy[a.JobID]
	if robot == nil || job == nil {
		return false
	}
	if robot.State != core.RobotIdle {
		return false
	}
	if !job.State.Assignable() {
		return false
	}

	job.State = core.JobAssigned
	job.AssignedRobotID = robot.ID
	job.StartedSimTS = e.CurrentSimTimeS()

	robot.CurrentJobID = job.ID
	robot.TargetX = job.PickupX
	robot.TargetY = job.PickupY
	robot.HasTarget = true
	robot.PhaseRemainingS = 0
	robot.State = core.RobotMovingToPickup
	e.emitRobotUpdated(robot, e.CurrentSimTimeS(), true)
	return true
}

// Step advances the simulation by one tick.
func (e *Engine) Step() {
	simTimeS := e.CurrentSimTimeS()
	for _, robot := range e.robots {
		prevState := robot.State
		e.advanceRobot(robot)
		if robot.State != prevState {
			e.emitRobotUpdated(robot, simTimeS, true)
		} else if e.cfg.EmitPositionUpdates {
			e.emitRobotUpdated(robot, simTimeS, false)
		}
	}
	e.state.Tick++
}

// ShouldStop reports whether the run hit the time cap or every job is done.
func (e *Engine) ShouldStop() bool {
	if e.CurrentSimTimeS() >= e.cfg.MaxSimSeconds {
		return true
	}
	for i := range e.state.Jobs {
		if !e.state.Jobs[i].State.Terminal() {
			return false
		}
	}
	return true
}

// Finalize fails every job that is still active at end of simulation.
func (e *Engine) Finalize() {
	simTimeS := e.CurrentSimTimeS()
	for i := range e.state.Jobs {
		job := &e.state.Jobs[i]
		if job.State.Terminal() {
			continue
		}
		job.State = core.JobFailed
		job.CompletedSimTS = simTimeS
		job.LatenessS = float64(maxInt(0, simTimeS-job.DeadlineTS))
	}
}

// Snapshot returns the serializable world state for snapshot.tick events.
func (e *Engine) Snapshot() map[string]any {
	simTimeS := e.CurrentSimTimeS()
	robots := make([]map[string]any, 0, len(e.robots))
	for _, r := range e.robots {
		robots = append(robots, map[string]any{
			"id":             r.ID,
			"x":              core.Round3(r.X),
			"y":              core.Round3(r.Y),
			"speed":          r.Speed,
			"battery":        core.Round3(r.Battery),
			"state":          r.State,
			"current_job_id": nullable(r.CurrentJobID),
		})
	}

	jobIDs := make([]string, 0, len(e.jobsBy))
	for id := range e.jobsBy {
		jobIDs = append(jobIDs, id)
	}
	sort.Strings(jobIDs)
	jobs := make([]map[string]any, 0, len(jobIDs))
	for _, id := range jobIDs {
		j := e.jobsBy[id]
		var assigned any
		if j.AssignedRobotID != 0 {
			assigned = j.AssignedRobotID
		}
		jobs = append(jobs, map[string]any{
			"id":                j.ID,
			"pickup_x":          j.PickupX,
			"pickup_y":          j.PickupY,
			"dropoff_x":         j.DropoffX,
			"dropoff_y":         j.DropoffY,
			"deadline_ts":       j.DeadlineTS,
			"priority":          j.Priority,
			"state":             j.State,
			"assigned_robot_id": assigned,
		})
	}

	return map[string]any{
		"run_id":     e.state.RunID,
		"mode":       e.state.Mode,
		"seed":       e.state.Seed,
		"scale":      e.state.Scale,
		"sim_time_s": simTimeS,
		"robots":     robots,
		"jobs":       jobs,
	}
}

func (e *Engine) advanceRobot(robot *core.Robot) {
	if robot.State == core.RobotCharging {
		robot.Battery = minFloat(100.0, robot.Battery+e.cfg.ChargeRate*e.dt)
		if robot.Battery >= e.cfg.ChargeResumeThreshold {
			resume, ok := e.resumeState[robot.ID]
			if !ok {
				resume = core.RobotIdle
			}
			delete(e.resumeState, robot.ID)
			robot.State = resume
		}
		return
	}

	if robot.Battery <= 0 && robot.State.Moving() {
		e.resumeState[robot.ID] = robot.State
		robot.State = core.RobotCharging
		return
	}

	if !robot.State.Moving() {
		return
	}

	job := e.jobsBy[robot.CurrentJobID]
	if job == nil || !robot.HasTarget {
		robot.State = core.RobotIdle
		robot.CurrentJobID = ""
		robot.HasTarget = false
		robot.PhaseRemainingS = 0
		return
	}

	dx := robot.TargetX - robot.X
	dy := robot.TargetY - robot.Y
	distanceToTarget := core.Distance(robot.X, robot.Y, robot.TargetX, robot.TargetY)
	stepDistance := robot.Speed * e.dt

	if distanceToTarget > 0 {
		travel := minFloat(distanceToTarget, stepDistance)
		ratio := travel / distanceToTarget
		robot.X += dx * ratio
		robot.Y += dy * ratio
		robot.DistanceTraveled += travel
		robot.Battery = maxFloat(0, robot.Battery-travel*0.1)
		if robot.Battery <= 0 {
			e.resumeState[robot.ID] = robot.State
			robot.State = core.RobotCharging
			return
		}
	}

	arrived := distanceToTarget <= stepDistance+1e-9
	if !arrived {
		return
	}

	// Service countdown at the current target. First arrived tick arms the
	// timer, each arrived tick burns dt from it.
	if robot.PhaseRemainingS <= 0 {
		robot.PhaseRemainingS = float64(e.cfg.ServiceTimeS)
	}
	robot.PhaseRemainingS = maxFloat(0, robot.PhaseRemainingS-e.dt)
	if robot.PhaseRemainingS > 0 {
		return
	}

	if robot.State == core.RobotMovingToPickup {
		job.State = core.JobInProgress
		robot.State = core.RobotMovingToDropoff
		robot.TargetX = job.DropoffX
		robot.TargetY = job.DropoffY
		robot.PhaseRemainingS = 0
		return
	}

	completionTime := e.CurrentSimTimeS()
	job.State = core.JobCompleted
	job.CompletedSimTS = completionTime
	job.LatenessS = float64(maxInt(0, completionTime-job.DeadlineTS))
	robot.State = core.RobotIdle
	robot.CurrentJobID = ""
	robot.HasTarget = false
	robot.PhaseRemainingS = 0
}

// emitRobotUpdated pushes an update to the sink. Forced emissions always go
// out; positional emissions are throttled to once per integer sim second.
func (e *Engine) emitRobotUpdated(robot *core.Robot, simTimeS int, force bool) {
	if !force {
		if last, ok := e.lastPositionEmit[robot.ID]; ok && simTimeS <= last {
			return
		}
	}
	e.sink(RobotUpdate{
		RobotID:      robot.ID,
		State:        robot.State,
		SimTimeS:     simTimeS,
		X:            core.Round3(robot.X),
		Y:            core.Round3(robot.Y),
		Speed:        robot.Speed,
		Battery:      core.Round3(robot.Battery),
		CurrentJobID: robot.CurrentJobID,
	})
	e.lastPositionEmit[robot.ID] = simTimeS
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
