package dispatch

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/elektrokombinacija/amr-fleet/internal/config"
	"github.com/elektrokombinacija/amr-fleet/internal/core"
	"github.com/elektrokombinacija/amr-fleet/internal/event"
	"github.com/elektrokombinacija/amr-fleet/internal/ga"
)

// plannerTimeout caps one optimizer round trip.
const plannerTimeout = 10 * time.Second

// robotView is the dispatcher's shadow of a robot, fed by robot.updated.
type robotView struct {
	ID           int
	X            float64
	Y            float64
	Speed        float64
	Battery      float64
	State        string
	CurrentJobID string
	SimTimeS     int
}

// jobView is the dispatcher's shadow of a job, fed by job.created.
type jobView struct {
	ID         string
	PickupX    float64
	PickupY    float64
	DropoffX   float64
	DropoffY   float64
	DeadlineTS int
	Priority   int
	State      string
}

// runState is the per-run dispatch state. stateMu serializes the handler
// bodies so the service's concurrent consumers cannot corrupt the maps;
// mu guards the optimizer-in-flight flag, baselineMu gates the
// once-per-sim-second baseline dispatch, assignMu serializes emission.
type runState struct {
	runID string
	mode  string
	seed  int64
	scale string

	robots             map[int]*robotView
	jobs               map[string]*jobView
	assignedJobs       map[string]bool
	pendingAssignments map[int]string
	plannedQueues      map[int][]string

	optimizerInFlight        bool
	nextPeriodicReplanSimS   int // -1 when periodic replans are disabled
	lastBaselineDispatchSimS int // -1 before the first dispatch

	stateMu    sync.Mutex
	mu         sync.Mutex
	baselineMu sync.Mutex
	assignMu   sync.Mutex
}

func (st *runState) optimizerBusy() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.optimizerInFlight
}

// Dispatcher consumes run.started, job.created and robot.updated events and
// emits job.assigned decisions per run.
type Dispatcher struct {
	cfg     config.Settings
	pub     event.Publisher
	planner Planner
	log     zerolog.Logger

	mu     sync.Mutex
	states map[string]*runState
}

// NewDispatcher builds a dispatcher publishing through pub and planning
// through planner.
func NewDispatcher(cfg config.Settings, pub event.Publisher, planner Planner, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:     cfg,
		pub:     pub,
		planner: planner,
		log:     log,
		states:  make(map[string]*runState),
	}
}

// HandleMessage routes a consumed broker message by routing key. Malformed
// JSON is logged and dropped.
func (d *Dispatcher) HandleMessage(routingKey string, body []byte) error {
	switch routingKey {
	case event.TypeRunStarted:
		var ev event.RunStarted
		if err := json.Unmarshal(body, &ev); err != nil {
			d.log.Warn().Str("routing_key", routingKey).Msg("dropping invalid JSON message")
			return nil
		}
		return d.handleRunStarted(ev)
	case event.TypeJobCreated:
		var ev event.JobCreated
		if err := json.Unmarshal(body, &ev); err != nil {
			d.log.Warn().Str("routing_key", routingKey).Msg("dropping invalid JSON message")
			return nil
		}
		d.handleJobCreated(ev)
		return nil
	case event.TypeRobotUpdated:
		var ev event.RobotUpdated
		if err := json.Unmarshal(body, &ev); err != nil {
			d.log.Warn().Str("routing_key", routingKey).Msg("dropping invalid JSON message")
			return nil
		}
		return d.handleRobotUpdated(ev)
	}
	return nil
}

func (d *Dispatcher) handleRunStarted(ev event.RunStarted) error {
	if ev.RunID == "" {
		d.log.Warn().Msg("run.started missing run_id")
		return nil
	}
	st := &runState{
		runID:                    ev.RunID,
		mode:                     d.cfg.FleetMode,
		seed:                     d.cfg.FleetSeed,
		scale:                    d.cfg.FleetScale,
		robots:                   make(map[int]*robotView),
		jobs:                     make(map[string]*jobView),
		assignedJobs:             make(map[string]bool),
		pendingAssignments:       make(map[int]string),
		plannedQueues:            make(map[int][]string),
		nextPeriodicReplanSimS:   -1,
		lastBaselineDispatchSimS: -1,
	}
	if ev.Mode != "" {
		st.mode = ev.Mode
	}
	if ev.Seed != nil {
		st.seed = *ev.Seed
	}
	if ev.Scale != "" {
		st.scale = ev.Scale
	}
	if d.cfg.GAReplanIntervalS > 0 {
		st.nextPeriodicReplanSimS = d.cfg.GAReplanIntervalS
	}

	d.mu.Lock()
	d.states[ev.RunID] = st
	d.mu.Unlock()
	d.log.Info().
		Str("run_id", st.runID).
		Str("mode", st.mode).
		Int64("seed", st.seed).
		Str("scale", st.scale).
		Msg("run started")

	if st.mode == "ga" {
		st.stateMu.Lock()
		defer st.stateMu.Unlock()
		return d.replanGA(st, 0, "run_start")
	}
	return nil
}

func (d *Dispatcher) handleJobCreated(ev event.JobCreated) {
	st := d.state(ev.RunID)
	if st == nil {
		return
	}
	if ev.JobID == "" {
		d.log.Warn().Str("run_id", ev.RunID).Msg("job.created missing job_id")
		return
	}
	state := ev.State
	if state == "" {
		state = string(core.JobPending)
	}
	st.stateMu.Lock()
	defer st.stateMu.Unlock()
	st.jobs[ev.JobID] = &jobView{
		ID:         ev.JobID,
		PickupX:    ev.PickupX,
		PickupY:    ev.PickupY,
		DropoffX:   ev.DropoffX,
		DropoffY:   ev.DropoffY,
		DeadlineTS: ev.DeadlineTS,
		Priority:   ev.Priority,
		State:      state,
	}
	// Baseline assignments are triggered by robot.updated events to avoid
	// over-assigning during the job.created burst.
}

func (d *Dispatcher) handleRobotUpdated(ev event.RobotUpdated) error {
	st := d.state(ev.RunID)
	if st == nil {
		return nil
	}
	if ev.RobotID == nil || ev.State == nil || ev.SimTimeS == nil {
		d.log.Warn().Str("run_id", ev.RunID).Msg("dropping malformed robot.updated")
		return nil
	}
	robotID := *ev.RobotID
	newState := *ev.State
	simTimeS := *ev.SimTimeS

	currentJobID := ""
	if ev.CurrentJobID != nil {
		currentJobID = *ev.CurrentJobID
	}

	st.stateMu.Lock()
	defer st.stateMu.Unlock()

	// Reconcile an in-flight assignment. An idle update without the job is
	// stale news from before the assignment landed; skip it so the robot
	// is not double-booked.
	if pendingJobID, ok := st.pendingAssignments[robotID]; ok {
		if currentJobID == pendingJobID || newState != string(core.RobotIdle) {
			delete(st.pendingAssignments, robotID)
		} else if newState == string(core.RobotIdle) && currentJobID == "" {
			d.log.Debug().
				Str("run_id", st.runID).
				Int("robot_id", robotID).
				Str("job_id", pendingJobID).
				Msg("ignoring idle robot.updated while assignment pending")
			return nil
		}
	}

	prev := st.robots[robotID]
	prevState := ""
	view := &robotView{ID: robotID, X: 0, Y: 0, Speed: 1.0, Battery: 100.0}
	if prev != nil {
		prevState = prev.State
		*view = *prev
	}
	view.State = newState
	view.CurrentJobID = currentJobID
	view.SimTimeS = simTimeS
	if ev.X != nil {
		view.X = *ev.X
	}
	if ev.Y != nil {
		view.Y = *ev.Y
	}
	if ev.Speed != nil {
		view.Speed = *ev.Speed
	}
	if ev.Battery != nil {
		view.Battery = *ev.Battery
	}
	st.robots[robotID] = view

	hadQueue := len(st.plannedQueues[robotID]) > 0
	if newState == string(core.RobotCharging) || view.Battery < d.cfg.BatteryThreshold {
		if hadQueue {
			st.plannedQueues[robotID] = nil
		}
		delete(st.pendingAssignments, robotID)
	}

	if st.mode == "baseline" {
		return d.dispatchBaselineOncePerTick(st, simTimeS)
	}

	robotOK := newState == string(core.RobotIdle) && view.Battery >= d.cfg.BatteryThreshold
	if err := d.emitPlannedForIdleRobot(st, robotID, simTimeS); err != nil {
		return err
	}

	if d.cfg.GAReplanIntervalS > 0 &&
		st.nextPeriodicReplanSimS >= 0 &&
		simTimeS >= st.nextPeriodicReplanSimS &&
		d.hasPendingJobs(st) &&
		!st.optimizerBusy() {
		if err := d.replanGA(st, simTimeS, "periodic"); err != nil {
			return err
		}
		for st.nextPeriodicReplanSimS >= 0 && st.nextPeriodicReplanSimS <= simTimeS {
			st.nextPeriodicReplanSimS += d.cfg.GAReplanIntervalS
		}
	}

	transitionedToIdle := prevState != string(core.RobotIdle) && newState == string(core.RobotIdle)
	queueEmpty := len(st.plannedQueues[robotID]) == 0
	if transitionedToIdle && queueEmpty && d.hasPendingJobs(st) && !st.optimizerBusy() {
		if err := d.replanGA(st, simTimeS, "idle_gap"); err != nil {
			return err
		}
	}

	// A robot that just became ineligible while still holding planned work
	// forces a replan so its queue is redistributed.
	if !robotOK && hadQueue && d.hasPendingJobs(st) && !st.optimizerBusy() {
		if err := d.replanGA(st, simTimeS, "battery_guard"); err != nil {
			return err
		}
	}
	return nil
}

// pendingJobs returns the assignable jobs in EDF order.
func (d *Dispatcher) pendingJobs(st *runState) []core.JobInfo {
	pending := make([]core.JobInfo, 0, len(st.jobs))
	for _, j := range st.jobs {
		if !core.JobState(j.State).Assignable() || st.assignedJobs[j.ID] {
			continue
		}
		pending = append(pending, core.JobInfo{
			ID:         j.ID,
			PickupX:    j.PickupX,
			PickupY:    j.PickupY,
			DropoffX:   j.DropoffX,
			DropoffY:   j.DropoffY,
			DeadlineTS: j.DeadlineTS,
			Priority:   j.Priority,
			State:      core.JobState(j.State),
		})
	}
	core.SortJobsEDF(pending)
	return pending
}

func (d *Dispatcher) hasPendingJobs(st *runState) bool {
	for _, j := range st.jobs {
		if core.JobState(j.State).Assignable() && !st.assignedJobs[j.ID] {
			return true
		}
	}
	return false
}

func (d *Dispatcher) dispatchBaselineOncePerTick(st *runState, simTimeS int) error {
	if st.lastBaselineDispatchSimS == simTimeS {
		return nil
	}
	st.baselineMu.Lock()
	defer st.baselineMu.Unlock()
	if st.lastBaselineDispatchSimS == simTimeS {
		return nil
	}
	st.lastBaselineDispatchSimS = simTimeS

	blocked := make(map[int]bool, len(st.pendingAssignments))
	for robotID := range st.pendingAssignments {
		blocked[robotID] = true
	}
	assignments := ComputeBaselineAssignments(st.robots, st.jobs, st.assignedJobs, blocked, d.cfg.BatteryThreshold)
	for _, a := range assignments {
		if err := d.emitAssignment(st, a.JobID, a.RobotID, simTimeS, a.Reason); err != nil {
			return err
		}
	}
	return nil
}

// replanGA asks the optimizer for a fresh plan and rebuilds the per-robot
// queues from it. At most one replan is in flight per run. Called with the
// run's stateMu held; the lock is released for the optimizer round trip so
// other events for the run keep flowing while the plan is computed.
func (d *Dispatcher) replanGA(st *runState, simTimeS int, reason string) error {
	st.mu.Lock()
	if st.optimizerInFlight {
		st.mu.Unlock()
		return nil
	}
	st.optimizerInFlight = true
	st.mu.Unlock()
	defer func() {
		st.mu.Lock()
		st.optimizerInFlight = false
		st.mu.Unlock()
	}()

	pending := d.pendingJobs(st)
	if len(pending) == 0 {
		return nil
	}

	eligible := make([]core.RobotInfo, 0, len(st.robots))
	for _, r := range st.robots {
		if r.State == string(core.RobotCharging) || r.Battery < d.cfg.BatteryThreshold {
			continue
		}
		info := core.RobotInfo{
			ID: r.ID, X: r.X, Y: r.Y, Speed: r.Speed, Battery: r.Battery,
			State: core.RobotState(r.State),
		}
		if r.CurrentJobID != "" {
			jobID := r.CurrentJobID
			info.CurrentJobID = &jobID
		}
		eligible = append(eligible, info)
	}
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].ID < eligible[j].ID })
	if len(eligible) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), plannerTimeout)
	defer cancel()
	st.stateMu.Unlock()
	plan, err := d.planner.Plan(ctx, ga.PlanRequest{
		RunID:       st.runID,
		Seed:        st.seed,
		Scale:       st.scale,
		Mode:        "ga",
		SimTimeS:    simTimeS,
		Robots:      eligible,
		PendingJobs: pending,
	})
	st.stateMu.Lock()
	if err != nil {
		d.log.Error().Err(err).
			Str("run_id", st.runID).
			Str("reason", reason).
			Msg("ga replan failed")
		return nil
	}

	newQueues := make(map[int][]string, len(eligible))
	for _, r := range eligible {
		newQueues[r.ID] = []string{}
	}
	for _, item := range plan {
		if st.assignedJobs[item.JobID] {
			continue
		}
		job := st.jobs[item.JobID]
		if job == nil || !core.JobState(job.State).Assignable() {
			continue
		}
		queue, ok := newQueues[item.RobotID]
		if !ok {
			continue
		}
		if contains(queue, item.JobID) {
			continue
		}
		newQueues[item.RobotID] = append(queue, item.JobID)
	}
	st.plannedQueues = newQueues
	d.log.Info().
		Str("run_id", st.runID).
		Str("reason", reason).
		Int("sim_time_s", simTimeS).
		Int("pending", len(pending)).
		Msg("ga replan")
	return d.emitPlannedForIdleRobots(st, simTimeS)
}

func (d *Dispatcher) emitPlannedForIdleRobots(st *runState, simTimeS int) error {
	robotIDs := make([]int, 0, len(st.robots))
	for id := range st.robots {
		robotIDs = append(robotIDs, id)
	}
	sort.Ints(robotIDs)
	for _, robotID := range robotIDs {
		if err := d.emitPlannedForIdleRobot(st, robotID, simTimeS); err != nil {
			return err
		}
	}
	return nil
}

// emitPlannedForIdleRobot pops the robot's queue until a still-assignable
// job is found and emits at most one assignment.
func (d *Dispatcher) emitPlannedForIdleRobot(st *runState, robotID, simTimeS int) error {
	robot := st.robots[robotID]
	if robot == nil || robot.State != string(core.RobotIdle) {
		return nil
	}
	if robot.Battery < d.cfg.BatteryThreshold {
		return nil
	}
	queue := st.plannedQueues[robotID]
	for len(queue) > 0 {
		jobID := queue[0]
		queue = queue[1:]
		st.plannedQueues[robotID] = queue

		job := st.jobs[jobID]
		if job == nil || st.assignedJobs[jobID] || !core.JobState(job.State).Assignable() {
			continue
		}
		return d.emitAssignment(st, jobID, robotID, simTimeS, ReasonGAPlanned)
	}
	return nil
}

// emitAssignment publishes job.assigned exactly once per job, then updates
// the shadow state so later decisions see the robot as booked.
func (d *Dispatcher) emitAssignment(st *runState, jobID string, robotID, simTimeS int, reason string) error {
	st.assignMu.Lock()
	defer st.assignMu.Unlock()

	if st.assignedJobs[jobID] {
		return nil
	}
	job := st.jobs[jobID]
	if job == nil || !core.JobState(job.State).Assignable() {
		return nil
	}

	payload := map[string]any{
		"event_id":        event.AssignmentID(st.runID, jobID, robotID, simTimeS),
		"event_type":      event.TypeJobAssigned,
		"run_id":          st.runID,
		"mode":            st.mode,
		"seed":            st.seed,
		"scale":           st.scale,
		"sim_time_s":      simTimeS,
		"job_id":          jobID,
		"robot_id":        robotID,
		"reason":          reason,
		"idempotency_key": event.IdempotencyKey(st.runID, jobID),
		"ts_utc":          time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := d.pub.Publish(event.TypeJobAssigned, payload); err != nil {
		return err
	}

	st.assignedJobs[jobID] = true
	job.State = string(core.JobAssigned)
	if robot := st.robots[robotID]; robot != nil {
		robot.State = string(core.RobotMovingToPickup)
		robot.CurrentJobID = jobID
	}
	st.pendingAssignments[robotID] = jobID
	d.log.Info().
		Str("run_id", st.runID).
		Str("mode", st.mode).
		Str("job_id", jobID).
		Int("robot_id", robotID).
		Str("reason", reason).
		Msg("assignment emitted")
	return nil
}

func (d *Dispatcher) state(runID string) *runState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.states[runID]
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
