package sim

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/elektrokombinacija/amr-fleet/internal/config"
	"github.com/elektrokombinacija/amr-fleet/internal/core"
	"github.com/elektrokombinacija/amr-fleet/internal/event"
	"github.com/elektrokombinacija/amr-fleet/internal/scenario"
)

// assignmentQueueSize bounds how many job.assigned events can pile up
// between ticks before the producer blocks.
const assignmentQueueSize = 4096

// Runner consumes run.started and job.assigned events, executes runs on
// the engine, and publishes the full event stream for each run.
type Runner struct {
	cfg config.Settings
	pub event.Publisher
	log zerolog.Logger

	// Pace is the wall-clock delay per tick. Zero runs flat out, which the
	// in-process harness and tests rely on.
	Pace time.Duration

	mu     sync.Mutex
	queues map[string]chan event.JobAssigned
}

// NewRunner builds a runner publishing through pub.
func NewRunner(cfg config.Settings, pub event.Publisher, log zerolog.Logger) *Runner {
	return &Runner{
		cfg:    cfg,
		pub:    pub,
		log:    log,
		queues: make(map[string]chan event.JobAssigned),
	}
}

// HandleMessage routes a consumed broker message by routing key.
func (r *Runner) HandleMessage(routingKey string, body []byte) error {
	switch routingKey {
	case event.TypeRunStarted:
		return r.handleRunStarted(body)
	case event.TypeJobAssigned:
		return r.handleJobAssigned(body)
	}
	return nil
}

func (r *Runner) handleRunStarted(body []byte) error {
	var ev event.RunStarted
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("decode run.started: %w", err)
	}
	if ev.RunID == "" {
		r.log.Warn().Msg("run.started missing run_id")
		return nil
	}
	if !r.register(ev.RunID) {
		r.log.Warn().Str("run_id", ev.RunID).Msg("run already active")
		return nil
	}
	go func() {
		defer r.unregister(ev.RunID)
		if err := r.simulate(ev); err != nil {
			r.log.Error().Err(err).Str("run_id", ev.RunID).Msg("run failed")
		}
	}()
	return nil
}

func (r *Runner) handleJobAssigned(body []byte) error {
	var ev event.JobAssigned
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("decode job.assigned: %w", err)
	}
	r.mu.Lock()
	queue := r.queues[ev.RunID]
	r.mu.Unlock()
	if queue == nil {
		return nil
	}
	queue <- ev
	return nil
}

// RunBlocking executes one run to completion on the calling goroutine.
// Assignments delivered via HandleMessage during the run are applied in
// arrival order before each tick.
func (r *Runner) RunBlocking(ev event.RunStarted) error {
	if ev.RunID == "" {
		return fmt.Errorf("run.started missing run_id")
	}
	if !r.register(ev.RunID) {
		return fmt.Errorf("run already active: %s", ev.RunID)
	}
	defer r.unregister(ev.RunID)
	return r.simulate(ev)
}

func (r *Runner) register(runID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, active := r.queues[runID]; active {
		return false
	}
	r.queues[runID] = make(chan event.JobAssigned, assignmentQueueSize)
	return true
}

func (r *Runner) unregister(runID string) {
	r.mu.Lock()
	delete(r.queues, runID)
	r.mu.Unlock()
}

func (r *Runner) simulate(ev event.RunStarted) error {
	meta := event.RunMeta{
		RunID: ev.RunID,
		Mode:  r.cfg.FleetMode,
		Seed:  r.cfg.FleetSeed,
		Scale: r.cfg.FleetScale,
	}
	if ev.Mode != "" {
		meta.Mode = ev.Mode
	}
	if ev.Seed != nil {
		meta.Seed = *ev.Seed
	}
	if ev.Scale != "" {
		meta.Scale = ev.Scale
	}

	err := r.run(meta, ev)
	if err == nil {
		return nil
	}
	r.log.Error().Err(err).Str("run_id", meta.RunID).Msg("publishing failed run.completed")
	payload := event.Envelope(meta, event.TypeRunCompleted, "run", 0)
	payload["status"] = "failed"
	payload["error"] = err.Error()
	if pubErr := r.pub.Publish(event.TypeRunCompleted, payload); pubErr != nil {
		r.log.Error().Err(pubErr).Str("run_id", meta.RunID).Msg("publish failed run.completed")
	}
	return err
}

func (r *Runner) run(meta event.RunMeta, ev event.RunStarted) error {
	params := scenario.Params{
		Seed:      meta.Seed,
		Scale:     meta.Scale,
		WorldSize: r.cfg.WorldSize,
		SpeedMin:  r.cfg.RobotSpeedMin,
		SpeedMax:  r.cfg.RobotSpeedMax,
		Presets:   r.cfg.ScaleMap,
	}
	if ev.Robots != nil {
		params.Robots = *ev.Robots
	}
	if ev.Jobs != nil {
		params.Jobs = *ev.Jobs
	}

	robots, jobs, scenarioHash, err := scenario.Generate(params)
	if err != nil {
		return fmt.Errorf("generate scenario: %w", err)
	}
	r.log.Info().
		Str("run_id", meta.RunID).
		Str("mode", meta.Mode).
		Int64("seed", meta.Seed).
		Str("scale", meta.Scale).
		Int("robots", len(robots)).
		Int("jobs", len(jobs)).
		Msg("sim started")

	state := &State{
		RunID:  meta.RunID,
		Mode:   meta.Mode,
		Seed:   meta.Seed,
		Scale:  meta.Scale,
		Robots: robots,
		Jobs:   jobs,
	}

	var robotEvents []RobotUpdate
	engine := NewEngine(state, Config{
		TickHz:                r.cfg.SimTickHz,
		ServiceTimeS:          r.cfg.ServiceTimeS,
		MaxSimSeconds:         r.cfg.MaxSimSeconds,
		ChargeRate:            r.cfg.ChargeRate,
		ChargeResumeThreshold: r.cfg.ChargeResumeThreshold,
		EmitPositionUpdates:   true,
	}, func(u RobotUpdate) {
		robotEvents = append(robotEvents, u)
	})

	// Announce the generated jobs before any robot moves.
	jobIDs := make([]string, 0, len(jobs))
	jobsByID := make(map[string]*core.Job, len(jobs))
	for i := range state.Jobs {
		jobIDs = append(jobIDs, state.Jobs[i].ID)
		jobsByID[state.Jobs[i].ID] = &state.Jobs[i]
	}
	sort.Strings(jobIDs)
	for _, id := range jobIDs {
		if err := r.pub.Publish(event.TypeJobCreated, jobCreatedPayload(meta, jobsByID[id])); err != nil {
			return fmt.Errorf("publish job.created: %w", err)
		}
	}

	engine.EmitInitialUpdates()
	if err := r.flushRobotUpdates(meta, &robotEvents); err != nil {
		return err
	}

	queue := r.queue(meta.RunID)
	lastTelemetrySimS := -1
	previousJobStates := make(map[string]core.JobState, len(jobs))
	for i := range state.Jobs {
		previousJobStates[state.Jobs[i].ID] = state.Jobs[i].State
	}

	for !engine.ShouldStop() {
		// Drain every assignment already delivered so application order is
		// deterministic for this tick.
		draining := true
		for draining {
			select {
			case assigned := <-queue:
				engine.ApplyAssignment(core.Assignment{JobID: assigned.JobID, RobotID: assigned.RobotID})
			default:
				draining = false
			}
		}

		engine.Step()
		simTimeS := engine.CurrentSimTimeS()

		if err := r.flushRobotUpdates(meta, &robotEvents); err != nil {
			return err
		}

		snapshot := event.Envelope(meta, event.TypeSnapshotTick, "snapshot", simTimeS)
		snapshot["snapshot"] = engine.Snapshot()
		if err := r.pub.Publish(event.TypeSnapshotTick, snapshot); err != nil {
			return fmt.Errorf("publish snapshot.tick: %w", err)
		}

		if simTimeS != lastTelemetrySimS {
			for i := range state.Robots {
				robot := &state.Robots[i]
				payload := event.Envelope(meta, event.TypeTelemetryReceived, fmt.Sprintf("r%d", robot.ID), simTimeS)
				payload["robot_id"] = robot.ID
				payload["state"] = robot.State
				payload["x"] = core.Round3(robot.X)
				payload["y"] = core.Round3(robot.Y)
				payload["battery"] = core.Round3(robot.Battery)
				payload["current_job_id"] = event.NullableString(robot.CurrentJobID)
				if err := r.pub.Publish(event.TypeTelemetryReceived, payload); err != nil {
					return fmt.Errorf("publish telemetry.received: %w", err)
				}
			}
			lastTelemetrySimS = simTimeS
		}

		for i := range state.Jobs {
			job := &state.Jobs[i]
			if previousJobStates[job.ID] == job.State {
				continue
			}
			previousJobStates[job.ID] = job.State
			if job.State == core.JobCompleted {
				payload := event.Envelope(meta, event.TypeJobCompleted, job.ID, simTimeS)
				payload["job_id"] = job.ID
				payload["robot_id"] = job.AssignedRobotID
				payload["lateness_s"] = job.LatenessS
				if err := r.pub.Publish(event.TypeJobCompleted, payload); err != nil {
					return fmt.Errorf("publish job.completed: %w", err)
				}
			}
		}

		if r.Pace > 0 {
			time.Sleep(r.Pace)
		}
	}

	engine.Finalize()
	simTimeS := engine.CurrentSimTimeS()
	for i := range state.Jobs {
		job := &state.Jobs[i]
		if job.State != core.JobFailed {
			continue
		}
		payload := event.Envelope(meta, event.TypeJobFailed, job.ID, simTimeS)
		payload["job_id"] = job.ID
		var assigned any
		if job.AssignedRobotID != 0 {
			assigned = job.AssignedRobotID
		}
		payload["robot_id"] = assigned
		payload["lateness_s"] = job.LatenessS
		if err := r.pub.Publish(event.TypeJobFailed, payload); err != nil {
			return fmt.Errorf("publish job.failed: %w", err)
		}
	}

	metrics := ComputeMetrics(state.Jobs, state.Robots)
	r.log.Info().
		Str("run_id", meta.RunID).
		Int("completed", metrics.CompletedJobs).
		Int("failed", metrics.FailedJobs).
		Float64("on_time_rate", metrics.OnTimeRate).
		Msg("run completed")

	payload := event.Envelope(meta, event.TypeRunCompleted, "run", simTimeS)
	payload["scenario_hash"] = scenarioHash
	payload["metrics"] = metrics.Map()
	if err := r.pub.Publish(event.TypeRunCompleted, payload); err != nil {
		return fmt.Errorf("publish run.completed: %w", err)
	}
	return nil
}

func (r *Runner) queue(runID string) chan event.JobAssigned {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.queues[runID]
}

func (r *Runner) flushRobotUpdates(meta event.RunMeta, updates *[]RobotUpdate) error {
	for _, u := range *updates {
		if err := r.pub.Publish(event.TypeRobotUpdated, robotUpdatedPayload(meta, u)); err != nil {
			return fmt.Errorf("publish robot.updated: %w", err)
		}
	}
	*updates = (*updates)[:0]
	return nil
}

func jobCreatedPayload(meta event.RunMeta, job *core.Job) map[string]any {
	payload := event.Envelope(meta, event.TypeJobCreated, job.ID, 0)
	payload["job_id"] = job.ID
	payload["pickup_x"] = job.PickupX
	payload["pickup_y"] = job.PickupY
	payload["dropoff_x"] = job.DropoffX
	payload["dropoff_y"] = job.DropoffY
	payload["deadline_ts"] = job.DeadlineTS
	payload["priority"] = job.Priority
	payload["state"] = job.State
	return payload
}

func robotUpdatedPayload(meta event.RunMeta, u RobotUpdate) map[string]any {
	payload := event.Envelope(meta, event.TypeRobotUpdated, fmt.Sprintf("robot_%d", u.RobotID), u.SimTimeS)
	payload["robot_id"] = u.RobotID
	payload["state"] = u.State
	payload["x"] = u.X
	payload["y"] = u.Y
	payload["speed"] = u.Speed
	payload["battery"] = u.Battery
	payload["current_job_id"] = event.NullableString(u.CurrentJobID)
	return payload
}
