// Package fleet wires the engine, dispatcher and planner together in
// process over an in-memory bus, so a full run needs no broker. The local
// runner backs cmd/fleetrun and the end-to-end reproducibility tests.
package fleet

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/elektrokombinacija/amr-fleet/internal/config"
	"github.com/elektrokombinacija/amr-fleet/internal/dispatch"
	"github.com/elektrokombinacija/amr-fleet/internal/event"
	"github.com/elektrokombinacija/amr-fleet/internal/ga"
	"github.com/elektrokombinacija/amr-fleet/internal/sim"
)

// Result summarizes a completed local run.
type Result struct {
	RunID        string
	Mode         string
	ScenarioHash string
	Metrics      sim.Metrics
	Assigned     []event.JobAssigned
	EventCounts  map[string]int
}

// memBus is a synchronous event.Publisher: every publish is delivered to
// the consuming side before it returns, which keeps local runs
// deterministic.
type memBus struct {
	dispatcher *dispatch.Dispatcher
	runner     *sim.Runner

	counts    map[string]int
	assigned  []event.JobAssigned
	completed map[string]any
}

func (b *memBus) Publish(routingKey string, payload map[string]any) error {
	b.counts[routingKey]++
	body, err := event.Marshal(payload)
	if err != nil {
		return err
	}

	switch routingKey {
	case event.TypeRunStarted, event.TypeJobCreated, event.TypeRobotUpdated:
		return b.dispatcher.HandleMessage(routingKey, body)
	case event.TypeJobAssigned:
		var ev event.JobAssigned
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("decode job.assigned: %w", err)
		}
		b.assigned = append(b.assigned, ev)
		return b.runner.HandleMessage(routingKey, body)
	case event.TypeRunCompleted:
		b.completed = payload
	}
	return nil
}

// Run executes one full run for the configured mode/seed/scale and returns
// its metrics. The simulation, dispatch decisions and GA plans all execute
// on the calling goroutine.
func Run(settings config.Settings, runID string, log zerolog.Logger) (*Result, error) {
	bus := &memBus{counts: make(map[string]int)}

	planner := dispatch.NewLocalPlanner(ga.Config{
		ServiceTimeS:   settings.ServiceTimeS,
		PopulationSize: settings.PopulationSize,
		Generations:    settings.Generations,
		EliteSize:      settings.EliteSize,
		CrossoverRate:  settings.CrossoverRate,
		MutationRate:   settings.MutationRate,
	})
	bus.dispatcher = dispatch.NewDispatcher(settings, bus, planner, log)
	bus.runner = sim.NewRunner(settings, bus, log)

	meta := event.RunMeta{
		RunID: runID,
		Mode:  settings.FleetMode,
		Seed:  settings.FleetSeed,
		Scale: settings.FleetScale,
	}
	if err := bus.Publish(event.TypeRunStarted, event.Envelope(meta, event.TypeRunStarted, "run", 0)); err != nil {
		return nil, fmt.Errorf("publish run.started: %w", err)
	}

	seed := settings.FleetSeed
	started := event.RunStarted{
		RunID: runID,
		Mode:  settings.FleetMode,
		Seed:  &seed,
		Scale: settings.FleetScale,
	}
	if err := bus.runner.RunBlocking(started); err != nil {
		return nil, err
	}
	if bus.completed == nil {
		return nil, fmt.Errorf("run finished without run.completed")
	}

	result := &Result{
		RunID:       runID,
		Mode:        settings.FleetMode,
		Assigned:    bus.assigned,
		EventCounts: bus.counts,
	}
	if hash, ok := bus.completed["scenario_hash"].(string); ok {
		result.ScenarioHash = hash
	}
	if metrics, ok := bus.completed["metrics"].(map[string]any); ok {
		encoded, err := json.Marshal(metrics)
		if err != nil {
			return nil, fmt.Errorf("encode metrics: %w", err)
		}
		if err := json.Unmarshal(encoded, &result.Metrics); err != nil {
			return nil, fmt.Errorf("decode metrics: %w", err)
		}
	}
	return result, nil
}
