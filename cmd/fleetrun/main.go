// Command fleetrun executes a full fleet run in process, with no broker or
// optimizer service, and prints the resulting metrics as JSON. With
// -mode=both it runs baseline and GA on the same scenario and prints a
// comparison.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/elektrokombinacija/amr-fleet/internal/config"
	"github.com/elektrokombinacija/amr-fleet/internal/fleet"
	"github.com/elektrokombinacija/amr-fleet/internal/sim"
)

type runReport struct {
	RunID        string      `json:"run_id"`
	Mode         string      `json:"mode"`
	Seed         int64       `json:"seed"`
	Scale        string      `json:"scale"`
	ScenarioHash string      `json:"scenario_hash"`
	Assignments  int         `json:"assignments"`
	Metrics      sim.Metrics `json:"metrics"`
}

func main() {
	mode := flag.String("mode", "baseline", "dispatch mode: baseline, ga, or both")
	seed := flag.Int64("seed", 42, "scenario seed")
	scale := flag.String("scale", "demo", "scenario scale: mini, small, demo, large")
	robots := flag.Int("robots", 0, "robot count override (requires -jobs)")
	jobs := flag.Int("jobs", 0, "job count override (requires -robots)")
	replan := flag.Int("replan", 30, "GA periodic replan interval in sim seconds (0 disables)")
	verbose := flag.Bool("v", false, "log run progress to stderr")
	flag.Parse()

	log := zerolog.Nop()
	if *verbose {
		log = zerolog.New(os.Stderr).With().Timestamp().Str("service", "fleetrun").Logger()
	}

	settings, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	settings.FleetSeed = *seed
	settings.FleetScale = *scale
	settings.GAReplanIntervalS = *replan
	if *robots > 0 && *jobs > 0 {
		for key := range settings.ScaleMap {
			settings.ScaleMap[key] = config.ScalePreset{Robots: *robots, Jobs: *jobs}
		}
	}

	var modes []string
	switch *mode {
	case "baseline", "ga":
		modes = []string{*mode}
	case "both":
		modes = []string{"baseline", "ga"}
	default:
		fmt.Fprintf(os.Stderr, "invalid mode: %s\n", *mode)
		os.Exit(1)
	}

	reports := make([]runReport, 0, len(modes))
	for _, m := range modes {
		settings.FleetMode = m
		runID := uuid.NewString()
		result, err := fleet.Run(settings, runID, log)
		if err != nil {
			fmt.Fprintf(os.Stderr, "run %s failed: %v\n", m, err)
			os.Exit(1)
		}
		reports = append(reports, runReport{
			RunID:        result.RunID,
			Mode:         m,
			Seed:         *seed,
			Scale:        *scale,
			ScenarioHash: result.ScenarioHash,
			Assignments:  len(result.Assigned),
			Metrics:      result.Metrics,
		})
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if len(reports) == 1 {
		if err := encoder.Encode(reports[0]); err != nil {
			os.Exit(1)
		}
		return
	}
	if err := encoder.Encode(map[string]any{
		"seed":     *seed,
		"scale":    *scale,
		"baseline": reports[0],
		"ga":       reports[1],
	}); err != nil {
		os.Exit(1)
	}
}
