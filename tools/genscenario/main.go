// Package main generates deterministic fleet scenarios for offline
// inspection and benchmark fixtures. The same seed and scale always
// produce the same scenario file and hash.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/elektrokombinacija/amr-fleet/internal/config"
	"github.com/elektrokombinacija/amr-fleet/internal/core"
	"github.com/elektrokombinacija/amr-fleet/internal/scenario"
)

// ScenarioFile is the on-disk representation of a generated scenario.
type ScenarioFile struct {
	Seed   int64            `json:"seed"`
	Scale  string           `json:"scale"`
	Hash   string           `json:"hash"`
	Robots []core.RobotInfo `json:"robots"`
	Jobs   []core.JobInfo   `json:"jobs"`
}

func main() {
	seed := flag.Int64("seed", 42, "Random seed for deterministic generation")
	scale := flag.String("scale", "demo", "Fleet scale: mini, small, demo, large")
	robots := flag.Int("robots", 0, "Robot count override (requires -jobs)")
	jobs := flag.Int("jobs", 0, "Job count override (requires -robots)")
	worldSize := flag.Int("world", 100, "World edge length in meters")
	speedMin := flag.Float64("speed-min", 1.0, "Minimum robot speed (m/s)")
	speedMax := flag.Float64("speed-max", 2.0, "Maximum robot speed (m/s)")
	outputDir := flag.String("output", "testdata", "Output directory")

	flag.Parse()

	genRobots, genJobs, hash, err := scenario.Generate(scenario.Params{
		Seed:      *seed,
		Scale:     *scale,
		WorldSize: *worldSize,
		SpeedMin:  *speedMin,
		SpeedMax:  *speedMax,
		Robots:    *robots,
		Jobs:      *jobs,
		Presets:   config.DefaultScaleMap(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating scenario: %v\n", err)
		os.Exit(1)
	}

	file := ScenarioFile{
		Seed:   *seed,
		Scale:  *scale,
		Hash:   hash,
		Robots: make([]core.RobotInfo, 0, len(genRobots)),
		Jobs:   make([]core.JobInfo, 0, len(genJobs)),
	}
	for i := range genRobots {
		file.Robots = append(file.Robots, genRobots[i].Info())
	}
	for i := range genJobs {
		file.Jobs = append(file.Jobs, genJobs[i].Info())
	}

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output directory: %v\n", err)
		os.Exit(1)
	}

	filename := filepath.Join(*outputDir, fmt.Sprintf("scenario_%s_%d.json", *scale, *seed))
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling scenario: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing scenario %s: %v\n", filename, err)
		os.Exit(1)
	}

	fmt.Printf("Generated: %s (%d robots, %d jobs, hash %s)\n",
		filename, len(file.Robots), len(file.Jobs), hash)
}
