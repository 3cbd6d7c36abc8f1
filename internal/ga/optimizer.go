package ga

import (
	"math/rand"
	"sort"

	"github.com/elektrokombinacija/amr-fleet/internal/core"
)

// Config holds the GA parameters for a single optimization run.
type Config struct {
	Seed           int64
	ServiceTimeS   int
	PopulationSize int
	Generations    int
	EliteSize      int
	CrossoverRate  float64
	MutationRate   float64
}

// Meta describes an optimization result.
type Meta struct {
	BestScore      float64 `json:"best_score"`
	Generations    int     `json:"generations"`
	PopulationSize int     `json:"population_size,omitempty"`
	Seed           int64   `json:"seed,omitempty"`
}

// PlanRequest is the /optimize request body, shared by the dispatcher's
// planner clients and the optimizer server.
type PlanRequest struct {
	RunID       string           `json:"run_id"`
	Seed        int64            `json:"seed"`
	Scale       string           `json:"scale"`
	Mode        string           `json:"mode"`
	SimTimeS    int              `json:"sim_time_s"`
	Robots      []core.RobotInfo `json:"robots"`
	PendingJobs []core.JobInfo   `json:"pending_jobs"`
}

// PlanResponse is the /optimize response body.
type PlanResponse struct {
	Assignments []core.PlannedAssignment `json:"assignments"`
	Meta        Meta                     `json:"meta"`
}

// Optimize runs the seeded GA and returns one scored assignment per job,
// sorted by (job_id, robot_id). Identical inputs give identical outputs.
func Optimize(robots []core.RobotInfo, jobs []core.JobInfo, cfg Config) ([]core.PlannedAssignment, Meta) {
	orderedRobots := make([]core.RobotInfo, len(robots))
	copy(orderedRobots, robots)
	sort.Slice(orderedRobots, func(i, j int) bool { return orderedRobots[i].ID < orderedRobots[j].ID })
	orderedJobs := SortJobs(jobs)

	if len(orderedJobs) == 0 || len(orderedRobots) == 0 {
		return []core.PlannedAssignment{}, Meta{BestScore: 0, Generations: 0}
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	chromosomeLen := len(orderedJobs)

	population := initializePopulation(cfg.PopulationSize, chromosomeLen, len(orderedRobots), rng)

	var bestChromosome []int
	bestScore := 0.0
	bestFound := false
	var bestJobScores map[string]float64

	type evaluated struct {
		score      float64
		idx        int
		chromosome []int
	}

	for gen := 0; gen < cfg.Generations; gen++ {
		scored := make([]evaluated, 0, len(population))
		for idx, chromosome := range population {
			fit := Evaluate(chromosome, orderedRobots, orderedJobs, cfg.ServiceTimeS)
			scored = append(scored, evaluated{score: fit.Score, idx: idx, chromosome: chromosome})
			if !bestFound || fit.Score < bestScore {
				bestFound = true
				bestScore = fit.Score
				bestChromosome = append([]int(nil), chromosome...)
				bestJobScores = fit.JobScores
			}
		}

		sort.Slice(scored, func(i, j int) bool {
			if scored[i].score != scored[j].score {
				return scored[i].score < scored[j].score
			}
			return scored[i].idx < scored[j].idx
		})

		next := make([][]int, 0, cfg.PopulationSize)
		for i := 0; i < cfg.EliteSize && i < len(scored); i++ {
			next = append(next, append([]int(nil), scored[i].chromosome...))
		}
		fitnesses := make([]float64, len(scored))
		sortedPopulation := make([][]int, len(scored))
		for i, row := range scored {
			fitnesses[i] = row.score
			sortedPopulation[i] = row.chromosome
		}

		for len(next) < cfg.PopulationSize {
			parentA := tournamentSelect(sortedPopulation, fitnesses, rng, 3)
			parentB := tournamentSelect(sortedPopulation, fitnesses, rng, 3)

			var childA, childB []int
			if rng.Float64() < cfg.CrossoverRate {
				childA, childB = crossover(parentA, parentB, rng)
			} else {
				childA, childB = parentA, parentB
			}

			next = append(next, mutate(childA, len(orderedRobots), cfg.MutationRate, rng))
			if len(next) < cfg.PopulationSize {
				next = append(next, mutate(childB, len(orderedRobots), cfg.MutationRate, rng))
			}
		}
		population = next
	}

	if !bestFound {
		bestChromosome = make([]int, chromosomeLen)
		fit := Evaluate(bestChromosome, orderedRobots, orderedJobs, cfg.ServiceTimeS)
		bestScore = fit.Score
		bestJobScores = fit.JobScores
	}

	assignments := make([]core.PlannedAssignment, 0, len(orderedJobs))
	for idx, job := range orderedJobs {
		robot := orderedRobots[geneIndex(bestChromosome[idx], len(orderedRobots))]
		assignments = append(assignments, core.PlannedAssignment{
			JobID:   job.ID,
			RobotID: robot.ID,
			Score:   bestJobScores[job.ID],
		})
	}
	core.SortPlanned(assignments)

	meta := Meta{
		BestScore:      bestScore,
		Generations:    cfg.Generations,
		PopulationSize: cfg.PopulationSize,
		Seed:           cfg.Seed,
	}
	return assignments, meta
}
